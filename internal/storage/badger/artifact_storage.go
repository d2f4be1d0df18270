package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/hoard/internal/interfaces"
	"github.com/ternarybob/hoard/internal/models"
)

// ArtifactStorage implements interfaces.ArtifactStorage for Badger
type ArtifactStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewArtifactStorage creates a new ArtifactStorage instance
func NewArtifactStorage(db *BadgerDB, logger arbor.ILogger) *ArtifactStorage {
	return &ArtifactStorage{
		db:     db,
		logger: logger,
	}
}

// UpsertArtifact keeps at most one record per (item, archiver): an existing
// record for the pair is updated in place under its original key.
func (s *ArtifactStorage) UpsertArtifact(ctx context.Context, artifact *models.ArchiveArtifact) error {
	now := time.Now()
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = now
	}
	artifact.UpdatedAt = now

	existing, err := s.GetArtifactByPair(ctx, artifact.ItemID, artifact.Archiver)
	if err != nil && err != interfaces.ErrNotFound {
		return err
	}
	if existing != nil {
		artifact.ID = existing.ID
		artifact.CreatedAt = existing.CreatedAt
	}

	if err := s.db.Store().Upsert(artifact.ID, artifact); err != nil {
		return fmt.Errorf("failed to upsert artifact: %w", err)
	}
	return nil
}

func (s *ArtifactStorage) UpdateArtifact(ctx context.Context, artifact *models.ArchiveArtifact) error {
	artifact.UpdatedAt = time.Now()
	if err := s.db.Store().Update(artifact.ID, artifact); err != nil {
		if err == badgerhold.ErrNotFound {
			return interfaces.ErrNotFound
		}
		return fmt.Errorf("failed to update artifact: %w", err)
	}
	return nil
}

func (s *ArtifactStorage) GetArtifact(ctx context.Context, id string) (*models.ArchiveArtifact, error) {
	var artifact models.ArchiveArtifact
	if err := s.db.Store().Get(id, &artifact); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return &artifact, nil
}

func (s *ArtifactStorage) GetArtifactByPair(ctx context.Context, itemID, archiver string) (*models.ArchiveArtifact, error) {
	var artifacts []models.ArchiveArtifact
	err := s.db.Store().Find(&artifacts,
		badgerhold.Where("ItemID").Eq(itemID).And("Archiver").Eq(archiver))
	if err != nil {
		return nil, fmt.Errorf("failed to find artifact: %w", err)
	}
	if len(artifacts) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return &artifacts[0], nil
}

func (s *ArtifactStorage) HasSuccessfulArtifact(ctx context.Context, itemID, archiver string) (bool, error) {
	count, err := s.db.Store().Count(&models.ArchiveArtifact{},
		badgerhold.Where("ItemID").Eq(itemID).
			And("Archiver").Eq(archiver).
			And("Status").Eq(models.ArtifactSuccess))
	if err != nil {
		return false, fmt.Errorf("failed to check for successful artifact: %w", err)
	}
	return count > 0, nil
}

func (s *ArtifactStorage) ListArtifactsByStatus(ctx context.Context, statuses []models.ArtifactStatus) ([]*models.ArchiveArtifact, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	values := make([]interface{}, len(statuses))
	for i, status := range statuses {
		values[i] = status
	}

	var artifacts []models.ArchiveArtifact
	err := s.db.Store().Find(&artifacts,
		badgerhold.Where("Status").In(values...).SortBy("CreatedAt"))
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts by status: %w", err)
	}

	return toPointers(artifacts), nil
}

func (s *ArtifactStorage) ListArtifactsForUpload(ctx context.Context) ([]*models.ArchiveArtifact, error) {
	var artifacts []models.ArchiveArtifact
	err := s.db.Store().Find(&artifacts,
		badgerhold.Where("Status").Eq(models.ArtifactSuccess).
			And("UploadedToStorage").Eq(false).
			And("LocalFileDeleted").Eq(false).
			SortBy("CreatedAt"))
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts for upload: %w", err)
	}
	return toPointers(artifacts), nil
}

func (s *ArtifactStorage) ListRetentionEligible(ctx context.Context, before time.Time) ([]*models.ArchiveArtifact, error) {
	var artifacts []models.ArchiveArtifact
	err := s.db.Store().Find(&artifacts,
		badgerhold.Where("Status").Eq(models.ArtifactSuccess).
			And("AllUploadsSucceeded").Eq(true).
			And("LocalFileDeleted").Eq(false).
			And("CreatedAt").Lt(before).
			SortBy("CreatedAt"))
	if err != nil {
		return nil, fmt.Errorf("failed to list retention-eligible artifacts: %w", err)
	}
	return toPointers(artifacts), nil
}

func (s *ArtifactStorage) CountArtifactsByStatus(ctx context.Context, status models.ArtifactStatus) (int, error) {
	count, err := s.db.Store().Count(&models.ArchiveArtifact{},
		badgerhold.Where("Status").Eq(status))
	if err != nil {
		return 0, fmt.Errorf("failed to count artifacts: %w", err)
	}
	return int(count), nil
}

func toPointers(artifacts []models.ArchiveArtifact) []*models.ArchiveArtifact {
	result := make([]*models.ArchiveArtifact, len(artifacts))
	for i := range artifacts {
		result[i] = &artifacts[i]
	}
	return result
}
