package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/hoard/internal/models"
)

// ErrNotFound is returned by storage providers when a record does not exist.
// Callers branch on it to distinguish "missing" from infrastructure failure.
var ErrNotFound = errors.New("record not found")

// ListOptions controls list queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// ItemStorage - archived item persistence
type ItemStorage interface {
	SaveItem(ctx context.Context, item *models.ArchivedItem) error
	GetItem(ctx context.Context, id string) (*models.ArchivedItem, error)
	GetItemByURL(ctx context.Context, url string) (*models.ArchivedItem, error)
	ListItems(ctx context.Context, opts *ListOptions) ([]*models.ArchivedItem, error)
	SearchItems(ctx context.Context, query string, limit int) ([]*models.ArchivedItem, error)
	UpdateItemName(ctx context.Context, id, name string) error
	AddItemSize(ctx context.Context, id string, delta int64) error
	DeleteItem(ctx context.Context, id string) error
	CountItems(ctx context.Context) (int, error)
}

// ArtifactStorage - archive artifact persistence.
// UpsertArtifact enforces at most one row per (item, archiver); repeated
// upserts for the same pair update the existing row in place.
type ArtifactStorage interface {
	UpsertArtifact(ctx context.Context, artifact *models.ArchiveArtifact) error
	UpdateArtifact(ctx context.Context, artifact *models.ArchiveArtifact) error
	GetArtifact(ctx context.Context, id string) (*models.ArchiveArtifact, error)
	GetArtifactByPair(ctx context.Context, itemID, archiver string) (*models.ArchiveArtifact, error)
	HasSuccessfulArtifact(ctx context.Context, itemID, archiver string) (bool, error)
	ListArtifactsByStatus(ctx context.Context, statuses []models.ArtifactStatus) ([]*models.ArchiveArtifact, error)
	ListArtifactsForUpload(ctx context.Context) ([]*models.ArchiveArtifact, error)
	ListRetentionEligible(ctx context.Context, before time.Time) ([]*models.ArchiveArtifact, error)
	CountArtifactsByStatus(ctx context.Context, status models.ArtifactStatus) (int, error)
}

// MetadataStorage - extracted content and summaries. Primary-store only;
// the dual-write coordinator never replicates these.
type MetadataStorage interface {
	SaveMetadata(ctx context.Context, meta *models.ItemMetadata) error
	GetMetadata(ctx context.Context, itemID string) (*models.ItemMetadata, error)
	SaveSummary(ctx context.Context, summary *models.ItemSummary) error
	GetSummary(ctx context.Context, itemID string) (*models.ItemSummary, error)
}

// DatabaseStorageProvider is the uniform contract over article metadata
// persistence, implemented once per backend. Capability flags let callers
// adapt behavior instead of assuming backend features.
type DatabaseStorageProvider interface {
	ItemStorage
	ArtifactStorage
	MetadataStorage

	ProviderName() string
	SupportsTransactions() bool
	SupportsFullTextSearch() bool

	Close() error
}
