package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hoard/internal/interfaces"
	"github.com/ternarybob/hoard/internal/models"
)

// ArtifactStorage implements interfaces.ArtifactStorage on SQLite
type ArtifactStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewArtifactStorage creates a new artifact storage instance
func NewArtifactStorage(db *SQLiteDB, logger arbor.ILogger) *ArtifactStorage {
	return &ArtifactStorage{
		db:     db,
		logger: logger,
	}
}

const artifactColumns = `
	id, archived_item_id, archiver, status, task_id, exit_code, last_error, saved_path,
	size_bytes, gcs_bucket, gcs_path, uploaded_to_storage, all_uploads_succeeded,
	storage_uploads, local_file_deleted, local_file_deleted_at, created_at, updated_at`

// UpsertArtifact inserts or updates the single row for (item, archiver).
// The UNIQUE(archived_item_id, archiver) constraint guarantees repeated
// processing updates in place rather than creating duplicates. The
// artifact's ID is rewritten to the surviving row's ID on conflict.
func (s *ArtifactStorage) UpsertArtifact(ctx context.Context, artifact *models.ArchiveArtifact) error {
	now := time.Now()
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = now
	}
	artifact.UpdatedAt = now

	uploadsJSON, err := marshalUploads(artifact.StorageUploads)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO archive_artifacts (` + artifactColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(archived_item_id, archiver) DO UPDATE SET
			status = excluded.status,
			task_id = excluded.task_id,
			exit_code = excluded.exit_code,
			last_error = excluded.last_error,
			saved_path = excluded.saved_path,
			size_bytes = excluded.size_bytes,
			gcs_bucket = excluded.gcs_bucket,
			gcs_path = excluded.gcs_path,
			uploaded_to_storage = excluded.uploaded_to_storage,
			all_uploads_succeeded = excluded.all_uploads_succeeded,
			storage_uploads = excluded.storage_uploads,
			local_file_deleted = excluded.local_file_deleted,
			local_file_deleted_at = excluded.local_file_deleted_at,
			updated_at = excluded.updated_at
	`
	_, err = s.db.db.ExecContext(ctx, query,
		artifact.ID,
		artifact.ItemID,
		artifact.Archiver,
		string(artifact.Status),
		nullString(artifact.TaskID),
		nullInt(artifact.ExitCode),
		nullString(artifact.LastError),
		nullString(artifact.SavedPath),
		artifact.SizeBytes,
		nullString(artifact.StorageBucket),
		nullString(artifact.StoragePath),
		boolToInt(artifact.UploadedToStorage),
		boolToInt(artifact.AllUploadsSucceeded),
		uploadsJSON,
		boolToInt(artifact.LocalFileDeleted),
		nullTime(artifact.LocalFileDeletedAt),
		artifact.CreatedAt.Unix(),
		artifact.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert artifact: %w", err)
	}

	// On conflict the pre-existing row keeps its ID; reflect it back so the
	// caller holds the canonical identifier.
	existing, err := s.GetArtifactByPair(ctx, artifact.ItemID, artifact.Archiver)
	if err != nil {
		return err
	}
	artifact.ID = existing.ID
	artifact.CreatedAt = existing.CreatedAt
	return nil
}

// UpdateArtifact rewrites the row identified by the artifact's ID.
func (s *ArtifactStorage) UpdateArtifact(ctx context.Context, artifact *models.ArchiveArtifact) error {
	artifact.UpdatedAt = time.Now()

	uploadsJSON, err := marshalUploads(artifact.StorageUploads)
	if err != nil {
		return err
	}

	result, err := s.db.db.ExecContext(ctx, `
		UPDATE archive_artifacts SET
			status = ?, task_id = ?, exit_code = ?, last_error = ?, saved_path = ?, size_bytes = ?,
			gcs_bucket = ?, gcs_path = ?, uploaded_to_storage = ?,
			all_uploads_succeeded = ?, storage_uploads = ?,
			local_file_deleted = ?, local_file_deleted_at = ?, updated_at = ?
		WHERE id = ?`,
		string(artifact.Status),
		nullString(artifact.TaskID),
		nullInt(artifact.ExitCode),
		nullString(artifact.LastError),
		nullString(artifact.SavedPath),
		artifact.SizeBytes,
		nullString(artifact.StorageBucket),
		nullString(artifact.StoragePath),
		boolToInt(artifact.UploadedToStorage),
		boolToInt(artifact.AllUploadsSucceeded),
		uploadsJSON,
		boolToInt(artifact.LocalFileDeleted),
		nullTime(artifact.LocalFileDeletedAt),
		artifact.UpdatedAt.Unix(),
		artifact.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update artifact: %w", err)
	}
	return requireRowAffected(result)
}

func (s *ArtifactStorage) GetArtifact(ctx context.Context, id string) (*models.ArchiveArtifact, error) {
	row := s.db.db.QueryRowContext(ctx,
		`SELECT `+artifactColumns+` FROM archive_artifacts WHERE id = ?`, id)
	return scanArtifactRow(row)
}

func (s *ArtifactStorage) GetArtifactByPair(ctx context.Context, itemID, archiver string) (*models.ArchiveArtifact, error) {
	row := s.db.db.QueryRowContext(ctx,
		`SELECT `+artifactColumns+` FROM archive_artifacts
		 WHERE archived_item_id = ? AND archiver = ?`, itemID, archiver)
	return scanArtifactRow(row)
}

func (s *ArtifactStorage) HasSuccessfulArtifact(ctx context.Context, itemID, archiver string) (bool, error) {
	var count int
	err := s.db.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM archive_artifacts
		WHERE archived_item_id = ? AND archiver = ? AND status = ?`,
		itemID, archiver, string(models.ArtifactSuccess)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check for successful artifact: %w", err)
	}
	return count > 0, nil
}

func (s *ArtifactStorage) ListArtifactsByStatus(ctx context.Context, statuses []models.ArtifactStatus) ([]*models.ArchiveArtifact, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]interface{}, len(statuses))
	for i, status := range statuses {
		placeholders[i] = "?"
		args[i] = string(status)
	}

	rows, err := s.db.db.QueryContext(ctx,
		`SELECT `+artifactColumns+` FROM archive_artifacts
		 WHERE status IN (`+strings.Join(placeholders, ", ")+`)
		 ORDER BY created_at ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts by status: %w", err)
	}
	defer rows.Close()

	return scanArtifacts(rows)
}

// ListArtifactsForUpload returns successful artifacts not yet in blob storage.
func (s *ArtifactStorage) ListArtifactsForUpload(ctx context.Context) ([]*models.ArchiveArtifact, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT `+artifactColumns+` FROM archive_artifacts
		 WHERE status = ? AND uploaded_to_storage = 0 AND local_file_deleted = 0
		   AND saved_path IS NOT NULL
		 ORDER BY created_at ASC`, string(models.ArtifactSuccess))
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts for upload: %w", err)
	}
	defer rows.Close()

	return scanArtifacts(rows)
}

// ListRetentionEligible returns artifacts whose local copies may be reclaimed:
// fully uploaded, not yet deleted, and created before the cutoff.
func (s *ArtifactStorage) ListRetentionEligible(ctx context.Context, before time.Time) ([]*models.ArchiveArtifact, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT `+artifactColumns+` FROM archive_artifacts
		 WHERE status = ? AND all_uploads_succeeded = 1 AND local_file_deleted = 0
		   AND saved_path IS NOT NULL AND created_at < ?
		 ORDER BY created_at ASC`, string(models.ArtifactSuccess), before.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list retention-eligible artifacts: %w", err)
	}
	defer rows.Close()

	return scanArtifacts(rows)
}

func (s *ArtifactStorage) CountArtifactsByStatus(ctx context.Context, status models.ArtifactStatus) (int, error) {
	var count int
	err := s.db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM archive_artifacts WHERE status = ?`, string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count artifacts: %w", err)
	}
	return count, nil
}

type artifactScanner interface {
	Scan(dest ...interface{}) error
}

func scanArtifact(sc artifactScanner) (*models.ArchiveArtifact, error) {
	var a models.ArchiveArtifact
	var status string
	var taskID, lastError, savedPath, bucket, path, uploadsJSON sql.NullString
	var exitCode sql.NullInt64
	var uploaded, allUploads, deleted int
	var deletedAt sql.NullInt64
	var createdAt, updatedAt int64

	err := sc.Scan(&a.ID, &a.ItemID, &a.Archiver, &status, &taskID, &exitCode,
		&lastError, &savedPath, &a.SizeBytes, &bucket, &path, &uploaded, &allUploads,
		&uploadsJSON, &deleted, &deletedAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan artifact: %w", err)
	}

	a.Status = models.ArtifactStatus(status)
	a.TaskID = taskID.String
	a.LastError = lastError.String
	a.SavedPath = savedPath.String
	a.StorageBucket = bucket.String
	a.StoragePath = path.String
	a.UploadedToStorage = uploaded != 0
	a.AllUploadsSucceeded = allUploads != 0
	a.LocalFileDeleted = deleted != 0
	a.CreatedAt = time.Unix(createdAt, 0)
	a.UpdatedAt = time.Unix(updatedAt, 0)

	if exitCode.Valid {
		code := int(exitCode.Int64)
		a.ExitCode = &code
	}
	if deletedAt.Valid {
		t := time.Unix(deletedAt.Int64, 0)
		a.LocalFileDeletedAt = &t
	}
	if uploadsJSON.Valid && uploadsJSON.String != "" {
		if err := json.Unmarshal([]byte(uploadsJSON.String), &a.StorageUploads); err != nil {
			return nil, fmt.Errorf("failed to unmarshal storage uploads: %w", err)
		}
	}

	return &a, nil
}

func scanArtifactRow(row *sql.Row) (*models.ArchiveArtifact, error) {
	return scanArtifact(row)
}

func scanArtifacts(rows *sql.Rows) ([]*models.ArchiveArtifact, error) {
	var artifacts []*models.ArchiveArtifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

func marshalUploads(uploads []models.StorageUpload) (interface{}, error) {
	if len(uploads) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(uploads)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal storage uploads: %w", err)
	}
	return string(data), nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(i *int) interface{} {
	if i == nil {
		return nil
	}
	return *i
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
