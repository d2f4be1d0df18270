package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hoard/internal/interfaces"
	"github.com/ternarybob/hoard/internal/models"
)

// MetadataStorage implements interfaces.MetadataStorage on SQLite
type MetadataStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewMetadataStorage creates a new metadata storage instance
func NewMetadataStorage(db *SQLiteDB, logger arbor.ILogger) *MetadataStorage {
	return &MetadataStorage{
		db:     db,
		logger: logger,
	}
}

func (s *MetadataStorage) SaveMetadata(ctx context.Context, meta *models.ItemMetadata) error {
	meta.UpdatedAt = time.Now()

	query := `
		INSERT INTO item_metadata (
			archived_item_id, archiver, title, byline, site_name, excerpt,
			text, language, word_count, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(archived_item_id, archiver) DO UPDATE SET
			title = excluded.title,
			byline = excluded.byline,
			site_name = excluded.site_name,
			excerpt = excluded.excerpt,
			text = excluded.text,
			language = excluded.language,
			word_count = excluded.word_count,
			updated_at = excluded.updated_at
	`
	_, err := s.db.db.ExecContext(ctx, query,
		meta.ItemID,
		meta.Archiver,
		nullString(meta.Title),
		nullString(meta.Byline),
		nullString(meta.SiteName),
		nullString(meta.Excerpt),
		nullString(meta.Text),
		nullString(meta.Language),
		meta.WordCount,
		meta.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	return nil
}

// GetMetadata returns the most recently updated metadata row for an item.
func (s *MetadataStorage) GetMetadata(ctx context.Context, itemID string) (*models.ItemMetadata, error) {
	row := s.db.db.QueryRowContext(ctx, `
		SELECT archived_item_id, archiver, title, byline, site_name, excerpt,
		       text, language, word_count, updated_at
		FROM item_metadata
		WHERE archived_item_id = ?
		ORDER BY updated_at DESC
		LIMIT 1`, itemID)

	var meta models.ItemMetadata
	var title, byline, siteName, excerpt, text, language sql.NullString
	var updatedAt int64

	err := row.Scan(&meta.ItemID, &meta.Archiver, &title, &byline, &siteName,
		&excerpt, &text, &language, &meta.WordCount, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan metadata: %w", err)
	}

	meta.Title = title.String
	meta.Byline = byline.String
	meta.SiteName = siteName.String
	meta.Excerpt = excerpt.String
	meta.Text = text.String
	meta.Language = language.String
	meta.UpdatedAt = time.Unix(updatedAt, 0)
	return &meta, nil
}

func (s *MetadataStorage) SaveSummary(ctx context.Context, summary *models.ItemSummary) error {
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO item_summaries (archived_item_id, summary, model, reason, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(archived_item_id) DO UPDATE SET
			summary = excluded.summary,
			model = excluded.model,
			reason = excluded.reason,
			created_at = excluded.created_at
	`
	_, err := s.db.db.ExecContext(ctx, query,
		summary.ItemID,
		summary.Summary,
		nullString(summary.Model),
		nullString(summary.Reason),
		summary.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	return nil
}

func (s *MetadataStorage) GetSummary(ctx context.Context, itemID string) (*models.ItemSummary, error) {
	row := s.db.db.QueryRowContext(ctx, `
		SELECT archived_item_id, summary, model, reason, created_at
		FROM item_summaries WHERE archived_item_id = ?`, itemID)

	var summary models.ItemSummary
	var model, reason sql.NullString
	var createdAt int64

	err := row.Scan(&summary.ItemID, &summary.Summary, &model, &reason, &createdAt)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan summary: %w", err)
	}

	summary.Model = model.String
	summary.Reason = reason.String
	summary.CreatedAt = time.Unix(createdAt, 0)
	return &summary, nil
}
