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

// ItemStorage implements interfaces.ItemStorage on SQLite
type ItemStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewItemStorage creates a new item storage instance
func NewItemStorage(db *SQLiteDB, logger arbor.ILogger) *ItemStorage {
	return &ItemStorage{
		db:     db,
		logger: logger,
	}
}

// SaveItem upserts an item by id. Only name and updated_at change on
// conflict; the original URL and created_at are preserved.
func (s *ItemStorage) SaveItem(ctx context.Context, item *models.ArchivedItem) error {
	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	query := `
		INSERT INTO archived_items (id, url, name, total_size_bytes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at
	`
	_, err := s.db.db.ExecContext(ctx, query,
		item.ID,
		item.URL,
		item.Name,
		item.TotalSizeBytes,
		item.CreatedAt.Unix(),
		item.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}
	return nil
}

func (s *ItemStorage) GetItem(ctx context.Context, id string) (*models.ArchivedItem, error) {
	row := s.db.db.QueryRowContext(ctx, `
		SELECT id, url, name, total_size_bytes, created_at, updated_at
		FROM archived_items WHERE id = ?`, id)
	return scanItem(row)
}

func (s *ItemStorage) GetItemByURL(ctx context.Context, url string) (*models.ArchivedItem, error) {
	row := s.db.db.QueryRowContext(ctx, `
		SELECT id, url, name, total_size_bytes, created_at, updated_at
		FROM archived_items WHERE url = ?`, url)
	return scanItem(row)
}

func (s *ItemStorage) ListItems(ctx context.Context, opts *interfaces.ListOptions) ([]*models.ArchivedItem, error) {
	limit := 100
	offset := 0
	if opts != nil {
		if opts.Limit > 0 {
			limit = opts.Limit
		}
		offset = opts.Offset
	}

	rows, err := s.db.db.QueryContext(ctx, `
		SELECT id, url, name, total_size_bytes, created_at, updated_at
		FROM archived_items
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// SearchItems queries the FTS5 index over item name and URL.
func (s *ItemStorage) SearchItems(ctx context.Context, query string, limit int) ([]*models.ArchivedItem, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.db.QueryContext(ctx, `
		SELECT i.id, i.url, i.name, i.total_size_bytes, i.created_at, i.updated_at
		FROM archived_items i
		JOIN archived_items_fts fts ON i.rowid = fts.rowid
		WHERE archived_items_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

func (s *ItemStorage) UpdateItemName(ctx context.Context, id, name string) error {
	result, err := s.db.db.ExecContext(ctx, `
		UPDATE archived_items SET name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update item name: %w", err)
	}
	return requireRowAffected(result)
}

// AddItemSize adds delta to the item's total-size rollup.
func (s *ItemStorage) AddItemSize(ctx context.Context, id string, delta int64) error {
	result, err := s.db.db.ExecContext(ctx, `
		UPDATE archived_items
		SET total_size_bytes = total_size_bytes + ?, updated_at = ?
		WHERE id = ?`,
		delta, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update item size: %w", err)
	}
	return requireRowAffected(result)
}

// DeleteItem removes an item; artifacts, metadata and summaries cascade.
func (s *ItemStorage) DeleteItem(ctx context.Context, id string) error {
	result, err := s.db.db.ExecContext(ctx, `DELETE FROM archived_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return requireRowAffected(result)
}

func (s *ItemStorage) CountItems(ctx context.Context) (int, error) {
	var count int
	if err := s.db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archived_items`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return count, nil
}

func scanItem(row *sql.Row) (*models.ArchivedItem, error) {
	var item models.ArchivedItem
	var name sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&item.ID, &item.URL, &name, &item.TotalSizeBytes, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}

	item.Name = name.String
	item.CreatedAt = time.Unix(createdAt, 0)
	item.UpdatedAt = time.Unix(updatedAt, 0)
	return &item, nil
}

func scanItems(rows *sql.Rows) ([]*models.ArchivedItem, error) {
	var items []*models.ArchivedItem
	for rows.Next() {
		var item models.ArchivedItem
		var name sql.NullString
		var createdAt, updatedAt int64

		if err := rows.Scan(&item.ID, &item.URL, &name, &item.TotalSizeBytes, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}

		item.Name = name.String
		item.CreatedAt = time.Unix(createdAt, 0)
		item.UpdatedAt = time.Unix(updatedAt, 0)
		items = append(items, &item)
	}
	return items, rows.Err()
}

func requireRowAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}
