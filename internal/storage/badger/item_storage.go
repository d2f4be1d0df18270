package badger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/hoard/internal/interfaces"
	"github.com/ternarybob/hoard/internal/models"
)

// ItemStorage implements interfaces.ItemStorage for Badger
type ItemStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewItemStorage creates a new ItemStorage instance
func NewItemStorage(db *BadgerDB, logger arbor.ILogger) *ItemStorage {
	return &ItemStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ItemStorage) SaveItem(ctx context.Context, item *models.ArchivedItem) error {
	if item.ID == "" {
		return fmt.Errorf("item ID is required")
	}

	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	if err := s.db.Store().Upsert(item.ID, item); err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}
	return nil
}

func (s *ItemStorage) GetItem(ctx context.Context, id string) (*models.ArchivedItem, error) {
	var item models.ArchivedItem
	if err := s.db.Store().Get(id, &item); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return &item, nil
}

func (s *ItemStorage) GetItemByURL(ctx context.Context, url string) (*models.ArchivedItem, error) {
	var items []models.ArchivedItem
	if err := s.db.Store().Find(&items, badgerhold.Where("URL").Eq(url)); err != nil {
		return nil, fmt.Errorf("failed to find item by url: %w", err)
	}
	if len(items) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return &items[0], nil
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

	var items []models.ArchivedItem
	query := (&badgerhold.Query{}).SortBy("CreatedAt").Reverse().Skip(offset).Limit(limit)
	if err := s.db.Store().Find(&items, query); err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}

	result := make([]*models.ArchivedItem, len(items))
	for i := range items {
		result[i] = &items[i]
	}
	return result, nil
}

// SearchItems does a case-insensitive substring match over name and URL.
// Badger has no full-text index; callers should prefer the primary store
// when SupportsFullTextSearch is required.
func (s *ItemStorage) SearchItems(ctx context.Context, query string, limit int) ([]*models.ArchivedItem, error) {
	if limit <= 0 {
		limit = 50
	}
	needle := strings.ToLower(query)

	var items []models.ArchivedItem
	err := s.db.Store().Find(&items, badgerhold.Where("URL").MatchFunc(func(ra *badgerhold.RecordAccess) (bool, error) {
		item, ok := ra.Record().(*models.ArchivedItem)
		if !ok {
			return false, nil
		}
		return strings.Contains(strings.ToLower(item.URL), needle) ||
			strings.Contains(strings.ToLower(item.Name), needle), nil
	}).Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to search items: %w", err)
	}

	result := make([]*models.ArchivedItem, len(items))
	for i := range items {
		result[i] = &items[i]
	}
	return result, nil
}

func (s *ItemStorage) UpdateItemName(ctx context.Context, id, name string) error {
	item, err := s.GetItem(ctx, id)
	if err != nil {
		return err
	}
	item.Name = name
	return s.SaveItem(ctx, item)
}

func (s *ItemStorage) AddItemSize(ctx context.Context, id string, delta int64) error {
	item, err := s.GetItem(ctx, id)
	if err != nil {
		return err
	}
	item.TotalSizeBytes += delta
	return s.SaveItem(ctx, item)
}

// DeleteItem removes an item and its artifacts (manual cascade).
func (s *ItemStorage) DeleteItem(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.ArchivedItem{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return interfaces.ErrNotFound
		}
		return fmt.Errorf("failed to delete item: %w", err)
	}

	if err := s.db.Store().DeleteMatching(&models.ArchiveArtifact{}, badgerhold.Where("ItemID").Eq(id)); err != nil {
		return fmt.Errorf("failed to delete item artifacts: %w", err)
	}
	return nil
}

func (s *ItemStorage) CountItems(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.ArchivedItem{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return int(count), nil
}
