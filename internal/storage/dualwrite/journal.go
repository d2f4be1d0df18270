package dualwrite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timshannon/badgerhold/v4"
)

// JournalEntry records one failed replica write for later reconciliation.
// Replay is an operator action; entries are a durable to-do list, not a
// guaranteed delivery pipeline.
type JournalEntry struct {
	ID        string    `badgerhold:"key"`
	Operation string    `json:"operation"`
	ItemID    string    `json:"item_id"`
	Error     string    `json:"error"`
	CreatedAt time.Time `json:"created_at"`
}

// RetryJournal persists replica write failures under the queue_retry
// failure mode.
type RetryJournal struct {
	store *badgerhold.Store
}

// NewRetryJournal creates a journal on an existing badgerhold store.
func NewRetryJournal(store *badgerhold.Store) *RetryJournal {
	return &RetryJournal{store: store}
}

// Record appends one journal entry.
func (j *RetryJournal) Record(ctx context.Context, operation, itemID string, cause error) error {
	entry := &JournalEntry{
		ID:        uuid.New().String(),
		Operation: operation,
		ItemID:    itemID,
		Error:     cause.Error(),
		CreatedAt: time.Now(),
	}
	if err := j.store.Insert(entry.ID, entry); err != nil {
		return fmt.Errorf("failed to record journal entry: %w", err)
	}
	return nil
}

// Pending returns all unreplayed entries, oldest first.
func (j *RetryJournal) Pending(ctx context.Context) ([]*JournalEntry, error) {
	var entries []JournalEntry
	if err := j.store.Find(&entries, (&badgerhold.Query{}).SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}

	result := make([]*JournalEntry, len(entries))
	for i := range entries {
		result[i] = &entries[i]
	}
	return result, nil
}

// Resolve removes an entry once the operator has reconciled it.
func (j *RetryJournal) Resolve(ctx context.Context, id string) error {
	if err := j.store.Delete(id, &JournalEntry{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to resolve journal entry: %w", err)
	}
	return nil
}
