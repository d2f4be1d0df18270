package dualwrite

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hoard/internal/interfaces"
	"github.com/ternarybob/hoard/internal/models"
)

// FailureMode governs how a replica write failure affects the overall
// operation. The primary write has already committed in every mode; this
// is an accepted inconsistency window, not a two-phase commit.
type FailureMode string

const (
	// FailFast fails the overall operation on replica failure.
	FailFast FailureMode = "fail_fast"
	// LogAndContinue logs the replica failure and reports success.
	LogAndContinue FailureMode = "log_and_continue"
	// QueueRetry logs the failure and records a reconciliation journal
	// entry for later replay.
	QueueRetry FailureMode = "queue_retry"
)

// ParseFailureMode maps a config string to a FailureMode, defaulting to
// log_and_continue for unknown values.
func ParseFailureMode(s string) FailureMode {
	switch FailureMode(s) {
	case FailFast, LogAndContinue, QueueRetry:
		return FailureMode(s)
	default:
		return LogAndContinue
	}
}

// Coordinator composes a primary and a replica DatabaseStorageProvider
// behind the single provider contract. Primary must succeed before the
// replica is attempted; all reads are served from the primary, so stale
// replica data is never surfaced through this coordinator.
type Coordinator struct {
	primary interfaces.DatabaseStorageProvider
	replica interfaces.DatabaseStorageProvider
	mode    FailureMode
	journal *RetryJournal
	logger  arbor.ILogger
}

// NewCoordinator creates a dual-write coordinator. journal may be nil when
// the failure mode is not queue_retry.
func NewCoordinator(primary, replica interfaces.DatabaseStorageProvider, mode FailureMode, journal *RetryJournal, logger arbor.ILogger) *Coordinator {
	return &Coordinator{
		primary: primary,
		replica: replica,
		mode:    mode,
		journal: journal,
		logger:  logger,
	}
}

func (c *Coordinator) ProviderName() string { return "dualwrite" }

func (c *Coordinator) SupportsTransactions() bool { return c.primary.SupportsTransactions() }

func (c *Coordinator) SupportsFullTextSearch() bool { return c.primary.SupportsFullTextSearch() }

// --- Item writes ---

func (c *Coordinator) SaveItem(ctx context.Context, item *models.ArchivedItem) error {
	if err := c.primary.SaveItem(ctx, item); err != nil {
		return err
	}
	return c.replicate(ctx, "save_item", item.ID, func() error {
		return c.replica.SaveItem(ctx, projectItem(item))
	})
}

func (c *Coordinator) UpdateItemName(ctx context.Context, id, name string) error {
	if err := c.primary.UpdateItemName(ctx, id, name); err != nil {
		return err
	}
	return c.replicate(ctx, "update_item_name", id, func() error {
		return c.replica.UpdateItemName(ctx, id, name)
	})
}

func (c *Coordinator) AddItemSize(ctx context.Context, id string, delta int64) error {
	if err := c.primary.AddItemSize(ctx, id, delta); err != nil {
		return err
	}
	return c.replicate(ctx, "add_item_size", id, func() error {
		return c.replica.AddItemSize(ctx, id, delta)
	})
}

func (c *Coordinator) DeleteItem(ctx context.Context, id string) error {
	if err := c.primary.DeleteItem(ctx, id); err != nil {
		return err
	}
	return c.replicate(ctx, "delete_item", id, func() error {
		return c.replica.DeleteItem(ctx, id)
	})
}

// --- Artifact writes ---

func (c *Coordinator) UpsertArtifact(ctx context.Context, artifact *models.ArchiveArtifact) error {
	if err := c.primary.UpsertArtifact(ctx, artifact); err != nil {
		return err
	}
	return c.replicate(ctx, "upsert_artifact", artifact.ItemID, func() error {
		return c.replica.UpsertArtifact(ctx, projectArtifact(artifact))
	})
}

func (c *Coordinator) UpdateArtifact(ctx context.Context, artifact *models.ArchiveArtifact) error {
	if err := c.primary.UpdateArtifact(ctx, artifact); err != nil {
		return err
	}
	return c.replicate(ctx, "update_artifact", artifact.ItemID, func() error {
		return c.replica.UpsertArtifact(ctx, projectArtifact(artifact))
	})
}

// --- Metadata writes: primary-only, never replicated ---

func (c *Coordinator) SaveMetadata(ctx context.Context, meta *models.ItemMetadata) error {
	return c.primary.SaveMetadata(ctx, meta)
}

func (c *Coordinator) SaveSummary(ctx context.Context, summary *models.ItemSummary) error {
	return c.primary.SaveSummary(ctx, summary)
}

// --- Reads: primary-only ---

func (c *Coordinator) GetItem(ctx context.Context, id string) (*models.ArchivedItem, error) {
	return c.primary.GetItem(ctx, id)
}

func (c *Coordinator) GetItemByURL(ctx context.Context, url string) (*models.ArchivedItem, error) {
	return c.primary.GetItemByURL(ctx, url)
}

func (c *Coordinator) ListItems(ctx context.Context, opts *interfaces.ListOptions) ([]*models.ArchivedItem, error) {
	return c.primary.ListItems(ctx, opts)
}

func (c *Coordinator) SearchItems(ctx context.Context, query string, limit int) ([]*models.ArchivedItem, error) {
	return c.primary.SearchItems(ctx, query, limit)
}

func (c *Coordinator) CountItems(ctx context.Context) (int, error) {
	return c.primary.CountItems(ctx)
}

func (c *Coordinator) GetArtifact(ctx context.Context, id string) (*models.ArchiveArtifact, error) {
	return c.primary.GetArtifact(ctx, id)
}

func (c *Coordinator) GetArtifactByPair(ctx context.Context, itemID, archiver string) (*models.ArchiveArtifact, error) {
	return c.primary.GetArtifactByPair(ctx, itemID, archiver)
}

func (c *Coordinator) HasSuccessfulArtifact(ctx context.Context, itemID, archiver string) (bool, error) {
	return c.primary.HasSuccessfulArtifact(ctx, itemID, archiver)
}

func (c *Coordinator) ListArtifactsByStatus(ctx context.Context, statuses []models.ArtifactStatus) ([]*models.ArchiveArtifact, error) {
	return c.primary.ListArtifactsByStatus(ctx, statuses)
}

func (c *Coordinator) ListArtifactsForUpload(ctx context.Context) ([]*models.ArchiveArtifact, error) {
	return c.primary.ListArtifactsForUpload(ctx)
}

func (c *Coordinator) ListRetentionEligible(ctx context.Context, before time.Time) ([]*models.ArchiveArtifact, error) {
	return c.primary.ListRetentionEligible(ctx, before)
}

func (c *Coordinator) CountArtifactsByStatus(ctx context.Context, status models.ArtifactStatus) (int, error) {
	return c.primary.CountArtifactsByStatus(ctx, status)
}

func (c *Coordinator) GetMetadata(ctx context.Context, itemID string) (*models.ItemMetadata, error) {
	return c.primary.GetMetadata(ctx, itemID)
}

func (c *Coordinator) GetSummary(ctx context.Context, itemID string) (*models.ItemSummary, error) {
	return c.primary.GetSummary(ctx, itemID)
}

// Close closes both providers; the replica error wins only if the primary
// closed cleanly.
func (c *Coordinator) Close() error {
	primaryErr := c.primary.Close()
	replicaErr := c.replica.Close()
	if primaryErr != nil {
		return primaryErr
	}
	return replicaErr
}

// replicate runs a replica write under the configured failure policy.
// Replica failures are always logged with the operation and item id.
func (c *Coordinator) replicate(ctx context.Context, op, itemID string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}

	c.logger.Warn().
		Err(err).
		Str("operation", op).
		Str("item_id", itemID).
		Str("failure_mode", string(c.mode)).
		Msg("Replica write failed")

	switch c.mode {
	case FailFast:
		return fmt.Errorf("replica write failed for %s: %w", op, err)
	case QueueRetry:
		if c.journal != nil {
			if jErr := c.journal.Record(ctx, op, itemID, err); jErr != nil {
				c.logger.Error().
					Err(jErr).
					Str("operation", op).
					Str("item_id", itemID).
					Msg("Failed to journal replica write for retry")
			}
		}
		return nil
	default: // LogAndContinue
		return nil
	}
}

// projectItem returns the replica copy of an item. Allow-list: id, url,
// name, total size, timestamps.
func projectItem(item *models.ArchivedItem) *models.ArchivedItem {
	return &models.ArchivedItem{
		ID:             item.ID,
		URL:            item.URL,
		Name:           item.Name,
		TotalSizeBytes: item.TotalSizeBytes,
		CreatedAt:      item.CreatedAt,
		UpdatedAt:      item.UpdatedAt,
	}
}

// projectArtifact returns the replica copy of an artifact. Allow-list:
// identity, status, exit code, storage location and upload flags. Local
// filesystem paths are not replicated; mobile clients read remote URIs.
func projectArtifact(artifact *models.ArchiveArtifact) *models.ArchiveArtifact {
	return &models.ArchiveArtifact{
		ID:                  artifact.ID,
		ItemID:              artifact.ItemID,
		Archiver:            artifact.Archiver,
		Status:              artifact.Status,
		TaskID:              artifact.TaskID,
		ExitCode:            artifact.ExitCode,
		LastError:           artifact.LastError,
		SizeBytes:           artifact.SizeBytes,
		StorageBucket:       artifact.StorageBucket,
		StoragePath:         artifact.StoragePath,
		UploadedToStorage:   artifact.UploadedToStorage,
		AllUploadsSucceeded: artifact.AllUploadsSucceeded,
		StorageUploads:      artifact.StorageUploads,
		CreatedAt:           artifact.CreatedAt,
		UpdatedAt:           artifact.UpdatedAt,
	}
}

var _ interfaces.DatabaseStorageProvider = (*Coordinator)(nil)
