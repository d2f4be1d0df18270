package uploads

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hoard/internal/common"
	"github.com/ternarybob/hoard/internal/interfaces"
	"github.com/ternarybob/hoard/internal/models"
	"github.com/ternarybob/hoard/internal/queue"
)

// Cleanup reclaims local artifact files after their retention window.
// A file is only eligible once every configured provider holds a copy;
// a partial upload keeps the local file indefinitely.
type Cleanup struct {
	storage interfaces.DatabaseStorageProvider
	config  *common.UploadsConfig
	dataDir string
	logger  arbor.ILogger

	tasks *queue.MemoryQueue[models.CleanupTask]
}

// NewCleanup creates the retention GC with its own background queue.
func NewCleanup(
	storage interfaces.DatabaseStorageProvider,
	config *common.UploadsConfig,
	dataDir string,
	logger arbor.ILogger,
) *Cleanup {
	c := &Cleanup{
		storage: storage,
		config:  config,
		dataDir: dataDir,
		logger:  logger,
	}
	c.tasks = queue.NewMemoryQueue("cleanup", c.process, logger)
	return c
}

// QueueLen reports queued cleanup tasks not yet started.
func (c *Cleanup) QueueLen() int { return c.tasks.Len() }

// Stop shuts down the background consumer.
func (c *Cleanup) Stop() { c.tasks.Stop() }

// RunRetentionSweep queues a cleanup task for every artifact whose local
// copy has outlived the retention window. Eligibility requires a
// successful archive, a complete set of provider uploads, and a local
// file not yet reclaimed.
func (c *Cleanup) RunRetentionSweep(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-c.config.RetentionWindow())
	eligible, err := c.storage.ListRetentionEligible(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list retention-eligible artifacts: %w", err)
	}

	count := 0
	for _, a := range eligible {
		if a.SavedPath == "" {
			continue
		}
		c.tasks.Submit(models.CleanupTask{
			ArtifactID:   a.ID,
			LocalPath:    a.SavedPath,
			ScheduledFor: time.Now().UTC(),
		})
		count++
	}

	if count > 0 {
		c.logger.Info().Int("count", count).Msg("Retention sweep queued cleanups")
	}
	return count, nil
}

// process reclaims one artifact's local file.
func (c *Cleanup) process(ctx context.Context, task models.CleanupTask) error {
	if wait := time.Until(task.ScheduledFor); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	artifact, err := c.storage.GetArtifact(ctx, task.ArtifactID)
	if err != nil {
		return fmt.Errorf("failed to load artifact %s: %w", task.ArtifactID, err)
	}

	// Re-check eligibility at execution time: state may have moved since
	// the sweep queued this task.
	if artifact.Status != models.ArtifactSuccess || !artifact.AllUploadsSucceeded || artifact.LocalFileDeleted {
		c.logger.Debug().Str("artifact_id", artifact.ID).Msg("Cleanup skipped: artifact no longer eligible")
		return nil
	}

	localPath := task.LocalPath
	if localPath == "" {
		localPath = artifact.SavedPath
	}

	if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete local artifact file: %w", err)
	}
	c.pruneEmptyDirs(filepath.Dir(localPath))

	now := time.Now().UTC()
	artifact.LocalFileDeleted = true
	artifact.LocalFileDeletedAt = &now
	artifact.UpdatedAt = now
	if err := c.storage.UpdateArtifact(ctx, artifact); err != nil {
		return fmt.Errorf("failed to mark artifact deleted locally: %w", err)
	}

	c.logger.Info().
		Str("artifact_id", artifact.ID).
		Str("path", localPath).
		Msg("Local artifact file reclaimed")
	return nil
}

// pruneEmptyDirs removes now-empty directories from dir upward, stopping
// at (and never removing) the data root.
func (c *Cleanup) pruneEmptyDirs(dir string) {
	root, err := filepath.Abs(c.dataDir)
	if err != nil {
		return
	}

	for {
		abs, err := filepath.Abs(dir)
		if err != nil || abs == root || !strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return
		}
		entries, err := os.ReadDir(abs)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(abs); err != nil {
			return
		}
		dir = filepath.Dir(abs)
	}
}
