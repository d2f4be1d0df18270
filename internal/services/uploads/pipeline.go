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
	"github.com/ternarybob/hoard/internal/filestorage"
	"github.com/ternarybob/hoard/internal/interfaces"
	"github.com/ternarybob/hoard/internal/models"
	"github.com/ternarybob/hoard/internal/queue"
)

// Pipeline moves successful artifacts' local files into blob storage.
// Each file is compressed once, uploaded to every configured provider,
// and the artifact records one StorageUpload entry per provider. The
// retention GC only reclaims local copies once every provider holds one.
type Pipeline struct {
	storage   interfaces.DatabaseStorageProvider
	providers []interfaces.FileStorageProvider
	config    *common.UploadsConfig
	logger    arbor.ILogger

	tasks *queue.MemoryQueue[models.UploadTask]
}

// NewPipeline creates the upload pipeline with its own background queue.
func NewPipeline(
	storage interfaces.DatabaseStorageProvider,
	providers []interfaces.FileStorageProvider,
	config *common.UploadsConfig,
	logger arbor.ILogger,
) *Pipeline {
	p := &Pipeline{
		storage:   storage,
		providers: providers,
		config:    config,
		logger:    logger,
	}
	p.tasks = queue.NewMemoryQueue("upload", p.process, logger)
	return p
}

// ScheduleUpload queues one artifact's local file for upload.
func (p *Pipeline) ScheduleUpload(task models.UploadTask) {
	if !p.config.Enabled || len(p.providers) == 0 {
		return
	}
	p.tasks.Submit(task)
}

// QueueLen reports queued uploads not yet started.
func (p *Pipeline) QueueLen() int { return p.tasks.Len() }

// Stop shuts down the background consumer.
func (p *Pipeline) Stop() { p.tasks.Stop() }

// RequeueUnuploaded enqueues an upload for every artifact marked
// successful but not yet uploaded. This is the catch-up path for uploads
// dropped by a worker crash, run on a schedule.
func (p *Pipeline) RequeueUnuploaded(ctx context.Context) (int, error) {
	if !p.config.Enabled || len(p.providers) == 0 {
		return 0, nil
	}

	artifacts, err := p.storage.ListArtifactsForUpload(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list artifacts for upload: %w", err)
	}

	count := 0
	for _, a := range artifacts {
		if a.SavedPath == "" || a.LocalFileDeleted {
			continue
		}
		p.tasks.Submit(models.UploadTask{
			ItemID:     a.ItemID,
			Archiver:   a.Archiver,
			ArtifactID: a.ID,
			LocalPath:  a.SavedPath,
		})
		count++
	}

	if count > 0 {
		p.logger.Info().Int("count", count).Msg("Requeued pending uploads")
	}
	return count, nil
}

// process uploads one artifact's file to every provider.
func (p *Pipeline) process(ctx context.Context, task models.UploadTask) error {
	artifact, err := p.storage.GetArtifact(ctx, task.ArtifactID)
	if err != nil {
		return fmt.Errorf("failed to load artifact %s: %w", task.ArtifactID, err)
	}
	if artifact.Status != models.ArtifactSuccess {
		p.logger.Debug().Str("artifact_id", artifact.ID).Msg("Upload skipped: artifact not successful")
		return nil
	}
	if artifact.LocalFileDeleted {
		p.logger.Debug().Str("artifact_id", artifact.ID).Msg("Upload skipped: local file already reclaimed")
		return nil
	}

	localPath := task.LocalPath
	if localPath == "" {
		localPath = artifact.SavedPath
	}
	if _, err := os.Stat(localPath); err != nil {
		return fmt.Errorf("local artifact file missing: %w", err)
	}

	// Compress once, upload the same bytes everywhere.
	tmp, err := os.CreateTemp("", "hoard-upload-*.gz")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	originalSize, storedSize, err := filestorage.CompressFile(localPath, tmpPath)
	if err != nil {
		return fmt.Errorf("failed to compress artifact file: %w", err)
	}
	ratio := filestorage.Ratio(storedSize, originalSize)

	key := objectKey(task.ItemID, task.Archiver, localPath)

	var uploads []models.StorageUpload
	allSucceeded := true
	for _, provider := range p.providers {
		result, err := provider.Upload(ctx, tmpPath, key, interfaces.UploadOptions{
			Compress:     false, // already compressed
			StorageClass: p.config.StorageClass,
		})
		if err != nil || !result.Success {
			allSucceeded = false
			p.logger.Warn().Err(err).
				Str("artifact_id", artifact.ID).
				Str("provider", provider.Name()).
				Msg("Artifact upload failed")
			continue
		}
		uploads = append(uploads, models.StorageUpload{
			Provider:         provider.Name(),
			URI:              result.URI,
			SizeBytes:        storedSize,
			CompressionRatio: ratio,
			UploadedAt:       time.Now().UTC(),
		})
	}

	if len(uploads) > 0 {
		// The first successful provider's location fills the dedicated
		// columns; the full fan-out lives in storage_uploads.
		artifact.StorageBucket = bucketFromURI(uploads[0].URI, key)
		artifact.StoragePath = key
	}
	artifact.StorageUploads = uploads
	artifact.UploadedToStorage = len(uploads) > 0
	artifact.AllUploadsSucceeded = allSucceeded && len(uploads) == len(p.providers)
	artifact.UpdatedAt = time.Now().UTC()
	if err := p.storage.UpdateArtifact(ctx, artifact); err != nil {
		return fmt.Errorf("failed to record uploads on artifact: %w", err)
	}

	p.logger.Info().
		Str("artifact_id", artifact.ID).
		Int("providers", len(uploads)).
		Int64("original_size", originalSize).
		Int64("stored_size", storedSize).
		Msg("Artifact uploaded")

	if !artifact.AllUploadsSucceeded {
		return fmt.Errorf("uploads incomplete for artifact %s: %d/%d providers", artifact.ID, len(uploads), len(p.providers))
	}
	return nil
}

// objectKey derives the deterministic blob key for an artifact file:
// archives/{itemId}/{archiver}/output{ext}.gz
func objectKey(itemID, archiver, localPath string) string {
	ext := filepath.Ext(localPath)
	return fmt.Sprintf("archives/%s/%s/output%s%s", itemID, archiver, ext, filestorage.GzipSuffix)
}

// bucketFromURI strips the scheme and the object key from an upload URI,
// leaving the container the object lives in: the GCS bucket, or the
// local provider's root. Providers with no container yield "".
func bucketFromURI(uri, key string) string {
	rest := uri
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	rest = strings.TrimSuffix(rest, key)
	return strings.Trim(rest, "/")
}
