package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hoard/internal/common"
	"github.com/ternarybob/hoard/internal/services/uploads"
)

// Scheduler runs the periodic maintenance tasks: the retention GC that
// reclaims uploaded local files, and the upload retry sweep that
// re-queues artifacts whose uploads were dropped by a crash.
type Scheduler struct {
	pipeline *uploads.Pipeline
	cleanup  *uploads.Cleanup
	config   *common.UploadsConfig
	cron     *cron.Cron
	logger   arbor.ILogger
}

// NewScheduler creates the maintenance scheduler.
func NewScheduler(pipeline *uploads.Pipeline, cleanup *uploads.Cleanup, config *common.UploadsConfig, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		pipeline: pipeline,
		cleanup:  cleanup,
		config:   config,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start registers the configured schedules and begins the cron loop.
func (s *Scheduler) Start() error {
	if !s.config.Enabled {
		s.logger.Debug().Msg("Uploads disabled, maintenance scheduler not started")
		return nil
	}

	if _, err := s.cron.AddFunc(s.config.CleanupSchedule, s.runCleanup); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.config.RetrySchedule, s.runUploadRetry); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info().
		Str("cleanup_schedule", s.config.CleanupSchedule).
		Str("retry_schedule", s.config.RetrySchedule).
		Msg("Maintenance scheduler started")
	return nil
}

// Stop stops the cron loop. Running jobs complete.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info().Msg("Maintenance scheduler stopped")
}

func (s *Scheduler) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	count, err := s.cleanup.RunRetentionSweep(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Retention sweep failed")
		return
	}
	s.logger.Debug().Int("queued", count).Msg("Retention sweep completed")
}

func (s *Scheduler) runUploadRetry() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	count, err := s.pipeline.RequeueUnuploaded(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Upload retry sweep failed")
		return
	}
	s.logger.Debug().Int("queued", count).Msg("Upload retry sweep completed")
}
