package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hoard/internal/archivers"
	"github.com/ternarybob/hoard/internal/common"
	"github.com/ternarybob/hoard/internal/filestorage"
	"github.com/ternarybob/hoard/internal/handlers"
	"github.com/ternarybob/hoard/internal/interfaces"
	"github.com/ternarybob/hoard/internal/models"
	"github.com/ternarybob/hoard/internal/queue"
	"github.com/ternarybob/hoard/internal/services/orchestrator"
	"github.com/ternarybob/hoard/internal/services/scheduler"
	"github.com/ternarybob/hoard/internal/services/summary"
	"github.com/ternarybob/hoard/internal/services/uploads"
	"github.com/ternarybob/hoard/internal/storage"
	badgerstore "github.com/ternarybob/hoard/internal/storage/badger"
)

// App holds all application components and dependencies.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	BadgerDB *badgerstore.BadgerDB
	Storage  interfaces.DatabaseStorageProvider

	QueueManager interfaces.QueueManager
	Worker       *queue.Worker
	Registry     *archivers.Registry
	Orchestrator *orchestrator.Orchestrator
	SummaryGate  *summary.Gate
	Uploads      *uploads.Pipeline
	Cleanup      *uploads.Cleanup
	Scheduler    *scheduler.Scheduler

	// HTTP handlers
	APIHandler     *handlers.APIHandler
	ArchiveHandler *handlers.ArchiveHandler
	ItemHandler    *handlers.ItemHandler
	StatusHandler  *handlers.StatusHandler
}

// New builds the full application from configuration. Nothing starts
// running until Start is called.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: config,
		Logger: logger,
	}

	if err := os.MkdirAll(config.Storage.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// Badger backs both the durable queue and the optional replica store,
	// so the connection is opened once and shared.
	badgerDB, err := badgerstore.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	a.BadgerDB = badgerDB

	store, err := storage.NewStorageProvider(logger, config, badgerDB)
	if err != nil {
		badgerDB.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.Storage = store

	durable, err := queue.NewDurableQueue(
		badgerDB.Store().Badger(),
		config.Queue.QueueName,
		config.Queue.VisibilityTimeoutDuration(),
		config.Queue.MaxReceive,
	)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create durable queue: %w", err)
	}
	a.QueueManager = durable

	a.Registry = archivers.NewRegistry(logger)
	a.registerArchivers()

	rewriter, err := orchestrator.NewPaywallRewriter(config.Archive.PaywallRulesFile, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to load paywall rules: %w", err)
	}
	probe := orchestrator.NewLivenessProbe(
		config.Archive.ProbeTimeoutDuration(),
		config.Archive.ProbeRatePerHost,
		logger,
	)

	a.Orchestrator = orchestrator.New(store, durable, a.Registry, probe, rewriter, &config.Archive, logger)

	summarizer, err := buildSummarizer(config, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.SummaryGate = summary.NewGate(store, summarizer, &config.Summarizer, logger)
	a.Orchestrator.SetSummaryScheduler(a.SummaryGate)

	providers, err := filestorage.NewProviders(context.Background(), logger, config.Storage.FileProviders)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize file storage: %w", err)
	}
	a.Uploads = uploads.NewPipeline(store, providers, &config.Uploads, logger)
	a.Cleanup = uploads.NewCleanup(store, &config.Uploads, config.Storage.DataDir, logger)
	a.Orchestrator.SetUploadScheduler(a.Uploads)
	a.Scheduler = scheduler.NewScheduler(a.Uploads, a.Cleanup, &config.Uploads, logger)

	a.Worker = queue.NewWorker(durable, config.Queue.PollIntervalDuration(), logger)
	a.Worker.ExtendEvery(config.Queue.VisibilityTimeoutDuration() / 2)
	a.Worker.RegisterHandler(models.TaskTypeArchiveBatch, a.Orchestrator.HandleBatchTask)

	a.APIHandler = handlers.NewAPIHandler()
	a.ArchiveHandler = handlers.NewArchiveHandler(a.Orchestrator, logger)
	a.ItemHandler = handlers.NewItemHandler(store, logger)
	a.StatusHandler = handlers.NewStatusHandler(store, durable, a.SummaryGate, a.Uploads, a.Cleanup, logger)

	return a, nil
}

// Start resumes interrupted work and begins background processing.
func (a *App) Start(ctx context.Context) error {
	resumed, err := a.Orchestrator.ResumePendingArtifacts(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to resume pending artifacts")
	} else if resumed > 0 {
		a.Logger.Info().Int("count", resumed).Msg("Resumed pending artifacts from previous run")
	}

	a.Worker.Start()

	if err := a.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start maintenance scheduler: %w", err)
	}

	a.Logger.Info().
		Str("environment", a.Config.Environment).
		Str("storage", a.Storage.ProviderName()).
		Msg("Application started")
	return nil
}

// Shutdown stops background processing and closes all resources.
func (a *App) Shutdown() {
	a.Logger.Info().Msg("Shutting down application")

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.Worker != nil {
		a.Worker.Stop()
	}
	if a.SummaryGate != nil {
		a.SummaryGate.Stop()
	}
	if a.Uploads != nil {
		a.Uploads.Stop()
	}
	if a.Cleanup != nil {
		a.Cleanup.Stop()
	}

	a.close()
	a.Logger.Info().Msg("Application stopped")
}

func (a *App) close() {
	if a.QueueManager != nil {
		if err := a.QueueManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close queue")
		}
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
		}
	}
	if a.BadgerDB != nil {
		if err := a.BadgerDB.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close badger database")
		}
	}
}

// registerArchivers populates the registry: built-in backends first,
// then any configured exec-command backends.
func (a *App) registerArchivers() {
	dataDir := a.Config.Storage.DataDir

	client := &http.Client{Timeout: 60 * time.Second}
	a.Registry.Register(archivers.NewReadableArchiver(client, dataDir, a.Logger))
	a.Registry.Register(archivers.NewPDFArchiver(dataDir, 90*time.Second, a.Logger))

	for name, command := range a.Config.Archive.ExecCommands {
		a.Registry.Register(archivers.NewExecArchiver(name, command, dataDir, a.Logger))
	}

	a.Logger.Info().
		Strs("archivers", a.Registry.Names()).
		Msg("Archivers registered")
}

// buildSummarizer selects the summarizer backend from configuration.
func buildSummarizer(config *common.Config, logger arbor.ILogger) (interfaces.Summarizer, error) {
	if !config.Summarizer.Enabled {
		return summary.DisabledSummarizer{}, nil
	}
	s, err := summary.NewClaudeSummarizer(&config.Summarizer, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize summarizer: %w", err)
	}
	return s, nil
}
