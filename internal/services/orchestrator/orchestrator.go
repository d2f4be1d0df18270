package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hoard/internal/archivers"
	"github.com/ternarybob/hoard/internal/common"
	"github.com/ternarybob/hoard/internal/interfaces"
	"github.com/ternarybob/hoard/internal/models"
)

// SummaryScheduler decides whether a finished archive attempt should
// produce a summary. Consulted once per successful artifact.
type SummaryScheduler interface {
	Schedule(ctx context.Context, item *models.ArchivedItem, artifact *models.ArchiveArtifact, meta *models.ItemMetadata) bool
}

// UploadScheduler hands a successful artifact's local file to the
// upload pipeline.
type UploadScheduler interface {
	ScheduleUpload(task models.UploadTask)
}

// ArchiveRequest is one client enqueue call.
type ArchiveRequest struct {
	URLs      []string `json:"urls"`
	Archivers []string `json:"archivers"` // names, or "all"
	Name      string   `json:"name,omitempty"`
}

// EnqueueResult reports what an enqueue call actually scheduled.
type EnqueueResult struct {
	TaskID   string   `json:"task_id,omitempty"`
	ItemIDs  []string `json:"item_ids"`
	Enqueued int      `json:"enqueued"`
	Skipped  int      `json:"skipped"`
}

// Orchestrator owns the archive lifecycle: enqueue, dedup, dispatch,
// per-item execution, artifact finalization and requeue.
type Orchestrator struct {
	storage  interfaces.DatabaseStorageProvider
	queue    interfaces.QueueManager
	registry interfaces.ArchiverRegistry
	probe    *LivenessProbe
	rewriter *PaywallRewriter
	config   *common.ArchiveConfig
	logger   arbor.ILogger

	summaries SummaryScheduler
	uploads   UploadScheduler

	// waiters maps task IDs to completion waitgroups for callers that
	// block on batch completion. Never survives a restart: resumed tasks
	// have no waiter.
	mu      sync.Mutex
	waiters map[string]*batchWaiter
}

// batchWaiter tracks one batch's completion. The first ProcessBatch
// claims it; a redelivered task finds it claimed and leaves the
// waitgroup alone.
type batchWaiter struct {
	wg      sync.WaitGroup
	claimed bool
}

// New creates an archive orchestrator. Summary and upload schedulers are
// optional; nil disables the corresponding step.
func New(
	storage interfaces.DatabaseStorageProvider,
	queueMgr interfaces.QueueManager,
	registry interfaces.ArchiverRegistry,
	probe *LivenessProbe,
	rewriter *PaywallRewriter,
	config *common.ArchiveConfig,
	logger arbor.ILogger,
) *Orchestrator {
	return &Orchestrator{
		storage:  storage,
		queue:    queueMgr,
		registry: registry,
		probe:    probe,
		rewriter: rewriter,
		config:   config,
		logger:   logger,
		waiters:  make(map[string]*batchWaiter),
	}
}

// SetSummaryScheduler wires the summarization gate. Call before the
// worker starts.
func (o *Orchestrator) SetSummaryScheduler(s SummaryScheduler) { o.summaries = s }

// SetUploadScheduler wires the upload pipeline. Call before the worker
// starts.
func (o *Orchestrator) SetUploadScheduler(u UploadScheduler) { o.uploads = u }

// Enqueue registers the request's URLs as items, creates pending artifact
// rows for each (item, archiver) pair, and publishes one batch task
// covering the new work. Enqueue is idempotent for repeated URLs: the
// item row is reused and, with dedup enabled, pairs that already have a
// successful artifact are skipped rather than re-archived.
func (o *Orchestrator) Enqueue(ctx context.Context, req *ArchiveRequest) (*EnqueueResult, error) {
	if len(req.URLs) == 0 {
		return nil, fmt.Errorf("no urls in archive request")
	}

	names, err := o.expandArchivers(req.Archivers)
	if err != nil {
		return nil, err
	}

	taskID := common.NewTaskID()
	result := &EnqueueResult{}
	var items []models.BatchItem

	for _, rawURL := range req.URLs {
		rawURL = strings.TrimSpace(rawURL)
		if rawURL == "" {
			continue
		}

		item, err := o.ensureItem(ctx, rawURL, req.Name)
		if err != nil {
			return nil, err
		}
		result.ItemIDs = append(result.ItemIDs, item.ID)

		fetchURL, rewritten := o.rewriter.Rewrite(rawURL)
		if rewritten {
			o.logger.Debug().
				Str("url", rawURL).
				Str("fetch_url", fetchURL).
				Msg("Applied paywall rewrite")
		}

		for _, name := range names {
			if o.config.SkipExistingSaves {
				ok, err := o.storage.HasSuccessfulArtifact(ctx, item.ID, name)
				if err != nil {
					return nil, fmt.Errorf("failed to check existing artifact: %w", err)
				}
				if ok {
					result.Skipped++
					continue
				}
			}

			artifact, err := o.pendingArtifact(ctx, item.ID, name, taskID)
			if err != nil {
				return nil, err
			}

			batchItem := models.BatchItem{
				ItemID:     item.ID,
				URL:        rawURL,
				ArtifactID: artifact.ID,
				Archiver:   name,
			}
			if rewritten {
				batchItem.RewrittenURL = fetchURL
			}
			items = append(items, batchItem)
			result.Enqueued++
		}
	}

	if len(items) == 0 {
		return result, nil
	}

	if err := o.publish(ctx, taskID, items); err != nil {
		return nil, err
	}
	result.TaskID = taskID
	return result, nil
}

// EnqueueAndWait enqueues and blocks until every scheduled item has been
// processed or the context expires. Useful for CLI-style callers.
func (o *Orchestrator) EnqueueAndWait(ctx context.Context, req *ArchiveRequest) (*EnqueueResult, error) {
	result, err := o.Enqueue(ctx, req)
	if err != nil {
		return nil, err
	}
	if result.TaskID == "" {
		return result, nil
	}
	if err := o.Wait(ctx, result.TaskID); err != nil {
		return result, err
	}
	return result, nil
}

// Wait blocks until the given task's items have all been processed.
func (o *Orchestrator) Wait(ctx context.Context, taskID string) error {
	o.mu.Lock()
	waiter := o.waiters[taskID]
	o.mu.Unlock()
	if waiter == nil {
		return fmt.Errorf("unknown task: %s", taskID)
	}

	done := make(chan struct{})
	go func() {
		waiter.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.mu.Lock()
		delete(o.waiters, taskID)
		o.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleBatchTask is the durable-queue handler for archive batch tasks.
func (o *Orchestrator) HandleBatchTask(ctx context.Context, msg *models.QueueMessage) error {
	var task models.BatchTask
	if err := json.Unmarshal(msg.Payload, &task); err != nil {
		return fmt.Errorf("failed to decode batch task: %w", err)
	}
	task.TaskID = msg.TaskID
	o.ProcessBatch(ctx, &task)
	return nil
}

// ProcessBatch runs every item in a batch task. Item failures are
// recorded on their artifacts and never abort the rest of the batch.
func (o *Orchestrator) ProcessBatch(ctx context.Context, task *models.BatchTask) {
	o.mu.Lock()
	waiter := o.waiters[task.TaskID]
	if waiter != nil {
		if waiter.claimed {
			// Redelivered task; the first delivery owns the waitgroup.
			waiter = nil
		} else {
			waiter.claimed = true
		}
	}
	o.mu.Unlock()

	for _, item := range task.Items {
		o.processItem(ctx, &item)
		if waiter != nil {
			waiter.wg.Done()
		}
	}
}

// processItem executes one (item, archiver) unit of work and finalizes
// its artifact.
func (o *Orchestrator) processItem(ctx context.Context, bi *models.BatchItem) {
	archiver, err := o.registry.Get(bi.Archiver)
	if errors.Is(err, archivers.ErrNotRegistered) {
		o.logger.Warn().
			Str("item_id", bi.ItemID).
			Str("archiver", bi.Archiver).
			Msg("Archiver not registered")
		o.finalizeFailed(ctx, bi, models.ExitArchiverNotRegistered,
			fmt.Sprintf("archiver not registered: %s", bi.Archiver))
		return
	}
	if err != nil {
		o.logger.Error().Err(err).
			Str("item_id", bi.ItemID).
			Str("archiver", bi.Archiver).
			Msg("Archiver lookup failed")
		o.finalizeFailed(ctx, bi, models.ExitArchiverFailed, err.Error())
		return
	}

	o.markInProgress(ctx, bi)

	// Probe the canonical URL, not the rewrite target: a dead original is
	// dead regardless of what a mirror might still serve.
	if o.probe != nil {
		if dead, status := o.probe.Gone(ctx, bi.URL); dead {
			o.logger.Info().
				Str("item_id", bi.ItemID).
				Str("url", bi.URL).
				Int("status", status).
				Msg("URL is gone, skipping archive")
			o.finalizeFailed(ctx, bi, models.ExitURLNotFound,
				fmt.Sprintf("url gone: HTTP %d", status))
			return
		}
	}

	fetchURL := bi.URL
	if bi.RewrittenURL != "" {
		fetchURL = bi.RewrittenURL
	}

	result, err := o.invokeArchiver(ctx, archiver, fetchURL, bi.ItemID)
	if err != nil || result == nil || !result.Success {
		code := models.ExitArchiverFailed
		if result != nil && result.ExitCode != nil && *result.ExitCode != 0 {
			code = *result.ExitCode
		}
		lastError := "archiver reported failure"
		if err != nil {
			lastError = err.Error()
		}
		o.logger.Warn().Err(err).
			Str("item_id", bi.ItemID).
			Str("archiver", bi.Archiver).
			Int("exit_code", code).
			Msg("Archive attempt failed")
		o.finalizeFailed(ctx, bi, code, lastError)
		return
	}

	o.finalizeSuccess(ctx, bi, result)
	o.logger.Info().
		Str("item_id", bi.ItemID).
		Str("archiver", bi.Archiver).
		Str("path", result.SavedPath).
		Int64("size", result.SizeBytes).
		Msg("Archive attempt succeeded")
}

// invokeArchiver runs a backend with crash isolation. A panicking backend
// fails its own artifact, never the worker.
func (o *Orchestrator) invokeArchiver(ctx context.Context, a interfaces.Archiver, url, itemID string) (result *models.ArchiveResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			o.logger.Error().
				Str("archiver", a.Name()).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(buf[:n])).
				Msg("Archiver panicked")
			result = nil
			err = fmt.Errorf("archiver panicked: %v", r)
		}
	}()
	return a.Archive(ctx, url, itemID)
}

// EnqueueArtifacts requeues existing artifacts by ID: priority archivers
// first, then the rest, split into chunks of at most the configured size.
// Each chunk becomes its own batch task so head-of-line blocking behind a
// huge requeue cannot starve later work.
func (o *Orchestrator) EnqueueArtifacts(ctx context.Context, artifactIDs []string) ([]string, error) {
	var batch []models.BatchItem
	for _, id := range artifactIDs {
		artifact, err := o.storage.GetArtifact(ctx, id)
		if errors.Is(err, interfaces.ErrNotFound) {
			o.logger.Warn().Str("artifact_id", id).Msg("Requeue skipped unknown artifact")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load artifact %s: %w", id, err)
		}

		// Unregistered archivers cannot succeed on retry; fail them now
		// instead of cycling through the queue.
		if _, err := o.registry.Get(artifact.Archiver); err != nil {
			o.logger.Warn().
				Str("artifact_id", artifact.ID).
				Str("archiver", artifact.Archiver).
				Msg("Requeue rejected unregistered archiver")
			o.finalizeFailed(ctx, &models.BatchItem{ArtifactID: artifact.ID}, models.ExitArchiverNotRegistered,
				fmt.Sprintf("archiver not registered: %s", artifact.Archiver))
			continue
		}

		item, err := o.storage.GetItem(ctx, artifact.ItemID)
		if err != nil {
			return nil, fmt.Errorf("failed to load item %s: %w", artifact.ItemID, err)
		}

		fetchURL, rewritten := o.rewriter.Rewrite(item.URL)
		bi := models.BatchItem{
			ItemID:     item.ID,
			URL:        item.URL,
			ArtifactID: artifact.ID,
			Archiver:   artifact.Archiver,
		}
		if rewritten {
			bi.RewrittenURL = fetchURL
		}
		batch = append(batch, bi)
	}

	if len(batch) == 0 {
		return nil, nil
	}

	o.orderByPriority(batch)

	chunkSize := o.config.RequeueChunkSize
	if chunkSize <= 0 {
		chunkSize = len(batch)
	}

	var taskIDs []string
	for start := 0; start < len(batch); start += chunkSize {
		end := start + chunkSize
		if end > len(batch) {
			end = len(batch)
		}
		chunk := batch[start:end]

		taskID := common.NewTaskID()
		for _, bi := range chunk {
			if err := o.resetArtifact(ctx, bi.ArtifactID, taskID); err != nil {
				return taskIDs, err
			}
		}
		if err := o.publish(ctx, taskID, chunk); err != nil {
			return taskIDs, err
		}
		taskIDs = append(taskIDs, taskID)
	}

	o.logger.Info().
		Int("artifacts", len(batch)).
		Int("tasks", len(taskIDs)).
		Msg("Requeued artifacts")
	return taskIDs, nil
}

// ResumePendingArtifacts requeues artifacts left pending or in progress
// by a previous process. Called once at startup, before the worker runs.
func (o *Orchestrator) ResumePendingArtifacts(ctx context.Context) (int, error) {
	stale, err := o.storage.ListArtifactsByStatus(ctx, []models.ArtifactStatus{
		models.ArtifactPending,
		models.ArtifactInProgress,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list resumable artifacts: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(stale))
	for _, a := range stale {
		ids = append(ids, a.ID)
	}
	if _, err := o.EnqueueArtifacts(ctx, ids); err != nil {
		return 0, err
	}

	o.logger.Info().Int("count", len(ids)).Msg("Resumed interrupted artifacts")
	return len(ids), nil
}

// orderByPriority sorts batch items so configured priority archivers come
// first, in their configured order. The sort is stable: relative order
// within a priority class is preserved.
func (o *Orchestrator) orderByPriority(items []models.BatchItem) {
	if len(o.config.RequeuePriorities) == 0 {
		return
	}
	rank := make(map[string]int, len(o.config.RequeuePriorities))
	for i, name := range o.config.RequeuePriorities {
		rank[name] = i
	}
	unranked := len(o.config.RequeuePriorities)
	priority := func(name string) int {
		if r, ok := rank[name]; ok {
			return r
		}
		return unranked
	}
	// Secondary key groups unranked archivers by name so a chunk tends
	// to hold homogeneous work.
	sort.SliceStable(items, func(i, j int) bool {
		pi, pj := priority(items[i].Archiver), priority(items[j].Archiver)
		if pi != pj {
			return pi < pj
		}
		return items[i].Archiver < items[j].Archiver
	})
}

// expandArchivers resolves requested names, expanding "all" to every
// registered backend. Unknown names fail the whole request up front so a
// typo never produces a half-scheduled batch.
func (o *Orchestrator) expandArchivers(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return nil, fmt.Errorf("no archivers in archive request")
	}

	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	for _, name := range requested {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == archivers.AllArchivers {
			for _, n := range o.registry.Names() {
				add(n)
			}
			continue
		}
		if _, err := o.registry.Get(name); err != nil {
			return nil, err
		}
		add(name)
	}

	if len(names) == 0 {
		return nil, fmt.Errorf("no archivers registered")
	}
	return names, nil
}

// ensureItem finds or creates the item row for a URL.
func (o *Orchestrator) ensureItem(ctx context.Context, rawURL, name string) (*models.ArchivedItem, error) {
	existing, err := o.storage.GetItemByURL(ctx, rawURL)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up item by url: %w", err)
	}

	now := time.Now().UTC()
	item := &models.ArchivedItem{
		ID:        common.ItemIDFromURL(rawURL),
		URL:       rawURL,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.storage.SaveItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to save item: %w", err)
	}
	return item, nil
}

// pendingArtifact upserts the pending artifact row for a pair, reusing
// the existing row when one exists.
func (o *Orchestrator) pendingArtifact(ctx context.Context, itemID, archiver, taskID string) (*models.ArchiveArtifact, error) {
	now := time.Now().UTC()
	artifact := &models.ArchiveArtifact{
		ID:        common.NewArtifactID(),
		ItemID:    itemID,
		Archiver:  archiver,
		Status:    models.ArtifactPending,
		TaskID:    taskID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.storage.UpsertArtifact(ctx, artifact); err != nil {
		return nil, fmt.Errorf("failed to upsert artifact: %w", err)
	}
	return artifact, nil
}

func (o *Orchestrator) publish(ctx context.Context, taskID string, items []models.BatchItem) error {
	payload, err := json.Marshal(&models.BatchTask{TaskID: taskID, Items: items})
	if err != nil {
		return fmt.Errorf("failed to encode batch task: %w", err)
	}

	waiter := &batchWaiter{}
	waiter.wg.Add(len(items))
	o.mu.Lock()
	o.waiters[taskID] = waiter
	o.mu.Unlock()

	if err := o.queue.Enqueue(ctx, models.QueueMessage{
		TaskID:  taskID,
		Type:    models.TaskTypeArchiveBatch,
		Payload: payload,
	}); err != nil {
		o.mu.Lock()
		delete(o.waiters, taskID)
		o.mu.Unlock()
		return fmt.Errorf("failed to enqueue batch task: %w", err)
	}

	o.logger.Info().
		Str("task_id", taskID).
		Int("items", len(items)).
		Msg("Batch task enqueued")
	return nil
}

func (o *Orchestrator) markInProgress(ctx context.Context, bi *models.BatchItem) {
	artifact, err := o.storage.GetArtifact(ctx, bi.ArtifactID)
	if err != nil {
		o.logger.Warn().Err(err).Str("artifact_id", bi.ArtifactID).Msg("Failed to load artifact")
		return
	}
	artifact.Status = models.ArtifactInProgress
	artifact.UpdatedAt = time.Now().UTC()
	if err := o.storage.UpdateArtifact(ctx, artifact); err != nil {
		o.logger.Warn().Err(err).Str("artifact_id", bi.ArtifactID).Msg("Failed to mark artifact in progress")
	}
}

func (o *Orchestrator) finalizeFailed(ctx context.Context, bi *models.BatchItem, exitCode int, lastError string) {
	artifact, err := o.storage.GetArtifact(ctx, bi.ArtifactID)
	if err != nil {
		o.logger.Error().Err(err).Str("artifact_id", bi.ArtifactID).Msg("Failed to load artifact for finalization")
		return
	}
	code := exitCode
	artifact.Status = models.ArtifactFailed
	artifact.ExitCode = &code
	artifact.LastError = lastError
	artifact.UpdatedAt = time.Now().UTC()
	if err := o.storage.UpdateArtifact(ctx, artifact); err != nil {
		o.logger.Error().Err(err).Str("artifact_id", bi.ArtifactID).Msg("Failed to finalize failed artifact")
	}
}

func (o *Orchestrator) finalizeSuccess(ctx context.Context, bi *models.BatchItem, result *models.ArchiveResult) {
	artifact, err := o.storage.GetArtifact(ctx, bi.ArtifactID)
	if err != nil {
		o.logger.Error().Err(err).Str("artifact_id", bi.ArtifactID).Msg("Failed to load artifact for finalization")
		return
	}

	code := 0
	if result.ExitCode != nil {
		code = *result.ExitCode
	}
	previousSize := artifact.SizeBytes

	artifact.Status = models.ArtifactSuccess
	artifact.ExitCode = &code
	artifact.LastError = ""
	artifact.SavedPath = result.SavedPath
	artifact.SizeBytes = result.SizeBytes
	artifact.UploadedToStorage = false
	artifact.AllUploadsSucceeded = false
	artifact.LocalFileDeleted = false
	artifact.LocalFileDeletedAt = nil
	artifact.UpdatedAt = time.Now().UTC()
	if err := o.storage.UpdateArtifact(ctx, artifact); err != nil {
		o.logger.Error().Err(err).Str("artifact_id", bi.ArtifactID).Msg("Failed to finalize successful artifact")
		return
	}

	// Roll the size delta up to the item so its total stays the sum of
	// its artifacts even across re-archives.
	if delta := result.SizeBytes - previousSize; delta != 0 {
		if err := o.storage.AddItemSize(ctx, bi.ItemID, delta); err != nil {
			o.logger.Warn().Err(err).Str("item_id", bi.ItemID).Msg("Failed to update item size")
		}
	}

	item, err := o.storage.GetItem(ctx, bi.ItemID)
	if err != nil {
		o.logger.Warn().Err(err).Str("item_id", bi.ItemID).Msg("Failed to load item after archive")
		item = nil
	}

	var meta *models.ItemMetadata
	if result.Metadata != nil {
		meta = result.Metadata
		meta.ItemID = bi.ItemID
		meta.Archiver = bi.Archiver
		meta.UpdatedAt = time.Now().UTC()
		if err := o.storage.SaveMetadata(ctx, meta); err != nil {
			o.logger.Warn().Err(err).Str("item_id", bi.ItemID).Msg("Failed to save extracted metadata")
		}
		if item != nil && item.Name == "" && meta.Title != "" {
			if err := o.storage.UpdateItemName(ctx, item.ID, meta.Title); err != nil {
				o.logger.Warn().Err(err).Str("item_id", item.ID).Msg("Failed to set item name from title")
			} else {
				item.Name = meta.Title
			}
		}
	}

	if o.summaries != nil && item != nil {
		o.summaries.Schedule(ctx, item, artifact, meta)
	}

	if o.uploads != nil && result.SavedPath != "" {
		o.uploads.ScheduleUpload(models.UploadTask{
			ItemID:     bi.ItemID,
			Archiver:   bi.Archiver,
			ArtifactID: artifact.ID,
			LocalPath:  result.SavedPath,
		})
	}
}

// resetArtifact returns an artifact to pending under a new task before
// requeue.
func (o *Orchestrator) resetArtifact(ctx context.Context, artifactID, taskID string) error {
	artifact, err := o.storage.GetArtifact(ctx, artifactID)
	if err != nil {
		return fmt.Errorf("failed to load artifact %s: %w", artifactID, err)
	}
	artifact.Status = models.ArtifactPending
	artifact.TaskID = taskID
	artifact.ExitCode = nil
	artifact.UpdatedAt = time.Now().UTC()
	if err := o.storage.UpdateArtifact(ctx, artifact); err != nil {
		return fmt.Errorf("failed to reset artifact %s: %w", artifactID, err)
	}
	return nil
}
