package summary

import (
	"context"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hoard/internal/common"
	"github.com/ternarybob/hoard/internal/interfaces"
	"github.com/ternarybob/hoard/internal/models"
	"github.com/ternarybob/hoard/internal/queue"
)

// Gate decides whether a completed archive attempt should produce a
// summary, and either runs the summarizer inline or queues the work.
// Scheduling is always best-effort: no error from this package ever
// propagates back into the archiving path that triggered it.
type Gate struct {
	storage    interfaces.DatabaseStorageProvider
	summarizer interfaces.Summarizer
	config     *common.SummarizerConfig
	logger     arbor.ILogger

	sources map[string]bool
	tasks   *queue.MemoryQueue[models.SummarizeTask]
}

// NewGate creates the summarization gate with its own background queue.
func NewGate(
	storage interfaces.DatabaseStorageProvider,
	summarizer interfaces.Summarizer,
	config *common.SummarizerConfig,
	logger arbor.ILogger,
) *Gate {
	sources := make(map[string]bool, len(config.SourceArchivers))
	for _, name := range config.SourceArchivers {
		sources[strings.ToLower(name)] = true
	}

	g := &Gate{
		storage:    storage,
		summarizer: summarizer,
		config:     config,
		logger:     logger,
		sources:    sources,
	}
	g.tasks = queue.NewMemoryQueue("summarize", g.process, logger)
	return g
}

// Schedule evaluates one completed artifact for summarization.
// Returns true only when a summary was produced or queued.
func (g *Gate) Schedule(ctx context.Context, item *models.ArchivedItem, artifact *models.ArchiveArtifact, meta *models.ItemMetadata) bool {
	if g.summarizer == nil || !g.summarizer.Enabled() {
		return false
	}
	if item == nil || artifact == nil {
		return false
	}
	if !g.sources[strings.ToLower(artifact.Archiver)] {
		return false
	}

	text := g.resolveText(ctx, item.ID, meta)
	if strings.TrimSpace(text) == "" {
		return false
	}

	if g.config.Inline {
		g.summarize(ctx, item, text, "archive_success")
		return true
	}

	g.tasks.Submit(models.SummarizeTask{
		ArtifactID: artifact.ID,
		ItemID:     item.ID,
		Reason:     "archive_success",
	})
	return true
}

// ScheduleArtifact resolves an artifact ID to its item and runs the same
// eligibility checks. Used by operator-triggered re-summarization.
func (g *Gate) ScheduleArtifact(ctx context.Context, artifactID, reason string) bool {
	if g.summarizer == nil || !g.summarizer.Enabled() {
		return false
	}

	artifact, err := g.storage.GetArtifact(ctx, artifactID)
	if err != nil {
		g.logger.Debug().Err(err).Str("artifact_id", artifactID).Msg("Summarization skipped: artifact not resolvable")
		return false
	}
	item, err := g.storage.GetItem(ctx, artifact.ItemID)
	if err != nil {
		g.logger.Debug().Err(err).Str("item_id", artifact.ItemID).Msg("Summarization skipped: item not resolvable")
		return false
	}
	return g.Schedule(ctx, item, artifact, nil)
}

// QueueLen reports the number of summarize tasks waiting in the
// background queue.
func (g *Gate) QueueLen() int { return g.tasks.Len() }

// Stop shuts down the background consumer.
func (g *Gate) Stop() { g.tasks.Stop() }

// process is the background queue handler for one summarize task.
func (g *Gate) process(ctx context.Context, task models.SummarizeTask) error {
	itemID := task.ItemID
	if itemID == "" && task.ArtifactID != "" {
		artifact, err := g.storage.GetArtifact(ctx, task.ArtifactID)
		if err != nil {
			g.logger.Warn().Err(err).Str("artifact_id", task.ArtifactID).Msg("Summarize task dropped: artifact not found")
			return nil
		}
		itemID = artifact.ItemID
	}

	item, err := g.storage.GetItem(ctx, itemID)
	if err != nil {
		g.logger.Warn().Err(err).Str("item_id", itemID).Msg("Summarize task dropped: item not found")
		return nil
	}

	text := g.resolveText(ctx, itemID, nil)
	if strings.TrimSpace(text) == "" {
		g.logger.Debug().Str("item_id", itemID).Msg("Summarize task dropped: no extracted text")
		return nil
	}

	g.summarize(ctx, item, text, task.Reason)
	return nil
}

// summarize invokes the backend and persists its result. Failures are
// logged and swallowed.
func (g *Gate) summarize(ctx context.Context, item *models.ArchivedItem, text, reason string) {
	start := time.Now()
	result, err := g.summarizer.Summarize(ctx, item, text)
	if err != nil {
		g.logger.Warn().Err(err).
			Str("item_id", item.ID).
			Msg("Summarization failed")
		return
	}

	result.ItemID = item.ID
	result.Reason = reason
	if err := g.storage.SaveSummary(ctx, result); err != nil {
		g.logger.Warn().Err(err).
			Str("item_id", item.ID).
			Msg("Failed to save summary")
		return
	}

	g.logger.Info().
		Str("item_id", item.ID).
		Int("summary_length", len(result.Summary)).
		Dur("duration", time.Since(start)).
		Msg("Item summarized")
}

// resolveText returns the item's summarizable text, preferring metadata
// already in hand over a storage lookup.
func (g *Gate) resolveText(ctx context.Context, itemID string, meta *models.ItemMetadata) string {
	if meta != nil && strings.TrimSpace(meta.Text) != "" {
		return meta.Text
	}
	stored, err := g.storage.GetMetadata(ctx, itemID)
	if err != nil {
		return ""
	}
	return stored.Text
}
