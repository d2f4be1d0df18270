package summary

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hoard/internal/common"
	"github.com/ternarybob/hoard/internal/interfaces"
	"github.com/ternarybob/hoard/internal/models"
	"github.com/ternarybob/hoard/internal/storage/sqlite"
)

// fakeSummarizer records invocations and returns a canned summary.
type fakeSummarizer struct {
	enabled bool
	err     error

	mu    sync.Mutex
	calls []string
}

func (f *fakeSummarizer) Enabled() bool { return f.enabled }

func (f *fakeSummarizer) Summarize(ctx context.Context, item *models.ArchivedItem, text string) (*models.ItemSummary, error) {
	f.mu.Lock()
	f.calls = append(f.calls, item.ID)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &models.ItemSummary{
		Summary:   "a short summary",
		Model:     "fake-model",
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (f *fakeSummarizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type gateEnv struct {
	storage    interfaces.DatabaseStorageProvider
	summarizer *fakeSummarizer
	gate       *Gate
}

func newGateEnv(t *testing.T, config *common.SummarizerConfig) *gateEnv {
	t.Helper()
	logger := arbor.NewLogger()

	storage, err := sqlite.NewProvider(logger, &common.SQLiteConfig{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	summarizer := &fakeSummarizer{enabled: true}
	gate := NewGate(storage, summarizer, config, logger)
	t.Cleanup(gate.Stop)
	return &gateEnv{storage: storage, summarizer: summarizer, gate: gate}
}

func (e *gateEnv) seedItem(t *testing.T, text string) (*models.ArchivedItem, *models.ArchiveArtifact) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	url := "https://example.com/" + common.NewArtifactID()
	item := &models.ArchivedItem{
		ID:        common.ItemIDFromURL(url),
		URL:       url,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, e.storage.SaveItem(ctx, item))

	artifact := &models.ArchiveArtifact{
		ID:        common.NewArtifactID(),
		ItemID:    item.ID,
		Archiver:  "readable",
		Status:    models.ArtifactSuccess,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, e.storage.UpsertArtifact(ctx, artifact))

	if text != "" {
		require.NoError(t, e.storage.SaveMetadata(ctx, &models.ItemMetadata{
			ItemID:    item.ID,
			Archiver:  "readable",
			Title:     "Title",
			Text:      text,
			UpdatedAt: now,
		}))
	}
	return item, artifact
}

func waitForSummaryCalls(t *testing.T, f *fakeSummarizer, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.callCount() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("summarizer reached %d calls, want %d", f.callCount(), want)
}

func TestGate_InlineSummarizesAndPersists(t *testing.T) {
	env := newGateEnv(t, &common.SummarizerConfig{
		Enabled:         true,
		Inline:          true,
		SourceArchivers: []string{"readable"},
	})
	ctx := context.Background()

	item, artifact := env.seedItem(t, "plenty of text to summarize")
	meta, err := env.storage.GetMetadata(ctx, item.ID)
	require.NoError(t, err)

	assert.True(t, env.gate.Schedule(ctx, item, artifact, meta))
	assert.Equal(t, 1, env.summarizer.callCount())
	assert.Equal(t, 0, env.gate.QueueLen(), "inline mode must not queue")

	saved, err := env.storage.GetSummary(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "a short summary", saved.Summary)
	assert.Equal(t, "archive_success", saved.Reason)
}

func TestGate_BackgroundQueuesExactlyOne(t *testing.T) {
	env := newGateEnv(t, &common.SummarizerConfig{
		Enabled:         true,
		SourceArchivers: []string{"readable"},
	})
	ctx := context.Background()

	item, artifact := env.seedItem(t, "body text")
	assert.True(t, env.gate.Schedule(ctx, item, artifact, nil))

	waitForSummaryCalls(t, env.summarizer, 1)

	saved, err := env.storage.GetSummary(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, saved.ItemID)
}

func TestGate_DisabledSummarizerDeclines(t *testing.T) {
	env := newGateEnv(t, &common.SummarizerConfig{
		Enabled:         true,
		SourceArchivers: []string{"readable"},
	})
	env.summarizer.enabled = false
	ctx := context.Background()

	item, artifact := env.seedItem(t, "body text")
	assert.False(t, env.gate.Schedule(ctx, item, artifact, nil))
	assert.Equal(t, 0, env.summarizer.callCount())
}

func TestGate_SourceArchiverAllowList(t *testing.T) {
	env := newGateEnv(t, &common.SummarizerConfig{
		Enabled:         true,
		Inline:          true,
		SourceArchivers: []string{"readable"},
	})
	ctx := context.Background()

	item, artifact := env.seedItem(t, "body text")
	artifact.Archiver = "pdf"
	assert.False(t, env.gate.Schedule(ctx, item, artifact, nil),
		"archivers outside the source list never summarize")

	// Matching is case-insensitive.
	artifact.Archiver = "Readable"
	assert.True(t, env.gate.Schedule(ctx, item, artifact, nil))
}

func TestGate_EmptyTextDeclines(t *testing.T) {
	env := newGateEnv(t, &common.SummarizerConfig{
		Enabled:         true,
		Inline:          true,
		SourceArchivers: []string{"readable"},
	})
	ctx := context.Background()

	item, artifact := env.seedItem(t, "")
	assert.False(t, env.gate.Schedule(ctx, item, artifact, nil))

	whitespace := &models.ItemMetadata{ItemID: item.ID, Archiver: "readable", Text: "   \n\t "}
	assert.False(t, env.gate.Schedule(ctx, item, artifact, whitespace))
	assert.Equal(t, 0, env.summarizer.callCount())
}

func TestGate_NilInputsDecline(t *testing.T) {
	env := newGateEnv(t, &common.SummarizerConfig{
		Enabled:         true,
		SourceArchivers: []string{"readable"},
	})
	ctx := context.Background()

	item, artifact := env.seedItem(t, "body text")
	assert.False(t, env.gate.Schedule(ctx, nil, artifact, nil))
	assert.False(t, env.gate.Schedule(ctx, item, nil, nil))
}

func TestGate_SummarizerFailureIsSwallowed(t *testing.T) {
	env := newGateEnv(t, &common.SummarizerConfig{
		Enabled:         true,
		Inline:          true,
		SourceArchivers: []string{"readable"},
	})
	env.summarizer.err = fmt.Errorf("api quota exhausted")
	ctx := context.Background()

	item, artifact := env.seedItem(t, "body text")

	// Scheduling still reports true: the attempt was made, best-effort.
	assert.True(t, env.gate.Schedule(ctx, item, artifact, nil))
	assert.Equal(t, 1, env.summarizer.callCount())

	// The failure never produced a summary row, and never surfaced.
	_, err := env.storage.GetSummary(ctx, item.ID)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestGate_ScheduleArtifactResolvesItem(t *testing.T) {
	env := newGateEnv(t, &common.SummarizerConfig{
		Enabled:         true,
		Inline:          true,
		SourceArchivers: []string{"readable"},
	})
	ctx := context.Background()

	item, artifact := env.seedItem(t, "body text")
	assert.True(t, env.gate.ScheduleArtifact(ctx, artifact.ID, "operator_request"))
	assert.Equal(t, 1, env.summarizer.callCount())

	saved, err := env.storage.GetSummary(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, saved.ItemID)

	assert.False(t, env.gate.ScheduleArtifact(ctx, "art_missing", "operator_request"))
}
