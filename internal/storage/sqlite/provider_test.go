package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hoard/internal/common"
	"github.com/ternarybob/hoard/internal/interfaces"
	"github.com/ternarybob/hoard/internal/models"
)

func setupTestProvider(t *testing.T) *Provider {
	t.Helper()
	provider, err := NewProvider(arbor.NewLogger(), &common.SQLiteConfig{
		Path:          filepath.Join(t.TempDir(), "test.db"),
		BusyTimeoutMS: 5000,
		WALMode:       true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { provider.Close() })
	return provider
}

func testItem(id, url string) *models.ArchivedItem {
	now := time.Now().UTC()
	return &models.ArchivedItem{
		ID:        id,
		URL:       url,
		Name:      "Test Item",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestItemStorage_SaveAndGet(t *testing.T) {
	p := setupTestProvider(t)
	ctx := context.Background()

	item := testItem("item_1", "https://example.com/a")
	require.NoError(t, p.SaveItem(ctx, item))

	got, err := p.GetItem(ctx, "item_1")
	require.NoError(t, err)
	assert.Equal(t, item.URL, got.URL)
	assert.Equal(t, item.Name, got.Name)

	byURL, err := p.GetItemByURL(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "item_1", byURL.ID)

	_, err = p.GetItem(ctx, "missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestItemStorage_SaveIsIdempotentPerURL(t *testing.T) {
	p := setupTestProvider(t)
	ctx := context.Background()

	require.NoError(t, p.SaveItem(ctx, testItem("item_1", "https://example.com/a")))
	require.NoError(t, p.SaveItem(ctx, testItem("item_1", "https://example.com/a")))

	count, err := p.CountItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestItemStorage_AddItemSize(t *testing.T) {
	p := setupTestProvider(t)
	ctx := context.Background()

	require.NoError(t, p.SaveItem(ctx, testItem("item_1", "https://example.com/a")))
	require.NoError(t, p.AddItemSize(ctx, "item_1", 1000))
	require.NoError(t, p.AddItemSize(ctx, "item_1", 500))
	require.NoError(t, p.AddItemSize(ctx, "item_1", -200))

	got, err := p.GetItem(ctx, "item_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1300), got.TotalSizeBytes)
}

func TestItemStorage_SearchItems(t *testing.T) {
	p := setupTestProvider(t)
	ctx := context.Background()

	a := testItem("item_1", "https://example.com/golang")
	a.Name = "Go Concurrency Patterns"
	b := testItem("item_2", "https://example.com/python")
	b.Name = "Python Tips"
	require.NoError(t, p.SaveItem(ctx, a))
	require.NoError(t, p.SaveItem(ctx, b))

	results, err := p.SearchItems(ctx, "concurrency", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "item_1", results[0].ID)
}

func TestItemStorage_SearchAfterRename(t *testing.T) {
	p := setupTestProvider(t)
	ctx := context.Background()

	item := testItem("item_1", "https://example.com/story")
	item.Name = "Alpha Chronicle"
	require.NoError(t, p.SaveItem(ctx, item))
	require.NoError(t, p.UpdateItemName(ctx, "item_1", "Beta Gazette"))

	// The old name's terms must be gone from the index.
	stale, err := p.SearchItems(ctx, "alpha", 10)
	require.NoError(t, err)
	assert.Empty(t, stale)

	fresh, err := p.SearchItems(ctx, "gazette", 10)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "item_1", fresh[0].ID)
}

func TestItemStorage_SearchAfterDelete(t *testing.T) {
	p := setupTestProvider(t)
	ctx := context.Background()

	item := testItem("item_1", "https://example.com/story")
	item.Name = "Alpha Chronicle"
	require.NoError(t, p.SaveItem(ctx, item))
	require.NoError(t, p.DeleteItem(ctx, "item_1"))

	results, err := p.SearchItems(ctx, "alpha", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	// The external-content index must still agree with the content table.
	_, err = p.db.db.ExecContext(ctx,
		`INSERT INTO archived_items_fts(archived_items_fts, rank) VALUES ('integrity-check', 1)`)
	assert.NoError(t, err)
}

func TestArtifactStorage_UpsertKeepsSingleRowPerPair(t *testing.T) {
	p := setupTestProvider(t)
	ctx := context.Background()

	require.NoError(t, p.SaveItem(ctx, testItem("item_1", "https://example.com/a")))

	first := &models.ArchiveArtifact{
		ID:       "art_1",
		ItemID:   "item_1",
		Archiver: "readable",
		Status:   models.ArtifactPending,
	}
	require.NoError(t, p.UpsertArtifact(ctx, first))

	// A second upsert for the same pair must update in place, and the
	// caller's struct must end up holding the surviving row's ID.
	second := &models.ArchiveArtifact{
		ID:       "art_2",
		ItemID:   "item_1",
		Archiver: "readable",
		Status:   models.ArtifactInProgress,
	}
	require.NoError(t, p.UpsertArtifact(ctx, second))
	assert.Equal(t, "art_1", second.ID)

	pending, err := p.ListArtifactsByStatus(ctx, []models.ArtifactStatus{
		models.ArtifactPending, models.ArtifactInProgress,
	})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.ArtifactInProgress, pending[0].Status)
}

func TestArtifactStorage_HasSuccessfulArtifact(t *testing.T) {
	p := setupTestProvider(t)
	ctx := context.Background()

	require.NoError(t, p.SaveItem(ctx, testItem("item_1", "https://example.com/a")))

	ok, err := p.HasSuccessfulArtifact(ctx, "item_1", "readable")
	require.NoError(t, err)
	assert.False(t, ok)

	code := 0
	artifact := &models.ArchiveArtifact{
		ID:       "art_1",
		ItemID:   "item_1",
		Archiver: "readable",
		Status:   models.ArtifactSuccess,
		ExitCode: &code,
	}
	require.NoError(t, p.UpsertArtifact(ctx, artifact))

	ok, err = p.HasSuccessfulArtifact(ctx, "item_1", "readable")
	require.NoError(t, err)
	assert.True(t, ok)

	// Other archivers for the same item are unaffected.
	ok, err = p.HasSuccessfulArtifact(ctx, "item_1", "pdf")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArtifactStorage_ListRetentionEligible(t *testing.T) {
	p := setupTestProvider(t)
	ctx := context.Background()

	require.NoError(t, p.SaveItem(ctx, testItem("item_1", "https://example.com/a")))

	old := time.Now().Add(-100 * time.Hour)
	mk := func(id, archiver string, uploaded, deleted bool, createdAt time.Time) {
		a := &models.ArchiveArtifact{
			ID:                  id,
			ItemID:              "item_1",
			Archiver:            archiver,
			Status:              models.ArtifactSuccess,
			SavedPath:           "/tmp/" + id,
			AllUploadsSucceeded: uploaded,
			LocalFileDeleted:    deleted,
			CreatedAt:           createdAt,
		}
		require.NoError(t, p.UpsertArtifact(ctx, a))
	}

	mk("art_old_uploaded", "readable", true, false, old)
	mk("art_old_not_uploaded", "pdf", false, false, old)
	mk("art_old_deleted", "monolith", true, true, old)
	mk("art_recent", "wget", true, false, time.Now())

	eligible, err := p.ListRetentionEligible(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, "art_old_uploaded", eligible[0].ID)
}

func TestMetadataStorage_SaveAndGet(t *testing.T) {
	p := setupTestProvider(t)
	ctx := context.Background()

	require.NoError(t, p.SaveItem(ctx, testItem("item_1", "https://example.com/a")))

	meta := &models.ItemMetadata{
		ItemID:    "item_1",
		Archiver:  "readable",
		Title:     "A Title",
		Text:      "extracted body text",
		WordCount: 3,
	}
	require.NoError(t, p.SaveMetadata(ctx, meta))

	got, err := p.GetMetadata(ctx, "item_1")
	require.NoError(t, err)
	assert.Equal(t, "A Title", got.Title)
	assert.Equal(t, "extracted body text", got.Text)

	summary := &models.ItemSummary{
		ItemID:  "item_1",
		Summary: "short summary",
		Model:   "test-model",
	}
	require.NoError(t, p.SaveSummary(ctx, summary))

	gotSummary, err := p.GetSummary(ctx, "item_1")
	require.NoError(t, err)
	assert.Equal(t, "short summary", gotSummary.Summary)
}

func TestProvider_Capabilities(t *testing.T) {
	p := setupTestProvider(t)

	assert.Equal(t, "sqlite", p.ProviderName())
	assert.True(t, p.SupportsTransactions())
	assert.True(t, p.SupportsFullTextSearch())
}
