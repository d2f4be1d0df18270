package uploads

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hoard/internal/common"
	"github.com/ternarybob/hoard/internal/filestorage"
	"github.com/ternarybob/hoard/internal/interfaces"
	"github.com/ternarybob/hoard/internal/models"
	"github.com/ternarybob/hoard/internal/storage/sqlite"
)

func newTestStorage(t *testing.T) interfaces.DatabaseStorageProvider {
	t.Helper()
	storage, err := sqlite.NewProvider(arbor.NewLogger(), &common.SQLiteConfig{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	return storage
}

// seedSuccessfulArtifact creates an item, a successful artifact, and a
// real local file for it under dir.
func seedSuccessfulArtifact(t *testing.T, storage interfaces.DatabaseStorageProvider, dir, slug string) *models.ArchiveArtifact {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	url := "https://example.com/" + slug
	item := &models.ArchivedItem{
		ID:        common.ItemIDFromURL(url),
		URL:       url,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, storage.SaveItem(ctx, item))

	localDir := filepath.Join(dir, item.ID, "readable")
	require.NoError(t, os.MkdirAll(localDir, 0o755))
	localPath := filepath.Join(localDir, "output.html")
	require.NoError(t, os.WriteFile(localPath, []byte("<html>archived content for "+slug+"</html>"), 0o644))

	artifact := &models.ArchiveArtifact{
		ID:        common.NewArtifactID(),
		ItemID:    item.ID,
		Archiver:  "readable",
		Status:    models.ArtifactSuccess,
		SavedPath: localPath,
		SizeBytes: 42,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, storage.UpsertArtifact(ctx, artifact))
	return artifact
}

func uploadTaskFor(a *models.ArchiveArtifact) models.UploadTask {
	return models.UploadTask{
		ItemID:     a.ItemID,
		Archiver:   a.Archiver,
		ArtifactID: a.ID,
		LocalPath:  a.SavedPath,
	}
}

func TestPipeline_UploadsToEveryProvider(t *testing.T) {
	storage := newTestStorage(t)
	first := filestorage.NewMemoryProvider()
	second := filestorage.NewMemoryProvider()

	pipeline := NewPipeline(storage, []interfaces.FileStorageProvider{first, second},
		&common.UploadsConfig{Enabled: true}, arbor.NewLogger())
	t.Cleanup(pipeline.Stop)

	ctx := context.Background()
	artifact := seedSuccessfulArtifact(t, storage, t.TempDir(), "post-1")

	require.NoError(t, pipeline.process(ctx, uploadTaskFor(artifact)))

	got, err := storage.GetArtifact(ctx, artifact.ID)
	require.NoError(t, err)
	assert.True(t, got.UploadedToStorage)
	assert.True(t, got.AllUploadsSucceeded)
	require.Len(t, got.StorageUploads, 2)
	assert.Equal(t, "memory", got.StorageUploads[0].Provider)
	assert.False(t, got.LocalFileDeleted, "upload never deletes the local file")

	// The same compressed object lands in both providers under the
	// deterministic key.
	key := "archives/" + artifact.ItemID + "/readable/output.html.gz"
	for _, p := range []*filestorage.MemoryProvider{first, second} {
		exists, err := p.Exists(ctx, key)
		require.NoError(t, err)
		assert.True(t, exists)
	}
	assert.Equal(t, "memory://"+key, got.StorageUploads[0].URI)
	assert.Equal(t, key, got.StoragePath)
	assert.Empty(t, got.StorageBucket, "memory uploads have no container")
}

func TestPipeline_PartialUploadIsIncomplete(t *testing.T) {
	storage := newTestStorage(t)
	healthy := filestorage.NewMemoryProvider()
	broken := filestorage.NewMemoryProvider()
	broken.FailUploads = true

	pipeline := NewPipeline(storage, []interfaces.FileStorageProvider{healthy, broken},
		&common.UploadsConfig{Enabled: true}, arbor.NewLogger())
	t.Cleanup(pipeline.Stop)

	ctx := context.Background()
	artifact := seedSuccessfulArtifact(t, storage, t.TempDir(), "post-2")

	err := pipeline.process(ctx, uploadTaskFor(artifact))
	assert.Error(t, err, "a partial upload set is reported so it can be retried")

	got, err := storage.GetArtifact(ctx, artifact.ID)
	require.NoError(t, err)
	assert.True(t, got.UploadedToStorage, "the successful provider still counts")
	assert.False(t, got.AllUploadsSucceeded, "retention must stay blocked")
	assert.Len(t, got.StorageUploads, 1)
	assert.Equal(t, "archives/"+artifact.ItemID+"/readable/output.html.gz", got.StoragePath)
}

func TestPipeline_SkipsIneligibleArtifacts(t *testing.T) {
	storage := newTestStorage(t)
	provider := filestorage.NewMemoryProvider()
	pipeline := NewPipeline(storage, []interfaces.FileStorageProvider{provider},
		&common.UploadsConfig{Enabled: true}, arbor.NewLogger())
	t.Cleanup(pipeline.Stop)

	ctx := context.Background()
	artifact := seedSuccessfulArtifact(t, storage, t.TempDir(), "post-3")

	artifact.Status = models.ArtifactFailed
	require.NoError(t, storage.UpdateArtifact(ctx, artifact))
	require.NoError(t, pipeline.process(ctx, uploadTaskFor(artifact)))
	assert.Equal(t, 0, provider.Len())

	artifact.Status = models.ArtifactSuccess
	artifact.LocalFileDeleted = true
	require.NoError(t, storage.UpdateArtifact(ctx, artifact))
	require.NoError(t, pipeline.process(ctx, uploadTaskFor(artifact)))
	assert.Equal(t, 0, provider.Len())
}

func TestPipeline_ScheduleUploadDisabled(t *testing.T) {
	storage := newTestStorage(t)
	pipeline := NewPipeline(storage, []interfaces.FileStorageProvider{filestorage.NewMemoryProvider()},
		&common.UploadsConfig{Enabled: false}, arbor.NewLogger())
	t.Cleanup(pipeline.Stop)

	pipeline.ScheduleUpload(models.UploadTask{ArtifactID: "art_x"})
	assert.Equal(t, 0, pipeline.QueueLen())
}

func TestPipeline_RequeueUnuploaded(t *testing.T) {
	storage := newTestStorage(t)
	provider := filestorage.NewMemoryProvider()
	pipeline := NewPipeline(storage, []interfaces.FileStorageProvider{provider},
		&common.UploadsConfig{Enabled: true}, arbor.NewLogger())
	t.Cleanup(pipeline.Stop)

	ctx := context.Background()
	dir := t.TempDir()
	first := seedSuccessfulArtifact(t, storage, dir, "post-4")
	second := seedSuccessfulArtifact(t, storage, dir, "post-5")

	count, err := pipeline.RequeueUnuploaded(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// The background consumer drains the catch-up queue.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		a1, err1 := storage.GetArtifact(ctx, first.ID)
		a2, err2 := storage.GetArtifact(ctx, second.ID)
		if err1 == nil && err2 == nil && a1.UploadedToStorage && a2.UploadedToStorage {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("requeued uploads were not processed")
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "archives/item_1/pdf/output.pdf.gz", objectKey("item_1", "pdf", "/data/item_1/pdf/output.pdf"))
	assert.Equal(t, "archives/item_1/exec/output.gz", objectKey("item_1", "exec", "/data/item_1/exec/output"))
}

func TestBucketFromURI(t *testing.T) {
	key := "archives/item_1/pdf/output.pdf.gz"
	assert.Equal(t, "my-archive-bucket", bucketFromURI("gs://my-archive-bucket/"+key, key))
	assert.Equal(t, "var/data/uploads", bucketFromURI("file:///var/data/uploads/"+key, key))
	assert.Empty(t, bucketFromURI("memory://"+key, key))
}
