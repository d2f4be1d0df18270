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
	"github.com/ternarybob/hoard/internal/interfaces"
	"github.com/ternarybob/hoard/internal/models"
)

// seedUploadedArtifact creates an item, an aged artifact with a complete
// upload set, and a real local file under dir. CreatedAt survives the
// insert, so aging happens at seed time.
func seedUploadedArtifact(t *testing.T, storage interfaces.DatabaseStorageProvider, dir, slug string, age time.Duration) *models.ArchiveArtifact {
	t.Helper()
	ctx := context.Background()
	old := time.Now().UTC().Add(-age)

	url := "https://example.com/" + slug
	item := &models.ArchivedItem{
		ID:        common.ItemIDFromURL(url),
		URL:       url,
		CreatedAt: old,
		UpdatedAt: old,
	}
	require.NoError(t, storage.SaveItem(ctx, item))

	localDir := filepath.Join(dir, item.ID, "readable")
	require.NoError(t, os.MkdirAll(localDir, 0o755))
	localPath := filepath.Join(localDir, "output.html")
	require.NoError(t, os.WriteFile(localPath, []byte("<html>"+slug+"</html>"), 0o644))

	artifact := &models.ArchiveArtifact{
		ID:                  common.NewArtifactID(),
		ItemID:              item.ID,
		Archiver:            "readable",
		Status:              models.ArtifactSuccess,
		SavedPath:           localPath,
		UploadedToStorage:   true,
		AllUploadsSucceeded: true,
		StorageUploads: []models.StorageUpload{{
			Provider:   "memory",
			URI:        "memory://archives/" + item.ID + "/readable/output.html.gz",
			UploadedAt: old,
		}},
		CreatedAt: old,
		UpdatedAt: old,
	}
	require.NoError(t, storage.UpsertArtifact(ctx, artifact))
	return artifact
}

func newCleanup(t *testing.T, storage interfaces.DatabaseStorageProvider, dataDir string) *Cleanup {
	t.Helper()
	c := NewCleanup(storage, &common.UploadsConfig{Enabled: true, RetentionHours: 24}, dataDir, arbor.NewLogger())
	t.Cleanup(c.Stop)
	return c
}

func TestCleanup_ReclaimsAndPrunes(t *testing.T) {
	storage := newTestStorage(t)
	dataDir := t.TempDir()
	ctx := context.Background()

	artifact := seedUploadedArtifact(t, storage, dataDir, "old-post", 48*time.Hour)

	cleanup := newCleanup(t, storage, dataDir)
	require.NoError(t, cleanup.process(ctx, models.CleanupTask{
		ArtifactID:   artifact.ID,
		LocalPath:    artifact.SavedPath,
		ScheduledFor: time.Now().UTC(),
	}))

	_, err := os.Stat(artifact.SavedPath)
	assert.True(t, os.IsNotExist(err), "local file must be removed")

	// Empty item directories are pruned, the data root survives.
	_, err = os.Stat(filepath.Join(dataDir, artifact.ItemID))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(dataDir)
	assert.NoError(t, err)

	got, err := storage.GetArtifact(ctx, artifact.ID)
	require.NoError(t, err)
	assert.True(t, got.LocalFileDeleted)
	require.NotNil(t, got.LocalFileDeletedAt)
	assert.WithinDuration(t, time.Now().UTC(), *got.LocalFileDeletedAt, time.Minute)
}

func TestCleanup_SiblingFilesBlockPruning(t *testing.T) {
	storage := newTestStorage(t)
	dataDir := t.TempDir()
	ctx := context.Background()

	artifact := seedUploadedArtifact(t, storage, dataDir, "shared-dir", 48*time.Hour)

	sibling := filepath.Join(filepath.Dir(artifact.SavedPath), "notes.txt")
	require.NoError(t, os.WriteFile(sibling, []byte("keep"), 0o644))

	cleanup := newCleanup(t, storage, dataDir)
	require.NoError(t, cleanup.process(ctx, models.CleanupTask{
		ArtifactID:   artifact.ID,
		LocalPath:    artifact.SavedPath,
		ScheduledFor: time.Now().UTC(),
	}))

	_, err := os.Stat(sibling)
	assert.NoError(t, err, "a non-empty directory is never pruned")
}

func TestCleanup_RechecksEligibilityAtExecution(t *testing.T) {
	storage := newTestStorage(t)
	dataDir := t.TempDir()
	ctx := context.Background()

	artifact := seedSuccessfulArtifact(t, storage, dataDir, "partial-upload")
	// Uploaded to one provider only: retention stays blocked.
	artifact.UploadedToStorage = true
	artifact.AllUploadsSucceeded = false
	require.NoError(t, storage.UpdateArtifact(ctx, artifact))

	cleanup := newCleanup(t, storage, dataDir)
	require.NoError(t, cleanup.process(ctx, models.CleanupTask{
		ArtifactID:   artifact.ID,
		LocalPath:    artifact.SavedPath,
		ScheduledFor: time.Now().UTC(),
	}))

	_, err := os.Stat(artifact.SavedPath)
	assert.NoError(t, err, "partially uploaded files are kept")

	got, err := storage.GetArtifact(ctx, artifact.ID)
	require.NoError(t, err)
	assert.False(t, got.LocalFileDeleted)
}

func TestCleanup_MissingFileStillFinalizes(t *testing.T) {
	storage := newTestStorage(t)
	dataDir := t.TempDir()
	ctx := context.Background()

	artifact := seedUploadedArtifact(t, storage, dataDir, "already-gone", 48*time.Hour)
	require.NoError(t, os.Remove(artifact.SavedPath))

	cleanup := newCleanup(t, storage, dataDir)
	require.NoError(t, cleanup.process(ctx, models.CleanupTask{
		ArtifactID:   artifact.ID,
		LocalPath:    artifact.SavedPath,
		ScheduledFor: time.Now().UTC(),
	}))

	got, err := storage.GetArtifact(ctx, artifact.ID)
	require.NoError(t, err)
	assert.True(t, got.LocalFileDeleted, "a file deleted out of band still gets stamped")
}

func TestCleanup_RetentionSweepSelectsOnlyExpired(t *testing.T) {
	storage := newTestStorage(t)
	dataDir := t.TempDir()
	ctx := context.Background()

	expired := seedUploadedArtifact(t, storage, dataDir, "expired", 48*time.Hour)
	fresh := seedUploadedArtifact(t, storage, dataDir, "fresh", time.Hour)
	_ = fresh

	notUploaded := seedSuccessfulArtifact(t, storage, dataDir, "not-uploaded")
	_ = notUploaded

	cleanup := newCleanup(t, storage, dataDir)
	count, err := cleanup.RunRetentionSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "only the expired, fully uploaded artifact qualifies")

	// The background consumer reclaims it.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := storage.GetArtifact(ctx, expired.ID)
		require.NoError(t, err)
		if got.LocalFileDeleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("retention sweep did not reclaim the expired artifact")
}
