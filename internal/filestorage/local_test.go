package filestorage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hoard/internal/interfaces"
)

func newLocalProvider(t *testing.T) (*LocalProvider, string) {
	t.Helper()
	root := t.TempDir()
	p, err := NewLocalProvider(root, arbor.NewLogger())
	require.NoError(t, err)
	return p, root
}

func writeSource(t *testing.T, content string) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), "source.html")
	require.NoError(t, os.WriteFile(src, []byte(content), 0o644))
	return src
}

func TestLocalProvider_UploadAndDownload(t *testing.T) {
	p, root := newLocalProvider(t)
	ctx := context.Background()
	src := writeSource(t, "hello archive")

	result, err := p.Upload(ctx, src, "archives/item_1/readable/output.html", interfaces.UploadOptions{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "file://"+filepath.Join(root, "archives/item_1/readable/output.html"), result.URI)
	assert.Equal(t, int64(len("hello archive")), result.OriginalSize)
	assert.Equal(t, result.OriginalSize, result.StoredSize)

	exists, err := p.Exists(ctx, "archives/item_1/readable/output.html")
	require.NoError(t, err)
	assert.True(t, exists)

	dst := filepath.Join(t.TempDir(), "downloaded.html")
	require.NoError(t, p.Download(ctx, "archives/item_1/readable/output.html", dst, false))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello archive", string(got))
}

func TestLocalProvider_CompressedUploadRoundTrip(t *testing.T) {
	p, _ := newLocalProvider(t)
	ctx := context.Background()
	src := writeSource(t, "compress me please, compress me please, compress me please")

	result, err := p.Upload(ctx, src, "a/output.gz", interfaces.UploadOptions{Compress: true})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Greater(t, result.CompressionRatio, 0.0)

	dst := filepath.Join(t.TempDir(), "restored.html")
	require.NoError(t, p.Download(ctx, "a/output.gz", dst, true))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "compress me please, compress me please, compress me please", string(got))
}

func TestLocalProvider_DeleteIsIdempotent(t *testing.T) {
	p, _ := newLocalProvider(t)
	ctx := context.Background()
	src := writeSource(t, "x")

	_, err := p.Upload(ctx, src, "a/b", interfaces.UploadOptions{})
	require.NoError(t, err)

	require.NoError(t, p.Delete(ctx, "a/b"))
	require.NoError(t, p.Delete(ctx, "a/b"), "deleting a missing object is not an error")

	exists, err := p.Exists(ctx, "a/b")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalProvider_RejectsEscapingAbsolutePaths(t *testing.T) {
	p, _ := newLocalProvider(t)
	ctx := context.Background()

	_, err := p.Exists(ctx, "/etc/passwd")
	assert.Error(t, err)
}

func TestLocalProvider_RelativeTraversalStaysJailed(t *testing.T) {
	p, root := newLocalProvider(t)
	ctx := context.Background()
	src := writeSource(t, "jailed")

	result, err := p.Upload(ctx, src, "../../outside.html", interfaces.UploadOptions{})
	require.NoError(t, err)

	// The traversal collapses inside the root instead of escaping it.
	assert.Contains(t, result.URI, root)
	_, err = os.Stat(filepath.Join(filepath.Dir(root), "outside.html"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalProvider_AcceptsOwnFileURIs(t *testing.T) {
	p, _ := newLocalProvider(t)
	ctx := context.Background()
	src := writeSource(t, "by uri")

	result, err := p.Upload(ctx, src, "a/output.html", interfaces.UploadOptions{})
	require.NoError(t, err)

	exists, err := p.Exists(ctx, result.URI)
	require.NoError(t, err)
	assert.True(t, exists)
}
