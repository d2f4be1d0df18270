package filestorage

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ternarybob/hoard/internal/interfaces"
	"github.com/ternarybob/hoard/internal/models"
)

// MemoryProvider is an in-memory FileStorageProvider used as a test
// double. URIs use the memory:// scheme; access URLs carry an expires
// query parameter so expiry plumbing is observable in tests.
type MemoryProvider struct {
	mu    sync.RWMutex
	files map[string][]byte

	// FailUploads forces every Upload to fail, for exercising partial
	// multi-provider upload outcomes.
	FailUploads bool
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		files: make(map[string][]byte),
	}
}

func (p *MemoryProvider) Name() string { return "memory" }

func (p *MemoryProvider) Scheme() string { return "memory" }

func (p *MemoryProvider) Upload(ctx context.Context, localPath, destPath string, opts interfaces.UploadOptions) (*models.UploadResult, error) {
	if p.FailUploads {
		err := fmt.Errorf("upload refused (FailUploads set)")
		return failedUpload(err), err
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return failedUpload(err), fmt.Errorf("failed to read source file: %w", err)
	}
	originalSize := int64(len(data))

	stored := data
	if opts.Compress {
		var buf bytes.Buffer
		gw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
		if err != nil {
			return failedUpload(err), err
		}
		if _, err := gw.Write(data); err != nil {
			gw.Close()
			return failedUpload(err), err
		}
		if err := gw.Close(); err != nil {
			return failedUpload(err), err
		}
		stored = buf.Bytes()
	}

	p.mu.Lock()
	p.files[destPath] = stored
	p.mu.Unlock()

	return &models.UploadResult{
		Success:          true,
		URI:              "memory://" + destPath,
		OriginalSize:     originalSize,
		StoredSize:       int64(len(stored)),
		CompressionRatio: Ratio(int64(len(stored)), originalSize),
	}, nil
}

func (p *MemoryProvider) Download(ctx context.Context, remotePath, localPath string, decompress bool) error {
	p.mu.RLock()
	data, ok := p.files[remotePath]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("object not found: %s", remotePath)
	}

	if decompress {
		return DecompressTo(bytes.NewReader(data), localPath)
	}

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write local file: %w", err)
	}
	return nil
}

func (p *MemoryProvider) Delete(ctx context.Context, path string) error {
	p.mu.Lock()
	delete(p.files, path)
	p.mu.Unlock()
	return nil
}

func (p *MemoryProvider) Exists(ctx context.Context, path string) (bool, error) {
	p.mu.RLock()
	_, ok := p.files[path]
	p.mu.RUnlock()
	return ok, nil
}

func (p *MemoryProvider) AccessURL(ctx context.Context, path string, expiry time.Duration) (string, error) {
	expires := time.Now().Add(expiry).Unix()
	return fmt.Sprintf("memory://%s?expires=%d", path, expires), nil
}

// Len returns the number of stored objects.
func (p *MemoryProvider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.files)
}

var _ interfaces.FileStorageProvider = (*MemoryProvider)(nil)
