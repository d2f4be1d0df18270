package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/hoard/internal/models"
)

// UploadOptions controls a single file upload.
type UploadOptions struct {
	Compress     bool   // Gzip the payload transparently
	StorageClass string // Backend storage class hint, ignored where unsupported
}

// FileStorageProvider is the uniform upload/download/delete contract over a
// byte-addressable backend. Returned URIs carry a provider-specific scheme
// (file://, gs://, memory://) that callers must treat as opaque.
type FileStorageProvider interface {
	Name() string
	Scheme() string

	Upload(ctx context.Context, localPath, destPath string, opts UploadOptions) (*models.UploadResult, error)
	Download(ctx context.Context, remotePath, localPath string, decompress bool) error
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)

	// AccessURL returns a time-limited URL for direct artifact access.
	AccessURL(ctx context.Context, path string, expiry time.Duration) (string, error)
}
