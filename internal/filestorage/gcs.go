package filestorage

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hoard/internal/interfaces"
	"github.com/ternarybob/hoard/internal/models"
)

// GCSProvider stores files in a Google Cloud Storage bucket and returns
// gs:// URIs. Credentials come from the standard application-default
// chain.
type GCSProvider struct {
	client *gcs.Client
	bucket string
	logger arbor.ILogger
}

// NewGCSProvider creates a provider for the given bucket.
func NewGCSProvider(ctx context.Context, bucket string, logger arbor.ILogger) (*GCSProvider, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}

	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %w", err)
	}

	return &GCSProvider{
		client: client,
		bucket: bucket,
		logger: logger,
	}, nil
}

func (p *GCSProvider) Name() string { return "gcs" }

func (p *GCSProvider) Scheme() string { return "gs" }

func (p *GCSProvider) Upload(ctx context.Context, localPath, destPath string, opts interfaces.UploadOptions) (*models.UploadResult, error) {
	in, err := os.Open(localPath)
	if err != nil {
		return failedUpload(err), fmt.Errorf("failed to open source file: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return failedUpload(err), fmt.Errorf("failed to stat source file: %w", err)
	}
	originalSize := info.Size()

	obj := p.client.Bucket(p.bucket).Object(destPath)
	w := obj.NewWriter(ctx)
	if opts.StorageClass != "" {
		w.StorageClass = opts.StorageClass
	}

	if opts.Compress {
		w.ContentType = "application/gzip"
		gw, err := gzip.NewWriterLevel(w, gzip.BestCompression)
		if err != nil {
			w.Close()
			return failedUpload(err), err
		}
		if _, err := io.Copy(gw, in); err != nil {
			gw.Close()
			w.Close()
			return failedUpload(err), fmt.Errorf("failed to write object: %w", err)
		}
		if err := gw.Close(); err != nil {
			w.Close()
			return failedUpload(err), err
		}
	} else {
		if _, err := io.Copy(w, in); err != nil {
			w.Close()
			return failedUpload(err), fmt.Errorf("failed to write object: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return failedUpload(err), fmt.Errorf("failed to finalize object: %w", err)
	}

	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return failedUpload(err), fmt.Errorf("failed to read object attrs: %w", err)
	}

	return &models.UploadResult{
		Success:          true,
		URI:              fmt.Sprintf("gs://%s/%s", p.bucket, destPath),
		OriginalSize:     originalSize,
		StoredSize:       attrs.Size,
		CompressionRatio: Ratio(attrs.Size, originalSize),
	}, nil
}

func (p *GCSProvider) Download(ctx context.Context, remotePath, localPath string, decompress bool) error {
	r, err := p.client.Bucket(p.bucket).Object(remotePath).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to open object reader: %w", err)
	}
	defer r.Close()

	if decompress {
		return DecompressTo(r, localPath)
	}

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("failed to download object: %w", err)
	}
	return nil
}

func (p *GCSProvider) Delete(ctx context.Context, path string) error {
	err := p.client.Bucket(p.bucket).Object(path).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func (p *GCSProvider) Exists(ctx context.Context, path string) (bool, error) {
	_, err := p.client.Bucket(p.bucket).Object(path).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	return true, nil
}

// AccessURL returns a V4 signed URL valid for expiry.
func (p *GCSProvider) AccessURL(ctx context.Context, path string, expiry time.Duration) (string, error) {
	url, err := p.client.Bucket(p.bucket).SignedURL(path, &gcs.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(expiry),
		Scheme:  gcs.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign url: %w", err)
	}
	return url, nil
}

// Close releases the underlying client.
func (p *GCSProvider) Close() error {
	return p.client.Close()
}

var _ interfaces.FileStorageProvider = (*GCSProvider)(nil)
