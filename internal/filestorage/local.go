package filestorage

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hoard/internal/interfaces"
	"github.com/ternarybob/hoard/internal/models"
)

// LocalProvider stores files under a root directory and returns file://
// URIs. Destination paths are jailed to the root.
type LocalProvider struct {
	root   string
	logger arbor.ILogger
}

// NewLocalProvider creates a provider rooted at root.
func NewLocalProvider(root string, logger arbor.ILogger) (*LocalProvider, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &LocalProvider{root: abs, logger: logger}, nil
}

func (p *LocalProvider) Name() string { return "local" }

func (p *LocalProvider) Scheme() string { return "file" }

func (p *LocalProvider) Upload(ctx context.Context, localPath, destPath string, opts interfaces.UploadOptions) (*models.UploadResult, error) {
	target, err := p.resolve(destPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

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

	out, err := os.Create(target)
	if err != nil {
		return failedUpload(err), fmt.Errorf("failed to create destination file: %w", err)
	}
	defer out.Close()

	if opts.Compress {
		gw, err := gzip.NewWriterLevel(out, gzip.BestCompression)
		if err != nil {
			return failedUpload(err), err
		}
		if _, err := io.Copy(gw, in); err != nil {
			gw.Close()
			return failedUpload(err), fmt.Errorf("failed to write compressed file: %w", err)
		}
		if err := gw.Close(); err != nil {
			return failedUpload(err), err
		}
	} else {
		if _, err := io.Copy(out, in); err != nil {
			return failedUpload(err), fmt.Errorf("failed to copy file: %w", err)
		}
	}

	outInfo, err := out.Stat()
	if err != nil {
		return failedUpload(err), fmt.Errorf("failed to stat destination file: %w", err)
	}

	return &models.UploadResult{
		Success:          true,
		URI:              "file://" + target,
		OriginalSize:     originalSize,
		StoredSize:       outInfo.Size(),
		CompressionRatio: Ratio(outInfo.Size(), originalSize),
	}, nil
}

func (p *LocalProvider) Download(ctx context.Context, remotePath, localPath string, decompress bool) error {
	source, err := p.resolve(remotePath)
	if err != nil {
		return err
	}

	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open stored file: %w", err)
	}
	defer in.Close()

	if decompress {
		return DecompressTo(in, localPath)
	}

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}
	return nil
}

func (p *LocalProvider) Delete(ctx context.Context, path string) error {
	target, err := p.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (p *LocalProvider) Exists(ctx context.Context, path string) (bool, error) {
	target, err := p.resolve(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(target); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// AccessURL returns the file URI; expiry has no meaning on local disk.
func (p *LocalProvider) AccessURL(ctx context.Context, path string, expiry time.Duration) (string, error) {
	target, err := p.resolve(path)
	if err != nil {
		return "", err
	}
	return "file://" + target, nil
}

// resolve joins path under the root and rejects escapes.
func (p *LocalProvider) resolve(path string) (string, error) {
	// Accept full file:// URIs produced by this provider.
	path = strings.TrimPrefix(path, "file://")
	if filepath.IsAbs(path) {
		if !strings.HasPrefix(path, p.root+string(filepath.Separator)) && path != p.root {
			return "", fmt.Errorf("path escapes storage root: %s", path)
		}
		return path, nil
	}

	target := filepath.Join(p.root, filepath.Clean("/"+path))
	return target, nil
}

func failedUpload(err error) *models.UploadResult {
	return &models.UploadResult{
		Success: false,
		Error:   err.Error(),
	}
}

var _ interfaces.FileStorageProvider = (*LocalProvider)(nil)
