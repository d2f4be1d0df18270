package filestorage

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
)

// GzipSuffix is appended to compressed object keys.
const GzipSuffix = ".gz"

// CompressFile gzips src into dst at the best compression level and
// returns (originalSize, storedSize).
func CompressFile(src, dst string) (int64, int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open source file: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to stat source file: %w", err)
	}
	originalSize := info.Size()

	out, err := os.Create(dst)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create compressed file: %w", err)
	}
	defer out.Close()

	gw, err := gzip.NewWriterLevel(out, gzip.BestCompression)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create gzip writer: %w", err)
	}

	if _, err := io.Copy(gw, in); err != nil {
		gw.Close()
		return 0, 0, fmt.Errorf("failed to compress file: %w", err)
	}
	if err := gw.Close(); err != nil {
		return 0, 0, fmt.Errorf("failed to finish compression: %w", err)
	}
	if err := out.Sync(); err != nil {
		return 0, 0, fmt.Errorf("failed to sync compressed file: %w", err)
	}

	outInfo, err := out.Stat()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to stat compressed file: %w", err)
	}

	return originalSize, outInfo.Size(), nil
}

// DecompressTo gunzips r into dst.
func DecompressTo(r io.Reader, dst string) error {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gr.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, gr); err != nil {
		return fmt.Errorf("failed to decompress: %w", err)
	}
	return nil
}

// Ratio returns storedSize/originalSize, guarding against empty inputs.
func Ratio(storedSize, originalSize int64) float64 {
	if originalSize <= 0 {
		return 0
	}
	return float64(storedSize) / float64(originalSize)
}
