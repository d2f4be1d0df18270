package filestorage

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hoard/internal/common"
	"github.com/ternarybob/hoard/internal/interfaces"
)

// NewProviders builds the configured file-storage providers in order.
func NewProviders(ctx context.Context, logger arbor.ILogger, configs []common.FileProvider) ([]interfaces.FileStorageProvider, error) {
	var providers []interfaces.FileStorageProvider

	for _, cfg := range configs {
		switch cfg.Type {
		case "local":
			p, err := NewLocalProvider(cfg.Root, logger)
			if err != nil {
				return nil, fmt.Errorf("failed to create local provider: %w", err)
			}
			providers = append(providers, p)
		case "gcs":
			p, err := NewGCSProvider(ctx, cfg.Bucket, logger)
			if err != nil {
				return nil, fmt.Errorf("failed to create gcs provider: %w", err)
			}
			providers = append(providers, p)
		case "memory":
			providers = append(providers, NewMemoryProvider())
		default:
			return nil, fmt.Errorf("unsupported file provider type: %s", cfg.Type)
		}
	}

	return providers, nil
}
