package interfaces

import (
	"context"

	"github.com/ternarybob/hoard/internal/models"
)

// Archiver is a pluggable strategy that turns a URL into a saved file.
// Implementations must be safe to call repeatedly for the same (url, itemID);
// the orchestrator relies on this for redelivery safety.
type Archiver interface {
	Name() string
	Archive(ctx context.Context, url, itemID string) (*models.ArchiveResult, error)
}

// ArchiverRegistry resolves archiver backends by name.
type ArchiverRegistry interface {
	Get(name string) (Archiver, error)
	Names() []string
}
