package interfaces

import (
	"context"

	"github.com/ternarybob/hoard/internal/models"
)

// Summarizer generates a summary from an item's extracted text.
type Summarizer interface {
	// Enabled reports whether the summarizer is configured and usable.
	Enabled() bool
	Summarize(ctx context.Context, item *models.ArchivedItem, text string) (*models.ItemSummary, error)
}
