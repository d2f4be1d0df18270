package summary

import (
	"context"
	"fmt"

	"github.com/ternarybob/hoard/internal/interfaces"
	"github.com/ternarybob/hoard/internal/models"
)

// DisabledSummarizer is the stand-in when no summarizer is configured.
// The gate checks Enabled before Summarize, so the error path here only
// triggers on misuse.
type DisabledSummarizer struct{}

func (DisabledSummarizer) Enabled() bool { return false }

func (DisabledSummarizer) Summarize(ctx context.Context, item *models.ArchivedItem, text string) (*models.ItemSummary, error) {
	return nil, fmt.Errorf("summarizer is not configured")
}

var _ interfaces.Summarizer = DisabledSummarizer{}
