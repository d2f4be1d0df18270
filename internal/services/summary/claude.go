package summary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hoard/internal/common"
	"github.com/ternarybob/hoard/internal/interfaces"
	"github.com/ternarybob/hoard/internal/models"
)

const summarySystemPrompt = "You summarize archived web articles. " +
	"Produce a concise summary of the article text you are given: " +
	"3-5 sentences, plain prose, no preamble, no bullet points."

// ClaudeSummarizer generates item summaries through the Anthropic API.
type ClaudeSummarizer struct {
	config *common.SummarizerConfig
	client anthropic.Client
	logger arbor.ILogger
}

// NewClaudeSummarizer creates a summarizer backed by the configured
// Anthropic model.
func NewClaudeSummarizer(config *common.SummarizerConfig, logger arbor.ILogger) (*ClaudeSummarizer, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required (set ANTHROPIC_API_KEY or summarizer.api_key)")
	}
	if config.Model == "" {
		config.Model = "claude-sonnet-4-20250514"
	}

	client := anthropic.NewClient(
		option.WithAPIKey(config.APIKey),
	)

	logger.Debug().
		Str("model", config.Model).
		Msg("Claude summarizer initialized")

	return &ClaudeSummarizer{
		config: config,
		client: client,
		logger: logger,
	}, nil
}

func (s *ClaudeSummarizer) Enabled() bool { return true }

// Summarize sends the item's extracted text to the model and returns the
// generated summary. Input is truncated to the configured character cap.
func (s *ClaudeSummarizer) Summarize(ctx context.Context, item *models.ArchivedItem, text string) (*models.ItemSummary, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("no text to summarize")
	}
	if s.config.MaxInputChars > 0 && len(text) > s.config.MaxInputChars {
		text = text[:s.config.MaxInputChars]
	}

	prompt := fmt.Sprintf("Title: %s\nURL: %s\n\n%s", item.Name, item.URL, text)

	timeoutCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	resp, err := s.client.Messages.New(timeoutCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.config.Model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: summarySystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("claude API call failed: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("no summary generated")
	}

	return &models.ItemSummary{
		ItemID:    item.ID,
		Summary:   strings.TrimSpace(out.String()),
		Model:     s.config.Model,
		CreatedAt: time.Now().UTC(),
	}, nil
}

var _ interfaces.Summarizer = (*ClaudeSummarizer)(nil)
