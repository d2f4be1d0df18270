package archivers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hoard/internal/interfaces"
	"github.com/ternarybob/hoard/internal/models"
)

// ReadableName is the registry name of the readable-text extractor. Its
// output feeds summarization.
const ReadableName = "readable"

// ReadableArchiver fetches a page, extracts its readable article content
// and saves it as markdown alongside structured metadata (title, byline,
// site name, word count).
type ReadableArchiver struct {
	client  *http.Client
	dataDir string
	logger  arbor.ILogger
}

// NewReadableArchiver creates the readable-text extractor backend.
func NewReadableArchiver(client *http.Client, dataDir string, logger arbor.ILogger) *ReadableArchiver {
	if client == nil {
		client = http.DefaultClient
	}
	return &ReadableArchiver{
		client:  client,
		dataDir: dataDir,
		logger:  logger,
	}
}

func (a *ReadableArchiver) Name() string { return ReadableName }

func (a *ReadableArchiver) Archive(ctx context.Context, url, itemID string) (*models.ArchiveResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "hoard/"+ReadableName)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		exitCode := resp.StatusCode
		return &models.ArchiveResult{
			Success:  false,
			ExitCode: &exitCode,
		}, nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && og != "" {
		title = og
	}
	siteName, _ := doc.Find(`meta[property="og:site_name"]`).Attr("content")
	byline, _ := doc.Find(`meta[name="author"]`).Attr("content")
	excerpt, _ := doc.Find(`meta[name="description"]`).Attr("content")

	// Prefer semantic article containers, fall back to body.
	content := doc.Find("article").First()
	if content.Length() == 0 {
		content = doc.Find("main").First()
	}
	if content.Length() == 0 {
		content = doc.Find("body").First()
	}
	content.Find("script, style, nav, header, footer, aside").Remove()

	html, err := content.Html()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize content: %w", err)
	}

	converter := md.NewConverter(url, true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return nil, fmt.Errorf("failed to convert content to markdown: %w", err)
	}
	markdown = strings.TrimSpace(markdown)

	outDir := filepath.Join(a.dataDir, itemID, ReadableName)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	outPath := filepath.Join(outDir, "output.md")

	if err := os.WriteFile(outPath, []byte(markdown), 0644); err != nil {
		return nil, fmt.Errorf("failed to write markdown: %w", err)
	}

	exitCode := 0
	return &models.ArchiveResult{
		Success:   true,
		ExitCode:  &exitCode,
		SavedPath: outPath,
		SizeBytes: int64(len(markdown)),
		Metadata: &models.ItemMetadata{
			ItemID:    itemID,
			Archiver:  ReadableName,
			Title:     title,
			Byline:    byline,
			SiteName:  siteName,
			Excerpt:   excerpt,
			Text:      markdown,
			WordCount: len(strings.Fields(markdown)),
		},
	}, nil
}

var _ interfaces.Archiver = (*ReadableArchiver)(nil)
