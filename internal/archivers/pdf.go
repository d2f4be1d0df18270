package archivers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hoard/internal/interfaces"
	"github.com/ternarybob/hoard/internal/models"
)

// PDFName is the registry name of the print-to-PDF renderer.
const PDFName = "pdf"

// PDFArchiver renders a page to PDF through headless Chrome and validates
// the produced document before reporting success.
type PDFArchiver struct {
	dataDir string
	timeout time.Duration
	logger  arbor.ILogger
}

// NewPDFArchiver creates the PDF renderer backend.
func NewPDFArchiver(dataDir string, timeout time.Duration, logger arbor.ILogger) *PDFArchiver {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &PDFArchiver{
		dataDir: dataDir,
		timeout: timeout,
		logger:  logger,
	}
}

func (a *PDFArchiver) Name() string { return PDFName }

func (a *PDFArchiver) Archive(ctx context.Context, url, itemID string) (*models.ArchiveResult, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 1080),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	runCtx, runCancel := context.WithTimeout(browserCtx, a.timeout)
	defer runCancel()

	var pdfData []byte
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(2*time.Second), // Let late-loading content settle
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				Do(ctx)
			if err != nil {
				return err
			}
			pdfData = data
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}

	outDir := filepath.Join(a.dataDir, itemID, PDFName)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	outPath := filepath.Join(outDir, "output.pdf")

	if err := os.WriteFile(outPath, pdfData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write pdf: %w", err)
	}

	// A truncated render still exits cleanly from Chrome; validate the
	// document structure before calling this a success.
	if err := api.ValidateFile(outPath, nil); err != nil {
		a.logger.Warn().
			Err(err).
			Str("url", url).
			Msg("Rendered PDF failed validation")
		return nil, fmt.Errorf("rendered pdf failed validation: %w", err)
	}

	exitCode := 0
	return &models.ArchiveResult{
		Success:   true,
		ExitCode:  &exitCode,
		SavedPath: outPath,
		SizeBytes: int64(len(pdfData)),
	}, nil
}

var _ interfaces.Archiver = (*PDFArchiver)(nil)
