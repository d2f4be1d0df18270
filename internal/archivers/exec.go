package archivers

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hoard/internal/interfaces"
	"github.com/ternarybob/hoard/internal/models"
)

// ExecArchiver shells out to an external page-dump tool. The command
// template may reference {url} and {output}; the tool's exit code is
// recorded on the artifact. This is the black-box adapter for tools like
// monolith or single-file.
type ExecArchiver struct {
	name     string
	command  string
	dataDir  string
	logger   arbor.ILogger
}

// NewExecArchiver creates a command-line backed archiver.
func NewExecArchiver(name, command, dataDir string, logger arbor.ILogger) *ExecArchiver {
	return &ExecArchiver{
		name:    name,
		command: command,
		dataDir: dataDir,
		logger:  logger,
	}
}

func (a *ExecArchiver) Name() string { return a.name }

func (a *ExecArchiver) Archive(ctx context.Context, url, itemID string) (*models.ArchiveResult, error) {
	outDir := filepath.Join(a.dataDir, itemID, a.name)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	outPath := filepath.Join(outDir, "output.html")

	command := strings.ReplaceAll(a.command, "{url}", url)
	command = strings.ReplaceAll(command, "{output}", outPath)

	a.logger.Debug().
		Str("archiver", a.name).
		Str("url", url).
		Msg("Invoking external archiver")

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	output, err := cmd.CombinedOutput()
	if err != nil {
		exitCode := 1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		a.logger.Warn().
			Str("archiver", a.name).
			Str("url", url).
			Int("exit_code", exitCode).
			Str("output", truncate(string(output), 512)).
			Msg("External archiver failed")

		return &models.ArchiveResult{
			Success:  false,
			ExitCode: &exitCode,
		}, nil
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return nil, fmt.Errorf("archiver reported success but produced no output: %w", err)
	}

	exitCode := 0
	return &models.ArchiveResult{
		Success:   true,
		ExitCode:  &exitCode,
		SavedPath: outPath,
		SizeBytes: info.Size(),
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ interfaces.Archiver = (*ExecArchiver)(nil)
