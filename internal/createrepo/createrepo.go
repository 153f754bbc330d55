// Package createrepo regenerates yum repository metadata by running the
// createrepo tool.
package createrepo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/nytimes/s3yum/internal/repo"
)

const (
	// DefaultExecutable is run when nothing else is configured.
	DefaultExecutable = "createrepo"
	// EnvExecutable names the environment variable that overrides it.
	EnvExecutable = "CREATEREPO"
)

// ErrNoMetadata is returned when the tool exits cleanly without writing repodata.
var ErrNoMetadata = errors.New("no repodata produced")

// Generator builds index metadata for the packages in a directory.
type Generator interface {
	// Generate must leave dir/repodata behind on success.
	Generate(ctx context.Context, dir string) error
}

// ShellGenerator implements Generator by shelling out to createrepo.
type ShellGenerator struct {
	executable string
	logger     *slog.Logger
}

// NewShellGenerator creates a generator running executable, or
// DefaultExecutable when empty.
func NewShellGenerator(executable string, logger *slog.Logger) *ShellGenerator {
	if executable == "" {
		executable = DefaultExecutable
	}
	return &ShellGenerator{executable: executable, logger: logger}
}

// Generate runs `<executable> <dir>`.
func (g *ShellGenerator) Generate(ctx context.Context, dir string) error {
	cmd := exec.CommandContext(ctx, g.executable, dir)
	g.logger.Info("generating yum repo metadata", "command", strings.Join(cmd.Args, " "))

	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("'%s' failed with status code %d: %s", g.executable, exitErr.ExitCode(), strings.TrimSpace(string(output)))
		}
		return fmt.Errorf("unable to invoke '%s': %w", g.executable, err)
	}
	if len(output) > 0 {
		g.logger.Debug("createrepo output", "output", strings.TrimSpace(string(output)))
	}

	metadata := filepath.Join(dir, repo.MetadataDir)
	info, err := os.Stat(metadata)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("'%s' in %s: %w", g.executable, dir, ErrNoMetadata)
	}
	return nil
}
