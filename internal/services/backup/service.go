// Package backup invokes the external disk-imaging command.
package backup

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/jdekker/pibackup/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for running the backup command.
type Service interface {
	Run(ctx context.Context, cfg models.BackupConfig, imagePath string) (int, error)
}

// CommandRunner starts a command and reports its exit code. The error
// is reserved for failures to run the command at all.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (int, error)
}

// DefaultRunner runs commands via os/exec with stdout and stderr
// passed through. The imaging tool's output is operator-facing and is
// neither captured nor parsed.
type DefaultRunner struct{}

// Run executes the command and returns its exit code.
func (r *DefaultRunner) Run(ctx context.Context, name string, args ...string) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}

	return 0, nil
}

// Impl implements the backup Service interface.
type Impl struct {
	runner CommandRunner
	logger zerolog.Logger
}

// New creates a new backup service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		runner: &DefaultRunner{},
		logger: logger,
	}
}

// NewWithRunner creates a new backup service with a custom command
// runner (for testing).
func NewWithRunner(logger zerolog.Logger, runner CommandRunner) *Impl {
	return &Impl{
		runner: runner,
		logger: logger,
	}
}

// Run invokes the configured backup command against imagePath and
// returns its exit code. The command is fully opaque: anything but
// exit code zero means failure, and there is no timeout because a
// full SD-card image can legitimately take hours.
func (s *Impl) Run(ctx context.Context, cfg models.BackupConfig, imagePath string) (int, error) {
	s.logger.Info().
		Str("command", cfg.Command).
		Str("image", imagePath).
		Msg("starting backup command")

	start := time.Now()
	code, err := s.runner.Run(ctx, cfg.Command, "start", "-c", imagePath)
	if err != nil {
		return -1, err
	}

	s.logger.Info().
		Int("exit_code", code).
		Dur("duration", time.Since(start)).
		Msg("backup command finished")

	return code, nil
}
