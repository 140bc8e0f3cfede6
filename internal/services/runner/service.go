// Package runner orchestrates a single backup run.
package runner

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/jdekker/pibackup/internal/models"
	"github.com/jdekker/pibackup/internal/naming"
	"github.com/jdekker/pibackup/internal/services/backup"
	"github.com/jdekker/pibackup/internal/services/shutdown"
	"github.com/jdekker/pibackup/internal/services/status"
	"github.com/jdekker/pibackup/internal/services/system"
	"github.com/jdekker/pibackup/internal/services/wol"
	"github.com/rs/zerolog"
)

// Timestamps published over MQTT, local time.
const timestampLayout = "2006-01-02 15:04:05"

// Port polled after Wake-on-LAN to decide the NAS is up.
const cifsPort = "445"

// Service defines the interface for the backup runner.
type Service interface {
	Run(ctx context.Context, cfg models.Settings) error
}

// Impl implements the runner Service interface.
type Impl struct {
	statusSvc   status.Service
	systemSvc   system.Service
	backupSvc   backup.Service
	wolSvc      wol.Service
	shutdownSvc shutdown.Service
	logger      zerolog.Logger
	now         func() time.Time
}

// New creates a new runner service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		statusSvc:   status.New(logger),
		systemSvc:   system.New(logger),
		backupSvc:   backup.New(logger),
		wolSvc:      wol.New(logger),
		shutdownSvc: shutdown.New(logger),
		logger:      logger,
		now:         time.Now,
	}
}

// NewWithServices creates a new runner service with custom services
// (for testing).
func NewWithServices(
	logger zerolog.Logger,
	statusSvc status.Service,
	systemSvc system.Service,
	backupSvc backup.Service,
	wolSvc wol.Service,
	shutdownSvc shutdown.Service,
	now func() time.Time,
) *Impl {
	return &Impl{
		statusSvc:   statusSvc,
		systemSvc:   systemSvc,
		backupSvc:   backupSvc,
		wolSvc:      wolSvc,
		shutdownSvc: shutdownSvc,
		logger:      logger,
		now:         now,
	}
}

// Run executes one complete backup run. The returned error is either
// nil or a *models.FatalError carrying the process exit code.
//
//nolint:gocognit,gocyclo // backup workflow has multiple gates by design
func (s *Impl) Run(ctx context.Context, cfg models.Settings) error {
	start := s.now()

	s.logger.Info().
		Str("share", cfg.Cifs.Share).
		Str("target", cfg.Cifs.Target).
		Msg("starting backup run")

	// A broker that is down must not stop the backup: the reporter
	// degrades to dropped publishes.
	if err := s.statusSvc.Connect(ctx, cfg.Mqtt); err != nil {
		s.logger.Warn().Err(err).Msg("continuing without status reporting")
	}
	defer s.statusSvc.Close()

	s.statusSvc.PublishRoot(status.StateBusy)

	if cfg.WOL != nil {
		s.wakeTarget(ctx, cfg)
	}

	mountpoint := cfg.Cifs.Target

	s.logger.Debug().Str("mountpoint", mountpoint).Msg("checking mount point")
	if !s.systemSvc.DirExists(mountpoint) {
		return s.fatal(ctx, models.ExitBadMountPoint,
			fmt.Sprintf("invalid mount point %s", mountpoint), "")
	}

	if mounted, err := s.systemSvc.IsMounted(mountpoint); err == nil && !mounted {
		s.logger.Debug().Str("mountpoint", mountpoint).Msg("mounting")
		if err := s.systemSvc.Mount(ctx, cfg.Cifs); err != nil {
			// Verified by the re-check below, same as a silently
			// failing mount command.
			s.logger.Debug().Err(err).Msg("mount command failed")
		}
	}

	mounted, err := s.systemSvc.IsMounted(mountpoint)
	if err != nil || !mounted {
		return s.fatal(ctx, models.ExitMountFailed,
			fmt.Sprintf("failed to mount backup volume %s", mountpoint), "")
	}

	backupPath := filepath.Join(mountpoint, cfg.Cifs.SubDir)
	if !s.systemSvc.DirExists(backupPath) {
		return s.fatal(ctx, models.ExitMissingBackupDir,
			fmt.Sprintf("invalid backup directory %s", backupPath), mountpoint)
	}

	deviceDir, err := s.systemSvc.DeviceDirectory(ctx)
	if err != nil {
		return s.fatal(ctx, models.ExitMkdirFailed,
			fmt.Sprintf("failed to determine device directory: %v", err), mountpoint)
	}
	backupPath = filepath.Join(backupPath, deviceDir)

	if !s.systemSvc.DirExists(backupPath) {
		s.logger.Info().Str("directory", deviceDir).Msg("creating device directory")
		if err := s.systemSvc.CreateDirectory(backupPath); err != nil {
			return s.fatal(ctx, models.ExitMkdirFailed,
				fmt.Sprintf("failed to create %s", backupPath), mountpoint)
		}
	}

	image := naming.ImageName(cfg.Backup.ImageBaseName, cfg.Backup.FullBackupInterval, s.now())
	imagePath := filepath.Join(backupPath, image)

	if s.systemSvc.FileExists(imagePath) {
		s.logger.Info().Str("image", image).Msg("updating existing image")
	} else {
		s.logger.Info().Str("image", image).Msg("full backup to new image")
	}

	code, err := s.backupSvc.Run(ctx, cfg.Backup, imagePath)
	if err != nil {
		return s.fatal(ctx, models.ExitBackupFailed,
			fmt.Sprintf("backup command failed to run: %v", err), mountpoint)
	}
	if code != 0 {
		return s.fatal(ctx, models.ExitBackupFailed,
			fmt.Sprintf("backup stopped with exit code %d", code), mountpoint)
	}

	if err := s.systemSvc.Unmount(ctx, mountpoint); err != nil {
		// No further unmount attempt: one just failed.
		return s.fatal(ctx, models.ExitUnmountFailed,
			"failed to unmount the backup volume", "")
	}

	if cfg.Shutdown != nil {
		s.shutdownTarget(ctx, cfg.Shutdown)
	}

	s.statusSvc.Publish("last_success", s.now().Format(timestampLayout))

	s.logger.Info().
		Dur("duration", s.now().Sub(start)).
		Msg("backup run completed successfully")

	return nil
}

// fatal publishes the error over MQTT, logs it, optionally attempts a
// best-effort unmount and returns the tagged error for main to map to
// the process exit code.
func (s *Impl) fatal(ctx context.Context, code int, message, unmountPath string) error {
	s.statusSvc.Publish("last_error/message", message)
	s.statusSvc.Publish("last_error/timestamp", s.now().Format(timestampLayout))

	s.logger.Error().Int("code", code).Msg(message)

	if unmountPath != "" {
		if err := s.systemSvc.Unmount(ctx, unmountPath); err != nil {
			// Best effort only; the original error must not be masked.
			s.logger.Debug().Err(err).Msg("cleanup unmount failed")
		}
	}

	return &models.FatalError{Code: code, Message: message}
}

// wakeTarget wakes the NAS holding the share. Failure is not fatal
// here: if the target stays down, the mount gate fails with its own
// error code.
func (s *Impl) wakeTarget(ctx context.Context, cfg models.Settings) {
	pollAddr := ""
	if host := shareHost(cfg.Cifs.Share); host != "" {
		pollAddr = net.JoinHostPort(host, cifsPort)
	}

	result, err := s.wolSvc.Wake(ctx, *cfg.WOL, pollAddr)
	if err != nil {
		s.logger.Warn().Err(err).Msg("wake-on-LAN failed")
		return
	}
	if result.Error != nil {
		s.logger.Warn().Err(result.Error).Msg("wake-on-LAN failed")
		return
	}

	s.logger.Info().
		Bool("packet_sent", result.PacketSent).
		Bool("target_ready", result.TargetReady).
		Dur("wait", result.WaitDuration).
		Msg("wake-on-LAN completed")
}

// shutdownTarget powers off the NAS after a successful run. Errors are
// logged only: the backup is already complete.
func (s *Impl) shutdownTarget(ctx context.Context, cfg *models.ShutdownConfig) {
	result, err := s.shutdownSvc.Shutdown(ctx, *cfg)
	if err != nil {
		s.logger.Warn().Err(err).Msg("remote shutdown failed")
		return
	}
	if result.Error != nil && !result.CommandRun {
		s.logger.Warn().Err(result.Error).Msg("remote shutdown failed")
		return
	}

	s.logger.Info().Str("host", cfg.Host).Msg("backup target shutting down")
}

// shareHost extracts the host part of a UNC-style share path like
// //10.0.0.2/backup.
func shareHost(share string) string {
	trimmed := strings.TrimPrefix(share, "//")
	if trimmed == share {
		return ""
	}
	host, _, _ := strings.Cut(trimmed, "/")
	return host
}
