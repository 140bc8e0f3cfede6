package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/jdekker/pibackup/internal/config"
	"github.com/jdekker/pibackup/internal/models"
	"github.com/jdekker/pibackup/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the backup workflow",
	Long: `Execute the complete backup workflow:
1. Publish "busy" on the MQTT status topic
2. Wake the backup target via Wake-on-LAN (if configured)
3. Mount the CIFS share (if not already mounted)
4. Create the per-device directory on the share (if needed)
5. Run the external backup command against the rotated image file
6. Unmount the share
7. Shut the backup target down over SSH (if configured)
8. Publish the success timestamp

Exit codes: 1 bad mount point, 2 mount failed, 3 missing backup
directory, 4 directory creation failed, 5 backup command failed,
6 unmount failed.`,
	RunE:         runBackup,
	SilenceUsage: true,
}

func runBackup(cmd *cobra.Command, args []string) error {
	// Load configuration
	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
		return err
	}

	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return err
	}

	log.Info().
		Str("config", configFile).
		Str("share", cfg.Cifs.Share).
		Str("target", cfg.Cifs.Target).
		Str("interval", cfg.Backup.FullBackupInterval).
		Msg("configuration loaded")

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
		cancel()
	}()

	// Run backup
	runnerSvc := runner.New(log.Logger)
	if err := runnerSvc.Run(ctx, *cfg); err != nil {
		var fatal *models.FatalError
		if !errors.As(err, &fatal) {
			log.Error().Err(err).Msg("backup failed")
		}
		return err
	}

	log.Info().Msg("backup completed successfully")
	return nil
}
