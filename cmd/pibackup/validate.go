package main

import (
	"fmt"
	"os"

	"github.com/jdekker/pibackup/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file without executing any backup operations.`,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	// Check if file exists
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Error().Str("file", configFile).Msg("config file not found")
		return fmt.Errorf("config file not found: %s", configFile)
	}

	// Load configuration
	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to parse config")
		return err
	}

	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("configuration validation failed")
		return err
	}

	// Print configuration summary
	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("CIFS:")
	fmt.Printf("  Share: %s\n", cfg.Cifs.Share)
	fmt.Printf("  Mount point: %s\n", cfg.Cifs.Target)
	if cfg.Cifs.SubDir != "" {
		fmt.Printf("  Sub directory: %s\n", cfg.Cifs.SubDir)
	}
	if cfg.Cifs.User != "" {
		fmt.Printf("  User: %s\n", cfg.Cifs.User)
		fmt.Printf("  Password: (configured)\n")
	}
	fmt.Println()
	fmt.Println("Backup:")
	fmt.Printf("  Command: %s\n", cfg.Backup.Command)
	fmt.Printf("  Image base name: %s\n", cfg.Backup.ImageBaseName)
	fmt.Printf("  Full backup interval: %s\n", cfg.Backup.FullBackupInterval)
	fmt.Println()
	fmt.Println("MQTT:")
	fmt.Printf("  Broker: %s:%d\n", cfg.Mqtt.Host, cfg.Mqtt.Port)
	fmt.Printf("  Client ID: %s\n", cfg.Mqtt.ClientID)
	fmt.Printf("  Topic namespace: %s\n", cfg.Mqtt.PubTopicNamespace)
	fmt.Printf("  QoS: %d, retain: %v\n", cfg.Mqtt.QoS, cfg.Mqtt.Retain)
	fmt.Println()
	fmt.Println("Optional Features:")
	fmt.Printf("  Wake-on-LAN: %v\n", cfg.WOL != nil)
	fmt.Printf("  Remote shutdown: %v\n", cfg.Shutdown != nil)

	if cfg.WOL != nil {
		fmt.Println()
		fmt.Println("WOL Configuration:")
		fmt.Printf("  MAC Address: %s\n", cfg.WOL.MACAddress)
		fmt.Printf("  Broadcast IP: %s\n", cfg.WOL.BroadcastIP)
		fmt.Printf("  Timeout: %s\n", cfg.WOL.Timeout)
	}

	if cfg.Shutdown != nil {
		fmt.Println()
		fmt.Println("Shutdown Configuration:")
		fmt.Printf("  Host: %s\n", cfg.Shutdown.Host)
		fmt.Printf("  Port: %d\n", cfg.Shutdown.Port)
		fmt.Printf("  Username: %s\n", cfg.Shutdown.Username)
		fmt.Printf("  Delay: %d minute(s)\n", cfg.Shutdown.Delay)
	}

	return nil
}
