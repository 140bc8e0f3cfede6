// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/jdekker/pibackup/internal/models"
	"github.com/spf13/viper"
)

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser with the compiled-in
// defaults registered. Values read from the file override defaults
// key by key, so a partial section leaves the rest of that section
// untouched.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("json")

	v.SetDefault("cifs.user", "")
	v.SetDefault("cifs.password", "")
	v.SetDefault("cifs.share", "//10.0.0.2/backup")
	v.SetDefault("cifs.target", "/media/backup")
	v.SetDefault("cifs.subdir", "")

	v.SetDefault("backup.command", "/opt/bkup_rpimage/bkup_rpimage.sh")
	v.SetDefault("backup.image_base_name", "sdimage")
	v.SetDefault("backup.full_backup_interval", "monthly")

	v.SetDefault("mqtt.client_id", "rpi-backup")
	v.SetDefault("mqtt.host", "127.0.0.1")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.keepalive", 60)
	v.SetDefault("mqtt.bind_address", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.pub_topic_namespace", "pi/backup")
	v.SetDefault("mqtt.retain", true)

	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.Settings, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a string (useful for testing).
func (p *Parser) LoadReader(content string) (*models.Settings, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

func (p *Parser) parse() (*models.Settings, error) {
	cfg := &models.Settings{}

	cfg.Cifs = models.CifsConfig{
		User:     p.v.GetString("cifs.user"),
		Password: p.v.GetString("cifs.password"),
		Share:    p.v.GetString("cifs.share"),
		Target:   p.v.GetString("cifs.target"),
		SubDir:   p.v.GetString("cifs.subdir"),
	}

	cfg.Backup = models.BackupConfig{
		Command:            p.v.GetString("backup.command"),
		ImageBaseName:      p.v.GetString("backup.image_base_name"),
		FullBackupInterval: p.v.GetString("backup.full_backup_interval"),
	}

	cfg.Mqtt = models.MqttConfig{
		ClientID:          p.v.GetString("mqtt.client_id"),
		Host:              p.v.GetString("mqtt.host"),
		Port:              p.v.GetInt("mqtt.port"),
		Keepalive:         p.v.GetInt("mqtt.keepalive"),
		BindAddress:       p.v.GetString("mqtt.bind_address"),
		Username:          p.v.GetString("mqtt.username"),
		Password:          p.v.GetString("mqtt.password"),
		QoS:               p.v.GetInt("mqtt.qos"),
		PubTopicNamespace: p.v.GetString("mqtt.pub_topic_namespace"),
		Retain:            p.v.GetBool("mqtt.retain"),
	}

	if cfg.Mqtt.QoS < 0 || cfg.Mqtt.QoS > 2 {
		return nil, fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}

	// Parse optional WOL config.
	if p.v.IsSet("wol") {
		cfg.WOL = &models.WOLConfig{
			MACAddress:   p.v.GetString("wol.mac_address"),
			BroadcastIP:  p.v.GetString("wol.broadcast_ip"),
			Timeout:      p.v.GetDuration("wol.timeout"),
			PollInterval: p.v.GetDuration("wol.poll_interval"),
		}

		if cfg.WOL.MACAddress == "" {
			return nil, fmt.Errorf("wol.mac_address is required when wol is configured")
		}

		// Set defaults.
		if cfg.WOL.BroadcastIP == "" {
			cfg.WOL.BroadcastIP = "255.255.255.255"
		}
		if cfg.WOL.Timeout == 0 {
			cfg.WOL.Timeout = 2 * time.Minute
		}
		if cfg.WOL.PollInterval == 0 {
			cfg.WOL.PollInterval = 5 * time.Second
		}
	}

	// Parse optional shutdown config.
	if p.v.IsSet("shutdown") {
		cfg.Shutdown = &models.ShutdownConfig{
			Host:     p.v.GetString("shutdown.host"),
			Port:     p.v.GetInt("shutdown.port"),
			Username: p.v.GetString("shutdown.username"),
			KeyPath:  p.v.GetString("shutdown.key_path"),
			Delay:    p.v.GetInt("shutdown.delay"),
		}

		if cfg.Shutdown.Host == "" {
			return nil, fmt.Errorf("shutdown.host is required when shutdown is configured")
		}
		if cfg.Shutdown.KeyPath == "" {
			return nil, fmt.Errorf("shutdown.key_path is required when shutdown is configured")
		}
		if cfg.Shutdown.Port == 0 {
			cfg.Shutdown.Port = 22
		}
		if cfg.Shutdown.Username == "" {
			cfg.Shutdown.Username = "root"
		}
		if cfg.Shutdown.Delay == 0 {
			cfg.Shutdown.Delay = 1
		}
	}

	return cfg, nil
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.Settings) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.Cifs.Share == "" {
		return fmt.Errorf("cifs.share is required")
	}
	if cfg.Cifs.Target == "" {
		return fmt.Errorf("cifs.target is required")
	}
	if cfg.Backup.Command == "" {
		return fmt.Errorf("backup.command is required")
	}
	if cfg.Backup.ImageBaseName == "" {
		return fmt.Errorf("backup.image_base_name is required")
	}
	if cfg.Mqtt.PubTopicNamespace == "" {
		return fmt.Errorf("mqtt.pub_topic_namespace is required")
	}

	return nil
}
