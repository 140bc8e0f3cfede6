// Package models contains the data structures used throughout pibackup.
package models

import "time"

// Settings holds the complete configuration for a backup run.
// It is built once at startup and never mutated afterwards.
type Settings struct {
	Cifs     CifsConfig
	Backup   BackupConfig
	Mqtt     MqttConfig
	WOL      *WOLConfig      // nil if not configured
	Shutdown *ShutdownConfig // nil if not configured
}

// CifsConfig holds the CIFS share and mount point configuration.
type CifsConfig struct {
	User     string
	Password string
	Share    string // e.g. //10.0.0.2/backup
	Target   string // local mount point
	SubDir   string // directory inside the share holding all device folders
}

// BackupConfig holds the external backup command configuration.
type BackupConfig struct {
	Command            string
	ImageBaseName      string
	FullBackupInterval string // daily, weekly, monthly or yearly
}

// MqttConfig holds the MQTT broker connection and publish settings.
type MqttConfig struct {
	ClientID          string
	Host              string
	Port              int
	Keepalive         int // seconds
	BindAddress       string
	Username          string
	Password          string
	QoS               int
	PubTopicNamespace string
	Retain            bool
}

// WOLConfig holds Wake-on-LAN settings for the backup target.
type WOLConfig struct {
	MACAddress   string
	BroadcastIP  string
	Timeout      time.Duration
	PollInterval time.Duration
}

// ShutdownConfig holds SSH settings for powering off the backup
// target after a successful run.
type ShutdownConfig struct {
	Host     string
	Port     int
	Username string
	KeyPath  string
	Delay    int // minutes

	// PrivateKey overrides KeyPath when set (used in tests).
	PrivateKey []byte
}
