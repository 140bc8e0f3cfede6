package models

import "time"

// WOLResult holds the result of a Wake-on-LAN attempt.
type WOLResult struct {
	PacketSent   bool
	TargetReady  bool
	WaitDuration time.Duration
	Error        error
}

// ShutdownResult holds the result of a remote shutdown attempt.
type ShutdownResult struct {
	CommandRun bool
	Output     string
	Error      error
}
