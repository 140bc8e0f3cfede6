// Package wol wakes the backup target before the share is mounted.
package wol

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/jdekker/pibackup/internal/models"
	"github.com/mdlayher/wol"
	"github.com/rs/zerolog"
)

// Service defines the interface for Wake-on-LAN operations.
type Service interface {
	Wake(ctx context.Context, cfg models.WOLConfig, pollAddr string) (*models.WOLResult, error)
}

// Client wraps the wol library for mocking.
type Client interface {
	Wake(broadcastIP string, mac net.HardwareAddr) error
}

// DialFunc probes a TCP address; nil error means the target answers.
type DialFunc func(ctx context.Context, addr string) error

// DefaultClient is the default implementation using mdlayher/wol.
type DefaultClient struct{}

// Wake sends a magic packet to the specified MAC address.
func (c *DefaultClient) Wake(broadcastIP string, mac net.HardwareAddr) error {
	client, err := wol.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create WOL client: %w", err)
	}
	defer func() { _ = client.Close() }()

	ip := net.ParseIP(broadcastIP)
	if ip == nil {
		return fmt.Errorf("invalid broadcast IP: %s", broadcastIP)
	}

	if err := client.Wake(ip.String()+":9", mac); err != nil {
		return fmt.Errorf("failed to send WOL packet: %w", err)
	}

	return nil
}

func defaultDial(ctx context.Context, addr string) error {
	d := net.Dialer{Timeout: 3 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Impl implements the WOL Service interface.
type Impl struct {
	wolClient Client
	dial      DialFunc
	logger    zerolog.Logger
}

// New creates a new WOL service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		wolClient: &DefaultClient{},
		dial:      defaultDial,
		logger:    logger,
	}
}

// NewWithClients creates a new WOL service with custom collaborators
// (for testing).
func NewWithClients(logger zerolog.Logger, wolClient Client, dial DialFunc) *Impl {
	return &Impl{
		wolClient: wolClient,
		dial:      dial,
		logger:    logger,
	}
}

// Wake sends a magic packet and, when pollAddr is non-empty, polls
// that TCP address until the target answers or the timeout expires.
func (s *Impl) Wake(ctx context.Context, cfg models.WOLConfig, pollAddr string) (*models.WOLResult, error) {
	result := &models.WOLResult{}
	start := time.Now()

	mac, err := net.ParseMAC(cfg.MACAddress)
	if err != nil {
		result.Error = fmt.Errorf("invalid MAC address %q: %w", cfg.MACAddress, err)
		return result, nil
	}

	s.logger.Info().
		Str("mac", cfg.MACAddress).
		Str("broadcast", cfg.BroadcastIP).
		Msg("sending WOL packet")

	if err := s.wolClient.Wake(cfg.BroadcastIP, mac); err != nil {
		result.Error = err
		return result, nil
	}
	result.PacketSent = true

	if pollAddr == "" {
		result.WaitDuration = time.Since(start)
		return result, nil
	}

	s.logger.Debug().
		Str("addr", pollAddr).
		Dur("timeout", cfg.Timeout).
		Msg("waiting for target to answer")

	deadline := time.Now().Add(cfg.Timeout)
	for {
		if err := s.dial(ctx, pollAddr); err == nil {
			result.TargetReady = true
			result.WaitDuration = time.Since(start)

			s.logger.Info().
				Dur("wait", result.WaitDuration).
				Msg("target is up")
			return result, nil
		}

		if time.Now().After(deadline) {
			result.WaitDuration = time.Since(start)
			result.Error = fmt.Errorf("target %s not reachable after %s", pollAddr, cfg.Timeout)
			return result, nil
		}

		select {
		case <-ctx.Done():
			result.WaitDuration = time.Since(start)
			result.Error = ctx.Err()
			return result, nil
		case <-time.After(cfg.PollInterval):
		}
	}
}
