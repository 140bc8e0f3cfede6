// Package status reports backup progress over MQTT.
//
// The reporter registers a retained last-will message so the broker
// flips the root topic to "offline" if the connection drops while a
// run is still in flight. Publishes are fire-and-forget; only the
// initial connect is awaited.
package status

import (
	"context"
	"fmt"
	"net"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jdekker/pibackup/internal/models"
	"github.com/rs/zerolog"
)

// Root topic states.
const (
	StateBusy    = "busy"
	StateOffline = "offline"
)

const connectTimeout = 10 * time.Second

// Service defines the interface for status reporting.
type Service interface {
	Connect(ctx context.Context, cfg models.MqttConfig) error
	PublishRoot(state string)
	Publish(topic, payload string)
	Close()
}

// Client is the subset of the paho client used by the reporter,
// narrowed for mocking.
type Client interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
	IsConnected() bool
}

// ClientFactory builds an MQTT client for the given configuration.
type ClientFactory func(cfg models.MqttConfig, willTopic string) Client

func newPahoClient(cfg models.MqttConfig, willTopic string) Client {
	opts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID(cfg.ClientID).
		SetKeepAlive(time.Duration(cfg.Keepalive) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetWill(willTopic, StateOffline, byte(cfg.QoS), true)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	if cfg.BindAddress != "" {
		opts.SetDialer(&net.Dialer{
			Timeout:   connectTimeout,
			LocalAddr: &net.TCPAddr{IP: net.ParseIP(cfg.BindAddress)},
		})
	}

	return paho.NewClient(opts)
}

// Impl implements the status Service interface.
type Impl struct {
	newClient ClientFactory
	client    Client
	cfg       models.MqttConfig
	namespace string
	connected bool
	logger    zerolog.Logger
}

// New creates a new status service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		newClient: newPahoClient,
		logger:    logger,
	}
}

// NewWithClientFactory creates a new status service with a custom
// client factory (for testing).
func NewWithClientFactory(logger zerolog.Logger, factory ClientFactory) *Impl {
	return &Impl{
		newClient: factory,
		logger:    logger,
	}
}

// Connect dials the broker and waits for the connect acknowledgement.
// Until Connect succeeds, all publishes are dropped with a debug log,
// so a missing broker never blocks the backup itself.
func (s *Impl) Connect(ctx context.Context, cfg models.MqttConfig) error {
	s.cfg = cfg
	s.namespace = cfg.PubTopicNamespace
	s.client = s.newClient(cfg, cfg.PubTopicNamespace)

	s.logger.Debug().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("client_id", cfg.ClientID).
		Msg("connecting to MQTT broker")

	token := s.client.Connect()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(connectTimeout):
		return fmt.Errorf("broker connect timed out after %s", connectTimeout)
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("broker connect failed: %w", err)
		}
	}

	s.connected = true
	return nil
}

// PublishRoot publishes a state string on the namespace root topic.
// The root topic is always retained so the broker keeps the latest
// device state for dashboards.
func (s *Impl) PublishRoot(state string) {
	s.publish(s.namespace, state, true)
}

// Publish sends payload to <namespace>/<topic> with the configured
// QoS and retain flag. Delivery is not awaited.
func (s *Impl) Publish(topic, payload string) {
	s.publish(s.namespace+"/"+topic, payload, s.cfg.Retain)
}

func (s *Impl) publish(topic, payload string, retain bool) {
	if !s.connected {
		s.logger.Debug().Str("topic", topic).Str("payload", payload).Msg("not connected, dropping publish")
		return
	}

	s.logger.Debug().Str("topic", topic).Str("payload", payload).Msg("mqtt publish")
	s.client.Publish(topic, byte(s.cfg.QoS), retain, payload)
}

// Close marks the device offline and disconnects. Publishing the
// offline state explicitly mirrors what the last-will produces on an
// unclean exit, so the retained root topic never sticks at "busy".
func (s *Impl) Close() {
	if !s.connected {
		return
	}

	token := s.client.Publish(s.namespace, byte(s.cfg.QoS), true, StateOffline)
	token.WaitTimeout(time.Second)
	s.client.Disconnect(250)
	s.connected = false
}
