// Package notify announces new station snapshots on an MQTT broker.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/synopmap/synopmap/internal/stations"
)

// Publisher errors.
var (
	ErrNotConnected = errors.New("mqtt client not connected")
	ErrStopped      = errors.New("mqtt client stopped")
)

// Config configures the MQTT publisher.
type Config struct {
	// BrokerURL, e.g. tcp://localhost:1883.
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	// TopicPrefix defaults to "synopmap".
	TopicPrefix string

	// PublishTimeout defaults to 5 seconds.
	PublishTimeout time.Duration
}

// SnapshotEvent is the payload published for each new snapshot.
type SnapshotEvent struct {
	Event string `json:"event"`
	stations.Summary
}

// Publisher publishes snapshot events with QoS 1. The latest event is
// retained so late subscribers see the current snapshot.
type Publisher struct {
	client mqtt.Client
	cfg    Config
	logger zerolog.Logger

	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

var _ stations.Notifier = (*Publisher)(nil)

// NewPublisher builds a publisher. Call Connect before publishing.
func NewPublisher(cfg Config, logger zerolog.Logger) *Publisher {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "synopmap"
	}
	if cfg.PublishTimeout == 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "synopmap"
	}

	p := &Publisher{
		cfg:    cfg,
		logger: logger.With().Str("component", "mqtt").Logger(),
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		p.setConnected(true)
		p.logger.Info().Str("broker", cfg.BrokerURL).Msg("mqtt connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		p.logger.Warn().Err(err).Msg("mqtt connection lost")
	})

	p.client = mqtt.NewClient(opts)
	return p
}

// Topic returns the snapshot topic.
func (p *Publisher) Topic() string {
	return p.cfg.TopicPrefix + "/snapshots"
}

// Connect waits for the first broker connection, honouring ctx and Close.
func (p *Publisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return ErrStopped
	default:
	}

	if p.IsConnected() {
		return nil
	}

	token := p.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return ErrStopped
		default:
		}
	}
}

// SnapshotCreated publishes a "snapshot.created" event.
func (p *Publisher) SnapshotCreated(_ context.Context, s stations.Summary) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}

	data, err := json.Marshal(SnapshotEvent{Event: "snapshot.created", Summary: s})
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	topic := p.Topic()
	token := p.client.Publish(topic, 1, true, data)
	if !token.WaitTimeout(p.cfg.PublishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish snapshot event: %w", err)
	}

	p.logger.Debug().
		Str("topic", topic).
		Str("snapshot_id", s.ID).
		Int("stations", s.StationCount).
		Msg("published snapshot event")
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Close stops reconnect attempts and disconnects. It is idempotent.
func (p *Publisher) Close() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.client.Disconnect(250)
	p.setConnected(false)
	p.logger.Info().Msg("mqtt disconnected")
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}
