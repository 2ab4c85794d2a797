// Package mqtt forwards decoded snapshots to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"codeberg.org/mutker/solardash/internal/errors"
	"codeberg.org/mutker/solardash/internal/logger"
	"codeberg.org/mutker/solardash/internal/telemetry"
	paho "github.com/eclipse/paho.mqtt.golang"
)

// Client is the subset of paho.Client the forwarder publishes through
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Forwarder publishes every observed snapshot as JSON
type Forwarder struct {
	client Client
	cfg    Config
	log    logger.Logger
}

type message struct {
	Timestamp int64   `json:"timestamp"`
	Panel     reading `json:"panel"`
	Battery   reading `json:"bateria"`
	Load      reading `json:"carga"`
}

// NaN readings are published as null
type reading struct {
	LED     string   `json:"led"`
	Voltage *float64 `json:"voltaje"`
	Current *float64 `json:"corriente"`
	Power   *float64 `json:"potencia"`
}

// Connect dials the broker described by cfg
func Connect(cfg Config, log logger.Logger) (*Forwarder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout(cfg))
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	return dial(paho.NewClient(opts), cfg, log)
}

// connector is a Client that can also open its connection
type connector interface {
	Client
	Connect() paho.Token
}

// dial connects client and disconnects it again when the connection
// cannot be established, so auto-reconnect does not linger.
func dial(client connector, cfg Config, log logger.Logger) (*Forwarder, error) {
	errFactory := errors.New()

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout(cfg)) {
		client.Disconnect(0)
		return nil, errFactory.WithData(ErrConnectFailed, struct {
			Broker string
			Error  string
		}{
			Broker: cfg.Broker,
			Error:  "connect timed out",
		})
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return nil, errFactory.WithData(ErrConnectFailed, struct {
			Broker string
			Error  string
		}{
			Broker: cfg.Broker,
			Error:  err.Error(),
		})
	}

	log.Info().
		Str("broker", cfg.Broker).
		Str("topic", cfg.Topic).
		Msg("Connected to MQTT broker")

	return NewForwarder(client, cfg, log), nil
}

func NewForwarder(client Client, cfg Config, log logger.Logger) *Forwarder {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	return &Forwarder{client: client, cfg: cfg, log: log}
}

// Observe publishes snapshot to the configured topic
func (f *Forwarder) Observe(ctx context.Context, snapshot *telemetry.Snapshot) error {
	errFactory := errors.New()

	if snapshot == nil {
		return errFactory.New(ErrInvalidPayload)
	}

	payload, err := Encode(snapshot)
	if err != nil {
		return err
	}

	timeout := f.cfg.PublishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	token := f.client.Publish(f.cfg.Topic, f.cfg.QoS, f.cfg.Retained, payload)
	if !token.WaitTimeout(timeout) {
		return errFactory.WithData(ErrPublishTimeout, struct {
			Topic   string
			Timeout time.Duration
		}{
			Topic:   f.cfg.Topic,
			Timeout: timeout,
		})
	}
	if err := token.Error(); err != nil {
		return errFactory.Wrap(ErrPublishFailed, err)
	}

	f.log.Debug().
		Str("topic", f.cfg.Topic).
		Int("bytes", len(payload)).
		Msg("Published snapshot")

	return nil
}

// Close disconnects from the broker, letting queued work drain for 250ms
func (f *Forwarder) Close() error {
	f.client.Disconnect(250)
	return nil
}

// Encode renders snapshot in the /data shape plus a millisecond timestamp
func Encode(snapshot *telemetry.Snapshot) ([]byte, error) {
	at := snapshot.FetchedAt
	if at.IsZero() {
		at = time.Now()
	}

	msg := message{
		Timestamp: at.UnixMilli(),
		Panel:     toReading(snapshot.Panel),
		Battery:   toReading(snapshot.Battery),
		Load:      toReading(snapshot.Load),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.New().Wrap(ErrEncodeFailed, err)
	}
	return payload, nil
}

func toReading(r telemetry.Reading) reading {
	return reading{
		LED:     string(r.LED),
		Voltage: finite(r.Voltage),
		Current: finite(r.Current),
		Power:   finite(r.Power),
	}
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func connectTimeout(cfg Config) time.Duration {
	if cfg.ConnectTimeout > 0 {
		return cfg.ConnectTimeout
	}
	return defaultConnectTimeout
}
