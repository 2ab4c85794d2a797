package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	apperrors "codeberg.org/mutker/solardash/internal/errors"
	"codeberg.org/mutker/solardash/internal/logger"
	"codeberg.org/mutker/solardash/internal/telemetry"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	completed bool
	err       error
}

func (t *fakeToken) Wait() bool                     { return t.completed }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.completed }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if t.completed {
		close(ch)
	}
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	messages     []published
	token        *fakeToken
	connectToken *fakeToken
	disconnected bool
}

func (c *fakeClient) Connect() paho.Token {
	return c.connectToken
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic, qos, retained, payload.([]byte)})
	return c.token
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func snapshot() *telemetry.Snapshot {
	return &telemetry.Snapshot{
		FetchedAt: time.UnixMilli(1_700_000_000_123),
		Panel:     telemetry.Reading{LED: "ok", Voltage: 18.2, Current: 1.5, Power: 27.3},
		Battery:   telemetry.Reading{LED: "warning", Voltage: 11.9, Current: -0.4, Power: -4.76},
		Load:      telemetry.Reading{LED: "off", Voltage: math.NaN(), Current: 0, Power: 0},
	}
}

func TestObservePublishesSnapshot(t *testing.T) {
	client := &fakeClient{token: &fakeToken{completed: true}}
	cfg := Config{Topic: "home/solar", QoS: 1, Retained: true}
	fwd := NewForwarder(client, cfg, logger.New())

	require.NoError(t, fwd.Observe(context.Background(), snapshot()))
	require.Len(t, client.messages, 1)

	msg := client.messages[0]
	assert.Equal(t, "home/solar", msg.topic)
	assert.Equal(t, byte(1), msg.qos)
	assert.True(t, msg.retained)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.payload, &decoded))
	assert.EqualValues(t, 1_700_000_000_123, decoded["timestamp"])

	panel := decoded["panel"].(map[string]any)
	assert.Equal(t, "ok", panel["led"])
	assert.InDelta(t, 18.2, panel["voltaje"], 1e-9)

	load := decoded["carga"].(map[string]any)
	assert.Nil(t, load["voltaje"], "NaN is published as null")
	assert.Contains(t, decoded, "bateria")
}

func TestObservePublishError(t *testing.T) {
	client := &fakeClient{token: &fakeToken{completed: true, err: errors.New("broker gone")}}
	fwd := NewForwarder(client, Config{Topic: "t"}, logger.New())

	err := fwd.Observe(context.Background(), snapshot())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, ErrPublishFailed))
}

func TestObservePublishTimeout(t *testing.T) {
	client := &fakeClient{token: &fakeToken{completed: false}}
	fwd := NewForwarder(client, Config{Topic: "t", PublishTimeout: time.Millisecond}, logger.New())

	err := fwd.Observe(context.Background(), snapshot())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, ErrPublishTimeout))
}

func TestObserveNilSnapshot(t *testing.T) {
	client := &fakeClient{token: &fakeToken{completed: true}}
	fwd := NewForwarder(client, Config{Topic: "t"}, logger.New())

	err := fwd.Observe(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, ErrInvalidPayload))
	assert.Empty(t, client.messages)
}

func TestCloseDisconnects(t *testing.T) {
	client := &fakeClient{token: &fakeToken{completed: true}}
	fwd := NewForwarder(client, Config{Topic: "t"}, logger.New())

	require.NoError(t, fwd.Close())
	assert.True(t, client.disconnected)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{}.Validate())

	cfg := DefaultConfig()
	cfg.Enabled = true
	err := cfg.Validate()
	require.Error(t, err, "broker is required")
	assert.True(t, apperrors.HasCode(err, ErrInvalidConfig))

	cfg.Broker = "tcp://localhost:1883"
	assert.NoError(t, cfg.Validate())

	cfg.QoS = 3
	assert.Error(t, cfg.Validate())
}

func TestConnectRejectsInvalidConfig(t *testing.T) {
	_, err := Connect(Config{Enabled: true}, logger.New())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, ErrInvalidConfig))
}

func TestDialDisconnectsOnFailure(t *testing.T) {
	cases := map[string]*fakeToken{
		"error":   {completed: true, err: errors.New("connection refused")},
		"timeout": {completed: false},
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			client := &fakeClient{connectToken: token}
			cfg := Config{Broker: "tcp://localhost:1883", Topic: "t", ConnectTimeout: time.Millisecond}

			fwd, err := dial(client, cfg, logger.New())
			require.Error(t, err)
			assert.Nil(t, fwd)
			assert.True(t, apperrors.HasCode(err, ErrConnectFailed))
			assert.True(t, client.disconnected)
		})
	}
}

func TestDialReturnsForwarder(t *testing.T) {
	client := &fakeClient{
		connectToken: &fakeToken{completed: true},
		token:        &fakeToken{completed: true},
	}
	cfg := Config{Broker: "tcp://localhost:1883", Topic: "t"}

	fwd, err := dial(client, cfg, logger.New())
	require.NoError(t, err)
	assert.False(t, client.disconnected)

	require.NoError(t, fwd.Observe(context.Background(), snapshot()))
	assert.Len(t, client.messages, 1)
}
