package mqtt

import (
	"time"

	"codeberg.org/mutker/solardash/internal/errors"
)

const (
	defaultTopic          = "solardash/snapshot"
	defaultClientID       = "solardash"
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
)

type Config struct {
	Enabled        bool
	Broker         string
	Topic          string
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	Retained       bool
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Topic:          defaultTopic,
		ClientID:       defaultClientID,
		ConnectTimeout: defaultConnectTimeout,
		PublishTimeout: defaultPublishTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if !c.Enabled {
		return nil
	}
	if c.Broker == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "mqtt broker is required")
	}
	if c.Topic == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "mqtt topic is required")
	}
	if c.QoS > 2 {
		return errFactory.WithData(ErrInvalidConfig, struct {
			Field string
			Value byte
		}{
			Field: "qos",
			Value: c.QoS,
		})
	}
	return nil
}
