package telemetry

import (
	"net/url"
	"time"

	"codeberg.org/mutker/solardash/internal/errors"
)

const (
	DataPath       = "/data"
	defaultTimeout = 10 * time.Second
)

type Config struct {
	BaseURL string
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost",
		Timeout: defaultTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return errFactory.Wrap(ErrInvalidBaseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return errFactory.WithData(ErrInvalidBaseURL, c.BaseURL)
	}
	if c.Timeout < 0 {
		return errFactory.WithData(ErrInvalidConfig, c.Timeout)
	}

	return nil
}
