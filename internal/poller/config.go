package poller

import (
	"time"

	"codeberg.org/mutker/solardash/internal/errors"
)

const (
	DefaultInterval   = 2 * time.Second
	DefaultRetryDelay = 5 * time.Second
)

type Config struct {
	Interval   time.Duration
	RetryDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:   DefaultInterval,
		RetryDelay: DefaultRetryDelay,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	if c.RetryDelay <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.RetryDelay)
	}

	return nil
}
