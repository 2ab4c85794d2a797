package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"codeberg.org/mutker/solardash/internal/errors"
	"codeberg.org/mutker/solardash/internal/logger"
)

// maxBodySize bounds the body read from the monitor
const maxBodySize = 1 << 20

type Client struct {
	httpClient *http.Client
	dataURL    string
	now        func() time.Time
}

func NewClient(cfg Config) (*Client, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, errFactory.Wrap(ErrInvalidBaseURL, err)
	}
	dataURL := base.ResolveReference(&url.URL{Path: DataPath})

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	logger.Debug().
		Str("url", dataURL.String()).
		Dur("timeout", timeout).
		Msg("Telemetry client initialized")

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		dataURL:    dataURL.String(),
		now:        time.Now,
	}, nil
}

// URL returns the endpoint polled by FetchSnapshot
func (c *Client) URL() string {
	return c.dataURL
}

// FetchSnapshot issues GET /data and decodes the body. Transport failures and
// non-2xx responses are ErrNetwork; bodies that are not a complete snapshot
// are ErrDecode.
func (c *Client) FetchSnapshot(ctx context.Context) (*Snapshot, error) {
	errFactory := errors.New()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.dataURL, http.NoBody)
	if err != nil {
		return nil, errFactory.Wrap(ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errFactory.Wrap(ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, errFactory.Wrap(ErrNetwork, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		})
	}

	snapshot, err := Decode(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	snapshot.FetchedAt = c.now()

	return snapshot, nil
}
