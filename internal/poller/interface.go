package poller

import (
	"context"

	"codeberg.org/mutker/solardash/internal/telemetry"
)

// Renderer draws a decoded snapshot
type Renderer interface {
	RenderSnapshot(snapshot *telemetry.Snapshot) error
}

// Sink receives every successfully decoded snapshot after it has been rendered
type Sink interface {
	Observe(ctx context.Context, snapshot *telemetry.Snapshot) error
}

// Stats counts scheduler activity since Start
type Stats struct {
	Cycles       int64
	Successes    int64
	Failures     int64
	Retries      int64
	RenderErrors int64
	SinkErrors   int64
}
