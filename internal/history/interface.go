package history

import (
	"context"

	"codeberg.org/mutker/solardash/internal/telemetry"
)

// Recorder keeps a history of rendered snapshots
type Recorder interface {
	Observe(ctx context.Context, snapshot *telemetry.Snapshot) error
	Flush(ctx context.Context) error
	Close() error
}

// Repository defines the interface for snapshot storage
type Repository interface {
	Record(snapshot *telemetry.Snapshot) error
	Flush(ctx context.Context) error
	Latest(ctx context.Context) (*telemetry.Snapshot, error)
	Count(ctx context.Context) (int, error)
	Close() error
}
