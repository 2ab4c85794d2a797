package history

import (
	"context"

	"codeberg.org/mutker/solardash/internal/errors"
	"codeberg.org/mutker/solardash/internal/logger"
	"codeberg.org/mutker/solardash/internal/telemetry"
)

// Store records every observed snapshot into a Repository
type Store struct {
	repo Repository
	log  logger.Logger
}

type noopRecorder struct{}

// NewService returns a Recorder for cfg. A disabled history yields a
// recorder that discards everything.
func NewService(cfg Config, log logger.Logger) (Recorder, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("History disabled, using no-op recorder")
		return noopRecorder{}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create history repository")
		return nil, err
	}

	log.Debug().
		Str("db_path", cfg.DBPath).
		Msg("History service initialized")

	return NewStore(repo, log), nil
}

func NewStore(repo Repository, log logger.Logger) *Store {
	return &Store{repo: repo, log: log}
}

func (s *Store) Observe(ctx context.Context, snapshot *telemetry.Snapshot) error {
	errFactory := errors.New()

	if snapshot == nil {
		return errFactory.New(ErrInvalidSnapshot)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
	}

	if err := s.repo.Record(snapshot); err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}
	return nil
}

func (s *Store) Flush(ctx context.Context) error {
	return s.repo.Flush(ctx)
}

// Latest returns the newest stored snapshot after flushing pending writes
func (s *Store) Latest(ctx context.Context) (*telemetry.Snapshot, error) {
	if err := s.repo.Flush(ctx); err != nil {
		return nil, err
	}
	return s.repo.Latest(ctx)
}

func (s *Store) Count(ctx context.Context) (int, error) {
	if err := s.repo.Flush(ctx); err != nil {
		return 0, err
	}
	return s.repo.Count(ctx)
}

func (s *Store) Close() error {
	if err := s.repo.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}
	return nil
}

func (noopRecorder) Observe(context.Context, *telemetry.Snapshot) error { return nil }

func (noopRecorder) Flush(context.Context) error { return nil }

func (noopRecorder) Close() error { return nil }
