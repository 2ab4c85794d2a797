package history

import (
	"context"
	"database/sql"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/solardash/internal/errors"
	"codeberg.org/mutker/solardash/internal/logger"
	"codeberg.org/mutker/solardash/internal/telemetry"
	_ "github.com/mattn/go-sqlite3"
)

// Snapshots kept in memory while the database rejects writes, in batches
const maxBufferedBatches = 10

type repository struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           Config
	mu            sync.Mutex
	buffer        []telemetry.Snapshot
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
	closeOnce     sync.Once
	closeErr      error
}

// NewRepository opens (or creates) the sqlite database at cfg.DBPath
func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	backupDir := cfg.BackupDir
	if backupDir == "" {
		backupDir = filepath.Join(filepath.Dir(cfg.DBPath), "backups")
	}

	if err := ValidateAndUpdateSchema(db, backupDir, log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	batchSize := cfg.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}
	cfg.BatchSize = batchSize

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Dur("batch_timeout", cfg.BatchTimeout).
		Msg("History repository initialized")

	repo := &repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		buffer:        make([]telemetry.Snapshot, 0, batchSize),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	if cfg.BatchTimeout > 0 {
		repo.flushTicker = time.NewTicker(cfg.BatchTimeout)
		go repo.flusher()
	} else {
		close(repo.flushDoneChan)
	}

	return repo, nil
}

// Record buffers a copy of snapshot and writes the batch once it is full
func (r *repository) Record(snapshot *telemetry.Snapshot) error {
	if snapshot == nil {
		return errors.New().New(ErrInvalidSnapshot)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, *snapshot)

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

func (r *repository) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.New().Wrap(ErrOperationTimeout, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flush()
}

func (r *repository) Latest(ctx context.Context) (*telemetry.Snapshot, error) {
	errFactory := errors.New()

	var (
		fetchedAt int64
		leds      [3]string
		values    [9]sql.NullFloat64
	)

	err := r.db.QueryRowContext(ctx, selectLatestSQL).Scan(
		&fetchedAt,
		&leds[0], &values[0], &values[1], &values[2],
		&leds[1], &values[3], &values[4], &values[5],
		&leds[2], &values[6], &values[7], &values[8],
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errFactory.New(ErrNoSnapshots)
	}
	if err != nil {
		return nil, errFactory.WithData(ErrStorageAccess, struct {
			Phase string
			Error string
		}{
			Phase: "select_latest",
			Error: err.Error(),
		})
	}

	snapshot := &telemetry.Snapshot{FetchedAt: time.UnixMilli(fetchedAt)}
	for i, section := range telemetry.Sections {
		reading := snapshot.Reading(section)
		reading.LED = telemetry.LED(leds[i])
		reading.Voltage = fromNull(values[i*3])
		reading.Current = fromNull(values[i*3+1])
		reading.Power = fromNull(values[i*3+2])
	}

	return snapshot, nil
}

func (r *repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, countSnapshotsSQL).Scan(&n); err != nil {
		return 0, errors.New().WithData(ErrStorageAccess, struct {
			Phase string
			Error string
		}{
			Phase: "count_snapshots",
			Error: err.Error(),
		})
	}
	return n, nil
}

func (r *repository) Close() error {
	r.closeOnce.Do(func() {
		close(r.shutdownChan)
		if r.flushTicker != nil {
			r.flushTicker.Stop()
		}
		<-r.flushDoneChan

		// Without a flusher goroutine nothing drained the buffer
		r.mu.Lock()
		if err := r.flush(); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to flush history on close")
		}
		r.mu.Unlock()

		if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			r.closeErr = errors.New().WithData(ErrStorageClose, struct {
				Phase string
				Error string
			}{
				Phase: "checkpoint_wal",
				Error: err.Error(),
			})
			r.db.Close()
			return
		}

		if err := r.db.Close(); err != nil {
			r.closeErr = errors.New().WithData(ErrStorageClose, struct {
				Phase string
				Error string
			}{
				Phase: "close_database",
				Error: err.Error(),
			})
			return
		}

		r.logger.Info().Msg("History repository closed")
	})

	return r.closeErr
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Warn().Err(err).Msg("Periodic history flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			return
		}
	}
}

// flush must be called with r.mu held. A failed write keeps the buffer for
// the next attempt, trimmed to the newest bufferLimit snapshots.
func (r *repository) flush() error {
	if err := r.write(); err != nil {
		if limit := r.bufferLimit(); len(r.buffer) > limit {
			dropped := len(r.buffer) - limit
			r.buffer = append(r.buffer[:0], r.buffer[dropped:]...)
			r.logger.Warn().
				Int("dropped", dropped).
				Int("buffered", len(r.buffer)).
				Msg("History buffer full, dropped oldest snapshots")
		}
		return err
	}
	return nil
}

func (r *repository) bufferLimit() int {
	return r.cfg.BatchSize * maxBufferedBatches
}

func (r *repository) write() error {
	if len(r.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to begin transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.Prepare(insertSnapshotSQL)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to prepare statement")
		if err := tx.Rollback(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for i := range r.buffer {
		if _, err := stmt.Exec(rowValues(&r.buffer[i])...); err != nil {
			r.logger.Error().Err(err).Msg("Failed to execute insert")
			if err := tx.Rollback(); err != nil {
				r.logger.Error().Err(err).Msg("Failed to roll back transaction")
			}
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to commit transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	r.logger.Debug().Int("records", len(r.buffer)).Msg("Flushed snapshots to database")
	r.buffer = r.buffer[:0]

	return nil
}

func rowValues(s *telemetry.Snapshot) []interface{} {
	fetchedAt := s.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}

	values := make([]interface{}, 0, 13)
	values = append(values, fetchedAt.UnixMilli())
	for _, section := range telemetry.Sections {
		reading := s.Reading(section)
		values = append(values,
			string(reading.LED),
			toNull(reading.Voltage),
			toNull(reading.Current),
			toNull(reading.Power),
		)
	}
	return values
}

// NaN and infinities are stored as NULL
func toNull(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNull(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
