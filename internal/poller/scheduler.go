package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/solardash/internal/errors"
	"codeberg.org/mutker/solardash/internal/logger"
	"codeberg.org/mutker/solardash/internal/telemetry"
)

type state int

const (
	stateIdle state = iota
	stateRunning
	stateStopped
)

// Scheduler polls the fetcher on a fixed interval and renders every
// snapshot. A failed fetch schedules one retry after the retry delay, on
// top of the regular ticks. Cycles are not serialized: a slow fetch may
// overlap with the next tick.
type Scheduler struct {
	fetcher  telemetry.Fetcher
	renderer Renderer
	sinks    []Sink
	cfg      Config

	mu       sync.Mutex
	state    state
	ctx      context.Context
	cancel   context.CancelFunc
	retries  map[*time.Timer]struct{}
	loopDone chan struct{}
	cycles   sync.WaitGroup

	stats struct {
		cycles, successes, failures, retries, renderErrors, sinkErrors atomic.Int64
	}
}

func New(fetcher telemetry.Fetcher, renderer Renderer, cfg Config, sinks ...Sink) (*Scheduler, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fetcher == nil || renderer == nil {
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "fetcher and renderer are required")
	}

	return &Scheduler{
		fetcher:  fetcher,
		renderer: renderer,
		sinks:    sinks,
		cfg:      cfg,
		retries:  make(map[*time.Timer]struct{}),
	}, nil
}

// Start runs one cycle immediately and then one per interval until Stop is
// called or ctx is done. Fetches run with ctx, so they are not cut short by
// Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	errFactory := errors.New()

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateRunning:
		return errFactory.New(errors.ErrSchedulerRunning)
	case stateStopped:
		return errFactory.New(errors.ErrSchedulerStopped)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.ctx = ctx
	s.cancel = cancel
	s.state = stateRunning
	s.loopDone = make(chan struct{})

	logger.Info().
		Dur("interval", s.cfg.Interval).
		Dur("retry_delay", s.cfg.RetryDelay).
		Msg("Polling started")

	s.spawnLocked(false)
	go s.loop(loopCtx)

	return nil
}

// Stop cancels the ticker and every pending retry. Fetches already in
// flight are left to finish. Stop is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateStopped {
		return
	}
	wasRunning := s.state == stateRunning
	s.state = stateStopped
	if !wasRunning {
		return
	}

	s.cancel()
	for t := range s.retries {
		t.Stop()
	}
	s.retries = make(map[*time.Timer]struct{})

	logger.Info().Msg("Polling stopped")
}

// Wait blocks until the tick loop has exited and every started cycle has
// finished. It returns immediately if the scheduler was never started.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.loopDone
	s.mu.Unlock()

	if done == nil {
		return
	}
	<-done
	s.cycles.Wait()
}

// Stats returns a copy of the activity counters
func (s *Scheduler) Stats() Stats {
	return Stats{
		Cycles:       s.stats.cycles.Load(),
		Successes:    s.stats.successes.Load(),
		Failures:     s.stats.failures.Load(),
		Retries:      s.stats.retries.Load(),
		RenderErrors: s.stats.renderErrors.Load(),
		SinkErrors:   s.stats.sinkErrors.Load(),
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return
		case <-ticker.C:
			s.mu.Lock()
			s.spawnLocked(false)
			s.mu.Unlock()
		}
	}
}

// spawnLocked starts a cycle unless the scheduler has stopped. s.mu must be held.
func (s *Scheduler) spawnLocked(retry bool) {
	if s.state != stateRunning {
		return
	}

	ctx := s.ctx
	s.cycles.Add(1)
	go func() {
		defer s.cycles.Done()
		s.runCycle(ctx, retry)
	}()
}

func (s *Scheduler) runCycle(ctx context.Context, retry bool) {
	s.stats.cycles.Add(1)

	snapshot, err := s.fetcher.FetchSnapshot(ctx)
	if err != nil {
		s.stats.failures.Add(1)
		s.logFailure(err, retry)
		s.scheduleRetry()
		return
	}
	s.stats.successes.Add(1)

	if err := s.renderer.RenderSnapshot(snapshot); err != nil {
		s.stats.renderErrors.Add(1)
		logger.Debug().Err(err).Msg("Render failed, keeping previous values")
	}

	for _, sink := range s.sinks {
		if err := sink.Observe(ctx, snapshot); err != nil {
			s.stats.sinkErrors.Add(1)
			logger.Warn().Err(err).Msg("Failed to forward snapshot")
		}
	}
}

func (s *Scheduler) scheduleRetry() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateRunning {
		return
	}

	var t *time.Timer
	t = time.AfterFunc(s.cfg.RetryDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		delete(s.retries, t)
		if s.state != stateRunning {
			return
		}
		s.stats.retries.Add(1)
		s.spawnLocked(true)
	})
	s.retries[t] = struct{}{}
}

func (s *Scheduler) pendingRetries() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.retries)
}

func (s *Scheduler) logFailure(err error, retry bool) {
	var appErr errors.Error
	if !errors.As(err, &appErr) {
		appErr = errors.New().Wrap(errors.ErrNetwork, err)
	}

	logger.ErrorWithCode(appErr).
		Bool("retry", retry).
		Dur("retry_in", s.cfg.RetryDelay).
		Msg("Failed to get telemetry")
}
