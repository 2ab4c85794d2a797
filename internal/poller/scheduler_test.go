package poller

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/mutker/solardash/internal/display"
	"codeberg.org/mutker/solardash/internal/errors"
	"codeberg.org/mutker/solardash/internal/logger"
	"codeberg.org/mutker/solardash/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const payload = `{
	"panel":   {"led": "ok", "voltaje": 12.345, "corriente": 1.2, "potencia": 14.9},
	"bateria": {"led": "ok", "voltaje": 12.6,   "corriente": 0.8, "potencia": 10.08},
	"carga":   {"led": "ok", "voltaje": 12.5,   "corriente": 0.4, "potencia": 5}
}`

// fakeFetcher replays results and records when it was called
type fakeFetcher struct {
	mu      sync.Mutex
	calls   []time.Time
	results func(call int) (*telemetry.Snapshot, error)
}

func (f *fakeFetcher) FetchSnapshot(context.Context) (*telemetry.Snapshot, error) {
	f.mu.Lock()
	f.calls = append(f.calls, time.Now())
	call := len(f.calls)
	f.mu.Unlock()

	return f.results(call)
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) callTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.calls...)
}

type fakeRenderer struct {
	rendered atomic.Int64
	err      error
}

func (r *fakeRenderer) RenderSnapshot(*telemetry.Snapshot) error {
	r.rendered.Add(1)
	return r.err
}

type fakeSink struct {
	observed atomic.Int64
	err      error
}

func (s *fakeSink) Observe(context.Context, *telemetry.Snapshot) error {
	s.observed.Add(1)
	return s.err
}

func succeed(int) (*telemetry.Snapshot, error) {
	return &telemetry.Snapshot{FetchedAt: time.Now()}, nil
}

func fail(code errors.ErrorCode) func(int) (*telemetry.Snapshot, error) {
	return func(int) (*telemetry.Snapshot, error) {
		return nil, errors.New().New(code)
	}
}

func newScheduler(t *testing.T, fetcher telemetry.Fetcher, renderer Renderer, cfg Config, sinks ...Sink) *Scheduler {
	t.Helper()

	s, err := New(fetcher, renderer, cfg, sinks...)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		s.Stop()
		s.Wait()
	})

	return s
}

func captureLogs(t *testing.T) *syncBuffer {
	t.Helper()

	buf := &syncBuffer{}
	logger.SetOutput(buf)
	logger.SetLogLevel(logger.DebugLevel)
	t.Cleanup(func() { logger.SetOutput(io.Discard) })

	return buf
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStartRunsImmediateCycle(t *testing.T) {
	fetcher := &fakeFetcher{results: succeed}
	renderer := &fakeRenderer{}
	sink := &fakeSink{}

	s := newScheduler(t, fetcher, renderer, Config{Interval: time.Hour, RetryDelay: time.Hour}, sink)

	assert.Eventually(t, func() bool { return sink.observed.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, fetcher.count())
	assert.Equal(t, int64(1), renderer.rendered.Load())
	assert.Equal(t, Stats{Cycles: 1, Successes: 1}, s.Stats())
}

func TestSteadyInterval(t *testing.T) {
	fetcher := &fakeFetcher{results: succeed}
	renderer := &fakeRenderer{}

	newScheduler(t, fetcher, renderer, Config{Interval: 20 * time.Millisecond, RetryDelay: time.Hour})

	assert.Eventually(t, func() bool { return renderer.rendered.Load() >= 4 }, 2*time.Second, 5*time.Millisecond)
}

func TestHTTPFailureRetriesOnce(t *testing.T) {
	captureLogs(t)

	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, payload)
	}))
	t.Cleanup(server.Close)

	client, err := telemetry.NewClient(telemetry.Config{BaseURL: server.URL, Timeout: time.Second})
	require.NoError(t, err)

	board := display.NewBoard()
	renderer := display.NewRenderer(board, 10*time.Millisecond)
	t.Cleanup(renderer.Close)

	retryDelay := 100 * time.Millisecond
	start := time.Now()
	s := newScheduler(t, client, renderer, Config{Interval: time.Hour, RetryDelay: retryDelay})

	assert.Eventually(t, func() bool { return requests.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), retryDelay)

	assert.Eventually(t, func() bool {
		text, _ := board.Text("panel-voltaje")
		return text == "12.35"
	}, time.Second, 5*time.Millisecond)

	time.Sleep(3 * retryDelay)
	assert.Equal(t, int64(2), requests.Load(), "a successful retry schedules no further retries")
	assert.Equal(t, Stats{Cycles: 2, Successes: 1, Failures: 1, Retries: 1}, s.Stats())
}

func TestRetryIsScheduledAfterDelay(t *testing.T) {
	captureLogs(t)

	fetcher := &fakeFetcher{results: func(call int) (*telemetry.Snapshot, error) {
		if call == 1 {
			return nil, errors.New().New(errors.ErrNetwork)
		}
		return succeed(call)
	}}

	retryDelay := 80 * time.Millisecond
	s := newScheduler(t, fetcher, &fakeRenderer{}, Config{Interval: time.Hour, RetryDelay: retryDelay})

	assert.Eventually(t, func() bool { return fetcher.count() == 2 }, time.Second, 5*time.Millisecond)

	calls := fetcher.callTimes()
	assert.GreaterOrEqual(t, calls[1].Sub(calls[0]), retryDelay)
	assert.Equal(t, 0, s.pendingRetries())
}

func TestRetriesContinueWhileFailing(t *testing.T) {
	captureLogs(t)

	fetcher := &fakeFetcher{results: fail(errors.ErrNetwork)}
	s := newScheduler(t, fetcher, &fakeRenderer{}, Config{Interval: time.Hour, RetryDelay: 20 * time.Millisecond})

	assert.Eventually(t, func() bool { return s.Stats().Retries >= 4 }, 2*time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, s.pendingRetries(), 1, "each failure schedules exactly one retry")
}

func TestDecodeFailureSkipsRender(t *testing.T) {
	logs := captureLogs(t)

	fetcher := &fakeFetcher{results: fail(errors.ErrDecode)}
	renderer := &fakeRenderer{}
	sink := &fakeSink{}
	s := newScheduler(t, fetcher, renderer, Config{Interval: time.Hour, RetryDelay: time.Hour}, sink)

	assert.Eventually(t, func() bool { return s.pendingRetries() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(0), renderer.rendered.Load())
	assert.Equal(t, int64(0), sink.observed.Load())
	assert.Contains(t, logs.String(), "decode_error")
}

func TestMalformedBodyLeavesDisplay(t *testing.T) {
	captureLogs(t)

	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if requests.Add(1) == 1 {
			_, _ = io.WriteString(w, payload)
			return
		}
		_, _ = io.WriteString(w, `{"panel": {"led": "error", "voltaje": 99`)
	}))
	t.Cleanup(server.Close)

	client, err := telemetry.NewClient(telemetry.Config{BaseURL: server.URL, Timeout: time.Second})
	require.NoError(t, err)

	board := display.NewBoard()
	renderer := display.NewRenderer(board, 10*time.Millisecond)
	t.Cleanup(renderer.Close)

	s := newScheduler(t, client, renderer, Config{Interval: 30 * time.Millisecond, RetryDelay: time.Hour})

	assert.Eventually(t, func() bool { return s.Stats().Failures >= 2 }, 2*time.Second, 5*time.Millisecond)

	text, _ := board.Text("panel-voltaje")
	assert.Equal(t, "12.35", text, "stale values stay on display")
	assert.Equal(t, "status-led led-ok", board.ClassName("panel-led"))
}

func TestStopCancelsTickerAndRetries(t *testing.T) {
	captureLogs(t)

	fetcher := &fakeFetcher{results: fail(errors.ErrNetwork)}
	s, err := New(fetcher, &fakeRenderer{}, Config{Interval: 30 * time.Millisecond, RetryDelay: 30 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool { return s.pendingRetries() == 1 }, time.Second, 5*time.Millisecond)

	s.Stop()
	s.Wait()
	calls := fetcher.count()
	assert.Equal(t, 0, s.pendingRetries())

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, calls, fetcher.count(), "no cycles after Stop")

	s.Stop()
}

func TestStopLetsInFlightFetchFinish(t *testing.T) {
	release := make(chan struct{})
	fetcher := &fakeFetcher{results: func(int) (*telemetry.Snapshot, error) {
		<-release
		return &telemetry.Snapshot{}, nil
	}}
	renderer := &fakeRenderer{}

	s, err := New(fetcher, renderer, Config{Interval: time.Hour, RetryDelay: time.Hour})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool { return fetcher.count() == 1 }, time.Second, 5*time.Millisecond)
	s.Stop()
	close(release)
	s.Wait()

	assert.Equal(t, int64(1), renderer.rendered.Load())
}

func TestCyclesMayOverlap(t *testing.T) {
	release := make(chan struct{})
	var inFlight, maxInFlight atomic.Int64
	fetcher := &fakeFetcher{results: func(int) (*telemetry.Snapshot, error) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		return &telemetry.Snapshot{}, nil
	}}

	s, err := New(fetcher, &fakeRenderer{}, Config{Interval: 10 * time.Millisecond, RetryDelay: time.Hour})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool { return maxInFlight.Load() >= 2 }, time.Second, 5*time.Millisecond)

	s.Stop()
	close(release)
	s.Wait()
}

func TestContextCancelStops(t *testing.T) {
	fetcher := &fakeFetcher{results: succeed}
	s, err := New(fetcher, &fakeRenderer{}, Config{Interval: 10 * time.Millisecond, RetryDelay: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after context cancellation")
	}

	err = s.Start(context.Background())
	assert.True(t, errors.HasCode(err, errors.ErrSchedulerStopped))
}

func TestStartTwice(t *testing.T) {
	s := newScheduler(t, &fakeFetcher{results: succeed}, &fakeRenderer{}, Config{Interval: time.Hour, RetryDelay: time.Hour})

	err := s.Start(context.Background())
	assert.True(t, errors.HasCode(err, errors.ErrSchedulerRunning))
}

func TestRenderAndSinkErrorsDoNotStopCycle(t *testing.T) {
	captureLogs(t)

	renderer := &fakeRenderer{err: errors.New().New(errors.ErrRender)}
	failing := &fakeSink{err: errors.New().New(errors.ErrOperationFailed)}
	healthy := &fakeSink{}

	s := newScheduler(t, &fakeFetcher{results: succeed}, renderer, Config{Interval: time.Hour, RetryDelay: time.Hour}, failing, healthy)

	assert.Eventually(t, func() bool { return healthy.observed.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), failing.observed.Load())
	assert.Equal(t, Stats{Cycles: 1, Successes: 1, RenderErrors: 1, SinkErrors: 1}, s.Stats())
	assert.Equal(t, 0, s.pendingRetries(), "render and sink errors are not retried")
}

func TestNewValidates(t *testing.T) {
	_, err := New(&fakeFetcher{results: succeed}, &fakeRenderer{}, Config{Interval: 0, RetryDelay: time.Second})
	assert.True(t, errors.HasCode(err, errors.ErrInvalidInterval))

	_, err = New(nil, &fakeRenderer{}, DefaultConfig())
	assert.True(t, errors.HasCode(err, errors.ErrInvalidArgument))
}

func TestWaitWithoutStart(t *testing.T) {
	s, err := New(&fakeFetcher{results: succeed}, &fakeRenderer{}, DefaultConfig())
	require.NoError(t, err)

	s.Stop()
	s.Wait()
	assert.Equal(t, Stats{}, s.Stats())
}
