package display

import (
	"fmt"
	"sync"
	"time"

	"codeberg.org/mutker/solardash/internal/errors"
	"codeberg.org/mutker/solardash/internal/logger"
	"codeberg.org/mutker/solardash/internal/telemetry"
)

// DefaultFlashDuration is how long a changed value stays in the updated state
const DefaultFlashDuration = time.Second

// Renderer writes snapshots to a Target, touching only values that changed
type Renderer struct {
	target        Target
	flashDuration time.Duration

	mu     sync.Mutex
	gens   map[string]uint64
	timers map[string]*time.Timer
	closed bool
}

// NewRenderer returns a Renderer drawing on target. A non-positive
// flashDuration selects DefaultFlashDuration.
func NewRenderer(target Target, flashDuration time.Duration) *Renderer {
	if flashDuration <= 0 {
		flashDuration = DefaultFlashDuration
	}

	return &Renderer{
		target:        target,
		flashDuration: flashDuration,
		gens:          make(map[string]uint64),
		timers:        make(map[string]*time.Timer),
	}
}

// RenderSnapshot updates the LED and the three values of every section.
// Failures, including panics raised by the target, are logged and returned
// as ErrRender; they never propagate as panics.
func (r *Renderer) RenderSnapshot(snapshot *telemetry.Snapshot) (err error) {
	errFactory := errors.New()

	defer func() {
		if recovered := recover(); recovered != nil {
			err = errFactory.WithData(errors.ErrRender, fmt.Sprint(recovered))
		}
		if err != nil {
			if appErr, ok := err.(errors.Error); ok {
				logger.ErrorWithCode(appErr).Msg("Failed to update dashboard")
			}
		}
	}()

	if snapshot == nil {
		return errFactory.WithMessage(errors.ErrRender, "nil snapshot")
	}

	changed := 0
	for _, section := range telemetry.Sections {
		changed += r.renderSection(section, snapshot.Reading(section))
	}

	if f, ok := r.target.(Flusher); ok {
		f.Flush()
	}

	logger.Debug().
		Time("fetched_at", snapshot.FetchedAt).
		Int("changed", changed).
		Msg("Dashboard updated")

	return nil
}

func (r *Renderer) renderSection(section telemetry.Section, reading *telemetry.Reading) int {
	r.target.SetCategory(LEDID(section), LEDBaseClass, LEDClassPrefix+string(reading.LED))

	changed := 0
	for _, field := range Fields {
		value := FormatNumber(field.value(reading), field.Decimals())
		if r.UpdateField(ValueID(section, field), value) {
			changed++
		}
	}

	return changed
}

// UpdateField writes value to id when it differs from the displayed text
// and flashes the element's container for the flash duration. It reports
// whether the text changed. Missing elements are ignored.
func (r *Renderer) UpdateField(id, value string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.target.Text(id)
	if !ok || current == value {
		return false
	}
	r.target.SetText(id, value)

	if r.closed {
		return true
	}

	r.target.SetFlash(id, true)

	if t, ok := r.timers[id]; ok {
		t.Stop()
	}
	r.gens[id]++
	gen := r.gens[id]
	r.timers[id] = time.AfterFunc(r.flashDuration, func() {
		r.clearFlash(id, gen)
	})

	return true
}

func (r *Renderer) clearFlash(id string, gen uint64) {
	r.mu.Lock()
	if r.closed || r.gens[id] != gen {
		r.mu.Unlock()
		return
	}
	delete(r.timers, id)
	r.target.SetFlash(id, false)
	r.mu.Unlock()

	if f, ok := r.target.(Flusher); ok {
		f.Flush()
	}
}

// Close stops pending flash timers and clears every flashed container
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true

	for id, t := range r.timers {
		t.Stop()
		r.target.SetFlash(id, false)
		delete(r.timers, id)
	}
}
