package sequencer

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"song-quiz-service/internal/clock"
)

var (
	// ErrStopped is returned once the driver has been stopped.
	ErrStopped = errors.New("sequencer stopped")
	// ErrNotSkippable is returned when skipping a phase that waits for the player.
	ErrNotSkippable = errors.New("phase cannot be skipped")
)

// Timings holds the dwell time of every timed phase. A zero duration advances
// in the same drain cycle as the transition that entered the phase.
type Timings struct {
	LifelineReveal time.Duration
	TimerReveal    time.Duration
	PlaybackReveal time.Duration
	ScoreBreakdown time.Duration
	ScoreCounter   time.Duration
	XPBar          time.Duration
	XPDrain        time.Duration
	XPRefill       time.Duration
}

// DefaultTimings mirrors the client animations.
var DefaultTimings = Timings{
	LifelineReveal: 1200 * time.Millisecond,
	TimerReveal:    800 * time.Millisecond,
	PlaybackReveal: 800 * time.Millisecond,
	ScoreBreakdown: 1500 * time.Millisecond,
	ScoreCounter:   1000 * time.Millisecond,
	XPBar:          1500 * time.Millisecond,
	XPDrain:        0,
	XPRefill:       1000 * time.Millisecond,
}

// For returns the dwell time of p, and false for phases that wait on an
// external event.
func (t Timings) For(p Phase) (time.Duration, bool) {
	switch p {
	case PhaseLifelineReveal:
		return t.LifelineReveal, true
	case PhaseTimerReveal:
		return t.TimerReveal, true
	case PhasePlaybackReveal:
		return t.PlaybackReveal, true
	case PhaseScoreBreakdown:
		return t.ScoreBreakdown, true
	case PhaseScoreCounter:
		return t.ScoreCounter, true
	case PhaseXPBar:
		return t.XPBar, true
	case PhaseXPDrain:
		return t.XPDrain, true
	case PhaseXPRefill:
		return t.XPRefill, true
	}
	return 0, false
}

// Timed reports whether p advances on its own.
func (t Timings) Timed(p Phase) bool {
	_, ok := t.For(p)
	return ok
}

// Listener observes every transition. It runs outside the driver lock and may
// dispatch further events; those are queued behind the current one.
type Listener func(prev, next State)

type queued struct {
	event   Event
	gen     uint64
	guarded bool
}

// Driver runs Reduce over a single event queue and schedules the automatic
// advance of timed phases.
type Driver struct {
	clock    clock.Clock
	timings  Timings
	listener Listener

	mu       sync.Mutex
	state    State
	gen      uint64
	timer    clock.Timer
	queue    []queued
	draining bool
	stopped  bool
}

// NewDriver returns a driver in the Idle state.
func NewDriver(c clock.Clock, timings Timings, listener Listener) *Driver {
	return &Driver{
		clock:    c,
		timings:  timings,
		listener: listener,
		state:    Idle{},
	}
}

// State returns the current state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Dispatch feeds e to the reducer and returns the error of e's own
// transition. While another dispatch is draining the queue (including from
// inside a listener) e is queued behind it and nil is returned.
func (d *Driver) Dispatch(e Event) error {
	return d.enqueue(queued{event: e})
}

// Skip settles the current timed phase immediately.
func (d *Driver) Skip() error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return ErrStopped
	}
	if !d.timings.Timed(d.state.Phase()) {
		phase := d.state.Phase()
		d.mu.Unlock()
		slog.Debug("skip ignored", "phase", phase)
		return ErrNotSkippable
	}
	gen := d.gen
	d.mu.Unlock()
	return d.enqueue(queued{event: Advance{}, gen: gen, guarded: true})
}

// Stop cancels the pending timer and rejects further events.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.gen++
	d.queue = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Driver) enqueue(item queued) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return ErrStopped
	}
	d.queue = append(d.queue, item)
	if d.draining {
		d.mu.Unlock()
		return nil
	}
	d.draining = true

	var result error
	first := true
	for len(d.queue) > 0 && !d.stopped {
		next := d.queue[0]
		d.queue = d.queue[1:]
		own := first
		first = false

		// A guarded advance belongs to the state it was scheduled for.
		if next.guarded && next.gen != d.gen {
			continue
		}
		to, err := Reduce(d.state, next.event)
		if err != nil {
			if own {
				result = err
			} else {
				slog.Debug("queued sequencer event rejected", "error", err)
			}
			continue
		}

		from := d.state
		d.state = to
		d.gen++
		d.scheduleLocked(to)

		if d.listener != nil {
			d.mu.Unlock()
			d.listener(from, to)
			d.mu.Lock()
		}
	}
	d.draining = false
	d.mu.Unlock()
	return result
}

func (d *Driver) scheduleLocked(s State) {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	dwell, timed := d.timings.For(s.Phase())
	if !timed {
		return
	}
	gen := d.gen
	if dwell <= 0 {
		d.queue = append(d.queue, queued{event: Advance{}, gen: gen, guarded: true})
		return
	}
	d.timer = d.clock.AfterFunc(dwell, func() {
		_ = d.enqueue(queued{event: Advance{}, gen: gen, guarded: true})
	})
}
