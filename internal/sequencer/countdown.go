package sequencer

import (
	"sync"
	"time"

	"song-quiz-service/internal/clock"
)

// Countdown is the per-question answer timer. Only one run is active at a
// time and its expiry callback fires at most once.
type Countdown struct {
	clock clock.Clock

	mu        sync.Mutex
	gen       uint64
	running   bool
	budget    time.Duration
	startedAt time.Time
	timer     clock.Timer
}

func NewCountdown(c clock.Clock) *Countdown {
	return &Countdown{clock: c}
}

// Start cancels any running countdown and starts a new one. A non-positive
// budget leaves the countdown stopped.
func (c *Countdown) Start(budget time.Duration, onExpire func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startLocked(budget, onExpire)
}

// Replace restarts the countdown for a swapped question. With preserve set,
// the new run gets whatever was left of the old one.
func (c *Countdown) Replace(preserve bool, budget time.Duration, onExpire func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if preserve && c.running {
		budget = c.remainingLocked()
		if budget <= 0 {
			budget = time.Nanosecond
		}
	}
	c.startLocked(budget, onExpire)
}

// Stop cancels the countdown and returns the time that was left.
func (c *Countdown) Stop() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	left := c.remainingLocked()
	c.cancelLocked()
	return left
}

// Remaining returns the time left, zero when not running.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remainingLocked()
}

// Running reports whether a countdown is active.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Countdown) startLocked(budget time.Duration, onExpire func()) {
	c.cancelLocked()
	if budget <= 0 {
		return
	}
	c.gen++
	gen := c.gen
	c.running = true
	c.budget = budget
	c.startedAt = c.clock.Now()
	c.timer = c.clock.AfterFunc(budget, func() {
		c.mu.Lock()
		if c.gen != gen || !c.running {
			c.mu.Unlock()
			return
		}
		c.running = false
		c.timer = nil
		c.mu.Unlock()
		if onExpire != nil {
			onExpire()
		}
	})
}

func (c *Countdown) cancelLocked() {
	c.gen++
	c.running = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Countdown) remainingLocked() time.Duration {
	if !c.running {
		return 0
	}
	left := c.budget - c.clock.Now().Sub(c.startedAt)
	if left < 0 {
		return 0
	}
	return left
}
