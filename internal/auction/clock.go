package auction

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// ClockState is the lifecycle of the per-item countdown.
type ClockState string

const (
	ClockIdle      ClockState = "idle"
	ClockRunning   ClockState = "running"
	ClockExpired   ClockState = "expired"
	ClockCancelled ClockState = "cancelled"
)

// ItemClock is the countdown for the currently open item. It never invokes
// callbacks into room state directly: expiry is delivered as a generation-
// tagged notification that the room actor turns into an inbox command, so an
// expiry and a late bid are ordered by the same queue and cannot race.
//
// Clockwork backs all time operations; tests drive the clock with a fake.
type ItemClock struct {
	clock  clockwork.Clock
	rules  Rules
	notify func(gen uint64)

	timer    clockwork.Timer
	gen      uint64
	state    ClockState
	deadline time.Time
	extended time.Duration
}

func NewItemClock(clk clockwork.Clock, rules Rules, notify func(gen uint64)) *ItemClock {
	return &ItemClock{clock: clk, rules: rules, notify: notify, state: ClockIdle}
}

// Start arms the countdown for a freshly opened item. Any previous timer is
// invalidated by the generation bump.
func (c *ItemClock) Start() {
	c.stopTimer()
	c.gen++
	c.state = ClockRunning
	c.extended = 0
	c.deadline = c.clock.Now().Add(c.rules.BidWindow)

	gen := c.gen
	c.timer = c.clock.AfterFunc(c.rules.BidWindow, func() { c.notify(gen) })
}

// MaybeExtend applies the anti-snipe rule after an accepted bid: if the
// remaining time is below the floor, the deadline moves out by the configured
// step, capped so cumulative extensions never exceed the maximum. Once the
// cap is spent the clock runs to natural expiry regardless of further bids.
//
// Extending bumps the generation: a notification from the pre-extension
// deadline may already sit in the room inbox, and it must not settle an item
// whose clock just moved.
func (c *ItemClock) MaybeExtend() (time.Duration, bool) {
	if c.state != ClockRunning {
		return 0, false
	}
	remaining := c.deadline.Sub(c.clock.Now())
	if remaining >= c.rules.SnipeFloor {
		return 0, false
	}
	budget := c.rules.MaxExtension - c.extended
	if budget <= 0 {
		return 0, false
	}
	by := c.rules.SnipeExtend
	if by > budget {
		by = budget
	}
	c.deadline = c.deadline.Add(by)
	c.extended += by

	c.stopTimer()
	c.gen++
	gen := c.gen
	c.timer = c.clock.AfterFunc(c.deadline.Sub(c.clock.Now()), func() { c.notify(gen) })
	return by, true
}

// Expire marks the clock expired if gen still identifies the live countdown.
// A stale generation (cancelled or already restarted) is ignored.
func (c *ItemClock) Expire(gen uint64) bool {
	if gen != c.gen || c.state != ClockRunning {
		return false
	}
	c.state = ClockExpired
	return true
}

// Cancel stops the countdown, e.g. on an admin force-close. In-flight expiry
// notifications for the old generation become no-ops.
func (c *ItemClock) Cancel() {
	if c.state != ClockRunning {
		return
	}
	c.stopTimer()
	c.gen++
	c.state = ClockCancelled
}

func (c *ItemClock) State() ClockState { return c.state }

// Remaining reports the time left on a running clock, zero otherwise.
func (c *ItemClock) Remaining() time.Duration {
	if c.state != ClockRunning {
		return 0
	}
	if d := c.deadline.Sub(c.clock.Now()); d > 0 {
		return d
	}
	return 0
}

// Deadline returns the current expiry instant, valid while running.
func (c *ItemClock) Deadline() time.Time { return c.deadline }

func (c *ItemClock) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
	}
}
