package session

import (
	"sync"
	"time"
)

// Countdown is the single ticking clock of an attempt. It decrements the
// remaining seconds once per second, floors at zero, and fires a one-time
// expiry callback when the clock reaches zero. Callbacks are invoked
// outside the Countdown's lock.
type Countdown struct {
	mu        sync.Mutex
	remaining int
	expired   bool
	stopped   bool
	stopCh    chan struct{}
	onTick    func(remaining int)
	onExpire  func()
}

// NewCountdown creates a countdown holding the given number of seconds.
// Both callbacks are optional.
func NewCountdown(seconds int, onTick func(int), onExpire func()) *Countdown {
	if seconds < 0 {
		seconds = 0
	}
	return &Countdown{
		remaining: seconds,
		stopCh:    make(chan struct{}),
		onTick:    onTick,
		onExpire:  onExpire,
	}
}

// Start begins ticking in a goroutine until the clock is stopped.
// The ticker keeps running after expiry (ticks become no-ops) so a failed
// forced submission can still be retried against a live session; Stop is
// called on every terminal transition and on abandonment.
func (c *Countdown) Start() {
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.tick()
			}
		}
	}()
}

// Stop halts the ticker. Safe to call more than once.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.stopCh)
}

// Remaining returns the seconds left on the clock.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// tick performs one decrement. The expiry callback fires exactly once,
// on the tick that reaches zero.
func (c *Countdown) tick() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	if c.remaining > 0 {
		c.remaining--
	}
	remaining := c.remaining
	fireExpire := remaining == 0 && !c.expired
	if fireExpire {
		c.expired = true
	}
	onTick, onExpire := c.onTick, c.onExpire
	c.mu.Unlock()

	if onTick != nil {
		onTick(remaining)
	}
	if fireExpire && onExpire != nil {
		onExpire()
	}
}
