package session

import (
	"testing"
)

func TestCountdown_TickDecrementsAndFloorsAtZero(t *testing.T) {
	c := NewCountdown(3, nil, nil)

	for i := 0; i < 10; i++ {
		c.tick()
	}
	if got := c.Remaining(); got != 0 {
		t.Errorf("remaining = %d, want 0 (floored)", got)
	}
}

func TestCountdown_ExpireFiresExactlyOnce(t *testing.T) {
	expired := 0
	c := NewCountdown(2, nil, func() { expired++ })

	for i := 0; i < 5; i++ {
		c.tick()
	}
	if expired != 1 {
		t.Errorf("expire fired %d times, want 1", expired)
	}
}

func TestCountdown_OnTickReportsRemaining(t *testing.T) {
	var seen []int
	c := NewCountdown(3, func(r int) { seen = append(seen, r) }, nil)

	c.tick()
	c.tick()
	c.tick()

	want := []int{2, 1, 0}
	if len(seen) != len(want) {
		t.Fatalf("got %d ticks, want %d", len(seen), len(want))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("tick %d reported %d, want %d", i, seen[i], want[i])
		}
	}
}

func TestCountdown_StopHaltsTicking(t *testing.T) {
	c := NewCountdown(10, nil, nil)
	c.tick()
	c.Stop()
	c.tick()
	c.tick()

	if got := c.Remaining(); got != 9 {
		t.Errorf("remaining = %d, want 9 (no decrement after stop)", got)
	}

	// Stop is idempotent.
	c.Stop()
}

func TestCountdown_NegativeSecondsClampedToZero(t *testing.T) {
	c := NewCountdown(-5, nil, nil)
	if got := c.Remaining(); got != 0 {
		t.Errorf("remaining = %d, want 0", got)
	}
}
