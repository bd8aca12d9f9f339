package session

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestManager_ActiveAttemptReentry(t *testing.T) {
	m := NewManager(time.Hour, zerolog.Nop())

	c := startedController(t, 2, 600, &fakeSubmitter{})
	m.Put(c)

	got, ok := m.GetActive(c.TestID(), c.StudentID())
	if !ok || got.ID() != c.ID() {
		t.Fatal("GetActive did not return the live controller")
	}

	byID, ok := m.Get(c.ID())
	if !ok || byID != c {
		t.Fatal("Get by attempt ID failed")
	}
}

func TestManager_GetActiveSkipsFinished(t *testing.T) {
	m := NewManager(time.Hour, zerolog.Nop())

	c := startedController(t, 1, 600, &fakeSubmitter{})
	m.Put(c)
	if _, err := c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Before any sweep runs, the finished controller must not be served
	// as a live attempt for re-entry.
	if _, ok := m.GetActive(c.TestID(), c.StudentID()); ok {
		t.Error("GetActive returned a finished controller")
	}
}

func TestManager_SweepEvictsTerminal(t *testing.T) {
	m := NewManager(time.Hour, zerolog.Nop())

	c := startedController(t, 1, 600, &fakeSubmitter{})
	m.Put(c)
	if _, err := c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	m.sweep()

	if _, ok := m.Get(c.ID()); ok {
		t.Error("terminal controller not evicted by sweep")
	}
	if _, ok := m.GetActive(c.TestID(), c.StudentID()); ok {
		t.Error("active registry entry not cleared")
	}
}

func TestManager_SweepAbandonsIdle(t *testing.T) {
	m := NewManager(time.Nanosecond, zerolog.Nop())

	sub := &fakeSubmitter{}
	c := startedController(t, 1, 600, sub)
	m.Put(c)

	time.Sleep(time.Millisecond)
	m.sweep()

	if _, ok := m.Get(c.ID()); ok {
		t.Error("idle controller not evicted")
	}
	if sub.callCount() != 0 {
		t.Error("abandonment must not submit a result")
	}
}
