package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prepdeck/prepdeck-backend/internal/model"
	"github.com/rs/zerolog"
)

// Manager owns the live attempt controllers of this instance. One logical
// session exists per student per test; re-entry (reload, second device)
// re-attaches to the live controller instead of creating a second one.
type Manager struct {
	mu          sync.Mutex
	sessions    map[uuid.UUID]*Controller
	active      map[string]uuid.UUID
	idleTimeout time.Duration
	log         zerolog.Logger
}

// NewManager creates a Manager and starts its background sweeper, which
// evicts finished controllers and abandons attempts idle beyond the
// timeout. Abandoned attempts are discarded without persisting a result.
func NewManager(idleTimeout time.Duration, log zerolog.Logger) *Manager {
	m := &Manager{
		sessions:    make(map[uuid.UUID]*Controller),
		active:      make(map[string]uuid.UUID),
		idleTimeout: idleTimeout,
		log:         log.With().Str("component", "session_manager").Logger(),
	}

	go func() {
		for range time.Tick(time.Minute) {
			m.sweep()
		}
	}()

	return m
}

// Put registers a controller as its student's active attempt on the test.
func (m *Manager) Put(c *Controller) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[c.ID()] = c
	m.active[activeKey(c.TestID(), c.StudentID())] = c.ID()
}

// Get returns the controller for an attempt ID.
func (m *Manager) Get(id uuid.UUID) (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.sessions[id]
	return c, ok
}

// GetActive returns the student's live controller on a test, if any.
// A finished controller that has not been swept yet does not count;
// re-entry to a finished attempt goes through the persisted record.
func (m *Manager) GetActive(testID uuid.UUID, studentID int) (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.active[activeKey(testID, studentID)]
	if !ok {
		return nil, false
	}
	c, ok := m.sessions[id]
	if !ok || c.Status().Terminal() {
		return nil, false
	}
	return c, true
}

// Remove drops a controller from the registry without touching its state.
func (m *Manager) Remove(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.sessions[id]; ok {
		delete(m.active, activeKey(c.TestID(), c.StudentID()))
		delete(m.sessions, id)
	}
}

// sweep evicts terminal controllers and abandons idle in-progress ones.
func (m *Manager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for id, c := range m.sessions {
		status := c.Status()
		switch {
		case status.Terminal():
			delete(m.active, activeKey(c.TestID(), c.StudentID()))
			delete(m.sessions, id)
		case status == model.AttemptStatusInProgress && now.Sub(c.LastActive()) > m.idleTimeout:
			c.Abandon()
			delete(m.active, activeKey(c.TestID(), c.StudentID()))
			delete(m.sessions, id)
			m.log.Info().Str("attempt_id", id.String()).Msg("Idle attempt abandoned")
		}
	}
}

func activeKey(testID uuid.UUID, studentID int) string {
	return fmt.Sprintf("%d:%s", studentID, testID)
}
