package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prepdeck/prepdeck-backend/internal/model"
	"github.com/prepdeck/prepdeck-backend/internal/scoring"
	"github.com/rs/zerolog"
)

// Domain errors.
var (
	ErrNoQuestions     = errors.New("question set is empty, attempt cannot start")
	ErrInvalidDuration = errors.New("attempt duration must be positive")
	ErrAlreadyStarted  = errors.New("attempt already started")
	ErrNotActive       = errors.New("attempt is not in progress")
	ErrAlreadyFinished = errors.New("attempt already finished")
	ErrSubmitInFlight  = errors.New("a submission is already in flight")
	ErrInvalidOption   = errors.New("option is not a valid choice")
)

// Submitter persists one finished attempt and returns its assigned ID.
// Implementations report failures; they never retry silently.
type Submitter interface {
	SubmitAttempt(ctx context.Context, result *model.AttemptResult) (uuid.UUID, error)
}

// EventKind identifies a controller push event.
type EventKind string

const (
	EventTick     EventKind = "tick"
	EventFinished EventKind = "finished"
)

// Event is pushed to an attached client stream (WebSocket).
type Event struct {
	Kind             EventKind
	RemainingSeconds int
	Result           *model.AttemptResult
}

// Config carries the fixed parameters of one attempt.
type Config struct {
	TestID    uuid.UUID
	StudentID int
	// DurationSeconds must be positive; the service layer applies the
	// configured fallback before constructing a controller.
	DurationSeconds int
	// MaxPolicyViolations above zero arms policy termination once the
	// violation count reaches the threshold.
	MaxPolicyViolations int
}

// Controller is the state machine of a single timed test attempt. It owns
// the answer state and the countdown clock; every mutation goes through
// its mutex, so navigation flushes time and moves atomically from the
// caller's perspective.
//
// Lifecycle: NOT_STARTED -> IN_PROGRESS -> {COMPLETED | TERMINATED}.
// Both terminal states are final; a finished attempt is only re-displayed
// read-only.
type Controller struct {
	mu  sync.Mutex
	cfg Config
	id  uuid.UUID
	log zerolog.Logger

	status    model.AttemptStatus
	questions []model.Question
	answers   map[uuid.UUID]*model.AnswerRecord

	current     int
	displayedAt time.Time
	startedAt   time.Time

	timer     *Countdown
	submitter Submitter

	// submitting is the one-shot guard: set before invoking the
	// Submitter, cleared only if persistence fails so the user can
	// re-trigger. A timer expiry racing a manual click sees it set and
	// backs off.
	submitting bool
	// pending remembers the terminal status of a failed forced
	// submission so a retry keeps its original reason.
	pending model.TerminalStatus

	result     *model.AttemptResult
	violations int
	lastActive time.Time

	notify func(Event)
	now    func() time.Time
}

// New creates a controller in NOT_STARTED over a fixed, ordered question
// set. One AnswerRecord is created per question and exists for the
// session's whole lifetime.
func New(questions []model.Question, cfg Config, submitter Submitter, log zerolog.Logger) (*Controller, error) {
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	if cfg.DurationSeconds <= 0 {
		return nil, ErrInvalidDuration
	}

	answers := make(map[uuid.UUID]*model.AnswerRecord, len(questions))
	for i := range questions {
		qid := questions[i].ID
		answers[qid] = &model.AnswerRecord{QuestionID: qid}
	}

	id := uuid.New()
	return &Controller{
		cfg:       cfg,
		id:        id,
		log:       log.With().Str("component", "attempt").Str("attempt_id", id.String()).Logger(),
		status:    model.AttemptStatusNotStarted,
		questions: questions,
		answers:   answers,
		submitter: submitter,
		now:       time.Now,
	}, nil
}

// ID returns the attempt identifier.
func (c *Controller) ID() uuid.UUID { return c.id }

// TestID returns the test this attempt belongs to.
func (c *Controller) TestID() uuid.UUID { return c.cfg.TestID }

// StudentID returns the attempting student.
func (c *Controller) StudentID() int { return c.cfg.StudentID }

// SetNotify attaches a push listener for tick and finished events.
// Pass nil to detach.
func (c *Controller) SetNotify(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = fn
}

// Start transitions NOT_STARTED -> IN_PROGRESS: records the start
// timestamp and starts the countdown.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != model.AttemptStatusNotStarted {
		return ErrAlreadyStarted
	}

	now := c.now()
	c.status = model.AttemptStatusInProgress
	c.startedAt = now
	c.displayedAt = now
	c.lastActive = now

	c.timer = NewCountdown(c.cfg.DurationSeconds, c.handleTick, c.handleExpiry)
	c.timer.Start()

	c.log.Info().
		Str("test_id", c.cfg.TestID.String()).
		Int("student_id", c.cfg.StudentID).
		Int("duration_seconds", c.cfg.DurationSeconds).
		Int("questions", len(c.questions)).
		Msg("Attempt started")
	return nil
}

// Goto navigates to the question at index, clamped into [0, N-1]. The
// elapsed display time of the current question is flushed into its record
// before moving. No-op outside IN_PROGRESS.
func (c *Controller) Goto(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != model.AttemptStatusInProgress {
		return ErrNotActive
	}
	if index < 0 {
		index = 0
	}
	if index > len(c.questions)-1 {
		index = len(c.questions) - 1
	}

	c.flushTimeLocked()
	c.current = index
	c.lastActive = c.now()
	return nil
}

// Select overwrites the current question's selected option. Only the
// canonical option identifiers are accepted; a record holds a valid
// choice or the empty string, nothing else.
func (c *Controller) Select(option string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != model.AttemptStatusInProgress {
		return ErrNotActive
	}
	if !model.ValidOption(option) {
		return ErrInvalidOption
	}
	c.currentRecordLocked().Selected = option
	c.lastActive = c.now()
	return nil
}

// Clear removes the current question's selection.
func (c *Controller) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != model.AttemptStatusInProgress {
		return ErrNotActive
	}
	c.currentRecordLocked().Selected = ""
	c.lastActive = c.now()
	return nil
}

// ToggleReview flips the current question's marked-for-review flag.
func (c *Controller) ToggleReview() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != model.AttemptStatusInProgress {
		return ErrNotActive
	}
	rec := c.currentRecordLocked()
	rec.MarkedForReview = !rec.MarkedForReview
	c.lastActive = c.now()
	return nil
}

// Submit finishes the attempt on explicit user confirmation. If an earlier
// forced submission failed to persist, the retry keeps its original
// terminal status.
func (c *Controller) Submit(ctx context.Context) (*model.AttemptResult, error) {
	return c.finish(ctx, model.TerminalCompleted)
}

// Terminate finishes the attempt with the given termination reason. The
// policy signal may arrive at any time while IN_PROGRESS.
func (c *Controller) Terminate(ctx context.Context, reason model.TerminalStatus) (*model.AttemptResult, error) {
	if reason == model.TerminalCompleted {
		return nil, fmt.Errorf("terminate: %q is not a termination reason", reason)
	}
	return c.finish(ctx, reason)
}

// RecordViolation counts one proctoring violation and reports whether the
// configured threshold has been reached. The caller decides to Terminate;
// that keeps submission failure handling in one place.
func (c *Controller) RecordViolation() (count int, exceeded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != model.AttemptStatusInProgress {
		return c.violations, false
	}
	c.violations++
	max := c.cfg.MaxPolicyViolations
	return c.violations, max > 0 && c.violations >= max
}

// State returns a snapshot of the live attempt for reload recovery.
// Answers are listed in question order.
func (c *Controller) State() model.AttemptState {
	c.mu.Lock()
	defer c.mu.Unlock()

	remaining := c.cfg.DurationSeconds
	if c.timer != nil {
		remaining = c.timer.Remaining()
	}

	answers := make([]model.AnswerRecord, 0, len(c.questions))
	for i := range c.questions {
		answers = append(answers, *c.answers[c.questions[i].ID])
	}

	return model.AttemptState{
		AttemptID:        c.id,
		TestID:           c.cfg.TestID,
		Status:           c.status,
		CurrentIndex:     c.current,
		RemainingSeconds: remaining,
		DurationSeconds:  c.cfg.DurationSeconds,
		Answers:          answers,
		Violations:       c.violations,
	}
}

// Result returns the persisted result of a finished attempt.
func (c *Controller) Result() (*model.AttemptResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return nil, false
	}
	return c.result, true
}

// Status returns the current lifecycle status.
func (c *Controller) Status() model.AttemptStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastActive returns the time of the last client interaction.
func (c *Controller) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// Abandon releases the attempt's resources without persisting a result.
// This is the expected outcome of a torn-down client: an incomplete
// attempt is discarded, never silently auto-submitted.
func (c *Controller) Abandon() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.notify = nil
	c.log.Info().Str("status", string(c.status)).Msg("Attempt abandoned")
}

// ─── Internal ───────────────────────────────────────────────────────────

// finish runs the single flush/score/submit sequence shared by manual
// submission, timer expiry and policy termination. At most one submission
// succeeds per controller; a failed persistence keeps the attempt
// IN_PROGRESS with its answer state intact and releases the guard.
func (c *Controller) finish(ctx context.Context, terminal model.TerminalStatus) (*model.AttemptResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status.Terminal() {
		return c.result, ErrAlreadyFinished
	}
	if c.status != model.AttemptStatusInProgress {
		return nil, ErrNotActive
	}
	if c.submitting {
		return nil, ErrSubmitInFlight
	}
	c.submitting = true

	if c.pending != "" {
		terminal = c.pending
	}

	c.flushTimeLocked()

	res := scoring.Score(c.questions, c.answers)
	res.AttemptID = c.id
	res.TestID = c.cfg.TestID
	res.StudentID = c.cfg.StudentID
	res.Status = terminal
	res.StartedAt = c.startedAt
	now := c.now()
	res.FinishedAt = now
	res.DurationTakenSeconds = int(now.Sub(c.startedAt).Seconds())

	// The only suspend point of the terminal path. The mutex stays held
	// so no partial update is observable and no second submission can
	// interleave.
	if _, err := c.submitter.SubmitAttempt(ctx, res); err != nil {
		c.submitting = false
		c.pending = terminal
		c.log.Warn().Err(err).Str("terminal", string(terminal)).Msg("Attempt submission failed, staying in progress")
		return nil, fmt.Errorf("submit attempt: %w", err)
	}

	if terminal == model.TerminalCompleted {
		c.status = model.AttemptStatusCompleted
	} else {
		c.status = model.AttemptStatusTerminated
	}
	c.result = res
	if c.timer != nil {
		c.timer.Stop()
	}

	c.log.Info().
		Str("terminal", string(terminal)).
		Float64("score", res.Score).
		Int("max_score", res.MaxScore).
		Msg("Attempt finished")

	if c.notify != nil {
		// Deliver off the lock; the listener may call back into the
		// controller.
		go c.notify(Event{Kind: EventFinished, Result: res})
	}
	return res, nil
}

// flushTimeLocked accumulates the wall-clock seconds since the current
// question was displayed into its record and resets the reference point.
// Accumulate, never overwrite: time spent is monotonically non-decreasing.
func (c *Controller) flushTimeLocked() {
	now := c.now()
	elapsed := int(now.Sub(c.displayedAt).Seconds())
	if elapsed > 0 {
		c.currentRecordLocked().TimeSpentSeconds += elapsed
	}
	c.displayedAt = now
}

func (c *Controller) currentRecordLocked() *model.AnswerRecord {
	return c.answers[c.questions[c.current].ID]
}

// handleTick runs on the countdown goroutine once per second.
func (c *Controller) handleTick(remaining int) {
	c.mu.Lock()
	if c.status != model.AttemptStatusInProgress {
		c.mu.Unlock()
		return
	}
	notify := c.notify
	c.mu.Unlock()

	if notify != nil {
		notify(Event{Kind: EventTick, RemainingSeconds: remaining})
	}
}

// handleExpiry forces submission when the clock reaches zero. Expiry is
// idempotent: once the attempt is terminal, or a submission is in flight,
// the signal is swallowed.
func (c *Controller) handleExpiry() {
	_, err := c.finish(context.Background(), model.TerminalTerminatedTime)
	if err != nil && !errors.Is(err, ErrAlreadyFinished) && !errors.Is(err, ErrSubmitInFlight) {
		c.log.Error().Err(err).Msg("Forced submission on expiry failed")
	}
}
