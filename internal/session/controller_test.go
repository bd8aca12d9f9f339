package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prepdeck/prepdeck-backend/internal/model"
	"github.com/rs/zerolog"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	calls    int
	failures int // fail this many calls before succeeding
	last     *model.AttemptResult
}

func (f *fakeSubmitter) SubmitAttempt(_ context.Context, res *model.AttemptResult) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return uuid.Nil, errors.New("store unavailable")
	}
	f.last = res
	return res.AttemptID, nil
}

func (f *fakeSubmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testQuestions(n int) []model.Question {
	testID := uuid.New()
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			ID:            uuid.New(),
			TestID:        testID,
			CorrectOption: model.OptionA,
			Marks:         1,
			OrderNum:      i,
		}
	}
	return qs
}

func startedController(t *testing.T, n, durationSeconds int, sub Submitter) *Controller {
	t.Helper()
	qs := testQuestions(n)
	c, err := New(qs, Config{
		TestID:          qs[0].TestID,
		StudentID:       7,
		DurationSeconds: durationSeconds,
	}, sub, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(c.Abandon)
	return c
}

func driveTicks(c *Controller, n int) {
	for i := 0; i < n; i++ {
		c.timer.tick()
	}
}

func TestNew_EmptyQuestionSet(t *testing.T) {
	_, err := New(nil, Config{DurationSeconds: 60}, &fakeSubmitter{}, zerolog.Nop())
	if !errors.Is(err, ErrNoQuestions) {
		t.Errorf("err = %v, want ErrNoQuestions", err)
	}
}

func TestNew_InvalidDuration(t *testing.T) {
	_, err := New(testQuestions(1), Config{DurationSeconds: 0}, &fakeSubmitter{}, zerolog.Nop())
	if !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("err = %v, want ErrInvalidDuration", err)
	}
}

func TestController_OneRecordPerQuestion(t *testing.T) {
	c := startedController(t, 5, 600, &fakeSubmitter{})

	state := c.State()
	if len(state.Answers) != 5 {
		t.Errorf("answer records = %d, want 5", len(state.Answers))
	}

	// Still one per question after mutations and navigation.
	c.Select(model.OptionB)
	c.Goto(3)
	c.ToggleReview()
	state = c.State()
	if len(state.Answers) != 5 {
		t.Errorf("answer records after mutations = %d, want 5", len(state.Answers))
	}
}

func TestController_MutationsBeforeStartRejected(t *testing.T) {
	qs := testQuestions(2)
	c, err := New(qs, Config{TestID: qs[0].TestID, DurationSeconds: 60}, &fakeSubmitter{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := c.Select(model.OptionA); !errors.Is(err, ErrNotActive) {
		t.Errorf("Select before start: err = %v, want ErrNotActive", err)
	}
	if err := c.Goto(1); !errors.Is(err, ErrNotActive) {
		t.Errorf("Goto before start: err = %v, want ErrNotActive", err)
	}
}

func TestController_GotoClamps(t *testing.T) {
	c := startedController(t, 3, 600, &fakeSubmitter{})

	if err := c.Goto(99); err != nil {
		t.Fatalf("Goto(99): %v", err)
	}
	if idx := c.State().CurrentIndex; idx != 2 {
		t.Errorf("index after Goto(99) = %d, want 2", idx)
	}

	if err := c.Goto(-5); err != nil {
		t.Fatalf("Goto(-5): %v", err)
	}
	if idx := c.State().CurrentIndex; idx != 0 {
		t.Errorf("index after Goto(-5) = %d, want 0", idx)
	}
}

func TestController_AnswerStateSurvivesNavigation(t *testing.T) {
	c := startedController(t, 3, 600, &fakeSubmitter{})

	c.Select(model.OptionC)
	c.ToggleReview()
	c.Goto(2)
	c.Goto(0)

	rec := c.State().Answers[0]
	if rec.Selected != model.OptionC {
		t.Errorf("selected = %q, want %q after navigating away and back", rec.Selected, model.OptionC)
	}
	if !rec.MarkedForReview {
		t.Error("review flag lost after navigation")
	}
}

func TestController_TimeSpentAccumulates(t *testing.T) {
	c := startedController(t, 2, 600, &fakeSubmitter{})

	now := time.Unix(1700000000, 0)
	c.mu.Lock()
	c.now = func() time.Time { return now }
	c.displayedAt = now
	c.mu.Unlock()

	now = now.Add(5 * time.Second)
	c.Goto(1) // flushes 5s into question 0

	now = now.Add(3 * time.Second)
	c.Goto(0) // flushes 3s into question 1

	now = now.Add(2 * time.Second)
	c.Goto(1) // flushes 2s more into question 0

	state := c.State()
	if got := state.Answers[0].TimeSpentSeconds; got != 7 {
		t.Errorf("question 0 time = %ds, want 7 (5+2, accumulated not overwritten)", got)
	}
	if got := state.Answers[1].TimeSpentSeconds; got != 3 {
		t.Errorf("question 1 time = %ds, want 3", got)
	}
}

func TestController_SelectThenClear(t *testing.T) {
	c := startedController(t, 1, 600, &fakeSubmitter{})

	if err := c.Select(model.OptionA); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if sel := c.State().Answers[0].Selected; sel != "" {
		t.Errorf("selected = %q after clear, want empty", sel)
	}
}

func TestController_SelectRejectsInvalidOption(t *testing.T) {
	sub := &fakeSubmitter{}
	c := startedController(t, 1, 600, sub)

	for _, option := range []string{"Z", "b", "", "AB"} {
		if err := c.Select(option); !errors.Is(err, ErrInvalidOption) {
			t.Errorf("Select(%q): err = %v, want ErrInvalidOption", option, err)
		}
	}
	if sel := c.State().Answers[0].Selected; sel != "" {
		t.Fatalf("selected = %q after rejected selects, want empty", sel)
	}

	// A rejected selection never reaches scoring.
	res, err := c.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Unattempted != 1 || res.Incorrect != 0 {
		t.Errorf("counts = %d unattempted / %d incorrect, want 1/0", res.Unattempted, res.Incorrect)
	}
	if res.Score != 0 {
		t.Errorf("score = %v, want 0", res.Score)
	}
}

func TestController_SubmitOnce(t *testing.T) {
	sub := &fakeSubmitter{}
	c := startedController(t, 3, 600, sub)

	c.Select(model.OptionA) // correct
	c.Goto(1)
	c.Select(model.OptionB) // incorrect

	res, err := c.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Status != model.TerminalCompleted {
		t.Errorf("status = %s, want %s", res.Status, model.TerminalCompleted)
	}
	if res.Correct != 1 || res.Incorrect != 1 || res.Unattempted != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/1/1", res.Correct, res.Incorrect, res.Unattempted)
	}

	// Second submission is suppressed.
	if _, err := c.Submit(context.Background()); !errors.Is(err, ErrAlreadyFinished) {
		t.Errorf("second Submit: err = %v, want ErrAlreadyFinished", err)
	}
	if sub.callCount() != 1 {
		t.Errorf("submitter called %d times, want exactly 1", sub.callCount())
	}

	// The attempt is frozen: all mutations are rejected.
	if err := c.Select(model.OptionD); !errors.Is(err, ErrNotActive) {
		t.Errorf("Select after submit: err = %v, want ErrNotActive", err)
	}
	if err := c.Goto(0); !errors.Is(err, ErrNotActive) {
		t.Errorf("Goto after submit: err = %v, want ErrNotActive", err)
	}
}

func TestController_ExpiryRacingManualSubmit(t *testing.T) {
	sub := &fakeSubmitter{}
	c := startedController(t, 1, 2, sub)

	if _, err := c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Timer expiry arriving after manual submission must be swallowed.
	driveTicks(c, 5)
	c.handleExpiry()

	if sub.callCount() != 1 {
		t.Errorf("submitter called %d times, want exactly 1", sub.callCount())
	}
	if c.Status() != model.AttemptStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", c.Status())
	}
}

func TestController_TimeUpTermination(t *testing.T) {
	sub := &fakeSubmitter{}
	// 90 configured minutes -> 5400 seconds.
	c := startedController(t, 2, 90*60, sub)

	if got := c.State().RemainingSeconds; got != 5400 {
		t.Fatalf("initial remaining = %d, want 5400", got)
	}

	driveTicks(c, 5400)

	if c.Status() != model.AttemptStatusTerminated {
		t.Fatalf("status = %s, want TERMINATED", c.Status())
	}
	res, ok := c.Result()
	if !ok {
		t.Fatal("no result after time-up termination")
	}
	if res.Status != model.TerminalTerminatedTime {
		t.Errorf("terminal status = %s, want %s", res.Status, model.TerminalTerminatedTime)
	}
	if sub.callCount() != 1 {
		t.Errorf("submitter called %d times, want exactly 1", sub.callCount())
	}
}

func TestController_FailedSubmitKeepsAttemptAlive(t *testing.T) {
	sub := &fakeSubmitter{failures: 1}
	c := startedController(t, 2, 600, sub)
	c.Select(model.OptionA)

	if _, err := c.Submit(context.Background()); err == nil {
		t.Fatal("Submit succeeded, want persistence error")
	}

	// Still in progress, answer state intact, guard released.
	if c.Status() != model.AttemptStatusInProgress {
		t.Errorf("status = %s, want IN_PROGRESS after failed submit", c.Status())
	}
	if sel := c.State().Answers[0].Selected; sel != model.OptionA {
		t.Errorf("selected = %q, want %q (answers must survive errors)", sel, model.OptionA)
	}

	res, err := c.Submit(context.Background())
	if err != nil {
		t.Fatalf("retry Submit: %v", err)
	}
	if res.Status != model.TerminalCompleted {
		t.Errorf("status = %s, want %s", res.Status, model.TerminalCompleted)
	}
	if sub.callCount() != 2 {
		t.Errorf("submitter called %d times, want 2", sub.callCount())
	}
}

func TestController_FailedForcedSubmitKeepsReason(t *testing.T) {
	sub := &fakeSubmitter{failures: 1}
	c := startedController(t, 1, 2, sub)

	driveTicks(c, 2) // expiry -> forced submit fails

	if c.Status() != model.AttemptStatusInProgress {
		t.Fatalf("status = %s, want IN_PROGRESS after failed forced submit", c.Status())
	}

	// The user re-triggers submission; the original reason is kept.
	res, err := c.Submit(context.Background())
	if err != nil {
		t.Fatalf("retry Submit: %v", err)
	}
	if res.Status != model.TerminalTerminatedTime {
		t.Errorf("terminal status = %s, want %s preserved from expiry", res.Status, model.TerminalTerminatedTime)
	}
}

func TestController_PolicyTermination(t *testing.T) {
	sub := &fakeSubmitter{}
	c := startedController(t, 2, 600, sub)

	res, err := c.Terminate(context.Background(), model.TerminalTerminatedPolicy)
	if err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if res.Status != model.TerminalTerminatedPolicy {
		t.Errorf("terminal status = %s, want %s", res.Status, model.TerminalTerminatedPolicy)
	}
	if c.Status() != model.AttemptStatusTerminated {
		t.Errorf("status = %s, want TERMINATED", c.Status())
	}
}

func TestController_ManualTermination(t *testing.T) {
	sub := &fakeSubmitter{}
	c := startedController(t, 2, 600, sub)

	c.Select(model.OptionA)

	res, err := c.Terminate(context.Background(), model.TerminalTerminatedManual)
	if err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if res.Status != model.TerminalTerminatedManual {
		t.Errorf("terminal status = %s, want %s", res.Status, model.TerminalTerminatedManual)
	}
	// Answers given before leaving are still graded.
	if res.Correct != 1 {
		t.Errorf("correct = %d, want 1", res.Correct)
	}
	if sub.callCount() != 1 {
		t.Errorf("submitter called %d times, want 1", sub.callCount())
	}
}

func TestController_TerminateRejectsCompleted(t *testing.T) {
	c := startedController(t, 1, 600, &fakeSubmitter{})
	if _, err := c.Terminate(context.Background(), model.TerminalCompleted); err == nil {
		t.Error("Terminate accepted COMPLETED as a termination reason")
	}
}

func TestController_ViolationThreshold(t *testing.T) {
	qs := testQuestions(1)
	c, err := New(qs, Config{
		TestID:              qs[0].TestID,
		DurationSeconds:     600,
		MaxPolicyViolations: 3,
	}, &fakeSubmitter{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(c.Abandon)

	for i := 1; i <= 2; i++ {
		if _, exceeded := c.RecordViolation(); exceeded {
			t.Fatalf("threshold reached at violation %d, want 3", i)
		}
	}
	count, exceeded := c.RecordViolation()
	if count != 3 || !exceeded {
		t.Errorf("violation 3: count=%d exceeded=%v, want 3/true", count, exceeded)
	}
}

func TestController_AbandonDoesNotSubmit(t *testing.T) {
	sub := &fakeSubmitter{}
	c := startedController(t, 1, 600, sub)
	c.Select(model.OptionA)

	c.Abandon()

	if sub.callCount() != 0 {
		t.Errorf("submitter called %d times on abandonment, want 0", sub.callCount())
	}
}
