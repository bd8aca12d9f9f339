package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates the lifecycle states of a test attempt.
type AttemptStatus string

const (
	AttemptStatusNotStarted AttemptStatus = "NOT_STARTED"
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusCompleted  AttemptStatus = "COMPLETED"
	AttemptStatusTerminated AttemptStatus = "TERMINATED"
)

// Terminal reports whether the status permits no further transitions.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptStatusCompleted || s == AttemptStatusTerminated
}

// TerminalStatus identifies how a finished attempt ended.
type TerminalStatus string

const (
	TerminalCompleted        TerminalStatus = "COMPLETED"
	TerminalTerminatedTime   TerminalStatus = "TERMINATED_TIME_UP"
	TerminalTerminatedManual TerminalStatus = "TERMINATED_MANUAL"
	TerminalTerminatedPolicy TerminalStatus = "TERMINATED_POLICY"
)

// AnswerRecord tracks a student's state for one question during an attempt.
// Selected is empty while the question is unattempted.
type AnswerRecord struct {
	QuestionID       uuid.UUID `json:"question_id"`
	Selected         string    `json:"selected,omitempty"`
	MarkedForReview  bool      `json:"marked_for_review,omitempty"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
}

// AttemptResult is the immutable snapshot produced when an attempt ends.
// Answers preserve question-list order so a persisted attempt can be
// replayed against the same question set.
type AttemptResult struct {
	AttemptID            uuid.UUID      `json:"attempt_id"`
	TestID               uuid.UUID      `json:"test_id"`
	StudentID            int            `json:"student_id"`
	Status               TerminalStatus `json:"status"`
	Answers              []AnswerRecord `json:"answers"`
	Correct              int            `json:"correct"`
	Incorrect            int            `json:"incorrect"`
	Unattempted          int            `json:"unattempted"`
	Score                float64        `json:"score"`
	MaxScore             int            `json:"max_score"`
	Percentage           float64        `json:"percentage"`
	StartedAt            time.Time      `json:"started_at"`
	FinishedAt           time.Time      `json:"finished_at"`
	DurationTakenSeconds int            `json:"duration_taken_seconds"`
}

// AttemptState is the live view of an in-flight attempt, served on reload
// so the client can restore answers, position and the remaining clock.
type AttemptState struct {
	AttemptID        uuid.UUID      `json:"attempt_id"`
	TestID           uuid.UUID      `json:"test_id"`
	Status           AttemptStatus  `json:"status"`
	CurrentIndex     int            `json:"current_index"`
	RemainingSeconds int            `json:"remaining_seconds"`
	DurationSeconds  int            `json:"duration_seconds"`
	Answers          []AnswerRecord `json:"answers"`
	Violations       int            `json:"violations"`
}

// GotoRequest is the payload for navigating to a question by index.
type GotoRequest struct {
	Index *int `json:"index" binding:"required"`
}

// SelectRequest is the payload for answering the current question.
type SelectRequest struct {
	Option string `json:"option" binding:"required,oneof=A B C D"`
}
