package websocket

import "github.com/prepdeck/prepdeck-backend/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionGoto    Action = "goto"
	ActionAnswer  Action = "answer"
	ActionClear   Action = "clear"
	ActionReview  Action = "review"
	ActionSubmit  Action = "submit"
	ActionProctor Action = "proctor"
	ActionPing    Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// GotoRequest moves the session cursor to a question index.
// Out-of-range indices are clamped server-side.
type GotoRequest struct {
	Action Action `json:"action"`
	Index  int    `json:"index"`
}

// AnswerRequest records a selection for a single question.
type AnswerRequest struct {
	Action Action `json:"action"`
	QID    string `json:"q_id"`
	Option string `json:"option"`
}

// ClearRequest resets a question back to unanswered.
type ClearRequest struct {
	Action Action `json:"action"`
	QID    string `json:"q_id"`
}

// ReviewRequest toggles the marked-for-review flag on a question.
type ReviewRequest struct {
	Action Action `json:"action"`
	QID    string `json:"q_id"`
}

// ProctorRequest reports a proctoring event from the client.
type ProctorRequest struct {
	Action Action `json:"action"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventTick       Event = "tick"
	EventSaved      Event = "saved"
	EventGraded     Event = "graded"
	EventTerminated Event = "terminated"
	EventError      Event = "error"
	EventPong       Event = "pong"
)

// TickEvent carries the server-side countdown once per second.
type TickEvent struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

// SavedEvent acknowledges an answer-state mutation.
type SavedEvent struct {
	Event  Event  `json:"event"`
	QID    string `json:"q_id,omitempty"`
	Status string `json:"status"`
}

// GradedEvent delivers the final result after a successful submit.
type GradedEvent struct {
	Event  Event                `json:"event"`
	Reason model.TerminalStatus `json:"reason"`
	Result *model.AttemptResult `json:"result"`
}

// TerminatedEvent tells the client the attempt was force-closed
// without grading having completed yet.
type TerminatedEvent struct {
	Event  Event                `json:"event"`
	Reason model.TerminalStatus `json:"reason"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
