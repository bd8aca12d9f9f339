package model

import (
	"time"

	"github.com/google/uuid"
)

// TestStatus enumerates the possible states of a test paper.
type TestStatus string

const (
	TestStatusDraft     TestStatus = "DRAFT"
	TestStatusPublished TestStatus = "PUBLISHED"
	TestStatusArchived  TestStatus = "ARCHIVED"
)

// Test represents a published test paper a student can attempt.
type Test struct {
	ID                  uuid.UUID  `json:"id"`
	Title               string     `json:"title"`
	Subject             string     `json:"subject,omitempty"`
	DurationMinutes     int        `json:"duration_minutes"`
	AccessCodeHash      string     `json:"-"`
	MaxPolicyViolations int        `json:"max_policy_violations"`
	QuestionCount       int        `json:"question_count"`
	Status              TestStatus `json:"status"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// StartAttemptRequest is the payload for a student starting an attempt.
type StartAttemptRequest struct {
	AccessCode string `json:"access_code" binding:"omitempty,min=4,max=20"`
}

// TestPaper is the cached payload sent to students (no correct answers).
type TestPaper struct {
	TestID          uuid.UUID            `json:"test_id"`
	Title           string               `json:"title"`
	DurationMinutes int                  `json:"duration_minutes"`
	Questions       []QuestionForStudent `json:"questions"`
}
