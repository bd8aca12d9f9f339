package model

import (
	"github.com/google/uuid"
)

// Option identifiers for multiple-choice questions.
const (
	OptionA = "A"
	OptionB = "B"
	OptionC = "C"
	OptionD = "D"
)

// OptionIDs lists the valid option identifiers in display order.
var OptionIDs = []string{OptionA, OptionB, OptionC, OptionD}

// QuestionOption is a single choice presented to the student.
type QuestionOption struct {
	ID       string `json:"id"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// Question is the canonical question shape used by the attempt core.
// Immutable once loaded; the correct option never leaves the server.
type Question struct {
	ID            uuid.UUID        `json:"id"`
	TestID        uuid.UUID        `json:"test_id"`
	Text          string           `json:"text,omitempty"`
	ImageURL      string           `json:"image_url,omitempty"`
	Options       []QuestionOption `json:"options"`
	CorrectOption string           `json:"-"`
	Marks         int              `json:"marks"`
	NegativeMarks float64          `json:"negative_marks"`
	Difficulty    string           `json:"difficulty,omitempty"`
	OrderNum      int              `json:"order_num"`
}

// QuestionForStudent is a question stripped for delivery to test-takers.
type QuestionForStudent struct {
	ID         uuid.UUID        `json:"id"`
	Text       string           `json:"text,omitempty"`
	ImageURL   string           `json:"image_url,omitempty"`
	Options    []QuestionOption `json:"options"`
	Marks      int              `json:"marks"`
	Difficulty string           `json:"difficulty,omitempty"`
	OrderNum   int              `json:"order_num"`
}

// ForStudent returns the student-facing view of the question.
func (q *Question) ForStudent() QuestionForStudent {
	return QuestionForStudent{
		ID:         q.ID,
		Text:       q.Text,
		ImageURL:   q.ImageURL,
		Options:    q.Options,
		Marks:      q.Marks,
		Difficulty: q.Difficulty,
		OrderNum:   q.OrderNum,
	}
}

// ValidOption reports whether s is one of the recognised option identifiers.
func ValidOption(s string) bool {
	for _, id := range OptionIDs {
		if s == id {
			return true
		}
	}
	return false
}
