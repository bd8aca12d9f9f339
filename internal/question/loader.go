// Package question resolves a test identifier into the ordered, canonical
// question set the attempt core consumes. Source documents come from the
// legacy content store with inconsistent shapes; everything is normalized
// once here so the core never branches on source naming.
package question

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/prepdeck/prepdeck-backend/internal/model"
)

// Typed loader errors.
var (
	// ErrTestNotFound means the test ID resolves to nothing.
	ErrTestNotFound = errors.New("test not found")
	// ErrAccessDenied means the test exists but is not open to students.
	ErrAccessDenied = errors.New("test is not available to students")
)

// Loader resolves a test to its ordered question list. Questions come
// back in the fixed order intended for display; callers never re-sort.
type Loader interface {
	LoadQuestions(ctx context.Context, testID uuid.UUID) ([]model.Question, error)
}
