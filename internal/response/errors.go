package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired     ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid      ErrCode = "TOKEN_INVALID"
	ErrTokenExpired      ErrCode = "TOKEN_EXPIRED"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrForbidden         ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Attempt-specific ──────────────────────────────────────────────
	ErrTestNotAvailable     ErrCode = "TEST_NOT_AVAILABLE"
	ErrInvalidAccessCode    ErrCode = "INVALID_ACCESS_CODE"
	ErrNoQuestions          ErrCode = "NO_QUESTIONS"
	ErrAttemptNotFound      ErrCode = "ATTEMPT_NOT_FOUND"
	ErrAttemptNotActive     ErrCode = "ATTEMPT_NOT_ACTIVE"
	ErrAttemptFinished      ErrCode = "ATTEMPT_ALREADY_FINISHED"
	ErrSubmitFailed         ErrCode = "SUBMIT_FAILED"
	ErrAttemptAlreadyExists ErrCode = "ATTEMPT_ALREADY_EXISTS"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."
	case ErrForbidden:
		return "You do not have permission to access this resource."

	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid identifier format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."

	case ErrTestNotAvailable:
		return "This test is not currently available."
	case ErrInvalidAccessCode:
		return "The test access code is invalid."
	case ErrNoQuestions:
		return "This test has no questions; an attempt cannot be started."
	case ErrAttemptNotFound:
		return "No attempt found. It may have expired or been abandoned."
	case ErrAttemptNotActive:
		return "This attempt is not in progress."
	case ErrAttemptFinished:
		return "This attempt has already been submitted."
	case ErrSubmitFailed:
		return "Submitting the attempt failed. Your answers are safe; please retry."
	case ErrAttemptAlreadyExists:
		return "You have already finished an attempt for this test."

	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
