package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prepdeck/prepdeck-backend/internal/auth"
	"github.com/prepdeck/prepdeck-backend/internal/middleware"
	"github.com/prepdeck/prepdeck-backend/internal/model"
	"github.com/prepdeck/prepdeck-backend/internal/question"
	"github.com/prepdeck/prepdeck-backend/internal/response"
	"github.com/prepdeck/prepdeck-backend/internal/service"
	"github.com/prepdeck/prepdeck-backend/internal/session"
	"github.com/prepdeck/prepdeck-backend/internal/validator"
)

// AttemptHandler handles the student-facing attempt endpoints.
type AttemptHandler struct {
	attempts *service.AttemptService
	log      zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attempts *service.AttemptService, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attempts: attempts,
		log:      log.With().Str("component", "attempt_handler").Logger(),
	}
}

// StartAttempt godoc
// POST /api/v1/student/tests/:test_id/attempts
// Starts (or re-enters) a timed attempt and returns the paper plus the
// live state. Idempotent per student per test while the attempt runs.
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.StartAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctrl, paper, err := h.attempts.StartAttempt(c.Request.Context(), testID, claims.UserID, req.AccessCode)
	if err != nil {
		switch {
		case errors.Is(err, question.ErrTestNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, question.ErrAccessDenied):
			response.Fail(c, http.StatusForbidden, response.ErrTestNotAvailable)
		case errors.Is(err, auth.ErrInvalidAccessCode):
			response.Fail(c, http.StatusForbidden, response.ErrInvalidAccessCode)
		case errors.Is(err, service.ErrAttemptAlreadyFinished):
			response.Fail(c, http.StatusConflict, response.ErrAttemptFinished)
		case errors.Is(err, session.ErrNoQuestions):
			response.Fail(c, http.StatusUnprocessableEntity, response.ErrNoQuestions)
		default:
			h.log.Error().Err(err).Str("test_id", testID.String()).Msg("Start attempt failed")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"paper": paper,
		"state": ctrl.State(),
	})
}

// GetState godoc
// GET /api/v1/student/attempts/:attempt_id/state
// Returns the live attempt view: answers, cursor position, remaining time.
func (h *AttemptHandler) GetState(c *gin.Context) {
	ctrl, ok := h.resolve(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, ctrl.State())
}

// Goto godoc
// POST /api/v1/student/attempts/:attempt_id/goto
// Moves the cursor; out-of-range indices clamp to the nearest edge.
func (h *AttemptHandler) Goto(c *gin.Context) {
	ctrl, ok := h.resolve(c)
	if !ok {
		return
	}

	var req model.GotoRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := ctrl.Goto(*req.Index); err != nil {
		h.failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, ctrl.State())
}

// Answer godoc
// POST /api/v1/student/attempts/:attempt_id/answer
// Records a selection for the current question and queues the change
// for background persistence.
func (h *AttemptHandler) Answer(c *gin.Context) {
	ctrl, ok := h.resolve(c)
	if !ok {
		return
	}

	var req model.SelectRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := ctrl.Select(req.Option); err != nil {
		h.failSession(c, err)
		return
	}

	h.enqueueCurrent(c, ctrl)
	response.Success(c, http.StatusOK, ctrl.State())
}

// Clear godoc
// POST /api/v1/student/attempts/:attempt_id/clear
// Resets the current question to unanswered.
func (h *AttemptHandler) Clear(c *gin.Context) {
	ctrl, ok := h.resolve(c)
	if !ok {
		return
	}

	if err := ctrl.Clear(); err != nil {
		h.failSession(c, err)
		return
	}

	h.enqueueCurrent(c, ctrl)
	response.Success(c, http.StatusOK, ctrl.State())
}

// Review godoc
// POST /api/v1/student/attempts/:attempt_id/review
// Toggles the marked-for-review flag on the current question.
func (h *AttemptHandler) Review(c *gin.Context) {
	ctrl, ok := h.resolve(c)
	if !ok {
		return
	}

	if err := ctrl.ToggleReview(); err != nil {
		h.failSession(c, err)
		return
	}

	h.enqueueCurrent(c, ctrl)
	response.Success(c, http.StatusOK, ctrl.State())
}

// Submit godoc
// POST /api/v1/student/attempts/:attempt_id/submit
// Finishes and grades the attempt. Safe to retry: a repeat call on a
// finished attempt returns ATTEMPT_ALREADY_FINISHED, never a second result.
func (h *AttemptHandler) Submit(c *gin.Context) {
	ctrl, ok := h.resolve(c)
	if !ok {
		return
	}

	result, err := h.attempts.Submit(c.Request.Context(), ctrl)
	if err != nil {
		h.failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// Terminate godoc
// POST /api/v1/student/attempts/:attempt_id/terminate
// Force-closes the attempt without answer-sheet confirmation (leaving
// the exam early). Grading still runs and exactly one result is recorded.
func (h *AttemptHandler) Terminate(c *gin.Context) {
	ctrl, ok := h.resolve(c)
	if !ok {
		return
	}

	result, err := h.attempts.Terminate(c.Request.Context(), ctrl, model.TerminalTerminatedManual)
	if err != nil {
		h.failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// GetResult godoc
// GET /api/v1/student/attempts/:attempt_id/result
// Returns the graded result of a finished attempt, from memory while the
// session is resident and from PostgreSQL after.
func (h *AttemptHandler) GetResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.attempts.Result(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAttemptNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
		case errors.Is(err, session.ErrNotActive):
			response.Fail(c, http.StatusConflict, response.ErrAttemptNotActive)
		default:
			h.log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("Get result failed")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}
	response.Success(c, http.StatusOK, result)
}

// resolve authenticates the caller and looks up their live controller.
func (h *AttemptHandler) resolve(c *gin.Context) (*session.Controller, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, false
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}

	ctrl, err := h.attempts.Resolve(attemptID, claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
		return nil, false
	}
	return ctrl, true
}

// enqueueCurrent queues the current question's record for persistence.
func (h *AttemptHandler) enqueueCurrent(c *gin.Context, ctrl *session.Controller) {
	state := ctrl.State()
	if state.CurrentIndex < len(state.Answers) {
		rec := state.Answers[state.CurrentIndex]
		h.attempts.EnqueueAnswerLog(c.Request.Context(), ctrl.ID(), &rec)
	}
}

// failSession maps session errors to response codes.
func (h *AttemptHandler) failSession(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotActive):
		response.Fail(c, http.StatusConflict, response.ErrAttemptNotActive)
	case errors.Is(err, session.ErrAlreadyFinished):
		response.Fail(c, http.StatusConflict, response.ErrAttemptFinished)
	case errors.Is(err, session.ErrSubmitInFlight):
		response.Fail(c, http.StatusConflict, response.ErrAttemptNotActive)
	default:
		h.log.Error().Err(err).Msg("Attempt submit failed")
		response.Fail(c, http.StatusBadGateway, response.ErrSubmitFailed)
	}
}
