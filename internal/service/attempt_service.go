package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prepdeck/prepdeck-backend/internal/auth"
	"github.com/prepdeck/prepdeck-backend/internal/config"
	"github.com/prepdeck/prepdeck-backend/internal/model"
	"github.com/prepdeck/prepdeck-backend/internal/question"
	"github.com/prepdeck/prepdeck-backend/internal/repository"
	"github.com/prepdeck/prepdeck-backend/internal/session"
	"github.com/prepdeck/prepdeck-backend/internal/worker"
)

// Service-level errors, mapped to response codes by the handlers.
var (
	ErrAttemptNotFound        = errors.New("attempt not found")
	ErrAttemptAlreadyFinished = errors.New("attempt already finished for this test")
)

// AttemptService orchestrates the attempt lifecycle: entry checks,
// controller construction, live-session lookup and result retrieval.
// The session.Controller owns all in-attempt semantics; this layer owns
// everything around it.
type AttemptService struct {
	cfg      *config.Config
	store    *question.Store
	attempts *repository.AttemptRepository
	auth     *auth.Service
	manager  *session.Manager
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	cfg *config.Config,
	store *question.Store,
	attempts *repository.AttemptRepository,
	authSvc *auth.Service,
	manager *session.Manager,
	rdb *redis.Client,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		cfg:      cfg,
		store:    store,
		attempts: attempts,
		auth:     authSvc,
		manager:  manager,
		rdb:      rdb,
		log:      log.With().Str("component", "attempt_service").Logger(),
	}
}

// StartAttempt validates entry and returns a running controller plus the
// student-facing paper. If the student already has a live attempt on
// this test, that attempt is returned instead of starting a new one, so
// a page reload re-enters rather than resets.
func (s *AttemptService) StartAttempt(ctx context.Context, testID uuid.UUID, studentID int, accessCode string) (*session.Controller, *model.TestPaper, error) {
	if ctrl, ok := s.manager.GetActive(testID, studentID); ok {
		paper, err := s.store.GetPaper(ctx, testID)
		if err != nil {
			return nil, nil, err
		}
		return ctrl, paper, nil
	}

	test, err := s.store.GetTest(ctx, testID)
	if err != nil {
		return nil, nil, err
	}
	if test.Status != model.TestStatusPublished {
		return nil, nil, question.ErrAccessDenied
	}

	finished, err := s.attempts.HasFinished(ctx, testID, studentID)
	if err != nil {
		return nil, nil, fmt.Errorf("check finished attempt: %w", err)
	}
	if finished {
		return nil, nil, ErrAttemptAlreadyFinished
	}

	if test.AccessCodeHash != "" {
		if err := s.auth.CheckAccessCode(test.AccessCodeHash, accessCode); err != nil {
			return nil, nil, err
		}
	}

	questions, err := s.store.LoadQuestions(ctx, testID)
	if err != nil {
		return nil, nil, err
	}

	durationMinutes := test.DurationMinutes
	if durationMinutes <= 0 {
		durationMinutes = s.cfg.DefaultDurationMinutes
	}
	maxViolations := test.MaxPolicyViolations
	if maxViolations <= 0 {
		maxViolations = s.cfg.MaxPolicyViolations
	}

	ctrl, err := session.New(questions, session.Config{
		TestID:              testID,
		StudentID:           studentID,
		DurationSeconds:     durationMinutes * 60,
		MaxPolicyViolations: maxViolations,
	}, s.attempts, s.log)
	if err != nil {
		return nil, nil, err
	}

	s.manager.Put(ctrl)
	if err := ctrl.Start(); err != nil {
		s.manager.Remove(ctrl.ID())
		return nil, nil, err
	}

	// Registry entry so other nodes and the ops tooling can see the live
	// attempt. TTL outlives the clock by a grace period; no cleanup
	// needed when the process dies mid-attempt.
	key := config.CacheKey.StudentActiveAttemptKey(testID.String(), studentID)
	ttl := time.Duration(durationMinutes)*time.Minute + 5*time.Minute
	if err := s.rdb.Set(ctx, key, ctrl.ID().String(), ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("test_id", testID.String()).Msg("Active attempt registry write failed")
	}

	paper, err := s.store.GetPaper(ctx, testID)
	if err != nil {
		ctrl.Abandon()
		s.manager.Remove(ctrl.ID())
		return nil, nil, err
	}

	s.log.Info().
		Str("attempt_id", ctrl.ID().String()).
		Str("test_id", testID.String()).
		Int("student_id", studentID).
		Int("duration_s", durationMinutes*60).
		Msg("Attempt started")

	return ctrl, paper, nil
}

// Resolve returns the live controller for an attempt, verifying the
// caller owns it. A finished-and-swept or unknown attempt yields
// ErrAttemptNotFound.
func (s *AttemptService) Resolve(attemptID uuid.UUID, studentID int) (*session.Controller, error) {
	ctrl, ok := s.manager.Get(attemptID)
	if !ok || ctrl.StudentID() != studentID {
		return nil, ErrAttemptNotFound
	}
	return ctrl, nil
}

// Submit finishes the attempt voluntarily and clears the live registry.
func (s *AttemptService) Submit(ctx context.Context, ctrl *session.Controller) (*model.AttemptResult, error) {
	res, err := ctrl.Submit(ctx)
	if err != nil {
		return nil, err
	}
	s.clearActive(ctx, ctrl)
	return res, nil
}

// Terminate force-closes the attempt with the given reason.
func (s *AttemptService) Terminate(ctx context.Context, ctrl *session.Controller, reason model.TerminalStatus) (*model.AttemptResult, error) {
	res, err := ctrl.Terminate(ctx, reason)
	if err != nil {
		return nil, err
	}
	s.clearActive(ctx, ctrl)
	return res, nil
}

// Result serves a finished attempt: from the live controller when it is
// still resident, otherwise from PostgreSQL.
func (s *AttemptService) Result(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.AttemptResult, error) {
	if ctrl, ok := s.manager.Get(attemptID); ok {
		if ctrl.StudentID() != studentID {
			return nil, ErrAttemptNotFound
		}
		if res, ok := ctrl.Result(); ok {
			return res, nil
		}
		return nil, session.ErrNotActive
	}

	res, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, err
	}
	if res == nil || res.StudentID != studentID {
		return nil, ErrAttemptNotFound
	}
	return res, nil
}

// EnqueueAnswerLog pushes one answer-state change onto the persistence
// queue. Queue failures are logged, not surfaced: the in-memory state is
// authoritative and the final submit writes the full log anyway.
func (s *AttemptService) EnqueueAnswerLog(ctx context.Context, attemptID uuid.UUID, rec *model.AnswerRecord) {
	payload := worker.AnswerLogPayload{
		AttemptID:        attemptID.String(),
		QuestionID:       rec.QuestionID.String(),
		Selected:         rec.Selected,
		MarkedForReview:  rec.MarkedForReview,
		TimeSpentSeconds: rec.TimeSpentSeconds,
	}
	data, _ := json.Marshal(payload)
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistAnswerLogQueue, data).Err(); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Answer log enqueue failed")
	}
}

// RecordViolation queues the proctoring event and counts it against the
// attempt's policy threshold. The caller decides what to do when
// exceeded comes back true.
func (s *AttemptService) RecordViolation(ctx context.Context, ctrl *session.Controller, kind, detail string) (count int, exceeded bool) {
	payload := worker.ProctorEventPayload{
		AttemptID: ctrl.ID().String(),
		StudentID: ctrl.StudentID(),
		Kind:      kind,
		Detail:    detail,
		Timestamp: time.Now().Unix(),
	}
	data, _ := json.Marshal(payload)
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistProctorEventsQueue, data).Err(); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", ctrl.ID().String()).Msg("Proctor event enqueue failed")
	}

	return ctrl.RecordViolation()
}

func (s *AttemptService) clearActive(ctx context.Context, ctrl *session.Controller) {
	s.manager.Remove(ctrl.ID())
	key := config.CacheKey.StudentActiveAttemptKey(ctrl.TestID().String(), ctrl.StudentID())
	if err := s.rdb.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("attempt_id", ctrl.ID().String()).Msg("Active attempt registry delete failed")
	}
}
