package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prepdeck/prepdeck-backend/internal/model"
)

// ErrDuplicateAttempt is returned when a student already has a persisted
// attempt for the test.
var ErrDuplicateAttempt = errors.New("attempt already persisted for this student and test")

// AttemptRepository persists finished attempts. It implements
// session.Submitter: one insert per attempt, failures reported to the
// caller, never retried here.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// SubmitAttempt inserts the finished attempt and returns its ID. The
// answers log is serialized as a JSON array in question-list order so the
// attempt can later be replayed against the same question set.
func (r *AttemptRepository) SubmitAttempt(ctx context.Context, res *model.AttemptResult) (uuid.UUID, error) {
	answersJSON, err := json.Marshal(res.Answers)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal answers log: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO attempts
		   (id, test_id, student_id, status, answers,
		    correct, incorrect, unattempted, score, max_score, percentage,
		    started_at, finished_at, duration_taken_seconds)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		res.AttemptID, res.TestID, res.StudentID, res.Status, answersJSON,
		res.Correct, res.Incorrect, res.Unattempted, res.Score, res.MaxScore, res.Percentage,
		res.StartedAt, res.FinishedAt, res.DurationTakenSeconds,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return uuid.Nil, ErrDuplicateAttempt
		}
		return uuid.Nil, fmt.Errorf("insert attempt: %w", err)
	}
	return res.AttemptID, nil
}

// GetByID retrieves a persisted attempt for the read-only result view.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.AttemptResult, error) {
	res := &model.AttemptResult{}
	var answersJSON []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, test_id, student_id, status, answers,
		        correct, incorrect, unattempted, score, max_score, percentage,
		        started_at, finished_at, duration_taken_seconds
		 FROM attempts
		 WHERE id = $1`, id,
	).Scan(&res.AttemptID, &res.TestID, &res.StudentID, &res.Status, &answersJSON,
		&res.Correct, &res.Incorrect, &res.Unattempted, &res.Score, &res.MaxScore, &res.Percentage,
		&res.StartedAt, &res.FinishedAt, &res.DurationTakenSeconds)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answersJSON, &res.Answers); err != nil {
		return nil, fmt.Errorf("unmarshal answers log: %w", err)
	}
	return res, nil
}

// GetByTestAndStudent retrieves a student's persisted attempt on a test.
func (r *AttemptRepository) GetByTestAndStudent(ctx context.Context, testID uuid.UUID, studentID int) (*model.AttemptResult, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx,
		`SELECT id FROM attempts WHERE test_id = $1 AND student_id = $2`,
		testID, studentID,
	).Scan(&id)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// HasFinished reports whether a student already has a persisted attempt
// on the test.
func (r *AttemptRepository) HasFinished(ctx context.Context, testID uuid.UUID, studentID int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM attempts WHERE test_id = $1 AND student_id = $2)`,
		testID, studentID,
	).Scan(&exists)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}
	return exists, nil
}
