package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prepdeck/prepdeck-backend/internal/model"
)

// TestRepository handles test paper data access.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

// GetByID retrieves a test by its UUID.
func (r *TestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	t := &model.Test{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, subject, duration_minutes, access_code_hash,
		        max_policy_violations, question_count, status, created_at, updated_at
		 FROM tests
		 WHERE id = $1`, id,
	).Scan(&t.ID, &t.Title, &t.Subject, &t.DurationMinutes, &t.AccessCodeHash,
		&t.MaxPolicyViolations, &t.QuestionCount, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListPublished retrieves all tests students may currently attempt.
// Used to prewarm paper caches at startup.
func (r *TestRepository) ListPublished(ctx context.Context) ([]model.Test, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, subject, duration_minutes, access_code_hash,
		        max_policy_violations, question_count, status, created_at, updated_at
		 FROM tests
		 WHERE status = $1
		 ORDER BY created_at`, model.TestStatusPublished,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tests []model.Test
	for rows.Next() {
		var t model.Test
		if err := rows.Scan(&t.ID, &t.Title, &t.Subject, &t.DurationMinutes, &t.AccessCodeHash,
			&t.MaxPolicyViolations, &t.QuestionCount, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

// UpdateAccessCode sets a new bcrypt access code hash for a test.
func (r *TestRepository) UpdateAccessCode(ctx context.Context, id uuid.UUID, hash string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE tests SET access_code_hash = $1, updated_at = NOW() WHERE id = $2`,
		hash, id)
	return err
}
