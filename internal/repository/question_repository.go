package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QuestionRow is a raw question record as stored. The doc column carries
// the question document as imported from the legacy content store, with
// inconsistent field casing across source collections; normalization into
// the canonical shape happens at the question loader boundary.
type QuestionRow struct {
	ID       uuid.UUID
	TestID   uuid.UUID
	Doc      json.RawMessage
	OrderNum int
}

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByTest retrieves a test's raw question rows in display order.
func (r *QuestionRepository) ListByTest(ctx context.Context, testID uuid.UUID) ([]QuestionRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, test_id, doc, order_num
		 FROM questions
		 WHERE test_id = $1
		 ORDER BY order_num`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []QuestionRow
	for rows.Next() {
		var q QuestionRow
		if err := rows.Scan(&q.ID, &q.TestID, &q.Doc, &q.OrderNum); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
