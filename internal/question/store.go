package question

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prepdeck/prepdeck-backend/internal/config"
	"github.com/prepdeck/prepdeck-backend/internal/model"
	"github.com/prepdeck/prepdeck-backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Store is the PostgreSQL-backed Loader, with a Redis fast lane for the
// student-facing paper payload. Correct answers stay out of the cached
// paper; the full question set is always loaded from PostgreSQL.
type Store struct {
	tests     *repository.TestRepository
	questions *repository.QuestionRepository
	rdb       *redis.Client
	log       zerolog.Logger
}

// NewStore creates a question Store.
func NewStore(tests *repository.TestRepository, questions *repository.QuestionRepository, rdb *redis.Client, log zerolog.Logger) *Store {
	return &Store{
		tests:     tests,
		questions: questions,
		rdb:       rdb,
		log:       log.With().Str("component", "question_store").Logger(),
	}
}

// LoadQuestions implements Loader. Rows come back in display order and
// are normalized into the canonical shape; a row that cannot be
// normalized fails the whole load, since a partial paper must never
// start a session.
func (s *Store) LoadQuestions(ctx context.Context, testID uuid.UUID) ([]model.Question, error) {
	test, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("get test: %w", err)
	}
	if test.Status != model.TestStatusPublished {
		return nil, ErrAccessDenied
	}

	rows, err := s.questions.ListByTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	questions := make([]model.Question, 0, len(rows))
	for _, row := range rows {
		q, err := Normalize(row.ID, row.TestID, row.Doc, row.OrderNum)
		if err != nil {
			return nil, fmt.Errorf("normalize: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, nil
}

// GetTest retrieves the test definition (duration, access code, policy).
func (s *Store) GetTest(ctx context.Context, testID uuid.UUID) (*model.Test, error) {
	test, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("get test: %w", err)
	}
	return test, nil
}

// GetPaper returns the student-facing paper payload, served from Redis
// when warm. On a cache miss it rebuilds from PostgreSQL and self-heals
// the cache so the next request is fast.
func (s *Store) GetPaper(ctx context.Context, testID uuid.UUID) (*model.TestPaper, error) {
	key := config.CacheKey.TestPaperKey(testID.String())

	raw, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		var paper model.TestPaper
		if jsonErr := json.Unmarshal([]byte(raw), &paper); jsonErr == nil {
			return &paper, nil
		}
		// Corrupt cache entry; fall through to rebuild.
		s.log.Warn().Str("test_id", testID.String()).Msg("Corrupt paper cache entry, rebuilding")
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("paper cache: %w", err)
	}

	test, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("get test: %w", err)
	}
	return s.warmPaper(ctx, test)
}

// PrewarmAll loads the paper payload of every published test into Redis.
// Called at startup before traffic, so reloads under load never stampede
// PostgreSQL.
func (s *Store) PrewarmAll(ctx context.Context) error {
	tests, err := s.tests.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published tests: %w", err)
	}

	for i := range tests {
		if _, err := s.warmPaper(ctx, &tests[i]); err != nil {
			s.log.Warn().Err(err).Str("test_id", tests[i].ID.String()).Msg("Paper prewarm failed")
			continue
		}
	}

	s.log.Info().Int("tests", len(tests)).Msg("Paper caches prewarmed")
	return nil
}

func (s *Store) warmPaper(ctx context.Context, test *model.Test) (*model.TestPaper, error) {
	if test.Status != model.TestStatusPublished {
		return nil, ErrAccessDenied
	}

	questions, err := s.LoadQuestions(ctx, test.ID)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("test %s has no questions", test.ID)
	}

	paper := &model.TestPaper{
		TestID:          test.ID,
		Title:           test.Title,
		DurationMinutes: test.DurationMinutes,
		Questions:       make([]model.QuestionForStudent, len(questions)),
	}
	for i := range questions {
		paper.Questions[i] = questions[i].ForStudent()
	}

	raw, err := json.Marshal(paper)
	if err != nil {
		return nil, fmt.Errorf("marshal paper: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.TestPaperKey(test.ID.String()), raw, 0).Err(); err != nil {
		return nil, fmt.Errorf("cache paper: %w", err)
	}
	return paper, nil
}
