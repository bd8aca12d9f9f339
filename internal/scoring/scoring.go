package scoring

import (
	"math"

	"github.com/google/uuid"
	"github.com/prepdeck/prepdeck-backend/internal/model"
)

// Score grades a finished answer state against the question set's marking
// scheme. It is a pure function: identical inputs always produce an
// identical result. Lifecycle fields (attempt ID, status, timestamps) are
// filled in by the caller.
//
// Per question: a record with a non-empty selection counts as attempted;
// a correct selection earns the question's marks, an incorrect one earns
// its negative-marking value (0 when unset), and an unattempted question
// earns nothing. The aggregate score may be negative.
func Score(questions []model.Question, answers map[uuid.UUID]*model.AnswerRecord) *model.AttemptResult {
	res := &model.AttemptResult{
		Answers: make([]model.AnswerRecord, 0, len(questions)),
	}

	var score float64
	for i := range questions {
		q := &questions[i]
		res.MaxScore += q.Marks

		rec := answers[q.ID]
		if rec == nil {
			// No record means unattempted; the log still carries one
			// entry per question so it re-joins against the paper.
			rec = &model.AnswerRecord{QuestionID: q.ID}
		}
		res.Answers = append(res.Answers, *rec)

		if rec.Selected == "" {
			res.Unattempted++
			continue
		}
		if rec.Selected == q.CorrectOption {
			res.Correct++
			score += float64(q.Marks)
		} else {
			res.Incorrect++
			score += q.NegativeMarks
		}
	}

	res.Score = score
	if res.MaxScore > 0 {
		res.Percentage = round2(100 * score / float64(res.MaxScore))
	}
	return res
}

// round2 rounds to two decimal places for display. The raw score is
// stored unrounded.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
