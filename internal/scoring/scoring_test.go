package scoring

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/prepdeck/prepdeck-backend/internal/model"
)

func makeQuestions(n int, marks int, negative float64) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			ID:            uuid.New(),
			CorrectOption: model.OptionA,
			Marks:         marks,
			NegativeMarks: negative,
			OrderNum:      i,
		}
	}
	return qs
}

func answerMap(qs []model.Question, selections ...string) map[uuid.UUID]*model.AnswerRecord {
	m := make(map[uuid.UUID]*model.AnswerRecord, len(qs))
	for i, q := range qs {
		sel := ""
		if i < len(selections) {
			sel = selections[i]
		}
		m[q.ID] = &model.AnswerRecord{QuestionID: q.ID, Selected: sel}
	}
	return m
}

func TestScore_CorrectIncorrectUnattempted(t *testing.T) {
	qs := makeQuestions(3, 1, 0)
	// correct, incorrect, unattempted
	answers := answerMap(qs, model.OptionA, model.OptionB, "")

	res := Score(qs, answers)

	if res.Score != 1 {
		t.Errorf("score = %v, want 1", res.Score)
	}
	if res.MaxScore != 3 {
		t.Errorf("max score = %d, want 3", res.MaxScore)
	}
	if res.Percentage != 33.33 {
		t.Errorf("percentage = %v, want 33.33", res.Percentage)
	}
	if res.Correct != 1 || res.Incorrect != 1 || res.Unattempted != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/1/1", res.Correct, res.Incorrect, res.Unattempted)
	}
}

func TestScore_NegativeMarking(t *testing.T) {
	tests := []struct {
		name      string
		marks     int
		negative  float64
		selected  string
		wantScore float64
	}{
		{name: "wrong with negative marking", marks: 4, negative: -1, selected: model.OptionC, wantScore: -1},
		{name: "wrong without negative marking", marks: 4, negative: 0, selected: model.OptionC, wantScore: 0},
		{name: "unattempted never penalized", marks: 4, negative: -1, selected: "", wantScore: 0},
		{name: "correct earns full marks", marks: 4, negative: -1, selected: model.OptionA, wantScore: 4},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			qs := makeQuestions(1, tc.marks, tc.negative)
			res := Score(qs, answerMap(qs, tc.selected))
			if res.Score != tc.wantScore {
				t.Errorf("score = %v, want %v", res.Score, tc.wantScore)
			}
		})
	}
}

func TestScore_AggregateCanGoNegative(t *testing.T) {
	qs := makeQuestions(3, 1, -1)
	answers := answerMap(qs, model.OptionB, model.OptionC, model.OptionD)

	res := Score(qs, answers)
	if res.Score != -3 {
		t.Errorf("score = %v, want -3", res.Score)
	}
	if res.Percentage != -100 {
		t.Errorf("percentage = %v, want -100", res.Percentage)
	}
}

func TestScore_EmptyQuestionSet(t *testing.T) {
	res := Score(nil, nil)
	if res.Score != 0 || res.MaxScore != 0 || res.Percentage != 0 {
		t.Errorf("empty set: score=%v max=%d pct=%v, want zeros", res.Score, res.MaxScore, res.Percentage)
	}
	if len(res.Answers) != 0 {
		t.Errorf("answers log has %d entries, want 0", len(res.Answers))
	}
}

func TestScore_MissingRecordCountsUnattempted(t *testing.T) {
	qs := makeQuestions(2, 1, 0)
	answers := answerMap(qs[:1], model.OptionA) // second question has no record

	res := Score(qs, answers)
	if res.Unattempted != 1 || res.Correct != 1 {
		t.Errorf("correct=%d unattempted=%d, want 1/1", res.Correct, res.Unattempted)
	}
	if len(res.Answers) != 2 {
		t.Fatalf("answers log has %d entries, want one per question", len(res.Answers))
	}
	if res.Answers[1].QuestionID != qs[1].ID {
		t.Errorf("answer log order does not follow question order")
	}
}

func TestScore_Deterministic(t *testing.T) {
	qs := makeQuestions(5, 2, -0.5)
	answers := answerMap(qs, model.OptionA, model.OptionB, "", model.OptionA, model.OptionD)
	for _, rec := range answers {
		rec.MarkedForReview = true
		rec.TimeSpentSeconds = 42
	}

	first := Score(qs, answers)
	second := Score(qs, answers)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Score is not deterministic:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestScore_ReviewFlagDoesNotAffectCounts(t *testing.T) {
	qs := makeQuestions(1, 1, 0)
	answers := answerMap(qs, "")
	answers[qs[0].ID].MarkedForReview = true

	res := Score(qs, answers)
	if res.Unattempted != 1 {
		t.Errorf("marked-for-review without selection must count unattempted, got %d", res.Unattempted)
	}
}

func TestAnswerLogRoundTrip(t *testing.T) {
	qs := makeQuestions(4, 2, -0.5)
	answers := answerMap(qs, model.OptionA, model.OptionC, "", model.OptionA)
	for i, q := range qs {
		answers[q.ID].TimeSpentSeconds = 10 * (i + 1)
	}

	original := Score(qs, answers)

	// The answers log is what the submitter serializes; parsing it back
	// and rescoring must reproduce correctness and aggregate score.
	raw, err := json.Marshal(original.Answers)
	if err != nil {
		t.Fatalf("marshal answer log: %v", err)
	}
	var decoded []model.AnswerRecord
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal answer log: %v", err)
	}

	replayed := make(map[uuid.UUID]*model.AnswerRecord, len(decoded))
	for i := range decoded {
		replayed[decoded[i].QuestionID] = &decoded[i]
	}
	rescored := Score(qs, replayed)

	if rescored.Score != original.Score {
		t.Errorf("replayed score = %v, want %v", rescored.Score, original.Score)
	}
	if rescored.Correct != original.Correct || rescored.Incorrect != original.Incorrect || rescored.Unattempted != original.Unattempted {
		t.Errorf("replayed counts = %d/%d/%d, want %d/%d/%d",
			rescored.Correct, rescored.Incorrect, rescored.Unattempted,
			original.Correct, original.Incorrect, original.Unattempted)
	}
	if !reflect.DeepEqual(rescored.Answers, original.Answers) {
		t.Error("replayed answer log differs from original")
	}
}
