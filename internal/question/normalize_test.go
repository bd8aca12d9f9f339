package question

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/prepdeck/prepdeck-backend/internal/model"
)

func mustNormalize(t *testing.T, doc string) model.Question {
	t.Helper()
	q, err := Normalize(uuid.New(), uuid.New(), json.RawMessage(doc), 1)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	return q
}

func TestNormalizeStringOptions(t *testing.T) {
	q := mustNormalize(t, `{
		"text": "2 + 2 = ?",
		"options": ["3", "4", "5", "6"],
		"correct_option": "B",
		"marks": 4,
		"negative_marks": 1
	}`)

	if len(q.Options) != 4 {
		t.Fatalf("options = %d, want 4", len(q.Options))
	}
	if q.Options[1].ID != model.OptionB || q.Options[1].Text != "4" {
		t.Errorf("option B = %+v", q.Options[1])
	}
	if q.CorrectOption != model.OptionB {
		t.Errorf("correct = %q, want B", q.CorrectOption)
	}
	if q.Marks != 4 {
		t.Errorf("marks = %d, want 4", q.Marks)
	}
	if q.NegativeMarks != -1 {
		t.Errorf("negative marks = %v, want -1", q.NegativeMarks)
	}
}

func TestNormalizeObjectOptions(t *testing.T) {
	q := mustNormalize(t, `{
		"questionText": "Identify the structure",
		"choices": [
			{"text": "Mitochondria"},
			{"label": "Nucleus"},
			{"image_url": "https://cdn.example.com/opt-c.png"},
			{"optionText": "Ribosome"}
		],
		"correctOption": "c"
	}`)

	if q.Text != "Identify the structure" {
		t.Errorf("text = %q", q.Text)
	}
	if q.Options[1].Text != "Nucleus" {
		t.Errorf("option B text = %q, want Nucleus", q.Options[1].Text)
	}
	if q.Options[2].ImageURL == "" {
		t.Error("option C should carry an image URL")
	}
	if q.CorrectOption != model.OptionC {
		t.Errorf("correct = %q, want C (case-folded)", q.CorrectOption)
	}
}

func TestNormalizeMapOptions(t *testing.T) {
	q := mustNormalize(t, `{
		"QuestionText": "Capital of France?",
		"Options": {"a": "Lyon", "B": "Paris", "c": "Nice", "D": "Lille"},
		"answer": "B"
	}`)

	if len(q.Options) != 4 {
		t.Fatalf("options = %d, want 4", len(q.Options))
	}
	for i, id := range model.OptionIDs {
		if q.Options[i].ID != id {
			t.Errorf("option %d id = %q, want %q", i, q.Options[i].ID, id)
		}
	}
	if q.Options[0].Text != "Lyon" {
		t.Errorf("option A = %q, want Lyon", q.Options[0].Text)
	}
}

func TestNormalizeDefaults(t *testing.T) {
	q := mustNormalize(t, `{
		"text": "True or false?",
		"options": ["True", "False"],
		"correct": "A"
	}`)

	if q.Marks != 1 {
		t.Errorf("marks = %d, want default 1", q.Marks)
	}
	if q.NegativeMarks != 0 {
		t.Errorf("negative marks = %v, want 0", q.NegativeMarks)
	}
	if len(q.Options) != 2 {
		t.Errorf("options = %d, want 2", len(q.Options))
	}
}

func TestNormalizeSignedNegativeMarks(t *testing.T) {
	// Some batches store the penalty as a magnitude, others already
	// signed. Both must land as a non-positive contribution.
	for _, raw := range []string{"1", "-1"} {
		doc := `{"text":"Q","options":["x","y"],"answer":"A","negativeMarking":` + raw + `}`
		q := mustNormalize(t, doc)
		if q.NegativeMarks != -1 {
			t.Errorf("negative_marks raw=%s normalized to %v, want -1", raw, q.NegativeMarks)
		}
	}
}

func TestNormalizeStringNumbers(t *testing.T) {
	q := mustNormalize(t, `{
		"text": "Q",
		"options": ["x", "y"],
		"answer": "A",
		"points": "4",
		"negative_marks": "0.25"
	}`)
	if q.Marks != 4 {
		t.Errorf("marks = %d, want 4", q.Marks)
	}
	if q.NegativeMarks != -0.25 {
		t.Errorf("negative marks = %v, want -0.25", q.NegativeMarks)
	}
}

func TestNormalizeErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{"text": `},
		{"no stem", `{"options":["x","y"],"answer":"A"}`},
		{"no options", `{"text":"Q","answer":"A"}`},
		{"too many options", `{"text":"Q","options":["1","2","3","4","5"],"answer":"A"}`},
		{"empty option", `{"text":"Q","options":["x",""],"answer":"A"}`},
		{"missing correct", `{"text":"Q","options":["x","y"]}`},
		{"correct out of range", `{"text":"Q","options":["x","y"],"answer":"E"}`},
		{"options wrong type", `{"text":"Q","options":"ABCD","answer":"A"}`},
		{"empty option object", `{"text":"Q","options":[{"foo":"bar"},{"text":"y"}],"answer":"A"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(uuid.New(), uuid.New(), json.RawMessage(tt.doc), 1)
			if err == nil {
				t.Fatal("Normalize() expected error, got nil")
			}
		})
	}
}

func TestNormalizeImageOnlyStem(t *testing.T) {
	q := mustNormalize(t, `{
		"image_url": "https://cdn.example.com/q1.png",
		"options": ["a", "b", "c", "d"],
		"answer": "D",
		"difficulty": "Hard"
	}`)
	if q.Text != "" || q.ImageURL == "" {
		t.Errorf("stem = text %q image %q", q.Text, q.ImageURL)
	}
	if q.Difficulty != "hard" {
		t.Errorf("difficulty = %q, want hard", q.Difficulty)
	}
}
