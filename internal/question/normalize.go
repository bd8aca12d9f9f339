package question

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/prepdeck/prepdeck-backend/internal/model"
)

// Key aliases seen across the source collections. Imports happened over
// several generations of the content schema, so the same field shows up
// as question_text, questionText or QuestionText depending on the batch.
var (
	textKeys       = []string{"text", "question_text", "questionText", "QuestionText"}
	imageKeys      = []string{"image", "image_url", "imageUrl", "QuestionImage"}
	optionsKeys    = []string{"options", "Options", "choices"}
	correctKeys    = []string{"correct_option", "correctOption", "CorrectOption", "answer", "correct"}
	marksKeys      = []string{"marks", "Marks", "points", "weight"}
	negativeKeys   = []string{"negative_marks", "negativeMarks", "negative_marking", "negativeMarking"}
	difficultyKeys = []string{"difficulty", "Difficulty", "level"}

	optionTextKeys  = []string{"text", "Text", "label", "optionText"}
	optionImageKeys = []string{"image", "image_url", "imageUrl", "OptionImage"}
)

// Normalize converts one raw question document into the canonical
// Question shape. Marks default to 1; the negative-marking value is
// normalized to a non-positive contribution regardless of whether the
// source stored a magnitude or a signed value.
func Normalize(id, testID uuid.UUID, doc json.RawMessage, orderNum int) (model.Question, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(doc, &m); err != nil {
		return model.Question{}, fmt.Errorf("question %s: parse doc: %w", id, err)
	}

	q := model.Question{
		ID:         id,
		TestID:     testID,
		Text:       stringField(m, textKeys),
		ImageURL:   stringField(m, imageKeys),
		Difficulty: strings.ToLower(stringField(m, difficultyKeys)),
		OrderNum:   orderNum,
	}
	if q.Text == "" && q.ImageURL == "" {
		return model.Question{}, fmt.Errorf("question %s: no stem text or image", id)
	}

	opts, err := normalizeOptions(m)
	if err != nil {
		return model.Question{}, fmt.Errorf("question %s: %w", id, err)
	}
	q.Options = opts

	correct := strings.ToUpper(strings.TrimSpace(stringField(m, correctKeys)))
	if !model.ValidOption(correct) {
		return model.Question{}, fmt.Errorf("question %s: invalid correct option %q", id, correct)
	}
	q.CorrectOption = correct

	q.Marks = 1
	if v, ok := numberField(m, marksKeys); ok && v >= 1 {
		q.Marks = int(v)
	}
	if v, ok := numberField(m, negativeKeys); ok {
		q.NegativeMarks = -math.Abs(v)
	}

	return q, nil
}

// normalizeOptions accepts the three layouts the source collections use:
// a plain string array, an array of option objects, or a map keyed by
// option identifier. Output is always A..D ordered option structs.
func normalizeOptions(m map[string]interface{}) ([]model.QuestionOption, error) {
	raw, ok := anyField(m, optionsKeys)
	if !ok {
		return nil, fmt.Errorf("no options field")
	}

	switch v := raw.(type) {
	case []interface{}:
		if len(v) == 0 || len(v) > len(model.OptionIDs) {
			return nil, fmt.Errorf("option count %d out of range", len(v))
		}
		opts := make([]model.QuestionOption, 0, len(v))
		for i, item := range v {
			opt, err := normalizeOption(model.OptionIDs[i], item)
			if err != nil {
				return nil, err
			}
			opts = append(opts, opt)
		}
		return opts, nil

	case map[string]interface{}:
		opts := make([]model.QuestionOption, 0, len(v))
		for _, id := range model.OptionIDs {
			item, ok := lookupFold(v, id)
			if !ok {
				continue
			}
			opt, err := normalizeOption(id, item)
			if err != nil {
				return nil, err
			}
			opts = append(opts, opt)
		}
		if len(opts) == 0 {
			return nil, fmt.Errorf("option map has no recognised keys")
		}
		return opts, nil

	default:
		return nil, fmt.Errorf("unsupported options layout %T", raw)
	}
}

func normalizeOption(id string, item interface{}) (model.QuestionOption, error) {
	switch v := item.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return model.QuestionOption{}, fmt.Errorf("option %s is empty", id)
		}
		return model.QuestionOption{ID: id, Text: v}, nil
	case map[string]interface{}:
		opt := model.QuestionOption{
			ID:       id,
			Text:     stringField(v, optionTextKeys),
			ImageURL: stringField(v, optionImageKeys),
		}
		if opt.Text == "" && opt.ImageURL == "" {
			return model.QuestionOption{}, fmt.Errorf("option %s has no text or image", id)
		}
		return opt, nil
	default:
		return model.QuestionOption{}, fmt.Errorf("option %s has unsupported shape %T", id, item)
	}
}

func anyField(m map[string]interface{}, keys []string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(m map[string]interface{}, keys []string) string {
	v, ok := anyField(m, keys)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func numberField(m map[string]interface{}, keys []string) (float64, bool) {
	v, ok := anyField(m, keys)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%f", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

func lookupFold(m map[string]interface{}, key string) (interface{}, bool) {
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}
