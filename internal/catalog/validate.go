package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// questionsSchema describes the embedded question list. Semantic checks that
// JSON Schema cannot express (unique ids) live in ValidateQuiz.
const questionsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["id", "question", "type", "correctAnswer"],
    "properties": {
      "id": {"type": "string", "minLength": 1},
      "question": {"type": "string", "minLength": 1},
      "explanation": {"type": "string"}
    },
    "oneOf": [
      {
        "properties": {
          "type": {"enum": ["multiple_choice"]},
          "options": {
            "type": "array",
            "minItems": 4,
            "maxItems": 4,
            "items": {"type": "string", "pattern": "\\S"}
          },
          "correctAnswer": {"type": "integer", "minimum": 0, "maximum": 3}
        },
        "required": ["options"]
      },
      {
        "properties": {
          "type": {"enum": ["true_false"]},
          "correctAnswer": {"type": "boolean"}
        }
      }
    ]
  }
}`

var questionsLoader = gojsonschema.NewStringLoader(questionsSchema)

// ValidateQuestions checks the structure of a question list against the
// question schema.
func ValidateQuestions(questions []Question) error {
	doc, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	if len(questions) == 0 {
		doc = []byte("[]")
	}

	result, err := gojsonschema.Validate(questionsLoader, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("validate questions: %w", err)
	}
	if result.Valid() {
		return nil
	}

	flds := make([]FieldError, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		// oneOf reports one error per failed branch; the branch details are enough.
		if re.Type() == "number_one_of" {
			continue
		}
		field := "questions"
		if f := re.Field(); f != "" && f != "(root)" {
			field += "." + f
		}
		flds = append(flds, FieldError{Field: field, Error: re.Description()})
	}
	if len(flds) == 0 {
		flds = append(flds, FieldError{Field: "questions", Error: "question structure is invalid"})
	}
	return NewValidationError(flds...)
}

// ValidateQuiz checks a quiz before it is written.
func ValidateQuiz(q Quiz) error {
	var flds []FieldError
	if strings.TrimSpace(q.Title) == "" {
		flds = append(flds, FieldError{Field: "title", Error: "title is required"})
	}
	if q.ChapterID == "" {
		flds = append(flds, FieldError{Field: "chapterId", Error: "chapter is required"})
	}
	if q.PassingScore < 0 || q.PassingScore > 100 {
		flds = append(flds, FieldError{Field: "passingScore", Error: "must be between 0 and 100"})
	}

	seen := make(map[string]bool, len(q.Questions))
	for i, qu := range q.Questions {
		if qu.ID == "" {
			continue
		}
		if seen[qu.ID] {
			flds = append(flds, FieldError{Field: fmt.Sprintf("questions.%d.id", i), Error: "duplicate question id " + qu.ID})
		}
		seen[qu.ID] = true
	}

	if err := ValidateQuestions(q.Questions); err != nil {
		ve, ok := err.(*ValidationError)
		if !ok {
			return err
		}
		flds = append(flds, ve.Fields...)
	}

	if len(flds) > 0 {
		return NewValidationError(flds...)
	}
	return nil
}

// ValidateModule checks a module before it is written.
func ValidateModule(m Module) error {
	var flds []FieldError
	if strings.TrimSpace(m.Title) == "" {
		flds = append(flds, FieldError{Field: "title", Error: "title is required"})
	}
	if m.Order < 1 {
		flds = append(flds, FieldError{Field: "order", Error: "must be at least 1"})
	}
	if len(flds) > 0 {
		return NewValidationError(flds...)
	}
	return nil
}

// ValidateChapter checks a chapter before it is written.
func ValidateChapter(c Chapter) error {
	var flds []FieldError
	if c.ModuleID == "" {
		flds = append(flds, FieldError{Field: "moduleId", Error: "module is required"})
	}
	if strings.TrimSpace(c.Title) == "" {
		flds = append(flds, FieldError{Field: "title", Error: "title is required"})
	}
	if c.Order < 1 {
		flds = append(flds, FieldError{Field: "order", Error: "must be at least 1"})
	}
	if len(flds) > 0 {
		return NewValidationError(flds...)
	}
	return nil
}

// ValidateContent checks a content item before it is written.
func ValidateContent(c Content) error {
	var flds []FieldError
	if c.ChapterID == "" {
		flds = append(flds, FieldError{Field: "chapterId", Error: "chapter is required"})
	}
	if c.Type != ContentVideo && c.Type != ContentAudio {
		flds = append(flds, FieldError{Field: "type", Error: "must be VIDEO or AUDIO"})
	}
	if strings.TrimSpace(c.URL) == "" {
		flds = append(flds, FieldError{Field: "url", Error: "url is required"})
	}
	if !(c.Duration > 0) || math.IsInf(c.Duration, 0) {
		flds = append(flds, FieldError{Field: "duration", Error: "must be a positive number of seconds"})
	}
	if len(flds) > 0 {
		return NewValidationError(flds...)
	}
	return nil
}
