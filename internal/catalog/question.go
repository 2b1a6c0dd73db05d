package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// QuestionType distinguishes the two question variants.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
)

// MultipleChoiceOptions is the exact number of options a multiple_choice
// question carries.
const MultipleChoiceOptions = 4

// Question is one entry of a quiz. For multiple_choice the answer is an option
// index; for true_false it is a boolean.
type Question struct {
	ID            string       `json:"id" yaml:"id"`
	Question      string       `json:"question" yaml:"question"`
	Type          QuestionType `json:"type" yaml:"type"`
	Options       []string     `json:"options,omitempty" yaml:"options"`
	CorrectAnswer Answer       `json:"correctAnswer" yaml:"correct_answer"`
	Explanation   string       `json:"explanation,omitempty" yaml:"explanation"`
}

// Public strips the answer key and explanation.
func (q Question) Public() PublicQuestion {
	pq := PublicQuestion{ID: q.ID, Question: q.Question, Type: q.Type}
	if q.Type == MultipleChoice {
		pq.Options = append([]string(nil), q.Options...)
	}
	return pq
}

// PublicQuestion is the projection of a Question shown to a learner who is
// about to attempt the quiz.
type PublicQuestion struct {
	ID       string       `json:"id"`
	Question string       `json:"question"`
	Type     QuestionType `json:"type"`
	Options  []string     `json:"options,omitempty"`
}

// Answer is either a choice index or a boolean. The zero value is unset.
type Answer struct {
	choice *int
	truth  *bool
}

// Choice builds a multiple_choice answer.
func Choice(i int) Answer { return Answer{choice: &i} }

// Bool builds a true_false answer.
func Bool(b bool) Answer { return Answer{truth: &b} }

// IsSet reports whether the answer holds a value.
func (a Answer) IsSet() bool { return a.choice != nil || a.truth != nil }

// ChoiceIndex returns the option index, if the answer is a choice.
func (a Answer) ChoiceIndex() (int, bool) {
	if a.choice == nil {
		return 0, false
	}
	return *a.choice, true
}

// Truth returns the boolean, if the answer is a true/false answer.
func (a Answer) Truth() (bool, bool) {
	if a.truth == nil {
		return false, false
	}
	return *a.truth, true
}

// Matches reports whether the answer has the shape the question type expects.
func (a Answer) Matches(t QuestionType) bool {
	switch t {
	case MultipleChoice:
		return a.choice != nil
	case TrueFalse:
		return a.truth != nil
	}
	return false
}

// Equal is exact equality: same variant, same value.
func (a Answer) Equal(b Answer) bool {
	switch {
	case a.choice != nil && b.choice != nil:
		return *a.choice == *b.choice
	case a.truth != nil && b.truth != nil:
		return *a.truth == *b.truth
	}
	return false
}

func (a Answer) String() string {
	switch {
	case a.choice != nil:
		return strconv.Itoa(*a.choice)
	case a.truth != nil:
		return strconv.FormatBool(*a.truth)
	}
	return "<unset>"
}

func (a Answer) MarshalJSON() ([]byte, error) {
	switch {
	case a.choice != nil:
		return json.Marshal(*a.choice)
	case a.truth != nil:
		return json.Marshal(*a.truth)
	}
	return []byte("null"), nil
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*a = Answer{}
		return nil
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*a = Bool(b)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("answer must be a number or a boolean")
	}
	if f != float64(int(f)) {
		return fmt.Errorf("answer index must be an integer, got %v", f)
	}
	*a = Choice(int(f))
	return nil
}

func (a Answer) MarshalYAML() (any, error) {
	switch {
	case a.choice != nil:
		return *a.choice, nil
	case a.truth != nil:
		return *a.truth, nil
	}
	return nil, nil
}

func (a *Answer) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: answer must be a scalar", node.Line)
	}
	switch node.Tag {
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		*a = Bool(b)
	case "!!int":
		var i int
		if err := node.Decode(&i); err != nil {
			return err
		}
		*a = Choice(i)
	case "!!null":
		*a = Answer{}
	default:
		return fmt.Errorf("line %d: answer must be an integer or a boolean, got %q", node.Line, node.Value)
	}
	return nil
}
