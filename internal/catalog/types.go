// Package catalog holds the course structure: modules, chapters, content items
// and quizzes, plus the repository that stores them.
package catalog

import "time"

// ContentType is the media kind of a content item.
type ContentType string

const (
	ContentVideo ContentType = "VIDEO"
	ContentAudio ContentType = "AUDIO"
)

// Module is a top-level course unit. Active modules are ordered by Order.
type Module struct {
	ID          string    `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description,omitempty" yaml:"description"`
	Order       int       `json:"order" yaml:"order"`
	IsActive    bool      `json:"isActive" yaml:"is_active"`
	CreatedAt   time.Time `json:"createdAt" yaml:"-"`
}

// Chapter belongs to one module and owns one content item and at most one quiz.
type Chapter struct {
	ID        string    `json:"id" yaml:"id"`
	ModuleID  string    `json:"moduleId" yaml:"-"`
	Title     string    `json:"title" yaml:"title"`
	Order     int       `json:"order" yaml:"order"`
	IsActive  bool      `json:"isActive" yaml:"is_active"`
	CreatedAt time.Time `json:"createdAt" yaml:"-"`
}

// Content is a single video or audio asset. Duration is in seconds.
type Content struct {
	ID        string      `json:"id" yaml:"id"`
	ChapterID string      `json:"chapterId" yaml:"-"`
	Type      ContentType `json:"type" yaml:"type"`
	URL       string      `json:"url" yaml:"url"`
	Duration  float64     `json:"duration" yaml:"duration"`
	Order     int         `json:"order" yaml:"-"`
	IsActive  bool        `json:"isActive" yaml:"is_active"`
	CreatedAt time.Time   `json:"createdAt" yaml:"-"`
}

// Quiz is attached to exactly one chapter. Questions are stored as one
// embedded value and never queried on their own.
type Quiz struct {
	ID           string     `json:"id" yaml:"id"`
	ChapterID    string     `json:"chapterId" yaml:"-"`
	Title        string     `json:"title" yaml:"title"`
	PassingScore int        `json:"passingScore" yaml:"passing_score"`
	Questions    []Question `json:"questions" yaml:"questions"`
	CreatedAt    time.Time  `json:"createdAt" yaml:"-"`
}

// Question returns the question with the given id.
func (q Quiz) Question(id string) (Question, bool) {
	for _, qu := range q.Questions {
		if qu.ID == id {
			return qu, true
		}
	}
	return Question{}, false
}
