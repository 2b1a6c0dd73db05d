// Package progress is the unlock and progress-aggregation engine: it decides
// what a learner may open, turns watch time into completion, cascades
// completion from content to chapter to module, grades quizzes and issues
// certificates.
package progress

import (
	"time"

	"github.com/p-n-ai/pai-academy/internal/catalog"
)

// Learner is the identity the engine evaluates rules for. A zero ID is an
// anonymous visitor.
type Learner struct {
	ID            string
	EmailVerified bool
	Admin         bool
}

// Anonymous reports whether the learner is unauthenticated.
func (l Learner) Anonymous() bool { return l.ID == "" }

// ContentProgress is the per (user, content) watch state.
type ContentProgress struct {
	UserID      string     `json:"userId"`
	ContentID   string     `json:"contentId"`
	WatchTime   float64    `json:"watchTime"`
	IsCompleted bool       `json:"isCompleted"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// ChapterProgress is written only by the engine.
type ChapterProgress struct {
	UserID      string     `json:"userId"`
	ChapterID   string     `json:"chapterId"`
	IsCompleted bool       `json:"isCompleted"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// ModuleProgress is written only by the engine.
type ModuleProgress struct {
	UserID      string     `json:"userId"`
	ModuleID    string     `json:"moduleId"`
	IsCompleted bool       `json:"isCompleted"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// QuizResult is one submission attempt. Results are append-only.
type QuizResult struct {
	ID        string                    `json:"id"`
	UserID    string                    `json:"userId"`
	QuizID    string                    `json:"quizId"`
	Score     int                       `json:"score"`
	Passed    bool                      `json:"passed"`
	Answers   map[string]catalog.Answer `json:"answers"`
	CreatedAt time.Time                 `json:"createdAt"`
}

// Tier is a certificate level.
type Tier string

const (
	Bronze Tier = "BRONZE"
	Silver Tier = "SILVER"
	Gold   Tier = "GOLD"
)

// Tiers lists every tier in ascending order.
var Tiers = []Tier{Bronze, Silver, Gold}

// RequiredModules is the number of completed modules a tier needs.
func (t Tier) RequiredModules() int {
	switch t {
	case Bronze:
		return 3
	case Silver:
		return 6
	case Gold:
		return 9
	}
	return 0
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool { return t.RequiredModules() > 0 }

// Certificate is unique per (user, tier).
type Certificate struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	Tier              Tier      `json:"type"`
	ModuleID          string    `json:"moduleId,omitempty"`
	CertificateNumber string    `json:"certificateNumber"`
	IssuedAt          time.Time `json:"issuedAt"`
}

// LearnerSummary aggregates one learner's rows for reporting.
type LearnerSummary struct {
	UserID            string     `json:"userId"`
	CompletedContents int        `json:"completedContents"`
	CompletedChapters int        `json:"completedChapters"`
	CompletedModules  int        `json:"completedModules"`
	QuizAttempts      int        `json:"quizAttempts"`
	QuizzesPassed     int        `json:"quizzesPassed"`
	Certificates      []Tier     `json:"certificates"`
	LastActivity      *time.Time `json:"lastActivity,omitempty"`
}
