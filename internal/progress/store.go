package progress

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists per-learner progress rows. Saves of chapter and module
// progress never turn a completed row back into an incomplete one, and
// content progress saves keep the larger watch time.
type Store interface {
	GetContentProgress(ctx context.Context, userID, contentID string) (ContentProgress, bool, error)
	SaveContentProgress(ctx context.Context, p ContentProgress) (ContentProgress, error)
	ListContentProgress(ctx context.Context, userID string) (map[string]ContentProgress, error)

	GetChapterProgress(ctx context.Context, userID, chapterID string) (ChapterProgress, bool, error)
	SaveChapterProgress(ctx context.Context, p ChapterProgress) error
	ListChapterProgress(ctx context.Context, userID string) (map[string]ChapterProgress, error)

	GetModuleProgress(ctx context.Context, userID, moduleID string) (ModuleProgress, bool, error)
	SaveModuleProgress(ctx context.Context, p ModuleProgress) error
	ListModuleProgress(ctx context.Context, userID string) (map[string]ModuleProgress, error)

	AddQuizResult(ctx context.Context, r QuizResult) (QuizResult, error)
	HasPassedQuiz(ctx context.Context, userID, quizID string) (bool, error)
	ListQuizResults(ctx context.Context, userID, quizID string) ([]QuizResult, error)

	ListCertificates(ctx context.Context, userID string) ([]Certificate, error)
	// CreateCertificate returns ErrAlreadyObtained if the learner holds the tier.
	CreateCertificate(ctx context.Context, c Certificate) (Certificate, error)

	Summaries(ctx context.Context) ([]LearnerSummary, error)

	// WithTx runs fn against a Store whose writes commit together or not at all.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	contents     map[string]ContentProgress
	chapters     map[string]ChapterProgress
	modules      map[string]ModuleProgress
	results      []QuizResult
	certificates []Certificate
	mu           sync.RWMutex
	txMu         sync.Mutex
}

// NewMemoryStore creates a new in-memory progress store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contents: make(map[string]ContentProgress),
		chapters: make(map[string]ChapterProgress),
		modules:  make(map[string]ModuleProgress),
	}
}

func key(userID, id string) string { return userID + "\x00" + id }

func (s *MemoryStore) GetContentProgress(_ context.Context, userID, contentID string) (ContentProgress, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.contents[key(userID, contentID)]
	return p, ok, nil
}

func (s *MemoryStore) SaveContentProgress(_ context.Context, p ContentProgress) (ContentProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(p.UserID, p.ContentID)
	if prev, ok := s.contents[k]; ok {
		p = mergeContent(prev, p)
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	s.contents[k] = p
	return p, nil
}

func (s *MemoryStore) ListContentProgress(_ context.Context, userID string) (map[string]ContentProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]ContentProgress)
	for _, p := range s.contents {
		if p.UserID == userID {
			out[p.ContentID] = p
		}
	}
	return out, nil
}

func (s *MemoryStore) GetChapterProgress(_ context.Context, userID, chapterID string) (ChapterProgress, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.chapters[key(userID, chapterID)]
	return p, ok, nil
}

func (s *MemoryStore) SaveChapterProgress(_ context.Context, p ChapterProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(p.UserID, p.ChapterID)
	if prev, ok := s.chapters[k]; ok && prev.IsCompleted {
		return nil
	}
	s.chapters[k] = p
	return nil
}

func (s *MemoryStore) ListChapterProgress(_ context.Context, userID string) (map[string]ChapterProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]ChapterProgress)
	for _, p := range s.chapters {
		if p.UserID == userID {
			out[p.ChapterID] = p
		}
	}
	return out, nil
}

func (s *MemoryStore) GetModuleProgress(_ context.Context, userID, moduleID string) (ModuleProgress, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.modules[key(userID, moduleID)]
	return p, ok, nil
}

func (s *MemoryStore) SaveModuleProgress(_ context.Context, p ModuleProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(p.UserID, p.ModuleID)
	if prev, ok := s.modules[k]; ok && prev.IsCompleted {
		return nil
	}
	s.modules[k] = p
	return nil
}

func (s *MemoryStore) ListModuleProgress(_ context.Context, userID string) (map[string]ModuleProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]ModuleProgress)
	for _, p := range s.modules {
		if p.UserID == userID {
			out[p.ModuleID] = p
		}
	}
	return out, nil
}

func (s *MemoryStore) AddQuizResult(_ context.Context, r QuizResult) (QuizResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	s.results = append(s.results, r)
	return r, nil
}

func (s *MemoryStore) HasPassedQuiz(_ context.Context, userID, quizID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.results {
		if r.UserID == userID && r.QuizID == quizID && r.Passed {
			return true, nil
		}
	}
	return false, nil
}

// ListQuizResults returns the learner's attempts, most recent first.
func (s *MemoryStore) ListQuizResults(_ context.Context, userID, quizID string) ([]QuizResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []QuizResult
	for i := len(s.results) - 1; i >= 0; i-- {
		r := s.results[i]
		if r.UserID == userID && r.QuizID == quizID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListCertificates(_ context.Context, userID string) ([]Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Certificate
	for _, c := range s.certificates {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateCertificate(_ context.Context, c Certificate) (Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.certificates {
		if existing.UserID == c.UserID && existing.Tier == c.Tier {
			return Certificate{}, ErrAlreadyObtained
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.IssuedAt.IsZero() {
		c.IssuedAt = time.Now()
	}
	s.certificates = append(s.certificates, c)
	return c, nil
}

func (s *MemoryStore) Summaries(_ context.Context) ([]LearnerSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byUser := make(map[string]*LearnerSummary)
	get := func(userID string) *LearnerSummary {
		sum, ok := byUser[userID]
		if !ok {
			sum = &LearnerSummary{UserID: userID}
			byUser[userID] = sum
		}
		return sum
	}
	touch := func(sum *LearnerSummary, t time.Time) {
		if t.IsZero() {
			return
		}
		if sum.LastActivity == nil || t.After(*sum.LastActivity) {
			sum.LastActivity = &t
		}
	}

	for _, p := range s.contents {
		sum := get(p.UserID)
		if p.IsCompleted {
			sum.CompletedContents++
		}
		touch(sum, p.UpdatedAt)
	}
	for _, p := range s.chapters {
		if p.IsCompleted {
			get(p.UserID).CompletedChapters++
		}
	}
	for _, p := range s.modules {
		if p.IsCompleted {
			get(p.UserID).CompletedModules++
		}
	}
	passed := make(map[string]bool)
	for _, r := range s.results {
		sum := get(r.UserID)
		sum.QuizAttempts++
		if r.Passed && !passed[key(r.UserID, r.QuizID)] {
			passed[key(r.UserID, r.QuizID)] = true
			sum.QuizzesPassed++
		}
		touch(sum, r.CreatedAt)
	}
	for _, c := range s.certificates {
		sum := get(c.UserID)
		sum.Certificates = append(sum.Certificates, c.Tier)
	}

	out := make([]LearnerSummary, 0, len(byUser))
	for _, sum := range byUser {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// WithTx serializes transactions and restores the previous state when fn fails.
func (s *MemoryStore) WithTx(_ context.Context, fn func(tx Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	contents := maps.Clone(s.contents)
	chapters := maps.Clone(s.chapters)
	modules := maps.Clone(s.modules)
	results := append([]QuizResult(nil), s.results...)
	certificates := append([]Certificate(nil), s.certificates...)
	s.mu.RUnlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.contents, s.chapters, s.modules = contents, chapters, modules
		s.results, s.certificates = results, certificates
		s.mu.Unlock()
		return err
	}
	return nil
}

// mergeContent keeps the larger watch time and never clears completion.
func mergeContent(prev, next ContentProgress) ContentProgress {
	if prev.WatchTime > next.WatchTime {
		next.WatchTime = prev.WatchTime
	}
	if prev.IsCompleted {
		next.IsCompleted = true
		next.CompletedAt = prev.CompletedAt
	}
	return next
}
