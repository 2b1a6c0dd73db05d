package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository reads and writes the catalog. Reads of a missing entity return
// ErrNotFound. Active* listings are sorted by Order.
type Repository interface {
	ActiveModules(ctx context.Context) ([]Module, error)
	GetModule(ctx context.Context, id string) (Module, error)
	ActiveChapters(ctx context.Context, moduleID string) ([]Chapter, error)
	GetChapter(ctx context.Context, id string) (Chapter, error)
	ActiveContents(ctx context.Context, chapterID string) ([]Content, error)
	GetContent(ctx context.Context, id string) (Content, error)
	GetQuiz(ctx context.Context, id string) (Quiz, error)
	QuizForChapter(ctx context.Context, chapterID string) (Quiz, error)

	CreateModule(ctx context.Context, m Module) (Module, error)
	CreateChapter(ctx context.Context, c Chapter) (Chapter, error)
	CreateContent(ctx context.Context, c Content) (Content, error)
	CreateQuiz(ctx context.Context, q Quiz) (Quiz, error)
}

// MemoryRepository is an in-memory implementation of Repository.
type MemoryRepository struct {
	modules  map[string]Module
	chapters map[string]Chapter
	contents map[string]Content
	quizzes  map[string]Quiz
	mu       sync.RWMutex
}

// NewMemoryRepository creates an empty in-memory catalog.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		modules:  make(map[string]Module),
		chapters: make(map[string]Chapter),
		contents: make(map[string]Content),
		quizzes:  make(map[string]Quiz),
	}
}

func (r *MemoryRepository) ActiveModules(_ context.Context) ([]Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Module, 0, len(r.modules))
	for _, m := range r.modules {
		if m.IsActive {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (r *MemoryRepository) GetModule(_ context.Context, id string) (Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.modules[id]
	if !ok {
		return Module{}, ErrNotFound
	}
	return m, nil
}

func (r *MemoryRepository) ActiveChapters(_ context.Context, moduleID string) ([]Chapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Chapter
	for _, c := range r.chapters {
		if c.ModuleID == moduleID && c.IsActive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (r *MemoryRepository) GetChapter(_ context.Context, id string) (Chapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.chapters[id]
	if !ok {
		return Chapter{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepository) ActiveContents(_ context.Context, chapterID string) ([]Content, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Content
	for _, c := range r.contents {
		if c.ChapterID == chapterID && c.IsActive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (r *MemoryRepository) GetContent(_ context.Context, id string) (Content, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.contents[id]
	if !ok {
		return Content{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepository) GetQuiz(_ context.Context, id string) (Quiz, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q, ok := r.quizzes[id]
	if !ok {
		return Quiz{}, ErrNotFound
	}
	return q, nil
}

func (r *MemoryRepository) QuizForChapter(_ context.Context, chapterID string) (Quiz, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, q := range r.quizzes {
		if q.ChapterID == chapterID {
			return q, nil
		}
	}
	return Quiz{}, ErrNotFound
}

func (r *MemoryRepository) CreateModule(_ context.Context, m Module) (Module, error) {
	if err := ValidateModule(m); err != nil {
		return Module{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.modules[m.ID]; ok {
		return Module{}, ErrIDTaken
	}
	for _, existing := range r.modules {
		if m.IsActive && existing.IsActive && existing.Order == m.Order {
			return Module{}, ErrOrderTaken
		}
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now()
	r.modules[m.ID] = m
	return m, nil
}

func (r *MemoryRepository) CreateChapter(_ context.Context, c Chapter) (Chapter, error) {
	if err := ValidateChapter(c); err != nil {
		return Chapter{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.modules[c.ModuleID]; !ok {
		return Chapter{}, ErrNotFound
	}
	if _, ok := r.chapters[c.ID]; ok {
		return Chapter{}, ErrIDTaken
	}
	for _, existing := range r.chapters {
		if existing.ModuleID == c.ModuleID && existing.Order == c.Order {
			return Chapter{}, ErrOrderTaken
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now()
	r.chapters[c.ID] = c
	return c, nil
}

func (r *MemoryRepository) CreateContent(_ context.Context, c Content) (Content, error) {
	if err := ValidateContent(c); err != nil {
		return Content{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.chapters[c.ChapterID]; !ok {
		return Content{}, ErrNotFound
	}
	if _, ok := r.contents[c.ID]; ok {
		return Content{}, ErrIDTaken
	}
	for _, existing := range r.contents {
		if existing.ChapterID == c.ChapterID {
			return Content{}, ErrContentExists
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.Order = 1
	c.CreatedAt = time.Now()
	r.contents[c.ID] = c
	return c, nil
}

func (r *MemoryRepository) CreateQuiz(_ context.Context, q Quiz) (Quiz, error) {
	if err := ValidateQuiz(q); err != nil {
		return Quiz{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.chapters[q.ChapterID]; !ok {
		return Quiz{}, ErrNotFound
	}
	if _, ok := r.quizzes[q.ID]; ok {
		return Quiz{}, ErrIDTaken
	}
	for _, existing := range r.quizzes {
		if existing.ChapterID == q.ChapterID {
			return Quiz{}, ErrQuizExists
		}
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	q.CreatedAt = time.Now()
	r.quizzes[q.ID] = q
	return q, nil
}
