package progress_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/pai-academy/internal/catalog"
	"github.com/p-n-ai/pai-academy/internal/notify"
	"github.com/p-n-ai/pai-academy/internal/progress"
)

var (
	learner    = progress.Learner{ID: "u1", EmailVerified: true}
	anonymous  = progress.Learner{}
	unverified = progress.Learner{ID: "u2"}
)

type fixture struct {
	repo   *catalog.MemoryRepository
	store  *progress.MemoryStore
	inbox  *notify.MemoryInbox
	engine *progress.Engine

	mu    sync.Mutex
	clock time.Time
}

// chapterSpec describes one chapter: its content lasts duration seconds and a
// non-nil quiz is attached to it.
type chapterSpec struct {
	id       string
	duration float64
	quiz     *catalog.Quiz
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:  catalog.NewMemoryRepository(),
		store: progress.NewMemoryStore(),
		inbox: notify.NewMemoryInbox(),
		clock: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.engine = f.newEngine(f.store)
	return f
}

func (f *fixture) newEngine(store progress.Store) *progress.Engine {
	gw := notify.NewGateway()
	gw.Register("inbox", f.inbox)
	return progress.NewEngine(progress.EngineConfig{
		Catalog:  f.repo,
		Store:    store,
		Notifier: gw,
		Now: func() time.Time {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.clock = f.clock.Add(time.Second)
			return f.clock
		},
	})
}

func (f *fixture) addModule(t *testing.T, id string, order int, chapters ...chapterSpec) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.repo.CreateModule(ctx, catalog.Module{ID: id, Title: "Module " + id, Order: order, IsActive: true}); err != nil {
		t.Fatalf("CreateModule(%s) error = %v", id, err)
	}
	for i, spec := range chapters {
		if _, err := f.repo.CreateChapter(ctx, catalog.Chapter{ID: spec.id, ModuleID: id, Title: "Chapter " + spec.id, Order: i + 1, IsActive: true}); err != nil {
			t.Fatalf("CreateChapter(%s) error = %v", spec.id, err)
		}
		duration := spec.duration
		if duration == 0 {
			duration = 600
		}
		if _, err := f.repo.CreateContent(ctx, catalog.Content{
			ID:        contentID(spec.id),
			ChapterID: spec.id,
			Type:      catalog.ContentVideo,
			URL:       "https://cdn.example.com/" + spec.id + ".mp4",
			Duration:  duration,
			IsActive:  true,
		}); err != nil {
			t.Fatalf("CreateContent(%s) error = %v", spec.id, err)
		}
		if spec.quiz != nil {
			q := *spec.quiz
			q.ChapterID = spec.id
			if _, err := f.repo.CreateQuiz(ctx, q); err != nil {
				t.Fatalf("CreateQuiz(%s) error = %v", q.ID, err)
			}
		}
	}
}

// finish watches the chapter's content to the end.
func (f *fixture) finish(t *testing.T, l progress.Learner, chapterID string) progress.ProgressUpdate {
	t.Helper()
	c, err := f.repo.GetContent(context.Background(), contentID(chapterID))
	if err != nil {
		t.Fatalf("GetContent() error = %v", err)
	}
	u, err := f.engine.RecordContentProgress(context.Background(), l, c.ID, c.Duration)
	if err != nil {
		t.Fatalf("RecordContentProgress(%s) error = %v", c.ID, err)
	}
	return u
}

func contentID(chapterID string) string { return chapterID + "-content" }

// fourQuestionQuiz has answers 1, true, 2, false with the given passing score.
func fourQuestionQuiz(id string, passing int) *catalog.Quiz {
	return &catalog.Quiz{
		ID:           id,
		Title:        "Quiz " + id,
		PassingScore: passing,
		Questions: []catalog.Question{
			{ID: "q1", Question: "Pick B", Type: catalog.MultipleChoice, Options: []string{"A", "B", "C", "D"}, CorrectAnswer: catalog.Choice(1), Explanation: "B is right."},
			{ID: "q2", Question: "True?", Type: catalog.TrueFalse, CorrectAnswer: catalog.Bool(true)},
			{ID: "q3", Question: "Pick C", Type: catalog.MultipleChoice, Options: []string{"A", "B", "C", "D"}, CorrectAnswer: catalog.Choice(2)},
			{ID: "q4", Question: "False?", Type: catalog.TrueFalse, CorrectAnswer: catalog.Bool(false)},
		},
	}
}

func allCorrect() map[string]catalog.Answer {
	return map[string]catalog.Answer{
		"q1": catalog.Choice(1),
		"q2": catalog.Bool(true),
		"q3": catalog.Choice(2),
		"q4": catalog.Bool(false),
	}
}

func TestNewEngine_Defaults(t *testing.T) {
	e := progress.NewEngine(progress.EngineConfig{})
	if e == nil {
		t.Fatal("NewEngine() returned nil")
	}

	mods, err := e.Catalog(context.Background(), learner)
	if err != nil {
		t.Fatalf("Catalog() error = %v", err)
	}
	if len(mods) != 0 {
		t.Errorf("Catalog() = %d modules, want 0 for empty catalog", len(mods))
	}
}

func TestEngine_GatesUnauthenticatedAndUnverified(t *testing.T) {
	f := newFixture(t)
	f.addModule(t, "a", 1, chapterSpec{id: "a1"})
	ctx := context.Background()

	tests := []struct {
		name string
		call func(progress.Learner) error
	}{
		{"ContentDetail", func(l progress.Learner) error {
			_, err := f.engine.ContentDetail(ctx, l, contentID("a1"))
			return err
		}},
		{"RecordContentProgress", func(l progress.Learner) error {
			_, err := f.engine.RecordContentProgress(ctx, l, contentID("a1"), 10)
			return err
		}},
		{"GetQuizForAttempt", func(l progress.Learner) error {
			_, err := f.engine.GetQuizForAttempt(ctx, l, "a1")
			return err
		}},
		{"SubmitQuiz", func(l progress.Learner) error {
			_, err := f.engine.SubmitQuiz(ctx, l, "missing", allCorrect())
			return err
		}},
		{"ListEligible", func(l progress.Learner) error {
			_, err := f.engine.ListEligible(ctx, l)
			return err
		}},
		{"IssueCertificate", func(l progress.Learner) error {
			_, err := f.engine.IssueCertificate(ctx, l, progress.Bronze)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(anonymous); !errors.Is(err, progress.ErrUnauthenticated) {
				t.Errorf("anonymous error = %v, want ErrUnauthenticated", err)
			}
			if err := tt.call(unverified); !errors.Is(err, progress.ErrEmailNotVerified) {
				t.Errorf("unverified error = %v, want ErrEmailNotVerified", err)
			}
		})
	}
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := progress.NewKeyedMutex()
	ctx := context.Background()

	unlock, err := km.Lock(ctx, "k")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	other, err := km.Lock(ctx, "other")
	if err != nil {
		t.Fatalf("Lock(other) error = %v", err)
	}
	other()

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := km.Lock(waitCtx, "k"); err == nil {
		t.Fatal("second Lock() on held key should wait until ctx is done")
	}

	unlock()
	unlock() // releasing twice is a no-op

	again, err := km.Lock(ctx, "k")
	if err != nil {
		t.Fatalf("Lock() after release error = %v", err)
	}
	again()
}

func ExampleEngine_RecordContentProgress() {
	ctx := context.Background()
	repo := catalog.NewMemoryRepository()
	_, _ = repo.CreateModule(ctx, catalog.Module{ID: "m", Title: "Intro", Order: 1, IsActive: true})
	_, _ = repo.CreateChapter(ctx, catalog.Chapter{ID: "c", ModuleID: "m", Title: "One", Order: 1, IsActive: true})
	_, _ = repo.CreateContent(ctx, catalog.Content{ID: "v", ChapterID: "c", Type: catalog.ContentVideo, URL: "v.mp4", Duration: 600, IsActive: true})

	e := progress.NewEngine(progress.EngineConfig{Catalog: repo})
	u, _ := e.RecordContentProgress(ctx, progress.Learner{ID: "u", EmailVerified: true}, "v", 300)
	fmt.Println(u.ProgressPercent, u.IsCompleted)
	// Output: 50 false
}

// recordingLocker remembers every key it was asked to lock.
type recordingLocker struct {
	progress.Locker

	mu   sync.Mutex
	keys []string
}

func (r *recordingLocker) Lock(ctx context.Context, key string) (func(), error) {
	r.mu.Lock()
	r.keys = append(r.keys, key)
	r.mu.Unlock()
	return r.Locker.Lock(ctx, key)
}

func TestEngine_ContentAndQuizShareModuleLock(t *testing.T) {
	f := newFixture(t)
	f.addModule(t, "a", 1, chapterSpec{id: "a1", quiz: fourQuestionQuiz("qa", 75)}, chapterSpec{id: "a2"})
	locker := &recordingLocker{Locker: progress.NewKeyedMutex()}
	gw := notify.NewGateway()
	gw.Register("inbox", f.inbox)
	engine := progress.NewEngine(progress.EngineConfig{
		Catalog:  f.repo,
		Store:    f.store,
		Notifier: gw,
		Locker:   locker,
	})
	ctx := context.Background()

	for _, ch := range []string{"a1", "a2"} {
		if _, err := engine.RecordContentProgress(ctx, learner, contentID(ch), 600); err != nil {
			t.Fatalf("RecordContentProgress(%s) error = %v", ch, err)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := engine.RecordContentProgress(ctx, learner, contentID("a2"), 600)
		errs <- err
	}()
	go func() {
		defer wg.Done()
		_, err := engine.SubmitQuiz(ctx, learner, "qa", allCorrect())
		errs <- err
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent write error = %v", err)
		}
	}

	locker.mu.Lock()
	keys := append([]string{}, locker.keys...)
	locker.mu.Unlock()
	if len(keys) != 4 {
		t.Fatalf("locked %d times, want 4: %v", len(keys), keys)
	}
	for _, k := range keys[1:] {
		if k != keys[0] {
			t.Errorf("content and quiz writes locked different keys: %v", keys)
			break
		}
	}

	completed := 0
	for _, n := range f.inbox.Delivered() {
		if n.Kind == notify.KindModuleCompleted {
			completed++
		}
	}
	if completed != 1 {
		t.Errorf("ModuleCompleted notifications = %d, want 1", completed)
	}
}
