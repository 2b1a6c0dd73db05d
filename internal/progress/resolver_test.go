package progress_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/p-n-ai/pai-academy/internal/catalog"
	"github.com/p-n-ai/pai-academy/internal/progress"
)

func TestEngine_FirstModuleAlwaysUnlocked(t *testing.T) {
	f := newFixture(t)
	f.addModule(t, "b", 2, chapterSpec{id: "b1"})
	f.addModule(t, "a", 1, chapterSpec{id: "a1"}, chapterSpec{id: "a2"})
	ctx := context.Background()

	tests := []struct {
		name string
		got  func() (bool, error)
		want bool
	}{
		{"first module", func() (bool, error) { return f.engine.IsModuleUnlocked(ctx, learner, "a") }, true},
		{"second module", func() (bool, error) { return f.engine.IsModuleUnlocked(ctx, learner, "b") }, false},
		{"first chapter", func() (bool, error) { return f.engine.IsChapterUnlocked(ctx, learner, "a1") }, true},
		{"second chapter", func() (bool, error) { return f.engine.IsChapterUnlocked(ctx, learner, "a2") }, false},
		{"chapter of locked module", func() (bool, error) { return f.engine.IsChapterUnlocked(ctx, learner, "b1") }, false},
		{"unknown module", func() (bool, error) { return f.engine.IsModuleUnlocked(ctx, learner, "zzz") }, false},
		{"unknown chapter", func() (bool, error) { return f.engine.IsChapterUnlocked(ctx, learner, "zzz") }, false},
		{"anonymous", func() (bool, error) { return f.engine.IsModuleUnlocked(ctx, anonymous, "a") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.got()
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if got != tt.want {
				t.Errorf("unlocked = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEngine_UnverifiedLearnerFailsBeforeUnlockLogic(t *testing.T) {
	f := newFixture(t)
	f.addModule(t, "a", 1, chapterSpec{id: "a1"})
	ctx := context.Background()

	if _, err := f.engine.IsModuleUnlocked(ctx, unverified, "a"); !errors.Is(err, progress.ErrEmailNotVerified) {
		t.Errorf("IsModuleUnlocked() error = %v, want ErrEmailNotVerified", err)
	}
	if _, err := f.engine.Catalog(ctx, unverified); !errors.Is(err, progress.ErrEmailNotVerified) {
		t.Errorf("Catalog() error = %v, want ErrEmailNotVerified", err)
	}
	if !errors.Is(progress.ErrEmailNotVerified, progress.ErrGate) {
		t.Error("ErrEmailNotVerified should be a gate error")
	}
}

func TestEngine_ContentFollowsChapter(t *testing.T) {
	f := newFixture(t)
	f.addModule(t, "a", 1, chapterSpec{id: "a1"}, chapterSpec{id: "a2"})
	ctx := context.Background()

	first, _ := f.repo.GetContent(ctx, contentID("a1"))
	second, _ := f.repo.GetContent(ctx, contentID("a2"))

	if ok, _ := f.engine.IsContentUnlocked(ctx, learner, first); !ok {
		t.Error("content of first chapter should be unlocked")
	}
	if ok, _ := f.engine.IsContentUnlocked(ctx, learner, second); ok {
		t.Error("content of second chapter should be locked")
	}

	f.finish(t, learner, "a1")
	if ok, _ := f.engine.IsContentUnlocked(ctx, learner, second); !ok {
		t.Error("content of second chapter should unlock after the first chapter completes")
	}

	inactive := second
	inactive.IsActive = false
	if ok, _ := f.engine.IsContentUnlocked(ctx, learner, inactive); ok {
		t.Error("inactive content should never be unlocked")
	}
}

func TestEngine_CatalogAnonymousSeesEverythingLocked(t *testing.T) {
	f := newFixture(t)
	f.addModule(t, "a", 1, chapterSpec{id: "a1", quiz: fourQuestionQuiz("qa", 75)})

	mods, err := f.engine.Catalog(context.Background(), anonymous)
	if err != nil {
		t.Fatalf("Catalog() error = %v", err)
	}
	if len(mods) != 1 || mods[0].Unlocked {
		t.Fatalf("Catalog() = %+v, want one locked module", mods)
	}
	ch := mods[0].Chapters[0]
	if ch.Unlocked || ch.Content == nil || ch.Content.Unlocked {
		t.Errorf("chapter = %+v, want locked with locked content", ch)
	}
	if ch.Content.URL != "" {
		t.Errorf("locked content URL = %q, want hidden", ch.Content.URL)
	}
	if ch.QuizID != "qa" {
		t.Errorf("QuizID = %q, want qa", ch.QuizID)
	}
}

func TestEngine_CatalogReflectsProgress(t *testing.T) {
	f := newFixture(t)
	f.addModule(t, "a", 1, chapterSpec{id: "a1", duration: 200}, chapterSpec{id: "a2"})
	f.addModule(t, "b", 2, chapterSpec{id: "b1"})
	ctx := context.Background()

	f.finish(t, learner, "a1")
	if _, err := f.engine.RecordContentProgress(ctx, learner, contentID("a2"), 150); err != nil {
		t.Fatalf("RecordContentProgress() error = %v", err)
	}

	mods, err := f.engine.Catalog(ctx, learner)
	if err != nil {
		t.Fatalf("Catalog() error = %v", err)
	}
	a, b := mods[0], mods[1]
	if !a.Unlocked || a.Completed {
		t.Errorf("module a = unlocked %v completed %v, want unlocked and incomplete", a.Unlocked, a.Completed)
	}
	if !a.Chapters[0].Completed || !a.Chapters[1].Unlocked {
		t.Errorf("chapters = %+v", a.Chapters)
	}
	if got := a.Chapters[1].Content.ProgressPercent; got != 25 {
		t.Errorf("ProgressPercent = %d, want 25", got)
	}
	if b.Unlocked || b.Chapters[0].Unlocked {
		t.Error("module b should stay locked")
	}
}

// Over random catalogs and random (possibly inconsistent) progress rows, an
// unlocked module always has every earlier module completed, and an unlocked
// chapter has every earlier chapter of its module completed.
func TestEngine_LinearUnlockInvariant(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))

	for round := range 50 {
		f := newFixture(t)
		ctx := context.Background()

		numModules := 1 + rng.IntN(5)
		type node struct {
			id       string
			chapters []string
		}
		var modules []node
		for m := range numModules {
			n := node{id: fmt.Sprintf("m%d", m)}
			var specs []chapterSpec
			for c := range 1 + rng.IntN(3) {
				id := fmt.Sprintf("m%d-c%d", m, c)
				n.chapters = append(n.chapters, id)
				specs = append(specs, chapterSpec{id: id})
			}
			f.addModule(t, n.id, m+1, specs...)
			modules = append(modules, n)
		}

		for _, m := range modules {
			if rng.IntN(2) == 0 {
				_ = f.store.SaveModuleProgress(ctx, progress.ModuleProgress{UserID: learner.ID, ModuleID: m.id, IsCompleted: true})
			}
			for _, c := range m.chapters {
				if rng.IntN(2) == 0 {
					_ = f.store.SaveChapterProgress(ctx, progress.ChapterProgress{UserID: learner.ID, ChapterID: c, IsCompleted: true})
				}
			}
		}

		moduleDone, _ := f.store.ListModuleProgress(ctx, learner.ID)
		chapterDone, _ := f.store.ListChapterProgress(ctx, learner.ID)
		states, err := f.engine.Catalog(ctx, learner)
		if err != nil {
			t.Fatalf("round %d: Catalog() error = %v", round, err)
		}

		for i, m := range modules {
			unlocked, err := f.engine.IsModuleUnlocked(ctx, learner, m.id)
			if err != nil {
				t.Fatalf("round %d: IsModuleUnlocked() error = %v", round, err)
			}
			if unlocked != states[i].Unlocked {
				t.Errorf("round %d: module %s resolver=%v catalog=%v", round, m.id, unlocked, states[i].Unlocked)
			}
			if unlocked {
				for _, prev := range modules[:i] {
					if !moduleDone[prev.id].IsCompleted {
						t.Errorf("round %d: module %s unlocked but %s not completed", round, m.id, prev.id)
					}
				}
			}

			for j, c := range m.chapters {
				ok, err := f.engine.IsChapterUnlocked(ctx, learner, c)
				if err != nil {
					t.Fatalf("round %d: IsChapterUnlocked() error = %v", round, err)
				}
				if ok != states[i].Chapters[j].Unlocked {
					t.Errorf("round %d: chapter %s resolver=%v catalog=%v", round, c, ok, states[i].Chapters[j].Unlocked)
				}
				if ok && !unlocked {
					t.Errorf("round %d: chapter %s unlocked inside locked module", round, c)
				}
				if ok {
					for _, prev := range m.chapters[:j] {
						if !chapterDone[prev].IsCompleted {
							t.Errorf("round %d: chapter %s unlocked but %s not completed", round, c, prev)
						}
					}
				}
			}
		}
	}
}

func TestEngine_InactiveNodesAreSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addModule(t, "a", 1, chapterSpec{id: "a1"})
	if _, err := f.repo.CreateModule(ctx, catalog.Module{ID: "hidden", Title: "Hidden", Order: 2, IsActive: false}); err != nil {
		t.Fatalf("CreateModule() error = %v", err)
	}
	f.addModule(t, "b", 3, chapterSpec{id: "b1"})

	f.finish(t, learner, "a1")

	if ok, _ := f.engine.IsModuleUnlocked(ctx, learner, "b"); !ok {
		t.Error("module b should unlock after a; the inactive module in between does not gate")
	}
	if ok, _ := f.engine.IsModuleUnlocked(ctx, learner, "hidden"); ok {
		t.Error("inactive module should never be unlocked")
	}
}
