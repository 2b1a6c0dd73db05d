package progress_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/p-n-ai/pai-academy/internal/catalog"
	"github.com/p-n-ai/pai-academy/internal/platform/database/databasetest"
	"github.com/p-n-ai/pai-academy/internal/progress"
)

func TestMemoryStore(t *testing.T) {
	testStore(t, progress.NewMemoryStore())
}

func TestPostgresStore(t *testing.T) {
	db := databasetest.New(t)
	ctx := t.Context()

	repo, err := catalog.NewPostgresRepository(db.Pool)
	if err != nil {
		t.Fatalf("NewPostgresRepository() error = %v", err)
	}
	seedStoreCatalog(t, ctx, repo)

	store, err := progress.NewPostgresStore(db.Pool)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	testStore(t, store)
}

func TestNewPostgresStore_NilPool(t *testing.T) {
	if _, err := progress.NewPostgresStore(nil); err == nil {
		t.Error("NewPostgresStore(nil) should error")
	}
}

// seedStoreCatalog creates the rows progress tables reference: module m1,
// chapter c1, content v1 and quiz q1.
func seedStoreCatalog(t *testing.T, ctx context.Context, repo catalog.Repository) {
	t.Helper()
	if _, err := repo.CreateModule(ctx, catalog.Module{ID: "m1", Title: "One", Order: 1, IsActive: true}); err != nil {
		t.Fatalf("CreateModule() error = %v", err)
	}
	if _, err := repo.CreateChapter(ctx, catalog.Chapter{ID: "c1", ModuleID: "m1", Title: "Intro", Order: 1, IsActive: true}); err != nil {
		t.Fatalf("CreateChapter() error = %v", err)
	}
	if _, err := repo.CreateContent(ctx, catalog.Content{ID: "v1", ChapterID: "c1", Type: catalog.ContentVideo, URL: "v1.mp4", Duration: 600, IsActive: true}); err != nil {
		t.Fatalf("CreateContent() error = %v", err)
	}
	quiz := *fourQuestionQuiz("q1", 75)
	quiz.ChapterID = "c1"
	if _, err := repo.CreateQuiz(ctx, quiz); err != nil {
		t.Fatalf("CreateQuiz() error = %v", err)
	}
}

func testStore(t *testing.T, store progress.Store) {
	ctx := context.Background()
	at := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	t.Run("content progress keeps max watch time and completion", func(t *testing.T) {
		if _, found, err := store.GetContentProgress(ctx, "u1", "v1"); err != nil || found {
			t.Fatalf("GetContentProgress() on empty store = found %v, err %v", found, err)
		}

		saved, err := store.SaveContentProgress(ctx, progress.ContentProgress{
			UserID: "u1", ContentID: "v1", WatchTime: 600, IsCompleted: true, CompletedAt: &at, UpdatedAt: at,
		})
		if err != nil {
			t.Fatalf("SaveContentProgress() error = %v", err)
		}
		if !saved.IsCompleted || saved.WatchTime != 600 {
			t.Fatalf("saved = %+v", saved)
		}

		later := at.Add(time.Hour)
		saved, err = store.SaveContentProgress(ctx, progress.ContentProgress{
			UserID: "u1", ContentID: "v1", WatchTime: 100, UpdatedAt: later,
		})
		if err != nil {
			t.Fatalf("SaveContentProgress() error = %v", err)
		}
		if saved.WatchTime != 600 || !saved.IsCompleted || saved.CompletedAt == nil || !saved.CompletedAt.Equal(at) {
			t.Errorf("after lower sample = %+v, want 600 completed at %v", saved, at)
		}

		all, err := store.ListContentProgress(ctx, "u1")
		if err != nil {
			t.Fatalf("ListContentProgress() error = %v", err)
		}
		if len(all) != 1 || all["v1"].WatchTime != 600 {
			t.Errorf("ListContentProgress() = %+v", all)
		}
	})

	t.Run("chapter and module completion never reverts", func(t *testing.T) {
		if err := store.SaveChapterProgress(ctx, progress.ChapterProgress{UserID: "u1", ChapterID: "c1", IsCompleted: true, CompletedAt: &at}); err != nil {
			t.Fatalf("SaveChapterProgress() error = %v", err)
		}
		if err := store.SaveChapterProgress(ctx, progress.ChapterProgress{UserID: "u1", ChapterID: "c1"}); err != nil {
			t.Fatalf("SaveChapterProgress() error = %v", err)
		}
		cp, found, err := store.GetChapterProgress(ctx, "u1", "c1")
		if err != nil || !found || !cp.IsCompleted {
			t.Errorf("GetChapterProgress() = %+v found %v err %v, want completed", cp, found, err)
		}

		if err := store.SaveModuleProgress(ctx, progress.ModuleProgress{UserID: "u1", ModuleID: "m1", IsCompleted: true, CompletedAt: &at}); err != nil {
			t.Fatalf("SaveModuleProgress() error = %v", err)
		}
		if err := store.SaveModuleProgress(ctx, progress.ModuleProgress{UserID: "u1", ModuleID: "m1"}); err != nil {
			t.Fatalf("SaveModuleProgress() error = %v", err)
		}
		mods, err := store.ListModuleProgress(ctx, "u1")
		if err != nil || !mods["m1"].IsCompleted {
			t.Errorf("ListModuleProgress() = %+v err %v, want m1 completed", mods, err)
		}
		chapters, _ := store.ListChapterProgress(ctx, "u1")
		if !chapters["c1"].IsCompleted {
			t.Errorf("ListChapterProgress() = %+v", chapters)
		}
	})

	t.Run("quiz results are append only", func(t *testing.T) {
		if passed, _ := store.HasPassedQuiz(ctx, "u1", "q1"); passed {
			t.Fatal("HasPassedQuiz() should be false before any attempt")
		}
		_, err := store.AddQuizResult(ctx, progress.QuizResult{
			UserID: "u1", QuizID: "q1", Score: 50, Answers: map[string]catalog.Answer{"q1": catalog.Choice(0)}, CreatedAt: at,
		})
		if err != nil {
			t.Fatalf("AddQuizResult() error = %v", err)
		}
		second, err := store.AddQuizResult(ctx, progress.QuizResult{
			UserID: "u1", QuizID: "q1", Score: 100, Passed: true, Answers: allCorrect(), CreatedAt: at.Add(time.Minute),
		})
		if err != nil {
			t.Fatalf("AddQuizResult() error = %v", err)
		}

		results, err := store.ListQuizResults(ctx, "u1", "q1")
		if err != nil {
			t.Fatalf("ListQuizResults() error = %v", err)
		}
		if len(results) != 2 || results[0].ID != second.ID {
			t.Fatalf("ListQuizResults() = %+v, want newest first", results)
		}
		if !results[0].Answers["q2"].Equal(catalog.Bool(true)) {
			t.Errorf("answers did not round-trip: %+v", results[0].Answers)
		}
		if passed, _ := store.HasPassedQuiz(ctx, "u1", "q1"); !passed {
			t.Error("HasPassedQuiz() should be true after a passing attempt")
		}
		if passed, _ := store.HasPassedQuiz(ctx, "u2", "q1"); passed {
			t.Error("HasPassedQuiz() must be per learner")
		}
	})

	t.Run("certificates are unique per tier", func(t *testing.T) {
		cert, err := store.CreateCertificate(ctx, progress.Certificate{
			UserID: "u1", Tier: progress.Bronze, ModuleID: "m1", CertificateNumber: "CERT-BRONZE-U1-1", IssuedAt: at,
		})
		if err != nil {
			t.Fatalf("CreateCertificate() error = %v", err)
		}
		if cert.ID == "" {
			t.Error("certificate should get an id")
		}

		_, err = store.CreateCertificate(ctx, progress.Certificate{
			UserID: "u1", Tier: progress.Bronze, CertificateNumber: "CERT-BRONZE-U1-2", IssuedAt: at,
		})
		if !errors.Is(err, progress.ErrAlreadyObtained) {
			t.Errorf("duplicate CreateCertificate() error = %v, want ErrAlreadyObtained", err)
		}

		certs, err := store.ListCertificates(ctx, "u1")
		if err != nil || len(certs) != 1 || certs[0].ModuleID != "m1" {
			t.Errorf("ListCertificates() = %+v err %v", certs, err)
		}
	})

	t.Run("WithTx rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := store.WithTx(ctx, func(tx progress.Store) error {
			if _, err := tx.SaveContentProgress(ctx, progress.ContentProgress{UserID: "u3", ContentID: "v1", WatchTime: 10, UpdatedAt: at}); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("WithTx() error = %v, want boom", err)
		}
		if _, found, _ := store.GetContentProgress(ctx, "u3", "v1"); found {
			t.Error("write inside a failed transaction should not persist")
		}

		err = store.WithTx(ctx, func(tx progress.Store) error {
			_, err := tx.SaveContentProgress(ctx, progress.ContentProgress{UserID: "u3", ContentID: "v1", WatchTime: 10, UpdatedAt: at})
			return err
		})
		if err != nil {
			t.Fatalf("WithTx() error = %v", err)
		}
		if _, found, _ := store.GetContentProgress(ctx, "u3", "v1"); !found {
			t.Error("write inside a committed transaction should persist")
		}
	})

	t.Run("summaries", func(t *testing.T) {
		sums, err := store.Summaries(ctx)
		if err != nil {
			t.Fatalf("Summaries() error = %v", err)
		}
		if len(sums) != 2 || sums[0].UserID != "u1" || sums[1].UserID != "u3" {
			t.Fatalf("Summaries() = %+v, want u1 and u3", sums)
		}
		u1 := sums[0]
		if u1.CompletedContents != 1 || u1.CompletedChapters != 1 || u1.CompletedModules != 1 {
			t.Errorf("u1 completions = %+v", u1)
		}
		if u1.QuizAttempts != 2 || u1.QuizzesPassed != 1 {
			t.Errorf("u1 quizzes = %d attempts, %d passed", u1.QuizAttempts, u1.QuizzesPassed)
		}
		if len(u1.Certificates) != 1 || u1.Certificates[0] != progress.Bronze {
			t.Errorf("u1 certificates = %v", u1.Certificates)
		}
		if u1.LastActivity == nil {
			t.Error("u1 LastActivity should be set")
		}
	})
}
