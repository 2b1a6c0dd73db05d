package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/p-n-ai/pai-academy/internal/catalog"
	"github.com/p-n-ai/pai-academy/internal/notify"
)

// ProgressUpdate is the learner-visible result of a watch-time sample.
type ProgressUpdate struct {
	ContentID        string     `json:"contentId"`
	WatchTime        float64    `json:"watchTime"`
	IsCompleted      bool       `json:"isCompleted"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	ProgressPercent  int        `json:"progressPercent"`
	ChapterCompleted bool       `json:"chapterCompleted"`
	ModuleCompleted  bool       `json:"moduleCompleted"`
}

// ContentView is a gated content read: the item plus the learner's progress.
type ContentView struct {
	Content  catalog.Content `json:"content"`
	Progress ProgressUpdate  `json:"progress"`
	QuizID   string          `json:"quizId,omitempty"`
}

// cascadeResult reports which levels flipped to completed in this call.
type cascadeResult struct {
	chapterCompleted bool
	moduleCompleted  bool
	pending          []notify.Notification
}

// ContentDetail returns an unlocked content item with the learner's progress.
// A missing or inactive item is catalog.ErrNotFound; a locked one is ErrLocked.
func (e *Engine) ContentDetail(ctx context.Context, l Learner, contentID string) (ContentView, error) {
	if err := authorize(l); err != nil {
		return ContentView{}, err
	}
	content, err := e.activeContent(ctx, contentID)
	if err != nil {
		return ContentView{}, err
	}
	ok, err := e.contentUnlocked(ctx, e.store, l.ID, content)
	if err != nil {
		return ContentView{}, err
	}
	if !ok {
		return ContentView{}, ErrLocked
	}

	p, _, err := e.store.GetContentProgress(ctx, l.ID, contentID)
	if err != nil {
		return ContentView{}, fmt.Errorf("get content progress: %w", err)
	}

	view := ContentView{
		Content: content,
		Progress: ProgressUpdate{
			ContentID:       content.ID,
			WatchTime:       p.WatchTime,
			IsCompleted:     p.IsCompleted,
			CompletedAt:     p.CompletedAt,
			ProgressPercent: percent(p.WatchTime, content.Duration),
		},
	}
	quiz, err := e.catalog.QuizForChapter(ctx, content.ChapterID)
	switch {
	case err == nil:
		view.QuizID = quiz.ID
	case !errors.Is(err, catalog.ErrNotFound):
		return ContentView{}, fmt.Errorf("get quiz: %w", err)
	}
	return view, nil
}

// RecordContentProgress applies a watch-time sample and cascades completion
// to the chapter and module. Watch time never decreases and completion is
// never undone. The whole cascade commits atomically.
func (e *Engine) RecordContentProgress(ctx context.Context, l Learner, contentID string, watchTime float64) (ProgressUpdate, error) {
	if err := authorize(l); err != nil {
		return ProgressUpdate{}, err
	}
	if math.IsNaN(watchTime) || math.IsInf(watchTime, 0) || watchTime < 0 {
		return ProgressUpdate{}, catalog.Invalid("watchTime", "must be a non-negative number")
	}

	content, err := e.activeContent(ctx, contentID)
	if err != nil {
		return ProgressUpdate{}, err
	}
	ok, err := e.contentUnlocked(ctx, e.store, l.ID, content)
	if err != nil {
		return ProgressUpdate{}, err
	}
	if !ok {
		return ProgressUpdate{}, ErrLocked
	}

	unlock, err := e.lockCascade(ctx, l.ID, content.ChapterID)
	if err != nil {
		return ProgressUpdate{}, fmt.Errorf("lock content progress: %w", err)
	}
	defer unlock()

	now := e.timestamp()
	var (
		update  ProgressUpdate
		cascade cascadeResult
	)
	err = e.store.WithTx(ctx, func(tx Store) error {
		next := ContentProgress{
			UserID:    l.ID,
			ContentID: contentID,
			WatchTime: watchTime,
			UpdatedAt: now,
		}
		prev, found, err := tx.GetContentProgress(ctx, l.ID, contentID)
		if err != nil {
			return fmt.Errorf("get content progress: %w", err)
		}
		if found {
			next = mergeContent(prev, next)
		}
		if !next.IsCompleted && next.WatchTime >= content.Duration {
			next.IsCompleted = true
			next.CompletedAt = &now
		}

		saved, err := tx.SaveContentProgress(ctx, next)
		if err != nil {
			return fmt.Errorf("save content progress: %w", err)
		}
		update = ProgressUpdate{
			ContentID:       contentID,
			WatchTime:       saved.WatchTime,
			IsCompleted:     saved.IsCompleted,
			CompletedAt:     saved.CompletedAt,
			ProgressPercent: percent(saved.WatchTime, content.Duration),
		}
		if !saved.IsCompleted {
			return nil
		}

		cascade, err = e.cascade(ctx, tx, l.ID, content.ChapterID, now)
		return err
	})
	if err != nil {
		return ProgressUpdate{}, err
	}

	update.ChapterCompleted = cascade.chapterCompleted
	update.ModuleCompleted = cascade.moduleCompleted
	if update.ModuleCompleted {
		slog.Info("module completed", "user_id", l.ID, "content_id", contentID)
	}
	e.dispatch(ctx, cascade.pending)
	return update, nil
}

// cascade re-evaluates the chapter and, if it is validated, the module. Rows
// already marked completed are left alone.
func (e *Engine) cascade(ctx context.Context, tx Store, userID, chapterID string, now time.Time) (cascadeResult, error) {
	var res cascadeResult

	chapter, err := e.catalog.GetChapter(ctx, chapterID)
	if err != nil {
		return res, fmt.Errorf("get chapter: %w", err)
	}

	cp, _, err := tx.GetChapterProgress(ctx, userID, chapterID)
	if err != nil {
		return res, fmt.Errorf("get chapter progress: %w", err)
	}
	if !cp.IsCompleted {
		validated, err := e.chapterValidated(ctx, tx, userID, chapter)
		if err != nil || !validated {
			return res, err
		}
		if err := tx.SaveChapterProgress(ctx, ChapterProgress{
			UserID:      userID,
			ChapterID:   chapterID,
			IsCompleted: true,
			CompletedAt: &now,
		}); err != nil {
			return res, fmt.Errorf("save chapter progress: %w", err)
		}
		res.chapterCompleted = true
	}

	mp, _, err := tx.GetModuleProgress(ctx, userID, chapter.ModuleID)
	if err != nil {
		return res, fmt.Errorf("get module progress: %w", err)
	}
	if mp.IsCompleted {
		return res, nil
	}
	done, err := e.moduleValidated(ctx, tx, userID, chapter.ModuleID)
	if err != nil || !done {
		return res, err
	}
	if err := tx.SaveModuleProgress(ctx, ModuleProgress{
		UserID:      userID,
		ModuleID:    chapter.ModuleID,
		IsCompleted: true,
		CompletedAt: &now,
	}); err != nil {
		return res, fmt.Errorf("save module progress: %w", err)
	}
	res.moduleCompleted = true

	module, err := e.catalog.GetModule(ctx, chapter.ModuleID)
	if err != nil {
		return res, fmt.Errorf("get module: %w", err)
	}
	res.pending = append(res.pending, notify.ModuleCompleted(userID, module.ID, module.Title))
	return res, nil
}

// chapterValidated: every active content item completed and, when the chapter
// has a quiz, at least one passing result. A chapter without active content
// is never validated.
func (e *Engine) chapterValidated(ctx context.Context, s Store, userID string, chapter catalog.Chapter) (bool, error) {
	contents, err := e.catalog.ActiveContents(ctx, chapter.ID)
	if err != nil {
		return false, fmt.Errorf("list contents: %w", err)
	}
	if len(contents) == 0 {
		return false, nil
	}
	for _, c := range contents {
		p, _, err := s.GetContentProgress(ctx, userID, c.ID)
		if err != nil {
			return false, fmt.Errorf("get content progress: %w", err)
		}
		if !p.IsCompleted {
			return false, nil
		}
	}

	quiz, err := e.catalog.QuizForChapter(ctx, chapter.ID)
	if errors.Is(err, catalog.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("get quiz: %w", err)
	}
	passed, err := s.HasPassedQuiz(ctx, userID, quiz.ID)
	if err != nil {
		return false, fmt.Errorf("load quiz results: %w", err)
	}
	return passed, nil
}

// moduleValidated: every active chapter has a completed ChapterProgress row.
func (e *Engine) moduleValidated(ctx context.Context, s Store, userID, moduleID string) (bool, error) {
	chapters, err := e.catalog.ActiveChapters(ctx, moduleID)
	if err != nil {
		return false, fmt.Errorf("list chapters: %w", err)
	}
	if len(chapters) == 0 {
		return false, nil
	}
	for _, ch := range chapters {
		p, _, err := s.GetChapterProgress(ctx, userID, ch.ID)
		if err != nil {
			return false, fmt.Errorf("get chapter progress: %w", err)
		}
		if !p.IsCompleted {
			return false, nil
		}
	}
	return true, nil
}

func (e *Engine) activeContent(ctx context.Context, contentID string) (catalog.Content, error) {
	content, err := e.catalog.GetContent(ctx, contentID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.Content{}, fmt.Errorf("content %s: %w", contentID, catalog.ErrNotFound)
		}
		return catalog.Content{}, fmt.Errorf("get content: %w", err)
	}
	if !content.IsActive {
		return catalog.Content{}, fmt.Errorf("content %s: %w", contentID, catalog.ErrNotFound)
	}
	return content, nil
}

// percent is min(100, round(watchTime/duration*100)).
func percent(watchTime, duration float64) int {
	if duration <= 0 {
		return 0
	}
	p := math.Round(watchTime / duration * 100)
	if p >= 100 {
		return 100
	}
	return int(p)
}
