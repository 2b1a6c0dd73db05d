package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/p-n-ai/pai-academy/internal/catalog"
)

// ModuleState is a catalog module annotated for one learner.
type ModuleState struct {
	catalog.Module
	Unlocked  bool           `json:"unlocked"`
	Completed bool           `json:"completed"`
	Chapters  []ChapterState `json:"chapters"`
}

// ChapterState is a catalog chapter annotated for one learner.
type ChapterState struct {
	catalog.Chapter
	Unlocked   bool          `json:"unlocked"`
	Completed  bool          `json:"completed"`
	Content    *ContentState `json:"content,omitempty"`
	QuizID     string        `json:"quizId,omitempty"`
	QuizPassed bool          `json:"quizPassed"`
}

// ContentState is a content item annotated for one learner. The URL is
// withheld while the item is locked.
type ContentState struct {
	catalog.Content
	Unlocked        bool    `json:"unlocked"`
	Completed       bool    `json:"completed"`
	WatchTime       float64 `json:"watchTime"`
	ProgressPercent int     `json:"progressPercent"`
}

// IsModuleUnlocked reports whether the learner may open the module. A module
// is unlocked when every active module before it is completed.
func (e *Engine) IsModuleUnlocked(ctx context.Context, l Learner, moduleID string) (bool, error) {
	if l.Anonymous() {
		return false, nil
	}
	if !l.EmailVerified {
		return false, ErrEmailNotVerified
	}
	return e.moduleUnlocked(ctx, e.store, l.ID, moduleID)
}

// IsChapterUnlocked reports whether the learner may open the chapter: its
// module is unlocked and every earlier active chapter is completed.
func (e *Engine) IsChapterUnlocked(ctx context.Context, l Learner, chapterID string) (bool, error) {
	if l.Anonymous() {
		return false, nil
	}
	if !l.EmailVerified {
		return false, ErrEmailNotVerified
	}
	return e.chapterUnlocked(ctx, e.store, l.ID, chapterID)
}

// IsContentUnlocked reports whether the learner may play the content. With
// one content item per chapter this follows the chapter.
func (e *Engine) IsContentUnlocked(ctx context.Context, l Learner, content catalog.Content) (bool, error) {
	if l.Anonymous() {
		return false, nil
	}
	if !l.EmailVerified {
		return false, ErrEmailNotVerified
	}
	return e.contentUnlocked(ctx, e.store, l.ID, content)
}

func (e *Engine) moduleUnlocked(ctx context.Context, s Store, userID, moduleID string) (bool, error) {
	modules, err := e.catalog.ActiveModules(ctx)
	if err != nil {
		return false, fmt.Errorf("list modules: %w", err)
	}
	progress, err := s.ListModuleProgress(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load module progress: %w", err)
	}

	for _, m := range modules {
		if m.ID == moduleID {
			return true, nil
		}
		if !progress[m.ID].IsCompleted {
			return false, nil
		}
	}
	return false, nil
}

func (e *Engine) chapterUnlocked(ctx context.Context, s Store, userID, chapterID string) (bool, error) {
	chapter, err := e.catalog.GetChapter(ctx, chapterID)
	if errors.Is(err, catalog.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get chapter: %w", err)
	}
	if !chapter.IsActive {
		return false, nil
	}

	ok, err := e.moduleUnlocked(ctx, s, userID, chapter.ModuleID)
	if err != nil || !ok {
		return false, err
	}

	chapters, err := e.catalog.ActiveChapters(ctx, chapter.ModuleID)
	if err != nil {
		return false, fmt.Errorf("list chapters: %w", err)
	}
	progress, err := s.ListChapterProgress(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load chapter progress: %w", err)
	}

	for _, c := range chapters {
		if c.ID == chapterID {
			return true, nil
		}
		if !progress[c.ID].IsCompleted {
			return false, nil
		}
	}
	return false, nil
}

func (e *Engine) contentUnlocked(ctx context.Context, s Store, userID string, content catalog.Content) (bool, error) {
	if !content.IsActive {
		return false, nil
	}
	return e.chapterUnlocked(ctx, s, userID, content.ChapterID)
}

// Catalog returns every active module with its chapters and content, each
// annotated with the learner's unlock and completion state. Anonymous
// visitors see the structure with everything locked.
func (e *Engine) Catalog(ctx context.Context, l Learner) ([]ModuleState, error) {
	if !l.Anonymous() && !l.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	modules, err := e.catalog.ActiveModules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}

	var (
		moduleProgress  = map[string]ModuleProgress{}
		chapterProgress = map[string]ChapterProgress{}
		contentProgress = map[string]ContentProgress{}
	)
	if !l.Anonymous() {
		if moduleProgress, err = e.store.ListModuleProgress(ctx, l.ID); err != nil {
			return nil, fmt.Errorf("load module progress: %w", err)
		}
		if chapterProgress, err = e.store.ListChapterProgress(ctx, l.ID); err != nil {
			return nil, fmt.Errorf("load chapter progress: %w", err)
		}
		if contentProgress, err = e.store.ListContentProgress(ctx, l.ID); err != nil {
			return nil, fmt.Errorf("load content progress: %w", err)
		}
	}

	out := make([]ModuleState, 0, len(modules))
	prefixDone := !l.Anonymous()
	for _, m := range modules {
		ms := ModuleState{
			Module:    m,
			Unlocked:  prefixDone,
			Completed: moduleProgress[m.ID].IsCompleted,
		}

		chapters, err := e.catalog.ActiveChapters(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("list chapters: %w", err)
		}
		chapterPrefix := ms.Unlocked
		for _, ch := range chapters {
			cs := ChapterState{
				Chapter:   ch,
				Unlocked:  chapterPrefix,
				Completed: chapterProgress[ch.ID].IsCompleted,
			}
			if cs.Content, err = e.contentState(ctx, ch.ID, cs.Unlocked, contentProgress); err != nil {
				return nil, err
			}
			quiz, err := e.catalog.QuizForChapter(ctx, ch.ID)
			switch {
			case errors.Is(err, catalog.ErrNotFound):
			case err != nil:
				return nil, fmt.Errorf("get quiz: %w", err)
			default:
				cs.QuizID = quiz.ID
				if !l.Anonymous() {
					if cs.QuizPassed, err = e.store.HasPassedQuiz(ctx, l.ID, quiz.ID); err != nil {
						return nil, fmt.Errorf("load quiz results: %w", err)
					}
				}
			}
			ms.Chapters = append(ms.Chapters, cs)
			chapterPrefix = chapterPrefix && cs.Completed
		}

		out = append(out, ms)
		prefixDone = prefixDone && ms.Completed
	}
	return out, nil
}

func (e *Engine) contentState(ctx context.Context, chapterID string, unlocked bool, progress map[string]ContentProgress) (*ContentState, error) {
	contents, err := e.catalog.ActiveContents(ctx, chapterID)
	if err != nil {
		return nil, fmt.Errorf("list contents: %w", err)
	}
	if len(contents) == 0 {
		return nil, nil
	}

	c := contents[0]
	p := progress[c.ID]
	cs := &ContentState{
		Content:         c,
		Unlocked:        unlocked,
		Completed:       p.IsCompleted,
		WatchTime:       p.WatchTime,
		ProgressPercent: percent(p.WatchTime, c.Duration),
	}
	if !unlocked {
		cs.URL = ""
	}
	return cs, nil
}
