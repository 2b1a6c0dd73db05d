package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/p-n-ai/pai-academy/internal/catalog"
)

// QuizMode tells the client whether the quiz can be attempted or is shown
// for review with answers revealed.
type QuizMode string

const (
	QuizAttempt QuizMode = "attempt"
	QuizReview  QuizMode = "review"
)

// QuizView is a quiz projected for one learner.
type QuizView struct {
	Mode         QuizMode       `json:"mode"`
	QuizID       string         `json:"quizId"`
	ChapterID    string         `json:"chapterId"`
	Title        string         `json:"title"`
	PassingScore int            `json:"passingScore"`
	Questions    []QuestionView `json:"questions"`
	LastResult   *QuizResult    `json:"lastResult,omitempty"`
}

// QuestionView carries the answer key only in review mode.
type QuestionView struct {
	catalog.PublicQuestion
	CorrectAnswer *catalog.Answer `json:"correctAnswer,omitempty"`
	Explanation   string          `json:"explanation,omitempty"`
}

// QuizSubmission is the graded outcome of one attempt.
type QuizSubmission struct {
	ResultID         string           `json:"resultId"`
	Score            int              `json:"score"`
	Passed           bool             `json:"passed"`
	CorrectAnswers   int              `json:"correctAnswers"`
	TotalQuestions   int              `json:"totalQuestions"`
	Results          []QuestionResult `json:"results"`
	ChapterCompleted bool             `json:"chapterCompleted"`
	ModuleCompleted  bool             `json:"moduleCompleted"`
}

// QuestionResult is the per-question breakdown. UserAnswer is null when the
// question was left unanswered.
type QuestionResult struct {
	QuestionID    string         `json:"questionId"`
	UserAnswer    catalog.Answer `json:"userAnswer"`
	CorrectAnswer catalog.Answer `json:"correctAnswer"`
	IsCorrect     bool           `json:"isCorrect"`
	Explanation   string         `json:"explanation,omitempty"`
}

// GetQuizForAttempt returns the chapter's quiz once its content is finished.
// A learner who already passed gets the quiz in review mode.
func (e *Engine) GetQuizForAttempt(ctx context.Context, l Learner, chapterID string) (QuizView, error) {
	if err := authorize(l); err != nil {
		return QuizView{}, err
	}

	chapter, err := e.catalog.GetChapter(ctx, chapterID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return QuizView{}, fmt.Errorf("chapter %s: %w", chapterID, catalog.ErrNotFound)
		}
		return QuizView{}, fmt.Errorf("get chapter: %w", err)
	}
	if !chapter.IsActive {
		return QuizView{}, fmt.Errorf("chapter %s: %w", chapterID, catalog.ErrNotFound)
	}

	quiz, err := e.catalog.QuizForChapter(ctx, chapterID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return QuizView{}, fmt.Errorf("quiz for chapter %s: %w", chapterID, catalog.ErrNotFound)
		}
		return QuizView{}, fmt.Errorf("get quiz: %w", err)
	}

	if err := e.quizGate(ctx, l.ID, chapter.ID); err != nil {
		return QuizView{}, err
	}

	view := QuizView{
		Mode:         QuizAttempt,
		QuizID:       quiz.ID,
		ChapterID:    quiz.ChapterID,
		Title:        quiz.Title,
		PassingScore: quiz.PassingScore,
	}

	results, err := e.store.ListQuizResults(ctx, l.ID, quiz.ID)
	if err != nil {
		return QuizView{}, fmt.Errorf("load quiz results: %w", err)
	}
	if len(results) > 0 {
		view.LastResult = &results[0]
	}
	for _, r := range results {
		if r.Passed {
			view.Mode = QuizReview
			break
		}
	}

	view.Questions = make([]QuestionView, 0, len(quiz.Questions))
	for _, q := range quiz.Questions {
		qv := QuestionView{PublicQuestion: q.Public()}
		if view.Mode == QuizReview {
			answer := q.CorrectAnswer
			qv.CorrectAnswer = &answer
			qv.Explanation = q.Explanation
		}
		view.Questions = append(view.Questions, qv)
	}
	return view, nil
}

// SubmitQuiz grades an attempt, records it and, on a pass, cascades chapter
// and module completion. Answers are validated before anything is graded or
// stored. Every submission is a new result; a pass is never undone.
func (e *Engine) SubmitQuiz(ctx context.Context, l Learner, quizID string, answers map[string]catalog.Answer) (QuizSubmission, error) {
	if err := authorize(l); err != nil {
		return QuizSubmission{}, err
	}

	quiz, err := e.catalog.GetQuiz(ctx, quizID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return QuizSubmission{}, fmt.Errorf("quiz %s: %w", quizID, catalog.ErrNotFound)
		}
		return QuizSubmission{}, fmt.Errorf("get quiz: %w", err)
	}
	if err := ValidateAnswers(quiz, answers); err != nil {
		return QuizSubmission{}, err
	}
	chapter, err := e.catalog.GetChapter(ctx, quiz.ChapterID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return QuizSubmission{}, fmt.Errorf("chapter %s: %w", quiz.ChapterID, catalog.ErrNotFound)
		}
		return QuizSubmission{}, fmt.Errorf("get chapter: %w", err)
	}
	if !chapter.IsActive {
		return QuizSubmission{}, fmt.Errorf("chapter %s: %w", quiz.ChapterID, catalog.ErrNotFound)
	}
	if err := e.quizGate(ctx, l.ID, quiz.ChapterID); err != nil {
		return QuizSubmission{}, err
	}

	sub := Grade(quiz, answers)

	unlock, err := e.lockCascade(ctx, l.ID, quiz.ChapterID)
	if err != nil {
		return QuizSubmission{}, fmt.Errorf("lock quiz result: %w", err)
	}
	defer unlock()

	now := e.timestamp()
	var cascade cascadeResult
	err = e.store.WithTx(ctx, func(tx Store) error {
		stored, err := tx.AddQuizResult(ctx, QuizResult{
			UserID:    l.ID,
			QuizID:    quiz.ID,
			Score:     sub.Score,
			Passed:    sub.Passed,
			Answers:   answers,
			CreatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("add quiz result: %w", err)
		}
		sub.ResultID = stored.ID
		if !sub.Passed {
			return nil
		}
		cascade, err = e.cascade(ctx, tx, l.ID, quiz.ChapterID, now)
		return err
	})
	if err != nil {
		return QuizSubmission{}, err
	}

	sub.ChapterCompleted = cascade.chapterCompleted
	sub.ModuleCompleted = cascade.moduleCompleted
	slog.Info("quiz submitted",
		"user_id", l.ID,
		"quiz_id", quiz.ID,
		"score", sub.Score,
		"passed", sub.Passed,
	)
	e.dispatch(ctx, cascade.pending)
	return sub, nil
}

// quizGate requires the chapter to be unlocked and its content finished.
func (e *Engine) quizGate(ctx context.Context, userID, chapterID string) error {
	ok, err := e.chapterUnlocked(ctx, e.store, userID, chapterID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLocked
	}

	contents, err := e.catalog.ActiveContents(ctx, chapterID)
	if err != nil {
		return fmt.Errorf("list contents: %w", err)
	}
	remaining := 0
	for _, c := range contents {
		p, _, err := e.store.GetContentProgress(ctx, userID, c.ID)
		if err != nil {
			return fmt.Errorf("get content progress: %w", err)
		}
		if !p.IsCompleted {
			remaining++
		}
	}
	if remaining > 0 {
		return &ContentNotFinishedError{Remaining: remaining}
	}
	return nil
}

// ValidateAnswers rejects an empty submission, unknown question ids and
// answers of the wrong shape. Unanswered questions are allowed and grade as
// incorrect.
func ValidateAnswers(quiz catalog.Quiz, answers map[string]catalog.Answer) error {
	if len(answers) == 0 {
		return catalog.Invalid("answers", "must map question ids to answers")
	}

	var fields []catalog.FieldError
	for id, a := range answers {
		q, ok := quiz.Question(id)
		if !ok {
			fields = append(fields, catalog.FieldError{Field: "answers." + id, Error: "unknown question"})
			continue
		}
		if !a.IsSet() {
			continue
		}
		switch q.Type {
		case catalog.MultipleChoice:
			i, ok := a.ChoiceIndex()
			if !ok {
				fields = append(fields, catalog.FieldError{Field: "answers." + id, Error: "must be an option index"})
			} else if i < 0 || i >= len(q.Options) {
				fields = append(fields, catalog.FieldError{Field: "answers." + id, Error: fmt.Sprintf("must be between 0 and %d", len(q.Options)-1)})
			}
		case catalog.TrueFalse:
			if !a.Matches(catalog.TrueFalse) {
				fields = append(fields, catalog.FieldError{Field: "answers." + id, Error: "must be true or false"})
			}
		}
	}
	if len(fields) > 0 {
		return catalog.NewValidationError(fields...)
	}
	return nil
}

// Grade scores answers against the quiz key by exact equality.
// score = round(100 * correct / total), passed = score >= passingScore.
func Grade(quiz catalog.Quiz, answers map[string]catalog.Answer) QuizSubmission {
	sub := QuizSubmission{
		TotalQuestions: len(quiz.Questions),
		Results:        make([]QuestionResult, 0, len(quiz.Questions)),
	}
	for _, q := range quiz.Questions {
		given := answers[q.ID]
		correct := given.Equal(q.CorrectAnswer)
		if correct {
			sub.CorrectAnswers++
		}
		sub.Results = append(sub.Results, QuestionResult{
			QuestionID:    q.ID,
			UserAnswer:    given,
			CorrectAnswer: q.CorrectAnswer,
			IsCorrect:     correct,
			Explanation:   q.Explanation,
		})
	}
	if sub.TotalQuestions > 0 {
		sub.Score = int(math.Round(100 * float64(sub.CorrectAnswers) / float64(sub.TotalQuestions)))
	}
	sub.Passed = sub.Score >= quiz.PassingScore
	return sub
}
