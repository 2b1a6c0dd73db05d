// Package report builds admin spreadsheets from learner progress.
package report

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-academy/internal/progress"
)

// SheetLearners is the name of the per-learner sheet.
const SheetLearners = "Learners"

var learnerHeader = []any{
	"User ID",
	"Contents Completed",
	"Chapters Completed",
	"Modules Completed",
	"Quiz Attempts",
	"Quizzes Passed",
	"Certificates",
	"Last Activity (UTC)",
}

// SummarySource provides one aggregate row per learner.
type SummarySource interface {
	Summaries(ctx context.Context) ([]progress.LearnerSummary, error)
}

// ProgressWorkbook renders one row per learner. The caller must Close the
// returned file.
func ProgressWorkbook(ctx context.Context, src SummarySource) (*excelize.File, error) {
	sums, err := src.Summaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("load summaries: %w", err)
	}

	f := excelize.NewFile()
	if err := fill(f, sums); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// WriteProgressWorkbook streams the workbook as .xlsx to w.
func WriteProgressWorkbook(ctx context.Context, w io.Writer, src SummarySource) error {
	f, err := ProgressWorkbook(ctx, src)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func fill(f *excelize.File, sums []progress.LearnerSummary) error {
	if err := f.SetSheetName(f.GetSheetName(0), SheetLearners); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	if err := f.SetSheetRow(SheetLearners, "A1", &learnerHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(learnerHeader), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetLearners, "A1", last, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, s := range sums {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			s.UserID,
			s.CompletedContents,
			s.CompletedChapters,
			s.CompletedModules,
			s.QuizAttempts,
			s.QuizzesPassed,
			tierList(s.Certificates),
			lastActivity(s.LastActivity),
		}
		if err := f.SetSheetRow(SheetLearners, cell, &row); err != nil {
			return fmt.Errorf("write row for %s: %w", s.UserID, err)
		}
	}

	if err := f.SetColWidth(SheetLearners, "A", "A", 28); err != nil {
		return err
	}
	return f.SetColWidth(SheetLearners, "B", "H", 20)
}

func tierList(tiers []progress.Tier) string {
	names := make([]string, len(tiers))
	for i, t := range tiers {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func lastActivity(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.DateTime)
}
