package report_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-academy/internal/progress"
	"github.com/p-n-ai/pai-academy/internal/report"
)

type staticSource struct {
	sums []progress.LearnerSummary
	err  error
}

func (s staticSource) Summaries(context.Context) ([]progress.LearnerSummary, error) {
	return s.sums, s.err
}

func TestWriteProgressWorkbook(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	src := staticSource{sums: []progress.LearnerSummary{
		{UserID: "u1", CompletedContents: 4, CompletedChapters: 3, CompletedModules: 3, QuizAttempts: 2, QuizzesPassed: 1,
			Certificates: []progress.Tier{progress.Bronze, progress.Silver}, LastActivity: &at},
		{UserID: "u2"},
	}}

	var buf bytes.Buffer
	if err := report.WriteProgressWorkbook(context.Background(), &buf, src); err != nil {
		t.Fatalf("WriteProgressWorkbook() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(report.SheetLearners)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header plus 2", len(rows))
	}
	if rows[0][0] != "User ID" || rows[0][7] != "Last Activity (UTC)" {
		t.Errorf("header = %q", rows[0])
	}

	u1 := rows[1]
	want := []string{"u1", "4", "3", "3", "2", "1", "BRONZE, SILVER", "2026-03-04 05:06:07"}
	for i, w := range want {
		if u1[i] != w {
			t.Errorf("u1 column %d = %q, want %q", i, u1[i], w)
		}
	}
	if rows[2][0] != "u2" {
		t.Errorf("second row = %q", rows[2])
	}
}

func TestProgressWorkbook_FromStore(t *testing.T) {
	store := progress.NewMemoryStore()
	ctx := context.Background()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := store.SaveModuleProgress(ctx, progress.ModuleProgress{UserID: "u9", ModuleID: "m1", IsCompleted: true, CompletedAt: &at}); err != nil {
		t.Fatalf("SaveModuleProgress() error = %v", err)
	}

	f, err := report.ProgressWorkbook(ctx, store)
	if err != nil {
		t.Fatalf("ProgressWorkbook() error = %v", err)
	}
	defer f.Close()

	got, err := f.GetCellValue(report.SheetLearners, "D2")
	if err != nil {
		t.Fatalf("GetCellValue() error = %v", err)
	}
	if got != "1" {
		t.Errorf("modules completed cell = %q, want 1", got)
	}
}

func TestProgressWorkbook_SourceError(t *testing.T) {
	boom := errors.New("db down")
	_, err := report.ProgressWorkbook(context.Background(), staticSource{err: boom})
	if !errors.Is(err, boom) {
		t.Errorf("ProgressWorkbook() error = %v, want wrapped source error", err)
	}
}
