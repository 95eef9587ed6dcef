package xlsx

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/plagioguard/internal/core/domain"
)

func TestWriteProducesHeaderAndRows(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	subs := []domain.Submission{
		{
			ID:     "s-2",
			UserID: "u-1",
			Title:  "Essay",
			Topics: []string{"ai", "ethics"},
			File:   &domain.FilePointer{URL: "https://cdn/x", Pages: 4},
			Report: domain.Report{
				Status:       domain.StatusDone,
				Plagiarism:   &domain.Plagiarism{Score: 42},
				AIGenerated:  &domain.AIGenerated{Probability: 0.8},
				FinalVerdict: "Likely AI",
				Language:     "en",
			},
			CreatedAt: created,
			UpdatedAt: created,
		},
		{
			ID:        "s-1",
			UserID:    "u-1",
			Title:     "Draft",
			Report:    domain.ErrorReport("Object storage upload failed"),
			CreatedAt: created.Add(-time.Hour),
		},
	}

	var buf bytes.Buffer
	if err := New().Write(&buf, subs); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "ID" || rows[0][5] != "Plagiarism %" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	if rows[1][0] != "s-2" || rows[1][3] != "ai, ethics" || rows[1][5] != "42" || rows[1][10] != "4" {
		t.Fatalf("unexpected done row %v", rows[1])
	}
	if rows[1][12] != "2026-03-01T12:00:00Z" {
		t.Fatalf("unexpected created cell %q", rows[1][12])
	}
	if rows[2][4] != "error" || rows[2][11] != "Object storage upload failed" {
		t.Fatalf("unexpected error row %v", rows[2])
	}
	if rows[2][5] != "" {
		t.Fatalf("expected empty plagiarism cell for error row, got %q", rows[2][5])
	}
}

func TestContentType(t *testing.T) {
	if New().ContentType() != ContentType {
		t.Fatalf("unexpected content type")
	}
}
