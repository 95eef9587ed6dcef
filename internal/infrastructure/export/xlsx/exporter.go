package xlsx

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/plagioguard/internal/core/domain"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	sheetName   = "Submissions"
)

var header = []string{
	"ID", "User", "Title", "Topics", "Status", "Plagiarism %", "AI probability",
	"Verdict", "Language", "File", "Pages", "Error", "Created", "Updated",
}

type Exporter struct{}

func New() *Exporter {
	return &Exporter{}
}

func (e *Exporter) ContentType() string {
	return ContentType
}

func (e *Exporter) Write(w io.Writer, subs []domain.Submission) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeRow(f, 1, toCells(header)); err != nil {
		return err
	}
	for i, sub := range subs {
		if err := writeRow(f, i+2, row(sub)); err != nil {
			return err
		}
	}
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func row(sub domain.Submission) []any {
	r := sub.Report
	var plagiarism, ai any
	if r.Plagiarism != nil {
		plagiarism = r.Plagiarism.Score
	}
	if r.AIGenerated != nil {
		ai = r.AIGenerated.Probability
	}
	var fileURL string
	var pages any
	if sub.File != nil {
		fileURL = sub.File.URL
		if sub.File.Pages > 0 {
			pages = sub.File.Pages
		}
	}
	return []any{
		sub.ID,
		sub.UserID,
		sub.Title,
		strings.Join(sub.Topics, ", "),
		string(r.Status),
		plagiarism,
		ai,
		r.FinalVerdict,
		r.Language,
		fileURL,
		pages,
		r.Error,
		formatTime(sub.CreatedAt),
		formatTime(sub.UpdatedAt),
	}
}

func writeRow(f *excelize.File, rowNum int, values []any) error {
	for col, v := range values {
		if v == nil {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(col+1, rowNum)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, v); err != nil {
			return fmt.Errorf("set %s: %w", cell, err)
		}
	}
	return nil
}

func toCells(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
