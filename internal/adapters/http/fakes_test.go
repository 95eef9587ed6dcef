package httpadapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kirillkom/plagioguard/internal/config"
	"github.com/kirillkom/plagioguard/internal/core/domain"
)

type submitFake struct {
	result *domain.Submission
	err    error

	calls int
	input domain.SubmissionInput
	body  []byte
}

func (f *submitFake) Submit(_ context.Context, input domain.SubmissionInput, body io.Reader) (*domain.Submission, error) {
	f.calls++
	f.input = input
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	f.body = raw
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type readerFake struct {
	subs      map[string]*domain.Submission
	list      []domain.Submission
	stats     domain.SubmissionStats
	err       error
	exportErr error

	lastFilter domain.ListFilter
	lastUserID string
}

func (f *readerFake) GetByID(_ context.Context, id string) (*domain.Submission, error) {
	if f.err != nil {
		return nil, f.err
	}
	sub, ok := f.subs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrSubmissionNotFound, "get submission", fmt.Errorf("id=%s", id))
	}
	return sub, nil
}

func (f *readerFake) List(_ context.Context, filter domain.ListFilter) ([]domain.Submission, error) {
	f.lastFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.list, nil
}

func (f *readerFake) Stats(_ context.Context, userID string) (domain.SubmissionStats, error) {
	f.lastUserID = userID
	if f.err != nil {
		return domain.SubmissionStats{}, f.err
	}
	return f.stats, nil
}

func (f *readerFake) Export(_ context.Context, filter domain.ListFilter, w io.Writer) (string, error) {
	f.lastFilter = filter
	if f.exportErr != nil {
		return "", f.exportErr
	}
	_, _ = io.WriteString(w, "xlsx-bytes")
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", nil
}

func ptr[T any](v T) *T { return &v }

func doneSubmission() *domain.Submission {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Submission{
		ID:     "sub-1",
		UserID: "u-1",
		Title:  "Essay",
		Topics: []string{"ai"},
		File: &domain.FilePointer{
			PublicID: "cmt-pdfs/sub_sub-1_1",
			URL:      "https://cdn.example/cmt-pdfs/sub_sub-1_1.pdf",
			Bytes:    1024,
			Format:   "pdf",
			Pages:    3,
		},
		Report: domain.Report{
			Status: domain.StatusDone,
			Plagiarism: &domain.Plagiarism{
				Score:   42,
				Sources: []domain.Source{{Title: "Wiki", URL: "https://wiki.example", Overlap: 12.5}},
			},
			AIGenerated: &domain.AIGenerated{Probability: 0.8, Entropy: ptr(3.2)},
			Stylometry:  &domain.Stylometry{PreviousMatches: []string{}},
			Heatmap:     []domain.HeatmapCell{{Idx: 0, Score: 0.4}},
			Language:    "en",
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func newTestHandler(cfg config.Config, submit *submitFake, reader *readerFake) http.Handler {
	if submit == nil {
		submit = &submitFake{}
	}
	if reader == nil {
		reader = &readerFake{}
	}
	return NewRouter(cfg, submit, reader).Handler()
}
