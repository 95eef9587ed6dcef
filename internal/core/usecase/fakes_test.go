package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/plagioguard/internal/core/domain"
)

type submissionRepoFake struct {
	mu          sync.Mutex
	records     map[string]domain.Submission
	statusCalls []domain.SubmissionStatus
	createErr   error
	saveFileErr error
	getErr      error
	listErr     error
	lastFilter  domain.ListFilter
}

func newSubmissionRepoFake() *submissionRepoFake {
	return &submissionRepoFake{records: make(map[string]domain.Submission)}
}

func (f *submissionRepoFake) Create(_ context.Context, sub *domain.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.records[sub.ID] = *sub
	return nil
}

func (f *submissionRepoFake) GetByID(_ context.Context, id string) (*domain.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	sub, ok := f.records[id]
	if !ok {
		return nil, domain.ErrSubmissionNotFound
	}
	return &sub, nil
}

func (f *submissionRepoFake) SaveFile(_ context.Context, id string, file domain.FilePointer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveFileErr != nil {
		return f.saveFileErr
	}
	sub, ok := f.records[id]
	if !ok {
		return domain.ErrSubmissionNotFound
	}
	sub.File = &file
	f.records[id] = sub
	return nil
}

func (f *submissionRepoFake) TransitionReport(_ context.Context, id string, report domain.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.records[id]
	if !ok {
		return domain.ErrSubmissionNotFound
	}
	if !domain.CanTransition(sub.Report.Status, report.Status) {
		return domain.ErrInvalidTransition
	}
	f.statusCalls = append(f.statusCalls, report.Status)
	sub.Report = report
	sub.UpdatedAt = time.Now().UTC()
	f.records[id] = sub
	return nil
}

func (f *submissionRepoFake) List(_ context.Context, filter domain.ListFilter) ([]domain.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Submission, 0, len(f.records))
	for _, sub := range f.records {
		if filter.UserID != "" && sub.UserID != filter.UserID {
			continue
		}
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *submissionRepoFake) Stats(_ context.Context, userID string) (domain.SubmissionStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := domain.SubmissionStats{UserID: userID}
	for _, sub := range f.records {
		if userID != "" && sub.UserID != userID {
			continue
		}
		stats.Total++
	}
	return stats, nil
}

func (f *submissionRepoFake) record(id string) domain.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[id]
}

type storageFake struct {
	mu      sync.Mutex
	calls   int
	targets []domain.UploadTarget
	bodies  []string
	err     error
}

func (f *storageFake) Upload(_ context.Context, localPath string, target domain.UploadTarget) (domain.StoredObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.targets = append(f.targets, target)
	if f.err != nil {
		return domain.StoredObject{}, f.err
	}
	raw, err := os.ReadFile(localPath)
	if err != nil {
		return domain.StoredObject{}, err
	}
	f.bodies = append(f.bodies, string(raw))
	return domain.StoredObject{
		PublicID:  target.Folder + "/" + target.PublicID,
		SecureURL: "https://files.example/" + target.PublicID,
		Bytes:     int64(len(raw)),
		Format:    "pdf",
	}, nil
}

type analyzerFake struct {
	mu     sync.Mutex
	calls  int
	paths  []string
	ids    []string
	output string
	err    error
}

func (f *analyzerFake) Analyze(_ context.Context, filePath, submissionID string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.paths = append(f.paths, filePath)
	f.ids = append(f.ids, submissionID)
	if _, err := os.Stat(filePath); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.output), nil
}

type inspectorFake struct {
	pages int
	err   error
}

func (f *inspectorFake) Inspect(context.Context, string, string) (domain.DocumentMeta, error) {
	if f.err != nil {
		return domain.DocumentMeta{}, f.err
	}
	return domain.DocumentMeta{Pages: f.pages}, nil
}

type eventsFake struct {
	published []domain.Submission
	err       error
}

func (f *eventsFake) PublishSubmissionFinished(_ context.Context, sub *domain.Submission) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, *sub)
	return nil
}

type observerFake struct {
	started  int
	finished []domain.SubmissionStatus
	stages   map[domain.PipelineStage]int
}

func (f *observerFake) StartSubmission() { f.started++ }

func (f *observerFake) FinishSubmission(status domain.SubmissionStatus, _ time.Duration) {
	f.finished = append(f.finished, status)
}

func (f *observerFake) ObserveStage(stage domain.PipelineStage, _ time.Duration, _ error) {
	if f.stages == nil {
		f.stages = make(map[domain.PipelineStage]int)
	}
	f.stages[stage]++
}

type exporterFake struct {
	rows int
	err  error
}

func (f *exporterFake) ContentType() string { return "text/plain" }

func (f *exporterFake) Write(w io.Writer, subs []domain.Submission) error {
	if f.err != nil {
		return f.err
	}
	f.rows = len(subs)
	_, err := io.WriteString(w, "ok")
	return err
}

var errBoom = errors.New("boom")
