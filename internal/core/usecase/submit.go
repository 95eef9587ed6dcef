package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/plagioguard/internal/core/domain"
	"github.com/kirillkom/plagioguard/internal/core/normalize"
	"github.com/kirillkom/plagioguard/internal/core/ports"
)

const (
	UploadFailedMessage   = "Object storage upload failed"
	AnalysisFailedMessage = "Analysis failed"
	RecordFailedMessage   = "Failed to create submission"
	PersistFailedMessage  = "Failed to persist submission state"

	DefaultUserID = "anonymous"
	DefaultTitle  = "Untitled"
)

// PipelineObserver receives timings for a submission run.
type PipelineObserver interface {
	StartSubmission()
	FinishSubmission(status domain.SubmissionStatus, duration time.Duration)
	ObserveStage(stage domain.PipelineStage, duration time.Duration, err error)
}

type SubmitConfig struct {
	UploadDir    string
	Folder       string
	MaxBytes     int64
	AllowedTypes []string
}

type SubmitOption func(*SubmitUseCase)

func WithInspector(inspector ports.DocumentInspector) SubmitOption {
	return func(uc *SubmitUseCase) { uc.inspector = inspector }
}

func WithEventPublisher(events ports.EventPublisher) SubmitOption {
	return func(uc *SubmitUseCase) { uc.events = events }
}

func WithObserver(observer PipelineObserver) SubmitOption {
	return func(uc *SubmitUseCase) { uc.observer = observer }
}

func WithLogger(logger *slog.Logger) SubmitOption {
	return func(uc *SubmitUseCase) { uc.logger = logger }
}

type SubmitUseCase struct {
	repo     ports.SubmissionRepository
	storage  ports.ObjectStorage
	analyzer ports.Analyzer

	inspector ports.DocumentInspector
	events    ports.EventPublisher
	observer  PipelineObserver
	logger    *slog.Logger

	cfg   SubmitConfig
	now   func() time.Time
	newID func() string
}

func NewSubmitUseCase(
	repo ports.SubmissionRepository,
	storage ports.ObjectStorage,
	analyzer ports.Analyzer,
	cfg SubmitConfig,
	opts ...SubmitOption,
) *SubmitUseCase {
	if cfg.UploadDir == "" {
		cfg.UploadDir = os.TempDir()
	}
	if len(cfg.AllowedTypes) == 0 {
		cfg.AllowedTypes = DefaultAllowedTypes
	}
	uc := &SubmitUseCase{
		repo:     repo,
		storage:  storage,
		analyzer: analyzer,
		logger:   slog.Default(),
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Submit runs the whole pipeline for one upload and holds the caller until the
// record is done or error. The run is detached from caller cancellation.
func (uc *SubmitUseCase) Submit(
	ctx context.Context,
	input domain.SubmissionInput,
	body io.Reader,
) (*domain.Submission, error) {
	ctx = context.WithoutCancel(ctx)

	input, err := uc.validate(input, body)
	if err != nil {
		return nil, err
	}

	staged, err := stageUpload(uc.cfg.UploadDir, input.Filename, body, uc.cfg.MaxBytes)
	if err != nil {
		return nil, err
	}
	defer uc.removeStaged(staged.path)

	sub, err := uc.createRecord(ctx, input)
	if err != nil {
		return nil, err
	}
	log := uc.logger.With("submission_id", sub.ID, "user_id", sub.UserID)
	log.Info("submission_created", "filename", input.Filename, "mime_type", input.MimeType, "bytes", staged.size)

	started := uc.now()
	if uc.observer != nil {
		uc.observer.StartSubmission()
	}
	result, runErr := uc.run(ctx, log, sub, input, staged)
	if uc.observer != nil {
		uc.observer.FinishSubmission(result.Report.Status, uc.now().Sub(started))
	}
	uc.publish(ctx, log, result)

	if runErr != nil {
		return nil, runErr
	}
	return result, nil
}

func (uc *SubmitUseCase) validate(input domain.SubmissionInput, body io.Reader) (domain.SubmissionInput, error) {
	if body == nil {
		return input, domain.WrapError(domain.ErrInvalidInput, "validate upload", errors.New("no file uploaded"))
	}
	if uc.cfg.MaxBytes > 0 && input.Size > uc.cfg.MaxBytes {
		return input, domain.WrapError(domain.ErrInvalidInput, "validate upload", fmt.Errorf("file exceeds %d bytes", uc.cfg.MaxBytes))
	}

	input.MimeType = resolveMimeType(input.MimeType, input.Filename)
	if !isAllowedType(input.MimeType, uc.cfg.AllowedTypes) {
		return input, domain.WrapError(
			domain.ErrInvalidInput,
			"validate upload",
			fmt.Errorf("only PDF, DOCX, or ZIP files are allowed, got %q", input.MimeType),
		)
	}

	input.UserID = strings.TrimSpace(input.UserID)
	if input.UserID == "" {
		input.UserID = DefaultUserID
	}
	input.Title = strings.TrimSpace(input.Title)
	if input.Title == "" {
		input.Title = strings.TrimSpace(input.Filename)
	}
	if input.Title == "" {
		input.Title = DefaultTitle
	}
	input.Topics = cleanTopics(input.Topics)
	return input, nil
}

func (uc *SubmitUseCase) createRecord(ctx context.Context, input domain.SubmissionInput) (*domain.Submission, error) {
	now := uc.now()
	sub := &domain.Submission{
		ID:        uc.newID(),
		UserID:    input.UserID,
		Title:     input.Title,
		Topics:    input.Topics,
		Report:    domain.QueuedReport(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.repo.Create(ctx, sub); err != nil {
		return nil, &domain.PipelineError{
			Stage:   domain.StageRecord,
			Message: RecordFailedMessage,
			Err:     fmt.Errorf("create submission record: %w", err),
		}
	}
	return sub, nil
}

// run drives upload -> analyze -> normalize. It always returns the submission
// in its last known state.
func (uc *SubmitUseCase) run(
	ctx context.Context,
	log *slog.Logger,
	sub *domain.Submission,
	input domain.SubmissionInput,
	staged *stagedFile,
) (*domain.Submission, error) {
	meta := uc.inspect(ctx, log, staged.path, input.MimeType)

	stored, err := uc.upload(ctx, sub, staged.path, input.MimeType)
	if err != nil {
		log.Error("submission_upload_failed", "error", err)
		uc.fail(ctx, log, sub, UploadFailedMessage)
		return sub, &domain.PipelineError{
			SubmissionID: sub.ID,
			Stage:        domain.StageUpload,
			Kind:         domain.ErrStorageUpload,
			Message:      UploadFailedMessage,
			Err:          err,
		}
	}

	file := domain.FilePointer{
		PublicID:     stored.PublicID,
		URL:          stored.SecureURL,
		Bytes:        stored.Bytes,
		Format:       fileFormat(stored.Format, input.Filename, input.MimeType),
		OriginalName: input.Filename,
		MimeType:     input.MimeType,
		Pages:        meta.Pages,
	}
	if file.Bytes <= 0 {
		file.Bytes = staged.size
	}
	if err := uc.repo.SaveFile(ctx, sub.ID, file); err != nil {
		return sub, uc.persistFailure(ctx, log, sub, err)
	}
	sub.File = &file

	if err := uc.transition(ctx, sub, domain.ProcessingReport()); err != nil {
		return sub, uc.persistFailure(ctx, log, sub, err)
	}
	log.Info("submission_processing", "public_id", file.PublicID)

	raw, err := uc.analyze(ctx, sub.ID, staged.path)
	if err != nil {
		log.Error("submission_analysis_failed", "error", err)
		uc.fail(ctx, log, sub, err.Error())
		return sub, &domain.PipelineError{
			SubmissionID: sub.ID,
			Stage:        domain.StageAnalyze,
			Kind:         domain.ErrAnalysis,
			Message:      AnalysisFailedMessage,
			Err:          err,
		}
	}

	report := normalize.Report(raw)
	if err := uc.transition(ctx, sub, report); err != nil {
		return sub, uc.persistFailure(ctx, log, sub, err)
	}
	log.Info("submission_done",
		"plagiarism_score", report.Plagiarism.Score,
		"ai_probability", report.AIGenerated.Probability,
		"verdict", report.FinalVerdict,
	)

	fresh, err := uc.repo.GetByID(ctx, sub.ID)
	if err != nil {
		log.Warn("submission_reload_failed", "error", err)
		return sub, nil
	}
	return fresh, nil
}

func (uc *SubmitUseCase) inspect(ctx context.Context, log *slog.Logger, path, mimeType string) domain.DocumentMeta {
	if uc.inspector == nil {
		return domain.DocumentMeta{}
	}
	meta, err := uc.inspector.Inspect(ctx, path, mimeType)
	if err != nil {
		log.Warn("submission_inspect_failed", "error", err)
		return domain.DocumentMeta{}
	}
	return meta
}

func (uc *SubmitUseCase) upload(ctx context.Context, sub *domain.Submission, path, mimeType string) (domain.StoredObject, error) {
	started := uc.now()
	stored, err := uc.storage.Upload(ctx, path, domain.UploadTarget{
		Folder:      uc.cfg.Folder,
		PublicID:    fmt.Sprintf("sub_%s_%d", sub.ID, started.UnixMilli()),
		ContentType: mimeType,
	})
	uc.observeStage(domain.StageUpload, started, err)
	return stored, err
}

func (uc *SubmitUseCase) analyze(ctx context.Context, submissionID, path string) ([]byte, error) {
	started := uc.now()
	raw, err := uc.analyzer.Analyze(ctx, path, submissionID)
	uc.observeStage(domain.StageAnalyze, started, err)
	return raw, err
}

func (uc *SubmitUseCase) transition(ctx context.Context, sub *domain.Submission, report domain.Report) error {
	if !domain.CanTransition(sub.Report.Status, report.Status) {
		return domain.WrapError(
			domain.ErrInvalidTransition,
			"transition report",
			fmt.Errorf("%s -> %s", sub.Report.Status, report.Status),
		)
	}
	if err := uc.repo.TransitionReport(ctx, sub.ID, report); err != nil {
		return fmt.Errorf("set status=%s: %w", report.Status, err)
	}
	sub.Report = report
	sub.UpdatedAt = uc.now()
	return nil
}

// fail moves the record to error. A failing write is logged: the caller
// already has a more relevant error to report.
func (uc *SubmitUseCase) fail(ctx context.Context, log *slog.Logger, sub *domain.Submission, message string) {
	if err := uc.transition(ctx, sub, domain.ErrorReport(message)); err != nil {
		log.Error("submission_mark_error_failed", "error", err)
	}
}

func (uc *SubmitUseCase) persistFailure(ctx context.Context, log *slog.Logger, sub *domain.Submission, err error) error {
	log.Error("submission_persist_failed", "error", err)
	uc.fail(ctx, log, sub, PersistFailedMessage)
	return &domain.PipelineError{
		SubmissionID: sub.ID,
		Stage:        domain.StagePersist,
		Message:      PersistFailedMessage,
		Err:          err,
	}
}

func (uc *SubmitUseCase) publish(ctx context.Context, log *slog.Logger, sub *domain.Submission) {
	if uc.events == nil || sub == nil || !sub.Report.Status.IsTerminal() {
		return
	}
	if err := uc.events.PublishSubmissionFinished(ctx, sub); err != nil {
		log.Warn("submission_event_publish_failed", "error", err)
	}
}

func (uc *SubmitUseCase) observeStage(stage domain.PipelineStage, started time.Time, err error) {
	if uc.observer == nil {
		return
	}
	uc.observer.ObserveStage(stage, uc.now().Sub(started), err)
}

func (uc *SubmitUseCase) removeStaged(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		uc.logger.Warn("temp_file_cleanup_failed", "path", filepath.Base(path), "error", err)
	}
}

// ParseTopics splits a comma separated topics field.
func ParseTopics(raw string) []string {
	return cleanTopics(strings.Split(raw, ","))
}

func cleanTopics(topics []string) []string {
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
