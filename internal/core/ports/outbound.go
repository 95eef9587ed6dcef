package ports

import (
	"context"
	"encoding/json"
	"io"

	"github.com/kirillkom/plagioguard/internal/core/domain"
)

// SubmissionRepository persists and reads submission records.
type SubmissionRepository interface {
	Create(ctx context.Context, sub *domain.Submission) error
	GetByID(ctx context.Context, id string) (*domain.Submission, error)
	SaveFile(ctx context.Context, id string, file domain.FilePointer) error
	// TransitionReport replaces the report when the stored status is an allowed
	// predecessor of report.Status.
	TransitionReport(ctx context.Context, id string, report domain.Report) error
	List(ctx context.Context, filter domain.ListFilter) ([]domain.Submission, error)
	Stats(ctx context.Context, userID string) (domain.SubmissionStats, error)
}

// ObjectStorage pushes a staged local file to durable storage.
type ObjectStorage interface {
	Upload(ctx context.Context, localPath string, target domain.UploadTarget) (domain.StoredObject, error)
}

// Analyzer runs the external detection engine over a local file and returns
// its single JSON document.
type Analyzer interface {
	Analyze(ctx context.Context, filePath, submissionID string) (json.RawMessage, error)
}

// DocumentInspector reads cheap metadata from a staged file.
type DocumentInspector interface {
	Inspect(ctx context.Context, localPath, mimeType string) (domain.DocumentMeta, error)
}

// EventPublisher announces submissions that reached a terminal state.
type EventPublisher interface {
	PublishSubmissionFinished(ctx context.Context, sub *domain.Submission) error
}

// SubmissionExporter renders a listing into a downloadable document.
type SubmissionExporter interface {
	ContentType() string
	Write(w io.Writer, subs []domain.Submission) error
}
