package ports

import (
	"context"
	"io"

	"github.com/kirillkom/plagioguard/internal/core/domain"
)

// SubmissionService is the inbound contract for the upload and analysis pipeline.
type SubmissionService interface {
	Submit(ctx context.Context, input domain.SubmissionInput, body io.Reader) (*domain.Submission, error)
}

// SubmissionReader is the inbound read model for submission state.
type SubmissionReader interface {
	GetByID(ctx context.Context, id string) (*domain.Submission, error)
	List(ctx context.Context, filter domain.ListFilter) ([]domain.Submission, error)
	Stats(ctx context.Context, userID string) (domain.SubmissionStats, error)
	Export(ctx context.Context, filter domain.ListFilter, w io.Writer) (string, error)
}
