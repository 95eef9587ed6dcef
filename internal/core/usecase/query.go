package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/plagioguard/internal/core/domain"
	"github.com/kirillkom/plagioguard/internal/core/ports"
)

const DefaultListLimit = 200

type QueryUseCase struct {
	repo     ports.SubmissionRepository
	exporter ports.SubmissionExporter
	maxLimit int
}

func NewQueryUseCase(repo ports.SubmissionRepository, exporter ports.SubmissionExporter, maxLimit int) *QueryUseCase {
	if maxLimit <= 0 {
		maxLimit = DefaultListLimit
	}
	return &QueryUseCase{
		repo:     repo,
		exporter: exporter,
		maxLimit: maxLimit,
	}
}

func (uc *QueryUseCase) GetByID(ctx context.Context, id string) (*domain.Submission, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get submission", errors.New("id is required"))
	}
	sub, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get submission %s: %w", id, err)
	}
	return sub, nil
}

// List returns the newest submissions first. Limits outside 1..maxLimit are
// clamped to maxLimit.
func (uc *QueryUseCase) List(ctx context.Context, filter domain.ListFilter) ([]domain.Submission, error) {
	filter = uc.normalizeFilter(filter)
	subs, err := uc.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	if subs == nil {
		subs = []domain.Submission{}
	}
	return subs, nil
}

func (uc *QueryUseCase) Stats(ctx context.Context, userID string) (domain.SubmissionStats, error) {
	stats, err := uc.repo.Stats(ctx, strings.TrimSpace(userID))
	if err != nil {
		return domain.SubmissionStats{}, fmt.Errorf("submission stats: %w", err)
	}
	return stats, nil
}

func (uc *QueryUseCase) Export(ctx context.Context, filter domain.ListFilter, w io.Writer) (string, error) {
	if uc.exporter == nil {
		return "", errors.New("export is not configured")
	}
	subs, err := uc.List(ctx, filter)
	if err != nil {
		return "", err
	}
	if err := uc.exporter.Write(w, subs); err != nil {
		return "", fmt.Errorf("export submissions: %w", err)
	}
	return uc.exporter.ContentType(), nil
}

func (uc *QueryUseCase) normalizeFilter(filter domain.ListFilter) domain.ListFilter {
	filter.UserID = strings.TrimSpace(filter.UserID)
	if filter.Limit <= 0 || filter.Limit > uc.maxLimit {
		filter.Limit = uc.maxLimit
	}
	return filter
}
