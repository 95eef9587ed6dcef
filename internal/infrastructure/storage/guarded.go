package storage

import (
	"context"

	"github.com/kirillkom/plagioguard/internal/core/domain"
	"github.com/kirillkom/plagioguard/internal/core/ports"
	"github.com/kirillkom/plagioguard/internal/infrastructure/resilience"
)

// Guarded runs every upload through a resilience executor. Bootstrap builds it
// with resilience.SingleAttempt so an upload is still tried exactly once.
type Guarded struct {
	next     ports.ObjectStorage
	executor *resilience.Executor
	op       string
}

func NewGuarded(next ports.ObjectStorage, executor *resilience.Executor, driver string) *Guarded {
	return &Guarded{
		next:     next,
		executor: executor,
		op:       "storage.upload." + driver,
	}
}

func (g *Guarded) Upload(ctx context.Context, localPath string, target domain.UploadTarget) (domain.StoredObject, error) {
	obj, err := resilience.Do(ctx, g.executor, g.op, func(ctx context.Context) (domain.StoredObject, error) {
		return g.next.Upload(ctx, localPath, target)
	}, resilience.ClassifyNetwork)
	if err != nil {
		if resilience.IsCircuitOpen(err) {
			return domain.StoredObject{}, domain.WrapError(domain.ErrTemporary, g.op, err)
		}
		return domain.StoredObject{}, err
	}
	return obj, nil
}
