package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kirillkom/plagioguard/internal/core/domain"
	"github.com/kirillkom/plagioguard/internal/infrastructure/storage"
)

type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: abs}, nil
}

func (s *Storage) Upload(ctx context.Context, localPath string, target domain.UploadTarget) (domain.StoredObject, error) {
	if err := ctx.Err(); err != nil {
		return domain.StoredObject{}, err
	}
	key := storage.ObjectKey(target, localPath)
	dst := filepath.Join(s.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return domain.StoredObject{}, fmt.Errorf("create object dir: %w", err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return domain.StoredObject{}, fmt.Errorf("open staged file: %w", err)
	}
	defer src.Close()

	f, err := os.Create(dst)
	if err != nil {
		return domain.StoredObject{}, fmt.Errorf("create file: %w", err)
	}
	n, err := io.Copy(f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dst)
		return domain.StoredObject{}, fmt.Errorf("write file: %w", err)
	}

	return domain.StoredObject{
		PublicID:  key,
		SecureURL: "file://" + filepath.ToSlash(dst),
		Bytes:     n,
		Format:    storage.Format(localPath),
	}, nil
}
