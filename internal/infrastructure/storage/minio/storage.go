package minio

import (
	"context"
	"fmt"
	"net/url"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kirillkom/plagioguard/internal/core/domain"
	"github.com/kirillkom/plagioguard/internal/infrastructure/storage"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

type Storage struct {
	client *miniogo.Client
	cfg    Config
}

func New(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio endpoint and bucket are required")
	}
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
		// Uploads are attempted once; a failure marks the submission error.
		MaxRetries: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init minio: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check minio bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, miniogo.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create minio bucket: %w", err)
		}
	}
	return &Storage{client: client, cfg: cfg}, nil
}

func (s *Storage) Upload(ctx context.Context, localPath string, target domain.UploadTarget) (domain.StoredObject, error) {
	key := storage.ObjectKey(target, localPath)
	info, err := s.client.FPutObject(ctx, s.cfg.Bucket, key, localPath, miniogo.PutObjectOptions{
		ContentType: target.ContentType,
	})
	if err != nil {
		return domain.StoredObject{}, fmt.Errorf("minio upload failed: %w", err)
	}

	return domain.StoredObject{
		PublicID:  key,
		SecureURL: s.objectURL(key),
		Bytes:     info.Size,
		Format:    storage.Format(localPath),
	}, nil
}

func (s *Storage) objectURL(key string) string {
	scheme := "http"
	if s.cfg.UseSSL {
		scheme = "https"
	}
	u := url.URL{Scheme: scheme, Host: s.cfg.Endpoint, Path: "/" + s.cfg.Bucket + "/" + key}
	return u.String()
}
