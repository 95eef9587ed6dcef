package cloudinary

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/kirillkom/plagioguard/internal/core/domain"
	"github.com/kirillkom/plagioguard/internal/infrastructure/storage"
)

// Documents are uploaded as raw resources so Cloudinary never tries to
// transcode them.
const resourceTypeRaw = "raw"

type Config struct {
	CloudName string
	APIKey    string
	APISecret string
}

type Storage struct {
	cld *cloudinary.Cloudinary
}

func New(cfg Config) (*Storage, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("cloudinary credentials not set")
	}
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	cld.Config.URL.Secure = true
	return &Storage{cld: cld}, nil
}

func (s *Storage) Upload(ctx context.Context, localPath string, target domain.UploadTarget) (domain.StoredObject, error) {
	resp, err := s.cld.Upload.Upload(ctx, localPath, uploader.UploadParams{
		PublicID:     target.PublicID,
		Folder:       target.Folder,
		ResourceType: resourceTypeRaw,
	})
	if err != nil {
		return domain.StoredObject{}, fmt.Errorf("cloudinary upload failed: %w", err)
	}
	if resp.Error.Message != "" {
		return domain.StoredObject{}, fmt.Errorf("cloudinary upload failed: %s", resp.Error.Message)
	}

	format := resp.Format
	if format == "" {
		format = storage.Format(localPath)
	}
	return domain.StoredObject{
		PublicID:  resp.PublicID,
		SecureURL: resp.SecureURL,
		Bytes:     int64(resp.Bytes),
		Format:    format,
	}, nil
}
