// Package storage holds helpers shared by the object storage adapters and the
// guarded decorator that wraps whichever adapter is configured.
package storage

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/kirillkom/plagioguard/internal/core/domain"
)

// ObjectKey is folder/publicID plus the staged file's extension.
func ObjectKey(target domain.UploadTarget, localPath string) string {
	name := target.PublicID + strings.ToLower(filepath.Ext(localPath))
	if target.Folder == "" {
		return name
	}
	return path.Join(strings.Trim(target.Folder, "/"), name)
}

func Format(localPath string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(localPath)), ".")
}
