package usecase

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/plagioguard/internal/core/domain"
)

const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeZIP  = "application/zip"
)

var DefaultAllowedTypes = []string{MimePDF, MimeDOCX, MimeZIP}

var extensionTypes = map[string]string{
	".pdf":  MimePDF,
	".docx": MimeDOCX,
	".zip":  MimeZIP,
}

type stagedFile struct {
	path string
	size int64
}

// resolveMimeType trusts the declared part type unless it carries no
// information, then falls back to the file extension.
func resolveMimeType(declared, filename string) string {
	mediaType := ""
	if declared != "" {
		if parsed, _, err := mime.ParseMediaType(declared); err == nil {
			mediaType = strings.ToLower(parsed)
		}
	}
	if mediaType != "" && mediaType != "application/octet-stream" {
		return mediaType
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if parsed, _, err := mime.ParseMediaType(t); err == nil {
			return parsed
		}
	}
	return mediaType
}

func isAllowedType(mimeType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.EqualFold(strings.TrimSpace(t), mimeType) {
			return true
		}
	}
	return false
}

// stageUpload copies body into a temp file under dir, refusing more than
// maxBytes.
func stageUpload(dir, filename string, body io.Reader, maxBytes int64) (*stagedFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	f, err := os.CreateTemp(dir, "upload-*"+strings.ToLower(filepath.Ext(sanitizeFilename(filename))))
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()

	src := body
	if maxBytes > 0 {
		src = io.LimitReader(body, maxBytes+1)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		_ = os.Remove(path)
		return nil, fmt.Errorf("write temp file: %w", copyErr)
	case closeErr != nil:
		_ = os.Remove(path)
		return nil, fmt.Errorf("close temp file: %w", closeErr)
	case maxBytes > 0 && n > maxBytes:
		_ = os.Remove(path)
		return nil, domain.WrapError(domain.ErrInvalidInput, "stage upload", fmt.Errorf("file exceeds %d bytes", maxBytes))
	case n == 0:
		_ = os.Remove(path)
		return nil, domain.WrapError(domain.ErrInvalidInput, "stage upload", errors.New("uploaded file is empty"))
	}

	return &stagedFile{path: path, size: n}, nil
}

func fileFormat(stored, filename, mimeType string) string {
	if stored != "" {
		return stored
	}
	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."); ext != "" {
		return ext
	}
	if _, sub, ok := strings.Cut(mimeType, "/"); ok {
		return sub
	}
	return ""
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == "_" {
		return "document.bin"
	}
	return base
}
