// Package pdfmeta reads page counts from staged PDF uploads.
package pdfmeta

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/plagioguard/internal/core/domain"
)

const mimePDF = "application/pdf"

type Inspector struct{}

func New() *Inspector {
	return &Inspector{}
}

// Inspect returns zero metadata for anything that is not a PDF.
func (i *Inspector) Inspect(ctx context.Context, localPath, mimeType string) (meta domain.DocumentMeta, err error) {
	if !strings.EqualFold(mimeType, mimePDF) {
		return domain.DocumentMeta{}, nil
	}
	if err := ctx.Err(); err != nil {
		return domain.DocumentMeta{}, err
	}

	// The parser panics on some malformed xref tables.
	defer func() {
		if r := recover(); r != nil {
			meta = domain.DocumentMeta{}
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(localPath)
	if err != nil {
		return domain.DocumentMeta{}, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	return domain.DocumentMeta{Pages: r.NumPage()}, nil
}
