package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/fin-extract/internal/core/domain"
	"github.com/kirillkom/fin-extract/internal/core/ports"
)

type UploadDocumentUseCase struct {
	storage ports.ObjectStorage
}

func NewUploadDocumentUseCase(storage ports.ObjectStorage) *UploadDocumentUseCase {
	return &UploadDocumentUseCase{storage: storage}
}

// Upload stores body under a fresh key and returns its public URL, which is the
// fileUrl accepted by extraction.
func (uc *UploadDocumentUseCase) Upload(
	ctx context.Context,
	filename, contentType string,
	body io.Reader,
) (*domain.StoredObject, error) {
	if body == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("empty body"))
	}
	key := fmt.Sprintf("%s_%s", uuid.NewString(), sanitizeFilename(filename))

	size, err := uc.storage.Save(ctx, key, contentType, body)
	if err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}
	if size == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("empty file"))
	}

	obj := &domain.StoredObject{
		Key:         key,
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
		URL:         uc.storage.URL(key),
	}
	slog.InfoContext(ctx, "document_uploaded", "key", key, "size", size, "content_type", contentType)
	return obj, nil
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
	if base == "" || base == "." || base == ".." {
		return "document.bin"
	}
	return base
}
