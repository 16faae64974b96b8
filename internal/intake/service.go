// Package intake accepts uploaded files: it stores the bytes and inserts the
// pending document record the pipeline picks up.
package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/docingest/internal/document"
	"github.com/nikhilbhutani/docingest/internal/integrity"
	"github.com/nikhilbhutani/docingest/internal/models"
	"github.com/nikhilbhutani/docingest/internal/storage"
)

var (
	ErrMissingFilename = errors.New("filename is required")
	ErrUnsupportedType = errors.New("file type not allowed")
	ErrFileTooLarge    = errors.New("file exceeds maximum size")
	ErrEmptyFile       = errors.New("file is empty")
)

var allowedExtensions = map[string]models.DocType{
	".pdf":  models.DocTypePDF,
	".png":  models.DocTypeImage,
	".jpg":  models.DocTypeImage,
	".jpeg": models.DocTypeImage,
	".tiff": models.DocTypeImage,
	".bmp":  models.DocTypeImage,
}

// DocTypeFor maps a filename to its declared type by extension.
func DocTypeFor(filename string) (models.DocType, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	t, ok := allowedExtensions[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	return t, nil
}

type Service struct {
	store   document.Store
	objects storage.Storage
	bucket  string
	maxSize int64
}

func NewService(store document.Store, objects storage.Storage, bucket string, maxSize int64) *Service {
	return &Service{store: store, objects: objects, bucket: bucket, maxSize: maxSize}
}

// Accept reads one file, uploads it under <id><ext> and creates its pending
// document record.
func (s *Service) Accept(ctx context.Context, filename string, r io.Reader) (*models.Document, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, ErrMissingFilename
	}
	declared, err := DocTypeFor(filename)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxSize {
		return nil, fmt.Errorf("%w of %d bytes", ErrFileTooLarge, s.maxSize)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	id := uuid.New()
	loc := storage.Location{
		Scheme: s.objects.Scheme(),
		Bucket: s.bucket,
		Key:    id.String() + strings.ToLower(filepath.Ext(filename)),
	}
	if err := s.objects.Put(ctx, loc, data, http.DetectContentType(data)); err != nil {
		return nil, fmt.Errorf("upload object: %w", err)
	}

	doc := &models.Document{
		ID:             id,
		SourceLocation: loc.String(),
		ContentHash:    integrity.Hash(data),
		SizeBytes:      int64(len(data)),
		DeclaredType:   declared,
	}
	if err := s.store.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	slog.Info("document accepted",
		"doc_id", doc.ID,
		"filename", filename,
		"size_bytes", doc.SizeBytes,
		"declared_type", doc.DeclaredType,
	)
	return doc, nil
}

// IsClientError reports whether err is caused by the upload itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMissingFilename) ||
		errors.Is(err, ErrUnsupportedType) ||
		errors.Is(err, ErrFileTooLarge) ||
		errors.Is(err, ErrEmptyFile)
}
