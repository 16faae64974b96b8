package models

import (
	"time"

	"github.com/google/uuid"
)

type Document struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	SourceLocation string     `json:"source_location" db:"source_location"`
	ContentHash    string     `json:"content_hash" db:"content_hash"`
	SizeBytes      int64      `json:"size_bytes" db:"size_bytes"`
	DeclaredType   DocType    `json:"declared_type" db:"declared_type"`
	Status         string     `json:"status" db:"status"`
	RetryCount     int        `json:"retry_count" db:"retry_count"`
	ErrorMessage   string     `json:"error_message,omitempty" db:"error_message"`
	QueuedAt       *time.Time `json:"queued_at,omitempty" db:"queued_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// Terminal reports whether no further automatic transition can happen.
func (d *Document) Terminal() bool {
	return d.Status == DocStatusSuccess || d.Status == DocStatusFailed
}

// Chunk holds extracted text for a document. PageNumber, StartToken and
// EndToken are reserved for a finer-grained chunker and stay nil.
type Chunk struct {
	ID         uuid.UUID `json:"id" db:"id"`
	DocumentID uuid.UUID `json:"document_id" db:"document_id"`
	PageNumber *int      `json:"page_number,omitempty" db:"page_number"`
	StartToken *int      `json:"start_token,omitempty" db:"start_token"`
	EndToken   *int      `json:"end_token,omitempty" db:"end_token"`
	Text       string    `json:"text" db:"text"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

const (
	DocStatusPending = "pending"
	DocStatusQueued  = "queued"
	DocStatusSuccess = "success"
	DocStatusFailed  = "failed"
)

type DocType string

const (
	DocTypePDF     DocType = "pdf"
	DocTypeImage   DocType = "image"
	DocTypeScanned DocType = "scanned"
)

func (t DocType) Valid() bool {
	switch t {
	case DocTypePDF, DocTypeImage, DocTypeScanned:
		return true
	}
	return false
}

// NeedsOCR reports whether the type goes through the OCR chain.
func (t DocType) NeedsOCR() bool {
	return t == DocTypeImage || t == DocTypeScanned
}
