// Package document persists document and chunk records and owns every
// status transition the pipeline performs on them.
package document

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/docingest/internal/models"
)

var (
	ErrNotFound = errors.New("document not found")
	// ErrStaleOutcome is returned when an outcome write no-ops because the
	// document already left the queued state (e.g. a redelivered job).
	ErrStaleOutcome = errors.New("document is no longer queued")
)

// Store is the database of record for documents and their chunks.
//
// Outcome writes (MarkScanned, CompleteSuccess, MarkRetry, MarkFailed) only
// apply while the document is queued, so a duplicate delivery can never move
// a document out of a terminal state or create a second chunk.
type Store interface {
	Create(ctx context.Context, doc *models.Document) error
	Get(ctx context.Context, id uuid.UUID) (*models.Document, error)
	List(ctx context.Context, status string, limit, offset int) ([]models.Document, error)
	ChunkFor(ctx context.Context, id uuid.UUID) (*models.Chunk, error)

	// ClaimPending atomically moves up to limit pending documents, oldest
	// first, to queued and returns them.
	ClaimPending(ctx context.Context, limit int) ([]models.Document, error)
	// ReleaseClaim returns a queued document to pending.
	ReleaseClaim(ctx context.Context, id uuid.UUID) error
	// ReclaimStale returns documents queued longer than olderThan to pending.
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error)

	MarkScanned(ctx context.Context, id uuid.UUID) error
	CompleteSuccess(ctx context.Context, id uuid.UUID, text string) error
	// MarkRetry increments retry_count and returns the document to pending.
	// retryCount is the value the caller read; a mismatch is a stale outcome.
	MarkRetry(ctx context.Context, id uuid.UUID, retryCount int) error
	// MarkFailed sets the terminal failed status. countAttempt also
	// increments retry_count, used when retries are exhausted.
	MarkFailed(ctx context.Context, id uuid.UUID, msg string, countAttempt bool) error
}

// ChunkText makes extracted text storable in a Postgres TEXT column, which
// rejects NUL bytes and invalid UTF-8.
func ChunkText(text string) string {
	text = strings.ToValidUTF8(text, "\uFFFD")
	return strings.ReplaceAll(text, "\x00", "")
}
