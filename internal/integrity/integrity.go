// Package integrity checks fetched bytes against the intake hash and moves
// suspect objects into quarantine.
package integrity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/docingest/internal/storage"
)

var ErrHashMismatch = errors.New("content hash mismatch")

// Hash returns the lowercase hex SHA-256 of data, the form stored at intake.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the hash of data and compares it to expected.
func Verify(data []byte, expected string) error {
	got := Hash(data)
	if !strings.EqualFold(got, strings.TrimSpace(expected)) {
		return fmt.Errorf("%w: expected %s, got %s", ErrHashMismatch, expected, got)
	}
	return nil
}

// Quarantiner copies objects into the quarantine bucket under a key derived
// from the document id. Copies are retried with exponential backoff.
type Quarantiner struct {
	store     storage.Storage
	bucket    string
	attempts  int
	baseDelay time.Duration
}

func NewQuarantiner(store storage.Storage, bucket string, attempts int) *Quarantiner {
	if attempts < 1 {
		attempts = 1
	}
	return &Quarantiner{store: store, bucket: bucket, attempts: attempts, baseDelay: 200 * time.Millisecond}
}

// Key returns the quarantine destination for a document's source object.
func (q *Quarantiner) Key(id uuid.UUID, src storage.Location) storage.Location {
	return storage.Location{Scheme: src.Scheme, Bucket: q.bucket, Key: id.String() + src.Ext()}
}

// Quarantine copies src into quarantine. A copy that still fails after the
// last attempt is logged and returned; callers record the failure anyway.
func (q *Quarantiner) Quarantine(ctx context.Context, id uuid.UUID, src storage.Location) error {
	dst := q.Key(id, src)
	err := retryWithBackoff(ctx, func() error {
		return q.store.Copy(ctx, src, dst)
	}, q.attempts, q.baseDelay)
	if err != nil {
		slog.Error("quarantine copy failed",
			"doc_id", id,
			"source", src.String(),
			"destination", dst.String(),
			"attempts", q.attempts,
			"error", err,
		)
		return fmt.Errorf("quarantine %s: %w", id, err)
	}
	slog.Info("document quarantined", "doc_id", id, "destination", dst.String())
	return nil
}

func retryWithBackoff(ctx context.Context, op func() error, maxAttempts int, baseDelay time.Duration) error {
	var lastErr error
	delay := baseDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		slog.Debug("quarantine copy failed, will retry", "attempt", attempt, "max_attempts", maxAttempts, "error", lastErr)

		if attempt == maxAttempts {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr)
}
