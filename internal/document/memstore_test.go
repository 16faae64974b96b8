package document

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/docingest/internal/models"
)

func seed(t *testing.T, s *MemoryStore, createdAt time.Time) *models.Document {
	t.Helper()
	doc := &models.Document{
		SourceLocation: "s3://uploads/" + uuid.NewString() + ".pdf",
		ContentHash:    "abc",
		SizeBytes:      10,
		DeclaredType:   models.DocTypePDF,
		CreatedAt:      createdAt,
	}
	require.NoError(t, s.Create(context.Background(), doc))
	return doc
}

func TestMemoryStore_ClaimPendingOldestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	newest := seed(t, s, base.Add(2*time.Minute))
	oldest := seed(t, s, base)
	middle := seed(t, s, base.Add(time.Minute))

	claimed, err := s.ClaimPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, oldest.ID, claimed[0].ID)
	assert.Equal(t, middle.ID, claimed[1].ID)
	assert.Equal(t, models.DocStatusQueued, claimed[0].Status)

	// already claimed rows are not handed out twice
	again, err := s.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, newest.ID, again[0].ID)
}

func TestMemoryStore_ReleaseClaim(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	doc := seed(t, s, time.Now())

	_, err := s.ClaimPending(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, s.ReleaseClaim(ctx, doc.ID))

	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusPending, got.Status)
	assert.Nil(t, got.QueuedAt)
}

func TestMemoryStore_CompleteSuccessIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	doc := seed(t, s, time.Now())
	_, err := s.ClaimPending(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, s.CompleteSuccess(ctx, doc.ID, "first"))
	err = s.CompleteSuccess(ctx, doc.ID, "second")
	assert.ErrorIs(t, err, ErrStaleOutcome)

	chunk, err := s.ChunkFor(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", chunk.Text)
	assert.Equal(t, 1, s.ChunkCount(doc.ID))
}

func TestMemoryStore_TerminalStatesAreFinal(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	doc := seed(t, s, time.Now())
	_, err := s.ClaimPending(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, s.MarkFailed(ctx, doc.ID, "integrity check failed", false))

	assert.ErrorIs(t, s.CompleteSuccess(ctx, doc.ID, "text"), ErrStaleOutcome)
	assert.ErrorIs(t, s.MarkRetry(ctx, doc.ID, 0), ErrStaleOutcome)
	assert.ErrorIs(t, s.MarkScanned(ctx, doc.ID), ErrStaleOutcome)
	require.NoError(t, s.ReleaseClaim(ctx, doc.ID))

	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusFailed, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	_, err = s.ChunkFor(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_MarkRetryChecksCount(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	doc := seed(t, s, time.Now())
	_, err := s.ClaimPending(ctx, 1)
	require.NoError(t, err)

	assert.ErrorIs(t, s.MarkRetry(ctx, doc.ID, 1), ErrStaleOutcome)
	require.NoError(t, s.MarkRetry(ctx, doc.ID, 0))

	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)
}

func TestMemoryStore_MarkFailedCountsAttempt(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	doc := seed(t, s, time.Now())
	_, err := s.ClaimPending(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, s.MarkFailed(ctx, doc.ID, "extraction failed after retries", true))

	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, "extraction failed after retries", got.ErrorMessage)
}

func TestMemoryStore_ReclaimStale(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	clock := time.Now()
	s.now = func() time.Time { return clock }

	doc := seed(t, s, clock)
	_, err := s.ClaimPending(ctx, 1)
	require.NoError(t, err)

	n, err := s.ReclaimStale(ctx, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock = clock.Add(2 * time.Minute)
	n, err = s.ReclaimStale(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusPending, got.Status)
}

func TestMemoryStore_List(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()
	first := seed(t, s, base)
	second := seed(t, s, base.Add(time.Second))

	all, err := s.List(ctx, "", 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
	assert.Equal(t, first.ID, all[1].ID)

	queued, err := s.List(ctx, models.DocStatusQueued, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, queued)

	_, err = s.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChunkText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text unchanged", "Quarterly revenue", "Quarterly revenue"},
		{"nul bytes stripped", "page\x00one\x00", "pageone"},
		{"invalid utf8 replaced", "caf\xe9 menu", "caf\uFFFD menu"},
		{"valid multibyte kept", "naïve résumé", "naïve résumé"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChunkText(tt.in))
		})
	}
}

func TestMemoryStore_CompleteSuccessStoresCleanText(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	doc := seed(t, s, time.Now())
	_, err := s.ClaimPending(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, s.CompleteSuccess(ctx, doc.ID, "ocr\x00 output \xff"))

	chunk, err := s.ChunkFor(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "ocr output \uFFFD", chunk.Text)
}
