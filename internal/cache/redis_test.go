package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/docingest/internal/models"
)

func newCache(t *testing.T) (*DocumentCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewDocumentCache(rdb, time.Minute), mr
}

func TestDocumentCache_TerminalOnly(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()

	pending := &models.Document{ID: uuid.New(), Status: models.DocStatusQueued}
	stored, err := c.Put(ctx, pending)
	require.NoError(t, err)
	assert.False(t, stored)

	got, err := c.Get(ctx, pending.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	done := &models.Document{ID: uuid.New(), Status: models.DocStatusFailed, RetryCount: 3, ErrorMessage: "extraction failed after retries"}
	stored, err = c.Put(ctx, done)
	require.NoError(t, err)
	assert.True(t, stored)

	got, err = c.Get(ctx, done.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, done.RetryCount, got.RetryCount)
	assert.Equal(t, done.ErrorMessage, got.ErrorMessage)
}

func TestDocumentCache_ExpiresAndDeletes(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	doc := &models.Document{ID: uuid.New(), Status: models.DocStatusSuccess}
	_, err := c.Put(ctx, doc)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	got, err := c.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = c.Put(ctx, doc)
	require.NoError(t, err)
	require.NoError(t, c.Delete(ctx, doc.ID))
	got, err = c.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
