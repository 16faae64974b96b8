// Package cache keeps read-through copies of document records in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/docingest/internal/models"
)

// DocumentCache only stores terminal documents: their status, retry count
// and error message can no longer change, so entries never go stale.
type DocumentCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDocumentCache(client *redis.Client, ttl time.Duration) *DocumentCache {
	return &DocumentCache{client: client, ttl: ttl}
}

func key(id uuid.UUID) string { return "doc:" + id.String() }

// Get returns nil, nil on a miss.
func (c *DocumentCache) Get(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	val, err := c.client.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", id, err)
	}
	var doc models.Document
	if err := json.Unmarshal(val, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal cached document: %w", err)
	}
	return &doc, nil
}

// Put caches doc if it is terminal and reports whether it did.
func (c *DocumentCache) Put(ctx context.Context, doc *models.Document) (bool, error) {
	if !doc.Terminal() {
		return false, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("marshal document: %w", err)
	}
	if err := c.client.Set(ctx, key(doc.ID), data, c.ttl).Err(); err != nil {
		return false, fmt.Errorf("cache set %s: %w", doc.ID, err)
	}
	return true, nil
}

func (c *DocumentCache) Delete(ctx context.Context, ids ...uuid.UUID) error {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}
	return c.client.Del(ctx, keys...).Err()
}
