package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/docingest/internal/config"
)

// RedisBroker keeps the backlog in a Redis list. Received jobs are moved
// atomically to a processing list and removed from it on Ack, so a crashed
// consumer leaves its job recoverable via Recover.
type RedisBroker struct {
	rdb        *redis.Client
	queue      string
	processing string
}

func NewRedisBroker(cfg config.RedisConfig, queue string) *RedisBroker {
	return NewRedisBrokerWithClient(redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), queue)
}

func NewRedisBrokerWithClient(rdb *redis.Client, queue string) *RedisBroker {
	return &RedisBroker{rdb: rdb, queue: queue, processing: queue + ":processing"}
}

func (b *RedisBroker) Publish(ctx context.Context, job Job) error {
	data, err := job.Encode()
	if err != nil {
		return err
	}
	if err := b.rdb.LPush(ctx, b.queue, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", job.DocumentID, err)
	}
	return nil
}

func (b *RedisBroker) Receive(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	raw, err := b.rdb.BRPopLPush(ctx, b.queue, b.processing, timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("receive from %s: %w", b.queue, err)
	}

	job, err := DecodeJob([]byte(raw))
	if err != nil {
		// Poison message: drop it from processing so it is not recovered forever.
		if lerr := b.rdb.LRem(ctx, b.processing, 1, raw).Err(); lerr != nil {
			slog.Error("drop undecodable job failed", "queue", b.queue, "error", lerr)
		}
		return nil, err
	}
	return &Delivery{
		Job: job,
		ack: func(ctx context.Context) error {
			if err := b.rdb.LRem(ctx, b.processing, 1, raw).Err(); err != nil {
				return fmt.Errorf("ack %s: %w", job.DocumentID, err)
			}
			return nil
		},
	}, nil
}

// Recover moves every unacknowledged job back onto the backlog.
func (b *RedisBroker) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := b.rdb.RPopLPush(ctx, b.processing, b.queue).Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("recover %s: %w", b.processing, err)
		}
		n++
	}
}

// Depth returns the backlog and in-flight lengths.
func (b *RedisBroker) Depth(ctx context.Context) (backlog, inflight int64, err error) {
	if backlog, err = b.rdb.LLen(ctx, b.queue).Result(); err != nil {
		return 0, 0, fmt.Errorf("llen %s: %w", b.queue, err)
	}
	if inflight, err = b.rdb.LLen(ctx, b.processing).Result(); err != nil {
		return 0, 0, fmt.Errorf("llen %s: %w", b.processing, err)
	}
	return backlog, inflight, nil
}

func (b *RedisBroker) Close() error {
	return b.rdb.Close()
}
