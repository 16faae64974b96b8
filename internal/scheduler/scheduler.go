// Package scheduler moves pending documents onto the work queue.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nikhilbhutani/docingest/internal/config"
	"github.com/nikhilbhutani/docingest/internal/document"
	"github.com/nikhilbhutani/docingest/internal/models"
	"github.com/nikhilbhutani/docingest/internal/queue"
)

// settleTimeout bounds each publish or release of an already claimed
// document. Those calls outlive the tick's context.
const settleTimeout = 5 * time.Second

// Recorder counts published jobs.
type Recorder interface {
	Enqueued(n int)
}

type Result struct {
	Claimed   int
	Published int
	Released  int
	Reclaimed int64
}

// Scheduler claims before it publishes, so concurrent instances never hand
// the same document to the queue twice from one pending state.
type Scheduler struct {
	store        document.Store
	broker       queue.Broker
	metrics      Recorder
	batchSize    int
	interval     time.Duration
	reclaimAfter time.Duration
}

func New(store document.Store, broker queue.Broker, metrics Recorder, cfg config.SchedulerConfig) *Scheduler {
	batch := cfg.BatchSize
	if batch < 1 {
		batch = 50
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Scheduler{
		store:        store,
		broker:       broker,
		metrics:      metrics,
		batchSize:    batch,
		interval:     interval,
		reclaimAfter: cfg.ReclaimAfter,
	}
}

// RunOnce performs one tick. Documents whose publish fails go back to
// pending for the next tick.
func (s *Scheduler) RunOnce(ctx context.Context) (Result, error) {
	var res Result

	if s.reclaimAfter > 0 {
		n, err := s.store.ReclaimStale(ctx, s.reclaimAfter)
		if err != nil {
			slog.Warn("reclaim stale documents failed", "error", err)
		} else if n > 0 {
			slog.Info("reclaimed stale queued documents", "count", n, "older_than", s.reclaimAfter.String())
		}
		res.Reclaimed = n
	}

	docs, err := s.store.ClaimPending(ctx, s.batchSize)
	if err != nil {
		return res, fmt.Errorf("claim pending documents: %w", err)
	}
	res.Claimed = len(docs)

	// The claim has committed: every claimed document must end up either
	// published or released, even when ctx is cancelled mid-batch.
	var publishErr error
	for i := range docs {
		doc := &docs[i]
		err := ctx.Err()
		if err == nil {
			err = s.publish(ctx, doc)
		}
		if err != nil {
			slog.Error("publish job failed", "doc_id", doc.ID, "error", err)
			publishErr = errors.Join(publishErr, err)
			if err := s.release(ctx, doc); err != nil {
				slog.Error("release claim failed", "doc_id", doc.ID, "error", err)
				continue
			}
			res.Released++
			continue
		}
		res.Published++
	}

	if s.metrics != nil && res.Published > 0 {
		s.metrics.Enqueued(res.Published)
	}
	if res.Claimed > 0 {
		slog.Info("scheduler tick",
			"claimed", res.Claimed,
			"published", res.Published,
			"released", res.Released,
		)
	}
	if publishErr != nil {
		return res, fmt.Errorf("publish jobs: %w", publishErr)
	}
	return res, nil
}

func (s *Scheduler) publish(ctx context.Context, doc *models.Document) error {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	return s.broker.Publish(pctx, queue.JobFor(doc))
}

func (s *Scheduler) release(ctx context.Context, doc *models.Document) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	return s.store.ReleaseClaim(rctx, doc.ID)
}

// Run ticks until ctx is cancelled. Tick errors are logged and retried on
// the next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler started", "interval", s.interval.String(), "batch_size", s.batchSize)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			slog.Error("scheduler tick failed", "error", err)
		}

		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}
