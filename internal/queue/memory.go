package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryBroker is an in-process Broker for tests. FailPublish, when set,
// decides per job whether Publish fails.
type MemoryBroker struct {
	mu          sync.Mutex
	jobs        chan Job
	published   []Job
	acked       int
	closed      bool
	FailPublish func(Job) error
}

func NewMemoryBroker(capacity int) *MemoryBroker {
	return &MemoryBroker{jobs: make(chan Job, capacity)}
}

func (b *MemoryBroker) Publish(_ context.Context, job Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.FailPublish != nil {
		if err := b.FailPublish(job); err != nil {
			return err
		}
	}
	b.published = append(b.published, job)
	b.jobs <- job
	return nil
}

func (b *MemoryBroker) Receive(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case job, ok := <-b.jobs:
		if !ok {
			return nil, ErrClosed
		}
		return &Delivery{Job: job, ack: func(context.Context) error {
			b.mu.Lock()
			b.acked++
			b.mu.Unlock()
			return nil
		}}, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Published returns every job accepted so far.
func (b *MemoryBroker) Published() []Job {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Job(nil), b.published...)
}

func (b *MemoryBroker) Acked() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acked
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.jobs)
	}
	return nil
}
