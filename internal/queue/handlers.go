package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/hibiken/asynq"
)

// HandlersRegistry routes asynq task types to handlers.
type HandlersRegistry struct {
	mux *asynq.ServeMux
}

func NewHandlersRegistry() *HandlersRegistry {
	return &HandlersRegistry{
		mux: asynq.NewServeMux(),
	}
}

func (r *HandlersRegistry) Register(taskType string, handler asynq.Handler) {
	r.mux.Handle(taskType, handler)
}

func (r *HandlersRegistry) Mux() *asynq.ServeMux {
	return r.mux
}

func (b *AsynqBroker) start() error {
	b.startOnce.Do(func() {
		registry := NewHandlersRegistry()
		registry.Register(TypeDocumentParse, asynq.HandlerFunc(b.handle))
		b.startErr = b.server.Start(registry.Mux())
	})
	return b.startErr
}

func (b *AsynqBroker) handle(ctx context.Context, t *asynq.Task) error {
	job, err := DecodeJob(t.Payload())
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	done := make(chan struct{})
	var once sync.Once
	d := &Delivery{
		Job: job,
		ack: func(context.Context) error {
			once.Do(func() { close(done) })
			return nil
		},
	}

	select {
	case b.deliveries <- d:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		// lease expired or server shutting down; asynq will redeliver
		return ctx.Err()
	}
}
