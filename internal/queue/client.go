package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/docingest/internal/config"
)

const (
	// asynqLease bounds how long a delivered task may stay unacknowledged
	// before asynq hands it to another consumer.
	asynqLease       = 10 * time.Minute
	asynqRedelivery  = 5
	asynqShutdownCap = 30 * time.Second
)

// AsynqBroker publishes through asynq.Client and bridges the push-style
// asynq.Server into Receive: the task handler parks until the consumer acks.
type AsynqBroker struct {
	client     *asynq.Client
	server     *asynq.Server
	queue      string
	deliveries chan *Delivery

	startOnce sync.Once
	startErr  error
}

func NewAsynqBroker(cfg config.RedisConfig, queue string, concurrency int) *AsynqBroker {
	opt := asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &AsynqBroker{
		client: asynq.NewClient(opt),
		server: asynq.NewServer(opt, asynq.Config{
			Concurrency:     concurrency,
			Queues:          map[string]int{queue: 1},
			ShutdownTimeout: asynqShutdownCap,
			RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
				return time.Duration(n) * time.Second
			},
		}),
		queue:      queue,
		deliveries: make(chan *Delivery),
	}
}

func (b *AsynqBroker) Publish(ctx context.Context, job Job) error {
	data, err := job.Encode()
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeDocumentParse, data)
	_, err = b.client.EnqueueContext(ctx, task,
		asynq.Queue(b.queue),
		asynq.MaxRetry(asynqRedelivery),
		asynq.Timeout(asynqLease),
		// one live task per claim
		asynq.TaskID(job.TaskID()),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		// this claim is already on the queue
		slog.Warn("job already enqueued", "doc_id", job.DocumentID, "task_id", job.TaskID())
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", job.DocumentID, err)
	}
	return nil
}

func (b *AsynqBroker) Receive(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	if err := b.start(); err != nil {
		if errors.Is(err, asynq.ErrServerClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("start asynq server: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case d := <-b.deliveries:
		return d, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *AsynqBroker) Close() error {
	b.server.Shutdown()
	return b.client.Close()
}
