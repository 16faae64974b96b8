package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nikhilbhutani/docingest/internal/config"
)

var ErrClosed = errors.New("broker closed")

// Broker is a durable FIFO backlog with at-least-once delivery.
type Broker interface {
	Publish(ctx context.Context, job Job) error
	// Receive blocks up to timeout and returns nil, nil when nothing arrived.
	Receive(ctx context.Context, timeout time.Duration) (*Delivery, error)
	Close() error
}

// Delivery is one received job. Ack tells the broker the job reached an
// outcome and must not be redelivered.
type Delivery struct {
	Job Job
	ack func(context.Context) error
}

func (d *Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

// New builds the broker selected by QUEUE_BACKEND. concurrency sizes the
// asynq server and must match the number of consumer loops.
func New(qcfg config.QueueConfig, rcfg config.RedisConfig, concurrency int) (Broker, error) {
	switch qcfg.Backend {
	case "redis":
		return NewRedisBroker(rcfg, qcfg.Name), nil
	case "asynq":
		return NewAsynqBroker(rcfg, qcfg.Name, concurrency), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", qcfg.Backend)
	}
}
