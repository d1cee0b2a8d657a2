package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/andresuchdata/fetchvault/internal/config"
)

// ErrClosed is returned once a queue has been closed.
var ErrClosed = errors.New("queue closed")

// Queue hands download ids from the API to pipeline workers.
type Queue interface {
	// Enqueue must not wait on pipeline work.
	Enqueue(ctx context.Context, downloadID string) error
	// Dequeue blocks until an id is available, ctx is done or the queue is closed.
	Dequeue(ctx context.Context) (string, error)
	Close() error
}

// New builds the queue selected by cfg.Backend.
func New(cfg config.QueueConfig) (Queue, error) {
	switch cfg.Backend {
	case "", config.BackendMemory:
		return NewMemoryQueue(), nil
	case config.BackendRedis:
		return NewRedisQueue(cfg)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}
