package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/andresuchdata/fetchvault/internal/config"
	"github.com/redis/go-redis/v9"
)

func newTestRedisQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewRedisQueueWithClient(client, "")
	t.Cleanup(func() { _ = q.Close() })
	return q, mr
}

func TestRedisQueueFIFO(t *testing.T) {
	q, mr := newTestRedisQueue(t)
	ctx := context.Background()

	for _, id := range []string{"first", "second"} {
		if err := q.Enqueue(ctx, id); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	if n, _ := q.Len(ctx); n != 2 {
		t.Fatalf("len = %d, want 2", n)
	}
	if items, err := mr.List(defaultQueueKey); err != nil || len(items) != 2 {
		t.Fatalf("redis list = %v, %v", items, err)
	}

	for _, want := range []string{"first", "second"} {
		got, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if got != want {
			t.Fatalf("dequeue = %q, want %q", got, want)
		}
	}
}

func TestRedisQueueDequeueHonoursContext(t *testing.T) {
	q, _ := newTestRedisQueue(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		t.Fatalf("dequeue err = %v, want context error", err)
	}
}

func TestNewRedisQueueFromConfig(t *testing.T) {
	mr := miniredis.RunT(t)
	q, err := New(config.QueueConfig{Backend: config.BackendRedis, RedisURL: "redis://" + mr.Addr(), Key: "custom"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer q.Close()

	if err := q.Enqueue(context.Background(), "x"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if items, _ := mr.List("custom"); len(items) != 1 || items[0] != "x" {
		t.Fatalf("custom key list = %v", items)
	}
}

func TestNewQueueBackends(t *testing.T) {
	q, err := New(config.QueueConfig{Backend: config.BackendMemory})
	if err != nil {
		t.Fatalf("memory backend: %v", err)
	}
	if _, ok := q.(*MemoryQueue); !ok {
		t.Fatalf("memory backend returned %T", q)
	}

	if _, err := New(config.QueueConfig{Backend: "kafka"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestBuildRedisOptions(t *testing.T) {
	opts, err := buildRedisOptions(config.QueueConfig{RedisHost: "cache", RedisPort: "6380", RedisDB: 2})
	if err != nil {
		t.Fatalf("build options: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.DB != 2 {
		t.Fatalf("options = %+v", opts)
	}

	if _, err := buildRedisOptions(config.QueueConfig{RedisURL: "://bad"}); err == nil {
		t.Fatal("expected error for malformed url")
	}
}
