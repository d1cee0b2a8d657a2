package queue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/andresuchdata/fetchvault/internal/config"
	"github.com/redis/go-redis/v9"
)

const (
	defaultQueueKey = "fetchvault:downloads:queue"
	// blockTimeout bounds each BRPOP so ctx cancellation is noticed.
	blockTimeout = 2 * time.Second
)

// RedisQueue is a FIFO on a Redis list shared by any number of processes.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue connects and pings Redis.
func NewRedisQueue(cfg config.QueueConfig) (*RedisQueue, error) {
	client, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewRedisQueueWithClient(client, cfg.Key), nil
}

// NewRedisQueueWithClient wraps an existing client.
func NewRedisQueueWithClient(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = defaultQueueKey
	}
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Enqueue(ctx context.Context, downloadID string) error {
	if err := q.client.LPush(ctx, q.key, downloadID).Err(); err != nil {
		if errors.Is(err, redis.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("redis lpush failed: %w", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		res, err := q.client.BRPop(ctx, blockTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if errors.Is(err, redis.ErrClosed) {
				return "", ErrClosed
			}
			return "", fmt.Errorf("redis brpop failed: %w", err)
		}
		// BRPOP returns [key, value]
		if len(res) == 2 {
			return res[1], nil
		}
	}
}

// Ping checks connectivity.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Len reports queued items.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

var _ Queue = (*RedisQueue)(nil)

func newRedisClient(cfg config.QueueConfig) (*redis.Client, error) {
	opts, err := buildRedisOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

func buildRedisOptions(cfg config.QueueConfig) (*redis.Options, error) {
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return opt, nil
	}

	host := cfg.RedisHost
	if host == "" {
		host = "127.0.0.1"
	}

	port := cfg.RedisPort
	if port == "" {
		port = "6379"
	}

	return &redis.Options{
		Addr:     net.JoinHostPort(host, port),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		// BRPOP holds the connection for blockTimeout
		ReadTimeout: blockTimeout + 3*time.Second,
	}, nil
}
