package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotConfigured is wrapped by every operation when credentials are missing.
var ErrNotConfigured = errors.New("object storage credentials not configured")

// ObjectMetadata is what a HEAD on an object reports.
type ObjectMetadata struct {
	Size         int64
	ContentType  string
	LastModified time.Time
}

// ProgressFunc receives cumulative bytes sent and the total being uploaded.
type ProgressFunc func(sent, total int64)

// ObjectStorage captures the S3-compatible operations the download pipeline needs.
type ObjectStorage interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, progress ProgressFunc) (string, error)
	SignedGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	HeadMetadata(ctx context.Context, key string) (ObjectMetadata, error)
	Locator(key string) string
}
