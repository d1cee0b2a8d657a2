package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/andresuchdata/fetchvault/internal/config"
	"github.com/andresuchdata/fetchvault/internal/domain"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

const (
	defaultRegion   = "auto"
	defaultPartSize = 10 << 20
	minPartSize     = 5 << 20
)

// retryOnce limits minio to a single attempt per request. The pipeline owns
// failure handling, and minio only exposes this as a package setting.
var retryOnce sync.Once

// Option customises the underlying minio client.
type Option func(*minio.Options)

// WithTransport overrides the HTTP transport used for storage calls.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *minio.Options) {
		o.Transport = rt
	}
}

// R2Client implements ObjectStorage for Cloudflare R2 and other S3-compatible services.
type R2Client struct {
	client        *minio.Client
	bucket        string
	endpointURL   string
	publicBaseURL string
	partSize      uint64
	threads       uint
}

// NewR2Client builds a client from cfg. Missing credentials do not fail here;
// the returned client reports ErrNotConfigured from every operation instead.
func NewR2Client(cfg config.StorageConfig, opts ...Option) (*R2Client, error) {
	endpoint, secure := resolveEndpoint(cfg)

	c := &R2Client{
		bucket:        cfg.Bucket,
		endpointURL:   endpointURL(endpoint, secure),
		publicBaseURL: strings.TrimSuffix(resolvePublicBaseURL(cfg), "/"),
		partSize:      partSize(cfg.PartSizeMB),
		threads:       uploadThreads(cfg.UploadThreads),
	}

	if cfg.AccessKey == "" || cfg.SecretKey == "" || endpoint == "" || cfg.Bucket == "" {
		log.Warn().
			Bool("has_access_key", cfg.AccessKey != "").
			Bool("has_secret_key", cfg.SecretKey != "").
			Str("endpoint", endpoint).
			Str("bucket", cfg.Bucket).
			Msg("object storage not configured; set R2_ACCOUNT_ID (or STORAGE_ENDPOINT), R2_ACCESS_KEY_ID and R2_SECRET_ACCESS_KEY")
		return c, nil
	}

	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = defaultRegion
	}

	minioOpts := &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       secure,
		Region:       region,
		BucketLookup: minio.BucketLookupPath,
	}
	for _, opt := range opts {
		opt(minioOpts)
	}

	retryOnce.Do(func() { minio.MaxRetry = 1 })

	client, err := minio.New(endpoint, minioOpts)
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}
	c.client = client

	return c, nil
}

// Configured reports whether the client can talk to the backend.
func (c *R2Client) Configured() bool {
	return c.client != nil
}

func (c *R2Client) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, progress ProgressFunc) (string, error) {
	if c.client == nil {
		return "", &domain.StorageError{Op: "put", Key: key, Err: ErrNotConfigured}
	}
	if contentType == "" {
		contentType = domain.DefaultContentType
	}

	opts := minio.PutObjectOptions{
		ContentType: contentType,
		PartSize:    c.partSize,
		NumThreads:  c.threads,
	}
	if progress != nil {
		opts.Progress = newProgressReader(size, progress)
	}

	if _, err := c.client.PutObject(ctx, c.bucket, key, body, size, opts); err != nil {
		return "", &domain.StorageError{Op: "put", Key: key, Err: err}
	}
	return c.Locator(key), nil
}

// SignedGet presigns a GET for an existing object.
func (c *R2Client) SignedGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if c.client == nil {
		return "", &domain.StorageError{Op: "sign", Key: key, Err: ErrNotConfigured}
	}

	exists, err := c.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", &domain.StorageError{Op: "sign", Key: key, Err: domain.ErrNotFound}
	}

	u, err := c.client.PresignedGetObject(ctx, c.bucket, key, ttl, nil)
	if err != nil {
		return "", &domain.StorageError{Op: "sign", Key: key, Err: err}
	}
	return u.String(), nil
}

func (c *R2Client) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := c.HeadMetadata(ctx, key); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *R2Client) HeadMetadata(ctx context.Context, key string) (ObjectMetadata, error) {
	if c.client == nil {
		return ObjectMetadata{}, &domain.StorageError{Op: "head", Key: key, Err: ErrNotConfigured}
	}

	info, err := c.client.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
			return ObjectMetadata{}, &domain.StorageError{Op: "head", Key: key, Err: domain.ErrNotFound}
		}
		return ObjectMetadata{}, &domain.StorageError{Op: "head", Key: key, Err: err}
	}

	return ObjectMetadata{
		Size:         info.Size,
		ContentType:  info.ContentType,
		LastModified: info.LastModified,
	}, nil
}

// Locator returns the public URL recorded on a completed download.
func (c *R2Client) Locator(key string) string {
	if c.publicBaseURL != "" {
		return c.publicBaseURL + "/" + key
	}
	return fmt.Sprintf("%s/%s/%s", c.endpointURL, c.bucket, key)
}

var _ ObjectStorage = (*R2Client)(nil)

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

// resolveEndpoint returns host[:port] and whether TLS is used.
func resolveEndpoint(cfg config.StorageConfig) (string, bool) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	secure := cfg.UseSSL

	if endpoint == "" && cfg.AccountID != "" {
		return fmt.Sprintf("%s.r2.cloudflarestorage.com", cfg.AccountID), true
	}

	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint, secure = strings.TrimPrefix(endpoint, "https://"), true
	case strings.HasPrefix(endpoint, "http://"):
		endpoint, secure = strings.TrimPrefix(endpoint, "http://"), false
	}
	return strings.TrimSuffix(strings.TrimPrefix(endpoint, "//"), "/"), secure
}

func endpointURL(endpoint string, secure bool) string {
	scheme := "https"
	if !secure {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s", scheme, endpoint)
}

func resolvePublicBaseURL(cfg config.StorageConfig) string {
	if cfg.PublicBaseURL != "" {
		return cfg.PublicBaseURL
	}
	if cfg.AccountID != "" && cfg.Endpoint == "" {
		return fmt.Sprintf("https://pub-%s.r2.dev", cfg.AccountID)
	}
	return ""
}

func partSize(mb int) uint64 {
	if mb <= 0 {
		return defaultPartSize
	}
	size := uint64(mb) << 20
	if size < minPartSize {
		return minPartSize
	}
	return size
}

func uploadThreads(n int) uint {
	if n <= 0 {
		return 4
	}
	return uint(n)
}
