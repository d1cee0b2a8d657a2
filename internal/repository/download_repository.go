package repository

import (
	"context"

	"github.com/andresuchdata/fetchvault/internal/domain"
)

// DefaultListLimit caps listings when the caller passes no limit.
const DefaultListLimit = 50

// DownloadRepository is the durable store of download jobs, keyed by download id.
// Every mutation is a single atomic operation so readers never observe a torn write.
type DownloadRepository interface {
	Create(ctx context.Context, d *domain.Download) (*domain.Download, error)
	Get(ctx context.Context, downloadID string) (*domain.Download, error)
	UpdateFields(ctx context.Context, downloadID string, update domain.DownloadUpdate) (*domain.Download, error)
	// IncrementCounter adds delta to field when the row satisfies match. It returns
	// domain.ErrNotFound both for a missing row and for an unmet condition.
	IncrementCounter(ctx context.Context, downloadID string, field domain.CounterField, delta int64, match domain.Match) (*domain.Download, error)
	List(ctx context.Context, limit int) ([]*domain.Download, error)
}

// ValidateIncrement rejects counters that are not whitelisted and negative deltas.
func ValidateIncrement(field domain.CounterField, delta int64) error {
	if field != domain.CounterDownloadCount {
		return domain.InvalidInput("unsupported counter " + string(field))
	}
	if delta < 0 {
		return domain.InvalidInput("counter delta must not be negative")
	}
	return nil
}

// NormalizeLimit applies DefaultListLimit to non-positive limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
