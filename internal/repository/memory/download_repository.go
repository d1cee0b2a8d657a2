package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/andresuchdata/fetchvault/internal/domain"
	"github.com/andresuchdata/fetchvault/internal/repository"
)

type entry struct {
	seq      int64
	download *domain.Download
}

// DownloadRepository keeps downloads in process memory. Records are copied on
// the way in and out so callers never share state with the store.
type DownloadRepository struct {
	mu      sync.RWMutex
	entries map[string]*entry
	seq     int64
	now     func() time.Time
}

func NewDownloadRepository() *DownloadRepository {
	return &DownloadRepository{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// SetClock overrides the timestamp source.
func (r *DownloadRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *DownloadRepository) Create(ctx context.Context, d *domain.Download) (*domain.Download, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[d.DownloadID]; exists {
		return nil, domain.ErrDuplicateID
	}

	stored := d.Clone()
	now := r.now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.seq++
	r.entries[d.DownloadID] = &entry{seq: r.seq, download: stored}

	return stored.Clone(), nil
}

func (r *DownloadRepository) Get(ctx context.Context, downloadID string) (*domain.Download, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[downloadID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e.download.Clone(), nil
}

func (r *DownloadRepository) UpdateFields(ctx context.Context, downloadID string, update domain.DownloadUpdate) (*domain.Download, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[downloadID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if update.IsEmpty() {
		return e.download.Clone(), nil
	}

	next := e.download.Clone()
	update.Apply(next)
	next.UpdatedAt = r.now()
	e.download = next

	return next.Clone(), nil
}

func (r *DownloadRepository) IncrementCounter(ctx context.Context, downloadID string, field domain.CounterField, delta int64, match domain.Match) (*domain.Download, error) {
	if err := repository.ValidateIncrement(field, delta); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[downloadID]
	if !ok || !match.Matches(e.download) {
		return nil, domain.ErrNotFound
	}

	next := e.download.Clone()
	next.DownloadCount += delta
	next.UpdatedAt = r.now()
	e.download = next

	return next.Clone(), nil
}

func (r *DownloadRepository) List(ctx context.Context, limit int) ([]*domain.Download, error) {
	limit = repository.NormalizeLimit(limit)

	r.mu.RLock()
	all := make([]entry, 0, len(r.entries))
	for _, e := range r.entries {
		all = append(all, entry{seq: e.seq, download: e.download.Clone()})
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		a, b := all[i].download, all[j].download
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return all[i].seq > all[j].seq
	})

	if len(all) > limit {
		all = all[:limit]
	}

	results := make([]*domain.Download, 0, len(all))
	for _, e := range all {
		results = append(results, e.download)
	}
	return results, nil
}

var _ repository.DownloadRepository = (*DownloadRepository)(nil)
