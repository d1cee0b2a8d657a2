package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/andresuchdata/fetchvault/internal/domain"
)

func newDownload(id string) *domain.Download {
	return &domain.Download{
		ID:          "pk-" + id,
		DownloadID:  id,
		SourceURL:   "https://example.com/" + id + ".zip",
		FileName:    id + ".zip",
		StorageKey:  domain.StorageKey(id, id+".zip"),
		ContentType: domain.DefaultContentType,
		Status:      domain.StatusPending,
	}
}

func TestCreateAndGet(t *testing.T) {
	repo := NewDownloadRepository()
	ctx := context.Background()

	created, err := repo.Create(ctx, newDownload("a"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Fatal("timestamps not set")
	}

	if _, err := repo.Create(ctx, newDownload("a")); !errors.Is(err, domain.ErrDuplicateID) {
		t.Fatalf("duplicate Create() error = %v, want ErrDuplicateID", err)
	}

	got, err := repo.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got.Progress = 99
	again, _ := repo.Get(ctx, "a")
	if again.Progress != 0 {
		t.Fatal("Get() returned shared state")
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestUpdateFields(t *testing.T) {
	repo := NewDownloadRepository()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := base
	repo.SetClock(func() time.Time { tick = tick.Add(time.Second); return tick })

	if _, err := repo.Create(ctx, newDownload("a")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	updated, err := repo.UpdateFields(ctx, "a", domain.DownloadUpdate{
		Status:   domain.StatusPtr(domain.StatusDownloading),
		Progress: domain.IntPtr(5),
	})
	if err != nil {
		t.Fatalf("UpdateFields() error = %v", err)
	}
	if updated.Status != domain.StatusDownloading || updated.Progress != 5 {
		t.Fatalf("updated = %+v", updated)
	}
	if !updated.UpdatedAt.After(updated.CreatedAt) {
		t.Fatal("updated_at not advanced")
	}
	if updated.FileName != "a.zip" {
		t.Fatalf("untouched field changed: %q", updated.FileName)
	}

	if _, err := repo.UpdateFields(ctx, "missing", domain.DownloadUpdate{Progress: domain.IntPtr(1)}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("UpdateFields(missing) error = %v", err)
	}
}

func TestIncrementCounterConditional(t *testing.T) {
	repo := NewDownloadRepository()
	ctx := context.Background()
	repo.Create(ctx, newDownload("a"))

	completed := domain.Match{Status: domain.StatusCompleted}
	if _, err := repo.IncrementCounter(ctx, "a", domain.CounterDownloadCount, 1, completed); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("increment on pending error = %v, want ErrNotFound", err)
	}

	repo.UpdateFields(ctx, "a", domain.DownloadUpdate{Status: domain.StatusPtr(domain.StatusCompleted)})
	for i := 1; i <= 2; i++ {
		d, err := repo.IncrementCounter(ctx, "a", domain.CounterDownloadCount, 1, completed)
		if err != nil {
			t.Fatalf("increment %d error = %v", i, err)
		}
		if d.DownloadCount != int64(i) {
			t.Fatalf("download count = %d, want %d", d.DownloadCount, i)
		}
	}

	if _, err := repo.IncrementCounter(ctx, "a", domain.CounterDownloadCount, -1, completed); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("negative delta error = %v, want ErrInvalidInput", err)
	}
	if _, err := repo.IncrementCounter(ctx, "a", domain.CounterField("progress"), 1, completed); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("unknown field error = %v, want ErrInvalidInput", err)
	}
	if _, err := repo.IncrementCounter(ctx, "missing", domain.CounterDownloadCount, 1, completed); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing error = %v, want ErrNotFound", err)
	}
}

func TestIncrementCounterConcurrent(t *testing.T) {
	repo := NewDownloadRepository()
	ctx := context.Background()
	d := newDownload("a")
	d.Status = domain.StatusCompleted
	repo.Create(ctx, d)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			repo.IncrementCounter(ctx, "a", domain.CounterDownloadCount, 1, domain.Match{Status: domain.StatusCompleted})
		}()
	}
	wg.Wait()

	got, _ := repo.Get(ctx, "a")
	if got.DownloadCount != 50 {
		t.Fatalf("download count = %d, want 50", got.DownloadCount)
	}
}

func TestListNewestFirst(t *testing.T) {
	repo := NewDownloadRepository()
	ctx := context.Background()
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.SetClock(func() time.Time { tick = tick.Add(time.Minute); return tick })

	for i := 0; i < 60; i++ {
		if _, err := repo.Create(ctx, newDownload(fmt.Sprintf("d%02d", i))); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	list, err := repo.List(ctx, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 50 {
		t.Fatalf("len = %d, want default limit 50", len(list))
	}
	if list[0].DownloadID != "d59" || list[49].DownloadID != "d10" {
		t.Fatalf("order = %s..%s, want d59..d10", list[0].DownloadID, list[49].DownloadID)
	}

	small, _ := repo.List(ctx, 3)
	if len(small) != 3 || small[0].DownloadID != "d59" {
		t.Fatalf("List(3) = %d items starting %s", len(small), small[0].DownloadID)
	}
}
