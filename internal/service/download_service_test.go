package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andresuchdata/fetchvault/internal/domain"
	"github.com/andresuchdata/fetchvault/internal/queue"
	"github.com/andresuchdata/fetchvault/internal/repository/memory"
)

type fakeSigner struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (s *fakeSigner) SignedGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "https://signed.example/" + key + "?n=" + string(rune('0'+s.calls)) + "&ttl=" + ttl.String(), nil
}

type failingQueue struct{ queue.Queue }

func (failingQueue) Enqueue(context.Context, string) error { return errors.New("redis down") }

func newTestService(t *testing.T) (*DownloadService, *memory.DownloadRepository, *queue.MemoryQueue, *fakeSigner) {
	t.Helper()
	repo := memory.NewDownloadRepository()
	q := queue.NewMemoryQueue()
	signer := &fakeSigner{}
	return NewDownloadService(repo, q, signer, 0), repo, q, signer
}

func complete(t *testing.T, repo *memory.DownloadRepository, id string) {
	t.Helper()
	_, err := repo.UpdateFields(context.Background(), id, domain.DownloadUpdate{
		Status:         domain.StatusPtr(domain.StatusCompleted),
		Progress:       domain.IntPtr(100),
		StorageLocator: domain.StringPtr("https://pub.example/x"),
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
}

func TestCreateDownloadQueuesPendingJob(t *testing.T) {
	svc, repo, q, _ := newTestService(t)

	start := time.Now()
	d, err := svc.CreateDownload(context.Background(), "  https://example.com/files/report.pdf  ")
	if err != nil {
		t.Fatalf("CreateDownload: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("CreateDownload must not wait for the pipeline")
	}

	if d.Status != domain.StatusPending || d.Progress != 0 {
		t.Fatalf("new job = %s/%d", d.Status, d.Progress)
	}
	if len(d.DownloadID) != 20 {
		t.Fatalf("download id %q, want 20-char xid", d.DownloadID)
	}
	if d.ID == "" || d.ID == d.DownloadID {
		t.Fatalf("internal id %q must be set and distinct", d.ID)
	}
	if d.SourceURL != "https://example.com/files/report.pdf" {
		t.Fatalf("source url not trimmed: %q", d.SourceURL)
	}
	if d.FileName != "report.pdf" || d.StorageKey != "downloads/"+d.DownloadID+"/report.pdf" {
		t.Fatalf("file name / key = %q / %q", d.FileName, d.StorageKey)
	}

	if _, err := repo.Get(context.Background(), d.DownloadID); err != nil {
		t.Fatalf("job not persisted: %v", err)
	}

	id, err := q.Dequeue(context.Background())
	if err != nil || id != d.DownloadID {
		t.Fatalf("queued id = %q, %v", id, err)
	}
}

func TestCreateDownloadRejectsInvalidURL(t *testing.T) {
	svc, repo, q, _ := newTestService(t)

	for _, raw := range []string{"", "   ", "not-a-url", "/relative/path"} {
		if _, err := svc.CreateDownload(context.Background(), raw); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("CreateDownload(%q) err = %v, want ErrInvalidInput", raw, err)
		}
	}

	list, _ := repo.List(context.Background(), 50)
	if len(list) != 0 {
		t.Fatalf("invalid urls created %d records", len(list))
	}
	if q.Len() != 0 {
		t.Fatalf("invalid urls queued %d jobs", q.Len())
	}
}

func TestCreateDownloadEnqueueFailureMarksFailed(t *testing.T) {
	repo := memory.NewDownloadRepository()
	svc := NewDownloadService(repo, failingQueue{}, &fakeSigner{}, time.Hour)

	d, err := svc.CreateDownload(context.Background(), "https://example.com/a.zip")
	if err == nil || !strings.Contains(err.Error(), "redis down") {
		t.Fatalf("CreateDownload err = %v, want enqueue error", err)
	}
	if d != nil {
		t.Fatalf("CreateDownload returned %+v on failure", d)
	}
	if errors.Is(err, domain.ErrInvalidInput) {
		t.Fatal("enqueue failure must not look like bad input")
	}

	list, _ := repo.List(context.Background(), 10)
	if len(list) != 1 {
		t.Fatalf("records = %d, want 1", len(list))
	}
	got := list[0]
	if got.Status != domain.StatusFailed || !strings.Contains(got.Error, "redis down") {
		t.Fatalf("record = %s / %q, want failed with enqueue error", got.Status, got.Error)
	}
}

func TestGetDownload(t *testing.T) {
	svc, repo, _, signer := newTestService(t)
	d, _ := svc.CreateDownload(context.Background(), "https://example.com/a.zip")

	view, err := svc.GetDownload(context.Background(), d.DownloadID)
	if err != nil {
		t.Fatalf("GetDownload: %v", err)
	}
	if view.DownloadURL != nil {
		t.Fatal("pending job must not carry a link")
	}
	if signer.calls != 0 {
		t.Fatal("pending job must not be signed")
	}

	complete(t, repo, d.DownloadID)
	view, err = svc.GetDownload(context.Background(), d.DownloadID)
	if err != nil {
		t.Fatalf("GetDownload: %v", err)
	}
	if view.DownloadURL == nil || !strings.Contains(*view.DownloadURL, d.StorageKey) {
		t.Fatalf("completed link = %v", view.DownloadURL)
	}
	if !strings.Contains(*view.DownloadURL, "ttl=1h0m0s") {
		t.Fatalf("link not minted with the default ttl: %s", *view.DownloadURL)
	}

	if _, err := svc.GetDownload(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing err = %v, want ErrNotFound", err)
	}
}

func TestGetDownloadSigningFailureYieldsNullLink(t *testing.T) {
	svc, repo, _, signer := newTestService(t)
	d, _ := svc.CreateDownload(context.Background(), "https://example.com/a.zip")
	complete(t, repo, d.DownloadID)
	signer.err = &domain.StorageError{Op: "sign", Key: d.StorageKey, Err: errors.New("no creds")}

	view, err := svc.GetDownload(context.Background(), d.DownloadID)
	if err != nil {
		t.Fatalf("GetDownload: %v", err)
	}
	if view.DownloadURL != nil {
		t.Fatalf("link = %q, want nil", *view.DownloadURL)
	}
	if view.Status != domain.StatusCompleted {
		t.Fatalf("status = %s", view.Status)
	}
}

func TestConfirmDownloadTwice(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	d, _ := svc.CreateDownload(context.Background(), "https://example.com/a.zip")
	complete(t, repo, d.DownloadID)

	first, err := svc.ConfirmDownload(context.Background(), d.DownloadID)
	if err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	second, err := svc.ConfirmDownload(context.Background(), d.DownloadID)
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}

	if first.DownloadCount != 1 || second.DownloadCount != 2 {
		t.Fatalf("counts = %d, %d; want 1, 2", first.DownloadCount, second.DownloadCount)
	}
	if first.DownloadURL == "" || second.DownloadURL == "" || first.DownloadURL == second.DownloadURL {
		t.Fatalf("want two distinct links, got %q and %q", first.DownloadURL, second.DownloadURL)
	}
}

func TestConfirmDownloadRequiresCompleted(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	d, _ := svc.CreateDownload(context.Background(), "https://example.com/a.zip")

	if _, err := svc.ConfirmDownload(context.Background(), d.DownloadID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("pending confirm err = %v, want ErrNotFound", err)
	}
	if _, err := svc.ConfirmDownload(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing confirm err = %v, want ErrNotFound", err)
	}

	got, _ := repo.Get(context.Background(), d.DownloadID)
	if got.DownloadCount != 0 {
		t.Fatalf("download count = %d, want 0", got.DownloadCount)
	}
}

func TestConfirmDownloadSigningFailureStillCounts(t *testing.T) {
	svc, repo, _, signer := newTestService(t)
	d, _ := svc.CreateDownload(context.Background(), "https://example.com/a.zip")
	complete(t, repo, d.DownloadID)
	signer.err = &domain.StorageError{Op: "sign", Err: errors.New("no creds")}

	_, err := svc.ConfirmDownload(context.Background(), d.DownloadID)
	if !domain.IsStorageError(err) {
		t.Fatalf("err = %v, want StorageError", err)
	}
	got, _ := repo.Get(context.Background(), d.DownloadID)
	if got.DownloadCount != 1 {
		t.Fatalf("download count = %d, want 1", got.DownloadCount)
	}
}

func TestListDownloadsNewestFirstAndCapped(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var tick int
	repo.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	})

	var last string
	for i := 0; i < 55; i++ {
		d, err := svc.CreateDownload(context.Background(), "https://example.com/f.txt")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		last = d.DownloadID
	}

	list, err := svc.ListDownloads(context.Background(), 500)
	if err != nil {
		t.Fatalf("ListDownloads: %v", err)
	}
	if len(list) != 50 {
		t.Fatalf("len = %d, want cap of 50", len(list))
	}
	if list[0].DownloadID != last {
		t.Fatalf("first = %s, want newest %s", list[0].DownloadID, last)
	}

	small, _ := svc.ListDownloads(context.Background(), 3)
	if len(small) != 3 {
		t.Fatalf("len = %d, want 3", len(small))
	}
}

func TestListDownloadsEmpty(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	list, err := svc.ListDownloads(context.Background(), 0)
	if err != nil || list == nil || len(list) != 0 {
		t.Fatalf("list = %v, %v; want empty non-nil", list, err)
	}
}
