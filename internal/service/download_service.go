package service

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/fetchvault/internal/domain"
	"github.com/andresuchdata/fetchvault/internal/pipeline"
	"github.com/andresuchdata/fetchvault/internal/queue"
	"github.com/andresuchdata/fetchvault/internal/repository"
	"github.com/andresuchdata/fetchvault/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
)

// DefaultSignedURLTTL is how long minted download links stay valid.
const DefaultSignedURLTTL = time.Hour

// Signer mints time-limited links to stored objects.
type Signer interface {
	SignedGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

var _ Signer = (storage.ObjectStorage)(nil)

type DownloadService struct {
	repo   repository.DownloadRepository
	queue  queue.Queue
	signer Signer
	ttl    time.Duration
	now    func() time.Time
}

func NewDownloadService(repo repository.DownloadRepository, q queue.Queue, signer Signer, ttl time.Duration) *DownloadService {
	if ttl <= 0 {
		ttl = DefaultSignedURLTTL
	}
	return &DownloadService{
		repo:   repo,
		queue:  q,
		signer: signer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// CreateDownload validates rawURL, persists a pending job and hands it to the
// workers. It returns as soon as the job is queued. If queueing fails the job
// is recorded as failed and the error is returned.
func (s *DownloadService) CreateDownload(ctx context.Context, rawURL string) (*domain.Download, error) {
	sourceURL, err := domain.ValidateSourceURL(rawURL)
	if err != nil {
		return nil, err
	}

	downloadID := xid.New().String()
	fileName := domain.FileNameFromURL(sourceURL, s.now())

	d, err := s.repo.Create(ctx, &domain.Download{
		ID:          uuid.NewString(),
		DownloadID:  downloadID,
		SourceURL:   sourceURL,
		FileName:    fileName,
		ContentType: domain.DefaultContentType,
		StorageKey:  domain.StorageKey(downloadID, fileName),
		Status:      domain.StatusPending,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create download: %w", err)
	}

	if err := s.queue.Enqueue(ctx, downloadID); err != nil {
		err = fmt.Errorf("failed to enqueue download: %w", err)
		// A job nobody will run must not stay pending.
		if merr := pipeline.MarkFailed(ctx, s.repo, downloadID, err); merr != nil {
			log.Error().Err(merr).Str("download_id", downloadID).Msg("failed to mark unqueued download")
		}
		return nil, err
	}

	log.Info().Str("download_id", downloadID).Str("url", sourceURL).Msg("download queued")
	return d, nil
}

// GetDownload returns the job view. Completed jobs carry a freshly signed link,
// or a nil link when signing fails.
func (s *DownloadService) GetDownload(ctx context.Context, downloadID string) (*domain.DownloadView, error) {
	d, err := s.repo.Get(ctx, downloadID)
	if err != nil {
		return nil, err
	}

	var link *string
	if d.Status == domain.StatusCompleted {
		signed, err := s.signer.SignedGet(ctx, d.StorageKey, s.ttl)
		if err != nil {
			log.Warn().Err(err).Str("download_id", downloadID).Str("key", d.StorageKey).Msg("failed to sign download url")
		} else {
			link = &signed
		}
	}

	return domain.NewDownloadView(d, link), nil
}

// ConfirmDownload counts a download of a completed job and returns a fresh link.
// The count is applied before signing, so a signing error still leaves it incremented.
func (s *DownloadService) ConfirmDownload(ctx context.Context, downloadID string) (*domain.ConfirmResult, error) {
	d, err := s.repo.IncrementCounter(ctx, downloadID, domain.CounterDownloadCount, 1,
		domain.Match{Status: domain.StatusCompleted})
	if err != nil {
		return nil, err
	}

	signed, err := s.signer.SignedGet(ctx, d.StorageKey, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to sign download url: %w", err)
	}

	return &domain.ConfirmResult{
		DownloadURL:   signed,
		DownloadCount: d.DownloadCount,
	}, nil
}

// ListDownloads returns the newest jobs, at most repository.DefaultListLimit.
func (s *DownloadService) ListDownloads(ctx context.Context, limit int) ([]*domain.Download, error) {
	limit = repository.NormalizeLimit(limit)
	if limit > repository.DefaultListLimit {
		limit = repository.DefaultListLimit
	}

	downloads, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list downloads: %w", err)
	}
	if downloads == nil {
		downloads = []*domain.Download{}
	}
	return downloads, nil
}
