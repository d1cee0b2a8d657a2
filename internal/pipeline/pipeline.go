package pipeline

import (
	"bytes"
	"context"
	"io"
	"math"
	"sync"

	"github.com/andresuchdata/fetchvault/internal/domain"
	"github.com/andresuchdata/fetchvault/internal/fetch"
	"github.com/andresuchdata/fetchvault/internal/repository"
	"github.com/andresuchdata/fetchvault/internal/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// growCap bounds how much buffer is reserved up front from a declared length.
const growCap = 8 << 20

// Progress checkpoints written as a job moves through its phases. Upload
// progress is spread between ProgressBuffered and ProgressUploadMax.
const (
	ProgressStarted   = 5
	ProgressHeaders   = 10
	ProgressBuffered  = 40
	ProgressUploadMax = 90
	ProgressDone      = 100
)

// ErrNotPending is returned when a job is picked up that has already been started.
var ErrNotPending = errors.New("download is not pending")

// Config tunes a Pipeline.
type Config struct {
	// MaxBytes caps the buffered body. Zero means unlimited.
	MaxBytes int64
}

// Pipeline moves one download from its source URL into object storage,
// recording status and progress on the job as it goes.
type Pipeline struct {
	repo    repository.DownloadRepository
	fetcher fetch.Fetcher
	store   storage.ObjectStorage
	cfg     Config
}

func New(repo repository.DownloadRepository, fetcher fetch.Fetcher, store storage.ObjectStorage, cfg Config) *Pipeline {
	return &Pipeline{
		repo:    repo,
		fetcher: fetcher,
		store:   store,
		cfg:     cfg,
	}
}

// Run processes the job identified by downloadID. The job must be pending.
// Every failure after the job has started is also written to the job record.
func (p *Pipeline) Run(ctx context.Context, downloadID string) error {
	d, err := p.repo.Get(ctx, downloadID)
	if err != nil {
		return errors.Wrapf(err, "load download %s", downloadID)
	}
	if d.Status != domain.StatusPending {
		return errors.Wrapf(ErrNotPending, "download %s is %s", downloadID, d.Status)
	}

	j := &job{p: p, id: downloadID, status: d.Status}
	logger := log.With().Str("download_id", downloadID).Logger()

	if err := j.transition(ctx, domain.StatusDownloading, domain.DownloadUpdate{
		Progress: domain.IntPtr(ProgressStarted),
	}); err != nil {
		if merr := MarkFailed(ctx, p.repo, downloadID, err); merr != nil {
			logger.Error().Err(merr).AnErr("cause", err).Msg("download stranded: could not start or record failure")
		}
		return err
	}
	j.last = ProgressStarted
	logger.Info().Str("url", d.SourceURL).Msg("download started")

	locator, size, err := p.transfer(ctx, j, d)
	if err != nil {
		logger.Error().Stack().Err(err).Msg("download failed")
		j.fail(ctx, err)
		return err
	}

	if err := j.transition(ctx, domain.StatusCompleted, domain.DownloadUpdate{
		Progress:       domain.IntPtr(ProgressDone),
		StorageLocator: domain.StringPtr(locator),
		FileSize:       domain.Int64Ptr(size),
	}); err != nil {
		logger.Error().Stack().Err(err).Msg("could not record completion")
		j.fail(ctx, err)
		return err
	}

	logger.Info().Int64("size", size).Str("key", d.StorageKey).Msg("download completed")
	return nil
}

func (p *Pipeline) transfer(ctx context.Context, j *job, d *domain.Download) (string, int64, error) {
	resp, err := p.fetcher.Fetch(ctx, d.SourceURL)
	if err != nil {
		return "", 0, errors.WithStack(err)
	}
	defer resp.Body.Close()

	contentType := domain.ResolveContentType(resp.ContentType, d.FileName)
	if err := j.update(ctx, domain.DownloadUpdate{
		FileSize:    domain.Int64Ptr(resp.ContentLength),
		ContentType: domain.StringPtr(contentType),
	}); err != nil {
		return "", 0, err
	}
	j.progress(ctx, ProgressHeaders)

	body, err := p.buffer(resp)
	if err != nil {
		return "", 0, err
	}
	j.progress(ctx, ProgressBuffered)

	size := int64(len(body))
	locator, err := p.store.Put(ctx, d.StorageKey, bytes.NewReader(body), size, contentType,
		func(sent, total int64) {
			j.progress(ctx, uploadProgress(sent, total))
		})
	if err != nil {
		return "", 0, errors.WithStack(err)
	}

	return locator, size, nil
}

func (p *Pipeline) buffer(resp *fetch.Response) ([]byte, error) {
	if p.cfg.MaxBytes > 0 && resp.ContentLength > p.cfg.MaxBytes {
		return nil, errors.Errorf("source body of %d bytes exceeds limit of %d bytes", resp.ContentLength, p.cfg.MaxBytes)
	}

	// The declared length is not trusted beyond growCap; the buffer grows as bytes arrive.
	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		buf.Grow(int(min(resp.ContentLength, growCap)))
	}

	var r io.Reader = resp.Body
	if p.cfg.MaxBytes > 0 {
		r = io.LimitReader(resp.Body, p.cfg.MaxBytes+1)
	}

	if _, err := buf.ReadFrom(r); err != nil {
		return nil, errors.Wrap(err, "read source body")
	}
	if p.cfg.MaxBytes > 0 && int64(buf.Len()) > p.cfg.MaxBytes {
		return nil, errors.Errorf("source body exceeds limit of %d bytes", p.cfg.MaxBytes)
	}
	return buf.Bytes(), nil
}

// uploadProgress maps upload bytes onto the 40..90 band.
func uploadProgress(sent, total int64) int {
	if total <= 0 {
		return ProgressBuffered
	}
	v := ProgressBuffered + int(math.Round(float64(sent)/float64(total)*float64(ProgressUploadMax-ProgressBuffered)))
	if v < ProgressBuffered {
		return ProgressBuffered
	}
	if v > ProgressUploadMax {
		return ProgressUploadMax
	}
	return v
}

// job is the per-run state. Only the owning run writes through it.
type job struct {
	p      *Pipeline
	id     string
	status domain.Status

	mu   sync.Mutex
	last int
}

func (j *job) transition(ctx context.Context, next domain.Status, update domain.DownloadUpdate) error {
	if !j.status.CanTransitionTo(next) {
		return errors.Errorf("invalid transition %s -> %s", j.status, next)
	}
	update.Status = domain.StatusPtr(next)
	// Terminal writes must land even when the caller is shutting down.
	if _, err := j.p.repo.UpdateFields(context.WithoutCancel(ctx), j.id, update); err != nil {
		return errors.Wrapf(err, "set status %s", next)
	}
	j.status = next
	return nil
}

func (j *job) update(ctx context.Context, update domain.DownloadUpdate) error {
	if _, err := j.p.repo.UpdateFields(ctx, j.id, update); err != nil {
		return errors.Wrap(err, "update download")
	}
	return nil
}

// progress writes value only when it moves forward. Write failures are logged.
func (j *job) progress(ctx context.Context, value int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if value <= j.last {
		return
	}
	if _, err := j.p.repo.UpdateFields(ctx, j.id, domain.DownloadUpdate{Progress: domain.IntPtr(value)}); err != nil {
		log.Warn().Err(err).Str("download_id", j.id).Int("progress", value).Msg("progress update failed")
		return
	}
	j.last = value
}

func (j *job) fail(ctx context.Context, cause error) {
	if err := j.transition(ctx, domain.StatusFailed, domain.DownloadUpdate{
		Error: domain.StringPtr(cause.Error()),
	}); err != nil {
		log.Error().Err(err).Str("download_id", j.id).Msg("could not record failure")
	}
}
