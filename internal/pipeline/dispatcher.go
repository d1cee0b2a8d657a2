package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/fetchvault/internal/queue"
	"github.com/andresuchdata/fetchvault/internal/repository"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Runner runs one job to completion.
type Runner interface {
	Run(ctx context.Context, downloadID string) error
}

// dequeueBackoff is the pause after a queue error that is not shutdown.
var dequeueBackoff = time.Second

// Dispatcher pulls download ids off a queue and runs them on a fixed pool of workers.
type Dispatcher struct {
	queue   queue.Queue
	runner  Runner
	repo    repository.DownloadRepository
	workers int

	group *errgroup.Group
}

func NewDispatcher(q queue.Queue, runner Runner, repo repository.DownloadRepository, workers int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		queue:   q,
		runner:  runner,
		repo:    repo,
		workers: workers,
	}
}

// Start launches the workers. They stop taking new jobs once ctx is done;
// jobs already running finish on a context that is not cancelled with ctx.
func (d *Dispatcher) Start(ctx context.Context) {
	d.group = &errgroup.Group{}
	for i := 0; i < d.workers; i++ {
		workerID := i
		d.group.Go(func() error {
			d.loop(ctx, workerID)
			return nil
		})
	}
	log.Info().Int("workers", d.workers).Msg("dispatcher started")
}

// Wait blocks until every worker has exited.
func (d *Dispatcher) Wait() {
	if d.group == nil {
		return
	}
	_ = d.group.Wait()
	log.Info().Msg("dispatcher stopped")
}

func (d *Dispatcher) loop(ctx context.Context, workerID int) {
	for {
		id, err := d.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			log.Error().Err(err).Int("worker", workerID).Msg("dequeue failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(dequeueBackoff):
			}
			continue
		}

		d.runJob(context.WithoutCancel(ctx), workerID, id)
	}
}

func (d *Dispatcher) runJob(ctx context.Context, workerID int, downloadID string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Int("worker", workerID).Str("download_id", downloadID).
				Interface("panic", r).Msg("pipeline panicked")
			d.markFailed(ctx, downloadID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	err := d.runner.Run(ctx, downloadID)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotPending):
		log.Info().Str("download_id", downloadID).Msg("skipping download that is not pending")
	default:
		log.Debug().Err(err).Int("worker", workerID).Str("download_id", downloadID).Msg("pipeline returned error")
	}
}

// markFailed records a failure for a job that did not reach a terminal state.
func (d *Dispatcher) markFailed(ctx context.Context, downloadID, msg string) {
	if err := MarkFailed(ctx, d.repo, downloadID, errors.New(msg)); err != nil {
		log.Error().Err(err).Str("download_id", downloadID).Msg("could not mark job failed")
	}
}
