package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/andresuchdata/fetchvault/internal/app"
	"github.com/andresuchdata/fetchvault/internal/config"
	"github.com/andresuchdata/fetchvault/internal/pipeline"
	"github.com/andresuchdata/fetchvault/internal/queue"
	"github.com/andresuchdata/fetchvault/internal/storage"
	"github.com/andresuchdata/fetchvault/pkg/logger"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()
	logger.SetLevel(cfg.Server.Mode)

	// Jobs created by the API process must be visible here.
	if cfg.Queue.Backend != config.BackendRedis {
		logger.Log.Fatal().Str("queue_backend", cfg.Queue.Backend).Msg("worker requires QUEUE_BACKEND=redis")
	}
	if cfg.Database.Backend == config.BackendMemory {
		logger.Log.Fatal().Msg("worker requires STORE_BACKEND=postgres")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := app.OpenRepository(ctx, &cfg.Database)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to open download store")
	}
	defer closeRepo()

	store, err := storage.NewR2Client(cfg.Storage)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize object storage")
	}

	q, err := queue.NewRedisQueue(cfg.Queue)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to connect to redis queue")
	}
	defer q.Close()

	dispatcher := pipeline.NewDispatcher(q, app.NewPipeline(cfg, repo, store), repo, cfg.Pipeline.Workers)

	srv := &http.Server{
		Addr:              ":" + cfg.Worker.HealthPort,
		Handler:           healthRouter(q, store),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Log.Info().Str("port", cfg.Worker.HealthPort).Msg("Starting worker health endpoint")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		dispatcher.Start(gctx)
		dispatcher.Wait()
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Log.Error().Err(err).Msg("Worker stopped with error")
	}
	logger.Log.Info().Msg("Worker exiting")
}

type pinger interface {
	Ping(ctx context.Context) error
	Len(ctx context.Context) (int64, error)
}

func healthRouter(q pinger, store *storage.R2Client) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"storage_configured": store.Configured()}
		if err := q.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["queue"] = err.Error()
		} else if n, err := q.Len(ctx); err == nil {
			body["queued"] = n
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}).Methods(http.MethodGet)

	return r
}
