package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/andresuchdata/fetchvault/internal/api"
	"github.com/andresuchdata/fetchvault/internal/app"
	"github.com/andresuchdata/fetchvault/internal/config"
	"github.com/andresuchdata/fetchvault/internal/pipeline"
	"github.com/andresuchdata/fetchvault/internal/queue"
	"github.com/andresuchdata/fetchvault/internal/service"
	"github.com/andresuchdata/fetchvault/internal/storage"
	"github.com/andresuchdata/fetchvault/pkg/logger"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger.SetLevel(cfg.Server.Mode)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	repo, closeRepo, err := app.OpenRepository(ctx, &cfg.Database)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to open download store")
	}
	defer closeRepo()

	store, err := storage.NewR2Client(cfg.Storage)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize object storage")
	}

	q, err := queue.New(cfg.Queue)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize queue")
	}
	defer q.Close()

	// Initialize services
	downloadService := service.NewDownloadService(repo, q, store, cfg.Storage.SignedURLTTL)

	// In-process workers. With the redis queue they share work with cmd/worker.
	dispatcher := pipeline.NewDispatcher(q, app.NewPipeline(cfg, repo, store), repo, cfg.Pipeline.Workers)

	// Initialize HTTP server
	router := api.NewRouter(&api.Services{DownloadService: downloadService}, cfg.Server.AllowedOrigins)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
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
		logger.Log.Info().Msg("Shutting down server...")

		// The server has 5 seconds to finish the requests it is handling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Log.Error().Err(err).Msg("Server stopped with error")
	}

	logger.Log.Info().Msg("Server exiting")
}
