package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/iconidentify/recipegrabba/internal/api"
	"github.com/iconidentify/recipegrabba/internal/api/handler"
	"github.com/iconidentify/recipegrabba/internal/config"
	"github.com/iconidentify/recipegrabba/internal/metrics"
	"github.com/iconidentify/recipegrabba/internal/repository"
	"github.com/iconidentify/recipegrabba/internal/service"
	"github.com/iconidentify/recipegrabba/internal/worker"
	"github.com/iconidentify/recipegrabba/pkg/llm"
	"github.com/iconidentify/recipegrabba/pkg/mealie"
	"github.com/iconidentify/recipegrabba/pkg/whisper"
)

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP import server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), *configPath)
		},
	}
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(os.Stdout, cfg.Log)
	logger.Info("starting recipegrabba",
		"version", Version,
		"build_time", BuildTime,
	)

	if err := os.MkdirAll(cfg.Storage.TempPath, 0755); err != nil {
		return fmt.Errorf("create temp directory: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := metrics.NewProm("recipegrabba", reg)

	p := newPipeline(cfg, prom, logger)
	if !p.ytdlp.Available() {
		logger.Warn("yt-dlp not found, URL imports will fail", "path", cfg.Tools.YtDlpPath)
	}
	if !p.ffmpeg.Available() {
		logger.Warn("ffmpeg not found, audio transcription will fail", "path", cfg.Tools.FFmpegPath)
	}

	history, err := openHistory(cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer history.Close()

	mealieClient := mealie.NewClient(cfg.Mealie)
	transcriber := whisper.NewClient(whisper.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.TranscriptionModel,
		Timeout: cfg.OpenAI.Timeout,
	})
	importSvc := service.NewImportService(service.Deps{
		Acquirer:    p.acquirer,
		Images:      p.fetcher,
		Transcriber: transcriber,
		Generator:   llm.NewClient(cfg.OpenAI),
		Mealie:      mealieClient,
		Metrics:     prom,
		History:     history,
	}, cfg.Worker.Count, logger)

	minFree := int64(min(cfg.Storage.MinFreeBytes, 1<<62))
	requestTimeout := cfg.RequestTimeout()
	handlers := api.Handlers{
		Import:  handler.NewImportHandler(importSvc, nil, logger),
		Recipe:  handler.NewRecipeHandler(importSvc, logger),
		History: handler.NewHistoryHandler(importSvc, logger),
		Share:   handler.NewShareHandler(),
		Health:  handler.NewHealthHandler(p.ytdlp, p.ffmpeg, cfg.Storage.TempPath, minFree, service.FreeDiskSpace),
		UI:      handler.NewUIHandler(),
		Metrics: prom.Handler(),
	}
	router := api.NewRouter(handlers, api.Options{
		APIKey:           cfg.Server.APIKey,
		ImportRatePerMin: cfg.Server.ImportRatePerMin,
		RequestTimeout:   requestTimeout,
	}, prom, logger)

	sweeper := worker.NewSweeper(worker.Config{
		Dir:      cfg.Storage.TempPath,
		Interval: cfg.Storage.SweepInterval,
		MaxAge:   cfg.Storage.SweepMaxAge,
	}, logger)
	sweeper.Start()

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: requestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr, "mealie", cfg.Mealie.URL, "auth", cfg.Server.APIKey != "", "request_timeout", requestTimeout)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// In-flight imports and streams finish before Shutdown returns
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := sweeper.Stop(5 * time.Second); err != nil {
		logger.Error("sweeper shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}

// openHistory opens the SQLite history when a path is configured and falls
// back to memory otherwise.
func openHistory(cfg config.StorageConfig, logger *slog.Logger) (repository.ImportRepository, error) {
	if cfg.HistoryPath == "" {
		logger.Info("import history kept in memory")
		return repository.NewMemoryImportRepository(0), nil
	}
	repo, err := repository.OpenSQLiteImportRepository(cfg.HistoryPath)
	if err != nil {
		return nil, fmt.Errorf("open import history: %w", err)
	}
	logger.Info("import history opened", "path", repo.Path())
	return repo, nil
}
