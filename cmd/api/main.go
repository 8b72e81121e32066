package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"sadtalker/internal/config"
	"sadtalker/internal/handlers"
	"sadtalker/internal/inference"
	"sadtalker/internal/jobs"
	"sadtalker/internal/log"
	"sadtalker/internal/results"
	"sadtalker/internal/server"
	"sadtalker/internal/service"
)

func main() {
	cfg, err := config.Load("api")
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	for _, dir := range []string{cfg.Paths.Uploads, cfg.Paths.Results} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatal().Err(err).Str("dir", dir).Msg("failed to create directory")
		}
	}

	model := inference.NewLazySadTalker(cfg.Model, logger)
	generation := service.NewGenerationService(model, logger)
	index := results.NewIndex(cfg.Paths.Results, logger)

	handlerSet := handlers.NewHandlerSet(logger, cfg, generation, index, model)
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	scheduler := jobs.NewScheduler(cfg.Cleanup, cfg.Paths.Uploads, index, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop(shutdownCtx)

	logger.Info().Msg("server exited cleanly")
}
