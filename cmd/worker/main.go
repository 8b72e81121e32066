package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"sadtalker/internal/cache"
	"sadtalker/internal/config"
	"sadtalker/internal/inference"
	"sadtalker/internal/log"
	"sadtalker/internal/queue"
	"sadtalker/internal/service"
	"sadtalker/internal/storage"
	"sadtalker/internal/tasks"
)

func main() {
	cfg, err := config.Load("worker")
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	contract, err := tasks.NewContract(cfg.Queues.Contract)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid queue contract")
	}

	var archive tasks.Archiver
	if cfg.Storage.Enabled {
		store, err := storage.NewObjectStore(cfg.Storage)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init object store")
		}
		if err := store.EnsureBucket(ctx); err != nil {
			logger.Warn().Err(err).Msg("ensure bucket failed")
		}
		archive = store
	}

	model := inference.NewLazySadTalker(cfg.Model, logger)
	generation := service.NewGenerationService(model, logger)

	tempRoot := filepath.Join(os.TempDir(), "sadtalker-worker")
	runner := tasks.NewRunner(contract, generation, archive, tempRoot, logger)
	resultStore := cache.NewResultStore(client, cfg.Redis.ResultPrefix, cfg.Redis.ResultTTL)
	processor := tasks.NewProcessor(runner, resultStore, logger)

	consumer := queue.NewConsumer(client, cfg.Redis, cfg.Queues.ClaimInterval, logger, processor)

	logger.Info().Str("contract", contract.Name()).Msg("worker starting")
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("consumer stopped unexpectedly")
	}
	logger.Info().Msg("worker exited cleanly")
}
