// Command submit enqueues one generation job on the worker stream and waits
// for its video.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/ksuid"

	"sadtalker/internal/cache"
	"sadtalker/internal/config"
	"sadtalker/internal/log"
	"sadtalker/internal/queue"
	"sadtalker/internal/tasks"
)

type appFlags struct {
	image      string
	audio      string
	output     string
	preprocess string
	still      bool
	enhancer   bool
	size       int
	pose       int
	batch      int
	wait       time.Duration
	poll       time.Duration
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := parseFlags()
	if flags.image == "" || flags.audio == "" {
		return errors.New("both -image and -audio are required")
	}

	cfg, err := config.Load("worker")
	if err != nil {
		return err
	}
	logger := log.New(cfg.Environment, cfg.Logging.Level)

	contract, err := tasks.NewContract(cfg.Queues.Contract)
	if err != nil {
		return err
	}

	input, err := buildInput(contract, flags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer client.Close()

	jobID := ksuid.New().String()
	entryID, err := queue.NewProducer(client, cfg.Redis.Stream).Enqueue(ctx, jobID, input)
	if err != nil {
		return err
	}
	logger.Info().Str("job_id", jobID).Str("entry_id", entryID).Msg("job enqueued")

	results := cache.NewResultStore(client, cfg.Redis.ResultPrefix, cfg.Redis.ResultTTL)
	ctx, cancel := context.WithTimeout(ctx, flags.wait)
	defer cancel()

	ticker := time.NewTicker(flags.poll)
	defer ticker.Stop()

	for {
		result, ok, err := results.Fetch(ctx, jobID)
		if err != nil {
			return err
		}
		if ok {
			if result.Error != "" {
				return fmt.Errorf("job %s failed: %s", jobID, result.Error)
			}
			video, err := contract.DecodeVideo(result.Video)
			if err != nil {
				return err
			}
			if err := os.WriteFile(flags.output, video, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", flags.output, err)
			}
			event := logger.Info().Str("job_id", jobID).Str("output", flags.output).Int("bytes", len(video))
			if result.URL != "" {
				event = event.Str("url", result.URL)
			}
			event.Msg("video written")
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for job %s: %w", jobID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func parseFlags() appFlags {
	var flags appFlags
	flag.StringVar(&flags.image, "image", "", "Source portrait image")
	flag.StringVar(&flags.audio, "audio", "", "Driving audio track")
	flag.StringVar(&flags.output, "output", "generated_video.mp4", "Where to write the video")
	flag.StringVar(&flags.preprocess, "preprocess", "crop", "crop, resize, full, extcrop or extfull")
	flag.BoolVar(&flags.still, "still", false, "Reduce head motion")
	flag.BoolVar(&flags.enhancer, "enhancer", false, "Run the face enhancer")
	flag.IntVar(&flags.size, "size", 256, "Face model resolution (256 or 512)")
	flag.IntVar(&flags.pose, "pose", 0, "Pose style (0-45)")
	flag.IntVar(&flags.batch, "batch", 1, "Batch size")
	flag.DurationVar(&flags.wait, "wait", 30*time.Minute, "How long to wait for the result")
	flag.DurationVar(&flags.poll, "poll", 2*time.Second, "Result poll interval")
	flag.Parse()
	return flags
}

func buildInput(contract tasks.Contract, flags appFlags) (map[string]any, error) {
	image, err := os.ReadFile(flags.image)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	audio, err := os.ReadFile(flags.audio)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	return map[string]any{
		"image":        contract.EncodeInput(image),
		"audio":        contract.EncodeInput(audio),
		"preprocess":   flags.preprocess,
		"still_mode":   flags.still,
		"use_enhancer": flags.enhancer,
		"batch_size":   flags.batch,
		"size":         flags.size,
		"pose_style":   flags.pose,
	}, nil
}
