package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"sadtalker/internal/models"
	"sadtalker/internal/queue"
)

type ResultWriter interface {
	Save(ctx context.Context, jobID string, result models.JobResult) error
}

type Processor struct {
	runner  *Runner
	results ResultWriter
	logger  zerolog.Logger
}

func NewProcessor(runner *Runner, results ResultWriter, logger zerolog.Logger) *Processor {
	return &Processor{
		runner:  runner,
		results: results,
		logger:  logger,
	}
}

// Handle runs one job and records its result. It only returns an error when
// the result could not be recorded, so the message stays pending.
func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	jobID, _ := msg.Values[queue.FieldJobID].(string)
	if jobID == "" {
		p.logger.Warn().Str("message_id", msg.ID).Msg("job without job_id dropped")
		return nil
	}

	log := p.logger.With().Str("job_id", jobID).Str("message_id", msg.ID).Logger()
	log.Info().Msg("job received")

	var result models.JobResult
	input, err := decodeInput(msg.Values[queue.FieldInput])
	if err != nil {
		log.Error().Err(err).Msg("decode job input failed")
		result = models.JobResult{Error: err.Error()}
	} else {
		result = p.runner.Run(ctx, jobID, input)
	}

	if err := p.results.Save(ctx, jobID, result); err != nil {
		return fmt.Errorf("save result for %s: %w", jobID, err)
	}
	return nil
}

func decodeInput(raw any) (map[string]any, error) {
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	case nil:
		return nil, fmt.Errorf("%w: job has no input", models.ErrValidation)
	default:
		return nil, fmt.Errorf("%w: job input has type %T", models.ErrUnsupportedFormat, raw)
	}

	var input map[string]any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("%w: job input is not a JSON object: %v", models.ErrUnsupportedFormat, err)
	}
	if input == nil {
		return nil, fmt.Errorf("%w: job input is empty", models.ErrValidation)
	}
	return input, nil
}
