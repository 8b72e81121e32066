package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Stream entry fields, shared with the worker side.
const (
	FieldJobID = "job_id"
	FieldInput = "input"
)

type Producer struct {
	client redis.Cmdable
	stream string
}

func NewProducer(client redis.Cmdable, stream string) *Producer {
	return &Producer{client: client, stream: stream}
}

// Enqueue appends one job to the stream and returns its entry id.
func (p *Producer) Enqueue(ctx context.Context, jobID string, input map[string]any) (string, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("encode job input: %w", err)
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			FieldJobID: jobID,
			FieldInput: string(payload),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("enqueue job %s: %w", jobID, err)
	}
	return id, nil
}
