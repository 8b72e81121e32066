package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sadtalker/internal/models"
)

// ResultStore keeps job results in a Redis hash per job:
//
//	{status: "success", video: <bytes>, url?: <archive url>}  or  {error: <message>}
//
// Hash values are binary safe, so raw-contract videos round-trip unchanged.
type ResultStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewResultStore(client redis.Cmdable, prefix string, ttl time.Duration) *ResultStore {
	return &ResultStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *ResultStore) Key(jobID string) string {
	return s.prefix + ":" + jobID
}

func (s *ResultStore) Save(ctx context.Context, jobID string, result models.JobResult) error {
	key := s.Key(jobID)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, ResultFields(result))
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store result: %w", err)
	}
	return nil
}

// Fetch returns the result of jobID; ok is false while the job is pending.
func (s *ResultStore) Fetch(ctx context.Context, jobID string) (result models.JobResult, ok bool, err error) {
	values, err := s.client.HGetAll(ctx, s.Key(jobID)).Result()
	if err != nil {
		return models.JobResult{}, false, fmt.Errorf("fetch result: %w", err)
	}
	if len(values) == 0 {
		return models.JobResult{}, false, nil
	}
	return ParseResultFields(values), true, nil
}

func ResultFields(result models.JobResult) map[string]any {
	if result.Error != "" {
		return map[string]any{"error": result.Error}
	}
	fields := map[string]any{
		"status": result.Status,
		"video":  result.Video,
	}
	if result.URL != "" {
		fields["url"] = result.URL
	}
	return fields
}

func ParseResultFields(values map[string]string) models.JobResult {
	if msg, ok := values["error"]; ok {
		return models.JobResult{Error: msg}
	}
	return models.JobResult{
		Status: values["status"],
		Video:  []byte(values["video"]),
		URL:    values["url"],
	}
}
