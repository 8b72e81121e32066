package jobs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"sadtalker/internal/config"
)

// ResultPruner removes result directories older than a cutoff.
type ResultPruner interface {
	Prune(cutoff time.Time) (int, error)
}

// Scheduler sweeps files that request-scoped cleanup could not catch, such
// as uploads left behind by a killed process.
type Scheduler struct {
	cron    *cron.Cron
	cfg     config.CleanupConfig
	uploads string
	results ResultPruner
	log     zerolog.Logger
	now     func() time.Time
}

func NewScheduler(cfg config.CleanupConfig, uploads string, results ResultPruner, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:    c,
		cfg:     cfg,
		uploads: uploads,
		results: results,
		log:     log.With().Str("component", "cleanup").Logger(),
		now:     time.Now,
	}
}

func (s *Scheduler) Start() error {
	if s.cfg.Schedule == "" {
		return nil
	}

	if _, err := s.cron.AddFunc(s.cfg.Schedule, s.Sweep); err != nil {
		return fmt.Errorf("schedule cleanup %q: %w", s.cfg.Schedule, err)
	}

	s.cron.Start()
	return nil
}

// Stop waits for a running sweep to finish or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Sweep runs one cleanup pass.
func (s *Scheduler) Sweep() {
	now := s.now()

	if s.cfg.UploadMaxAge > 0 {
		removed, err := sweepFiles(s.uploads, now.Add(-s.cfg.UploadMaxAge))
		if err != nil {
			s.log.Error().Err(err).Msg("sweep uploads failed")
		} else if removed > 0 {
			s.log.Info().Int("removed", removed).Msg("stale uploads removed")
		}
	}

	if s.cfg.ResultRetention > 0 && s.results != nil {
		removed, err := s.results.Prune(now.Add(-s.cfg.ResultRetention))
		if err != nil {
			s.log.Error().Err(err).Msg("prune results failed")
		} else if removed > 0 {
			s.log.Info().Int("removed", removed).Msg("expired results removed")
		}
	}
}

func sweepFiles(dir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			continue
		}
		removed++
	}
	return removed, nil
}
