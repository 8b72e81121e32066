// Package inference wraps the pretrained talking-head model behind a small
// call contract. The model itself is an external program; this package only
// stages inputs, launches it, and locates the video it produced.
package inference

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"sadtalker/internal/config"
	"sadtalker/internal/models"
)

// Generator turns a source image and a driving audio track into a video file
// under resultDir and returns its path. Implementations must be safe for
// concurrent use.
type Generator interface {
	Test(ctx context.Context, req models.GenerationRequest, resultDir string) (string, error)
}

// Lazy defers construction of the underlying Generator until the first call.
// The generator is built at most once per process and never torn down.
type Lazy struct {
	once   sync.Once
	init   func() (Generator, error)
	gen    Generator
	err    error
	loaded atomic.Bool
}

func NewLazy(init func() (Generator, error)) *Lazy {
	return &Lazy{init: init}
}

// Load builds the generator on first use. A failed build is sticky.
func (l *Lazy) Load() (Generator, error) {
	l.once.Do(func() {
		l.gen, l.err = l.init()
		if l.err == nil {
			l.loaded.Store(true)
		}
	})
	return l.gen, l.err
}

func (l *Lazy) Loaded() bool {
	return l.loaded.Load()
}

func (l *Lazy) Test(ctx context.Context, req models.GenerationRequest, resultDir string) (string, error) {
	gen, err := l.Load()
	if err != nil {
		return "", fmt.Errorf("load model: %w", err)
	}
	return gen.Test(ctx, req, resultDir)
}

// NewLazySadTalker defers the SadTalker setup checks to the first call.
func NewLazySadTalker(cfg config.ModelConfig, log zerolog.Logger) *Lazy {
	opts := Options{
		Python:        cfg.Python,
		Script:        cfg.Script,
		WorkDir:       cfg.WorkDir,
		CheckpointDir: cfg.CheckpointDir,
		ConfigDir:     cfg.ConfigDir,
		Enhancer:      cfg.Enhancer,
		Timeout:       cfg.Timeout,
	}
	return NewLazy(func() (Generator, error) {
		gen, err := NewSadTalker(opts, log)
		if err != nil {
			return nil, err
		}
		log.Info().Str("script", opts.Script).Msg("model ready")
		return gen, nil
	})
}
