package service

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"sadtalker/internal/inference"
	"sadtalker/internal/models"
)

// GenerationService runs one model invocation per request and turns every
// collaborator failure into models.ErrInference.
type GenerationService struct {
	gen inference.Generator
	log zerolog.Logger
}

func NewGenerationService(gen inference.Generator, log zerolog.Logger) *GenerationService {
	return &GenerationService{
		gen: gen,
		log: log,
	}
}

// Generate blocks for the whole model run. The returned path is known to
// exist on disk.
func (s *GenerationService) Generate(ctx context.Context, req models.GenerationRequest, resultDir string) (path string, err error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("model collaborator panicked")
			path = ""
			err = fmt.Errorf("%w: %v", models.ErrInference, r)
		}
	}()

	path, err = s.gen.Test(ctx, req, resultDir)
	if err != nil {
		s.log.Error().Err(err).Str("image", req.SourceImage).Msg("generation failed")
		if errors.Is(err, models.ErrInference) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", models.ErrInference, err)
	}

	if path == "" {
		return "", models.ErrInference
	}
	if _, statErr := os.Stat(path); statErr != nil {
		s.log.Error().Err(statErr).Str("video", path).Msg("generated video missing")
		return "", models.ErrInference
	}

	return path, nil
}
