package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sadtalker/internal/models"
)

type stubGenerator struct {
	path  string
	err   error
	panic any
	got   models.GenerationRequest
	dir   string
}

func (s *stubGenerator) Test(_ context.Context, req models.GenerationRequest, resultDir string) (string, error) {
	s.got = req
	s.dir = resultDir
	if s.panic != nil {
		panic(s.panic)
	}
	return s.path, s.err
}

func validRequest(t *testing.T) models.GenerationRequest {
	t.Helper()
	req, err := models.NewGenerationRequest("face.png", "voice.wav", models.DefaultParams())
	require.NoError(t, err)
	return req
}

func TestGenerateReturnsExistingVideo(t *testing.T) {
	video := filepath.Join(t.TempDir(), "face##voice.mp4")
	require.NoError(t, os.WriteFile(video, []byte("mp4"), 0o644))
	gen := &stubGenerator{path: video}

	path, err := NewGenerationService(gen, zerolog.Nop()).Generate(context.Background(), validRequest(t), "results")
	require.NoError(t, err)
	assert.Equal(t, video, path)
	assert.Equal(t, "results", gen.dir)
	assert.Equal(t, "face.png", gen.got.SourceImage)
}

func TestGenerateFailures(t *testing.T) {
	cases := []struct {
		name string
		gen  *stubGenerator
	}{
		{"collaborator error", &stubGenerator{err: errors.New("cuda out of memory")}},
		{"empty path", &stubGenerator{}},
		{"missing file", &stubGenerator{path: filepath.Join(t.TempDir(), "nope.mp4")}},
		{"panic", &stubGenerator{panic: "segfault in renderer"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path, err := NewGenerationService(tc.gen, zerolog.Nop()).Generate(context.Background(), validRequest(t), "results")
			assert.Empty(t, path)
			assert.ErrorIs(t, err, models.ErrInference)
		})
	}
}

func TestGenerateRejectsInvalidRequestBeforeCallingModel(t *testing.T) {
	gen := &stubGenerator{path: "unused"}
	req := validRequest(t)
	req.Size = 300

	_, err := NewGenerationService(gen, zerolog.Nop()).Generate(context.Background(), req, "results")
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Empty(t, gen.got.SourceImage)
}
