package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParamsAreValid(t *testing.T) {
	req, err := NewGenerationRequest("face.png", "voice.wav", DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, PreprocessCrop, req.Preprocess)
	assert.Equal(t, 1, req.BatchSize)
	assert.Equal(t, 256, req.Size)
	assert.False(t, req.StillMode)
	assert.False(t, req.UseEnhancer)
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*GenerationRequest)
		want   string
	}{
		{"missing image", func(r *GenerationRequest) { r.SourceImage = "" }, "image is required"},
		{"missing audio", func(r *GenerationRequest) { r.DrivenAudio = "" }, "audio is required"},
		{"bad preprocess", func(r *GenerationRequest) { r.Preprocess = "zoom" }, "preprocess must be one of"},
		{"zero batch", func(r *GenerationRequest) { r.BatchSize = 0 }, "batch_size must be >= 1"},
		{"bad size", func(r *GenerationRequest) { r.Size = 1024 }, "size must be one of"},
		{"negative pose", func(r *GenerationRequest) { r.PoseStyle = -1 }, "pose_style must be >= 0"},
		{"pose too large", func(r *GenerationRequest) { r.PoseStyle = 46 }, "pose_style must be <= 45"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := GenerationRequest{SourceImage: "a.png", DrivenAudio: "a.wav", Params: DefaultParams()}
			tc.mutate(&req)

			err := req.Validate()
			require.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateAcceptsEveryPreprocessMode(t *testing.T) {
	for _, mode := range []PreprocessMode{PreprocessCrop, PreprocessResize, PreprocessFull, PreprocessExtCrop, PreprocessExtFull} {
		params := DefaultParams()
		params.Preprocess = mode
		params.Size = 512
		_, err := NewGenerationRequest("a.png", "a.wav", params)
		assert.NoError(t, err, mode)
	}
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())

	params := DefaultParams()
	params.BatchSize = -2
	assert.ErrorIs(t, params.Validate(), ErrValidation)
}
