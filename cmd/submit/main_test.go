package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sadtalker/internal/tasks"
)

func TestBuildInputMatchesWorkerDecoding(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "face.png")
	audio := filepath.Join(dir, "voice.wav")
	require.NoError(t, os.WriteFile(image, []byte("\x89PNG\r\n\x1a\n"), 0o644))
	require.NoError(t, os.WriteFile(audio, []byte("RIFF\x00\x00\x00\x00WAVE"), 0o644))

	flags := appFlags{image: image, audio: audio, preprocess: "full", still: true, size: 512, pose: 4, batch: 2}

	for _, contract := range []tasks.Contract{tasks.RawContract{}, tasks.Base64Contract{}} {
		input, err := buildInput(contract, flags)
		require.NoError(t, err)

		decoded, err := contract.Decode("image", input["image"])
		require.NoError(t, err)
		assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), decoded)

		params, err := tasks.DecodeParams(input)
		require.NoError(t, err)
		assert.Equal(t, 512, params.Size)
		assert.Equal(t, 4, params.PoseStyle)
		assert.Equal(t, 2, params.BatchSize)
		assert.True(t, params.StillMode)
	}
}

func TestBuildInputMissingFile(t *testing.T) {
	_, err := buildInput(tasks.Base64Contract{}, appFlags{image: "/nonexistent/a.png", audio: "/nonexistent/b.wav"})
	assert.ErrorContains(t, err, "read image")
}
