package tasks

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sadtalker/internal/models"
	"sadtalker/internal/queue"
)

var fakeVideo = []byte("\x00\x00\x00\x18ftypmp42\x00\xff\x10video")

type fakeGenerator struct {
	requests []models.GenerationRequest
	inputs   map[string][]byte
	err      error
}

func (g *fakeGenerator) Generate(_ context.Context, req models.GenerationRequest, resultDir string) (string, error) {
	g.requests = append(g.requests, req)
	g.inputs = map[string][]byte{}
	for _, p := range []string{req.SourceImage, req.DrivenAudio} {
		data, err := os.ReadFile(p)
		if err != nil {
			return "", err
		}
		g.inputs[filepath.Base(p)] = data
	}
	if g.err != nil {
		return "", g.err
	}

	dir := filepath.Join(resultDir, "2024_01_01")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "source_image##driven_audio.mp4")
	return path, os.WriteFile(path, fakeVideo, 0o644)
}

type fakeArchive struct {
	keys []string
	err  error
}

func (a *fakeArchive) PutVideo(_ context.Context, key, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	a.keys = append(a.keys, key)
	if a.err != nil {
		return "", a.err
	}
	return "http://minio.local/videos/" + key, nil
}

func newTestRunner(t *testing.T, contract Contract, gen Generator, archive Archiver) (*Runner, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "jobs")
	return NewRunner(contract, gen, archive, root, zerolog.Nop()), root
}

func assertNoLeftovers(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunnerBase64(t *testing.T) {
	gen := &fakeGenerator{}
	runner, root := newTestRunner(t, Base64Contract{}, gen, nil)

	png := []byte("\x89PNG\r\n\x1a\nimage")
	wav := []byte("RIFF\x24\x00\x00\x00WAVEfmt ")
	result := runner.Run(context.Background(), "job-1", map[string]any{
		"image":       base64.StdEncoding.EncodeToString(png),
		"audio":       base64.StdEncoding.EncodeToString(wav),
		"still_mode":  true,
		"pose_style":  float64(3),
		"preprocess":  "full",
		"size":        "512",
		"batch_size":  nil,
		"unknown_key": "ignored",
	})

	require.Empty(t, result.Error)
	assert.Equal(t, models.JobStatusSuccess, result.Status)
	assert.Equal(t, base64.StdEncoding.EncodeToString(fakeVideo), string(result.Video))
	assert.Empty(t, result.URL)

	require.Len(t, gen.requests, 1)
	req := gen.requests[0]
	assert.True(t, req.StillMode)
	assert.Equal(t, 3, req.PoseStyle)
	assert.Equal(t, models.PreprocessFull, req.Preprocess)
	assert.Equal(t, 512, req.Size)
	assert.Equal(t, 1, req.BatchSize)
	assert.Equal(t, png, gen.inputs["source_image.png"])
	assert.Equal(t, wav, gen.inputs["driven_audio.wav"])

	assertNoLeftovers(t, root)
}

func TestRunnerRawUnescapesInputs(t *testing.T) {
	gen := &fakeGenerator{}
	runner, root := newTestRunner(t, RawContract{}, gen, nil)

	result := runner.Run(context.Background(), "job-raw", map[string]any{
		"image": "%FF%D8%FF%E0face",
		"audio": "ID3%03voice",
	})

	require.Empty(t, result.Error)
	assert.Equal(t, fakeVideo, result.Video)
	assert.Equal(t, []byte("\xff\xd8\xff\xe0face"), gen.inputs["source_image.jpg"])
	assert.Equal(t, []byte("ID3\x03voice"), gen.inputs["driven_audio.mp3"])

	assertNoLeftovers(t, root)
}

func TestRunnerMissingInputWritesNothing(t *testing.T) {
	for _, input := range []map[string]any{
		{"image": "aGk="},
		{"audio": "aGk="},
		{"image": "aGk=", "audio": nil},
		{"image": "", "audio": ""},
		{"image": "aGk=", "audio": "  "},
		{},
	} {
		gen := &fakeGenerator{}
		runner, root := newTestRunner(t, Base64Contract{}, gen, nil)

		result := runner.Run(context.Background(), "job-missing", input)

		assert.Contains(t, result.Error, "both image and audio are required")
		assert.Empty(t, gen.requests)
		_, err := os.Stat(root)
		assert.ErrorIs(t, err, os.ErrNotExist)
	}
}

func TestRunnerReportsUnsupportedFormat(t *testing.T) {
	gen := &fakeGenerator{}
	runner, root := newTestRunner(t, Base64Contract{}, gen, nil)

	result := runner.Run(context.Background(), "job-url", map[string]any{
		"image": "https://example.com/face.png",
		"audio": "aGk=",
	})
	assert.Contains(t, result.Error, "unsupported format")
	assert.Empty(t, gen.requests)

	result = runner.Run(context.Background(), "job-num", map[string]any{
		"image": "aGk=",
		"audio": 7.0,
	})
	assert.Contains(t, result.Error, "unsupported format")
	assertNoLeftovers(t, root)
}

func TestRunnerEmptyDecodedInput(t *testing.T) {
	gen := &fakeGenerator{}
	runner, root := newTestRunner(t, Base64Contract{}, gen, nil)

	result := runner.Run(context.Background(), "job-empty", map[string]any{"image": "data:image/png;base64,", "audio": "aGk="})
	assert.Contains(t, result.Error, "must not be empty")
	assert.Empty(t, gen.requests)
	assertNoLeftovers(t, root)
}

func TestRunnerRejectsSwappedMedia(t *testing.T) {
	png := base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\nimage"))
	wav := base64.StdEncoding.EncodeToString([]byte("RIFF\x24\x00\x00\x00WAVEfmt "))

	gen := &fakeGenerator{}
	runner, root := newTestRunner(t, Base64Contract{}, gen, nil)

	result := runner.Run(context.Background(), "job-swap", map[string]any{"image": wav, "audio": png})

	assert.Contains(t, result.Error, "unsupported format for image: got wav content")
	assert.Empty(t, gen.requests)
	assertNoLeftovers(t, root)
}

func TestRunnerCleansUpAfterFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("cuda out of memory")}
	runner, root := newTestRunner(t, Base64Contract{}, gen, nil)

	result := runner.Run(context.Background(), "job-fail", map[string]any{
		"image": "aGk=",
		"audio": "aGk=",
	})

	assert.Equal(t, "cuda out of memory", result.Error)
	assert.Empty(t, result.Video)
	require.Len(t, gen.requests, 1)
	assertNoLeftovers(t, root)
}

func TestRunnerRejectsBadParams(t *testing.T) {
	gen := &fakeGenerator{}
	runner, root := newTestRunner(t, Base64Contract{}, gen, nil)

	result := runner.Run(context.Background(), "job-params", map[string]any{
		"image": "aGk=",
		"audio": "aGk=",
		"size":  1024,
	})

	assert.Contains(t, result.Error, "size must be one of")
	assert.Empty(t, gen.requests)
	assertNoLeftovers(t, root)
}

func TestRunnerArchivesVideo(t *testing.T) {
	archive := &fakeArchive{}
	runner, _ := newTestRunner(t, Base64Contract{}, &fakeGenerator{}, archive)

	result := runner.Run(context.Background(), "job-arch", map[string]any{"image": "aGk=", "audio": "aGk="})

	require.Empty(t, result.Error)
	assert.Equal(t, []string{"job-arch/source_image##driven_audio.mp4"}, archive.keys)
	assert.Equal(t, "http://minio.local/videos/job-arch/source_image##driven_audio.mp4", result.URL)
}

func TestRunnerArchiveFailureKeepsResult(t *testing.T) {
	archive := &fakeArchive{err: errors.New("bucket gone")}
	runner, _ := newTestRunner(t, RawContract{}, &fakeGenerator{}, archive)

	result := runner.Run(context.Background(), "job-arch", map[string]any{"image": "a", "audio": "b"})

	require.Empty(t, result.Error)
	assert.Equal(t, fakeVideo, result.Video)
	assert.Empty(t, result.URL)
}

func TestDecodeParams(t *testing.T) {
	params, err := DecodeParams(map[string]any{
		"image":        "ignored",
		"use_enhancer": "true",
		"batch_size":   float64(4),
		"pose_style":   "12",
	})
	require.NoError(t, err)
	assert.True(t, params.UseEnhancer)
	assert.Equal(t, 4, params.BatchSize)
	assert.Equal(t, 12, params.PoseStyle)
	assert.Equal(t, models.PreprocessCrop, params.Preprocess)

	_, err = DecodeParams(map[string]any{"pose_style": 99})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = DecodeParams(map[string]any{"batch_size": "many"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = DecodeParams(map[string]any{"batch_size": 2.9})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = DecodeParams(map[string]any{"size": "512.0"})
	assert.ErrorIs(t, err, models.ErrValidation)

	params, err = DecodeParams(map[string]any{"size": 512.0})
	require.NoError(t, err)
	assert.Equal(t, 512, params.Size)
}

type memoryResults struct {
	saved map[string]models.JobResult
	err   error
}

func (m *memoryResults) Save(_ context.Context, jobID string, result models.JobResult) error {
	if m.err != nil {
		return m.err
	}
	if m.saved == nil {
		m.saved = map[string]models.JobResult{}
	}
	m.saved[jobID] = result
	return nil
}

func TestProcessorHandle(t *testing.T) {
	store := &memoryResults{}
	runner, _ := newTestRunner(t, Base64Contract{}, &fakeGenerator{}, nil)
	processor := NewProcessor(runner, store, zerolog.Nop())

	err := processor.Handle(context.Background(), redis.XMessage{
		ID: "1-0",
		Values: map[string]any{
			queue.FieldJobID: "abc",
			queue.FieldInput: `{"image":"aGk=","audio":"aGk=","still_mode":true}`,
		},
	})
	require.NoError(t, err)
	require.Contains(t, store.saved, "abc")
	assert.Equal(t, models.JobStatusSuccess, store.saved["abc"].Status)
}

func TestProcessorHandleBadInput(t *testing.T) {
	store := &memoryResults{}
	runner, _ := newTestRunner(t, Base64Contract{}, &fakeGenerator{}, nil)
	processor := NewProcessor(runner, store, zerolog.Nop())

	require.NoError(t, processor.Handle(context.Background(), redis.XMessage{
		ID:     "1-0",
		Values: map[string]any{queue.FieldJobID: "bad", queue.FieldInput: "[1,2]"},
	}))
	assert.Contains(t, store.saved["bad"].Error, "unsupported format")

	require.NoError(t, processor.Handle(context.Background(), redis.XMessage{
		ID:     "2-0",
		Values: map[string]any{queue.FieldInput: `{}`},
	}))
	assert.Len(t, store.saved, 1)
}

func TestProcessorHandleSaveFailure(t *testing.T) {
	store := &memoryResults{err: errors.New("redis down")}
	runner, _ := newTestRunner(t, Base64Contract{}, &fakeGenerator{}, nil)
	processor := NewProcessor(runner, store, zerolog.Nop())

	err := processor.Handle(context.Background(), redis.XMessage{
		ID:     "1-0",
		Values: map[string]any{queue.FieldJobID: "abc", queue.FieldInput: `{}`},
	})
	assert.ErrorContains(t, err, "redis down")
}
