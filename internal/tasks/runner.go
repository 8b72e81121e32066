package tasks

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"

	"sadtalker/internal/media/sniffer"
	"sadtalker/internal/models"
	"sadtalker/internal/transient"
)

// Generator is the orchestration step a job delegates to.
type Generator interface {
	Generate(ctx context.Context, req models.GenerationRequest, resultDir string) (string, error)
}

// Archiver keeps a copy of a generated video and returns where it lives.
type Archiver interface {
	PutVideo(ctx context.Context, key, path string) (string, error)
}

// Runner executes one job input under a given contract. All temporary
// inputs and outputs live in one directory removed before Run returns.
type Runner struct {
	contract Contract
	gen      Generator
	archive  Archiver
	tempRoot string
	logger   zerolog.Logger
}

func NewRunner(contract Contract, gen Generator, archive Archiver, tempRoot string, logger zerolog.Logger) *Runner {
	return &Runner{
		contract: contract,
		gen:      gen,
		archive:  archive,
		tempRoot: tempRoot,
		logger:   logger.With().Str("contract", contract.Name()).Logger(),
	}
}

func (r *Runner) Contract() Contract {
	return r.contract
}

// Run never returns an error: every failure is reported in the result.
func (r *Runner) Run(ctx context.Context, jobID string, input map[string]any) models.JobResult {
	video, err := r.run(ctx, jobID, input)
	if err != nil {
		r.logger.Error().Err(err).Str("job_id", jobID).Msg("job failed")
		return models.JobResult{Error: err.Error()}
	}
	return video
}

func (r *Runner) run(ctx context.Context, jobID string, input map[string]any) (models.JobResult, error) {
	imageValue, audioValue := input["image"], input["audio"]
	if missing(imageValue) || missing(audioValue) {
		return models.JobResult{}, fmt.Errorf("%w: both image and audio are required", models.ErrValidation)
	}

	image, err := r.contract.Decode("image", imageValue)
	if err != nil {
		return models.JobResult{}, err
	}
	audio, err := r.contract.Decode("audio", audioValue)
	if err != nil {
		return models.JobResult{}, err
	}
	if len(image) == 0 || len(audio) == 0 {
		return models.JobResult{}, fmt.Errorf("%w: image and audio must not be empty", models.ErrValidation)
	}

	imageExt, err := sniffExt("image", image, ".png", sniffer.Result.IsImage)
	if err != nil {
		return models.JobResult{}, err
	}
	audioExt, err := sniffExt("audio", audio, ".wav", sniffer.Result.IsAudio)
	if err != nil {
		return models.JobResult{}, err
	}

	params, err := DecodeParams(input)
	if err != nil {
		return models.JobResult{}, err
	}

	files := transient.New(r.contract.CleanupLog(r.logger))
	defer files.Release()

	if err := os.MkdirAll(r.tempRoot, 0o755); err != nil {
		return models.JobResult{}, fmt.Errorf("create temp root: %w", err)
	}
	workDir, err := os.MkdirTemp(r.tempRoot, "job-*")
	if err != nil {
		return models.JobResult{}, fmt.Errorf("create job dir: %w", err)
	}
	files.Track(workDir)

	imagePath := filepath.Join(workDir, "source_image"+imageExt)
	audioPath := filepath.Join(workDir, "driven_audio"+audioExt)
	if err := os.WriteFile(imagePath, image, 0o600); err != nil {
		return models.JobResult{}, fmt.Errorf("write image: %w", err)
	}
	if err := os.WriteFile(audioPath, audio, 0o600); err != nil {
		return models.JobResult{}, fmt.Errorf("write audio: %w", err)
	}

	req, err := models.NewGenerationRequest(imagePath, audioPath, params)
	if err != nil {
		return models.JobResult{}, err
	}

	videoPath, err := r.gen.Generate(ctx, req, filepath.Join(workDir, "results"))
	if err != nil {
		return models.JobResult{}, err
	}
	// the model may write outside workDir; make sure its output goes too
	files.Track(videoPath)

	video, err := os.ReadFile(videoPath)
	if err != nil {
		return models.JobResult{}, fmt.Errorf("%w: read video: %v", models.ErrInference, err)
	}

	result := models.JobResult{
		Status: models.JobStatusSuccess,
		Video:  r.contract.Encode(video),
	}

	if r.archive != nil {
		url, err := r.archive.PutVideo(ctx, jobID+"/"+filepath.Base(videoPath), videoPath)
		if err != nil {
			r.logger.Warn().Err(err).Str("job_id", jobID).Msg("archive video failed")
		} else {
			result.URL = url
		}
	}

	r.logger.Info().
		Str("job_id", jobID).
		Int("video_bytes", len(video)).
		Msg("job finished")

	return result, nil
}

// missing reports whether a required field is absent, null or blank.
func missing(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// sniffExt picks the file extension for decoded input. Unrecognised content
// gets fallback; recognised content of the wrong kind is rejected.
func sniffExt(field string, data []byte, fallback string, want func(sniffer.Result) bool) (string, error) {
	head, err := sniffer.DetectHead(data)
	if err != nil {
		return fallback, nil
	}
	if !want(head) {
		return "", fmt.Errorf("%w for %s: got %s content", models.ErrUnsupportedFormat, field, head.Type)
	}
	return head.Ext, nil
}

// integralFloat rejects fractional JSON numbers bound for int fields.
func integralFloat(from, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.Int || (from.Kind() != reflect.Float64 && from.Kind() != reflect.Float32) {
		return data, nil
	}
	f := reflect.ValueOf(data).Float()
	if f != math.Trunc(f) {
		return nil, fmt.Errorf("expected an integer, got %v", f)
	}
	return int(f), nil
}

// DecodeParams merges the optional job fields over the defaults. Numbers
// and booleans may arrive as JSON values or as strings; integer fields
// accept whole numbers only, so 2.9 and "512.0" are both rejected.
func DecodeParams(input map[string]any) (models.Params, error) {
	params := models.DefaultParams()

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.DecodeHookFuncType(integralFloat),
		Result:           &params,
	})
	if err != nil {
		return params, fmt.Errorf("build params decoder: %w", err)
	}

	fields := make(map[string]any, len(input))
	for k, v := range input {
		if k == "image" || k == "audio" || v == nil {
			continue
		}
		fields[k] = v
	}

	if err := decoder.Decode(fields); err != nil {
		return params, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	if err := params.Validate(); err != nil {
		return params, err
	}
	return params, nil
}
