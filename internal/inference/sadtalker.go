package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"sadtalker/internal/models"
)

const (
	dirPermissions  = 0o755
	maxOutputInLogs = 2048
)

var ErrNoVideoProduced = errors.New("model produced no video")

type Options struct {
	Python        string
	Script        string
	WorkDir       string
	CheckpointDir string
	ConfigDir     string
	Enhancer      string
	Timeout       time.Duration
}

// SadTalker launches the model's command line entry point once per call.
// Every call runs in its own OS process and job directory, so concurrent
// calls do not share state.
type SadTalker struct {
	opts Options
	log  zerolog.Logger
}

// NewSadTalker checks that the interpreter, entry script, checkpoints and
// model configs are in place. It does not load any weights; the child process does that.
func NewSadTalker(opts Options, log zerolog.Logger) (*SadTalker, error) {
	if opts.Python == "" || opts.Script == "" {
		return nil, fmt.Errorf("model python and script are required")
	}
	if _, err := exec.LookPath(opts.Python); err != nil {
		return nil, fmt.Errorf("find interpreter %q: %w", opts.Python, err)
	}
	if _, err := os.Stat(resolve(opts.WorkDir, opts.Script)); err != nil {
		return nil, fmt.Errorf("entry script: %w", err)
	}
	if opts.CheckpointDir != "" {
		if _, err := os.Stat(resolve(opts.WorkDir, opts.CheckpointDir)); err != nil {
			return nil, fmt.Errorf("checkpoint dir: %w", err)
		}
	}
	// the entry script loads its yaml configs from here on its own
	if opts.ConfigDir != "" {
		if _, err := os.Stat(resolve(opts.WorkDir, opts.ConfigDir)); err != nil {
			return nil, fmt.Errorf("config dir: %w", err)
		}
	}

	return &SadTalker{
		opts: opts,
		log:  log.With().Str("component", "sadtalker").Logger(),
	}, nil
}

// Test stages the inputs under resultDir/<ksuid>/input, runs the model and
// returns resultDir/<ksuid>/<image>##<audio>.mp4.
func (s *SadTalker) Test(ctx context.Context, req models.GenerationRequest, resultDir string) (string, error) {
	jobDir, err := filepath.Abs(filepath.Join(resultDir, ksuid.New().String()))
	if err != nil {
		return "", fmt.Errorf("resolve job dir: %w", err)
	}
	inputDir := filepath.Join(jobDir, "input")
	if err := os.MkdirAll(inputDir, dirPermissions); err != nil {
		return "", fmt.Errorf("create input dir: %w", err)
	}

	ok := false
	defer func() {
		if !ok {
			if rmErr := os.RemoveAll(jobDir); rmErr != nil {
				s.log.Warn().Err(rmErr).Str("job_dir", jobDir).Msg("remove failed job dir")
			}
		}
	}()

	image, err := copyInto(inputDir, req.SourceImage)
	if err != nil {
		return "", fmt.Errorf("stage image: %w", err)
	}
	audio, err := copyInto(inputDir, req.DrivenAudio)
	if err != nil {
		return "", fmt.Errorf("stage audio: %w", err)
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	args := s.buildArgs(req, image, audio, jobDir)

	s.log.Info().
		Str("job_dir", jobDir).
		Str("preprocess", string(req.Preprocess)).
		Int("size", req.Size).
		Bool("still", req.StillMode).
		Bool("enhancer", req.UseEnhancer).
		Msg("starting generation")

	start := time.Now()
	// #nosec G204 -- interpreter and script come from configuration, parameters are validated
	cmd := exec.CommandContext(ctx, s.opts.Python, args...)
	cmd.Dir = s.opts.WorkDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("model run failed: %w - output: %s", err, tail(output))
	}

	produced, err := newestVideo(jobDir, inputDir)
	if err != nil {
		return "", err
	}

	final := filepath.Join(jobDir, VideoName(image, audio))
	if produced != final {
		if err := os.Rename(produced, final); err != nil {
			return "", fmt.Errorf("rename video: %w", err)
		}
	}

	s.log.Info().
		Str("video", final).
		Dur("elapsed", time.Since(start)).
		Msg("generation finished")

	ok = true
	return final, nil
}

func (s *SadTalker) buildArgs(req models.GenerationRequest, image, audio, jobDir string) []string {
	args := []string{
		s.opts.Script,
		"--driven_audio", audio,
		"--source_image", image,
		"--result_dir", jobDir,
		"--preprocess", string(req.Preprocess),
		"--batch_size", strconv.Itoa(req.BatchSize),
		"--size", strconv.Itoa(req.Size),
		"--pose_style", strconv.Itoa(req.PoseStyle),
	}
	if s.opts.CheckpointDir != "" {
		args = append(args, "--checkpoint_dir", s.opts.CheckpointDir)
	}
	if req.StillMode {
		args = append(args, "--still")
	}
	if req.UseEnhancer && s.opts.Enhancer != "" {
		args = append(args, "--enhancer", s.opts.Enhancer)
	}
	return args
}

// VideoName is the on-disk name of a generated video: the image stem is the
// display part, the audio stem the suffix.
func VideoName(image, audio string) string {
	return stem(image) + models.VideoSeparator + stem(audio) + ".mp4"
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func newestVideo(jobDir, skip string) (string, error) {
	var (
		newest  string
		newestT time.Time
	)
	err := filepath.WalkDir(jobDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == skip {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".mp4") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if newest == "" || info.ModTime().After(newestT) {
			newest, newestT = path, info.ModTime()
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scan job dir: %w", err)
	}
	if newest == "" {
		return "", ErrNoVideoProduced
	}
	return newest, nil
}

func copyInto(dir, src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	dst := filepath.Join(dir, filepath.Base(src))
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", err
	}
	return dst, out.Close()
}

func resolve(base, path string) string {
	if filepath.IsAbs(path) || base == "" {
		return path
	}
	return filepath.Join(base, path)
}

func tail(output []byte) string {
	if len(output) > maxOutputInLogs {
		output = output[len(output)-maxOutputInLogs:]
	}
	return strings.TrimSpace(string(output))
}
