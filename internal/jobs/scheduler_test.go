package jobs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sadtalker/internal/config"
)

type stubPruner struct {
	cutoffs []time.Time
}

func (p *stubPruner) Prune(cutoff time.Time) (int, error) {
	p.cutoffs = append(p.cutoffs, cutoff)
	return 1, nil
}

func touch(t *testing.T, path string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestSweepRemovesStaleUploads(t *testing.T) {
	uploads := t.TempDir()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	touch(t, filepath.Join(uploads, "old_face.png"), now.Add(-7*time.Hour))
	touch(t, filepath.Join(uploads, "fresh_voice.wav"), now.Add(-time.Minute))

	pruner := &stubPruner{}
	s := NewScheduler(config.CleanupConfig{UploadMaxAge: 6 * time.Hour}, uploads, pruner, zerolog.Nop())
	s.now = func() time.Time { return now }

	s.Sweep()

	_, err := os.Stat(filepath.Join(uploads, "old_face.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.FileExists(t, filepath.Join(uploads, "fresh_voice.wav"))
	assert.Empty(t, pruner.cutoffs, "results are kept without a retention")
}

func TestSweepPrunesResultsWithRetention(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	pruner := &stubPruner{}
	s := NewScheduler(config.CleanupConfig{ResultRetention: 48 * time.Hour}, filepath.Join(t.TempDir(), "missing"), pruner, zerolog.Nop())
	s.now = func() time.Time { return now }

	s.Sweep()

	require.Len(t, pruner.cutoffs, 1)
	assert.Equal(t, now.Add(-48*time.Hour), pruner.cutoffs[0])
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(config.CleanupConfig{Schedule: "every now and then"}, t.TempDir(), nil, zerolog.Nop())
	assert.Error(t, s.Start())
}

func TestStartWithoutScheduleIsNoop(t *testing.T) {
	s := NewScheduler(config.CleanupConfig{}, t.TempDir(), nil, zerolog.Nop())
	require.NoError(t, s.Start())
}
