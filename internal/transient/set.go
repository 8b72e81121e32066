// Package transient tracks request-scoped files and directories and removes
// them on every exit path of the owning request.
package transient

import (
	"errors"
	"io/fs"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Set is safe for concurrent Track calls. Release is idempotent.
type Set struct {
	mu    sync.Mutex
	paths []string
	log   zerolog.Logger
}

// New returns a Set that logs removal failures to log. Pass zerolog.Nop()
// for silent cleanup.
func New(log zerolog.Logger) *Set {
	return &Set{log: log}
}

// Track registers path for removal and returns it unchanged.
func (s *Set) Track(path string) string {
	if path == "" {
		return path
	}
	s.mu.Lock()
	s.paths = append(s.paths, path)
	s.mu.Unlock()
	return path
}

func (s *Set) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.paths))
	copy(out, s.paths)
	return out
}

// Release removes every tracked path, most recent first. Failures are
// logged and never returned so they cannot mask the request's own result.
func (s *Set) Release() {
	s.mu.Lock()
	paths := s.paths
	s.paths = nil
	s.mu.Unlock()

	for i := len(paths) - 1; i >= 0; i-- {
		path := paths[i]
		if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("transient cleanup failed")
			continue
		}
		s.log.Debug().Str("path", path).Msg("transient path removed")
	}
}
