// Package results derives the list of generated videos from the results
// directory tree. There is no separate index: the directory layout
//
//	<root>/<job-dir>/input/<image>, <root>/<job-dir>/input/<audio>
//	<root>/<job-dir>/<display>##<suffix>.mp4
//
// is the only source of truth.
package results

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"sadtalker/internal/models"
)

const (
	KindInput  = "input"
	KindOutput = "output"
)

type Index struct {
	root string
	log  zerolog.Logger
}

func NewIndex(root string, log zerolog.Logger) *Index {
	return &Index{root: root, log: log}
}

func (i *Index) Root() string {
	return i.root
}

// List returns one record per ##-tagged mp4, newest first.
func (i *Index) List() ([]models.ResultRecord, error) {
	entries, err := os.ReadDir(i.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []models.ResultRecord{}, nil
		}
		return nil, fmt.Errorf("read results root: %w", err)
	}

	records := []models.ResultRecord{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dirRecords, err := i.scanDir(entry.Name())
		if err != nil {
			i.log.Warn().Err(err).Str("dir", entry.Name()).Msg("skip unreadable result dir")
			continue
		}
		records = append(records, dirRecords...)
	}

	sort.SliceStable(records, func(a, b int) bool {
		return records[a].Timestamp > records[b].Timestamp
	})
	return records, nil
}

func (i *Index) scanDir(dirID string) ([]models.ResultRecord, error) {
	dirPath := filepath.Join(i.root, dirID)

	inputImage, inputAudio := i.scanInputs(dirID)

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, err
	}

	var records []models.ResultRecord
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".mp4" || !strings.Contains(name, models.VideoSeparator) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		records = append(records, models.ResultRecord{
			ID:          dirID,
			Name:        name,
			DisplayName: strings.SplitN(name, models.VideoSeparator, 2)[0],
			URL:         FileURL(dirID, KindOutput, name),
			InputImage:  inputImage,
			InputAudio:  inputAudio,
			Timestamp:   float64(info.ModTime().UnixNano()) / 1e9,
		})
	}
	return records, nil
}

// scanInputs picks the image and audio inside <dir>/input. With several
// candidates the last one in name order wins.
func (i *Index) scanInputs(dirID string) (image, audio *string) {
	entries, err := os.ReadDir(filepath.Join(i.root, dirID, "input"))
	if err != nil {
		return nil, nil
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		url := FileURL(dirID, KindInput, entry.Name())
		switch {
		case hasExt(entry.Name(), imageExts):
			image = &url
		case hasExt(entry.Name(), audioExts):
			audio = &url
		}
	}
	return image, audio
}

// Resolve maps a fetch request onto a file below the results root and
// returns the path and its media type.
func (i *Index) Resolve(dirID, kind, name string) (string, string, error) {
	var path string
	switch kind {
	case KindInput:
		path = filepath.Join(i.root, dirID, "input", name)
	case KindOutput:
		path = filepath.Join(i.root, dirID, name)
	default:
		return "", "", fmt.Errorf("%w: invalid type, must be 'input' or 'output'", models.ErrValidation)
	}

	if !i.contains(path) {
		return "", "", fmt.Errorf("%w: path escapes results directory", models.ErrValidation)
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", "", fmt.Errorf("%w: file not found: %s", models.ErrNotFound, path)
	}

	mediaType, err := MediaType(name)
	if err != nil {
		return "", "", err
	}
	return path, mediaType, nil
}

func (i *Index) contains(path string) bool {
	root, err := filepath.Abs(i.root)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Prune removes job directories whose modification time is older than
// cutoff and reports how many were removed.
func (i *Index) Prune(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(i.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read results root: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(i.root, entry.Name())); err != nil {
			i.log.Warn().Err(err).Str("dir", entry.Name()).Msg("prune result dir failed")
			continue
		}
		removed++
	}
	return removed, nil
}
