package results

import (
	"fmt"
	"path/filepath"
	"strings"

	"sadtalker/internal/models"
)

var (
	imageExts = []string{".jpg", ".jpeg", ".png"}
	audioExts = []string{".wav", ".mp3"}
)

var mediaTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".mp4":  "video/mp4",
}

// MediaType maps a file name to the content type it is served with.
func MediaType(name string) (string, error) {
	mediaType, ok := mediaTypes[strings.ToLower(filepath.Ext(name))]
	if !ok {
		return "", fmt.Errorf("%w: unsupported file type", models.ErrUnsupportedFormat)
	}
	return mediaType, nil
}

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// FileURL builds the fetch URL of a result file. The file name is escaped
// the same way Python's urllib.parse.quote does, so a name containing '#',
// '%' or spaces survives one decode on the way back in.
func FileURL(dirID, kind, name string) string {
	return "/video/" + dirID + "/" + kind + "/" + Quote(name)
}

const upperhex = "0123456789ABCDEF"

// Quote percent-encodes every byte except ASCII letters, digits, "_.-~"
// and "/".
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if shouldKeep(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func shouldKeep(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '_', c == '.', c == '-', c == '~', c == '/':
		return true
	}
	return false
}
