package tasks

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"sadtalker/internal/config"
	"sadtalker/internal/models"
)

// Contract is the wire format of the image/audio fields of a job and of the
// video field of its result.
type Contract interface {
	Name() string
	Decode(field string, value any) ([]byte, error)
	Encode(video []byte) []byte
	// EncodeInput and DecodeVideo are the producer side of Decode and Encode.
	EncodeInput(data []byte) string
	DecodeVideo(video []byte) ([]byte, error)
	// CleanupLog receives transient cleanup failures.
	CleanupLog(log zerolog.Logger) zerolog.Logger
}

func NewContract(name string) (Contract, error) {
	switch name {
	case config.ContractRaw:
		return RawContract{}, nil
	case config.ContractBase64:
		return Base64Contract{}, nil
	}
	return nil, fmt.Errorf("unknown contract %q", name)
}

// RawContract treats input fields as percent-escaped byte strings and
// returns the video bytes untouched. The result is only safe on a
// binary-clean transport; Base64Contract is the one to use for JSON.
type RawContract struct{}

func (RawContract) Name() string { return config.ContractRaw }

func (RawContract) Decode(field string, value any) ([]byte, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("%w for %s: expected string, got %T", models.ErrUnsupportedFormat, field, value)
	}
	return Unquote(s), nil
}

func (RawContract) Encode(video []byte) []byte { return video }

func (RawContract) EncodeInput(data []byte) string { return Quote(data) }

func (RawContract) DecodeVideo(video []byte) ([]byte, error) { return video, nil }

// CleanupLog silences cleanup failures.
func (RawContract) CleanupLog(zerolog.Logger) zerolog.Logger { return zerolog.Nop() }

// Base64Contract expects standard base64 text in and produces it out.
type Base64Contract struct{}

func (Base64Contract) Name() string { return config.ContractBase64 }

func (Base64Contract) Decode(field string, value any) ([]byte, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("%w for %s: expected base64 string, got %T", models.ErrUnsupportedFormat, field, value)
	}
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		// TODO: download URL inputs once the worker has an egress policy.
		return nil, fmt.Errorf("%w for %s: URL input is not supported", models.ErrUnsupportedFormat, field)
	}
	if strings.HasPrefix(s, "data:") {
		if idx := strings.Index(s, ";base64,"); idx >= 0 {
			s = s[idx+len(";base64,"):]
		}
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w for %s: invalid base64: %v", models.ErrUnsupportedFormat, field, err)
	}
	return data, nil
}

func (Base64Contract) Encode(video []byte) []byte {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(video)))
	base64.StdEncoding.Encode(out, video)
	return out
}

func (Base64Contract) EncodeInput(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func (Base64Contract) DecodeVideo(video []byte) ([]byte, error) {
	out := make([]byte, base64.StdEncoding.DecodedLen(len(video)))
	n, err := base64.StdEncoding.Decode(out, video)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 video: %v", models.ErrUnsupportedFormat, err)
	}
	return out[:n], nil
}

func (Base64Contract) CleanupLog(log zerolog.Logger) zerolog.Logger { return log }

// Unquote decodes %XX escapes into bytes. Malformed escapes are kept
// literally instead of failing, so any string decodes to something.
func Unquote(s string) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			hi, okHi := unhex(s[i+1])
			lo, okLo := unhex(s[i+2])
			if okHi && okLo {
				out = append(out, hi<<4|lo)
				i += 2
				continue
			}
		}
		out = append(out, s[i])
	}
	return out
}

// Quote percent-escapes every byte outside the unreserved URI set, so that
// Unquote(Quote(b)) == b for any b.
func Quote(data []byte) string {
	const hex = "0123456789ABCDEF"
	var sb strings.Builder
	sb.Grow(len(data) * 3)
	for _, c := range data {
		if isUnreserved(c) {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(hex[c>>4])
		sb.WriteByte(hex[c&0x0f])
	}
	return sb.String()
}

func isUnreserved(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
