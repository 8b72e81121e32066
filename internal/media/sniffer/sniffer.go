package sniffer

import (
	"bytes"
	"errors"
	"strings"
)

type MediaType string

const (
	TypeJPEG MediaType = "jpeg"
	TypePNG  MediaType = "png"
	TypeWEBP MediaType = "webp"
	TypeWAV  MediaType = "wav"
	TypeMP3  MediaType = "mp3"
	TypeFLAC MediaType = "flac"
	TypeOGG  MediaType = "ogg"
	TypeM4A  MediaType = "m4a"
	TypeMP4  MediaType = "mp4"
)

var ErrUnknownType = errors.New("unknown media type")

type Result struct {
	Type MediaType
	MIME string
	Ext  string
}

func (r Result) IsImage() bool {
	return strings.HasPrefix(r.MIME, "image/")
}

func (r Result) IsAudio() bool {
	return strings.HasPrefix(r.MIME, "audio/")
}

func DetectHead(head []byte) (Result, error) {
	if len(head) > 512 {
		head = head[:512]
	}
	if len(head) == 0 {
		return Result{}, ErrUnknownType
	}

	switch {
	case isJPEG(head):
		return Result{Type: TypeJPEG, MIME: "image/jpeg", Ext: ".jpg"}, nil
	case isPNG(head):
		return Result{Type: TypePNG, MIME: "image/png", Ext: ".png"}, nil
	case isRIFF(head, "WEBP"):
		return Result{Type: TypeWEBP, MIME: "image/webp", Ext: ".webp"}, nil
	case isRIFF(head, "WAVE"):
		return Result{Type: TypeWAV, MIME: "audio/wav", Ext: ".wav"}, nil
	case isMP3(head):
		return Result{Type: TypeMP3, MIME: "audio/mpeg", Ext: ".mp3"}, nil
	case bytes.HasPrefix(head, []byte("fLaC")):
		return Result{Type: TypeFLAC, MIME: "audio/flac", Ext: ".flac"}, nil
	case bytes.HasPrefix(head, []byte("OggS")):
		return Result{Type: TypeOGG, MIME: "audio/ogg", Ext: ".ogg"}, nil
	}

	if brand, ok := ftypBrand(head); ok {
		if strings.HasPrefix(brand, "M4A") {
			return Result{Type: TypeM4A, MIME: "audio/mp4", Ext: ".m4a"}, nil
		}
		return Result{Type: TypeMP4, MIME: "video/mp4", Ext: ".mp4"}, nil
	}

	return Result{}, ErrUnknownType
}

// ExtOr returns the sniffed extension of data, or fallback when the head
// is not recognised.
func ExtOr(data []byte, fallback string) string {
	result, err := DetectHead(data)
	if err != nil {
		return fallback
	}
	return result.Ext
}

func isJPEG(head []byte) bool {
	return len(head) > 3 &&
		head[0] == 0xff &&
		head[1] == 0xd8 &&
		head[2] == 0xff
}

func isPNG(head []byte) bool {
	pngMagic := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	return len(head) >= len(pngMagic) && bytes.Equal(head[:len(pngMagic)], pngMagic)
}

func isRIFF(head []byte, form string) bool {
	return len(head) >= 12 &&
		bytes.Equal(head[:4], []byte("RIFF")) &&
		bytes.Equal(head[8:12], []byte(form))
}

func isMP3(head []byte) bool {
	if bytes.HasPrefix(head, []byte("ID3")) {
		return true
	}
	// bare MPEG audio frame sync
	return len(head) >= 2 && head[0] == 0xff && head[1]&0xe0 == 0xe0
}

func ftypBrand(head []byte) (string, bool) {
	if len(head) < 12 || string(head[4:8]) != "ftyp" {
		return "", false
	}
	return string(head[8:12]), true
}
