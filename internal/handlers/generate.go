package handlers

import (
	"bufio"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sadtalker/internal/media/sniffer"
	"sadtalker/internal/models"
	"sadtalker/internal/transient"
)

const downloadName = "generated_video.mp4"

func (h HandlerSet) Generate(c *gin.Context) {
	image, imageErr := c.FormFile("image")
	audio, audioErr := c.FormFile("audio")
	if imageErr != nil || audioErr != nil || image.Filename == "" || audio.Filename == "" {
		abortDetail(c, http.StatusBadRequest, "Both image and audio files are required")
		return
	}

	params, err := parseParams(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	uploads := transient.New(h.requestLog(c))
	defer uploads.Release()

	imagePath, err := h.saveUpload(image, uploads)
	if err != nil {
		h.writeError(c, err)
		return
	}
	audioPath, err := h.saveUpload(audio, uploads)
	if err != nil {
		h.writeError(c, err)
		return
	}

	req, err := models.NewGenerationRequest(imagePath, audioPath, params)
	if err != nil {
		h.writeError(c, err)
		return
	}

	video, err := h.generator.Generate(c.Request.Context(), req, h.cfg.Paths.Results)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Header("Content-Type", "video/mp4")
	c.FileAttachment(video, downloadName)
}

// saveUpload writes the upload to uploads/<uuid>_<name>. Names without an
// extension get one sniffed from the content.
func (h HandlerSet) saveUpload(header *multipart.FileHeader, uploads *transient.Set) (string, error) {
	src, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	name := filepath.Base(header.Filename)
	reader := bufio.NewReaderSize(src, 512)
	if filepath.Ext(name) == "" {
		head, _ := reader.Peek(512)
		name += sniffer.ExtOr(head, "")
	}

	if err := os.MkdirAll(h.cfg.Paths.Uploads, 0o755); err != nil {
		return "", fmt.Errorf("create uploads dir: %w", err)
	}
	dst := uploads.Track(filepath.Join(h.cfg.Paths.Uploads, uuid.NewString()+"_"+name))

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(out, reader); err != nil {
		out.Close()
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close upload file: %w", err)
	}
	return dst, nil
}

func parseParams(c *gin.Context) (models.Params, error) {
	params := models.DefaultParams()

	if v, ok := postForm(c, "preprocess"); ok {
		params.Preprocess = models.PreprocessMode(v)
	}

	var err error
	if params.StillMode, err = formBool(c, "still_mode", params.StillMode); err != nil {
		return params, err
	}
	if params.UseEnhancer, err = formBool(c, "use_enhancer", params.UseEnhancer); err != nil {
		return params, err
	}
	if params.BatchSize, err = formInt(c, "batch_size", params.BatchSize); err != nil {
		return params, err
	}
	if params.Size, err = formInt(c, "size", params.Size); err != nil {
		return params, err
	}
	if params.PoseStyle, err = formInt(c, "pose_style", params.PoseStyle); err != nil {
		return params, err
	}
	return params, nil
}

// postForm treats a blank field like a missing one, as browsers submit
// untouched inputs as empty strings.
func postForm(c *gin.Context, key string) (string, bool) {
	raw, ok := c.GetPostForm(key)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return "", false
	}
	return raw, true
}

func formInt(c *gin.Context, key string, def int) (int, error) {
	raw, ok := postForm(c, key)
	if !ok {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def, fmt.Errorf("%w: %s must be an integer, got %q", models.ErrValidation, key, raw)
	}
	return v, nil
}

func formBool(c *gin.Context, key string, def bool) (bool, error) {
	raw, ok := postForm(c, key)
	if !ok {
		return def, nil
	}
	v, err := ParseBool(raw)
	if err != nil {
		return def, fmt.Errorf("%w: %s must be a boolean, got %q", models.ErrValidation, key, raw)
	}
	return v, nil
}

// ParseBool accepts the spellings form clients commonly send.
func ParseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "y", "on", "t":
		return true, nil
	case "false", "0", "no", "n", "off", "f":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", raw)
}
