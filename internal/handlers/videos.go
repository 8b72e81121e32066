package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

const missingIndexPage = "Error: index.html not found in static directory"

func (h HandlerSet) Index(c *gin.Context) {
	page, err := os.ReadFile(filepath.Join(h.cfg.Paths.Static, "index.html"))
	if err != nil {
		c.Data(http.StatusNotFound, "text/html; charset=utf-8", []byte(missingIndexPage))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

func (h HandlerSet) ListVideos(c *gin.Context) {
	records, err := h.index.List()
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// GetFile serves /video/:dir_id/:type/*file_name. The router has already
// percent-decoded the path once, which undoes the encoding applied by
// ListVideos.
func (h HandlerSet) GetFile(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("file_name"), "/")

	path, mediaType, err := h.index.Resolve(c.Param("dir_id"), c.Param("type"), name)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Header("Content-Type", mediaType)
	c.File(path)
}
