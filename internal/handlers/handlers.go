package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"sadtalker/internal/config"
	"sadtalker/internal/middleware"
	"sadtalker/internal/models"
	"sadtalker/internal/results"
)

// Generator is the orchestration step the HTTP face delegates to.
type Generator interface {
	Generate(ctx context.Context, req models.GenerationRequest, resultDir string) (string, error)
}

// ModelState reports whether the model has been initialised yet.
type ModelState interface {
	Loaded() bool
}

type HandlerSet struct {
	log       zerolog.Logger
	cfg       *config.AppConfig
	generator Generator
	index     *results.Index
	model     ModelState
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, generator Generator, index *results.Index, model ModelState) HandlerSet {
	return HandlerSet{
		log:       log,
		cfg:       cfg,
		generator: generator,
		index:     index,
		model:     model,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/", h.Index)
	router.GET("/healthz", h.Health)
	router.Static("/static", h.cfg.Paths.Static)

	generate := router.Group("/generate")
	if h.cfg.Security.JWTSecret != "" {
		generate.Use(middleware.Auth(h.cfg.Security.JWTSecret))
	}
	generate.POST("", h.Generate)

	router.GET("/videos", h.ListVideos)
	router.GET("/video/:dir_id/:type/*file_name", h.GetFile)
}

func abortDetail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

// requestLog returns the request-scoped logger installed by
// middleware.RequestID, falling back to the handler set's logger.
func (h HandlerSet) requestLog(c *gin.Context) zerolog.Logger {
	if l := zerolog.Ctx(c.Request.Context()); l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return h.log
}

func (h HandlerSet) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log := h.requestLog(c)
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	abortDetail(c, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
