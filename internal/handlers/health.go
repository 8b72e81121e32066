package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	Status      string `json:"status"`
	Model       string `json:"model"`
	Environment string `json:"environment"`
}

func (h HandlerSet) Health(c *gin.Context) {
	modelStatus := "pending"
	if h.model != nil && h.model.Loaded() {
		modelStatus = "loaded"
	}

	c.JSON(http.StatusOK, healthResponse{
		Status:      "ok",
		Model:       modelStatus,
		Environment: h.cfg.Environment,
	})
}
