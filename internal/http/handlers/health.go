package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/branchgraph/internal/services"
)

type HealthHandler struct {
	registry services.BranchRegistry
}

func NewHealthHandler(registry services.BranchRegistry) *HealthHandler {
	return &HealthHandler{registry: registry}
}

// GET /healthcheck
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// GET /readyz
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.registry == nil || h.registry.Default().Name == "" {
		c.String(http.StatusServiceUnavailable, "branch registry not loaded")
		return
	}
	c.String(http.StatusOK, "ok")
}
