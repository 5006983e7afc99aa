package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthCheck reports liveness and whether a patch is playing.
func (h *EngineHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"running": h.host.Running(),
		"loaded":  h.host.LoadID() != "",
	})
}
