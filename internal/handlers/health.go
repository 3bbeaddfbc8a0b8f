package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// Pinger reports whether a backing store is reachable.
type Pinger func(ctx context.Context) error

// HealthCheck handles the health check endpoint. A nil ping means no
// database is configured.
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func HealthCheck(ping Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := HealthResponse{Status: "ok"}

		if ping == nil {
			response.Database = "not configured"
			c.JSON(http.StatusOK, response)
			return
		}
		if err := ping(c.Request.Context()); err != nil {
			response.Database = "disconnected"
			c.JSON(http.StatusServiceUnavailable, response)
			return
		}
		response.Database = "connected"
		c.JSON(http.StatusOK, response)
	}
}
