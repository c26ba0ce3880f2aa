package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"streamrelay/platform"
)

type HealthController struct{}

// Check reports process liveness plus a best-effort look at the store.
// The relay itself never consults this; a degraded store only thins out
// history and fan-out.
func (h HealthController) Check(c *gin.Context) {
	status := "healthy"
	if platform.RDB == nil {
		status = "degraded"
	} else {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()
		if err := platform.RDB.Ping(ctx).Err(); err != nil {
			status = "degraded"
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}
