package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/CUknot/lostfound_backend/chat"
)

// HealthController reports liveness, database reachability and relay load.
type HealthController struct {
	DB      *gorm.DB
	Service *chat.Service
}

// Health godoc
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{} "ok, with open sessions and active rooms"
// @Failure 503 {object} map[string]string "database unreachable"
// @Router /health [get]
func (h *HealthController) Health(c *gin.Context) {
	sqlDB, err := h.DB.DB()
	if err == nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	resp := gin.H{"status": "ok"}
	if h.Service != nil {
		resp["sessions"] = h.Service.Sessions()
		resp["rooms"] = h.Service.Rooms()
	}
	c.JSON(http.StatusOK, resp)
}
