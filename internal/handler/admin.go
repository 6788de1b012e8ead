package handler

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"agentarena/internal/scheduler"
)

// AdminHandler exposes the manual session controls. Every route requires the
// configured X-API-Key header.
type AdminHandler struct {
	Scheduler *scheduler.Scheduler
	APIKey    string
}

func (h *AdminHandler) Register(r *gin.Engine) {
	group := r.Group("/api/admin/sessions", h.requireAPIKey)
	group.POST("/start", h.start)
	group.POST("/pause", h.pause)
	group.POST("/resume", h.resume)
	group.POST("/:id/end", h.end)
}

func (h *AdminHandler) requireAPIKey(c *gin.Context) {
	if h.APIKey == "" {
		Error(c, http.StatusUnauthorized, "admin api key not configured", nil)
		c.Abort()
		return
	}
	provided := c.GetHeader("X-API-Key")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.APIKey)) != 1 {
		Error(c, http.StatusUnauthorized, "invalid api key", nil)
		c.Abort()
		return
	}
	c.Next()
}

func (h *AdminHandler) start(c *gin.Context) {
	session, err := h.Scheduler.StartSession(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, session, nil)
}

func (h *AdminHandler) pause(c *gin.Context) {
	if err := h.Scheduler.PauseSession(c.Request.Context()); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, gin.H{"status": "paused"}, nil)
}

func (h *AdminHandler) resume(c *gin.Context) {
	if err := h.Scheduler.ResumeSession(c.Request.Context()); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, gin.H{"status": "resumed"}, nil)
}

func (h *AdminHandler) end(c *gin.Context) {
	if err := h.Scheduler.EndSession(c.Request.Context(), c.Param("id")); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, gin.H{"status": "completed"}, nil)
}
