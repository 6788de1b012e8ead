package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"agentarena/internal/models"
	"agentarena/internal/repository"
	"agentarena/internal/scheduler"
	"agentarena/internal/trading"
)

type SessionHandler struct {
	Repo      repository.Repository
	Trading   *trading.Service
	Scheduler *scheduler.Scheduler
}

func (h *SessionHandler) Register(r *gin.Engine) {
	group := r.Group("/api/sessions")
	group.GET("", h.listSessions)
	group.GET("/current", h.currentSession)
	group.GET("/next", h.nextSession)
	group.GET("/:id", h.getSession)
	group.GET("/:id/state", h.sessionState)
	group.GET("/:id/agents/:agentId/state", h.agentState)
}

func (h *SessionHandler) listSessions(c *gin.Context) {
	items, err := h.Repo.ListSessions(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

func (h *SessionHandler) getSession(c *gin.Context) {
	session, err := h.Repo.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	if session == nil {
		Error(c, http.StatusNotFound, "session not found", nil)
		return
	}
	Ok(c, session, nil)
}

// currentSession returns the live (active or paused) session, if any.
func (h *SessionHandler) currentSession(c *gin.Context) {
	ctx := c.Request.Context()
	for _, status := range []string{models.SessionActive, models.SessionPaused} {
		session, err := h.Repo.FindSessionByStatus(ctx, status)
		if err != nil {
			Fail(c, err)
			return
		}
		if session != nil {
			Ok(c, session, nil)
			return
		}
	}
	Ok(c, nil, map[string]any{"status": "idle"})
}

// nextSession reports when the daily trigger will next start a session.
func (h *SessionHandler) nextSession(c *gin.Context) {
	next := h.Scheduler.NextSessionTime()
	if next == nil {
		Ok(c, nil, map[string]any{"scheduled": false})
		return
	}
	Ok(c, gin.H{"next_session_time": next}, nil)
}

// sessionState returns every agent's position in the session.
func (h *SessionHandler) sessionState(c *gin.Context) {
	states, err := h.Trading.SnapshotAllAgents(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, states, map[string]any{"count": len(states)})
}

func (h *SessionHandler) agentState(c *gin.Context) {
	state, err := h.Trading.StateOf(c.Request.Context(), c.Param("id"), c.Param("agentId"))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, state, nil)
}
