package handler

import (
	"github.com/gin-gonic/gin"

	"agentarena/internal/repository"
)

// ActivityHandler exposes the per-session trading history and telemetry.
type ActivityHandler struct {
	Repo repository.Repository
}

func (h *ActivityHandler) Register(r *gin.Engine) {
	group := r.Group("/api/sessions/:id")
	group.GET("/proposals", h.listProposals)
	group.GET("/trades", h.listTrades)
	group.GET("/logs", h.listLogs)
}

func (h *ActivityHandler) listProposals(c *gin.Context) {
	items, err := h.Repo.ListProposalsBySession(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

func (h *ActivityHandler) listTrades(c *gin.Context) {
	items, err := h.Repo.ListTradesBySession(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

func (h *ActivityHandler) listLogs(c *gin.Context) {
	limit := intQuery(c, "limit", 200)
	items, err := h.Repo.ListActivityLogs(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, map[string]any{"count": len(items), "limit": limit})
}
