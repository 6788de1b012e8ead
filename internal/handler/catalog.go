package handler

import (
	"github.com/gin-gonic/gin"

	"agentarena/internal/repository"
)

// CatalogHandler exposes the static roster and goods catalog.
type CatalogHandler struct {
	Repo repository.Repository
}

func (h *CatalogHandler) Register(r *gin.Engine) {
	r.GET("/api/agents", h.listAgents)
	r.GET("/api/goods", h.listGoods)
}

func (h *CatalogHandler) listAgents(c *gin.Context) {
	items, err := h.Repo.ListAgents(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

func (h *CatalogHandler) listGoods(c *gin.Context) {
	items, err := h.Repo.ListGoods(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}
