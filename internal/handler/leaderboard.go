package handler

import (
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"agentarena/internal/repository"
	"agentarena/internal/scheduler"
)

type LeaderboardHandler struct {
	Repo      repository.Repository
	Finalizer *scheduler.Finalizer
}

func (h *LeaderboardHandler) Register(r *gin.Engine) {
	r.GET("/api/sessions/:id/leaderboard", h.sessionLeaderboard)
	r.GET("/api/leaderboard/alltime", h.allTime)
}

// sessionLeaderboard returns finalized rows when the session is completed,
// or live point-in-time standings while it is still running.
func (h *LeaderboardHandler) sessionLeaderboard(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	entries, err := h.Repo.ListLeaderboardBySession(ctx, sessionID)
	if err != nil {
		Fail(c, err)
		return
	}
	if len(entries) > 0 {
		Ok(c, entries, map[string]any{"finalized": true})
		return
	}

	standings, err := h.Finalizer.Standings(ctx, sessionID)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, standings, map[string]any{"finalized": false})
}

type allTimeRow struct {
	AgentID        string          `json:"agent_id"`
	SessionsPlayed int             `json:"sessions_played"`
	Wins           int             `json:"wins"`
	TotalWealthSum decimal.Decimal `json:"total_wealth_sum"`
	AverageWealth  decimal.Decimal `json:"average_wealth"`
	BestRank       int             `json:"best_rank"`
}

// allTime aggregates every finalized session into per-agent career stats.
func (h *LeaderboardHandler) allTime(c *gin.Context) {
	entries, err := h.Repo.ListLeaderboardEntries(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}

	byAgent := make(map[string]*allTimeRow)
	for _, e := range entries {
		row, ok := byAgent[e.AgentID]
		if !ok {
			row = &allTimeRow{AgentID: e.AgentID, BestRank: e.Rank}
			byAgent[e.AgentID] = row
		}
		row.SessionsPlayed++
		row.TotalWealthSum = row.TotalWealthSum.Add(e.TotalWealth)
		if e.Rank == 1 {
			row.Wins++
		}
		if e.Rank < row.BestRank {
			row.BestRank = e.Rank
		}
	}

	rows := make([]allTimeRow, 0, len(byAgent))
	for _, row := range byAgent {
		row.AverageWealth = row.TotalWealthSum.Div(decimal.NewFromInt(int64(row.SessionsPlayed)))
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Wins != rows[j].Wins {
			return rows[i].Wins > rows[j].Wins
		}
		if !rows[i].AverageWealth.Equal(rows[j].AverageWealth) {
			return rows[i].AverageWealth.GreaterThan(rows[j].AverageWealth)
		}
		return rows[i].AgentID < rows[j].AgentID
	})
	Ok(c, rows, map[string]any{"count": len(rows)})
}
