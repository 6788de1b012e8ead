package scheduler

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"agentarena/internal/config"
	"agentarena/internal/models"
	"agentarena/internal/repository"
)

// Finalizer ranks agents by final wealth at session end. Standings can also
// be computed point-in-time for the read facade without persisting anything.
type Finalizer struct {
	Repo   repository.Repository
	Logger *zap.Logger
	Cfg    config.TradingConfig
}

func NewFinalizer(repo repository.Repository, logger *zap.Logger, cfg config.TradingConfig) *Finalizer {
	return &Finalizer{Repo: repo, Logger: logger, Cfg: cfg}
}

// Standings computes the current ranked wealth of every agent in a session.
// Ties break by trade count, then agent ID, so rankings are deterministic.
func (f *Finalizer) Standings(ctx context.Context, sessionID string) ([]models.LeaderboardEntry, error) {
	agents, err := f.Repo.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	goods, err := f.Repo.ListGoods(ctx)
	if err != nil {
		return nil, err
	}
	refPrice := make(map[string]decimal.Decimal, len(goods))
	for _, g := range goods {
		refPrice[g.ID] = g.ReferencePrice
	}

	entries := make([]models.LeaderboardEntry, 0, len(agents))
	for _, agent := range agents {
		cash, err := f.Repo.GetCashBalance(ctx, sessionID, agent.ID)
		if err != nil {
			return nil, err
		}
		inventory, err := f.Repo.ListAgentInventories(ctx, sessionID, agent.ID)
		if err != nil {
			return nil, err
		}
		goodsValue := decimal.Zero
		for _, row := range inventory {
			goodsValue = goodsValue.Add(row.Quantity.Mul(refPrice[row.GoodID]))
		}
		trades, err := f.Repo.CountTradesForAgent(ctx, sessionID, agent.ID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, models.LeaderboardEntry{
			ID:              uuid.NewString(),
			SessionID:       sessionID,
			AgentID:         agent.ID,
			FinalCash:       cash,
			FinalGoodsValue: goodsValue,
			TotalWealth:     cash.Add(goodsValue),
			TradesCompleted: int(trades),
			TradesRequired:  f.Cfg.MinTradesPerSession,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].TotalWealth.Equal(entries[j].TotalWealth) {
			return entries[i].TotalWealth.GreaterThan(entries[j].TotalWealth)
		}
		if entries[i].TradesCompleted != entries[j].TradesCompleted {
			return entries[i].TradesCompleted > entries[j].TradesCompleted
		}
		return entries[i].AgentID < entries[j].AgentID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// Finalize persists the session's ranked standings. A session that already
// has leaderboard rows keeps them; finalization never runs twice.
func (f *Finalizer) Finalize(ctx context.Context, sessionID string) ([]models.LeaderboardEntry, error) {
	existing, err := f.Repo.CountLeaderboardBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		if f.Logger != nil {
			f.Logger.Info("leaderboard already finalized", zap.String("session_id", sessionID))
		}
		return f.Repo.ListLeaderboardBySession(ctx, sessionID)
	}

	entries, err := f.Standings(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	if err := f.Repo.InsertLeaderboardEntries(ctx, entries); err != nil {
		return nil, err
	}
	if f.Logger != nil {
		f.Logger.Info("leaderboard finalized",
			zap.String("session_id", sessionID),
			zap.Int("entries", len(entries)))
	}
	return entries, nil
}
