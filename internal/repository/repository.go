package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"agentarena/internal/models"
)

// Repository is the ledger store port. Methods suffixed Tx take the handle
// supplied by InTx so the settlement engine can apply all of its writes in
// one atomic unit; the in-memory implementation ignores the handle.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Roster and catalog.
	UpsertModelBinding(ctx context.Context, item *models.ModelBinding) error
	GetModelBinding(ctx context.Context, id string) (*models.ModelBinding, error)
	UpsertAgent(ctx context.Context, item *models.Agent) error
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	ListAgents(ctx context.Context) ([]models.Agent, error)
	UpsertGood(ctx context.Context, item *models.Good) error
	GetGood(ctx context.Context, id string) (*models.Good, error)
	GetGoodByName(ctx context.Context, name string) (*models.Good, error)
	ListGoods(ctx context.Context) ([]models.Good, error)

	// Sessions.
	InsertSession(ctx context.Context, item *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context) ([]models.Session, error)
	FindSessionByStatus(ctx context.Context, status string) (*models.Session, error)
	UpdateSessionStatus(ctx context.Context, id string, status string) error
	MarkSessionPaused(ctx context.Context, id string, remainingMS int64) error
	MarkSessionResumed(ctx context.Context, id string, endTime time.Time) error

	// Rounds.
	InsertRound(ctx context.Context, item *models.Round) error
	GetRound(ctx context.Context, id string) (*models.Round, error)
	CloseRound(ctx context.Context, id string, end time.Time) error
	LastRoundNumber(ctx context.Context, sessionID string) (int, error)

	// Inventories and cash.
	InsertInventories(ctx context.Context, items []models.Inventory) error
	InsertCashBalances(ctx context.Context, items []models.CashBalance) error
	GetInventory(ctx context.Context, sessionID, agentID, goodID string) (*models.Inventory, error)
	ListAgentInventories(ctx context.Context, sessionID, agentID string) ([]models.Inventory, error)
	ListSessionInventories(ctx context.Context, sessionID string) ([]models.Inventory, error)
	AddInventoryQuantityTx(ctx context.Context, tx *gorm.DB, sessionID, agentID, goodID string, delta decimal.Decimal) error
	GetCashBalance(ctx context.Context, sessionID, agentID string) (decimal.Decimal, error)
	AddCashTx(ctx context.Context, tx *gorm.DB, sessionID, agentID string, delta decimal.Decimal) error

	// Proposals.
	InsertProposal(ctx context.Context, item *models.Proposal) error
	InsertProposalTx(ctx context.Context, tx *gorm.DB, item *models.Proposal) error
	GetProposal(ctx context.Context, id string) (*models.Proposal, error)
	// MarkProposalResolvedTx transitions a pending proposal to a terminal
	// status and reports whether the row was still pending.
	MarkProposalResolvedTx(ctx context.Context, tx *gorm.DB, id string, status string) (bool, error)
	ListPendingProposalsForRound(ctx context.Context, toAgentID, roundID string) ([]models.Proposal, error)
	ListProposalsBySession(ctx context.Context, sessionID string) ([]models.Proposal, error)

	// Trades.
	InsertTradeTx(ctx context.Context, tx *gorm.DB, item *models.Trade) error
	CountTradesForAgent(ctx context.Context, sessionID, agentID string) (int64, error)
	ListTradesBySession(ctx context.Context, sessionID string) ([]models.Trade, error)

	// Leaderboard.
	InsertLeaderboardEntries(ctx context.Context, items []models.LeaderboardEntry) error
	ListLeaderboardBySession(ctx context.Context, sessionID string) ([]models.LeaderboardEntry, error)
	ListLeaderboardEntries(ctx context.Context) ([]models.LeaderboardEntry, error)
	CountLeaderboardBySession(ctx context.Context, sessionID string) (int64, error)

	// Activity log.
	InsertActivityLog(ctx context.Context, item *models.ActivityLog) error
	ListActivityLogs(ctx context.Context, sessionID string, limit int) ([]models.ActivityLog, error)
}
