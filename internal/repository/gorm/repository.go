package gormrepository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"agentarena/internal/models"
	"agentarena/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// handle returns the transaction when one is in flight, the root db otherwise.
func (s *Store) handle(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}

func firstOrNil[T any](q *gorm.DB, out *T) (*T, error) {
	if err := q.First(out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

// --- roster and catalog -----------------------------------------------------

func (s *Store) UpsertModelBinding(ctx context.Context, item *models.ModelBinding) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "provider", "api_key_env_var"}),
	}).Create(item).Error
}

func (s *Store) GetModelBinding(ctx context.Context, id string) (*models.ModelBinding, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.ModelBinding
	return firstOrNil(s.db.WithContext(ctx).Where("id = ?", id), &item)
}

func (s *Store) UpsertAgent(ctx context.Context, item *models.Agent) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "model_id", "provider"}),
	}).Create(item).Error
}

func (s *Store) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Agent
	return firstOrNil(s.db.WithContext(ctx).Where("id = ?", id), &item)
}

func (s *Store) ListAgents(ctx context.Context) ([]models.Agent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Agent
	if err := s.db.WithContext(ctx).Order("id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpsertGood(ctx context.Context, item *models.Good) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "unit", "reference_price"}),
	}).Create(item).Error
}

func (s *Store) GetGood(ctx context.Context, id string) (*models.Good, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Good
	return firstOrNil(s.db.WithContext(ctx).Where("id = ?", id), &item)
}

func (s *Store) GetGoodByName(ctx context.Context, name string) (*models.Good, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Good
	return firstOrNil(s.db.WithContext(ctx).Where("lower(name) = lower(?)", name), &item)
}

func (s *Store) ListGoods(ctx context.Context) ([]models.Good, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Good
	if err := s.db.WithContext(ctx).Order("name asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- sessions ---------------------------------------------------------------

func (s *Store) InsertSession(ctx context.Context, item *models.Session) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Session
	return firstOrNil(s.db.WithContext(ctx).Where("id = ?", id), &item)
}

func (s *Store) ListSessions(ctx context.Context) ([]models.Session, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Session
	if err := s.db.WithContext(ctx).Order("start_time desc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) FindSessionByStatus(ctx context.Context, status string) (*models.Session, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Session
	return firstOrNil(s.db.WithContext(ctx).Where("status = ?", status).Order("start_time desc"), &item)
}

func (s *Store) UpdateSessionStatus(ctx context.Context, id string, status string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "paused_remaining_ms": nil}).Error
}

func (s *Store) MarkSessionPaused(ctx context.Context, id string, remainingMS int64) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": models.SessionPaused, "paused_remaining_ms": remainingMS}).Error
}

func (s *Store) MarkSessionResumed(ctx context.Context, id string, endTime time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":              models.SessionActive,
			"end_time":            endTime,
			"paused_remaining_ms": nil,
		}).Error
}

// --- rounds -----------------------------------------------------------------

func (s *Store) InsertRound(ctx context.Context, item *models.Round) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetRound(ctx context.Context, id string) (*models.Round, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Round
	return firstOrNil(s.db.WithContext(ctx).Where("id = ?", id), &item)
}

func (s *Store) CloseRound(ctx context.Context, id string, end time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.Round{}).
		Where("id = ?", id).
		Update("end_time", end).Error
}

func (s *Store) LastRoundNumber(ctx context.Context, sessionID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var item models.Round
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("round_number desc").
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return item.RoundNumber, nil
}

// --- inventories and cash ---------------------------------------------------

func (s *Store) InsertInventories(ctx context.Context, items []models.Inventory) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(items, 200).Error
}

func (s *Store) InsertCashBalances(ctx context.Context, items []models.CashBalance) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(items, 200).Error
}

func (s *Store) GetInventory(ctx context.Context, sessionID, agentID, goodID string) (*models.Inventory, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Inventory
	return firstOrNil(s.db.WithContext(ctx).
		Where("session_id = ? AND agent_id = ? AND good_id = ?", sessionID, agentID, goodID), &item)
}

func (s *Store) ListAgentInventories(ctx context.Context, sessionID, agentID string) ([]models.Inventory, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Inventory
	if err := s.db.WithContext(ctx).
		Where("session_id = ? AND agent_id = ?", sessionID, agentID).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListSessionInventories(ctx context.Context, sessionID string) ([]models.Inventory, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Inventory
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) AddInventoryQuantityTx(ctx context.Context, tx *gorm.DB, sessionID, agentID, goodID string, delta decimal.Decimal) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.handle(ctx, tx).Model(&models.Inventory{}).
		Where("session_id = ? AND agent_id = ? AND good_id = ?", sessionID, agentID, goodID).
		Update("quantity", gorm.Expr("quantity + ?", delta)).Error
}

func (s *Store) GetCashBalance(ctx context.Context, sessionID, agentID string) (decimal.Decimal, error) {
	if s == nil || s.db == nil {
		return decimal.Zero, nil
	}
	var item models.CashBalance
	got, err := firstOrNil(s.db.WithContext(ctx).
		Where("session_id = ? AND agent_id = ?", sessionID, agentID), &item)
	if err != nil || got == nil {
		return decimal.Zero, err
	}
	return got.Cash, nil
}

func (s *Store) AddCashTx(ctx context.Context, tx *gorm.DB, sessionID, agentID string, delta decimal.Decimal) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.handle(ctx, tx).Model(&models.CashBalance{}).
		Where("session_id = ? AND agent_id = ?", sessionID, agentID).
		Update("cash", gorm.Expr("cash + ?", delta)).Error
}

// --- proposals --------------------------------------------------------------

func (s *Store) InsertProposal(ctx context.Context, item *models.Proposal) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) InsertProposalTx(ctx context.Context, tx *gorm.DB, item *models.Proposal) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.handle(ctx, tx).Create(item).Error
}

func (s *Store) GetProposal(ctx context.Context, id string) (*models.Proposal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Proposal
	return firstOrNil(s.db.WithContext(ctx).Where("id = ?", id), &item)
}

func (s *Store) MarkProposalResolvedTx(ctx context.Context, tx *gorm.DB, id string, status string) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	res := s.handle(ctx, tx).Model(&models.Proposal{}).
		Where("id = ? AND status = ?", id, models.ProposalPending).
		Update("status", status)
	return res.RowsAffected > 0, res.Error
}

func (s *Store) ListPendingProposalsForRound(ctx context.Context, toAgentID, roundID string) ([]models.Proposal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Proposal
	if err := s.db.WithContext(ctx).
		Where("to_agent_id = ? AND round_id = ? AND status = ?", toAgentID, roundID, models.ProposalPending).
		Order("created_at asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListProposalsBySession(ctx context.Context, sessionID string) ([]models.Proposal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Proposal
	if err := s.db.WithContext(ctx).
		Where("round_id IN (?)", s.db.Model(&models.Round{}).Select("id").Where("session_id = ?", sessionID)).
		Order("created_at desc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- trades -----------------------------------------------------------------

func (s *Store) InsertTradeTx(ctx context.Context, tx *gorm.DB, item *models.Trade) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.handle(ctx, tx).Create(item).Error
}

func (s *Store) CountTradesForAgent(ctx context.Context, sessionID, agentID string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Trade{}).
		Where("session_id = ?", sessionID).
		Where("from_agent_id = ? OR to_agent_id = ?", agentID, agentID).
		Count(&count).Error
	return count, err
}

func (s *Store) ListTradesBySession(ctx context.Context, sessionID string) ([]models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Trade
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("settled_at desc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- leaderboard ------------------------------------------------------------

func (s *Store) InsertLeaderboardEntries(ctx context.Context, items []models.LeaderboardEntry) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(items, 200).Error
}

func (s *Store) ListLeaderboardBySession(ctx context.Context, sessionID string) ([]models.LeaderboardEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.LeaderboardEntry
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("rank asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListLeaderboardEntries(ctx context.Context) ([]models.LeaderboardEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.LeaderboardEntry
	if err := s.db.WithContext(ctx).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountLeaderboardBySession(ctx context.Context, sessionID string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&models.LeaderboardEntry{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}

// --- activity log -----------------------------------------------------------

func (s *Store) InsertActivityLog(ctx context.Context, item *models.ActivityLog) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListActivityLogs(ctx context.Context, sessionID string, limit int) ([]models.ActivityLog, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	var items []models.ActivityLog
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at desc").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

var _ repository.Repository = (*Store)(nil)
