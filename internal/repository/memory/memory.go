// Package memoryrepository is a mutex-guarded in-memory ledger store. It backs
// the db.driver=memory dev mode and the package tests; the core's mutation
// paths are single-writer, so InTx provides no rollback.
package memoryrepository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"agentarena/internal/models"
	"agentarena/internal/repository"
)

type Store struct {
	mu sync.Mutex

	modelBindings map[string]models.ModelBinding
	agents        map[string]models.Agent
	goods         map[string]models.Good
	sessions      map[string]models.Session
	rounds        map[string]models.Round
	inventories   map[string]models.Inventory // key session|agent|good
	cash          map[string]decimal.Decimal  // key session|agent
	proposals     map[string]models.Proposal
	trades        []models.Trade
	leaderboard   []models.LeaderboardEntry
	logs          []models.ActivityLog
}

func New() *Store {
	return &Store{
		modelBindings: map[string]models.ModelBinding{},
		agents:        map[string]models.Agent{},
		goods:         map[string]models.Good{},
		sessions:      map[string]models.Session{},
		rounds:        map[string]models.Round{},
		inventories:   map[string]models.Inventory{},
		cash:          map[string]decimal.Decimal{},
		proposals:     map[string]models.Proposal{},
	}
}

func posKey(parts ...string) string { return strings.Join(parts, "|") }

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

// --- roster and catalog -----------------------------------------------------

func (s *Store) UpsertModelBinding(ctx context.Context, item *models.ModelBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modelBindings[item.ID] = *item
	return nil
}

func (s *Store) GetModelBinding(ctx context.Context, id string) (*models.ModelBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.modelBindings[id]; ok {
		return &m, nil
	}
	return nil, nil
}

func (s *Store) UpsertAgent(ctx context.Context, item *models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[item.ID] = *item
	return nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.agents[id]; ok {
		return &a, nil
	}
	return nil, nil
}

func (s *Store) ListAgents(ctx context.Context) ([]models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpsertGood(ctx context.Context, item *models.Good) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goods[item.ID] = *item
	return nil
}

func (s *Store) GetGood(ctx context.Context, id string) (*models.Good, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.goods[id]; ok {
		return &g, nil
	}
	return nil, nil
}

func (s *Store) GetGoodByName(ctx context.Context, name string) (*models.Good, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.goods {
		if strings.EqualFold(g.Name, name) {
			out := g
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) ListGoods(ctx context.Context) ([]models.Good, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Good, 0, len(s.goods))
	for _, g := range s.goods {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// --- sessions ---------------------------------------------------------------

func (s *Store) InsertSession(ctx context.Context, item *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[item.ID] = *item
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return &sess, nil
	}
	return nil, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (s *Store) FindSessionByStatus(ctx context.Context, status string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.Session
	for _, sess := range s.sessions {
		if sess.Status != status {
			continue
		}
		if found == nil || sess.StartTime.After(found.StartTime) {
			cp := sess
			found = &cp
		}
	}
	return found, nil
}

func (s *Store) UpdateSessionStatus(ctx context.Context, id string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	sess.Status = status
	sess.PausedRemainingMS = nil
	s.sessions[id] = sess
	return nil
}

func (s *Store) MarkSessionPaused(ctx context.Context, id string, remainingMS int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	sess.Status = models.SessionPaused
	sess.PausedRemainingMS = &remainingMS
	s.sessions[id] = sess
	return nil
}

func (s *Store) MarkSessionResumed(ctx context.Context, id string, endTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	sess.Status = models.SessionActive
	sess.EndTime = endTime
	sess.PausedRemainingMS = nil
	s.sessions[id] = sess
	return nil
}

// --- rounds -----------------------------------------------------------------

func (s *Store) InsertRound(ctx context.Context, item *models.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds[item.ID] = *item
	return nil
}

func (s *Store) GetRound(ctx context.Context, id string) (*models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rounds[id]; ok {
		return &r, nil
	}
	return nil, nil
}

func (s *Store) CloseRound(ctx context.Context, id string, end time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok {
		return nil
	}
	r.EndTime = &end
	s.rounds[id] = r
	return nil
}

func (s *Store) LastRoundNumber(ctx context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	last := 0
	for _, r := range s.rounds {
		if r.SessionID == sessionID && r.RoundNumber > last {
			last = r.RoundNumber
		}
	}
	return last, nil
}

// --- inventories and cash ---------------------------------------------------

func (s *Store) InsertInventories(ctx context.Context, items []models.Inventory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.inventories[posKey(item.SessionID, item.AgentID, item.GoodID)] = item
	}
	return nil
}

func (s *Store) InsertCashBalances(ctx context.Context, items []models.CashBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.cash[posKey(item.SessionID, item.AgentID)] = item.Cash
	}
	return nil
}

func (s *Store) GetInventory(ctx context.Context, sessionID, agentID, goodID string) (*models.Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv, ok := s.inventories[posKey(sessionID, agentID, goodID)]; ok {
		return &inv, nil
	}
	return nil, nil
}

func (s *Store) ListAgentInventories(ctx context.Context, sessionID, agentID string) ([]models.Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Inventory
	for _, inv := range s.inventories {
		if inv.SessionID == sessionID && inv.AgentID == agentID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GoodID < out[j].GoodID })
	return out, nil
}

func (s *Store) ListSessionInventories(ctx context.Context, sessionID string) ([]models.Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Inventory
	for _, inv := range s.inventories {
		if inv.SessionID == sessionID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AgentID != out[j].AgentID {
			return out[i].AgentID < out[j].AgentID
		}
		return out[i].GoodID < out[j].GoodID
	})
	return out, nil
}

func (s *Store) AddInventoryQuantityTx(ctx context.Context, tx *gorm.DB, sessionID, agentID, goodID string, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := posKey(sessionID, agentID, goodID)
	inv := s.inventories[key]
	inv.SessionID, inv.AgentID, inv.GoodID = sessionID, agentID, goodID
	inv.Quantity = inv.Quantity.Add(delta)
	s.inventories[key] = inv
	return nil
}

func (s *Store) GetCashBalance(ctx context.Context, sessionID, agentID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cash[posKey(sessionID, agentID)], nil
}

func (s *Store) AddCashTx(ctx context.Context, tx *gorm.DB, sessionID, agentID string, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := posKey(sessionID, agentID)
	s.cash[key] = s.cash[key].Add(delta)
	return nil
}

// --- proposals --------------------------------------------------------------

func (s *Store) InsertProposal(ctx context.Context, item *models.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals[item.ID] = *item
	return nil
}

func (s *Store) InsertProposalTx(ctx context.Context, tx *gorm.DB, item *models.Proposal) error {
	return s.InsertProposal(ctx, item)
}

func (s *Store) GetProposal(ctx context.Context, id string) (*models.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.proposals[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (s *Store) MarkProposalResolvedTx(ctx context.Context, tx *gorm.DB, id string, status string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[id]
	if !ok || p.Status != models.ProposalPending {
		return false, nil
	}
	p.Status = status
	s.proposals[id] = p
	return true, nil
}

func (s *Store) ListPendingProposalsForRound(ctx context.Context, toAgentID, roundID string) ([]models.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Proposal
	for _, p := range s.proposals {
		if p.ToAgentID == toAgentID && p.RoundID == roundID && p.Status == models.ProposalPending {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListProposalsBySession(ctx context.Context, sessionID string) ([]models.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roundIDs := map[string]bool{}
	for _, r := range s.rounds {
		if r.SessionID == sessionID {
			roundIDs[r.ID] = true
		}
	}
	var out []models.Proposal
	for _, p := range s.proposals {
		if roundIDs[p.RoundID] {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// --- trades -----------------------------------------------------------------

func (s *Store) InsertTradeTx(ctx context.Context, tx *gorm.DB, item *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, *item)
	return nil
}

func (s *Store) CountTradesForAgent(ctx context.Context, sessionID, agentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, t := range s.trades {
		if t.SessionID == sessionID && (t.FromAgentID == agentID || t.ToAgentID == agentID) {
			count++
		}
	}
	return count, nil
}

func (s *Store) ListTradesBySession(ctx context.Context, sessionID string) ([]models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Trade
	for _, t := range s.trades {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SettledAt.After(out[j].SettledAt) })
	return out, nil
}

// --- leaderboard ------------------------------------------------------------

func (s *Store) InsertLeaderboardEntries(ctx context.Context, items []models.LeaderboardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaderboard = append(s.leaderboard, items...)
	return nil
}

func (s *Store) ListLeaderboardBySession(ctx context.Context, sessionID string) ([]models.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LeaderboardEntry
	for _, e := range s.leaderboard {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

func (s *Store) ListLeaderboardEntries(ctx context.Context) ([]models.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.LeaderboardEntry, len(s.leaderboard))
	copy(out, s.leaderboard)
	return out, nil
}

func (s *Store) CountLeaderboardBySession(ctx context.Context, sessionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, e := range s.leaderboard {
		if e.SessionID == sessionID {
			count++
		}
	}
	return count, nil
}

// --- activity log -----------------------------------------------------------

func (s *Store) InsertActivityLog(ctx context.Context, item *models.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, *item)
	return nil
}

func (s *Store) ListActivityLogs(ctx context.Context, sessionID string, limit int) ([]models.ActivityLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	var out []models.ActivityLog
	for _, l := range s.logs {
		if l.SessionID == sessionID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ repository.Repository = (*Store)(nil)
