// Package trading implements the proposal state machine and the settlement
// engine. All ledger mutations for a trade happen in one repository
// transaction; balances are never read back mid-settlement.
package trading

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"agentarena/internal/config"
	"agentarena/internal/errs"
	"agentarena/internal/models"
	"agentarena/internal/repository"
	"agentarena/internal/ws"
)

type Service struct {
	Repo    repository.Repository
	Logger  *zap.Logger
	Hub     *ws.Hub
	Cfg     config.TradingConfig
	Economy config.EconomyConfig
}

func NewService(repo repository.Repository, logger *zap.Logger, hub *ws.Hub, cfg config.TradingConfig, economy config.EconomyConfig) *Service {
	return &Service{
		Repo:    repo,
		Logger:  logger,
		Hub:     hub,
		Cfg:     cfg,
		Economy: economy,
	}
}

// AgentState is the public position of one agent in a session.
type AgentState struct {
	AgentID         string             `json:"agent_id"`
	AgentName       string             `json:"agent_name"`
	Cash            decimal.Decimal    `json:"cash"`
	Inventory       []models.Inventory `json:"inventory"`
	TradesCompleted int64              `json:"trades_completed"`
	TradesRequired  int                `json:"trades_required"`
}

// InitializeSession writes every agent's opening cash and inventory rows for
// the session. Idempotent: upserted positions keep their first-written values
// only because it runs before any trading.
func (s *Service) InitializeSession(ctx context.Context, sessionID string) error {
	agents, err := s.Repo.ListAgents(ctx)
	if err != nil {
		return err
	}
	if len(agents) < 2 {
		return errs.Validationf("need at least 2 agents to run a session, have %d", len(agents))
	}
	goods, err := s.Repo.ListGoods(ctx)
	if err != nil {
		return err
	}

	cash := decimal.NewFromFloat(s.Economy.InitialCash)
	var inventories []models.Inventory
	var balances []models.CashBalance
	for _, agent := range agents {
		balances = append(balances, models.CashBalance{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			AgentID:   agent.ID,
			Cash:      cash,
		})
		for _, good := range goods {
			qty := decimal.NewFromFloat(s.Economy.InitialInventory[good.ID])
			inventories = append(inventories, models.Inventory{
				ID:        uuid.NewString(),
				SessionID: sessionID,
				AgentID:   agent.ID,
				GoodID:    good.ID,
				Quantity:  qty,
			})
		}
	}

	if err := s.Repo.InsertCashBalances(ctx, balances); err != nil {
		return err
	}
	if err := s.Repo.InsertInventories(ctx, inventories); err != nil {
		return err
	}
	if s.Logger != nil {
		s.Logger.Info("session positions initialized",
			zap.String("session_id", sessionID),
			zap.Int("agents", len(agents)),
			zap.Int("goods", len(goods)))
	}
	return nil
}

// Propose creates a pending sell offer from one agent to another.
func (s *Service) Propose(ctx context.Context, sessionID, roundID, fromAgentID, toAgentID, goodID string, quantity, price decimal.Decimal, explanation string) (*models.Proposal, error) {
	if fromAgentID == toAgentID {
		return nil, errs.Validationf("agent cannot trade with itself")
	}
	if !quantity.IsPositive() {
		return nil, errs.Validationf("quantity must be positive")
	}
	if !price.IsPositive() {
		return nil, errs.Validationf("price must be positive")
	}

	to, err := s.Repo.GetAgent(ctx, toAgentID)
	if err != nil {
		return nil, err
	}
	if to == nil {
		return nil, errs.NotFoundf("agent %s not found", toAgentID)
	}
	good, err := s.Repo.GetGood(ctx, goodID)
	if err != nil {
		return nil, err
	}
	if good == nil {
		return nil, errs.NotFoundf("good %s not found", goodID)
	}

	// Balances are checked at acceptance, not here. An overcommitted offer
	// simply fails to settle later.
	proposal := &models.Proposal{
		ID:          uuid.NewString(),
		RoundID:     roundID,
		FromAgentID: fromAgentID,
		ToAgentID:   toAgentID,
		GoodID:      goodID,
		Quantity:    quantity,
		Price:       price,
		Explanation: explanation,
		Status:      models.ProposalPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.Repo.InsertProposal(ctx, proposal); err != nil {
		return nil, err
	}

	s.logAction(ctx, sessionID, roundID, fromAgentID, "proposal created", map[string]any{
		"proposal_id": proposal.ID,
		"to_agent_id": toAgentID,
		"good_id":     goodID,
		"quantity":    quantity.String(),
		"price":       price.String(),
	})
	s.broadcast(ws.EventProposalCreated, proposal)
	return proposal, nil
}

// Accept settles a pending proposal. The seller gives up the quantity and
// receives the price; the buyer pays the price and receives the quantity plus
// the acceptance bonus. All writes land in one transaction.
func (s *Service) Accept(ctx context.Context, sessionID, proposalID, agentID string) (*models.Trade, error) {
	proposal, err := s.loadActionable(ctx, proposalID, agentID)
	if err != nil {
		return nil, err
	}

	sellerHolding, err := s.Repo.GetInventory(ctx, sessionID, proposal.FromAgentID, proposal.GoodID)
	if err != nil {
		return nil, err
	}
	if sellerHolding == nil || sellerHolding.Quantity.LessThan(proposal.Quantity) {
		return nil, errs.Insufficientf("seller no longer holds the offered quantity")
	}
	buyerCash, err := s.Repo.GetCashBalance(ctx, sessionID, proposal.ToAgentID)
	if err != nil {
		return nil, err
	}
	if buyerCash.LessThan(proposal.Price) {
		return nil, errs.Insufficientf("buyer cash %s is below price %s", buyerCash.StringFixed(2), proposal.Price.StringFixed(2))
	}

	bonusFactor := decimal.NewFromFloat(1 + s.Cfg.BonusRate)
	buyerQty := proposal.Quantity.Mul(bonusFactor)

	trade := &models.Trade{
		ID:          uuid.NewString(),
		ProposalID:  proposal.ID,
		SessionID:   sessionID,
		FromAgentID: proposal.FromAgentID,
		ToAgentID:   proposal.ToAgentID,
		GoodID:      proposal.GoodID,
		Quantity:    proposal.Quantity,
		Price:       proposal.Price,
		SettledAt:   time.Now().UTC(),
	}

	err = s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		stillPending, err := s.Repo.MarkProposalResolvedTx(ctx, tx, proposal.ID, models.ProposalAccepted)
		if err != nil {
			return err
		}
		if !stillPending {
			return errs.Conflictf("proposal %s is no longer pending", proposal.ID)
		}
		if err := s.Repo.AddInventoryQuantityTx(ctx, tx, sessionID, proposal.FromAgentID, proposal.GoodID, proposal.Quantity.Neg()); err != nil {
			return err
		}
		if err := s.Repo.AddCashTx(ctx, tx, sessionID, proposal.FromAgentID, proposal.Price); err != nil {
			return err
		}
		if err := s.Repo.AddInventoryQuantityTx(ctx, tx, sessionID, proposal.ToAgentID, proposal.GoodID, buyerQty); err != nil {
			return err
		}
		if err := s.Repo.AddCashTx(ctx, tx, sessionID, proposal.ToAgentID, proposal.Price.Neg()); err != nil {
			return err
		}
		return s.Repo.InsertTradeTx(ctx, tx, trade)
	})
	if err != nil {
		return nil, err
	}

	s.logAction(ctx, sessionID, proposal.RoundID, agentID, "trade settled", map[string]any{
		"trade_id":    trade.ID,
		"proposal_id": proposal.ID,
		"quantity":    trade.Quantity.String(),
		"price":       trade.Price.String(),
	})
	s.broadcast(ws.EventTradeExecuted, trade)
	s.broadcastAgentStates(ctx, sessionID)
	return trade, nil
}

// Reject moves a pending proposal to rejected.
func (s *Service) Reject(ctx context.Context, sessionID, proposalID, agentID string) error {
	proposal, err := s.loadActionable(ctx, proposalID, agentID)
	if err != nil {
		return err
	}

	resolved, err := s.Repo.MarkProposalResolvedTx(ctx, nil, proposal.ID, models.ProposalRejected)
	if err != nil {
		return err
	}
	if !resolved {
		return errs.Conflictf("proposal %s is no longer pending", proposal.ID)
	}

	s.logAction(ctx, sessionID, proposal.RoundID, agentID, "proposal rejected", map[string]any{
		"proposal_id": proposal.ID,
	})
	return nil
}

// Counter resolves a pending proposal as countered and spawns a reversed
// pending offer back to its sender with depth incremented. Depth beyond the
// configured maximum is refused so negotiations terminate.
func (s *Service) Counter(ctx context.Context, sessionID, proposalID, agentID string, quantity, price decimal.Decimal, explanation string) (*models.Proposal, error) {
	proposal, err := s.loadActionable(ctx, proposalID, agentID)
	if err != nil {
		return nil, err
	}
	if !quantity.IsPositive() {
		return nil, errs.Validationf("quantity must be positive")
	}
	if !price.IsPositive() {
		return nil, errs.Validationf("price must be positive")
	}
	if proposal.CounterDepth >= s.Cfg.MaxCounterDepth {
		return nil, errs.Conflictf("counter depth limit of %d reached, accept or reject instead", s.Cfg.MaxCounterDepth)
	}

	counter := &models.Proposal{
		ID:           uuid.NewString(),
		RoundID:      proposal.RoundID,
		FromAgentID:  proposal.ToAgentID,
		ToAgentID:    proposal.FromAgentID,
		GoodID:       proposal.GoodID,
		Quantity:     quantity,
		Price:        price,
		Explanation:  explanation,
		Status:       models.ProposalPending,
		CounterDepth: proposal.CounterDepth + 1,
		CreatedAt:    time.Now().UTC(),
	}

	err = s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		resolved, err := s.Repo.MarkProposalResolvedTx(ctx, tx, proposal.ID, models.ProposalCountered)
		if err != nil {
			return err
		}
		if !resolved {
			return errs.Conflictf("proposal %s is no longer pending", proposal.ID)
		}
		return s.Repo.InsertProposalTx(ctx, tx, counter)
	})
	if err != nil {
		return nil, err
	}

	s.logAction(ctx, sessionID, proposal.RoundID, agentID, "proposal countered", map[string]any{
		"proposal_id": proposal.ID,
		"counter_id":  counter.ID,
		"depth":       counter.CounterDepth,
	})
	s.broadcast(ws.EventProposalCreated, counter)
	return counter, nil
}

// loadActionable fetches a proposal and verifies the acting agent is its
// recipient and the proposal is still pending.
func (s *Service) loadActionable(ctx context.Context, proposalID, agentID string) (*models.Proposal, error) {
	proposal, err := s.Repo.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal == nil {
		return nil, errs.NotFoundf("proposal %s not found", proposalID)
	}
	if proposal.ToAgentID != agentID {
		return nil, errs.Conflictf("proposal %s is not addressed to agent %s", proposalID, agentID)
	}
	if proposal.Status != models.ProposalPending {
		return nil, errs.Conflictf("proposal %s is %s", proposalID, proposal.Status)
	}
	return proposal, nil
}

// StateOf assembles an agent's public position.
func (s *Service) StateOf(ctx context.Context, sessionID, agentID string) (*AgentState, error) {
	agent, err := s.Repo.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, errs.NotFoundf("agent %s not found", agentID)
	}
	cash, err := s.Repo.GetCashBalance(ctx, sessionID, agentID)
	if err != nil {
		return nil, err
	}
	inventory, err := s.Repo.ListAgentInventories(ctx, sessionID, agentID)
	if err != nil {
		return nil, err
	}
	trades, err := s.Repo.CountTradesForAgent(ctx, sessionID, agentID)
	if err != nil {
		return nil, err
	}
	return &AgentState{
		AgentID:         agent.ID,
		AgentName:       agent.Name,
		Cash:            cash,
		Inventory:       inventory,
		TradesCompleted: trades,
		TradesRequired:  s.Cfg.MinTradesPerSession,
	}, nil
}

// SnapshotAllAgents returns every agent's position, ordered by agent ID.
func (s *Service) SnapshotAllAgents(ctx context.Context, sessionID string) ([]AgentState, error) {
	agents, err := s.Repo.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]AgentState, 0, len(agents))
	for _, agent := range agents {
		state, err := s.StateOf(ctx, sessionID, agent.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, *state)
	}
	return out, nil
}

func (s *Service) PendingProposalsFor(ctx context.Context, agentID, roundID string) ([]models.Proposal, error) {
	return s.Repo.ListPendingProposalsForRound(ctx, agentID, roundID)
}

func (s *Service) broadcast(eventType string, data interface{}) {
	if s.Hub != nil {
		s.Hub.Broadcast(eventType, data)
	}
}

func (s *Service) broadcastAgentStates(ctx context.Context, sessionID string) {
	if s.Hub == nil {
		return
	}
	states, err := s.SnapshotAllAgents(ctx, sessionID)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("agent state snapshot failed", zap.Error(err))
		}
		return
	}
	s.Hub.Broadcast(ws.EventAgentStateUpdate, states)
}

// logAction records advisory telemetry. Failures are logged and swallowed so
// telemetry never blocks settlement.
func (s *Service) logAction(ctx context.Context, sessionID, roundID, agentID, action string, fields map[string]any) {
	payload := map[string]any{"action": action}
	for k, v := range fields {
		payload[k] = v
	}
	content, err := json.Marshal(payload)
	if err != nil {
		content = []byte(fmt.Sprintf(`{"action":%q}`, action))
	}

	entry := &models.ActivityLog{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		LogType:   models.LogAgentAction,
		Content:   datatypes.JSON(content),
		CreatedAt: time.Now().UTC(),
	}
	if roundID != "" {
		entry.RoundID = &roundID
	}
	if agentID != "" {
		entry.AgentID = &agentID
	}
	if err := s.Repo.InsertActivityLog(ctx, entry); err != nil && s.Logger != nil {
		s.Logger.Warn("activity log write failed", zap.Error(err))
	}
}
