package trading

import (
	"context"

	"github.com/shopspring/decimal"

	"agentarena/internal/decision"
	"agentarena/internal/errs"
)

// TurnToolbox binds one agent's turn to the trading service. It resolves
// good names to catalog IDs and enforces the per-round proposal cap before
// anything reaches the service.
type TurnToolbox struct {
	Service   *Service
	SessionID string
	RoundID   string
	AgentID   string

	proposalsMade int
}

var _ decision.Toolbox = (*TurnToolbox)(nil)

func (t *TurnToolbox) MakeProposal(ctx context.Context, toAgentID, goodName string, quantity, price float64, explanation string) decision.ActionResult {
	if t.Service.Cfg.MaxProposalsPerRound > 0 && t.proposalsMade >= t.Service.Cfg.MaxProposalsPerRound {
		return decision.ActionResult{
			Success: false,
			Message: "proposal limit for this round reached",
		}
	}

	good, err := t.Service.Repo.GetGoodByName(ctx, goodName)
	if err != nil {
		return failure(err)
	}
	if good == nil {
		return decision.ActionResult{Success: false, Message: "unknown good: " + goodName}
	}

	proposal, err := t.Service.Propose(ctx, t.SessionID, t.RoundID, t.AgentID, toAgentID, good.ID,
		decimal.NewFromFloat(quantity), decimal.NewFromFloat(price), explanation)
	if err != nil {
		return failure(err)
	}

	t.proposalsMade++
	return decision.ActionResult{
		Success: true,
		Message: "proposal sent",
		Data:    map[string]any{"proposal_id": proposal.ID},
	}
}

func (t *TurnToolbox) AcceptProposal(ctx context.Context, proposalID string) decision.ActionResult {
	trade, err := t.Service.Accept(ctx, t.SessionID, proposalID, t.AgentID)
	if err != nil {
		return failure(err)
	}
	return decision.ActionResult{
		Success: true,
		Message: "trade settled",
		Data: map[string]any{
			"trade_id": trade.ID,
			"quantity": trade.Quantity.String(),
			"price":    trade.Price.String(),
		},
	}
}

func (t *TurnToolbox) RejectProposal(ctx context.Context, proposalID string) decision.ActionResult {
	if err := t.Service.Reject(ctx, t.SessionID, proposalID, t.AgentID); err != nil {
		return failure(err)
	}
	return decision.ActionResult{Success: true, Message: "proposal rejected"}
}

func (t *TurnToolbox) CounterProposal(ctx context.Context, proposalID string, quantity, price float64, explanation string) decision.ActionResult {
	counter, err := t.Service.Counter(ctx, t.SessionID, proposalID, t.AgentID,
		decimal.NewFromFloat(quantity), decimal.NewFromFloat(price), explanation)
	if err != nil {
		return failure(err)
	}
	return decision.ActionResult{
		Success: true,
		Message: "counter-offer sent",
		Data:    map[string]any{"proposal_id": counter.ID},
	}
}

func (t *TurnToolbox) AgentStates(ctx context.Context) decision.ActionResult {
	states, err := t.Service.SnapshotAllAgents(ctx, t.SessionID)
	if err != nil {
		return failure(err)
	}
	public := make([]map[string]any, 0, len(states))
	for _, state := range states {
		holdings := make(map[string]string, len(state.Inventory))
		for _, line := range state.Inventory {
			holdings[line.GoodID] = line.Quantity.String()
		}
		public = append(public, map[string]any{
			"agent_id":         state.AgentID,
			"agent_name":       state.AgentName,
			"cash":             state.Cash.StringFixed(2),
			"trades_completed": state.TradesCompleted,
			"inventory":        holdings,
		})
	}
	return decision.ActionResult{
		Success: true,
		Message: "agent states",
		Data:    map[string]any{"agents": public},
	}
}

// failure converts a service error into a tool outcome the model can act on.
// Internal errors stay generic so upstream models never see storage details.
func failure(err error) decision.ActionResult {
	if errs.KindOf(err) == errs.KindInternal {
		return decision.ActionResult{Success: false, Message: "internal error, try a different action"}
	}
	return decision.ActionResult{Success: false, Message: err.Error()}
}
