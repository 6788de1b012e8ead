package decision

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RuleEngine is a deterministic fallback used when an agent has no API key
// configured. It values everything at reference prices: it accepts offers at
// or below reference value, rejects the rest, and sells toward its trade
// quota one unit at a time.
type RuleEngine struct {
	logger *zap.Logger
}

func NewRuleEngine(logger *zap.Logger) *RuleEngine {
	return &RuleEngine{logger: logger}
}

func (e *RuleEngine) ExecuteTurn(ctx context.Context, turn TurnContext, tools Toolbox) error {
	refPrices := make(map[string]decimal.Decimal, len(turn.Inventory))
	for _, line := range turn.Inventory {
		refPrices[line.GoodName] = line.ReferencePrice
	}

	for _, p := range turn.PendingProposals {
		ref, ok := refPrices[p.GoodName]
		if !ok {
			tools.RejectProposal(ctx, p.ID)
			continue
		}
		fair := ref.Mul(p.Quantity)
		if p.Price.LessThanOrEqual(fair) && p.Price.LessThanOrEqual(turn.Cash) {
			res := tools.AcceptProposal(ctx, p.ID)
			if e.logger != nil && !res.Success {
				e.logger.Debug("rule accept failed", zap.String("proposal_id", p.ID), zap.String("reason", res.Message))
			}
			continue
		}
		tools.RejectProposal(ctx, p.ID)
	}

	if turn.TradesCompleted >= turn.TradesRequired || len(turn.OtherAgents) == 0 {
		return nil
	}

	for _, line := range turn.Inventory {
		if line.Quantity.LessThan(decimal.NewFromInt(1)) {
			continue
		}
		price, _ := line.ReferencePrice.Float64()
		to := turn.OtherAgents[0]
		res := tools.MakeProposal(ctx, to.ID, line.GoodName, 1, price, "selling at reference price")
		if e.logger != nil && !res.Success {
			e.logger.Debug("rule proposal failed",
				zap.String("to_agent_id", to.ID),
				zap.String("reason", res.Message))
		}
		return nil
	}
	return nil
}
