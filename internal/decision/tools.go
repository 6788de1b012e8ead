package decision

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	toolMakeProposal    = "make_proposal"
	toolAcceptProposal  = "accept_proposal"
	toolRejectProposal  = "reject_proposal"
	toolCounterProposal = "counter_proposal"
	toolAgentStates     = "get_agent_states"
)

type toolSpec struct {
	Name        string
	Description string
	Properties  map[string]any
	Required    []string
}

func toolSpecs() []toolSpec {
	return []toolSpec{
		{
			Name:        toolMakeProposal,
			Description: "Propose selling a good you hold to another agent for a total price in dollars.",
			Properties: map[string]any{
				"to_agent_id": map[string]any{"type": "string", "description": "ID of the agent to trade with"},
				"good":        map[string]any{"type": "string", "description": "Name of the good to sell"},
				"quantity":    map[string]any{"type": "number", "description": "Quantity to sell, must be positive"},
				"price":       map[string]any{"type": "number", "description": "Total price in dollars, must be positive"},
				"explanation": map[string]any{"type": "string", "description": "Short pitch shown to the other agent"},
			},
			Required: []string{"to_agent_id", "good", "quantity", "price"},
		},
		{
			Name:        toolAcceptProposal,
			Description: "Accept a pending proposal addressed to you. Settles the trade immediately.",
			Properties: map[string]any{
				"proposal_id": map[string]any{"type": "string", "description": "ID of the pending proposal"},
			},
			Required: []string{"proposal_id"},
		},
		{
			Name:        toolRejectProposal,
			Description: "Reject a pending proposal addressed to you.",
			Properties: map[string]any{
				"proposal_id": map[string]any{"type": "string", "description": "ID of the pending proposal"},
			},
			Required: []string{"proposal_id"},
		},
		{
			Name:        toolCounterProposal,
			Description: "Reject a pending proposal and send a modified offer back to its sender.",
			Properties: map[string]any{
				"proposal_id": map[string]any{"type": "string", "description": "ID of the proposal being countered"},
				"quantity":    map[string]any{"type": "number", "description": "Counter quantity, must be positive"},
				"price":       map[string]any{"type": "number", "description": "Counter total price in dollars, must be positive"},
				"explanation": map[string]any{"type": "string", "description": "Short pitch for the counter-offer"},
			},
			Required: []string{"proposal_id", "quantity", "price"},
		},
		{
			Name:        toolAgentStates,
			Description: "Look up the public cash and inventory of every agent in the session.",
			Properties:  map[string]any{},
		},
	}
}

type toolArgs struct {
	ToAgentID   string  `json:"to_agent_id"`
	Good        string  `json:"good"`
	ProposalID  string  `json:"proposal_id"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
	Explanation string  `json:"explanation"`
}

// dispatchTool parses raw tool arguments and routes them to the toolbox. A
// malformed call becomes a failed ActionResult so the model can retry instead
// of aborting the turn.
func dispatchTool(ctx context.Context, tools Toolbox, name string, rawArgs []byte) ActionResult {
	var args toolArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return ActionResult{Success: false, Message: fmt.Sprintf("invalid arguments for %s: %v", name, err)}
		}
	}

	switch name {
	case toolMakeProposal:
		return tools.MakeProposal(ctx, args.ToAgentID, args.Good, args.Quantity, args.Price, args.Explanation)
	case toolAcceptProposal:
		return tools.AcceptProposal(ctx, args.ProposalID)
	case toolRejectProposal:
		return tools.RejectProposal(ctx, args.ProposalID)
	case toolCounterProposal:
		return tools.CounterProposal(ctx, args.ProposalID, args.Quantity, args.Price, args.Explanation)
	case toolAgentStates:
		return tools.AgentStates(ctx)
	default:
		return ActionResult{Success: false, Message: fmt.Sprintf("unknown tool %q", name)}
	}
}

func encodeResult(res ActionResult) string {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Sprintf(`{"success":%t,"message":%q}`, res.Success, res.Message)
	}
	return string(payload)
}
