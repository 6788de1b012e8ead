// Package decision runs one trading turn for an agent against its language
// model. Engines see the market only through the Toolbox; every state change
// goes through the trading service behind it.
package decision

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"agentarena/internal/config"
)

type ActionResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Toolbox is the set of actions an agent may take during its turn. Goods are
// addressed by display name because that is what models reliably echo back.
type Toolbox interface {
	MakeProposal(ctx context.Context, toAgentID, goodName string, quantity, price float64, explanation string) ActionResult
	AcceptProposal(ctx context.Context, proposalID string) ActionResult
	RejectProposal(ctx context.Context, proposalID string) ActionResult
	CounterProposal(ctx context.Context, proposalID string, quantity, price float64, explanation string) ActionResult
	AgentStates(ctx context.Context) ActionResult
}

type InventoryLine struct {
	GoodName       string
	Unit           string
	Quantity       decimal.Decimal
	ReferencePrice decimal.Decimal
}

type PendingProposal struct {
	ID            string
	FromAgentID   string
	FromAgentName string
	GoodName      string
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	Explanation   string
	CounterDepth  int
}

// AgentRef names a counterparty. Actions address agents by ID; the display
// name exists for prompt rendering only.
type AgentRef struct {
	ID   string
	Name string
}

// TurnContext is the snapshot an agent reasons over at the start of its turn.
type TurnContext struct {
	SessionID        string
	RoundID          string
	RoundNumber      int
	AgentID          string
	AgentName        string
	Cash             decimal.Decimal
	Inventory        []InventoryLine
	TradesCompleted  int
	TradesRequired   int
	PendingProposals []PendingProposal
	TimeRemaining    time.Duration
	OtherAgents      []AgentRef
}

// Engine drives one agent turn to completion. Implementations must return
// once the model stops requesting tools or the iteration cap is reached.
type Engine interface {
	ExecuteTurn(ctx context.Context, turn TurnContext, tools Toolbox) error
}

// callSpacer enforces a minimum gap between model calls so providers with
// tight per-minute quotas are not tripped by rapid tool loops.
type callSpacer struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func newCallSpacer(interval time.Duration) *callSpacer {
	return &callSpacer{interval: interval}
}

func (s *callSpacer) Wait(ctx context.Context) error {
	if s == nil || s.interval <= 0 {
		return nil
	}
	s.mu.Lock()
	wait := time.Until(s.last.Add(s.interval))
	s.last = time.Now()
	if wait > 0 {
		s.last = s.last.Add(wait)
	}
	s.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func maxIterations(cfg config.DecisionConfig) int {
	if cfg.MaxIterations > 0 {
		return cfg.MaxIterations
	}
	return 10
}

func maxTokens(cfg config.DecisionConfig) int64 {
	if cfg.MaxTokens > 0 {
		return int64(cfg.MaxTokens)
	}
	return 1024
}
