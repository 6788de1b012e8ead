package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"agentarena/internal/config"
	"agentarena/internal/decision"
	"agentarena/internal/models"
	"agentarena/internal/repository"
	"agentarena/internal/trading"
	"agentarena/internal/ws"
)

// Orchestrator runs rounds for the live session. Rounds are chained: the next
// round's timer is armed only after the current round's body fully completes,
// so a slow upstream model can never cause overlapping rounds.
type Orchestrator struct {
	Repo     repository.Repository
	Logger   *zap.Logger
	Hub      *ws.Hub
	Trading  *trading.Service
	Registry *decision.Registry
	Cfg      config.TradingConfig
	Decision config.DecisionConfig
	Roster   config.RosterConfig

	// Now is swappable for tests.
	Now func() time.Time
}

func NewOrchestrator(repo repository.Repository, logger *zap.Logger, hub *ws.Hub, svc *trading.Service, registry *decision.Registry, cfg config.TradingConfig, dec config.DecisionConfig, roster config.RosterConfig) *Orchestrator {
	return &Orchestrator{
		Repo:     repo,
		Logger:   logger,
		Hub:      hub,
		Trading:  svc,
		Registry: registry,
		Cfg:      cfg,
		Decision: dec,
		Roster:   roster,
		Now:      time.Now,
	}
}

// Run drives the round loop until the session context is cancelled. While the
// session is paused no new round starts.
func (o *Orchestrator) Run(ctx context.Context, run *sessionRun) {
	timer := time.NewTimer(o.Cfg.RoundInterval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if err := run.waitResume(ctx); err != nil {
			return
		}
		o.executeRound(ctx, run)
		timer.Reset(o.Cfg.RoundInterval)
	}
}

func (o *Orchestrator) executeRound(ctx context.Context, run *sessionRun) {
	number, err := o.Repo.LastRoundNumber(ctx, run.sessionID)
	if err != nil {
		if o.Logger != nil {
			o.Logger.Error("round number lookup failed", zap.Error(err))
		}
		return
	}
	number++

	round := &models.Round{
		ID:          uuid.NewString(),
		SessionID:   run.sessionID,
		RoundNumber: number,
		StartTime:   o.Now().UTC(),
	}
	if err := o.Repo.InsertRound(ctx, round); err != nil {
		if o.Logger != nil {
			o.Logger.Error("round insert failed", zap.Error(err))
		}
		return
	}
	// Every inserted round gets its end stamped, however the body exits.
	defer func() {
		if err := o.Repo.CloseRound(ctx, round.ID, o.Now().UTC()); err != nil && o.Logger != nil {
			o.Logger.Error("round close failed", zap.Error(err))
		}
	}()
	if o.Hub != nil {
		o.Hub.Broadcast(ws.EventRoundStart, map[string]any{
			"session_id":   run.sessionID,
			"round_id":     round.ID,
			"round_number": number,
		})
	}
	if o.Logger != nil {
		o.Logger.Info("round started",
			zap.String("session_id", run.sessionID),
			zap.Int("round", number))
	}

	agents, err := o.Repo.ListAgents(ctx)
	if err != nil {
		if o.Logger != nil {
			o.Logger.Error("agent list failed", zap.Error(err))
		}
		return
	}

	for i, agent := range RotationOrder(agents, number) {
		// Pause observed between agents skips the rest of the round.
		if run.isPaused() || ctx.Err() != nil {
			break
		}
		o.executeTurn(ctx, run, round, agent)
		if i < len(agents)-1 && o.Cfg.AgentTurnDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(o.Cfg.AgentTurnDelay):
			}
		}
	}
}

// RotationOrder returns the turn order for a round: a cyclic rotation of the
// agent list so every agent leads exactly once every len(agents) rounds.
func RotationOrder(agents []models.Agent, roundNumber int) []models.Agent {
	n := len(agents)
	if n == 0 {
		return nil
	}
	offset := (roundNumber - 1) % n
	out := make([]models.Agent, 0, n)
	out = append(out, agents[offset:]...)
	out = append(out, agents[:offset]...)
	return out
}

// executeTurn runs one agent's decision call. Failures are contained to the
// turn: they are logged and the round moves on.
func (o *Orchestrator) executeTurn(ctx context.Context, run *sessionRun, round *models.Round, agent models.Agent) {
	turn, err := o.buildTurn(ctx, run, round, agent)
	if err != nil {
		o.logTurnError(ctx, run.sessionID, round.ID, agent.ID, err)
		return
	}

	toolbox := &trading.TurnToolbox{
		Service:   o.Trading,
		SessionID: run.sessionID,
		RoundID:   round.ID,
		AgentID:   agent.ID,
	}
	engine := o.Registry.EngineFor(o.bindingFor(agent))

	turnCtx := ctx
	if o.Decision.Timeout > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(ctx, o.Decision.Timeout)
		defer cancel()
	}
	if err := engine.ExecuteTurn(turnCtx, *turn, toolbox); err != nil {
		o.logTurnError(ctx, run.sessionID, round.ID, agent.ID, err)
	}
}

func (o *Orchestrator) bindingFor(agent models.Agent) config.ModelConfig {
	for _, m := range o.Roster.Models {
		if m.ID == agent.ModelID {
			return m
		}
	}
	return config.ModelConfig{ID: agent.ModelID, Provider: agent.Provider}
}

func (o *Orchestrator) buildTurn(ctx context.Context, run *sessionRun, round *models.Round, agent models.Agent) (*decision.TurnContext, error) {
	state, err := o.Trading.StateOf(ctx, run.sessionID, agent.ID)
	if err != nil {
		return nil, err
	}
	goods, err := o.Repo.ListGoods(ctx)
	if err != nil {
		return nil, err
	}
	goodByID := make(map[string]models.Good, len(goods))
	for _, g := range goods {
		goodByID[g.ID] = g
	}

	inventory := make([]decision.InventoryLine, 0, len(state.Inventory))
	for _, row := range state.Inventory {
		good, ok := goodByID[row.GoodID]
		if !ok {
			continue
		}
		inventory = append(inventory, decision.InventoryLine{
			GoodName:       good.Name,
			Unit:           good.Unit,
			Quantity:       row.Quantity,
			ReferencePrice: good.ReferencePrice,
		})
	}

	pending, err := o.Trading.PendingProposalsFor(ctx, agent.ID, round.ID)
	if err != nil {
		return nil, err
	}
	proposals := make([]decision.PendingProposal, 0, len(pending))
	for _, p := range pending {
		fromName := p.FromAgentID
		if from, err := o.Repo.GetAgent(ctx, p.FromAgentID); err == nil && from != nil {
			fromName = from.Name
		}
		goodName := p.GoodID
		if good, ok := goodByID[p.GoodID]; ok {
			goodName = good.Name
		}
		proposals = append(proposals, decision.PendingProposal{
			ID:            p.ID,
			FromAgentID:   p.FromAgentID,
			FromAgentName: fromName,
			GoodName:      goodName,
			Quantity:      p.Quantity,
			Price:         p.Price,
			Explanation:   p.Explanation,
			CounterDepth:  p.CounterDepth,
		})
	}

	agents, err := o.Repo.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	others := make([]decision.AgentRef, 0, len(agents)-1)
	for _, a := range agents {
		if a.ID != agent.ID {
			others = append(others, decision.AgentRef{ID: a.ID, Name: a.Name})
		}
	}

	return &decision.TurnContext{
		SessionID:        run.sessionID,
		RoundID:          round.ID,
		RoundNumber:      round.RoundNumber,
		AgentID:          agent.ID,
		AgentName:        agent.Name,
		Cash:             state.Cash,
		Inventory:        inventory,
		TradesCompleted:  int(state.TradesCompleted),
		TradesRequired:   state.TradesRequired,
		PendingProposals: proposals,
		TimeRemaining:    run.remainingIn(o.Now().UTC()),
		OtherAgents:      others,
	}, nil
}

func (o *Orchestrator) logTurnError(ctx context.Context, sessionID, roundID, agentID string, turnErr error) {
	if o.Logger != nil {
		o.Logger.Warn("agent turn failed",
			zap.String("session_id", sessionID),
			zap.String("agent_id", agentID),
			zap.Error(turnErr))
	}
	content, err := json.Marshal(map[string]any{"error": turnErr.Error()})
	if err != nil {
		return
	}
	entry := &models.ActivityLog{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		RoundID:   &roundID,
		AgentID:   &agentID,
		LogType:   models.LogError,
		Content:   datatypes.JSON(content),
		CreatedAt: o.Now().UTC(),
	}
	if err := o.Repo.InsertActivityLog(ctx, entry); err != nil && o.Logger != nil {
		o.Logger.Warn("activity log write failed", zap.Error(err))
	}
}
