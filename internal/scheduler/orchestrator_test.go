package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"agentarena/internal/config"
	"agentarena/internal/models"
	memoryrepository "agentarena/internal/repository/memory"
)

func rosterOf(n int) []models.Agent {
	agents := make([]models.Agent, n)
	for i := range agents {
		agents[i] = models.Agent{ID: fmt.Sprintf("agent-%d", i)}
	}
	return agents
}

func idsOf(agents []models.Agent) []string {
	out := make([]string, len(agents))
	for i, a := range agents {
		out[i] = a.ID
	}
	return out
}

func TestRotationOrderIsPeriodic(t *testing.T) {
	agents := rosterOf(4)
	for r := 1; r <= 12; r++ {
		a := idsOf(RotationOrder(agents, r))
		b := idsOf(RotationOrder(agents, r+len(agents)))
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("round %d and %d differ at slot %d: %s vs %s", r, r+len(agents), i, a[i], b[i])
			}
		}
	}
}

func TestRotationEveryAgentLeadsOnce(t *testing.T) {
	agents := rosterOf(5)
	leads := make(map[string]int)
	for r := 1; r <= len(agents); r++ {
		order := RotationOrder(agents, r)
		if len(order) != len(agents) {
			t.Fatalf("round %d order has %d agents, want %d", r, len(order), len(agents))
		}
		leads[order[0].ID]++
	}
	for _, agent := range agents {
		if leads[agent.ID] != 1 {
			t.Fatalf("agent %s led %d times in one cycle, want 1", agent.ID, leads[agent.ID])
		}
	}
}

func TestRotationEmptyRoster(t *testing.T) {
	if got := RotationOrder(nil, 1); got != nil {
		t.Fatalf("expected nil order for empty roster, got %v", got)
	}
}

// The whole fallback path in one pass: the turn snapshot built by the
// orchestrator drives the rule engine, and its proposal must land in the
// store addressed to a real agent ID.
func TestRuleFallbackTurnReachesCounterparty(t *testing.T) {
	sched, store, _ := newTestScheduler(t)
	ctx := context.Background()

	session, err := sched.StartSession(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sched.EndSession(ctx, session.ID)

	round := &models.Round{
		ID:          "round-1",
		SessionID:   session.ID,
		RoundNumber: 1,
		StartTime:   sched.Now().UTC(),
	}
	if err := store.InsertRound(ctx, round); err != nil {
		t.Fatalf("insert round: %v", err)
	}
	agent, err := store.GetAgent(ctx, "agent-a")
	if err != nil || agent == nil {
		t.Fatalf("get agent: %v", err)
	}

	sched.mu.Lock()
	run := sched.run
	sched.mu.Unlock()
	sched.Orch.executeTurn(ctx, run, round, *agent)

	proposals, err := store.ListProposalsBySession(ctx, session.ID)
	if err != nil {
		t.Fatalf("list proposals: %v", err)
	}
	if len(proposals) != 1 {
		t.Fatalf("got %d proposals, want 1", len(proposals))
	}
	p := proposals[0]
	if p.FromAgentID != "agent-a" || p.ToAgentID != "agent-b" {
		t.Fatalf("proposal routed %s -> %s, want agent-a -> agent-b", p.FromAgentID, p.ToAgentID)
	}
	if p.GoodID != "good-x" {
		t.Fatalf("proposal good = %s, want good-x", p.GoodID)
	}
}

// roundTrackingStore records inserted round IDs and fails the roster listing.
type roundTrackingStore struct {
	*memoryrepository.Store
	lastRoundID string
}

func (s *roundTrackingStore) InsertRound(ctx context.Context, item *models.Round) error {
	s.lastRoundID = item.ID
	return s.Store.InsertRound(ctx, item)
}

func (s *roundTrackingStore) ListAgents(ctx context.Context) ([]models.Agent, error) {
	return nil, errors.New("roster unavailable")
}

func TestRoundClosedWhenAgentListFails(t *testing.T) {
	store := &roundTrackingStore{Store: memoryrepository.New()}
	orch := NewOrchestrator(store, zap.NewNop(), nil, nil, nil,
		config.TradingConfig{}, config.DecisionConfig{}, config.RosterConfig{})
	run := &sessionRun{
		sessionID: "sess-1",
		endsAt:    time.Now().Add(time.Hour),
		resumeCh:  make(chan struct{}),
	}

	orch.executeRound(context.Background(), run)

	if store.lastRoundID == "" {
		t.Fatalf("no round was inserted")
	}
	round, err := store.GetRound(context.Background(), store.lastRoundID)
	if err != nil || round == nil {
		t.Fatalf("get round: %v", err)
	}
	if round.EndTime == nil {
		t.Fatalf("round left open after roster failure")
	}
}
