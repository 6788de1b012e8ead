package trading

import (
	"context"
	"testing"
)

func TestToolboxProposalCapPerRound(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	box := &TurnToolbox{
		Service:   svc,
		SessionID: testSession,
		RoundID:   testRound,
		AgentID:   agentA,
	}
	for i := 0; i < 3; i++ {
		res := box.MakeProposal(ctx, agentB, "Rice", 1, 50, "")
		if !res.Success {
			t.Fatalf("proposal %d failed: %s", i+1, res.Message)
		}
	}
	res := box.MakeProposal(ctx, agentB, "Rice", 1, 50, "")
	if res.Success {
		t.Fatalf("fourth proposal should hit the round cap")
	}
}

func TestToolboxUnknownGood(t *testing.T) {
	svc, _ := newTestService(t)
	box := &TurnToolbox{Service: svc, SessionID: testSession, RoundID: testRound, AgentID: agentA}

	res := box.MakeProposal(context.Background(), agentB, "Uranium", 1, 50, "")
	if res.Success {
		t.Fatalf("proposal for unknown good should fail")
	}
}

func TestToolboxAgentStates(t *testing.T) {
	svc, _ := newTestService(t)
	box := &TurnToolbox{Service: svc, SessionID: testSession, RoundID: testRound, AgentID: agentA}

	res := box.AgentStates(context.Background())
	if !res.Success {
		t.Fatalf("agent states failed: %s", res.Message)
	}
	agents, ok := res.Data["agents"].([]map[string]any)
	if !ok || len(agents) != 2 {
		t.Fatalf("expected 2 agent states, got %#v", res.Data["agents"])
	}
}
