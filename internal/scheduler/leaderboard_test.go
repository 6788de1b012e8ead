package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"agentarena/internal/config"
	"agentarena/internal/models"
	memoryrepository "agentarena/internal/repository/memory"
)

func seedStandings(t *testing.T) (*Finalizer, *memoryrepository.Store) {
	t.Helper()
	ctx := context.Background()
	store := memoryrepository.New()

	for _, a := range []models.Agent{
		{ID: "agent-a", Name: "Alice"},
		{ID: "agent-b", Name: "Bob"},
		{ID: "agent-c", Name: "Cara"},
	} {
		agent := a
		if err := store.UpsertAgent(ctx, &agent); err != nil {
			t.Fatalf("seed agent: %v", err)
		}
	}
	if err := store.UpsertGood(ctx, &models.Good{
		ID: "good-x", Name: "Rice", Unit: "kg", ReferencePrice: decimal.NewFromInt(100),
	}); err != nil {
		t.Fatalf("seed good: %v", err)
	}

	// Wealth: a = 5000 + 10*100 = 6000, b = 6000 + 0 = 6000, c = 9000.
	if err := store.InsertCashBalances(ctx, []models.CashBalance{
		{ID: "cb-a", SessionID: "sess-1", AgentID: "agent-a", Cash: decimal.NewFromInt(5000)},
		{ID: "cb-b", SessionID: "sess-1", AgentID: "agent-b", Cash: decimal.NewFromInt(6000)},
		{ID: "cb-c", SessionID: "sess-1", AgentID: "agent-c", Cash: decimal.NewFromInt(9000)},
	}); err != nil {
		t.Fatalf("seed cash: %v", err)
	}
	if err := store.InsertInventories(ctx, []models.Inventory{
		{ID: "inv-a", SessionID: "sess-1", AgentID: "agent-a", GoodID: "good-x", Quantity: decimal.NewFromInt(10)},
		{ID: "inv-b", SessionID: "sess-1", AgentID: "agent-b", GoodID: "good-x", Quantity: decimal.Zero},
		{ID: "inv-c", SessionID: "sess-1", AgentID: "agent-c", GoodID: "good-x", Quantity: decimal.Zero},
	}); err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	// Bob completed one trade, Alice none: trade count breaks the 6000 tie.
	if err := store.InsertTradeTx(ctx, nil, &models.Trade{
		ID: "trade-1", ProposalID: "prop-1", SessionID: "sess-1",
		FromAgentID: "agent-b", ToAgentID: "agent-c", GoodID: "good-x",
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(100),
		SettledAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed trade: %v", err)
	}

	return NewFinalizer(store, zap.NewNop(), config.TradingConfig{MinTradesPerSession: 5}), store
}

func TestStandingsOrderAndTieBreak(t *testing.T) {
	fin, _ := seedStandings(t)

	entries, err := fin.Standings(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("standings: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	wantOrder := []string{"agent-c", "agent-b", "agent-a"}
	for i, want := range wantOrder {
		if entries[i].AgentID != want {
			t.Fatalf("rank %d = %s, want %s", i+1, entries[i].AgentID, want)
		}
		if entries[i].Rank != i+1 {
			t.Fatalf("entry %d rank = %d, want %d", i, entries[i].Rank, i+1)
		}
	}
	for i := 0; i < len(entries)-1; i++ {
		if entries[i].TotalWealth.LessThan(entries[i+1].TotalWealth) {
			t.Fatalf("wealth not descending at rank %d", i+1)
		}
	}
	if !entries[0].TotalWealth.Equal(decimal.NewFromInt(9000)) {
		t.Fatalf("top wealth = %s, want 9000", entries[0].TotalWealth)
	}
	if entries[1].TradesCompleted != 1 {
		t.Fatalf("agent-b trades = %d, want 1", entries[1].TradesCompleted)
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	fin, store := seedStandings(t)
	ctx := context.Background()

	first, err := fin.Finalize(ctx, "sess-1")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("got %d entries, want 3", len(first))
	}

	second, err := fin.Finalize(ctx, "sess-1")
	if err != nil {
		t.Fatalf("repeat finalize: %v", err)
	}
	if len(second) != 3 {
		t.Fatalf("repeat returned %d entries, want 3", len(second))
	}
	count, err := store.CountLeaderboardBySession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("store holds %d rows, want 3", count)
	}
}
