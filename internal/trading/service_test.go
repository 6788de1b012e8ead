package trading

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"agentarena/internal/config"
	"agentarena/internal/errs"
	"agentarena/internal/models"
	memoryrepository "agentarena/internal/repository/memory"
)

const (
	testSession = "sess-1"
	testRound   = "round-1"
	agentA      = "agent-a"
	agentB      = "agent-b"
	goodX       = "good-x"
)

func newTestService(t *testing.T) (*Service, *memoryrepository.Store) {
	t.Helper()
	ctx := context.Background()
	store := memoryrepository.New()

	for _, a := range []models.Agent{
		{ID: agentA, Name: "Alice", ModelID: "m", Provider: "rule"},
		{ID: agentB, Name: "Bob", ModelID: "m", Provider: "rule"},
	} {
		agent := a
		if err := store.UpsertAgent(ctx, &agent); err != nil {
			t.Fatalf("seed agent: %v", err)
		}
	}
	if err := store.UpsertGood(ctx, &models.Good{
		ID: goodX, Name: "Rice", Unit: "kg", ReferencePrice: decimal.NewFromInt(100),
	}); err != nil {
		t.Fatalf("seed good: %v", err)
	}
	if err := store.InsertSession(ctx, &models.Session{
		ID:        testSession,
		StartTime: time.Now().UTC(),
		EndTime:   time.Now().UTC().Add(30 * time.Minute),
		Status:    models.SessionActive,
	}); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	if err := store.InsertRound(ctx, &models.Round{
		ID: testRound, SessionID: testSession, RoundNumber: 1, StartTime: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed round: %v", err)
	}

	svc := NewService(store, zap.NewNop(), nil,
		config.TradingConfig{
			MinTradesPerSession:  5,
			BonusRate:            0.05,
			MaxProposalsPerRound: 3,
			MaxCounterDepth:      2,
		},
		config.EconomyConfig{
			InitialCash:      10000,
			InitialInventory: map[string]float64{goodX: 10},
		})
	if err := svc.InitializeSession(ctx, testSession); err != nil {
		t.Fatalf("initialize session: %v", err)
	}
	return svc, store
}

func mustPropose(t *testing.T, svc *Service, qty, price int64) *models.Proposal {
	t.Helper()
	p, err := svc.Propose(context.Background(), testSession, testRound, agentA, agentB, goodX,
		decimal.NewFromInt(qty), decimal.NewFromInt(price), "deal?")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	return p
}

func position(t *testing.T, store *memoryrepository.Store, agentID string) (decimal.Decimal, decimal.Decimal) {
	t.Helper()
	ctx := context.Background()
	cash, err := store.GetCashBalance(ctx, testSession, agentID)
	if err != nil {
		t.Fatalf("cash: %v", err)
	}
	inv, err := store.GetInventory(ctx, testSession, agentID, goodX)
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	if inv == nil {
		t.Fatalf("missing inventory row for %s", agentID)
	}
	return cash, inv.Quantity
}

func TestAcceptSettlesAtomically(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	p := mustPropose(t, svc, 5, 400)
	trade, err := svc.Accept(ctx, testSession, p.ID, agentB)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	cashA, qtyA := position(t, store, agentA)
	cashB, qtyB := position(t, store, agentB)
	if !cashA.Equal(decimal.NewFromInt(10400)) {
		t.Fatalf("seller cash = %s, want 10400", cashA)
	}
	if !qtyA.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("seller quantity = %s, want 5", qtyA)
	}
	if !cashB.Equal(decimal.NewFromInt(9600)) {
		t.Fatalf("buyer cash = %s, want 9600", cashB)
	}
	if !qtyB.Equal(decimal.RequireFromString("15.25")) {
		t.Fatalf("buyer quantity = %s, want 15.25", qtyB)
	}

	trades, err := store.ListTradesBySession(ctx, testSession)
	if err != nil {
		t.Fatalf("list trades: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(trades))
	}
	if trades[0].ID != trade.ID || !trades[0].Quantity.Equal(decimal.NewFromInt(5)) || !trades[0].Price.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("unexpected trade row %+v", trades[0])
	}

	resolved, err := store.GetProposal(ctx, p.ID)
	if err != nil || resolved == nil {
		t.Fatalf("get proposal: %v", err)
	}
	if resolved.Status != models.ProposalAccepted {
		t.Fatalf("proposal status = %s, want accepted", resolved.Status)
	}
}

func TestCounterSpawnsReversedProposal(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	p := mustPropose(t, svc, 5, 400)
	counter, err := svc.Counter(ctx, testSession, p.ID, agentB, decimal.NewFromInt(3), decimal.NewFromInt(200), "too steep")
	if err != nil {
		t.Fatalf("counter: %v", err)
	}

	original, _ := store.GetProposal(ctx, p.ID)
	if original.Status != models.ProposalCountered {
		t.Fatalf("original status = %s, want countered", original.Status)
	}
	if counter.FromAgentID != agentB || counter.ToAgentID != agentA {
		t.Fatalf("counter direction %s -> %s, want %s -> %s", counter.FromAgentID, counter.ToAgentID, agentB, agentA)
	}
	if counter.Status != models.ProposalPending || counter.CounterDepth != 1 {
		t.Fatalf("counter status=%s depth=%d, want pending depth 1", counter.Status, counter.CounterDepth)
	}
	if !counter.Quantity.Equal(decimal.NewFromInt(3)) || !counter.Price.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("counter terms %s @ %s, want 3 @ 200", counter.Quantity, counter.Price)
	}

	cashA, qtyA := position(t, store, agentA)
	if !cashA.Equal(decimal.NewFromInt(10000)) || !qtyA.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("balances moved on counter: cash=%s qty=%s", cashA, qtyA)
	}
}

func TestCounterDepthLimit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p := mustPropose(t, svc, 5, 400)
	c1, err := svc.Counter(ctx, testSession, p.ID, agentB, decimal.NewFromInt(3), decimal.NewFromInt(200), "")
	if err != nil {
		t.Fatalf("counter 1: %v", err)
	}
	c2, err := svc.Counter(ctx, testSession, c1.ID, agentA, decimal.NewFromInt(4), decimal.NewFromInt(300), "")
	if err != nil {
		t.Fatalf("counter 2: %v", err)
	}
	if _, err := svc.Counter(ctx, testSession, c2.ID, agentB, decimal.NewFromInt(3), decimal.NewFromInt(250), ""); !errs.IsConflict(err) {
		t.Fatalf("counter 3 err = %v, want conflict", err)
	}
}

func TestRejectLeavesBalancesUntouched(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	p := mustPropose(t, svc, 5, 400)
	if err := svc.Reject(ctx, testSession, p.ID, agentB); err != nil {
		t.Fatalf("reject: %v", err)
	}

	rejected, _ := store.GetProposal(ctx, p.ID)
	if rejected.Status != models.ProposalRejected {
		t.Fatalf("status = %s, want rejected", rejected.Status)
	}
	for _, agent := range []string{agentA, agentB} {
		cash, qty := position(t, store, agent)
		if !cash.Equal(decimal.NewFromInt(10000)) || !qty.Equal(decimal.NewFromInt(10)) {
			t.Fatalf("%s balances moved on reject: cash=%s qty=%s", agent, cash, qty)
		}
	}
}

func TestAcceptInsufficientGoods(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	// Offering more than the seller holds is allowed at proposal time.
	p := mustPropose(t, svc, 100, 400)
	_, err := svc.Accept(ctx, testSession, p.ID, agentB)
	if !errs.IsInsufficient(err) {
		t.Fatalf("accept err = %v, want insufficient", err)
	}

	for _, agent := range []string{agentA, agentB} {
		cash, qty := position(t, store, agent)
		if !cash.Equal(decimal.NewFromInt(10000)) || !qty.Equal(decimal.NewFromInt(10)) {
			t.Fatalf("%s balances moved on failed accept: cash=%s qty=%s", agent, cash, qty)
		}
	}
	pending, _ := store.GetProposal(ctx, p.ID)
	if pending.Status != models.ProposalPending {
		t.Fatalf("status = %s, want still pending", pending.Status)
	}
}

func TestAcceptInsufficientCash(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p := mustPropose(t, svc, 5, 99999)
	if _, err := svc.Accept(ctx, testSession, p.ID, agentB); !errs.IsInsufficient(err) {
		t.Fatalf("accept err = %v, want insufficient", err)
	}
}

func TestProposeValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name       string
		from, to   string
		qty, price int64
	}{
		{"self trade", agentA, agentA, 5, 400},
		{"zero quantity", agentA, agentB, 0, 400},
		{"zero price", agentA, agentB, 5, 0},
	}
	for _, tc := range cases {
		_, err := svc.Propose(ctx, testSession, testRound, tc.from, tc.to, goodX,
			decimal.NewFromInt(tc.qty), decimal.NewFromInt(tc.price), "")
		if !errs.IsValidation(err) {
			t.Fatalf("%s: err = %v, want validation", tc.name, err)
		}
	}
}

func TestActOnNonPendingProposal(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p := mustPropose(t, svc, 5, 400)
	if _, err := svc.Accept(ctx, testSession, p.ID, agentB); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if _, err := svc.Accept(ctx, testSession, p.ID, agentB); !errs.IsConflict(err) {
		t.Fatalf("second accept err = %v, want conflict", err)
	}
	if err := svc.Reject(ctx, testSession, p.ID, agentB); !errs.IsConflict(err) {
		t.Fatalf("reject accepted err = %v, want conflict", err)
	}
}

func TestActAsWrongParty(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p := mustPropose(t, svc, 5, 400)
	if _, err := svc.Accept(ctx, testSession, p.ID, agentA); !errs.IsConflict(err) {
		t.Fatalf("sender accepting own proposal err = %v, want conflict", err)
	}
}

func TestStateOfCountsTrades(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p := mustPropose(t, svc, 5, 400)
	if _, err := svc.Accept(ctx, testSession, p.ID, agentB); err != nil {
		t.Fatalf("accept: %v", err)
	}

	for _, agent := range []string{agentA, agentB} {
		state, err := svc.StateOf(ctx, testSession, agent)
		if err != nil {
			t.Fatalf("state of %s: %v", agent, err)
		}
		if state.TradesCompleted != 1 {
			t.Fatalf("%s trades = %d, want 1", agent, state.TradesCompleted)
		}
		if state.TradesRequired != 5 {
			t.Fatalf("%s required = %d, want 5", agent, state.TradesRequired)
		}
	}
}
