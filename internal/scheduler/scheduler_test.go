package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"agentarena/internal/config"
	"agentarena/internal/decision"
	"agentarena/internal/errs"
	"agentarena/internal/models"
	memoryrepository "agentarena/internal/repository/memory"
	"agentarena/internal/trading"
)

// testClock is an adjustable wall clock injected into the scheduler.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestScheduler(t *testing.T) (*Scheduler, *memoryrepository.Store, *testClock) {
	t.Helper()
	ctx := context.Background()
	store := memoryrepository.New()

	for _, a := range []models.Agent{
		{ID: "agent-a", Name: "Alice", ModelID: "rule-baseline", Provider: "rule"},
		{ID: "agent-b", Name: "Bob", ModelID: "rule-baseline", Provider: "rule"},
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

	tradingCfg := config.TradingConfig{
		SessionDuration:      30 * time.Minute,
		RoundInterval:        time.Hour, // rounds must not fire during tests
		MinTradesPerSession:  5,
		BonusRate:            0.05,
		MaxProposalsPerRound: 3,
		MaxCounterDepth:      2,
	}
	economy := config.EconomyConfig{
		InitialCash:      10000,
		InitialInventory: map[string]float64{"good-x": 10},
	}

	logger := zap.NewNop()
	svc := trading.NewService(store, logger, nil, tradingCfg, economy)
	registry := decision.NewRegistry(config.DecisionConfig{MaxIterations: 10}, logger)
	orch := NewOrchestrator(store, logger, nil, svc, registry, tradingCfg, config.DecisionConfig{}, config.RosterConfig{})
	fin := NewFinalizer(store, logger, tradingCfg)

	sched, err := New(context.Background(), store, logger, nil, svc, orch, fin, tradingCfg, "0 20 18 * * *")
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	clock := &testClock{now: time.Date(2026, 8, 30, 18, 20, 0, 0, time.UTC)}
	sched.Now = clock.Now
	orch.Now = clock.Now
	return sched, store, clock
}

func TestStartSessionConflictsWhileRunning(t *testing.T) {
	sched, _, _ := newTestScheduler(t)
	ctx := context.Background()

	session, err := sched.StartSession(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sched.EndSession(ctx, session.ID)

	if _, err := sched.StartSession(ctx); !errs.IsConflict(err) {
		t.Fatalf("second start err = %v, want conflict", err)
	}
}

func TestPauseResumePreservesRemainingDuration(t *testing.T) {
	sched, store, clock := newTestScheduler(t)
	ctx := context.Background()

	session, err := sched.StartSession(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sched.EndSession(ctx, session.ID)

	// 20 minutes in, 10 minutes (600s) remain.
	clock.Advance(20 * time.Minute)
	if err := sched.PauseSession(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}

	paused, err := store.GetSession(ctx, session.ID)
	if err != nil || paused == nil {
		t.Fatalf("get session: %v", err)
	}
	if paused.Status != models.SessionPaused {
		t.Fatalf("status = %s, want paused", paused.Status)
	}
	if paused.PausedRemainingMS == nil || *paused.PausedRemainingMS != (10*time.Minute).Milliseconds() {
		t.Fatalf("remaining = %v, want 600000ms", paused.PausedRemainingMS)
	}

	// Wall-clock time spent paused must not count against the session.
	clock.Advance(3 * time.Hour)
	if err := sched.ResumeSession(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}

	resumed, err := store.GetSession(ctx, session.ID)
	if err != nil || resumed == nil {
		t.Fatalf("get session: %v", err)
	}
	if resumed.Status != models.SessionActive {
		t.Fatalf("status = %s, want active", resumed.Status)
	}
	wantEnd := clock.Now().UTC().Add(10 * time.Minute)
	if !resumed.EndTime.Equal(wantEnd) {
		t.Fatalf("end time = %s, want %s", resumed.EndTime, wantEnd)
	}
	if resumed.PausedRemainingMS != nil {
		t.Fatalf("remaining should be cleared after resume")
	}

	// No round ran while paused.
	last, err := store.LastRoundNumber(ctx, session.ID)
	if err != nil {
		t.Fatalf("last round: %v", err)
	}
	if last != 0 {
		t.Fatalf("rounds ran during pause: %d", last)
	}
}

func TestPauseResumeStateGuards(t *testing.T) {
	sched, _, _ := newTestScheduler(t)
	ctx := context.Background()

	if err := sched.PauseSession(ctx); !errs.IsConflict(err) {
		t.Fatalf("pause with no session err = %v, want conflict", err)
	}

	session, err := sched.StartSession(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sched.EndSession(ctx, session.ID)

	if err := sched.ResumeSession(ctx); !errs.IsConflict(err) {
		t.Fatalf("resume while active err = %v, want conflict", err)
	}
	if err := sched.PauseSession(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := sched.PauseSession(ctx); !errs.IsConflict(err) {
		t.Fatalf("double pause err = %v, want conflict", err)
	}
}

func TestEndSessionFinalizesOnce(t *testing.T) {
	sched, store, _ := newTestScheduler(t)
	ctx := context.Background()

	session, err := sched.StartSession(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sched.EndSession(ctx, session.ID); err != nil {
		t.Fatalf("end: %v", err)
	}

	completed, _ := store.GetSession(ctx, session.ID)
	if completed.Status != models.SessionCompleted {
		t.Fatalf("status = %s, want completed", completed.Status)
	}
	entries, err := store.ListLeaderboardBySession(ctx, session.ID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d leaderboard rows, want 2", len(entries))
	}

	// Second end is a no-op, not a second finalization.
	if err := sched.EndSession(ctx, session.ID); err != nil {
		t.Fatalf("repeat end: %v", err)
	}
	entries, _ = store.ListLeaderboardBySession(ctx, session.ID)
	if len(entries) != 2 {
		t.Fatalf("finalization ran twice: %d rows", len(entries))
	}
}

func TestRecoverExpiredActiveSession(t *testing.T) {
	sched, store, clock := newTestScheduler(t)
	ctx := context.Background()

	stale := &models.Session{
		ID:        "sess-stale",
		StartTime: clock.Now().Add(-2 * time.Hour),
		EndTime:   clock.Now().Add(-90 * time.Minute),
		Status:    models.SessionActive,
	}
	if err := store.InsertSession(ctx, stale); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	if err := sched.Recover(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}

	recovered, _ := store.GetSession(ctx, stale.ID)
	if recovered.Status != models.SessionCompleted {
		t.Fatalf("status = %s, want completed", recovered.Status)
	}
	if sched.CurrentSessionID() != "" {
		t.Fatalf("expired session should not be relaunched")
	}
}

func TestRecoverPausedSessionStaysPaused(t *testing.T) {
	sched, store, clock := newTestScheduler(t)
	ctx := context.Background()

	remaining := (10 * time.Minute).Milliseconds()
	paused := &models.Session{
		ID:                "sess-paused",
		StartTime:         clock.Now().Add(-time.Hour),
		EndTime:           clock.Now().Add(-30 * time.Minute),
		Status:            models.SessionPaused,
		PausedRemainingMS: &remaining,
	}
	if err := store.InsertSession(ctx, paused); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	if err := sched.Recover(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if sched.CurrentSessionID() != paused.ID {
		t.Fatalf("paused session not recovered")
	}

	if err := sched.ResumeSession(ctx); err != nil {
		t.Fatalf("resume recovered session: %v", err)
	}
	resumed, _ := store.GetSession(ctx, paused.ID)
	wantEnd := clock.Now().UTC().Add(10 * time.Minute)
	if !resumed.EndTime.Equal(wantEnd) {
		t.Fatalf("end time = %s, want %s", resumed.EndTime, wantEnd)
	}
	sched.EndSession(ctx, paused.ID)
}

func TestNextSessionTime(t *testing.T) {
	sched, _, _ := newTestScheduler(t)

	next := sched.NextSessionTime()
	if next == nil {
		t.Fatalf("expected a next session time")
	}
	// Clock starts exactly at the 18:20 trigger, so the next fire is a day out.
	want := time.Date(2026, 8, 31, 18, 20, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %s, want %s", next, want)
	}
}
