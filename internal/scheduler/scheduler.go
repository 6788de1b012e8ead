// Package scheduler owns the session lifecycle: creation, pause/resume,
// timers, crash recovery and leaderboard finalization. It is the only
// component allowed to start or stop the round loop.
package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"agentarena/internal/config"
	"agentarena/internal/errs"
	"agentarena/internal/models"
	"agentarena/internal/repository"
	"agentarena/internal/trading"
	"agentarena/internal/ws"
)

type Scheduler struct {
	Repo      repository.Repository
	Logger    *zap.Logger
	Hub       *ws.Hub
	Trading   *trading.Service
	Orch      *Orchestrator
	Finalizer *Finalizer
	Cfg       config.TradingConfig

	// Now is swappable for tests.
	Now func() time.Time

	baseCtx  context.Context
	schedule cron.Schedule

	mu  sync.Mutex
	run *sessionRun
}

// sessionRun is the in-memory control block of the one live session. All of
// its durable fields are mirrored in the store so Recover can rebuild it.
type sessionRun struct {
	mu        sync.Mutex
	sessionID string
	endsAt    time.Time
	paused    bool
	remaining time.Duration
	resumeCh  chan struct{}
	cancel    context.CancelFunc
	endTimer  *time.Timer
	finalized bool
}

func (r *sessionRun) isPaused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

func (r *sessionRun) endsAtNow() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endsAt
}

// remainingIn reports the active time left at the given instant, honoring a
// paused clock.
func (r *sessionRun) remainingIn(now time.Time) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paused {
		return r.remaining
	}
	return r.endsAt.Sub(now)
}

// waitResume blocks while the session is paused.
func (r *sessionRun) waitResume(ctx context.Context) error {
	for {
		r.mu.Lock()
		if !r.paused {
			r.mu.Unlock()
			return nil
		}
		ch := r.resumeCh
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

func New(baseCtx context.Context, repo repository.Repository, logger *zap.Logger, hub *ws.Hub, svc *trading.Service, orch *Orchestrator, fin *Finalizer, cfg config.TradingConfig, cronSpec string) (*Scheduler, error) {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	var schedule cron.Schedule
	if cronSpec != "" {
		parsed, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow).Parse(cronSpec)
		if err != nil {
			return nil, err
		}
		schedule = parsed
	}
	return &Scheduler{
		Repo:      repo,
		Logger:    logger,
		Hub:       hub,
		Trading:   svc,
		Orch:      orch,
		Finalizer: fin,
		Cfg:       cfg,
		Now:       time.Now,
		baseCtx:   baseCtx,
		schedule:  schedule,
	}, nil
}

// NextSessionTime reports when the calendar trigger will next fire, or nil if
// the trigger is disabled.
func (s *Scheduler) NextSessionTime() *time.Time {
	if s == nil || s.schedule == nil {
		return nil
	}
	next := s.schedule.Next(s.Now())
	return &next
}

// CurrentSessionID reports the live session, empty when idle.
func (s *Scheduler) CurrentSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return ""
	}
	return s.run.sessionID
}

// StartSession creates and starts a new session. Fails with a conflict if one
// is already active or paused.
func (s *Scheduler) StartSession(ctx context.Context) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != nil && !s.run.finalized {
		return nil, errs.Conflictf("a session is already running")
	}
	for _, status := range []string{models.SessionActive, models.SessionPaused} {
		existing, err := s.Repo.FindSessionByStatus(ctx, status)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, errs.Conflictf("session %s is %s", existing.ID, existing.Status)
		}
	}

	now := s.Now().UTC()
	session := &models.Session{
		ID:        uuid.NewString(),
		StartTime: now,
		EndTime:   now.Add(s.Cfg.SessionDuration),
		Status:    models.SessionActive,
	}
	if err := s.Repo.InsertSession(ctx, session); err != nil {
		return nil, err
	}
	if err := s.Trading.InitializeSession(ctx, session.ID); err != nil {
		return nil, err
	}

	s.launchLocked(session.ID, session.EndTime, false, 0)
	s.logSystem(ctx, session.ID, "session started", map[string]any{"end_time": session.EndTime})
	s.broadcastStatus(session.ID, models.SessionActive)
	if s.Logger != nil {
		s.Logger.Info("session started",
			zap.String("session_id", session.ID),
			zap.Time("ends_at", session.EndTime))
	}
	return session, nil
}

// launchLocked builds the run control block and starts the countdown and the
// round loop. Caller holds s.mu.
func (s *Scheduler) launchLocked(sessionID string, endsAt time.Time, paused bool, remaining time.Duration) {
	runCtx, cancel := context.WithCancel(s.baseCtx)
	run := &sessionRun{
		sessionID: sessionID,
		endsAt:    endsAt,
		paused:    paused,
		remaining: remaining,
		resumeCh:  make(chan struct{}),
		cancel:    cancel,
	}
	if !paused {
		run.endTimer = time.AfterFunc(endsAt.Sub(s.Now().UTC()), func() {
			if err := s.EndSession(s.baseCtx, sessionID); err != nil && s.Logger != nil {
				s.Logger.Error("session end failed", zap.String("session_id", sessionID), zap.Error(err))
			}
		})
	}
	s.run = run

	go s.countdownLoop(runCtx, run)
	go s.Orch.Run(runCtx, run)
}

// EndSession stops the round loop and timers, marks the session completed and
// finalizes the leaderboard. Safe to call more than once; only the first call
// finalizes.
func (s *Scheduler) EndSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	run := s.run
	if run == nil || run.sessionID != sessionID {
		s.mu.Unlock()
		// Already torn down. Completed sessions stay completed.
		session, err := s.Repo.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return errs.NotFoundf("session %s not found", sessionID)
		}
		if session.Status == models.SessionCompleted {
			return nil
		}
		return errs.Conflictf("session %s is not running", sessionID)
	}
	if run.finalized {
		s.mu.Unlock()
		return nil
	}
	run.finalized = true
	s.run = nil
	s.mu.Unlock()

	run.cancel()
	run.mu.Lock()
	if run.endTimer != nil {
		run.endTimer.Stop()
	}
	run.mu.Unlock()

	if err := s.Repo.UpdateSessionStatus(ctx, sessionID, models.SessionCompleted); err != nil {
		return err
	}
	entries, err := s.Finalizer.Finalize(ctx, sessionID)
	if err != nil {
		return err
	}

	s.logSystem(ctx, sessionID, "session completed", map[string]any{"agents_ranked": len(entries)})
	s.broadcastStatus(sessionID, models.SessionCompleted)
	if s.Logger != nil {
		s.Logger.Info("session completed",
			zap.String("session_id", sessionID),
			zap.Int("agents_ranked", len(entries)))
	}
	return nil
}

// PauseSession freezes the countdown and stops new agent turns from starting.
// A turn already in flight is not interrupted.
func (s *Scheduler) PauseSession(ctx context.Context) error {
	s.mu.Lock()
	run := s.run
	s.mu.Unlock()
	if run == nil {
		return errs.Conflictf("no session is active")
	}

	run.mu.Lock()
	if run.paused {
		run.mu.Unlock()
		return errs.Conflictf("session %s is already paused", run.sessionID)
	}
	remaining := run.endsAt.Sub(s.Now().UTC())
	if remaining < 0 {
		remaining = 0
	}
	run.paused = true
	run.remaining = remaining
	run.resumeCh = make(chan struct{})
	if run.endTimer != nil {
		run.endTimer.Stop()
		run.endTimer = nil
	}
	sessionID := run.sessionID
	run.mu.Unlock()

	if err := s.Repo.MarkSessionPaused(ctx, sessionID, remaining.Milliseconds()); err != nil {
		return err
	}
	s.logSystem(ctx, sessionID, "session paused", map[string]any{"remaining_ms": remaining.Milliseconds()})
	if s.Hub != nil {
		s.Hub.Broadcast(ws.EventSessionPaused, map[string]any{
			"session_id":   sessionID,
			"remaining_ms": remaining.Milliseconds(),
		})
	}
	if s.Logger != nil {
		s.Logger.Info("session paused",
			zap.String("session_id", sessionID),
			zap.Duration("remaining", remaining))
	}
	return nil
}

// ResumeSession restarts the clock with exactly the remaining duration that
// was captured at pause time.
func (s *Scheduler) ResumeSession(ctx context.Context) error {
	s.mu.Lock()
	run := s.run
	s.mu.Unlock()
	if run == nil {
		return errs.Conflictf("no session is active")
	}

	run.mu.Lock()
	if !run.paused {
		run.mu.Unlock()
		return errs.Conflictf("session %s is not paused", run.sessionID)
	}
	if run.remaining <= 0 {
		run.mu.Unlock()
		return errs.Conflictf("session %s has no remaining duration recorded", run.sessionID)
	}
	now := s.Now().UTC()
	endsAt := now.Add(run.remaining)
	sessionID := run.sessionID
	run.endsAt = endsAt
	run.paused = false
	run.remaining = 0
	close(run.resumeCh)
	run.endTimer = time.AfterFunc(endsAt.Sub(now), func() {
		if err := s.EndSession(s.baseCtx, sessionID); err != nil && s.Logger != nil {
			s.Logger.Error("session end failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	})
	run.mu.Unlock()

	if err := s.Repo.MarkSessionResumed(ctx, sessionID, endsAt); err != nil {
		return err
	}
	s.logSystem(ctx, sessionID, "session resumed", map[string]any{"end_time": endsAt})
	if s.Hub != nil {
		s.Hub.Broadcast(ws.EventSessionResumed, map[string]any{
			"session_id": sessionID,
			"end_time":   endsAt,
		})
	}
	if s.Logger != nil {
		s.Logger.Info("session resumed",
			zap.String("session_id", sessionID),
			zap.Time("ends_at", endsAt))
	}
	return nil
}

// Recover reconstructs the run control block from durable session state after
// a restart. An active session whose end time already passed is closed out
// without replay.
func (s *Scheduler) Recover(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, err := s.Repo.FindSessionByStatus(ctx, models.SessionActive)
	if err != nil {
		return err
	}
	if active != nil {
		now := s.Now().UTC()
		if !active.EndTime.After(now) {
			// Accepted lossy recovery: the session is closed out without
			// replaying finalization side effects that were lost.
			if s.Logger != nil {
				s.Logger.Warn("recovered session already expired, closing without replay",
					zap.String("session_id", active.ID))
			}
			return s.Repo.UpdateSessionStatus(ctx, active.ID, models.SessionCompleted)
		}
		s.launchLocked(active.ID, active.EndTime, false, 0)
		if s.Logger != nil {
			s.Logger.Info("recovered active session",
				zap.String("session_id", active.ID),
				zap.Time("ends_at", active.EndTime))
		}
		return nil
	}

	paused, err := s.Repo.FindSessionByStatus(ctx, models.SessionPaused)
	if err != nil {
		return err
	}
	if paused != nil {
		remaining := time.Duration(0)
		if paused.PausedRemainingMS != nil {
			remaining = time.Duration(*paused.PausedRemainingMS) * time.Millisecond
		}
		s.launchLocked(paused.ID, s.Now().UTC().Add(remaining), true, remaining)
		if s.Logger != nil {
			s.Logger.Info("recovered paused session",
				zap.String("session_id", paused.ID),
				zap.Duration("remaining", remaining))
		}
	}
	return nil
}

// countdownLoop broadcasts one tick per second while the session clock runs.
func (s *Scheduler) countdownLoop(ctx context.Context, run *sessionRun) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if run.isPaused() {
			continue
		}
		remaining := run.remainingIn(s.Now().UTC())
		if remaining < 0 {
			return
		}
		if s.Hub != nil {
			s.Hub.Broadcast(ws.EventCountdownTick, map[string]any{
				"session_id":        run.sessionID,
				"seconds_remaining": int64(remaining.Round(time.Second).Seconds()),
			})
		}
	}
}

func (s *Scheduler) broadcastStatus(sessionID, status string) {
	if s.Hub != nil {
		s.Hub.Broadcast(ws.EventSessionStatus, map[string]any{
			"session_id": sessionID,
			"status":     status,
		})
	}
}

func (s *Scheduler) logSystem(ctx context.Context, sessionID, event string, fields map[string]any) {
	payload := map[string]any{"event": event}
	for k, v := range fields {
		payload[k] = v
	}
	content, err := json.Marshal(payload)
	if err != nil {
		return
	}
	entry := &models.ActivityLog{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		LogType:   models.LogSystemEvent,
		Content:   datatypes.JSON(content),
		CreatedAt: s.Now().UTC(),
	}
	if err := s.Repo.InsertActivityLog(ctx, entry); err != nil && s.Logger != nil {
		s.Logger.Warn("activity log write failed", zap.Error(err))
	}
}
