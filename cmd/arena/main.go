package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"agentarena/internal/config"
	cronrunner "agentarena/internal/cron"
	"agentarena/internal/db"
	"agentarena/internal/decision"
	"agentarena/internal/handler"
	"agentarena/internal/logger"
	"agentarena/internal/repository"
	gormrepository "agentarena/internal/repository/gorm"
	memoryrepository "agentarena/internal/repository/memory"
	"agentarena/internal/scheduler"
	"agentarena/internal/seed"
	"agentarena/internal/trading"
	"agentarena/internal/ws"
)

func main() {
	cfgPath := os.Getenv("ARENA_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("ARENA_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	var store repository.Repository
	var gormDB *gorm.DB
	if strings.EqualFold(cfg.DB.Driver, "memory") {
		logger.Warn("using in-memory store; state is lost on restart")
		store = memoryrepository.New()
	} else {
		dbConn, err := db.Open(cfg.DB)
		if err != nil {
			logger.Fatal("db open failed", zap.Error(err))
		}
		defer db.Close(dbConn)

		if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
			logger.Warn("failed to set timezone", zap.Error(err))
		}
		if err := db.AutoMigrate(dbConn); err != nil {
			logger.Fatal("auto-migrate failed", zap.Error(err))
		}
		store = gormrepository.New(dbConn.Gorm)
		gormDB = dbConn.Gorm
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := seed.Apply(ctx, store, logger, cfg.Economy, cfg.Roster); err != nil {
		logger.Fatal("seed failed", zap.Error(err))
	}

	hub := ws.NewHub(logger, ctx)
	tradingSvc := trading.NewService(store, logger, hub, cfg.Trading, cfg.Economy)
	registry := decision.NewRegistry(cfg.Decision, logger)
	orch := scheduler.NewOrchestrator(store, logger, hub, tradingSvc, registry, cfg.Trading, cfg.Decision, cfg.Roster)
	finalizer := scheduler.NewFinalizer(store, logger, cfg.Trading)
	sched, err := scheduler.New(ctx, store, logger, hub, tradingSvc, orch, finalizer, cfg.Trading, cfg.Cron.SessionStart)
	if err != nil {
		logger.Fatal("scheduler init failed", zap.Error(err))
	}

	if err := sched.Recover(ctx); err != nil {
		logger.Fatal("session recovery failed", zap.Error(err))
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: gormDB}
	healthHandler.Register(engine)
	sessionHandler := &handler.SessionHandler{Repo: store, Trading: tradingSvc, Scheduler: sched}
	sessionHandler.Register(engine)
	catalogHandler := &handler.CatalogHandler{Repo: store}
	catalogHandler.Register(engine)
	activityHandler := &handler.ActivityHandler{Repo: store}
	activityHandler.Register(engine)
	leaderboardHandler := &handler.LeaderboardHandler{Repo: store, Finalizer: finalizer}
	leaderboardHandler.Register(engine)
	adminHandler := &handler.AdminHandler{Scheduler: sched, APIKey: cfg.Server.AdminAPIKey}
	adminHandler.Register(engine)
	hub.Register(engine)

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		_, err = cronRunner.Add(cfg.Cron.SessionStart, func(ctx context.Context) {
			if _, err := sched.StartSession(ctx); err != nil {
				logger.Warn("scheduled session start failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register session start failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	hub.Shutdown()
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-API-Key")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
