package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apirest "github.com/kasuganosora/battleplanner/api/rest"
	"github.com/kasuganosora/battleplanner/api/sse"
	apows "github.com/kasuganosora/battleplanner/api/ws"
	"github.com/kasuganosora/battleplanner/audit"
	"github.com/kasuganosora/battleplanner/cache"
	"github.com/kasuganosora/battleplanner/config"
	dbadapter "github.com/kasuganosora/battleplanner/db"
	"github.com/kasuganosora/battleplanner/game/calc"
	"github.com/kasuganosora/battleplanner/game/planner"
	"github.com/kasuganosora/battleplanner/game/script"
	mw "github.com/kasuganosora/battleplanner/middleware"
	"github.com/kasuganosora/battleplanner/model"
	"github.com/kasuganosora/battleplanner/scheduler"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Audit ----
	auditSvc := audit.New(db, logger)

	// ---- Cache / PubSub ----
	c, err := cache.NewCache(cfg.Cache)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cfg.Cache)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Damage calculator ----
	calculator, err := newCalculator(cfg.Calculator, logger)
	if err != nil {
		log.Fatalf("calculator: %v", err)
	}

	// ---- Planner ----
	mgr := planner.NewManager(planner.Config{
		Calc:              calculator,
		Cache:             c,
		PubSub:            pubsub,
		Logger:            logger,
		Generation:        cfg.Planner.Generation,
		HistoryLimit:      cfg.Planner.HistoryLimit,
		SimplifyThreshold: cfg.Planner.SimplifyThreshold,
		AutosaveTTL:       cfg.Planner.AutosaveTTL,
		MaxSessions:       cfg.Planner.MaxSessions,
		MaxNodes:          cfg.Planner.MaxNodes,
	})
	plans := planner.NewPlanService(db, logger)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	idle := cfg.Planner.SessionIdleTimeout
	sched.AddTicker("session_sweep", cfg.Planner.SweepInterval, func(ctx context.Context) {
		if n := mgr.Sweep(ctx, idle); n > 0 {
			logger.Info("idle sessions evicted", zap.Int("count", n), zap.Int("remaining", mgr.Len()))
		}
	})

	// ---- WS Router ----
	wsRouter := apows.NewRouter(logger)
	apows.RegisterPlannerHandlers(wsRouter, mgr)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok", "sessions": mgr.Len()})
	})

	// ---- REST API routes ----
	api := r.Group("/api")
	apirest.NewPlannerHandler(mgr, plans, auditSvc, cfg.Security, logger).Register(api)

	adminG := api.Group("/admin")
	if len(cfg.Security.AdminIPs) > 0 {
		adminG.Use(mw.AdminIPs(cfg.Security.AdminIPs, logger))
	}
	adminG.Use(mw.AdminKey(cfg.Server.AdminKey))
	apirest.NewAdminHandler(mgr, sched, auditSvc, idle, logger).Register(adminG)

	// ---- WebSocket ----
	wsH := apows.NewHandler(mgr, pubsub, cfg.Security, wsRouter, logger)
	r.GET("/ws/sessions/:id", mw.SessionAuth(cfg.Security), wsH.ServeWS)

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, mgr, logger)
	r.GET("/sse/sessions/:id", mw.SessionAuth(cfg.Security), sseH.ServeSSE)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}
	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	// ---- Graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	sched.Stop()
	auditSvc.Stop(ctx)
}

// newCalculator builds the damage calculator selected by cfg.Mode.
func newCalculator(cfg config.CalculatorConfig, logger *zap.Logger) (calc.Calculator, error) {
	switch cfg.Mode {
	case "builtin", "":
		dex, err := calc.LoadDex(cfg.DexPath)
		if err != nil {
			return nil, err
		}
		moves, species := dex.Len()
		logger.Info("dex loaded", zap.Int("moves", moves), zap.Int("species", species))
		return calc.NewBuiltin(dex), nil
	case "script":
		src, err := os.ReadFile(cfg.ScriptPath)
		if err != nil {
			return nil, fmt.Errorf("read bundle: %w", err)
		}
		pool, err := script.NewVMPool(string(src), cfg.VMPoolSize, cfg.Timeout, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("calculator bundle loaded", zap.String("path", cfg.ScriptPath), zap.Int("vms", pool.Size()))
		return calc.NewScript(pool, logger), nil
	default:
		return nil, fmt.Errorf("unknown calculator mode %q", cfg.Mode)
	}
}
