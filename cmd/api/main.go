package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/codexgate/codexgate/internal/api"
	"github.com/codexgate/codexgate/internal/audit"
	"github.com/codexgate/codexgate/internal/auth"
	"github.com/codexgate/codexgate/internal/cache"
	"github.com/codexgate/codexgate/internal/config"
	"github.com/codexgate/codexgate/internal/database"
	"github.com/codexgate/codexgate/internal/events"
	"github.com/codexgate/codexgate/internal/middleware"
	"github.com/codexgate/codexgate/internal/plan"
	"github.com/codexgate/codexgate/internal/ratelimit"
	"github.com/codexgate/codexgate/internal/redemption"
	iredis "github.com/codexgate/codexgate/internal/redis"
	"github.com/codexgate/codexgate/internal/server"
	"github.com/codexgate/codexgate/internal/usage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.DB.MigrationsPath != "" {
		if err := database.RunMigrations(cfg.DB.DSN(), cfg.DB.MigrationsPath); err != nil {
			slog.Error("applying migrations", "error", err)
			os.Exit(1)
		}
	}

	// Redis. An unreachable Redis is not fatal: the limiter fails open and
	// the cache runs on its memory fallback until Redis comes back.
	redisClient := iredis.NewClient(ctx, cfg.Redis)
	defer redisClient.Close()

	// NATS (optional)
	var natsClient *events.Client
	var publisher *events.Publisher
	if cfg.NATS.Enabled {
		natsClient, err = events.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		publisher = events.NewPublisher(natsClient.JetStream())
	}

	// Hybrid cache: Redis primary, in-process memory fallback.
	memStore := cache.NewMemoryStore(cfg.Sweep.CacheInterval)
	hybridStore := cache.NewHybrid(cache.NewRedisStore(redisClient), memStore)

	// Rate limiter
	limiter := ratelimit.New(redisClient, ratelimit.NewLimits(cfg.Limits))
	limiterHandler := ratelimit.NewHandler(limiter, publisher)

	// Plans
	planRepo := plan.NewPostgresRepository(pool)
	planSvc := plan.NewService(planRepo, publisher)
	planHandler := plan.NewHandler(planSvc)

	// Redemption
	codeRepo := redemption.NewPostgresRepository(pool)
	codeSvc := redemption.NewService(codeRepo, planSvc, publisher, slog.Default())
	codeHandler := redemption.NewHandler(codeSvc)

	// Usage
	usageRepo := usage.NewPostgresRepository(pool)
	usageSvc := usage.NewService(usageRepo, planSvc, publisher, slog.Default())
	usageHandler := usage.NewHandler(usageSvc)

	// Cache admin surface
	cacheHandler := cache.NewHandler(hybridStore)

	// Auth
	jwtManager := auth.NewJWTManager(cfg.JWT.AccessSecret, cfg.JWT.AccessExpiry)

	// Plan sweeper
	planSweeper := plan.NewSweeper(planSvc, cfg.Sweep.PlanInterval)
	go planSweeper.Start(ctx)

	handlers := api.HandlerSet{
		Redeem:       codeHandler.Redeem,
		PlanStatus:   planHandler.Status,
		Limits:       limiterHandler.Limits,
		Admit:        limiterHandler.Admit,
		RecordUsage:  usageHandler.Record,
		UsageStats:   usageHandler.Stats,
		UsageHistory: usageHandler.History,
		UsageDaily:   usageHandler.Daily,

		CreateCode:      codeHandler.Create,
		CreateCodeBatch: codeHandler.CreateBatch,
		ListCodes:       codeHandler.List,
		DeleteCode:      codeHandler.Delete,
		SystemUsage:     usageHandler.SystemStats,
		CacheInspect:    cacheHandler.Inspect,
		CacheSet:        cacheHandler.Set,
		CacheRemove:     cacheHandler.Remove,

		AuthMiddleware:  auth.Middleware(jwtManager),
		AdminMiddleware: auth.RequireAdmin(),
	}

	// Audit trail (requires NATS)
	if natsClient != nil {
		auditRepo := audit.NewRepository(pool)
		auditConsumer := audit.NewConsumer(auditRepo, events.NewConsumerManager(natsClient.JetStream()))
		go func() {
			if err := auditConsumer.Start(ctx); err != nil {
				slog.Error("audit consumer stopped", "error", err)
			}
		}()
		handlers.ListAudit = audit.NewHandler(auditRepo).List
		handlers.AuditConfigured = true
	}

	// Router
	redeemThrottle := middleware.NewIPThrottle(redisClient, 10, 60)
	routerCfg := api.RouterConfig{
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		RedeemThrottle:     redeemThrottle.Middleware,
	}

	redisHealthy := func() bool {
		pingCtx, pingCancel := context.WithTimeout(context.Background(), time.Second)
		defer pingCancel()
		return redisClient.Ping(pingCtx).Err() == nil
	}

	router := api.NewRouter(pool, natsClient, redisHealthy, routerCfg, handlers)

	// Start server
	srv := server.New(cfg.Server, router)
	srv.OnShutdown(cancel)
	srv.OnShutdown(memStore.Close)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
