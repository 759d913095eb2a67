package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/praxis-lab/Polya/go/decomposer/internal/agent"
	"github.com/praxis-lab/Polya/go/decomposer/internal/auth"
	"github.com/praxis-lab/Polya/go/decomposer/internal/cache"
	"github.com/praxis-lab/Polya/go/decomposer/internal/config"
	"github.com/praxis-lab/Polya/go/decomposer/internal/db"
	"github.com/praxis-lab/Polya/go/decomposer/internal/decompose"
	"github.com/praxis-lab/Polya/go/decomposer/internal/health"
	"github.com/praxis-lab/Polya/go/decomposer/internal/httpapi"
	_ "github.com/praxis-lab/Polya/go/decomposer/internal/metrics" // Import for side effects
	"github.com/praxis-lab/Polya/go/decomposer/internal/middleware"
	"github.com/praxis-lab/Polya/go/decomposer/internal/policy"
	"github.com/praxis-lab/Polya/go/decomposer/internal/registry"
	"github.com/praxis-lab/Polya/go/decomposer/internal/streaming"
	"github.com/praxis-lab/Polya/go/decomposer/internal/tracing"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting decomposer service",
		zap.String("name", cfg.Service.Name),
		zap.String("environment", cfg.Service.Environment),
		zap.String("http_addr", cfg.Service.HTTPAddr),
		zap.String("admin_addr", cfg.Service.AdminAddr),
		zap.String("grpc_addr", cfg.Service.GRPCAddr),
	)

	// ------------------------------------------------------------------
	// Bring up the health manager and admin endpoints early so probes
	// respond even while the heavier components are still connecting.
	// ------------------------------------------------------------------
	hm := health.NewManager(logger)
	if cfg.Health.CheckInterval > 0 {
		hm.SetCheckInterval(cfg.Health.CheckInterval)
	}
	adminMux := http.NewServeMux()
	health.NewHTTPHandler(hm, logger).RegisterRoutes(adminMux)
	adminMux.Handle("/metrics", promhttp.Handler())
	adminServer := &http.Server{
		Addr:              cfg.Service.AdminAddr,
		Handler:           adminMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Admin endpoints listening", zap.String("address", cfg.Service.AdminAddr))
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Admin server failed", zap.Error(err))
		}
	}()

	if err := tracing.Initialize(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
	}, logger); err != nil {
		logger.Warn("Tracing initialization failed, continuing without export", zap.Error(err))
	}

	streaming.Configure(cfg.Streaming.RingCapacity)

	// ------------------------------------------------------------------
	// Engine defaults are the values config hot reload exists for. The
	// capability reads a snapshot per invocation; the change handler
	// swaps it.
	// ------------------------------------------------------------------
	var engineOpts atomic.Pointer[decompose.Options]
	engineOpts.Store(&decompose.Options{
		MaxDepth:         cfg.Engine.MaxDepth,
		MaxSubObjectives: cfg.Engine.MaxSubObjectives,
	})
	engineDefaults := func() decompose.Options { return *engineOpts.Load() }

	// ------------------------------------------------------------------
	// Persistence store. Best effort: a missing database degrades
	// invocations to persistence_status "skipped", it never blocks them.
	// ------------------------------------------------------------------
	var dbClient *db.Client
	if cfg.Persistence.Enabled {
		dbClient, err = db.NewClient(cfg.Postgres, cfg.Persistence, logger)
		if err != nil {
			logger.Warn("Database unavailable, persistence degraded to skipped",
				zap.String("host", cfg.Postgres.Host), zap.Error(err))
			dbClient = nil
		}
	} else {
		logger.Info("Persistence disabled by configuration")
	}

	// Shared redis client for the rate limiter and idempotency replay.
	// The result cache keeps its own breaker-wrapped connection.
	var rdb *redis.Client
	{
		candidate := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := candidate.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Redis unavailable, rate limiting falls back to local buckets",
				zap.String("addr", cfg.Redis.Addr()), zap.Error(err))
			_ = candidate.Close()
		} else {
			rdb = candidate
		}
		cancel()
	}

	var resultCache *cache.ResultCache
	if cfg.Cache.Enabled {
		if rdb != nil {
			resultCache = cache.NewWithRedis(cfg.Cache.LocalSize, cfg.Cache.TTL,
				cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB, logger)
		} else {
			resultCache = cache.New(cfg.Cache.LocalSize, cfg.Cache.TTL, nil, logger)
		}
	}

	// ------------------------------------------------------------------
	// Policy gate. Fail-closed deployments refuse to start without a
	// loadable policy bundle; fail-open ones log and allow.
	// ------------------------------------------------------------------
	policyEngine, err := policy.NewEngine(cfg.Policy, logger)
	if err != nil {
		logger.Fatal("Policy engine initialization failed", zap.Error(err))
	}
	gate := policy.NewGate(policyEngine)

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	var apiKeys *auth.Service
	if dbClient != nil {
		apiKeys = auth.NewService(dbClient.DB(), logger)
	}

	// ------------------------------------------------------------------
	// Capability registry.
	// ------------------------------------------------------------------
	reg := registry.New(logger)
	decomposerOpts := []agent.DecomposerOption{
		agent.WithGate(gate),
		agent.WithPublisher(streaming.Get()),
		agent.WithStrictVerify(cfg.Engine.StrictVerify),
	}
	if dbClient != nil {
		decomposerOpts = append(decomposerOpts,
			agent.WithStore(dbClient),
			agent.WithPersistTimeout(cfg.Persistence.WriteTimeout),
		)
	}
	if resultCache != nil {
		decomposerOpts = append(decomposerOpts, agent.WithCache(resultCache))
	}
	if err := reg.Register(agent.NewDecomposer(logger, engineDefaults, decomposerOpts...)); err != nil {
		logger.Fatal("Failed to register decomposer capability", zap.Error(err))
	}

	// ------------------------------------------------------------------
	// Public HTTP API with the full middleware chain. Order matters:
	// CORS and tracing run before auth so denied requests still carry
	// trace IDs and preflights never need credentials.
	// ------------------------------------------------------------------
	apiMux := http.NewServeMux()
	httpapi.NewAPI(reg, dbClient, resultCache, logger).RegisterRoutes(apiMux)
	streamHandler := httpapi.NewStreamingHandler(streaming.Get(), logger)
	streamHandler.SetHeartbeat(cfg.Streaming.Heartbeat)
	streamHandler.RegisterRoutes(apiMux)

	var handler http.Handler = apiMux
	handler = middleware.NewValidationMiddleware(logger).Middleware(handler)
	if rdb != nil {
		handler = middleware.NewIdempotencyMiddleware(rdb, logger, 24*time.Hour).Middleware(handler)
	}
	if cfg.RateLimit.Enabled {
		handler = middleware.NewRateLimiter(rdb, logger, cfg.RateLimit.Rate, cfg.RateLimit.Burst).Middleware(handler)
	}
	if cfg.Auth.Enabled && !cfg.Auth.SkipAuth {
		handler = middleware.NewAuthMiddleware(apiKeys, jwtManager, logger).Middleware(handler)
	} else {
		logger.Warn("API authentication disabled; do not run this way in production")
	}
	handler = middleware.NewTracingMiddleware(logger).Middleware(handler)
	handler = middleware.CORS(handler)

	httpServer := &http.Server{
		Addr:              cfg.Service.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Decomposer API listening", zap.String("address", cfg.Service.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("API server failed", zap.Error(err))
		}
	}()

	// ------------------------------------------------------------------
	// gRPC surface: health protocol plus reflection, for mesh probes and
	// grpcurl. The decision API itself stays on HTTP.
	// ------------------------------------------------------------------
	grpcServer := grpc.NewServer()
	grpcHealth := grpchealth.NewServer()
	healthpb.RegisterHealthServer(grpcServer, grpcHealth)
	reflection.Register(grpcServer)
	lis, err := net.Listen("tcp", cfg.Service.GRPCAddr)
	if err != nil {
		logger.Fatal("Failed to listen on gRPC address",
			zap.String("address", cfg.Service.GRPCAddr), zap.Error(err))
	}
	go func() {
		logger.Info("gRPC health endpoint listening", zap.String("address", cfg.Service.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	// ------------------------------------------------------------------
	// Health checkers. Store and cache are non-critical: persistence is
	// best effort, so losing them degrades rather than unreadies. The
	// policy checker is critical only when the gate fails closed.
	// ------------------------------------------------------------------
	if dbClient != nil {
		if err := hm.RegisterChecker(health.NewPingChecker("persistence", false, dbClient, dbClient, logger)); err != nil {
			logger.Warn("Failed to register persistence checker", zap.Error(err))
		}
	}
	if resultCache != nil {
		if err := hm.RegisterChecker(health.NewPingChecker("result-cache", false, resultCache, resultCache, logger)); err != nil {
			logger.Warn("Failed to register cache checker", zap.Error(err))
		}
	}
	if cfg.Policy.Enabled {
		if err := hm.RegisterChecker(health.NewPolicyChecker(policyEngine.Enabled, cfg.Policy.FailClosed)); err != nil {
			logger.Warn("Failed to register policy checker", zap.Error(err))
		}
	}
	if err := hm.Start(ctx); err != nil {
		logger.Warn("Health manager failed to start background checks", zap.Error(err))
	}

	// Mirror readiness onto the gRPC health protocol for mesh probes.
	grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthMirrorDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-healthMirrorDone:
				return
			case <-ticker.C:
				status := healthpb.HealthCheckResponse_SERVING
				if !hm.IsReady(ctx) {
					status = healthpb.HealthCheckResponse_NOT_SERVING
				}
				grpcHealth.SetServingStatus("", status)
			}
		}
	}()

	// ------------------------------------------------------------------
	// Config hot reload: swap engine bounds and re-load policies without
	// a restart. Listener addresses and auth secrets need one.
	// ------------------------------------------------------------------
	cfgManager, mgrErr := config.NewManager(config.Path(), logger)
	if mgrErr != nil {
		logger.Warn("Config hot reload unavailable", zap.Error(mgrErr))
	} else {
		cfgManager.OnChange(func(next *config.Config) {
			engineOpts.Store(&decompose.Options{
				MaxDepth:         next.Engine.MaxDepth,
				MaxSubObjectives: next.Engine.MaxSubObjectives,
			})
			if next.Policy.Enabled {
				if err := policyEngine.LoadPolicies(); err != nil {
					logger.Warn("Policy reload failed, previous policies remain active", zap.Error(err))
				}
			}
			logger.Info("Applied configuration change",
				zap.Int("max_depth", next.Engine.MaxDepth),
				zap.Int("max_sub_objectives", next.Engine.MaxSubObjectives))
		})
		if err := cfgManager.Start(); err != nil {
			logger.Warn("Config watcher failed to start", zap.Error(err))
		}
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down decomposer service")

	close(healthMirrorDone)
	grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Service.ShutdownTimeout)
	defer cancel()

	grpcServer.GracefulStop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown incomplete", zap.Error(err))
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Admin server shutdown incomplete", zap.Error(err))
	}
	if cfgManager != nil {
		cfgManager.Stop()
	}
	if err := hm.Stop(); err != nil {
		logger.Error("Health manager shutdown incomplete", zap.Error(err))
	}
	if dbClient != nil {
		dbClient.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Tracing flush incomplete", zap.Error(err))
	}
}

// buildLogger maps the logging config onto a zap profile. Unknown levels
// fall back to info rather than failing startup.
func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	if lvl, err := zap.ParseAtomicLevel(cfg.Level); err == nil {
		zc.Level = lvl
	}
	return zc.Build()
}
