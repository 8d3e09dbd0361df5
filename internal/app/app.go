package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/ordermesh/hub/internal/audit"
	"github.com/ordermesh/hub/internal/config"
	"github.com/ordermesh/hub/internal/crypto"
	"github.com/ordermesh/hub/internal/httpserver"
	"github.com/ordermesh/hub/internal/platform"
	"github.com/ordermesh/hub/internal/store"
	"github.com/ordermesh/hub/internal/telemetry"
	"github.com/ordermesh/hub/pkg/approval"
	"github.com/ordermesh/hub/pkg/gateway"
	"github.com/ordermesh/hub/pkg/jobengine"
	"github.com/ordermesh/hub/pkg/notify"
	"github.com/ordermesh/hub/pkg/reconcile"
	"github.com/ordermesh/hub/pkg/scheduler"
	"github.com/ordermesh/hub/pkg/webhook"
)

// Run is the main application entry point. It reads config, runs pending
// migrations, and starts the appropriate mode (api, worker, or migrate).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting ordermesh", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	if cfg.Mode == "migrate" {
		return nil
	}

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	deps, err := build(db, rdb, cfg, logger)
	if err != nil {
		return fmt.Errorf("building dependencies: %w", err)
	}
	deps.audit.Start(ctx)
	defer deps.audit.Close()

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg, deps)
	case "worker":
		return runWorker(ctx, logger, deps)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// dependencies bundles every component both run modes share, so construction
// happens once regardless of which mode ends up using which piece.
type dependencies struct {
	store     *store.Store
	audit     *audit.Writer
	gateway   *gateway.Gateway
	jobs      *jobengine.Engine
	reconcile *reconcile.Engine
	approval  *approval.Engine
	scheduler *scheduler.Engine
	webhook   *webhook.Handler
}

func build(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config, logger *slog.Logger) (*dependencies, error) {
	s := store.New(db)

	sealer, err := crypto.NewSealer(cfg.SealKey)
	if err != nil {
		return nil, fmt.Errorf("building credential sealer: %w", err)
	}

	auditWriter := audit.NewWriter(s, logger)

	notifier := notify.NewNotifier(cfg.SlackBotToken, cfg.SlackChannel, logger)
	if notifier.IsEnabled() {
		logger.Info("slack notifications enabled", "channel", cfg.SlackChannel)
	} else {
		logger.Info("slack notifications disabled (SLACK_BOT_TOKEN not set)")
	}

	approvalEngine := approval.New(s, auditWriter, notifier, logger)

	gw := gateway.New(s, sealer, auditWriter, approvalEngine, logger)

	jobCfg, err := jobengine.NewConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("building job engine config: %w", err)
	}
	workerID := fmt.Sprintf("%s:%d", hostname(), os.Getpid())
	jobs := jobengine.New(s, auditWriter, logger, jobCfg, workerID)

	reconcileEngine := reconcile.New(s, gw, auditWriter, logger)
	reconcile.RegisterDefaultListers(reconcileEngine)

	jobengine.RegisterDefaultHandlers(jobs, s, gw, reconcileEngine, approvalEngine)

	schedulerCfg, err := scheduler.NewConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("building scheduler config: %w", err)
	}
	schedulerEngine := scheduler.New(s, reconcileEngine, approvalEngine, rdb, logger, schedulerCfg)

	webhookHandler := webhook.NewHandler(s, sealer, auditWriter, jobs, rdb, logger)

	return &dependencies{
		store:     s,
		audit:     auditWriter,
		gateway:   gw,
		jobs:      jobs,
		reconcile: reconcileEngine,
		approval:  approvalEngine,
		scheduler: schedulerEngine,
		webhook:   webhookHandler,
	}, nil
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry, deps *dependencies) error {
	srv := httpserver.NewServer(httpserver.ServerConfig{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}, logger, db, rdb, metricsReg)

	// Webhook intake: public, unauthenticated by tenant header (the store id
	// in the path resolves the tenant), platform-authenticated by signature.
	srv.Router.Mount("/webhooks", deps.webhook.Routes())

	// Per-tenant SSE change feed, keyed by a path tenant id rather than the
	// X-Tenant-ID header so long-lived streaming clients need not fight the
	// tenant-scoped API router's per-request middleware stack.
	schedulerHandler := scheduler.NewControlHandler(deps.store, deps.scheduler, logger)
	srv.Router.Mount("/tenants/{tenantID}", schedulerHandler.EventsRoutes())

	// Internal Control API: every route below requires X-Tenant-ID.
	jobsHandler := jobengine.NewControlHandler(deps.store, deps.jobs, logger)
	srv.APIRouter.Mount("/jobs", jobsHandler.Routes())

	approvalHandler := approval.NewControlHandler(deps.store, deps.approval, logger)
	srv.APIRouter.Mount("/approvals", approvalHandler.ApprovalRoutes())
	srv.APIRouter.Mount("/budgets", approvalHandler.BudgetRoutes())

	gatewayHandler := gateway.NewControlHandler(deps.store, logger)
	storesRouter := chi.NewRouter()
	gatewayHandler.Mount(storesRouter)
	schedulerHandler.MountReconcile(storesRouter)
	srv.APIRouter.Mount("/stores/{storeID}", storesRouter)

	auditHandler := audit.NewHandler(deps.store, logger)
	srv.APIRouter.Mount("/audit", auditHandler.Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context, logger *slog.Logger, deps *dependencies) error {
	logger.Info("worker started")

	errCh := make(chan error, 2)
	go func() {
		errCh <- deps.jobs.Run(ctx)
	}()
	go func() {
		errCh <- deps.scheduler.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		<-errCh
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// hostname returns the machine hostname, falling back to "unknown" so a
// worker ID is always well-formed even in environments where the lookup
// fails (e.g. restricted containers without /etc/hostname).
func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
