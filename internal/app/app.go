// Package app wires configuration, infrastructure, and the mode-specific
// pipeline components into runnable processes. Production topology is one
// mode per process; every mode shares this bootstrap.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/pulse/internal/audit"
	"github.com/wisbric/pulse/internal/auth"
	"github.com/wisbric/pulse/internal/config"
	"github.com/wisbric/pulse/internal/httpserver"
	"github.com/wisbric/pulse/internal/operator"
	"github.com/wisbric/pulse/internal/platform"
	"github.com/wisbric/pulse/internal/telemetry"
	"github.com/wisbric/pulse/internal/tenant"
	"github.com/wisbric/pulse/internal/version"
	"github.com/wisbric/pulse/pkg/addrguard"
	"github.com/wisbric/pulse/pkg/alert"
	"github.com/wisbric/pulse/pkg/alertrule"
	"github.com/wisbric/pulse/pkg/delivery"
	"github.com/wisbric/pulse/pkg/devicecache"
	"github.com/wisbric/pulse/pkg/dispatch"
	"github.com/wisbric/pulse/pkg/evaluator"
	"github.com/wisbric/pulse/pkg/ingest"
	"github.com/wisbric/pulse/pkg/integration"
	"github.com/wisbric/pulse/pkg/registry"
	"github.com/wisbric/pulse/pkg/route"
	"github.com/wisbric/pulse/pkg/tswriter"
)

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the selected mode.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting pulse",
		"mode", cfg.Mode,
		"version", version.Version,
	)

	// Tracing
	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, "pulse-"+cfg.Mode, version.Version)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}()

	// Database
	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	// Run global migrations on every start; they are idempotent.
	if err := platform.RunGlobalMigrations(cfg.DatabaseURL, cfg.MigrationsGlobalDir); err != nil {
		return fmt.Errorf("running global migrations: %w", err)
	}
	logger.Info("global migrations applied")

	if cfg.Mode == "migrate" {
		return runMigrate(ctx, cfg, logger, db)
	}

	// Redis
	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	// Metrics
	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	switch cfg.Mode {
	case "ingest":
		return runIngest(ctx, cfg, logger, db, metricsReg)
	case "evaluate":
		return runEvaluate(ctx, cfg, logger, db, rdb)
	case "dispatch":
		return runDispatch(ctx, cfg, logger, db, rdb)
	case "deliver":
		return runDeliver(ctx, cfg, logger, db)
	case "admin-api":
		return runAdminAPI(ctx, cfg, logger, db, rdb, metricsReg)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// runMigrate applies tenant migrations to every provisioned tenant schema
// and exits. Global migrations already ran in Run.
func runMigrate(ctx context.Context, cfg *config.Config, logger *slog.Logger, pool *pgxpool.Pool) error {
	tenants, err := listTenants(ctx, pool)
	if err != nil {
		return err
	}
	for _, slug := range tenants {
		schema := tenant.SchemaName(slug)
		tenantURL, err := tenant.DatabaseURLForSchema(cfg.DatabaseURL, schema)
		if err != nil {
			return fmt.Errorf("building URL for schema %s: %w", schema, err)
		}
		if err := platform.RunTenantMigrations(tenantURL, cfg.MigrationsTenantDir); err != nil {
			return fmt.Errorf("migrating tenant %s: %w", slug, err)
		}
		logger.Info("tenant migrations applied", "tenant", slug)
	}
	return nil
}

// runIngest starts the ingestion pipeline: the auth cache, the batch
// writer, the worker pool, and the HTTP (and optionally MQTT) device ingress.
func runIngest(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, metricsReg *prometheus.Registry) error {
	cache := devicecache.New(cfg.AuthCacheTTL(), cfg.AuthCacheMaxSize)

	writer := tswriter.New(tswriter.Config{
		BatchSize:     cfg.InfluxBatchSize,
		FlushInterval: cfg.InfluxFlushInterval(),
		BaseURL:       cfg.TimeseriesURL,
	}, logger, telemetry.WritesOKTotal, telemetry.WritesErrTotal)
	writer.Start(ctx)
	defer writer.Stop()

	pool := ingest.NewPool(ingest.Config{
		Workers:      cfg.IngestWorkerCount,
		QueueSize:    cfg.IngestQueueSize,
		RateLimitRPS: cfg.IngestRateLimitRPS,
		RateBurst:    cfg.IngestRateBurst,
		TokenSalt:    cfg.ProvisionTokenSalt,
	}, db, cache, writer, logger)
	pool.Start(ctx)
	defer pool.Stop()

	if cfg.MQTTBrokerURL != "" {
		source, err := ingest.NewMQTTSource(cfg.MQTTBrokerURL, "pulse-ingest-"+uuid.New().String()[:8], pool, logger)
		if err != nil {
			return fmt.Errorf("connecting MQTT ingress: %w", err)
		}
		if err := source.Subscribe(); err != nil {
			return fmt.Errorf("subscribing MQTT ingress: %w", err)
		}
		defer source.Close()
		logger.Info("mqtt ingress subscribed", "broker", cfg.MQTTBrokerURL)
	}

	router := chi.NewRouter()
	router.Use(httpserver.RequestID)
	router.Use(httpserver.Logger(logger))
	router.Use(httpserver.Metrics)
	router.Use(chimiddleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpserver.Respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Handle(cfg.MetricsPath, promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))
	router.Route("/ingest/v1", func(r chi.Router) {
		ingest.NewHTTPSource(pool).Routes(r)
	})

	return serveHTTP(ctx, cfg, logger, router, "ingest http server")
}

// runEvaluate starts the evaluator.
func runEvaluate(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) error {
	dedup := alert.NewDeduplicator(rdb, logger,
		telemetry.AlertsOpenedTotal, telemetry.AlertsClosedTotal, telemetry.AlertsTouchedTotal)
	samples := tswriter.NewReader(cfg.TimeseriesURL)

	engine := evaluator.NewEngine(evaluator.Config{
		StaleAfter:   cfg.StaleAfter(),
		OfflineAfter: cfg.OfflineAfter(),
		Tick:         cfg.EvaluatorTick(),
	}, db, dedup, samples, logger)
	return engine.Run(ctx)
}

// runDispatch starts the dispatcher.
func runDispatch(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) error {
	engine := dispatch.NewEngine(db, rdb, logger, cfg.DispatchTick())
	return engine.Run(ctx)
}

// runDeliver starts the delivery worker: one Sender per integration kind,
// each behind the shared SSRF guard, bounded by the configured concurrency.
func runDeliver(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool) error {
	guard := addrguard.New(cfg.SSRFAllowPrivate)
	httpClient := &http.Client{Timeout: cfg.DeliveryRequestTimeout()}

	senders := []delivery.Sender{
		delivery.NewWebhookSender(httpClient, guard),
		delivery.NewSNMPSender(guard),
		delivery.NewEmailSender(guard),
		delivery.NewMQTTSender(guard, "pulse-deliver-"+uuid.New().String()[:8]),
	}

	worker := delivery.NewWorker(delivery.Config{
		Concurrency:    cfg.DeliveryConcurrency,
		MaxAttempts:    int32(cfg.DeliveryMaxAttempts),
		BaseBackoff:    cfg.DeliveryBaseBackoff(),
		MaxBackoff:     cfg.DeliveryMaxBackoff(),
		RequestTimeout: cfg.DeliveryRequestTimeout(),
	}, db, senders, logger)
	return worker.Run(ctx)
}

// runAdminAPI starts the tenant-scoped admin surface (every handler runs
// inside tenant context) plus the operator surface.
func runAdminAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	// OIDC authenticator (optional — nil if not configured).
	var oidcAuth *auth.OIDCAuthenticator
	if cfg.OIDCIssuerURL != "" && cfg.OIDCClientID != "" {
		var err error
		oidcAuth, err = auth.NewOIDCAuthenticator(ctx, cfg.OIDCIssuerURL, cfg.OIDCClientID)
		if err != nil {
			return fmt.Errorf("initializing OIDC authenticator: %w", err)
		}
		logger.Info("OIDC authentication enabled", "issuer", cfg.OIDCIssuerURL)
	} else {
		logger.Info("OIDC authentication disabled (OIDC_ISSUER_URL not set)")
	}

	// Audit log writer (async, buffered; operator records bypass the
	// buffer via LogOperatorSync).
	auditWriter := audit.NewWriter(db, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg, oidcAuth)

	srv.Router.Get("/status", srv.HandleStatus)

	// Tenant-scoped domain handlers.
	srv.APIRouter.Mount("/alerts", alert.NewHandler(logger, auditWriter).Routes())
	srv.APIRouter.Mount("/alert-rules", alertrule.NewHandler(logger, auditWriter).Routes())
	srv.APIRouter.Mount("/routes", route.NewHandler(logger, auditWriter).Routes())
	srv.APIRouter.Mount("/integrations", integration.NewHandler(logger, auditWriter).Routes())

	registryHandler := registry.NewHandler(logger, auditWriter, cfg.ProvisionTokenSalt, nil)
	srv.APIRouter.Mount("/devices", registryHandler.Routes())
	srv.APIRouter.Mount("/quarantine", registryHandler.QuarantineRoutes())

	srv.APIRouter.Mount("/delivery-jobs", delivery.NewHandler(logger).Routes())
	srv.APIRouter.Mount("/audit-log", audit.NewHandler(logger).Routes())

	// Operator surface: cross-tenant, role-gated, audited before execution.
	provisioner := &tenant.Provisioner{
		DB:            db,
		DatabaseURL:   cfg.DatabaseURL,
		MigrationsDir: cfg.MigrationsTenantDir,
		Logger:        logger,
	}
	operatorHandler := operator.NewHandler(db, provisioner, logger)
	srv.Router.Route("/api/operator/v1", func(r chi.Router) {
		r.Use(auth.Middleware(oidcAuth, db, logger))
		r.Use(auth.RequireRole(auth.RoleOperator))
		r.Use(tenant.OperatorMiddleware(db, auditWriter.OperatorAuditFunc(), logger))
		r.Mount("/tenants", operatorHandler.Routes())
	})

	return serveHTTP(ctx, cfg, logger, srv, "api server")
}

// serveHTTP runs an HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func serveHTTP(ctx context.Context, cfg *config.Config, logger *slog.Logger, handler http.Handler, name string) error {
	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(name+" listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down " + name)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func listTenants(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	rows, err := pool.Query(ctx, `SELECT slug FROM public.tenants ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("scanning tenant slug: %w", err)
		}
		out = append(out, slug)
	}
	return out, rows.Err()
}
