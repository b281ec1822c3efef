// Package dispatch implements the dispatcher: it matches newly OPEN
// alerts to routing rules and enqueues delivery jobs. This is the polling
// variant — a ticker scans recently opened
// alerts per tenant; running it twice over the same alert is safe because
// the throttle and the dispatched_at marker suppress duplicates.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/pulse/internal/db"
	"github.com/wisbric/pulse/internal/telemetry"
	"github.com/wisbric/pulse/internal/tenant"
	"github.com/wisbric/pulse/pkg/delivery"
	"github.com/wisbric/pulse/pkg/route"
)

// Engine is the background dispatcher loop.
type Engine struct {
	pool     *pgxpool.Pool
	throttle *route.Throttle
	logger   *slog.Logger
	interval time.Duration
}

// NewEngine creates a dispatcher Engine.
func NewEngine(pool *pgxpool.Pool, rdb *redis.Client, logger *slog.Logger, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Engine{
		pool:     pool,
		throttle: route.NewThrottle(rdb, logger),
		logger:   logger,
		interval: interval,
	}
}

// Run starts the dispatcher loop. It blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("dispatcher started", "interval", e.interval)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("dispatcher stopped")
			return nil
		case <-ticker.C:
			if err := e.tick(ctx); err != nil {
				e.logger.Error("dispatcher tick", "error", err)
			}
		}
	}
}

// tick performs a single dispatch pass across all tenants.
func (e *Engine) tick(ctx context.Context) error {
	tenants, err := db.New(e.pool).ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("listing tenants: %w", err)
	}

	for _, t := range tenants {
		if err := e.processTenant(ctx, t); err != nil {
			e.logger.Error("dispatching tenant alerts", "tenant", t.Slug, "error", err)
		}
	}
	return nil
}

// processTenant scans one tenant's undispatched OPEN alerts and matches
// them against the tenant's enabled routes.
func (e *Engine) processTenant(ctx context.Context, t db.Tenant) error {
	schema := tenant.SchemaName(t.Slug)
	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT set_config('search_path', $1, false)", schema+", public"); err != nil {
		return fmt.Errorf("setting search_path: %w", err)
	}

	q := db.New(conn)
	alerts, err := q.ListUndispatchedOpenAlerts(ctx)
	if err != nil {
		return fmt.Errorf("listing undispatched alerts: %w", err)
	}
	if len(alerts) == 0 {
		return nil
	}

	routes, err := q.ListEnabledRoutes(ctx)
	if err != nil {
		return fmt.Errorf("listing enabled routes: %w", err)
	}

	for _, a := range alerts {
		if err := e.processAlert(ctx, conn, a, routes); err != nil {
			e.logger.Error("dispatching alert", "alert_id", a.ID, "error", err)
			continue // leave dispatched_at unset; retried next tick
		}
		if err := q.MarkAlertDispatched(ctx, a.ID); err != nil {
			e.logger.Error("marking alert dispatched", "alert_id", a.ID, "error", err)
		}
	}
	return nil
}

// processAlert runs the per-alert pipeline: predicate match,
// throttle check, payload materialization, job insert. dbtx is the
// tenant-scoped connection from processTenant.
func (e *Engine) processAlert(ctx context.Context, dbtx db.DBTX, a db.Alert, routes []db.Route) error {
	q := db.New(dbtx)
	siteID := e.deviceSite(ctx, q, a)

	for _, r := range routes {
		if !route.Matches(r, a, siteID) {
			continue
		}

		minInterval := time.Duration(r.ThrottleSeconds) * time.Second
		allowed, err := e.throttle.Allow(ctx, dbtx, r.ID, a.Fingerprint, minInterval)
		if err != nil {
			return fmt.Errorf("checking throttle for route %s: %w", r.ID, err)
		}
		if !allowed {
			telemetry.RouteThrottledTotal.Inc()
			continue
		}

		payload, err := materialize(r, a)
		if err != nil {
			return fmt.Errorf("materializing payload for route %s: %w", r.ID, err)
		}

		if _, err := q.CreateDeliveryJob(ctx, db.CreateDeliveryJobParams{
			TenantID: a.TenantID,
			AlertID:  a.ID,
			RouteID:  r.ID,
			Payload:  payload,
		}); err != nil {
			return fmt.Errorf("creating delivery job for route %s: %w", r.ID, err)
		}
		telemetry.DeliveryJobsCreatedTotal.Inc()

		if err := e.throttle.Record(ctx, dbtx, r.ID, a.Fingerprint, minInterval); err != nil {
			e.logger.Warn("recording throttle", "route_id", r.ID, "error", err)
		}

		e.logger.Info("delivery job created",
			"alert_id", a.ID,
			"route", r.Name,
			"type", a.Type,
			"severity", a.Severity,
		)
	}
	return nil
}

// deviceSite resolves the alert device's site for selector matching. An
// unknown site (device_state missing) makes site-constrained selectors fail
// closed rather than blocking dispatch entirely.
func (e *Engine) deviceSite(ctx context.Context, q *db.Queries, a db.Alert) string {
	state, err := q.GetDeviceState(ctx, a.TenantID, a.DeviceID)
	if err != nil {
		return ""
	}
	return state.LastKnownSiteID
}

// materialize renders the route's message template and wraps it into the
// job's self-contained payload.
func materialize(r db.Route, a db.Alert) (json.RawMessage, error) {
	msg := RenderTemplate(r.Template, a)
	p := delivery.Payload{
		TenantID:  a.TenantID,
		AlertID:   a.ID,
		AlertType: a.Type,
		Severity:  a.Severity,
		DeviceID:  a.DeviceID,
		Message:   msg,
		Timestamp: a.OpenedAt,
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	return raw, nil
}
