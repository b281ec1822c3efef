// Package evaluator implements the device liveness state machine and the
// threshold rule engine, sharing one tick loop. The engine
// holds no state that must survive a restart — liveness is reconstructed
// from device_state.last_seen_at and open alerts are re-read from storage,
// so a missed tick can never synthesize duplicates (the fingerprint dedup
// contract absorbs it).
package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/pulse/internal/db"
	"github.com/wisbric/pulse/internal/tenant"
	"github.com/wisbric/pulse/pkg/alert"
	"github.com/wisbric/pulse/pkg/tswriter"
)

// Liveness states.
const (
	LivenessOnline  = "ONLINE"
	LivenessStale   = "STALE"
	LivenessOffline = "OFFLINE"
)

// SampleSource supplies the newest sample of a metric per device for one
// tenant. Production wiring uses *tswriter.Reader; tests substitute a fake.
type SampleSource interface {
	LastSamples(ctx context.Context, tenant, metric string) (map[string]tswriter.Sample, error)
}

// Config controls liveness thresholds and tick cadence.
type Config struct {
	StaleAfter   time.Duration // STALE_AFTER_SECONDS, default 60s
	OfflineAfter time.Duration // OFFLINE_AFTER_SECONDS, default 300s
	Tick         time.Duration // EVALUATOR_TICK_SECONDS, default 10s
}

// Engine is the evaluator loop.
type Engine struct {
	cfg     Config
	pool    *pgxpool.Pool
	dedup   *alert.Deduplicator
	samples SampleSource
	logger  *slog.Logger

	now func() time.Time // injectable for tests
}

// NewEngine creates an evaluator Engine.
func NewEngine(cfg Config, pool *pgxpool.Pool, dedup *alert.Deduplicator, samples SampleSource, logger *slog.Logger) *Engine {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 60 * time.Second
	}
	if cfg.OfflineAfter <= 0 {
		cfg.OfflineAfter = 300 * time.Second
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 10 * time.Second
	}
	return &Engine{
		cfg:     cfg,
		pool:    pool,
		dedup:   dedup,
		samples: samples,
		logger:  logger,
		now:     time.Now,
	}
}

// Run starts the evaluator loop. It blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("evaluator started",
		"tick", e.cfg.Tick,
		"stale_after", e.cfg.StaleAfter,
		"offline_after", e.cfg.OfflineAfter,
	)

	ticker := time.NewTicker(e.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("evaluator stopped")
			return nil
		case <-ticker.C:
			if err := e.tick(ctx); err != nil {
				e.logger.Error("evaluator tick", "error", err)
			}
		}
	}
}

// tick performs one liveness+threshold pass across all tenants.
func (e *Engine) tick(ctx context.Context) error {
	tenants, err := db.New(e.pool).ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("listing tenants: %w", err)
	}

	for _, t := range tenants {
		if err := e.processTenant(ctx, t); err != nil {
			e.logger.Error("evaluating tenant", "tenant", t.Slug, "error", err)
		}
	}
	return nil
}

// processTenant evaluates one tenant inside its schema: the liveness sweep
// first, then the rule pass. Both read the same device_state rows, which
// also carry each device's site for selector matching.
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

	states, err := db.New(conn).ListDeviceStates(ctx)
	if err != nil {
		return fmt.Errorf("listing device states: %w", err)
	}

	e.sweepLiveness(ctx, conn, states)
	e.evaluateRules(ctx, conn, t.Slug, states)
	return nil
}
