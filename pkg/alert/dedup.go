package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/pulse/internal/db"
)

const (
	// dedupCacheTTL is the Redis TTL for fingerprint -> alert ID entries.
	// Shorter than the auth cache's TTL since an alert's open/closed state
	// changes far more often than a device's registry row.
	dedupCacheTTL = 30 * time.Second

	redisKeyPrefix = "pulse:alert:open:"
)

// Deduplicator enforces the dedup contract: at most one
// OPEN alert per (tenant_id, fingerprint). It uses Redis as a cache-aside
// fast path in front of the partial unique index that is the actual source
// of truth, in the usual check-cache-then-fall-back-to-DB shape.
type Deduplicator struct {
	rdb    *redis.Client
	logger *slog.Logger

	opened  *prometheus.CounterVec // labeled by type
	touched prometheus.Counter
	closed  *prometheus.CounterVec // labeled by type
}

// NewDeduplicator creates a Deduplicator.
func NewDeduplicator(rdb *redis.Client, logger *slog.Logger, opened, closed *prometheus.CounterVec, touched prometheus.Counter) *Deduplicator {
	return &Deduplicator{rdb: rdb, logger: logger, opened: opened, closed: closed, touched: touched}
}

func redisKey(tenantID uuid.UUID, fingerprint string) string {
	return redisKeyPrefix + tenantID.String() + ":" + fingerprint
}

// OpenOrTouch implements the dedup contract: if an OPEN alert already exists
// for this fingerprint, its last_seen_at/details are refreshed; otherwise a
// new OPEN alert is created. dbtx must already be scoped to the tenant's
// schema (the caller's tick loop sets search_path before calling this).
func (d *Deduplicator) OpenOrTouch(ctx context.Context, dbtx db.DBTX, arg db.CreateAlertParams) (db.Alert, error) {
	q := db.New(dbtx)

	if id, ok := d.cacheLookup(ctx, arg.TenantID, arg.Fingerprint); ok {
		if err := q.TouchAlert(ctx, db.TouchAlertParams{ID: id, Details: arg.Details}); err != nil {
			return db.Alert{}, fmt.Errorf("touching cached alert: %w", err)
		}
		d.touched.Inc()
		return q.GetAlert(ctx, id)
	}

	existing, err := q.GetOpenAlertByFingerprint(ctx, arg.TenantID, arg.Fingerprint)
	switch {
	case err == nil:
		d.cacheSet(ctx, arg.TenantID, arg.Fingerprint, existing.ID)
		if err := q.TouchAlert(ctx, db.TouchAlertParams{ID: existing.ID, Details: arg.Details}); err != nil {
			return db.Alert{}, fmt.Errorf("touching alert: %w", err)
		}
		d.touched.Inc()
		return q.GetAlert(ctx, existing.ID)
	case errors.Is(err, pgx.ErrNoRows):
		created, err := q.CreateAlert(ctx, arg)
		if err != nil {
			// A concurrent evaluator tick may have won the race against the
			// partial unique index on (tenant_id, fingerprint) WHERE
			// status='OPEN' — this is the last line of defense the dedup
			// check above is meant to make rare, not impossible.
			if existing, getErr := q.GetOpenAlertByFingerprint(ctx, arg.TenantID, arg.Fingerprint); getErr == nil {
				d.cacheSet(ctx, arg.TenantID, arg.Fingerprint, existing.ID)
				return existing, nil
			}
			return db.Alert{}, fmt.Errorf("creating alert: %w", err)
		}
		d.cacheSet(ctx, arg.TenantID, arg.Fingerprint, created.ID)
		if d.opened != nil {
			d.opened.WithLabelValues(arg.Type).Inc()
		}
		return created, nil
	default:
		return db.Alert{}, fmt.Errorf("checking open alert: %w", err)
	}
}

// Close transitions the OPEN alert for fingerprint to CLOSED, if one exists,
// and evicts the dedup cache entry. It is a no-op if no OPEN alert exists
// (the "transition out of OFFLINE back to ONLINE with no open alert" case,
// which happens after a missed tick window).
func (d *Deduplicator) Close(ctx context.Context, dbtx db.DBTX, tenantID uuid.UUID, fingerprint, alertType string) error {
	q := db.New(dbtx)

	existing, err := q.GetOpenAlertByFingerprint(ctx, tenantID, fingerprint)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking open alert: %w", err)
	}

	if err := q.CloseAlert(ctx, existing.ID); err != nil {
		return fmt.Errorf("closing alert: %w", err)
	}
	d.cacheInvalidate(ctx, tenantID, fingerprint)
	if d.closed != nil {
		d.closed.WithLabelValues(alertType).Inc()
	}
	return nil
}

func (d *Deduplicator) cacheLookup(ctx context.Context, tenantID uuid.UUID, fingerprint string) (uuid.UUID, bool) {
	val, err := d.rdb.Get(ctx, redisKey(tenantID, fingerprint)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			d.logger.Warn("dedup cache lookup failed, falling back to DB", "error", err)
		}
		return uuid.Nil, false
	}
	id, err := uuid.Parse(val)
	if err != nil {
		d.logger.Warn("invalid UUID in dedup cache", "value", val)
		return uuid.Nil, false
	}
	return id, true
}

func (d *Deduplicator) cacheSet(ctx context.Context, tenantID uuid.UUID, fingerprint string, id uuid.UUID) {
	if err := d.rdb.Set(ctx, redisKey(tenantID, fingerprint), id.String(), dedupCacheTTL).Err(); err != nil {
		d.logger.Warn("failed to set dedup cache", "error", err)
	}
}

func (d *Deduplicator) cacheInvalidate(ctx context.Context, tenantID uuid.UUID, fingerprint string) {
	if err := d.rdb.Del(ctx, redisKey(tenantID, fingerprint)).Err(); err != nil {
		d.logger.Warn("failed to invalidate dedup cache", "error", err)
	}
}
