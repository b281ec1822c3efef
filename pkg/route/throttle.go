package route

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/pulse/internal/db"
)

const throttleKeyPrefix = "pulse:route:throttle:"

// Throttle enforces the per-(route, fingerprint) minimum interval.
// Redis is a cache-aside fast path; the route_throttles table
// is the source of truth so a restarted dispatcher (or a cold cache) still
// honors intervals recorded before the restart.
type Throttle struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewThrottle creates a Throttle.
func NewThrottle(rdb *redis.Client, logger *slog.Logger) *Throttle {
	return &Throttle{rdb: rdb, logger: logger}
}

func throttleKey(routeID uuid.UUID, fingerprint string) string {
	return throttleKeyPrefix + routeID.String() + ":" + fingerprint
}

// Allow reports whether a delivery job may be created for (routeID,
// fingerprint) given the route's minimum interval. A zero interval means the
// route is unthrottled. dbtx must be scoped to the tenant's schema.
func (t *Throttle) Allow(ctx context.Context, dbtx db.DBTX, routeID uuid.UUID, fingerprint string, minInterval time.Duration) (bool, error) {
	if minInterval <= 0 {
		return true, nil
	}

	key := throttleKey(routeID, fingerprint)
	if exists, err := t.rdb.Exists(ctx, key).Result(); err == nil && exists > 0 {
		return false, nil
	} else if err != nil {
		t.logger.Warn("throttle cache check failed, falling back to DB", "error", err)
	}

	q := db.New(dbtx)
	lastSent, err := q.GetRouteThrottle(ctx, routeID, fingerprint)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return true, nil
	case err != nil:
		return false, fmt.Errorf("reading route throttle: %w", err)
	}

	return time.Since(lastSent) >= minInterval, nil
}

// Record notes that a delivery job was created for (routeID, fingerprint)
// now, arming the throttle for minInterval.
func (t *Throttle) Record(ctx context.Context, dbtx db.DBTX, routeID uuid.UUID, fingerprint string, minInterval time.Duration) error {
	if minInterval <= 0 {
		return nil
	}

	q := db.New(dbtx)
	if err := q.SetRouteThrottle(ctx, routeID, fingerprint, time.Now()); err != nil {
		return fmt.Errorf("recording route throttle: %w", err)
	}

	if err := t.rdb.Set(ctx, throttleKey(routeID, fingerprint), "1", minInterval).Err(); err != nil {
		t.logger.Warn("failed to arm throttle cache", "error", err)
	}
	return nil
}
