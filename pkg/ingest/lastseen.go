package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/pulse/internal/db"
	"github.com/wisbric/pulse/internal/tenant"
)

// lastSeenKey identifies a device's pending last_seen_at update.
type lastSeenKey struct {
	tenantID uuid.UUID
	deviceID string
}

type lastSeenValue struct {
	siteID     string
	observedAt time.Time
}

// lastSeenBatcher coalesces per-message last_seen_at updates into one
// periodic sweep per device, so the ingestion hot path never issues a write
// per message. Grounded on the same
// ticker/snapshot-and-replace shape as pkg/tswriter.Writer, generalized from
// "line buffer" to "latest-observation-wins map".
type lastSeenBatcher struct {
	pool     *pgxpool.Pool
	logger   *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	pending map[lastSeenKey]lastSeenValue

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newLastSeenBatcher(pool *pgxpool.Pool, logger *slog.Logger) *lastSeenBatcher {
	return &lastSeenBatcher{
		pool:     pool,
		logger:   logger,
		interval: time.Second,
		pending:  make(map[lastSeenKey]lastSeenValue),
	}
}

// Record notes a device's most recent observation. If a later call arrives
// before the next flush for the same device, only the newest observation
// survives (matches UpsertLastSeen's own "newer wins" semantics).
func (b *lastSeenBatcher) Record(tenantID uuid.UUID, deviceID, siteID string, observedAt time.Time) {
	key := lastSeenKey{tenantID: tenantID, deviceID: deviceID}

	b.mu.Lock()
	existing, ok := b.pending[key]
	if !ok || observedAt.After(existing.observedAt) {
		b.pending[key] = lastSeenValue{siteID: siteID, observedAt: observedAt}
	}
	b.mu.Unlock()
}

func (b *lastSeenBatcher) Start(ctx context.Context) {
	b.stopCh = make(chan struct{})
	b.wg.Add(1)
	go b.run(ctx)
}

func (b *lastSeenBatcher) Stop() {
	if b.stopCh != nil {
		close(b.stopCh)
	}
	b.wg.Wait()
	b.flush(context.Background())
}

func (b *lastSeenBatcher) run(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flush(ctx)
		case <-b.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (b *lastSeenBatcher) flush(ctx context.Context) {
	b.mu.Lock()
	snapshot := b.pending
	b.pending = make(map[lastSeenKey]lastSeenValue, len(snapshot))
	b.mu.Unlock()

	schemaCache := make(map[uuid.UUID]string)

	for key, val := range snapshot {
		schema, ok := schemaCache[key.tenantID]
		if !ok {
			q := db.New(b.pool)
			t, err := q.GetTenantByID(ctx, key.tenantID)
			if err != nil {
				b.logger.Error("last_seen flush: resolving tenant", "error", err, "tenant_id", key.tenantID)
				continue
			}
			schema = tenant.SchemaName(t.Slug)
			schemaCache[key.tenantID] = schema
		}

		conn, err := b.pool.Acquire(ctx)
		if err != nil {
			b.logger.Error("last_seen flush: acquiring connection", "error", err)
			continue
		}

		if _, err := conn.Exec(ctx, "SELECT set_config('search_path', $1, false)", schema+", public"); err != nil {
			b.logger.Error("last_seen flush: setting search_path", "error", err)
			conn.Release()
			continue
		}

		q := db.New(conn)
		err = q.UpsertLastSeen(ctx, db.UpsertLastSeenParams{
			TenantID:   key.tenantID,
			DeviceID:   key.deviceID,
			SiteID:     val.siteID,
			ObservedAt: val.observedAt,
		})
		conn.Release()
		if err != nil {
			b.logger.Error("last_seen flush: upserting device_state", "error", err, "device_id", key.deviceID)
		}
	}
}
