package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/pulse/internal/auth"
	"github.com/wisbric/pulse/internal/db"
	"github.com/wisbric/pulse/internal/telemetry"
	"github.com/wisbric/pulse/internal/tenant"
	"github.com/wisbric/pulse/pkg/devicecache"
	"github.com/wisbric/pulse/pkg/tswriter"
)

// Config controls the worker pool shape.
type Config struct {
	Workers      int // INGEST_WORKER_COUNT, default 4
	QueueSize    int // INGEST_QUEUE_SIZE, default 50000
	RateLimitRPS float64
	RateBurst    int
	TokenSalt    string // PROVISION_TOKEN_SALT
}

// Pool is the ingestion worker pool: N cooperative workers sharing one
// bounded queue, one auth cache, and one batch writer.
type Pool struct {
	cfg    Config
	pool   *pgxpool.Pool
	cache  *devicecache.Cache
	writer *tswriter.Writer
	logger *slog.Logger

	queue    chan RawMessage
	limiters *limiterSet
	lastSeen *lastSeenBatcher

	schemaMu sync.RWMutex
	schemas  map[uuid.UUID]string // tenant_id -> schema, populated lazily

	wg sync.WaitGroup
}

// NewPool creates a Pool. Call Start to launch the worker goroutines and the
// last-seen batch flusher.
func NewPool(cfg Config, pgpool *pgxpool.Pool, cache *devicecache.Cache, writer *tswriter.Writer, logger *slog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 50000
	}
	return &Pool{
		cfg:      cfg,
		pool:     pgpool,
		cache:    cache,
		writer:   writer,
		logger:   logger,
		queue:    make(chan RawMessage, cfg.QueueSize),
		limiters: newLimiterSet(cfg.RateLimitRPS, cfg.RateBurst),
		lastSeen: newLastSeenBatcher(pgpool, logger),
		schemas:  make(map[uuid.UUID]string),
	}
}

// Submit enqueues a message, applying backpressure: it returns false without
// blocking if the queue is full, so the HTTP source can answer 429 and the
// MQTT source logs each message it cannot enqueue. The MQTT source applies
// no broker-side flow control.
func (p *Pool) Submit(msg RawMessage) bool {
	select {
	case p.queue <- msg:
		telemetry.IngestQueueDepth.Set(float64(len(p.queue)))
		return true
	default:
		return false
	}
}

// Start launches the worker goroutines and the last-seen batch flusher.
func (p *Pool) Start(ctx context.Context) {
	p.lastSeen.Start(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx)
	}
}

// Stop drains in-flight workers and the last-seen batcher. Callers should
// stop feeding Submit before calling Stop.
func (p *Pool) Stop() {
	close(p.queue)
	p.wg.Wait()
	p.lastSeen.Stop()
}

func (p *Pool) runWorker(ctx context.Context) {
	defer p.wg.Done()
	for msg := range p.queue {
		telemetry.IngestQueueDepth.Set(float64(len(p.queue)))
		p.process(ctx, msg)
	}
}

// process runs the per-message validation chain.
// Step 1 (parse) happens in the source before the message reaches the queue;
// a body that fails to parse arrives here flagged Malformed, under the
// tenant_id/device_id it was received with, and is quarantined.
func (p *Pool) process(ctx context.Context, msg RawMessage) {
	telemetry.MessagesIngestedTotal.WithLabelValues(string(msg.MsgType)).Inc()

	if msg.Malformed {
		p.quarantine(ctx, msg, ReasonMalformed)
		return
	}

	_, ok := p.authenticate(ctx, msg)
	if !ok {
		return // authenticate already quarantined and counted the reason
	}

	if !p.limiters.Allow(msg.TenantID, msg.DeviceID) {
		p.quarantine(ctx, msg, ReasonRateLimited)
		return
	}

	line, err := p.buildLine(msg)
	if err != nil {
		p.quarantine(ctx, msg, ReasonMalformed)
		return
	}

	p.writer.Add(msg.TenantID.String(), line)
	p.lastSeen.Record(msg.TenantID, msg.DeviceID, msg.SiteID, time.Unix(0, msg.ObservedAtNanos))
}

// authenticate runs steps 2-5 of the validation chain: cache lookup
// (falling back to the device registry on miss), status check, site check,
// and token check. The DB pool is only entered on a cache miss; a cache hit
// authenticates without acquiring a database connection.
func (p *Pool) authenticate(ctx context.Context, msg RawMessage) (devicecache.Entry, bool) {
	key := devicecache.Key{TenantID: msg.TenantID, DeviceID: msg.DeviceID}

	entry, hit := p.cache.Get(key)
	if hit {
		telemetry.AuthCacheHitsTotal.Inc()
	} else {
		telemetry.AuthCacheMissesTotal.Inc()

		loaded, err := p.loadDevice(ctx, msg.TenantID, msg.DeviceID)
		if err != nil {
			p.quarantine(ctx, msg, ReasonUnregisteredDevice)
			return devicecache.Entry{}, false
		}
		entry = loaded
		p.cache.Put(key, entry) // only successful lookups are cached
		telemetry.AuthCacheSize.Set(float64(p.cache.Stats().Size))
	}

	if entry.Status != "ACTIVE" {
		p.quarantine(ctx, msg, ReasonDeviceRevoked)
		return devicecache.Entry{}, false
	}
	if entry.SiteID != msg.SiteID {
		p.quarantine(ctx, msg, ReasonSiteMismatch)
		return devicecache.Entry{}, false
	}
	if !msg.ViaBroker && !auth.VerifyProvisionToken(p.cfg.TokenSalt, msg.ProvisionToken, entry.ProvisionTokenHash) {
		p.quarantine(ctx, msg, ReasonInvalidToken)
		return devicecache.Entry{}, false
	}

	return entry, true
}

// loadDevice resolves the tenant's schema, acquires a pooled connection
// scoped to it, and looks up the device registry row.
func (p *Pool) loadDevice(ctx context.Context, tenantID uuid.UUID, deviceID string) (devicecache.Entry, error) {
	schema, err := p.schemaFor(ctx, tenantID)
	if err != nil {
		return devicecache.Entry{}, err
	}

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return devicecache.Entry{}, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT set_config('search_path', $1, false)", schema+", public"); err != nil {
		return devicecache.Entry{}, fmt.Errorf("setting search_path: %w", err)
	}

	q := db.New(conn)
	device, err := q.GetDevice(ctx, tenantID, deviceID)
	if err != nil {
		return devicecache.Entry{}, err
	}

	return devicecache.Entry{
		SiteID:             device.SiteID,
		Status:             device.Status,
		ProvisionTokenHash: device.ProvisionTokenHash,
		CachedAt:           time.Now(),
	}, nil
}

// schemaFor resolves a tenant_id to its schema name, caching the mapping for
// the lifetime of the pool (tenant provisioning is rare relative to message
// volume).
func (p *Pool) schemaFor(ctx context.Context, tenantID uuid.UUID) (string, error) {
	p.schemaMu.RLock()
	schema, ok := p.schemas[tenantID]
	p.schemaMu.RUnlock()
	if ok {
		return schema, nil
	}

	q := db.New(p.pool)
	t, err := q.GetTenantByID(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("resolving tenant: %w", err)
	}
	schema = tenant.SchemaName(t.Slug)

	p.schemaMu.Lock()
	p.schemas[tenantID] = schema
	p.schemaMu.Unlock()

	return schema, nil
}

// buildLine constructs the line-protocol point for a validated message.
func (p *Pool) buildLine(msg RawMessage) (string, error) {
	if msg.MsgType == MsgHeartbeat {
		return tswriter.HeartbeatLine(msg.DeviceID, msg.SiteID, msg.Seq, msg.ObservedAtNanos), nil
	}

	metrics, err := tswriter.ParseMetrics(msg.Metrics)
	if err != nil {
		return "", err
	}
	return tswriter.TelemetryLine(msg.DeviceID, msg.SiteID, msg.Seq, metrics, msg.ObservedAtNanos), nil
}

// quarantine records a rejected message. Quarantine writes never touch
// device_state or the batch writer.
func (p *Pool) quarantine(ctx context.Context, msg RawMessage, reason string) {
	telemetry.QuarantineTotal.WithLabelValues(reason).Inc()

	schema, err := p.schemaFor(ctx, msg.TenantID)
	if err != nil {
		p.logger.Error("quarantine: resolving tenant schema", "error", err, "tenant_id", msg.TenantID)
		return
	}

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		p.logger.Error("quarantine: acquiring connection", "error", err)
		return
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT set_config('search_path', $1, false)", schema+", public"); err != nil {
		p.logger.Error("quarantine: setting search_path", "error", err)
		return
	}

	deviceID := &msg.DeviceID
	if msg.DeviceID == "" {
		deviceID = nil
	}

	snippet := quarantineSnippet(msg)

	q := db.New(conn)
	if err := q.CreateQuarantineEvent(ctx, db.CreateQuarantineEventParams{
		TenantID:       msg.TenantID,
		DeviceID:       deviceID,
		Reason:         reason,
		PayloadSnippet: snippet,
		ObservedAt:     time.Unix(0, msg.ObservedAtNanos),
	}); err != nil {
		p.logger.Error("quarantine: writing event", "error", err, "reason", reason)
	}
}

// quarantineSnippet bounds the stored payload.
func quarantineSnippet(msg RawMessage) string {
	const maxLen = 512
	s := fmt.Sprintf("device_id=%s site_id=%s seq=%d metrics=%s", msg.DeviceID, msg.SiteID, msg.Seq, string(msg.Metrics))
	if len(s) > maxLen {
		return s[:maxLen]
	}
	return s
}
