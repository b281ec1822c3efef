package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wisbric/pulse/internal/db"
	"github.com/wisbric/pulse/internal/telemetry"
	"github.com/wisbric/pulse/internal/tenant"
)

// Config controls the delivery worker.
type Config struct {
	Concurrency    int           // DELIVERY_CONCURRENCY, default 8
	MaxAttempts    int32         // DELIVERY_MAX_ATTEMPTS, default 5
	BaseBackoff    time.Duration // DELIVERY_BASE_BACKOFF_MS
	MaxBackoff     time.Duration // DELIVERY_MAX_BACKOFF_SECONDS, default 300s
	RequestTimeout time.Duration // DELIVERY_REQUEST_TIMEOUT_SECONDS, default 10s
	PollInterval   time.Duration // claim cadence, default 1s
	LeaseDuration  time.Duration // IN_FLIGHT lease, default 2 * RequestTimeout
	WorkerID       string        // lease owner identity, unique per process
}

// Worker drains PENDING delivery jobs whose next_attempt_at has elapsed and
// executes each through its integration's Sender. Job claiming is a CAS
// (PENDING → IN_FLIGHT with a lease) so concurrent worker processes never
// run the same job twice.
type Worker struct {
	cfg     Config
	pool    *pgxpool.Pool
	senders map[string]Sender
	logger  *slog.Logger

	schemaMu sync.RWMutex
	schemas  map[uuid.UUID]string

	sem chan struct{}
	wg  sync.WaitGroup
}

// NewWorker creates a Worker over the given senders.
func NewWorker(cfg Config, pool *pgxpool.Pool, senders []Sender, logger *slog.Logger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 2 * cfg.RequestTimeout
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = "deliver-" + uuid.New().String()[:8]
	}

	byKind := make(map[string]Sender, len(senders))
	for _, s := range senders {
		byKind[s.Kind()] = s
	}

	return &Worker{
		cfg:     cfg,
		pool:    pool,
		senders: byKind,
		logger:  logger,
		schemas: make(map[uuid.UUID]string),
		sem:     make(chan struct{}, cfg.Concurrency),
	}
}

// Run blocks, claiming and executing jobs until ctx is cancelled, then
// drains active jobs with a soft deadline. Jobs still IN_FLIGHT after an
// unclean exit revert to PENDING once their lease expires.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("delivery worker started",
		"concurrency", w.cfg.Concurrency,
		"max_attempts", w.cfg.MaxAttempts,
		"worker_id", w.cfg.WorkerID,
	)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("delivery worker draining")
			done := make(chan struct{})
			go func() { w.wg.Wait(); close(done) }()
			select {
			case <-done:
			case <-time.After(w.cfg.RequestTimeout + 5*time.Second):
				w.logger.Warn("drain deadline exceeded, leaving jobs to lease expiry")
			}
			w.logger.Info("delivery worker stopped")
			return nil
		case <-ticker.C:
			if err := w.tick(ctx); err != nil {
				w.logger.Error("delivery tick", "error", err)
			}
		}
	}
}

func (w *Worker) tick(ctx context.Context) error {
	q := db.New(w.pool)

	if released, err := q.ReleaseExpiredLeases(ctx); err != nil {
		w.logger.Error("releasing expired leases", "error", err)
	} else if released > 0 {
		w.logger.Warn("reverted expired in-flight jobs to pending", "count", released)
	}

	jobs, err := q.ClaimPendingDeliveryJobs(ctx, int32(w.cfg.Concurrency), w.cfg.WorkerID, w.cfg.LeaseDuration)
	if err != nil {
		return fmt.Errorf("claiming jobs: %w", err)
	}

	for _, job := range jobs {
		select {
		case w.sem <- struct{}{}:
		case <-ctx.Done():
			// Unstarted claims revert to PENDING via lease expiry.
			return nil
		}
		w.wg.Add(1)
		go func(job db.DeliveryJob) {
			defer w.wg.Done()
			defer func() { <-w.sem }()
			w.execute(context.WithoutCancel(ctx), job)
		}(job)
	}
	return nil
}

// execute runs one claimed job to a terminal state for this attempt:
// SUCCEEDED, PENDING with a backed-off next_attempt_at, or DEAD.
func (w *Worker) execute(ctx context.Context, job db.DeliveryJob) {
	tracer := otel.Tracer("pulse/delivery")
	ctx, span := tracer.Start(ctx, "delivery.attempt",
		trace.WithAttributes(
			attribute.String("job_id", job.ID.String()),
			attribute.Int("attempt", int(job.Attempt)+1),
		))
	defer span.End()

	payload, err := ParsePayload(job.Payload)
	if err != nil {
		w.finishDead(ctx, job, "", fmt.Sprintf("unparseable payload: %v", err))
		return
	}
	payload.CorrelationID = correlationID(span)

	kind, config, err := w.loadIntegration(ctx, job)
	if err != nil {
		// Misconfiguration (route or integration gone, or disabled) is an
		// input error: never retried.
		w.finishDead(ctx, job, kind, err.Error())
		return
	}
	span.SetAttributes(attribute.String("kind", kind))

	sender, ok := w.senders[kind]
	if !ok {
		w.finishDead(ctx, job, kind, fmt.Sprintf("no sender for integration kind %q", kind))
		return
	}

	attemptCtx, cancel := context.WithTimeout(ctx, w.cfg.RequestTimeout)
	start := time.Now()
	sendErr := sender.Send(attemptCtx, config, payload)
	cancel()
	latency := time.Since(start)

	q := db.New(w.pool)
	if sendErr == nil {
		if err := q.MarkDeliverySucceeded(ctx, job.ID); err != nil {
			w.logger.Error("marking job succeeded", "error", err, "job_id", job.ID)
			return
		}
		telemetry.DeliveryAttemptsTotal.WithLabelValues(kind, "ok").Inc()
		telemetry.DeliveryLatency.WithLabelValues(kind).Observe(latency.Seconds())
		w.logger.Info("delivery succeeded",
			"job_id", job.ID,
			"kind", kind,
			"attempt", job.Attempt+1,
			"latency_ms", latency.Milliseconds(),
			"correlation_id", payload.CorrelationID,
		)
		return
	}

	telemetry.DeliveryAttemptsTotal.WithLabelValues(kind, "error").Inc()
	newAttempt := job.Attempt + 1
	if newAttempt >= w.cfg.MaxAttempts {
		w.finishDead(ctx, job, kind, sendErr.Error())
		return
	}

	delay := RetryDelay(newAttempt, w.cfg.BaseBackoff, w.cfg.MaxBackoff)
	if err := q.MarkDeliveryRetry(ctx, db.MarkDeliveryRetryParams{
		ID:            job.ID,
		NextAttemptAt: time.Now().Add(delay),
		LastError:     sendErr.Error(),
	}); err != nil {
		w.logger.Error("scheduling retry", "error", err, "job_id", job.ID)
		return
	}
	w.logger.Warn("delivery failed, retry scheduled",
		"job_id", job.ID,
		"kind", kind,
		"attempt", newAttempt,
		"retry_in", delay.Truncate(time.Millisecond).String(),
		"error", sendErr,
	)
}

func (w *Worker) finishDead(ctx context.Context, job db.DeliveryJob, kind, lastError string) {
	if err := db.New(w.pool).MarkDeliveryDead(ctx, job.ID, lastError); err != nil {
		w.logger.Error("marking job dead", "error", err, "job_id", job.ID)
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	telemetry.DeliveryDeadLetterTotal.WithLabelValues(kind).Inc()
	w.logger.Error("delivery dead-lettered",
		"job_id", job.ID,
		"kind", kind,
		"attempts", job.Attempt+1,
		"error", lastError,
	)
}

// loadIntegration resolves a job's route and integration inside the job
// tenant's schema, returning the integration kind and config.
func (w *Worker) loadIntegration(ctx context.Context, job db.DeliveryJob) (string, []byte, error) {
	schema, err := w.schemaFor(ctx, job.TenantID)
	if err != nil {
		return "", nil, err
	}

	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT set_config('search_path', $1, false)", schema+", public"); err != nil {
		return "", nil, fmt.Errorf("setting search_path: %w", err)
	}

	q := db.New(conn)
	rt, err := q.GetRoute(ctx, job.RouteID)
	if err != nil {
		return "", nil, fmt.Errorf("loading route %s: %w", job.RouteID, err)
	}
	integ, err := q.GetIntegration(ctx, rt.IntegrationID)
	if err != nil {
		return "", nil, fmt.Errorf("loading integration %s: %w", rt.IntegrationID, err)
	}
	if !integ.Enabled {
		return integ.Kind, nil, fmt.Errorf("integration %s is disabled", integ.ID)
	}
	return integ.Kind, integ.Config, nil
}

func (w *Worker) schemaFor(ctx context.Context, tenantID uuid.UUID) (string, error) {
	w.schemaMu.RLock()
	schema, ok := w.schemas[tenantID]
	w.schemaMu.RUnlock()
	if ok {
		return schema, nil
	}

	t, err := db.New(w.pool).GetTenantByID(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("resolving tenant: %w", err)
	}
	schema = tenant.SchemaName(t.Slug)

	w.schemaMu.Lock()
	w.schemas[tenantID] = schema
	w.schemaMu.Unlock()

	return schema, nil
}

// correlationID derives the outbound correlation ID from the attempt's
// trace span, falling back to a fresh UUID when tracing is a no-op.
func correlationID(span trace.Span) string {
	if sc := span.SpanContext(); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return uuid.New().String()
}
