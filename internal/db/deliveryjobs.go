package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeliveryJob is a row of the public.delivery_jobs table. Unlike
// the other entities, delivery jobs live in the public schema rather than a
// tenant schema: the delivery worker drains a single cross-tenant queue,
// and each job's payload is already materialized by the dispatcher at
// creation time, so no tenant-scoped search_path is needed to execute a job —
// tenant_id is carried as a plain column for isolation on admin reads.
type DeliveryJob struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	AlertID        uuid.UUID
	RouteID        uuid.UUID
	Attempt        int32
	NextAttemptAt  time.Time
	State          string // PENDING | IN_FLIGHT | SUCCEEDED | DEAD
	LastError      *string
	Payload        json.RawMessage
	LeaseOwner     *string
	LeaseExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const deliveryJobColumns = `id, tenant_id, alert_id, route_id, attempt, next_attempt_at, state,
	last_error, payload, lease_owner, lease_expires_at, created_at, updated_at`

func scanDeliveryJob(row interface{ Scan(dest ...any) error }) (DeliveryJob, error) {
	var j DeliveryJob
	err := row.Scan(&j.ID, &j.TenantID, &j.AlertID, &j.RouteID, &j.Attempt, &j.NextAttemptAt, &j.State,
		&j.LastError, &j.Payload, &j.LeaseOwner, &j.LeaseExpiresAt, &j.CreatedAt, &j.UpdatedAt)
	return j, err
}

// CreateDeliveryJobParams holds fields for enqueuing a new delivery job.
type CreateDeliveryJobParams struct {
	TenantID uuid.UUID
	AlertID  uuid.UUID
	RouteID  uuid.UUID
	Payload  json.RawMessage
}

// CreateDeliveryJob inserts a PENDING job with attempt=0 and an immediate
// next_attempt_at.
func (q *Queries) CreateDeliveryJob(ctx context.Context, arg CreateDeliveryJobParams) (DeliveryJob, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO public.delivery_jobs (tenant_id, alert_id, route_id, attempt, next_attempt_at, state, payload)
		VALUES ($1, $2, $3, 0, now(), 'PENDING', $4)
		RETURNING `+deliveryJobColumns,
		arg.TenantID, arg.AlertID, arg.RouteID, arg.Payload)
	j, err := scanDeliveryJob(row)
	if err != nil {
		return DeliveryJob{}, fmt.Errorf("inserting delivery job: %w", err)
	}
	return j, nil
}

// GetDeliveryJob looks up a single delivery job by id.
func (q *Queries) GetDeliveryJob(ctx context.Context, id uuid.UUID) (DeliveryJob, error) {
	row := q.db.QueryRow(ctx, `SELECT `+deliveryJobColumns+` FROM public.delivery_jobs WHERE id = $1`, id)
	return scanDeliveryJob(row)
}

// ClaimPendingDeliveryJobs atomically claims up to limit PENDING jobs whose
// next_attempt_at has elapsed, transitioning them to IN_FLIGHT with a lease
// held by leaseOwner. FOR UPDATE SKIP LOCKED ensures two delivery worker
// processes never claim the same job: only the CAS winner proceeds.
func (q *Queries) ClaimPendingDeliveryJobs(ctx context.Context, limit int32, leaseOwner string, leaseDuration time.Duration) ([]DeliveryJob, error) {
	rows, err := q.db.Query(ctx, `
		UPDATE public.delivery_jobs SET state = 'IN_FLIGHT', lease_owner = $2,
			lease_expires_at = now() + make_interval(secs => $3), updated_at = now()
		WHERE id IN (
			SELECT id FROM public.delivery_jobs
			WHERE state = 'PENDING' AND next_attempt_at <= now()
			ORDER BY next_attempt_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+deliveryJobColumns,
		limit, leaseOwner, leaseDuration.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claiming delivery jobs: %w", err)
	}
	defer rows.Close()

	var out []DeliveryJob
	for rows.Next() {
		j, err := scanDeliveryJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning claimed delivery job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// MarkDeliverySucceeded transitions a job to SUCCEEDED.
func (q *Queries) MarkDeliverySucceeded(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `
		UPDATE public.delivery_jobs SET state = 'SUCCEEDED', lease_owner = NULL,
			lease_expires_at = NULL, updated_at = now()
		WHERE id = $1
	`, id)
	return err
}

// MarkDeliveryRetryParams schedules the next retry attempt for a failed job.
type MarkDeliveryRetryParams struct {
	ID            uuid.UUID
	NextAttemptAt time.Time
	LastError     string
}

// MarkDeliveryRetry increments attempt and returns the job to PENDING with a
// backed-off next_attempt_at.
func (q *Queries) MarkDeliveryRetry(ctx context.Context, arg MarkDeliveryRetryParams) error {
	_, err := q.db.Exec(ctx, `
		UPDATE public.delivery_jobs SET state = 'PENDING', attempt = attempt + 1,
			next_attempt_at = $2, last_error = $3, lease_owner = NULL, lease_expires_at = NULL,
			updated_at = now()
		WHERE id = $1
	`, arg.ID, arg.NextAttemptAt, arg.LastError)
	return err
}

// MarkDeliveryDead transitions a job to DEAD (dead-letter) after exhausting
// max_attempts.
func (q *Queries) MarkDeliveryDead(ctx context.Context, id uuid.UUID, lastError string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE public.delivery_jobs SET state = 'DEAD', attempt = attempt + 1, last_error = $2,
			lease_owner = NULL, lease_expires_at = NULL, updated_at = now()
		WHERE id = $1
	`, id, lastError)
	return err
}

// ReleaseExpiredLeases reverts IN_FLIGHT jobs whose lease has expired back to
// PENDING. Called periodically and on worker shutdown, so a crashed worker's
// claims are eventually re-runnable.
func (q *Queries) ReleaseExpiredLeases(ctx context.Context) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE public.delivery_jobs SET state = 'PENDING', lease_owner = NULL, lease_expires_at = NULL,
			updated_at = now()
		WHERE state = 'IN_FLIGHT' AND lease_expires_at < now()
	`)
	if err != nil {
		return 0, fmt.Errorf("releasing expired leases: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListDeliveryJobsParams filters the admin read API over delivery jobs.
type ListDeliveryJobsParams struct {
	TenantID uuid.UUID
	State    *string
	Limit    int32
	Offset   int32
}

// ListDeliveryJobs returns jobs for a tenant, most recent first. Always
// filtered by tenant_id — delivery_jobs lives in public but is still
// tenant-scoped data.
func (q *Queries) ListDeliveryJobs(ctx context.Context, arg ListDeliveryJobsParams) ([]DeliveryJob, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+deliveryJobColumns+` FROM public.delivery_jobs
		WHERE tenant_id = $1 AND ($2::text IS NULL OR state = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, arg.TenantID, arg.State, arg.Limit, arg.Offset)
	if err != nil {
		return nil, fmt.Errorf("querying delivery_jobs: %w", err)
	}
	defer rows.Close()

	var out []DeliveryJob
	for rows.Next() {
		j, err := scanDeliveryJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery_job row: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
