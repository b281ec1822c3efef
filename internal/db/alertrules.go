package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AlertRule is a row of the tenant-scoped alert_rules table.
type AlertRule struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	MetricName     string
	Comparator     string // GT | GTE | LT | LTE
	Threshold      float64
	DeviceSelector json.RawMessage
	Severity       string
	Enabled        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const alertRuleColumns = `id, tenant_id, metric_name, comparator, threshold, device_selector, severity, enabled, created_at, updated_at`

func scanAlertRule(row interface{ Scan(dest ...any) error }) (AlertRule, error) {
	var r AlertRule
	err := row.Scan(&r.ID, &r.TenantID, &r.MetricName, &r.Comparator, &r.Threshold,
		&r.DeviceSelector, &r.Severity, &r.Enabled, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

// CreateAlertRuleParams holds the fields required to define a threshold rule.
type CreateAlertRuleParams struct {
	TenantID       uuid.UUID
	MetricName     string
	Comparator     string
	Threshold      float64
	DeviceSelector json.RawMessage
	Severity       string
	Enabled        bool
}

// CreateAlertRule inserts a new alert rule.
func (q *Queries) CreateAlertRule(ctx context.Context, arg CreateAlertRuleParams) (AlertRule, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO alert_rules (tenant_id, metric_name, comparator, threshold, device_selector, severity, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+alertRuleColumns,
		arg.TenantID, arg.MetricName, arg.Comparator, arg.Threshold, arg.DeviceSelector, arg.Severity, arg.Enabled)
	r, err := scanAlertRule(row)
	if err != nil {
		return AlertRule{}, fmt.Errorf("scanning alert_rule row: %w", err)
	}
	return r, nil
}

// GetAlertRule looks up a single alert rule by id.
func (q *Queries) GetAlertRule(ctx context.Context, id uuid.UUID) (AlertRule, error) {
	row := q.db.QueryRow(ctx, `SELECT `+alertRuleColumns+` FROM alert_rules WHERE id = $1`, id)
	return scanAlertRule(row)
}

// ListAlertRules returns every alert rule in the current tenant schema.
func (q *Queries) ListAlertRules(ctx context.Context) ([]AlertRule, error) {
	rows, err := q.db.Query(ctx, `SELECT `+alertRuleColumns+` FROM alert_rules ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("querying alert_rules: %w", err)
	}
	defer rows.Close()

	var out []AlertRule
	for rows.Next() {
		r, err := scanAlertRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning alert_rule row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListEnabledAlertRules returns enabled rules ordered by id for the Evaluator's
// stable tie-break on simultaneous threshold edges.
func (q *Queries) ListEnabledAlertRules(ctx context.Context) ([]AlertRule, error) {
	rows, err := q.db.Query(ctx, `SELECT `+alertRuleColumns+` FROM alert_rules WHERE enabled ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying enabled alert_rules: %w", err)
	}
	defer rows.Close()

	var out []AlertRule
	for rows.Next() {
		r, err := scanAlertRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning alert_rule row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateAlertRuleParams updates a mutable subset of an alert rule's fields.
type UpdateAlertRuleParams struct {
	ID             uuid.UUID
	Comparator     string
	Threshold      float64
	DeviceSelector json.RawMessage
	Severity       string
	Enabled        bool
}

// UpdateAlertRule updates an existing alert rule.
func (q *Queries) UpdateAlertRule(ctx context.Context, arg UpdateAlertRuleParams) (AlertRule, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE alert_rules SET comparator = $2, threshold = $3, device_selector = $4,
			severity = $5, enabled = $6, updated_at = now()
		WHERE id = $1
		RETURNING `+alertRuleColumns,
		arg.ID, arg.Comparator, arg.Threshold, arg.DeviceSelector, arg.Severity, arg.Enabled)
	return scanAlertRule(row)
}

// DeleteAlertRule removes an alert rule.
func (q *Queries) DeleteAlertRule(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM alert_rules WHERE id = $1`, id)
	return err
}
