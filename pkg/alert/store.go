package alert

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/wisbric/pulse/internal/db"
)

// Store provides read/lifecycle operations for the admin alert API. Opening
// and closing alerts from the Evaluator goes through Deduplicator instead —
// Store never creates an alert, only reads and acknowledges/closes one an
// operator is looking at.
type Store struct {
	q *db.Queries
}

// NewStore creates an alert Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{q: db.New(dbtx)}
}

// Get returns a single alert by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Response, error) {
	row, err := s.q.GetAlert(ctx, id)
	if err != nil {
		return Response{}, err
	}
	return rowToResponse(row), nil
}

// ListParams filters the admin alert listing.
type ListParams struct {
	Status   string
	DeviceID string
	Limit    int32
	Offset   int32
}

// List returns alerts for the current tenant schema.
func (s *Store) List(ctx context.Context, f ListParams) ([]Response, error) {
	arg := db.ListAlertsParams{Limit: f.Limit, Offset: f.Offset}
	if f.Status != "" {
		arg.Status = &f.Status
	}
	if f.DeviceID != "" {
		arg.DeviceID = &f.DeviceID
	}

	rows, err := s.q.ListAlerts(ctx, arg)
	if err != nil {
		return nil, fmt.Errorf("listing alerts: %w", err)
	}

	out := make([]Response, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToResponse(r))
	}
	return out, nil
}

// Acknowledge transitions an OPEN alert to ACKED and returns its new state.
func (s *Store) Acknowledge(ctx context.Context, id uuid.UUID) (Response, error) {
	if err := s.q.AcknowledgeAlert(ctx, id); err != nil {
		return Response{}, fmt.Errorf("acknowledging alert: %w", err)
	}
	row, err := s.q.GetAlert(ctx, id)
	if err != nil {
		return Response{}, fmt.Errorf("fetching acknowledged alert: %w", err)
	}
	return rowToResponse(row), nil
}

// Close transitions an OPEN alert to CLOSED (an operator-initiated close,
// distinct from the Evaluator's automatic close-on-recovery) and returns its
// new state.
func (s *Store) Close(ctx context.Context, id uuid.UUID) (Response, error) {
	if err := s.q.CloseAlert(ctx, id); err != nil {
		return Response{}, fmt.Errorf("closing alert: %w", err)
	}
	row, err := s.q.GetAlert(ctx, id)
	if err != nil {
		return Response{}, fmt.Errorf("fetching closed alert: %w", err)
	}
	return rowToResponse(row), nil
}
