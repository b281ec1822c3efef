// Package alertrule implements the Alert Rule admin API:
// customer-defined threshold rules the Evaluator applies every tick.
package alertrule

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/pulse/internal/audit"
	"github.com/wisbric/pulse/internal/db"
	"github.com/wisbric/pulse/internal/httpserver"
	"github.com/wisbric/pulse/internal/tenant"
	"github.com/wisbric/pulse/pkg/alert"
	"github.com/wisbric/pulse/pkg/route"
)

// Handler provides HTTP handlers for the alert rule admin API.
type Handler struct {
	logger *slog.Logger
	audit  *audit.Writer
}

// NewHandler creates a Handler.
func NewHandler(logger *slog.Logger, audit *audit.Writer) *Handler {
	return &Handler{logger: logger, audit: audit}
}

// Routes returns a chi.Router with alert rule routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDelete)
	return r
}

// Response is the API representation of an alert rule.
type Response struct {
	ID             uuid.UUID       `json:"id"`
	MetricName     string          `json:"metric_name"`
	Comparator     string          `json:"comparator"`
	Threshold      float64         `json:"threshold"`
	DeviceSelector json.RawMessage `json:"device_selector"`
	Severity       string          `json:"severity"`
	Enabled        bool            `json:"enabled"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func rowToResponse(r db.AlertRule) Response {
	return Response{
		ID:             r.ID,
		MetricName:     r.MetricName,
		Comparator:     r.Comparator,
		Threshold:      r.Threshold,
		DeviceSelector: r.DeviceSelector,
		Severity:       r.Severity,
		Enabled:        r.Enabled,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

type ruleRequest struct {
	MetricName     string          `json:"metric_name" validate:"required,max=128"`
	Comparator     string          `json:"comparator" validate:"required,oneof=GT GTE LT LTE"`
	Threshold      float64         `json:"threshold"`
	DeviceSelector json.RawMessage `json:"device_selector"`
	Severity       string          `json:"severity" validate:"required"`
	Enabled        *bool           `json:"enabled"`
}

func (req *ruleRequest) check(w http.ResponseWriter) bool {
	if !alert.IsValidSeverity(req.Severity) {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "unknown severity")
		return false
	}
	// Threshold comparisons are total over finite numbers;
	// a NaN/Inf threshold would make the rule unsatisfiable or always-on.
	if math.IsNaN(req.Threshold) || math.IsInf(req.Threshold, 0) {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "threshold must be finite")
		return false
	}
	if _, err := route.ParseSelector(req.DeviceSelector); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid device_selector")
		return false
	}
	return true
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ti := tenant.FromContext(ctx)
	conn := tenant.ConnFromContext(ctx)

	var req ruleRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if !req.check(w) {
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	row, err := db.New(conn).CreateAlertRule(ctx, db.CreateAlertRuleParams{
		TenantID:       ti.ID,
		MetricName:     req.MetricName,
		Comparator:     req.Comparator,
		Threshold:      req.Threshold,
		DeviceSelector: req.DeviceSelector,
		Severity:       req.Severity,
		Enabled:        enabled,
	})
	if err != nil {
		h.logger.Error("creating alert rule", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create rule")
		return
	}

	if h.audit != nil {
		detail, _ := json.Marshal(map[string]any{"metric": row.MetricName, "comparator": row.Comparator, "threshold": row.Threshold})
		h.audit.LogFromRequest(r, "create", "alert_rule", row.ID, detail)
	}

	httpserver.Respond(w, http.StatusCreated, rowToResponse(row))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn := tenant.ConnFromContext(ctx)

	rows, err := db.New(conn).ListAlertRules(ctx)
	if err != nil {
		h.logger.Error("listing alert rules", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list rules")
		return
	}

	out := make([]Response, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToResponse(row))
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"rules": out, "count": len(out)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn := tenant.ConnFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid rule ID")
		return
	}

	row, err := db.New(conn).GetAlertRule(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "rule not found")
			return
		}
		h.logger.Error("getting alert rule", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get rule")
		return
	}

	httpserver.Respond(w, http.StatusOK, rowToResponse(row))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn := tenant.ConnFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid rule ID")
		return
	}

	var req ruleRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if !req.check(w) {
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	row, err := db.New(conn).UpdateAlertRule(ctx, db.UpdateAlertRuleParams{
		ID:             id,
		Comparator:     req.Comparator,
		Threshold:      req.Threshold,
		DeviceSelector: req.DeviceSelector,
		Severity:       req.Severity,
		Enabled:        enabled,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "rule not found")
			return
		}
		h.logger.Error("updating alert rule", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to update rule")
		return
	}

	if h.audit != nil {
		detail, _ := json.Marshal(map[string]bool{"enabled": enabled})
		h.audit.LogFromRequest(r, "update", "alert_rule", row.ID, detail)
	}

	httpserver.Respond(w, http.StatusOK, rowToResponse(row))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn := tenant.ConnFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid rule ID")
		return
	}

	if err := db.New(conn).DeleteAlertRule(ctx, id); err != nil {
		h.logger.Error("deleting alert rule", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to delete rule")
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "delete", "alert_rule", id, nil)
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}
