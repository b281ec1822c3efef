package route

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/pulse/internal/audit"
	"github.com/wisbric/pulse/internal/db"
	"github.com/wisbric/pulse/internal/httpserver"
	"github.com/wisbric/pulse/internal/tenant"
	"github.com/wisbric/pulse/pkg/alert"
)

// Handler provides HTTP handlers for the route admin API.
type Handler struct {
	logger *slog.Logger
	audit  *audit.Writer
}

// NewHandler creates a Handler.
func NewHandler(logger *slog.Logger, audit *audit.Writer) *Handler {
	return &Handler{logger: logger, audit: audit}
}

// Routes returns a chi.Router with route endpoints mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDelete)
	return r
}

type createRequest struct {
	IntegrationID   uuid.UUID       `json:"integration_id" validate:"required"`
	Name            string          `json:"name" validate:"required,max=128"`
	MinSeverity     string          `json:"min_severity" validate:"required"`
	AlertTypes      []string        `json:"alert_types"`
	DeviceSelector  json.RawMessage `json:"device_selector"`
	ThrottleSeconds int32           `json:"throttle_seconds" validate:"gte=0"`
	Template        string          `json:"template"`
	Enabled         *bool           `json:"enabled"`
}

func (req *createRequest) check(w http.ResponseWriter) bool {
	if !alert.IsValidSeverity(req.MinSeverity) {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "unknown min_severity")
		return false
	}
	for _, at := range req.AlertTypes {
		if at != alert.TypeNoHeartbeat && at != alert.TypeThreshold {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "unknown alert type "+at)
			return false
		}
	}
	if _, err := ParseSelector(req.DeviceSelector); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid device_selector")
		return false
	}
	return true
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ti := tenant.FromContext(ctx)
	conn := tenant.ConnFromContext(ctx)

	var req createRequest
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

	row, err := db.New(conn).CreateRoute(ctx, db.CreateRouteParams{
		TenantID:        ti.ID,
		IntegrationID:   req.IntegrationID,
		Name:            req.Name,
		MinSeverity:     req.MinSeverity,
		AlertTypes:      req.AlertTypes,
		DeviceSelector:  req.DeviceSelector,
		ThrottleSeconds: req.ThrottleSeconds,
		Template:        req.Template,
		Enabled:         enabled,
	})
	if err != nil {
		h.logger.Error("creating route", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create route")
		return
	}

	if h.audit != nil {
		detail, _ := json.Marshal(map[string]string{"name": row.Name})
		h.audit.LogFromRequest(r, "create", "route", row.ID, detail)
	}

	httpserver.Respond(w, http.StatusCreated, rowToResponse(row))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn := tenant.ConnFromContext(ctx)

	rows, err := db.New(conn).ListRoutes(ctx)
	if err != nil {
		h.logger.Error("listing routes", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list routes")
		return
	}

	out := make([]Response, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToResponse(row))
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"routes": out, "count": len(out)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn := tenant.ConnFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid route ID")
		return
	}

	row, err := db.New(conn).GetRoute(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "route not found")
			return
		}
		h.logger.Error("getting route", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get route")
		return
	}

	httpserver.Respond(w, http.StatusOK, rowToResponse(row))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn := tenant.ConnFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid route ID")
		return
	}

	var req createRequest
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

	row, err := db.New(conn).UpdateRoute(ctx, db.UpdateRouteParams{
		ID:              id,
		MinSeverity:     req.MinSeverity,
		AlertTypes:      req.AlertTypes,
		DeviceSelector:  req.DeviceSelector,
		ThrottleSeconds: req.ThrottleSeconds,
		Template:        req.Template,
		Enabled:         enabled,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "route not found")
			return
		}
		h.logger.Error("updating route", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to update route")
		return
	}

	if h.audit != nil {
		detail, _ := json.Marshal(map[string]bool{"enabled": enabled})
		h.audit.LogFromRequest(r, "update", "route", row.ID, detail)
	}

	httpserver.Respond(w, http.StatusOK, rowToResponse(row))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn := tenant.ConnFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid route ID")
		return
	}

	if err := db.New(conn).DeleteRoute(ctx, id); err != nil {
		h.logger.Error("deleting route", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to delete route")
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "delete", "route", id, nil)
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}
