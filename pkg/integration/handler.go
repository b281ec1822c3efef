package integration

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
)

// Handler provides HTTP handlers for the integration admin API.
type Handler struct {
	logger *slog.Logger
	audit  *audit.Writer
}

// NewHandler creates a Handler.
func NewHandler(logger *slog.Logger, audit *audit.Writer) *Handler {
	return &Handler{logger: logger, audit: audit}
}

// Routes returns a chi.Router with integration endpoints mounted.
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
	Kind    string          `json:"kind" validate:"required"`
	Name    string          `json:"name" validate:"required,max=128"`
	Config  json.RawMessage `json:"config" validate:"required"`
	Enabled *bool           `json:"enabled"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ti := tenant.FromContext(ctx)
	conn := tenant.ConnFromContext(ctx)

	var req createRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if !IsValidKind(req.Kind) {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "unknown integration kind")
		return
	}
	if err := ValidateConfig(req.Kind, req.Config); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	row, err := db.New(conn).CreateIntegration(ctx, db.CreateIntegrationParams{
		TenantID: ti.ID,
		Kind:     req.Kind,
		Name:     req.Name,
		Config:   req.Config,
		Enabled:  enabled,
	})
	if err != nil {
		h.logger.Error("creating integration", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create integration")
		return
	}

	if h.audit != nil {
		detail, _ := json.Marshal(map[string]string{"kind": row.Kind, "name": row.Name})
		h.audit.LogFromRequest(r, "create", "integration", row.ID, detail)
	}

	httpserver.Respond(w, http.StatusCreated, rowToResponse(row))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn := tenant.ConnFromContext(ctx)

	rows, err := db.New(conn).ListIntegrations(ctx)
	if err != nil {
		h.logger.Error("listing integrations", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list integrations")
		return
	}

	out := make([]Response, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToResponse(row))
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"integrations": out, "count": len(out)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn := tenant.ConnFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid integration ID")
		return
	}

	row, err := db.New(conn).GetIntegration(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "integration not found")
			return
		}
		h.logger.Error("getting integration", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get integration")
		return
	}

	httpserver.Respond(w, http.StatusOK, rowToResponse(row))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn := tenant.ConnFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid integration ID")
		return
	}

	var req createRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if !IsValidKind(req.Kind) {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "unknown integration kind")
		return
	}
	if err := ValidateConfig(req.Kind, req.Config); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	row, err := db.New(conn).UpdateIntegration(ctx, db.UpdateIntegrationParams{
		ID:      id,
		Name:    req.Name,
		Config:  req.Config,
		Enabled: enabled,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "integration not found")
			return
		}
		h.logger.Error("updating integration", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to update integration")
		return
	}

	if h.audit != nil {
		detail, _ := json.Marshal(map[string]bool{"enabled": enabled})
		h.audit.LogFromRequest(r, "update", "integration", row.ID, detail)
	}

	httpserver.Respond(w, http.StatusOK, rowToResponse(row))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn := tenant.ConnFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid integration ID")
		return
	}

	if err := db.New(conn).DeleteIntegration(ctx, id); err != nil {
		h.logger.Error("deleting integration", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to delete integration")
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "delete", "integration", id, nil)
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}
