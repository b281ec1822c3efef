// Package operator implements the cross-tenant operator surface: tenant
// provisioning and lifecycle. It is mounted behind the operator role and
// tenant.OperatorMiddleware, so every request is audited before any query
// it triggers executes.
package operator

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/pulse/internal/db"
	"github.com/wisbric/pulse/internal/httpserver"
	"github.com/wisbric/pulse/internal/tenant"
)

// Handler provides the operator-facing tenant management API.
type Handler struct {
	pool        *pgxpool.Pool
	provisioner *tenant.Provisioner
	logger      *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(pool *pgxpool.Pool, provisioner *tenant.Provisioner, logger *slog.Logger) *Handler {
	return &Handler{pool: pool, provisioner: provisioner, logger: logger}
}

// Routes returns a chi.Router with tenant management routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleProvision)
	r.Delete("/{slug}", h.handleDeprovision)
	return r
}

type provisionRequest struct {
	Name   string          `json:"name" validate:"required,max=128"`
	Slug   string          `json:"slug" validate:"required,max=63"`
	Config json.RawMessage `json:"config"`
}

func (h *Handler) handleProvision(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	info, err := h.provisioner.Provision(r.Context(), req.Name, req.Slug, req.Config)
	if err != nil {
		h.logger.Error("provisioning tenant", "slug", req.Slug, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to provision tenant")
		return
	}

	httpserver.Respond(w, http.StatusCreated, map[string]any{
		"id":     info.ID,
		"name":   info.Name,
		"slug":   info.Slug,
		"schema": info.Schema,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tenants, err := db.New(h.pool).ListTenants(r.Context())
	if err != nil {
		h.logger.Error("listing tenants", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list tenants")
		return
	}

	type item struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Slug string `json:"slug"`
	}
	out := make([]item, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, item{ID: t.ID.String(), Name: t.Name, Slug: t.Slug})
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"tenants": out, "count": len(out)})
}

func (h *Handler) handleDeprovision(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if err := h.provisioner.Deprovision(r.Context(), slug); err != nil {
		h.logger.Error("deprovisioning tenant", "slug", slug, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to deprovision tenant")
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}
