package delivery

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/pulse/internal/db"
	"github.com/wisbric/pulse/internal/httpserver"
	"github.com/wisbric/pulse/internal/tenant"
)

// Handler provides the read API over delivery jobs — primarily for
// inspecting the dead-letter queue and retry state.
type Handler struct {
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger}
}

// Routes returns a chi.Router with delivery job routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ti := tenant.FromContext(ctx)
	conn := tenant.ConnFromContext(ctx)

	arg := db.ListDeliveryJobsParams{TenantID: ti.ID, Limit: 50}
	if v := r.URL.Query().Get("state"); v != "" {
		arg.State = &v
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			arg.Limit = int32(n)
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			arg.Offset = int32(n)
		}
	}

	rows, err := db.New(conn).ListDeliveryJobs(ctx, arg)
	if err != nil {
		h.logger.Error("listing delivery jobs", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list delivery jobs")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"jobs": rows, "count": len(rows)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ti := tenant.FromContext(ctx)
	conn := tenant.ConnFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid job ID")
		return
	}

	job, err := db.New(conn).GetDeliveryJob(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "delivery job not found")
			return
		}
		h.logger.Error("getting delivery job", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get delivery job")
		return
	}

	// delivery_jobs lives in public; enforce tenant scoping explicitly.
	if job.TenantID != ti.ID {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "delivery job not found")
		return
	}

	httpserver.Respond(w, http.StatusOK, job)
}
