package alert

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/pulse/internal/audit"
	"github.com/wisbric/pulse/internal/httpserver"
	"github.com/wisbric/pulse/internal/tenant"
)

// Handler provides HTTP handlers for the alert admin read/lifecycle API.
type Handler struct {
	logger *slog.Logger
	audit  *audit.Writer
}

// NewHandler creates a Handler.
func NewHandler(logger *slog.Logger, audit *audit.Writer) *Handler {
	return &Handler{logger: logger, audit: audit}
}

// Routes returns a chi.Router with alert routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Patch("/{id}/acknowledge", h.handleAcknowledge)
	r.Patch("/{id}/close", h.handleClose)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn := tenant.ConnFromContext(ctx)

	f := ListParams{
		Status:   r.URL.Query().Get("status"),
		DeviceID: r.URL.Query().Get("device_id"),
		Limit:    50,
		Offset:   0,
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			f.Limit = int32(n)
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			f.Offset = int32(n)
		}
	}

	alerts, err := NewStore(conn).List(ctx, f)
	if err != nil {
		h.logger.Error("listing alerts", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list alerts")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn := tenant.ConnFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid alert ID")
		return
	}

	resp, err := NewStore(conn).Get(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "alert not found")
			return
		}
		h.logger.Error("getting alert", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get alert")
		return
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn := tenant.ConnFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid alert ID")
		return
	}

	resp, err := NewStore(conn).Acknowledge(ctx, id)
	if err != nil {
		h.logger.Error("acknowledging alert", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to acknowledge alert")
		return
	}

	if h.audit != nil {
		detail, _ := json.Marshal(map[string]string{"fingerprint": resp.Fingerprint})
		h.audit.LogFromRequest(r, "acknowledge", "alert", resp.ID, detail)
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn := tenant.ConnFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid alert ID")
		return
	}

	resp, err := NewStore(conn).Close(ctx, id)
	if err != nil {
		h.logger.Error("closing alert", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to close alert")
		return
	}

	if h.audit != nil {
		detail, _ := json.Marshal(map[string]string{"fingerprint": resp.Fingerprint})
		h.audit.LogFromRequest(r, "close", "alert", resp.ID, detail)
	}

	httpserver.Respond(w, http.StatusOK, resp)
}
