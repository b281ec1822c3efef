// Package registry implements the Device Registry admin API:
// provisioning, listing, and revoking devices, plus the read model over
// quarantine events — the reject stream a device operator debugs against.
package registry

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
	"github.com/wisbric/pulse/internal/auth"
	"github.com/wisbric/pulse/internal/db"
	"github.com/wisbric/pulse/internal/httpserver"
	"github.com/wisbric/pulse/internal/tenant"
	"github.com/wisbric/pulse/pkg/devicecache"
)

// Handler provides HTTP handlers for the device registry admin API.
type Handler struct {
	logger    *slog.Logger
	audit     *audit.Writer
	tokenSalt string
	cache     *devicecache.Cache // nil outside ingest-colocated deployments
}

// NewHandler creates a Handler. cache may be nil; when set, device mutations
// invalidate the corresponding auth cache entry so a revocation takes effect
// without waiting out the TTL.
func NewHandler(logger *slog.Logger, audit *audit.Writer, tokenSalt string, cache *devicecache.Cache) *Handler {
	return &Handler{logger: logger, audit: audit, tokenSalt: tokenSalt, cache: cache}
}

// Routes returns a chi.Router with device registry routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{device_id}", h.handleGet)
	r.Get("/{device_id}/state", h.handleGetState)
	r.Patch("/{device_id}/revoke", h.handleRevoke)
	return r
}

// QuarantineRoutes returns the quarantine read API.
func (h *Handler) QuarantineRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleListQuarantine)
	return r
}

// deviceResponse is the API representation of a registry row. The token
// hash is never returned; RawToken is set only on the create response.
type deviceResponse struct {
	ID             uuid.UUID `json:"id"`
	DeviceID       string    `json:"device_id"`
	SiteID         string    `json:"site_id"`
	Status         string    `json:"status"`
	SubscriptionID *string   `json:"subscription_id,omitempty"`
	RawToken       string    `json:"provision_token,omitempty"`
}

func rowToResponse(d db.Device) deviceResponse {
	return deviceResponse{
		ID:             d.ID,
		DeviceID:       d.DeviceID,
		SiteID:         d.SiteID,
		Status:         d.Status,
		SubscriptionID: d.SubscriptionID,
	}
}

type createRequest struct {
	DeviceID       string  `json:"device_id" validate:"required,max=128"`
	SiteID         string  `json:"site_id" validate:"required,max=128"`
	SubscriptionID *string `json:"subscription_id"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ti := tenant.FromContext(ctx)
	conn := tenant.ConnFromContext(ctx)

	var req createRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	token, err := auth.NewProvisionToken()
	if err != nil {
		h.logger.Error("generating provision token", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to provision device")
		return
	}

	row, err := db.New(conn).CreateDevice(ctx, db.CreateDeviceParams{
		TenantID:           ti.ID,
		DeviceID:           req.DeviceID,
		SiteID:             req.SiteID,
		ProvisionTokenHash: auth.HashProvisionToken(h.tokenSalt, token),
		SubscriptionID:     req.SubscriptionID,
	})
	if err != nil {
		h.logger.Error("creating device", "error", err, "device_id", req.DeviceID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to provision device")
		return
	}

	if h.audit != nil {
		detail, _ := json.Marshal(map[string]string{"device_id": row.DeviceID, "site_id": row.SiteID})
		h.audit.LogFromRequest(r, "provision", "device", row.ID, detail)
	}

	resp := rowToResponse(row)
	resp.RawToken = token // returned exactly once
	httpserver.Respond(w, http.StatusCreated, resp)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn := tenant.ConnFromContext(ctx)

	arg := db.ListDevicesParams{Limit: 50}
	if v := r.URL.Query().Get("site_id"); v != "" {
		arg.SiteID = &v
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

	rows, err := db.New(conn).ListDevices(ctx, arg)
	if err != nil {
		h.logger.Error("listing devices", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list devices")
		return
	}

	out := make([]deviceResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToResponse(row))
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"devices": out, "count": len(out)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ti := tenant.FromContext(ctx)
	conn := tenant.ConnFromContext(ctx)

	deviceID := chi.URLParam(r, "device_id")
	row, err := db.New(conn).GetDevice(ctx, ti.ID, deviceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "device not found")
			return
		}
		h.logger.Error("getting device", "error", err, "device_id", deviceID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get device")
		return
	}

	httpserver.Respond(w, http.StatusOK, rowToResponse(row))
}

func (h *Handler) handleGetState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ti := tenant.FromContext(ctx)
	conn := tenant.ConnFromContext(ctx)

	deviceID := chi.URLParam(r, "device_id")
	state, err := db.New(conn).GetDeviceState(ctx, ti.ID, deviceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "device has never reported")
			return
		}
		h.logger.Error("getting device state", "error", err, "device_id", deviceID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get device state")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"device_id":          state.DeviceID,
		"liveness":           state.Liveness,
		"last_seen_at":       state.LastSeenAt,
		"last_known_site_id": state.LastKnownSiteID,
	})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ti := tenant.FromContext(ctx)
	conn := tenant.ConnFromContext(ctx)

	deviceID := chi.URLParam(r, "device_id")
	q := db.New(conn)

	row, err := q.GetDevice(ctx, ti.ID, deviceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "device not found")
			return
		}
		h.logger.Error("getting device for revoke", "error", err, "device_id", deviceID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to revoke device")
		return
	}

	updated, err := q.UpdateDeviceStatus(ctx, row.ID, "REVOKED")
	if err != nil {
		h.logger.Error("revoking device", "error", err, "device_id", deviceID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to revoke device")
		return
	}

	if h.cache != nil {
		h.cache.Invalidate(devicecache.Key{TenantID: ti.ID, DeviceID: deviceID})
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "revoke", "device", updated.ID, nil)
	}

	httpserver.Respond(w, http.StatusOK, rowToResponse(updated))
}

func (h *Handler) handleListQuarantine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn := tenant.ConnFromContext(ctx)

	arg := db.ListQuarantineParams{Limit: 50}
	if v := r.URL.Query().Get("reason"); v != "" {
		arg.Reason = &v
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

	rows, err := db.New(conn).ListQuarantineEvents(ctx, arg)
	if err != nil {
		h.logger.Error("listing quarantine events", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list quarantine events")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"events": rows, "count": len(rows)})
}
