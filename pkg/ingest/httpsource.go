package ingest

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// maxBatchMessages bounds the batch ingress endpoint.
const maxBatchMessages = 100

// batchEnvelope is one message within a batch POST body.
type batchEnvelope struct {
	MsgType string          `json:"msg_type"`
	SiteID  string          `json:"site_id"`
	Seq     int64           `json:"seq"`
	Metrics json.RawMessage `json:"metrics,omitempty"`
}

// HTTPSource is the device HTTP ingress:
// POST /ingest/v1/tenant/{tenant_id}/device/{device_id}/telemetry.
type HTTPSource struct {
	pool *Pool
}

// NewHTTPSource creates an HTTP ingress bound to the given worker pool.
func NewHTTPSource(pool *Pool) *HTTPSource {
	return &HTTPSource{pool: pool}
}

// Routes mounts the ingress endpoints on r.
func (s *HTTPSource) Routes(r chi.Router) {
	r.Post("/tenant/{tenant_id}/device/{device_id}/telemetry", s.handleSingle)
	r.Post("/tenant/{tenant_id}/device/{device_id}/heartbeat", s.handleSingle)
	r.Post("/tenant/{tenant_id}/device/{device_id}/batch", s.handleBatch)
}

func (s *HTTPSource) handleSingle(w http.ResponseWriter, r *http.Request) {
	tenantID, deviceID, ok := s.pathIDs(w, r)
	if !ok {
		return
	}

	var env batchEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}
	if env.SiteID == "" {
		http.Error(w, "missing site_id", http.StatusBadRequest)
		return
	}

	msg := s.toRawMessage(tenantID, deviceID, r, env)
	if strings.HasSuffix(r.URL.Path, "/heartbeat") {
		msg.MsgType = MsgHeartbeat
	}
	if !s.pool.Submit(msg) {
		http.Error(w, "ingestion queue full", http.StatusTooManyRequests)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *HTTPSource) handleBatch(w http.ResponseWriter, r *http.Request) {
	tenantID, deviceID, ok := s.pathIDs(w, r)
	if !ok {
		return
	}

	var batch []batchEnvelope
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}
	if len(batch) == 0 {
		http.Error(w, "empty batch", http.StatusBadRequest)
		return
	}
	if len(batch) > maxBatchMessages {
		http.Error(w, "batch exceeds maximum size", http.StatusBadRequest)
		return
	}

	for _, env := range batch {
		if env.SiteID == "" {
			http.Error(w, "malformed payload", http.StatusBadRequest)
			return
		}
		msg := s.toRawMessage(tenantID, deviceID, r, env)
		if !s.pool.Submit(msg) {
			http.Error(w, "ingestion queue full", http.StatusTooManyRequests)
			return
		}
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *HTTPSource) pathIDs(w http.ResponseWriter, r *http.Request) (uuid.UUID, string, bool) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "tenant_id"))
	if err != nil {
		http.Error(w, "malformed tenant_id", http.StatusBadRequest)
		return uuid.Nil, "", false
	}
	deviceID := chi.URLParam(r, "device_id")
	if deviceID == "" {
		http.Error(w, "missing device_id", http.StatusBadRequest)
		return uuid.Nil, "", false
	}
	return tenantID, deviceID, true
}

func (s *HTTPSource) toRawMessage(tenantID uuid.UUID, deviceID string, r *http.Request, env batchEnvelope) RawMessage {
	msgType := MsgTelemetry
	if env.MsgType == string(MsgHeartbeat) {
		msgType = MsgHeartbeat
	}
	return RawMessage{
		TenantID:        tenantID,
		DeviceID:        deviceID,
		MsgType:         msgType,
		SiteID:          env.SiteID,
		Seq:             env.Seq,
		Metrics:         env.Metrics,
		ProvisionToken:  r.Header.Get("X-Provision-Token"),
		ObservedAtNanos: time.Now().UnixNano(),
	}
}
