package delivery

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/wisbric/pulse/pkg/addrguard"
	"github.com/wisbric/pulse/pkg/integration"
)

// WebhookSender POSTs the payload as JSON, optionally signing the body with
// an HMAC-SHA256 header. Success is any 2xx status.
type WebhookSender struct {
	client *http.Client
	guard  *addrguard.Guard
}

// NewWebhookSender creates a WebhookSender. client should carry the
// configured delivery request timeout.
func NewWebhookSender(client *http.Client, guard *addrguard.Guard) *WebhookSender {
	return &WebhookSender{client: client, guard: guard}
}

// Kind implements Sender.
func (s *WebhookSender) Kind() string { return integration.KindWebhook }

// Send implements Sender.
func (s *WebhookSender) Send(ctx context.Context, config json.RawMessage, p Payload) error {
	var cfg integration.WebhookConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return fmt.Errorf("decoding webhook config: %w", err)
	}

	if err := s.guard.CheckURL(ctx, cfg.URL); err != nil {
		return fmt.Errorf("destination rejected: %w", err)
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-ID", p.CorrelationID)

	if cfg.HMACSecret != "" {
		mac := hmac.New(sha256.New, []byte(cfg.HMACSecret))
		mac.Write(body)
		req.Header.Set("X-Pulse-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
