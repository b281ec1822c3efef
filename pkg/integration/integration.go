// Package integration implements the Integration entity: a
// tenant-owned outbound destination of one of four kinds (webhook, snmp,
// email, mqtt) with kind-specific configuration. The delivery worker decodes
// these configs to execute jobs; the admin API manages them.
package integration

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/pulse/internal/db"
)

// Integration kinds.
const (
	KindWebhook = "webhook"
	KindSNMP    = "snmp"
	KindEmail   = "email"
	KindMQTT    = "mqtt"
)

// IsValidKind reports whether kind is one of the four integration kinds.
func IsValidKind(kind string) bool {
	switch kind {
	case KindWebhook, KindSNMP, KindEmail, KindMQTT:
		return true
	}
	return false
}

// WebhookConfig configures an HTTP POST destination.
type WebhookConfig struct {
	URL        string `json:"url"`
	HMACSecret string `json:"hmac_secret,omitempty"`
}

// SNMPConfig configures a trap destination. Version is "2c" or "3"; the v3
// fields are required only for version 3.
type SNMPConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port,omitempty"` // default 162
	Version       string `json:"version"`        // "2c" | "3"
	Community     string `json:"community,omitempty"`
	V3User        string `json:"v3_user,omitempty"`
	V3AuthProto   string `json:"v3_auth_proto,omitempty"` // SHA | MD5
	V3AuthPass    string `json:"v3_auth_pass,omitempty"`
	V3PrivProto   string `json:"v3_priv_proto,omitempty"` // AES | DES
	V3PrivPass    string `json:"v3_priv_pass,omitempty"`
	EnterpriseOID string `json:"enterprise_oid,omitempty"`
}

// EmailConfig configures an SMTP destination.
type EmailConfig struct {
	Host     string   `json:"host"`
	Port     int      `json:"port,omitempty"` // default 587
	From     string   `json:"from"`
	To       []string `json:"to"`
	Username string   `json:"username,omitempty"`
	Password string   `json:"password,omitempty"`
	StartTLS bool     `json:"starttls"`
}

// MQTTConfig configures a publish to a customer-owned broker.
type MQTTConfig struct {
	BrokerURL     string `json:"broker_url"`
	TopicTemplate string `json:"topic_template"` // e.g. "alerts/{device_id}"
	QoS           byte   `json:"qos"`
	Retain        bool   `json:"retain"`
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"`
}

// ValidateConfig decodes and sanity-checks a kind-specific config blob. It
// is called at integration create/update time so the delivery worker can
// assume stored configs decode cleanly.
func ValidateConfig(kind string, raw json.RawMessage) error {
	switch kind {
	case KindWebhook:
		var c WebhookConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return fmt.Errorf("decoding webhook config: %w", err)
		}
		if c.URL == "" {
			return fmt.Errorf("webhook config requires url")
		}
	case KindSNMP:
		var c SNMPConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return fmt.Errorf("decoding snmp config: %w", err)
		}
		if c.Host == "" {
			return fmt.Errorf("snmp config requires host")
		}
		switch c.Version {
		case "2c":
			if c.Community == "" {
				return fmt.Errorf("snmp v2c config requires community")
			}
		case "3":
			if c.V3User == "" || c.V3AuthPass == "" || c.V3PrivPass == "" {
				return fmt.Errorf("snmp v3 config requires v3_user, v3_auth_pass, and v3_priv_pass")
			}
		default:
			return fmt.Errorf("snmp version must be \"2c\" or \"3\"")
		}
	case KindEmail:
		var c EmailConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return fmt.Errorf("decoding email config: %w", err)
		}
		if c.Host == "" || c.From == "" || len(c.To) == 0 {
			return fmt.Errorf("email config requires host, from, and at least one recipient")
		}
		for _, rcpt := range c.To {
			if _, err := mail.ParseAddress(rcpt); err != nil {
				return fmt.Errorf("invalid recipient %q: %w", rcpt, err)
			}
		}
		if _, err := mail.ParseAddress(c.From); err != nil {
			return fmt.Errorf("invalid from address %q: %w", c.From, err)
		}
	case KindMQTT:
		var c MQTTConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return fmt.Errorf("decoding mqtt config: %w", err)
		}
		if c.BrokerURL == "" || c.TopicTemplate == "" {
			return fmt.Errorf("mqtt config requires broker_url and topic_template")
		}
		if c.QoS > 2 {
			return fmt.Errorf("mqtt qos must be 0, 1, or 2")
		}
	default:
		return fmt.Errorf("unknown integration kind %q", kind)
	}
	return nil
}

// Response is the API/read representation of an integration. Config is
// returned as stored; callers are expected to manage secrets via dedicated
// secret stores if the deployment requires it.
type Response struct {
	ID        uuid.UUID       `json:"id"`
	Kind      string          `json:"kind"`
	Name      string          `json:"name"`
	Config    json.RawMessage `json:"config"`
	Enabled   bool            `json:"enabled"`
	CreatedAt time.Time       `json:"created_at"`
}

func rowToResponse(i db.Integration) Response {
	return Response{
		ID:        i.ID,
		Kind:      i.Kind,
		Name:      i.Name,
		Config:    i.Config,
		Enabled:   i.Enabled,
		CreatedAt: i.CreatedAt,
	}
}
