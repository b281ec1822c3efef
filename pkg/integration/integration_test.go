package integration

import (
	"encoding/json"
	"testing"
)

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		config  string
		wantErr bool
	}{
		{"webhook ok", KindWebhook, `{"url":"https://example.com/hook"}`, false},
		{"webhook with hmac", KindWebhook, `{"url":"https://example.com/hook","hmac_secret":"s3cret"}`, false},
		{"webhook missing url", KindWebhook, `{}`, true},
		{"snmp v2c ok", KindSNMP, `{"host":"203.0.113.9","version":"2c","community":"public"}`, false},
		{"snmp v2c missing community", KindSNMP, `{"host":"203.0.113.9","version":"2c"}`, true},
		{"snmp v3 ok", KindSNMP, `{"host":"203.0.113.9","version":"3","v3_user":"ops","v3_auth_pass":"a","v3_priv_pass":"p"}`, false},
		{"snmp v3 missing creds", KindSNMP, `{"host":"203.0.113.9","version":"3","v3_user":"ops"}`, true},
		{"snmp bad version", KindSNMP, `{"host":"203.0.113.9","version":"1"}`, true},
		{"email ok", KindEmail, `{"host":"smtp.example.com","from":"pulse@example.com","to":["ops@example.com"],"starttls":true}`, false},
		{"email bad recipient", KindEmail, `{"host":"smtp.example.com","from":"pulse@example.com","to":["not an address"]}`, true},
		{"email no recipients", KindEmail, `{"host":"smtp.example.com","from":"pulse@example.com","to":[]}`, true},
		{"mqtt ok", KindMQTT, `{"broker_url":"tcp://broker.example.com:1883","topic_template":"alerts/{device_id}","qos":1}`, false},
		{"mqtt missing topic", KindMQTT, `{"broker_url":"tcp://broker.example.com:1883"}`, true},
		{"mqtt bad qos", KindMQTT, `{"broker_url":"tcp://broker.example.com:1883","topic_template":"alerts","qos":3}`, true},
		{"unknown kind", "pager", `{}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.kind, json.RawMessage(tt.config))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig(%s) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
		})
	}
}

func TestIsValidKind(t *testing.T) {
	for _, kind := range []string{KindWebhook, KindSNMP, KindEmail, KindMQTT} {
		if !IsValidKind(kind) {
			t.Errorf("IsValidKind(%s) = false", kind)
		}
	}
	if IsValidKind("carrier-pigeon") {
		t.Error("IsValidKind accepted an unknown kind")
	}
}
