package ingest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// MQTTSource is the device MQTT ingress: topic pattern
// tenant/{tenant_id}/device/{device_id}/{telemetry|
// heartbeat}. Broker-side ACLs are responsible for ensuring a device client
// can only publish under its own tenant_id/device_id; this source trusts the
// topic only as far as the validation chain (§4.3) re-verifies it.
type MQTTSource struct {
	client mqtt.Client
	pool   *Pool
	logger *slog.Logger
}

// NewMQTTSource connects to brokerURL and returns a source ready to
// Subscribe. clientID must be unique per ingest process.
func NewMQTTSource(brokerURL, clientID string, pool *Pool, logger *slog.Logger) (*MQTTSource, error) {
	s := &MQTTSource{pool: pool, logger: logger}

	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	s.client = mqtt.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to broker: %w", token.Error())
	}
	return s, nil
}

// Subscribe starts consuming tenant/+/device/+/telemetry and
// tenant/+/device/+/heartbeat.
func (s *MQTTSource) Subscribe() error {
	for _, suffix := range []string{"telemetry", "heartbeat"} {
		topic := "tenant/+/device/+/" + suffix
		if token := s.client.Subscribe(topic, 1, s.handleMessage); token.Wait() && token.Error() != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, token.Error())
		}
	}
	return nil
}

// Close disconnects from the broker.
func (s *MQTTSource) Close() {
	s.client.Disconnect(250)
}

func (s *MQTTSource) handleMessage(_ mqtt.Client, m mqtt.Message) {
	tenantID, deviceID, msgType, err := parseTopic(m.Topic())
	if err != nil {
		s.logger.Warn("mqtt: ignoring message on malformed topic", "topic", m.Topic(), "error", err)
		return
	}

	var env wireEnvelope
	if err := json.Unmarshal(m.Payload(), &env); err != nil {
		if !s.pool.Submit(RawMessage{
			TenantID:        tenantID,
			DeviceID:        deviceID,
			MsgType:         msgType,
			ObservedAtNanos: time.Now().UnixNano(),
			ViaBroker:       true,
			Malformed:       true,
		}) {
			s.logger.Warn("mqtt: ingestion queue full, message dropped", "tenant_id", tenantID, "device_id", deviceID)
		}
		return
	}

	if !s.pool.Submit(RawMessage{
		TenantID:        tenantID,
		DeviceID:        deviceID,
		MsgType:         msgType,
		SiteID:          env.SiteID,
		Seq:             env.Seq,
		Metrics:         env.Metrics,
		ObservedAtNanos: time.Now().UnixNano(),
		ViaBroker:       true,
	}) {
		s.logger.Warn("mqtt: ingestion queue full, message dropped", "tenant_id", tenantID, "device_id", deviceID)
	}
}

// parseTopic decodes tenant/{tenant_id}/device/{device_id}/{telemetry|heartbeat}.
func parseTopic(topic string) (uuid.UUID, string, MsgType, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0] != "tenant" || parts[2] != "device" {
		return uuid.Nil, "", "", fmt.Errorf("unexpected topic shape: %s", topic)
	}

	tenantID, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil, "", "", fmt.Errorf("parsing tenant_id: %w", err)
	}

	deviceID := parts[3]
	switch parts[4] {
	case string(MsgTelemetry):
		return tenantID, deviceID, MsgTelemetry, nil
	case string(MsgHeartbeat):
		return tenantID, deviceID, MsgHeartbeat, nil
	default:
		return uuid.Nil, "", "", fmt.Errorf("unknown message kind: %s", parts[4])
	}
}
