package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/wisbric/pulse/pkg/addrguard"
	"github.com/wisbric/pulse/pkg/integration"
)

// MQTTSender publishes the payload to a customer-owned broker with the
// configured QoS and retain flags. The topic is templated from the alert;
// the correlation ID rides in the payload body since MQTT has no headers.
type MQTTSender struct {
	guard    *addrguard.Guard
	clientID string
}

// NewMQTTSender creates an MQTTSender. clientID should be unique per
// delivery process.
func NewMQTTSender(guard *addrguard.Guard, clientID string) *MQTTSender {
	return &MQTTSender{guard: guard, clientID: clientID}
}

// Kind implements Sender.
func (s *MQTTSender) Kind() string { return integration.KindMQTT }

// Send implements Sender.
func (s *MQTTSender) Send(ctx context.Context, config json.RawMessage, p Payload) error {
	var cfg integration.MQTTConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return fmt.Errorf("decoding mqtt config: %w", err)
	}

	u, err := url.Parse(cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("parsing broker URL: %w", err)
	}
	if err := s.guard.CheckHost(ctx, u.Hostname()); err != nil {
		return fmt.Errorf("destination rejected: %w", err)
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(s.clientID).
		SetConnectTimeout(5 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); !token.WaitTimeout(timeoutFrom(ctx)) || token.Error() != nil {
		return fmt.Errorf("connecting to broker: %w", tokenErr(token))
	}
	defer client.Disconnect(250)

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	topic := RenderTopic(cfg.TopicTemplate, p)
	token := client.Publish(topic, cfg.QoS, cfg.Retain, body)
	if !token.WaitTimeout(timeoutFrom(ctx)) || token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, tokenErr(token))
	}
	return nil
}

// RenderTopic substitutes alert variables into a topic template. The same
// placeholder names as route message templates apply where they make sense
// in a topic: {tenant_id}, {device_id}, {alert_type}, {severity}.
func RenderTopic(template string, p Payload) string {
	r := strings.NewReplacer(
		"{tenant_id}", p.TenantID.String(),
		"{device_id}", p.DeviceID,
		"{alert_type}", p.AlertType,
		"{severity}", p.Severity,
	)
	return r.Replace(template)
}

func timeoutFrom(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		return time.Until(deadline)
	}
	return 10 * time.Second
}

func tokenErr(token mqtt.Token) error {
	if err := token.Error(); err != nil {
		return err
	}
	return fmt.Errorf("timed out")
}
