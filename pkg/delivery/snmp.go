package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/wisbric/pulse/pkg/addrguard"
	"github.com/wisbric/pulse/pkg/integration"
)

// pulseEnterpriseOID is the default enterprise OID for trap varbinds when an
// integration doesn't configure its own.
const pulseEnterpriseOID = ".1.3.6.1.4.1.55555"

// SNMPSender transmits the payload as an SNMPv2c or SNMPv3 trap. Success is
// the trap being handed to the transport — traps are UDP and
// carry no application-level acknowledgment.
type SNMPSender struct {
	guard *addrguard.Guard
}

// NewSNMPSender creates an SNMPSender.
func NewSNMPSender(guard *addrguard.Guard) *SNMPSender {
	return &SNMPSender{guard: guard}
}

// Kind implements Sender.
func (s *SNMPSender) Kind() string { return integration.KindSNMP }

// Send implements Sender.
func (s *SNMPSender) Send(ctx context.Context, config json.RawMessage, p Payload) error {
	var cfg integration.SNMPConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return fmt.Errorf("decoding snmp config: %w", err)
	}

	if err := s.guard.CheckHost(ctx, cfg.Host); err != nil {
		return fmt.Errorf("destination rejected: %w", err)
	}

	port := cfg.Port
	if port == 0 {
		port = 162
	}

	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}

	client := &gosnmp.GoSNMP{
		Target:  cfg.Host,
		Port:    uint16(port),
		Timeout: timeout,
		Retries: 0, // the job lifecycle owns retries, not the transport
	}

	switch cfg.Version {
	case "2c":
		client.Version = gosnmp.Version2c
		client.Community = cfg.Community
	case "3":
		client.Version = gosnmp.Version3
		client.SecurityModel = gosnmp.UserSecurityModel
		client.MsgFlags = gosnmp.AuthPriv
		client.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 cfg.V3User,
			AuthenticationProtocol:   authProtocol(cfg.V3AuthProto),
			AuthenticationPassphrase: cfg.V3AuthPass,
			PrivacyProtocol:          privProtocol(cfg.V3PrivProto),
			PrivacyPassphrase:        cfg.V3PrivPass,
		}
	default:
		return fmt.Errorf("unsupported snmp version %q", cfg.Version)
	}

	if err := client.Connect(); err != nil {
		return fmt.Errorf("connecting to trap receiver: %w", err)
	}
	defer func() { _ = client.Conn.Close() }()

	oid := cfg.EnterpriseOID
	if oid == "" {
		oid = pulseEnterpriseOID
	}

	trap := gosnmp.SnmpTrap{
		Variables: []gosnmp.SnmpPDU{
			{Name: oid + ".1", Type: gosnmp.OctetString, Value: p.AlertType},
			{Name: oid + ".2", Type: gosnmp.OctetString, Value: p.Severity},
			{Name: oid + ".3", Type: gosnmp.OctetString, Value: p.DeviceID},
			{Name: oid + ".4", Type: gosnmp.OctetString, Value: p.Message},
			{Name: oid + ".5", Type: gosnmp.OctetString, Value: p.CorrelationID},
		},
	}

	if _, err := client.SendTrap(trap); err != nil {
		return fmt.Errorf("sending trap: %w", err)
	}
	return nil
}

func authProtocol(name string) gosnmp.SnmpV3AuthProtocol {
	switch name {
	case "MD5":
		return gosnmp.MD5
	default:
		return gosnmp.SHA
	}
}

func privProtocol(name string) gosnmp.SnmpV3PrivProtocol {
	switch name {
	case "DES":
		return gosnmp.DES
	default:
		return gosnmp.AES
	}
}
