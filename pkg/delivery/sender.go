package delivery

import (
	"context"
	"encoding/json"
)

// Sender executes one delivery attempt against one integration kind. The
// four implementations (webhook, snmp, email, mqtt) each wrap the shared
// address guard before any outbound connection; config is the integration's
// kind-specific config blob, already validated at integration create time.
//
// A returned error marks the attempt failed and schedules a retry (or the
// dead letter, once attempts are exhausted). Senders must respect ctx's
// deadline — the worker bounds every attempt with the configured request
// timeout.
type Sender interface {
	Kind() string
	Send(ctx context.Context, config json.RawMessage, p Payload) error
}
