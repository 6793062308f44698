// Package transport provides concrete sync.Socket implementations: a
// websocket transport (WSocket) grounded on the teacher's internal/ws/echo.go,
// and a tailnet dialer (TSDialer) grounded on internal/ts/connector/connector.go.
package transport

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rljson/catalog/internal/sync"
)

// envelope is the wire frame every WSocket message carries: the event name
// and its JSON-encoded payload, mirroring the {event, payload} shape a real
// pub/sub socket library frames messages in.
type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// decodePayload unmarshals data into the concrete payload type a Connector
// expects for event, chosen by the event's suffix. Longest suffix checked
// first since ":ack:client" is itself a suffix match for ":ack".
func decodePayload(event string, data []byte) (any, error) {
	switch {
	case strings.HasSuffix(event, ":ack:client"):
		var p sync.AckClientPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case strings.HasSuffix(event, ":ack"):
		var p sync.AckPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case strings.HasSuffix(event, ":gapfill:req"):
		var p sync.GapFillRequest
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case strings.HasSuffix(event, ":gapfill:res"):
		var p sync.GapFillResponse
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case strings.HasSuffix(event, ":bootstrap"):
		var p sync.ConnectorPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		// The bare "<route>" event.
		var p sync.ConnectorPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	}
}

func encodeEnvelope(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("transport: marshal payload for %q: %w", event, err)
	}
	return json.Marshal(envelope{Event: event, Payload: data})
}
