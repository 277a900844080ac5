package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Domain event types published on the bus.
const (
	EventOrderCreated        = "order.created"
	EventOrderStatusChanged  = "order.status_changed"
	EventTableCloseRequested = "table.close_requested"
	EventTableFinalized      = "table.finalized"
	EventTableForceCleared   = "table.force_cleared"
)

// Envelope wraps every domain event so consumers can route on Type.
type Envelope struct {
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// PublishEvent marshals data into an Envelope and publishes it keyed by key.
func PublishEvent(ctx context.Context, client Client, eventType, key string, data any) error {
	if client == nil {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}
	payload, err := json.Marshal(Envelope{Type: eventType, OccurredAt: time.Now().UTC(), Data: raw})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return client.Publish(ctx, []byte(key), payload)
}

// DecodeEnvelope parses a consumed message.
func DecodeEnvelope(msg Message) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
