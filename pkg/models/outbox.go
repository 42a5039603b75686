package models

import (
	"encoding/json"
	"time"
)

// Bus and stream topics.
const (
	TopicTicks       = "ticks"
	TopicSignals     = "signals.enhanced"
	TopicSentiment   = "sentiment"
	TopicOrder       = "order"
	TopicAdvice      = "advice"
	TopicAudit       = "audit"
	TopicEngineState = "engine.state"
	TopicAuthToken   = "auth.token"
	TopicAlerts      = "alerts"
)

// OutboxEvent is a transactionally-buffered domain event awaiting
// publication. Delivery is at-least-once; consumers dedupe by ID.
type OutboxEvent struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	Key         string          `json:"key"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	Published   bool            `json:"published"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
}

// RoutingKey selects the stream key for an order/advice payload, in the
// order symbol → instrument key/token → orderId → id → event tail.
func RoutingKey(payload map[string]any, fallback string) string {
	for _, k := range []string{"symbol", "instrument_key", "instrumentKey", "instrument_token", "order_id", "orderId", "broker_order_id", "id"} {
		if v, ok := payload[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return fallback
}
