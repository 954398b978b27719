// Package realtime keeps one logical subscription per event topic against the
// remote event source, reconnecting with bounded exponential backoff. The
// transport is abstracted behind the Provider contract so any push mechanism
// (socket, long-poll, SSE) can sit behind the same state machine.
package realtime

import (
	"context"
	"encoding/json"
)

// Topics the subsystem subscribes to.
const (
	TopicIncidentChanges = "incident-changes"
	TopicUrgentAlerts    = "urgent-alerts"
)

// Change event discriminators as delivered by the backend.
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

// Event is a single change notification delivered on a topic. New and Old are
// the raw record snapshots; delete events carry only Old.
type Event struct {
	ID    string          `json:"id,omitempty"`
	Topic string          `json:"topic"`
	Type  string          `json:"eventType"`
	New   json.RawMessage `json:"new,omitempty"`
	Old   json.RawMessage `json:"old,omitempty"`
}

// Handler consumes events synchronously in receipt order.
type Handler func(Event)

// Subscription represents an established topic subscription.
type Subscription interface {
	Unsubscribe() error
}

// Provider is the subscribe/unsubscribe capability offered by the transport.
// Subscribe blocks until the provider acknowledges the subscription (or the
// context ends) and reports later transport failures through onError.
type Provider interface {
	Subscribe(ctx context.Context, topic string, handler Handler, onError func(error)) (Subscription, error)
}
