package models

import (
	"time"

	"github.com/lamont-llp/safeguard-eldos-sub000/internal/geo"
)

// NotificationCategory identifies which feature produced a notification.
type NotificationCategory string

const (
	NotificationIncident     NotificationCategory = "incident"
	NotificationSafetyAlert  NotificationCategory = "safety_alert"
	NotificationCommunity    NotificationCategory = "community_event"
	NotificationRouteUpdate  NotificationCategory = "route_update"
	NotificationVerification NotificationCategory = "verification"
)

// Priority orders notifications by interruption weight. Urgent bypasses quiet
// hours and background suppression.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// NotificationEvent is a delivered alert persisted in the bounded history.
type NotificationEvent struct {
	ID        string               `json:"id"`
	Category  NotificationCategory `json:"category"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	Priority  Priority             `json:"priority"`
	Anchor    *geo.Coordinate      `json:"anchor,omitempty"`
	Target    string               `json:"target,omitempty"`
	Payload   map[string]any       `json:"payload,omitempty"`
	IsRead    bool                 `json:"is_read"`
	CreatedAt time.Time            `json:"created_at"`
}

// Clone returns a deep copy so the anchor and payload map are never shared
// between stored state and callers.
func (n NotificationEvent) Clone() NotificationEvent {
	cpy := n
	if n.Anchor != nil {
		anchor := *n.Anchor
		cpy.Anchor = &anchor
	}
	if n.Payload != nil {
		cpy.Payload = make(map[string]any, len(n.Payload))
		for key, value := range n.Payload {
			cpy.Payload[key] = value
		}
	}
	return cpy
}
