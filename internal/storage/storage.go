// Package storage persists small client-side documents (notification
// preferences, delivery history) in a local key-value table. A degraded
// in-memory fallback keeps the subsystem functional when local persistence
// is unavailable.
package storage

import (
	"context"
)

// Well-known document keys.
const (
	KeyNotificationPreferences = "notification_preferences"
	KeyNotificationHistory     = "notifications"
)

// KV is the persistence capability for keyed JSON documents.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}
