// Package push abstracts the platform push channel. The delivery engine only
// sees the Provider contract; the FCM-backed implementation lives alongside a
// no-op used when the platform never granted permission.
package push

import (
	"context"
	"strings"
)

// PermissionState mirrors the platform notification permission.
type PermissionState string

const (
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
	PermissionDefault PermissionState = "default"
)

// Message is one push payload handed to the platform channel.
type Message struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	Tag    string `json:"tag,omitempty"`
	Target string `json:"target,omitempty"`
	Sound  bool   `json:"sound"`

	// Vibrate requests the haptic channel; urgent messages use the longer
	// platform pattern.
	Vibrate bool `json:"vibrate"`

	// Urgent marks the message as time-critical: highest transport priority
	// and no TTL-based coalescing.
	Urgent bool `json:"urgent"`

	// RequireInteraction asks the platform to keep the notification on
	// screen until the user dismisses it.
	RequireInteraction bool `json:"require_interaction"`

	Data map[string]string `json:"data,omitempty"`
}

// Provider is the platform push capability.
type Provider interface {
	// RequestPermission asks the platform for notification permission and
	// returns the resulting state.
	RequestPermission(ctx context.Context) (PermissionState, error)

	// Permission returns the current state without prompting.
	Permission() PermissionState

	// Send delivers a message through the platform channel.
	Send(ctx context.Context, msg Message) error
}

// Failure classes for delivery metrics and logging.
const (
	FailurePermissionDenied    = "permission_denied"
	FailurePlatformRestriction = "platform_restriction"
	FailureMalformedPayload    = "malformed_payload"
	FailureUnknown             = "unknown"
)

// ClassifyFailure buckets a push delivery error for metrics. Classification
// is by message text because the platform channel does not expose a stable
// error type across implementations.
func ClassifyFailure(err error) string {
	if err == nil {
		return ""
	}

	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "permission"), strings.Contains(message, "unauthorized"), strings.Contains(message, "not registered"):
		return FailurePermissionDenied
	case strings.Contains(message, "quota"), strings.Contains(message, "unavailable"), strings.Contains(message, "throttl"):
		return FailurePlatformRestriction
	case strings.Contains(message, "invalid"), strings.Contains(message, "malformed"), strings.Contains(message, "too big"):
		return FailureMalformedPayload
	default:
		return FailureUnknown
	}
}
