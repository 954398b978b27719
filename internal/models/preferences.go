package models

// QuietHours is a wall-clock window during which non-urgent alerts are kept
// off the interruptive channels. The window may wrap midnight.
type QuietHours struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"` // "HH:MM"
	End     string `json:"end"`   // "HH:MM"
}

// NotificationPreferences is the user-controlled filter configuration,
// persisted on every change under the notification_preferences key.
type NotificationPreferences struct {
	Incidents       bool `json:"incidents"`
	SafetyAlerts    bool `json:"safety_alerts"`
	CommunityEvents bool `json:"community_events"`
	RouteUpdates    bool `json:"route_updates"`
	Verifications   bool `json:"verifications"`

	PushEnabled      bool `json:"push_enabled"`
	SoundEnabled     bool `json:"sound_enabled"`
	VibrationEnabled bool `json:"vibration_enabled"`

	QuietHours      QuietHours `json:"quiet_hours"`
	GeofenceRadiusM float64    `json:"geofence_radius_m"`
}

// CategoryEnabled reports whether the toggle for the supplied category is on.
// Unknown categories default to enabled so new event types are not silently
// dropped for users with stale preference payloads.
func (p NotificationPreferences) CategoryEnabled(category NotificationCategory) bool {
	switch category {
	case NotificationIncident:
		return p.Incidents
	case NotificationSafetyAlert:
		return p.SafetyAlerts
	case NotificationCommunity:
		return p.CommunityEvents
	case NotificationRouteUpdate:
		return p.RouteUpdates
	case NotificationVerification:
		return p.Verifications
	default:
		return true
	}
}

// DefaultNotificationPreferences returns the canonical defaults applied when
// no persisted preference payload exists.
func DefaultNotificationPreferences() NotificationPreferences {
	return NotificationPreferences{
		Incidents:        true,
		SafetyAlerts:     true,
		CommunityEvents:  true,
		RouteUpdates:     true,
		Verifications:    true,
		PushEnabled:      true,
		SoundEnabled:     true,
		VibrationEnabled: true,
		QuietHours: QuietHours{
			Enabled: false,
			Start:   "22:00",
			End:     "06:00",
		},
		GeofenceRadiusM: 5000,
	}
}
