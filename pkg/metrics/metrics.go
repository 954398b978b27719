package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CoordinateResolutions counts resolver outcomes by source and confidence.
	CoordinateResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safeguard_coordinate_resolutions_total",
			Help: "Total coordinate resolution attempts by source and confidence",
		},
		[]string{"source", "confidence"},
	)

	// CoordinateFailures counts resolver failures by error category.
	CoordinateFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safeguard_coordinate_failures_total",
			Help: "Total coordinate resolution failures by category",
		},
		[]string{"category"},
	)

	// NotificationsDelivered counts delivered notifications by category and priority.
	NotificationsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safeguard_notifications_delivered_total",
			Help: "Total notifications accepted by the delivery engine",
		},
		[]string{"category", "priority"},
	)

	// NotificationsSuppressed counts suppressed candidates by reason
	// (category_disabled|quota|geofence|quiet_hours).
	NotificationsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safeguard_notifications_suppressed_total",
			Help: "Total notification candidates rejected by filter stage",
		},
		[]string{"reason"},
	)

	// PushFailures counts push channel failures by class.
	PushFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safeguard_push_failures_total",
			Help: "Total push channel delivery failures by class",
		},
		[]string{"class"},
	)

	// RealtimeReconnects counts reconnect attempts per topic.
	RealtimeReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safeguard_realtime_reconnects_total",
			Help: "Total realtime reconnect attempts",
		},
		[]string{"topic"},
	)

	// RealtimeState tracks the numeric state of each topic subscription.
	RealtimeState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "safeguard_realtime_state",
			Help: "Current subscription state per topic (0=idle .. 5=failed)",
		},
		[]string{"topic"},
	)

	// OptimisticUpdates counts optimistic update outcomes
	// (applied|confirmed|rolled_back|expired).
	OptimisticUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safeguard_optimistic_updates_total",
			Help: "Total optimistic update lifecycle events",
		},
		[]string{"outcome"},
	)

	// PendingOptimisticUpdates tracks updates awaiting confirmation.
	PendingOptimisticUpdates = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "safeguard_optimistic_updates_pending",
			Help: "Number of optimistic updates awaiting confirmation",
		},
	)
)
