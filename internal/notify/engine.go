// Package notify decides which upstream events may interrupt the user. A
// candidate passes the category toggle, the rolling delivery quota and the
// geofence before it becomes a persisted NotificationEvent; the push and
// haptic channels are further gated by visibility and quiet hours. Channel
// failures degrade to in-app-only delivery and never reach the caller.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lamont-llp/safeguard-eldos-sub000/internal/geo"
	"github.com/lamont-llp/safeguard-eldos-sub000/internal/models"
	"github.com/lamont-llp/safeguard-eldos-sub000/internal/push"
	"github.com/lamont-llp/safeguard-eldos-sub000/internal/storage"
	"github.com/lamont-llp/safeguard-eldos-sub000/pkg/metrics"
)

const (
	// QuotaLimit caps deliveries per rolling window across all categories.
	QuotaLimit = 20

	// QuotaWindow is the rolling window for the delivery quota, reset
	// lazily when it elapses.
	QuotaWindow = time.Hour

	// HistoryLimit bounds the persisted notification history.
	HistoryLimit = 50
)

// Suppression reasons recorded in metrics and logs.
const (
	reasonCategoryDisabled = "category_disabled"
	reasonQuota            = "quota"
	reasonGeofence         = "geofence"
)

// Candidate is an upstream event offered to the delivery engine.
type Candidate struct {
	Category models.NotificationCategory
	Priority models.Priority
	Title    string
	Message  string
	Target   string
	Anchor   *geo.Coordinate
	Payload  map[string]any
}

// Listener receives each delivered event synchronously, in delivery order.
type Listener func(models.NotificationEvent)

// Engine is the notification delivery engine.
type Engine struct {
	store    *storage.Store
	provider push.Provider
	origin   string
	log      *zap.Logger
	now      func() time.Time

	mu           sync.Mutex
	prefs        models.NotificationPreferences
	history      []models.NotificationEvent // newest first
	windowStart  time.Time
	delivered    int
	lastLocation *geo.Coordinate
	appVisible   bool
	listeners    map[int]Listener
	nextListener int
}

// Option customises the Engine.
type Option func(*Engine)

// WithNow overrides the clock, for quota and quiet-hours tests.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine constructs an engine, restoring preferences and history from the
// local store. origin is the application origin used to validate navigation
// targets.
func NewEngine(ctx context.Context, store *storage.Store, provider push.Provider, origin string, log *zap.Logger, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("notify: store is required")
	}
	if provider == nil {
		provider = push.NopProvider{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	engine := &Engine{
		store:     store,
		provider:  provider,
		origin:    origin,
		log:       log,
		now:       time.Now,
		prefs:     models.DefaultNotificationPreferences(),
		listeners: make(map[int]Listener),
		// The app starts in the foreground.
		appVisible: true,
	}
	for _, opt := range opts {
		opt(engine)
	}
	engine.windowStart = engine.now()

	engine.restore(ctx)
	return engine, nil
}

func (e *Engine) restore(ctx context.Context) {
	if raw, ok, err := e.store.Get(ctx, storage.KeyNotificationPreferences); err == nil && ok {
		var prefs models.NotificationPreferences
		if err := json.Unmarshal(raw, &prefs); err != nil {
			e.log.Warn("discarding unreadable preference payload", zap.Error(err))
		} else {
			e.prefs = prefs
		}
	}
	if raw, ok, err := e.store.Get(ctx, storage.KeyNotificationHistory); err == nil && ok {
		var history []models.NotificationEvent
		if err := json.Unmarshal(raw, &history); err != nil {
			e.log.Warn("discarding unreadable history payload", zap.Error(err))
		} else {
			if len(history) > HistoryLimit {
				history = history[:HistoryLimit]
			}
			e.history = history
		}
	}
}

// Deliver runs the candidate through the filter pipeline. The returned event
// is nil when the candidate was suppressed; suppression is not an error.
func (e *Engine) Deliver(ctx context.Context, candidate Candidate) *models.NotificationEvent {
	e.mu.Lock()

	if !e.prefs.CategoryEnabled(candidate.Category) {
		e.mu.Unlock()
		e.suppress(candidate, reasonCategoryDisabled)
		return nil
	}

	now := e.now()
	if now.Sub(e.windowStart) >= QuotaWindow {
		e.windowStart = now
		e.delivered = 0
	}
	if e.delivered >= QuotaLimit {
		e.mu.Unlock()
		e.suppress(candidate, reasonQuota)
		return nil
	}

	if candidate.Anchor != nil && e.lastLocation != nil {
		distance := geo.Distance(*candidate.Anchor, *e.lastLocation)
		if distance > e.prefs.GeofenceRadiusM {
			e.mu.Unlock()
			e.suppress(candidate, reasonGeofence)
			return nil
		}
	}

	event := models.NotificationEvent{
		ID:        uuid.NewString(),
		Category:  candidate.Category,
		Title:     sanitizeText(candidate.Title, maxTitleRunes),
		Message:   sanitizeText(candidate.Message, maxBodyRunes),
		Priority:  candidate.Priority,
		Anchor:    candidate.Anchor,
		Target:    sanitizeTarget(candidate.Target, e.origin),
		Payload:   candidate.Payload,
		CreatedAt: now,
	}

	e.delivered++
	e.history = append([]models.NotificationEvent{event.Clone()}, e.history...)
	if len(e.history) > HistoryLimit {
		e.history = e.history[:HistoryLimit]
	}
	e.persistHistoryLocked(ctx)

	listeners := make([]Listener, 0, len(e.listeners))
	for _, listener := range e.listeners {
		listeners = append(listeners, listener)
	}
	prefs := e.prefs
	visible := e.appVisible
	e.mu.Unlock()

	metrics.NotificationsDelivered.WithLabelValues(string(event.Category), string(event.Priority)).Inc()
	e.log.Info("notification delivered",
		zap.String("id", event.ID),
		zap.String("category", string(event.Category)),
		zap.String("priority", string(event.Priority)))

	// In-app channel: synchronous listener fan-out, always fires.
	for _, listener := range listeners {
		listener(event)
	}

	e.dispatchPush(ctx, event, prefs, visible, now)
	return &event
}

// dispatchPush gates and attempts the push channel. Failures are classified
// and logged, never returned.
func (e *Engine) dispatchPush(ctx context.Context, event models.NotificationEvent, prefs models.NotificationPreferences, visible bool, now time.Time) {
	urgent := event.Priority == models.PriorityUrgent
	quiet := inQuietHours(prefs.QuietHours, now)

	// Urgent lifts only the visibility and quiet-hours suppression; the
	// push toggle and the platform permission gate every priority.
	if !prefs.PushEnabled || e.provider.Permission() != push.PermissionGranted {
		return
	}

	if !urgent {
		switch {
		case !visible:
			e.log.Debug("push skipped, document hidden", zap.String("id", event.ID))
			return
		case quiet:
			metrics.NotificationsSuppressed.WithLabelValues("quiet_hours").Inc()
			e.log.Debug("push suppressed by quiet hours", zap.String("id", event.ID))
			return
		}
	}

	message := push.Message{
		Title:              event.Title,
		Body:               event.Message,
		Tag:                event.ID,
		Target:             event.Target,
		Sound:              prefs.SoundEnabled && (urgent || !quiet),
		Vibrate:            prefs.VibrationEnabled && (urgent || !quiet),
		Urgent:             urgent,
		RequireInteraction: urgent,
	}

	if err := e.provider.Send(ctx, message); err != nil {
		class := push.ClassifyFailure(err)
		metrics.PushFailures.WithLabelValues(class).Inc()
		e.log.Warn("push channel failed, delivery stays in-app only",
			zap.String("id", event.ID),
			zap.String("class", class),
			zap.Error(err))
	}
}

func (e *Engine) suppress(candidate Candidate, reason string) {
	metrics.NotificationsSuppressed.WithLabelValues(reason).Inc()
	e.log.Debug("notification suppressed",
		zap.String("category", string(candidate.Category)),
		zap.String("reason", reason))
}

// Subscribe registers a listener for delivered events and returns its cancel
// function.
func (e *Engine) Subscribe(listener Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextListener
	e.nextListener++
	e.listeners[id] = listener

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.listeners, id)
		})
	}
}

// History returns the persisted notifications, newest first. Entries are
// detached copies; mutating them does not touch stored state.
func (e *Engine) History() []models.NotificationEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	events := make([]models.NotificationEvent, len(e.history))
	for i, event := range e.history {
		events[i] = event.Clone()
	}
	return events
}

// UnreadCount returns the number of unread notifications in history.
func (e *Engine) UnreadCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	count := 0
	for _, event := range e.history {
		if !event.IsRead {
			count++
		}
	}
	return count
}

// MarkAsRead flags one notification as read.
func (e *Engine) MarkAsRead(ctx context.Context, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.history {
		if e.history[i].ID == id {
			if !e.history[i].IsRead {
				e.history[i].IsRead = true
				e.persistHistoryLocked(ctx)
			}
			return
		}
	}
}

// MarkAllAsRead flags the entire history as read.
func (e *Engine) MarkAllAsRead(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	changed := false
	for i := range e.history {
		if !e.history[i].IsRead {
			e.history[i].IsRead = true
			changed = true
		}
	}
	if changed {
		e.persistHistoryLocked(ctx)
	}
}

// Remove deletes one notification from history.
func (e *Engine) Remove(ctx context.Context, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.history {
		if e.history[i].ID == id {
			e.history = append(e.history[:i], e.history[i+1:]...)
			e.persistHistoryLocked(ctx)
			return
		}
	}
}

// ClearAll empties the notification history.
func (e *Engine) ClearAll(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.history) == 0 {
		return
	}
	e.history = nil
	e.persistHistoryLocked(ctx)
}

// Preferences returns the current preference set.
func (e *Engine) Preferences() models.NotificationPreferences {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.prefs
}

// UpdatePreferences validates, applies and persists a new preference set.
func (e *Engine) UpdatePreferences(ctx context.Context, prefs models.NotificationPreferences) error {
	if prefs.GeofenceRadiusM < 0 {
		return fmt.Errorf("notify: geofence radius must be non-negative, got %.0f", prefs.GeofenceRadiusM)
	}
	if prefs.QuietHours.Enabled {
		if _, err := parseClock(prefs.QuietHours.Start); err != nil {
			return fmt.Errorf("notify: quiet hours start: %w", err)
		}
		if _, err := parseClock(prefs.QuietHours.End); err != nil {
			return fmt.Errorf("notify: quiet hours end: %w", err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.prefs = prefs
	if raw, err := json.Marshal(prefs); err == nil {
		_ = e.store.Set(ctx, storage.KeyNotificationPreferences, raw)
	}
	return nil
}

// RequestPermission prompts the platform for push permission.
func (e *Engine) RequestPermission(ctx context.Context) (push.PermissionState, error) {
	return e.provider.RequestPermission(ctx)
}

// SetAppVisible records whether the document is in the foreground.
func (e *Engine) SetAppVisible(visible bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.appVisible = visible
}

// SetLastKnownLocation records the user position used by the geofence check.
func (e *Engine) SetLastKnownLocation(coord geo.Coordinate) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastLocation = &coord
}

// Flush re-persists history, used by the maintenance scheduler to heal a
// store that recovered from a transient failure.
func (e *Engine) Flush(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.persistHistoryLocked(ctx)
}

func (e *Engine) persistHistoryLocked(ctx context.Context) {
	raw, err := json.Marshal(e.history)
	if err != nil {
		e.log.Warn("history not persistable", zap.Error(err))
		return
	}
	_ = e.store.Set(ctx, storage.KeyNotificationHistory, raw)
}
