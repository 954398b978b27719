// Package optimistic tracks speculative local mutations against the record
// store so the UI reflects a write before the backend confirms it. Each
// tracked update carries an explicit, immutable undo payload instead of a
// captured closure, keyed by correlation ID.
package optimistic

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/lamont-llp/safeguard-eldos-sub000/internal/models"
	"github.com/lamont-llp/safeguard-eldos-sub000/internal/store"
	"github.com/lamont-llp/safeguard-eldos-sub000/pkg/metrics"
)

const (
	// ExpiryWindow bounds how long an update may stay tracked without a
	// confirmation before the sweep discards it. Prolonged un-confirmed
	// state is evidence of a caller bug, not of invalid application state,
	// so expired entries are dropped without reversing.
	ExpiryWindow = 30 * time.Second

	// SweepInterval is how often the maintenance scheduler should invoke
	// Sweep.
	SweepInterval = 10 * time.Second
)

// Kind discriminates the three speculative mutation shapes.
type Kind string

const (
	KindAdd    Kind = "add"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Update describes one speculative mutation. Prior is the record snapshot
// before the mutation (nil for an add); Speculative is the snapshot written
// in its place (nil for a delete).
type Update struct {
	ID          string
	Kind        Kind
	Prior       *models.IncidentRecord
	Speculative *models.IncidentRecord
}

type trackedUpdate struct {
	update    Update
	createdAt time.Time
}

// reverse restores the store to the pre-update state. It is a pure function
// of the immutable undo payload, so invoking it is safe from any call site.
func (t trackedUpdate) reverse(s *store.RecordStore) {
	switch t.update.Kind {
	case KindAdd:
		s.Remove(t.update.Speculative.ID)
	case KindUpdate, KindDelete:
		s.Put(t.update.Prior.Clone())
	}
}

// Manager owns the tracked update set.
type Manager struct {
	mu      sync.Mutex
	store   *store.RecordStore
	tracked map[string]trackedUpdate
	log     *zap.Logger
	now     func() time.Time
}

// Option customises the Manager.
type Option func(*Manager)

// WithNow overrides the clock, primarily for expiry tests.
func WithNow(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager constructs a Manager bound to the supplied store.
func NewManager(recordStore *store.RecordStore, log *zap.Logger, opts ...Option) (*Manager, error) {
	if recordStore == nil {
		return nil, errors.New("optimistic manager: store is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	manager := &Manager{
		store:   recordStore,
		tracked: make(map[string]trackedUpdate),
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(manager)
	}
	return manager, nil
}

// Apply immediately mutates the store as if the remote mutation had already
// succeeded and records the update for possible reversal. At most one tracked
// entry may exist per correlation ID.
func (m *Manager) Apply(update Update) error {
	if update.ID == "" {
		return errors.New("optimistic manager: correlation id is required")
	}
	switch update.Kind {
	case KindAdd:
		if update.Speculative == nil {
			return fmt.Errorf("optimistic manager: add %s requires a speculative snapshot", update.ID)
		}
	case KindUpdate:
		if update.Prior == nil || update.Speculative == nil {
			return fmt.Errorf("optimistic manager: update %s requires prior and speculative snapshots", update.ID)
		}
	case KindDelete:
		if update.Prior == nil {
			return fmt.Errorf("optimistic manager: delete %s requires a prior snapshot", update.ID)
		}
	default:
		return fmt.Errorf("optimistic manager: unknown kind %q", update.Kind)
	}

	m.mu.Lock()
	if _, exists := m.tracked[update.ID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("optimistic manager: update %s is already tracked", update.ID)
	}
	m.tracked[update.ID] = trackedUpdate{update: update, createdAt: m.now()}
	pending := len(m.tracked)
	m.mu.Unlock()

	switch update.Kind {
	case KindAdd, KindUpdate:
		m.store.Put(update.Speculative.Clone())
	case KindDelete:
		m.store.Remove(update.Prior.ID)
	}

	metrics.OptimisticUpdates.WithLabelValues("applied").Inc()
	metrics.PendingOptimisticUpdates.Set(float64(pending))
	m.log.Debug("optimistic update applied",
		zap.String("correlation_id", update.ID),
		zap.String("kind", string(update.Kind)))
	return nil
}

// Confirm discards tracking without touching the store; the authoritative
// record is assumed identical or applied separately by the caller.
func (m *Manager) Confirm(id string) {
	m.mu.Lock()
	_, existed := m.tracked[id]
	delete(m.tracked, id)
	pending := len(m.tracked)
	m.mu.Unlock()

	if !existed {
		m.log.Debug("confirm for unknown or already-settled update", zap.String("correlation_id", id))
		return
	}

	metrics.OptimisticUpdates.WithLabelValues("confirmed").Inc()
	metrics.PendingOptimisticUpdates.Set(float64(pending))
}

// Rollback reverses the tracked update and discards it. A second invocation
// for the same ID is a logged no-op, never a duplicate store mutation.
func (m *Manager) Rollback(id, reason string) error {
	m.mu.Lock()
	entry, ok := m.tracked[id]
	if ok {
		delete(m.tracked, id)
	}
	pending := len(m.tracked)
	m.mu.Unlock()

	if !ok {
		m.log.Warn("rollback requested for unknown or already-settled update",
			zap.String("correlation_id", id),
			zap.String("reason", reason))
		return nil
	}

	entry.reverse(m.store)

	metrics.OptimisticUpdates.WithLabelValues("rolled_back").Inc()
	metrics.PendingOptimisticUpdates.Set(float64(pending))
	m.log.Info("optimistic update rolled back",
		zap.String("correlation_id", id),
		zap.String("kind", string(entry.update.Kind)),
		zap.String("reason", reason))
	return nil
}

// RollbackAll reverses every tracked update, intended for connectivity-loss
// recovery. Order is unspecified; failures are aggregated, not short-circuited.
func (m *Manager) RollbackAll(reason string) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.tracked))
	for id := range m.tracked {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var errs error
	for _, id := range ids {
		errs = multierr.Append(errs, m.Rollback(id, reason))
	}
	return errs
}

// Sweep discards tracked updates older than the expiry window without
// reversing them, returning the number discarded.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-ExpiryWindow)

	m.mu.Lock()
	var expired []string
	for id, entry := range m.tracked {
		if entry.createdAt.Before(cutoff) {
			expired = append(expired, id)
			delete(m.tracked, id)
		}
	}
	pending := len(m.tracked)
	m.mu.Unlock()

	for _, id := range expired {
		metrics.OptimisticUpdates.WithLabelValues("expired").Inc()
		m.log.Warn("optimistic update expired without confirmation", zap.String("correlation_id", id))
	}
	if len(expired) > 0 {
		metrics.PendingOptimisticUpdates.Set(float64(pending))
	}
	return len(expired)
}

// IsPending reports whether the correlation ID is currently tracked.
func (m *Manager) IsPending(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.tracked[id]
	return ok
}

// PendingCount returns the number of tracked updates.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.tracked)
}
