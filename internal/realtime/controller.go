package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lamont-llp/safeguard-eldos-sub000/pkg/metrics"
)

// State enumerates the per-topic subscription lifecycle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateSubscribed
	StateReconnecting
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 30 * time.Second
	defaultMaxAttempts = 8
	dedupeWindow       = 256
)

// Config tunes a topic controller.
type Config struct {
	Topic string

	// BaseDelay seeds the exponential backoff (base × 2^attempt).
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration

	// MaxAttempts is the circuit breaker: after this many consecutive
	// transport errors no further retry is scheduled and the failure is
	// surfaced through the state callback.
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultMaxDelay
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	return c
}

// StateListener observes controller state transitions.
type StateListener func(topic string, state State)

// Controller owns one logical subscription for one topic.
type Controller struct {
	cfg      Config
	provider Provider
	handler  Handler
	onState  StateListener
	log      *zap.Logger

	mu         sync.Mutex
	state      State
	attempts   int
	sub        Subscription
	retryTimer *time.Timer
	seen       *dedupeRing
}

// NewController constructs a controller in the idle state.
func NewController(cfg Config, provider Provider, handler Handler, onState StateListener, log *zap.Logger) (*Controller, error) {
	if cfg.Topic == "" {
		return nil, errors.New("realtime: topic is required")
	}
	if provider == nil {
		return nil, errors.New("realtime: provider is required")
	}
	if handler == nil {
		return nil, errors.New("realtime: handler is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Controller{
		cfg:      cfg.withDefaults(),
		provider: provider,
		handler:  handler,
		onState:  onState,
		log:      log.With(zap.String("topic", cfg.Topic)),
		state:    StateIdle,
		seen:     newDedupeRing(dedupeWindow),
	}, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Setup establishes the subscription. It is idempotent: calling it while
// already connecting or subscribed is a no-op, which prevents duplicate topic
// subscriptions that would double-deliver events.
func (c *Controller) Setup(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateSubscribed, StateReconnecting:
		c.mu.Unlock()
		return nil
	}
	// A previous teardown or circuit-breaker trip left clean bookkeeping,
	// so starting over from closed/failed is permitted.
	c.attempts = 0
	c.state = StateConnecting
	c.mu.Unlock()

	c.emit(StateConnecting)
	c.connect(ctx)
	return nil
}

// Teardown releases the underlying subscription and resets bookkeeping. The
// release happens unconditionally, even when the provider's unsubscribe
// errors or panics, so a later setup always starts clean.
func (c *Controller) Teardown() {
	c.mu.Lock()
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	sub := c.sub
	c.sub = nil
	c.attempts = 0
	alreadyClosed := c.state == StateClosed
	c.state = StateClosed
	c.mu.Unlock()

	if sub != nil {
		releaseSubscription(sub, c.log)
	}
	if !alreadyClosed {
		c.emit(StateClosed)
	}
}

func releaseSubscription(sub Subscription, log *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("subscription release panicked", zap.Any("panic", r))
		}
	}()
	if err := sub.Unsubscribe(); err != nil {
		log.Warn("subscription release failed", zap.Error(err))
	}
}

func (c *Controller) connect(ctx context.Context) {
	sub, err := c.provider.Subscribe(ctx, c.cfg.Topic, c.dispatch, func(transportErr error) {
		c.handleTransportError(ctx, transportErr)
	})

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		if sub != nil {
			releaseSubscription(sub, c.log)
		}
		return
	}
	if err != nil {
		c.mu.Unlock()
		c.handleTransportError(ctx, err)
		return
	}

	c.sub = sub
	c.state = StateSubscribed
	c.attempts = 0
	c.mu.Unlock()

	c.log.Info("topic subscribed")
	c.emit(StateSubscribed)
}

func (c *Controller) handleTransportError(ctx context.Context, err error) {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateFailed {
		c.mu.Unlock()
		return
	}
	c.sub = nil

	c.attempts++
	if c.attempts >= c.cfg.MaxAttempts {
		c.state = StateFailed
		c.mu.Unlock()

		c.log.Error("retry budget exhausted, subscription failed",
			zap.Int("attempts", c.cfg.MaxAttempts),
			zap.Error(err))
		c.emit(StateFailed)
		return
	}

	delay := backoffDelay(c.cfg.BaseDelay, c.cfg.MaxDelay, c.attempts-1)
	c.state = StateReconnecting
	c.retryTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.state != StateReconnecting {
			c.mu.Unlock()
			return
		}
		c.state = StateConnecting
		c.retryTimer = nil
		c.mu.Unlock()

		c.emit(StateConnecting)
		c.connect(ctx)
	})
	attempt := c.attempts
	c.mu.Unlock()

	metrics.RealtimeReconnects.WithLabelValues(c.cfg.Topic).Inc()
	c.log.Warn("transport error, reconnect scheduled",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
		zap.Error(err))
	c.emit(StateReconnecting)
}

// dispatch forwards an event to the handler in receipt order, dropping
// duplicate delivery IDs from the at-least-once upstream.
func (c *Controller) dispatch(event Event) {
	if event.ID != "" && !c.seen.add(event.ID) {
		c.log.Debug("duplicate event dropped", zap.String("event_id", event.ID))
		return
	}
	c.handler(event)
}

func (c *Controller) emit(state State) {
	metrics.RealtimeState.WithLabelValues(c.cfg.Topic).Set(float64(state))
	if c.onState != nil {
		c.onState(c.cfg.Topic, state)
	}
}

func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// dedupeRing remembers the last N event IDs.
type dedupeRing struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
	next  int
}

func newDedupeRing(size int) *dedupeRing {
	return &dedupeRing{
		ids:   make(map[string]struct{}, size),
		order: make([]string, size),
	}
}

// add records the ID and reports whether it was previously unseen.
func (r *dedupeRing) add(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ids[id]; ok {
		return false
	}

	if evicted := r.order[r.next]; evicted != "" {
		delete(r.ids, evicted)
	}
	r.order[r.next] = id
	r.next = (r.next + 1) % len(r.order)
	r.ids[id] = struct{}{}
	return true
}
