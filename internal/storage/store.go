package storage

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

// Store front-ends a durable KV with an in-memory shadow. When the durable
// layer starts failing, reads and writes continue against the shadow and the
// store reports itself degraded; preferences and history survive the session
// even if they stop surviving restarts.
type Store struct {
	durable  KV
	shadow   *MemoryKV
	degraded atomic.Bool
	log      *zap.Logger
}

// NewStore wraps the durable KV. A nil durable KV starts the store degraded
// with only the in-memory shadow.
func NewStore(durable KV, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}

	store := &Store{
		durable: durable,
		shadow:  NewMemoryKV(),
		log:     log,
	}
	if durable == nil {
		store.degraded.Store(true)
		log.Warn("local persistence unavailable, running in memory only")
	}
	return store
}

// Degraded reports whether the durable layer has failed this session.
func (s *Store) Degraded() bool {
	return s.degraded.Load()
}

// Get prefers the durable layer and falls back to the shadow on failure.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.durable != nil && !s.degraded.Load() {
		value, ok, err := s.durable.Get(ctx, key)
		if err == nil {
			if ok {
				// Keep the shadow warm so a later failure serves reads.
				_ = s.shadow.Set(ctx, key, value)
			}
			return value, ok, nil
		}
		s.markDegraded("get", key, err)
	}
	return s.shadow.Get(ctx, key)
}

// Set writes the shadow first, then the durable layer.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_ = s.shadow.Set(ctx, key, value)

	if s.durable != nil && !s.degraded.Load() {
		if err := s.durable.Set(ctx, key, value); err != nil {
			s.markDegraded("set", key, err)
		}
	}
	return nil
}

// Delete removes the keys from both layers.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	_ = s.shadow.Delete(ctx, keys...)

	if s.durable != nil && !s.degraded.Load() {
		if err := s.durable.Delete(ctx, keys...); err != nil {
			s.markDegraded("delete", "", err)
		}
	}
	return nil
}

func (s *Store) markDegraded(op, key string, err error) {
	if s.degraded.CompareAndSwap(false, true) {
		s.log.Warn("local persistence failed, continuing in memory",
			zap.String("op", op),
			zap.String("key", key),
			zap.Error(err))
	}
}
