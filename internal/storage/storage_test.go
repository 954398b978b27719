package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestKV(t *testing.T) *GormKV {
	t.Helper()

	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, err := db.DB()
		require.NoError(t, err)
		_ = sqlDB.Close()
	})

	kv, err := NewGormKV(db)
	require.NoError(t, err)
	return kv
}

func TestGormKVRoundTrip(t *testing.T) {
	kv := openTestKV(t)
	ctx := context.Background()

	_, ok, err := kv.Get(ctx, KeyNotificationPreferences)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, kv.Set(ctx, KeyNotificationPreferences, []byte(`{"push_enabled":true}`)))

	value, ok, err := kv.Get(ctx, KeyNotificationPreferences)
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"push_enabled":true}`, string(value))
}

func TestGormKVSetIsUpsert(t *testing.T) {
	kv := openTestKV(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "k", []byte(`{"v":1}`)))
	require.NoError(t, kv.Set(ctx, "k", []byte(`{"v":2}`)))

	value, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"v":2}`, string(value))
}

func TestGormKVDelete(t *testing.T) {
	kv := openTestKV(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "a", []byte(`{}`)))
	require.NoError(t, kv.Set(ctx, "b", []byte(`{}`)))
	require.NoError(t, kv.Delete(ctx, "a", "b", "missing"))

	_, ok, err := kv.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)
}

type failingKV struct {
	fail bool
	mem  *MemoryKV
}

func (f *failingKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.fail {
		return nil, false, errors.New("disk i/o error")
	}
	return f.mem.Get(ctx, key)
}

func (f *failingKV) Set(ctx context.Context, key string, value []byte) error {
	if f.fail {
		return errors.New("disk i/o error")
	}
	return f.mem.Set(ctx, key, value)
}

func (f *failingKV) Delete(ctx context.Context, keys ...string) error {
	if f.fail {
		return errors.New("disk i/o error")
	}
	return f.mem.Delete(ctx, keys...)
}

func TestStoreFallsBackWhenDurableFails(t *testing.T) {
	durable := &failingKV{mem: NewMemoryKV()}
	store := NewStore(durable, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte(`{"v":1}`)))
	require.False(t, store.Degraded())

	durable.fail = true
	require.NoError(t, store.Set(ctx, "k", []byte(`{"v":2}`)))
	require.True(t, store.Degraded())

	// Reads keep working against the shadow with the latest write.
	value, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"v":2}`, string(value))
}

func TestStoreWithoutDurableLayerIsDegraded(t *testing.T) {
	store := NewStore(nil, zap.NewNop())
	ctx := context.Background()

	require.True(t, store.Degraded())
	require.NoError(t, store.Set(ctx, "k", []byte(`{}`)))

	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestStoreWarmsShadowFromDurableReads(t *testing.T) {
	durable := &failingKV{mem: NewMemoryKV()}
	require.NoError(t, durable.mem.Set(context.Background(), "k", []byte(`{"v":9}`)))

	store := NewStore(durable, zap.NewNop())
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	durable.fail = true
	_, _, _ = store.Get(ctx, "missing") // trips degraded mode

	value, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"v":9}`, string(value))
}

func TestPersistedKeyLayout(t *testing.T) {
	// On-disk layout is a compatibility contract with earlier sessions.
	require.Equal(t, "notification_preferences", KeyNotificationPreferences)
	require.Equal(t, "notifications", KeyNotificationHistory)
}
