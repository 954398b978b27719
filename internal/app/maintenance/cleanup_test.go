package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lamont-llp/safeguard-eldos-sub000/internal/geo"
	"github.com/lamont-llp/safeguard-eldos-sub000/internal/models"
	"github.com/lamont-llp/safeguard-eldos-sub000/internal/notify"
	"github.com/lamont-llp/safeguard-eldos-sub000/internal/optimistic"
	"github.com/lamont-llp/safeguard-eldos-sub000/internal/storage"
	"github.com/lamont-llp/safeguard-eldos-sub000/internal/store"
)

func TestRunOnceSweepsExpiredUpdates(t *testing.T) {
	current := time.Now()
	records := store.NewRecordStore()
	manager, err := optimistic.NewManager(records, zap.NewNop(),
		optimistic.WithNow(func() time.Time { return current }))
	require.NoError(t, err)

	require.NoError(t, manager.Apply(optimistic.Update{
		ID:   "stale",
		Kind: optimistic.KindAdd,
		Speculative: &models.IncidentRecord{
			ID:       "temp-1",
			Category: models.CategoryCrime,
			Title:    "x",
		},
	}))

	current = current.Add(optimistic.ExpiryWindow + time.Second)

	cleaner := NewCleaner(manager, nil, nil)
	require.NoError(t, cleaner.RunOnce(context.Background()))
	require.Zero(t, manager.PendingCount())
}

func TestStartRegistersJobsAndSweepsOnSchedule(t *testing.T) {
	current := time.Now()
	records := store.NewRecordStore()
	manager, err := optimistic.NewManager(records, zap.NewNop(),
		optimistic.WithNow(func() time.Time { return current }))
	require.NoError(t, err)

	require.NoError(t, manager.Apply(optimistic.Update{
		ID:   "stale",
		Kind: optimistic.KindAdd,
		Speculative: &models.IncidentRecord{
			ID:       "temp-1",
			Category: models.CategoryCrime,
			Title:    "x",
		},
	}))
	current = current.Add(optimistic.ExpiryWindow + time.Second)

	cleaner := NewCleaner(manager, nil, geo.NewStats(),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
		WithSweepSchedule("@every 10ms"))
	require.NoError(t, cleaner.Start())
	defer func() { <-cleaner.Stop().Done() }()

	require.Eventually(t, func() bool {
		return manager.PendingCount() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestRunOnceFlushesNotificationState(t *testing.T) {
	kv := storage.NewMemoryKV()
	engine, err := notify.NewEngine(context.Background(), storage.NewStore(kv, zap.NewNop()), nil, "", zap.NewNop())
	require.NoError(t, err)

	cleaner := NewCleaner(nil, engine, nil)
	require.NoError(t, cleaner.RunOnce(context.Background()))

	_, ok, err := kv.Get(context.Background(), storage.KeyNotificationHistory)
	require.NoError(t, err)
	require.True(t, ok, "flush persists the (empty) history document")
}

func TestCleanerWithoutJobsIsInert(t *testing.T) {
	cleaner := NewCleaner(nil, nil, nil)
	require.NoError(t, cleaner.Start())
	require.NoError(t, cleaner.RunOnce(context.Background()))
	<-cleaner.Stop().Done()
}
