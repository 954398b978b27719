// Package maintenance runs the agent's periodic background jobs: expiring
// stale optimistic updates, re-persisting notification state, and reporting
// coordinate resolution counters.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/lamont-llp/safeguard-eldos-sub000/internal/geo"
	"github.com/lamont-llp/safeguard-eldos-sub000/internal/notify"
	"github.com/lamont-llp/safeguard-eldos-sub000/internal/optimistic"
	"github.com/lamont-llp/safeguard-eldos-sub000/pkg/logger"
)

const (
	defaultFlushSpec = "@every 1m"
	defaultStatsSpec = "@hourly"
)

// Cleaner coordinates the background maintenance jobs. Any nil dependency
// results in the corresponding job being skipped.
type Cleaner struct {
	manager *optimistic.Manager
	engine  *notify.Engine
	stats   *geo.Stats
	cron    *cron.Cron
	log     *zap.Logger
	enabled bool

	sweepSchedule string
	flushSchedule string
	statsSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithSweepSchedule overrides the cron specification for the optimistic
// update sweep.
func WithSweepSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sweepSchedule = spec
		}
	}
}

// WithFlushSchedule overrides the cron specification for notification state
// flushing.
func WithFlushSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.flushSchedule = spec
		}
	}
}

// WithStatsSchedule overrides the cron specification for resolver stats
// reporting.
func WithStatsSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.statsSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults.
func NewCleaner(manager *optimistic.Manager, engine *notify.Engine, stats *geo.Stats, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		manager:       manager,
		engine:        engine,
		stats:         stats,
		sweepSchedule: fmt.Sprintf("@every %s", optimistic.SweepInterval),
		flushSchedule: defaultFlushSpec,
		statsSchedule: defaultStatsSpec,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.manager != nil || cleaner.engine != nil || cleaner.stats != nil
	return cleaner
}

// Start registers the jobs with the cron scheduler and launches it if at
// least one job is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if c.manager != nil {
		if _, err := c.cron.AddFunc(c.sweepSchedule, func() {
			if discarded := c.manager.Sweep(); discarded > 0 {
				c.log.Info("expired optimistic updates discarded", zap.Int("count", discarded))
			}
		}); err != nil {
			return err
		}
	}

	if c.engine != nil {
		if _, err := c.cron.AddFunc(c.flushSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			c.engine.Flush(ctx)
		}); err != nil {
			return err
		}
	}

	if c.stats != nil {
		if _, err := c.cron.AddFunc(c.statsSchedule, func() {
			snapshot := c.stats.Snapshot()
			c.log.Info("coordinate resolution summary",
				zap.Int("total", snapshot.Total),
				zap.Int("resolved", snapshot.Resolved),
				zap.Any("by_source", snapshot.BySource),
				zap.Any("by_confidence", snapshot.ByConfidence))
			c.stats.Reset()
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every configured job sequentially, used during graceful
// shutdown and in tests.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if c.manager != nil {
		c.manager.Sweep()
	}
	if c.engine != nil {
		c.engine.Flush(ctx)
	}
	if c.stats != nil {
		snapshot := c.stats.Snapshot()
		c.log.Debug("coordinate resolution summary",
			zap.Int("total", snapshot.Total),
			zap.Int("resolved", snapshot.Resolved))
	}

	return nil
}
