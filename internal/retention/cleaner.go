// Package retention periodically prunes stale usage records.
package retention

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultInterval = 6 * time.Hour

// PruneFunc deletes records last touched in a month before before and
// returns how many were removed.
type PruneFunc func(ctx context.Context, before time.Time) (int64, error)

// Cleaner runs a PruneFunc on an interval.
type Cleaner struct {
	prune     PruneFunc
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	log       logrus.FieldLogger
}

// Option configures a Cleaner.
type Option func(*Cleaner)

// WithInterval sets how often the cleaner runs (default 6h).
func WithInterval(d time.Duration) Option {
	return func(c *Cleaner) { c.interval = d }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cleaner) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Cleaner) { c.log = l }
}

// New creates a cleaner that keeps records touched within retention.
// It returns nil when prune is nil or retention is not positive.
func New(prune PruneFunc, retention time.Duration, opts ...Option) *Cleaner {
	if prune == nil || retention <= 0 {
		return nil
	}
	c := &Cleaner{
		prune:     prune,
		retention: retention,
		interval:  defaultInterval,
		now:       time.Now,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the cleanup loop in a background goroutine.
func (c *Cleaner) Start(ctx context.Context) {
	if c == nil {
		return
	}
	go c.run(ctx)
	c.log.Infof("usage retention cleaner started (interval=%s, retention=%s)", c.interval, c.retention)
}

func (c *Cleaner) run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		c.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce prunes once and logs the outcome.
func (c *Cleaner) RunOnce(ctx context.Context) (int64, error) {
	before := c.now().Add(-c.retention)
	n, err := c.prune(ctx, before)
	if err != nil {
		c.log.WithError(err).Warn("usage retention cleanup failed")
		return 0, err
	}
	if n > 0 {
		c.log.WithField("removed", n).Info("usage retention cleanup")
	}
	return n, nil
}
