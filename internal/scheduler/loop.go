// Package scheduler implements the two-stage scheduling pipeline: a daily
// precomputer that materializes SCHEDULED message logs once a day (on start,
// then every 24 hours from then; the run is not aligned to 00:00 UTC), a
// minute enqueuer that promotes due logs to QUEUED on the delivery queue,
// and a recovery loop that reclaims logs stuck in SCHEDULED, QUEUED, or
// SENDING past their grace period. All three run as worker.Worker loops,
// elected to a single active instance per deployment via redislock.
package scheduler

import (
	"context"
	"time"

	"github.com/greetday/greetday/internal/logging"
)

// Loop runs tick once immediately and then every interval until ctx is
// canceled. A tick error is logged but does not stop the loop — the next
// scheduled tick tries again, since these are recurring reconciliation
// passes, not one-shot jobs.
type Loop struct {
	LoopName string
	Interval time.Duration
	Tick     func(ctx context.Context) error
	Logger   *logging.Logger
}

func (l *Loop) Name() string { return l.LoopName }

func (l *Loop) Run(ctx context.Context) error {
	l.runTick(ctx)

	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.runTick(ctx)
		}
	}
}

func (l *Loop) runTick(ctx context.Context) {
	if err := l.Tick(ctx); err != nil && l.Logger != nil {
		l.Logger.Error(ctx, "scheduler: tick failed", "loop", l.LoopName, "error", err)
	}
}
