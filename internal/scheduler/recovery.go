package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/greetday/greetday/internal/clock"
	"github.com/greetday/greetday/internal/logging"
	"github.com/greetday/greetday/internal/models"
	"github.com/greetday/greetday/internal/store"
)

// RecoveryLoop reclaims logs stuck past Grace in any non-terminal status a
// worker or enqueuer might die while holding (QUEUED, SENDING), per spec
// §4.7. A reclaimed log with retries left goes back to SCHEDULED with
// ScheduledSendTime left untouched, so the next enqueuer tick republishes it
// immediately; one that has exhausted MaxRetries is marked FAILED instead of
// recycled forever. A log still SCHEDULED past grace means the enqueuer
// itself is behind, not the worker fleet — recovery only logs that case.
type RecoveryLoop struct {
	Logs       store.MessageLogStore
	Clock      clock.Clock
	Grace      time.Duration
	MaxRetries int
	Logger     *logging.Logger
}

func (r *RecoveryLoop) Tick(ctx context.Context) error {
	now := r.Clock.Now()
	stuck, err := r.Logs.FindOverdue(ctx, now.Add(-r.Grace))
	if err != nil {
		return err
	}

	for _, log := range stuck {
		if err := r.recoverOne(ctx, log); err != nil && r.Logger != nil {
			r.Logger.Error(ctx, "recovery: failed for message", "messageId", log.ID, "error", err)
		}
	}
	return nil
}

// recoverOne reopens one stuck log. FindOverdue can return SCHEDULED,
// QUEUED, or SENDING logs, so the compare-and-set's expected current status
// must follow log.Status rather than assume a single fixed value.
func (r *RecoveryLoop) recoverOne(ctx context.Context, log *models.MessageLog) error {
	if log.Status == models.StatusScheduled {
		if r.Logger != nil {
			r.Logger.Warn(ctx, "recovery: log overdue while still SCHEDULED, enqueuer may be stalled", "messageId", log.ID, "userId", log.UserID)
		}
		return nil
	}

	if log.RetryCount >= r.MaxRetries {
		err := r.Logs.CompareAndSetStatus(ctx, log.ID, log.Status, models.StatusFailed, store.StatusUpdate{
			FailureReason: fmt.Sprintf("recovery: exceeded max retries while stuck in %s", log.Status),
		})
		if err != nil && err != models.ErrStatusConflict {
			return err
		}
		if r.Logger != nil {
			r.Logger.Audit(ctx, "recovery: marked failed", "messageId", log.ID, "userId", log.UserID, "fromStatus", log.Status)
		}
		return nil
	}

	retries := log.RetryCount + 1
	err := r.Logs.CompareAndSetStatus(ctx, log.ID, log.Status, models.StatusScheduled, store.StatusUpdate{
		RetryCount: &retries,
	})
	if err != nil && err != models.ErrStatusConflict {
		return err
	}
	if r.Logger != nil {
		r.Logger.Audit(ctx, "recovery: reclaimed stuck message", "messageId", log.ID, "userId", log.UserID, "fromStatus", log.Status, "retryCount", retries)
	}
	return nil
}
