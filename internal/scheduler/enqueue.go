package scheduler

import (
	"context"
	"time"

	"github.com/greetday/greetday/internal/clock"
	"github.com/greetday/greetday/internal/logging"
	"github.com/greetday/greetday/internal/models"
	"github.com/greetday/greetday/internal/mqs"
	"github.com/greetday/greetday/internal/store"
)

// Enqueuer runs every tick (conventionally once a minute) and promotes
// every SCHEDULED log due within Lookahead to QUEUED, publishing its work
// item to the delivery queue. The status flip happens before publish is
// confirmed isn't safe, so this does it in the opposite, crash-safe order:
// publish first, then compare-and-set the row to QUEUED; if the
// compare-and-set loses a race (another enqueuer instance got there
// first), the duplicate publish is a harmless no-op since the worker's
// idempotency guard absorbs redelivery.
type Enqueuer struct {
	Logs      store.MessageLogStore
	Queue     mqs.Queue
	Clock     clock.Clock
	Lookahead time.Duration
	Logger    *logging.Logger
}

func (e *Enqueuer) Tick(ctx context.Context) error {
	now := e.Clock.Now()
	due, err := e.Logs.FindScheduledDueBy(ctx, now.Add(e.Lookahead))
	if err != nil {
		return err
	}

	for _, log := range due {
		if err := e.enqueueOne(ctx, log, now); err != nil && e.Logger != nil {
			e.Logger.Error(ctx, "enqueue: failed for message", "messageId", log.ID, "error", err)
		}
	}
	return nil
}

func (e *Enqueuer) enqueueOne(ctx context.Context, log *models.MessageLog, now time.Time) error {
	item := models.NewWorkItem(log, now)
	body, err := marshalWorkItem(item)
	if err != nil {
		return err
	}

	// "routing_key" must match the KeyName rabbitpubsub.OpenTopic was
	// configured with in mqs.NewQueue, since the shared publish topic
	// routes each work item by message type via AMQP routing key rather
	// than one topic per type.
	if err := e.Queue.Publish(ctx, mqs.Message{
		Body:     body,
		Metadata: map[string]string{"routing_key": log.MessageType},
	}); err != nil {
		return err
	}

	enqueuedAt := now
	err = e.Logs.CompareAndSetStatus(ctx, log.ID, models.StatusScheduled, models.StatusQueued, store.StatusUpdate{
		EnqueuedAt: &enqueuedAt,
	})
	if err != nil && err != models.ErrStatusConflict {
		return err
	}
	if e.Logger != nil {
		e.Logger.Audit(ctx, "enqueue: published message", "messageId", log.ID, "userId", log.UserID, "messageType", log.MessageType)
	}
	return nil
}
