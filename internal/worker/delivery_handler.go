package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/greetday/greetday/internal/backoff"
	"github.com/greetday/greetday/internal/circuitbreaker"
	"github.com/greetday/greetday/internal/clock"
	"github.com/greetday/greetday/internal/delivery"
	"github.com/greetday/greetday/internal/idempotency"
	"github.com/greetday/greetday/internal/logging"
	"github.com/greetday/greetday/internal/models"
	"github.com/greetday/greetday/internal/mqs"
	"github.com/greetday/greetday/internal/store"
	"github.com/greetday/greetday/internal/strategy"
)

// PreDeliveryError wraps a failure before the delivery attempt itself:
// an unparseable work item, an unknown message type, a missing log row.
// These never retry — the message is structurally broken, not unlucky.
type PreDeliveryError struct {
	Cause error
}

func (e *PreDeliveryError) Error() string { return fmt.Sprintf("pre-delivery: %v", e.Cause) }
func (e *PreDeliveryError) Unwrap() error { return e.Cause }

// PostDeliveryError wraps a store error hit while recording the outcome of
// a delivery attempt (sent, retry, failed, or canceled). A compare-and-set
// that loses a race to another writer is not reported as an error.
type PostDeliveryError struct {
	Cause error
}

func (e *PostDeliveryError) Error() string { return fmt.Sprintf("post-delivery: %v", e.Cause) }
func (e *PostDeliveryError) Unwrap() error { return e.Cause }

// DeliveryHandler implements the consumer.Handler contract for the
// delivery queue: it resolves one WorkItem to exactly one terminal or
// rescheduled state, per spec §4.6/§7's retry and DLQ classification.
type DeliveryHandler struct {
	Logs       store.MessageLogStore
	Users      store.UserRepository
	Registry   *strategy.Registry
	Guard      idempotency.Guard
	Breaker    *circuitbreaker.Breaker
	Client     delivery.Client
	Backoff    backoff.Backoff
	MaxRetries int
	Clock      clock.Clock
	Logger     *logging.Logger
}

// Handle is a consumer.Handler.
func (h *DeliveryHandler) Handle(ctx context.Context, msg *mqs.IncomingMessage) error {
	var item models.WorkItem
	if err := json.Unmarshal(msg.Body, &item); err != nil {
		return &PreDeliveryError{Cause: err}
	}

	guardKey := "deliver:" + item.MessageID
	err := h.Guard.Exec(ctx, guardKey, func(ctx context.Context) error {
		return h.deliver(ctx, item)
	})
	if errors.Is(err, idempotency.ErrConflict) {
		if h.Logger != nil {
			h.Logger.Warn(ctx, "delivery: conflicting concurrent attempt", "messageId", item.MessageID)
		}
		return err
	}
	return err
}

func (h *DeliveryHandler) deliver(ctx context.Context, item models.WorkItem) error {
	log, err := h.Logs.FindByID(ctx, item.MessageID)
	if err != nil {
		return &PreDeliveryError{Cause: err}
	}
	if log.Status != models.StatusQueued {
		// Already resolved by a prior attempt (or the recovery loop); a
		// redelivered copy of this work item is a no-op.
		return nil
	}

	// QUEUED -> SENDING marks the moment this worker claims the item, per
	// spec §4.5's "worker pick-up" edge. Losing the race means another
	// worker (or recovery) already claimed it; treat that as a no-op too.
	if err := h.Logs.CompareAndSetStatus(ctx, log.ID, models.StatusQueued, models.StatusSending, store.StatusUpdate{}); err != nil {
		if err == models.ErrStatusConflict {
			return nil
		}
		return &PreDeliveryError{Cause: err}
	}
	log.Status = models.StatusSending

	user, err := h.Users.FindByID(ctx, log.UserID)
	if err != nil {
		if err == models.ErrNotFound {
			return h.cancel(ctx, log, "user not found")
		}
		return err
	}
	if user.IsDeleted() {
		return h.cancel(ctx, log, "user deleted")
	}

	s, err := h.Registry.Get(log.MessageType)
	if err != nil {
		return &PreDeliveryError{Cause: err}
	}
	subject, body := s.ComposeMessage(user)

	var outcome delivery.Outcome
	sendErr := h.Breaker.Execute(ctx, func(ctx context.Context) error {
		o, err := h.Client.Send(ctx, delivery.Message{UserID: user.ID, Subject: subject, Body: body})
		outcome = o
		if err != nil {
			return err
		}
		if o != delivery.OutcomeSuccess {
			return fmt.Errorf("delivery: non-success outcome %s", o)
		}
		return nil
	})

	if errors.Is(sendErr, circuitbreaker.ErrOpen) {
		return h.retryOrFail(ctx, log, "circuit breaker open")
	}
	if sendErr == nil {
		return h.markSent(ctx, log)
	}

	switch outcome {
	case delivery.OutcomeTransient:
		return h.retryOrFail(ctx, log, sendErr.Error())
	case delivery.OutcomePermanent, delivery.OutcomePoison:
		return h.markFailed(ctx, log, sendErr.Error())
	default:
		return h.retryOrFail(ctx, log, sendErr.Error())
	}
}

func (h *DeliveryHandler) markSent(ctx context.Context, log *models.MessageLog) error {
	now := h.Clock.Now()
	err := h.Logs.CompareAndSetStatus(ctx, log.ID, models.StatusSending, models.StatusSent, store.StatusUpdate{SentAt: &now})
	if err != nil && err != models.ErrStatusConflict {
		return &PostDeliveryError{Cause: err}
	}
	if h.Logger != nil {
		h.Logger.Audit(ctx, "delivery: sent", "messageId", log.ID, "userId", log.UserID, "messageType", log.MessageType)
	}
	return nil
}

// retryOrFail moves a transiently-failed attempt SENDING -> RETRYING ->
// SCHEDULED, per spec §4.5's edges, persisting the backoff-computed next
// ScheduledSendTime so the enqueuer republishes it once due.
func (h *DeliveryHandler) retryOrFail(ctx context.Context, log *models.MessageLog, reason string) error {
	if log.RetryCount >= h.MaxRetries {
		return h.markFailed(ctx, log, fmt.Sprintf("exceeded max retries: %s", reason))
	}
	delay := h.Backoff.Duration(log.RetryCount)
	retries := log.RetryCount + 1
	next := h.Clock.Now().Add(delay)

	if err := h.Logs.CompareAndSetStatus(ctx, log.ID, models.StatusSending, models.StatusRetrying, store.StatusUpdate{
		FailureReason: reason,
	}); err != nil && err != models.ErrStatusConflict {
		return &PostDeliveryError{Cause: err}
	}

	err := h.Logs.CompareAndSetStatus(ctx, log.ID, models.StatusRetrying, models.StatusScheduled, store.StatusUpdate{
		RetryCount:        &retries,
		ScheduledSendTime: &next,
	})
	if err != nil && err != models.ErrStatusConflict {
		return &PostDeliveryError{Cause: err}
	}
	log.ScheduledSendTime = next
	if h.Logger != nil {
		h.Logger.Audit(ctx, "delivery: scheduled retry", "messageId", log.ID, "retryCount", retries, "delay", delay, "reason", reason)
	}
	return nil
}

func (h *DeliveryHandler) markFailed(ctx context.Context, log *models.MessageLog, reason string) error {
	err := h.Logs.CompareAndSetStatus(ctx, log.ID, models.StatusSending, models.StatusFailed, store.StatusUpdate{FailureReason: reason})
	if err != nil && err != models.ErrStatusConflict {
		return &PostDeliveryError{Cause: err}
	}
	if h.Logger != nil {
		h.Logger.Audit(ctx, "delivery: failed terminally", "messageId", log.ID, "userId", log.UserID, "reason", reason)
	}
	return nil
}

// cancel retires a log before any delivery attempt reached the transport
// (user deleted, or not found). deliver() always claims SENDING before
// reaching these checks, so that's the only status cancel ever sees here.
func (h *DeliveryHandler) cancel(ctx context.Context, log *models.MessageLog, reason string) error {
	err := h.Logs.CompareAndSetStatus(ctx, log.ID, models.StatusSending, models.StatusCanceled, store.StatusUpdate{FailureReason: reason})
	if err != nil && err != models.ErrStatusConflict {
		return &PostDeliveryError{Cause: err}
	}
	if h.Logger != nil {
		h.Logger.Audit(ctx, "delivery: canceled", "messageId", log.ID, "userId", log.UserID, "reason", reason)
	}
	return nil
}
