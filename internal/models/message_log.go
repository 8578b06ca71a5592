package models

import (
	"fmt"
	"time"
)

// Status is the state of one scheduled greeting, per the precompute ->
// enqueue -> deliver pipeline in spec §4.5.
type Status string

const (
	// StatusScheduled is the state a daily precompute run inserts: a
	// concrete send time is known but nothing has been published yet.
	StatusScheduled Status = "SCHEDULED"
	// StatusQueued means the minute enqueuer has published the work item
	// to the queue and is waiting on a worker to pick it up.
	StatusQueued Status = "QUEUED"
	// StatusSending means a worker has picked up the item and is calling
	// the delivery client; this is the narrow window recovery exists for.
	StatusSending Status = "SENDING"
	// StatusRetrying means a delivery attempt failed transiently and a
	// retry is being scheduled; it is never durably persisted on its own —
	// CompareAndSetStatus passes through it on the way back to SCHEDULED
	// (see retryOrFail in internal/worker) — but it is a first-class state
	// so the transition table can name it. The recovery loop does not select
	// RETRYING logs.
	StatusRetrying Status = "RETRYING"
	// StatusSent is terminal: the message was delivered.
	StatusSent Status = "SENT"
	// StatusFailed is terminal: delivery was abandoned after exhausting
	// retries, or the message was a permanent or poison failure.
	StatusFailed Status = "FAILED"
	// StatusCanceled is terminal: the log was retired before delivery,
	// because the user was deleted or the event was rescheduled out from
	// under it.
	StatusCanceled Status = "CANCELED"
)

// validTransitions enumerates the state machine's edges from spec §4.5,
// plus StatusCanceled (a redesign addition — see DESIGN.md's Open
// Question discussion of delete-vs-retire for future non-terminal logs).
var validTransitions = map[Status]map[Status]bool{
	StatusScheduled: {StatusQueued: true, StatusCanceled: true, StatusFailed: true},
	StatusQueued:    {StatusSending: true, StatusScheduled: true, StatusCanceled: true, StatusFailed: true},
	// StatusSending -> StatusScheduled is the recovery loop's edge for a
	// worker that died mid-delivery: spec §4.7 selects SENDING among the
	// statuses recovery reclaims, even though §4.5's edge list only
	// spells out QUEUED|SCHEDULED -> SCHEDULED; this closes that gap.
	StatusSending: {StatusSent: true, StatusRetrying: true, StatusFailed: true, StatusCanceled: true, StatusScheduled: true},
	StatusRetrying:  {StatusScheduled: true, StatusQueued: true},
}

// IsTerminal reports whether a log in this status is done being acted on.
func (s Status) IsTerminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusCanceled
}

// MessageLog is the durable, idempotent record of one intended greeting
// delivery — one row per (userId, messageType, localDate) occurrence, ever.
// The unique index on IdempotencyKey is what makes re-running precompute
// for an already-covered day a no-op instead of a duplicate.
type MessageLog struct {
	ID                string
	UserID            string
	MessageType       string
	IdempotencyKey    string
	Status            Status
	ScheduledSendTime time.Time
	EnqueuedAt        *time.Time
	SentAt            *time.Time
	FailureReason     string
	RetryCount        int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ErrInvalidTransition is returned when a caller attempts to move a log
// between statuses that the state machine does not allow.
type ErrInvalidTransition struct {
	From, To Status
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("message log: invalid transition %s -> %s", e.From, e.To)
}

// CanTransition reports whether moving from s to next is a legal edge.
func (s Status) CanTransition(next Status) bool {
	return validTransitions[s][next]
}

// Transition validates and applies a status change in place.
// PostgresMessageLogStore.CompareAndSetStatus checks the same table (via
// CanTransition) before issuing its update, so an illegal transition never
// reaches the database.
func (m *MessageLog) Transition(next Status) error {
	if !m.Status.CanTransition(next) {
		return &ErrInvalidTransition{From: m.Status, To: next}
	}
	m.Status = next
	return nil
}
