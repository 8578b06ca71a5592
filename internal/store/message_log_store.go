package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greetday/greetday/internal/models"
)

// MessageLogStore is the durable record of every intended delivery. The
// unique index on idempotency_key is what makes Insert's duplicate-key path
// the precomputer's entire "already covered" check.
type MessageLogStore interface {
	Insert(ctx context.Context, log *models.MessageLog) error
	FindByID(ctx context.Context, id string) (*models.MessageLog, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*models.MessageLog, error)
	// FindScheduledDueBy returns SCHEDULED logs whose ScheduledSendTime is
	// at or before cutoff, for the minute enqueuer's lookahead window.
	FindScheduledDueBy(ctx context.Context, cutoff time.Time) ([]*models.MessageLog, error)
	// FindOverdue returns SCHEDULED, QUEUED and SENDING logs whose
	// ScheduledSendTime is at or before cutoff, for the recovery loop to
	// reclaim.
	FindOverdue(ctx context.Context, cutoff time.Time) ([]*models.MessageLog, error)
	// CompareAndSetStatus moves id from expectedCurrent to next iff the
	// stored status still matches expectedCurrent, returning
	// models.ErrStatusConflict otherwise. Callers pass any status-specific
	// fields (SentAt, FailureReason, RetryCount, EnqueuedAt) in update.
	CompareAndSetStatus(ctx context.Context, id string, expectedCurrent, next models.Status, update StatusUpdate) error
	// DeleteFutureNonTerminalForUser cancels every non-terminal log for
	// userID whose ScheduledSendTime is still in the future, used when an
	// event date changes and the old occurrence must not fire (spec §9:
	// reschedule-on-update is delete-and-recreate via a new idempotency
	// key, never an in-place edit).
	DeleteFutureNonTerminalForUser(ctx context.Context, userID string, after time.Time) error
}

// StatusUpdate carries the fields that accompany a status transition.
type StatusUpdate struct {
	EnqueuedAt        *time.Time
	SentAt            *time.Time
	ScheduledSendTime *time.Time
	FailureReason     string
	RetryCount        *int
}

// PostgresMessageLogStore implements MessageLogStore over a pgx pool.
type PostgresMessageLogStore struct {
	pool *pgxpool.Pool
}

func NewPostgresMessageLogStore(pool *pgxpool.Pool) *PostgresMessageLogStore {
	return &PostgresMessageLogStore{pool: pool}
}

func (s *PostgresMessageLogStore) Insert(ctx context.Context, log *models.MessageLog) error {
	ctx, cancel := withWriteTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO message_logs
			(id, user_id, message_type, idempotency_key, status,
			 scheduled_send_time, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())`,
		log.ID, log.UserID, log.MessageType, log.IdempotencyKey, log.Status,
		log.ScheduledSendTime, log.RetryCount)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (s *PostgresMessageLogStore) FindByID(ctx context.Context, id string) (*models.MessageLog, error) {
	ctx, cancel := withReadTimeout(ctx)
	defer cancel()
	row := s.pool.QueryRow(ctx, messageLogSelect+` WHERE id = $1`, id)
	return scanMessageLog(row)
}

func (s *PostgresMessageLogStore) FindByIdempotencyKey(ctx context.Context, key string) (*models.MessageLog, error) {
	ctx, cancel := withReadTimeout(ctx)
	defer cancel()
	row := s.pool.QueryRow(ctx, messageLogSelect+` WHERE idempotency_key = $1`, key)
	return scanMessageLog(row)
}

func (s *PostgresMessageLogStore) FindScheduledDueBy(ctx context.Context, cutoff time.Time) ([]*models.MessageLog, error) {
	ctx, cancel := withReadTimeout(ctx)
	defer cancel()
	rows, err := s.pool.Query(ctx, messageLogSelect+`
		WHERE status = $1 AND scheduled_send_time <= $2
		ORDER BY scheduled_send_time ASC`, models.StatusScheduled, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessageLogs(rows)
}

// FindOverdue implements spec §4.7's recovery selection: logs in any
// non-terminal status whose scheduled send time is more than grace past
// due, covering a stall at any pipeline stage (never enqueued, stuck
// mid-delivery, or lost between SENDING and a terminal write).
func (s *PostgresMessageLogStore) FindOverdue(ctx context.Context, cutoff time.Time) ([]*models.MessageLog, error) {
	ctx, cancel := withReadTimeout(ctx)
	defer cancel()
	rows, err := s.pool.Query(ctx, messageLogSelect+`
		WHERE status IN ($1, $2, $3) AND scheduled_send_time <= $4
		ORDER BY scheduled_send_time ASC`,
		models.StatusScheduled, models.StatusQueued, models.StatusSending, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessageLogs(rows)
}

func (s *PostgresMessageLogStore) CompareAndSetStatus(ctx context.Context, id string, expectedCurrent, next models.Status, update StatusUpdate) error {
	if !expectedCurrent.CanTransition(next) {
		return &models.ErrInvalidTransition{From: expectedCurrent, To: next}
	}
	ctx, cancel := withWriteTimeout(ctx)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `
		UPDATE message_logs
		SET status = $1,
		    enqueued_at = COALESCE($2, enqueued_at),
		    sent_at = COALESCE($3, sent_at),
		    scheduled_send_time = COALESCE($4, scheduled_send_time),
		    failure_reason = CASE WHEN $5 <> '' THEN $5 ELSE failure_reason END,
		    retry_count = COALESCE($6, retry_count),
		    updated_at = now()
		WHERE id = $7 AND status = $8`,
		next, update.EnqueuedAt, update.SentAt, update.ScheduledSendTime, update.FailureReason, update.RetryCount, id, expectedCurrent)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrStatusConflict
	}
	return nil
}

func (s *PostgresMessageLogStore) DeleteFutureNonTerminalForUser(ctx context.Context, userID string, after time.Time) error {
	ctx, cancel := withWriteTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
		UPDATE message_logs
		SET status = $1, updated_at = now()
		WHERE user_id = $2 AND scheduled_send_time > $3
		  AND status IN ($4, $5, $6)`,
		models.StatusCanceled, userID, after, models.StatusScheduled, models.StatusQueued, models.StatusSending)
	return err
}

const messageLogSelect = `
	SELECT id, user_id, message_type, idempotency_key, status,
	       scheduled_send_time, enqueued_at, sent_at, failure_reason,
	       retry_count, created_at, updated_at
	FROM message_logs`

func scanMessageLog(row rowScanner) (*models.MessageLog, error) {
	var m models.MessageLog
	if err := row.Scan(
		&m.ID, &m.UserID, &m.MessageType, &m.IdempotencyKey, &m.Status,
		&m.ScheduledSendTime, &m.EnqueuedAt, &m.SentAt, &m.FailureReason,
		&m.RetryCount, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func scanMessageLogs(rows pgx.Rows) ([]*models.MessageLog, error) {
	var out []*models.MessageLog
	for rows.Next() {
		m, err := scanMessageLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
