package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrConflict is returned by Exec when another in-flight (or just-failed)
// execution holds the same key and that execution did not succeed. A
// caller that gets ErrConflict did not run its function and must not
// assume the underlying work happened.
var ErrConflict = errors.New("idempotency: conflicting execution")

const (
	stateProcessing = "processing"
	stateDone       = "done"
	defaultPrefix   = "idempotency:guard:"
	defaultPoll     = 50 * time.Millisecond
)

// Guard serializes concurrent executions of the same logical operation,
// identified by a caller-supplied key, across process boundaries via Redis.
// It is the mechanism behind the worker's "already SENT?" crash-safety
// check: two workers (or a worker and its own redelivery) racing on the
// same delivery either both see the same outcome or one is told to stand
// down with ErrConflict.
type Guard interface {
	Exec(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

type guard struct {
	client        redis.Cmdable
	prefix        string
	timeout       time.Duration
	successfulTTL time.Duration
	pollInterval  time.Duration
}

// Option configures a Guard.
type Option func(*guard)

// WithTimeout sets how long an in-flight execution holds its lock before it
// is considered abandoned and eligible for a fresh attempt.
func WithTimeout(timeout time.Duration) Option {
	return func(g *guard) { g.timeout = timeout }
}

// WithSuccessfulTTL sets how long a successful execution is remembered, so
// redeliveries within the window are absorbed as no-ops instead of re-run.
func WithSuccessfulTTL(ttl time.Duration) Option {
	return func(g *guard) { g.successfulTTL = ttl }
}

// WithPrefix overrides the default Redis key namespace.
func WithPrefix(prefix string) Option {
	return func(g *guard) { g.prefix = prefix }
}

// New constructs a Guard backed by client.
func New(client redis.Cmdable, opts ...Option) Guard {
	g := &guard{
		client:        client,
		prefix:        defaultPrefix,
		timeout:       30 * time.Second,
		successfulTTL: 24 * time.Hour,
		pollInterval:  defaultPoll,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Exec runs fn at most once per key within the successful-TTL window.
//
//   - If no execution for key is in flight, this caller acquires the lock,
//     runs fn, and on success marks the key done for successfulTTL; on
//     failure it releases the lock immediately so the next caller may retry.
//   - If an execution is already in flight, this caller waits for it to
//     resolve: it returns nil if that execution succeeded, or ErrConflict
//     if it failed or was abandoned — without itself calling fn.
//   - If a prior execution already succeeded and is still within its TTL,
//     this caller returns nil immediately without calling fn.
func (g *guard) Exec(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	redisKey := g.prefix + key

	acquired, err := g.client.SetNX(ctx, redisKey, stateProcessing, g.timeout).Result()
	if err != nil {
		return fmt.Errorf("idempotency: acquire lock: %w", err)
	}
	if !acquired {
		return g.awaitResolution(ctx, redisKey)
	}

	err = fn(ctx)
	if err != nil {
		if delErr := g.client.Del(ctx, redisKey).Err(); delErr != nil {
			return fmt.Errorf("idempotency: exec failed (%w) and failed to release lock: %v", err, delErr)
		}
		return err
	}

	if setErr := g.client.Set(ctx, redisKey, stateDone, g.successfulTTL).Err(); setErr != nil {
		return fmt.Errorf("idempotency: exec succeeded but failed to mark done: %w", setErr)
	}
	return nil
}

func (g *guard) awaitResolution(ctx context.Context, redisKey string) error {
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			val, err := g.client.Get(ctx, redisKey).Result()
			if errors.Is(err, redis.Nil) {
				return ErrConflict
			}
			if err != nil {
				return fmt.Errorf("idempotency: await resolution: %w", err)
			}
			if val == stateDone {
				return nil
			}
			// Still processing; keep polling until the holder resolves
			// the key or its lock TTL expires (surfaced as redis.Nil).
		}
	}
}
