package idempotency_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greetday/greetday/internal/idempotency"
)

// fakeRedis implements just enough of redis.Cmdable (via embedding a nil
// interface and overriding the methods Guard actually calls) to drive
// idempotency.Exec's state machine without a live Redis server.
type fakeRedis struct {
	redis.Cmdable
	mu     sync.Mutex
	values map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}}
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewBoolCmd(ctx)
	if _, exists := f.values[key]; exists {
		cmd.SetVal(false)
		return cmd
	}
	f.values[key] = value.(string)
	cmd.SetVal(true)
	return cmd
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value.(string)
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewStringCmd(ctx)
	val, ok := f.values[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(val)
	return cmd
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.values, k)
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(keys)))
	return cmd
}

func TestGuard_RunsOnce(t *testing.T) {
	client := newFakeRedis()
	g := idempotency.New(client, idempotency.WithTimeout(time.Second))

	count := 0
	err := g.Exec(context.Background(), "key1", func(ctx context.Context) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGuard_SecondCallAfterSuccessIsNoOp(t *testing.T) {
	client := newFakeRedis()
	g := idempotency.New(client, idempotency.WithTimeout(time.Second), idempotency.WithSuccessfulTTL(time.Minute))

	count := 0
	fn := func(ctx context.Context) error {
		count++
		return nil
	}
	require.NoError(t, g.Exec(context.Background(), "key1", fn))
	require.NoError(t, g.Exec(context.Background(), "key1", fn))
	assert.Equal(t, 1, count, "second exec after success must not re-run")
}

func TestGuard_ConcurrentInFlightSuccessWaitsAndReturnsNil(t *testing.T) {
	client := newFakeRedis()
	g := idempotency.New(client, idempotency.WithTimeout(5*time.Second))

	var count int
	var mu sync.Mutex
	exec := func(ctx context.Context) error {
		time.Sleep(300 * time.Millisecond)
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}

	go func() { _ = g.Exec(context.Background(), "key1", exec) }()
	time.Sleep(50 * time.Millisecond)

	err := g.Exec(context.Background(), "key1", exec)
	require.NoError(t, err, "concurrent call should see the in-flight success and return nil")

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count, "only the first caller should have executed")
}

func TestGuard_ConcurrentInFlightFailureReturnsConflict(t *testing.T) {
	client := newFakeRedis()
	g := idempotency.New(client, idempotency.WithTimeout(5*time.Second))

	failErr := assert.AnError
	exec := func(ctx context.Context) error {
		time.Sleep(300 * time.Millisecond)
		return failErr
	}

	go func() { _ = g.Exec(context.Background(), "key1", exec) }()
	time.Sleep(50 * time.Millisecond)

	err := g.Exec(context.Background(), "key1", exec)
	assert.ErrorIs(t, err, idempotency.ErrConflict)
}

func TestGuard_AfterFailureNextCallRunsAgain(t *testing.T) {
	client := newFakeRedis()
	g := idempotency.New(client, idempotency.WithTimeout(time.Second))

	attempts := 0
	fn := func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return assert.AnError
		}
		return nil
	}

	err1 := g.Exec(context.Background(), "key1", fn)
	assert.Error(t, err1)

	err2 := g.Exec(context.Background(), "key1", fn)
	assert.NoError(t, err2)
	assert.Equal(t, 2, attempts)
}
