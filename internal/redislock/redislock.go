// Package redislock provides a simple distributed mutex used to elect a
// single active instance of the daily precomputer, minute enqueuer, and
// recovery loop across replicas, so a horizontally scaled deployment never
// double-runs any of the three.
package redislock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned by Lock when another holder already owns the
// key, and by Extend when this Lock no longer holds it.
var ErrNotAcquired = errors.New("redislock: lock not acquired")

// unlockScript releases the lock only if the caller's token still matches
// the stored value, so a holder never releases a lock it no longer owns
// (e.g. after its own TTL expired and a different instance acquired it).
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// extendScript refreshes the TTL under the same ownership guarantee.
const extendScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`

// Lock is a held distributed lock. Callers must call Unlock when done, and
// should call Extend periodically if the held critical section may outlive
// the lock's TTL.
type Lock struct {
	client *redis.Client
	key    string
	token  string
}

// Locker acquires named distributed locks backed by a Redis key.
type Locker struct {
	client *redis.Client
}

// New constructs a Locker backed by client.
func New(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// Lock attempts to acquire key for ttl, returning ErrNotAcquired if another
// holder currently owns it.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	token, err := randomToken()
	if err != nil {
		return nil, err
	}
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &Lock{client: l.client, key: key, token: token}, nil
}

// Unlock releases the lock iff it is still held by this Lock value.
func (lk *Lock) Unlock(ctx context.Context) error {
	return lk.client.Eval(ctx, unlockScript, []string{lk.key}, lk.token).Err()
}

// Extend refreshes the lock's TTL iff it is still held by this Lock value,
// and returns ErrNotAcquired if it is not.
func (lk *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := lk.client.Eval(ctx, extendScript, []string{lk.key}, lk.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotAcquired
	}
	return nil
}

func randomToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
