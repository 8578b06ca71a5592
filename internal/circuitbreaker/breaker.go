// Package circuitbreaker wraps sony/gobreaker with the delivery pipeline's
// specific trip policy: open after a majority failure ratio over a rolling
// window of at least a minimum request count, cool down, then allow a
// single trial request through (gobreaker's half-open state).
package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned by Execute when the breaker is open and short-circuits
// the call without attempting delivery. Callers treat this as a transient
// failure eligible for retry, not a poison message.
var ErrOpen = gobreaker.ErrOpenState

// Config tunes the trip policy.
type Config struct {
	Name              string
	Window            time.Duration
	MinRequests       uint32
	FailureRatio      float64
	Cooldown          time.Duration
	HalfOpenMaxProbes uint32
}

// Breaker guards calls to an unreliable downstream (the greeting delivery
// transport) so a sustained outage fails fast instead of piling up retries.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New constructs a Breaker from cfg.
func New(cfg Config) *Breaker {
	maxProbes := cfg.HalfOpenMaxProbes
	if maxProbes == 0 {
		maxProbes = 1
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		Interval:    cfg.Window,
		Timeout:     cfg.Cooldown,
		MaxRequests: maxProbes,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker. If the breaker is open, fn is never
// called and ErrOpen is returned.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) {
		return ErrOpen
	}
	return err
}

// State reports the breaker's current state, for health/metrics surfaces.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
