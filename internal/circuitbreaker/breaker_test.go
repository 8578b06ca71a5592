package circuitbreaker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greetday/greetday/internal/circuitbreaker"
)

func TestBreaker_AllowsSuccessfulCalls(t *testing.T) {
	b := circuitbreaker.New(circuitbreaker.Config{
		Name: "t", Window: time.Second, MinRequests: 10, FailureRatio: 0.5, Cooldown: time.Second,
	})
	for i := 0; i < 5; i++ {
		err := b.Execute(context.Background(), func(ctx context.Context) error { return nil })
		require.NoError(t, err)
	}
}

func TestBreaker_TripsAfterFailureRatioExceeded(t *testing.T) {
	b := circuitbreaker.New(circuitbreaker.Config{
		Name: "t", Window: time.Minute, MinRequests: 4, FailureRatio: 0.5, Cooldown: time.Minute,
	})
	boom := errors.New("boom")

	for i := 0; i < 4; i++ {
		_ = b.Execute(context.Background(), func(ctx context.Context) error { return boom })
	}

	err := b.Execute(context.Background(), func(ctx context.Context) error {
		t.Fatal("fn must not run while breaker is open")
		return nil
	})
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
}
