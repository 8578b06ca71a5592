// Package consumer runs a bounded-concurrency receive loop over an
// mqs.Subscription, handing each message to a caller-supplied handler and
// resolving it (Ack/Nack) based on the handler's outcome.
package consumer

import (
	"context"
	"errors"
	"sync"

	"github.com/greetday/greetday/internal/logging"
	"github.com/greetday/greetday/internal/mqs"
)

// Handler processes one message. A nil error Acks; a non-nil error Nacks.
type Handler func(ctx context.Context, msg *mqs.IncomingMessage) error

// Consumer pulls from a Subscription with at most Concurrency messages
// in flight at once, and drains in-flight work before Run returns.
type Consumer struct {
	Name         string
	Subscription mqs.Subscription
	Handler      Handler
	Concurrency  int
	Logger       *logging.Logger
}

// Run receives and dispatches messages until ctx is canceled, then waits
// for in-flight handlers to finish before returning.
func (c *Consumer) Run(ctx context.Context) error {
	concurrency := c.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for {
		msg, err := c.Subscription.Receive(ctx)
		if err != nil {
			wg.Wait()
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(msg *mqs.IncomingMessage) {
			defer wg.Done()
			defer func() { <-sem }()
			c.handle(ctx, msg)
		}(msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg *mqs.IncomingMessage) {
	if err := c.Handler(ctx, msg); err != nil {
		if c.Logger != nil {
			c.Logger.Error(ctx, "consumer: handler failed", "consumer", c.Name, "error", err)
		}
		msg.Nack()
		return
	}
	msg.Ack()
}
