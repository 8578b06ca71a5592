// Package worker defines the supervised-goroutine contract every
// long-running loop in greetday implements (the daily precomputer, the
// minute enqueuer, the recovery loop, and the delivery consumer), and a
// Supervisor that runs a set of them together with shared shutdown
// semantics.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/greetday/greetday/internal/logging"
)

// Worker is one independently-supervised unit of long-running work. Run
// must block until ctx is canceled (or it decides to stop on its own) and
// return a non-nil error only for an abnormal exit.
type Worker interface {
	Name() string
	Run(ctx context.Context) error
}

// Supervisor runs a fixed set of Workers concurrently and waits for all of
// them to exit (on context cancellation) before Run returns. If any worker
// returns an error, the supervisor cancels the rest and reports it.
type Supervisor struct {
	workers []Worker
	logger  *logging.Logger

	mu      sync.Mutex
	healthy map[string]bool
}

// NewSupervisor constructs a Supervisor over workers.
func NewSupervisor(logger *logging.Logger, workers ...Worker) *Supervisor {
	healthy := make(map[string]bool, len(workers))
	for _, w := range workers {
		healthy[w.Name()] = true
	}
	return &Supervisor{workers: workers, logger: logger, healthy: healthy}
}

// Run starts every worker and blocks until ctx is canceled or one worker
// fails, then waits (bounded by shutdownTimeout) for the rest to drain.
func (s *Supervisor) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(s.workers))
	var wg sync.WaitGroup

	for _, w := range s.workers {
		wg.Add(1)
		go func(w Worker) {
			defer wg.Done()
			err := w.Run(ctx)
			s.setHealthy(w.Name(), err == nil)
			if err != nil {
				if s.logger != nil {
					s.logger.Error(ctx, "worker exited with error", "worker", w.Name(), "error", err)
				}
				errCh <- fmt.Errorf("worker %s: %w", w.Name(), err)
				cancel()
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		select {
		case <-done:
		case <-time.After(shutdownTimeout):
			if s.logger != nil {
				s.logger.Warn(ctx, "supervisor: shutdown timed out waiting for workers to drain")
			}
		}
	}

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func (s *Supervisor) setHealthy(name string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy[name] = ok
}

// Healthy reports whether every worker is still running normally.
func (s *Supervisor) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ok := range s.healthy {
		if !ok {
			return false
		}
	}
	return true
}
