// Package app wires every component into a running process and owns its
// lifecycle: construct dependencies (PreRun), run until signaled (Run),
// then release them in reverse order (PostRun).
package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/greetday/greetday/internal/backoff"
	"github.com/greetday/greetday/internal/circuitbreaker"
	"github.com/greetday/greetday/internal/clock"
	"github.com/greetday/greetday/internal/config"
	"github.com/greetday/greetday/internal/consumer"
	"github.com/greetday/greetday/internal/delivery"
	"github.com/greetday/greetday/internal/idempotency"
	"github.com/greetday/greetday/internal/logging"
	"github.com/greetday/greetday/internal/migrator"
	"github.com/greetday/greetday/internal/mqs"
	"github.com/greetday/greetday/internal/redislock"
	"github.com/greetday/greetday/internal/scheduler"
	"github.com/greetday/greetday/internal/store"
	"github.com/greetday/greetday/internal/strategy"
	"github.com/greetday/greetday/internal/worker"
)

const (
	lockPrecompute = "greetday:lock:precompute"
	lockEnqueue    = "greetday:lock:enqueue"
	lockRecovery   = "greetday:lock:recovery"
	lockTTL        = 2 * time.Minute
	shutdownGrace  = 30 * time.Second
)

// App holds every long-lived dependency for a `serve` process.
type App struct {
	Config *config.Config
	Logger *logging.Logger

	pgPool   *pgxpool.Pool
	redis    *redis.Client
	amqpConn *amqp.Connection

	supervisor *worker.Supervisor
}

// PreRun constructs every dependency and applies pending DB migrations.
// Nothing here is allowed to block indefinitely; connection setup is
// expected to fail fast if the target isn't reachable.
func (a *App) PreRun(ctx context.Context) error {
	if err := migrator.Up(a.Config.PostgresURL); err != nil {
		return fmt.Errorf("app: migrate: %w", err)
	}

	pgPool, err := pgxpool.New(ctx, a.Config.PostgresURL)
	if err != nil {
		return fmt.Errorf("app: postgres: %w", err)
	}
	a.pgPool = pgPool

	redisOpts, err := redis.ParseURL(a.Config.RedisURL)
	if err != nil {
		return fmt.Errorf("app: parse redis url: %w", err)
	}
	a.redis = redis.NewClient(redisOpts)

	amqpConn, err := amqp.Dial(a.Config.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("app: rabbitmq: %w", err)
	}
	a.amqpConn = amqpConn

	registry := strategy.NewRegistry()
	registry.Register(strategy.Birthday{})
	registry.Register(strategy.Anniversary{})

	users := store.NewPostgresUserRepository(a.pgPool)
	logs := store.NewPostgresMessageLogStore(a.pgPool)
	locker := redislock.New(a.redis)
	realClock := clock.Real()

	workers := []worker.Worker{}

	for _, s := range registry.All() {
		topo := mqs.DefaultTopology(s.MessageType())
		ch, err := a.amqpConn.Channel()
		if err != nil {
			return fmt.Errorf("app: open channel for %s: %w", s.MessageType(), err)
		}
		if err := mqs.Declare(ch, topo); err != nil {
			return fmt.Errorf("app: declare topology for %s: %w", s.MessageType(), err)
		}

		sub, err := mqs.NewSubscription(a.amqpConn, topo)
		if err != nil {
			return fmt.Errorf("app: subscription for %s: %w", s.MessageType(), err)
		}

		handler := &worker.DeliveryHandler{
			Logs:     logs,
			Users:    users,
			Registry: registry,
			Guard: idempotency.New(a.redis,
				idempotency.WithTimeout(a.Config.IdempotencyGuardTimeout),
				idempotency.WithSuccessfulTTL(a.Config.IdempotencyGuardSuccessfulTTL)),
			Breaker: circuitbreaker.New(circuitbreaker.Config{
				Name:         s.MessageType(),
				Window:       a.Config.CircuitBreakerWindow,
				MinRequests:  a.Config.CircuitBreakerMinRequests,
				FailureRatio: a.Config.CircuitBreakerFailureRatio,
				Cooldown:     a.Config.CircuitBreakerCooldown,
			}),
			Client:     delivery.NewHTTPClient(a.Config.DeliveryEndpoint),
			Backoff:    backoff.ExponentialBackoff{Interval: time.Second, Base: 2, Cap: 30 * time.Second},
			MaxRetries: a.Config.MaxRetries,
			Clock:      realClock,
			Logger:     a.Logger,
		}

		workers = append(workers, &leaderElectedWorker{
			name: "consumer:" + s.MessageType(),
			inner: &consumer.Consumer{
				Name:         s.MessageType(),
				Subscription: sub,
				Handler:      handler.Handle,
				Concurrency:  a.Config.WorkerConcurrency,
				Logger:       a.Logger,
			},
		})
	}

	precompute := &scheduler.Precomputer{Users: users, Logs: logs, Registry: registry, Clock: realClock, Logger: a.Logger}
	enqueue := &scheduler.Enqueuer{Logs: logs, Queue: mustPrimaryQueue(a, registry), Clock: realClock, Lookahead: a.Config.EnqueueLookahead, Logger: a.Logger}
	recovery := &scheduler.RecoveryLoop{Logs: logs, Clock: realClock, Grace: a.Config.RecoveryGrace, MaxRetries: a.Config.MaxRetries, Logger: a.Logger}

	workers = append(workers,
		&leaderElectedWorker{name: "precompute", locker: locker, lockKey: lockPrecompute, inner: &scheduler.Loop{LoopName: "precompute", Interval: 24 * time.Hour, Tick: precompute.Tick, Logger: a.Logger}},
		&leaderElectedWorker{name: "enqueue", locker: locker, lockKey: lockEnqueue, inner: &scheduler.Loop{LoopName: "enqueue", Interval: a.Config.EnqueueInterval, Tick: enqueue.Tick, Logger: a.Logger}},
		&leaderElectedWorker{name: "recovery", locker: locker, lockKey: lockRecovery, inner: &scheduler.Loop{LoopName: "recovery", Interval: a.Config.RecoveryInterval, Tick: recovery.Tick, Logger: a.Logger}},
	)

	a.supervisor = worker.NewSupervisor(a.Logger, workers...)
	return nil
}

// mustPrimaryQueue picks an arbitrary strategy's topology to publish
// through; all message types share one enqueuer publishing by routing key,
// matching DefaultTopology's shared exchange.
func mustPrimaryQueue(a *App, registry *strategy.Registry) mqs.Queue {
	all := registry.All()
	topo := mqs.DefaultTopology(all[0].MessageType())
	topo.RoutingKey = "" // enqueuer sets routing key per-message via metadata
	q, err := mqs.NewQueue(a.amqpConn, topo)
	if err != nil {
		panic(fmt.Sprintf("app: open publish topic: %v", err))
	}
	return q
}

// Run blocks until SIGINT/SIGTERM, then returns after workers drain.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.supervisor.Run(ctx, shutdownGrace)
}

// PostRun releases every dependency acquired in PreRun.
func (a *App) PostRun(ctx context.Context) error {
	if a.amqpConn != nil {
		_ = a.amqpConn.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pgPool != nil {
		a.pgPool.Close()
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return nil
}

// leaderElectedWorker wraps a worker.Worker so only the replica holding
// lockKey actually runs inner.Run; the rest poll for the lock and stand by.
// Workers with no locker (per-message-type consumers) run unconditionally,
// since RabbitMQ's own per-message delivery already balances across
// consumers safely.
type leaderElectedWorker struct {
	name    string
	locker  *redislock.Locker
	lockKey string
	inner   worker.Worker
}

func (w *leaderElectedWorker) Name() string { return w.name }

func (w *leaderElectedWorker) Run(ctx context.Context) error {
	if w.locker == nil {
		return w.inner.Run(ctx)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		lock, err := w.locker.Lock(ctx, w.lockKey, lockTTL)
		if err == nil {
			innerErr := w.runElected(ctx, lock)
			if innerErr != nil {
				return innerErr
			}
			continue // lost leadership or lock extension failed; retry election
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *leaderElectedWorker) runElected(ctx context.Context, lock *redislock.Lock) error {
	electedCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	extendTicker := time.NewTicker(lockTTL / 2)
	defer extendTicker.Stop()
	go func() {
		for {
			select {
			case <-electedCtx.Done():
				_ = lock.Unlock(context.Background())
				return
			case <-extendTicker.C:
				if err := lock.Extend(electedCtx, lockTTL); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	return w.inner.Run(electedCtx)
}
