// Command greetday runs the birthday/work-anniversary greeting delivery
// system: its daily precomputer, minute enqueuer, recovery loop, and
// delivery workers, plus a few read-only/operator subcommands.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v3"

	"github.com/greetday/greetday/internal/app"
	"github.com/greetday/greetday/internal/config"
	"github.com/greetday/greetday/internal/logging"
	"github.com/greetday/greetday/internal/models"
	"github.com/greetday/greetday/internal/store"
	"github.com/greetday/greetday/internal/version"
)

func main() {
	cmd := &cli.Command{
		Name:    "greetday",
		Usage:   "scheduled birthday and work-anniversary greeting delivery",
		Version: version.Version(),
		Commands: []*cli.Command{
			serveCommand(),
			logShowCommand(),
			recoverNowCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the precomputer, enqueuer, recovery loop, and delivery workers",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.LogDevelopment)
			if err != nil {
				return err
			}

			a := &app.App{Config: cfg, Logger: logger}
			if err := a.PreRun(ctx); err != nil {
				return err
			}
			runErr := a.Run(ctx)
			if err := a.PostRun(ctx); err != nil && runErr == nil {
				runErr = err
			}
			return runErr
		},
	}
}

// logShowCommand is a read-only operator surface for inspecting one
// message log by id, for reconciling "did user X get their message"
// questions without a direct database session.
func logShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "log-show",
		Usage:     "print one message log by id",
		ArgsUsage: "<message-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("log-show: expected exactly one message id")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			pool, err := pgxpool.New(ctx, cfg.PostgresURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			logs := store.NewPostgresMessageLogStore(pool)
			log, err := logs.FindByID(ctx, cmd.Args().First())
			if err != nil {
				return err
			}
			return printJSON(log)
		},
	}
}

// recoverNowCommand forces an out-of-band recovery pass, for an operator
// who doesn't want to wait for the next scheduled RECOVERY_INTERVAL tick
// after restarting a stuck worker fleet.
func recoverNowCommand() *cli.Command {
	return &cli.Command{
		Name:  "recover-now",
		Usage: "run one recovery pass immediately and exit",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			pool, err := pgxpool.New(ctx, cfg.PostgresURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			logs := store.NewPostgresMessageLogStore(pool)
			cutoff := time.Now().Add(-cfg.RecoveryGrace)
			stuck, err := logs.FindOverdue(ctx, cutoff)
			if err != nil {
				return err
			}
			fmt.Printf("recover-now: found %d stuck message(s)\n", len(stuck))
			for _, log := range stuck {
				if log.Status == models.StatusScheduled {
					continue
				}
				next := models.StatusScheduled
				if log.RetryCount >= cfg.MaxRetries {
					next = models.StatusFailed
				}
				if err := logs.CompareAndSetStatus(ctx, log.ID, log.Status, next, store.StatusUpdate{}); err != nil && err != models.ErrStatusConflict {
					return err
				}
			}
			return nil
		},
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
