package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/vladislavdragonenkov/grocery-oms/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	dsnEnvVar      = "GROCERY_POSTGRES_DSN"
)

// migrator — операции над схемой, которые нужны CLI.
type migrator interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	MigrationStatus(ctx context.Context) (int64, int, error)
	MigrationPlan(ctx context.Context) ([]postgres.MigrationState, error)
	Close() error
}

type openFunc func(ctx context.Context, dsn string) (migrator, error)

func openStore(ctx context.Context, dsn string) (migrator, error) {
	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func newApp(out io.Writer, open openFunc) *cli.App {
	stepsFlag := &cli.IntFlag{
		Name:  "steps",
		Usage: "number of migrations to apply or roll back (up: 0 = all, down: default 1)",
	}

	withStore := func(fn func(ctx context.Context, c *cli.Context, m migrator) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			dsn := strings.TrimSpace(c.String("dsn"))
			if dsn == "" {
				return errors.New(dsnEnvVar + " (or --dsn) is required")
			}

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			m, err := open(ctx, dsn)
			if err != nil {
				return fmt.Errorf("open postgres store: %w", err)
			}
			defer m.Close()

			return fn(ctx, c, m)
		}
	}

	return &cli.App{
		Name:      "migrate",
		Usage:     "apply embedded PostgreSQL migrations of the grocery order service",
		Writer:    out,
		ErrWriter: out,

		// Ошибки печатает main, App не должен завершать процесс сам.
		ExitErrHandler: func(*cli.Context, error) {},

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dsn",
				Usage:   "PostgreSQL DSN",
				EnvVars: []string{dsnEnvVar},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "overall timeout",
				Value: defaultTimeout,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply pending migrations",
				Flags: []cli.Flag{stepsFlag},
				Action: withStore(func(ctx context.Context, c *cli.Context, m migrator) error {
					if err := m.MigrateUp(ctx, c.Int("steps")); err != nil {
						return fmt.Errorf("migrate up failed: %w", err)
					}
					return printStatus(ctx, out, "migrate up ok", m)
				}),
			},
			{
				Name:  "down",
				Usage: "roll back applied migrations",
				Flags: []cli.Flag{stepsFlag},
				Action: withStore(func(ctx context.Context, c *cli.Context, m migrator) error {
					steps := c.Int("steps")
					if steps <= 0 {
						steps = 1
					}
					if err := m.MigrateDown(ctx, steps); err != nil {
						return fmt.Errorf("migrate down failed: %w", err)
					}
					return printStatus(ctx, out, "migrate down ok", m)
				}),
			},
			{
				Name:  "status",
				Usage: "list embedded migrations and whether they are applied",
				Action: withStore(func(ctx context.Context, _ *cli.Context, m migrator) error {
					plan, err := m.MigrationPlan(ctx)
					if err != nil {
						return fmt.Errorf("migration plan failed: %w", err)
					}
					for _, state := range plan {
						mark := "pending"
						if state.Applied {
							mark = "applied " + state.AppliedAt.UTC().Format(time.RFC3339)
						}
						fmt.Fprintf(out, "%04d %-24s %s\n", state.Version, state.Name, mark)
					}
					return printStatus(ctx, out, "migration status", m)
				}),
			},
		},
	}
}

func printStatus(ctx context.Context, out io.Writer, prefix string, m migrator) error {
	version, count, err := m.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	fmt.Fprintf(out, "%s: version=%d applied=%d\n", prefix, version, count)
	return nil
}

func main() {
	if err := newApp(os.Stdout, openStore).Run(os.Args); err != nil {
		fail("%v", err)
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
