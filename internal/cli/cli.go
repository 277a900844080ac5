package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/app"
	"github.com/Additional-Code/tableside/internal/backend"
	"github.com/Additional-Code/tableside/internal/config"
	"github.com/Additional-Code/tableside/internal/database"
	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/logger"
	"github.com/Additional-Code/tableside/internal/migration"
	"github.com/Additional-Code/tableside/internal/seeder"
	"github.com/Additional-Code/tableside/internal/service/report"
	"github.com/Additional-Code/tableside/internal/service/table"
)

const stopTimeout = 10 * time.Second

// errNotSQL is returned by migrate when the active backend has no schema.
var errNotSQL = errors.New("migrations apply only to postgres, mysql or sqlite backends")

// NewRootCommand builds the root tableside CLI command.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "tableside",
		Short: "Venue ordering and billing service",
	}

	root.AddCommand(newStartCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSeedCmd())
	root.AddCommand(newWorkerCmd())
	root.AddCommand(newTableCmd())
	root.AddCommand(newReportCmd())

	return root
}

// Execute runs the tableside CLI until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}
	return nil
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "start",
		Aliases: []string{"run"},
		Short:   "Run the HTTP and gRPC services",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUntilDone(cmd.Context(), app.Module)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run schema migrations on the SQL backend",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			var mig *migration.Migrator
			opts := fx.Options(config.Module, logger.Module, fx.Provide(newMigrator), fx.Populate(&mig))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				if err := mig.Up(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			all, _ := cmd.Flags().GetBool("all")
			var mig *migration.Migrator
			opts := fx.Options(config.Module, logger.Module, fx.Provide(newMigrator), fx.Populate(&mig))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				if err := mig.Down(ctx, steps, all); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations rolled back")
				return nil
			})
		},
	}
	downCmd.Flags().Int("steps", 1, "Number of migration steps to rollback")
	downCmd.Flags().Bool("all", false, "Rollback all applied migrations")

	cmd.AddCommand(upCmd, downCmd)
	return cmd
}

// newMigrator opens the SQL database the app would use, without starting the
// rest of the backend.
func newMigrator(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*migration.Migrator, error) {
	_, remote, source, err := backend.Resolve(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}
	if source == backend.SourceLocal || remote.Driver == "redis" {
		return nil, errNotSQL
	}
	db, err := database.Open(remote, cfg.Database)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return database.Ping(ctx, db) },
		OnStop:  func(context.Context) error { return db.Close() },
	})
	return migration.New(db, remote.Driver, log)
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Write the default menu into an empty catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			var seed *seeder.Seeder
			opts := fx.Options(app.Core, fx.Populate(&seed))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				n, err := seed.Catalog(ctx)
				if err != nil {
					return err
				}
				if n == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "catalog already populated")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d products\n", n)
				return nil
			})
		},
	}
}

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage background workers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run worker engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUntilDone(cmd.Context(), app.Worker)
		},
	})
	return cmd
}

func newTableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Close or clear tables from the terminal",
	}

	run := func(action func(context.Context, *table.Service, entity.TableID) (table.Outcome, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			id, err := entity.ParseTableID(args[0])
			if err != nil {
				return err
			}
			var svc *table.Service
			opts := fx.Options(app.Core, fx.Populate(&svc))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				outcome, err := action(ctx, svc, id)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), outcome.Message)
				if outcome.Warning != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", outcome.Warning)
				}
				return nil
			})
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "finalize [table]",
		Short: "Archive the table's orders as paid and reopen it",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, s *table.Service, id entity.TableID) (table.Outcome, error) {
			return s.Finalize(ctx, id)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force-clear [table]",
		Short: "Delete the table's orders without archiving",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, s *table.Service, id entity.TableID) (table.Outcome, error) {
			return s.ForceClear(ctx, id)
		}),
	})
	return cmd
}

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Sales reports over archived orders",
	}

	var from, to string
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Revenue, order count and average ticket for a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := report.DayRange(from, to, time.Local)
			if err != nil {
				return err
			}
			var svc *report.Service
			opts := fx.Options(app.Core, report.Providers, fx.Populate(&svc))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				s, err := svc.Stats(ctx, start, end)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "period:         %s .. %s\n", start.Format(time.DateOnly), end.Format(time.DateOnly))
				fmt.Fprintf(out, "orders:         %d\n", s.OrderCount)
				fmt.Fprintf(out, "revenue:        %s\n", s.TotalRevenue.StringFixed(2))
				fmt.Fprintf(out, "average ticket: %s\n", s.AverageTicket.StringFixed(2))
				return nil
			})
		},
	}

	narrative := &cobra.Command{
		Use:   "narrative",
		Short: "Generated prose summary of sales for a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := report.DayRange(from, to, time.Local)
			if err != nil {
				return err
			}
			var svc *report.Service
			opts := fx.Options(app.Core, report.Providers, fx.Populate(&svc))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				text, err := svc.Narrative(ctx, start, end)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}

	today := time.Now().Format(time.DateOnly)
	for _, c := range []*cobra.Command{stats, narrative} {
		c.Flags().StringVar(&from, "from", today, "First day (YYYY-MM-DD)")
		c.Flags().StringVar(&to, "to", today, "Last day (YYYY-MM-DD)")
	}
	cmd.AddCommand(stats, narrative)
	return cmd
}

func runUntilDone(ctx context.Context, opts fx.Option) error {
	application := fx.New(opts)
	if err := application.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return application.Stop(stopCtx)
}

func runWithApp(ctx context.Context, opts fx.Option, fn func(context.Context) error) error {
	application := fx.New(opts, fx.NopLogger)
	if err := application.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		_ = application.Stop(stopCtx)
	}()
	return fn(ctx)
}
