package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/pm8sim/internal/infrastructure/config"
	"github.com/nerrad567/pm8sim/internal/infrastructure/database"
	"github.com/nerrad567/pm8sim/migrations"
)

func newDBCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect or roll back the history database schema.",
	}

	// withDB opens the configured database without migrating it.
	withDB := func(run func(ctx context.Context, db *database.DB, out io.Writer) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if cfg.Database.Path == "" {
				return fmt.Errorf("%w: database.path is required", config.ErrInvalid)
			}
			db, err := database.Open(cmd.Context(), database.ConfigFrom(cfg.Database))
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close() //nolint:errcheck // read-mostly command
			return run(cmd.Context(), db, cmd.OutOrStdout())
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "List applied and pending migrations.",
			Args:  cobra.NoArgs,
			RunE:  withDB(runDBStatus),
		},
		&cobra.Command{
			Use:   "rollback",
			Short: "Roll back the most recent migration.",
			Args:  cobra.NoArgs,
			RunE:  withDB(runDBRollback),
		},
	)
	return cmd
}

func runDBStatus(ctx context.Context, db *database.DB, out io.Writer) error {
	applied, pending, err := db.MigrationStatus(ctx, migrations.FS)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Database: %s\n", db.Path())
	for _, r := range applied {
		fmt.Fprintf(out, "  applied  %s  %s\n", r.Version, r.AppliedAt.Local().Format(time.DateTime))
	}
	for _, m := range pending {
		fmt.Fprintf(out, "  pending  %s  %s\n", m.Version, m.Name)
	}
	if len(applied)+len(pending) == 0 {
		fmt.Fprintln(out, "  no migrations")
	}
	return nil
}

func runDBRollback(ctx context.Context, db *database.DB, out io.Writer) error {
	m, err := db.MigrateDown(ctx, migrations.FS)
	if err != nil {
		return err
	}
	if m == nil {
		fmt.Fprintln(out, "Nothing to roll back")
		return nil
	}
	fmt.Fprintf(out, "Rolled back %s (%s)\n", m.Version, m.Name)
	return nil
}
