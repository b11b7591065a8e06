package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/adscanio/api/internal/config"
	"github.com/adscanio/api/internal/infra/postgres"
	"github.com/adscanio/api/pkg/logger"
	"github.com/adscanio/api/pkg/migrations"
)

var (
	flagMigrateDir    string
	flagMigrateTarget string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
	Long: `Applies the service's schema migrations. The default target (core)
creates only the tables this service writes; the standalone target also
creates the catalog tables normally provisioned by the management
console, for development and single-box deployments.

Connects to PostgreSQL using the same environment variables as the
server.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(_ *cobra.Command, _ []string) error {
		return withMigrationRunner(func(ctx context.Context, runner *migrations.Runner) error {
			applied, err := runner.Up(ctx)
			if err != nil {
				return err
			}
			if applied == 0 {
				fmt.Println("no pending migrations")
				return nil
			}
			fmt.Printf("applied %d migrations\n", applied)
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the last applied migration",
	RunE: func(_ *cobra.Command, _ []string) error {
		return withMigrationRunner(func(ctx context.Context, runner *migrations.Runner) error {
			m, err := runner.Down(ctx)
			if err != nil {
				return err
			}
			if m == nil {
				fmt.Println("no migrations to roll back")
				return nil
			}
			fmt.Printf("rolled back %s\n", m)
			return nil
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	RunE: func(_ *cobra.Command, _ []string) error {
		return withMigrationRunner(func(ctx context.Context, runner *migrations.Runner) error {
			entries, err := runner.Status(ctx)
			if err != nil {
				return err
			}
			for _, e := range entries {
				state := "pending"
				if e.Applied {
					state = fmt.Sprintf("applied %s", e.AppliedAt.Format("2006-01-02"))
				}
				fmt.Printf("  %s (%s): %s\n", e.Migration, e.Migration.Scope, state)
			}
			return nil
		})
	},
}

// withMigrationRunner connects to the database using the server's
// environment configuration and runs fn against a migration runner.
func withMigrationRunner(fn func(context.Context, *migrations.Runner) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	target, err := migrations.ParseTarget(flagMigrateTarget)
	if err != nil {
		return err
	}

	db, err := postgres.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	log := logger.NewNop()
	if flagVerbose {
		log = logger.NewDevelopment()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	return fn(ctx, migrations.NewRunner(db.DB, flagMigrateDir, target, log))
}

func init() {
	migrateCmd.PersistentFlags().StringVar(&flagMigrateDir, "dir", "migrations", "migrations directory")
	migrateCmd.PersistentFlags().StringVar(&flagMigrateTarget, "target", "core", "migration target (core, standalone)")
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}
