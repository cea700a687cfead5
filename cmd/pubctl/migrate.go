package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/yohaboy/research-tracker/internal/database"
)

var migrationsPath string

func init() {
	migrateCmd.PersistentFlags().StringVar(&migrationsPath, "path", "", "Override the migrations directory (defaults to database.migration_path)")

	migrateCmd.AddCommand(
		newMigrateCmd("up", "Apply all pending migrations", cobra.NoArgs, func(m *database.Migrator, _ []string) error {
			return m.Up()
		}),
		newMigrateCmd("down", "Roll back all migrations", cobra.NoArgs, func(m *database.Migrator, _ []string) error {
			return m.Down()
		}),
		newMigrateCmd("steps <n>", "Apply n steps (negative rolls back)", cobra.ExactArgs(1), func(m *database.Migrator, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || n == 0 {
				return fmt.Errorf("steps must be a non-zero integer, got %q", args[0])
			}
			return m.Steps(n)
		}),
		newMigrateCmd("force <version>", "Force the recorded version after a failed migration", cobra.ExactArgs(1), func(m *database.Migrator, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil || v < 0 {
				return fmt.Errorf("version must be a non-negative integer, got %q", args[0])
			}
			return m.Force(v)
		}),
		newMigrateCmd("version", "Print the current migration version", cobra.NoArgs, func(*database.Migrator, []string) error {
			return nil
		}),
	)
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

// MigrationResponse is printed after every migrate subcommand.
type MigrationResponse struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
	Fresh   bool `json:"fresh"`
	Applied bool `json:"applied"`
}

func newMigrateCmd(use, short string, args cobra.PositionalArgs, action func(*database.Migrator, []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, positional []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			db, err := e.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			dir := e.cfg.Database.MigrationPath
			if migrationsPath != "" {
				dir = migrationsPath
			}
			migrator, err := database.NewMigrator(db, dir, e.logger)
			if err != nil {
				return fmt.Errorf("create migrator: %w", err)
			}
			defer func() {
				if closeErr := migrator.Close(); closeErr != nil {
					e.logger.Error().Err(closeErr).Msg("failed to close migrator")
				}
			}()

			if err := action(migrator, positional); err != nil {
				return fmt.Errorf("migrate %s: %w", cmd.Name(), err)
			}
			return printMigrationStatus(migrator, cmd.Name() != "version", cmd.OutOrStdout())
		},
	}
}

// migrationStatuser is the part of the migrator used for status output.
type migrationStatuser interface {
	Status() (database.MigrationStatus, error)
}

func printMigrationStatus(m migrationStatuser, applied bool, out io.Writer) error {
	st, err := m.Status()
	if err != nil {
		return err
	}
	return outputJSON(out, MigrationResponse{Version: st.Version, Dirty: st.Dirty, Fresh: st.Fresh, Applied: applied})
}
