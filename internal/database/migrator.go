package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

// MigrationsTable records the applied schema version.
const MigrationsTable = "schema_migrations"

// MigrationStatus describes the schema version currently applied.
type MigrationStatus struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
	// Fresh is true when no migration has ever been applied.
	Fresh bool `json:"fresh"`
}

// Migrator applies the SQL files of a migrations directory to the tracker
// schema. It borrows a connection from the pool and must be closed.
type Migrator struct {
	m      *migrate.Migrate
	conn   *sql.DB
	logger zerolog.Logger
}

// NewMigrator opens the migrations in dir against db.
func NewMigrator(db *DB, dir string, logger zerolog.Logger) (*Migrator, error) {
	switch {
	case db == nil:
		return nil, errors.New("migrator: database is required")
	case db.pool == nil:
		return nil, errors.New("migrator: database pool not initialized")
	case dir == "":
		return nil, errors.New("migrator: migrations path is required")
	}
	if info, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("migrator: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("migrator: %s is not a directory", dir)
	}

	conn := stdlib.OpenDBFromPool(db.pool)
	driver, err := postgres.WithInstance(conn, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrator: postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrator: open %s: %w", dir, err)
	}

	logger = logger.With().Str("migrations", dir).Logger()
	m.Log = migrateLogger{logger: logger}
	return &Migrator{m: m, conn: conn, logger: logger}, nil
}

// Up applies every pending migration.
func (mg *Migrator) Up() error {
	return mg.apply("up", mg.m.Up)
}

// Down rolls back every applied migration.
func (mg *Migrator) Down() error {
	mg.logger.Warn().Msg("rolling back the whole schema")
	return mg.apply("down", mg.m.Down)
}

// Steps applies n migrations, or rolls back -n when n is negative.
// Stepping past either end of the history is not an error.
func (mg *Migrator) Steps(n int) error {
	err := mg.apply(fmt.Sprintf("steps %d", n), func() error { return mg.m.Steps(n) })
	if errors.Is(err, os.ErrNotExist) {
		mg.logger.Info().Int("steps", n).Msg("no further migrations in that direction")
		return nil
	}
	return err
}

// Force records version as applied and clears the dirty flag without running
// any SQL. It is the recovery path after a migration failed halfway.
func (mg *Migrator) Force(version int) error {
	mg.logger.Warn().Int("version", version).Msg("forcing schema version")
	if err := mg.m.Force(version); err != nil {
		return fmt.Errorf("migrate force %d: %w", version, err)
	}
	return nil
}

func (mg *Migrator) apply(op string, run func() error) error {
	err := run()
	if errors.Is(err, migrate.ErrNoChange) {
		mg.logger.Info().Str("op", op).Msg("schema already current")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", op, err)
	}

	if st, err := mg.Status(); err == nil {
		mg.logger.Info().Str("op", op).Uint("version", st.Version).Bool("fresh", st.Fresh).Msg("schema migrated")
	}
	return nil
}

// Status reports the applied version. An empty schema is Fresh, not an error.
func (mg *Migrator) Status() (MigrationStatus, error) {
	v, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return MigrationStatus{Fresh: true}, nil
	}
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("read schema version: %w", err)
	}
	return MigrationStatus{Version: v, Dirty: dirty}, nil
}

// Close releases the migration source and the borrowed connection.
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	if err := mg.conn.Close(); err != nil && dbErr == nil {
		dbErr = err
	}
	return errors.Join(srcErr, dbErr)
}

// MigrateUp applies every pending migration in dir and closes the migrator.
func MigrateUp(db *DB, dir string, logger zerolog.Logger) error {
	mg, err := NewMigrator(db, dir, logger)
	if err != nil {
		return err
	}
	upErr := mg.Up()
	if err := mg.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close migrator")
	}
	return upErr
}

// migrateLogger forwards golang-migrate progress lines to zerolog at debug.
type migrateLogger struct {
	logger zerolog.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool {
	return l.logger.GetLevel() <= zerolog.DebugLevel
}
