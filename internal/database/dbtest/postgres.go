//go:build integration

// Package dbtest starts a throwaway PostgreSQL container for integration tests.
package dbtest

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/yohaboy/research-tracker/internal/config"
	"github.com/yohaboy/research-tracker/internal/database"
)

const image = "postgres:16-alpine"

// MigrationsPath returns the absolute path of the repository's migrations directory.
func MigrationsPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations")
}

// Start runs a PostgreSQL container, connects a pool and applies every migration.
// The container and pool are released through t.Cleanup.
func Start(t *testing.T) *database.DB {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ctr, err := postgres.Run(ctx, image,
		postgres.WithDatabase("pubtrack"),
		postgres.WithUsername("pubtrack"),
		postgres.WithPassword("pubtrack"),
		postgres.BasicWaitStrategies(),
	)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}
	cfg, err := configFromDSN(dsn)
	if err != nil {
		t.Fatalf("parse connection string: %v", err)
	}

	logger := zerolog.Nop()
	db, err := database.New(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("connect to postgres: %v", err)
	}
	t.Cleanup(db.Close)

	if err := database.MigrateUp(db, MigrationsPath(), logger); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db
}

// Truncate empties every application table.
func Truncate(t *testing.T, db *database.DB) {
	t.Helper()
	_, err := db.Exec(context.Background(),
		"TRUNCATE author_publications, publications, authors, research_groups RESTART IDENTITY CASCADE")
	if err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func configFromDSN(dsn string) (*config.DatabaseConfig, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", u.Port(), err)
	}
	password, _ := u.User.Password()
	return &config.DatabaseConfig{
		Host:              u.Hostname(),
		Port:              port,
		User:              u.User.Username(),
		Password:          password,
		Name:              u.Path[1:],
		SSLMode:           config.SSLModeDisable,
		MaxConns:          8,
		MinConns:          1,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   time.Minute,
		HealthCheckPeriod: 30 * time.Second,
		ConnectTimeout:    10 * time.Second,
	}, nil
}
