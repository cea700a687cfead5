package main

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/yohaboy/research-tracker/internal/config"
	"github.com/yohaboy/research-tracker/internal/database"
	"github.com/yohaboy/research-tracker/internal/observability"
	"github.com/yohaboy/research-tracker/internal/temporal"
)

// connectTimeout bounds the initial database and Temporal dials.
const connectTimeout = 30 * time.Second

// env carries the configuration and logger shared by every command.
type env struct {
	cfg          *config.Config
	logger       zerolog.Logger
	defaultSince time.Time
}

// loadEnv reads .env and PUBTRACK_* configuration. Logs go to stderr so
// stdout stays valid JSON.
func loadEnv() (*env, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, &configError{fmt.Errorf("load config: %w", err)}
	}
	defaultSince, err := cfg.Reconcile.DefaultSinceDate()
	if err != nil {
		return nil, &configError{fmt.Errorf("parse default since: %w", err)}
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      "warn",
		Format:     "console",
		Output:     "stderr",
		TimeFormat: time.RFC3339,
	})
	return &env{
		cfg:          cfg,
		logger:       observability.WithComponent(logger, "pubctl"),
		defaultSince: defaultSince,
	}, nil
}

// openDB connects to PostgreSQL.
func (e *env) openDB(ctx context.Context) (*database.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	db, err := database.New(ctx, &e.cfg.Database, e.logger)
	if err != nil {
		return nil, &configError{fmt.Errorf("connect to database: %w", err)}
	}
	return db, nil
}

// openScheduler connects to Temporal. The caller must Close the scheduler.
func (e *env) openScheduler() (*temporal.ReconcileScheduler, error) {
	clientCfg := e.cfg.Temporal.Client()
	c, err := temporal.NewClient(clientCfg, e.logger)
	if err != nil {
		return nil, &configError{fmt.Errorf("connect to temporal: %w", err)}
	}
	return temporal.NewReconcileScheduler(c, clientCfg, nil), nil
}
