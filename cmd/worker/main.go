// Package main provides the entry point for the publication tracker Temporal worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/yohaboy/research-tracker/internal/config"
	"github.com/yohaboy/research-tracker/internal/database"
	"github.com/yohaboy/research-tracker/internal/events"
	"github.com/yohaboy/research-tracker/internal/observability"
	"github.com/yohaboy/research-tracker/internal/papersources"
	"github.com/yohaboy/research-tracker/internal/papersources/orcid"
	"github.com/yohaboy/research-tracker/internal/papersources/scholar"
	"github.com/yohaboy/research-tracker/internal/papersources/scopus"
	"github.com/yohaboy/research-tracker/internal/reconcile"
	"github.com/yohaboy/research-tracker/internal/repository"
	"github.com/yohaboy/research-tracker/internal/temporal"
	"github.com/yohaboy/research-tracker/internal/temporal/activities"
	"github.com/yohaboy/research-tracker/internal/temporal/workflows"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(cfg.Logging.Observability())
	logger = observability.WithComponent(logger, "worker")
	logger.Info().Msg("pubtrack worker starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing.Observability(), logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			logger.Error().Err(err).Msg("failed to flush traces")
		}
	}()

	defaultSince, err := cfg.Reconcile.DefaultSinceDate()
	if err != nil {
		return fmt.Errorf("parse default since: %w", err)
	}

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	metrics := observability.NewMetrics(cfg.Metrics.Namespace)

	authorRepo := repository.NewPgAuthorRepository(db)
	recordStore := repository.NewPgRecordStore(db)

	registry := papersources.NewRegistry()
	registerSources(registry, cfg, logger, metrics)
	if len(registry.Tags()) == 0 {
		logger.Warn().Msg("no publication sources enabled; reconciliations will store nothing")
	}

	temporalCfg := cfg.Temporal.Client()
	temporalClient, err := temporal.NewClient(temporalCfg, logger)
	if err != nil {
		return fmt.Errorf("connect to temporal: %w", err)
	}
	scheduler := temporal.NewReconcileScheduler(temporalClient, temporalCfg, metrics)
	defer scheduler.Close()
	logger.Info().
		Str("host_port", cfg.Temporal.HostPort).
		Str("namespace", cfg.Temporal.Namespace).
		Msg("temporal client connected")

	// Reconciled events go to Kafka when enabled; otherwise they are dropped.
	var publisher reconcile.EventPublisher = events.NopPublisher{}
	if cfg.Kafka.Enabled {
		kafkaPublisher, err := events.NewPublisher(events.PublisherConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.ReconciledTopic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}, metrics, logger)
		if err != nil {
			return fmt.Errorf("create event publisher: %w", err)
		}
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close event publisher")
			}
		}()
		publisher = kafkaPublisher
		logger.Info().Str("topic", cfg.Kafka.ReconciledTopic).Msg("event publisher created")
	}

	pipeline := reconcile.New(
		authorRepo,
		recordStore,
		registry,
		reconcile.Config{SourceConcurrency: cfg.Reconcile.SourceConcurrency},
		logger,
		reconcile.WithScheduler(scheduler),
		reconcile.WithEventPublisher(publisher),
		reconcile.WithMetrics(metrics),
	)

	manager, err := temporal.NewWorkerManager(temporalClient, cfg.Temporal.Worker(), logger)
	if err != nil {
		return fmt.Errorf("create worker manager: %w", err)
	}
	manager.RegisterWorkflow(workflows.ReconcileAuthorWorkflow)
	manager.RegisterWorkflow(workflows.ReconcileAllWorkflow)
	manager.RegisterActivity(activities.NewReconcileActivities(pipeline))

	if cfg.Reconcile.ScheduleEnabled {
		c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})))
		if _, err := c.AddFunc(cfg.Reconcile.Schedule, func() {
			submitScheduled(ctx, scheduler, defaultSince, logger)
		}); err != nil {
			return fmt.Errorf("schedule reconcile-all %q: %w", cfg.Reconcile.Schedule, err)
		}
		c.Start()
		defer c.Stop()
		logger.Info().Str("schedule", cfg.Reconcile.Schedule).Msg("periodic reconcile-all scheduled")
	}

	if cfg.Kafka.Enabled && cfg.Kafka.RosterTopic != "" {
		listener := events.NewRosterListener(events.ListenerConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.RosterTopic,
			GroupID:      cfg.Kafka.GroupID,
			DefaultSince: defaultSince,
		}, scheduler, logger)
		defer func() {
			if err := listener.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close roster listener")
			}
		}()

		go func() {
			if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("roster listener error")
			}
		}()

		logger.Info().
			Str("topic", cfg.Kafka.RosterTopic).
			Str("group_id", cfg.Kafka.GroupID).
			Msg("roster listener started")
	}

	if err := manager.Start(ctx); err != nil {
		if ctx.Err() != nil {
			logger.Info().Msg("worker stopped via signal")
			return nil
		}
		return fmt.Errorf("worker error: %w", err)
	}

	return nil
}

// submitScheduled starts one reconcile-all job. An overlapping run that is
// still in flight is reported and skipped.
func submitScheduled(ctx context.Context, scheduler *temporal.ReconcileScheduler, since time.Time, logger zerolog.Logger) {
	ref, err := scheduler.SubmitAll(ctx, since)
	if err != nil {
		if temporal.IsWorkflowAlreadyStarted(err) || errors.Is(err, context.Canceled) {
			logger.Info().Err(err).Msg("scheduled reconcile-all skipped")
			return
		}
		logger.Error().Err(err).Msg("scheduled reconcile-all failed")
		return
	}
	logger.Info().Str("job_id", ref.ID).Msg("scheduled reconcile-all submitted")
}

// registerSources registers every enabled publication source with the registry.
func registerSources(registry *papersources.Registry, cfg *config.Config, logger zerolog.Logger, metrics *observability.Metrics) {
	if sc := cfg.Sources.Scopus; sc.Enabled {
		if sc.APIKey == "" {
			logger.Warn().Msg("scopus enabled without an API key; skipping")
		} else {
			registry.Register(scopus.New(scopus.Config{
				BaseURL:   sc.BaseURL,
				APIKey:    sc.APIKey,
				Timeout:   sc.Timeout,
				RateLimit: sc.RateLimit,
				BurstSize: sc.Burst,
				PageSize:  sc.PageSize,
				MaxPages:  sc.MaxPages,
			}, logger, metrics))
			logger.Info().Msg("registered publication source: scopus")
		}
	}

	if sc := cfg.Sources.Scholar; sc.Enabled {
		registry.Register(scholar.New(scholar.Config{
			BaseURL:    sc.BaseURL,
			Timeout:    sc.Timeout,
			RateLimit:  sc.RateLimit,
			BurstSize:  sc.Burst,
			PageSize:   sc.PageSize,
			MaxPages:   sc.MaxPages,
			MaxRetries: sc.MaxRetries,
		}, logger, metrics))
		logger.Info().Msg("registered publication source: scholar")
	}

	if sc := cfg.Sources.ORCID; sc.Enabled {
		registry.Register(orcid.New(orcid.Config{
			BaseURL:    sc.BaseURL,
			Timeout:    sc.Timeout,
			RateLimit:  sc.RateLimit,
			BurstSize:  sc.Burst,
			MaxRetries: sc.MaxRetries,
		}, logger, metrics))
		logger.Info().Msg("registered publication source: orcid")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ zerolog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.Logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
