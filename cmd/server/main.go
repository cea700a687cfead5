// Package main provides the entry point for the publication tracker API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/yohaboy/research-tracker/internal/config"
	"github.com/yohaboy/research-tracker/internal/database"
	"github.com/yohaboy/research-tracker/internal/observability"
	"github.com/yohaboy/research-tracker/internal/repository"
	"github.com/yohaboy/research-tracker/internal/roster"
	httpserver "github.com/yohaboy/research-tracker/internal/server/http"
	"github.com/yohaboy/research-tracker/internal/staffpage"
	"github.com/yohaboy/research-tracker/internal/temporal"
)

// healthService is the name reported by the gRPC health service.
const healthService = "pubtrack.v1.PublicationTracker"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env file is fine; real deployments use the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(cfg.Logging.Observability())
	logger = observability.WithComponent(logger, "server")
	logger.Info().Msg("pubtrack server starting")

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

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	metrics := observability.NewMetrics(cfg.Metrics.Namespace)

	groupRepo := repository.NewPgGroupRepository(db)
	authorRepo := repository.NewPgAuthorRepository(db)
	publicationRepo := repository.NewPgPublicationRepository(db)
	reportRepo := repository.NewPgReportRepository(db)

	// Staff page enrichment is optional; without it identifiers come from the roster only.
	var enricher roster.Enricher
	if cfg.StaffPage.Enabled {
		enricher = staffpage.New(cfg.StaffPage.Scraper(), logger, metrics)
		logger.Info().Str("url_template", cfg.StaffPage.URLTemplate).Msg("staff page enrichment enabled")
	}
	rosterService := roster.NewService(groupRepo, authorRepo, enricher, logger)

	// Connect to Temporal and wrap the client in the job scheduler.
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

	grpcServer, healthServer := newGRPCServer()
	grpcListener, err := net.Listen("tcp", cfg.Server.GRPCAddress())
	if err != nil {
		return fmt.Errorf("listen on gRPC port: %w", err)
	}

	httpSrv := httpserver.NewServer(httpserver.Config{
		Address:      cfg.Server.HTTPAddress(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  2 * time.Minute,
		DefaultSince: defaultSince,
		ReportTTL:    cfg.Cache.ReportTTL,
		Auth: httpserver.AuthConfig{
			Enabled: cfg.Auth.Enabled,
			Secret:  cfg.Auth.JWTSecret,
			Issuer:  cfg.Auth.Issuer,
		},
	}, httpserver.Dependencies{
		Groups:       groupRepo,
		Authors:      authorRepo,
		Publications: publicationRepo,
		Reports:      reportRepo,
		Roster:       rosterService,
		Scheduler:    scheduler,
		DB:           db,
		Metrics:      metrics,
	}, logger)

	listeners := []listener{
		{
			name:     "http api",
			addr:     cfg.Server.HTTPAddress(),
			serve:    httpSrv.Start,
			shutdown: httpSrv.Shutdown,
		},
		{
			name:  "grpc health",
			addr:  cfg.Server.GRPCAddress(),
			serve: func() error { return grpcServer.Serve(grpcListener) },
			shutdown: func(ctx context.Context) error {
				healthServer.SetServingStatus(healthService, healthpb.HealthCheckResponse_NOT_SERVING)
				return stopGRPC(ctx, grpcServer)
			},
		},
	}
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsSrv := &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
			Handler:      mux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
		listeners = append(listeners, listener{
			name:     "metrics",
			addr:     metricsSrv.Addr,
			serve:    metricsSrv.ListenAndServe,
			shutdown: metricsSrv.Shutdown,
		})
	}

	errCh := make(chan error, len(listeners))
	for _, l := range listeners {
		go func(l listener) {
			logger.Info().Str("listener", l.name).Str("address", l.addr).Msg("listening")
			if err := l.serve(); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("%s: %w", l.name, err)
			}
		}(l)
	}
	logger.Info().Int("listeners", len(listeners)).Msg("pubtrack server is ready")

	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("listener failed")
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	for _, l := range listeners {
		if err := l.shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Str("listener", l.name).Msg("shutdown error")
		}
	}

	logger.Info().Msg("pubtrack server shutdown complete")
	return nil
}

// listener is one network endpoint the server runs until shutdown.
type listener struct {
	name     string
	addr     string
	serve    func() error
	shutdown func(context.Context) error
}

// newGRPCServer serves only the standard health service, for load balancers
// that check over gRPC.
func newGRPCServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 15 * time.Minute,
			Time:              5 * time.Minute,
			Timeout:           time.Minute,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Minute,
			PermitWithoutStream: true,
		}),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(srv)
	return srv, hs
}

// stopGRPC drains in-flight RPCs, falling back to a hard stop at ctx's deadline.
func stopGRPC(ctx context.Context, srv *grpc.Server) error {
	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		srv.Stop()
		return ctx.Err()
	}
}
