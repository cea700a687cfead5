// Package database owns the PostgreSQL connection pool behind the
// publication index, per-record transactions and schema migrations.
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yohaboy/research-tracker/internal/config"
	"github.com/yohaboy/research-tracker/internal/observability"
)

const (
	HealthCheckTimeout = 5 * time.Second
	// SlowQueryThreshold is where statements start being logged at warn.
	SlowQueryThreshold = 500 * time.Millisecond
)

// HealthStatus is the database section of the readiness report.
type HealthStatus struct {
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	TotalConns    int32  `json:"total_conns"`
	AcquiredConns int32  `json:"acquired_conns"`
	IdleConns     int32  `json:"idle_conns"`
	MaxConns      int32  `json:"max_conns"`
}

// Healthy reports whether the last ping succeeded.
func (h HealthStatus) Healthy() bool {
	return h.Status == "healthy"
}

// DB is the shared connection pool.
type DB struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// DBTX is satisfied by *DB and pgx.Tx so repositories run unchanged on the
// pool or inside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// TxRunner runs a function inside a transaction. *DB implements it; tests
// substitute a pgxmock-backed runner.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
}

var (
	_ DBTX     = (*DB)(nil)
	_ TxRunner = (*DB)(nil)
)

// New opens the pool and pings it once. Every statement gets a span, and
// statements slower than SlowQueryThreshold are logged.
func New(ctx context.Context, cfg *config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	logger = observability.WithComponent(logger, "database")

	pc, err := poolConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("database: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database: ping %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	logger.Info().
		Str("host", cfg.Host).
		Str("database", cfg.Name).
		Int32("max_conns", pc.MaxConns).
		Msg("connected")
	return &DB{pool: pool, logger: logger}, nil
}

func poolConfig(cfg *config.DatabaseConfig, logger zerolog.Logger) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: parse config: %w", err)
	}
	pc.MaxConns, pc.MinConns = cfg.MaxConns, cfg.MinConns
	pc.MaxConnLifetime, pc.MaxConnIdleTime = cfg.MaxConnLifetime, cfg.MaxConnIdleTime
	pc.HealthCheckPeriod = cfg.HealthCheckPeriod

	cc := pc.ConnConfig
	cc.ConnectTimeout = cfg.ConnectTimeout
	cc.Tracer = &queryTracer{
		tracer:        observability.Tracer(),
		logger:        logger,
		slowThreshold: SlowQueryThreshold,
	}
	return pc, nil
}

// Close is safe on a zero DB.
func (db *DB) Close() {
	if db.pool == nil {
		return
	}
	db.pool.Close()
	db.logger.Info().Msg("pool closed")
}

// Health pings with HealthCheckTimeout and snapshots pool usage.
func (db *DB) Health(ctx context.Context) HealthStatus {
	stat := db.pool.Stat()
	h := HealthStatus{
		Status:        "healthy",
		TotalConns:    stat.TotalConns(),
		AcquiredConns: stat.AcquiredConns(),
		IdleConns:     stat.IdleConns(),
		MaxConns:      stat.MaxConns(),
	}
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()
	if err := db.pool.Ping(ctx); err != nil {
		h.Status, h.Error = "unhealthy", err.Error()
	}
	return h
}

// WithTransaction commits when fn returns nil and rolls back otherwise.
func (db *DB) WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return db.inTx(ctx, pgx.TxOptions{}, fn)
}

// WithReadOnlyTransaction gives fn one repeatable-read snapshot, used by
// reports that issue several queries.
func (db *DB) WithReadOnlyTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return db.inTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func (db *DB) inTx(ctx context.Context, opts pgx.TxOptions, fn func(tx pgx.Tx) error) (err error) {
	ctx, span := observability.Tracer().Start(ctx, "db.transaction",
		trace.WithAttributes(attribute.String("db.access_mode", string(opts.AccessMode))))
	defer func() { observability.EndSpan(span, err) }()

	tx, err := db.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("database: begin: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// Rollback after a panic or an fn error; the panic keeps unwinding.
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			db.logger.Error().Err(rbErr).AnErr("cause", err).Msg("rollback failed")
			if err != nil {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("database: commit: %w", err)
	}
	committed = true
	return nil
}

func (db *DB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return db.pool.Exec(ctx, sql, args...)
}

func (db *DB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return db.pool.QueryRow(ctx, sql, args...)
}

func (db *DB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return db.pool.Query(ctx, sql, args...)
}

func (db *DB) SendBatch(ctx context.Context, batch *pgx.Batch) pgx.BatchResults {
	return db.pool.SendBatch(ctx, batch)
}

// queryTracer opens a span per statement and logs statements slower than
// slowThreshold.
type queryTracer struct {
	tracer        trace.Tracer
	logger        zerolog.Logger
	slowThreshold time.Duration
}

type queryTraceKey struct{}

type queryTrace struct {
	span    trace.Span
	start   time.Time
	command string
}

var _ pgx.QueryTracer = (*queryTracer)(nil)

// TraceQueryStart implements pgx.QueryTracer.
func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	command := statementCommand(data.SQL)
	ctx, span := t.tracer.Start(ctx, "db."+strings.ToLower(command), trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", command),
	))
	return context.WithValue(ctx, queryTraceKey{}, &queryTrace{span: span, start: time.Now(), command: command})
}

// TraceQueryEnd implements pgx.QueryTracer.
func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	qt, ok := ctx.Value(queryTraceKey{}).(*queryTrace)
	if !ok {
		return
	}
	elapsed := time.Since(qt.start)
	qt.span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
	observability.EndSpan(qt.span, data.Err)

	if t.slowThreshold > 0 && elapsed >= t.slowThreshold {
		t.logger.Warn().
			Str("command", qt.command).
			Dur("elapsed", elapsed).
			Msg("slow query")
	}
}

// statementCommand returns the leading SQL keyword, upper-cased.
func statementCommand(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "UNKNOWN"
	}
	if strings.EqualFold(fields[0], "WITH") {
		return "WITH"
	}
	return strings.ToUpper(fields[0])
}
