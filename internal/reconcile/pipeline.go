// Package reconcile merges an author's publications from every configured
// source into the store.
//
// ReconcileAuthor fetches the author's sources concurrently, normalizes the
// raw records, deduplicates them in source precedence order and commits each
// surviving record in its own transaction. Source failures only shrink the
// record set and per-record storage failures only skip that record, so a run
// fails as a whole only when the author cannot be loaded or the context ends.
//
// ReconcileAll fans out one JobScheduler submission per author and returns
// without waiting for any of them.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/yohaboy/research-tracker/internal/domain"
	"github.com/yohaboy/research-tracker/internal/normalize"
	"github.com/yohaboy/research-tracker/internal/observability"
	"github.com/yohaboy/research-tracker/internal/papersources"
	"github.com/yohaboy/research-tracker/internal/repository"
)

// DefaultSourceConcurrency is used when Config.SourceConcurrency is not positive.
const DefaultSourceConcurrency = 3

// AuthorStore loads the authors to reconcile.
type AuthorStore interface {
	Get(ctx context.Context, id int64) (*domain.Author, error)
	ListIDs(ctx context.Context) ([]int64, error)
}

// RecordWriter commits one record and its author link atomically.
type RecordWriter interface {
	SaveRecord(ctx context.Context, authorID int64, rec domain.PublicationRecord) (*repository.SaveResult, error)
	AttachExisting(ctx context.Context, authorID int64, rec domain.PublicationRecord) (*repository.SaveResult, error)
}

// SourceResolver picks the source clients that apply to an author.
type SourceResolver interface {
	ClientsFor(author *domain.Author) []papersources.Assignment
}

// JobScheduler runs reconciliation jobs in the background.
type JobScheduler interface {
	// Submit enqueues a single-author job and returns immediately.
	Submit(ctx context.Context, job domain.Job) (domain.JobRef, error)

	// SubmitAll enqueues a fan-out job that submits one job per author.
	SubmitAll(ctx context.Context, since time.Time) (domain.JobRef, error)

	// Status reports the state of a submitted job.
	// Returns domain.ErrJobNotFound for unknown IDs.
	Status(ctx context.Context, jobID string) (domain.JobStatus, error)
}

// EventPublisher announces finished reconciliations.
type EventPublisher interface {
	PublishReconciled(ctx context.Context, event domain.ReconciledEvent) error
}

// Config holds pipeline options.
type Config struct {
	// SourceConcurrency bounds concurrent source fetches per author.
	SourceConcurrency int
}

// Result summarises one author reconciliation.
type Result struct {
	AuthorID     int64                    `json:"author_id"`
	Since        time.Time                `json:"since"`
	Fetched      map[domain.SourceTag]int `json:"fetched"`
	Deduplicated int                      `json:"deduplicated"`
	Created      int                      `json:"created"`
	Existing     int                      `json:"existing"`
	Linked       int                      `json:"linked"`
	Failed       int                      `json:"failed"`
}

// TotalFetched returns the number of normalized records across all sources.
func (r *Result) TotalFetched() int {
	n := 0
	for _, c := range r.Fetched {
		n += c
	}
	return n
}

// Event converts the result into a reconciliation event.
func (r *Result) Event(at time.Time) domain.ReconciledEvent {
	return domain.ReconciledEvent{
		EventType:  domain.EventTypePublicationsReconciled,
		AuthorID:   r.AuthorID,
		Since:      r.Since.Format(domain.DateLayout),
		Fetched:    r.TotalFetched(),
		Created:    r.Created,
		Existing:   r.Existing,
		Linked:     r.Linked,
		Failed:     r.Failed,
		OccurredAt: at,
	}
}

// Pipeline reconciles authors against their publication sources.
type Pipeline struct {
	authors   AuthorStore
	records   RecordWriter
	sources   SourceResolver
	scheduler JobScheduler
	events    EventPublisher
	cfg       Config
	logger    zerolog.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithScheduler sets the scheduler used by ReconcileAll.
func WithScheduler(s JobScheduler) Option {
	return func(p *Pipeline) { p.scheduler = s }
}

// WithEventPublisher sets the publisher notified after each author run.
func WithEventPublisher(e EventPublisher) Option {
	return func(p *Pipeline) { p.events = e }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline.
func New(authors AuthorStore, records RecordWriter, sources SourceResolver, cfg Config, logger zerolog.Logger, opts ...Option) *Pipeline {
	if cfg.SourceConcurrency <= 0 {
		cfg.SourceConcurrency = DefaultSourceConcurrency
	}
	p := &Pipeline{
		authors: authors,
		records: records,
		sources: sources,
		cfg:     cfg,
		logger:  observability.WithComponent(logger, "pipeline"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ReconcileAuthor merges the author's publications dated strictly after since.
//
// The returned error is non-nil only when the author cannot be loaded or ctx
// is done; it wraps domain.ErrNotFound or domain.ErrPipelineFatal.
func (p *Pipeline) ReconcileAuthor(ctx context.Context, authorID int64, since time.Time) (result *Result, err error) {
	since = domain.DateOnly(since)
	start := time.Now()

	ctx, span := observability.Tracer().Start(ctx, "reconcile.author", trace.WithAttributes(
		attribute.Int64("author_id", authorID),
		attribute.String("since", since.Format(domain.DateLayout)),
	))
	defer func() {
		observability.EndSpan(span, err)
		p.metrics.RecordReconcile(err == nil, time.Since(start).Seconds())
	}()

	logger := observability.WithAuthorContext(observability.FromContext(ctx, p.logger), authorID, since)

	author, err := p.authors.Get(ctx, authorID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: load author %d: %v", domain.ErrPipelineFatal, authorID, err)
	}

	result = &Result{
		AuthorID: authorID,
		Since:    since,
		Fetched:  make(map[domain.SourceTag]int),
	}

	records, err := p.fetchAll(ctx, author, since, result, logger)
	if err != nil {
		return nil, err
	}

	unique, stats := normalize.Dedupe(records)
	p.metrics.RecordDropped("all", observability.DropReasonDuplicate, stats.Duplicates)
	p.metrics.RecordDropped("all", observability.DropReasonNoKey, stats.NoKey)
	result.Deduplicated = len(unique)

	for _, rec := range unique {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: reconcile author %d: %v", domain.ErrPipelineFatal, authorID, err)
		}
		p.commit(ctx, authorID, rec, result, logger)
	}

	logger.Info().
		Int("fetched", result.TotalFetched()).
		Int("deduplicated", result.Deduplicated).
		Int("created", result.Created).
		Int("existing", result.Existing).
		Int("linked", result.Linked).
		Int("failed", result.Failed).
		Dur("duration", time.Since(start)).
		Msg("author reconciled")

	p.publish(ctx, result, logger)
	return result, nil
}

// fetchAll queries every applicable source concurrently and returns the
// normalized records in source precedence order.
func (p *Pipeline) fetchAll(ctx context.Context, author *domain.Author, since time.Time, result *Result, logger zerolog.Logger) ([]domain.PublicationRecord, error) {
	assignments := p.sources.ClientsFor(author)
	if len(assignments) == 0 {
		logger.Info().Msg("author has no source identifiers")
		return nil, nil
	}

	perSource := make([][]domain.PublicationRecord, len(assignments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.SourceConcurrency)
	for i, a := range assignments {
		g.Go(func() error {
			perSource[i] = p.fetchSource(gctx, a, since, logger)
			return nil
		})
	}
	// Fetch never fails, so Wait only reports cancellation through ctx.
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: fetch sources for author %d: %v", domain.ErrPipelineFatal, author.ID, err)
	}

	var all []domain.PublicationRecord
	for i, a := range assignments {
		result.Fetched[a.Tag] = len(perSource[i])
		all = append(all, perSource[i]...)
	}
	normalize.SortByPrecedence(all)
	return all, nil
}

func (p *Pipeline) fetchSource(ctx context.Context, a papersources.Assignment, since time.Time, logger zerolog.Logger) []domain.PublicationRecord {
	ctx, span := observability.Tracer().Start(ctx, "source.fetch", trace.WithAttributes(
		attribute.String("source", string(a.Tag)),
	))
	defer span.End()

	raws := a.Client.Fetch(ctx, a.Identifier, since)
	records := normalize.NormalizeAll(raws, a.Tag)
	span.SetAttributes(attribute.Int("records", len(records)))

	srcLogger := observability.WithSourceContext(logger, a.Tag.Label(), a.Identifier)
	srcLogger.Debug().
		Int("records", len(records)).
		Msg("source fetched")
	return records
}

// commit stores one record. A storage conflict is retried once as a lookup of
// the existing publication; any other failure only counts the record as failed.
func (p *Pipeline) commit(ctx context.Context, authorID int64, rec domain.PublicationRecord, result *Result, logger zerolog.Logger) {
	ctx, span := observability.Tracer().Start(ctx, "record.commit", trace.WithAttributes(
		attribute.String("source", string(rec.Source)),
	))

	res, err := p.records.SaveRecord(ctx, authorID, rec)
	if errors.Is(err, domain.ErrStorageConflict) {
		p.metrics.RecordStorageConflict()
		logger.Debug().Str("title", rec.Title).Msg("storage conflict, attaching existing publication")
		res, err = p.records.AttachExisting(ctx, authorID, rec)
	}
	observability.EndSpan(span, err)

	if err != nil {
		result.Failed++
		p.metrics.RecordCommitFailed()
		logger.Warn().Err(err).
			Str("title", rec.Title).
			Str("source", rec.Source.Label()).
			Msg("failed to commit record")
		return
	}

	if res.Created {
		result.Created++
	} else {
		result.Existing++
	}
	if res.Linked {
		result.Linked++
	}
	p.metrics.RecordPublicationUpsert(res.Created, res.Linked)
}

func (p *Pipeline) publish(ctx context.Context, result *Result, logger zerolog.Logger) {
	if p.events == nil {
		return
	}
	if err := p.events.PublishReconciled(ctx, result.Event(p.now().UTC())); err != nil {
		logger.Warn().Err(err).Msg("failed to publish reconciliation event")
	}
}

// ReconcileAll submits one job per author and returns the accepted job
// references. A failed submission is logged and skipped. The call does not
// wait for any job to finish.
func (p *Pipeline) ReconcileAll(ctx context.Context, since time.Time) ([]domain.JobRef, error) {
	if p.scheduler == nil {
		return nil, fmt.Errorf("%w: no job scheduler configured", domain.ErrPipelineFatal)
	}
	since = domain.DateOnly(since)

	ids, err := p.authors.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}

	logger := observability.FromContext(ctx, p.logger).With().
		Str("since", since.Format(domain.DateLayout)).
		Int("authors", len(ids)).
		Logger()

	refs := make([]domain.JobRef, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return refs, err
		}
		ref, err := p.scheduler.Submit(ctx, domain.Job{AuthorID: id, Since: since})
		if err != nil {
			logger.Warn().Err(err).Int64("author_id", id).Msg("failed to submit author job")
			continue
		}
		refs = append(refs, ref)
	}

	logger.Info().Int("submitted", len(refs)).Msg("reconcile-all fan-out submitted")
	return refs, nil
}
