package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons used as the "reason" label of RecordsDropped.
const (
	DropReasonMalformed    = "malformed"
	DropReasonBeforeSince  = "before_since"
	DropReasonDetailFailed = "detail_failed"
	DropReasonDuplicate    = "duplicate"
	DropReasonNoKey        = "no_key"
)

// Metrics contains all Prometheus metrics for the publication tracker.
// Metrics are organized by subsystem: sources, records, storage, reconciliation
// and jobs. All collectors are registered via promauto with the default registry.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without metrics in tests.
type Metrics struct {
	// SourceFetches counts Fetch calls, labeled by source and outcome (ok, failed).
	SourceFetches *prometheus.CounterVec

	// SourceFetchDuration observes the duration of a whole Fetch call in seconds.
	SourceFetchDuration *prometheus.HistogramVec

	// SourceRequestsTotal counts HTTP requests to source APIs, labeled by source and endpoint.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestsFailed counts failed HTTP requests, labeled by source, endpoint and error type.
	SourceRequestsFailed *prometheus.CounterVec

	// SourceRequestDuration observes HTTP request duration to source APIs in seconds.
	SourceRequestDuration *prometheus.HistogramVec

	// SourceRateLimited counts rate-limited responses, labeled by source.
	SourceRateLimited *prometheus.CounterVec

	// RecordsFetched counts raw records returned by sources.
	RecordsFetched *prometheus.CounterVec

	// RecordsDropped counts records excluded before storage, labeled by source and reason.
	RecordsDropped *prometheus.CounterVec

	// PublicationsCreated counts publication rows inserted.
	PublicationsCreated prometheus.Counter

	// PublicationsExisting counts upserts that resolved to an existing publication.
	PublicationsExisting prometheus.Counter

	// LinksCreated counts author-publication links inserted.
	LinksCreated prometheus.Counter

	// StorageConflicts counts unique-key conflicts retried as a lookup.
	StorageConflicts prometheus.Counter

	// RecordCommitsFailed counts per-record transactions that failed.
	RecordCommitsFailed prometheus.Counter

	// ReconcileRuns counts author reconciliations, labeled by outcome.
	ReconcileRuns *prometheus.CounterVec

	// ReconcileDuration observes author reconciliation duration in seconds.
	ReconcileDuration prometheus.Histogram

	// JobsSubmitted counts jobs handed to the scheduler, labeled by kind.
	JobsSubmitted *prometheus.CounterVec

	// JobSubmitFailures counts failed job submissions, labeled by kind.
	JobSubmitFailures *prometheus.CounterVec

	// ReportCache counts report cache lookups, labeled by result (hit, miss).
	ReportCache *prometheus.CounterVec

	// EventsPublished counts bus events, labeled by topic and outcome.
	EventsPublished *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Sources
		SourceFetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      "Total number of source fetches by outcome",
		}, []string{"source", "outcome"}),
		SourceFetchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_duration_seconds",
			Help:      "Duration of a complete source fetch in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"source"}),
		SourceRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of requests to source APIs",
		}, []string{"source", "endpoint"}),
		SourceRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_failed_total",
			Help:      "Total number of failed requests to source APIs",
		}, []string{"source", "endpoint", "error_type"}),
		SourceRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Duration of requests to source APIs in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source", "endpoint"}),
		SourceRateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_rate_limited_total",
			Help:      "Total number of rate-limited responses from source APIs",
		}, []string{"source"}),

		// Records
		RecordsFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_fetched_total",
			Help:      "Total number of raw records returned by sources",
		}, []string{"source"}),
		RecordsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Total number of records excluded before storage",
		}, []string{"source", "reason"}),

		// Storage
		PublicationsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publications_created_total",
			Help:      "Total number of publications inserted",
		}),
		PublicationsExisting: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publications_existing_total",
			Help:      "Total number of upserts that matched an existing publication",
		}),
		LinksCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "author_links_created_total",
			Help:      "Total number of author-publication links inserted",
		}),
		StorageConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_conflicts_total",
			Help:      "Total number of unique-key conflicts retried as a lookup",
		}),
		RecordCommitsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_commits_failed_total",
			Help:      "Total number of per-record transactions that failed",
		}),

		// Reconciliation
		ReconcileRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_runs_total",
			Help:      "Total number of author reconciliations by outcome",
		}, []string{"outcome"}),
		ReconcileDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of author reconciliations in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),

		// Jobs
		JobsSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Total number of jobs submitted by kind",
		}, []string{"kind"}),
		JobSubmitFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_submit_failures_total",
			Help:      "Total number of failed job submissions by kind",
		}, []string{"kind"}),
		ReportCache: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_cache_lookups_total",
			Help:      "Total number of report cache lookups by result",
		}, []string{"result"}),

		// Events
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of events written to the message bus by outcome",
		}, []string{"topic", "outcome"}),
	}
}

// RecordSourceFetch records a completed Fetch call.
func (m *Metrics) RecordSourceFetch(source string, ok bool, records int, durationSeconds float64) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.SourceFetches.WithLabelValues(source, outcome).Inc()
	m.SourceFetchDuration.WithLabelValues(source).Observe(durationSeconds)
	m.RecordsFetched.WithLabelValues(source).Add(float64(records))
}

// RecordSourceRequest records a request to a source API.
func (m *Metrics) RecordSourceRequest(source, endpoint string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SourceRequestsTotal.WithLabelValues(source, endpoint).Inc()
	m.SourceRequestDuration.WithLabelValues(source, endpoint).Observe(durationSeconds)
}

// RecordSourceRequestFailed records a failed request to a source API.
func (m *Metrics) RecordSourceRequestFailed(source, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.SourceRequestsFailed.WithLabelValues(source, endpoint, errorType).Inc()
}

// RecordSourceRateLimited records a rate limit response from a source.
func (m *Metrics) RecordSourceRateLimited(source string) {
	if m == nil {
		return
	}
	m.SourceRateLimited.WithLabelValues(source).Inc()
}

// RecordDropped records records excluded before storage.
func (m *Metrics) RecordDropped(source, reason string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.RecordsDropped.WithLabelValues(source, reason).Add(float64(count))
}

// RecordPublicationUpsert records the outcome of one publication upsert.
func (m *Metrics) RecordPublicationUpsert(created, linked bool) {
	if m == nil {
		return
	}
	if created {
		m.PublicationsCreated.Inc()
	} else {
		m.PublicationsExisting.Inc()
	}
	if linked {
		m.LinksCreated.Inc()
	}
}

// RecordStorageConflict records a unique-key conflict that was retried.
func (m *Metrics) RecordStorageConflict() {
	if m == nil {
		return
	}
	m.StorageConflicts.Inc()
}

// RecordCommitFailed records a failed per-record transaction.
func (m *Metrics) RecordCommitFailed() {
	if m == nil {
		return
	}
	m.RecordCommitsFailed.Inc()
}

// RecordReconcile records a finished author reconciliation.
func (m *Metrics) RecordReconcile(ok bool, durationSeconds float64) {
	if m == nil {
		return
	}
	outcome := "succeeded"
	if !ok {
		outcome = "failed"
	}
	m.ReconcileRuns.WithLabelValues(outcome).Inc()
	m.ReconcileDuration.Observe(durationSeconds)
}

// RecordJobSubmitted records a job submission attempt.
func (m *Metrics) RecordJobSubmitted(kind string, ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.JobsSubmitted.WithLabelValues(kind).Inc()
		return
	}
	m.JobSubmitFailures.WithLabelValues(kind).Inc()
}

// RecordReportCache records a report cache lookup.
func (m *Metrics) RecordReportCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.ReportCache.WithLabelValues("hit").Inc()
		return
	}
	m.ReportCache.WithLabelValues("miss").Inc()
}

// RecordEventPublished records an event bus write.
func (m *Metrics) RecordEventPublished(topic string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.EventsPublished.WithLabelValues(topic, outcome).Inc()
}
