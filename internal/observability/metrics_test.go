package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Note: prometheus/promauto registers metrics globally, so we need to use
// unique namespaces per test to avoid registration conflicts.

func TestNewMetrics(t *testing.T) {
	m := NewMetrics("test_pubtrack_new")

	assert.NotNil(t, m.SourceFetches)
	assert.NotNil(t, m.SourceFetchDuration)
	assert.NotNil(t, m.SourceRequestsTotal)
	assert.NotNil(t, m.SourceRequestsFailed)
	assert.NotNil(t, m.RecordsFetched)
	assert.NotNil(t, m.RecordsDropped)
	assert.NotNil(t, m.PublicationsCreated)
	assert.NotNil(t, m.StorageConflicts)
	assert.NotNil(t, m.ReconcileRuns)
	assert.NotNil(t, m.JobsSubmitted)
	assert.NotNil(t, m.ReportCache)
	assert.NotNil(t, m.EventsPublished)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordSourceFetch("citation_index", true, 3, 1)
		m.RecordSourceRequest("citation_index", "search", 0.2)
		m.RecordSourceRequestFailed("citation_index", "search", "http_500")
		m.RecordSourceRateLimited("citation_index")
		m.RecordDropped("citation_index", DropReasonMalformed, 1)
		m.RecordPublicationUpsert(true, true)
		m.RecordStorageConflict()
		m.RecordCommitFailed()
		m.RecordReconcile(true, 1)
		m.RecordJobSubmitted("author", true)
		m.RecordReportCache(true)
		m.RecordEventPublished("publications.reconciled", true)
	})
}

func TestRecordSourceFetch(t *testing.T) {
	m := NewMetrics("test_source_fetch")

	m.RecordSourceFetch("identifier_registry", true, 4, 1.5)
	m.RecordSourceFetch("identifier_registry", false, 0, 0.5)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SourceFetches.WithLabelValues("identifier_registry", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SourceFetches.WithLabelValues("identifier_registry", "failed")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.RecordsFetched.WithLabelValues("identifier_registry")))
}

func TestRecordSourceRequest(t *testing.T) {
	m := NewMetrics("test_source_request")

	m.RecordSourceRequest("citation_index", "search", 0.3)
	m.RecordSourceRequestFailed("citation_index", "detail", "http_404")
	m.RecordSourceRateLimited("citation_index")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SourceRequestsTotal.WithLabelValues("citation_index", "search")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SourceRequestsFailed.WithLabelValues("citation_index", "detail", "http_404")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SourceRateLimited.WithLabelValues("citation_index")))
}

func TestRecordDropped(t *testing.T) {
	m := NewMetrics("test_records_dropped")

	m.RecordDropped("profile_aggregator", DropReasonBeforeSince, 3)
	m.RecordDropped("profile_aggregator", DropReasonBeforeSince, 0)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.RecordsDropped.WithLabelValues("profile_aggregator", DropReasonBeforeSince)))
}

func TestRecordPublicationUpsert(t *testing.T) {
	m := NewMetrics("test_publication_upsert")

	m.RecordPublicationUpsert(true, true)
	m.RecordPublicationUpsert(false, true)
	m.RecordPublicationUpsert(false, false)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.PublicationsCreated))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.PublicationsExisting))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.LinksCreated))
}

func TestRecordStorageOutcomes(t *testing.T) {
	m := NewMetrics("test_storage_outcomes")

	m.RecordStorageConflict()
	m.RecordCommitFailed()
	m.RecordCommitFailed()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.StorageConflicts))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RecordCommitsFailed))
}

func TestRecordReconcile(t *testing.T) {
	m := NewMetrics("test_reconcile")

	m.RecordReconcile(true, 12)
	m.RecordReconcile(false, 3)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ReconcileRuns.WithLabelValues("succeeded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ReconcileRuns.WithLabelValues("failed")))

	histCount, err := getHistogramSampleCount(m.ReconcileDuration)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), histCount)
}

func TestRecordJobSubmitted(t *testing.T) {
	m := NewMetrics("test_jobs_submitted")

	m.RecordJobSubmitted("author", true)
	m.RecordJobSubmitted("author", false)
	m.RecordJobSubmitted("fan_out", true)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.JobsSubmitted.WithLabelValues("author")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.JobSubmitFailures.WithLabelValues("author")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.JobsSubmitted.WithLabelValues("fan_out")))
}

func TestRecordReportCache(t *testing.T) {
	m := NewMetrics("test_report_cache")

	m.RecordReportCache(false)
	m.RecordReportCache(true)
	m.RecordReportCache(true)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ReportCache.WithLabelValues("hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ReportCache.WithLabelValues("miss")))
}

func TestRecordEventPublished(t *testing.T) {
	m := NewMetrics("test_events_published")

	m.RecordEventPublished("publications.reconciled", true)
	m.RecordEventPublished("publications.reconciled", false)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsPublished.WithLabelValues("publications.reconciled", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsPublished.WithLabelValues("publications.reconciled", "failed")))
}

// Helper to get histogram sample count
func getHistogramSampleCount(h prometheus.Histogram) (uint64, error) {
	ch := make(chan prometheus.Metric, 1)
	h.Collect(ch)
	close(ch)

	var m prometheus.Metric
	for m = range ch {
		break
	}

	var out = &dto.Metric{}
	if err := m.Write(out); err != nil {
		return 0, err
	}

	return out.Histogram.GetSampleCount(), nil
}
