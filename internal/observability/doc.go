// Package observability provides logging, metrics, and tracing support for
// the publication tracker.
//
// # Logging
//
// Loggers are zerolog instances built from configuration:
//
//	logger := observability.NewLogger(observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	})
//	logger = observability.WithAuthorContext(logger, author.ID, since)
//
// Source clients never surface fetch errors to the pipeline. They report them
// here instead: a WARN log line carrying source and identifier, plus the
// source_fetches_total{outcome="failed"} counter.
//
// # Metrics
//
// NewMetrics registers every collector under a namespace (pubtrack in
// production). A nil *Metrics is accepted everywhere and records nothing.
//
// # Tracing
//
// InitTracing installs an OpenTelemetry tracer provider exporting over
// OTLP/HTTP, or to stdout when no endpoint is configured. The reconciliation
// pipeline opens reconcile.author, source.fetch and record.commit spans via
// Tracer().
package observability
