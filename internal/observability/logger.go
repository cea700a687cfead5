package observability

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggingConfig selects level, encoding and destination of the process logger.
type LoggingConfig struct {
	Level      string // trace..panic; "warning" is accepted for warn
	Format     string // json, or console/pretty for humans
	Output     string // stdout or stderr
	AddSource  bool
	TimeFormat string
}

// NewLogger builds the process logger. Unknown levels fall back to info.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		w = os.Stderr
	}
	return newLogger(cfg, w)
}

func newLogger(cfg LoggingConfig, w io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	switch strings.ToLower(cfg.Format) {
	case "console", "pretty":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: zerolog.TimeFieldFormat}
	}

	lc := zerolog.New(w).Level(levelOf(cfg.Level)).With().Timestamp()
	if cfg.AddSource {
		lc = lc.Caller()
	}
	return lc.Logger()
}

func levelOf(name string) zerolog.Level {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		return zerolog.WarnLevel
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil || name == "" || level == zerolog.NoLevel || level == zerolog.Disabled {
		return zerolog.InfoLevel
	}
	return level
}

// WithComponent tags a logger with the emitting component.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// WithAuthorContext tags a logger with the author under reconciliation and
// the since date of the run.
func WithAuthorContext(logger zerolog.Logger, authorID int64, since time.Time) zerolog.Logger {
	return logger.With().
		Int64("author_id", authorID).
		Str("since", since.Format("2006-01-02")).
		Logger()
}

// WithSourceContext tags a logger with a source label and the author
// identifier that source is queried with.
func WithSourceContext(logger zerolog.Logger, source, identifier string) zerolog.Logger {
	return logger.With().
		Str("source", source).
		Str("identifier", identifier).
		Logger()
}

// FromContext adds the request ID, job ID and active trace carried by ctx.
func FromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	c := correlationFrom(ctx)
	traceID, spanID := TraceSpanFromContext(ctx)
	if c.requestID == "" && c.jobID == "" && traceID == "" {
		return logger
	}

	lc := logger.With()
	if c.requestID != "" {
		lc = lc.Str("request_id", c.requestID)
	}
	if c.jobID != "" {
		lc = lc.Str("job_id", c.jobID)
	}
	if traceID != "" {
		lc = lc.Str("trace_id", traceID).Str("span_id", spanID)
	}
	return lc.Logger()
}
