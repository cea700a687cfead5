// Package orcid implements the identifier registry source on the ORCID public API.
package orcid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/yohaboy/research-tracker/internal/domain"
	"github.com/yohaboy/research-tracker/internal/observability"
	"github.com/yohaboy/research-tracker/internal/papersources"
)

const (
	// DefaultBaseURL is the ORCID public API base URL.
	DefaultBaseURL = "https://pub.orcid.org/v3.0"

	// DefaultRateLimit stays under the public API's 24 req/s limit.
	DefaultRateLimit = 8.0

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	maxBodySize = 20 << 20
)

// Config holds configuration for the ORCID client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RateLimit  float64
	BurstSize  int
	MaxRetries int
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = int(c.RateLimit)
	}
}

// Client implements papersources.SourceClient for ORCID works.
// The works listing is a single request; the first summary of each group is used.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

var _ papersources.SourceClient = (*Client)(nil)

// New creates a new ORCID client.
func New(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:     domain.SourceIdentifierRegistry.Label(),
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
		BurstSize:  cfg.BurstSize,
		MaxRetries: cfg.MaxRetries,
	}, metrics)

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     observability.WithComponent(logger, "orcid"),
		metrics:    metrics,
	}
}

// Tag returns the identifier registry tag.
func (c *Client) Tag() domain.SourceTag {
	return domain.SourceIdentifierRegistry
}

// Fetch lists the works of orcidID published strictly after since.
func (c *Client) Fetch(ctx context.Context, orcidID string, since time.Time) []papersources.RawRecord {
	start := time.Now()
	label := c.Tag().Label()
	logger := observability.WithSourceContext(observability.FromContext(ctx, c.logger), label, orcidID)

	works, err := c.works(ctx, orcidID)
	if err != nil {
		logger.Warn().Err(err).Msg("orcid works request failed")
		c.metrics.RecordSourceFetch(label, false, 0, time.Since(start).Seconds())
		return nil
	}

	records := make([]papersources.RawRecord, 0, len(works.Groups))
	malformed, beforeSince := 0, 0
	for _, group := range works.Groups {
		if len(group.Summaries) == 0 {
			continue
		}
		rec, err := toRawRecord(&group.Summaries[0])
		if err != nil {
			malformed++
			logger.Debug().Err(err).Msg("skipping orcid work")
			continue
		}
		if !domain.AfterSince(rec.Published, since) {
			beforeSince++
			continue
		}
		records = append(records, rec)
	}

	c.metrics.RecordDropped(label, observability.DropReasonMalformed, malformed)
	c.metrics.RecordDropped(label, observability.DropReasonBeforeSince, beforeSince)
	c.metrics.RecordSourceFetch(label, true, len(records), time.Since(start).Seconds())
	logger.Info().
		Int("groups", len(works.Groups)).
		Int("records", len(records)).
		Int("malformed", malformed).
		Msg("orcid fetch finished")
	return records
}

func (c *Client) works(ctx context.Context, orcidID string) (*WorksResponse, error) {
	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	base.Path = strings.TrimRight(base.Path, "/") + "/" + url.PathEscape(orcidID) + "/works"

	body, err := c.httpClient.Get(ctx, base.String(), "works", "application/json", maxBodySize)
	if err != nil {
		return nil, err
	}

	var resp WorksResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewExternalAPIError(c.Tag().Label(), 200, "decoding works", err)
	}
	return &resp, nil
}

// toRawRecord maps a work summary. Month and day default to 1; a missing or
// invalid year makes the work malformed.
func toRawRecord(w *WorkSummary) (papersources.RawRecord, error) {
	label := domain.SourceIdentifierRegistry.Label()
	if w.PublicationDate == nil || w.PublicationDate.Year.text() == "" {
		return papersources.RawRecord{}, domain.NewMalformedRecordError(label, "no publication year")
	}

	year, err := strconv.Atoi(w.PublicationDate.Year.text())
	if err != nil || year <= 0 {
		return papersources.RawRecord{}, domain.NewMalformedRecordError(label, "invalid publication year")
	}
	month, day := 1, 1
	if s := w.PublicationDate.Month.text(); s != "" {
		if month, err = strconv.Atoi(s); err != nil {
			return papersources.RawRecord{}, domain.NewMalformedRecordError(label, "invalid publication month")
		}
	}
	if s := w.PublicationDate.Day.text(); s != "" {
		if day, err = strconv.Atoi(s); err != nil {
			return papersources.RawRecord{}, domain.NewMalformedRecordError(label, "invalid publication day")
		}
	}
	published := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if month < 1 || month > 12 || published.Day() != day {
		return papersources.RawRecord{}, domain.NewMalformedRecordError(label, "impossible publication date")
	}

	doi := w.DOI()
	link := w.URL.text()
	if link == "" && doi != "" {
		link = "https://doi.org/" + doi
	}

	return papersources.RawRecord{
		Title:     w.TitleText(),
		Published: published,
		Year:      year,
		URL:       papersources.StringPtr(link),
		DOI:       doi,
	}, nil
}
