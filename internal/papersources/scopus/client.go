// Package scopus implements the citation index source on top of the Elsevier Scopus APIs.
package scopus

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
	// DefaultBaseURL is the default Scopus API base URL.
	DefaultBaseURL = "https://api.elsevier.com/content"

	// DefaultRateLimit is the default rate limit (5 requests per second).
	DefaultRateLimit = 5.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 5

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultPageSize is the default number of search results per page.
	DefaultPageSize = 25

	// apiKeyHeader is the HTTP header name for the Scopus API key.
	apiKeyHeader = "X-ELS-APIKey"

	maxBodySize = 10 << 20
)

// Config holds configuration for the Scopus client.
type Config struct {
	// BaseURL is the Scopus API base URL.
	BaseURL string

	// APIKey is the Elsevier API key. Required for every request.
	APIKey string

	// Timeout bounds each request.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// PageSize is the number of search results requested per page.
	PageSize int

	// MaxPages caps the number of search pages per author. Zero means no cap.
	MaxPages int
}

// applyDefaults sets default values for unset configuration fields.
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
		c.BurstSize = DefaultBurstSize
	}
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
}

// Client implements papersources.SourceClient for Scopus.
// The search is paginated; every hit is refetched through the abstract
// retrieval API for keywords, abstract, links and author position.
// Requests are never retried within a run.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

var _ papersources.SourceClient = (*Client)(nil)

// New creates a new Scopus client with the given configuration.
func New(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:         domain.SourceCitationIndex.Label(),
		Timeout:        cfg.Timeout,
		RateLimit:      cfg.RateLimit,
		BurstSize:      cfg.BurstSize,
		DisableRetries: true,
		APIKey:         cfg.APIKey,
		APIKeyHeader:   apiKeyHeader,
	}, metrics)

	return NewWithHTTPClient(cfg, httpClient, logger, metrics)
}

// NewWithHTTPClient creates a new Scopus client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     observability.WithComponent(logger, "scopus"),
		metrics:    metrics,
	}
}

// Tag returns the citation index tag.
func (c *Client) Tag() domain.SourceTag {
	return domain.SourceCitationIndex
}

// Fetch lists the author's documents published after since. A failed search
// page ends pagination but keeps what was already collected; a failed detail
// request drops only that document.
func (c *Client) Fetch(ctx context.Context, authorID string, since time.Time) []papersources.RawRecord {
	start := time.Now()
	label := c.Tag().Label()
	logger := observability.WithSourceContext(observability.FromContext(ctx, c.logger), label, authorID)

	entries, complete := c.search(ctx, authorID, since, logger)

	records := make([]papersources.RawRecord, 0, len(entries))
	detailFailed, beforeSince := 0, 0
	for i := range entries {
		if ctx.Err() != nil {
			complete = false
			break
		}
		rec, err := c.detail(ctx, &entries[i], authorID)
		if err != nil {
			detailFailed++
			logger.Warn().Err(err).Str("scopus_id", entries[i].ScopusID()).Msg("scopus detail failed, dropping document")
			continue
		}
		if !domain.AfterSince(rec.Published, since) {
			beforeSince++
			continue
		}
		records = append(records, rec)
	}

	c.metrics.RecordDropped(label, observability.DropReasonDetailFailed, detailFailed)
	c.metrics.RecordDropped(label, observability.DropReasonBeforeSince, beforeSince)
	c.metrics.RecordSourceFetch(label, complete && detailFailed == 0, len(records), time.Since(start).Seconds())

	logger.Info().
		Int("hits", len(entries)).
		Int("records", len(records)).
		Int("detail_failed", detailFailed).
		Bool("complete", complete).
		Msg("scopus fetch finished")

	return records
}

// search pages through the author search. complete is false when a page failed.
func (c *Client) search(ctx context.Context, authorID string, since time.Time, logger zerolog.Logger) (entries []Entry, complete bool) {
	offset := 0
	for page := 0; c.config.MaxPages == 0 || page < c.config.MaxPages; page++ {
		searchURL, err := c.buildSearchURL(authorID, since, offset)
		if err != nil {
			logger.Error().Err(err).Msg("building scopus search URL")
			return entries, false
		}

		body, err := c.httpClient.Get(ctx, searchURL, "search", "application/json", maxBodySize)
		if err != nil {
			logger.Warn().Err(err).Int("offset", offset).Msg("scopus search page failed, keeping collected hits")
			return entries, false
		}

		var resp SearchResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			logger.Warn().Err(err).Int("offset", offset).Msg("decoding scopus search page")
			return entries, false
		}

		pageEntries := 0
		for _, e := range resp.SearchResults.Entries {
			if e.Error != "" || e.ScopusID() == "" {
				continue
			}
			entries = append(entries, e)
			pageEntries++
		}

		total, _ := strconv.Atoi(resp.SearchResults.TotalResults)
		offset += len(resp.SearchResults.Entries)
		if pageEntries == 0 || offset >= total {
			return entries, true
		}
	}
	return entries, true
}

// detail fetches one document's FULL abstract view and maps it to a RawRecord.
func (c *Client) detail(ctx context.Context, entry *Entry, authorID string) (papersources.RawRecord, error) {
	detailURL, err := c.buildDetailURL(entry.ScopusID())
	if err != nil {
		return papersources.RawRecord{}, err
	}

	body, err := c.httpClient.Get(ctx, detailURL, "detail", "application/json", maxBodySize)
	if err != nil {
		return papersources.RawRecord{}, err
	}

	var resp AbstractResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return papersources.RawRecord{}, fmt.Errorf("decoding abstract: %w", err)
	}
	core := resp.Retrieval.Coredata

	title := strings.TrimSpace(core.Title)
	if title == "" {
		title = strings.TrimSpace(entry.Title)
	}
	coverDate := core.CoverDate
	if coverDate == "" {
		coverDate = entry.CoverDate
	}
	published, err := time.Parse(domain.DateLayout, strings.TrimSpace(coverDate))
	if err != nil {
		return papersources.RawRecord{}, domain.NewMalformedRecordError(c.Tag().Label(), fmt.Sprintf("cover date %q", coverDate))
	}

	doi := strings.TrimSpace(core.DOI)
	link := core.LinkByRef("scopus")
	if link == "" && doi != "" {
		link = "https://doi.org/" + doi
	}

	return papersources.RawRecord{
		Title:       title,
		Published:   published,
		Year:        published.Year(),
		Keywords:    resp.Retrieval.AuthKeywords.Values(),
		Abstract:    papersources.StringPtr(core.Description),
		URL:         papersources.StringPtr(link),
		DOI:         doi,
		AuthorOrder: authorOrder(resp.Retrieval.Authors.List(), authorID),
	}, nil
}

// authorOrder returns the @seq of the author whose @auid matches, or 1.
func authorOrder(authors []Author, authorID string) int {
	for _, a := range authors {
		if a.AUID != authorID {
			continue
		}
		if seq, err := strconv.Atoi(strings.TrimSpace(a.Seq)); err == nil && seq > 0 {
			return seq
		}
	}
	return 1
}

// buildSearchURL constructs the Scopus author search URL.
// PUBYEAR is a coarse server-side filter; the exact date filter runs on detail data.
func (c *Client) buildSearchURL(authorID string, since time.Time, offset int) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/search/scopus"

	query := url.Values{}
	query.Set("query", fmt.Sprintf("AU-ID(%s) AND PUBYEAR > %d", authorID, since.Year()-1))
	query.Set("start", strconv.Itoa(offset))
	query.Set("count", strconv.Itoa(c.config.PageSize))
	query.Set("field", "dc:identifier,prism:coverDate,dc:title")
	baseURL.RawQuery = query.Encode()

	return baseURL.String(), nil
}

// buildDetailURL constructs the abstract retrieval URL for a Scopus ID.
func (c *Client) buildDetailURL(scopusID string) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/abstract/scopus_id/" + url.PathEscape(scopusID)
	baseURL.RawQuery = url.Values{"view": []string{"FULL"}}.Encode()
	return baseURL.String(), nil
}
