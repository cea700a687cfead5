// Package scholar implements the profile aggregator source by scraping
// Google Scholar citation profiles with goquery.
package scholar

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/yohaboy/research-tracker/internal/domain"
	"github.com/yohaboy/research-tracker/internal/observability"
	"github.com/yohaboy/research-tracker/internal/papersources"
)

const (
	// DefaultBaseURL is the Google Scholar origin.
	DefaultBaseURL = "https://scholar.google.com"

	// DefaultRateLimit keeps scraping well under Scholar's bot thresholds.
	DefaultRateLimit = 0.5

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 20 * time.Second

	// DefaultPageSize is the number of profile rows requested per page (Scholar's maximum).
	DefaultPageSize = 100

	// DefaultMaxPages caps profile pagination.
	DefaultMaxPages = 5

	maxBodySize = 5 << 20
	acceptHTML  = "text/html,application/xhtml+xml"
)

// Config holds configuration for the Scholar client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RateLimit  float64
	BurstSize  int
	PageSize   int
	MaxPages   int
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
		c.BurstSize = 1
	}
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxPages == 0 {
		c.MaxPages = DefaultMaxPages
	}
}

// Client implements papersources.SourceClient for Google Scholar profiles.
//
// The profile listing only has year precision, so entries listed in since's
// year or later are refetched for their full date. A detail page giving at
// least a month is then held to the exact since boundary; a year-only date
// keeps the year rule. Any failure, on the profile or on a detail page, discards the
// whole fetch since a partial scrape usually means Scholar started blocking.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

var _ papersources.SourceClient = (*Client)(nil)

// New creates a new Scholar client.
func New(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:     domain.SourceProfileAggregator.Label(),
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
		BurstSize:  cfg.BurstSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: 2 * time.Second,
	}, metrics)

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     observability.WithComponent(logger, "scholar"),
		metrics:    metrics,
	}
}

// Tag returns the profile aggregator tag.
func (c *Client) Tag() domain.SourceTag {
	return domain.SourceProfileAggregator
}

// profileEntry is one row of the profile publication table.
type profileEntry struct {
	title string
	href  string
	year  int
}

// Fetch scrapes the profile of userID and returns publications after since.
func (c *Client) Fetch(ctx context.Context, userID string, since time.Time) []papersources.RawRecord {
	start := time.Now()
	label := c.Tag().Label()
	logger := observability.WithSourceContext(observability.FromContext(ctx, c.logger), label, userID)

	records, dropped, err := c.fetch(ctx, userID, since)
	if err != nil {
		logger.Warn().Err(err).Msg("scholar fetch failed, discarding results")
		c.metrics.RecordSourceFetch(label, false, 0, time.Since(start).Seconds())
		return nil
	}

	c.metrics.RecordDropped(label, observability.DropReasonBeforeSince, dropped)
	c.metrics.RecordSourceFetch(label, true, len(records), time.Since(start).Seconds())
	logger.Info().Int("records", len(records)).Int("dropped", dropped).Msg("scholar fetch finished")
	return records
}

func (c *Client) fetch(ctx context.Context, userID string, since time.Time) ([]papersources.RawRecord, int, error) {
	var entries []profileEntry
	dropped := 0

	for page := 0; page < c.config.MaxPages; page++ {
		rows, err := c.profilePage(ctx, userID, page*c.config.PageSize)
		if err != nil {
			return nil, 0, err
		}
		for _, row := range rows {
			if row.year == 0 || row.year < since.Year() {
				dropped++
				continue
			}
			entries = append(entries, row)
		}
		if len(rows) < c.config.PageSize {
			break
		}
	}

	records := make([]papersources.RawRecord, 0, len(entries))
	for _, entry := range entries {
		rec, exact, err := c.detail(ctx, entry)
		if err != nil {
			return nil, 0, fmt.Errorf("detail %q: %w", entry.title, err)
		}
		if exact && !domain.AfterSince(rec.Published, since) {
			dropped++
			continue
		}
		records = append(records, rec)
	}
	return records, dropped, nil
}

// profilePage fetches one page of the profile and returns its rows.
func (c *Client) profilePage(ctx context.Context, userID string, cstart int) ([]profileEntry, error) {
	pageURL, err := c.profileURL(userID, cstart)
	if err != nil {
		return nil, err
	}

	body, err := c.httpClient.Get(ctx, pageURL, "profile", acceptHTML, maxBodySize)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing profile page: %w", err)
	}

	var rows []profileEntry
	doc.Find("tr.gsc_a_tr").Each(func(_ int, s *goquery.Selection) {
		link := s.Find("a.gsc_a_at").First()
		href, _ := link.Attr("href")
		year, _ := strconv.Atoi(strings.TrimSpace(s.Find(".gsc_a_y").First().Text()))
		rows = append(rows, profileEntry{
			title: strings.TrimSpace(link.Text()),
			href:  href,
			year:  year,
		})
	})
	return rows, nil
}

// detail fetches the citation view of one profile entry. exact reports a
// publication date with month or day precision.
func (c *Client) detail(ctx context.Context, entry profileEntry) (rec papersources.RawRecord, exact bool, err error) {
	if entry.href == "" {
		return rec, false, domain.NewMalformedRecordError(c.Tag().Label(), "profile row without link")
	}
	detailURL, err := c.resolve(entry.href)
	if err != nil {
		return rec, false, err
	}

	body, err := c.httpClient.Get(ctx, detailURL, "detail", acceptHTML, maxBodySize)
	if err != nil {
		return rec, false, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return rec, false, fmt.Errorf("parsing detail page: %w", err)
	}

	title := strings.TrimSpace(doc.Find("#gsc_oci_title").First().Text())
	if title == "" {
		title = entry.title
	}
	link, _ := doc.Find("a.gsc_oci_title_link").First().Attr("href")

	published := time.Date(entry.year, time.January, 1, 0, 0, 0, 0, time.UTC)
	if raw := fieldValue(doc, "Publication date"); raw != "" {
		if d, ok := parseScholarDate(raw); ok {
			published, exact = d, strings.Contains(raw, "/")
		}
	}

	abstract := strings.TrimSpace(doc.Find("#gsc_oci_descr").First().Text())

	return papersources.RawRecord{
		Title:     title,
		Published: published,
		Year:      entry.year,
		Abstract:  papersources.StringPtr(abstract),
		URL:       papersources.StringPtr(link),
	}, exact, nil
}

// fieldValue returns the value cell next to the named field of the citation view.
func fieldValue(doc *goquery.Document, name string) string {
	var value string
	doc.Find(".gs_scl").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.TrimSpace(s.Find(".gsc_oci_field").Text()) != name {
			return true
		}
		value = strings.TrimSpace(s.Find(".gsc_oci_value").Text())
		return false
	})
	return value
}

// parseScholarDate parses "YYYY", "YYYY/M" or "YYYY/M/D".
func parseScholarDate(s string) (time.Time, bool) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) == 0 || len(parts) > 3 {
		return time.Time{}, false
	}
	nums := []int{0, 1, 1}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return time.Time{}, false
		}
		nums[i] = n
	}
	if nums[0] <= 0 || nums[1] < 1 || nums[1] > 12 || nums[2] < 1 || nums[2] > 31 {
		return time.Time{}, false
	}
	t := time.Date(nums[0], time.Month(nums[1]), nums[2], 0, 0, 0, 0, time.UTC)
	if t.Day() != nums[2] {
		return time.Time{}, false
	}
	return t, true
}

func (c *Client) profileURL(userID string, cstart int) (string, error) {
	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	base.Path = strings.TrimRight(base.Path, "/") + "/citations"
	query := url.Values{}
	query.Set("user", userID)
	query.Set("hl", "en")
	query.Set("cstart", strconv.Itoa(cstart))
	query.Set("pagesize", strconv.Itoa(c.config.PageSize))
	base.RawQuery = query.Encode()
	return base.String(), nil
}

// resolve turns a profile-relative href into an absolute URL on the configured origin.
func (c *Client) resolve(href string) (string, error) {
	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parsing detail link: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}
