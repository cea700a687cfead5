// Package staffpage fills missing author identifiers from the institution's
// public staff profile page.
package staffpage

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/yohaboy/research-tracker/internal/observability"
	"github.com/yohaboy/research-tracker/internal/papersources"
)

const (
	// DefaultURLTemplate is the staff directory URL pattern.
	DefaultURLTemplate = "https://people.unisa.edu.au/{first}.{last}"

	// DefaultTimeout bounds the page fetch.
	DefaultTimeout = 5 * time.Second

	sourceLabel = "Staff page"
	maxBodySize = 2 << 20
)

// Identifiers are the external source IDs a staff page can link to.
type Identifiers struct {
	ScopusID  string
	ScholarID string
	ORCIDID   string
}

func (ids Identifiers) complete() bool {
	return ids.ScopusID != "" && ids.ScholarID != "" && ids.ORCIDID != ""
}

// StaffURL renders template with the path-escaped first and last names.
func StaffURL(template, first, last string) string {
	if template == "" {
		template = DefaultURLTemplate
	}
	r := strings.NewReplacer(
		"{first}", url.PathEscape(strings.TrimSpace(first)),
		"{last}", url.PathEscape(strings.TrimSpace(last)),
	)
	return r.Replace(template)
}

// Config configures the scraper.
type Config struct {
	URLTemplate string
	Timeout     time.Duration
}

// Scraper reads identifier links from staff profile pages.
type Scraper struct {
	config     Config
	httpClient *papersources.HTTPClient
	logger     zerolog.Logger
}

// New creates a Scraper. metrics may be nil.
func New(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Scraper {
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = DefaultURLTemplate
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Scraper{
		config: cfg,
		httpClient: papersources.NewHTTPClient(papersources.HTTPClientConfig{
			Source:         sourceLabel,
			Timeout:        cfg.Timeout,
			RateLimit:      2,
			BurstSize:      2,
			DisableRetries: true,
		}, metrics),
		logger: observability.WithComponent(logger, "staffpage"),
	}
}

// StaffURL renders the configured template for an author.
func (s *Scraper) StaffURL(first, last string) string {
	return StaffURL(s.config.URLTemplate, first, last)
}

// Enrich fetches staffURL and fills the empty fields of ids from the links on
// the page. Identifiers that are already set are never replaced. Any failure
// returns ids unchanged.
func (s *Scraper) Enrich(ctx context.Context, staffURL string, ids Identifiers) Identifiers {
	if staffURL == "" || ids.complete() {
		return ids
	}
	logger := observability.FromContext(ctx, s.logger).With().Str("staff_url", staffURL).Logger()

	body, err := s.httpClient.Get(ctx, staffURL, "profile", "text/html", maxBodySize)
	if err != nil {
		logger.Debug().Err(err).Msg("staff page unavailable")
		return ids
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		logger.Debug().Err(err).Msg("staff page unparseable")
		return ids
	}

	found := ExtractIdentifiers(doc)
	if ids.ScopusID == "" {
		ids.ScopusID = found.ScopusID
	}
	if ids.ScholarID == "" {
		ids.ScholarID = found.ScholarID
	}
	if ids.ORCIDID == "" {
		ids.ORCIDID = found.ORCIDID
	}
	logger.Debug().
		Str("scopus_id", ids.ScopusID).
		Str("scholar_id", ids.ScholarID).
		Str("orcid_id", ids.ORCIDID).
		Msg("staff page scraped")
	return ids
}

// ExtractIdentifiers scans every anchor of doc. The first matching link wins
// for each identifier.
func ExtractIdentifiers(doc *goquery.Document) Identifiers {
	var ids Identifiers
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		u, err := url.Parse(strings.TrimSpace(href))
		if err != nil || u.Host == "" {
			return true
		}
		host := strings.ToLower(u.Host)
		switch {
		case ids.ScopusID == "" && strings.Contains(host, "scopus.com"):
			ids.ScopusID = strings.TrimSpace(u.Query().Get("authorId"))
		case ids.ScholarID == "" && strings.Contains(host, "scholar.google"):
			ids.ScholarID = strings.TrimSpace(u.Query().Get("user"))
		case ids.ORCIDID == "" && strings.HasSuffix(host, "orcid.org"):
			ids.ORCIDID = firstPathSegment(u.Path)
		}
		return !ids.complete()
	})
	return ids
}

func firstPathSegment(p string) string {
	p = strings.Trim(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	return p
}
