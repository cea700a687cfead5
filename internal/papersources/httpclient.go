package papersources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/yohaboy/research-tracker/internal/domain"
	"github.com/yohaboy/research-tracker/internal/observability"
)

// DefaultUserAgent is sent with every source request.
const DefaultUserAgent = "ResearchTracker/1.0 (+https://github.com/yohaboy/research-tracker)"

const (
	defaultRetryDelay = time.Second
	maxRetryDelay     = 30 * time.Second
	errorBodyLimit    = 4 << 10
)

// HTTPClientConfig configures the shared source fetcher.
type HTTPClientConfig struct {
	// Source labels metrics and errors, e.g. "Scopus".
	Source string

	// Timeout bounds one attempt. Defaults to 30s.
	Timeout time.Duration

	// RateLimit and BurstSize set the ceiling of the adaptive limiter.
	RateLimit float64
	BurstSize int

	// MaxRetries counts attempts after the first. Network errors, 429 and
	// 5xx are retried; any other status is final.
	MaxRetries     int
	DisableRetries bool

	// RetryDelay is the first backoff step. It doubles per attempt up to
	// 30s; a Retry-After header replaces it.
	RetryDelay time.Duration

	UserAgent string

	// APIKey is sent in APIKeyHeader when both are set (Scopus uses X-ELS-APIKey).
	APIKey       string
	APIKeyHeader string
}

// HTTPClient performs rate-limited GETs against one publication source.
// A 429 lowers the request rate; each 2xx raises it back toward RateLimit.
// It is safe for concurrent use.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      HTTPClientConfig
	metrics     *observability.Metrics
}

// NewHTTPClient applies defaults to cfg. metrics may be nil.
func NewHTTPClient(cfg HTTPClientConfig, metrics *observability.Metrics) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 1
	}
	if cfg.MaxRetries < 0 || cfg.DisableRetries {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	return &HTTPClient{
		client:      &http.Client{Timeout: cfg.Timeout},
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		config:      cfg,
		metrics:     metrics,
	}
}

// Get fetches rawURL and returns at most maxBytes of a 2xx body. endpoint is
// a low-cardinality metrics label such as "search" or "detail".
//
// A non-retryable status comes back as *domain.ExternalAPIError carrying the
// start of the response body. When retries run out the error wraps
// domain.ErrRateLimited for 429 and domain.ErrSourceUnavailable otherwise.
func (c *HTTPClient) Get(ctx context.Context, rawURL, endpoint, accept string, maxBytes int64) ([]byte, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		body, wait, err := c.attempt(ctx, rawURL, endpoint, accept, maxBytes)
		if err == nil {
			return body, nil
		}
		if wait < 0 {
			return nil, err
		}
		lastErr = err
		if attempt >= c.config.MaxRetries {
			break
		}
		if wait == 0 {
			wait = c.backoff(attempt)
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("giving up after %d attempt(s): %w", c.config.MaxRetries+1, lastErr)
}

// attempt sends one request. A negative wait marks err as final; zero means
// retry on the default backoff; positive is a server-requested delay.
func (c *HTTPClient) attempt(ctx context.Context, rawURL, endpoint, accept string, maxBytes int64) ([]byte, time.Duration, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, -1, fmt.Errorf("rate limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, -1, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if c.config.APIKey != "" && c.config.APIKeyHeader != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	c.metrics.RecordSourceRequest(c.config.Source, endpoint, time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.metrics.RecordSourceRequestFailed(c.config.Source, endpoint, "canceled")
			return nil, -1, err
		}
		c.metrics.RecordSourceRequestFailed(c.config.Source, endpoint, "network")
		return nil, 0, domain.NewExternalAPIError(c.config.Source, 0, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.rateLimiter.Recover()
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
		if err != nil {
			return nil, -1, domain.NewExternalAPIError(c.config.Source, resp.StatusCode, "reading body", err)
		}
		return body, 0, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		drain(resp.Body)
		c.rateLimiter.Throttle()
		c.metrics.RecordSourceRateLimited(c.config.Source)
		wait := retryAfter(resp.Header.Get("Retry-After"))
		return nil, wait, domain.NewRateLimitError(c.config.Source, wait)

	case resp.StatusCode >= 500:
		drain(resp.Body)
		c.metrics.RecordSourceRequestFailed(c.config.Source, endpoint, "status_"+strconv.Itoa(resp.StatusCode))
		return nil, retryAfter(resp.Header.Get("Retry-After")),
			domain.NewExternalAPIError(c.config.Source, resp.StatusCode, "server error", nil)

	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		c.metrics.RecordSourceRequestFailed(c.config.Source, endpoint, "status_"+strconv.Itoa(resp.StatusCode))
		return nil, -1, domain.NewExternalAPIError(c.config.Source, resp.StatusCode, string(msg), nil)
	}
}

// backoff is RetryDelay doubled per completed attempt, capped at 30s.
func (c *HTTPClient) backoff(attempt int) time.Duration {
	d := c.config.RetryDelay
	for i := 0; i < attempt && d < maxRetryDelay; i++ {
		d *= 2
	}
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP
// date. Missing, past or unparseable values yield zero.
func retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.ParseInt(header, 10, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return min(time.Duration(secs)*time.Second, maxRetryDelay)
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return min(d, maxRetryDelay)
		}
	}
	return 0
}

func drain(body io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, errorBodyLimit))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
