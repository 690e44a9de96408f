// Package fetcher retrieves full article HTML with retries, per-host pacing
// and response validation. A fetch never returns a Go error: every failure
// path yields a Result carrying the caller-supplied fallback content so the
// pipeline can proceed with degraded input instead of dropping the article.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"briefpipe/pkg/ratelimit"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultMaxRetries  = 3
	defaultRateDelay   = 1 * time.Second
	defaultBackoffBase = 1 * time.Second
	defaultBackoffMax  = 4 * time.Second
	defaultMinBody     = 100
	defaultMaxBody     = 10 << 20
	defaultUserAgent   = "briefpipe/1.0 (article ingestion; +https://github.com)"
)

var validContentTypes = []string{
	"text/html",
	"application/xhtml+xml",
	"application/xml",
	"text/xml",
}

// Config tunes fetch behavior. Zero values fall back to defaults.
type Config struct {
	Timeout        time.Duration
	MaxRetries     int // retries after the initial attempt
	RateLimitDelay time.Duration
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	MinBodyBytes   int
	MaxBodyBytes   int64
	UserAgent      string
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RateLimitDelay <= 0 {
		c.RateLimitDelay = defaultRateDelay
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = defaultBackoffMax
	}
	if c.MinBodyBytes <= 0 {
		c.MinBodyBytes = defaultMinBody
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBody
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
}

// Result is the outcome of a fetch. When Success is false, HTML carries the
// fallback content supplied by the caller.
type Result struct {
	Success     bool
	HTML        string
	Error       string
	StatusCode  int
	FinalURL    string
	ContentType string
	Duration    time.Duration
	Attempts    int
}

// Fetcher fetches article pages.
type Fetcher struct {
	client  *http.Client
	limiter *ratelimit.HostLimiter
	cfg     Config
	sleep   func(ctx context.Context, d time.Duration) error
}

// New builds a Fetcher with its own rate limiter.
func New(cfg Config) *Fetcher {
	cfg.applyDefaults()
	return &Fetcher{
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: ratelimit.New(cfg.RateLimitDelay),
		cfg:     cfg,
		sleep:   sleepContext,
	}
}

// NewWithLimiter builds a Fetcher around an externally owned limiter, so
// multiple fetchers (or tests) can share pacing state.
func NewWithLimiter(cfg Config, limiter *ratelimit.HostLimiter) *Fetcher {
	f := New(cfg)
	if limiter != nil {
		f.limiter = limiter
	}
	return f
}

// attemptOutcome classifies a single attempt.
type attemptOutcome int

const (
	attemptSuccess attemptOutcome = iota
	attemptRetryable
	attemptTerminal
)

type attemptResult struct {
	outcome     attemptOutcome
	body        string
	errMsg      string
	statusCode  int
	finalURL    string
	contentType string
}

// Fetch retrieves the page at rawURL. The outer loop drives retries with
// exponential backoff; each attempt is validated for status code, content
// type and body size before being declared a success. Network failures and
// HTTP 429/500/502/503/504 are retried; any other 4xx is terminal.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, fallback string) Result {
	start := time.Now()
	host := hostOf(rawURL)

	fail := func(attempts int, ar attemptResult) Result {
		return Result{
			Success:     false,
			HTML:        fallback,
			Error:       ar.errMsg,
			StatusCode:  ar.statusCode,
			FinalURL:    ar.finalURL,
			ContentType: ar.contentType,
			Duration:    time.Since(start),
			Attempts:    attempts,
		}
	}

	var last attemptResult
	maxAttempts := f.cfg.MaxRetries + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := f.limiter.Acquire(ctx, host); err != nil {
			last = attemptResult{errMsg: fmt.Sprintf("canceled: %v", err)}
			return fail(attempt, last)
		}

		last = f.attempt(ctx, rawURL)
		switch last.outcome {
		case attemptSuccess:
			return Result{
				Success:     true,
				HTML:        last.body,
				StatusCode:  last.statusCode,
				FinalURL:    last.finalURL,
				ContentType: last.contentType,
				Duration:    time.Since(start),
				Attempts:    attempt,
			}
		case attemptTerminal:
			return fail(attempt, last)
		}

		if attempt < maxAttempts {
			if err := f.sleep(ctx, f.backoff(attempt)); err != nil {
				last.errMsg = fmt.Sprintf("canceled during backoff: %v", err)
				return fail(attempt, last)
			}
		}
	}

	return fail(maxAttempts, last)
}

// attempt issues one GET and classifies the response.
func (f *Fetcher) attempt(ctx context.Context, rawURL string) attemptResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return attemptResult{
			outcome: attemptTerminal,
			errMsg:  fmt.Sprintf("invalid URL: %v", err),
		}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		// Timeouts, connection failures and truncated transfers are
		// transient; the context's own cancellation is not.
		if ctx.Err() != nil {
			return attemptResult{outcome: attemptTerminal, errMsg: fmt.Sprintf("canceled: %v", ctx.Err())}
		}
		return attemptResult{outcome: attemptRetryable, errMsg: fmt.Sprintf("request failed: %v", trimError(err))}
	}
	defer resp.Body.Close()

	res := attemptResult{
		statusCode:  resp.StatusCode,
		finalURL:    resp.Request.URL.String(),
		contentType: strings.ToLower(resp.Header.Get("Content-Type")),
	}

	if isRetryableStatus(resp.StatusCode) {
		res.outcome = attemptRetryable
		res.errMsg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return res
	}
	if resp.StatusCode >= 400 {
		res.outcome = attemptTerminal
		res.errMsg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return res
	}

	if !isValidContentType(res.contentType) {
		res.outcome = attemptTerminal
		res.errMsg = fmt.Sprintf("invalid content-type: %s", res.contentType)
		return res
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		res.outcome = attemptRetryable
		res.errMsg = fmt.Sprintf("read body: %v", trimError(err))
		return res
	}

	// Error pages are typically tiny.
	if len(body) < f.cfg.MinBodyBytes {
		res.outcome = attemptTerminal
		res.errMsg = "content too small (likely error page)"
		return res
	}

	res.outcome = attemptSuccess
	res.body = string(body)
	return res
}

// backoff doubles per attempt from the base, capped at the maximum.
func (f *Fetcher) backoff(attempt int) time.Duration {
	d := f.cfg.BackoffBase << (attempt - 1)
	if d > f.cfg.BackoffMax {
		d = f.cfg.BackoffMax
	}
	return d
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func isValidContentType(contentType string) bool {
	// A missing content-type header is acceptable.
	if contentType == "" {
		return true
	}
	for _, vt := range validContentTypes {
		if strings.HasPrefix(contentType, vt) {
			return true
		}
	}
	return false
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "unknown"
	}
	return parsed.Host
}

func trimError(err error) string {
	msg := err.Error()
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
