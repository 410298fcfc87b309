// Package fetch downloads the catalog document from its HTTP origin.
//
// Every fetch goes through the cooldown tracker, carries the configured
// User-Agent, and retries server and transport failures with exponential
// backoff. Conditional requests (If-None-Match / If-Modified-Since) let the
// origin answer 304 when the catalog has not changed.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/game-catalog/pkg/catalog"
	"github.com/Sternrassler/game-catalog/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for fetch operations.
var (
	fetchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_fetch_requests_total",
		Help: "Total catalog origin requests by status",
	}, []string{"status"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_fetch_duration_seconds",
		Help:    "Catalog fetch duration in seconds, retries included",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	fetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_fetch_errors_total",
		Help: "Total catalog fetch errors by class",
	}, []string{"class"})

	fetchMalformedEntries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_fetch_malformed_entries_total",
		Help: "Total catalog records repaired or skipped during decoding",
	})
)

// DefaultMaxBodyBytes limits the size of a catalog document.
const DefaultMaxBodyBytes = 32 << 20

// Config holds the fetcher configuration.
type Config struct {
	// URL of the catalog document (REQUIRED).
	URL string

	// UserAgent header sent with every request (REQUIRED).
	UserAgent string

	// Timeout for a single HTTP attempt. The caller's context bounds the
	// whole fetch including retries.
	Timeout time.Duration

	// MaxBodyBytes caps the document size.
	MaxBodyBytes int64

	Retry RetryConfig

	// Cooldown gates requests after failures. Nil disables gating.
	Cooldown *ratelimit.Tracker
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(catalogURL, userAgent string) Config {
	return Config{
		URL:          catalogURL,
		UserAgent:    userAgent,
		Timeout:      15 * time.Second,
		MaxBodyBytes: DefaultMaxBodyBytes,
		Retry:        DefaultRetryConfig(),
	}
}

// Validators are the HTTP cache validators of a previously fetched document.
type Validators struct {
	ETag         string
	LastModified string
}

// IsZero reports whether no validator is known.
func (v Validators) IsZero() bool {
	return v.ETag == "" && v.LastModified == ""
}

// Result is the outcome of a successful fetch.
type Result struct {
	// Catalog is nil when NotModified is set.
	Catalog     catalog.Catalog
	Issues      []catalog.MalformedEntry
	Validators  Validators
	NotModified bool
	StatusCode  int
}

// Client fetches the catalog document.
type Client struct {
	httpClient *http.Client
	cooldown   *ratelimit.Tracker
	config     Config
	logger     zerolog.Logger
}

// New creates a new fetch client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("catalog url is required")
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse catalog url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("catalog url must be http or https (got %q)", u.Scheme)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	cfg.Retry = cfg.Retry.withDefaults()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cooldown: cfg.Cooldown,
		config:   cfg,
		logger:   log.With().Str("component", "catalog-fetch").Logger(),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetLogger replaces the component logger.
func (c *Client) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.config
}

// URL returns the origin URL.
func (c *Client) URL() string {
	return c.config.URL
}

// Fetch downloads and decodes the catalog. When prev carries validators the
// request is conditional and a 304 reply yields a Result with NotModified
// set and no catalog. Every failure wraps a *NetworkError.
func (c *Client) Fetch(ctx context.Context, prev Validators) (*Result, error) {
	startTime := time.Now()
	defer func() {
		fetchDuration.Observe(time.Since(startTime).Seconds())
	}()

	if allowed, wait := c.cooldown.ShouldAllowRequest(); !allowed {
		c.logger.Warn().
			Dur("retry_in", wait).
			Msg("Fetch held back by origin cooldown")
		fetchRequestsTotal.WithLabelValues("cooldown").Inc()
		fetchErrorsTotal.WithLabelValues(string(ErrorClassCooldown)).Inc()
		return nil, &NetworkError{
			Class:   ErrorClassCooldown,
			Message: "request not sent",
			RetryIn: wait,
			Err:     ErrCooldown,
		}
	}

	var resp *http.Response
	err := retryWithBackoff(ctx, c.config.Retry, c.logger, c.cooldown.ShouldAllowRequest, func() error {
		var attemptErr error
		resp, attemptErr = c.do(ctx, prev)
		return attemptErr
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.cooldown.RecordFailure()
		}
		return nil, asNetworkError(err)
	}
	defer resp.Body.Close()

	result := &Result{
		StatusCode: resp.StatusCode,
		Validators: Validators{
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		},
	}

	if resp.StatusCode == http.StatusNotModified {
		c.cooldown.RecordSuccess()
		if result.Validators.IsZero() {
			result.Validators = prev
		}
		result.NotModified = true
		c.logger.Debug().
			Str("etag", result.Validators.ETag).
			Msg("304 Not Modified - catalog unchanged")
		return result, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes+1))
	if err != nil {
		c.cooldown.RecordFailure()
		fetchErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &NetworkError{
			Class:      ErrorClassNetwork,
			StatusCode: resp.StatusCode,
			Message:    "read body",
			Err:        err,
		}
	}
	if int64(len(body)) > c.config.MaxBodyBytes {
		c.cooldown.RecordFailure()
		fetchErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, &NetworkError{
			Class:      ErrorClassDecode,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("document exceeds %d bytes", c.config.MaxBodyBytes),
		}
	}

	entries, issues, err := catalog.Decode(body)
	if err != nil {
		c.cooldown.RecordFailure()
		fetchErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, &NetworkError{
			Class:      ErrorClassDecode,
			StatusCode: resp.StatusCode,
			Message:    "decode catalog",
			Err:        err,
		}
	}
	c.cooldown.RecordSuccess()

	if len(issues) > 0 {
		fetchMalformedEntries.Add(float64(len(issues)))
		c.logger.Debug().
			Int("issues", len(issues)).
			Str("first_issue", issues[0].Error()).
			Msg("Catalog records normalized")
	}

	c.logger.Info().
		Int("entries", len(entries)).
		Int("bytes", len(body)).
		Dur("duration", time.Since(startTime)).
		Msg("Catalog fetched")

	result.Catalog = entries
	result.Issues = issues
	return result, nil
}

// do performs one attempt. A non-nil response is returned only for 2xx and
// 304; any other status is converted into a *NetworkError with the body closed.
func (c *Client) do(ctx context.Context, prev Validators) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.URL, nil)
	if err != nil {
		return nil, &NetworkError{Class: ErrorClassClient, Message: "create request", Err: err}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	AddConditionalHeaders(req, prev)

	c.logger.Debug().
		Str("url", c.config.URL).
		Bool("conditional", !prev.IsZero()).
		Msg("Executing catalog request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("url", c.config.URL).Msg("HTTP request failed")
		fetchErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		fetchRequestsTotal.WithLabelValues("network_error").Inc()
		return nil, &NetworkError{Class: ErrorClassNetwork, Message: "request failed", Err: err}
	}

	fetchRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if err := c.cooldown.UpdateFromHeaders(resp.StatusCode, resp.Header); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update cooldown from headers")
	}

	class := classifyStatus(resp.StatusCode)
	if class == "" && resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotModified {
		// redirects are followed by net/http; anything left is unusable
		class = ErrorClassClient
	}
	if class != "" {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		fetchErrorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Catalog request error")
		return nil, &NetworkError{
			Class:      class,
			StatusCode: resp.StatusCode,
			Message:    resp.Status,
		}
	}

	return resp, nil
}

// asNetworkError makes sure every failure leaving Fetch carries a
// *NetworkError while keeping the sentinel chain intact.
func asNetworkError(err error) error {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return err
	}
	return &NetworkError{Class: ErrorClassNetwork, Message: "fetch aborted", Err: err}
}
