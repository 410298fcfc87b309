package fetch

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/game-catalog/internal/testutil"
	"github.com/Sternrassler/game-catalog/pkg/ratelimit"
)

const testUserAgent = "GameCatalogTest/1.0 (test@example.com)"

func newTestClient(t *testing.T, url string, tweak func(*Config)) *Client {
	t.Helper()
	cfg := DefaultConfig(url, testUserAgent)
	cfg.Retry = fastRetry(3)
	if tweak != nil {
		tweak(&cfg)
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	c.SetLogger(testLogger)
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		wantErr  bool
		errorMsg string
	}{
		{
			name:    "valid config",
			config:  DefaultConfig("https://flamepass.games/g.json", testUserAgent),
			wantErr: false,
		},
		{
			name:     "missing url",
			config:   DefaultConfig("", testUserAgent),
			wantErr:  true,
			errorMsg: "catalog url is required",
		},
		{
			name:     "unsupported scheme",
			config:   DefaultConfig("ftp://flamepass.games/g.json", testUserAgent),
			wantErr:  true,
			errorMsg: `catalog url must be http or https (got "ftp")`,
		},
		{
			name:     "missing user agent",
			config:   DefaultConfig("https://flamepass.games/g.json", ""),
			wantErr:  true,
			errorMsg: "user-agent is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error, got nil")
					return
				}
				if err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			if client == nil {
				t.Error("Client is nil")
			}
		})
	}
}

func TestNew_FillsDefaults(t *testing.T) {
	c, err := New(Config{URL: "http://localhost/g.json", UserAgent: testUserAgent})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.config.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v, want 15s", c.config.Timeout)
	}
	if c.config.MaxBodyBytes != DefaultMaxBodyBytes {
		t.Errorf("MaxBodyBytes = %d", c.config.MaxBodyBytes)
	}
	if c.config.Retry != DefaultRetryConfig() {
		t.Errorf("Retry = %+v", c.config.Retry)
	}
}

func TestFetch_Success(t *testing.T) {
	origin := testutil.NewMockOrigin(testutil.SampleCatalog(5))
	defer origin.Close()

	c := newTestClient(t, origin.URL(), nil)
	result, err := c.Fetch(context.Background(), Validators{})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if len(result.Catalog) != 5 {
		t.Errorf("len(Catalog) = %d, want 5", len(result.Catalog))
	}
	if result.Catalog[0].ID != "game-000" || result.Catalog[4].ID != "game-004" {
		t.Errorf("order not preserved: %v", result.Catalog.IDs())
	}
	if result.Validators.ETag != origin.ETag() {
		t.Errorf("ETag = %q, want %q", result.Validators.ETag, origin.ETag())
	}
	if result.Validators.LastModified == "" {
		t.Error("LastModified not captured")
	}
	// game-002 has an empty category
	if len(result.Issues) != 1 || result.Issues[0].Field != "category" {
		t.Errorf("Issues = %v", result.Issues)
	}

	header := origin.LastRequestHeader()
	if got := header.Get("User-Agent"); got != testUserAgent {
		t.Errorf("User-Agent = %q, want %q", got, testUserAgent)
	}
	if got := header.Get("Accept"); got != "application/json" {
		t.Errorf("Accept = %q", got)
	}
	if origin.GetConditionalCount() != 0 {
		t.Error("first fetch should not be conditional")
	}
}

func TestFetch_NotModified(t *testing.T) {
	origin := testutil.NewMockOrigin(testutil.SampleCatalog(3))
	defer origin.Close()

	c := newTestClient(t, origin.URL(), nil)
	first, err := c.Fetch(context.Background(), Validators{})
	if err != nil {
		t.Fatalf("first Fetch() error = %v", err)
	}

	second, err := c.Fetch(context.Background(), first.Validators)
	if err != nil {
		t.Fatalf("second Fetch() error = %v", err)
	}
	if !second.NotModified || second.Catalog != nil {
		t.Errorf("second = %+v, want NotModified without catalog", second)
	}
	if second.Validators.ETag != first.Validators.ETag {
		t.Errorf("ETag = %q, want %q", second.Validators.ETag, first.Validators.ETag)
	}
	if origin.GetConditionalCount() != 1 {
		t.Errorf("conditional requests = %d, want 1", origin.GetConditionalCount())
	}

	origin.SetCatalog(testutil.SampleCatalog(4))
	third, err := c.Fetch(context.Background(), first.Validators)
	if err != nil {
		t.Fatalf("third Fetch() error = %v", err)
	}
	if third.NotModified || len(third.Catalog) != 4 {
		t.Errorf("changed document should be returned in full, got %d entries", len(third.Catalog))
	}
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	origin := testutil.NewMockOrigin(testutil.SampleCatalog(2))
	defer origin.Close()
	origin.Enqueue(testutil.NewServerErrorResponse(), testutil.NewServerErrorResponse())

	c := newTestClient(t, origin.URL(), nil)
	result, err := c.Fetch(context.Background(), Validators{})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(result.Catalog) != 2 {
		t.Errorf("len(Catalog) = %d, want 2", len(result.Catalog))
	}
	if origin.GetRequestCount() != 3 {
		t.Errorf("requests = %d, want 3", origin.GetRequestCount())
	}
}

func TestFetch_Errors(t *testing.T) {
	tests := []struct {
		name         string
		responses    []testutil.MockResponse
		wantClass    ErrorClass
		wantRequests int
		wantSentinel error
	}{
		{
			name:         "server errors exhaust retries",
			responses:    []testutil.MockResponse{testutil.NewServerErrorResponse(), testutil.NewServerErrorResponse(), testutil.NewServerErrorResponse()},
			wantClass:    ErrorClassServer,
			wantRequests: 3,
			wantSentinel: ErrRetryExhausted,
		},
		{
			name:         "not found is not retried",
			responses:    []testutil.MockResponse{testutil.NewNotFoundResponse()},
			wantClass:    ErrorClassClient,
			wantRequests: 1,
		},
		{
			name:         "rate limit is not retried",
			responses:    []testutil.MockResponse{testutil.NewRateLimitResponse("")},
			wantClass:    ErrorClassRateLimit,
			wantRequests: 1,
		},
		{
			name:         "document is not an array",
			responses:    []testutil.MockResponse{testutil.NewDocumentResponse(`{"games":[]}`)},
			wantClass:    ErrorClassDecode,
			wantRequests: 1,
		},
		{
			name:         "document is not json",
			responses:    []testutil.MockResponse{testutil.NewDocumentResponse(`<html>maintenance</html>`)},
			wantClass:    ErrorClassDecode,
			wantRequests: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origin := testutil.NewMockOrigin(testutil.SampleCatalog(1))
			defer origin.Close()
			origin.Enqueue(tt.responses...)

			c := newTestClient(t, origin.URL(), nil)
			result, err := c.Fetch(context.Background(), Validators{})
			if err == nil {
				t.Fatalf("Fetch() = %+v, want error", result)
			}

			var ne *NetworkError
			if !errors.As(err, &ne) {
				t.Fatalf("error %v is not a *NetworkError", err)
			}
			if ne.Class != tt.wantClass {
				t.Errorf("Class = %q, want %q", ne.Class, tt.wantClass)
			}
			if tt.wantSentinel != nil && !errors.Is(err, tt.wantSentinel) {
				t.Errorf("error = %v, want %v", err, tt.wantSentinel)
			}
			if got := origin.GetRequestCount(); got != tt.wantRequests {
				t.Errorf("requests = %d, want %d", got, tt.wantRequests)
			}
		})
	}
}

func TestFetch_BodyTooLarge(t *testing.T) {
	origin := testutil.NewMockOrigin(testutil.SampleCatalog(10))
	defer origin.Close()

	c := newTestClient(t, origin.URL(), func(cfg *Config) { cfg.MaxBodyBytes = 64 })
	_, err := c.Fetch(context.Background(), Validators{})
	if ClassOf(err) != ErrorClassDecode {
		t.Errorf("error = %v, want decode class", err)
	}
}

func TestFetch_RetryAfterStartsCooldown(t *testing.T) {
	origin := testutil.NewMockOrigin(testutil.SampleCatalog(1))
	defer origin.Close()
	origin.Enqueue(testutil.NewRateLimitResponse("120"))

	tracker := ratelimit.NewTracker(ratelimit.DefaultConfig(), testLogger)
	c := newTestClient(t, origin.URL(), func(cfg *Config) { cfg.Cooldown = tracker })

	if _, err := c.Fetch(context.Background(), Validators{}); ClassOf(err) != ErrorClassRateLimit {
		t.Fatalf("first Fetch() error = %v, want rate_limit", err)
	}

	_, err := c.Fetch(context.Background(), Validators{})
	if !errors.Is(err, ErrCooldown) {
		t.Fatalf("second Fetch() error = %v, want ErrCooldown", err)
	}
	var ne *NetworkError
	if errors.As(err, &ne) && (ne.RetryIn <= 0 || ne.RetryIn > 120*time.Second) {
		t.Errorf("RetryIn = %v", ne.RetryIn)
	}
	if origin.GetRequestCount() != 1 {
		t.Errorf("requests = %d, want 1 (second fetch held back)", origin.GetRequestCount())
	}
}

func TestFetch_RetryAfterStopsRetries(t *testing.T) {
	tests := []struct {
		name         string
		retryAfter   string
		withTracker  bool
		wantRequests int
		wantCooldown bool
	}{
		{"503 with Retry-After", "30", true, 1, true},
		{"503 without Retry-After", "", true, 3, false},
		{"no tracker", "30", false, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origin := testutil.NewMockOrigin(testutil.SampleCatalog(1))
			defer origin.Close()
			for i := 0; i < 3; i++ {
				origin.Enqueue(testutil.NewUnavailableResponse(tt.retryAfter))
			}

			tracker := ratelimit.NewTracker(ratelimit.DefaultConfig(), testLogger)
			c := newTestClient(t, origin.URL(), func(cfg *Config) {
				if tt.withTracker {
					cfg.Cooldown = tracker
				}
			})

			_, err := c.Fetch(context.Background(), Validators{})
			if ClassOf(err) != ErrorClassServer {
				t.Fatalf("Fetch() error = %v, want server class", err)
			}
			if got := errors.Is(err, ErrCooldown); got != tt.wantCooldown {
				t.Errorf("errors.Is(ErrCooldown) = %v, want %v (%v)", got, tt.wantCooldown, err)
			}
			if got := origin.GetRequestCount(); got != tt.wantRequests {
				t.Errorf("requests = %d, want %d", got, tt.wantRequests)
			}
		})
	}
}

func TestFetch_FailuresFeedTracker(t *testing.T) {
	origin := testutil.NewMockOrigin(testutil.SampleCatalog(1))
	defer origin.Close()
	origin.Enqueue(testutil.NewNotFoundResponse())

	tracker := ratelimit.NewTracker(ratelimit.DefaultConfig(), testLogger)
	c := newTestClient(t, origin.URL(), func(cfg *Config) { cfg.Cooldown = tracker })

	if _, err := c.Fetch(context.Background(), Validators{}); err == nil {
		t.Fatal("expected error")
	}
	if got := tracker.GetState().ConsecutiveFailures; got != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1", got)
	}

	if _, err := c.Fetch(context.Background(), Validators{}); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if state := tracker.GetState(); !state.IsHealthy() {
		t.Errorf("state after success = %+v", state)
	}
}

func TestFetch_ContextTimeout(t *testing.T) {
	origin := testutil.NewMockOrigin(testutil.SampleCatalog(1))
	defer origin.Close()
	release := origin.Hold()
	defer release()

	c := newTestClient(t, origin.URL(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Fetch(ctx, Validators{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded in chain", err)
	}
	if ClassOf(err) == "" {
		t.Errorf("error = %v, want a *NetworkError", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Fetch took %v after deadline", elapsed)
	}
}

func TestAddConditionalHeaders(t *testing.T) {
	tests := []struct {
		name            string
		validators      Validators
		wantNoneMatch   string
		wantModifiedSin string
	}{
		{"none", Validators{}, "", ""},
		{"etag preferred", Validators{ETag: `"v1"`, LastModified: "Thu, 01 Jan 2026 00:00:00 GMT"}, `"v1"`, ""},
		{"last modified only", Validators{LastModified: "Thu, 01 Jan 2026 00:00:00 GMT"}, "", "Thu, 01 Jan 2026 00:00:00 GMT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "http://localhost/g.json", nil)
			AddConditionalHeaders(req, tt.validators)
			if got := req.Header.Get("If-None-Match"); got != tt.wantNoneMatch {
				t.Errorf("If-None-Match = %q, want %q", got, tt.wantNoneMatch)
			}
			if got := req.Header.Get("If-Modified-Since"); got != tt.wantModifiedSin {
				t.Errorf("If-Modified-Since = %q, want %q", got, tt.wantModifiedSin)
			}
		})
	}

	AddConditionalHeaders(nil, Validators{ETag: "x"})
}
