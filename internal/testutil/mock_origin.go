// Package testutil provides testing utilities for the game catalog.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// CatalogPath is where the mock origin serves the catalog document.
const CatalogPath = "/g.json"

// MockResponse defines one scripted response of the mock origin.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockOrigin is a configurable catalog origin for testing. It serves the
// current document with an ETag, answers matching If-None-Match requests
// with 304, and can replay scripted responses before falling back to the
// document.
type MockOrigin struct {
	server *httptest.Server

	mu           sync.Mutex
	document     string
	version      int
	lastModified time.Time
	queue        []MockResponse
	hold         chan struct{}

	requestCount      int
	conditionalCount  int
	lastRequestHeader http.Header
}

// NewMockOrigin creates a mock origin serving document.
func NewMockOrigin(document string) *MockOrigin {
	mock := &MockOrigin{}
	mock.SetCatalog(document)

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the catalog document URL.
func (m *MockOrigin) URL() string {
	return m.server.URL + CatalogPath
}

// Close shuts down the mock server. Held requests are released first.
func (m *MockOrigin) Close() {
	m.mu.Lock()
	if m.hold != nil {
		close(m.hold)
		m.hold = nil
	}
	m.mu.Unlock()
	m.server.Close()
}

// SetCatalog replaces the served document and changes its ETag.
func (m *MockOrigin) SetCatalog(document string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.document = document
	m.version++
	m.lastModified = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(m.version) * time.Hour)
}

// ETag returns the ETag of the current document.
func (m *MockOrigin) ETag() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.etagLocked()
}

func (m *MockOrigin) etagLocked() string {
	return fmt.Sprintf(`"catalog-v%d"`, m.version)
}

// Enqueue schedules responses served one per request before the document.
func (m *MockOrigin) Enqueue(responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, responses...)
}

// Hold blocks every request until the returned release func is called.
func (m *MockOrigin) Hold() (release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan struct{})
	m.hold = ch

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.hold == ch {
				m.hold = nil
				close(ch)
			}
			m.mu.Unlock()
		})
	}
}

// Reset clears all tracking counters.
func (m *MockOrigin) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.conditionalCount = 0
	m.lastRequestHeader = nil
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockOrigin) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockOrigin) GetConditionalCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conditionalCount
}

// LastRequestHeader returns a copy of the headers of the last request.
func (m *MockOrigin) LastRequestHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequestHeader.Clone()
}

func (m *MockOrigin) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requestCount++
	m.lastRequestHeader = r.Header.Clone()
	if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
		m.conditionalCount++
	}
	hold := m.hold
	var scripted *MockResponse
	if len(m.queue) > 0 {
		resp := m.queue[0]
		m.queue = m.queue[1:]
		scripted = &resp
	}
	document, etag, lastModified := m.document, m.etagLocked(), m.lastModified
	m.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-r.Context().Done():
			return
		}
	}

	if scripted != nil {
		writeResponse(w, *scripted)
		return
	}

	if r.URL.Path != CatalogPath {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("ETag", etag)
	w.Header().Set("Last-Modified", lastModified.Format(http.TimeFormat))

	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(document))
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter string) MockResponse {
	resp := MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
	if retryAfter != "" {
		resp.Headers["Retry-After"] = retryAfter
	}
	return resp
}

// NewUnavailableResponse creates a 503 Service Unavailable response.
func NewUnavailableResponse(retryAfter string) MockResponse {
	resp := MockResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       `{"error": "Service unavailable"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
	if retryAfter != "" {
		resp.Headers["Retry-After"] = retryAfter
	}
	return resp
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{StatusCode: http.StatusNotFound, Body: "not found"}
}

// NewDocumentResponse creates a 200 response with body and no validators.
func NewDocumentResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

var sampleCategories = []string{"action", "puzzle", "", "sports"}

// SampleCatalog returns a catalog document with n games named "Game 000"
// onwards. Every fourth game, starting at index 2, has an empty category.
func SampleCatalog(n int) string {
	var b strings.Builder
	b.WriteString("[")
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		category := sampleCategories[i%len(sampleCategories)]
		fmt.Fprintf(&b, `{"name":"Game %03d","slug":"game-%03d","img":"/img/game-%03d.webp","category":%q,"tags":["tag%d","shared"],"description":"Sample game number %d"}`,
			i, i, i, category, i%5, i)
	}
	b.WriteString("]")
	return b.String()
}
