// Package testutil provides a mock paginated upstream for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines a canned response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockUpstream is a configurable paginated HTTP server for testing.
type MockUpstream struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	failures map[string][]MockResponse

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
	LastQuery         url.Values
}

// NewMockUpstream starts a new mock server.
func NewMockUpstream() *MockUpstream {
	mock := &MockUpstream{
		handlers: make(map[string]http.HandlerFunc),
		failures: make(map[string][]MockResponse),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.LastQuery = r.URL.Query()

		var failure *MockResponse
		if queued := mock.failures[r.URL.Path]; len(queued) > 0 {
			failure = &queued[0]
			mock.failures[r.URL.Path] = queued[1:]
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		switch {
		case failure != nil:
			write(w, *failure)
		case exists:
			handler(w, r)
		default:
			write(w, MockResponse{
				StatusCode: http.StatusNotFound,
				Body:       `{"error": "Not found"}`,
				Headers:    budgetHeaders(100, 60),
			})
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// Reset clears all tracking counters and queued failures.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.LastQuery = nil
	m.failures = make(map[string][]MockResponse)
}

// SetHandler sets a custom handler for a specific path.
func (m *MockUpstream) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockUpstream) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		write(w, resp)
	})
}

// FailNext makes the next n requests to path answer with resp before the
// configured handler is used again.
func (m *MockUpstream) FailNext(path string, n int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.failures[path] = append(m.failures[path], resp)
	}
}

// ServePages serves items split into pages of pageSize under path, ESI style:
// ?page=N (1-based), a JSON array body and the X-Pages header.
func (m *MockUpstream) ServePages(path string, items []string, pageSize int) {
	pages := split(items, pageSize)
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		page, err := strconv.Atoi(r.URL.Query().Get("page"))
		if err != nil || page < 1 {
			page = 1
		}

		batch := []string{}
		if page <= len(pages) {
			batch = pages[page-1]
		}

		headers := budgetHeaders(100, 60)
		headers["X-Pages"] = strconv.Itoa(len(pages))
		write(w, MockResponse{StatusCode: http.StatusOK, Body: mustJSON(batch), Headers: headers})
	})
}

// ServeCursor serves items under path as cursor batches of the requested
// ?limit. Cursors are opaque offsets.
func (m *MockUpstream) ServeCursor(path string, items []string) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, err := strconv.Atoi(q.Get("limit"))
		if err != nil || limit < 1 {
			limit = 20
		}

		offset := 0
		if c := q.Get("cursor"); c != "" {
			n, err := strconv.Atoi(c)
			if err != nil || n < 0 || n > len(items) {
				write(w, MockResponse{
					StatusCode: http.StatusBadRequest,
					Body:       `{"error": "Invalid cursor"}`,
					Headers:    budgetHeaders(99, 60),
				})
				return
			}
			offset = n
		}

		end := min(offset+limit, len(items))
		body := struct {
			Items      []string `json:"items"`
			NextCursor *string  `json:"next_cursor"`
			HasMore    bool     `json:"has_more"`
		}{
			Items:   append([]string{}, items[offset:end]...),
			HasMore: end < len(items),
		}
		if body.HasMore {
			next := strconv.Itoa(end)
			body.NextCursor = &next
		}

		write(w, MockResponse{StatusCode: http.StatusOK, Body: mustJSON(body), Headers: budgetHeaders(100, 60)})
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockUpstream) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetLastQuery returns the query of the most recent request.
func (m *MockUpstream) GetLastQuery() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastQuery
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockUpstream) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

// Items returns n JSON string items "item-0" .. "item-(n-1)".
func Items(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("item-%d", i)
	}
	return out
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    budgetHeaders(95, 60),
	}
}

// NewClientErrorResponse creates a 400 Bad Request response.
func NewClientErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusBadRequest,
		Body:       `{"error": "Bad request"}`,
		Headers:    budgetHeaders(90, 60),
	}
}

// NewESIRateLimitResponse creates a 520 ESI-specific rate limit response.
func NewESIRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: 520,
		Body:       `{"error": "ESI rate limit exceeded"}`,
		Headers:    budgetHeaders(10, 120),
	}
}

// NewLowBudgetResponse creates a 500 response reporting errorsRemaining.
func NewLowBudgetResponse(errorsRemaining int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    budgetHeaders(errorsRemaining, 60),
	}
}

func write(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

func budgetHeaders(remain, reset int) map[string]string {
	return map[string]string{
		"X-ESI-Error-Limit-Remain": strconv.Itoa(remain),
		"X-ESI-Error-Limit-Reset":  strconv.Itoa(reset),
	}
}

func split(items []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var pages [][]string
	for start := 0; start < len(items); start += size {
		pages = append(pages, items[start:min(start+size, len(items))])
	}
	return pages
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
