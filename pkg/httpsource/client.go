// Package httpsource provides scroll sources backed by paginated HTTP
// endpoints, with retry, error classification and an optional error-budget
// gate shared with other processes through Redis.
package httpsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/eve-esi-scroll/pkg/logging"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scroll_upstream_requests_total",
		Help: "Total upstream requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scroll_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})
)

// Gate decides whether a request may be sent and learns from response headers.
// *ratelimit.Tracker implements it.
type Gate interface {
	ShouldAllowRequest(ctx context.Context) (bool, error)
	UpdateFromHeaders(ctx context.Context, headers http.Header) error
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is prepended to every endpoint, e.g. "https://esi.evetech.net/latest".
	BaseURL string

	// User-Agent header (required).
	// Format: "AppName/Version (contact@example.com)"
	UserAgent string

	// Timeout bounds a single attempt.
	Timeout time.Duration

	Retry RetryConfig

	// Gate is consulted before each attempt when set.
	Gate Gate

	// HTTPClient overrides the default client (for testing).
	HTTPClient *http.Client

	// Logger overrides the default component logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// Client performs GET requests against a paginated upstream.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	cfg        Config
	logger     zerolog.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	logger := logging.NewLogger("httpsource")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    base,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// GetJSON fetches endpoint with query and decodes the JSON body into v. It
// returns the response headers of the successful attempt.
func (c *Client) GetJSON(ctx context.Context, endpoint string, query url.Values, v any) (http.Header, error) {
	var headers http.Header

	err := c.retryWithBackoff(ctx, endpoint, func() error {
		h, body, err := c.attempt(ctx, endpoint, query)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, v); err != nil {
			return &UpstreamError{
				Endpoint:   endpoint,
				StatusCode: http.StatusOK,
				ErrorClass: ErrorClassDecode,
				Message:    "invalid response body",
				Err:        err,
			}
		}
		headers = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	return headers, nil
}

// attempt sends one request and returns the headers and body of a 2xx response.
func (c *Client) attempt(ctx context.Context, endpoint string, query url.Values) (http.Header, []byte, error) {
	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	if c.cfg.Gate != nil {
		allowed, err := c.cfg.Gate.ShouldAllowRequest(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("error budget check: %w", err)
		}
		if !allowed {
			c.logger.Warn().Str("endpoint", endpoint).Msg("Request blocked by error budget")
			requestsTotal.WithLabelValues(endpoint, "blocked").Inc()
			return nil, nil, ErrBudgetExhausted
		}
	}

	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimLeft(endpoint, "/")
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("query", u.RawQuery).
		Msg("Executing upstream request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, &UpstreamError{
			Endpoint:   endpoint,
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	if c.cfg.Gate != nil {
		if err := c.cfg.Gate.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update error budget from headers")
		}
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if class := classifyStatus(resp.StatusCode); class != "" {
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Upstream request error")
		return nil, nil, &UpstreamError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    upstreamMessage(resp),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &UpstreamError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read body",
			Err:        err,
		}
	}
	return resp.Header, body, nil
}

// upstreamMessage prefers the {"error": "..."} body ESI returns, falling back to the status text.
func upstreamMessage(resp *http.Response) string {
	var body struct {
		Error string `json:"error"`
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}
	return resp.Status
}
