package httpsource

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/eve-esi-scroll/internal/testutil"
)

var nopLogger = zerolog.Nop()

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	}
}

func newTestClient(t *testing.T, baseURL string, gate Gate) *Client {
	t.Helper()
	cfg := DefaultConfig(baseURL, "scroll-test/1.0 (test@example.com)")
	cfg.Retry = fastRetry()
	cfg.Gate = gate
	cfg.Logger = &nopLogger
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

type fakeGate struct {
	allow   bool
	err     error
	updates atomic.Int32
}

func (g *fakeGate) ShouldAllowRequest(context.Context) (bool, error) {
	return g.allow, g.err
}

func (g *fakeGate) UpdateFromHeaders(context.Context, http.Header) error {
	g.updates.Add(1)
	return nil
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", DefaultConfig("https://esi.evetech.net/latest", "app/1.0"), false},
		{"missing base url", DefaultConfig("", "app/1.0"), true},
		{"missing user agent", DefaultConfig("https://esi.evetech.net", ""), true},
		{"bad scheme", DefaultConfig("ftp://example.com", "app/1.0"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetJSON_Success(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetResponse("/v1/status/", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"players": 30000}`,
	})

	c := newTestClient(t, mock.URL(), nil)

	var got struct {
		Players int `json:"players"`
	}
	if _, err := c.GetJSON(context.Background(), "/v1/status/", nil, &got); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if got.Players != 30000 {
		t.Errorf("players = %d, want 30000", got.Players)
	}
	if ua := mock.GetLastRequestHeader().Get("User-Agent"); ua != "scroll-test/1.0 (test@example.com)" {
		t.Errorf("User-Agent = %q", ua)
	}
}

func TestGetJSON_RetriesServerError(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetResponse("/v1/status/", testutil.MockResponse{StatusCode: http.StatusOK, Body: `{}`})
	mock.FailNext("/v1/status/", 2, testutil.NewServerErrorResponse())

	c := newTestClient(t, mock.URL(), nil)

	var v map[string]any
	if _, err := c.GetJSON(context.Background(), "/v1/status/", nil, &v); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if got := mock.GetRequestCount(); got != 3 {
		t.Errorf("request count = %d, want 3", got)
	}
}

func TestGetJSON_RetryExhausted(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetResponse("/v1/status/", testutil.NewESIRateLimitResponse())

	c := newTestClient(t, mock.URL(), nil)

	var v map[string]any
	_, err := c.GetJSON(context.Background(), "/v1/status/", nil, &v)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("GetJSON() error = %v, want ErrRetryExhausted", err)
	}

	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.ErrorClass != ErrorClassRateLimit {
		t.Errorf("error chain should carry a rate_limit UpstreamError, got %v", err)
	}
	if got := mock.GetRequestCount(); got != 3 {
		t.Errorf("request count = %d, want 3", got)
	}
}

func TestGetJSON_ClientErrorNotRetried(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetResponse("/v1/status/", testutil.NewClientErrorResponse())

	c := newTestClient(t, mock.URL(), nil)

	var v map[string]any
	_, err := c.GetJSON(context.Background(), "/v1/status/", nil, &v)

	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("GetJSON() error = %v, want UpstreamError", err)
	}
	if ue.ErrorClass != ErrorClassClient || ue.StatusCode != http.StatusBadRequest {
		t.Errorf("got class %q status %d", ue.ErrorClass, ue.StatusCode)
	}
	if ue.Message != "Bad request" {
		t.Errorf("Message = %q, want upstream error text", ue.Message)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("client errors must not report retry exhaustion")
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("request count = %d, want 1", got)
	}
}

func TestGetJSON_DecodeError(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetResponse("/v1/status/", testutil.MockResponse{StatusCode: http.StatusOK, Body: `not json`})

	c := newTestClient(t, mock.URL(), nil)

	var v map[string]any
	_, err := c.GetJSON(context.Background(), "/v1/status/", nil, &v)

	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.ErrorClass != ErrorClassDecode {
		t.Fatalf("GetJSON() error = %v, want decode UpstreamError", err)
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("request count = %d, want 1", got)
	}
}

func TestGetJSON_ContextCancelled(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetResponse("/v1/status/", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{}`,
		Delay:      200 * time.Millisecond,
	})

	c := newTestClient(t, mock.URL(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var v map[string]any
	_, err := c.GetJSON(ctx, "/v1/status/", nil, &v)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("GetJSON() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestGetJSON_Gate(t *testing.T) {
	t.Run("blocked", func(t *testing.T) {
		mock := testutil.NewMockUpstream()
		defer mock.Close()

		gate := &fakeGate{allow: false}
		c := newTestClient(t, mock.URL(), gate)

		var v map[string]any
		_, err := c.GetJSON(context.Background(), "/v1/status/", nil, &v)
		if !errors.Is(err, ErrBudgetExhausted) {
			t.Errorf("GetJSON() error = %v, want ErrBudgetExhausted", err)
		}
		if got := mock.GetRequestCount(); got != 0 {
			t.Errorf("request count = %d, want 0", got)
		}
	})

	t.Run("allowed and updated", func(t *testing.T) {
		mock := testutil.NewMockUpstream()
		defer mock.Close()
		mock.SetResponse("/v1/status/", testutil.MockResponse{StatusCode: http.StatusOK, Body: `{}`})

		gate := &fakeGate{allow: true}
		c := newTestClient(t, mock.URL(), gate)

		var v map[string]any
		if _, err := c.GetJSON(context.Background(), "/v1/status/", nil, &v); err != nil {
			t.Fatalf("GetJSON() error = %v", err)
		}
		if got := gate.updates.Load(); got != 1 {
			t.Errorf("gate updates = %d, want 1", got)
		}
	})

	t.Run("gate error", func(t *testing.T) {
		mock := testutil.NewMockUpstream()
		defer mock.Close()

		gate := &fakeGate{err: errors.New("redis down")}
		c := newTestClient(t, mock.URL(), gate)

		var v map[string]any
		if _, err := c.GetJSON(context.Background(), "/v1/status/", nil, &v); err == nil {
			t.Error("GetJSON() should fail when the gate fails")
		}
		if got := mock.GetRequestCount(); got != 0 {
			t.Errorf("request count = %d, want 0", got)
		}
	})
}
