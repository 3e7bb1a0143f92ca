package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	errorsRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scroll_upstream_errors_remaining",
		Help: "Number of errors remaining in the current upstream error window",
	})

	blocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scroll_upstream_blocks_total",
		Help: "Total number of upstream requests blocked at the critical error threshold",
	})

	throttlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scroll_upstream_throttles_total",
		Help: "Total number of upstream requests throttled at the warning error threshold",
	})
)

// Config holds tracker configuration.
type Config struct {
	// Namespace prefixes the Redis keys so several upstreams can share one Redis.
	Namespace string

	// RemainHeader and ResetHeader name the budget headers.
	RemainHeader string
	ResetHeader  string

	// ThrottleDelay is the pause applied in the warning state.
	ThrottleDelay time.Duration
}

// DefaultConfig returns the ESI header configuration.
func DefaultConfig(namespace string) Config {
	return Config{
		Namespace:     namespace,
		RemainHeader:  HeaderRemain,
		ResetHeader:   HeaderReset,
		ThrottleDelay: 1 * time.Second,
	}
}

// Tracker monitors the upstream error budget and gates requests.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
	cfg    Config
}

// NewTracker creates a new tracker. Zero config fields take the ESI defaults.
func NewTracker(redisClient *redis.Client, cfg Config, logger zerolog.Logger) *Tracker {
	if cfg.RemainHeader == "" {
		cfg.RemainHeader = HeaderRemain
	}
	if cfg.ResetHeader == "" {
		cfg.ResetHeader = HeaderReset
	}
	if cfg.ThrottleDelay <= 0 {
		cfg.ThrottleDelay = 1 * time.Second
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}
	return &Tracker{
		redis:  redisClient,
		logger: logger,
		cfg:    cfg,
	}
}

func (t *Tracker) key(field string) string {
	return fmt.Sprintf("scroll:ratelimit:%s:%s", t.cfg.Namespace, field)
}

// ParseHeaders extracts the budget from response headers. ok is false when
// the remain header is absent.
func ParseHeaders(headers http.Header, remainHeader, resetHeader string, now time.Time) (state *BudgetState, ok bool, err error) {
	remainStr := headers.Get(remainHeader)
	if remainStr == "" {
		return nil, false, nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s header: %w", remainHeader, err)
	}

	resetStr := headers.Get(resetHeader)
	if resetStr == "" {
		return nil, false, fmt.Errorf("%s header missing", resetHeader)
	}
	resetSeconds, err := strconv.Atoi(resetStr)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s header: %w", resetHeader, err)
	}

	state = &BudgetState{
		ErrorsRemaining: remain,
		ResetAt:         now.Add(time.Duration(resetSeconds) * time.Second),
		LastUpdate:      now,
	}
	state.UpdateHealth()
	return state, true, nil
}

// GetState retrieves the current budget from Redis, or a healthy default if none is stored.
func (t *Tracker) GetState(ctx context.Context) (*BudgetState, error) {
	remaining, err := t.redis.Get(ctx, t.key("errors_remaining")).Int()
	if errors.Is(err, redis.Nil) {
		t.logger.Debug().Msg("No error budget in Redis, assuming healthy")
		return defaultState(time.Now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get errors remaining: %w", err)
	}

	resetUnix, err := t.redis.Get(ctx, t.key("reset_timestamp")).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get reset timestamp: %w", err)
	}

	var lastUpdate time.Time
	raw, err := t.redis.Get(ctx, t.key("last_update")).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get last update: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	state := &BudgetState{
		ErrorsRemaining: remaining,
		ResetAt:         time.Unix(resetUnix, 0),
		LastUpdate:      lastUpdate,
	}
	state.UpdateHealth()
	return state, nil
}

// UpdateFromHeaders parses the budget headers of a response and stores the result.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	state, ok, err := ParseHeaders(headers, t.cfg.RemainHeader, t.cfg.ResetHeader, time.Now())
	if err != nil || !ok {
		return err
	}

	lastUpdate, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, t.key("errors_remaining"), state.ErrorsRemaining, 0)
	pipe.Set(ctx, t.key("reset_timestamp"), state.ResetAt.Unix(), 0)
	pipe.Set(ctx, t.key("last_update"), lastUpdate, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store error budget in redis: %w", err)
	}

	errorsRemaining.Set(float64(state.ErrorsRemaining))

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().
			Int("errors_remaining", state.ErrorsRemaining).
			Time("reset_at", state.ResetAt).
			Msg("Upstream error budget CRITICAL - requests will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("errors_remaining", state.ErrorsRemaining).
			Time("reset_at", state.ResetAt).
			Msg("Upstream error budget WARNING - requests will be throttled")
	default:
		t.logger.Debug().
			Int("errors_remaining", state.ErrorsRemaining).
			Bool("is_healthy", state.IsHealthy).
			Msg("Upstream error budget updated")
	}

	return nil
}

// ShouldAllowRequest returns false when the budget is critical. In the
// warning state it waits ThrottleDelay (or until ctx is done) and allows.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get error budget: %w", err)
	}

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int("errors_remaining", state.ErrorsRemaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Upstream error budget critical - blocking request")
		blocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("errors_remaining", state.ErrorsRemaining).
			Msg("Upstream error budget warning - throttling request")
		throttlesTotal.Inc()

		timer := time.NewTimer(t.cfg.ThrottleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	return true, nil
}
