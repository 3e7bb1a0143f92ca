// Package ratelimit tracks the error budget advertised by a paginated upstream
// and gates requests before the budget runs out. ESI-style upstreams report the
// budget in the X-ESI-Error-Limit-Remain and X-ESI-Error-Limit-Reset headers;
// other header names can be configured.
package ratelimit

import (
	"time"
)

// Default header names.
const (
	HeaderRemain = "X-ESI-Error-Limit-Remain"
	HeaderReset  = "X-ESI-Error-Limit-Reset"
)

// Thresholds for gating decisions.
const (
	// ErrorThresholdCritical blocks all requests when errors remaining falls below this value.
	ErrorThresholdCritical = 5

	// ErrorThresholdWarning applies throttling when errors remaining falls below this value.
	ErrorThresholdWarning = 20

	// ErrorThresholdHealthy indicates normal operation.
	ErrorThresholdHealthy = 50
)

// BudgetState is the upstream error budget as last reported.
// It is shared across processes via Redis.
type BudgetState struct {
	// ErrorsRemaining is the number of errors allowed before the upstream blocks requests.
	ErrorsRemaining int `json:"errors_remaining"`

	// ResetAt is when the error window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last written.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when ErrorsRemaining >= ErrorThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state is older than maxAge.
func (s *BudgetState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests must be blocked.
func (s *BudgetState) NeedsCriticalBlock() bool {
	return s.ErrorsRemaining < ErrorThresholdCritical
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *BudgetState) NeedsThrottling() bool {
	return s.ErrorsRemaining < ErrorThresholdWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the window resets, or 0 if it already has.
func (s *BudgetState) TimeUntilReset() time.Duration {
	d := time.Until(s.ResetAt)
	if d < 0 {
		return 0
	}
	return d
}

// UpdateHealth recomputes IsHealthy from ErrorsRemaining.
func (s *BudgetState) UpdateHealth() {
	s.IsHealthy = s.ErrorsRemaining >= ErrorThresholdHealthy
}

// defaultState is assumed until the upstream has reported anything.
func defaultState(now time.Time) *BudgetState {
	return &BudgetState{
		ErrorsRemaining: 100,
		ResetAt:         now.Add(60 * time.Second),
		LastUpdate:      now,
		IsHealthy:       true,
	}
}
