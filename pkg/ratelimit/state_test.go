package ratelimit

import (
	"testing"
	"time"
)

func TestBudgetState_IsStale(t *testing.T) {
	tests := []struct {
		name       string
		lastUpdate time.Time
		maxAge     time.Duration
		want       bool
	}{
		{"fresh", time.Now().Add(-10 * time.Second), time.Minute, false},
		{"stale", time.Now().Add(-2 * time.Minute), time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &BudgetState{LastUpdate: tt.lastUpdate}
			if got := s.IsStale(tt.maxAge); got != tt.want {
				t.Errorf("IsStale() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBudgetState_Thresholds(t *testing.T) {
	tests := []struct {
		remaining    int
		wantBlock    bool
		wantThrottle bool
		wantHealthy  bool
	}{
		{0, true, false, false},
		{4, true, false, false},
		{5, false, true, false},
		{19, false, true, false},
		{20, false, false, false},
		{49, false, false, false},
		{50, false, false, true},
		{100, false, false, true},
	}

	for _, tt := range tests {
		s := &BudgetState{ErrorsRemaining: tt.remaining}
		s.UpdateHealth()
		if got := s.NeedsCriticalBlock(); got != tt.wantBlock {
			t.Errorf("remaining=%d: NeedsCriticalBlock() = %v, want %v", tt.remaining, got, tt.wantBlock)
		}
		if got := s.NeedsThrottling(); got != tt.wantThrottle {
			t.Errorf("remaining=%d: NeedsThrottling() = %v, want %v", tt.remaining, got, tt.wantThrottle)
		}
		if s.IsHealthy != tt.wantHealthy {
			t.Errorf("remaining=%d: IsHealthy = %v, want %v", tt.remaining, s.IsHealthy, tt.wantHealthy)
		}
	}
}

func TestBudgetState_TimeUntilReset(t *testing.T) {
	past := &BudgetState{ResetAt: time.Now().Add(-time.Second)}
	if got := past.TimeUntilReset(); got != 0 {
		t.Errorf("TimeUntilReset() past = %v, want 0", got)
	}

	future := &BudgetState{ResetAt: time.Now().Add(30 * time.Second)}
	if got := future.TimeUntilReset(); got <= 25*time.Second || got > 30*time.Second {
		t.Errorf("TimeUntilReset() future = %v, want ~30s", got)
	}
}

func TestThresholdConstants(t *testing.T) {
	if !(ErrorThresholdCritical < ErrorThresholdWarning && ErrorThresholdWarning < ErrorThresholdHealthy) {
		t.Errorf("thresholds out of order: critical=%d warning=%d healthy=%d",
			ErrorThresholdCritical, ErrorThresholdWarning, ErrorThresholdHealthy)
	}
}
