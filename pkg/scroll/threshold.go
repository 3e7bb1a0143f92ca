package scroll

// DefaultThresholdFraction is used when no item-count threshold is configured.
const DefaultThresholdFraction = 0.1

// ThresholdFraction converts an item-count threshold into the distance-from-end
// fraction consumed by scroll position observers: clamp(threshold/100, 0.01, 1.0).
// A threshold <= 0 is treated as absent.
//
// The value is a fraction of the loaded list length, not an item count, so a
// threshold of 5 means "within 5% of the end".
func ThresholdFraction(threshold int) float64 {
	if threshold <= 0 {
		return DefaultThresholdFraction
	}
	f := float64(threshold) / 100
	switch {
	case f < 0.01:
		return 0.01
	case f > 1.0:
		return 1.0
	default:
		return f
	}
}

// NearEnd reports whether visibleIndex lies within fraction of the end of a
// list of loaded items.
func NearEnd(visibleIndex, loaded int, fraction float64) bool {
	if loaded == 0 || visibleIndex < 0 {
		return false
	}
	remaining := loaded - 1 - visibleIndex
	if remaining < 0 {
		remaining = 0
	}
	return float64(remaining) <= fraction*float64(loaded)
}
