package scroll

import (
	"fmt"

	"github.com/rs/zerolog"
)

const (
	// DefaultPageSize is the batch size requested when Config.PageSize is zero.
	DefaultPageSize = 20

	// DefaultThreshold is the item-count threshold used when Config.Threshold is zero.
	DefaultThreshold = 5
)

// Config holds the immutable configuration of one Machine.
type Config[T any] struct {
	// Source selects page-based or cursor-based fetching (required).
	Source Source[T]

	// PageSize is the number of items requested per fetch.
	PageSize int

	// Threshold is the item-count distance from the end that should trigger LoadMore.
	Threshold int

	// AutoLoad pre-sets IsLoading and makes Mount issue LoadInitial.
	AutoLoad bool

	// TotalItems is an optional externally known bound refining HasMore in page mode.
	TotalItems *int

	// ItemKey derives a stable identity for an item (default "item-<index>").
	ItemKey func(item T, index int) string

	// Logger overrides the component logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns the default configuration for a source.
func DefaultConfig[T any](source Source[T]) Config[T] {
	return Config[T]{
		Source:    source,
		PageSize:  DefaultPageSize,
		Threshold: DefaultThreshold,
		AutoLoad:  true,
	}
}

// withDefaults fills zero fields and rejects unusable values.
func (c Config[T]) withDefaults() (Config[T], error) {
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.PageSize < 0 {
		return c, fmt.Errorf("page size must be positive (got %d)", c.PageSize)
	}
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
	if c.TotalItems != nil && *c.TotalItems < 0 {
		return c, fmt.Errorf("total items must not be negative (got %d)", *c.TotalItems)
	}
	if c.ItemKey == nil {
		c.ItemKey = defaultItemKey[T]
	}
	return c, nil
}

func defaultItemKey[T any](_ T, index int) string {
	return fmt.Sprintf("item-%d", index)
}
