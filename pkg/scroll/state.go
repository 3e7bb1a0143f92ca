package scroll

import (
	"fmt"
	"reflect"
)

// Status is the derived lifecycle position of a Machine.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusLoading     Status = "loading"
	StatusReady       Status = "ready"
	StatusLoadingMore Status = "loading_more"
	StatusRefreshing  Status = "refreshing"
	StatusFailed      Status = "failed"
)

// State is the accumulated data model of one Machine.
type State[T any] struct {
	// Items is always Pages flattened, in fetch order.
	Items []T `json:"items"`

	// Pages holds the fetched batches in fetch order.
	Pages [][]T `json:"pages"`

	// CurrentPage is the last page index fetched (page mode).
	CurrentPage int `json:"current_page"`

	// Cursor is the continuation token (cursor mode), nil until a fetch returns one.
	Cursor *string `json:"cursor,omitempty"`

	HasMore bool `json:"has_more"`

	// At most one of the in-flight flags is set.
	IsLoading     bool `json:"is_loading"`
	IsLoadingMore bool `json:"is_loading_more"`
	IsRefreshing  bool `json:"is_refreshing"`

	// Error is the message of the most recent failed operation; empty when none.
	Error string `json:"error,omitempty"`

	TotalItems *int `json:"total_items,omitempty"`
}

// Snapshot is an immutable copy of State published after every mutation.
type Snapshot[T any] struct {
	State[T]
	Status  Status `json:"status"`
	Version uint64 `json:"version"`
}

// Validate checks the State invariants: Items equals Pages flattened and
// at most one in-flight flag is set.
func (s *State[T]) Validate() error {
	total := 0
	for _, p := range s.Pages {
		total += len(p)
	}
	if total != len(s.Items) {
		return fmt.Errorf("%w: %d items but pages flatten to %d", ErrInvariant, len(s.Items), total)
	}

	i := 0
	for pi, p := range s.Pages {
		for _, item := range p {
			if !reflect.DeepEqual(s.Items[i], item) {
				return fmt.Errorf("%w: item %d differs from page %d", ErrInvariant, i, pi)
			}
			i++
		}
	}

	flags := 0
	for _, set := range []bool{s.IsLoading, s.IsLoadingMore, s.IsRefreshing} {
		if set {
			flags++
		}
	}
	if flags > 1 {
		return fmt.Errorf("%w: %d in-flight flags set", ErrInvariant, flags)
	}
	return nil
}

// InFlight reports whether any operation flag is set.
func (s *State[T]) InFlight() bool {
	return s.IsLoading || s.IsLoadingMore || s.IsRefreshing
}

// clone returns a deep copy of the slices and pointers; items themselves are copied by value.
func (s *State[T]) clone() State[T] {
	c := *s
	c.Items = append(make([]T, 0, len(s.Items)), s.Items...)
	c.Pages = make([][]T, len(s.Pages))
	for i, p := range s.Pages {
		c.Pages[i] = append(make([]T, 0, len(p)), p...)
	}
	if s.Cursor != nil {
		cursor := *s.Cursor
		c.Cursor = &cursor
	}
	if s.TotalItems != nil {
		total := *s.TotalItems
		c.TotalItems = &total
	}
	return c
}

// flatten concatenates pages in order.
func flatten[T any](pages [][]T) []T {
	n := 0
	for _, p := range pages {
		n += len(p)
	}
	items := make([]T, 0, n)
	for _, p := range pages {
		items = append(items, p...)
	}
	return items
}
