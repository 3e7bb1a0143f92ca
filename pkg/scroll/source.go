package scroll

import "context"

// Mode identifies the pagination shape of a Source.
type Mode string

const (
	// ModePage addresses batches by an increasing integer page index.
	ModePage Mode = "page"

	// ModeCursor addresses batches by an opaque token returned from the previous fetch.
	ModeCursor Mode = "cursor"
)

// PageFetchFunc fetches one page of at most pageSize items.
// It must only return an error to signal failure.
type PageFetchFunc[T any] func(ctx context.Context, page, pageSize int) ([]T, error)

// HasMoreFunc overrides the default "more data available" rule in page mode.
type HasMoreFunc[T any] func(lastBatch []T, allPages [][]T) bool

// CursorPage is one batch returned by a CursorFetchFunc.
type CursorPage[T any] struct {
	Items []T `json:"items"`

	// NextCursor is nil when the server returned no continuation token.
	NextCursor *string `json:"next_cursor"`

	HasMore bool `json:"has_more"`
}

// CursorFetchFunc fetches the batch following cursor. A nil cursor requests the first batch.
type CursorFetchFunc[T any] func(ctx context.Context, cursor *string, pageSize int) (CursorPage[T], error)

// Source is the tagged pagination variant. It is implemented only by the
// values returned from PageSource and CursorSource.
type Source[T any] interface {
	Mode() Mode
	source()
}

// PageOption customizes a page source.
type PageOption[T any] func(*pageSource[T])

// WithHasMore replaces the default len(batch) >= pageSize rule.
func WithHasMore[T any](fn HasMoreFunc[T]) PageOption[T] {
	return func(s *pageSource[T]) {
		s.hasMore = fn
	}
}

// WithInitialPage sets the page index requested by LoadInitial and Refresh (default 0).
func WithInitialPage[T any](page int) PageOption[T] {
	return func(s *pageSource[T]) {
		s.initialPage = page
	}
}

type pageSource[T any] struct {
	fetch       PageFetchFunc[T]
	hasMore     HasMoreFunc[T]
	initialPage int
}

func (*pageSource[T]) Mode() Mode { return ModePage }
func (*pageSource[T]) source()    {}

// PageSource builds a page-based source.
func PageSource[T any](fetch PageFetchFunc[T], opts ...PageOption[T]) Source[T] {
	s := &pageSource[T]{fetch: fetch}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type cursorSource[T any] struct {
	fetch CursorFetchFunc[T]
}

func (*cursorSource[T]) Mode() Mode { return ModeCursor }
func (*cursorSource[T]) source()    {}

// CursorSource builds a cursor-based source.
func CursorSource[T any](fetch CursorFetchFunc[T]) Source[T] {
	return &cursorSource[T]{fetch: fetch}
}
