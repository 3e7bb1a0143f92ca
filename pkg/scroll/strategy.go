package scroll

import (
	"context"
	"fmt"
)

// position addresses one batch: a page index, and in cursor mode the token to send.
type position struct {
	page   int
	cursor *string
}

// batch is the merge input produced by a strategy fetch.
type batch[T any] struct {
	items []T
	page  int

	// cursor mode only
	nextCursor    *string
	serverHasMore bool
}

// strategy resolves how to fetch a batch and how to derive HasMore for one Source variant.
type strategy[T any] interface {
	mode() Mode
	initial() position
	following(s *State[T]) (position, error)
	fetch(ctx context.Context, pos position, pageSize int) (batch[T], error)
	hasMore(b batch[T], pages [][]T, loaded, pageSize int, total *int) bool
}

// resolveStrategy is the single dispatch point over the Source variant.
func resolveStrategy[T any](src Source[T]) (strategy[T], error) {
	switch s := src.(type) {
	case *pageSource[T]:
		if s == nil || s.fetch == nil {
			return nil, fmt.Errorf("page source: fetch function is required")
		}
		return &pageStrategy[T]{src: s}, nil
	case *cursorSource[T]:
		if s == nil || s.fetch == nil {
			return nil, fmt.Errorf("cursor source: fetch function is required")
		}
		return &cursorStrategy[T]{src: s}, nil
	case nil:
		return nil, ErrNoSource
	default:
		return nil, fmt.Errorf("unsupported source type %T", src)
	}
}

type pageStrategy[T any] struct {
	src *pageSource[T]
}

func (p *pageStrategy[T]) mode() Mode { return ModePage }

func (p *pageStrategy[T]) initial() position {
	return position{page: p.src.initialPage}
}

func (p *pageStrategy[T]) following(s *State[T]) (position, error) {
	return position{page: s.CurrentPage + 1}, nil
}

func (p *pageStrategy[T]) fetch(ctx context.Context, pos position, pageSize int) (batch[T], error) {
	items, err := guarded(func() ([]T, error) {
		return p.src.fetch(ctx, pos.page, pageSize)
	})
	if err != nil {
		return batch[T]{}, err
	}
	return batch[T]{items: items, page: pos.page}, nil
}

// hasMore treats a batch exactly at capacity as "might have more"; the known
// total, when set, caps it.
func (p *pageStrategy[T]) hasMore(b batch[T], pages [][]T, loaded, pageSize int, total *int) bool {
	var more bool
	if p.src.hasMore != nil {
		more = p.src.hasMore(b.items, pages)
	} else {
		more = len(b.items) >= pageSize
	}
	if total != nil {
		more = more && loaded < *total
	}
	return more
}

type cursorStrategy[T any] struct {
	src *cursorSource[T]
}

func (c *cursorStrategy[T]) mode() Mode { return ModeCursor }

func (c *cursorStrategy[T]) initial() position {
	return position{}
}

func (c *cursorStrategy[T]) following(s *State[T]) (position, error) {
	if s.Cursor == nil {
		return position{}, ErrMissingCursor
	}
	cursor := *s.Cursor
	return position{page: s.CurrentPage + 1, cursor: &cursor}, nil
}

func (c *cursorStrategy[T]) fetch(ctx context.Context, pos position, pageSize int) (batch[T], error) {
	res, err := guarded(func() (CursorPage[T], error) {
		return c.src.fetch(ctx, pos.cursor, pageSize)
	})
	if err != nil {
		return batch[T]{}, err
	}
	return batch[T]{
		items:         res.Items,
		page:          pos.page,
		nextCursor:    res.NextCursor,
		serverHasMore: res.HasMore,
	}, nil
}

func (c *cursorStrategy[T]) hasMore(b batch[T], _ [][]T, _, _ int, _ *int) bool {
	return b.serverHasMore
}

// guarded runs a caller-supplied fetch and converts a panic into an error.
func guarded[R any](fn func() (R, error)) (res R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetch panicked: %v", r)
		}
	}()
	return fn()
}
