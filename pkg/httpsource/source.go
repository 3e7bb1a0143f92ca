package httpsource

import (
	"context"
	"net/url"
	"strconv"
	"sync"

	"github.com/Sternrassler/eve-esi-scroll/pkg/scroll"
)

// HeaderPages is the ESI header carrying the total number of pages.
const HeaderPages = "X-Pages"

// PageConfig describes a page-numbered endpoint returning a JSON array.
type PageConfig struct {
	// FirstPage is the upstream page number requested for scroll page 0.
	// Nil means 1; zero-based upstreams set it to 0.
	FirstPage *int

	// PageParam names the page query parameter (default "page").
	PageParam string

	// SizeParam names the page size query parameter. The size is not sent when empty.
	SizeParam string

	// Query holds static query parameters sent with every request.
	Query url.Values
}

// CursorConfig describes a cursor endpoint returning
// {"items": [...], "next_cursor": "...", "has_more": bool}.
type CursorConfig struct {
	// CursorParam names the cursor query parameter (default "cursor").
	CursorParam string

	// LimitParam names the page size query parameter (default "limit").
	LimitParam string

	// Query holds static query parameters sent with every request.
	Query url.Values
}

// PageSource returns a page-mode source for endpoint. When the upstream sends
// X-Pages, more data is available until that page has been fetched; otherwise
// the full-batch rule applies.
//
// The returned source keeps the last X-Pages value and must not be shared
// between machines.
func PageSource[T any](c *Client, endpoint string, cfg PageConfig) scroll.Source[T] {
	firstPage := 1
	if cfg.FirstPage != nil {
		firstPage = *cfg.FirstPage
	}
	if cfg.PageParam == "" {
		cfg.PageParam = "page"
	}
	p := &pager[T]{client: c, endpoint: endpoint, cfg: cfg, firstPage: firstPage}
	return scroll.PageSource[T](p.fetch, scroll.WithHasMore[T](p.hasMore))
}

type pager[T any] struct {
	client   *Client
	endpoint string
	cfg       PageConfig
	firstPage int

	mu         sync.Mutex
	totalPages int // 0 when the upstream did not report X-Pages
	lastPage   int // zero-based index of the last fetched page
	pageSize   int
}

func (p *pager[T]) fetch(ctx context.Context, page, pageSize int) ([]T, error) {
	q := cloneQuery(p.cfg.Query)
	q.Set(p.cfg.PageParam, strconv.Itoa(page+p.firstPage))
	if p.cfg.SizeParam != "" {
		q.Set(p.cfg.SizeParam, strconv.Itoa(pageSize))
	}

	var items []T
	headers, err := p.client.GetJSON(ctx, p.endpoint, q, &items)
	if err != nil {
		return nil, err
	}

	total := 0
	if n, err := strconv.Atoi(headers.Get(HeaderPages)); err == nil && n > 0 {
		total = n
	}

	p.mu.Lock()
	p.totalPages = total
	p.lastPage = page
	p.pageSize = pageSize
	p.mu.Unlock()

	return items, nil
}

func (p *pager[T]) hasMore(lastBatch []T, _ [][]T) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.totalPages > 0 {
		return p.lastPage+1 < p.totalPages
	}
	return len(lastBatch) >= p.pageSize
}

// CursorSource returns a cursor-mode source for endpoint.
func CursorSource[T any](c *Client, endpoint string, cfg CursorConfig) scroll.Source[T] {
	if cfg.CursorParam == "" {
		cfg.CursorParam = "cursor"
	}
	if cfg.LimitParam == "" {
		cfg.LimitParam = "limit"
	}

	return scroll.CursorSource[T](func(ctx context.Context, cursor *string, pageSize int) (scroll.CursorPage[T], error) {
		q := cloneQuery(cfg.Query)
		if cursor != nil {
			q.Set(cfg.CursorParam, *cursor)
		}
		q.Set(cfg.LimitParam, strconv.Itoa(pageSize))

		var page scroll.CursorPage[T]
		if _, err := c.GetJSON(ctx, endpoint, q, &page); err != nil {
			return scroll.CursorPage[T]{}, err
		}
		if page.NextCursor != nil && *page.NextCursor == "" {
			page.NextCursor = nil
		}
		return page, nil
	})
}

func cloneQuery(q url.Values) url.Values {
	out := make(url.Values, len(q)+2)
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	return out
}
