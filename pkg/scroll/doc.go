// Package scroll materializes a server-paginated collection into a locally held,
// ordered list of items for incremental consumption by a scrolling consumer.
//
// A Machine owns one accumulated State and exposes four operations:
//
//   - LoadInitial fetches the first page (or the first cursor batch)
//   - LoadMore appends the next batch when HasMore is set
//   - Refresh re-fetches the first batch and replaces the list on success
//   - Reset discards everything and returns to the initial configuration
//
// At most one fetch is in flight per Machine. Calls that arrive while a fetch
// is outstanding are dropped, not queued. Fetch failures never escape the
// operations; they are recorded on State.Error and previously loaded items
// stay visible.
//
// Two fetch shapes are supported through the Source variant:
//
//	// Page-based (offset) pagination
//	src := scroll.PageSource(func(ctx context.Context, page, size int) ([]Order, error) {
//		return api.Orders(ctx, page, size)
//	})
//
//	// Opaque cursor pagination
//	src := scroll.CursorSource(func(ctx context.Context, cursor *string, size int) (scroll.CursorPage[Order], error) {
//		return api.OrdersAfter(ctx, cursor, size)
//	})
//
//	m, err := scroll.New(scroll.DefaultConfig(src))
//	if err != nil {
//		return err
//	}
//	defer m.Close()
//
//	m.Mount(ctx)
//	snap := m.Snapshot()
//
// Consumers observe the machine through immutable Snapshots, either by polling
// Snapshot or by reading the latest-wins channel returned from Subscribe.
package scroll
