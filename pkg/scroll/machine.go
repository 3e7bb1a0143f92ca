package scroll

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/eve-esi-scroll/pkg/logging"
)

// Operation names a Machine operation.
type Operation string

const (
	OpLoadInitial Operation = "load_initial"
	OpLoadMore    Operation = "load_more"
	OpRefresh     Operation = "refresh"
	OpReset       Operation = "reset"
)

// Machine is the pagination state machine. It is safe for concurrent use.
type Machine[T any] struct {
	cfg      Config[T]
	strategy strategy[T]
	logger   zerolog.Logger

	mu       sync.Mutex
	state    State[T]
	guard    guard
	primed   bool // a LoadInitial or Refresh has succeeded since the last reset
	disposed bool
	version  uint64
	lastErr  *FetchError
	subs     map[int]chan Snapshot[T]
	nextSub  int
}

// New creates a Machine. Zero PageSize and Threshold take their defaults.
func New[T any](cfg Config[T]) (*Machine[T], error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	strat, err := resolveStrategy(cfg.Source)
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger("scroll")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	logger = logger.With().Str("mode", string(strat.mode())).Logger()

	m := &Machine[T]{
		cfg:      cfg,
		strategy: strat,
		logger:   logger,
		subs:     make(map[int]chan Snapshot[T]),
	}
	m.state = m.initialState()
	return m, nil
}

func (m *Machine[T]) initialState() State[T] {
	s := State[T]{
		Items:     []T{},
		Pages:     [][]T{},
		HasMore:   true,
		IsLoading: m.cfg.AutoLoad,
	}
	if m.cfg.TotalItems != nil {
		total := *m.cfg.TotalItems
		s.TotalItems = &total
	}
	if m.strategy.mode() == ModePage {
		s.CurrentPage = m.strategy.initial().page
	}
	return s
}

// Mount issues LoadInitial when AutoLoad is set.
func (m *Machine[T]) Mount(ctx context.Context) {
	if m.cfg.AutoLoad {
		m.LoadInitial(ctx)
	}
}

// LoadInitial fetches the first batch. It runs only before the first successful
// load or after a failure, and only when no other fetch is in flight.
func (m *Machine[T]) LoadInitial(ctx context.Context) {
	m.execute(ctx, OpLoadInitial)
}

// LoadMore appends the next batch. It is silently dropped when HasMore is
// false, when a load is in flight, before the first successful load, or in
// cursor mode when no cursor is known.
func (m *Machine[T]) LoadMore(ctx context.Context) {
	m.execute(ctx, OpLoadMore)
}

// Refresh re-fetches the first batch and replaces the list on success.
// A failed refresh keeps the current items.
func (m *Machine[T]) Refresh(ctx context.Context) {
	m.execute(ctx, OpRefresh)
}

// Retry re-runs the operation that produced the current error, if any.
func (m *Machine[T]) Retry(ctx context.Context) {
	m.mu.Lock()
	var op Operation
	if m.lastErr != nil && m.state.Error != "" {
		op = m.lastErr.Op
	}
	m.mu.Unlock()

	if op == "" {
		return
	}
	m.execute(ctx, op)
}

// Reset discards all accumulated data and in-flight flags. A fetch that is
// still outstanding completes but its result is discarded; until it returns,
// fetching operations are dropped as busy.
func (m *Machine[T]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return
	}

	m.guard.invalidate()
	m.state = m.initialState()
	m.primed = false
	m.lastErr = nil

	m.logger.Info().Msg("Scroll state reset")
	m.publishLocked()
}

// Restore replaces the state with a previously published snapshot, for example
// one loaded from persistent storage. In-flight flags are cleared.
func (m *Machine[T]) Restore(snap Snapshot[T]) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return nil
	}
	if m.guard.busy() {
		return ErrBusy
	}
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}

	st := snap.State.clone()
	st.IsLoading = false
	st.IsLoadingMore = false
	st.IsRefreshing = false
	m.state = st
	m.primed = len(st.Pages) > 0
	m.lastErr = nil

	m.logger.Info().
		Int("items", len(st.Items)).
		Int("pages", len(st.Pages)).
		Bool("has_more", st.HasMore).
		Msg("Scroll state restored")
	m.publishLocked()
	return nil
}

// Close disposes the Machine. Results of fetches completing afterwards are
// discarded and all subscriptions are closed.
func (m *Machine[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return
	}
	m.disposed = true
	for id, ch := range m.subs {
		close(ch)
		delete(m.subs, id)
	}
}

// Snapshot returns a copy of the current state.
func (m *Machine[T]) Snapshot() Snapshot[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Err returns the failure behind the current State.Error, or nil.
func (m *Machine[T]) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastErr == nil {
		return nil
	}
	return m.lastErr
}

// Subscribe returns a channel that always holds the latest snapshot, starting
// with the current one. Intermediate snapshots may be skipped by slow readers.
// The returned function cancels the subscription.
func (m *Machine[T]) Subscribe() (<-chan Snapshot[T], func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Snapshot[T], 1)
	if m.disposed {
		close(ch)
		return ch, func() {}
	}

	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.snapshotLocked()

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id]; ok {
			close(c)
			delete(m.subs, id)
		}
	}
}

// Key returns the stable identity of an item.
func (m *Machine[T]) Key(item T, index int) string {
	return m.cfg.ItemKey(item, index)
}

// ThresholdFraction returns the configured threshold as a distance-from-end fraction.
func (m *Machine[T]) ThresholdFraction() float64 {
	return ThresholdFraction(m.cfg.Threshold)
}

// NearEnd reports whether a consumer showing visibleIndex should call LoadMore.
func (m *Machine[T]) NearEnd(visibleIndex int) bool {
	m.mu.Lock()
	loaded := len(m.state.Items)
	m.mu.Unlock()
	return NearEnd(visibleIndex, loaded, m.ThresholdFraction())
}

// execute runs one guarded fetch operation.
func (m *Machine[T]) execute(ctx context.Context, op Operation) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	if !m.permittedLocked(op) {
		m.mu.Unlock()
		m.drop(op, nil)
		return
	}

	pos := m.strategy.initial()
	if op == OpLoadMore {
		var err error
		pos, err = m.strategy.following(&m.state)
		if err != nil {
			m.mu.Unlock()
			m.drop(op, err)
			return
		}
	}

	gen, ok := m.guard.acquire()
	if !ok {
		m.mu.Unlock()
		m.drop(op, nil)
		return
	}
	m.state.Error = ""
	m.state.IsLoading = op == OpLoadInitial
	m.state.IsLoadingMore = op == OpLoadMore
	m.state.IsRefreshing = op == OpRefresh
	m.publishLocked()
	pageSize := m.cfg.PageSize
	m.mu.Unlock()

	mode := string(m.strategy.mode())
	fetchesTotal.WithLabelValues(mode, string(op)).Inc()
	m.logger.Debug().
		Str("op", string(op)).
		Int("page", pos.page).
		Bool("has_cursor", pos.cursor != nil).
		Msg("Fetching batch")

	start := time.Now()
	b, err := m.strategy.fetch(ctx, pos, pageSize)
	elapsed := time.Since(start)
	fetchDuration.WithLabelValues(mode, string(op)).Observe(elapsed.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()

	if current := m.guard.release(gen); !current || m.disposed {
		staleResults.Inc()
		m.logger.Debug().
			Str("op", string(op)).
			Bool("disposed", m.disposed).
			Msg("Discarding stale fetch result")
		return
	}

	if err != nil {
		fetchFailuresTotal.WithLabelValues(mode, string(op)).Inc()
		m.failLocked(op, err)
		m.logger.Warn().
			Err(err).
			Str("op", string(op)).
			Dur("duration", elapsed).
			Int("items", len(m.state.Items)).
			Msg("Fetch failed")
	} else {
		m.mergeLocked(op, b)
		m.logger.Debug().
			Str("op", string(op)).
			Int("batch", len(b.items)).
			Int("items", len(m.state.Items)).
			Bool("has_more", m.state.HasMore).
			Dur("duration", elapsed).
			Msg("Fetch complete")
	}
	m.publishLocked()
}

func (m *Machine[T]) permittedLocked(op Operation) bool {
	if m.guard.busy() {
		return false
	}
	switch op {
	case OpLoadInitial:
		return !m.primed || m.state.Error != ""
	case OpLoadMore:
		return m.primed && m.state.HasMore && !m.state.IsLoading && !m.state.IsLoadingMore
	case OpRefresh:
		return true
	default:
		return false
	}
}

func (m *Machine[T]) drop(op Operation, reason error) {
	operationsDropped.WithLabelValues(string(op)).Inc()
	ev := m.logger.Debug().Str("op", string(op))
	if reason != nil {
		ev = ev.Err(reason)
	}
	ev.Msg("Operation dropped")
}

func (m *Machine[T]) mergeLocked(op Operation, b batch[T]) {
	items := b.items
	if items == nil {
		items = []T{}
	}

	if op == OpLoadMore {
		m.state.Pages = append(m.state.Pages, items)
	} else {
		m.state.Pages = [][]T{items}
	}
	m.state.Items = flatten(m.state.Pages)
	m.state.CurrentPage = b.page
	if m.strategy.mode() == ModeCursor {
		m.state.Cursor = b.nextCursor
	}
	m.state.HasMore = m.strategy.hasMore(b, m.state.Pages, len(m.state.Items), m.cfg.PageSize, m.state.TotalItems)

	m.state.IsLoading = false
	m.state.IsLoadingMore = false
	m.state.IsRefreshing = false
	m.state.Error = ""
	m.primed = true
	m.lastErr = nil
}

func (m *Machine[T]) failLocked(op Operation, err error) {
	fe := &FetchError{Op: op, Mode: m.strategy.mode(), Err: err}
	m.lastErr = fe
	m.state.Error = fe.Message()
	m.state.IsLoading = false
	m.state.IsLoadingMore = false
	m.state.IsRefreshing = false
}

func (m *Machine[T]) statusLocked() Status {
	switch {
	case m.state.IsLoading:
		return StatusLoading
	case m.state.IsLoadingMore:
		return StatusLoadingMore
	case m.state.IsRefreshing:
		return StatusRefreshing
	case m.state.Error != "":
		return StatusFailed
	case !m.primed:
		return StatusIdle
	default:
		return StatusReady
	}
}

func (m *Machine[T]) snapshotLocked() Snapshot[T] {
	return Snapshot[T]{
		State:   m.state.clone(),
		Status:  m.statusLocked(),
		Version: m.version,
	}
}

// publishLocked validates the state and hands the new snapshot to every subscriber.
func (m *Machine[T]) publishLocked() {
	m.version++
	snap := m.snapshotLocked()

	if err := snap.Validate(); err != nil {
		invariantViolations.Inc()
		m.logger.Error().Err(err).Uint64("version", snap.Version).Msg("Published state is invalid")
	}

	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
			// Replace the unread snapshot with the newer one.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
