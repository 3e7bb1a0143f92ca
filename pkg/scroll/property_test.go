package scroll

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

// TestMachineInvariants drives random operation sequences against a page
// source with random batch sizes and failures.
func TestMachineInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pageSize := rapid.IntRange(1, 5).Draw(t, "pageSize")
		next := 0
		calls := 0

		fetch := func(_ context.Context, page, size int) ([]int, error) {
			calls++
			if rapid.Float64Range(0, 1).Draw(t, "failRoll") < 0.2 {
				return nil, errors.New("injected failure")
			}
			n := rapid.IntRange(0, size).Draw(t, "batchLen")
			batch := make([]int, n)
			for i := range batch {
				batch[i] = next
				next++
			}
			return batch, nil
		}

		cfg := DefaultConfig(PageSource(fetch))
		cfg.PageSize = pageSize
		cfg.Logger = nopLogger()
		m, err := New(cfg)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defer m.Close()
		ctx := context.Background()

		ops := rapid.SliceOfN(rapid.SampledFrom([]string{"initial", "more", "refresh", "reset", "retry"}), 1, 30).Draw(t, "ops")
		for i, op := range ops {
			before := m.Snapshot()
			callsBefore := calls

			switch op {
			case "initial":
				m.LoadInitial(ctx)
			case "more":
				m.LoadMore(ctx)
			case "refresh":
				m.Refresh(ctx)
			case "reset":
				m.Reset()
			case "retry":
				m.Retry(ctx)
			}

			after := m.Snapshot()
			if err := after.Validate(); err != nil {
				t.Fatalf("step %d (%s): %v", i, op, err)
			}
			if after.IsLoadingMore || after.IsRefreshing {
				t.Fatalf("step %d (%s): flag left set after synchronous operation: %+v", i, op, after.State)
			}
			// IsLoading may only remain as the autoload preset of a fresh state.
			if after.IsLoading && len(after.Pages) != 0 {
				t.Fatalf("step %d (%s): IsLoading set with %d pages loaded", i, op, len(after.Pages))
			}
			if calls-callsBefore > 1 {
				t.Fatalf("step %d (%s): %d fetches for one operation", i, op, calls-callsBefore)
			}

			if op == "more" {
				if !before.HasMore && calls != callsBefore {
					t.Fatalf("step %d: LoadMore fetched with HasMore=false", i)
				}
				if after.Error != "" && len(after.Items) < len(before.Items) {
					t.Fatalf("step %d: failed LoadMore dropped items (%d -> %d)", i, len(before.Items), len(after.Items))
				}
			}
			if op == "refresh" && after.Error != "" {
				if fmt.Sprint(after.Items) != fmt.Sprint(before.Items) {
					t.Fatalf("step %d: failed refresh changed items", i)
				}
			}
		}
	})
}

// TestResetIdempotence checks that a second Reset never changes the state.
func TestResetIdempotence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		autoLoad := rapid.Bool().Draw(t, "autoLoad")
		loads := rapid.IntRange(0, 4).Draw(t, "loads")

		cfg := DefaultConfig(PageSource(func(_ context.Context, page, size int) ([]int, error) {
			return make([]int, size), nil
		}))
		cfg.AutoLoad = autoLoad
		cfg.PageSize = 3
		cfg.Logger = nopLogger()
		m, err := New(cfg)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defer m.Close()

		m.Refresh(context.Background())
		for i := 0; i < loads; i++ {
			m.LoadMore(context.Background())
		}

		m.Reset()
		once := m.Snapshot()
		m.Reset()
		twice := m.Snapshot()

		if fmt.Sprintf("%+v", once.State) != fmt.Sprintf("%+v", twice.State) || once.Status != twice.Status {
			t.Fatalf("reset not idempotent: %+v vs %+v", once, twice)
		}
		if once.IsLoading != autoLoad {
			t.Fatalf("IsLoading = %v after reset, want %v", once.IsLoading, autoLoad)
		}
	})
}
