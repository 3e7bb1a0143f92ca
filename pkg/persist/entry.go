package persist

import (
	"time"

	"github.com/Sternrassler/eve-esi-scroll/pkg/scroll"
)

// Entry is the stored envelope around a snapshot.
type Entry[T any] struct {
	Snapshot scroll.Snapshot[T] `json:"snapshot"`
	SavedAt  time.Time          `json:"saved_at"`
}

// Age returns how long ago the entry was saved.
func (e *Entry[T]) Age() time.Duration {
	return time.Since(e.SavedAt)
}
