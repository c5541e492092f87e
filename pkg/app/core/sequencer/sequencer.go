// Package sequencer defines the per-security total order over messages and
// validates that every source delivers its messages in increasing sequence.
package sequencer

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/uhyunpark/exchange/pkg/app/core/model"
)

// Compare orders two ranks: -1 if a sorts first, 1 if b does, 0 if equal.
func Compare(a, b model.Rank) int {
	switch {
	case a == b:
		return 0
	case a.Less(b):
		return -1
	default:
		return 1
	}
}

// Tracker remembers the last admitted sequence number of every source.
type Tracker struct {
	mu   sync.Mutex
	last map[string]uint64
	seen map[string]bool
}

func NewTracker() *Tracker {
	return &Tracker{
		last: make(map[string]uint64),
		seen: make(map[string]bool),
	}
}

// Admit accepts seq for source if it is strictly above everything the source
// delivered before. A repeat or regression is ErrOutOfOrder and leaves the
// tracker unchanged.
func (t *Tracker) Admit(source string, seq uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.seen[source] && seq <= t.last[source] {
		return errors.Wrapf(model.ErrOutOfOrder, "source %s: sequence %d after %d", source, seq, t.last[source])
	}
	t.last[source] = seq
	t.seen[source] = true
	return nil
}

// Last returns the highest admitted sequence for source.
func (t *Tracker) Last(source string) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	seq, ok := t.last[source]
	return seq, ok
}
