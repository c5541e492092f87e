package sequencer

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/uhyunpark/exchange/pkg/app/core/model"
)

// Merger releases messages from several sources in global rank order,
// independent of the real-time interleaving in which they were pushed.
//
// Each source's messages queue FIFO. The lowest-ranked head is released only
// once every source that has not ended has something queued: since sources
// deliver in increasing sequence, nothing ranked lower can still arrive.
// A source that stops delivering without ending stalls the merge.
type Merger struct {
	mu      sync.Mutex
	sources []string
	queues  map[string][]model.Message
	ended   map[string]bool
	apply   func(model.Message)
}

// NewMerger creates a merger over the given sources. apply is invoked for
// every released message, one at a time and in rank order, while the merger
// is locked; it must not call back into the merger.
func NewMerger(sources []string, apply func(model.Message)) *Merger {
	m := &Merger{
		sources: append([]string(nil), sources...),
		queues:  make(map[string][]model.Message, len(sources)),
		ended:   make(map[string]bool, len(sources)),
		apply:   apply,
	}
	sort.Strings(m.sources)
	for _, s := range m.sources {
		m.queues[s] = nil
	}
	return m
}

// Push queues an admitted message and releases whatever became releasable.
func (m *Merger) Push(msg model.Message) error {
	source := msg.SourceID()

	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[source]
	if !ok {
		return errors.Wrapf(model.ErrUnknownSource, "merge: source %q", source)
	}
	if m.ended[source] {
		return errors.Wrapf(model.ErrLateMessage, "merge: source %s already ended", source)
	}
	if n := len(q); n > 0 && !q[n-1].Rank().Less(msg.Rank()) {
		return errors.Wrapf(model.ErrOutOfOrder, "merge: %s after %s", msg.Rank(), q[n-1].Rank())
	}
	m.queues[source] = append(q, msg)
	m.drain()
	return nil
}

// Close marks source as ended and releases what it was holding back.
func (m *Merger) Close(source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.queues[source]; !ok {
		return errors.Wrapf(model.ErrUnknownSource, "merge: source %q", source)
	}
	m.ended[source] = true
	m.drain()
	return nil
}

// Pending returns the number of queued, unreleased messages.
func (m *Merger) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, q := range m.queues {
		n += len(q)
	}
	return n
}

func (m *Merger) drain() {
	for {
		next := ""
		for _, s := range m.sources {
			q := m.queues[s]
			if len(q) == 0 {
				if !m.ended[s] {
					return // s may still deliver something lower
				}
				continue
			}
			if next == "" || q[0].Rank().Less(m.queues[next][0].Rank()) {
				next = s
			}
		}
		if next == "" {
			return
		}
		msg := m.queues[next][0]
		m.queues[next] = m.queues[next][1:]
		m.apply(msg)
	}
}
