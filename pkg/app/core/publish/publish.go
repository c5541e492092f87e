// Package publish holds small model.Publisher building blocks.
package publish

import (
	"sync"

	"github.com/uhyunpark/exchange/pkg/app/core/model"
)

type Nop struct{}

func (Nop) OnTrade(model.Trade)           {}
func (Nop) OnStatus(model.Status)         {}
func (Nop) OnSnapshot(model.BookSnapshot) {}
func (Nop) OnShutdown()                   {}

// Fanout forwards every event to each publisher in registration order.
type Fanout struct {
	mu   sync.RWMutex
	pubs []model.Publisher
}

func NewFanout(pubs ...model.Publisher) *Fanout {
	return &Fanout{pubs: pubs}
}

func (f *Fanout) Add(p model.Publisher) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pubs = append(f.pubs, p)
}

func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.pubs)
}

func (f *Fanout) each(fn func(model.Publisher)) {
	f.mu.RLock()
	pubs := f.pubs
	f.mu.RUnlock()
	for _, p := range pubs {
		fn(p)
	}
}

func (f *Fanout) OnTrade(t model.Trade) {
	f.each(func(p model.Publisher) { p.OnTrade(t) })
}

func (f *Fanout) OnStatus(s model.Status) {
	f.each(func(p model.Publisher) { p.OnStatus(s) })
}

func (f *Fanout) OnSnapshot(s model.BookSnapshot) {
	f.each(func(p model.Publisher) { p.OnSnapshot(s) })
}

func (f *Fanout) OnShutdown() {
	f.each(func(p model.Publisher) { p.OnShutdown() })
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu        sync.Mutex
	trades    []model.Trade
	statuses  []model.Status
	snapshots []model.BookSnapshot
	shutdowns int
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) OnTrade(t model.Trade) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, t)
}

func (r *Recorder) OnStatus(s model.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *Recorder) OnSnapshot(s model.BookSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

func (r *Recorder) OnShutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdowns++
}

func (r *Recorder) Trades() []model.Trade {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Trade(nil), r.trades...)
}

func (r *Recorder) Statuses() []model.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Status(nil), r.statuses...)
}

func (r *Recorder) Snapshots() []model.BookSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.BookSnapshot(nil), r.snapshots...)
}

func (r *Recorder) Shutdowns() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shutdowns
}

// StatusesOf returns the recorded statuses of one kind.
func (r *Recorder) StatusesOf(kind model.StatusKind) []model.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Status
	for _, s := range r.statuses {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}
