package registry

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/uhyunpark/exchange/pkg/app/core/matching"
	"github.com/uhyunpark/exchange/pkg/app/core/model"
	"github.com/uhyunpark/exchange/pkg/app/core/orderbook"
)

// Registry owns one order book per symbol and serializes all access to each
// book behind that book's own lock. Different symbols never contend.
type Registry struct {
	mu      sync.RWMutex
	books   map[string]*bookEntry // symbol -> book
	matcher *matching.Matcher
}

type bookEntry struct {
	mu     sync.Mutex
	book   *orderbook.OrderBook
	events uint64
}

// NewRegistry creates an empty registry. Books are created on first reference.
func NewRegistry(matcher *matching.Matcher) *Registry {
	return &Registry{
		books:   make(map[string]*bookEntry),
		matcher: matcher,
	}
}

func (r *Registry) entry(symbol string) *bookEntry {
	r.mu.RLock()
	e, ok := r.books[symbol]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.books[symbol]; ok {
		return e
	}
	e = &bookEntry{book: orderbook.NewOrderBook(symbol)}
	r.books[symbol] = e
	return e
}

// Route applies a placement or cancellation to its symbol's book while
// holding that book exclusively. The message itself is not mutated.
// Results that reached a book carry the book's next Event number.
func (r *Registry) Route(msg model.Message) (matching.Result, error) {
	symbol := msg.Symbol()
	switch {
	case msg.Kind == model.KindPlace && msg.Order == nil,
		msg.Kind == model.KindCancel && msg.Cancel == nil:
		err := errors.Wrapf(model.ErrInvalidOrder, "%s message without body", msg.Kind)
		return matching.Result{Status: model.Rejection(msg, err)}, err
	case msg.Kind != model.KindPlace && msg.Kind != model.KindCancel:
		err := errors.Wrapf(model.ErrInvalidOrder, "cannot route %s message", msg.Kind)
		return matching.Result{Status: model.Rejection(msg, err)}, err
	case symbol == "":
		sentinel := model.ErrInvalidOrder
		if msg.Kind == model.KindCancel {
			sentinel = model.ErrCancelRejected
		}
		err := errors.Wrapf(sentinel, "%s %s without symbol", msg.Kind, msg.OrderID())
		return matching.Result{Status: model.Rejection(msg, err)}, err
	}

	e := r.entry(symbol)
	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		res matching.Result
		err error
	)
	if msg.Kind == model.KindPlace {
		o := *msg.Order
		res, err = r.matcher.Place(e.book, &o)
	} else {
		c := *msg.Cancel
		res, err = r.matcher.Cancel(e.book, &c)
	}
	e.events++
	res.Event = e.events
	return res, err
}

// Snapshot copies one book. ok is false for symbols never referenced.
func (r *Registry) Snapshot(symbol string) (model.BookSnapshot, bool) {
	r.mu.RLock()
	e, ok := r.books[symbol]
	r.mu.RUnlock()
	if !ok {
		return model.BookSnapshot{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Snapshot(), true
}

// SnapshotAll copies every book, sorted by symbol.
func (r *Registry) SnapshotAll() []model.BookSnapshot {
	symbols := r.Symbols()
	out := make([]model.BookSnapshot, 0, len(symbols))
	for _, s := range symbols {
		if snap, ok := r.Snapshot(s); ok {
			out = append(out, snap)
		}
	}
	return out
}

// Levels returns aggregated depth for one book, best prices first.
func (r *Registry) Levels(symbol string) (bids, asks []orderbook.PriceLevel, ok bool) {
	r.mu.RLock()
	e, ok := r.books[symbol]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.BidLevels(), e.book.AskLevels(), true
}

// Symbols returns every known symbol in sorted order.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	symbols := make([]string, 0, len(r.books))
	for s := range r.books {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// Count returns the number of books.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.books)
}

// Exists checks if a book was created for symbol.
func (r *Registry) Exists(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.books[symbol]
	return exists
}
