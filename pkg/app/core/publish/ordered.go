package publish

import (
	"sync"

	"github.com/uhyunpark/exchange/pkg/app/core/model"
)

// Ordered publishes each book's results in the order the book produced
// them, while letting callers publish outside the book lock.
//
// Results are queued by their per-book event number. Whichever caller finds
// the outbox idle drains every consecutive result, so a caller may return
// before its own result went out; it is then published by the caller that
// was draining.
type Ordered struct {
	pub model.Publisher

	mu    sync.Mutex
	boxes map[string]*outbox
}

type outbox struct {
	next     uint64
	pending  map[uint64]Result
	draining bool
}

// Result is one message's outcome, numbered by its book.
type Result struct {
	Event  uint64
	Trades []model.Trade
	Status model.Status
}

func NewOrdered(pub model.Publisher) *Ordered {
	return &Ordered{pub: pub, boxes: make(map[string]*outbox)}
}

// Deliver publishes r's trades then its status once every result of symbol
// numbered below r.Event was published. Event 0 is published at once.
func (o *Ordered) Deliver(symbol string, r Result) {
	if r.Event == 0 {
		o.publish(r)
		return
	}

	o.mu.Lock()
	box, ok := o.boxes[symbol]
	if !ok {
		box = &outbox{next: 1, pending: make(map[uint64]Result)}
		o.boxes[symbol] = box
	}
	box.pending[r.Event] = r
	if box.draining {
		o.mu.Unlock()
		return
	}
	box.draining = true
	for {
		next, ok := box.pending[box.next]
		if !ok {
			break
		}
		delete(box.pending, box.next)
		box.next++
		o.mu.Unlock()
		o.publish(next)
		o.mu.Lock()
	}
	box.draining = false
	o.mu.Unlock()
}

func (o *Ordered) publish(r Result) {
	for _, t := range r.Trades {
		o.pub.OnTrade(t)
	}
	o.pub.OnStatus(r.Status)
}
