package orderbook

import (
	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"github.com/uhyunpark/exchange/pkg/app/core/model"
)

// PriceLevel aggregates the open quantity resting at one price.
type PriceLevel struct {
	Price  decimal.Decimal `json:"price"`
	Qty    int64           `json:"qty"`
	Orders int             `json:"orders"`
}

// OrderBook holds the resting liquidity of one symbol.
//
// Each side is a B-tree ordered by price (best first) then sequence-rank, so
// the best opposite order is the tree minimum. OrderBook does no locking of
// its own; the registry serializes access per symbol.
type OrderBook struct {
	symbol string

	bids *btree.BTreeG[*model.Order] // price desc, rank asc
	asks *btree.BTreeG[*model.Order] // price asc, rank asc

	// (source, id) -> resting order, for cancel and duplicate checks
	index map[model.OrderKey]*model.Order

	lastPrice decimal.Decimal // most recent fill price
	tradeSeq  uint64
}

func NewOrderBook(symbol string) *OrderBook {
	opts := btree.Options{NoLocks: true}
	return &OrderBook{
		symbol: symbol,
		bids:   btree.NewBTreeGOptions(bidLess, opts),
		asks:   btree.NewBTreeGOptions(askLess, opts),
		index:  make(map[model.OrderKey]*model.Order),
	}
}

// rankLess orders equal-priced orders FIFO by rank. The key comparison only
// keeps the ordering total.
func rankLess(a, b *model.Order) bool {
	ra, rb := a.Rank(), b.Rank()
	if ra != rb {
		return ra.Less(rb)
	}
	return a.ID < b.ID
}

func bidLess(a, b *model.Order) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c > 0
	}
	return rankLess(a, b)
}

func askLess(a, b *model.Order) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c < 0
	}
	return rankLess(a, b)
}

func (ob *OrderBook) Symbol() string { return ob.symbol }

func (ob *OrderBook) side(s model.Side) *btree.BTreeG[*model.Order] {
	if s == model.Buy {
		return ob.bids
	}
	return ob.asks
}

// BestOpposite returns the top-priority resting order an incoming order of
// side s would trade against.
func (ob *OrderBook) BestOpposite(s model.Side) (*model.Order, bool) {
	return ob.side(s.Opposite()).Min()
}

// BestBid returns the highest resting bid.
func (ob *OrderBook) BestBid() (*model.Order, bool) {
	return ob.bids.Min()
}

// BestAsk returns the lowest resting ask.
func (ob *OrderBook) BestAsk() (*model.Order, bool) {
	return ob.asks.Min()
}

// ScanOpposite visits the side an incoming order of side s trades against,
// best first, until fn returns false.
func (ob *OrderBook) ScanOpposite(s model.Side, fn func(*model.Order) bool) {
	ob.side(s.Opposite()).Scan(fn)
}

// Crossed reports whether the best bid is at or above the best ask.
func (ob *OrderBook) Crossed() bool {
	bid, okB := ob.BestBid()
	ask, okA := ob.BestAsk()
	if !okB || !okA {
		return false
	}
	return bid.Price.Cmp(ask.Price) >= 0
}

// Get returns the resting order for (orderID, sourceID).
func (ob *OrderBook) Get(orderID, sourceID string) (*model.Order, bool) {
	o, ok := ob.index[model.OrderKey{SourceID: sourceID, OrderID: orderID}]
	return o, ok
}

// Insert adds an order with open quantity to its side.
func (ob *OrderBook) Insert(o *model.Order) error {
	if o.Remaining <= 0 || o.Remaining > o.Quantity {
		return errors.Wrapf(model.ErrInvalidOrder, "order %s: remaining %d of %d", o.Key(), o.Remaining, o.Quantity)
	}
	if !o.Side.Valid() {
		return errors.Wrapf(model.ErrInvalidOrder, "order %s: side %d", o.Key(), o.Side)
	}
	if o.Symbol != ob.symbol {
		return errors.Wrapf(model.ErrInvalidOrder, "order %s: symbol %q on book %q", o.Key(), o.Symbol, ob.symbol)
	}
	key := o.Key()
	if _, exists := ob.index[key]; exists {
		return errors.Wrapf(model.ErrDuplicateOrder, "order %s already rests on %s", key, ob.symbol)
	}
	ob.side(o.Side).Set(o)
	ob.index[key] = o
	return nil
}

// Remove takes the order out of the book and returns it.
func (ob *OrderBook) Remove(orderID, sourceID string) (*model.Order, error) {
	key := model.OrderKey{SourceID: sourceID, OrderID: orderID}
	o, ok := ob.index[key]
	if !ok {
		return nil, errors.Wrapf(model.ErrOrderNotFound, "order %s on %s", key, ob.symbol)
	}
	if _, deleted := ob.side(o.Side).Delete(o); !deleted {
		return nil, errors.Wrapf(model.ErrInvariantViolation, "order %s indexed but not on its side", key)
	}
	delete(ob.index, key)
	return o, nil
}

// Reduce decrements the open quantity of a resting order and removes it once
// nothing is left. It returns the new remaining quantity.
func (ob *OrderBook) Reduce(orderID, sourceID string, qty int64) (int64, error) {
	key := model.OrderKey{SourceID: sourceID, OrderID: orderID}
	o, ok := ob.index[key]
	if !ok {
		return 0, errors.Wrapf(model.ErrOrderNotFound, "order %s on %s", key, ob.symbol)
	}
	if qty <= 0 || qty > o.Remaining {
		return o.Remaining, errors.Wrapf(model.ErrInvariantViolation, "reduce %s by %d with %d remaining", key, qty, o.Remaining)
	}
	o.Remaining -= qty
	if o.Remaining == 0 {
		if _, err := ob.Remove(orderID, sourceID); err != nil {
			return 0, err
		}
	}
	return o.Remaining, nil
}

// Len returns the number of resting orders.
func (ob *OrderBook) Len() int {
	return len(ob.index)
}

func (ob *OrderBook) LastPrice() decimal.Decimal {
	return ob.lastPrice
}

// NextTradeSeq stamps a fill with the book's trade counter and records its price.
func (ob *OrderBook) NextTradeSeq(price decimal.Decimal) uint64 {
	ob.tradeSeq++
	ob.lastPrice = price
	return ob.tradeSeq
}

// Snapshot copies both sides in priority order. The book is not modified.
func (ob *OrderBook) Snapshot() model.BookSnapshot {
	return model.BookSnapshot{
		Symbol: ob.symbol,
		Bids:   copySide(ob.bids),
		Asks:   copySide(ob.asks),
	}
}

func copySide(t *btree.BTreeG[*model.Order]) []model.Order {
	out := make([]model.Order, 0, t.Len())
	t.Scan(func(o *model.Order) bool {
		out = append(out, *o)
		return true
	})
	return out
}

// BidLevels returns aggregated bid levels, best (highest) first.
func (ob *OrderBook) BidLevels() []PriceLevel {
	return levels(ob.bids)
}

// AskLevels returns aggregated ask levels, best (lowest) first.
func (ob *OrderBook) AskLevels() []PriceLevel {
	return levels(ob.asks)
}

func levels(t *btree.BTreeG[*model.Order]) []PriceLevel {
	var out []PriceLevel
	t.Scan(func(o *model.Order) bool {
		if n := len(out); n > 0 && out[n-1].Price.Equal(o.Price) {
			out[n-1].Qty += o.Remaining
			out[n-1].Orders++
			return true
		}
		out = append(out, PriceLevel{Price: o.Price, Qty: o.Remaining, Orders: 1})
		return true
	})
	return out
}
