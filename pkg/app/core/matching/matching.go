// Package matching applies one message to one order book under price-time
// priority. Callers must hold exclusive access to the book.
package matching

import (
	"github.com/cockroachdb/errors"

	"github.com/uhyunpark/exchange/pkg/app/core/model"
	"github.com/uhyunpark/exchange/pkg/app/core/orderbook"
)

type Config struct {
	// RejectSelfMatch refuses placements that would trade against a resting
	// order of the same client. Off by default: self-matching is a normal fill.
	RejectSelfMatch bool
}

// Result is everything one message produced.
type Result struct {
	Trades []model.Trade
	Status model.Status
	// Event numbers the results of one book in application order, from 1.
	// Zero means the message never reached a book.
	Event uint64
}

type Matcher struct {
	cfg Config
}

func NewMatcher(cfg Config) *Matcher {
	return &Matcher{cfg: cfg}
}

// Place matches o against the book and rests whatever is left.
// o is owned by the book afterwards if it rests.
func (m *Matcher) Place(book *orderbook.OrderBook, o *model.Order) (Result, error) {
	msg := model.Message{Kind: model.KindPlace, Order: o}

	if err := validate(book, o); err != nil {
		return Result{Status: model.Rejection(msg, err)}, err
	}
	if _, exists := book.Get(o.ID, o.SourceID); exists {
		err := errors.Wrapf(model.ErrDuplicateOrder, "order %s already rests on %s", o.Key(), book.Symbol())
		return Result{Status: model.Rejection(msg, err)}, err
	}
	if m.cfg.RejectSelfMatch {
		if err := checkSelfMatch(book, o); err != nil {
			return Result{Status: model.Rejection(msg, err)}, err
		}
	}

	var trades []model.Trade
	for o.Remaining > 0 {
		resting, ok := book.BestOpposite(o.Side)
		if !ok || !crosses(o, resting) {
			break
		}
		qty := min(o.Remaining, resting.Remaining)
		trades = append(trades, newTrade(book, o, resting, qty))

		o.Remaining -= qty
		if _, err := book.Reduce(resting.ID, resting.SourceID, qty); err != nil {
			return Result{Trades: trades}, err
		}
	}

	if o.Remaining > 0 {
		if err := book.Insert(o); err != nil {
			// duplicates were ruled out above
			return Result{Trades: trades}, errors.Mark(err, model.ErrInvariantViolation)
		}
	}
	if book.Crossed() {
		return Result{Trades: trades}, errors.Wrapf(model.ErrInvariantViolation, "%s crossed after %s", book.Symbol(), o.Key())
	}

	return Result{
		Trades: trades,
		Status: model.Status{
			Kind:      model.StatusAccepted,
			Message:   msg.Kind.String(),
			Symbol:    o.Symbol,
			SourceID:  o.SourceID,
			OrderID:   o.ID,
			Sequence:  o.Sequence,
			Remaining: o.Remaining,
		},
	}, nil
}

// Cancel withdraws the order (c.OrderID, c.SourceID) from the book. Orders of
// other sources never match because the source is part of the key.
func (m *Matcher) Cancel(book *orderbook.OrderBook, c *model.CancelRequest) (Result, error) {
	msg := model.Message{Kind: model.KindCancel, Cancel: c}

	if c.OrderID == "" || c.SourceID == "" {
		err := errors.Wrap(model.ErrCancelRejected, "cancel without order or source id")
		return Result{Status: model.Rejection(msg, err)}, err
	}
	removed, err := book.Remove(c.OrderID, c.SourceID)
	if err != nil {
		err = errors.Mark(err, model.ErrCancelRejected)
		return Result{Status: model.Rejection(msg, err)}, err
	}
	return Result{
		Status: model.Status{
			Kind:      model.StatusCancelConfirmed,
			Message:   msg.Kind.String(),
			Symbol:    c.Symbol,
			SourceID:  c.SourceID,
			OrderID:   c.OrderID,
			Sequence:  c.Sequence,
			Remaining: removed.Remaining,
		},
	}, nil
}

func validate(book *orderbook.OrderBook, o *model.Order) error {
	switch {
	case o.ID == "" || o.SourceID == "":
		return errors.Wrap(model.ErrInvalidOrder, "missing order or source id")
	case o.Symbol != book.Symbol():
		return errors.Wrapf(model.ErrInvalidOrder, "symbol %q routed to %q", o.Symbol, book.Symbol())
	case !o.Side.Valid():
		return errors.Wrapf(model.ErrInvalidOrder, "order %s: bad side %d", o.Key(), o.Side)
	case o.Price.Sign() <= 0:
		return errors.Wrapf(model.ErrInvalidOrder, "order %s: price %s must be positive", o.Key(), o.Price)
	case o.Quantity <= 0:
		return errors.Wrapf(model.ErrInvalidOrder, "order %s: quantity %d must be positive", o.Key(), o.Quantity)
	case o.Remaining != o.Quantity:
		return errors.Wrapf(model.ErrInvalidOrder, "order %s: remaining %d differs from quantity %d", o.Key(), o.Remaining, o.Quantity)
	}
	return nil
}

func crosses(incoming, resting *model.Order) bool {
	if incoming.Side == model.Buy {
		return incoming.Price.Cmp(resting.Price) >= 0
	}
	return incoming.Price.Cmp(resting.Price) <= 0
}

// checkSelfMatch walks the orders o would consume and fails before any fill
// if one of them belongs to the same client.
func checkSelfMatch(book *orderbook.OrderBook, o *model.Order) error {
	if o.ClientID == "" {
		return nil
	}
	var err error
	left := o.Remaining
	book.ScanOpposite(o.Side, func(resting *model.Order) bool {
		if left <= 0 || !crosses(o, resting) {
			return false
		}
		if resting.ClientID == o.ClientID {
			err = errors.Wrapf(model.ErrSelfMatch, "order %s would trade with %s of client %s", o.Key(), resting.Key(), o.ClientID)
			return false
		}
		left -= resting.Remaining
		return true
	})
	return err
}

// newTrade prices the fill at the resting order's limit.
func newTrade(book *orderbook.OrderBook, incoming, resting *model.Order, qty int64) model.Trade {
	buy, sell := incoming, resting
	if incoming.Side == model.Sell {
		buy, sell = resting, incoming
	}
	return model.Trade{
		Seq:          book.NextTradeSeq(resting.Price),
		Symbol:       book.Symbol(),
		BuyOrderID:   buy.ID,
		BuySourceID:  buy.SourceID,
		BuyClientID:  buy.ClientID,
		SellOrderID:  sell.ID,
		SellSourceID: sell.SourceID,
		SellClientID: sell.ClientID,
		Price:        resting.Price,
		Quantity:     qty,
		RestingSide:  resting.Side,
	}
}
