package matching

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/uhyunpark/exchange/pkg/app/core/model"
	"github.com/uhyunpark/exchange/pkg/app/core/orderbook"
)

func newOrder(id, source string, side model.Side, price int64, qty int64, seq uint64) *model.Order {
	return &model.Order{
		ID:        id,
		SourceID:  source,
		ClientID:  source + "-client",
		Symbol:    "GFT",
		Side:      side,
		Price:     decimal.NewFromInt(price),
		Quantity:  qty,
		Remaining: qty,
		Sequence:  seq,
	}
}

func place(t *testing.T, m *Matcher, book *orderbook.OrderBook, o *model.Order) Result {
	t.Helper()
	res, err := m.Place(book, o)
	require.NoError(t, err)
	return res
}

func TestPlace_ExampleScenario(t *testing.T) {
	m := NewMatcher(Config{})
	book := orderbook.NewOrderBook("GFT")

	res := place(t, m, book, newOrder("a1", "A", model.Buy, 100, 10, 1))
	assert.Empty(t, res.Trades)
	assert.Equal(t, model.StatusAccepted, res.Status.Kind)
	assert.Equal(t, int64(10), res.Status.Remaining)

	res = place(t, m, book, newOrder("b1", "B", model.Sell, 99, 6, 1))
	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.True(t, tr.Price.Equal(decimal.NewFromInt(100)), "resting price wins")
	assert.Equal(t, int64(6), tr.Quantity)
	assert.Equal(t, "a1", tr.BuyOrderID)
	assert.Equal(t, "b1", tr.SellOrderID)
	assert.Equal(t, model.Buy, tr.RestingSide)
	assert.Equal(t, uint64(1), tr.Seq)
	assert.Zero(t, res.Status.Remaining)

	res = place(t, m, book, newOrder("a2", "A", model.Sell, 101, 4, 2))
	assert.Empty(t, res.Trades)

	snap := book.Snapshot()
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, "a1", snap.Bids[0].ID)
	assert.Equal(t, int64(4), snap.Bids[0].Remaining)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, "a2", snap.Asks[0].ID)
	assert.Equal(t, int64(4), snap.Asks[0].Remaining)
}

func TestPlace_SweepsLevelsInPriorityOrder(t *testing.T) {
	m := NewMatcher(Config{})
	book := orderbook.NewOrderBook("GFT")

	place(t, m, book, newOrder("s1", "X", model.Sell, 102, 5, 1))
	place(t, m, book, newOrder("s2", "Y", model.Sell, 101, 5, 2))
	place(t, m, book, newOrder("s3", "X", model.Sell, 101, 5, 3))
	place(t, m, book, newOrder("s4", "Y", model.Sell, 103, 5, 4))

	res := place(t, m, book, newOrder("b1", "Z", model.Buy, 102, 12, 5))
	require.Len(t, res.Trades, 3)

	var got []string
	for _, tr := range res.Trades {
		got = append(got, tr.SellOrderID+"@"+tr.Price.String())
	}
	assert.Equal(t, []string{"s2@101", "s3@101", "s1@102"}, got)
	assert.Equal(t, int64(2), res.Trades[2].Quantity)
	assert.Equal(t, uint64(3), res.Trades[2].Seq)

	// s1 keeps 3, s4 untouched, incoming fully filled
	assert.Zero(t, res.Status.Remaining)
	rest, ok := book.Get("s1", "X")
	require.True(t, ok)
	assert.Equal(t, int64(3), rest.Remaining)
	assert.Equal(t, 2, book.Len())
}

func TestPlace_PartialFillRests(t *testing.T) {
	m := NewMatcher(Config{})
	book := orderbook.NewOrderBook("GFT")

	place(t, m, book, newOrder("b1", "A", model.Buy, 100, 3, 1))
	res := place(t, m, book, newOrder("s1", "B", model.Sell, 100, 10, 2))

	require.Len(t, res.Trades, 1)
	assert.Equal(t, int64(7), res.Status.Remaining)
	ask, ok := book.BestAsk()
	require.True(t, ok)
	assert.Equal(t, "s1", ask.ID)
	assert.Equal(t, int64(7), ask.Remaining)
	_, ok = book.BestBid()
	assert.False(t, ok)
}

func TestPlace_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *model.Order)
	}{
		{"zero price", func(o *model.Order) { o.Price = decimal.Zero }},
		{"negative price", func(o *model.Order) { o.Price = decimal.NewFromInt(-1) }},
		{"zero quantity", func(o *model.Order) { o.Quantity, o.Remaining = 0, 0 }},
		{"negative quantity", func(o *model.Order) { o.Quantity, o.Remaining = -5, -5 }},
		{"missing id", func(o *model.Order) { o.ID = "" }},
		{"missing source", func(o *model.Order) { o.SourceID = "" }},
		{"bad side", func(o *model.Order) { o.Side = 3 }},
		{"wrong symbol", func(o *model.Order) { o.Symbol = "ACME" }},
		{"already filled", func(o *model.Order) { o.Remaining = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMatcher(Config{})
			book := orderbook.NewOrderBook("GFT")
			place(t, m, book, newOrder("rest", "A", model.Sell, 1, 10, 1))

			o := newOrder("x", "B", model.Buy, 100, 5, 2)
			tt.mutate(o)
			res, err := m.Place(book, o)
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrInvalidOrder))
			assert.False(t, model.Fatal(err))
			assert.Equal(t, model.StatusRejected, res.Status.Kind)
			assert.Empty(t, res.Trades)
			assert.Equal(t, 1, book.Len(), "book untouched")
		})
	}
}

func TestPlace_DuplicateRejectedBeforeMatching(t *testing.T) {
	m := NewMatcher(Config{})
	book := orderbook.NewOrderBook("GFT")
	place(t, m, book, newOrder("o1", "A", model.Buy, 100, 5, 1))
	place(t, m, book, newOrder("s1", "B", model.Sell, 105, 5, 2))

	res, err := m.Place(book, newOrder("o1", "A", model.Buy, 110, 5, 3))
	assert.True(t, errors.Is(err, model.ErrDuplicateOrder))
	assert.Empty(t, res.Trades)
	_, ok := book.Get("s1", "B")
	assert.True(t, ok, "no fill happened")
}

func TestPlace_SelfMatch(t *testing.T) {
	rest := newOrder("s1", "A", model.Sell, 100, 5, 1)
	incoming := func() *model.Order { return newOrder("b1", "A", model.Buy, 100, 5, 2) }

	t.Run("allowed by default", func(t *testing.T) {
		m := NewMatcher(Config{})
		book := orderbook.NewOrderBook("GFT")
		r := *rest
		place(t, m, book, &r)
		res := place(t, m, book, incoming())
		assert.Len(t, res.Trades, 1)
	})

	t.Run("rejected when configured", func(t *testing.T) {
		m := NewMatcher(Config{RejectSelfMatch: true})
		book := orderbook.NewOrderBook("GFT")
		r := *rest
		place(t, m, book, &r)
		res, err := m.Place(book, incoming())
		assert.True(t, errors.Is(err, model.ErrSelfMatch))
		assert.Equal(t, model.StatusRejected, res.Status.Kind)
		assert.Equal(t, 1, book.Len())
	})

	t.Run("only orders it would reach count", func(t *testing.T) {
		m := NewMatcher(Config{RejectSelfMatch: true})
		book := orderbook.NewOrderBook("GFT")
		place(t, m, book, newOrder("other", "B", model.Sell, 100, 5, 1))
		place(t, m, book, newOrder("own", "A", model.Sell, 101, 5, 2))
		res := place(t, m, book, newOrder("b1", "A", model.Buy, 101, 5, 3))
		require.Len(t, res.Trades, 1)
		assert.Equal(t, "other", res.Trades[0].SellOrderID)
	})
}

func TestCancel(t *testing.T) {
	m := NewMatcher(Config{})
	book := orderbook.NewOrderBook("GFT")
	place(t, m, book, newOrder("o1", "A", model.Buy, 100, 5, 1))

	t.Run("other source cannot cancel", func(t *testing.T) {
		res, err := m.Cancel(book, &model.CancelRequest{OrderID: "o1", SourceID: "B", Symbol: "GFT", Sequence: 2})
		assert.True(t, errors.Is(err, model.ErrCancelRejected))
		assert.True(t, errors.Is(err, model.ErrOrderNotFound))
		assert.Equal(t, model.StatusCancelRejected, res.Status.Kind)
		assert.Equal(t, 1, book.Len())
	})

	t.Run("owner cancels", func(t *testing.T) {
		res, err := m.Cancel(book, &model.CancelRequest{OrderID: "o1", SourceID: "A", Symbol: "GFT", Sequence: 3})
		require.NoError(t, err)
		assert.Equal(t, model.StatusCancelConfirmed, res.Status.Kind)
		assert.Equal(t, int64(5), res.Status.Remaining)
		assert.Zero(t, book.Len())
	})

	t.Run("second cancel rejected", func(t *testing.T) {
		_, err := m.Cancel(book, &model.CancelRequest{OrderID: "o1", SourceID: "A", Symbol: "GFT", Sequence: 4})
		assert.True(t, errors.Is(err, model.ErrCancelRejected))
	})

	t.Run("missing ids", func(t *testing.T) {
		_, err := m.Cancel(book, &model.CancelRequest{Symbol: "GFT"})
		assert.True(t, errors.Is(err, model.ErrCancelRejected))
	})
}

func TestCancel_FilledOrderIsGone(t *testing.T) {
	m := NewMatcher(Config{})
	book := orderbook.NewOrderBook("GFT")
	place(t, m, book, newOrder("o1", "A", model.Buy, 100, 5, 1))
	place(t, m, book, newOrder("s1", "B", model.Sell, 100, 5, 2))

	_, err := m.Cancel(book, &model.CancelRequest{OrderID: "o1", SourceID: "A", Symbol: "GFT", Sequence: 3})
	assert.True(t, errors.Is(err, model.ErrCancelRejected))
}

// Random placements keep the book uncrossed and conserve quantity: what an
// order lost from its open quantity was traded.
func TestPlace_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := NewMatcher(Config{})
		book := orderbook.NewOrderBook("GFT")
		n := rapid.IntRange(1, 60).Draw(t, "n")

		var placedQty, tradedQty int64
		for i := 0; i < n; i++ {
			side := model.Buy
			if rapid.Bool().Draw(t, "sell") {
				side = model.Sell
			}
			price := rapid.Int64Range(95, 105).Draw(t, "price")
			qty := rapid.Int64Range(1, 20).Draw(t, "qty")
			o := newOrder(fmt.Sprintf("o%d", i), "S", side, price, qty, uint64(i+1))

			res, err := m.Place(book, o)
			if err != nil {
				t.Fatalf("place %d: %v", i, err)
			}
			placedQty += qty
			var filled int64
			for _, tr := range res.Trades {
				if tr.Quantity <= 0 {
					t.Fatalf("non-positive fill %d", tr.Quantity)
				}
				if side == model.Buy && tr.Price.GreaterThan(o.Price) {
					t.Fatalf("buy %s filled above limit at %s", o.Price, tr.Price)
				}
				if side == model.Sell && tr.Price.LessThan(o.Price) {
					t.Fatalf("sell %s filled below limit at %s", o.Price, tr.Price)
				}
				filled += tr.Quantity
			}
			if filled+res.Status.Remaining != qty {
				t.Fatalf("incoming %d: filled %d + remaining %d", qty, filled, res.Status.Remaining)
			}
			tradedQty += filled
			if book.Crossed() {
				t.Fatalf("book crossed after %d", i)
			}
		}

		var resting int64
		snap := book.Snapshot()
		for _, o := range append(snap.Bids, snap.Asks...) {
			resting += o.Remaining
		}
		// each trade consumes quantity from two orders
		if placedQty != resting+2*tradedQty {
			t.Fatalf("placed %d != resting %d + 2*traded %d", placedQty, resting, tradedQty)
		}
	})
}
