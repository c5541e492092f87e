package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/exchange/pkg/app/core/matching"
	"github.com/uhyunpark/exchange/pkg/app/core/model"
)

func placeMsg(id, source, symbol string, side model.Side, price, qty int64, seq uint64) model.Message {
	return model.Place(model.Order{
		ID:       id,
		SourceID: source,
		Symbol:   symbol,
		Side:     side,
		Price:    decimal.NewFromInt(price),
		Quantity: qty,
		Sequence: seq,
	})
}

func TestRegistry_CreatesBooksLazily(t *testing.T) {
	r := NewRegistry(matching.NewMatcher(matching.Config{}))
	assert.Zero(t, r.Count())
	assert.False(t, r.Exists("GFT"))

	_, ok := r.Snapshot("GFT")
	assert.False(t, ok, "reads do not create books")
	assert.Zero(t, r.Count())

	_, err := r.Route(placeMsg("o1", "A", "GFT", model.Buy, 100, 5, 1))
	require.NoError(t, err)
	_, err = r.Route(placeMsg("o2", "A", "ACME", model.Sell, 50, 5, 2))
	require.NoError(t, err)

	assert.Equal(t, []string{"ACME", "GFT"}, r.Symbols())
	snaps := r.SnapshotAll()
	require.Len(t, snaps, 2)
	assert.Equal(t, "ACME", snaps[0].Symbol)
	assert.Len(t, snaps[1].Bids, 1)

	bids, asks, ok := r.Levels("GFT")
	require.True(t, ok)
	assert.Len(t, bids, 1)
	assert.Empty(t, asks)
}

func TestRegistry_SymbolsAreIsolated(t *testing.T) {
	r := NewRegistry(matching.NewMatcher(matching.Config{}))
	_, err := r.Route(placeMsg("b", "A", "GFT", model.Buy, 100, 5, 1))
	require.NoError(t, err)

	res, err := r.Route(placeMsg("s", "B", "ACME", model.Sell, 90, 5, 2))
	require.NoError(t, err)
	assert.Empty(t, res.Trades, "orders on different symbols never trade")
}

func TestRegistry_RouteRejects(t *testing.T) {
	r := NewRegistry(matching.NewMatcher(matching.Config{}))

	tests := []struct {
		name    string
		msg     model.Message
		wantErr error
		kind    model.StatusKind
	}{
		{"place without body", model.Message{Kind: model.KindPlace}, model.ErrInvalidOrder, model.StatusRejected},
		{"cancel without body", model.Message{Kind: model.KindCancel}, model.ErrInvalidOrder, model.StatusCancelRejected},
		{"end of stream", model.EndOfStream("A"), model.ErrInvalidOrder, model.StatusRejected},
		{"place without symbol", placeMsg("o", "A", "", model.Buy, 1, 1, 1), model.ErrInvalidOrder, model.StatusRejected},
		{"cancel without symbol", model.Cancel(model.CancelRequest{OrderID: "o", SourceID: "A", Sequence: 2}), model.ErrCancelRejected, model.StatusCancelRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Route(tt.msg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Equal(t, tt.kind, res.Status.Kind)
		})
	}
	assert.Zero(t, r.Count())
}

func TestRegistry_DoesNotMutateMessage(t *testing.T) {
	r := NewRegistry(matching.NewMatcher(matching.Config{}))
	_, err := r.Route(placeMsg("b", "A", "GFT", model.Buy, 100, 5, 1))
	require.NoError(t, err)

	msg := placeMsg("s", "B", "GFT", model.Sell, 100, 3, 2)
	res, err := r.Route(msg)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, int64(3), msg.Order.Remaining)
}

func TestRegistry_ConcurrentRouting(t *testing.T) {
	r := NewRegistry(matching.NewMatcher(matching.Config{}))
	symbols := []string{"S0", "S1", "S2", "S3"}
	const perWorker = 200

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			src := fmt.Sprintf("src-%d", w)
			side := model.Buy
			if w%2 == 1 {
				side = model.Sell
			}
			for i := 0; i < perWorker; i++ {
				sym := symbols[i%len(symbols)]
				_, err := r.Route(placeMsg(fmt.Sprintf("o%d", i), src, sym, side, int64(95+i%10), 1, uint64(i+1)))
				if err != nil {
					t.Errorf("route: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Len(t, r.Symbols(), len(symbols))
	for _, snap := range r.SnapshotAll() {
		if len(snap.Bids) > 0 && len(snap.Asks) > 0 {
			assert.True(t, snap.Bids[0].Price.LessThan(snap.Asks[0].Price), "%s crossed", snap.Symbol)
		}
	}
}

func TestRegistry_EventNumbersPerBook(t *testing.T) {
	r := NewRegistry(matching.NewMatcher(matching.Config{}))

	res, err := r.Route(placeMsg("o1", "A", "GFT", model.Buy, 100, 5, 1))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Event)

	res, err = r.Route(placeMsg("o2", "A", "ACME", model.Buy, 100, 5, 2))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Event, "each book counts on its own")

	// rejections inside a book still take a number
	res, err = r.Route(placeMsg("o1", "A", "GFT", model.Buy, 100, 5, 3))
	require.Error(t, err)
	assert.Equal(t, uint64(2), res.Event)

	res, err = r.Route(model.Cancel(model.CancelRequest{OrderID: "o1", SourceID: "A", Sequence: 4}))
	require.Error(t, err)
	assert.Zero(t, res.Event, "unrouted messages are not numbered")
}
