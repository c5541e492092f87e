package feed

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/exchange/pkg/app/core/model"
)

func TestQueue_FIFOThenEndOfStream(t *testing.T) {
	ctx := context.Background()
	q := NewQueue("A")
	require.NoError(t, q.Push(model.Cancel(model.CancelRequest{OrderID: "1", SourceID: "A", Sequence: 1})))
	require.NoError(t, q.Push(model.Cancel(model.CancelRequest{OrderID: "2", SourceID: "A", Sequence: 2})))
	q.Close()
	assert.Equal(t, 3, q.Len())

	m, err := q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", m.OrderID())
	m, err = q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2", m.OrderID())
	m, err = q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.KindEndOfStream, m.Kind)
	assert.Equal(t, "A", m.SourceID())

	_, err = q.Next(ctx)
	assert.True(t, errors.Is(err, ErrDrained))
	assert.True(t, errors.Is(q.Push(model.EndOfStream("A")), ErrClosed))
}

func TestQueue_NextBlocksUntilPush(t *testing.T) {
	q := NewQueue("A")
	got := make(chan model.Message, 1)
	go func() {
		m, err := q.Next(context.Background())
		if err == nil {
			got <- m
		}
	}()

	select {
	case <-got:
		t.Fatal("Next returned before anything was pushed")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, q.Push(model.Cancel(model.CancelRequest{OrderID: "x", SourceID: "A", Sequence: 1})))
	select {
	case m := <-got:
		assert.Equal(t, "x", m.OrderID())
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not wake up")
	}
}

func TestQueue_NextHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := NewQueue("A").Next(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestGenerator_Deterministic(t *testing.T) {
	cfg := DefaultGeneratorConfig()
	cfg.MessagesPerSource = 300

	a := NewGenerator(cfg).Messages(0)
	b := NewGenerator(cfg).Messages(0)
	require.Len(t, a, 300)
	assert.Equal(t, a, b)

	other := NewGenerator(cfg).Messages(1)
	assert.NotEqual(t, a, other, "sources get distinct streams")

	cfg.Seed = 99
	assert.NotEqual(t, a, NewGenerator(cfg).Messages(0))
}

func TestGenerator_StreamShape(t *testing.T) {
	cfg := DefaultGeneratorConfig()
	cfg.MessagesPerSource = 500
	cfg.CancelPct = 30
	g := NewGenerator(cfg)

	for i, src := range cfg.Sources {
		placed := make(map[string]string) // id -> symbol
		var last uint64
		var cancels int
		for _, m := range g.Messages(i) {
			require.Equal(t, src, m.SourceID())
			require.Greater(t, m.Sequence(), last, "sequences strictly increase")
			last = m.Sequence()

			switch m.Kind {
			case model.KindPlace:
				o := m.Order
				require.True(t, o.Price.IsPositive())
				require.Positive(t, o.Quantity)
				require.Equal(t, o.Quantity, o.Remaining)
				require.Contains(t, cfg.Symbols, o.Symbol)
				placed[o.ID] = o.Symbol
			case model.KindCancel:
				cancels++
				sym, ok := placed[m.Cancel.OrderID]
				require.True(t, ok, "cancels target earlier placements of the same source")
				require.Equal(t, sym, m.Cancel.Symbol)
			}
		}
		assert.Positive(t, cancels)
	}

	feeds := g.Feeds()
	require.Len(t, feeds, len(cfg.Sources))
	assert.Equal(t, cfg.Sources[1], feeds[1].SourceID())
}

func TestRecord_RoundTrip(t *testing.T) {
	msgs := []model.Message{
		model.Place(model.Order{
			ID: "o1", SourceID: "b1", ClientID: "c1", Symbol: "GFT", Side: model.Sell,
			Price: decimal.RequireFromString("100.25"), Quantity: 7, Sequence: 3,
		}),
		model.Cancel(model.CancelRequest{OrderID: "o1", SourceID: "b1", Symbol: "GFT", Sequence: 4}),
		model.EndOfStream("b1"),
	}
	for _, m := range msgs {
		t.Run(m.Kind.String(), func(t *testing.T) {
			b, err := EncodeRecord(m)
			require.NoError(t, err)
			got, err := DecodeRecord(b)
			require.NoError(t, err)

			assert.Equal(t, m.Kind, got.Kind)
			assert.Equal(t, m.SourceID(), got.SourceID())
			assert.Equal(t, m.Sequence(), got.Sequence())
			assert.Equal(t, m.OrderID(), got.OrderID())
			assert.Equal(t, m.Symbol(), got.Symbol())
			if m.Kind == model.KindPlace {
				assert.True(t, m.Order.Price.Equal(got.Order.Price))
				assert.Equal(t, m.Order.Side, got.Order.Side)
				assert.Equal(t, int64(7), got.Order.Remaining)
			}
		})
	}
}

func TestDecodeRecord(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
		kind    model.MessageKind
	}{
		{"order", `{"type":"order","id":"o1","source":"b1","symbol":"GFT","side":"buy","price":"10.5","quantity":3,"sequence":1}`, false, model.KindPlace},
		{"cancel", `{"type":"CANCEL","id":"o1","source":"b1","symbol":"GFT","sequence":2}`, false, model.KindCancel},
		{"eos", `{"type":"eos","source":"b1"}`, false, model.KindEndOfStream},
		{"missing source", `{"type":"eos"}`, true, 0},
		{"unknown type", `{"type":"modify","source":"b1"}`, true, 0},
		{"bad side", `{"type":"order","id":"o1","source":"b1","side":"hold"}`, true, 0},
		{"not json", `order o1`, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := DecodeRecord([]byte(tt.in))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrBadRecord))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, m.Kind)
		})
	}
}

func TestDecodeRecord_OrderWithoutPriceIsLeftToValidation(t *testing.T) {
	m, err := DecodeRecord([]byte(`{"type":"order","id":"o1","source":"b1","symbol":"GFT","side":"SELL","quantity":3,"sequence":1}`))
	require.NoError(t, err)
	assert.True(t, m.Order.Price.IsZero())
}
