package feed

import (
	"fmt"
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/exchange/pkg/app/core/model"
)

// GeneratorConfig controls synthetic broker traffic.
type GeneratorConfig struct {
	Sources           []string
	Symbols           []string
	MessagesPerSource int
	NumClients        int   // simulated clients per source
	CancelPct         int   // share of cancels, 0-100
	Seed              int64 // same seed, same messages
	BasePrice         decimal.Decimal
	TickSize          decimal.Decimal
	PriceTicks        int // prices spread over BasePrice ± PriceTicks ticks
	MaxQty            int64
}

// DefaultGeneratorConfig returns a modest two-broker workload.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Sources:           []string{"broker-1", "broker-2"},
		Symbols:           []string{"GFT", "ACME"},
		MessagesPerSource: 1000,
		NumClients:        20,
		CancelPct:         10,
		Seed:              1,
		BasePrice:         decimal.NewFromInt(100),
		TickSize:          decimal.RequireFromString("0.01"),
		PriceTicks:        50,
		MaxQty:            100,
	}
}

// Generator creates random placements and cancels, per source, with strictly
// increasing sequence numbers. Cancels target orders the same source placed.
type Generator struct {
	cfg GeneratorConfig
}

func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.NumClients <= 0 {
		cfg.NumClients = 1
	}
	if cfg.MaxQty <= 0 {
		cfg.MaxQty = 1
	}
	if cfg.TickSize.Sign() <= 0 {
		cfg.TickSize = decimal.NewFromInt(1)
	}
	if cfg.BasePrice.Sign() <= 0 {
		cfg.BasePrice = decimal.NewFromInt(100)
	}
	return &Generator{cfg: cfg}
}

// Messages generates the stream of one source, without end-of-stream marker.
func (g *Generator) Messages(sourceIdx int) []model.Message {
	source := g.cfg.Sources[sourceIdx]
	rng := rand.New(rand.NewSource(g.cfg.Seed + int64(sourceIdx)*7919))

	var (
		out    []model.Message
		placed []model.Order
		seq    uint64
	)
	for i := 0; i < g.cfg.MessagesPerSource; i++ {
		seq += uint64(1 + rng.Intn(3)) // gaps interleave sources

		if len(placed) > 0 && rng.Intn(100) < g.cfg.CancelPct {
			// cancel one of the last 100 placements
			recent := placed
			if len(recent) > 100 {
				recent = recent[len(recent)-100:]
			}
			target := recent[rng.Intn(len(recent))]
			out = append(out, model.Cancel(model.CancelRequest{
				OrderID:  target.ID,
				SourceID: source,
				Symbol:   target.Symbol,
				Sequence: seq,
			}))
			continue
		}

		side := model.Buy
		if rng.Intn(2) == 1 {
			side = model.Sell
		}
		ticks := rng.Intn(2*g.cfg.PriceTicks+1) - g.cfg.PriceTicks
		price := g.cfg.BasePrice.Add(g.cfg.TickSize.Mul(decimal.NewFromInt(int64(ticks))))
		if price.Sign() <= 0 {
			price = g.cfg.TickSize
		}
		qty := rng.Int63n(g.cfg.MaxQty) + 1

		o := model.Order{
			ID:       fmt.Sprintf("%s-o%d", source, i+1),
			SourceID: source,
			ClientID: fmt.Sprintf("%s-client-%d", source, rng.Intn(g.cfg.NumClients)+1),
			Symbol:   g.cfg.Symbols[rng.Intn(len(g.cfg.Symbols))],
			Side:     side,
			Price:    price,
			Quantity: qty,
			Sequence: seq,
		}
		placed = append(placed, o)
		out = append(out, model.Place(o))
	}
	return out
}

// Feeds returns one closed queue per configured source.
func (g *Generator) Feeds() []Feed {
	feeds := make([]Feed, len(g.cfg.Sources))
	for i, s := range g.cfg.Sources {
		feeds[i] = FromMessages(s, g.Messages(i)...)
	}
	return feeds
}
