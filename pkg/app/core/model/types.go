package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the side an incoming order of side s trades against.
func (s Side) Opposite() Side {
	return -s
}

// Valid reports whether s is Buy or Sell.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Rank is the sequence-rank of a message within one security.
// Sequence is authoritative; SourceID breaks ties between sources.
type Rank struct {
	Sequence uint64
	SourceID string
}

// Less reports whether r sorts before o.
func (r Rank) Less(o Rank) bool {
	if r.Sequence != o.Sequence {
		return r.Sequence < o.Sequence
	}
	return r.SourceID < o.SourceID
}

func (r Rank) String() string {
	return fmt.Sprintf("%d@%s", r.Sequence, r.SourceID)
}

// Order is a limit order as delivered by a broker source.
// Remaining is the only field the engine mutates; it never grows.
type Order struct {
	ID        string          `json:"id"`
	SourceID  string          `json:"sourceId"`
	ClientID  string          `json:"clientId"`
	Symbol    string          `json:"symbol"`
	Side      Side            `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`  // original quantity
	Remaining int64           `json:"remaining"` // open quantity
	Sequence  uint64          `json:"sequence"`
}

func (o *Order) Rank() Rank {
	return Rank{Sequence: o.Sequence, SourceID: o.SourceID}
}

func (o *Order) Key() OrderKey {
	return OrderKey{SourceID: o.SourceID, OrderID: o.ID}
}

// OrderKey identifies an order: ids are only unique within their source.
type OrderKey struct {
	SourceID string
	OrderID  string
}

func (k OrderKey) String() string {
	return k.SourceID + "/" + k.OrderID
}

// CancelRequest withdraws a resting order placed by the same source.
type CancelRequest struct {
	OrderID  string `json:"orderId"`
	SourceID string `json:"sourceId"`
	Symbol   string `json:"symbol"`
	Sequence uint64 `json:"sequence"`
}

func (c *CancelRequest) Rank() Rank {
	return Rank{Sequence: c.Sequence, SourceID: c.SourceID}
}

func (c *CancelRequest) Key() OrderKey {
	return OrderKey{SourceID: c.SourceID, OrderID: c.OrderID}
}

// Trade is created once per fill and never mutated.
type Trade struct {
	Seq          uint64          `json:"seq"` // per-symbol, assigned under the book lock
	Symbol       string          `json:"symbol"`
	BuyOrderID   string          `json:"buyOrderId"`
	BuySourceID  string          `json:"buySourceId"`
	BuyClientID  string          `json:"buyClientId"`
	SellOrderID  string          `json:"sellOrderId"`
	SellSourceID string          `json:"sellSourceId"`
	SellClientID string          `json:"sellClientId"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int64           `json:"quantity"`
	RestingSide  Side            `json:"restingSide"`
}

// BookSnapshot is an ordered copy of one book: bids best first, asks best first.
type BookSnapshot struct {
	Symbol string  `json:"symbol"`
	Bids   []Order `json:"bids"`
	Asks   []Order `json:"asks"`
}

// Empty reports whether neither side holds an order.
func (s BookSnapshot) Empty() bool {
	return len(s.Bids) == 0 && len(s.Asks) == 0
}
