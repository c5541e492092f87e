package api

import (
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/exchange/pkg/app/core/model"
)

// API response types for REST endpoints and WebSocket messages

// StatusResponse describes the running engine.
type StatusResponse struct {
	RunID   string   `json:"runId"`
	Mode    string   `json:"mode"`
	State   string   `json:"state"`
	Sources []string `json:"sources"`
	Symbols []string `json:"symbols"`
	Digest  string   `json:"digest,omitempty"` // set once finalized

	// WebSocket clients connected to the result channels
	WSClients int `json:"wsClients"`
}

// BookResponse is the aggregated view of one book, plus its orders when
// requested with ?orders=true.
type BookResponse struct {
	Symbol string        `json:"symbol"`
	Bids   []PriceLevel  `json:"bids"` // best first
	Asks   []PriceLevel  `json:"asks"` // best first
	Orders *OrdersDetail `json:"orders,omitempty"`
}

type OrdersDetail struct {
	Bids []model.Order `json:"bids"`
	Asks []model.Order `json:"asks"`
}

type PriceLevel struct {
	Price  decimal.Decimal `json:"price"`
	Size   int64           `json:"size"`
	Orders int             `json:"orders"`
}

type TradesResponse struct {
	Symbol string        `json:"symbol"`
	Trades []model.Trade `json:"trades"`
}

// SubmitResponse reports whether a submitted message was admitted.
type SubmitResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WSSubscribeRequest is sent by clients: {"op":"subscribe","channels":["trades:GFT"]}
type WSSubscribeRequest struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}

// WSMessage wraps every pushed event.
type WSMessage struct {
	Channel string `json:"channel"`
	Type    string `json:"type"` // trade, status, snapshot, shutdown
	Data    any    `json:"data,omitempty"`
}
