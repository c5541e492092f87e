package feed

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/exchange/pkg/app/core/model"
)

// Record is the JSON envelope brokers send:
//
//	{"type":"order","id":"o1","source":"b1","client":"c1","symbol":"GFT","side":"BUY","price":"100.5","quantity":10,"sequence":1}
//	{"type":"cancel","id":"o1","source":"b1","symbol":"GFT","sequence":2}
//	{"type":"eos","source":"b1"}
type Record struct {
	Type     string           `json:"type"`
	ID       string           `json:"id,omitempty"`
	Source   string           `json:"source"`
	Client   string           `json:"client,omitempty"`
	Symbol   string           `json:"symbol,omitempty"`
	Side     string           `json:"side,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Quantity int64            `json:"quantity,omitempty"`
	Sequence uint64           `json:"sequence,omitempty"`
}

var ErrBadRecord = errors.New("bad record")

// DecodeRecord parses one wire record.
func DecodeRecord(b []byte) (model.Message, error) {
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return model.Message{}, errors.Mark(errors.Wrap(err, "decode record"), ErrBadRecord)
	}
	return r.Message()
}

// Message converts the record into an engine message.
func (r Record) Message() (model.Message, error) {
	if r.Source == "" {
		return model.Message{}, errors.Wrap(ErrBadRecord, "record without source")
	}
	switch strings.ToLower(r.Type) {
	case "order":
		var side model.Side
		switch strings.ToUpper(r.Side) {
		case "BUY":
			side = model.Buy
		case "SELL":
			side = model.Sell
		default:
			return model.Message{}, errors.Wrapf(ErrBadRecord, "order %s: side %q", r.ID, r.Side)
		}
		var price decimal.Decimal
		if r.Price != nil {
			price = *r.Price
		}
		return model.Place(model.Order{
			ID:       r.ID,
			SourceID: r.Source,
			ClientID: r.Client,
			Symbol:   r.Symbol,
			Side:     side,
			Price:    price,
			Quantity: r.Quantity,
			Sequence: r.Sequence,
		}), nil
	case "cancel":
		return model.Cancel(model.CancelRequest{
			OrderID:  r.ID,
			SourceID: r.Source,
			Symbol:   r.Symbol,
			Sequence: r.Sequence,
		}), nil
	case "eos":
		return model.EndOfStream(r.Source), nil
	default:
		return model.Message{}, errors.Wrapf(ErrBadRecord, "unknown type %q", r.Type)
	}
}

// RecordOf is the inverse of Record.Message.
func RecordOf(msg model.Message) Record {
	switch {
	case msg.Kind == model.KindPlace && msg.Order != nil:
		o := msg.Order
		price := o.Price
		return Record{
			Type:     "order",
			ID:       o.ID,
			Source:   o.SourceID,
			Client:   o.ClientID,
			Symbol:   o.Symbol,
			Side:     o.Side.String(),
			Price:    &price,
			Quantity: o.Quantity,
			Sequence: o.Sequence,
		}
	case msg.Kind == model.KindCancel && msg.Cancel != nil:
		c := msg.Cancel
		return Record{Type: "cancel", ID: c.OrderID, Source: c.SourceID, Symbol: c.Symbol, Sequence: c.Sequence}
	default:
		return Record{Type: "eos", Source: msg.SourceID()}
	}
}

// EncodeRecord renders msg in the wire format.
func EncodeRecord(msg model.Message) ([]byte, error) {
	return json.Marshal(RecordOf(msg))
}
