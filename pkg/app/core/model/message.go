package model

// MessageKind classifies ingested messages.
type MessageKind int

const (
	KindPlace MessageKind = iota
	KindCancel
	KindEndOfStream
)

func (k MessageKind) String() string {
	switch k {
	case KindPlace:
		return "place"
	case KindCancel:
		return "cancel"
	case KindEndOfStream:
		return "eos"
	default:
		return "unknown"
	}
}

// Message is one record of a source feed. Exactly one of Order or Cancel is
// set for placements and cancellations; Source carries the origin of an
// end-of-stream marker.
type Message struct {
	Kind   MessageKind
	Order  *Order
	Cancel *CancelRequest
	Source string
}

func Place(o Order) Message {
	if o.Remaining == 0 {
		o.Remaining = o.Quantity
	}
	return Message{Kind: KindPlace, Order: &o}
}

func Cancel(c CancelRequest) Message {
	return Message{Kind: KindCancel, Cancel: &c}
}

func EndOfStream(source string) Message {
	return Message{Kind: KindEndOfStream, Source: source}
}

func (m Message) SourceID() string {
	switch m.Kind {
	case KindPlace:
		if m.Order != nil {
			return m.Order.SourceID
		}
	case KindCancel:
		if m.Cancel != nil {
			return m.Cancel.SourceID
		}
	}
	return m.Source
}

func (m Message) Symbol() string {
	switch m.Kind {
	case KindPlace:
		if m.Order != nil {
			return m.Order.Symbol
		}
	case KindCancel:
		if m.Cancel != nil {
			return m.Cancel.Symbol
		}
	}
	return ""
}

func (m Message) Sequence() uint64 {
	switch m.Kind {
	case KindPlace:
		if m.Order != nil {
			return m.Order.Sequence
		}
	case KindCancel:
		if m.Cancel != nil {
			return m.Cancel.Sequence
		}
	}
	return 0
}

func (m Message) OrderID() string {
	switch m.Kind {
	case KindPlace:
		if m.Order != nil {
			return m.Order.ID
		}
	case KindCancel:
		if m.Cancel != nil {
			return m.Cancel.OrderID
		}
	}
	return ""
}

func (m Message) Rank() Rank {
	return Rank{Sequence: m.Sequence(), SourceID: m.SourceID()}
}
