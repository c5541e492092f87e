package model

// StatusKind is the terminal outcome of one processed message.
type StatusKind int

const (
	StatusAccepted StatusKind = iota
	StatusCancelConfirmed
	StatusCancelRejected
	StatusRejected
)

func (k StatusKind) String() string {
	switch k {
	case StatusAccepted:
		return "accepted"
	case StatusCancelConfirmed:
		return "cancel_confirmed"
	case StatusCancelRejected:
		return "cancel_rejected"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

func (k StatusKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Status reports what happened to one message.
// Remaining is the open quantity left on the book for accepted placements,
// and the withdrawn quantity for confirmed cancels.
type Status struct {
	Kind      StatusKind `json:"kind"`
	Message   string     `json:"message"` // place, cancel
	Symbol    string     `json:"symbol"`
	SourceID  string     `json:"sourceId"`
	OrderID   string     `json:"orderId"`
	Sequence  uint64     `json:"sequence"`
	Remaining int64      `json:"remaining"`
	Reason    string     `json:"reason,omitempty"`
	Err       error      `json:"-"`
}

// Rejection builds the status published for a message that failed with err.
func Rejection(msg Message, err error) Status {
	kind := StatusRejected
	if msg.Kind == KindCancel {
		kind = StatusCancelRejected
	}
	return Status{
		Kind:     kind,
		Message:  msg.Kind.String(),
		Symbol:   msg.Symbol(),
		SourceID: msg.SourceID(),
		OrderID:  msg.OrderID(),
		Sequence: msg.Sequence(),
		Reason:   err.Error(),
		Err:      err,
	}
}

// Publisher receives engine results. Calls are synchronous and never made
// while a book lock is held. Implementations must be safe for concurrent use.
type Publisher interface {
	OnTrade(t Trade)
	OnStatus(s Status)
	OnSnapshot(s BookSnapshot)
	OnShutdown()
}
