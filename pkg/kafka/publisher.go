package kafka

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/exchange/pkg/app/core/model"
)

// Event is the record written to the results topic. Exactly one of the
// payload fields is set, matching Type.
type Event struct {
	Type     string              `json:"type"` // trade, status, snapshot, shutdown
	RunID    string              `json:"runId,omitempty"`
	Trade    *model.Trade        `json:"trade,omitempty"`
	Status   *model.Status       `json:"status,omitempty"`
	Snapshot *model.BookSnapshot `json:"snapshot,omitempty"`
}

// Key partitions events by symbol so each book's results stay ordered.
func (e Event) Key() []byte {
	switch {
	case e.Trade != nil:
		return []byte(e.Trade.Symbol)
	case e.Status != nil:
		return []byte(e.Status.Symbol)
	case e.Snapshot != nil:
		return []byte(e.Snapshot.Symbol)
	default:
		return nil
	}
}

type Sender interface {
	Send(ctx context.Context, key, value []byte) error
}

// Publisher forwards engine results to Kafka. Publishing is synchronous;
// send failures are logged and counted, never returned to the engine.
type Publisher struct {
	sender  Sender
	runID   string
	timeout time.Duration
	logger  *zap.SugaredLogger
	failed  func()
}

func NewPublisher(sender Sender, runID string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		sender:  sender,
		runID:   runID,
		timeout: 5 * time.Second,
		logger:  logger.Sugar().With("component", "kafka"),
		failed:  func() {},
	}
}

// OnFailure installs a hook invoked for each failed send.
func (p *Publisher) OnFailure(fn func()) { p.failed = fn }

func (p *Publisher) OnTrade(t model.Trade) {
	p.send(Event{Type: "trade", Trade: &t})
}

func (p *Publisher) OnStatus(s model.Status) {
	p.send(Event{Type: "status", Status: &s})
}

func (p *Publisher) OnSnapshot(s model.BookSnapshot) {
	p.send(Event{Type: "snapshot", Snapshot: &s})
}

func (p *Publisher) OnShutdown() {
	p.send(Event{Type: "shutdown"})
}

func (p *Publisher) send(ev Event) {
	ev.RunID = p.runID
	value, err := json.Marshal(ev)
	if err != nil {
		p.logger.Errorw("kafka_encode_failed", "type", ev.Type, "err", err)
		p.failed()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.sender.Send(ctx, ev.Key(), value); err != nil {
		p.logger.Errorw("kafka_send_failed", "type", ev.Type, "err", err)
		p.failed()
	}
}

var _ model.Publisher = (*Publisher)(nil)
