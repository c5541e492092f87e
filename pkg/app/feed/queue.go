package feed

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/uhyunpark/exchange/pkg/app/core/model"
)

// Feed is one broker source: an ordered stream of parsed messages that ends
// with an end-of-stream marker. Next blocks until a message is available.
type Feed interface {
	SourceID() string
	Next(ctx context.Context) (model.Message, error)
}

var (
	ErrClosed  = errors.New("feed closed")
	ErrDrained = errors.New("feed drained")
)

// Queue is an in-memory Feed, filled by Push and terminated by Close.
// Delivery is FIFO in push order.
type Queue struct {
	source string

	mu      sync.Mutex
	pending []model.Message
	closed  bool
	drained bool
	notify  chan struct{}
}

func NewQueue(source string) *Queue {
	return &Queue{
		source: source,
		notify: make(chan struct{}, 1),
	}
}

func (q *Queue) SourceID() string { return q.source }

// Push enqueues a message.
func (q *Queue) Push(msg model.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errors.Wrapf(ErrClosed, "push to %s", q.source)
	}
	q.pending = append(q.pending, msg)
	q.signal()
	return nil
}

// Close appends the end-of-stream marker. Further pushes fail.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.pending = append(q.pending, model.EndOfStream(q.source))
	q.signal()
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Next pops the oldest message. After the end-of-stream marker was returned
// it fails with ErrDrained.
func (q *Queue) Next(ctx context.Context) (model.Message, error) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			msg := q.pending[0]
			q.pending = q.pending[1:]
			if msg.Kind == model.KindEndOfStream {
				q.drained = true
			}
			q.mu.Unlock()
			return msg, nil
		}
		drained := q.drained
		q.mu.Unlock()

		if drained {
			return model.Message{}, errors.Wrapf(ErrDrained, "source %s", q.source)
		}
		select {
		case <-ctx.Done():
			return model.Message{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// Len returns the number of undelivered messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// FromMessages builds a closed queue holding msgs.
func FromMessages(source string, msgs ...model.Message) *Queue {
	q := NewQueue(source)
	for _, m := range msgs {
		_ = q.Push(m)
	}
	q.Close()
	return q
}
