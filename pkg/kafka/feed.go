package kafka

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/uhyunpark/exchange/pkg/app/core/model"
	"github.com/uhyunpark/exchange/pkg/app/feed"
)

// Reader is the subset of *kafka.Reader a Feed needs.
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Feed reads one broker source from its own topic. The topic must have a
// single partition so records arrive in the order the broker wrote them.
// Undecodable records are logged and skipped.
type Feed struct {
	source string
	reader Reader
	logger *zap.SugaredLogger

	mu      sync.Mutex
	drained bool
	skipped int
}

// NewFeed consumes topicPrefix+source from the beginning of partition 0.
func NewFeed(brokers []string, topicPrefix, source string, logger *zap.Logger) *Feed {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topicPrefix + source,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	return NewFeedFromReader(source, r, logger)
}

func NewFeedFromReader(source string, r Reader, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{
		source: source,
		reader: r,
		logger: logger.Sugar().With("component", "kafka_feed", "source", source),
	}
}

func (f *Feed) SourceID() string { return f.source }

func (f *Feed) Next(ctx context.Context) (model.Message, error) {
	for {
		f.mu.Lock()
		drained := f.drained
		f.mu.Unlock()
		if drained {
			return model.Message{}, errors.Wrapf(feed.ErrDrained, "source %s", f.source)
		}

		m, err := f.reader.ReadMessage(ctx)
		if err != nil {
			return model.Message{}, errors.Wrapf(err, "read %s", f.source)
		}
		msg, err := feed.DecodeRecord(m.Value)
		if err != nil {
			f.mu.Lock()
			f.skipped++
			f.mu.Unlock()
			f.logger.Warnw("record_skipped", "offset", m.Offset, "err", err)
			continue
		}
		if msg.Kind == model.KindEndOfStream {
			f.mu.Lock()
			f.drained = true
			f.mu.Unlock()
		}
		return msg, nil
	}
}

// Skipped returns how many records could not be decoded.
func (f *Feed) Skipped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.skipped
}

func (f *Feed) Close() error {
	return f.reader.Close()
}

var _ feed.Feed = (*Feed)(nil)
