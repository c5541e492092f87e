package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/exchange/pkg/app/core/completion"
	"github.com/uhyunpark/exchange/pkg/app/core/matching"
	"github.com/uhyunpark/exchange/pkg/app/core/model"
	"github.com/uhyunpark/exchange/pkg/app/core/orderbook"
	"github.com/uhyunpark/exchange/pkg/app/core/publish"
	"github.com/uhyunpark/exchange/pkg/app/core/registry"
	"github.com/uhyunpark/exchange/pkg/app/core/sequencer"
	"github.com/uhyunpark/exchange/pkg/app/feed"
	"github.com/uhyunpark/exchange/pkg/util"
)

// Mode selects how messages of different sources are ordered.
type Mode string

const (
	// ModeConcurrent applies each source's messages in delivery order as soon
	// as they arrive, serialized per symbol by the book lock.
	ModeConcurrent Mode = "concurrent"
	// ModeRanked merges all sources and applies messages in global rank
	// order, so results do not depend on delivery timing.
	ModeRanked Mode = "ranked"
)

type Config struct {
	Mode            Mode
	RejectSelfMatch bool
}

func DefaultConfig() Config {
	return Config{Mode: ModeConcurrent}
}

// Journal records every admitted message, one line each.
type Journal interface {
	Append(line string)
}

type nopJournal struct{}

func (nopJournal) Append(string) {}

var (
	ErrAlreadyStarted  = errors.New("exchange already started")
	ErrDuplicateSource = errors.New("duplicate source")
)

// Exchange runs the matching engine over a set of broker sources.
//
// Usage mirrors the exchange contract: Register publishers, SetSources, then
// Start; Wait returns once the final snapshot and shutdown were published.
type Exchange struct {
	cfg    Config
	logger *zap.SugaredLogger
	runID  uuid.UUID
	clock  util.Clock

	pub      *publish.Fanout
	outbox   *publish.Ordered
	journal  Journal
	tracker  *sequencer.Tracker
	registry *registry.Registry
	coord    *completion.Coordinator
	merger   *sequencer.Merger

	mu          sync.Mutex
	feeds       []feed.Feed
	sources     []string
	started     bool
	startedAt   time.Time
	finalizedAt time.Time
	digest      common.Hash

	workersDone chan struct{}
	workerErr   error
}

func New(cfg Config, logger *zap.Logger) *Exchange {
	if cfg.Mode == "" {
		cfg.Mode = ModeConcurrent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Exchange{
		cfg:         cfg,
		logger:      logger.Sugar().With("component", "exchange"),
		runID:       uuid.New(),
		clock:       util.RealClock{},
		pub:         publish.NewFanout(),
		journal:     nopJournal{},
		tracker:     sequencer.NewTracker(),
		registry:    registry.NewRegistry(matching.NewMatcher(matching.Config{RejectSelfMatch: cfg.RejectSelfMatch})),
		workersDone: make(chan struct{}),
	}
	e.outbox = publish.NewOrdered(e.pub)
	e.coord = completion.New(e.finalize)
	return e
}

// Register adds a result publisher. Publishers registered after Start still
// receive subsequent events.
func (e *Exchange) Register(p model.Publisher) {
	e.pub.Add(p)
}

func (e *Exchange) SetJournal(j Journal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if j == nil {
		j = nopJournal{}
	}
	e.journal = j
}

func (e *Exchange) SetClock(c util.Clock) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock = c
}

// SetSources attaches one feed per broker source. Each gets its own worker.
func (e *Exchange) SetSources(feeds ...feed.Feed) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return ErrAlreadyStarted
	}
	seen := make(map[string]bool, len(feeds))
	for _, f := range feeds {
		id := f.SourceID()
		if seen[id] || e.hasSourceLocked(id) {
			return errors.Wrapf(ErrDuplicateSource, "source %q", id)
		}
		seen[id] = true
	}
	for _, f := range feeds {
		e.feeds = append(e.feeds, f)
		e.sources = append(e.sources, f.SourceID())
	}
	return nil
}

// AddSource registers a source that delivers through Submit instead of a feed.
func (e *Exchange) AddSource(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return ErrAlreadyStarted
	}
	if e.hasSourceLocked(id) {
		return errors.Wrapf(ErrDuplicateSource, "source %q", id)
	}
	e.sources = append(e.sources, id)
	return nil
}

func (e *Exchange) hasSourceLocked(id string) bool {
	for _, s := range e.sources {
		if s == id {
			return true
		}
	}
	return false
}

// Start launches one worker per feed. It does not block.
func (e *Exchange) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.started = true
	e.startedAt = e.clock.Now()
	feeds := append([]feed.Feed(nil), e.feeds...)
	sources := append([]string(nil), e.sources...)
	e.mu.Unlock()

	if err := e.coord.Register(sources...); err != nil {
		e.mu.Lock()
		e.started = false
		e.mu.Unlock()
		return errors.Wrap(err, "register sources")
	}
	if e.cfg.Mode == ModeRanked {
		e.merger = sequencer.NewMerger(sources, func(msg model.Message) { _ = e.apply(msg) })
	}

	e.logger.Infow("exchange_started",
		"run_id", e.runID.String(),
		"mode", e.cfg.Mode,
		"sources", len(sources),
		"feeds", len(feeds))
	if e.cfg.Mode == ModeConcurrent && len(sources) > 1 {
		// books fed by several sources then depend on delivery timing
		e.logger.Warnw("results_timing_dependent",
			"mode", e.cfg.Mode,
			"sources", len(sources),
			"hint", "use ranked mode for results independent of delivery timing")
	}

	var g errgroup.Group
	for _, f := range feeds {
		g.Go(func() error { return e.consume(ctx, f) })
	}
	go func() {
		e.workerErr = g.Wait()
		close(e.workersDone)
	}()

	e.coord.Start()
	return nil
}

// consume is the worker loop of one source.
func (e *Exchange) consume(ctx context.Context, f feed.Feed) error {
	id := f.SourceID()
	for {
		msg, err := f.Next(ctx)
		if err != nil {
			if errors.Is(err, feed.ErrDrained) {
				return nil
			}
			e.logger.Errorw("source_failed", "source", id, "err", err)
			return errors.Wrapf(err, "source %s", id)
		}
		if msg.SourceID() != id {
			err := errors.Wrapf(model.ErrUnknownSource, "feed %s delivered message of %q", id, msg.SourceID())
			e.reject(msg, err)
			continue
		}
		if msg.Kind == model.KindEndOfStream {
			_ = e.endOfStream(id)
			return nil
		}
		_ = e.Submit(msg)
	}
}

// Submit ingests one message. Rejections are published and also returned.
func (e *Exchange) Submit(msg model.Message) error {
	if msg.Kind == model.KindEndOfStream {
		return e.endOfStream(msg.SourceID())
	}

	src := msg.SourceID()
	if err := e.coord.Begin(src); err != nil {
		e.reject(msg, err)
		return err
	}
	defer e.coord.End(src)

	if err := e.tracker.Admit(src, msg.Sequence()); err != nil {
		e.reject(msg, err)
		return err
	}
	e.record(msg)

	if e.merger != nil {
		if err := e.merger.Push(msg); err != nil {
			e.reject(msg, err)
			return err
		}
		return nil
	}
	return e.apply(msg)
}

func (e *Exchange) endOfStream(src string) error {
	if e.merger != nil {
		if err := e.merger.Close(src); err != nil {
			e.reject(model.EndOfStream(src), err)
			return err
		}
	}
	if err := e.coord.SourceDone(src); err != nil {
		e.reject(model.EndOfStream(src), err)
		return err
	}
	held := 0
	if e.merger != nil {
		held = e.merger.Pending()
	}
	e.logger.Infow("source_done", "source", src, "remaining", len(e.coord.Remaining()), "held", held)
	return nil
}

// apply routes msg to its book and publishes the outcome after the book
// lock was released, in the order the book produced it.
func (e *Exchange) apply(msg model.Message) error {
	res, err := e.registry.Route(msg)
	if model.Fatal(err) {
		e.logger.Errorw("invariant_violation", "symbol", msg.Symbol(), "rank", msg.Rank().String(), "err", err)
		panic(err)
	}
	e.outbox.Deliver(msg.Symbol(), publish.Result{Event: res.Event, Trades: res.Trades, Status: res.Status})
	if err != nil {
		e.logger.Debugw("message_rejected", "source", msg.SourceID(), "order_id", msg.OrderID(), "err", err)
	}
	return err
}

func (e *Exchange) reject(msg model.Message, err error) {
	e.logger.Warnw("message_rejected",
		"kind", msg.Kind.String(),
		"source", msg.SourceID(),
		"order_id", msg.OrderID(),
		"sequence", msg.Sequence(),
		"err", err)
	e.pub.OnStatus(model.Rejection(msg, err))
}

func (e *Exchange) record(msg model.Message) {
	line, err := feed.EncodeRecord(msg)
	if err != nil {
		e.logger.Warnw("journal_encode_failed", "err", err)
		return
	}
	e.mu.Lock()
	j := e.journal
	e.mu.Unlock()
	j.Append(string(line))
}

// finalize runs once, inside the coordinator, after every source ended.
func (e *Exchange) finalize() {
	snaps := e.registry.SnapshotAll()
	for _, s := range snaps {
		e.pub.OnSnapshot(s)
	}
	digest := Digest(snaps)

	e.mu.Lock()
	e.digest = digest
	e.finalizedAt = e.clock.Now()
	elapsed := e.finalizedAt.Sub(e.startedAt)
	e.mu.Unlock()

	e.logger.Infow("finalized",
		"run_id", e.runID.String(),
		"books", len(snaps),
		"digest", digest.Hex(),
		"elapsed_ms", elapsed.Milliseconds())
	e.pub.OnShutdown()
}

// Wait blocks until finalization, a worker failure, or ctx is done.
func (e *Exchange) Wait(ctx context.Context) error {
	workers := e.workersDone
	for {
		select {
		case <-e.coord.Done():
			select {
			case <-e.workersDone:
				return e.workerErr
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-workers:
			if e.workerErr != nil {
				return e.workerErr
			}
			workers = nil // all feeds ended; finalization may still wait on Submit sources
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Done is closed after finalization.
func (e *Exchange) Done() <-chan struct{} {
	return e.coord.Done()
}

func (e *Exchange) State() completion.State {
	return e.coord.State()
}

func (e *Exchange) RunID() string {
	return e.runID.String()
}

func (e *Exchange) Mode() string {
	return string(e.cfg.Mode)
}

// Sources returns the registered source ids.
func (e *Exchange) Sources() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.sources...)
}

// FinalDigest returns the digest of the final snapshots once finalized.
func (e *Exchange) FinalDigest() (common.Hash, bool) {
	if e.coord.State() != completion.Finalized {
		return common.Hash{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.digest, true
}

// Elapsed returns the time from Start to finalization once finalized.
func (e *Exchange) Elapsed() (time.Duration, bool) {
	if e.coord.State() != completion.Finalized {
		return 0, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finalizedAt.Sub(e.startedAt), true
}

func (e *Exchange) Snapshot(symbol string) (model.BookSnapshot, bool) {
	return e.registry.Snapshot(symbol)
}

func (e *Exchange) Levels(symbol string) (bids, asks []orderbook.PriceLevel, ok bool) {
	return e.registry.Levels(symbol)
}

func (e *Exchange) Symbols() []string {
	return e.registry.Symbols()
}
