package storage

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/uhyunpark/exchange/pkg/app/core/model"
	"github.com/uhyunpark/exchange/pkg/app/exchange"
)

// RunMeta describes a finished run.
type RunMeta struct {
	RunID       string    `json:"runId"`
	Digest      string    `json:"digest,omitempty"`
	Trades      uint64    `json:"trades"`
	Books       int       `json:"books"`
	FinalizedAt time.Time `json:"finalizedAt"`
}

// PebbleStore persists engine results. It implements model.Publisher:
// trades and status counters are written as they arrive, book snapshots
// and run metadata at shutdown.
type PebbleStore struct {
	db     *pebble.DB
	logger *zap.SugaredLogger

	mu       sync.Mutex
	runID    string
	trades   uint64
	books    []model.BookSnapshot
	statuses map[model.StatusKind]uint64
	err      error
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open pebble at %s", path)
	}
	return &PebbleStore{
		db:       db,
		logger:   zap.NewNop().Sugar(),
		statuses: make(map[model.StatusKind]uint64),
	}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

func (s *PebbleStore) SetLogger(l *zap.Logger) {
	s.logger = l.Sugar().With("component", "storage")
}

// SetRunID tags the run metadata written at shutdown.
func (s *PebbleStore) SetRunID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = id
}

// Err returns the first write error, if any.
func (s *PebbleStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *PebbleStore) fail(op string, err error) {
	s.logger.Errorw("storage_write_failed", "op", op, "err", err)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = errors.Wrap(err, op)
	}
}

func (s *PebbleStore) OnTrade(t model.Trade) {
	if err := s.SaveTrade(t); err != nil {
		s.fail("save trade", err)
		return
	}
	s.mu.Lock()
	s.trades++
	s.mu.Unlock()
}

func (s *PebbleStore) OnStatus(st model.Status) {
	s.mu.Lock()
	s.statuses[st.Kind]++
	n := s.statuses[st.Kind]
	s.mu.Unlock()
	if err := s.db.Set(statusKey(st.Kind.String()), encodeCount(n), pebble.NoSync); err != nil {
		s.fail("save status count", err)
	}
}

func (s *PebbleStore) OnSnapshot(snap model.BookSnapshot) {
	if err := s.SaveSnapshot(snap); err != nil {
		s.fail("save snapshot", err)
		return
	}
	s.mu.Lock()
	s.books = append(s.books, snap)
	s.mu.Unlock()
}

// OnShutdown writes run metadata and syncs everything written so far.
func (s *PebbleStore) OnShutdown() {
	s.mu.Lock()
	meta := RunMeta{
		RunID:       s.runID,
		Trades:      s.trades,
		Digest:      exchange.Digest(s.books).Hex(),
		Books:       len(s.books),
		FinalizedAt: time.Now().UTC(),
	}
	s.mu.Unlock()
	if err := s.SaveRunMeta(meta); err != nil {
		s.fail("save run meta", err)
		return
	}
	if err := s.db.Flush(); err != nil {
		s.fail("flush", err)
	}
}

var _ model.Publisher = (*PebbleStore)(nil)

// SaveTrade persists a trade to Pebble
func (s *PebbleStore) SaveTrade(t model.Trade) error {
	data, err := json.Marshal(t)
	if err != nil {
		return errors.Wrap(err, "marshal trade")
	}
	return s.db.Set(tradeKey(t.Symbol, t.Seq), data, pebble.NoSync)
}

// LoadTrades returns trades of symbol in execution order. With limit > 0
// only the most recent limit trades are returned, still oldest first.
func (s *PebbleStore) LoadTrades(symbol string, limit int) ([]model.Trade, error) {
	prefix := tradePrefix(symbol)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, errors.Wrap(err, "trade iterator")
	}
	defer iter.Close()

	var trades []model.Trade
	for iter.Last(); iter.Valid() && (limit <= 0 || len(trades) < limit); iter.Prev() {
		var t model.Trade
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			return nil, errors.Wrapf(err, "decode trade %s", iter.Key())
		}
		trades = append(trades, t)
	}
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	return trades, nil
}

// SaveSnapshot persists a book snapshot, replacing any earlier one.
func (s *PebbleStore) SaveSnapshot(snap model.BookSnapshot) error {
	val, err := encodeGob(snap)
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	return s.db.Set(bookKey(snap.Symbol), val, pebble.Sync)
}

// LoadSnapshot returns the stored snapshot of symbol, if any.
func (s *PebbleStore) LoadSnapshot(symbol string) (model.BookSnapshot, bool, error) {
	val, closer, err := s.db.Get(bookKey(symbol))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return model.BookSnapshot{}, false, nil
		}
		return model.BookSnapshot{}, false, err
	}
	defer closer.Close()
	var out model.BookSnapshot
	if err := decodeGob(val, &out); err != nil {
		return model.BookSnapshot{}, false, errors.Wrapf(err, "decode snapshot %s", symbol)
	}
	return out, true, nil
}

// StatusCount returns how many statuses of kind were stored.
func (s *PebbleStore) StatusCount(kind model.StatusKind) (uint64, error) {
	val, closer, err := s.db.Get(statusKey(kind.String()))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	defer closer.Close()
	return decodeCount(val), nil
}

func (s *PebbleStore) SaveRunMeta(meta RunMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return errors.Wrap(err, "marshal run meta")
	}
	return s.db.Set([]byte(keyRunMeta), data, pebble.Sync)
}

// LoadRunMeta returns the metadata of the last finished run.
func (s *PebbleStore) LoadRunMeta() (RunMeta, bool, error) {
	data, closer, err := s.db.Get([]byte(keyRunMeta))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return RunMeta{}, false, nil
		}
		return RunMeta{}, false, err
	}
	defer closer.Close()
	var meta RunMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return RunMeta{}, false, errors.Wrap(err, "unmarshal run meta")
	}
	return meta, true, nil
}
