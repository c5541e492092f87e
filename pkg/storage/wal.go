package storage

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/uhyunpark/exchange/pkg/app/core/model"
	"github.com/uhyunpark/exchange/pkg/app/feed"
)

// Journal files hold one wire record per admitted message, in admission
// order. Reading one back reproduces the per-source input streams.

// FileJournal appends lines through a buffer. The first write error stops
// further appends and is returned by Err and Close.
type FileJournal struct {
	mu  sync.Mutex
	f   *os.File
	w   *bufio.Writer
	err error
}

func NewFileJournal(path string) (*FileJournal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open journal %s", path)
	}
	return &FileJournal{f: f, w: bufio.NewWriter(f)}, nil
}

func (j *FileJournal) Append(line string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return
	}
	if _, err := fmt.Fprintln(j.w, line); err != nil {
		j.err = errors.Wrapf(err, "append to journal %s", j.f.Name())
	}
}

// Err returns the first append error, if any.
func (j *FileJournal) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Close flushes buffered lines and closes the file. A journal that lost a
// line reports it here even if the flush succeeds.
func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err == nil {
		if err := j.w.Flush(); err != nil {
			j.err = errors.Wrap(err, "flush journal")
		}
	}
	if err := j.f.Close(); err != nil && j.err == nil {
		j.err = errors.Wrap(err, "close journal")
	}
	return j.err
}

// ReadJournal splits a journal into per-source message streams, keeping each
// source's admission order. Sources are returned in first-seen order.
func ReadJournal(path string) ([]string, map[string][]model.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open journal %s", path)
	}
	defer f.Close()

	var (
		order   []string
		streams = make(map[string][]model.Message)
		line    int
	)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		msg, err := feed.DecodeRecord(sc.Bytes())
		if err != nil {
			return nil, nil, errors.Wrapf(err, "journal %s line %d", path, line)
		}
		src := msg.SourceID()
		if _, seen := streams[src]; !seen {
			order = append(order, src)
		}
		streams[src] = append(streams[src], msg)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, errors.Wrapf(err, "read journal %s", path)
	}
	return order, streams, nil
}

// JournalFeeds turns a journal into one closed feed per source.
func JournalFeeds(path string) ([]feed.Feed, error) {
	order, streams, err := ReadJournal(path)
	if err != nil {
		return nil, err
	}
	feeds := make([]feed.Feed, 0, len(order))
	for _, src := range order {
		feeds = append(feeds, feed.FromMessages(src, streams[src]...))
	}
	return feeds, nil
}
