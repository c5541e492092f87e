// Package completion tracks end-of-stream signals from every source and runs
// finalization exactly once after the last one.
package completion

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/uhyunpark/exchange/pkg/app/core/model"
)

type State int32

const (
	Running State = iota
	AllSourcesDone
	Finalized
)

func (s State) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case AllSourcesDone:
		return "ALL_SOURCES_DONE"
	case Finalized:
		return "FINALIZED"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type source struct {
	ended    bool
	inFlight int
}

// Coordinator moves RUNNING -> ALL_SOURCES_DONE -> FINALIZED. The first
// transition needs every registered source ended with nothing in flight.
type Coordinator struct {
	mu       sync.Mutex
	state    State
	started  bool
	sources  map[string]*source
	finalize func()
	done     chan struct{}
}

// New creates a coordinator; finalize runs once, on the transition to
// FINALIZED, with the coordinator locked so late messages wait and then fail.
func New(finalize func()) *Coordinator {
	return &Coordinator{
		sources:  make(map[string]*source),
		finalize: finalize,
		done:     make(chan struct{}),
	}
}

// Register adds sources that must end before finalization.
func (c *Coordinator) Register(ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Running {
		return errors.Wrapf(model.ErrLateMessage, "register after %s", c.state)
	}
	for _, id := range ids {
		if _, exists := c.sources[id]; exists {
			return errors.Newf("source %s registered twice", id)
		}
	}
	for _, id := range ids {
		c.sources[id] = &source{}
	}
	return nil
}

// Start arms finalization. With no registered sources it finalizes at once.
func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	c.maybeFinalize()
}

// Begin marks one message of id as in flight. It fails for unknown sources,
// sources that already ended, and anything after finalization.
func (c *Coordinator) Begin(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Running {
		return errors.Wrapf(model.ErrLateMessage, "source %s: engine %s", id, c.state)
	}
	s, ok := c.sources[id]
	if !ok {
		return errors.Wrapf(model.ErrUnknownSource, "source %q", id)
	}
	if s.ended {
		return errors.Wrapf(model.ErrLateMessage, "source %s already signalled end of stream", id)
	}
	s.inFlight++
	return nil
}

// End marks a message started with Begin as fully applied.
func (c *Coordinator) End(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.sources[id]; ok && s.inFlight > 0 {
		s.inFlight--
	}
	c.maybeFinalize()
}

// SourceDone records the end-of-stream marker of id.
func (c *Coordinator) SourceDone(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Running {
		return errors.Wrapf(model.ErrLateMessage, "source %s: engine %s", id, c.state)
	}
	s, ok := c.sources[id]
	if !ok {
		return errors.Wrapf(model.ErrUnknownSource, "source %q", id)
	}
	if s.ended {
		return errors.Wrapf(model.ErrLateMessage, "source %s ended twice", id)
	}
	s.ended = true
	c.maybeFinalize()
	return nil
}

func (c *Coordinator) maybeFinalize() {
	if !c.started || c.state != Running {
		return
	}
	for _, s := range c.sources {
		if !s.ended || s.inFlight > 0 {
			return
		}
	}
	c.state = AllSourcesDone
	if c.finalize != nil {
		c.finalize()
	}
	c.state = Finalized
	close(c.done)
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Remaining returns the sources that have not ended, unordered.
func (c *Coordinator) Remaining() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for id, s := range c.sources {
		if !s.ended {
			out = append(out, id)
		}
	}
	return out
}

// Done is closed once finalization has run.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}
