package util

import (
	"sync"
	"time"
)

// Clock stamps run start and finalization.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// StepClock returns Start, then advances by Step on every call.
type StepClock struct {
	mu    sync.Mutex
	Start time.Time
	Step  time.Duration
	calls int
}

func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.Start.Add(time.Duration(c.calls) * c.Step)
	c.calls++
	return t
}
