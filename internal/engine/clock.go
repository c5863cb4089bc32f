package engine

import "sync/atomic"

// Clock is the monotonic generation counter.
//
// Thread-safety: Clock is safe for concurrent use. Fetchers read it from
// their own goroutines while Advance is called by whoever switches the
// active query.
type Clock struct {
	gen atomic.Int64
}

// NewClock creates a clock at generation 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock at a specific generation.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.gen.Store(start)
	return c
}

// Next advances the clock and returns the new generation.
func (c *Clock) Next() int64 {
	return c.gen.Add(1)
}

// Current returns the current generation without advancing.
func (c *Clock) Current() int64 {
	return c.gen.Load()
}
