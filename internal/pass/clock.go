package pass

import "sync/atomic"

// Clock stamps journal records with a strictly increasing seq. The Manager
// shares one Clock with every RunContext it creates, so pass records and the
// elaborations made while a pass runs interleave in the order they happened.
// Seq 0 is never handed out.
type Clock struct {
	last atomic.Int64
}

// NewClock creates a clock whose first stamp is 1.
func NewClock() *Clock { return new(Clock) }

// Stamp returns the next seq.
func (c *Clock) Stamp() int64 { return c.last.Add(1) }

// Last returns the most recent seq, or 0 before the first Stamp.
func (c *Clock) Last() int64 { return c.last.Load() }
