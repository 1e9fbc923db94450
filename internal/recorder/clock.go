package recorder

import "sync/atomic"

// Clock stamps records with a strictly increasing logical sequence number.
//
// Seq orders records across directions independently of wall-clock time, so
// two records captured within the same microsecond still have a total order.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}
