package recorder

import "fmt"

// capacity tracks the number of records held in memory and enforces the
// configured max_pending_records bound.
//
// When the bound is reached the recorder refuses further records instead of
// growing without limit; the capture loop treats that refusal as fatal, so
// the captured-frame count never silently diverges from the recorded count.
type capacity struct {
	limit   int
	current int
}

func newCapacity(limit int) *capacity {
	return &capacity{limit: limit}
}

// reserve claims one slot or reports that the bound is reached.
func (c *capacity) reserve() error {
	if c.current >= c.limit {
		return fmt.Errorf("recorder holds %d records, limit %d", c.current, c.limit)
	}
	c.current++
	return nil
}

func (c *capacity) used() int {
	return c.current
}
