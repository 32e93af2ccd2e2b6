package store

import (
	"sync"
	"time"
)

// Sequence hands out strictly increasing message ids derived from wall-clock
// milliseconds. Two calls in the same millisecond, or a clock that steps
// backwards, still yield increasing values.
type Sequence struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewSequence(now func() time.Time) *Sequence {
	if now == nil {
		now = time.Now
	}
	return &Sequence{now: now}
}

func (q *Sequence) Next() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	next := q.now().UnixMilli()
	if next <= q.last {
		next = q.last + 1
	}
	q.last = next
	return next
}
