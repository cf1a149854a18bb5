package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock is the timestamp source for order priority and trade execution times.
// Successive calls must return strictly increasing values.
type Clock interface {
	Now() time.Time
}

// MonotonicClock reads the wall clock and nudges ties forward by a
// nanosecond so no two timestamps it hands out are equal.
type MonotonicClock struct {
	mu   sync.Mutex
	last time.Time
}

func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{}
}

func (c *MonotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if !now.After(c.last) {
		now = c.last.Add(time.Nanosecond)
	}
	c.last = now
	return now
}

func newTradeID() string {
	return uuid.NewString()
}
