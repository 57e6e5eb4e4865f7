package services

import (
	"sync"
	"time"
)

// Clock is the trusted time source. Now must never go backwards.
type Clock interface {
	Now() time.Time
}

// SystemClock reads wall time at second resolution and clamps it so that
// successive readings are non-decreasing.
type SystemClock struct {
	mu   sync.Mutex
	last time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

func (c *SystemClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC().Truncate(time.Second)
	if now.Before(c.last) {
		return c.last
	}
	c.last = now
	return now
}
