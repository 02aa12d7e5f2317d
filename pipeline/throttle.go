package pipeline

import (
	"sync/atomic"
	"time"
)

// Throttle lets a record through only if at least the interval has passed
// since the last record it let through. The first record always passes.
// Rejected records are dropped, never queued.
type Throttle struct {
	interval atomic.Int64
	last     time.Time
	emitted  bool
}

// NewThrottle creates a throttle with the given minimum gap.
func NewThrottle(interval time.Duration) *Throttle {
	t := &Throttle{}
	t.SetInterval(interval)
	return t
}

// SetInterval changes the minimum gap. It is safe to call from another goroutine.
func (t *Throttle) SetInterval(interval time.Duration) {
	t.interval.Store(int64(interval))
}

// Interval returns the current minimum gap.
func (t *Throttle) Interval() time.Duration {
	return time.Duration(t.interval.Load())
}

// Allow reports whether a record arriving at now may be emitted, and if so
// records now as the last emission.
func (t *Throttle) Allow(now time.Time) bool {
	if t.emitted && now.Sub(t.last) < t.Interval() {
		return false
	}
	t.last = now
	t.emitted = true
	return true
}
