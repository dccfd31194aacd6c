package task

import (
	"sort"
	"sync"
	"time"
)

// Clock schedules delayed functions. Dispatchers use it for AfterFunc so that
// tests can replace wall time with ManualClock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Stopper
}

type Stopper interface {
	Stop() bool
}

type SystemClock struct{}

func (SystemClock) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// ManualClock is a Clock driven by Advance. Due functions run in the goroutine calling Advance.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	clock    *ManualClock
	deadline time.Duration
	delay    time.Duration
	seq      int
	f        func()
}

func (t *manualTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, other := range c.timers {
		if other == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return true
		}
	}
	return false
}

func (c *ManualClock) AfterFunc(d time.Duration, f func()) Stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &manualTimer{
		clock:    c,
		deadline: c.now + d,
		delay:    d,
		seq:      c.seq,
		f:        f,
	}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves virtual time forward by d, firing every timer whose deadline is reached
// in deadline order. Timers scheduled by fired functions run too if they fall due.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()
	for {
		c.mu.Lock()
		next := c.nextDue(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.deadline
		c.mu.Unlock()
		next.f()
	}
}

// nextDue removes and returns the earliest timer due at or before target.
func (c *ManualClock) nextDue(target time.Duration) *manualTimer {
	if len(c.timers) == 0 {
		return nil
	}
	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].deadline == c.timers[j].deadline {
			return c.timers[i].seq < c.timers[j].seq
		}
		return c.timers[i].deadline < c.timers[j].deadline
	})
	first := c.timers[0]
	if first.deadline > target {
		return nil
	}
	c.timers = c.timers[1:]
	return first
}

// Pending returns the original delays of timers that have neither fired nor been stopped.
func (c *ManualClock) Pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	ret := make([]time.Duration, 0, len(c.timers))
	for _, t := range c.timers {
		ret = append(ret, t.delay)
	}
	return ret
}

func (c *ManualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}
