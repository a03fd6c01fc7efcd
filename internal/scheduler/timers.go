package scheduler

import (
	"sync"
	"time"
)

// Timers tracks one-shot deferred callbacks so they can be cancelled together.
// Callbacks run on their own goroutine and never after Stop returns.
type Timers struct {
	mu      sync.Mutex
	pending map[uint64]*time.Timer
	next    uint64
	stopped bool
	running sync.WaitGroup
}

// NewTimers creates an empty timer set
func NewTimers() *Timers {
	return &Timers{pending: make(map[uint64]*time.Timer)}
}

// After schedules fn to run once after d. It returns false once the set is stopped.
func (t *Timers) After(d time.Duration, fn func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return false
	}

	t.next++
	id := t.next
	t.pending[id] = time.AfterFunc(d, func() {
		t.mu.Lock()
		if _, ok := t.pending[id]; !ok || t.stopped {
			t.mu.Unlock()
			return
		}
		delete(t.pending, id)
		t.running.Add(1)
		t.mu.Unlock()

		defer t.running.Done()
		fn()
	})
	return true
}

// Pending returns the number of callbacks that have not fired yet
func (t *Timers) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Stop cancels every pending callback and waits for running ones
func (t *Timers) Stop() {
	t.mu.Lock()
	t.stopped = true
	for id, timer := range t.pending {
		timer.Stop()
		delete(t.pending, id)
	}
	t.mu.Unlock()

	t.running.Wait()
}
