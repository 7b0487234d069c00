package bridge

import (
	"sort"
	"sync"
	"time"
)

// Timer is a pending deferred call.
type Timer interface {
	// Stop prevents the call from running. It returns false if the call
	// already ran or was already stopped.
	Stop() bool
}

// Scheduler defers calls without blocking the caller.
type Scheduler interface {
	// Now returns the scheduler's current time.
	Now() time.Time

	// AfterFunc calls f in its own goroutine, or on the goroutine advancing
	// a simulated clock, once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// RealScheduler returns a Scheduler backed by the runtime timer heap.
func RealScheduler() Scheduler {
	return realScheduler{}
}

type realScheduler struct{}

func (realScheduler) Now() time.Time { return time.Now() }

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// -----------------------------------------------------------------------------
// Manual Scheduler
// -----------------------------------------------------------------------------

// ManualScheduler is a Scheduler driven by explicit Advance calls.
// Deferred calls run on the goroutine calling Advance, in due-time order.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*manualTimer
}

// NewManualScheduler creates a scheduler whose clock starts at start.
func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{now: start}
}

type manualTimer struct {
	s    *ManualScheduler
	due  time.Time
	seq  uint64
	f    func()
	done bool
}

// Now returns the simulated time.
func (s *ManualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// AfterFunc registers f to run once the clock has advanced by d.
func (s *ManualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &manualTimer{s: s, due: s.now.Add(d), seq: s.seq, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Pending returns the number of calls not yet run or stopped.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Advance moves the clock forward by d, running every call that comes due.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	for {
		t := s.popDue(target)
		if t == nil {
			break
		}
		if t.due.After(s.now) {
			s.now = t.due
		}
		s.mu.Unlock()
		t.f()
		s.mu.Lock()
	}
	s.now = target
	s.mu.Unlock()
}

// popDue removes and returns the earliest timer due at or before target.
// Caller holds s.mu.
func (s *ManualScheduler) popDue(target time.Time) *manualTimer {
	if len(s.timers) == 0 {
		return nil
	}
	sort.Slice(s.timers, func(i, j int) bool {
		if s.timers[i].due.Equal(s.timers[j].due) {
			return s.timers[i].seq < s.timers[j].seq
		}
		return s.timers[i].due.Before(s.timers[j].due)
	})
	t := s.timers[0]
	if t.due.After(target) {
		return nil
	}
	s.timers = s.timers[1:]
	t.done = true
	return t
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	for i, other := range t.s.timers {
		if other == t {
			t.s.timers = append(t.s.timers[:i], t.s.timers[i+1:]...)
			break
		}
	}
	return true
}
