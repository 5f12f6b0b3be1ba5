// Package scheduler provides named one-shot timers with at most one
// outstanding timer per kind.
//
// The door controller uses two kinds: the post-finish close delay and the
// post-close cooldown before a restart. Arm is first-arm-wins; callers that
// need stronger guarantees keep their own pending flags.
//
// Thread Safety: Scheduler is safe for concurrent use. Callbacks run on the
// clock's goroutine; the controller re-posts them onto its event loop.
package scheduler

import (
	"sync"
	"time"
)

// Kind names a timer slot.
type Kind string

// Timer kinds used by the door controller.
const (
	KindClose    Kind = "close"
	KindCooldown Kind = "cooldown"
)

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks. The zero value of Scheduler uses the wall clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// entry is one armed timer; its address identifies it so a stale firing
// cannot remove a newer timer of the same kind.
type entry struct {
	timer Timer
}

// Scheduler tracks armed timers by kind.
type Scheduler struct {
	clock Clock

	mu      sync.Mutex
	pending map[Kind]*entry
}

// New creates a scheduler. A nil clock uses time.AfterFunc.
func New(clock Clock) *Scheduler {
	if clock == nil {
		clock = realClock{}
	}
	return &Scheduler{
		clock:   clock,
		pending: make(map[Kind]*entry),
	}
}

// Arm schedules fn to run once after delay.
//
// If a timer of the same kind is outstanding the call does nothing and
// returns false. The handle is removed before fn runs, so fn may arm any
// kind, including its own.
func (s *Scheduler) Arm(kind Kind, delay time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[kind]; ok {
		return false
	}

	e := &entry{}
	s.pending[kind] = e
	e.timer = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		current, ok := s.pending[kind]
		if !ok || current != e {
			s.mu.Unlock()
			return
		}
		delete(s.pending, kind)
		s.mu.Unlock()

		fn()
	})
	return true
}

// Pending reports whether a timer of kind is outstanding.
func (s *Scheduler) Pending(kind Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[kind]
	return ok
}

// CancelAll stops every outstanding timer. Used at shutdown.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for kind, e := range s.pending {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(s.pending, kind)
	}
}
