package task

import (
	"container/heap"
	"time"
)

// Timers is the timer wheel: pending deadlines ordered for expiry,
// driven exclusively by the host's tick callback (there is no other time
// source). Precision is bounded by how often the caller invokes Advance.
type Timers struct {
	h timerHeap
}

// NewTimers constructs an empty timer wheel.
func NewTimers() *Timers {
	return &Timers{}
}

// Len reports the number of pending timers.
func (t *Timers) Len() int { return t.h.Len() }

type timerEntry struct {
	deadline time.Time
	wake     func()
	index    int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// After arranges for wake to be invoked once now has reached deadline
// (inclusive: now >= deadline fires).
func (t *Timers) After(deadline time.Time, wake func()) {
	heap.Push(&t.h, &timerEntry{deadline: deadline, wake: wake})
}

// Advance expires every timer whose deadline has passed as of now,
// invoking each registered waker exactly once, in deadline order. It is
// the only time source that can complete a Sleep future: precision
// equals the caller's tick cadence.
func (t *Timers) Advance(now time.Time) {
	for t.h.Len() > 0 && !t.h[0].deadline.After(now) {
		e := heap.Pop(&t.h).(*timerEntry)
		e.wake()
	}
}

// Sleep is a future that settles (with no value) once now has reached
// deadline, as observed by a subsequent Advance call.
type Sleep struct {
	timers   *Timers
	deadline time.Time
	promise  *Promise[struct{}]
	armed    bool
}

// NewSleep returns a future completing duration from now (as measured by
// the Timers wheel's own clock, i.e. the time passed to Advance).
func NewSleep(timers *Timers, now time.Time, d time.Duration) *Sleep {
	return &Sleep{timers: timers, deadline: now.Add(d), promise: NewPromise[struct{}]()}
}

func (s *Sleep) Poll(wake func()) bool {
	if !s.armed {
		s.armed = true
		s.timers.After(s.deadline, func() { s.promise.Resolve(struct{}{}) })
	}
	_, _, ready := s.promise.Poll(wake)
	return ready
}

// WithTimeout races future against a Sleep of duration d started at now;
// whichever settles first wins, and the loser is simply dropped — if the
// inner future's promise settles later anyway, there is nothing parked
// on it any more and the result is discarded (matching the host's
// response callback convention of silently ignoring unknown tokens).
type WithTimeout struct {
	inner   Future
	sleep   *Sleep
	timeout bool
	done    bool
}

func NewWithTimeout(inner Future, timers *Timers, now time.Time, d time.Duration) *WithTimeout {
	return &WithTimeout{inner: inner, sleep: NewSleep(timers, now, d)}
}

// TimedOut reports whether the timeout fired before inner completed.
// Only meaningful after Poll has returned true.
func (w *WithTimeout) TimedOut() bool { return w.timeout }

func (w *WithTimeout) Poll(wake func()) bool {
	if w.done {
		return true
	}
	if w.inner.Poll(wake) {
		w.done = true
		return true
	}
	if w.sleep.Poll(wake) {
		w.timeout = true
		w.done = true
		return true
	}
	return false
}
