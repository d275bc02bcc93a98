// Package task implements a single-threaded cooperative task runtime: a
// minimal promise/future pair, a tick-driven executor and a timer wheel,
// layered over a host ABI that exposes only non-blocking hostcalls plus
// tick and response callbacks.
package task

// State is the lifecycle state of a Promise. Transitions are terminal:
// Pending can move to Resolved or Rejected exactly once.
type State int

const (
	Pending State = iota
	Resolved
	Rejected
)

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Resolved:
		return "Resolved"
	case Rejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// Promise holds exactly one slot, settled at most once by an external
// callback keyed by a host-issued token. It has a single registered waker;
// callers that need fan-out must build it on top (this runtime never
// needs more than one waiter per promise).
type Promise[T any] struct {
	state State
	value T
	err   error
	waker func()
}

// NewPromise returns a pending promise.
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{}
}

// Settled returns an already-resolved promise. Useful for adapting
// synchronous results into the async pipeline without a real suspension
// point.
func Settled[T any](v T) *Promise[T] {
	return &Promise[T]{state: Resolved, value: v}
}

func (p *Promise[T]) State() State { return p.state }

// Resolve settles the promise with a value. A no-op if already settled —
// the host may legitimately double-fire a response callback in edge
// cases, and resolving twice must never panic.
func (p *Promise[T]) Resolve(v T) {
	if p.state != Pending {
		return
	}
	p.state = Resolved
	p.value = v
	p.fire()
}

// Reject settles the promise with a failure reason. A no-op if already
// settled, mirroring Resolve.
func (p *Promise[T]) Reject(err error) {
	if p.state != Pending {
		return
	}
	p.state = Rejected
	p.err = err
	p.fire()
}

func (p *Promise[T]) fire() {
	if w := p.waker; w != nil {
		p.waker = nil
		w()
	}
}

// Poll is the non-blocking half of await: it reports the settled value
// if any, registering wake as the continuation to run once the promise
// does settle. wake is invoked at most once, and never synchronously
// from within Poll itself.
func (p *Promise[T]) Poll(wake func()) (value T, err error, ready bool) {
	switch p.state {
	case Resolved:
		return p.value, nil, true
	case Rejected:
		return p.value, ErrPromiseRejected(p.err), true
	default:
		p.waker = wake
		return p.value, nil, false
	}
}
