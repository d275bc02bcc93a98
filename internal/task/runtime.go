package task

// ID identifies a spawned Task within the process-wide task table.
type ID uint64

// QueueID identifies a host queue, used to wake tasks parked waiting on
// proxy queue notifications (on_queue_ready).
type QueueID uint32

// Future is a pinned, heap-owned computation producing no value of its
// own (side effects — resolving promises, sending HTTP responses — are
// how a Future communicates its result). Poll is called at most once per
// tick for a given task; when it returns false the task registers its
// interest by arranging for wake to be invoked later (by a Promise, a
// Timer, or Runtime.WakeQueue).
type Future interface {
	Poll(wake func()) (ready bool)
}

// FuncFuture adapts a plain synchronous step into a Future that never
// suspends. It still goes through Spawn/on_tick like any other task, so
// callers never observe re-entrancy into the host from within Spawn.
type FuncFuture func()

func (f FuncFuture) Poll(func()) bool {
	f()
	return true
}

type taskState int

const (
	taskRunnable taskState = iota
	taskSuspended
)

type taskEntry struct {
	future Future
	state  taskState
	queue  QueueID
	parked bool // parked on a queue wake, as opposed to a promise/timer wake
}

// Runtime is the single-threaded cooperative executor described in the
// task runtime component: spawn, poll-on-tick, wake-by-queue. It owns no
// locks — the host guarantees a single callback thread per VM, so every
// method here must only ever be called from that thread.
type Runtime struct {
	tasks    map[ID]*taskEntry
	nextID   ID
	queue    []ID // tasks to poll on the next on_tick
	pending  map[QueueID][]ID
	maxTasks int
}

// Option configures a Runtime at construction.
type Option func(*Runtime)

// WithMaxTasks caps the number of in-flight tasks. Spawn returns
// ErrTaskTableFull once the cap is reached. Zero (the default) means
// unbounded.
func WithMaxTasks(n int) Option {
	return func(r *Runtime) { r.maxTasks = n }
}

// NewRuntime constructs an empty Runtime.
func NewRuntime(opts ...Option) *Runtime {
	r := &Runtime{
		tasks:   make(map[ID]*taskEntry),
		nextID:  1,
		pending: make(map[QueueID][]ID),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Len reports the number of tasks currently tracked (runnable or
// suspended).
func (r *Runtime) Len() int { return len(r.tasks) }

// Spawn registers future as a new task and marks it runnable for the
// next tick. It is never polled synchronously: even a future that would
// complete immediately only runs no earlier than the next call to
// OnTick, so callers never observe re-entrancy into the host during
// Spawn itself.
func (r *Runtime) Spawn(future Future) (ID, error) {
	if r.maxTasks > 0 && len(r.tasks) >= r.maxTasks {
		return 0, ErrTaskTableFull
	}
	id := r.nextID
	r.nextID++
	r.tasks[id] = &taskEntry{future: future, state: taskRunnable}
	r.queue = append(r.queue, id)
	return id, nil
}

// OnTick drains the runnable set captured since the previous tick,
// polling each task once in FIFO order. Tasks that return ready are
// dropped from the table; tasks that suspend stay parked until woken.
// Anything spawned or woken during this pass (including by a task
// polled within it) is deferred to the following tick.
func (r *Runtime) OnTick() {
	batch := r.queue
	r.queue = nil
	for _, id := range batch {
		entry, ok := r.tasks[id]
		if !ok {
			continue // reaped already (e.g. duplicate wake)
		}
		// Suspended before polling, so a wake fired during this task's
		// own Poll re-queues it for the next tick instead of being lost.
		entry.state = taskSuspended
		entry.parked = false
		wake := func() { r.wake(id) }
		if entry.future.Poll(wake) {
			delete(r.tasks, id)
		}
	}
}

// wake re-arms a task for the next tick. Multiple wakes observed before
// the next OnTick call coalesce (the task only appears once in the
// queue).
func (r *Runtime) wake(id ID) {
	entry, ok := r.tasks[id]
	if !ok {
		return
	}
	if entry.state == taskRunnable {
		return // already queued
	}
	entry.state = taskRunnable
	r.queue = append(r.queue, id)
}

// Park registers id as waiting on queue, to be resumed when WakeQueue(queue)
// is next called. Intended for futures that suspend on a host queue
// notification rather than a Promise or Timer.
func (r *Runtime) Park(id ID, queue QueueID) {
	entry, ok := r.tasks[id]
	if !ok {
		return
	}
	entry.parked = true
	entry.queue = queue
	r.pending[queue] = append(r.pending[queue], id)
}

// WakeQueue moves every task parked on queue back to runnable, to be
// polled on the next tick.
func (r *Runtime) WakeQueue(queue QueueID) {
	ids := r.pending[queue]
	delete(r.pending, queue)
	for _, id := range ids {
		if entry, ok := r.tasks[id]; ok && entry.parked {
			entry.parked = false
			r.wake(id)
		}
	}
}
