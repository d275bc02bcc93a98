package task

import "fmt"

// RejectedError is the error kind produced by awaiting a rejected promise.
// It wraps the original rejection reason so errors.Is/As still reach it.
type RejectedError struct {
	Cause error
}

func (e *RejectedError) Error() string {
	if e.Cause == nil {
		return "task: promise rejected"
	}
	return fmt.Sprintf("task: promise rejected: %s", e.Cause)
}

func (e *RejectedError) Unwrap() error { return e.Cause }

// ErrPromiseRejected wraps cause as a *RejectedError, used uniformly by
// Promise.Poll when a promise settles into the Rejected state.
func ErrPromiseRejected(cause error) error {
	return &RejectedError{Cause: cause}
}

// ErrTaskTableFull is returned by Runtime.Spawn when the in-flight task
// cap (see WithMaxTasks) would be exceeded.
var ErrTaskTableFull = fmt.Errorf("task: task table full")
