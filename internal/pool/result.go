package pool

import (
	"fmt"
	"time"
)

type Result[R any] struct {
	Index   int
	Name    string
	Value   R
	Err     error
	Elapsed time.Duration
}

func (r Result[R]) Ok() bool { return r.Err == nil }

// Values extracts the values of results, in order.
func Values[R any](results []Result[R]) []R {
	out := make([]R, len(results))
	for i, r := range results {
		out[i] = r.Value
	}
	return out
}

// PanicError is the error recorded for a job that panicked in a worker.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("job panicked: %v", e.Value)
}

// RetryError reports that the inline rerun of a missed job failed.
type RetryError struct {
	Index int
	Err   error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("rerun of job %d failed: %v", e.Index, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }
