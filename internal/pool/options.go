package pool

import (
	"fmt"
	"io"
	"os"
)

const DefaultWaitFactor = 1.5

type options struct {
	workers    Workers
	waitFactor float64
	progress   io.Writer
	observer   Observer
	noReturn   bool
}

// Option configures Run and RunMulti.
type Option func(*options)

func WithWorkers(w Workers) Option {
	return func(o *options) { o.workers = w }
}

// WithWaitFactor sets the multiple of the first job's completion time that
// every later job is waited for. Non-positive values keep the default.
func WithWaitFactor(f float64) Option {
	return func(o *options) {
		if f > 0 {
			o.waitFactor = f
		}
	}
}

// WithProgress redirects progress lines. nil discards them.
func WithProgress(w io.Writer) Option {
	return func(o *options) {
		if w == nil {
			w = io.Discard
		}
		o.progress = w
	}
}

func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithNoReturn runs the batch fire-and-forget: the pool is joined and no
// results are returned.
func WithNoReturn() Option {
	return func(o *options) { o.noReturn = true }
}

func newOptions(opts []Option) *options {
	o := &options{
		workers:    HalfCPUs(),
		waitFactor: DefaultWaitFactor,
		progress:   os.Stdout,
		observer:   NopObserver(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

func (o *options) printf(format string, args ...any) {
	fmt.Fprintf(o.progress, format, args...)
}
