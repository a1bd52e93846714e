package pool

import (
	"context"
	"strconv"
)

// Job is one unit of work. Run is called once by a pool worker and, for the
// callable runner, possibly once more inline when the pooled run is missed.
type Job[R any] interface {
	Name() string
	Run(ctx context.Context) (R, error)
}

type Func[A, R any] func(ctx context.Context, arg A) (R, error)

// FuncJob binds a callable to its argument record.
type FuncJob[A, R any] struct {
	Label string
	Arg   A
	Fn    Func[A, R]
}

func NewFuncJob[A, R any](name string, arg A, fn Func[A, R]) FuncJob[A, R] {
	return FuncJob[A, R]{Label: name, Arg: arg, Fn: fn}
}

func (j FuncJob[A, R]) Name() string { return j.Label }

func (j FuncJob[A, R]) Run(ctx context.Context) (R, error) {
	return j.Fn(ctx, j.Arg)
}

// FuncJobs wraps every argument with fn. Jobs are named by their index.
func FuncJobs[A, R any](args []A, fn Func[A, R]) []Job[R] {
	jobs := make([]Job[R], len(args))
	for i, arg := range args {
		jobs[i] = NewFuncJob(strconv.Itoa(i), arg, fn)
	}
	return jobs
}
