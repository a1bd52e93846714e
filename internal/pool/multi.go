package pool

import (
	"context"
	"time"

	ilogger "jobswarm/internal/logger"
	"jobswarm/internal/utils"
)

// RunMulti calls fn once per argument on a worker pool and returns the
// values in argument order. See Run for the wait and retry behavior.
func RunMulti[A, R any](ctx context.Context, args []A, fn Func[A, R], opts ...Option) ([]R, error) {
	results, err := Run(ctx, FuncJobs(args, fn), opts...)
	if err != nil || results == nil {
		return nil, err
	}
	return Values(results), nil
}

// Run executes jobs on a pool sized by the Workers option.
//
// Job 0 is waited for without limit. Every later job is then waited for at
// most waitFactor times the time job 0 took from batch start. Jobs that
// fail, panic or are not ready in time are missed. After the pool is
// terminated each missed job is taken from the pool if it has since
// succeeded, otherwise it is rerun inline with ctx. A failed rerun returns
// a *RetryError; a panic in a rerun is not recovered.
func Run[R any](ctx context.Context, jobs []Job[R], opts ...Option) ([]Result[R], error) {
	o := newOptions(opts)
	if len(jobs) == 0 {
		return []Result[R]{}, nil
	}

	workers := o.workers.Resolve(len(jobs))
	start := time.Now()
	o.printf("Started at %s.\n", start.Format(time.ANSIC))

	o.observer.BatchStarted(len(jobs), workers)
	p := Start(ctx, jobs, workers, o.observer)
	o.printf("Processing %d jobs with %d processes.\n", len(jobs), workers)
	ilogger.LogInfo("batch started", "jobs", len(jobs), "workers", workers, "directive", o.workers.String())

	finish := func() {
		elapsed := time.Since(start)
		o.observer.BatchFinished(elapsed)
		o.printf("done (took %s)\n", utils.FormatElapsed(elapsed))
	}

	if o.noReturn {
		p.Join()
		finish()
		return nil, nil
	}

	results := make([]Result[R], len(jobs))
	var missed []int
	var budget time.Duration
	for i, h := range p.handles {
		switch {
		case i == 0:
			h.wait(ctx, 0)
			budget = time.Duration(float64(time.Since(start)) * o.waitFactor)
		case !h.ready():
			h.wait(ctx, budget)
		}
		if err := ctx.Err(); err != nil {
			p.Terminate()
			return nil, err
		}

		if !h.ready() {
			ilogger.LogWarn("job missed wait budget", "index", i, "budget", budget.String())
			missed = append(missed, i)
			continue
		}
		if !h.result.Ok() {
			ilogger.LogWarn("job failed in pool", "index", i, "error", h.result.Err)
			missed = append(missed, i)
			continue
		}
		results[i] = h.result
	}
	p.Terminate()

	for _, i := range missed {
		h := p.handles[i]
		if h.ready() && h.result.Ok() {
			results[i] = h.result
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		o.printf("Rerun job %d\n", i)
		o.observer.JobRerun(i, jobs[i].Name())
		ilogger.LogInfo("rerunning job inline", "index", i)

		t0 := time.Now()
		value, err := jobs[i].Run(ctx)
		if err != nil {
			ilogger.LogError("inline rerun failed", "index", i, "error", err)
			finish()
			return nil, &RetryError{Index: i, Err: err}
		}
		results[i] = Result[R]{Index: i, Name: jobs[i].Name(), Value: value, Elapsed: time.Since(t0)}
	}

	finish()
	return results, nil
}

// RunAll executes every job exactly once on workers goroutines and waits
// for all of them. There is no timeout and no retry.
func RunAll[R any](ctx context.Context, jobs []Job[R], workers int, observer Observer) []Result[R] {
	if len(jobs) == 0 {
		return []Result[R]{}
	}
	if observer == nil {
		observer = NopObserver()
	}
	start := time.Now()
	observer.BatchStarted(len(jobs), clampWorkers(workers, len(jobs)))
	p := Start(ctx, jobs, workers, observer)
	results := p.Join()
	observer.BatchFinished(time.Since(start))
	return results
}
