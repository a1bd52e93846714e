package pool

import (
	"context"
	"runtime/debug"
	"sync"
	"time"
)

type handle[R any] struct {
	done   chan struct{}
	result Result[R]
}

func (h *handle[R]) ready() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// wait blocks until the job completes, ctx is done, or budget elapses. A
// budget <= 0 waits without limit.
func (h *handle[R]) wait(ctx context.Context, budget time.Duration) bool {
	if h.ready() {
		return true
	}
	var timeout <-chan time.Time
	if budget > 0 {
		timer := time.NewTimer(budget)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-h.done:
		return true
	case <-ctx.Done():
		return false
	case <-timeout:
		return false
	}
}

// Pool runs a fixed batch of jobs on a fixed number of worker goroutines.
// Every job is queued at Start and the queue is closed; a Pool is used for
// one batch only.
type Pool[R any] struct {
	jobs     []Job[R]
	handles  []*handle[R]
	workers  int
	observer Observer

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan int
	wg     sync.WaitGroup
}

// Start queues every job and launches the workers. workers is clamped to
// [1, len(jobs)].
func Start[R any](ctx context.Context, jobs []Job[R], workers int, observer Observer) *Pool[R] {
	if observer == nil {
		observer = NopObserver()
	}
	workers = clampWorkers(workers, len(jobs))

	pctx, cancel := context.WithCancel(ctx)
	p := &Pool[R]{
		jobs:     jobs,
		handles:  make([]*handle[R], len(jobs)),
		workers:  workers,
		observer: observer,
		ctx:      pctx,
		cancel:   cancel,
		queue:    make(chan int, len(jobs)),
	}
	for i := range jobs {
		p.handles[i] = &handle[R]{done: make(chan struct{})}
		p.queue <- i
	}
	close(p.queue)

	for w := 0; w < workers; w++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool[R]) Workers() int { return p.workers }

func (p *Pool[R]) worker() {
	defer p.wg.Done()
	for idx := range p.queue {
		p.execute(idx)
	}
}

func (p *Pool[R]) execute(idx int) {
	h := p.handles[idx]
	job := p.jobs[idx]
	defer close(h.done)

	h.result = Result[R]{Index: idx, Name: job.Name()}
	if err := p.ctx.Err(); err != nil {
		h.result.Err = err
		return
	}

	start := time.Now()
	h.result.Value, h.result.Err = runJob(p.ctx, job)
	h.result.Elapsed = time.Since(start)
	p.observer.JobFinished(idx, job.Name(), h.result.Elapsed, h.result.Err)
}

func runJob[R any](ctx context.Context, job Job[R]) (value R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return job.Run(ctx)
}

// Join waits for every job and returns the results in submission order.
func (p *Pool[R]) Join() []Result[R] {
	p.wg.Wait()
	p.cancel()
	results := make([]Result[R], len(p.handles))
	for i, h := range p.handles {
		results[i] = h.result
	}
	return results
}

// Terminate cancels the pool context and returns without waiting. Jobs not
// yet started are never run; running jobs that ignore their context keep
// running until they return.
func (p *Pool[R]) Terminate() {
	p.cancel()
}
