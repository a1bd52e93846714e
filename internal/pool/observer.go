package pool

import "time"

// Observer receives batch lifecycle events. JobFinished is called from
// worker goroutines and must be safe for concurrent use.
type Observer interface {
	BatchStarted(jobs, workers int)
	JobFinished(index int, name string, elapsed time.Duration, err error)
	JobRerun(index int, name string)
	BatchFinished(elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) BatchStarted(int, int)                         {}
func (nopObserver) JobFinished(int, string, time.Duration, error) {}
func (nopObserver) JobRerun(int, string)                          {}
func (nopObserver) BatchFinished(time.Duration)                   {}

// NopObserver ignores every event.
func NopObserver() Observer { return nopObserver{} }
