package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector records batch metrics on its own registry. It implements
// pool.Observer.
type Collector struct {
	registry *prometheus.Registry

	JobsTotal      *prometheus.CounterVec
	RerunsTotal    prometheus.Counter
	JobDuration    *prometheus.HistogramVec
	BatchWorkers   prometheus.Gauge
	BatchJobs      prometheus.Gauge
	BatchDuration  prometheus.Gauge
	BatchesStarted prometheus.Counter
}

func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		JobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jobswarm",
				Name:      "jobs_total",
				Help:      "Jobs finished by a pool worker, by status",
			},
			[]string{"status"},
		),

		RerunsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "jobswarm",
				Name:      "job_reruns_total",
				Help:      "Missed jobs rerun inline by the caller",
			},
		),

		JobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "jobswarm",
				Name:      "job_duration_seconds",
				Help:      "Duration of pooled job runs in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 16), // 0.1s to ~1.8h
			},
			[]string{"status"},
		),

		BatchWorkers: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "jobswarm",
				Name:      "batch_workers",
				Help:      "Worker count of the most recent batch",
			},
		),

		BatchJobs: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "jobswarm",
				Name:      "batch_jobs",
				Help:      "Job count of the most recent batch",
			},
		),

		BatchDuration: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "jobswarm",
				Name:      "batch_duration_seconds",
				Help:      "Wall time of the most recent batch",
			},
		),

		BatchesStarted: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "jobswarm",
				Name:      "batches_total",
				Help:      "Batches started",
			},
		),
	}
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) BatchStarted(jobs, workers int) {
	c.BatchesStarted.Inc()
	c.BatchJobs.Set(float64(jobs))
	c.BatchWorkers.Set(float64(workers))
}

func (c *Collector) JobFinished(_ int, _ string, elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	c.JobsTotal.WithLabelValues(status).Inc()
	c.JobDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (c *Collector) JobRerun(int, string) {
	c.RerunsTotal.Inc()
}

func (c *Collector) BatchFinished(elapsed time.Duration) {
	c.BatchDuration.Set(elapsed.Seconds())
}

// WriteTextfile writes the registry in the text exposition format for the
// node exporter textfile collector. The file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
