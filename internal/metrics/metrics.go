package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector bundles the Prometheus metrics the pipeline and API emit.
// A nil *Collector is valid and records nothing, so components can be
// wired without metrics in tests.
type Collector struct {
	jobsCreated   prometheus.Counter
	jobsCompleted prometheus.Counter
	jobsFailed    prometheus.Counter
	jobsCancelled prometheus.Counter

	jobDuration   prometheus.Histogram
	stageDuration *prometheus.HistogramVec

	segmentsProcessed *prometheus.CounterVec

	activeJobs    prometheus.Gauge
	governorSlots prometheus.Gauge
}

// NewCollector registers all metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		jobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audiostudio_jobs_created_total",
			Help: "Total number of processing jobs created",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audiostudio_jobs_completed_total",
			Help: "Total number of jobs that completed successfully",
		}),
		jobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audiostudio_jobs_failed_total",
			Help: "Total number of jobs that failed",
		}),
		jobsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audiostudio_jobs_cancelled_total",
			Help: "Total number of jobs cancelled by callers",
		}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "audiostudio_job_duration_seconds",
			Help:    "End-to-end job processing duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audiostudio_stage_duration_seconds",
			Help:    "Per-stage processing duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"stage", "outcome"}),
		segmentsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audiostudio_segments_processed_total",
			Help: "Total number of segments that resolved, by final status",
		}, []string{"status"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audiostudio_active_jobs",
			Help: "Number of jobs currently being processed",
		}),
		governorSlots: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audiostudio_governor_slots_in_use",
			Help: "Segment processing slots currently held",
		}),
	}

	reg.MustRegister(
		c.jobsCreated,
		c.jobsCompleted,
		c.jobsFailed,
		c.jobsCancelled,
		c.jobDuration,
		c.stageDuration,
		c.segmentsProcessed,
		c.activeJobs,
		c.governorSlots,
	)
	return c
}

// RecordJobCreated counts a new job entering the queue.
func (c *Collector) RecordJobCreated() {
	if c == nil {
		return
	}
	c.jobsCreated.Inc()
}

// RecordJobCompleted counts a successful job and observes its duration.
func (c *Collector) RecordJobCompleted(seconds float64) {
	if c == nil {
		return
	}
	c.jobsCompleted.Inc()
	c.jobDuration.Observe(seconds)
}

// RecordJobFailed counts a failed job.
func (c *Collector) RecordJobFailed() {
	if c == nil {
		return
	}
	c.jobsFailed.Inc()
}

// RecordJobCancelled counts a caller-cancelled job.
func (c *Collector) RecordJobCancelled() {
	if c == nil {
		return
	}
	c.jobsCancelled.Inc()
}

// RecordSegment counts a resolved segment by its final status.
func (c *Collector) RecordSegment(status string) {
	if c == nil {
		return
	}
	c.segmentsProcessed.WithLabelValues(status).Inc()
}

// ObserveStage records one stage execution.
func (c *Collector) ObserveStage(stage, outcome string, seconds float64) {
	if c == nil {
		return
	}
	c.stageDuration.WithLabelValues(stage, outcome).Observe(seconds)
}

// JobStarted marks a job as actively processing.
func (c *Collector) JobStarted() {
	if c == nil {
		return
	}
	c.activeJobs.Inc()
}

// JobFinished marks a job as no longer processing.
func (c *Collector) JobFinished() {
	if c == nil {
		return
	}
	c.activeJobs.Dec()
}

// SetGovernorSlots reports how many segment slots are held.
func (c *Collector) SetGovernorSlots(n int) {
	if c == nil {
		return
	}
	c.governorSlots.Set(float64(n))
}
