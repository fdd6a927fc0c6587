// Package observability holds the process-wide prometheus collectors and the
// scrape endpoint.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "commitguru"

var (
	// StepDuration measures pipeline step latency.
	// Labels: mode, step, status (ok, error, cancelled)
	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "step_duration_seconds",
		Help:      "Pipeline step duration in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
	}, []string{"mode", "step", "status"})

	// JobsTotal counts finished jobs.
	// Labels: mode, status (succeeded, failed)
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "jobs_total",
		Help:      "Total pipeline jobs by outcome",
	}, []string{"mode", "status"})

	// JobWarnings counts non-fatal warnings attached to jobs
	JobWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "warnings_total",
		Help:      "Total non-fatal warnings recorded by jobs",
	})

	// CommitsProcessed counts commits run through the metric aggregator
	CommitsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "metrics",
		Name:      "commits_total",
		Help:      "Total commits aggregated",
	})

	// IssueFetches counts issue tracker requests by outcome.
	// Labels: outcome (ok, not_modified, gone, rate_limited, error)
	IssueFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "issues",
		Name:      "fetches_total",
		Help:      "Total issue tracker requests by outcome",
	}, []string{"outcome"})

	// RateLimitSleep accumulates time spent waiting for quota resets
	RateLimitSleep = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "issues",
		Name:      "rate_limit_sleep_seconds_total",
		Help:      "Total seconds slept waiting for rate limit resets",
	})

	// BugLinks counts introducing-to-fixing links found.
	// Labels: source (timestamp, parent)
	BugLinks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "linker",
		Name:      "links_total",
		Help:      "Total bug-introducing links by blame start source",
	}, []string{"source"})

	// LinkerFailures counts corrective commits whose analysis failed
	LinkerFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "linker",
		Name:      "failures_total",
		Help:      "Total corrective commits that could not be analyzed",
	})
)
