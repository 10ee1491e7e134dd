// Copyright 2025 James Ross
package obs

import (
    "github.com/prometheus/client_golang/prometheus"
)

var (
    JobsSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
        Name: "starq_jobs_submitted_total",
        Help: "Total number of jobs accepted by submit (post-dedupe)",
    }, []string{"queue"})
    JobsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
        Name: "starq_jobs_skipped_total",
        Help: "Total number of submitted jobs skipped by dedupe",
    }, []string{"queue"})
    JobsClaimed = prometheus.NewCounterVec(prometheus.CounterOpts{
        Name: "starq_jobs_claimed_total",
        Help: "Total number of jobs claimed, split by delivery leg",
    }, []string{"queue", "leg"})
    JobsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
        Name: "starq_jobs_completed_total",
        Help: "Total number of jobs completed",
    }, []string{"queue"})
    JobsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
        Name: "starq_jobs_failed_total",
        Help: "Total number of jobs dead-lettered",
    }, []string{"queue"})
    JobsReclaimed = prometheus.NewCounterVec(prometheus.CounterOpts{
        Name: "starq_jobs_reclaimed_total",
        Help: "Total number of jobs reset to pending by the reclaimer",
    }, []string{"queue"})
    QueueLength = prometheus.NewGaugeVec(prometheus.GaugeOpts{
        Name: "starq_queue_length",
        Help: "Current stream length per queue",
    }, []string{"queue"})
    CircuitBreakerState = prometheus.NewGauge(prometheus.GaugeOpts{
        Name: "starq_circuit_breaker_state",
        Help: "0 Closed, 1 HalfOpen, 2 Open",
    })
    ReclaimSweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
        Name:    "starq_reclaim_sweep_duration_seconds",
        Help:    "Duration of a full reclaimer sweep across all queues",
        Buckets: prometheus.DefBuckets,
    })
)

func init() {
    prometheus.MustRegister(
        JobsSubmitted, JobsSkipped, JobsClaimed, JobsCompleted, JobsFailed,
        JobsReclaimed, QueueLength, CircuitBreakerState, ReclaimSweepDuration,
    )
}
