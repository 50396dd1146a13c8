package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miretskiy/mqsched/scheduler"
)

var promMetrics = struct {
	futureDepth        prometheus.Gauge
	currentBucketCount prometheus.Gauge
	writeCancellations prometheus.Gauge
	trimRedundantGC    prometheus.Gauge
	issued             prometheus.Gauge
	opsCompleted       prometheus.Gauge
	gcMigrations       prometheus.Gauge
	flexReadRetries    prometheus.Gauge
}{
	futureDepth: prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_future_queue_depth",
		Help: "Number of events waiting in the future queue",
	}),
	currentBucketCount: prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_current_bucket_count",
		Help: "Number of distinct time buckets currently populated",
	}),
	writeCancellations: prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_write_cancellations_total",
		Help: "Writes cancelled by the redundancy resolver",
	}),
	trimRedundantGC: prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_trim_redundant_gc_total",
		Help: "GC migrations made redundant by a trim",
	}),
	issued: prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_events_issued_total",
		Help: "Events successfully issued to the device",
	}),
	opsCompleted: prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_ops_completed_total",
		Help: "Logical operations completed",
	}),
	gcMigrations: prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_gc_migrations_total",
		Help: "Migrations injected by garbage collection requests",
	}),
	flexReadRetries: prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_flex_read_retries_total",
		Help: "Flexible read candidate retries due to LBA contention",
	}),
}

func initPrometheusMetrics() {
	prometheus.MustRegister(
		promMetrics.futureDepth,
		promMetrics.currentBucketCount,
		promMetrics.writeCancellations,
		promMetrics.trimRedundantGC,
		promMetrics.issued,
		promMetrics.opsCompleted,
		promMetrics.gcMigrations,
		promMetrics.flexReadRetries,
	)
}

func updatePrometheusMetrics(snap scheduler.SchedulerSnapshot) {
	promMetrics.futureDepth.Set(float64(snap.Queues.FutureCount))
	promMetrics.currentBucketCount.Set(float64(len(snap.Queues.CurrentTicks)))
	promMetrics.writeCancellations.Set(float64(snap.Stats.NumWriteCancellations))
	promMetrics.trimRedundantGC.Set(float64(snap.Stats.NumTrimRedundantGC))
	promMetrics.issued.Set(float64(snap.Stats.NumIssued))
	promMetrics.opsCompleted.Set(float64(snap.Stats.NumOpsCompleted))
	promMetrics.gcMigrations.Set(float64(snap.Stats.NumGCMigrations))
	promMetrics.flexReadRetries.Set(float64(snap.Stats.NumFlexReadRetries))
}

func promHandler() http.Handler {
	return promhttp.Handler()
}
