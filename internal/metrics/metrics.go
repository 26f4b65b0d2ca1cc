// Package metrics exposes ingestion counters to Prometheus.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Noxie-dev/workwise-sa/internal/orchestrator"
	"github.com/Noxie-dev/workwise-sa/internal/report"
)

const namespace = "workwise"

// Metrics holds the ingestion metrics.
type Metrics struct {
	SessionsTotal        *prometheus.CounterVec
	TasksTotal           *prometheus.CounterVec
	TaskDurationSeconds  *prometheus.HistogramVec
	TasksRunning         prometheus.Gauge
	LastSessionTimestamp prometheus.Gauge

	stats *statsCollector
}

// New creates and registers all metrics on reg, or the default registerer
// when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		SessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Ingestion sessions by outcome (clean, errors, interrupted).",
		}, []string{"outcome"}),
		TasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Finished tasks by name and final status.",
		}, []string{"task", "status"}),
		TaskDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Task run time in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 14),
		}, []string{"task"}),
		TasksRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_running",
			Help:      "Tasks currently running.",
		}),
		LastSessionTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_session_timestamp_seconds",
			Help:      "Unix time the last session finished.",
		}),
		stats: newStatsCollector(),
	}
	reg.MustRegister(m.stats)
	return m
}

// ObserveTransition is an orchestrator transition hook.
func (m *Metrics) ObserveTransition(task string, from, to orchestrator.Status) {
	switch {
	case to == orchestrator.StatusRunning:
		m.TasksRunning.Inc()
	case from == orchestrator.StatusRunning && orchestrator.IsTerminal(to):
		m.TasksRunning.Dec()
		m.TasksTotal.WithLabelValues(task, to.ReportStatus()).Inc()
	}
}

// ObserveTask records a finished task's duration.
func (m *Metrics) ObserveTask(task string, d time.Duration) {
	m.TaskDurationSeconds.WithLabelValues(task).Observe(d.Seconds())
}

// ObserveSession records a finished session.
func (m *Metrics) ObserveSession(exitCode int, end time.Time) {
	outcome := "clean"
	switch exitCode {
	case report.ExitErrors:
		outcome = "errors"
	case report.ExitInterrupted:
		outcome = "interrupted"
	}
	m.SessionsTotal.WithLabelValues(outcome).Inc()
	m.LastSessionTimestamp.Set(float64(end.Unix()))
}

// Track points the session gauges at stats. Values are read at scrape time.
func (m *Metrics) Track(stats *report.Stats) { m.stats.current.Store(stats) }

// statsCollector reports the counters of the current or most recent
// session as gauges.
type statsCollector struct {
	current atomic.Pointer[report.Stats]
	records *prometheus.Desc
	ingest  *prometheus.Desc
	tasks   *prometheus.Desc
}

func newStatsCollector() *statsCollector {
	return &statsCollector{
		records: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "session", "records"),
			"Records of the current session by pipeline outcome.",
			[]string{"outcome"}, nil,
		),
		ingest: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "session", "ingest"),
			"Ingestion batches and items of the current session.",
			[]string{"kind"}, nil,
		),
		tasks: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "session", "tasks"),
			"Tasks of the current session.",
			[]string{"kind"}, nil,
		),
	}
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.records
	ch <- c.ingest
	ch <- c.tasks
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.current.Load()
	if stats == nil {
		return
	}
	s := stats.Snapshot()

	gauge := func(desc *prometheus.Desc, v int64, label string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(v), label)
	}
	gauge(c.records, s.RecordsSeen, "seen")
	gauge(c.records, s.Validated, "validated")
	gauge(c.records, s.ValidationDrops, "validation_dropped")
	gauge(c.records, s.Duplicates, "duplicate")
	gauge(c.records, s.Classified, "classified")
	gauge(c.records, s.Persisted, "persisted")
	gauge(c.records, s.StorageErrors, "storage_error")

	gauge(c.ingest, s.BatchesOK, "batches_succeeded")
	gauge(c.ingest, s.BatchesFailed, "batches_failed")
	gauge(c.ingest, s.ItemsAccepted, "items_accepted")
	gauge(c.ingest, s.ItemsRejected, "items_rejected")

	gauge(c.tasks, s.TasksRun, "run")
	gauge(c.tasks, s.TaskErrors, "errors")
}
