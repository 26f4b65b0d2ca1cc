package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noxie-dev/workwise-sa/internal/metrics"
	"github.com/Noxie-dev/workwise-sa/internal/orchestrator"
	"github.com/Noxie-dev/workwise-sa/internal/report"
)

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	switch {
	case m.Counter != nil:
		return m.GetCounter().GetValue()
	case m.Gauge != nil:
		return m.GetGauge().GetValue()
	}
	t.Fatalf("unsupported metric type")
	return 0
}

// family gathers name from reg and indexes its samples by the value of
// label.
func family(t *testing.T, reg *prometheus.Registry, name, label string) map[string]float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	out := map[string]float64{}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label {
					out[lp.GetValue()] = m.GetGauge().GetValue()
				}
			}
		}
	}
	return out
}

// ── Task transitions ───────────────────────────────────────────────────────

func TestObserveTransition(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.ObserveTransition("gumtree", "", orchestrator.StatusPending)
	m.ObserveTransition("gumtree", orchestrator.StatusPending, orchestrator.StatusRunning)
	m.ObserveTransition("adzuna", orchestrator.StatusPending, orchestrator.StatusRunning)
	assert.Equal(t, 2.0, value(t, m.TasksRunning))

	m.ObserveTransition("gumtree", orchestrator.StatusRunning, orchestrator.StatusSucceeded)
	m.ObserveTransition("adzuna", orchestrator.StatusRunning, orchestrator.StatusTimedOut)
	assert.Equal(t, 0.0, value(t, m.TasksRunning))
	assert.Equal(t, 1.0, value(t, m.TasksTotal.WithLabelValues("gumtree", "success")))
	assert.Equal(t, 1.0, value(t, m.TasksTotal.WithLabelValues("adzuna", "timeout")))
}

func TestObserveSession(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	end := time.Unix(1_700_000_000, 0)

	m.ObserveSession(report.ExitClean, end)
	m.ObserveSession(report.ExitInterrupted, end)
	m.ObserveSession(report.ExitErrors, end)
	m.ObserveSession(report.ExitErrors, end)

	assert.Equal(t, 1.0, value(t, m.SessionsTotal.WithLabelValues("clean")))
	assert.Equal(t, 2.0, value(t, m.SessionsTotal.WithLabelValues("errors")))
	assert.Equal(t, 1.0, value(t, m.SessionsTotal.WithLabelValues("interrupted")))
	assert.Equal(t, 1.7e9, value(t, m.LastSessionTimestamp))
}

// ── Session stats ──────────────────────────────────────────────────────────

func TestTrack_ExposesLiveStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	stats := report.NewStats()
	m.Track(stats)
	stats.RecordSeen()
	stats.RecordSeen()
	stats.RecordDuplicate()
	stats.RecordBatch(true, 5, 1)

	ingest := family(t, reg, "workwise_session_ingest", "kind")
	assert.Equal(t, map[string]float64{
		"batches_succeeded": 1,
		"batches_failed":    0,
		"items_accepted":    5,
		"items_rejected":    1,
	}, ingest)

	records := family(t, reg, "workwise_session_records", "outcome")
	assert.Len(t, records, 7)
	assert.Equal(t, 2.0, records["seen"])
	assert.Equal(t, 1.0, records["duplicate"])

	// Later increments are visible on the next scrape.
	stats.RecordSeen()
	assert.Equal(t, 3.0, family(t, reg, "workwise_session_records", "outcome")["seen"])
}

func TestTrack_NothingBeforeFirstSession(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.New(reg)
	assert.Empty(t, family(t, reg, "workwise_session_records", "outcome"))
}
