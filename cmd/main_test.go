package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noxie-dev/workwise-sa/internal/config"
	"github.com/Noxie-dev/workwise-sa/internal/metrics"
	"github.com/Noxie-dev/workwise-sa/internal/report"
)

// ── /health ────────────────────────────────────────────────────────────────

func TestHealth_NoSessionYet(t *testing.T) {
	mux := newMux(func() *report.Report { return nil }, prometheus.NewRegistry())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, serviceName, body.Service)
	assert.Nil(t, body.LastSession)
}

func TestHealth_LastSession(t *testing.T) {
	end := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	rep := &report.Report{
		SessionID:     "20260504_093000",
		EndTime:       end,
		Statistics:    report.Snapshot{Persisted: 12, TaskErrors: 1},
		SpiderResults: []report.TaskResult{{Task: "gumtree", Status: report.StatusError}},
	}
	mux := newMux(func() *report.Report { return rep }, prometheus.NewRegistry())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.LastSession)
	assert.Equal(t, "20260504_093000", body.LastSession.SessionID)
	assert.Equal(t, report.ExitErrors, body.LastSession.ExitCode)
	assert.EqualValues(t, 12, body.LastSession.Persisted)
	assert.True(t, end.Equal(body.LastSession.FinishedAt))
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObserveSession(report.ExitClean, time.Now())

	mux := newMux(func() *report.Report { return nil }, reg)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "workwise_sessions_total")
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	mux := newMux(func() *report.Report { return nil }, prometheus.NewRegistry())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// ── run flags ──────────────────────────────────────────────────────────────

func TestApplyRunFlags_OnlyChangedFlagsOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	c, err := config.Load("")
	require.NoError(t, err)

	cmd := &cobra.Command{}
	cmd.Flags().StringSliceVar(&runSpiders, "spider", nil, "")
	cmd.Flags().IntVar(&runMaxItems, "max-items", 0, "")
	cmd.Flags().IntVar(&runConcurrent, "concurrent", 0, "")
	cmd.Flags().DurationVar(&runTimeout, "timeout", 0, "")
	cmd.Flags().BoolVar(&runDryRun, "dry-run", false, "")
	require.NoError(t, cmd.Flags().Parse([]string{"--spider", "adzuna,manual", "--dry-run"}))

	require.NoError(t, applyRunFlags(cmd, c))
	assert.Equal(t, []string{"adzuna", "manual"}, c.Tasks.Enabled)
	assert.True(t, c.DryRun)
	assert.Equal(t, 2, c.Tasks.MaxConcurrent, "unchanged flag keeps the config value")
	assert.Equal(t, time.Hour, c.Tasks.Timeout)
}

func TestApplyRunFlags_RejectsInvalidOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	c, err := config.Load("")
	require.NoError(t, err)

	cmd := &cobra.Command{}
	cmd.Flags().IntVar(&runConcurrent, "concurrent", 0, "")
	require.NoError(t, cmd.Flags().Parse([]string{"--concurrent", "0"}))
	assert.Error(t, applyRunFlags(cmd, c))
}

// ── exit codes ─────────────────────────────────────────────────────────────

func TestExecute_DryRunSessionExitsClean(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	jobs := `[{"title":"Cashier","companyName":"Spar","location":"Durban","description":"Till work and stocking shelves."}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manual_jobs.json"), []byte(jobs), 0o644))

	rootCmd.SetArgs([]string{"run", "--spider", "manual", "--dry-run"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	assert.Equal(t, report.ExitClean, execute())

	entries, err := os.ReadDir(filepath.Join(dir, "reports"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestExecute_FailingTaskExitsOne(t *testing.T) {
	t.Chdir(t.TempDir())
	rootCmd.SetArgs([]string{"run", "--spider", "manual", "--dry-run"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	assert.Equal(t, report.ExitErrors, execute(), "missing manual jobs file fails the task")
}

func TestExecute_BadConfigExitsOne(t *testing.T) {
	t.Chdir(t.TempDir())
	rootCmd.SetArgs([]string{"run", "--config", "does-not-exist.yaml"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	assert.Equal(t, 1, execute())
}
