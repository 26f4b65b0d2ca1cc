package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noxie-dev/workwise-sa/internal/config"
	"github.com/Noxie-dev/workwise-sa/internal/events"
	"github.com/Noxie-dev/workwise-sa/internal/metrics"
	"github.com/Noxie-dev/workwise-sa/internal/model"
	"github.com/Noxie-dev/workwise-sa/internal/pipeline"
	"github.com/Noxie-dev/workwise-sa/internal/report"
	"github.com/Noxie-dev/workwise-sa/internal/session"
	"github.com/Noxie-dev/workwise-sa/internal/store"
)

var sessionStart = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

const sessionID = "20260504_093000"

type staticCollector struct {
	records []model.Record
	err     error
}

func (c staticCollector) Collect(context.Context) ([]model.Record, error) { return c.records, c.err }

type blockingCollector struct{}

func (blockingCollector) Collect(ctx context.Context) ([]model.Record, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func job(title, company, description string) model.Record {
	return model.Record{
		Title:       title,
		CompanyName: company,
		Location:    "Johannesburg",
		Description: description,
		SourceURL:   "https://example.co.za/" + title,
	}
}

func testConfig(t *testing.T, enabled ...string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Store: config.StoreConfig{URL: filepath.Join(dir, "workwise.db")},
		Tasks: config.TasksConfig{
			Enabled:       enabled,
			MaxConcurrent: 2,
			Timeout:       5 * time.Second,
		},
		Pipeline: config.PipelineConfig{
			ValidationLevel: "moderate",
			Classify:        true,
			UpdateMetrics:   true,
		},
		Ingest: config.IngestConfig{
			BatchSize:         50,
			MaxRetries:        1,
			RetryDelay:        time.Millisecond,
			BackoffMultiplier: 1,
			Timeout:           time.Second,
		},
		Redis:  config.RedisConfig{DedupTTL: time.Hour, PublishEvents: true},
		Report: config.ReportConfig{Dir: filepath.Join(dir, "reports")},
		Log:    config.LogConfig{Level: "info", Format: "json"},
	}
}

func clock() time.Time { return sessionStart }

func ingestServer(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var items atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p struct {
			Items []json.RawMessage `json:"items"`
		}
		_ = json.NewDecoder(r.Body).Decode(&p)
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		items.Add(int32(len(p.Items)))
		fmt.Fprint(w, `{"success":true}`)
	}))
	t.Cleanup(srv.Close)
	return srv, &items
}

func countJobs(t *testing.T, path string) int {
	t.Helper()
	s, err := store.NewSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	n, err := s.CountJobs(context.Background())
	require.NoError(t, err)
	return n
}

// ── Clean session ──────────────────────────────────────────────────────────

func TestRun_CleanSession(t *testing.T) {
	cfg := testConfig(t, config.TaskGumtree, config.TaskManual)
	srv, delivered := ingestServer(t, http.StatusOK)
	cfg.Ingest.URL = srv.URL

	gumtree := staticCollector{records: []model.Record{
		job("Cashier", "Shoprite", "Operate the till and help customers."),
		job("Cashier", "Shoprite", "Operate the till and help customers."),
		job("Cleaner", "", "Clean offices in the evening."),
	}}
	manual := staticCollector{records: []model.Record{
		job("Security Guard", "Fidelity", "Grade C guard for a Sandton site."),
	}}

	reg := prometheus.NewRegistry()
	rep, err := session.New(cfg, nil,
		session.WithClock(clock),
		session.WithCollector(config.TaskGumtree, gumtree),
		session.WithCollector(config.TaskManual, manual),
		session.WithMetrics(metrics.New(reg)),
	).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, sessionID, rep.SessionID)
	assert.False(t, rep.Interrupted)
	assert.False(t, rep.HasErrors())
	assert.Equal(t, report.ExitClean, rep.ExitCode())
	require.Len(t, rep.SpiderResults, 2)

	s := rep.Statistics
	assert.EqualValues(t, 4, s.RecordsSeen)
	assert.EqualValues(t, 1, s.Duplicates)
	assert.EqualValues(t, 1, s.ValidationDrops)
	assert.EqualValues(t, 2, s.Persisted)
	assert.EqualValues(t, 2, s.TasksRun)
	assert.EqualValues(t, 2, s.ItemsAccepted)
	assert.EqualValues(t, 2, delivered.Load())

	assert.Equal(t, 2, countJobs(t, cfg.Store.URL))

	path := filepath.Join(cfg.Report.Dir, report.FileName(sessionID))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var written map[string]any
	require.NoError(t, json.Unmarshal(raw, &written))
	assert.Equal(t, sessionID, written["session_id"])
	assert.Contains(t, written, "config")
}

func TestRun_SecondSessionUpdatesInsteadOfDuplicating(t *testing.T) {
	cfg := testConfig(t, config.TaskGumtree)

	first := staticCollector{records: []model.Record{job("Packer", "Checkers", "Pack shelves at night.")}}
	_, err := session.New(cfg, nil, session.WithCollector(config.TaskGumtree, first)).Run(context.Background())
	require.NoError(t, err)

	second := staticCollector{records: []model.Record{job("Packer", "Checkers", "Pack shelves on weekends.")}}
	_, err = session.New(cfg, nil, session.WithCollector(config.TaskGumtree, second)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, countJobs(t, cfg.Store.URL))
}

// ── Errors ─────────────────────────────────────────────────────────────────

func TestRun_FailingTaskSetsErrorExit(t *testing.T) {
	cfg := testConfig(t, config.TaskGumtree, config.TaskAdzuna)

	rep, err := session.New(cfg, nil,
		session.WithCollector(config.TaskGumtree, staticCollector{records: []model.Record{job("Cashier", "Spar", "Till work and stock.")}}),
		session.WithCollector(config.TaskAdzuna, staticCollector{err: errors.New("adzuna down")}),
	).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, rep.HasErrors())
	assert.Equal(t, report.ExitErrors, rep.ExitCode())
	assert.EqualValues(t, 1, rep.Statistics.TaskErrors)
	assert.EqualValues(t, 1, rep.Statistics.Persisted, "the healthy task still persisted")
}

func TestRun_FailedBatchSetsErrorExit(t *testing.T) {
	cfg := testConfig(t, config.TaskGumtree)
	srv, _ := ingestServer(t, http.StatusServiceUnavailable)
	cfg.Ingest.URL = srv.URL

	rep, err := session.New(cfg, nil,
		session.WithCollector(config.TaskGumtree, staticCollector{records: []model.Record{job("Cashier", "Spar", "Till work and stock.")}}),
	).Run(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 1, rep.Statistics.BatchesFailed)
	assert.Equal(t, report.ExitErrors, rep.ExitCode())
}

// rejectingStore fails every job write with a non-connection error.
type rejectingStore struct{ store.Store }

func (rejectingStore) UpsertJob(context.Context, model.Record) (int64, error) {
	return 0, errors.New("store: insert job: check constraint violated")
}

func TestRun_StorageErrorSetsErrorExit(t *testing.T) {
	cfg := testConfig(t, config.TaskGumtree)
	sqlite, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	defer sqlite.Close()
	require.NoError(t, sqlite.Migrate(context.Background()))

	rep, err := session.New(cfg, nil,
		session.WithStore(rejectingStore{sqlite}),
		session.WithCollector(config.TaskGumtree, staticCollector{records: []model.Record{job("Cashier", "Spar", "Till work and stock.")}}),
	).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, rep.SpiderResults, 1)
	assert.Equal(t, report.StatusSuccess, rep.SpiderResults[0].Status, "storage errors do not fail the task")
	assert.EqualValues(t, 1, rep.Statistics.StorageErrors)
	assert.EqualValues(t, 0, rep.Statistics.Persisted)
	assert.True(t, rep.HasErrors())
	assert.Equal(t, report.ExitErrors, rep.ExitCode())
}

func TestRun_TimedOutTask(t *testing.T) {
	cfg := testConfig(t, config.TaskGumtree)
	cfg.Tasks.Timeout = 50 * time.Millisecond

	rep, err := session.New(cfg, nil, session.WithCollector(config.TaskGumtree, blockingCollector{})).
		Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.SpiderResults, 1)
	assert.Equal(t, report.StatusTimeout, rep.SpiderResults[0].Status)
	assert.Equal(t, report.ExitErrors, rep.ExitCode())
}

func TestRun_StoreUnavailableAbortsSession(t *testing.T) {
	cfg := testConfig(t, config.TaskGumtree)
	cfg.Store.URL = "mysql://nope"

	_, err := session.New(cfg, nil).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session: open store")
}

// ── Interrupt ──────────────────────────────────────────────────────────────

func TestRun_Interrupted(t *testing.T) {
	cfg := testConfig(t, config.TaskGumtree)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	rep, err := session.New(cfg, nil,
		session.WithClock(clock),
		session.WithCollector(config.TaskGumtree, blockingCollector{}),
	).Run(ctx)
	require.NoError(t, err)

	assert.True(t, rep.Interrupted)
	assert.Equal(t, report.ExitInterrupted, rep.ExitCode())
	_, statErr := os.Stat(filepath.Join(cfg.Report.Dir, report.FileName(sessionID)))
	assert.NoError(t, statErr, "an interrupted session still writes its report")
}

// ── Dry run ────────────────────────────────────────────────────────────────

func TestRun_DryRunSkipsStoreAndIngest(t *testing.T) {
	cfg := testConfig(t, config.TaskGumtree)
	cfg.DryRun = true
	srv, delivered := ingestServer(t, http.StatusOK)
	cfg.Ingest.URL = srv.URL

	rep, err := session.New(cfg, nil,
		session.WithCollector(config.TaskGumtree, staticCollector{records: []model.Record{job("Cashier", "Spar", "Till work and stock.")}}),
	).Run(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 1, rep.Statistics.Persisted, "persisted to the in-memory store")
	assert.EqualValues(t, 0, delivered.Load())
	_, statErr := os.Stat(cfg.Store.URL)
	assert.True(t, os.IsNotExist(statErr))
}

// ── Redis ──────────────────────────────────────────────────────────────────

func TestRun_RedisSeenSetAndEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, config.TaskGumtree)
	cfg.Redis.URL = "redis://" + mr.Addr()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	sub := rdb.Subscribe(context.Background(), events.ChannelSessionCompleted)
	defer sub.Close()
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	_, err = session.New(cfg, nil,
		session.WithClock(clock),
		session.WithCollector(config.TaskGumtree, staticCollector{records: []model.Record{
			job("Cashier", "Spar", "Till work and stock."),
			job("Cashier", "Spar", "Till work and stock."),
		}}),
	).Run(context.Background())
	require.NoError(t, err)

	key := pipeline.RedisSeenKey(sessionID)
	members, err := mr.Members(key)
	require.NoError(t, err)
	assert.Len(t, members, 1)
	assert.Greater(t, mr.TTL(key), time.Duration(0))

	select {
	case msg := <-sub.Channel():
		var evt events.SessionCompleted
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &evt))
		assert.Equal(t, sessionID, evt.SessionID)
		assert.EqualValues(t, 1, evt.Statistics.Duplicates)
	case <-time.After(2 * time.Second):
		t.Fatal("session event not published")
	}
}

func TestRun_RedisDownFallsBackToMemory(t *testing.T) {
	cfg := testConfig(t, config.TaskGumtree)
	cfg.Redis.URL = "redis://127.0.0.1:1"

	rep, err := session.New(cfg, nil,
		session.WithCollector(config.TaskGumtree, staticCollector{records: []model.Record{
			job("Cashier", "Spar", "Till work and stock."),
			job("Cashier", "Spar", "Till work and stock."),
		}}),
	).Run(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, rep.Statistics.Duplicates)
	assert.False(t, rep.HasErrors())
}

// ── Command tasks ──────────────────────────────────────────────────────────

func TestRun_CommandTask(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	cfg := testConfig(t, "spider")
	cfg.Tasks.Commands = map[string]config.CommandConfig{
		"spider": {Path: "sh", Args: []string{"-c", "echo crawled 3 items"}},
	}

	rep, err := session.New(cfg, nil).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.SpiderResults, 1)
	assert.Equal(t, report.StatusSuccess, rep.SpiderResults[0].Status)
	assert.Equal(t, "crawled 3 items\n", rep.SpiderResults[0].Output)
}
