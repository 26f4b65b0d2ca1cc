// Package session wires one ingestion run end to end: store, seen-set,
// pipeline, ingestion client, tasks, orchestrator, report and events.
package session

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Noxie-dev/workwise-sa/internal/config"
	"github.com/Noxie-dev/workwise-sa/internal/db"
	"github.com/Noxie-dev/workwise-sa/internal/events"
	"github.com/Noxie-dev/workwise-sa/internal/ingest"
	"github.com/Noxie-dev/workwise-sa/internal/metrics"
	"github.com/Noxie-dev/workwise-sa/internal/orchestrator"
	"github.com/Noxie-dev/workwise-sa/internal/pipeline"
	"github.com/Noxie-dev/workwise-sa/internal/report"
	"github.com/Noxie-dev/workwise-sa/internal/scraper"
	"github.com/Noxie-dev/workwise-sa/internal/store"
)

// finalizeTimeout bounds the publish and metrics work done after an
// interrupted session.
const finalizeTimeout = 10 * time.Second

// Runner executes sessions. Consecutive runs share nothing but the
// configuration and the optional metrics.
type Runner struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *metrics.Metrics
	httpClient *http.Client
	collectors map[string]orchestrator.Collector
	store      store.Store
	now        func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics records task and session metrics on m.
func WithMetrics(m *metrics.Metrics) Option { return func(r *Runner) { r.metrics = m } }

// WithHTTPClient is used by the collectors and the ingestion client.
func WithHTTPClient(h *http.Client) Option { return func(r *Runner) { r.httpClient = h } }

// WithCollector replaces the collector behind a built-in task name.
func WithCollector(name string, c orchestrator.Collector) Option {
	return func(r *Runner) { r.collectors[name] = c }
}

// WithStore runs sessions against an already open, migrated store instead
// of opening store.url. The caller keeps ownership and closes it.
func WithStore(st store.Store) Option { return func(r *Runner) { r.store = st } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

// New returns a Runner for cfg.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		cfg:        cfg,
		logger:     logger.Named("session"),
		collectors: make(map[string]orchestrator.Collector),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one session. It returns an error only when the session
// could not start, which is when the primary store is unreachable; every
// other failure is recorded in the report. Cancelling ctx interrupts the
// session, which still writes its report.
func (r *Runner) Run(ctx context.Context) (*report.Report, error) {
	start := r.now()
	sessionID := report.NewSessionID(start)
	log := r.logger.With(zap.String("session_id", sessionID))
	log.Info("session starting", zap.Strings("tasks", r.cfg.Tasks.Enabled), zap.Bool("dry_run", r.cfg.DryRun))

	stats := report.NewStats()
	if r.metrics != nil {
		r.metrics.Track(stats)
	}

	st := r.store
	if st == nil {
		opened, err := r.openStore(ctx)
		if err != nil {
			return nil, err
		}
		defer opened.Close()
		st = opened
	}

	rdb := r.openRedis(ctx, log)
	if rdb != nil {
		defer rdb.Close()
	}

	var seen pipeline.SeenSet = pipeline.NewMemorySeenSet()
	var publisher *events.Publisher
	if rdb != nil {
		seen = pipeline.NewRedisSeenSet(rdb, sessionID, r.cfg.Redis.DedupTTL)
		if r.cfg.Redis.PublishEvents {
			publisher = events.NewPublisher(rdb, r.logger)
		}
	}

	pipe := pipeline.Build(pipeline.Options{
		Level:    r.cfg.Level(),
		Classify: r.cfg.Pipeline.Classify,
		Seen:     seen,
		Store:    st,
		Stats:    stats,
		Logger:   r.logger,
	})

	tasks := r.buildTasks(sessionID, pipe, r.sender(), stats)

	var orchOpts []orchestrator.Option
	if r.metrics != nil {
		orchOpts = append(orchOpts, orchestrator.WithTransitionHook(r.metrics.ObserveTransition))
	}
	orch := orchestrator.New(r.cfg.Tasks.MaxConcurrent, r.cfg.Tasks.Timeout, r.logger, orchOpts...)
	outcomes := orch.Run(ctx, tasks)

	interrupted := ctx.Err() != nil
	// Finalization must survive the interrupt that ended the tasks.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	results := make([]report.TaskResult, 0, len(outcomes))
	for _, out := range outcomes {
		stats.RecordTaskRun()
		if out.Status != orchestrator.StatusSucceeded {
			stats.RecordTaskError()
		}
		tr := taskResult(out)
		results = append(results, tr)
		if r.metrics != nil {
			r.metrics.ObserveTask(out.Task, out.Duration())
		}
		if err := publisher.TaskFinished(fctx, sessionID, tr); err != nil {
			log.Warn("publish task event failed", zap.Error(err))
		}
	}

	if r.cfg.Pipeline.UpdateMetrics && !interrupted {
		if n, err := st.RefreshCompanyMetrics(fctx); err != nil {
			log.Warn("company metrics refresh failed", zap.Error(err))
		} else {
			log.Info("company metrics refreshed", zap.Int("companies", n))
		}
	}

	rep := &report.Report{
		SessionID:     sessionID,
		Statistics:    stats.Snapshot(),
		SpiderResults: results,
		Config:        r.cfg.Redacted(),
		StartTime:     start,
		EndTime:       r.now(),
		Interrupted:   interrupted,
	}

	path, err := rep.Write(r.cfg.Report.Dir)
	if err != nil {
		log.Error("write report failed", zap.Error(err))
	} else {
		log.Info("report written", zap.String("path", path))
	}
	rep.LogSummary(log)

	if err := publisher.SessionCompleted(fctx, rep, path); err != nil {
		log.Warn("publish session event failed", zap.Error(err))
	}
	if r.metrics != nil {
		r.metrics.ObserveSession(rep.ExitCode(), rep.EndTime)
	}
	return rep, nil
}

func (r *Runner) openStore(ctx context.Context) (store.Store, error) {
	url := r.cfg.Store.URL
	if r.cfg.DryRun {
		url = ":memory:"
	}
	st, err := store.Open(ctx, url,
		store.WithLogger(r.logger),
		store.WithPoolConfig(db.PoolConfig{MaxConns: r.cfg.Store.MaxConns, MinConns: r.cfg.Store.MinConns}),
	)
	if err != nil {
		return nil, eris.Wrap(err, "session: open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "session: migrate store")
	}
	return st, nil
}

// openRedis connects when a URL is configured. Redis is optional, so a
// failure is logged and the session continues without it.
func (r *Runner) openRedis(ctx context.Context, log *zap.Logger) *redis.Client {
	if r.cfg.Redis.URL == "" {
		return nil
	}
	rdb, err := db.NewRedisClient(ctx, r.cfg.Redis.URL)
	if err != nil {
		log.Warn("redis unavailable, using in-memory dedup and no events", zap.Error(err))
		return nil
	}
	return rdb
}

func (r *Runner) sender() orchestrator.Sender {
	if r.cfg.Ingest.URL == "" || r.cfg.DryRun {
		return nil
	}
	var opts []ingest.Option
	if r.httpClient != nil {
		opts = append(opts, ingest.WithHTTPClient(r.httpClient))
	}
	return ingest.New(ingest.Config{
		URL:               r.cfg.Ingest.URL,
		APIKey:            r.cfg.Ingest.APIKey,
		BatchSize:         r.cfg.Ingest.BatchSize,
		MaxRetries:        r.cfg.Ingest.MaxRetries,
		RetryDelay:        r.cfg.Ingest.RetryDelay,
		BackoffMultiplier: r.cfg.Ingest.BackoffMultiplier,
		Timeout:           r.cfg.Ingest.Timeout,
		Level:             r.cfg.IngestLevel(),
	}, r.logger, opts...)
}

func (r *Runner) buildTasks(sessionID string, pipe *pipeline.Pipeline, sender orchestrator.Sender, stats *report.Stats) []orchestrator.Task {
	tasks := make([]orchestrator.Task, 0, len(r.cfg.Tasks.Enabled))
	for _, name := range r.cfg.Tasks.Enabled {
		if cmd, ok := r.cfg.Tasks.Commands[name]; ok {
			tasks = append(tasks, orchestrator.NewCommandTask(name, cmd.Path, cmd.Args...).WithDir(cmd.Dir))
			continue
		}
		collector := r.collector(name)
		if collector == nil {
			r.logger.Warn("unknown task skipped", zap.String("task", name))
			continue
		}
		tasks = append(tasks, orchestrator.NewCollectorTask(orchestrator.CollectorTaskConfig{
			Name:      name,
			Collector: collector,
			Pipeline:  pipe,
			Sender:    sender,
			MaxItems:  r.cfg.Tasks.MaxItems,
			SessionID: sessionID,
			Stats:     stats,
			Logger:    r.logger,
		}))
	}
	return tasks
}

func (r *Runner) collector(name string) orchestrator.Collector {
	if c, ok := r.collectors[name]; ok {
		return c
	}
	src := r.cfg.Sources
	switch name {
	case config.TaskGumtree:
		return scraper.NewGumtreeCollector(scraper.GumtreeConfig{
			BaseURL:     src.Gumtree.BaseURL,
			StartPaths:  src.Gumtree.StartPaths,
			MaxPages:    src.Gumtree.MaxPages,
			MaxListings: r.cfg.Tasks.MaxItems,
			Interval:    src.Gumtree.Interval,
		}, r.httpClient, r.logger)
	case config.TaskAdzuna:
		return scraper.NewAdzunaCollector(scraper.AdzunaConfig{
			AppID:     src.Adzuna.AppID,
			AppKey:    src.Adzuna.AppKey,
			Country:   src.Adzuna.Country,
			Titles:    src.Adzuna.Titles,
			Locations: src.Adzuna.Locations,
			MaxPages:  src.Adzuna.MaxPages,
			Interval:  src.Adzuna.Interval,
		}, r.httpClient, r.logger)
	case config.TaskManual:
		return scraper.NewFileCollector(src.ManualJobsFile)
	}
	return nil
}

func taskResult(o orchestrator.Outcome) report.TaskResult {
	tr := report.TaskResult{
		Task:            o.Task,
		Status:          o.Status.ReportStatus(),
		Output:          o.Result.Output,
		Records:         o.Result.Records,
		StartedAt:       o.StartedAt,
		FinishedAt:      o.FinishedAt,
		DurationSeconds: o.Duration().Seconds(),
	}
	if o.Err != nil {
		tr.Error = o.Err.Error()
	}
	return tr
}
