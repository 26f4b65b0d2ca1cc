package orchestrator

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Noxie-dev/workwise-sa/internal/ingest"
	"github.com/Noxie-dev/workwise-sa/internal/model"
	"github.com/Noxie-dev/workwise-sa/internal/pipeline"
	"github.com/Noxie-dev/workwise-sa/internal/report"
)

// Collector produces raw records from one source. It may fail or hang;
// the task deadline bounds it.
type Collector interface {
	Collect(ctx context.Context) ([]model.Record, error)
}

// Sender forwards job batches to the remote ingestion endpoint.
type Sender interface {
	SendBatch(ctx context.Context, records []model.Record, source string) ingest.Result
	BatchSize() int
}

// CollectorTask runs one collector's records through the pipeline and
// forwards the surviving jobs in batches.
type CollectorTask struct {
	name      string
	collector Collector
	pipeline  *pipeline.Pipeline
	sender    Sender
	maxItems  int
	sessionID string
	stats     *report.Stats
	logger    *zap.Logger
}

// CollectorTaskConfig holds the dependencies of a CollectorTask. Sender is
// optional; without it records are only persisted.
type CollectorTaskConfig struct {
	Name      string
	Collector Collector
	Pipeline  *pipeline.Pipeline
	Sender    Sender
	MaxItems  int
	SessionID string
	Stats     *report.Stats
	Logger    *zap.Logger
}

// NewCollectorTask builds a CollectorTask.
func NewCollectorTask(cfg CollectorTaskConfig) *CollectorTask {
	if cfg.Stats == nil {
		cfg.Stats = report.NewStats()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &CollectorTask{
		name:      cfg.Name,
		collector: cfg.Collector,
		pipeline:  cfg.Pipeline,
		sender:    cfg.Sender,
		maxItems:  cfg.MaxItems,
		sessionID: cfg.SessionID,
		stats:     cfg.Stats,
		logger:    cfg.Logger.Named("task").With(zap.String("task", cfg.Name)),
	}
}

func (t *CollectorTask) Name() string { return t.name }

// Run collects, caps at the item limit, processes every record and sends
// the jobs that made it through. Drops are not errors; a fatal pipeline
// error (lost store connection) ends the task.
func (t *CollectorTask) Run(ctx context.Context) (Result, error) {
	records, err := t.collector.Collect(ctx)
	if err != nil {
		return Result{}, eris.Wrapf(err, "collect %s", t.name)
	}
	if t.maxItems > 0 && len(records) > t.maxItems {
		t.logger.Info("capping collected records",
			zap.Int("collected", len(records)),
			zap.Int("max_items", t.maxItems),
		)
		records = records[:t.maxItems]
	}

	var (
		passed int
		batch  []model.Record
	)
	flush := func() {
		if len(batch) > 0 && t.sender != nil {
			t.send(ctx, batch)
		}
		batch = nil
	}

	for _, r := range records {
		if r.SourceSite == "" {
			r.SourceSite = t.name
		}
		r.SessionID = t.sessionID

		out, err := t.pipeline.Process(ctx, r)
		if err != nil {
			if _, dropped := pipeline.AsDrop(err); dropped {
				continue
			}
			flush()
			return Result{Records: passed}, eris.Wrapf(err, "process %s", t.name)
		}
		passed++

		if t.sender != nil && out.IsJob() {
			batch = append(batch, out)
			if len(batch) >= t.sender.BatchSize() {
				flush()
			}
		}
	}
	flush()

	t.logger.Info("collector task complete",
		zap.Int("collected", len(records)),
		zap.Int("passed", passed),
	)
	return Result{Records: passed}, nil
}

func (t *CollectorTask) send(ctx context.Context, batch []model.Record) {
	res := t.sender.SendBatch(ctx, batch, t.name)
	if errors.Is(res.Err, ingest.ErrNoValidItems) {
		t.stats.RecordIngestRejected(res.Rejected)
		return
	}
	t.stats.RecordBatch(res.OK(), res.Accepted, res.Rejected)
}
