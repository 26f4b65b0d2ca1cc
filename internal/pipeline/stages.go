package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Noxie-dev/workwise-sa/internal/classify"
	"github.com/Noxie-dev/workwise-sa/internal/dedup"
	"github.com/Noxie-dev/workwise-sa/internal/model"
	"github.com/Noxie-dev/workwise-sa/internal/report"
	"github.com/Noxie-dev/workwise-sa/internal/store"
)

// Stage names.
const (
	StageDedup    = "deduplication"
	StageClassify = "classification"
	StagePersist  = "persistence"
)

// ── Deduplication ──────────────────────────────────────────────────────────

// DedupStage drops records whose dedup key was already seen this session.
type DedupStage struct {
	seen SeenSet
}

func NewDedupStage(seen SeenSet) *DedupStage { return &DedupStage{seen: seen} }

func (s *DedupStage) Name() string { return StageDedup }

func (s *DedupStage) Process(ctx context.Context, r model.Record) (model.Record, error) {
	added, err := s.seen.Add(ctx, dedup.Resolve(r))
	if err != nil {
		return r, err
	}
	if !added {
		return r, &DropError{Stage: StageDedup, Reason: ReasonDuplicate}
	}
	return r, nil
}

// ── Classification ─────────────────────────────────────────────────────────

// ClassifyStage assigns a category to jobs that have none. It never
// overwrites an existing category.
type ClassifyStage struct {
	classifier *classify.Classifier
	stats      *report.Stats
}

// NewClassifyStage uses c, or the default keyword table when c is nil.
func NewClassifyStage(c *classify.Classifier, stats *report.Stats) *ClassifyStage {
	if c == nil {
		c = classify.Default()
	}
	return &ClassifyStage{classifier: c, stats: stats}
}

func (s *ClassifyStage) Name() string { return StageClassify }

func (s *ClassifyStage) Process(_ context.Context, r model.Record) (model.Record, error) {
	if !r.IsJob() || r.CategoryID != 0 {
		return r, nil
	}
	r.CategoryID = s.classifier.Classify(r.Title, r.Description)
	if s.stats != nil {
		s.stats.RecordClassified()
	}
	return r, nil
}

// ── Persistence ────────────────────────────────────────────────────────────

// PersistStage writes records to the store. Ordinary storage failures are
// logged and counted and the record passes through; a lost connection is
// returned so the task aborts.
type PersistStage struct {
	store  store.Store
	stats  *report.Stats
	logger *zap.Logger
}

func NewPersistStage(st store.Store, stats *report.Stats, logger *zap.Logger) *PersistStage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PersistStage{store: st, stats: stats, logger: logger.Named("persist")}
}

func (s *PersistStage) Name() string { return StagePersist }

func (s *PersistStage) Process(ctx context.Context, r model.Record) (model.Record, error) {
	var (
		id  int64
		err error
	)
	if r.IsJob() {
		id, err = s.store.UpsertJob(ctx, r)
	} else {
		id, err = s.store.UpsertCompany(ctx, r.Name, store.CompanyFieldsFrom(r))
	}

	if err != nil {
		if errors.Is(err, store.ErrConnection) {
			return r, err
		}
		if s.stats != nil {
			s.stats.RecordStorageError()
		}
		s.logger.Warn("storage error, record kept",
			zap.String("record", r.DisplayName()),
			zap.String("source", r.SourceSite),
			zap.Error(err),
		)
		return r, nil
	}

	if r.IsJob() {
		r.JobID = id
	} else {
		r.CompanyID = id
	}
	if s.stats != nil {
		s.stats.RecordPersisted()
	}
	return r, nil
}
