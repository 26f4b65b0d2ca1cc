// Package pipeline runs scraped records through an explicit, ordered list
// of stages: validation, in-session deduplication, classification and
// persistence.
//
// A stage either returns the (possibly enriched) record, a *DropError that
// discards the record without failing the task, or any other error, which
// is fatal to the task that produced the record.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Noxie-dev/workwise-sa/internal/model"
	"github.com/Noxie-dev/workwise-sa/internal/report"
	"github.com/Noxie-dev/workwise-sa/internal/store"
)

// Stage is one step of the item pipeline. Process receives its own copy of
// the record and returns the copy the next stage should see.
type Stage interface {
	Name() string
	Process(ctx context.Context, r model.Record) (model.Record, error)
}

// DropReason says why a record was discarded.
type DropReason string

const (
	ReasonMissingField DropReason = "missing-required-field"
	ReasonTooLong      DropReason = "field-too-long"
	ReasonInvalidField DropReason = "invalid-field"
	ReasonDuplicate    DropReason = "duplicate-in-session"
)

// DropError discards a record. It is not a failure of the task.
type DropError struct {
	Stage  string
	Reason DropReason
	Field  string
}

func (e *DropError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: dropped: %s", e.Stage, e.Reason)
	}
	return fmt.Sprintf("%s: dropped: %s (%s)", e.Stage, e.Reason, e.Field)
}

// AsDrop returns the DropError in err's chain, if any.
func AsDrop(err error) (*DropError, bool) {
	var d *DropError
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}

// Pipeline applies its stages in order.
type Pipeline struct {
	stages []Stage
	stats  *report.Stats
	logger *zap.Logger
}

// New builds a pipeline from explicit stages.
func New(stats *report.Stats, logger *zap.Logger, stages ...Stage) *Pipeline {
	if stats == nil {
		stats = report.NewStats()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{stages: stages, stats: stats, logger: logger.Named("pipeline")}
}

// Options selects the standard stage list.
type Options struct {
	// Level defaults to lenient.
	Level    model.ValidationLevel
	Classify bool
	Seen     SeenSet
	// Store is optional; without it the persistence stage is omitted.
	Store  store.Store
	Stats  *report.Stats
	Logger *zap.Logger
}

// Build returns the standard pipeline: validation, deduplication,
// classification (unless disabled) and persistence (when a store is given).
func Build(o Options) *Pipeline {
	if o.Stats == nil {
		o.Stats = report.NewStats()
	}
	if o.Seen == nil {
		o.Seen = NewMemorySeenSet()
	}
	stages := []Stage{
		NewValidationStage(o.Level, o.Stats),
		NewDedupStage(o.Seen),
	}
	if o.Classify {
		stages = append(stages, NewClassifyStage(nil, o.Stats))
	}
	if o.Store != nil {
		stages = append(stages, NewPersistStage(o.Store, o.Stats, o.Logger))
	}
	return New(o.Stats, o.Logger, stages...)
}

// Stages returns the stage names in order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Process runs r through every stage. A drop stops the run and is returned
// as *DropError alongside the record as it was when dropped; later stages
// never see it.
func (p *Pipeline) Process(ctx context.Context, r model.Record) (model.Record, error) {
	p.stats.RecordSeen()

	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		out, err := stage.Process(ctx, r)
		if err == nil {
			r = out
			continue
		}

		if drop, ok := AsDrop(err); ok {
			if drop.Reason == ReasonDuplicate {
				p.stats.RecordDuplicate()
			} else {
				p.stats.RecordValidationDrop()
			}
			p.logger.Debug("record dropped",
				zap.String("stage", drop.Stage),
				zap.String("reason", string(drop.Reason)),
				zap.String("field", drop.Field),
				zap.String("record", r.DisplayName()),
				zap.String("source", r.SourceSite),
			)
			return r, drop
		}

		p.logger.Error("stage failed",
			zap.String("stage", stage.Name()),
			zap.String("record", r.DisplayName()),
			zap.Error(err),
		)
		return r, err
	}
	return r, nil
}
