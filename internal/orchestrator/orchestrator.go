// Package orchestrator runs ingestion tasks in a bounded pool, giving each
// its own deadline and recording how every task finished.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrTimeout is the outcome error of a task that outlived its deadline.
var ErrTimeout = eris.New("orchestrator: task timed out")

// TransitionFunc observes task status changes.
type TransitionFunc func(task string, from, to Status)

// Orchestrator schedules tasks. It keeps no per-run state, so one value can
// serve consecutive runs.
type Orchestrator struct {
	limit        int
	timeout      time.Duration
	logger       *zap.Logger
	onTransition TransitionFunc
	now          func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTransitionHook registers fn for every status change. fn is called
// from task goroutines and must be safe for concurrent use.
func WithTransitionHook(fn TransitionFunc) Option {
	return func(o *Orchestrator) { o.onTransition = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// New returns an Orchestrator running at most limit tasks at once, each
// bounded by timeout. A non-positive timeout disables the deadline.
func New(limit int, timeout time.Duration, logger *zap.Logger, opts ...Option) *Orchestrator {
	if limit <= 0 {
		limit = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		limit:   limit,
		timeout: timeout,
		logger:  logger.Named("orchestrator"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes tasks and returns one Outcome per task in completion order.
// A failing task never stops the others. When ctx is cancelled, running
// tasks are cancelled and tasks not yet started finish as failed without
// running.
func (o *Orchestrator) Run(ctx context.Context, tasks []Task) []Outcome {
	o.logger.Info("starting tasks",
		zap.Int("tasks", len(tasks)),
		zap.Int("limit", o.limit),
		zap.Duration("timeout", o.timeout),
	)

	for _, t := range tasks {
		o.transition(t.Name(), "", StatusPending)
	}

	results := make(chan Outcome, len(tasks))
	var g errgroup.Group
	g.SetLimit(o.limit)

	go func() {
		for _, t := range tasks {
			g.Go(func() error {
				results <- o.runOne(ctx, t)
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	outcomes := make([]Outcome, 0, len(tasks))
	for out := range results {
		outcomes = append(outcomes, out)
	}
	return outcomes
}

type taskReturn struct {
	result Result
	err    error
}

func (o *Orchestrator) runOne(ctx context.Context, t Task) Outcome {
	name := t.Name()
	out := Outcome{Task: name, StartedAt: o.now()}

	o.transition(name, StatusPending, StatusRunning)
	if err := ctx.Err(); err != nil {
		return o.finish(out, StatusFailed, Result{}, eris.Wrap(err, "orchestrator: not started"))
	}

	tctx, cancel := o.taskContext(ctx)
	defer cancel()

	log := o.logger.With(zap.String("task", name))
	log.Info("task started")

	done := make(chan taskReturn, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- taskReturn{err: fmt.Errorf("orchestrator: task panicked: %v", p)}
			}
		}()
		res, err := t.Run(tctx)
		done <- taskReturn{result: res, err: err}
	}()

	select {
	case r := <-done:
		switch {
		case r.err == nil:
			return o.finish(out, StatusSucceeded, r.result, nil)
		case o.deadlineHit(ctx, tctx):
			return o.finish(out, StatusTimedOut, r.result, eris.Wrap(ErrTimeout, r.err.Error()))
		default:
			return o.finish(out, StatusFailed, r.result, r.err)
		}
	case <-tctx.Done():
		// The task goroutine is abandoned; done is buffered so it can exit
		// whenever the task returns.
		if o.deadlineHit(ctx, tctx) {
			return o.finish(out, StatusTimedOut, Result{}, eris.Wrapf(ErrTimeout, "after %s", o.timeout))
		}
		return o.finish(out, StatusFailed, Result{}, ctx.Err())
	}
}

func (o *Orchestrator) taskContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout > 0 {
		return context.WithTimeout(ctx, o.timeout)
	}
	return context.WithCancel(ctx)
}

// deadlineHit reports whether the task's own deadline, not the parent's
// cancellation, ended it.
func (o *Orchestrator) deadlineHit(parent, task context.Context) bool {
	return parent.Err() == nil && errors.Is(task.Err(), context.DeadlineExceeded)
}

func (o *Orchestrator) finish(out Outcome, status Status, res Result, err error) Outcome {
	out.Status = status
	out.Result = res
	out.Err = err
	out.FinishedAt = o.now()
	o.transition(out.Task, StatusRunning, status)

	fields := []zap.Field{
		zap.String("task", out.Task),
		zap.String("status", string(status)),
		zap.Int("records", res.Records),
		zap.Duration("duration", out.Duration()),
	}
	if err != nil {
		o.logger.Warn("task finished with error", append(fields, zap.Error(err))...)
	} else {
		o.logger.Info("task finished", fields...)
	}
	return out
}

func (o *Orchestrator) transition(task string, from, to Status) {
	if from != "" && !IsTransitionAllowed(from, to) {
		o.logger.Error("illegal task transition",
			zap.String("task", task),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
		return
	}
	if o.onTransition != nil {
		o.onTransition(task, from, to)
	}
}
