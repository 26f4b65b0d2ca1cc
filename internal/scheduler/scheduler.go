// Package scheduler runs ingestion sessions on a cron schedule for serve
// mode.
package scheduler

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Noxie-dev/workwise-sa/internal/report"
)

// SessionRunner executes one session.
type SessionRunner interface {
	Run(ctx context.Context) (*report.Report, error)
}

// Scheduler wraps robfig/cron. A tick that arrives while a session is
// still running is skipped, and so is a manual Trigger.
type Scheduler struct {
	cron       *cron.Cron
	job        cron.Job
	schedule   cron.Schedule
	runner     SessionRunner
	spec       string
	runOnStart bool
	logger     *zap.Logger

	ctx context.Context
	// wg tracks triggered sessions; cron tracks its own.
	wg  sync.WaitGroup

	mu   sync.RWMutex
	last *report.Report
}

// New parses spec (standard five-field cron or a descriptor such as
// "@every 6h") and returns a stopped Scheduler.
func New(spec string, runOnStart bool, runner SessionRunner, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, eris.Wrapf(err, "scheduler: parse spec %q", spec)
	}
	s := &Scheduler{
		runner:     runner,
		schedule:   sched,
		spec:       spec,
		runOnStart: runOnStart,
		logger:     logger.Named("scheduler"),
		ctx:        context.Background(),
	}
	cl := cronLogger{s.logger.Sugar()}
	s.cron = cron.New(cron.WithLogger(cl))
	s.job = cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(s.runSession))
	return s, nil
}

// Start registers the job and starts the cron loop. Sessions run with ctx,
// so cancelling it interrupts a running session.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Schedule(s.schedule, s.job)
	s.cron.Start()
	s.logger.Info("cron started", zap.String("spec", s.spec), zap.Bool("run_on_start", s.runOnStart))
	if s.runOnStart {
		s.Trigger()
	}
}

// Trigger starts a session now unless one is already running.
func (s *Scheduler) Trigger() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.job.Run()
	}()
}

// Stop halts the cron loop and waits for a running session to finish or
// for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	<-s.cron.Stop().Done()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("cron stopped")
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "scheduler: wait for running session")
	}
}

// LastReport returns the report of the most recent finished session, or nil.
func (s *Scheduler) LastReport() *report.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *Scheduler) runSession() {
	s.logger.Info("session triggered")
	rep, err := s.runner.Run(s.ctx)
	if err != nil {
		s.logger.Error("session failed to start", zap.Error(err))
		return
	}
	s.mu.Lock()
	s.last = rep
	s.mu.Unlock()
	s.logger.Info("session finished",
		zap.String("session_id", rep.SessionID),
		zap.Int("exit_code", rep.ExitCode()),
	)
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ l *zap.SugaredLogger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
