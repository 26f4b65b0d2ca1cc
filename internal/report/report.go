package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// SessionIDLayout formats session ids, e.g. 20260118_063000.
const SessionIDLayout = "20060102_150405"

// NewSessionID derives a session id from the session start time.
func NewSessionID(start time.Time) string { return start.Format(SessionIDLayout) }

// Exit codes for a finished session.
const (
	ExitClean       = 0
	ExitErrors      = 1
	ExitInterrupted = 2
)

// Task result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// TaskResult is the report's view of one finished task.
type TaskResult struct {
	Task            string    `json:"task"`
	Status          string    `json:"status"`
	Error           string    `json:"error,omitempty"`
	Output          string    `json:"output,omitempty"`
	Records         int       `json:"records"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// Report is the session artifact.
type Report struct {
	SessionID     string       `json:"session_id"`
	Statistics    Snapshot     `json:"statistics"`
	SpiderResults []TaskResult `json:"spider_results"`
	Config        any          `json:"config"`
	StartTime     time.Time    `json:"start_time"`
	EndTime       time.Time    `json:"end_time"`
	Interrupted   bool         `json:"interrupted,omitempty"`
}

// FileName returns the deterministic report file name for a session.
func FileName(sessionID string) string {
	return "scraping_report_" + sessionID + ".json"
}

// Write stores the report as indented JSON in dir and returns its path.
func (r *Report) Write(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "report: create dir %s", dir)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "report: marshal")
	}
	path := filepath.Join(dir, FileName(r.SessionID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "report: write %s", path)
	}
	return path, nil
}

// HasErrors reports whether any task failed or timed out, any record failed
// to persist, or any ingestion batch was given up on.
func (r *Report) HasErrors() bool {
	for _, t := range r.SpiderResults {
		if t.Status != StatusSuccess {
			return true
		}
	}
	s := r.Statistics
	return s.TaskErrors > 0 || s.StorageErrors > 0 || s.BatchesFailed > 0
}

// ExitCode maps the report to the process exit status.
func (r *Report) ExitCode() int {
	switch {
	case r.Interrupted:
		return ExitInterrupted
	case r.HasErrors():
		return ExitErrors
	default:
		return ExitClean
	}
}

// LogSummary writes a one-line session summary plus one line per task.
func (r *Report) LogSummary(logger *zap.Logger) {
	if logger == nil {
		return
	}
	s := r.Statistics
	logger.Info("session summary",
		zap.String("session_id", r.SessionID),
		zap.Duration("duration", r.EndTime.Sub(r.StartTime)),
		zap.Int64("tasks_run", s.TasksRun),
		zap.Int64("task_errors", s.TaskErrors),
		zap.Int64("records_seen", s.RecordsSeen),
		zap.Int64("persisted", s.Persisted),
		zap.Int64("validation_drops", s.ValidationDrops),
		zap.Int64("duplicates", s.Duplicates),
		zap.Int64("storage_errors", s.StorageErrors),
		zap.Int64("ingest_accepted", s.ItemsAccepted),
		zap.Int64("ingest_rejected", s.ItemsRejected),
		zap.Bool("interrupted", r.Interrupted),
	)
	for _, t := range r.SpiderResults {
		fields := []zap.Field{
			zap.String("task", t.Task),
			zap.String("status", t.Status),
			zap.Int("records", t.Records),
			zap.Float64("duration_seconds", t.DurationSeconds),
		}
		if t.Error != "" {
			logger.Warn("task result", append(fields, zap.String("error", t.Error))...)
			continue
		}
		logger.Info("task result", fields...)
	}
}
