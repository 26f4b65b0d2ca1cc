// Package events publishes ingestion lifecycle events on Redis pub/sub so
// other services can react to a finished scrape.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Noxie-dev/workwise-sa/internal/report"
)

// Channel names.
const (
	ChannelSessionCompleted = "EVENT_SCRAPE_SESSION_COMPLETED"
	ChannelTaskFinished     = "EVENT_SCRAPE_TASK_FINISHED"
)

// SessionCompleted is the payload of ChannelSessionCompleted.
type SessionCompleted struct {
	Type        string          `json:"type"`
	SessionID   string          `json:"sessionId"`
	Statistics  report.Snapshot `json:"statistics"`
	Tasks       int             `json:"tasks"`
	HasErrors   bool            `json:"hasErrors"`
	Interrupted bool            `json:"interrupted"`
	ReportPath  string          `json:"reportPath,omitempty"`
	FinishedAt  time.Time       `json:"finishedAt"`
}

// TaskFinished is the payload of ChannelTaskFinished.
type TaskFinished struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Task      string `json:"task"`
	Status    string `json:"status"`
	Records   int    `json:"records"`
	Error     string `json:"error,omitempty"`
}

// Publisher sends events. A nil *Publisher is valid and publishes nothing,
// which is how sessions run without Redis.
type Publisher struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewPublisher returns a Publisher on rdb.
func NewPublisher(rdb *redis.Client, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{rdb: rdb, logger: logger.Named("events")}
}

// SessionCompleted announces the end of a session.
func (p *Publisher) SessionCompleted(ctx context.Context, r *report.Report, reportPath string) error {
	if p == nil {
		return nil
	}
	return p.publish(ctx, ChannelSessionCompleted, SessionCompleted{
		Type:        ChannelSessionCompleted,
		SessionID:   r.SessionID,
		Statistics:  r.Statistics,
		Tasks:       len(r.SpiderResults),
		HasErrors:   r.HasErrors(),
		Interrupted: r.Interrupted,
		ReportPath:  reportPath,
		FinishedAt:  r.EndTime,
	})
}

// TaskFinished announces one finished task.
func (p *Publisher) TaskFinished(ctx context.Context, sessionID string, t report.TaskResult) error {
	if p == nil {
		return nil
	}
	return p.publish(ctx, ChannelTaskFinished, TaskFinished{
		Type:      ChannelTaskFinished,
		SessionID: sessionID,
		Task:      t.Task,
		Status:    t.Status,
		Records:   t.Records,
		Error:     t.Error,
	})
}

func (p *Publisher) publish(ctx context.Context, channel string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrapf(err, "events: marshal %s", channel)
	}
	if err := p.rdb.Publish(ctx, channel, body).Err(); err != nil {
		return eris.Wrapf(err, "events: publish %s", channel)
	}
	p.logger.Debug("event published", zap.String("channel", channel))
	return nil
}
