// Package ingest forwards job batches to the WorkWise ingestion endpoint
// with local validation and whole-batch retries.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Noxie-dev/workwise-sa/internal/model"
	"github.com/Noxie-dev/workwise-sa/internal/resilience"
)

const (
	// EndpointPath is appended to the configured base URL.
	EndpointPath = "/.netlify/functions/jobsIngest"
	// UserAgent identifies the client to the endpoint.
	UserAgent = "WorkWise-JobIngestion/1.0"

	defaultBatchSize = 100
	defaultTimeout   = 30 * time.Second
	maxErrorBody     = 2048
)

var (
	// ErrNoValidItems is returned when local validation rejects every item
	// of a batch; nothing is sent.
	ErrNoValidItems = eris.New("ingest: no valid items in batch")
	// ErrServerRejected marks a 200 response whose body reports failure.
	ErrServerRejected = eris.New("ingest: server reported failure")
)

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ingest: endpoint returned %d: %s", e.Code, e.Body)
}

// Config configures a Client.
type Config struct {
	URL               string
	APIKey            string
	BatchSize         int
	MaxRetries        int
	RetryDelay        time.Duration
	BackoffMultiplier float64
	Timeout           time.Duration
	Level             model.ValidationLevel
}

// Client sends batches to the ingestion endpoint. It holds no per-batch
// state and is safe for concurrent use.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// New returns a Client for cfg.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Client {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Level == "" {
		cfg.Level = model.ValidationModerate
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.Named("ingest"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BatchSize returns the configured chunk size for SendAll.
func (c *Client) BatchSize() int { return c.cfg.BatchSize }

// Result describes one batch.
type Result struct {
	Accepted         int            `json:"accepted"`
	Rejected         int            `json:"rejected"`
	Attempts         int            `json:"attempts"`
	ValidationErrors []string       `json:"validation_errors,omitempty"`
	Response         map[string]any `json:"response,omitempty"`
	Err              error          `json:"-"`
}

// OK reports whether the batch was delivered.
func (r Result) OK() bool { return r.Err == nil }

// Sent reports whether at least one request was made.
func (r Result) Sent() bool { return r.Attempts > 0 }

// SendBatch validates records, sends the valid ones as one batch and
// retries the whole batch on transient failures. It never panics; delivery
// failure is reported through Result.Err.
func (c *Client) SendBatch(ctx context.Context, records []model.Record, source string) Result {
	valid, verrs := ValidateAll(records, c.cfg.Level)
	res := Result{Rejected: len(records) - len(valid), ValidationErrors: verrs}
	for _, e := range verrs {
		c.logger.Warn("item failed validation", zap.String("source", source), zap.String("error", e))
	}
	if len(valid) == 0 {
		if len(records) > 0 {
			res.Err = ErrNoValidItems
		}
		return res
	}

	body, err := json.Marshal(buildPayload(valid, source))
	if err != nil {
		res.Err = eris.Wrap(err, "ingest: marshal payload")
		res.Rejected = len(records)
		return res
	}

	idempotencyKey := uuid.NewString()
	policy := resilience.Policy{
		MaxRetries: c.cfg.MaxRetries,
		Delay:      c.cfg.RetryDelay,
		Multiplier: c.cfg.BackoffMultiplier,
		OnRetry:    resilience.RetryLogger(c.logger, "send batch"),
	}

	res.Attempts, err = resilience.Do(ctx, policy, func(ctx context.Context, _ int) error {
		resp, err := c.post(ctx, body, idempotencyKey)
		res.Response = resp
		return err
	})
	if err != nil {
		res.Err = err
		res.Rejected = len(records)
		c.logger.Error("batch delivery failed",
			zap.String("source", source),
			zap.Int("items", len(valid)),
			zap.Int("attempts", res.Attempts),
			zap.Error(err),
		)
		return res
	}

	res.Accepted = len(valid)
	c.logger.Info("batch delivered",
		zap.String("source", source),
		zap.Int("accepted", res.Accepted),
		zap.Int("rejected", res.Rejected),
		zap.Int("attempts", res.Attempts),
	)
	return res
}

// SendAll splits records into BatchSize chunks and sends them in order.
func (c *Client) SendAll(ctx context.Context, records []model.Record, source string) []Result {
	var results []Result
	for start := 0; start < len(records); start += c.cfg.BatchSize {
		if ctx.Err() != nil {
			break
		}
		end := min(start+c.cfg.BatchSize, len(records))
		results = append(results, c.SendBatch(ctx, records[start:end], source))
	}
	return results
}

func (c *Client) post(ctx context.Context, body []byte, idempotencyKey string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+EndpointPath, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "ingest: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Idempotency-Key", idempotencyKey)
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "ingest: read body"), resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Code: resp.StatusCode, Body: truncateBody(raw)}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	var decoded map[string]any
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, eris.Wrap(err, "ingest: decode response")
		}
	}
	if success, ok := decoded["success"].(bool); ok && !success {
		msg, _ := decoded["message"].(string)
		return decoded, resilience.NewTransientError(eris.Wrapf(ErrServerRejected, "%s", msg), resp.StatusCode)
	}
	return decoded, nil
}

func truncateBody(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}

// AsStatusError returns the StatusError in err's chain, if any.
func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
