// Package store persists companies and jobs into the shared WorkWise
// database. PostgreSQL and SQLite backends run the same upsert algorithm;
// only placeholder syntax, row locking and DDL differ between them.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Noxie-dev/workwise-sa/internal/db"
	"github.com/Noxie-dev/workwise-sa/internal/model"
)

// Store is the storage upsert layer used by the item pipeline.
type Store interface {
	// UpsertCompany returns the id of the company named name, creating it
	// on first sighting and merging non-empty fields otherwise.
	UpsertCompany(ctx context.Context, name string, f CompanyFields) (int64, error)
	// UpsertJob inserts or updates the job identified by r's dedup key in a
	// single transaction and returns its id. The owning company is resolved
	// by name unless r.CompanyID is already set.
	UpsertJob(ctx context.Context, r model.Record) (int64, error)
	// RefreshCompanyMetrics recomputes open positions and hiring score for
	// every company and returns how many rows were updated.
	RefreshCompanyMetrics(ctx context.Context) (int, error)
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// CompanyFields are the optional attributes merged into a company row.
// Empty strings and non-positive counts leave the stored value alone.
type CompanyFields struct {
	Logo          string
	Location      string
	Website       string
	OpenPositions int
}

// CompanyFieldsFrom extracts the mergeable attributes of a company record.
func CompanyFieldsFrom(r model.Record) CompanyFields {
	return CompanyFields{
		Logo:          r.Logo,
		Location:      r.Location,
		Website:       r.Website,
		OpenPositions: r.OpenPositions,
	}
}

// Defaults for newly created companies.
const (
	DefaultLogo            = "default-logo.svg"
	DefaultCompanyLocation = "South Africa"
	DefaultOpenPositions   = 1
)

// Slug derives a company slug: lower-cased, spaces to dashes, & to "and".
func Slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, "&", "and")
	return strings.ReplaceAll(s, " ", "-")
}

// HiringScore is twice the open positions plus five per job created in the
// last 30 days, capped at 100.
func HiringScore(openPositions, recentJobs int) int {
	return min(openPositions*2+recentJobs*5, 100)
}

// recentWindow bounds "recent" jobs for the hiring score.
const recentWindow = 30 * 24 * time.Hour

// Option configures a backend.
type Option func(*options)

type options struct {
	logger *zap.Logger
	now    func() time.Time
	pool   db.PoolConfig
}

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.logger = l } }

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithPoolConfig sizes the postgres pool.
func WithPoolConfig(c db.PoolConfig) Option { return func(o *options) { o.pool = c } }

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// Open connects to the database named by url and returns the matching
// backend. postgres:// and postgresql:// select PostgreSQL; sqlite://<path>,
// a bare path ending in .db, or :memory: select SQLite.
func Open(ctx context.Context, url string, opts ...Option) (Store, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		o := buildOptions(opts)
		pool, err := db.NewPostgresPool(ctx, url, o.pool)
		if err != nil {
			return nil, classify("open", err)
		}
		return NewPostgres(pool, opts...), nil
	case url == ":memory:", strings.HasPrefix(url, "sqlite://"), strings.HasSuffix(url, ".db"):
		return NewSQLite(strings.TrimPrefix(url, "sqlite://"), opts...)
	}
	return nil, eris.Errorf("store: unsupported database url %q", redactURL(url))
}

// redactURL strips credentials before a url reaches an error message.
func redactURL(url string) string {
	at := strings.LastIndex(url, "@")
	scheme := strings.Index(url, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return url
	}
	return url[:scheme+3] + "***" + url[at:]
}
