package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/Noxie-dev/workwise-sa/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It serves the
// default local database and dry runs (":memory:").
type SQLiteStore struct {
	db     *sql.DB
	eng    engine
	logger *zap.Logger
}

// NewSQLite opens the database at dsn. SQLite allows one writer, so the
// pool is pinned to a single connection; that also keeps ":memory:" a
// single database for the life of the store.
func NewSQLite(dsn string, opts ...Option) (*SQLiteStore, error) {
	o := buildOptions(opts)
	if dsn == "" {
		return nil, eris.New("sqlite: empty path")
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	conn.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"}
	if dsn != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL")
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}

	return &SQLiteStore{
		db:     conn,
		eng:    engine{d: sqliteDialect, now: o.now},
		logger: o.logger.Named("store"),
	}, nil
}

type sqlQuerier struct {
	tx *sql.Tx
}

func (s sqlQuerier) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s sqlQuerier) QueryRow(ctx context.Context, query string, args ...any) row {
	return s.tx.QueryRowContext(ctx, query, args...)
}

func (s *SQLiteStore) inTx(ctx context.Context, op string, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(op+": begin tx", err)
	}
	if err := fn(sqlQuerier{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Debug("rollback failed", zap.String("op", op), zap.Error(rbErr))
		}
		return err
	}
	return classify(op+": commit", tx.Commit())
}

func (s *SQLiteStore) UpsertCompany(ctx context.Context, name string, f CompanyFields) (int64, error) {
	var id int64
	err := s.inTx(ctx, "upsert company", func(q querier) error {
		var err error
		id, err = s.eng.upsertCompany(ctx, q, name, f)
		return err
	})
	return id, err
}

func (s *SQLiteStore) UpsertJob(ctx context.Context, r model.Record) (int64, error) {
	var id int64
	err := s.inTx(ctx, "upsert job", func(q querier) error {
		var err error
		id, err = s.eng.upsertJob(ctx, q, r)
		return err
	})
	return id, err
}

func (s *SQLiteStore) RefreshCompanyMetrics(ctx context.Context) (int, error) {
	var n int
	err := s.inTx(ctx, "refresh metrics", func(q querier) error {
		var err error
		n, err = s.eng.refreshAll(ctx, q)
		return err
	})
	return n, err
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	for _, stmt := range sqliteMigrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return classify("migrate", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return classify("ping", s.db.PingContext(ctx))
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CountJobs returns the number of stored jobs.
func (s *SQLiteStore) CountJobs(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+ident(tableJobs)).Scan(&n)
	return n, classify("count jobs", err)
}

// Job loads a stored job by id.
func (s *SQLiteStore) Job(ctx context.Context, id int64) (model.Job, error) {
	var (
		j          model.Job
		externalID sql.NullString
		category   int
	)
	err := s.db.QueryRowContext(ctx, s.eng.q(`SELECT id, dedup_key, title, description, location, salary,
		"jobType", "workMode", "companyId", "categoryId", "isFeatured", source_url, source_site,
		external_id, apply_url FROM jobs WHERE id = $1`), id).Scan(
		&j.ID, &j.DedupKey, &j.Title, &j.Description, &j.Location, &j.Salary,
		&j.JobType, &j.WorkMode, &j.CompanyID, &category, &j.IsFeatured, &j.SourceURL, &j.SourceSite,
		&externalID, &j.ApplyURL,
	)
	if err != nil {
		return model.Job{}, classify("load job", err)
	}
	j.CategoryID = model.CategoryID(category)
	j.ExternalID = externalID.String
	return j, nil
}

// Company loads a stored company by id.
func (s *SQLiteStore) Company(ctx context.Context, id int64) (model.Company, error) {
	var (
		c       model.Company
		website sql.NullString
	)
	err := s.db.QueryRowContext(ctx, s.eng.q(`SELECT id, name, slug, logo, location, website,
		"openPositions", "hiringScore" FROM companies WHERE id = $1`), id).Scan(
		&c.ID, &c.Name, &c.Slug, &c.Logo, &c.Location, &website, &c.OpenPositions, &c.HiringScore,
	)
	if err != nil {
		return model.Company{}, classify("load company", err)
	}
	c.Website = website.String
	return c, nil
}
