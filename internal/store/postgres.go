package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Noxie-dev/workwise-sa/internal/db"
	"github.com/Noxie-dev/workwise-sa/internal/model"
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool   db.Pool
	eng    engine
	logger *zap.Logger
}

// NewPostgres wraps an open pool. The store takes ownership and closes it.
func NewPostgres(pool db.Pool, opts ...Option) *PostgresStore {
	o := buildOptions(opts)
	return &PostgresStore{
		pool:   pool,
		eng:    engine{d: postgresDialect, now: o.now},
		logger: o.logger.Named("store"),
	}
}

// pgQuerier adapts pgx.Tx to querier.
type pgQuerier struct {
	tx pgx.Tx
}

func (p pgQuerier) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := p.tx.Exec(ctx, query, args...)
	return tag.RowsAffected(), err
}

func (p pgQuerier) QueryRow(ctx context.Context, query string, args ...any) row {
	return p.tx.QueryRow(ctx, query, args...)
}

// inTx runs fn in a transaction, rolling back on error.
func (s *PostgresStore) inTx(ctx context.Context, op string, fn func(q querier) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classify(op+": begin tx", err)
	}
	if err := fn(pgQuerier{tx: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.logger.Debug("rollback failed", zap.String("op", op), zap.Error(rbErr))
		}
		return err
	}
	return classify(op+": commit", tx.Commit(ctx))
}

func (s *PostgresStore) UpsertCompany(ctx context.Context, name string, f CompanyFields) (int64, error) {
	var id int64
	err := s.inTx(ctx, "upsert company", func(q querier) error {
		var err error
		id, err = s.eng.upsertCompany(ctx, q, name, f)
		return err
	})
	return id, err
}

func (s *PostgresStore) UpsertJob(ctx context.Context, r model.Record) (int64, error) {
	var id int64
	err := s.inTx(ctx, "upsert job", func(q querier) error {
		var err error
		id, err = s.eng.upsertJob(ctx, q, r)
		return err
	})
	return id, err
}

func (s *PostgresStore) RefreshCompanyMetrics(ctx context.Context) (int, error) {
	var n int
	err := s.inTx(ctx, "refresh metrics", func(q querier) error {
		var err error
		n, err = s.eng.refreshAll(ctx, q)
		return err
	})
	return n, err
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range postgresMigrations {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return classify("migrate", err)
		}
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return classify("ping", s.pool.Ping(ctx))
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
