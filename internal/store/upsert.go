package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/Noxie-dev/workwise-sa/internal/dedup"
	"github.com/Noxie-dev/workwise-sa/internal/model"
)

// ── Backend plumbing ───────────────────────────────────────────────────────

// row is satisfied by pgx.Row and *sql.Row.
type row interface {
	Scan(dest ...any) error
}

// querier is the minimal statement surface both backends provide inside a
// transaction.
type querier interface {
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	QueryRow(ctx context.Context, query string, args ...any) row
}

// dialect captures what differs between backends in the shared SQL.
type dialect struct {
	name string
	// rebind rewrites $N placeholders for the backend.
	rebind func(string) string
	// lockSuffix is appended to lookups that precede an update.
	lockSuffix string
}

var postgresDialect = dialect{
	name:       "postgres",
	rebind:     func(q string) string { return q },
	lockSuffix: " FOR UPDATE",
}

// sqliteDialect turns $N into ?N, which SQLite binds positionally and lets
// a parameter be referenced more than once.
var sqliteDialect = dialect{
	name:   "sqlite",
	rebind: func(q string) string { return strings.ReplaceAll(q, "$", "?") },
}

func placeholders(from, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = "$" + strconv.Itoa(from+i)
	}
	return strings.Join(ps, ", ")
}

// engine runs the upsert algorithm against one dialect.
type engine struct {
	d   dialect
	now func() time.Time
}

func (e engine) q(query string) string { return e.d.rebind(query) }

func (e engine) stamp() time.Time { return e.now().UTC() }

// ── Companies ──────────────────────────────────────────────────────────────

func (e engine) findCompany(ctx context.Context, q querier, name string) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, e.q(fmt.Sprintf(
		`SELECT %s FROM %s WHERE LOWER(%s) = LOWER($1) LIMIT 1`,
		ident(colID), ident(tableCompanies), ident(colName),
	)), name).Scan(&id)
	return id, err
}

// upsertCompany returns the id of the company called name, inserting it if
// needed. A match always has its updatedAt touched, even with no fields to
// merge. A concurrent insert of the same name is absorbed by ON CONFLICT
// and resolved by a second lookup.
func (e engine) upsertCompany(ctx context.Context, q querier, name string, f CompanyFields) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, eris.Wrap(ErrInvalidRecord, "store: company name is required")
	}

	id, err := e.findCompany(ctx, q, name)
	switch {
	case err == nil:
		return id, e.mergeCompany(ctx, q, id, f)
	case !isNoRows(err):
		return 0, classify("find company", err)
	}

	now := e.stamp()
	logo, location, open := f.Logo, f.Location, f.OpenPositions
	if logo == "" {
		logo = DefaultLogo
	}
	if location == "" {
		location = DefaultCompanyLocation
	}
	if open <= 0 {
		open = DefaultOpenPositions
	}

	cols := []string{colName, colSlug, colLogo, colLocation, colWebsite, colOpenPositions, colHiringScore, colCreatedAt, colUpdatedAt}
	err = q.QueryRow(ctx, e.q(fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING RETURNING %s`,
		ident(tableCompanies), identList(cols), placeholders(1, len(cols)), ident(colID),
	)), name, Slug(name), logo, location, nullIfEmpty(f.Website), open, 0, now, now).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !isNoRows(err) {
		return 0, classify("insert company", err)
	}

	// Lost the race to another writer; the row exists now.
	id, err = e.findCompany(ctx, q, name)
	if err != nil {
		return 0, classify("find company after conflict", err)
	}
	return id, nil
}

func (e engine) mergeCompany(ctx context.Context, q querier, id int64, f CompanyFields) error {
	_, err := q.Exec(ctx, e.q(fmt.Sprintf(
		`UPDATE %[1]s SET
			%[2]s = COALESCE(NULLIF($1, ''), %[2]s),
			%[3]s = COALESCE(NULLIF($2, ''), %[3]s),
			%[4]s = COALESCE(NULLIF($3, ''), %[4]s),
			%[5]s = CASE WHEN $4 > 0 THEN $4 ELSE %[5]s END,
			%[6]s = $5
		WHERE %[7]s = $6`,
		ident(tableCompanies), ident(colLogo), ident(colLocation), ident(colWebsite),
		ident(colOpenPositions), ident(colUpdatedAt), ident(colID),
	)), f.Logo, f.Location, f.Website, f.OpenPositions, e.stamp(), id)
	return classify("merge company", err)
}

// ── Jobs ───────────────────────────────────────────────────────────────────

// upsertJob implements the job half of the layer. It must run inside a
// transaction so the lookup lock, the write and the company metrics refresh
// commit together.
func (e engine) upsertJob(ctx context.Context, q querier, r model.Record) (int64, error) {
	if strings.TrimSpace(r.Title) == "" {
		return 0, eris.Wrap(ErrInvalidRecord, "store: job title is required")
	}

	if r.CompanyID == 0 {
		companyID, err := e.upsertCompany(ctx, q, r.CompanyName, CompanyFields{})
		if err != nil {
			return 0, err
		}
		r.CompanyID = companyID
	}

	id, err := e.findJob(ctx, q, r)
	switch {
	case err == nil:
		if err := e.updateJob(ctx, q, id, r); err != nil {
			return 0, err
		}
	case isNoRows(err):
		id, err = e.insertJob(ctx, q, r)
		if err != nil {
			return 0, err
		}
	default:
		return 0, classify("find job", err)
	}

	if err := e.refreshCompany(ctx, q, r.CompanyID); err != nil {
		return 0, err
	}
	return id, nil
}

// findJob looks a job up by (source site, external id) when the record has
// an external id, else by case-insensitive title and location within the
// owning company.
func (e engine) findJob(ctx context.Context, q querier, r model.Record) (int64, error) {
	var (
		query string
		args  []any
	)
	if strings.TrimSpace(r.ExternalID) != "" {
		query = fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND %s = $2 LIMIT 1`,
			ident(colID), ident(tableJobs), ident(colSourceSite), ident(colExternalID))
		args = []any{r.SourceSite, r.ExternalID}
	} else {
		query = fmt.Sprintf(`SELECT %s FROM %s WHERE LOWER(%s) = LOWER($1) AND %s = $2 AND LOWER(%s) = LOWER($3) LIMIT 1`,
			ident(colID), ident(tableJobs), ident(colTitle), ident(colCompanyID), ident(colLocation))
		args = []any{r.Title, r.CompanyID, r.Location}
	}

	var id int64
	err := q.QueryRow(ctx, e.q(query+e.d.lockSuffix), args...).Scan(&id)
	return id, err
}

func (e engine) insertJob(ctx context.Context, q querier, r model.Record) (int64, error) {
	key := string(dedup.Resolve(r))
	cols, args := jobInsertColumns(r, key, e.stamp())

	var id int64
	err := q.QueryRow(ctx, e.q(fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING RETURNING %s`,
		ident(tableJobs), identList(cols), placeholders(1, len(cols)), ident(colID),
	)), args...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !isNoRows(err) {
		return 0, classify("insert job", err)
	}

	// The dedup key already belongs to a row the lookup did not find, e.g.
	// same external id under different title text. Update that row instead.
	err = q.QueryRow(ctx, e.q(fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`,
		ident(colID), ident(tableJobs), ident(colDedupKey))+e.d.lockSuffix), key).Scan(&id)
	if err != nil {
		return 0, classify("find job by dedup key", err)
	}
	return id, e.updateJob(ctx, q, id, r)
}

func (e engine) updateJob(ctx context.Context, q querier, id int64, r model.Record) error {
	cols, args := jobUpdateColumns(r, e.stamp())
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", ident(c), i+1)
	}
	args = append(args, id)
	_, err := q.Exec(ctx, e.q(fmt.Sprintf(`UPDATE %s SET %s WHERE %s = $%d`,
		ident(tableJobs), strings.Join(sets, ", "), ident(colID), len(args))), args...)
	return classify("update job", err)
}

// ── Company metrics ────────────────────────────────────────────────────────

// metricsUpdate recomputes open positions and hiring score from the jobs
// table. $1 is the recent-jobs cutoff, $2 the update timestamp.
func metricsUpdate() string {
	open := fmt.Sprintf(`(SELECT COUNT(*) FROM %s j WHERE j.%s = %s.%s)`,
		ident(tableJobs), ident(colCompanyID), ident(tableCompanies), ident(colID))
	recent := fmt.Sprintf(`(SELECT COUNT(*) FROM %s j WHERE j.%s = %s.%s AND j.%s >= $1)`,
		ident(tableJobs), ident(colCompanyID), ident(tableCompanies), ident(colID), ident(colCreatedAt))
	score := fmt.Sprintf(`(%s * 2 + %s * 5)`, open, recent)
	return fmt.Sprintf(`UPDATE %s SET %s = %s, %s = CASE WHEN %s > 100 THEN 100 ELSE %s END, %s = $2`,
		ident(tableCompanies), ident(colOpenPositions), open, ident(colHiringScore), score, score, ident(colUpdatedAt))
}

func (e engine) refreshCompany(ctx context.Context, q querier, companyID int64) error {
	now := e.stamp()
	_, err := q.Exec(ctx, e.q(metricsUpdate()+fmt.Sprintf(` WHERE %s = $3`, ident(colID))),
		now.Add(-recentWindow), now, companyID)
	return classify("refresh company metrics", err)
}

func (e engine) refreshAll(ctx context.Context, q querier) (int, error) {
	now := e.stamp()
	n, err := q.Exec(ctx, e.q(metricsUpdate()), now.Add(-recentWindow), now)
	if err != nil {
		return 0, classify("refresh all company metrics", err)
	}
	return int(n), nil
}
