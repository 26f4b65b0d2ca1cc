package store

import (
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Noxie-dev/workwise-sa/internal/model"
)

// Table and column names of the external WorkWise app. The app mixes
// camelCase and snake_case column names; everything that builds SQL goes
// through this file.
const (
	tableJobs      = "jobs"
	tableCompanies = "companies"

	colID        = "id"
	colDedupKey  = "dedup_key"
	colCreatedAt = "createdAt"
	colUpdatedAt = "updatedAt"

	colTitle      = "title"
	colLocation   = "location"
	colCompanyID  = "companyId"
	colSourceSite = "source_site"
	colExternalID = "external_id"

	colName          = "name"
	colSlug          = "slug"
	colLogo          = "logo"
	colWebsite       = "website"
	colOpenPositions = "openPositions"
	colHiringScore   = "hiringScore"
)

// jobColumn maps one Record field to a jobs column. Mutable columns are
// rewritten when a posting is seen again; the rest are fixed at insert.
type jobColumn struct {
	name    string
	mutable bool
	value   func(r model.Record) any
}

var jobColumns = []jobColumn{
	{colTitle, false, func(r model.Record) any { return r.Title }},
	{"description", true, func(r model.Record) any { return r.Description }},
	{colLocation, true, func(r model.Record) any { return r.Location }},
	{"salary", true, func(r model.Record) any { return r.Salary }},
	{"jobType", true, func(r model.Record) any { return r.JobType }},
	{"workMode", true, func(r model.Record) any { return r.WorkMode }},
	{colCompanyID, false, func(r model.Record) any { return r.CompanyID }},
	{"categoryId", false, func(r model.Record) any { return int(categoryOrDefault(r.CategoryID)) }},
	{"isFeatured", true, func(r model.Record) any { return r.IsFeatured }},
	{"source_url", true, func(r model.Record) any { return r.SourceURL }},
	{colSourceSite, false, func(r model.Record) any { return r.SourceSite }},
	{colExternalID, false, func(r model.Record) any { return nullIfEmpty(r.ExternalID) }},
	{"apply_url", true, func(r model.Record) any { return r.ApplyURL }},
}

func categoryOrDefault(c model.CategoryID) model.CategoryID {
	if c == 0 {
		return model.DefaultCategory
	}
	return c
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ident quotes a column or table name.
func ident(name string) string { return pgx.Identifier{name}.Sanitize() }

func identList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = ident(n)
	}
	return strings.Join(quoted, ", ")
}

// jobInsertColumns returns the full insert column list and the matching
// values for r. Timestamps come last.
func jobInsertColumns(r model.Record, key string, now any) ([]string, []any) {
	cols := make([]string, 0, len(jobColumns)+3)
	args := make([]any, 0, len(jobColumns)+3)
	cols = append(cols, colDedupKey)
	args = append(args, key)
	for _, c := range jobColumns {
		cols = append(cols, c.name)
		args = append(args, c.value(r))
	}
	cols = append(cols, colCreatedAt, colUpdatedAt)
	args = append(args, now, now)
	return cols, args
}

// jobUpdateColumns returns the mutable columns and values for r, followed
// by updatedAt.
func jobUpdateColumns(r model.Record, now any) ([]string, []any) {
	var cols []string
	var args []any
	for _, c := range jobColumns {
		if !c.mutable {
			continue
		}
		cols = append(cols, c.name)
		args = append(args, c.value(r))
	}
	cols = append(cols, colUpdatedAt)
	args = append(args, now)
	return cols, args
}
