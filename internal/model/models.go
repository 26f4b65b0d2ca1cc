// Package model defines shared data structures for the ingestion service.
package model

import "time"

// Kind distinguishes the two record shapes collectors emit.
type Kind string

const (
	KindJob     Kind = "job"
	KindCompany Kind = "company"
)

// Record is a scraped job or company as handed over by a collector.
// Pipeline stages receive and return it by value: a stage enriches its own
// copy and never writes through to the caller's record, so a retried or
// re-scraped record always starts from the collector's original.
type Record struct {
	Kind Kind `json:"kind"`

	// Job fields
	Title       string `json:"title,omitempty"`
	CompanyName string `json:"companyName,omitempty"`
	Description string `json:"description,omitempty"`
	Salary      string `json:"salary,omitempty"`
	JobType     string `json:"jobType,omitempty"`
	WorkMode    string `json:"workMode,omitempty"`
	ApplyURL    string `json:"applyUrl,omitempty"`
	IsFeatured  bool   `json:"isFeatured,omitempty"`
	IsUrgent    bool   `json:"isUrgent,omitempty"`

	// Company fields
	Name          string `json:"name,omitempty"`
	Logo          string `json:"logo,omitempty"`
	Website       string `json:"website,omitempty"`
	OpenPositions int    `json:"openPositions,omitempty"`

	// Shared
	Location   string `json:"location,omitempty"`
	SourceSite string `json:"sourceSite,omitempty"`
	SourceURL  string `json:"sourceUrl,omitempty"`
	ExternalID string `json:"externalId,omitempty"`

	// Set by the pipeline on the derived copy.
	CategoryID CategoryID `json:"categoryId,omitempty"`
	CompanyID  int64      `json:"companyId,omitempty"`
	JobID      int64      `json:"jobId,omitempty"`
	SessionID  string     `json:"sessionId,omitempty"`

	PostedAt  *time.Time `json:"postedAt,omitempty"`
	ScrapedAt time.Time  `json:"scrapedAt,omitempty"`
}

// IsJob reports whether r describes a job posting. Records with no kind are
// treated as jobs, which is what every collector produces by default.
func (r Record) IsJob() bool { return r.Kind == KindJob || r.Kind == "" }

// DisplayName returns the title of a job or the name of a company.
func (r Record) DisplayName() string {
	if r.IsJob() {
		return r.Title
	}
	return r.Name
}

// Company mirrors a row of the companies table.
type Company struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	Logo          string    `json:"logo"`
	Location      string    `json:"location"`
	Website       string    `json:"website,omitempty"`
	OpenPositions int       `json:"openPositions"`
	HiringScore   int       `json:"hiringScore"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Job mirrors a row of the jobs table.
type Job struct {
	ID          int64      `json:"id"`
	DedupKey    string     `json:"dedupKey"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	Salary      string     `json:"salary"`
	JobType     string     `json:"jobType"`
	WorkMode    string     `json:"workMode"`
	CompanyID   int64      `json:"companyId"`
	CategoryID  CategoryID `json:"categoryId"`
	IsFeatured  bool       `json:"isFeatured"`
	SourceURL   string     `json:"sourceUrl"`
	SourceSite  string     `json:"sourceSite"`
	ExternalID  string     `json:"externalId"`
	ApplyURL    string     `json:"applyUrl"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}
