package ingest

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Noxie-dev/workwise-sa/internal/dedup"
	"github.com/Noxie-dev/workwise-sa/internal/model"
)

// defaultCompanyID is sent for jobs whose company has no stored id.
const defaultCompanyID = 1

// Item is one job in the endpoint payload.
type Item struct {
	ExternalID  string `json:"externalId"`
	Title       string `json:"title"`
	CompanyID   int64  `json:"companyId"`
	Location    string `json:"location"`
	Salary      string `json:"salary,omitempty"`
	Description string `json:"description"`
	JobType     string `json:"jobType"`
	WorkMode    string `json:"workMode"`
	CategoryID  int    `json:"categoryId"`
	IsFeatured  bool   `json:"isFeatured"`
	Source      string `json:"source"`
}

// Payload is the request body.
type Payload struct {
	Items []Item `json:"items"`
}

func buildPayload(records []model.Record, source string) Payload {
	items := make([]Item, 0, len(records))
	for _, r := range records {
		items = append(items, toItem(r, source))
	}
	return Payload{Items: items}
}

func toItem(r model.Record, source string) Item {
	externalID := r.ExternalID
	if externalID == "" {
		externalID = string(dedup.Resolve(r))
	}
	companyID := r.CompanyID
	if companyID == 0 {
		companyID = defaultCompanyID
	}
	category := r.CategoryID
	if category == 0 {
		category = model.DefaultCategory
	}
	jobType := r.JobType
	if jobType == "" {
		jobType = model.JobTypeFullTime
	}
	workMode := r.WorkMode
	if workMode == "" {
		workMode = model.WorkModeOnSite
	}
	return Item{
		ExternalID:  externalID,
		Title:       r.Title,
		CompanyID:   companyID,
		Location:    r.Location,
		Salary:      r.Salary,
		Description: r.Description,
		JobType:     jobType,
		WorkMode:    workMode,
		CategoryID:  int(category),
		IsFeatured:  r.IsFeatured,
		Source:      source,
	}
}

// Minimum lengths enforced before sending.
const (
	minTitleLen       = 3
	minCompanyLen     = 2
	minLocationLen    = 2
	minDescriptionLen = 10
	maxSalaryLen      = 100
)

// Validate returns the problems that stop r being sent at level.
func Validate(r model.Record, level model.ValidationLevel) []string {
	var errs []string
	minLen := func(field, v string, n int) {
		if utf8.RuneCountInString(strings.TrimSpace(v)) < n {
			errs = append(errs, fmt.Sprintf("%s must be at least %d characters long", field, n))
		}
	}
	minLen("title", r.Title, minTitleLen)
	minLen("company", r.CompanyName, minCompanyLen)
	minLen("location", r.Location, minLocationLen)
	minLen("description", r.Description, minDescriptionLen)

	switch level {
	case model.ValidationStrict:
		if r.Salary == "" {
			errs = append(errs, "salary is required in strict mode")
		}
		if r.JobType == "" {
			errs = append(errs, "job type is required in strict mode")
		}
		if r.WorkMode == "" {
			errs = append(errs, "work mode is required in strict mode")
		}
		fallthrough
	case model.ValidationModerate:
		if utf8.RuneCountInString(r.Salary) > maxSalaryLen {
			errs = append(errs, fmt.Sprintf("salary too long (max %d chars)", maxSalaryLen))
		}
		if r.JobType != "" && !model.IsValidJobType(r.JobType) {
			errs = append(errs, "invalid job type")
		}
		if r.WorkMode != "" && !model.IsValidWorkMode(r.WorkMode) {
			errs = append(errs, "invalid work mode")
		}
	}
	return errs
}

// ValidateAll splits records into those that pass and one message per
// failing record.
func ValidateAll(records []model.Record, level model.ValidationLevel) ([]model.Record, []string) {
	valid := make([]model.Record, 0, len(records))
	var errs []string
	for i, r := range records {
		if problems := Validate(r, level); len(problems) > 0 {
			errs = append(errs, fmt.Sprintf("item %d (%s): %s", i, r.Title, strings.Join(problems, ", ")))
			continue
		}
		valid = append(valid, r)
	}
	return valid, errs
}
