package pipeline

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Noxie-dev/workwise-sa/internal/model"
	"github.com/Noxie-dev/workwise-sa/internal/report"
)

// Field limits applied by validation.
const (
	MaxTitleLen       = 200
	MaxDescriptionLen = 5000
	MaxSalaryLen      = 100
)

// StageValidation is the validation stage name.
const StageValidation = "validation"

// ValidationStage checks required fields, applies defaults and normalizes
// text on its copy of the record.
type ValidationStage struct {
	level model.ValidationLevel
	stats *report.Stats
	now   func() time.Time
}

// NewValidationStage returns a validation stage for level. An empty level
// means lenient: only required fields and the title ceiling drop a record.
// moderate and strict are opt-in.
func NewValidationStage(level model.ValidationLevel, stats *report.Stats) *ValidationStage {
	if level == "" {
		level = model.ValidationLenient
	}
	return &ValidationStage{level: level, stats: stats, now: time.Now}
}

func (s *ValidationStage) Name() string { return StageValidation }

func (s *ValidationStage) drop(reason DropReason, field string) error {
	return &DropError{Stage: StageValidation, Reason: reason, Field: field}
}

func (s *ValidationStage) Process(_ context.Context, r model.Record) (model.Record, error) {
	var err error
	if r.IsJob() {
		r, err = s.job(r)
	} else {
		r, err = s.company(r)
	}
	if err != nil {
		return r, err
	}
	if r.ScrapedAt.IsZero() {
		r.ScrapedAt = s.now().UTC()
	}
	if s.stats != nil {
		s.stats.RecordValidated()
	}
	return r, nil
}

func (s *ValidationStage) job(r model.Record) (model.Record, error) {
	r.Kind = model.KindJob
	r.Title = CleanText(r.Title)
	r.CompanyName = CleanText(r.CompanyName)
	r.Description = CleanText(r.Description)
	r.Salary = CleanText(r.Salary)
	r.Location = ExpandLocation(r.Location)
	r.SourceURL = strings.TrimSpace(r.SourceURL)
	r.JobType = CleanText(r.JobType)
	r.WorkMode = CleanText(r.WorkMode)

	required := []struct{ name, value string }{
		{"title", r.Title},
		{"company_name", r.CompanyName},
		{"source_url", r.SourceURL},
	}
	if s.level == model.ValidationStrict {
		required = append(required,
			struct{ name, value string }{"description", r.Description},
			struct{ name, value string }{"salary", r.Salary},
		)
	}
	for _, f := range required {
		if f.value == "" {
			return r, s.drop(ReasonMissingField, f.name)
		}
	}

	if utf8.RuneCountInString(r.Title) > MaxTitleLen {
		return r, s.drop(ReasonTooLong, "title")
	}
	r.Description = truncate(r.Description, MaxDescriptionLen)

	if r.WorkMode == "" {
		r.WorkMode = model.WorkModeOnSite
	}
	if r.JobType == "" {
		r.JobType = model.JobTypeFullTime
	}

	if s.level != model.ValidationLenient {
		if utf8.RuneCountInString(r.Salary) > MaxSalaryLen {
			return r, s.drop(ReasonTooLong, "salary")
		}
		if !model.IsValidJobType(r.JobType) {
			return r, s.drop(ReasonInvalidField, "job_type")
		}
		if !model.IsValidWorkMode(r.WorkMode) {
			return r, s.drop(ReasonInvalidField, "work_mode")
		}
	}
	return r, nil
}

func (s *ValidationStage) company(r model.Record) (model.Record, error) {
	r.Name = CleanText(r.Name)
	r.Location = ExpandLocation(r.Location)
	r.SourceURL = strings.TrimSpace(r.SourceURL)
	r.Website = strings.TrimSpace(r.Website)

	if r.Name == "" {
		return r, s.drop(ReasonMissingField, "name")
	}
	if r.SourceURL == "" {
		return r, s.drop(ReasonMissingField, "source_url")
	}
	return r, nil
}

// truncate shortens s to max runes, ending in "..." when cut.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-3]) + "..."
}
