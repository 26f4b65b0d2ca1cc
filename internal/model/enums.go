package model

import (
	"fmt"
	"strings"
)

// CategoryID identifies a job category in the external app's categories table.
type CategoryID int

const (
	CategoryRetail          CategoryID = 1
	CategoryGeneralWorker   CategoryID = 2
	CategorySecurity        CategoryID = 3
	CategoryPetrolAttendant CategoryID = 4
	CategoryChildcare       CategoryID = 5
	CategoryCleaning        CategoryID = 6
	CategoryLandscaping     CategoryID = 7

	// DefaultCategory is used when nothing else matches.
	DefaultCategory = CategoryGeneralWorker
)

var categoryNames = map[CategoryID]string{
	CategoryRetail:          "Retail",
	CategoryGeneralWorker:   "General Worker",
	CategorySecurity:        "Security",
	CategoryPetrolAttendant: "Petrol Attendant",
	CategoryChildcare:       "Childcare",
	CategoryCleaning:        "Cleaning",
	CategoryLandscaping:     "Landscaping",
}

func (c CategoryID) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// Job type and work mode values accepted by the external app.
const (
	JobTypeFullTime   = "Full-time"
	JobTypePartTime   = "Part-time"
	JobTypeContract   = "Contract"
	JobTypeInternship = "Internship"

	WorkModeOnSite = "On-site"
	WorkModeRemote = "Remote"
	WorkModeHybrid = "Hybrid"
)

var (
	jobTypes  = []string{JobTypeFullTime, JobTypePartTime, JobTypeContract, JobTypeInternship}
	workModes = []string{WorkModeOnSite, WorkModeRemote, WorkModeHybrid}
)

// IsValidJobType reports whether s is one of the accepted job types.
func IsValidJobType(s string) bool { return contains(jobTypes, s) }

// IsValidWorkMode reports whether s is one of the accepted work modes.
func IsValidWorkMode(s string) bool { return contains(workModes, s) }

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// ValidationLevel controls how much beyond the required fields is checked.
type ValidationLevel string

const (
	ValidationStrict   ValidationLevel = "strict"
	ValidationModerate ValidationLevel = "moderate"
	ValidationLenient  ValidationLevel = "lenient"
)

// ParseValidationLevel converts a raw config value to a ValidationLevel.
// Matching is case-insensitive; an empty string means moderate.
func ParseValidationLevel(s string) (ValidationLevel, error) {
	switch lvl := ValidationLevel(strings.ToLower(strings.TrimSpace(s))); lvl {
	case ValidationStrict, ValidationModerate, ValidationLenient:
		return lvl, nil
	case "":
		return ValidationModerate, nil
	}
	return "", fmt.Errorf("unknown validation level %q", s)
}
