package scraper

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Noxie-dev/workwise-sa/internal/model"
)

// privateEmployer is the company name used when an ad names none.
const privateEmployer = "Private Employer"

const maxCompanyLen = 100

var companyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)company[: ]+([A-Za-z &]+)`),
	regexp.MustCompile(`(?i)employer[: ]+([A-Za-z &]+)`),
	regexp.MustCompile(`(?i)([A-Za-z &]+)\s+is\s+looking\s+for`),
	regexp.MustCompile(`(?i)\bjoin\s+([A-Za-z &]+)`),
	regexp.MustCompile(`(?i)([A-Za-z &]+)\s+seeks?\b`),
}

// extractCompanyName prefers the seller name shown on the ad and falls back
// to phrases such as "Company: X" or "X is looking for" in the text. Names
// never span lines, so description should keep its line breaks.
func extractCompanyName(seller, description string) string {
	company := strings.TrimSpace(seller)
	if company == "" {
		for _, re := range companyPatterns {
			if m := re.FindStringSubmatch(description); m != nil {
				company = strings.TrimSpace(m[1])
				break
			}
		}
	}
	company = strings.Join(strings.Fields(company), " ")
	if len(company) < 2 {
		return privateEmployer
	}
	if len(company) > maxCompanyLen {
		company = company[:maxCompanyLen]
	}
	return company
}

var salaryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)R\s*\d{1,3}[,\s]*\d{3}(?:[,\s]*\d{3})?(?:\s*[-–]\s*R?\s*\d{1,3}[,\s]*\d{3}(?:[,\s]*\d{3})?)?(?:\s*per\s*month|pm|/month)?`),
	regexp.MustCompile(`(?i)\d{1,3}[,\s]*\d{3}(?:[,\s]*\d{3})?\s*[-–]\s*\d{1,3}[,\s]*\d{3}(?:[,\s]*\d{3})?(?:\s*per\s*month|pm)`),
	regexp.MustCompile(`(?i)salary[:\s]*R?\s*\d{1,3}[,\s]*\d{3}(?:[,\s]*\d{3})?`),
}

// extractSalary returns the first rand amount or range found in text.
func extractSalary(text string) string {
	for _, re := range salaryPatterns {
		if m := re.FindString(text); m != "" {
			return strings.TrimSpace(m)
		}
	}
	return ""
}

var (
	partTimeWords   = []string{"part time", "part-time", "weekend", "casual"}
	contractWords   = []string{"contract", "temporary", "temp ", "fixed term"}
	internshipWords = []string{"internship", "intern ", "learnership"}
	remoteWords     = []string{"remote", "work from home", "wfh", "online"}
	hybridWords     = []string{"hybrid", "flexible"}
)

// classifyJobType guesses the job type and work mode from the ad text.
func classifyJobType(title, description string) (jobType, workMode string) {
	text := strings.ToLower(title + " " + description + " ")

	switch {
	case containsAny(text, partTimeWords):
		jobType = model.JobTypePartTime
	case containsAny(text, contractWords):
		jobType = model.JobTypeContract
	case containsAny(text, internshipWords):
		jobType = model.JobTypeInternship
	default:
		jobType = model.JobTypeFullTime
	}

	switch {
	case containsAny(text, remoteWords):
		workMode = model.WorkModeRemote
	case containsAny(text, hybridWords):
		workMode = model.WorkModeHybrid
	default:
		workMode = model.WorkModeOnSite
	}
	return jobType, workMode
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

var relativeAge = regexp.MustCompile(`(\d+)\s*(hour|day|week)s?\s*ago`)

// parsePostedDate turns "3 days ago", "today" or "yesterday" into a time
// relative to now. Unrecognised text yields now.
func parsePostedDate(text string, now time.Time) time.Time {
	text = strings.ToLower(strings.TrimSpace(text))
	if m := relativeAge.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "hour":
			return now.Add(-time.Duration(n) * time.Hour)
		case "day":
			return now.AddDate(0, 0, -n)
		case "week":
			return now.AddDate(0, 0, -7*n)
		}
	}
	if strings.Contains(text, "yesterday") {
		return now.AddDate(0, 0, -1)
	}
	return now
}

var externalIDPattern = regexp.MustCompile(`/(\d{10,})/?$`)

// extractExternalID returns the numeric ad id at the end of a Gumtree URL.
func extractExternalID(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	if m := externalIDPattern.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	return ""
}
