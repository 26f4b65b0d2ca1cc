// Package classify assigns job categories by deterministic keyword scoring.
package classify

import (
	"strings"

	"github.com/Noxie-dev/workwise-sa/internal/model"
)

// Rule pairs a category with the keywords that vote for it.
type Rule struct {
	Category model.CategoryID
	Keywords []string
}

// DefaultRules is the category keyword table, ordered by category ID.
var DefaultRules = []Rule{
	{model.CategoryRetail, []string{"cashier", "teller", "sales", "retail", "store", "shop"}},
	{model.CategoryGeneralWorker, []string{"general", "worker", "labourer", "helper", "assistant", "warehouse"}},
	{model.CategorySecurity, []string{"security", "guard", "protection", "surveillance"}},
	{model.CategoryPetrolAttendant, []string{"petrol", "fuel", "attendant", "service station"}},
	{model.CategoryChildcare, []string{"nanny", "childcare", "babysitter", "au pair"}},
	{model.CategoryCleaning, []string{"cleaner", "cleaning", "janitor", "housekeeping", "domestic"}},
	{model.CategoryLandscaping, []string{"gardener", "landscaping", "grounds", "maintenance", "garden"}},
}

// Classifier scores text against an ordered rule table.
type Classifier struct {
	rules    []Rule
	fallback model.CategoryID
}

// New returns a Classifier over rules. Rules must be ordered by category ID;
// ties between equal scores resolve to the earliest rule.
func New(rules []Rule, fallback model.CategoryID) *Classifier {
	return &Classifier{rules: rules, fallback: fallback}
}

// Default returns a Classifier over DefaultRules falling back to General Worker.
func Default() *Classifier { return New(DefaultRules, model.DefaultCategory) }

// Classify returns the best matching category for a job's title and
// description. A score is the number of distinct keywords found as
// case-insensitive substrings; the highest score wins, the lowest ID wins a
// tie, and no positive score yields the fallback.
func (c *Classifier) Classify(title, description string) model.CategoryID {
	best, bestScore := c.fallback, 0
	for _, s := range c.Scores(title, description) {
		if s.Score > bestScore {
			best, bestScore = s.Category, s.Score
		}
	}
	return best
}

// Score is one rule's result for a piece of text.
type Score struct {
	Category model.CategoryID `json:"category"`
	Score    int              `json:"score"`
}

// Scores reports the score of every rule in table order.
func (c *Classifier) Scores(title, description string) []Score {
	combined := strings.ToLower(title + " " + description)
	out := make([]Score, 0, len(c.rules))
	for _, r := range c.rules {
		out = append(out, Score{Category: r.Category, Score: countMatches(combined, r.Keywords)})
	}
	return out
}

// Classify uses the default classifier.
func Classify(title, description string) model.CategoryID {
	return Default().Classify(title, description)
}

// countMatches counts how many distinct terms appear anywhere in lowered.
func countMatches(lowered string, terms []string) int {
	n := 0
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(term)) {
			n++
		}
	}
	return n
}
