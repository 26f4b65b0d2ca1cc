package classify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Noxie-dev/workwise-sa/internal/classify"
	"github.com/Noxie-dev/workwise-sa/internal/model"
)

// ── Classify ───────────────────────────────────────────────────────────────

func TestClassify_SingleKeyword(t *testing.T) {
	assert.Equal(t, model.CategoryRetail, classify.Classify("Cashier", ""))
}

func TestClassify_NoKeywordFallsBack(t *testing.T) {
	assert.Equal(t, model.CategoryGeneralWorker, classify.Classify("Software Engineer", "Golang backend role"))
}

func TestClassify_EmptyInput(t *testing.T) {
	assert.Equal(t, model.DefaultCategory, classify.Classify("", ""))
}

func TestClassify_TieGoesToLowestID(t *testing.T) {
	// one Retail keyword and one Security keyword
	assert.Equal(t, model.CategoryRetail, classify.Classify("Store guard", ""))
}

func TestClassify_HighestScoreWins(t *testing.T) {
	got := classify.Classify("Security guard", "Armed protection and surveillance at a shop")
	assert.Equal(t, model.CategorySecurity, got)
}

func TestClassify_CaseInsensitiveAcrossDescription(t *testing.T) {
	got := classify.Classify("Live-in position", "Experienced NANNY for childcare, au pair welcome")
	assert.Equal(t, model.CategoryChildcare, got)
}

func TestClassify_MultiWordKeyword(t *testing.T) {
	got := classify.Classify("Forecourt staff", "Busy Service Station on the N1")
	assert.Equal(t, model.CategoryPetrolAttendant, got)
}

func TestClassify_RepeatedKeywordCountsOnce(t *testing.T) {
	// "cleaner" repeated still scores 1; "garden maintenance" scores 2.
	got := classify.Classify("Cleaner cleaner cleaner", "garden maintenance")
	assert.Equal(t, model.CategoryLandscaping, got)
}

// ── Scores ─────────────────────────────────────────────────────────────────

func TestScores_TableOrder(t *testing.T) {
	scores := classify.Default().Scores("Domestic cleaner", "")
	assert.Len(t, scores, len(classify.DefaultRules))
	for i, s := range scores {
		assert.Equal(t, classify.DefaultRules[i].Category, s.Category)
	}
	assert.Equal(t, 2, scores[model.CategoryCleaning-1].Score)
}

func TestNew_CustomFallback(t *testing.T) {
	c := classify.New([]classify.Rule{{Category: 9, Keywords: []string{"welder"}}}, 8)
	assert.Equal(t, model.CategoryID(9), c.Classify("Welder", ""))
	assert.Equal(t, model.CategoryID(8), c.Classify("Chef", ""))
}
