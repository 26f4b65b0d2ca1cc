package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noxie-dev/workwise-sa/internal/model"
)

func TestParseValidationLevel(t *testing.T) {
	cases := map[string]model.ValidationLevel{
		"":          model.ValidationModerate,
		"strict":    model.ValidationStrict,
		" LENIENT ": model.ValidationLenient,
		"Moderate":  model.ValidationModerate,
	}
	for in, want := range cases {
		got, err := model.ParseValidationLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := model.ParseValidationLevel("paranoid")
	assert.Error(t, err)
}

func TestCategoryString(t *testing.T) {
	assert.Equal(t, "Retail", model.CategoryRetail.String())
	assert.Equal(t, "General Worker", model.DefaultCategory.String())
	assert.Equal(t, "category(99)", model.CategoryID(99).String())
}

func TestJobTypeAndWorkModeSets(t *testing.T) {
	assert.True(t, model.IsValidJobType(model.JobTypePartTime))
	assert.False(t, model.IsValidJobType("part time"))
	assert.True(t, model.IsValidWorkMode(model.WorkModeHybrid))
	assert.False(t, model.IsValidWorkMode("Office"))
}

func TestRecordKind(t *testing.T) {
	job := model.Record{Title: "Cashier"}
	company := model.Record{Kind: model.KindCompany, Name: "Spar"}

	assert.True(t, job.IsJob())
	assert.Equal(t, "Cashier", job.DisplayName())
	assert.False(t, company.IsJob())
	assert.Equal(t, "Spar", company.DisplayName())
}
