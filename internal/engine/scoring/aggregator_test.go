package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complymatch/backend/internal/storage/models"
)

func testTemplate() *models.Template {
	return &models.Template{
		ID:       "tmpl-1",
		Name:     "AML Readiness",
		Category: "KYC_AML",
		Sections: []models.Section{
			{
				ID:     "sec-1",
				Title:  "Customer Due Diligence",
				Weight: 0.6,
				Questions: []models.Question{
					{ID: "q-1", Prompt: "Describe onboarding checks", Type: models.QuestionText, Required: true, Weight: 0.4},
					{ID: "q-2", Prompt: "Screening frequency", Type: models.QuestionSelect, Required: true, Weight: 0.6},
				},
			},
			{
				ID:     "sec-2",
				Title:  "Recordkeeping",
				Weight: 0.4,
				Questions: []models.Question{
					{ID: "q-3", Prompt: "Retention policy in place", Type: models.QuestionBoolean, Required: false, Weight: 1.0},
				},
			},
		},
	}
}

func answer(questionID string, aiScore, confidence float64) *models.Answer {
	return &models.Answer{
		ID:           "ans-" + questionID,
		AssessmentID: "as-1",
		QuestionID:   questionID,
		Version:      1,
		ResponseText: "evidence",
		EvidenceTier: models.TierModerate,
		AIScore:      aiScore,
		Confidence:   confidence,
	}
}

func TestQuestionEffectiveScore(t *testing.T) {
	tmpl := &models.Template{
		ID: "t", Sections: []models.Section{{
			ID: "s", Weight: 1.0,
			Questions: []models.Question{
				{ID: "q-1", Weight: 0.4},
				{ID: "q-2", Weight: 0.6},
			},
		}},
	}
	answers := map[string]*models.Answer{
		"q-1": answer("q-1", 0.9, 0.8),
		"q-2": answer("q-2", 1.0, 1.0),
	}

	root := Aggregate(tmpl, answers, true)
	q1 := root.Children[0].Children[0]

	assert.InDelta(t, 0.72, q1.Raw, 1e-9)
	assert.InDelta(t, 0.288, q1.Effective, 1e-9)
	assert.Equal(t, "s/q-1", q1.Path)
}

func TestPartialCompletionNormalization(t *testing.T) {
	tmpl := &models.Template{
		ID: "t", Sections: []models.Section{{
			ID: "s", Weight: 1.0,
			Questions: []models.Question{
				{ID: "q-1", Required: true, Weight: 0.5},
				{ID: "q-2", Required: true, Weight: 0.5},
			},
		}},
	}
	answers := map[string]*models.Answer{
		"q-1": answer("q-1", 0.8, 1.0),
	}

	inProgress := Aggregate(tmpl, answers, false)
	complete := Aggregate(tmpl, answers, true)

	// In progress: normalized against the answered half only.
	assert.InDelta(t, 0.8, inProgress.Children[0].Raw, 1e-9)
	// Complete: the unanswered question still consumes its full weight share.
	assert.InDelta(t, 0.4, complete.Children[0].Raw, 1e-9)
	assert.Less(t, complete.Children[0].Raw, inProgress.Children[0].Raw)
}

func TestUnansweredContributesZeroButKeepsWeight(t *testing.T) {
	root := Aggregate(testTemplate(), map[string]*models.Answer{}, true)

	assert.InDelta(t, 0.0, root.Raw, 1e-9)
	assert.False(t, root.Answered)
	for _, section := range root.Children {
		assert.InDelta(t, 0.0, section.Raw, 1e-9)
		for _, q := range section.Children {
			assert.False(t, q.Answered)
			assert.InDelta(t, 0.0, q.Effective, 1e-9)
			assert.Greater(t, q.Weight, 0.0)
		}
	}
}

func TestOverallWeightedAcrossSections(t *testing.T) {
	answers := map[string]*models.Answer{
		"q-1": answer("q-1", 1.0, 1.0),
		"q-2": answer("q-2", 1.0, 1.0),
		"q-3": answer("q-3", 0.5, 1.0),
	}

	root := Aggregate(testTemplate(), answers, true)

	// sec-1 raw 1.0 x 0.6 + sec-2 raw 0.5 x 0.4 = 0.8
	assert.InDelta(t, 0.8, root.Raw, 1e-9)
	assert.InDelta(t, 80.0, root.Overall(), 1e-9)
}

func TestAggregateIdempotent(t *testing.T) {
	answers := map[string]*models.Answer{
		"q-1": answer("q-1", 0.9, 0.8),
		"q-3": answer("q-3", 0.3, 0.6),
	}

	first := Aggregate(testTemplate(), answers, false)
	second := Aggregate(testTemplate(), answers, false)

	require.NotSame(t, first, second)
	assert.Equal(t, first, second)
}

func TestAggregateDoesNotMutateAnswers(t *testing.T) {
	a := answer("q-1", 0.9, 0.8)
	answers := map[string]*models.Answer{"q-1": a}

	Aggregate(testTemplate(), answers, true)

	assert.Equal(t, 0.9, a.AIScore)
	assert.Equal(t, 0.8, a.Confidence)
	assert.Equal(t, 1, a.Version)
}

func TestLatestAnswers(t *testing.T) {
	history := []*models.Answer{
		{QuestionID: "q-1", Version: 1, AIScore: 0.2},
		{QuestionID: "q-1", Version: 3, AIScore: 0.9},
		{QuestionID: "q-1", Version: 2, AIScore: 0.5},
		{QuestionID: "q-2", Version: 1, AIScore: 0.7},
	}

	latest := LatestAnswers(history)
	require.Len(t, latest, 2)
	assert.Equal(t, 3, latest["q-1"].Version)
	assert.Equal(t, 0.9, latest["q-1"].AIScore)
}

func TestWalkVisitsTemplateOrder(t *testing.T) {
	root := Aggregate(testTemplate(), map[string]*models.Answer{}, true)

	var paths []string
	root.Walk(func(n *ScoreNode) { paths = append(paths, n.Path) })

	assert.Equal(t, []string{"tmpl-1", "sec-1", "sec-1/q-1", "sec-1/q-2", "sec-2", "sec-2/q-3"}, paths)
}
