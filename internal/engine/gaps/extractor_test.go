package gaps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complymatch/backend/internal/engine/scoring"
	"github.com/complymatch/backend/internal/storage/models"
)

func scoredTree() *scoring.ScoreNode {
	return &scoring.ScoreNode{
		ID: "tmpl-1", Path: "tmpl-1", Kind: scoring.NodeTemplate, Raw: 0.4, Answered: true,
		Children: []*scoring.ScoreNode{
			{
				ID: "sec-1", Path: "sec-1", Kind: scoring.NodeSection, Category: "KYC_AML",
				Title: "Customer Due Diligence", Raw: 0.2, Weight: 0.5, Answered: true,
				Children: []*scoring.ScoreNode{
					{ID: "q-1", Path: "sec-1/q-1", Kind: scoring.NodeQuestion, Category: "KYC_AML",
						Title: "Sanctions screening", Raw: 0.1, Weight: 0.5, Answered: true},
					{ID: "q-2", Path: "sec-1/q-2", Kind: scoring.NodeQuestion, Category: "KYC_AML",
						Title: "PEP checks", Raw: 0.45, Weight: 0.5, Answered: true},
				},
			},
			{
				ID: "sec-2", Path: "sec-2", Kind: scoring.NodeSection, Category: "DATA_PRIVACY",
				Title: "Data Retention", Raw: 0.7, Weight: 0.5, Answered: true,
				Children: []*scoring.ScoreNode{
					{ID: "q-3", Path: "sec-2/q-3", Kind: scoring.NodeQuestion, Category: "DATA_PRIVACY",
						Title: "Retention schedule", Raw: 0.8, Weight: 1.0, Answered: true},
				},
			},
		},
	}
}

func TestSeverityBands(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		score    float64
		severity models.Severity
		gapped   bool
	}{
		{0.0, models.SeverityCritical, true},
		{0.249, models.SeverityCritical, true},
		{0.25, models.SeverityHigh, true},
		{0.49, models.SeverityHigh, true},
		{0.5, models.SeverityMedium, true},
		{0.74, models.SeverityMedium, true},
		{0.75, "", false},
		{1.0, "", false},
	}

	for _, tt := range tests {
		severity, gapped := SeverityFor(tt.score, th)
		assert.Equal(t, tt.gapped, gapped, "score %.3f", tt.score)
		assert.Equal(t, tt.severity, severity, "score %.3f", tt.score)
	}
}

func TestSurfaceLowNearMisses(t *testing.T) {
	th := DefaultThresholds()
	th.SurfaceLow = true

	severity, gapped := SeverityFor(0.8, th)
	require.True(t, gapped)
	assert.Equal(t, models.SeverityLow, severity)

	_, gapped = SeverityFor(0.95, th)
	assert.False(t, gapped)
}

func TestExtractEmitsSectionsAndQuestions(t *testing.T) {
	result := Extract("as-1", scoredTree(), DefaultThresholds())

	byPath := map[string]models.Gap{}
	for _, g := range result {
		byPath[g.NodePath] = g
	}

	require.Len(t, result, 4)
	assert.Equal(t, models.SeverityCritical, byPath["sec-1"].Severity)
	assert.Equal(t, models.SeverityCritical, byPath["sec-1/q-1"].Severity)
	assert.Equal(t, models.SeverityHigh, byPath["sec-1/q-2"].Severity)
	assert.Equal(t, models.SeverityMedium, byPath["sec-2"].Severity)

	// The template root is never a gap; adequate nodes are skipped.
	assert.NotContains(t, byPath, "tmpl-1")
	assert.NotContains(t, byPath, "sec-2/q-3")

	assert.Equal(t, "KYC_AML", byPath["sec-1/q-1"].Category)
	assert.NotEmpty(t, byPath["sec-1/q-1"].Description)
}

func TestExtractOrdering(t *testing.T) {
	result := Extract("as-1", scoredTree(), DefaultThresholds())

	var paths []string
	for _, g := range result {
		paths = append(paths, g.NodePath)
	}

	// CRITICAL by descending deficit (q-1 score 0.1 beats sec-1 score 0.2),
	// then HIGH, then MEDIUM.
	assert.Equal(t, []string{"sec-1/q-1", "sec-1", "sec-1/q-2", "sec-2"}, paths)

	for i := 1; i < len(result); i++ {
		prev, cur := result[i-1], result[i]
		if prev.Severity == cur.Severity {
			assert.GreaterOrEqual(t, prev.Deficit, cur.Deficit)
		} else {
			assert.Greater(t, prev.Severity.Rank(), cur.Severity.Rank())
		}
	}
}

func TestExtractStableIDsAcrossRuns(t *testing.T) {
	first := Extract("as-1", scoredTree(), DefaultThresholds())
	second := Extract("as-1", scoredTree(), DefaultThresholds())

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].NodePath, second[i].NodePath)
	}

	// IDs are unique per node path within one extraction.
	seen := map[string]bool{}
	for _, g := range first {
		assert.False(t, seen[g.ID], "duplicate gap id for %s", g.NodePath)
		seen[g.ID] = true
	}

	// A different assessment produces different ids for the same paths.
	other := Extract("as-2", scoredTree(), DefaultThresholds())
	assert.NotEqual(t, first[0].ID, other[0].ID)
}

func TestUnansweredNodeGapDescription(t *testing.T) {
	tree := &scoring.ScoreNode{
		ID: "t", Path: "t", Kind: scoring.NodeTemplate,
		Children: []*scoring.ScoreNode{
			{ID: "s", Path: "s", Kind: scoring.NodeSection, Category: "SANCTIONS",
				Title: "Screening", Raw: 0, Answered: false},
		},
	}

	result := Extract("as-1", tree, DefaultThresholds())
	require.Len(t, result, 1)
	assert.Equal(t, models.SeverityCritical, result[0].Severity)
	assert.Contains(t, result[0].Description, "No evidence submitted")
}
