package assessment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complymatch/backend/internal/engine/gaps"
	"github.com/complymatch/backend/internal/storage/models"
	"github.com/complymatch/backend/internal/storage/sqlite"
)

type fakeStore struct {
	template    *models.Template
	assessments map[string]*models.Assessment
	answers     map[string][]*models.Answer
	gaps        map[string][]models.Gap
	candidates  []sqlite.CandidateRow
	weights     map[string]map[string]float64

	appliedBatches int
	deleteCalls    int
}

func newFakeStore(tmpl *models.Template) *fakeStore {
	return &fakeStore{
		template:    tmpl,
		assessments: make(map[string]*models.Assessment),
		answers:     make(map[string][]*models.Answer),
		gaps:        make(map[string][]models.Gap),
		weights:     make(map[string]map[string]float64),
	}
}

func (f *fakeStore) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	if f.template == nil || f.template.ID != id {
		return nil, sqlite.ErrNotFound
	}
	return f.template, nil
}

func (f *fakeStore) GetAssessment(ctx context.Context, id string) (*models.Assessment, error) {
	a, ok := f.assessments[id]
	if !ok {
		return nil, sqlite.ErrNotFound
	}
	return a, nil
}

func (f *fakeStore) InsertAssessment(ctx context.Context, a *models.Assessment) error {
	f.assessments[a.ID] = a
	return nil
}

func (f *fakeStore) SetAssessmentStatus(ctx context.Context, id string, status models.AssessmentStatus) error {
	f.assessments[id].Status = status
	return nil
}

func (f *fakeStore) ListLatestAnswers(ctx context.Context, assessmentID string) ([]*models.Answer, error) {
	return f.answers[assessmentID], nil
}

func (f *fakeStore) DeleteGaps(ctx context.Context, assessmentID string) error {
	f.deleteCalls++
	delete(f.gaps, assessmentID)
	return nil
}

func (f *fakeStore) UpsertGap(ctx context.Context, gap *models.Gap) error {
	f.gaps[gap.AssessmentID] = append(f.gaps[gap.AssessmentID], *gap)
	return nil
}

func (f *fakeStore) ListGaps(ctx context.Context, assessmentID string, filter sqlite.GapFilter) ([]models.Gap, error) {
	var out []models.Gap
	for _, g := range f.gaps[assessmentID] {
		if filter.Severity != "" && g.Severity != filter.Severity {
			continue
		}
		if filter.Category != "" && g.Category != filter.Category {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func (f *fakeStore) ListCandidateSolutions(ctx context.Context, categories []string) ([]sqlite.CandidateRow, error) {
	return f.candidates, nil
}

func (f *fakeStore) SiblingWeights(ctx context.Context, templateID string) (map[string]map[string]float64, error) {
	out := make(map[string]map[string]float64, len(f.weights))
	for parent, siblings := range f.weights {
		copied := make(map[string]float64, len(siblings))
		for id, w := range siblings {
			copied[id] = w
		}
		out[parent] = copied
	}
	return out, nil
}

func (f *fakeStore) ApplyWeightBatch(ctx context.Context, templateID string, batch, previous map[string]map[string]float64) error {
	f.appliedBatches++
	for parent, siblings := range batch {
		f.weights[parent] = siblings
	}
	return nil
}

func (f *fakeStore) ListAssessmentIDsByTemplate(ctx context.Context, templateID string) ([]string, error) {
	var ids []string
	for id, a := range f.assessments {
		if a.TemplateID == templateID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type fakeCache struct {
	invalidated []string
}

func (f *fakeCache) SetScoreTree(ctx context.Context, id string, v int64, tree interface{}) error {
	return nil
}
func (f *fakeCache) GetScoreTree(ctx context.Context, id string, v int64, tree interface{}) (bool, error) {
	return false, nil
}
func (f *fakeCache) SetMatches(ctx context.Context, id string, v int64, t float64, l int, m interface{}) error {
	return nil
}
func (f *fakeCache) GetMatches(ctx context.Context, id string, v int64, t float64, l int, m interface{}) (bool, error) {
	return false, nil
}
func (f *fakeCache) SetMatrix(ctx context.Context, id string, v int64, m interface{}) error {
	return nil
}
func (f *fakeCache) GetMatrix(ctx context.Context, id string, v int64, m interface{}) (bool, error) {
	return false, nil
}
func (f *fakeCache) InvalidateAssessment(ctx context.Context, id string) error {
	f.invalidated = append(f.invalidated, id)
	return nil
}

func testTemplate() *models.Template {
	return &models.Template{
		ID:       "tmpl-1",
		Name:     "AML Readiness",
		Category: "aml screening",
		Sections: []models.Section{
			{
				ID:       "sec-1",
				Title:    "Sanctions Screening",
				Category: "aml screening",
				Weight:   0.6,
				Questions: []models.Question{
					{ID: "q-1", SectionID: "sec-1", Prompt: "Describe sanctions screening automation", Weight: 0.5, Required: true},
					{ID: "q-2", SectionID: "sec-1", Prompt: "How are alerts triaged?", Weight: 0.5, Required: true},
				},
			},
			{
				ID:       "sec-2",
				Title:    "Access Control",
				Category: "access control",
				Weight:   0.4,
				Questions: []models.Question{
					{ID: "q-3", SectionID: "sec-2", Prompt: "Describe RBAC enforcement", Weight: 1.0, Required: true},
				},
			},
		},
	}
}

func answer(assessmentID, questionID string, score, confidence float64) *models.Answer {
	return &models.Answer{
		ID:           questionID + "-a1",
		AssessmentID: assessmentID,
		QuestionID:   questionID,
		Version:      1,
		ResponseText: "evidence",
		EvidenceTier: models.TierModerate,
		AIScore:      score,
		Confidence:   confidence,
		CreatedAt:    time.Now(),
	}
}

func newTestService(store *fakeStore, cache Cache) *Service {
	return NewService(store, cache, nil, Config{
		Thresholds:     gaps.DefaultThresholds(),
		MatchThreshold: 0.3,
		MatchLimit:     10,
	})
}

func seedAssessment(store *fakeStore, answered int) *models.Assessment {
	a := &models.Assessment{
		ID:                "asmt-1",
		TemplateID:        "tmpl-1",
		Status:            models.AssessmentInProgress,
		AnsweredQuestions: answered,
		TotalQuestions:    3,
		AnswerVersion:     int64(answered),
	}
	store.assessments[a.ID] = a
	return a
}

func TestCreateAssessmentCountsQuestions(t *testing.T) {
	store := newFakeStore(testTemplate())
	svc := newTestService(store, nil)

	a, err := svc.CreateAssessment(context.Background(), "tmpl-1", "org-1")
	require.NoError(t, err)
	assert.Equal(t, 3, a.TotalQuestions)
	assert.Equal(t, models.AssessmentInProgress, a.Status)
}

func TestCreateAssessmentUnknownTemplate(t *testing.T) {
	store := newFakeStore(testTemplate())
	svc := newTestService(store, nil)

	_, err := svc.CreateAssessment(context.Background(), "tmpl-missing", "org-1")
	assert.ErrorIs(t, err, sqlite.ErrNotFound)
}

func TestComputeScoreNoAnswers(t *testing.T) {
	store := newFakeStore(testTemplate())
	seedAssessment(store, 0)
	svc := newTestService(store, nil)

	_, err := svc.ComputeScore(context.Background(), "asmt-1")
	assert.ErrorIs(t, err, ErrNoAnswers)
}

func TestComputeScorePersistsGaps(t *testing.T) {
	store := newFakeStore(testTemplate())
	seedAssessment(store, 2)
	store.answers["asmt-1"] = []*models.Answer{
		answer("asmt-1", "q-1", 0.2, 1.0),
		answer("asmt-1", "q-2", 0.9, 1.0),
	}
	svc := newTestService(store, nil)

	root, err := svc.ComputeScore(context.Background(), "asmt-1")
	require.NoError(t, err)
	assert.Greater(t, root.Overall(), 0.0)

	// q-1 at 0.2 is a CRITICAL gap; unanswered q-3 drags sec-2 to zero.
	require.NotEmpty(t, store.gaps["asmt-1"])
	var foundQ1 bool
	for _, g := range store.gaps["asmt-1"] {
		if g.NodePath == "sec-1/q-1" {
			foundQ1 = true
			assert.Equal(t, models.SeverityCritical, g.Severity)
		}
	}
	assert.True(t, foundQ1)
}

func TestComputeScoreMarksCompleteScored(t *testing.T) {
	store := newFakeStore(testTemplate())
	a := seedAssessment(store, 3)
	a.Status = models.AssessmentComplete
	store.answers["asmt-1"] = []*models.Answer{
		answer("asmt-1", "q-1", 0.9, 1.0),
		answer("asmt-1", "q-2", 0.9, 1.0),
		answer("asmt-1", "q-3", 0.9, 1.0),
	}
	svc := newTestService(store, nil)

	_, err := svc.ComputeScore(context.Background(), "asmt-1")
	require.NoError(t, err)
	assert.Equal(t, models.AssessmentScored, store.assessments["asmt-1"].Status)
}

func TestCompleteRejectsUnansweredRequired(t *testing.T) {
	store := newFakeStore(testTemplate())
	seedAssessment(store, 2)
	store.answers["asmt-1"] = []*models.Answer{
		answer("asmt-1", "q-1", 0.9, 1.0),
		answer("asmt-1", "q-2", 0.9, 1.0),
	}
	svc := newTestService(store, nil)

	// q-3 is required and still unanswered.
	_, err := svc.Complete(context.Background(), "asmt-1")
	assert.ErrorIs(t, err, ErrRequiredUnanswered)
	assert.Equal(t, models.AssessmentInProgress, store.assessments["asmt-1"].Status)
}

func TestCompleteMarksStatusAndInvalidatesCache(t *testing.T) {
	store := newFakeStore(testTemplate())
	seedAssessment(store, 3)
	store.answers["asmt-1"] = []*models.Answer{
		answer("asmt-1", "q-1", 0.9, 1.0),
		answer("asmt-1", "q-2", 0.9, 1.0),
		answer("asmt-1", "q-3", 0.9, 1.0),
	}
	cache := &fakeCache{}
	svc := newTestService(store, cache)

	a, err := svc.Complete(context.Background(), "asmt-1")
	require.NoError(t, err)
	assert.Equal(t, models.AssessmentComplete, a.Status)
	require.NotNil(t, a.CompletedAt)
	assert.Contains(t, cache.invalidated, "asmt-1")

	// Completing again is a no-op.
	_, err = svc.Complete(context.Background(), "asmt-1")
	require.NoError(t, err)
	assert.Len(t, cache.invalidated, 1)
}

func TestVendorMatchesExplainsEmptyResults(t *testing.T) {
	store := newFakeStore(testTemplate())
	seedAssessment(store, 2)
	store.answers["asmt-1"] = []*models.Answer{
		answer("asmt-1", "q-1", 0.2, 1.0),
		answer("asmt-1", "q-2", 0.9, 1.0),
	}
	svc := newTestService(store, nil)

	result, err := svc.VendorMatches(context.Background(), "asmt-1", 0, 0)
	require.NoError(t, err)

	assert.Empty(t, result.Matches)
	require.NotEmpty(t, result.Unmatched)
	for _, reason := range result.Unmatched {
		assert.Equal(t, ReasonNoCandidates, reason)
	}
}

func TestVendorMatchesFindsCandidates(t *testing.T) {
	store := newFakeStore(testTemplate())
	seedAssessment(store, 2)
	store.answers["asmt-1"] = []*models.Answer{
		answer("asmt-1", "q-1", 0.2, 1.0),
		answer("asmt-1", "q-2", 0.9, 1.0),
	}
	store.candidates = []sqlite.CandidateRow{
		{
			Vendor: models.Vendor{ID: "v-1", Name: "ComplyFirst", Featured: true, Verified: true, Rating: 4.5},
			Solution: models.VendorSolution{
				ID:       "s-1",
				VendorID: "v-1",
				Name:     "Sanctions Screening Platform",
				Category: "aml screening",
				Features: []string{"sanctions screening", "alert triage"},
			},
		},
	}
	svc := newTestService(store, nil)

	result, err := svc.VendorMatches(context.Background(), "asmt-1", 0, 0)
	require.NoError(t, err)
	require.NotEmpty(t, result.Matches)

	for _, matches := range result.Matches {
		for _, m := range matches {
			assert.NotEmpty(t, m.MatchReasons)
			assert.LessOrEqual(t, m.MatchScore, 1.0)
		}
	}
}

func TestStrategyMatrixBucketsGaps(t *testing.T) {
	store := newFakeStore(testTemplate())
	seedAssessment(store, 2)
	store.answers["asmt-1"] = []*models.Answer{
		answer("asmt-1", "q-1", 0.2, 1.0),
		answer("asmt-1", "q-2", 0.9, 1.0),
	}
	svc := newTestService(store, nil)

	matrix, err := svc.StrategyMatrix(context.Background(), "asmt-1")
	require.NoError(t, err)
	assert.Equal(t, "asmt-1", matrix.AssessmentID)
	assert.Greater(t, matrix.GapCount(), 0)
	assert.NotEmpty(t, matrix.Immediate.Entries)
}

func TestWeightStageCommitInvalidates(t *testing.T) {
	store := newFakeStore(testTemplate())
	seedAssessment(store, 2)
	store.weights["tmpl-1"] = map[string]float64{"sec-1": 0.6, "sec-2": 0.4}
	cache := &fakeCache{}
	svc := newTestService(store, cache)

	staged, err := svc.StageWeight(context.Background(), "tmpl-1", "tmpl-1", "sec-1", 0.8)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, staged["sec-1"], 1e-9)
	assert.InDelta(t, 0.2, staged["sec-2"], 1e-9)

	require.NoError(t, svc.CommitWeights(context.Background(), "tmpl-1"))
	assert.Equal(t, 1, store.appliedBatches)
	assert.InDelta(t, 0.8, store.weights["tmpl-1"]["sec-1"], 1e-9)
	assert.Contains(t, cache.invalidated, "asmt-1")
}

func TestWeightDiscardDropsPending(t *testing.T) {
	store := newFakeStore(testTemplate())
	store.weights["tmpl-1"] = map[string]float64{"sec-1": 0.6, "sec-2": 0.4}
	svc := newTestService(store, nil)

	_, err := svc.StageWeight(context.Background(), "tmpl-1", "tmpl-1", "sec-1", 0.8)
	require.NoError(t, err)

	svc.DiscardWeights("tmpl-1")

	view, dirty, err := svc.PendingWeights(context.Background(), "tmpl-1", "tmpl-1")
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.InDelta(t, 0.6, view["sec-1"], 1e-9)
}
