package ingest

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complymatch/backend/internal/storage/models"
)

type fakeStore struct {
	answers       []*models.Answer
	answered      int
	answerVersion int64
}

func (f *fakeStore) LatestAnswerVersion(_ context.Context, assessmentID, questionID string) (int, error) {
	latest := 0
	for _, a := range f.answers {
		if a.AssessmentID == assessmentID && a.QuestionID == questionID && a.Version > latest {
			latest = a.Version
		}
	}
	return latest, nil
}

func (f *fakeStore) InsertAnswer(_ context.Context, answer *models.Answer) error {
	f.answers = append(f.answers, answer)
	return nil
}

func (f *fakeStore) CountAnsweredQuestions(_ context.Context, assessmentID string) (int, error) {
	seen := map[string]bool{}
	for _, a := range f.answers {
		if a.AssessmentID == assessmentID {
			seen[a.QuestionID] = true
		}
	}
	return len(seen), nil
}

func (f *fakeStore) AdvanceAssessmentProgress(_ context.Context, _ string, answered int) (int64, error) {
	f.answered = answered
	f.answerVersion++
	return f.answerVersion, nil
}

func testAssessment() *models.Assessment {
	return &models.Assessment{ID: "as-1", TotalQuestions: 4, Status: models.AssessmentInProgress}
}

func testQuestion(required bool) *models.Question {
	return &models.Question{ID: "q-1", Type: models.QuestionText, Required: required, Weight: 0.5}
}

func validResult() Result {
	return Result{
		ResponseText: "We run quarterly sanction screening against OFAC lists.",
		EvidenceTier: models.TierStrong,
		AIScore:      0.9,
		Confidence:   0.8,
	}
}

func TestIngestAppendsVersions(t *testing.T) {
	store := &fakeStore{}
	ing := New(store)

	answer, progress, err := ing.Ingest(context.Background(), testAssessment(), testQuestion(true), validResult())
	require.NoError(t, err)
	assert.Equal(t, 1, answer.Version)
	assert.Equal(t, 1, progress.AnsweredQuestions)
	assert.Equal(t, 4, progress.TotalQuestions)
	assert.Equal(t, int64(1), progress.AnswerVersion)

	// Re-evaluation supersedes, never mutates in place.
	res := validResult()
	res.AIScore = 0.4
	answer2, progress2, err := ing.Ingest(context.Background(), testAssessment(), testQuestion(true), res)
	require.NoError(t, err)
	assert.Equal(t, 2, answer2.Version)
	assert.NotEqual(t, answer.ID, answer2.ID)
	assert.Equal(t, 1, progress2.AnsweredQuestions, "same question, count unchanged")

	require.Len(t, store.answers, 2)
	assert.Equal(t, 0.9, store.answers[0].AIScore, "prior version untouched")
}

func TestIngestStaleSnapshotsGetDistinctVersions(t *testing.T) {
	store := &fakeStore{}
	ing := New(store)

	// Two evaluations in flight each loaded the assessment before either
	// ingested, so both snapshots still read version 0.
	snapA := testAssessment()
	snapB := testAssessment()

	q1 := testQuestion(true)
	q2 := testQuestion(true)
	q2.ID = "q-2"

	_, p1, err := ing.Ingest(context.Background(), snapA, q1, validResult())
	require.NoError(t, err)
	_, p2, err := ing.Ingest(context.Background(), snapB, q2, validResult())
	require.NoError(t, err)

	assert.Equal(t, int64(1), p1.AnswerVersion)
	assert.Equal(t, int64(2), p2.AnswerVersion)
	assert.NotEqual(t, p1.AnswerVersion, p2.AnswerVersion,
		"answer sets with different contents must never share a version")
}

func TestIngestValidation(t *testing.T) {
	tests := []struct {
		name     string
		required bool
		mutate   func(*Result)
		field    string
	}{
		{
			name:   "ai score above range",
			mutate: func(r *Result) { r.AIScore = 1.2 },
			field:  "aiScore",
		},
		{
			name:   "ai score below range",
			mutate: func(r *Result) { r.AIScore = -0.1 },
			field:  "aiScore",
		},
		{
			name:   "confidence above range",
			mutate: func(r *Result) { r.Confidence = 1.01 },
			field:  "confidence",
		},
		{
			name:   "unknown tier",
			mutate: func(r *Result) { r.EvidenceTier = "SOLID" },
			field:  "evidenceTier",
		},
		{
			name:     "empty response on required question",
			required: true,
			mutate:   func(r *Result) { r.ResponseText = "" },
			field:    "responseText",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			ing := New(store)

			res := validResult()
			tt.mutate(&res)

			_, _, err := ing.Ingest(context.Background(), testAssessment(), testQuestion(tt.required), res)

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
			assert.Empty(t, store.answers, "rejected result must not reach storage")
		})
	}
}

func TestIngestOptionalQuestionEmptyResponse(t *testing.T) {
	store := &fakeStore{}
	ing := New(store)

	res := validResult()
	res.ResponseText = ""
	res.EvidenceTier = models.TierNone
	res.AIScore = 0

	_, _, err := ing.Ingest(context.Background(), testAssessment(), testQuestion(false), res)
	assert.NoError(t, err)
}

func TestNormalizeLoosePayload(t *testing.T) {
	res, err := Normalize(map[string]interface{}{
		"responseText": "  documented KYC onboarding flow  ",
		"evidenceTier": "strong",
		"aiScore":      "0.85",
		"confidence":   0.7,
	})
	require.NoError(t, err)
	assert.Equal(t, "documented KYC onboarding flow", res.ResponseText)
	assert.Equal(t, models.TierStrong, res.EvidenceTier)
	assert.Equal(t, 0.85, res.AIScore)
	assert.Equal(t, 0.7, res.Confidence)
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	_, err := Normalize(map[string]interface{}{
		"responseText": "x",
		"evidenceTier": "STRONG",
		"aiScore":      "not-a-number",
		"confidence":   0.5,
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "aiScore", vErr.Field)

	_, err = Normalize(map[string]interface{}{
		"evidenceTier": "MAYBE",
		"aiScore":      0.5,
		"confidence":   0.5,
	})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "evidenceTier", vErr.Field)
}

func TestNormalizeMissingTierDefaultsToNone(t *testing.T) {
	res, err := Normalize(map[string]interface{}{
		"aiScore":    0.0,
		"confidence": 0.0,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TierNone, res.EvidenceTier)
}

func TestIngestOutOfOrderQuestionsCountOnce(t *testing.T) {
	store := &fakeStore{}
	ing := New(store)
	assessment := testAssessment()

	for _, qid := range []string{"q-3", "q-1", "q-2", "q-1"} {
		q := testQuestion(false)
		q.ID = qid
		_, _, err := ing.Ingest(context.Background(), assessment, q, validResult())
		require.NoError(t, err)
	}

	assert.Equal(t, 3, store.answered)

	seen := map[string][]int{}
	for _, a := range store.answers {
		seen[a.QuestionID] = append(seen[a.QuestionID], a.Version)
	}
	sort.Ints(seen["q-1"])
	assert.Equal(t, []int{1, 2}, seen["q-1"])
}
