package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/complymatch/backend/internal/storage/models"
	"github.com/complymatch/backend/pkg/logger"
)

// Result is one evidence evaluation outcome for a (assessment, question)
// pair, already coerced into closed types. Loose payloads go through
// Normalize first.
type Result struct {
	ResponseText string
	EvidenceTier models.EvidenceTier
	AIScore      float64
	Confidence   float64
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type Progress struct {
	AnsweredQuestions int
	TotalQuestions    int
	AnswerVersion     int64
}

// Store is the slice of persistence the ingestor needs. *sqlite.Client
// satisfies it.
type Store interface {
	LatestAnswerVersion(ctx context.Context, assessmentID, questionID string) (int, error)
	InsertAnswer(ctx context.Context, answer *models.Answer) error
	CountAnsweredQuestions(ctx context.Context, assessmentID string) (int, error)
	// AdvanceAssessmentProgress bumps the answer-set version atomically in the
	// store and returns the assigned value. The ingestor never derives the
	// version from the caller's snapshot, since concurrent evaluations may all
	// hold the same stale one.
	AdvanceAssessmentProgress(ctx context.Context, assessmentID string, answered int) (int64, error)
}

type Ingestor struct {
	store Store
}

func New(store Store) *Ingestor {
	return &Ingestor{store: store}
}

// Normalize coerces a loosely typed payload from the outer application into a
// Result. Coercion failures surface as validation errors, not panics.
func Normalize(payload map[string]interface{}) (Result, error) {
	var res Result

	res.ResponseText = strings.TrimSpace(cast.ToString(payload["responseText"]))

	tier := models.EvidenceTier(strings.ToUpper(cast.ToString(payload["evidenceTier"])))
	if tier == "" {
		tier = models.TierNone
	}
	if !tier.Valid() {
		return res, &ValidationError{Field: "evidenceTier", Reason: fmt.Sprintf("unknown tier %q", tier)}
	}
	res.EvidenceTier = tier

	aiScore, err := cast.ToFloat64E(payload["aiScore"])
	if err != nil {
		return res, &ValidationError{Field: "aiScore", Reason: "not a number"}
	}
	res.AIScore = aiScore

	confidence, err := cast.ToFloat64E(payload["confidence"])
	if err != nil {
		return res, &ValidationError{Field: "confidence", Reason: "not a number"}
	}
	res.Confidence = confidence

	return res, nil
}

// Validate rejects results that must never enter the score tree.
func Validate(question *models.Question, res Result) error {
	if res.AIScore < 0 || res.AIScore > 1 {
		return &ValidationError{Field: "aiScore", Reason: fmt.Sprintf("%.4f outside [0,1]", res.AIScore)}
	}
	if res.Confidence < 0 || res.Confidence > 1 {
		return &ValidationError{Field: "confidence", Reason: fmt.Sprintf("%.4f outside [0,1]", res.Confidence)}
	}
	if !res.EvidenceTier.Valid() {
		return &ValidationError{Field: "evidenceTier", Reason: fmt.Sprintf("unknown tier %q", res.EvidenceTier)}
	}
	if question.Required && res.ResponseText == "" {
		return &ValidationError{Field: "responseText", Reason: "required question answered with empty response"}
	}
	return nil
}

// Ingest validates a result and appends it as a new immutable answer version,
// then refreshes the assessment's progress counters. Prior versions are never
// touched; retrieval takes the latest.
func (i *Ingestor) Ingest(ctx context.Context, assessment *models.Assessment, question *models.Question, res Result) (*models.Answer, Progress, error) {
	var progress Progress

	if err := Validate(question, res); err != nil {
		return nil, progress, err
	}

	latest, err := i.store.LatestAnswerVersion(ctx, assessment.ID, question.ID)
	if err != nil {
		return nil, progress, fmt.Errorf("failed to read latest answer version: %w", err)
	}

	answer := &models.Answer{
		ID:           uuid.New().String(),
		AssessmentID: assessment.ID,
		QuestionID:   question.ID,
		Version:      latest + 1,
		ResponseText: res.ResponseText,
		EvidenceTier: res.EvidenceTier,
		AIScore:      res.AIScore,
		Confidence:   res.Confidence,
		CreatedAt:    time.Now(),
	}

	if err := i.store.InsertAnswer(ctx, answer); err != nil {
		return nil, progress, fmt.Errorf("failed to insert answer: %w", err)
	}

	answered, err := i.store.CountAnsweredQuestions(ctx, assessment.ID)
	if err != nil {
		return nil, progress, fmt.Errorf("failed to count answered questions: %w", err)
	}

	answerVersion, err := i.store.AdvanceAssessmentProgress(ctx, assessment.ID, answered)
	if err != nil {
		return nil, progress, fmt.Errorf("failed to advance assessment progress: %w", err)
	}

	progress = Progress{
		AnsweredQuestions: answered,
		TotalQuestions:    assessment.TotalQuestions,
		AnswerVersion:     answerVersion,
	}

	logger.Debug("Answer ingested",
		zap.String("assessment_id", assessment.ID),
		zap.String("question_id", question.ID),
		zap.Int("version", answer.Version),
		zap.Float64("ai_score", answer.AIScore),
		zap.Float64("confidence", answer.Confidence),
		zap.Int("answered", answered),
	)

	return answer, progress, nil
}
