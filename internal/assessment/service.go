package assessment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/complymatch/backend/internal/engine/gaps"
	"github.com/complymatch/backend/internal/engine/matching"
	"github.com/complymatch/backend/internal/engine/scoring"
	"github.com/complymatch/backend/internal/engine/strategy"
	"github.com/complymatch/backend/internal/engine/weights"
	"github.com/complymatch/backend/internal/metrics"
	"github.com/complymatch/backend/internal/storage/models"
	"github.com/complymatch/backend/internal/storage/sqlite"
	"github.com/complymatch/backend/pkg/logger"
)

// Unmatched reasons returned when a gap has no vendor matches.
const (
	ReasonNoCandidates   = "no catalog solutions cover this category"
	ReasonBelowThreshold = "all candidate scores fell below the match threshold"
)

// ErrNoAnswers means scoring was requested before any evidence was ingested.
var ErrNoAnswers = errors.New("assessment has no evaluated answers")

// ErrRequiredUnanswered blocks completion while required questions still lack
// an evaluated answer.
var ErrRequiredUnanswered = errors.New("required questions remain unanswered")

// Store is the persistence surface the service orchestrates over.
// *sqlite.Client satisfies it.
type Store interface {
	GetTemplate(ctx context.Context, id string) (*models.Template, error)
	GetAssessment(ctx context.Context, id string) (*models.Assessment, error)
	InsertAssessment(ctx context.Context, a *models.Assessment) error
	SetAssessmentStatus(ctx context.Context, id string, status models.AssessmentStatus) error
	ListLatestAnswers(ctx context.Context, assessmentID string) ([]*models.Answer, error)
	DeleteGaps(ctx context.Context, assessmentID string) error
	UpsertGap(ctx context.Context, gap *models.Gap) error
	ListGaps(ctx context.Context, assessmentID string, filter sqlite.GapFilter) ([]models.Gap, error)
	ListCandidateSolutions(ctx context.Context, categories []string) ([]sqlite.CandidateRow, error)
	SiblingWeights(ctx context.Context, templateID string) (map[string]map[string]float64, error)
	ApplyWeightBatch(ctx context.Context, templateID string, batch, previous map[string]map[string]float64) error
	ListAssessmentIDsByTemplate(ctx context.Context, templateID string) ([]string, error)
}

// Cache is the read-through cache surface. *redis.Client satisfies it; a nil
// Cache disables caching entirely.
type Cache interface {
	SetScoreTree(ctx context.Context, assessmentID string, version int64, tree interface{}) error
	GetScoreTree(ctx context.Context, assessmentID string, version int64, tree interface{}) (bool, error)
	SetMatches(ctx context.Context, assessmentID string, version int64, threshold float64, limit int, matches interface{}) error
	GetMatches(ctx context.Context, assessmentID string, version int64, threshold float64, limit int, matches interface{}) (bool, error)
	SetMatrix(ctx context.Context, assessmentID string, version int64, matrix interface{}) error
	GetMatrix(ctx context.Context, assessmentID string, version int64, matrix interface{}) (bool, error)
	InvalidateAssessment(ctx context.Context, assessmentID string) error
}

type Config struct {
	Thresholds     gaps.Thresholds
	MatchThreshold float64
	MatchLimit     int
	RelatedOverlap float64
}

// Service ties the scoring pipeline together: aggregate scores, extract and
// persist gaps, match vendors, and build the remediation matrix. It also owns
// the per-template weight edit sessions.
type Service struct {
	store Store
	cache Cache
	cfg   Config

	mu       sync.RWMutex
	matcher  *matching.Matcher
	sessions map[string]*weights.EditSession
}

func NewService(store Store, cache Cache, related map[string]map[string]float64, cfg Config) *Service {
	if cfg.MatchLimit <= 0 {
		cfg.MatchLimit = 50
	}
	return &Service{
		store:    store,
		cache:    cache,
		cfg:      cfg,
		matcher:  matching.NewMatcher(related, cfg.RelatedOverlap),
		sessions: make(map[string]*weights.EditSession),
	}
}

// SetRelatedness swaps in a fresh category-graph snapshot. In-flight match
// calls keep the matcher they already picked up.
func (s *Service) SetRelatedness(related map[string]map[string]float64) {
	s.mu.Lock()
	s.matcher = matching.NewMatcher(related, s.cfg.RelatedOverlap)
	s.mu.Unlock()
	metrics.CategoryGraphSize.Set(float64(len(related)))
}

func (s *Service) currentMatcher() *matching.Matcher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matcher
}

// CreateAssessment starts a new assessment over a template.
func (s *Service) CreateAssessment(ctx context.Context, templateID, organizationID string) (*models.Assessment, error) {
	tmpl, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}

	total := 0
	for i := range tmpl.Sections {
		total += len(tmpl.Sections[i].Questions)
	}

	now := time.Now().UTC()
	a := &models.Assessment{
		ID:             uuid.New().String(),
		TemplateID:     tmpl.ID,
		OrganizationID: organizationID,
		Status:         models.AssessmentInProgress,
		TotalQuestions: total,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.InsertAssessment(ctx, a); err != nil {
		return nil, err
	}

	logger.Info("Assessment created",
		zap.String("assessment_id", a.ID),
		zap.String("template_id", tmpl.ID),
		zap.Int("total_questions", total),
	)

	return a, nil
}

// Complete marks an assessment COMPLETE, switching scoring from partial
// normalization to the full weight set. Every required question must carry an
// evaluated answer; optional questions may stay open. Idempotent once the
// assessment has left IN_PROGRESS.
func (s *Service) Complete(ctx context.Context, assessmentID string) (*models.Assessment, error) {
	a, err := s.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if a.Status != models.AssessmentInProgress {
		return a, nil
	}

	tmpl, err := s.store.GetTemplate(ctx, a.TemplateID)
	if err != nil {
		return nil, err
	}
	answerRows, err := s.store.ListLatestAnswers(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	answered := make(map[string]bool, len(answerRows))
	for _, answer := range answerRows {
		answered[answer.QuestionID] = true
	}
	missing := 0
	for i := range tmpl.Sections {
		for _, q := range tmpl.Sections[i].Questions {
			if q.Required && !answered[q.ID] {
				missing++
			}
		}
	}
	if missing > 0 {
		return nil, fmt.Errorf("%d required questions unanswered: %w", missing, ErrRequiredUnanswered)
	}

	if err := s.store.SetAssessmentStatus(ctx, a.ID, models.AssessmentComplete); err != nil {
		return nil, err
	}
	a.Status = models.AssessmentComplete
	now := time.Now().UTC()
	a.CompletedAt = &now

	// Completion changes the normalization mode without a new answer version,
	// so cached partial results for this version are now wrong.
	if s.cache != nil {
		if err := s.cache.InvalidateAssessment(ctx, a.ID); err != nil {
			logger.Warn("Failed to invalidate caches on completion",
				zap.String("assessment_id", a.ID), zap.Error(err))
		}
	}

	logger.Info("Assessment completed",
		zap.String("assessment_id", a.ID),
		zap.Int("answered", a.AnsweredQuestions),
		zap.Int("total", a.TotalQuestions),
	)

	return a, nil
}

// ComputeScore aggregates the assessment's score tree, persists the extracted
// gaps, and caches the tree keyed by answer version. A repeat call at the
// same answer version is a cache hit and recomputes nothing.
func (s *Service) ComputeScore(ctx context.Context, assessmentID string) (*scoring.ScoreNode, error) {
	a, err := s.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}

	if a.AnsweredQuestions == 0 {
		return nil, ErrNoAnswers
	}

	if s.cache != nil {
		var cached scoring.ScoreNode
		if hit, err := s.cache.GetScoreTree(ctx, a.ID, a.AnswerVersion, &cached); err == nil && hit {
			metrics.CacheHits.WithLabelValues("score").Inc()
			return &cached, nil
		}
		metrics.CacheMisses.WithLabelValues("score").Inc()
	}

	start := time.Now()

	tmpl, err := s.store.GetTemplate(ctx, a.TemplateID)
	if err != nil {
		return nil, err
	}

	answerRows, err := s.store.ListLatestAnswers(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	complete := a.Status == models.AssessmentComplete || a.Status == models.AssessmentScored ||
		a.AnsweredQuestions >= a.TotalQuestions
	root := scoring.Aggregate(tmpl, scoring.LatestAnswers(answerRows), complete)

	if err := s.persistGaps(ctx, a.ID, root); err != nil {
		metrics.ScoringTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if complete && a.Status != models.AssessmentScored {
		if err := s.store.SetAssessmentStatus(ctx, a.ID, models.AssessmentScored); err != nil {
			logger.Warn("Failed to mark assessment scored", zap.String("assessment_id", a.ID), zap.Error(err))
		}
	}

	if s.cache != nil {
		if err := s.cache.SetScoreTree(ctx, a.ID, a.AnswerVersion, root); err != nil {
			logger.Warn("Failed to cache score tree", zap.String("assessment_id", a.ID), zap.Error(err))
		}
	}

	mode := "partial"
	if complete {
		mode = "complete"
	}
	metrics.ScoringDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	metrics.ScoringTotal.WithLabelValues("success").Inc()

	logger.Info("Assessment scored",
		zap.String("assessment_id", a.ID),
		zap.Float64("overall", root.Overall()),
		zap.Bool("complete", complete),
	)

	return root, nil
}

func (s *Service) persistGaps(ctx context.Context, assessmentID string, root *scoring.ScoreNode) error {
	extracted := gaps.Extract(assessmentID, root, s.cfg.Thresholds)

	if err := s.store.DeleteGaps(ctx, assessmentID); err != nil {
		return fmt.Errorf("failed to clear stale gaps: %w", err)
	}

	counts := make(map[models.Severity]int)
	for i := range extracted {
		if err := s.store.UpsertGap(ctx, &extracted[i]); err != nil {
			return fmt.Errorf("failed to persist gap %s: %w", extracted[i].ID, err)
		}
		counts[extracted[i].Severity]++
	}
	for severity, n := range counts {
		metrics.GapsExtracted.WithLabelValues(string(severity)).Observe(float64(n))
	}

	return nil
}

// Gaps recomputes the score if needed and returns the assessment's gaps,
// sorted by severity then deficit, optionally filtered.
func (s *Service) Gaps(ctx context.Context, assessmentID string, filter sqlite.GapFilter) ([]models.Gap, error) {
	if _, err := s.ComputeScore(ctx, assessmentID); err != nil {
		return nil, err
	}

	found, err := s.store.ListGaps(ctx, assessmentID, filter)
	if err != nil {
		return nil, err
	}

	gaps.Sort(found)
	return found, nil
}

// MatchResult carries vendor matches per gap plus a reason for every gap
// that ended up with none, so an empty list is always explained.
type MatchResult struct {
	Matches   map[string][]matching.VendorMatch `json:"matches"`
	Unmatched map[string]string                 `json:"unmatched"`
}

// VendorMatches matches catalog solutions against every open gap. Results
// are cached per (assessment, answer version, threshold, limit).
func (s *Service) VendorMatches(ctx context.Context, assessmentID string, threshold float64, limit int) (*MatchResult, error) {
	if threshold <= 0 {
		threshold = s.cfg.MatchThreshold
	}
	if limit <= 0 {
		limit = s.cfg.MatchLimit
	}

	a, err := s.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		var cached MatchResult
		if hit, err := s.cache.GetMatches(ctx, a.ID, a.AnswerVersion, threshold, limit, &cached); err == nil && hit {
			metrics.CacheHits.WithLabelValues("matches").Inc()
			return &cached, nil
		}
		metrics.CacheMisses.WithLabelValues("matches").Inc()
	}

	openGaps, err := s.Gaps(ctx, assessmentID, sqlite.GapFilter{})
	if err != nil {
		return nil, err
	}

	result, err := s.matchGaps(ctx, openGaps, threshold, limit)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetMatches(ctx, a.ID, a.AnswerVersion, threshold, limit, result); err != nil {
			logger.Warn("Failed to cache matches", zap.String("assessment_id", a.ID), zap.Error(err))
		}
	}

	return result, nil
}

func (s *Service) matchGaps(ctx context.Context, openGaps []models.Gap, threshold float64, limit int) (*MatchResult, error) {
	// Related-category scoring means a candidate outside the gap's own
	// category can still match, so the whole catalog is in play.
	rows, err := s.store.ListCandidateSolutions(ctx, nil)
	if err != nil {
		return nil, err
	}

	candidates := make([]matching.Candidate, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, matching.Candidate{Vendor: row.Vendor, Solution: row.Solution})
	}

	matcher := s.currentMatcher()
	result := &MatchResult{
		Matches:   make(map[string][]matching.VendorMatch),
		Unmatched: make(map[string]string),
	}

	for _, g := range openGaps {
		if len(candidates) == 0 {
			result.Unmatched[g.ID] = ReasonNoCandidates
			continue
		}

		matches := matcher.Match(g, candidates, threshold, limit)
		if len(matches) == 0 {
			result.Unmatched[g.ID] = ReasonBelowThreshold
			continue
		}

		result.Matches[g.ID] = matches
		metrics.MatchesComputed.Observe(float64(len(matches)))
		for _, m := range matches {
			metrics.MatchScore.Observe(m.MatchScore)
		}
	}

	return result, nil
}

// StrategyMatrix builds the phased remediation plan from the current gaps and
// their top vendor matches.
func (s *Service) StrategyMatrix(ctx context.Context, assessmentID string) (*strategy.Matrix, error) {
	a, err := s.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		var cached strategy.Matrix
		if hit, err := s.cache.GetMatrix(ctx, a.ID, a.AnswerVersion, &cached); err == nil && hit {
			metrics.CacheHits.WithLabelValues("matrix").Inc()
			return &cached, nil
		}
		metrics.CacheMisses.WithLabelValues("matrix").Inc()
	}

	openGaps, err := s.Gaps(ctx, assessmentID, sqlite.GapFilter{})
	if err != nil {
		return nil, err
	}

	matchResult, err := s.VendorMatches(ctx, assessmentID, 0, 0)
	if err != nil {
		return nil, err
	}

	matrix := strategy.Build(assessmentID, openGaps, matchResult.Matches)

	if s.cache != nil {
		if err := s.cache.SetMatrix(ctx, a.ID, a.AnswerVersion, matrix); err != nil {
			logger.Warn("Failed to cache strategy matrix", zap.String("assessment_id", a.ID), zap.Error(err))
		}
	}

	return matrix, nil
}

// Progress reports the assessment's evaluation progress counters.
func (s *Service) Progress(ctx context.Context, assessmentID string) (*models.Assessment, error) {
	return s.store.GetAssessment(ctx, assessmentID)
}

// FindQuestion resolves a question within an assessment's template.
func (s *Service) FindQuestion(ctx context.Context, assessmentID, questionID string) (*models.Assessment, *models.Question, error) {
	a, err := s.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, nil, err
	}

	tmpl, err := s.store.GetTemplate(ctx, a.TemplateID)
	if err != nil {
		return nil, nil, err
	}

	for i := range tmpl.Sections {
		for j := range tmpl.Sections[i].Questions {
			if tmpl.Sections[i].Questions[j].ID == questionID {
				return a, &tmpl.Sections[i].Questions[j], nil
			}
		}
	}

	return nil, nil, fmt.Errorf("question %s: %w", questionID, sqlite.ErrNotFound)
}
