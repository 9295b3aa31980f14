package assessment

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/complymatch/backend/internal/engine/weights"
	"github.com/complymatch/backend/internal/metrics"
	"github.com/complymatch/backend/internal/storage/sqlite"
	"github.com/complymatch/backend/pkg/logger"
)

// StageWeight records a pending weight edit for one sibling, redistributing
// the remainder evenly across the others. Nothing is persisted until commit.
func (s *Service) StageWeight(ctx context.Context, templateID, parentID, siblingID string, weight float64) (map[string]float64, error) {
	session, err := s.session(ctx, templateID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return session.Stage(parentID, siblingID, weight)
}

// PendingWeights returns the staged view for a parent, falling back to the
// committed weights when nothing is staged.
func (s *Service) PendingWeights(ctx context.Context, templateID, parentID string) (map[string]float64, bool, error) {
	session, err := s.session(ctx, templateID)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	view, ok := session.View(parentID)
	if !ok {
		return nil, false, fmt.Errorf("weight parent %s: %w", parentID, sqlite.ErrNotFound)
	}

	dirty := false
	for _, p := range session.DirtyParents() {
		if p == parentID {
			dirty = true
			break
		}
	}
	return view, dirty, nil
}

// CommitWeights validates and persists every staged weight set atomically,
// then invalidates cached scores for all assessments on the template. A sum
// violation in any staged set rejects the whole batch.
func (s *Service) CommitWeights(ctx context.Context, templateID string) error {
	session, err := s.session(ctx, templateID)
	if err != nil {
		return err
	}

	previous, err := s.store.SiblingWeights(ctx, templateID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	applied, err := session.Commit()
	s.mu.Unlock()
	if err != nil {
		metrics.WeightCommitsTotal.WithLabelValues("rejected").Inc()
		return err
	}
	if len(applied) == 0 {
		return nil
	}

	if err := s.store.ApplyWeightBatch(ctx, templateID, applied, previous); err != nil {
		metrics.WeightCommitsTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.WeightCommitsTotal.WithLabelValues("committed").Inc()

	s.mu.Lock()
	delete(s.sessions, templateID)
	s.mu.Unlock()

	s.invalidateTemplate(ctx, templateID)

	logger.Info("Weight batch committed",
		zap.String("template_id", templateID),
		zap.Int("parents", len(applied)),
	)

	return nil
}

// DiscardWeights drops every staged edit for a template.
func (s *Service) DiscardWeights(templateID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[templateID]; ok {
		session.Discard()
		delete(s.sessions, templateID)
	}
}

func (s *Service) session(ctx context.Context, templateID string) (*weights.EditSession, error) {
	s.mu.Lock()
	session, ok := s.sessions[templateID]
	s.mu.Unlock()
	if ok {
		return session, nil
	}

	committed, err := s.store.SiblingWeights(ctx, templateID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[templateID]; ok {
		return existing, nil
	}
	session = weights.NewEditSession(committed)
	s.sessions[templateID] = session
	return session, nil
}

// Committed weights feed directly into cached score trees, so a commit
// stales every assessment built on the template.
func (s *Service) invalidateTemplate(ctx context.Context, templateID string) {
	if s.cache == nil {
		return
	}

	ids, err := s.store.ListAssessmentIDsByTemplate(ctx, templateID)
	if err != nil {
		logger.Warn("Failed to list assessments for cache invalidation",
			zap.String("template_id", templateID),
			zap.Error(err),
		)
		return
	}

	for _, id := range ids {
		if err := s.cache.InvalidateAssessment(ctx, id); err != nil {
			logger.Warn("Failed to invalidate assessment cache",
				zap.String("assessment_id", id),
				zap.Error(err),
			)
		}
	}
}
