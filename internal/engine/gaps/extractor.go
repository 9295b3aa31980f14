package gaps

import (
	"fmt"
	"sort"
	"time"

	"github.com/complymatch/backend/internal/engine/scoring"
	"github.com/complymatch/backend/internal/storage/models"
	"github.com/complymatch/backend/pkg/utils"
)

// Thresholds are the severity bands applied to normalized node scores.
// A score below Critical is a CRITICAL gap, below High a HIGH gap, below
// Medium a MEDIUM gap. Scores at or above Medium are only surfaced as LOW
// near-misses (below Low) when SurfaceLow is set.
type Thresholds struct {
	Critical   float64
	High       float64
	Medium     float64
	Low        float64
	SurfaceLow bool
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Critical: 0.25,
		High:     0.5,
		Medium:   0.75,
		Low:      0.9,
	}
}

// SeverityFor maps a normalized score to a severity band. The second return
// is false when the score does not constitute a gap.
func SeverityFor(score float64, t Thresholds) (models.Severity, bool) {
	switch {
	case score < t.Critical:
		return models.SeverityCritical, true
	case score < t.High:
		return models.SeverityHigh, true
	case score < t.Medium:
		return models.SeverityMedium, true
	case t.SurfaceLow && score < t.Low:
		return models.SeverityLow, true
	}
	return "", false
}

// Extract walks a score tree and emits one gap per section or question node
// scoring below threshold. Gap IDs derive from (assessment, node path), so a
// later extraction over refreshed answers supersedes prior gaps for the same
// node instead of duplicating them. The result is ordered by severity, then
// descending deficit, then path, which keeps downstream priority stable.
func Extract(assessmentID string, root *scoring.ScoreNode, t Thresholds) []models.Gap {
	now := time.Now()
	var out []models.Gap

	root.Walk(func(n *scoring.ScoreNode) {
		if n.Kind == scoring.NodeTemplate {
			return
		}

		severity, gapped := SeverityFor(n.Raw, t)
		if !gapped {
			return
		}

		adequacy := t.Medium
		if severity == models.SeverityLow {
			adequacy = t.Low
		}

		out = append(out, models.Gap{
			ID:           utils.StableID(assessmentID, n.Path),
			AssessmentID: assessmentID,
			NodePath:     n.Path,
			Category:     n.Category,
			Title:        n.Title,
			Description:  describe(n, severity),
			Severity:     severity,
			Score:        n.Raw,
			Deficit:      adequacy - n.Raw,
			CreatedAt:    now,
		})
	})

	Sort(out)
	return out
}

// Sort orders gaps by severity (CRITICAL first), then descending deficit,
// then node path as the deterministic tie-break.
func Sort(gaps []models.Gap) {
	sort.SliceStable(gaps, func(i, j int) bool {
		if gaps[i].Severity.Rank() != gaps[j].Severity.Rank() {
			return gaps[i].Severity.Rank() > gaps[j].Severity.Rank()
		}
		if gaps[i].Deficit != gaps[j].Deficit {
			return gaps[i].Deficit > gaps[j].Deficit
		}
		return gaps[i].NodePath < gaps[j].NodePath
	})
}

func describe(n *scoring.ScoreNode, severity models.Severity) string {
	subject := "section"
	if n.Kind == scoring.NodeQuestion {
		subject = "control"
	}
	if !n.Answered {
		return fmt.Sprintf("No evidence submitted for %s %q in %s", subject, n.Title, n.Category)
	}
	return fmt.Sprintf("%s %q in %s scored %.0f%%, a %s compliance gap",
		subject, n.Title, n.Category, n.Raw*100, severity)
}
