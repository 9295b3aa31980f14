package strategy

import (
	"github.com/complymatch/backend/internal/engine/gaps"
	"github.com/complymatch/backend/internal/engine/matching"
	"github.com/complymatch/backend/internal/storage/models"
)

type Phase string

const (
	PhaseImmediate Phase = "immediate"
	PhaseShortTerm Phase = "short-term"
	PhaseLongTerm  Phase = "long-term"
)

// TopMatchesPerGap caps how many ranked vendor matches each matrix entry
// carries.
const TopMatchesPerGap = 3

type Entry struct {
	Gap        models.Gap
	TopMatches []matching.VendorMatch
}

type Bucket struct {
	Phase   Phase
	Window  string
	Entries []Entry
}

type Matrix struct {
	AssessmentID string
	Immediate    Bucket
	ShortTerm    Bucket
	LongTerm     Bucket
}

// Buckets returns the three phases in timeline order.
func (m *Matrix) Buckets() []Bucket {
	return []Bucket{m.Immediate, m.ShortTerm, m.LongTerm}
}

func (m *Matrix) GapCount() int {
	return len(m.Immediate.Entries) + len(m.ShortTerm.Entries) + len(m.LongTerm.Entries)
}

// PhaseFor maps gap severity to a remediation phase.
func PhaseFor(severity models.Severity) Phase {
	switch severity {
	case models.SeverityCritical:
		return PhaseImmediate
	case models.SeverityHigh:
		return PhaseShortTerm
	}
	return PhaseLongTerm
}

// Build partitions gaps and their ranked vendor matches into timeline
// buckets. It does no scoring of its own: matches arrive ranked from the
// matcher, gap ordering reuses the extractor's severity/deficit order, and a
// gap with no matches still lands in its bucket. The inputs are not mutated.
func Build(assessmentID string, openGaps []models.Gap, matchesByGap map[string][]matching.VendorMatch) *Matrix {
	matrix := &Matrix{
		AssessmentID: assessmentID,
		Immediate:    Bucket{Phase: PhaseImmediate, Window: "0-30 days"},
		ShortTerm:    Bucket{Phase: PhaseShortTerm, Window: "30-90 days"},
		LongTerm:     Bucket{Phase: PhaseLongTerm, Window: "90+ days"},
	}

	ordered := make([]models.Gap, len(openGaps))
	copy(ordered, openGaps)
	gaps.Sort(ordered)

	for _, gap := range ordered {
		entry := Entry{Gap: gap, TopMatches: topMatches(matchesByGap[gap.ID])}

		switch PhaseFor(gap.Severity) {
		case PhaseImmediate:
			matrix.Immediate.Entries = append(matrix.Immediate.Entries, entry)
		case PhaseShortTerm:
			matrix.ShortTerm.Entries = append(matrix.ShortTerm.Entries, entry)
		default:
			matrix.LongTerm.Entries = append(matrix.LongTerm.Entries, entry)
		}
	}

	return matrix
}

func topMatches(matches []matching.VendorMatch) []matching.VendorMatch {
	if len(matches) == 0 {
		return nil
	}
	if len(matches) > TopMatchesPerGap {
		matches = matches[:TopMatchesPerGap]
	}
	out := make([]matching.VendorMatch, len(matches))
	copy(out, matches)
	return out
}
