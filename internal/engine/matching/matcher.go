package matching

import (
	"fmt"
	"sort"
	"strings"

	"github.com/complymatch/backend/internal/storage/models"
)

// Scoring formula weights. Every match score decomposes into these three
// factors so each numeric result is traceable to named reasons.
const (
	categoryWeight = 0.6
	keywordWeight  = 0.3
	boostWeight    = 0.1

	// reasonThreshold is the minimum weighted contribution a factor needs to
	// earn its own reason string.
	reasonThreshold = 0.05

	// DefaultRelatedOverlap is the category overlap credited when the gap and
	// solution categories are related rather than identical.
	DefaultRelatedOverlap = 0.5
)

// Candidate pairs a solution with its vendor for scoring.
type Candidate struct {
	Vendor   models.Vendor
	Solution models.VendorSolution
}

type VendorMatch struct {
	GapID        string
	Vendor       models.Vendor
	Solution     models.VendorSolution
	MatchScore   float64
	MatchReasons []string
}

// Matcher scores candidate solutions against gaps. The relatedness map
// (category -> related category -> overlap in [0,1]) is an immutable snapshot
// taken at construction, keeping every Match call pure and reproducible.
type Matcher struct {
	related        map[string]map[string]float64
	relatedDefault float64
}

func NewMatcher(related map[string]map[string]float64, relatedDefault float64) *Matcher {
	if relatedDefault <= 0 || relatedDefault >= 1 {
		relatedDefault = DefaultRelatedOverlap
	}

	// Keys are normalized once here so lookups stay case-insensitive no matter
	// how the snapshot or the templates spell their category names.
	normalized := make(map[string]map[string]float64, len(related))
	for from, edges := range related {
		inner := make(map[string]float64, len(edges))
		for to, overlap := range edges {
			inner[normalizeCategory(to)] = overlap
		}
		normalized[normalizeCategory(from)] = inner
	}

	return &Matcher{related: normalized, relatedDefault: relatedDefault}
}

// Match scores every candidate against the gap, discards scores below
// threshold, orders descending by score with rating then review count as
// tie-breaks, and truncates to limit.
func (m *Matcher) Match(gap models.Gap, candidates []Candidate, threshold float64, limit int) []VendorMatch {
	gapKeywords := Keywords(gap.Title + " " + gap.Description)

	matches := make([]VendorMatch, 0, len(candidates))
	for _, candidate := range candidates {
		match := m.score(gap, candidate, gapKeywords)
		if match.MatchScore < threshold {
			continue
		}
		matches = append(matches, match)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].MatchScore != matches[j].MatchScore {
			return matches[i].MatchScore > matches[j].MatchScore
		}
		if matches[i].Vendor.Rating != matches[j].Vendor.Rating {
			return matches[i].Vendor.Rating > matches[j].Vendor.Rating
		}
		if matches[i].Vendor.ReviewCount != matches[j].Vendor.ReviewCount {
			return matches[i].Vendor.ReviewCount > matches[j].Vendor.ReviewCount
		}
		return matches[i].Vendor.ID < matches[j].Vendor.ID
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	return matches
}

func (m *Matcher) score(gap models.Gap, candidate Candidate, gapKeywords []string) VendorMatch {
	match := VendorMatch{
		GapID:    gap.ID,
		Vendor:   candidate.Vendor,
		Solution: candidate.Solution,
	}

	category := m.categoryOverlap(gap.Category, candidate.Solution.Category)
	keywords, hits := keywordOverlap(gapKeywords, candidate.Solution.Features)
	boost := priorityBoost(gap.Severity, candidate.Vendor)

	score := categoryWeight*category + keywordWeight*keywords + boostWeight*boost
	if score > 1.0 {
		score = 1.0
	}
	match.MatchScore = score

	if contribution := categoryWeight * category; contribution >= reasonThreshold {
		if category == 1.0 {
			match.MatchReasons = append(match.MatchReasons,
				fmt.Sprintf("Solution category matches gap category %s", gap.Category))
		} else {
			match.MatchReasons = append(match.MatchReasons,
				fmt.Sprintf("Solution category %s is related to gap category %s",
					candidate.Solution.Category, gap.Category))
		}
	}
	if contribution := keywordWeight * keywords; contribution >= reasonThreshold {
		match.MatchReasons = append(match.MatchReasons,
			fmt.Sprintf("Features cover %d of %d gap keywords", hits, len(gapKeywords)))
	}
	if contribution := boostWeight * boost; contribution >= reasonThreshold {
		match.MatchReasons = append(match.MatchReasons,
			fmt.Sprintf("%s boost for %s severity gap", vendorStanding(candidate.Vendor), gap.Severity))
	}

	// Every positive score must be explainable, even when no single factor
	// clears the reason threshold.
	if score > 0 && len(match.MatchReasons) == 0 {
		match.MatchReasons = append(match.MatchReasons,
			fmt.Sprintf("Partial feature overlap with gap %s", gap.NodePath))
	}

	return match
}

func (m *Matcher) categoryOverlap(gapCategory, solutionCategory string) float64 {
	// The relatedness snapshot and the catalog importer both store lowercase
	// category names; gap categories arrive as authored in the template.
	gapKey := normalizeCategory(gapCategory)
	solutionKey := normalizeCategory(solutionCategory)
	if gapKey == "" || solutionKey == "" {
		return 0
	}
	if gapKey == solutionKey {
		return 1.0
	}
	if related, ok := m.related[gapKey]; ok {
		if overlap, ok := related[solutionKey]; ok {
			if overlap > 0 {
				return overlap
			}
			return m.relatedDefault
		}
	}
	return 0
}

func normalizeCategory(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func keywordOverlap(gapKeywords []string, features []string) (float64, int) {
	if len(gapKeywords) == 0 {
		return 0, 0
	}

	featureWords := KeywordSet(features)
	hits := 0
	for _, word := range gapKeywords {
		if featureWords[word] {
			hits++
		}
	}

	return float64(hits) / float64(len(gapKeywords)), hits
}

// priorityBoost credits featured and verified vendors on urgent gaps.
func priorityBoost(severity models.Severity, vendor models.Vendor) float64 {
	if severity != models.SeverityCritical && severity != models.SeverityHigh {
		return 0
	}

	boost := 0.0
	if vendor.Featured {
		boost += 0.5
	}
	if vendor.Verified {
		boost += 0.5
	}
	return boost
}

func vendorStanding(vendor models.Vendor) string {
	switch {
	case vendor.Featured && vendor.Verified:
		return "Featured, verified vendor"
	case vendor.Featured:
		return "Featured vendor"
	case vendor.Verified:
		return "Verified vendor"
	}
	return "Vendor"
}
