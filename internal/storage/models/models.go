package models

import "time"

type QuestionType string

const (
	QuestionText        QuestionType = "TEXT"
	QuestionNumber      QuestionType = "NUMBER"
	QuestionBoolean     QuestionType = "BOOLEAN"
	QuestionSelect      QuestionType = "SELECT"
	QuestionMultiSelect QuestionType = "MULTISELECT"
	QuestionFile        QuestionType = "FILE"
	QuestionDate        QuestionType = "DATE"
	QuestionRating      QuestionType = "RATING"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionText, QuestionNumber, QuestionBoolean, QuestionSelect,
		QuestionMultiSelect, QuestionFile, QuestionDate, QuestionRating:
		return true
	}
	return false
}

type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Rank orders severities for sorting, highest urgency first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

func (s Severity) Valid() bool {
	return s.Rank() > 0
}

type EvidenceTier string

const (
	TierStrong   EvidenceTier = "STRONG"
	TierModerate EvidenceTier = "MODERATE"
	TierWeak     EvidenceTier = "WEAK"
	TierNone     EvidenceTier = "NONE"
)

func (t EvidenceTier) Valid() bool {
	switch t {
	case TierStrong, TierModerate, TierWeak, TierNone:
		return true
	}
	return false
}

type AssessmentStatus string

const (
	AssessmentInProgress AssessmentStatus = "IN_PROGRESS"
	AssessmentComplete   AssessmentStatus = "COMPLETE"
	AssessmentScored     AssessmentStatus = "SCORED"
)

type Template struct {
	ID        string
	Name      string
	Category  string
	Sections  []Section
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Section struct {
	ID         string
	TemplateID string
	Title      string
	// Category tags the compliance domain the section covers (falls back to
	// the template category when empty); vendor matching keys off it.
	Category   string
	Weight     float64
	OrderIndex int
	Questions  []Question
}

type Question struct {
	ID         string
	SectionID  string
	Prompt     string
	Type       QuestionType
	Required   bool
	Weight     float64
	OrderIndex int
	Options    []string
}

type Assessment struct {
	ID                string
	TemplateID        string
	OrganizationID    string
	Status            AssessmentStatus
	AnsweredQuestions int
	TotalQuestions    int
	// AnswerVersion increments on every accepted answer ingestion and keys
	// cached score trees, matches and matrices.
	AnswerVersion int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

// Answer is one immutable evaluation result for a question. Re-evaluation
// appends a higher Version; reads always take the latest.
type Answer struct {
	ID           string
	AssessmentID string
	QuestionID   string
	Version      int
	ResponseText string
	EvidenceTier EvidenceTier
	AIScore      float64
	Confidence   float64
	CreatedAt    time.Time
}

type Gap struct {
	ID           string
	AssessmentID string
	NodePath     string
	Category     string
	Title        string
	Description  string
	Severity     Severity
	Score        float64
	Deficit      float64
	CreatedAt    time.Time
}

type Vendor struct {
	ID          string
	Name        string
	Categories  []string
	Featured    bool
	Verified    bool
	Rating      float64
	ReviewCount int
	CreatedAt   time.Time
}

type VendorSolution struct {
	ID           string
	VendorID     string
	Name         string
	Category     string
	PricingModel string
	Features     []string
	CreatedAt    time.Time
}

// WeightAudit records a committed weight batch for a template, one row per
// sibling, so weight history stays reconstructible.
type WeightAudit struct {
	ID         int
	TemplateID string
	ParentID   string
	SiblingID  string
	OldWeight  float64
	NewWeight  float64
	CreatedAt  time.Time
}
