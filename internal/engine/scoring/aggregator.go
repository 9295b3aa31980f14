package scoring

import (
	"github.com/complymatch/backend/internal/storage/models"
)

type NodeKind string

const (
	NodeTemplate NodeKind = "template"
	NodeSection  NodeKind = "section"
	NodeQuestion NodeKind = "question"
)

// ScoreNode is one node of the audit tree mirroring template -> section ->
// question. Raw is the normalized score in [0,1]; Effective is the
// weight-adjusted contribution to the parent. A fresh tree is produced on
// every aggregation run, so recomputation is idempotent and never shares
// state with a prior run.
type ScoreNode struct {
	ID        string
	Path      string
	Kind      NodeKind
	Title     string
	Category  string
	Weight    float64
	Raw       float64
	Effective float64
	Answered  bool
	Children  []*ScoreNode
}

// Overall returns the display score on the 0-100 range.
func (n *ScoreNode) Overall() float64 {
	return n.Raw * 100
}

// Walk visits the node and all descendants depth-first in template order.
func (n *ScoreNode) Walk(fn func(*ScoreNode)) {
	fn(n)
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// LatestAnswers reduces an answer history to the newest version per question.
func LatestAnswers(answers []*models.Answer) map[string]*models.Answer {
	latest := make(map[string]*models.Answer)
	for _, a := range answers {
		if cur, ok := latest[a.QuestionID]; !ok || a.Version > cur.Version {
			latest[a.QuestionID] = a
		}
	}
	return latest
}

// Aggregate scores a template against the latest answer per question and
// returns the root of a fresh score tree. Input answers are never mutated.
//
// A question scores aiScore x confidence x weight. Unanswered questions
// contribute zero: missing evidence is a finding, not an exclusion. While the
// assessment is in progress a section normalizes against the weight of the
// questions actually answered, so partial completion does not read as
// failure; once complete the full weight set is the denominator.
func Aggregate(template *models.Template, answers map[string]*models.Answer, complete bool) *ScoreNode {
	root := &ScoreNode{
		ID:       template.ID,
		Path:     template.ID,
		Kind:     NodeTemplate,
		Title:    template.Name,
		Category: template.Category,
		Weight:   1.0,
	}

	overall := 0.0
	answered := false

	for _, section := range template.Sections {
		sectionNode := aggregateSection(&section, template.Category, answers, complete)
		root.Children = append(root.Children, sectionNode)
		overall += sectionNode.Raw * sectionNode.Weight
		if sectionNode.Answered {
			answered = true
		}
	}

	root.Raw = clampUnit(overall)
	root.Effective = root.Raw
	root.Answered = answered

	return root
}

func aggregateSection(section *models.Section, templateCategory string, answers map[string]*models.Answer, complete bool) *ScoreNode {
	category := section.Category
	if category == "" {
		category = templateCategory
	}

	node := &ScoreNode{
		ID:       section.ID,
		Path:     section.ID,
		Kind:     NodeSection,
		Title:    section.Title,
		Category: category,
		Weight:   section.Weight,
	}

	effectiveSum := 0.0
	answeredWeight := 0.0
	totalWeight := 0.0

	for _, question := range section.Questions {
		qNode := scoreQuestion(section.ID, category, &question, answers[question.ID])
		node.Children = append(node.Children, qNode)

		effectiveSum += qNode.Effective
		totalWeight += question.Weight
		if qNode.Answered {
			answeredWeight += question.Weight
			node.Answered = true
		}
	}

	denominator := totalWeight
	if !complete {
		denominator = answeredWeight
	}

	if denominator > 0 {
		node.Raw = clampUnit(effectiveSum / denominator)
	}
	node.Effective = node.Raw * node.Weight

	return node
}

func scoreQuestion(sectionID, category string, question *models.Question, answer *models.Answer) *ScoreNode {
	node := &ScoreNode{
		ID:       question.ID,
		Path:     sectionID + "/" + question.ID,
		Kind:     NodeQuestion,
		Title:    question.Prompt,
		Category: category,
		Weight:   question.Weight,
	}

	if answer == nil {
		return node
	}

	node.Answered = true
	node.Raw = clampUnit(answer.AIScore * answer.Confidence)
	node.Effective = node.Raw * question.Weight

	return node
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
