package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/complymatch/backend/internal/assessment"
	"github.com/complymatch/backend/internal/evaluation"
	"github.com/complymatch/backend/internal/storage/models"
	"github.com/complymatch/backend/internal/storage/sqlite"
	"github.com/complymatch/backend/pkg/logger"
)

type AssessmentHandler struct {
	service *assessment.Service
	runner  *evaluation.Runner
}

func NewAssessmentHandler(service *assessment.Service, runner *evaluation.Runner) *AssessmentHandler {
	return &AssessmentHandler{
		service: service,
		runner:  runner,
	}
}

func (h *AssessmentHandler) CreateAssessment(c *fiber.Ctx) error {
	var req struct {
		TemplateID     string `json:"template_id"`
		OrganizationID string `json:"organization_id"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.TemplateID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "template_id is required",
		})
	}

	a, err := h.service.CreateAssessment(c.Context(), req.TemplateID, req.OrganizationID)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Template not found",
			})
		}
		logger.Error("Failed to create assessment", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create assessment",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":              a.ID,
		"template_id":     a.TemplateID,
		"status":          a.Status,
		"total_questions": a.TotalQuestions,
	})
}

func (h *AssessmentHandler) ComputeScore(c *fiber.Ctx) error {
	assessmentID := c.Params("id")

	root, err := h.service.ComputeScore(c.Context(), assessmentID)
	if err != nil {
		return scoreError(c, assessmentID, err)
	}

	return c.JSON(fiber.Map{
		"assessment_id": assessmentID,
		"overall":       root.Overall(),
		"tree":          root,
	})
}

func (h *AssessmentHandler) GetGaps(c *fiber.Ctx) error {
	assessmentID := c.Params("id")

	filter := sqlite.GapFilter{
		Category: c.Query("category"),
	}
	if severity := c.Query("severity"); severity != "" {
		filter.Severity = models.Severity(severity)
		if !filter.Severity.Valid() {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid severity filter",
			})
		}
	}

	found, err := h.service.Gaps(c.Context(), assessmentID, filter)
	if err != nil {
		return scoreError(c, assessmentID, err)
	}

	return c.JSON(fiber.Map{
		"assessment_id": assessmentID,
		"gaps":          found,
		"count":         len(found),
	})
}

func (h *AssessmentHandler) GetMatches(c *fiber.Ctx) error {
	assessmentID := c.Params("id")
	threshold := c.QueryFloat("threshold")
	limit := c.QueryInt("limit")

	result, err := h.service.VendorMatches(c.Context(), assessmentID, threshold, limit)
	if err != nil {
		return scoreError(c, assessmentID, err)
	}

	return c.JSON(fiber.Map{
		"assessment_id": assessmentID,
		"matches":       result.Matches,
		"unmatched":     result.Unmatched,
	})
}

func (h *AssessmentHandler) GetStrategy(c *fiber.Ctx) error {
	assessmentID := c.Params("id")

	matrix, err := h.service.StrategyMatrix(c.Context(), assessmentID)
	if err != nil {
		return scoreError(c, assessmentID, err)
	}

	return c.JSON(matrix)
}

func (h *AssessmentHandler) CompleteAssessment(c *fiber.Ctx) error {
	assessmentID := c.Params("id")

	a, err := h.service.Complete(c.Context(), assessmentID)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Assessment not found",
			})
		}
		if errors.Is(err, assessment.ErrRequiredUnanswered) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":  err.Error(),
				"reason": "required-unanswered",
			})
		}
		logger.Error("Failed to complete assessment",
			zap.String("assessment_id", assessmentID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to complete assessment",
		})
	}

	return c.JSON(fiber.Map{
		"assessment_id":      a.ID,
		"status":             a.Status,
		"answered_questions": a.AnsweredQuestions,
		"total_questions":    a.TotalQuestions,
	})
}

func (h *AssessmentHandler) GetProgress(c *fiber.Ctx) error {
	assessmentID := c.Params("id")

	a, err := h.service.Progress(c.Context(), assessmentID)
	if err != nil {
		return scoreError(c, assessmentID, err)
	}

	return c.JSON(fiber.Map{
		"assessment_id":      a.ID,
		"status":             a.Status,
		"answered_questions": a.AnsweredQuestions,
		"total_questions":    a.TotalQuestions,
		"answer_version":     a.AnswerVersion,
	})
}

func (h *AssessmentHandler) Evaluate(c *fiber.Ctx) error {
	assessmentID := c.Params("id")
	questionID := c.Params("questionId")

	var req struct {
		ResponseText string `json:"responseText"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.ResponseText == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "responseText is required",
		})
	}

	a, question, err := h.service.FindQuestion(c.Context(), assessmentID, questionID)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Assessment or question not found",
			})
		}
		logger.Error("Failed to resolve question", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to start evaluation",
		})
	}

	h.runner.Evaluate(a, question, req.ResponseText)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"assessment_id": assessmentID,
		"question_id":   questionID,
		"status":        "evaluating",
	})
}

func (h *AssessmentHandler) CancelEvaluate(c *fiber.Ctx) error {
	assessmentID := c.Params("id")
	questionID := c.Params("questionId")

	if !h.runner.Cancel(assessmentID, questionID) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No evaluation in flight for this question",
		})
	}

	return c.JSON(fiber.Map{
		"assessment_id": assessmentID,
		"question_id":   questionID,
		"status":        "canceled",
	})
}

// scoreError maps pipeline errors to responses with a machine-readable
// reason, so clients can distinguish "keep polling" from "truly failed".
func scoreError(c *fiber.Ctx, assessmentID string, err error) error {
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Assessment not found",
		})
	}
	if errors.Is(err, assessment.ErrNoAnswers) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":  "No evaluated answers yet",
			"reason": "still-processing",
		})
	}

	logger.Error("Scoring pipeline failed",
		zap.String("assessment_id", assessmentID),
		zap.Error(err),
	)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":  "Scoring failed",
		"reason": "failed",
	})
}
