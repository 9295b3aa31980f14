package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/complymatch/backend/internal/assessment"
	"github.com/complymatch/backend/internal/engine/weights"
	"github.com/complymatch/backend/internal/storage/sqlite"
	"github.com/complymatch/backend/pkg/logger"
)

type WeightsHandler struct {
	service *assessment.Service
}

func NewWeightsHandler(service *assessment.Service) *WeightsHandler {
	return &WeightsHandler{service: service}
}

// StageWeight stages one sibling's new weight; the others are rebalanced
// evenly. The staged view is returned so the client can render the preview.
func (h *WeightsHandler) StageWeight(c *fiber.Ctx) error {
	templateID := c.Params("id")

	var req struct {
		ParentID  string  `json:"parent_id"`
		SiblingID string  `json:"sibling_id"`
		Weight    float64 `json:"weight"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.ParentID == "" || req.SiblingID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "parent_id and sibling_id are required",
		})
	}

	staged, err := h.service.StageWeight(c.Context(), templateID, req.ParentID, req.SiblingID, req.Weight)
	if err != nil {
		return weightError(c, templateID, err)
	}

	return c.JSON(fiber.Map{
		"template_id": templateID,
		"parent_id":   req.ParentID,
		"staged":      staged,
	})
}

// StageSectionWeight is the section-level shorthand: the template is the
// parent and the section the rebalanced sibling.
func (h *WeightsHandler) StageSectionWeight(c *fiber.Ctx) error {
	templateID := c.Params("id")
	sectionID := c.Params("sectionId")

	var req struct {
		Weight float64 `json:"weight"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	staged, err := h.service.StageWeight(c.Context(), templateID, templateID, sectionID, req.Weight)
	if err != nil {
		return weightError(c, templateID, err)
	}

	return c.JSON(fiber.Map{
		"template_id": templateID,
		"section_id":  sectionID,
		"staged":      staged,
	})
}

func (h *WeightsHandler) GetWeights(c *fiber.Ctx) error {
	templateID := c.Params("id")
	parentID := c.Params("parentId")

	view, dirty, err := h.service.PendingWeights(c.Context(), templateID, parentID)
	if err != nil {
		return weightError(c, templateID, err)
	}

	return c.JSON(fiber.Map{
		"template_id": templateID,
		"parent_id":   parentID,
		"weights":     view,
		"pending":     dirty,
	})
}

func (h *WeightsHandler) CommitWeights(c *fiber.Ctx) error {
	templateID := c.Params("id")

	if err := h.service.CommitWeights(c.Context(), templateID); err != nil {
		return weightError(c, templateID, err)
	}

	return c.JSON(fiber.Map{
		"template_id": templateID,
		"status":      "committed",
	})
}

func (h *WeightsHandler) DiscardWeights(c *fiber.Ctx) error {
	templateID := c.Params("id")

	h.service.DiscardWeights(templateID)

	return c.JSON(fiber.Map{
		"template_id": templateID,
		"status":      "discarded",
	})
}

func weightError(c *fiber.Ctx, templateID string, err error) error {
	var sumErr *weights.SumInvariantError
	if errors.As(err, &sumErr) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":     "Staged weights do not sum to 1.0",
			"parent_id": sumErr.ParentID,
			"sum":       sumErr.Sum,
		})
	}
	if errors.Is(err, weights.ErrInvalidOperation) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Template not found",
		})
	}

	logger.Error("Weight operation failed",
		zap.String("template_id", templateID),
		zap.Error(err),
	)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Weight operation failed",
	})
}
