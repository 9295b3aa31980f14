package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/complymatch/backend/internal/storage/models"
	"github.com/complymatch/backend/internal/storage/sqlite"
	"github.com/complymatch/backend/pkg/logger"
)

type TemplateHandler struct {
	store *sqlite.Client
}

func NewTemplateHandler(store *sqlite.Client) *TemplateHandler {
	return &TemplateHandler{store: store}
}

type templateRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Sections []struct {
		Title     string  `json:"title"`
		Category  string  `json:"category"`
		Weight    float64 `json:"weight"`
		Questions []struct {
			Prompt   string   `json:"prompt"`
			Type     string   `json:"type"`
			Required bool     `json:"required"`
			Weight   float64  `json:"weight"`
			Options  []string `json:"options"`
		} `json:"questions"`
	} `json:"sections"`
}

// CreateTemplate registers a questionnaire template. Section and question
// weights left at zero are distributed evenly among their siblings.
func (h *TemplateHandler) CreateTemplate(c *fiber.Ctx) error {
	var req templateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Name == "" || len(req.Sections) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "name and at least one section are required",
		})
	}

	tmpl, err := buildTemplate(req)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := h.store.InsertTemplate(c.Context(), tmpl); err != nil {
		logger.Error("Failed to insert template", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create template",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":       tmpl.ID,
		"name":     tmpl.Name,
		"sections": len(tmpl.Sections),
	})
}

func (h *TemplateHandler) GetTemplate(c *fiber.Ctx) error {
	tmpl, err := h.store.GetTemplate(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Template not found",
			})
		}
		logger.Error("Failed to load template", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load template",
		})
	}

	return c.JSON(tmpl)
}

func buildTemplate(req templateRequest) (*models.Template, error) {
	now := time.Now().UTC()
	tmpl := &models.Template{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Category:  req.Category,
		CreatedAt: now,
		UpdatedAt: now,
	}

	evenSection := 1.0 / float64(len(req.Sections))
	for i, s := range req.Sections {
		if len(s.Questions) == 0 {
			return nil, errors.New("every section needs at least one question")
		}

		section := models.Section{
			ID:         uuid.New().String(),
			TemplateID: tmpl.ID,
			Title:      s.Title,
			Category:   s.Category,
			Weight:     s.Weight,
			OrderIndex: i,
		}
		if section.Weight == 0 {
			section.Weight = evenSection
		}

		evenQuestion := 1.0 / float64(len(s.Questions))
		for j, q := range s.Questions {
			qType := models.QuestionType(q.Type)
			if q.Type == "" {
				qType = models.QuestionText
			}
			if !qType.Valid() {
				return nil, errors.New("invalid question type: " + q.Type)
			}

			question := models.Question{
				ID:         uuid.New().String(),
				SectionID:  section.ID,
				Prompt:     q.Prompt,
				Type:       qType,
				Required:   q.Required,
				Weight:     q.Weight,
				OrderIndex: j,
				Options:    q.Options,
			}
			if question.Weight == 0 {
				question.Weight = evenQuestion
			}
			section.Questions = append(section.Questions, question)
		}

		tmpl.Sections = append(tmpl.Sections, section)
	}

	return tmpl, nil
}
