package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/complymatch/backend/internal/catalog"
	"github.com/complymatch/backend/internal/metrics"
	"github.com/complymatch/backend/pkg/logger"
)

type CatalogHandler struct {
	importer *catalog.Importer
}

func NewCatalogHandler(importer *catalog.Importer) *CatalogHandler {
	return &CatalogHandler{importer: importer}
}

// Import loads vendors into the catalog either from a directory URL or from
// inline HTML in the request body.
func (h *CatalogHandler) Import(c *fiber.Ctx) error {
	var req struct {
		URL  string `json:"url"`
		HTML string `json:"html"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	var (
		stats *catalog.ImportStats
		err   error
	)
	switch {
	case req.URL != "":
		stats, err = h.importer.ImportFromURL(c.Context(), req.URL)
	case req.HTML != "":
		stats, err = h.importer.Import(c.Context(), strings.NewReader(req.HTML))
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Either url or html is required",
		})
	}

	if err != nil {
		logger.Error("Catalog import failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Catalog import failed",
		})
	}

	metrics.CatalogVendorsImported.Add(float64(stats.Vendors))

	return c.JSON(fiber.Map{
		"vendors":   stats.Vendors,
		"solutions": stats.Solutions,
		"skipped":   stats.Skipped,
	})
}
