package validation

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var (
	sqlInjectionPattern = regexp.MustCompile(`(?i)(union\s+select|insert\s+into|drop\s+table|exec\s|<script|javascript:)`)
	xssPattern          = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)
)

type Config struct {
	MaxResponseLength   int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware screens write requests before they reach the handlers: content
// type, evidence response size, and obvious injection payloads. Semantic
// validation (score ranges, evidence tiers) lives in the ingest engine.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxResponseLength == 0 {
		cfg.MaxResponseLength = 20000
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == "POST" || c.Method() == "PUT" {
			contentType := c.Get("Content-Type")
			if contentType != "" && len(c.Body()) > 0 {
				allowed := false
				for _, allowedType := range cfg.AllowedContentTypes {
					if strings.Contains(contentType, allowedType) {
						allowed = true
						break
					}
				}
				if !allowed {
					return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
						"error": "Unsupported content type",
					})
				}
			}
		}

		path := c.Path()

		if strings.Contains(path, "/evaluate") && c.Method() == "POST" {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			responseText, ok := req["responseText"].(string)
			if !ok || strings.TrimSpace(responseText) == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "responseText is required and must be a string",
				})
			}

			if len(responseText) > cfg.MaxResponseLength {
				return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
					"error": "Response text exceeds maximum length",
				})
			}

			if containsSQLInjection(responseText) || containsXSS(responseText) {
				cfg.Logger.Warn("Suspicious evidence payload rejected",
					zap.String("ip", c.IP()),
					zap.String("path", path),
				)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid response content",
				})
			}

			req["responseText"] = sanitizeString(responseText)
			c.Locals("sanitized_body", req)
		}

		if strings.Contains(path, "/catalog/import") && c.Method() == "POST" {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			urlStr, ok := req["url"].(string)
			if ok && urlStr != "" && !isValidURL(urlStr) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid URL format",
				})
			}
		}

		return c.Next()
	}
}

func containsSQLInjection(input string) bool {
	return sqlInjectionPattern.MatchString(input)
}

func containsXSS(input string) bool {
	return xssPattern.MatchString(input)
}

func sanitizeString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")
	return input
}

func isValidURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	return u.Host != ""
}
