package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/complymatch/backend/internal/storage/models"
	"github.com/complymatch/backend/pkg/logger"
	"github.com/complymatch/backend/pkg/utils"
)

// Store is the persistence slice the importer writes through.
type Store interface {
	UpsertVendor(ctx context.Context, vendor *models.Vendor) error
	UpsertSolution(ctx context.Context, solution *models.VendorSolution) error
}

// Importer pulls a vendor directory page and loads vendors and their
// solutions into the catalog. Vendor IDs are derived from the vendor name so
// repeated imports update in place instead of duplicating rows.
type Importer struct {
	store      Store
	httpClient *http.Client
}

type ImportStats struct {
	Vendors   int
	Solutions int
	Skipped   int
}

func NewImporter(store Store) *Importer {
	return &Importer{
		store: store,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// ImportFromURL fetches the directory page and imports every vendor card it
// can parse. Malformed cards are skipped and counted, not fatal.
func (i *Importer) ImportFromURL(ctx context.Context, directoryURL string) (*ImportStats, error) {
	logger.Info("Importing vendor catalog", zap.String("url", directoryURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, directoryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "complymatch-catalog/1.0")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch vendor directory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vendor directory returned status %d", resp.StatusCode)
	}

	return i.Import(ctx, resp.Body)
}

// Import parses directory HTML from r. Expected markup is one
// div.vendor-card per vendor with name, category, rating and review badges
// plus nested div.solution entries.
func (i *Importer) Import(ctx context.Context, r io.Reader) (*ImportStats, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	stats := &ImportStats{}

	var importErr error
	doc.Find("div.vendor-card").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		if ctx.Err() != nil {
			importErr = ctx.Err()
			return false
		}

		vendor, solutions, ok := parseVendorCard(card)
		if !ok {
			stats.Skipped++
			return true
		}

		if err := i.store.UpsertVendor(ctx, vendor); err != nil {
			logger.Warn("Failed to upsert vendor, skipping",
				zap.String("vendor", vendor.Name),
				zap.Error(err),
			)
			stats.Skipped++
			return true
		}
		stats.Vendors++

		for _, solution := range solutions {
			if err := i.store.UpsertSolution(ctx, solution); err != nil {
				logger.Warn("Failed to upsert solution, skipping",
					zap.String("vendor", vendor.Name),
					zap.String("solution", solution.Name),
					zap.Error(err),
				)
				stats.Skipped++
				continue
			}
			stats.Solutions++
		}

		return true
	})

	if importErr != nil {
		return nil, importErr
	}

	logger.Info("Vendor catalog import completed",
		zap.Int("vendors", stats.Vendors),
		zap.Int("solutions", stats.Solutions),
		zap.Int("skipped", stats.Skipped),
	)

	return stats, nil
}

func parseVendorCard(card *goquery.Selection) (*models.Vendor, []*models.VendorSolution, bool) {
	name := strings.TrimSpace(card.Find(".vendor-name").First().Text())
	if name == "" {
		return nil, nil, false
	}

	vendor := &models.Vendor{
		ID:        vendorID(name),
		Name:      name,
		Featured:  card.HasClass("featured"),
		Verified:  card.Find(".verified-badge").Length() > 0,
		CreatedAt: time.Now().UTC(),
	}

	card.Find(".vendor-category").Each(func(_ int, s *goquery.Selection) {
		if category := strings.TrimSpace(s.Text()); category != "" {
			vendor.Categories = append(vendor.Categories, strings.ToLower(category))
		}
	})

	if rating := strings.TrimSpace(card.Find(".rating").First().Text()); rating != "" {
		if v, err := strconv.ParseFloat(rating, 64); err == nil && v >= 0 && v <= 5 {
			vendor.Rating = v
		}
	}
	if reviews := strings.TrimSpace(card.Find(".review-count").First().Text()); reviews != "" {
		if v, err := strconv.Atoi(strings.TrimSuffix(reviews, " reviews")); err == nil && v >= 0 {
			vendor.ReviewCount = v
		}
	}

	var solutions []*models.VendorSolution
	card.Find("div.solution").Each(func(_ int, s *goquery.Selection) {
		solutionName := strings.TrimSpace(s.Find(".solution-name").First().Text())
		if solutionName == "" {
			return
		}

		solution := &models.VendorSolution{
			ID:           utils.StableID(vendor.ID, solutionName),
			VendorID:     vendor.ID,
			Name:         solutionName,
			Category:     strings.ToLower(strings.TrimSpace(s.Find(".solution-category").First().Text())),
			PricingModel: strings.TrimSpace(s.Find(".pricing").First().Text()),
			CreatedAt:    time.Now().UTC(),
		}
		s.Find(".feature").Each(func(_ int, f *goquery.Selection) {
			if feature := strings.TrimSpace(f.Text()); feature != "" {
				solution.Features = append(solution.Features, feature)
			}
		})

		solutions = append(solutions, solution)
	})

	return vendor, solutions, true
}

// vendorID is deterministic for a given vendor name; uuid.NewSHA1 keeps the
// ID shaped like the rest of our identifiers.
func vendorID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("complymatch:vendor:"+strings.ToLower(name))).String()
}
