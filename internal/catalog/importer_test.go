package catalog

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complymatch/backend/internal/storage/models"
)

type recordingStore struct {
	vendors   []*models.Vendor
	solutions []*models.VendorSolution
}

func (r *recordingStore) UpsertVendor(ctx context.Context, vendor *models.Vendor) error {
	r.vendors = append(r.vendors, vendor)
	return nil
}

func (r *recordingStore) UpsertSolution(ctx context.Context, solution *models.VendorSolution) error {
	r.solutions = append(r.solutions, solution)
	return nil
}

const directoryHTML = `
<html><body>
<div class="vendor-card featured">
  <span class="vendor-name">ComplyFirst</span>
  <span class="verified-badge">Verified</span>
  <span class="vendor-category">AML Screening</span>
  <span class="vendor-category">Transaction Monitoring</span>
  <span class="rating">4.6</span>
  <span class="review-count">212 reviews</span>
  <div class="solution">
    <span class="solution-name">Sanctions Screening Platform</span>
    <span class="solution-category">AML Screening</span>
    <span class="pricing">subscription</span>
    <span class="feature">real-time screening</span>
    <span class="feature">case management</span>
  </div>
</div>
<div class="vendor-card">
  <span class="vendor-name">GapGuard</span>
  <span class="vendor-category">Access Control</span>
  <span class="rating">3.9</span>
  <div class="solution">
    <span class="solution-name">RBAC Manager</span>
    <span class="solution-category">Access Control</span>
  </div>
  <div class="solution">
    <span class="solution-name"></span>
  </div>
</div>
<div class="vendor-card">
  <span class="vendor-name"></span>
</div>
</body></html>`

func TestImportParsesVendorCards(t *testing.T) {
	store := &recordingStore{}
	importer := NewImporter(store)

	stats, err := importer.Import(context.Background(), strings.NewReader(directoryHTML))
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Vendors)
	assert.Equal(t, 2, stats.Solutions)
	assert.Equal(t, 1, stats.Skipped)

	require.Len(t, store.vendors, 2)
	first := store.vendors[0]
	assert.Equal(t, "ComplyFirst", first.Name)
	assert.True(t, first.Featured)
	assert.True(t, first.Verified)
	assert.Equal(t, []string{"aml screening", "transaction monitoring"}, first.Categories)
	assert.InDelta(t, 4.6, first.Rating, 1e-9)
	assert.Equal(t, 212, first.ReviewCount)

	second := store.vendors[1]
	assert.False(t, second.Featured)
	assert.False(t, second.Verified)
	assert.Zero(t, second.ReviewCount)
}

func TestImportSolutionFields(t *testing.T) {
	store := &recordingStore{}
	importer := NewImporter(store)

	_, err := importer.Import(context.Background(), strings.NewReader(directoryHTML))
	require.NoError(t, err)

	require.Len(t, store.solutions, 2)
	platform := store.solutions[0]
	assert.Equal(t, "Sanctions Screening Platform", platform.Name)
	assert.Equal(t, "aml screening", platform.Category)
	assert.Equal(t, "subscription", platform.PricingModel)
	assert.Equal(t, []string{"real-time screening", "case management"}, platform.Features)
	assert.Equal(t, store.vendors[0].ID, platform.VendorID)
}

func TestImportIsIdempotentOnIDs(t *testing.T) {
	store := &recordingStore{}
	importer := NewImporter(store)

	_, err := importer.Import(context.Background(), strings.NewReader(directoryHTML))
	require.NoError(t, err)
	_, err = importer.Import(context.Background(), strings.NewReader(directoryHTML))
	require.NoError(t, err)

	require.Len(t, store.vendors, 4)
	assert.Equal(t, store.vendors[0].ID, store.vendors[2].ID)
	assert.Equal(t, store.solutions[0].ID, store.solutions[2].ID)
}

func TestImportEmptyDocument(t *testing.T) {
	store := &recordingStore{}
	importer := NewImporter(store)

	stats, err := importer.Import(context.Background(), strings.NewReader("<html><body></body></html>"))
	require.NoError(t, err)
	assert.Zero(t, stats.Vendors)
	assert.Zero(t, stats.Solutions)
}
