package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openadsales/gateway/internal/models"
)

func seedProducts(t *testing.T, store *models.MemoryStore) {
	t.Helper()
	products := []models.Product{
		{TenantID: "default", ProductID: "prod_display_us", Name: "US Display", Formats: []string{"display_300x250"}, Countries: []string{"US"}, DeliveryType: models.DeliveryTypeGuaranteed},
		{TenantID: "default", ProductID: "prod_video_global", Name: "Global Video", Formats: []string{"video_instream"}, DeliveryType: models.DeliveryTypeNonGuaranteed},
		{TenantID: "default", ProductID: "prod_display_uk", Name: "UK Display", Formats: []string{"display_728x90"}, Countries: []string{"GB"}, DeliveryType: models.DeliveryTypeGuaranteed},
	}
	for i := range products {
		require.NoError(t, store.UpsertProduct(context.Background(), &products[i]))
	}
}

func TestDatabaseProviderNoFilters(t *testing.T) {
	store := models.NewMemoryStore()
	seedProducts(t, store)

	got, err := NewDatabaseProvider(store).GetProducts(context.Background(), "default", "p1", "", Filters{})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestDatabaseProviderFormatFilter(t *testing.T) {
	store := models.NewMemoryStore()
	seedProducts(t, store)

	got, err := NewDatabaseProvider(store).GetProducts(context.Background(), "default", "p1", "", Filters{
		Formats: []string{"video_instream"},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "prod_video_global", got[0].ProductID)
}

func TestDatabaseProviderCountryFilter(t *testing.T) {
	store := models.NewMemoryStore()
	seedProducts(t, store)

	got, err := NewDatabaseProvider(store).GetProducts(context.Background(), "default", "p1", "", Filters{
		Countries: []string{"US"},
	})
	require.NoError(t, err)

	// The global video product has no country list and is available
	// everywhere, so it passes the US filter too.
	ids := make([]string, 0, len(got))
	for _, p := range got {
		ids = append(ids, p.ProductID)
	}
	assert.ElementsMatch(t, []string{"prod_display_us", "prod_video_global"}, ids)
}

func TestDatabaseProviderNoMatches(t *testing.T) {
	store := models.NewMemoryStore()
	seedProducts(t, store)

	got, err := NewDatabaseProvider(store).GetProducts(context.Background(), "default", "p1", "", Filters{
		Formats: []string{"audio_spot"},
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetSignalsTypeFilterIsExact(t *testing.T) {
	got := GetSignals("", "geographic")
	require.NotEmpty(t, got)
	for _, s := range got {
		assert.Equal(t, models.SignalTypeGeographic, s.Type)
	}
}

func TestGetSignalsQuerySubstring(t *testing.T) {
	got := GetSignals("sports", "")
	require.Len(t, got, 1)
	assert.Equal(t, "sports_enthusiasts", got[0].SignalID)
}

func TestGetSignalsNoFiltersReturnsAll(t *testing.T) {
	assert.Len(t, GetSignals("", ""), 9)
}
