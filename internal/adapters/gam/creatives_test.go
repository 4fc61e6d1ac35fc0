package gam

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openadsales/gateway/internal/models"
)

func TestAddCreativeAssets(t *testing.T) {
	env := newGAMEnv(t)
	mb, pkgs := env.newMediaBuy(t, "prod_news")
	orderID := env.book(t, mb, pkgs)

	assets := []models.Creative{
		{
			CreativeID:         "cr_banner",
			Name:               "banner 300x250",
			MediaURL:           "https://cdn.example.com/banner.png",
			ClickURL:           "https://example.com/landing",
			Width:              300,
			Height:             250,
			PackageAssignments: []string{"pkg_prod_news_1"},
		},
		{
			CreativeID:         "cr_vast",
			Name:               "vast tag",
			Snippet:            "https://vast.example.com/tag.xml",
			SnippetType:        models.SnippetTypeVASTURL,
			PackageAssignments: []string{"pkg_prod_news_1"},
		},
		{
			CreativeID:         "cr_oversize",
			Name:               "billboard",
			MediaURL:           "https://cdn.example.com/billboard.png",
			ClickURL:           "https://example.com/landing",
			Width:              970,
			Height:             250,
			PackageAssignments: []string{"pkg_prod_news_1"},
		},
		{
			CreativeID:         "cr_orphan",
			Name:               "orphan",
			MediaURL:           "https://cdn.example.com/orphan.png",
			ClickURL:           "https://example.com/landing",
			Width:              300,
			Height:             250,
			PackageAssignments: []string{"pkg_prod_missing_1"},
		},
	}

	results, err := env.adapter.AddCreativeAssets(context.Background(), env.principal, mb.MediaBuyID, assets, time.Now(), false)
	require.NoError(t, err)
	require.Len(t, results, 4)

	banner := results[0]
	assert.Equal(t, models.CreativeStatusApproved, banner.Status)
	assert.Contains(t, banner.AdServerCreativeID, "creative_")

	vast := results[1]
	assert.Equal(t, models.CreativeStatusApproved, vast.Status)
	assert.Empty(t, vast.AdServerCreativeID)
	assert.Equal(t, "vast creative attached at line-item level", vast.Message)

	oversize := results[2]
	assert.Equal(t, models.CreativeStatusFailed, oversize.Status)
	assert.Equal(t, "no placeholder in package pkg_prod_news_1 accepts size 970x250", oversize.Message)

	orphan := results[3]
	assert.Equal(t, models.CreativeStatusFailed, orphan.Status)
	assert.Equal(t, "package pkg_prod_missing_1 has no creative placeholders", orphan.Message)

	// The approved banner was associated with the order's line item.
	order, err := env.client.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	require.Len(t, order.LineItems, 1)
	mc := env.client.(*memoryClient)
	assert.Equal(t, []string{banner.AdServerCreativeID}, mc.licas[order.LineItems[0].ID])
}

func TestAddCreativeAssetsValidationFailure(t *testing.T) {
	env := newGAMEnv(t)
	mb, pkgs := env.newMediaBuy(t, "prod_news")
	env.book(t, mb, pkgs)

	results, err := env.adapter.AddCreativeAssets(context.Background(), env.principal, mb.MediaBuyID, []models.Creative{
		{
			CreativeID:         "cr_noclick",
			Name:               "image without click url",
			MediaURL:           "https://cdn.example.com/x.png",
			Width:              300,
			Height:             250,
			PackageAssignments: []string{"pkg_prod_news_1"},
		},
	}, time.Now(), false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.CreativeStatusFailed, results[0].Status)
	assert.Contains(t, results[0].Message, "click_url")
}

func TestAddCreativeAssetsDryRun(t *testing.T) {
	env := newGAMEnv(t)
	mb, _ := env.newMediaBuy(t, "prod_news")

	results, err := env.adapter.AddCreativeAssets(context.Background(), env.principal, mb.MediaBuyID, []models.Creative{
		{
			CreativeID:         "cr_banner",
			Name:               "banner",
			MediaURL:           "https://cdn.example.com/banner.png",
			ClickURL:           "https://example.com/landing",
			Width:              300,
			Height:             250,
			PackageAssignments: []string{"pkg_prod_news_1"},
		},
	}, time.Now(), true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.CreativeStatusApproved, results[0].Status)
	assert.Equal(t, "dry_run_add_creative_cr_banner", results[0].AdServerCreativeID)

	// Nothing reached upstream.
	mc := env.client.(*memoryClient)
	assert.Empty(t, mc.creative)
}
