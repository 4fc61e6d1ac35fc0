package gam

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openadsales/gateway/internal/adapters"
	"github.com/openadsales/gateway/internal/models"
	"github.com/openadsales/gateway/internal/observability"
)

type gamEnv struct {
	adapter   *Adapter
	store     *models.MemoryStore
	client    Client
	principal *models.Principal
}

func newGAMEnv(t *testing.T) *gamEnv {
	t.Helper()
	store := models.NewMemoryStore()
	client := NewMemoryClient()
	env := &gamEnv{
		adapter: &Adapter{
			tenantID: "pub1",
			client:   client,
			store:    store,
			metrics:  &observability.MockMetricsRegistry{},
			logger:   zap.NewNop(),
		},
		store:  store,
		client: client,
		principal: &models.Principal{
			TenantID:         "pub1",
			PrincipalID:      "buyer_1",
			Name:             "Buyer One",
			PlatformMappings: map[string]string{"gam_advertiser_id": "adv_1002"},
		},
	}

	ctx := context.Background()
	products := []*models.Product{
		{
			TenantID: "pub1", ProductID: "prod_news", Name: "News Display",
			DeliveryType: models.DeliveryTypeNonGuaranteed, CPM: 5,
			ImplementationConfig: models.ImplementationConfig{
				CreativePlaceholders: []models.Size{{Width: 300, Height: 250}},
			},
		},
		{
			TenantID: "pub1", ProductID: "prod_video", Name: "Video Premium",
			DeliveryType: models.DeliveryTypeGuaranteed, CPM: 20,
			ImplementationConfig: models.ImplementationConfig{
				CreativePlaceholders: []models.Size{{Width: 640, Height: 480}},
				EnvironmentType:      EnvironmentVideoPlayer,
			},
		},
	}
	for _, p := range products {
		require.NoError(t, store.UpsertProduct(ctx, p))
	}
	return env
}

// newMediaBuy seeds a stored buy with one package for the product.
func (env *gamEnv) newMediaBuy(t *testing.T, productID string) (*models.MediaBuy, []models.Package) {
	t.Helper()
	ctx := context.Background()
	product, err := env.store.GetProduct(ctx, "pub1", productID)
	require.NoError(t, err)

	mb := &models.MediaBuy{
		MediaBuyID:  "mb_" + productID,
		TenantID:    "pub1",
		PrincipalID: "buyer_1",
		OrderName:   "Fall Campaign",
		Budget:      10000,
		StartDate:   time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC),
		Status:      models.MediaBuyStatusPendingActivation,
	}
	pkg := models.Package{
		PackageID:    fmt.Sprintf("pkg_%s_1", productID),
		MediaBuyID:   mb.MediaBuyID,
		TenantID:     "pub1",
		ProductID:    productID,
		Impressions:  2000000,
		CPM:          product.CPM,
		DeliveryType: product.DeliveryType,
		Config:       models.PackageConfig{Budget: 10000},
	}
	require.NoError(t, env.store.CreateMediaBuy(ctx, mb, []models.Package{pkg}))
	return mb, []models.Package{pkg}
}

// book runs the upstream booking and records the order ID on the buy.
func (env *gamEnv) book(t *testing.T, mb *models.MediaBuy, pkgs []models.Package) string {
	t.Helper()
	ctx := context.Background()
	created, err := env.adapter.CreateMediaBuy(ctx, env.principal, mb, pkgs, nil, false)
	require.NoError(t, err)
	mb.AdServerOrderID = created.MediaBuyID
	require.NoError(t, env.store.UpdateMediaBuy(ctx, mb))
	return created.MediaBuyID
}

func TestAdapterCreateMediaBuyBooksOrder(t *testing.T) {
	env := newGAMEnv(t)
	mb, pkgs := env.newMediaBuy(t, "prod_news")

	overlay := &models.Targeting{
		GeoCountryAnyOf: []string{"US"},
		MediaTypeAnyOf:  []string{"display"},
	}
	created, err := env.adapter.CreateMediaBuy(context.Background(), env.principal, mb, pkgs, overlay, false)
	require.NoError(t, err)
	assert.Equal(t, "order_1", created.MediaBuyID)
	assert.Equal(t, "DRAFT", created.Status)

	order, err := env.client.GetOrder(context.Background(), created.MediaBuyID)
	require.NoError(t, err)
	assert.Equal(t, "adv_1002", order.AdvertiserID)
	require.Len(t, order.LineItems, 1)
	li := order.LineItems[0]
	assert.Equal(t, "Fall Campaign - prod_news", li.Name)
	assert.Equal(t, "NETWORK", li.Type)
	assert.Equal(t, EnvironmentBrowser, li.EnvironmentType)
	assert.Equal(t, []int64{2840}, li.Targeting.Geo.TargetedLocationIDs)
}

func TestAdapterCreateMediaBuyGuaranteedLineItem(t *testing.T) {
	env := newGAMEnv(t)
	mb, pkgs := env.newMediaBuy(t, "prod_video")

	created, err := env.adapter.CreateMediaBuy(context.Background(), env.principal, mb, pkgs, nil, false)
	require.NoError(t, err)

	order, err := env.client.GetOrder(context.Background(), created.MediaBuyID)
	require.NoError(t, err)
	require.Len(t, order.LineItems, 1)
	assert.Equal(t, "STANDARD", order.LineItems[0].Type)
	assert.Equal(t, EnvironmentVideoPlayer, order.LineItems[0].EnvironmentType)
}

func TestAdapterCreateMediaBuyRejectsUnsupportedTargeting(t *testing.T) {
	env := newGAMEnv(t)
	mb, pkgs := env.newMediaBuy(t, "prod_news")

	_, err := env.adapter.CreateMediaBuy(context.Background(), env.principal, mb, pkgs, &models.Targeting{
		GeoCityAnyOf: []string{"New York"},
	}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "City targeting requested but not supported: New York")

	// Nothing was booked narrower than requested.
	orders, err := env.client.ListOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestAdapterCreateMediaBuyDryRun(t *testing.T) {
	env := newGAMEnv(t)
	mb, pkgs := env.newMediaBuy(t, "prod_news")

	created, err := env.adapter.CreateMediaBuy(context.Background(), env.principal, mb, pkgs, nil, true)
	require.NoError(t, err)
	assert.Equal(t, "dry_run_create_media_buy_"+mb.MediaBuyID, created.MediaBuyID)
	assert.Equal(t, "validated", created.Status)

	orders, err := env.client.ListOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestActivateOrderRefusesGuaranteed(t *testing.T) {
	env := newGAMEnv(t)
	mb, _ := env.newMediaBuy(t, "prod_video")

	got, err := env.adapter.UpdateMediaBuy(context.Background(), env.principal, adapters.UpdateRequest{
		MediaBuyID: mb.MediaBuyID,
		Action:     adapters.ActionActivateOrder,
	}, false)
	require.NoError(t, err)
	assert.False(t, got.Success)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, adapters.CodeCannotAutoActivateGuaranteed, got.Errors[0].Code)
	assert.Equal(t, "Cannot auto-activate order with guaranteed line items: [STANDARD]", got.Errors[0].Message)
}

func TestActivateOrderNonGuaranteed(t *testing.T) {
	env := newGAMEnv(t)
	mb, pkgs := env.newMediaBuy(t, "prod_news")
	orderID := env.book(t, mb, pkgs)

	got, err := env.adapter.UpdateMediaBuy(context.Background(), env.principal, adapters.UpdateRequest{
		MediaBuyID: mb.MediaBuyID,
		Action:     adapters.ActionActivateOrder,
	}, false)
	require.NoError(t, err)
	assert.True(t, got.Success)

	order, err := env.client.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", order.Status)
	for _, li := range order.LineItems {
		assert.Equal(t, "DELIVERING", li.Status)
	}
}

func TestCanAutoActivate(t *testing.T) {
	env := newGAMEnv(t)
	mb, _ := env.newMediaBuy(t, "prod_video")

	ok, guaranteed, err := env.adapter.CanAutoActivate(context.Background(), mb.MediaBuyID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"STANDARD"}, guaranteed)

	mb2, _ := env.newMediaBuy(t, "prod_news")
	ok, guaranteed, err = env.adapter.CanAutoActivate(context.Background(), mb2.MediaBuyID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, guaranteed)
}

func TestUpdatePackageBudget(t *testing.T) {
	env := newGAMEnv(t)
	mb, pkgs := env.newMediaBuy(t, "prod_news")
	ctx := context.Background()
	pkgID := pkgs[0].PackageID

	t.Run("requires a value", func(t *testing.T) {
		got, err := env.adapter.UpdateMediaBuy(ctx, env.principal, adapters.UpdateRequest{
			MediaBuyID: mb.MediaBuyID,
			Action:     adapters.ActionUpdatePackageBudget,
			PackageID:  pkgID,
		}, false)
		require.NoError(t, err)
		require.Len(t, got.Errors, 1)
		assert.Equal(t, adapters.CodeUnsupportedAction, got.Errors[0].Code)
	})

	t.Run("package not found", func(t *testing.T) {
		budget := 5000.0
		got, err := env.adapter.UpdateMediaBuy(ctx, env.principal, adapters.UpdateRequest{
			MediaBuyID: mb.MediaBuyID,
			Action:     adapters.ActionUpdatePackageBudget,
			PackageID:  "pkg_prod_news_99",
			Budget:     &budget,
		}, false)
		require.NoError(t, err)
		require.Len(t, got.Errors, 1)
		assert.Equal(t, adapters.CodePackageNotFound, got.Errors[0].Code)
	})

	t.Run("below delivered spend", func(t *testing.T) {
		cfg := pkgs[0].Config
		cfg.DeliveryMetrics.Spend = 15000
		require.NoError(t, env.store.UpdatePackageConfig(ctx, "pub1", mb.MediaBuyID, pkgID, cfg))

		budget := 8000.0
		got, err := env.adapter.UpdateMediaBuy(ctx, env.principal, adapters.UpdateRequest{
			MediaBuyID: mb.MediaBuyID,
			Action:     adapters.ActionUpdatePackageBudget,
			PackageID:  pkgID,
			Budget:     &budget,
		}, false)
		require.NoError(t, err)
		require.Len(t, got.Errors, 1)
		assert.Equal(t, adapters.CodeBudgetBelowDelivery, got.Errors[0].Code)
		assert.Equal(t, "new budget 8000.00 is below delivered spend 15000.00", got.Errors[0].Message)
	})

	t.Run("dry run leaves the budget alone", func(t *testing.T) {
		budget := 30000.0
		got, err := env.adapter.UpdateMediaBuy(ctx, env.principal, adapters.UpdateRequest{
			MediaBuyID: mb.MediaBuyID,
			Action:     adapters.ActionUpdatePackageBudget,
			PackageID:  pkgID,
			Budget:     &budget,
		}, true)
		require.NoError(t, err)
		assert.True(t, got.Success)
		assert.Equal(t, "dry_run_update_package_budget_"+pkgID, got.Message)

		pkg, err := env.store.GetPackage(ctx, "pub1", mb.MediaBuyID, pkgID)
		require.NoError(t, err)
		assert.Equal(t, 10000.0, pkg.Config.Budget)
	})

	t.Run("commits", func(t *testing.T) {
		budget := 30000.0
		got, err := env.adapter.UpdateMediaBuy(ctx, env.principal, adapters.UpdateRequest{
			MediaBuyID: mb.MediaBuyID,
			Action:     adapters.ActionUpdatePackageBudget,
			PackageID:  pkgID,
			Budget:     &budget,
		}, false)
		require.NoError(t, err)
		assert.True(t, got.Success)

		pkg, err := env.store.GetPackage(ctx, "pub1", mb.MediaBuyID, pkgID)
		require.NoError(t, err)
		assert.Equal(t, 30000.0, pkg.Config.Budget)
	})
}

func TestApproveOrderRequiresAdmin(t *testing.T) {
	env := newGAMEnv(t)
	mb, pkgs := env.newMediaBuy(t, "prod_news")
	orderID := env.book(t, mb, pkgs)

	got, err := env.adapter.UpdateMediaBuy(context.Background(), env.principal, adapters.UpdateRequest{
		MediaBuyID: mb.MediaBuyID,
		Action:     adapters.ActionApproveOrder,
	}, false)
	require.NoError(t, err)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, adapters.CodePermissionDenied, got.Errors[0].Code)
	assert.Contains(t, got.Errors[0].Message, "buyer_1 is not permitted to approve orders")

	admin := &models.Principal{TenantID: "pub1", PrincipalID: "ops_1", IsAdmin: true}
	got, err = env.adapter.UpdateMediaBuy(context.Background(), admin, adapters.UpdateRequest{
		MediaBuyID: mb.MediaBuyID,
		Action:     adapters.ActionApproveOrder,
	}, false)
	require.NoError(t, err)
	assert.True(t, got.Success)

	order, err := env.client.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", order.Status)
}

func TestUpdateMediaBuyActionCodes(t *testing.T) {
	env := newGAMEnv(t)
	mb, _ := env.newMediaBuy(t, "prod_news")
	ctx := context.Background()

	got, err := env.adapter.UpdateMediaBuy(ctx, env.principal, adapters.UpdateRequest{
		MediaBuyID: mb.MediaBuyID,
		Action:     adapters.ActionPausePackage,
	}, false)
	require.NoError(t, err)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, adapters.CodeNotImplemented, got.Errors[0].Code)

	got, err = env.adapter.UpdateMediaBuy(ctx, env.principal, adapters.UpdateRequest{
		MediaBuyID: mb.MediaBuyID,
		Action:     "explode_order",
	}, false)
	require.NoError(t, err)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, adapters.CodeUnsupportedAction, got.Errors[0].Code)
}

func TestDryRunIdentifiersAreDeterministic(t *testing.T) {
	env := newGAMEnv(t)
	mb, _ := env.newMediaBuy(t, "prod_news")
	ctx := context.Background()

	req := adapters.UpdateRequest{MediaBuyID: mb.MediaBuyID, Action: adapters.ActionActivateOrder}
	first, err := env.adapter.UpdateMediaBuy(ctx, env.principal, req, true)
	require.NoError(t, err)
	second, err := env.adapter.UpdateMediaBuy(ctx, env.principal, req, true)
	require.NoError(t, err)

	assert.Equal(t, "dry_run_activate_order_"+mb.MediaBuyID, first.Message)
	assert.Equal(t, first.Message, second.Message)
}

func TestCheckMediaBuyStatus(t *testing.T) {
	env := newGAMEnv(t)
	mb, pkgs := env.newMediaBuy(t, "prod_news")
	ctx := context.Background()

	got, err := env.adapter.CheckMediaBuyStatus(ctx, env.principal, mb.MediaBuyID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.MediaBuyStatusPendingActivation, got.Status)
	assert.Equal(t, "not yet booked upstream", got.Message)

	env.book(t, mb, pkgs)
	got, err = env.adapter.CheckMediaBuyStatus(ctx, env.principal, mb.MediaBuyID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "DRAFT", got.Status)
}

func TestArchiveOrder(t *testing.T) {
	env := newGAMEnv(t)
	mb, pkgs := env.newMediaBuy(t, "prod_news")
	orderID := env.book(t, mb, pkgs)

	ok, err := env.adapter.ArchiveOrder(context.Background(), env.principal, mb.MediaBuyID, false)
	require.NoError(t, err)
	assert.True(t, ok)

	order, err := env.client.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, "ARCHIVED", order.Status)
}
