// Package mock is a deterministic in-process ad server used for tenants
// without an upstream integration and in tests.
package mock

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openadsales/gateway/internal/adapters"
	"github.com/openadsales/gateway/internal/creatives"
	"github.com/openadsales/gateway/internal/models"
)

// Adapter fulfils the adapter contract without upstream I/O. IDs are
// derived from the input so repeated calls are reproducible.
type Adapter struct {
	tenantID string
	store    models.Store
	logger   *zap.Logger
	dryRun   bool
}

var _ adapters.Adapter = (*Adapter)(nil)

// Factory is the registry factory for the mock ad server.
func Factory() adapters.Factory {
	return func(tenant *models.Tenant, deps adapters.Deps) (adapters.Adapter, error) {
		return &Adapter{
			tenantID: tenant.TenantID,
			store:    deps.Store,
			logger:   deps.Logger.Named("mock").With(zap.String("tenant_id", tenant.TenantID)),
			dryRun:   deps.DryRun,
		}, nil
	}
}

func (a *Adapter) Name() string { return "mock" }

func (a *Adapter) CreateMediaBuy(_ context.Context, _ *models.Principal, mb *models.MediaBuy, packages []models.Package, _ *models.Targeting, dryRun bool) (*adapters.CreateResult, error) {
	if dryRun || a.dryRun {
		return &adapters.CreateResult{
			MediaBuyID: "dry_run_create_media_buy_" + mb.MediaBuyID,
			Status:     "validated",
			Message:    fmt.Sprintf("dry run: %d packages validated", len(packages)),
		}, nil
	}
	return &adapters.CreateResult{
		MediaBuyID: "mock_order_" + mb.MediaBuyID,
		Status:     "ready",
		Message:    fmt.Sprintf("mock order created with %d packages", len(packages)),
	}, nil
}

func (a *Adapter) AddCreativeAssets(_ context.Context, _ *models.Principal, _ string, assets []models.Creative, _ time.Time, dryRun bool) ([]adapters.AssetResult, error) {
	out := make([]adapters.AssetResult, 0, len(assets))
	for i := range assets {
		asset := &assets[i]
		kind := creatives.Classify(asset)
		if err := creatives.Validate(asset, kind); err != nil {
			out = append(out, adapters.AssetResult{
				CreativeID: asset.CreativeID,
				Status:     models.CreativeStatusFailed,
				Message:    err.Error(),
			})
			continue
		}
		res := adapters.AssetResult{
			CreativeID: asset.CreativeID,
			Status:     models.CreativeStatusApproved,
		}
		if dryRun || a.dryRun {
			res.AdServerCreativeID = "dry_run_add_creative_" + asset.CreativeID
		} else {
			res.AdServerCreativeID = "mock_creative_" + asset.CreativeID
		}
		out = append(out, res)
	}
	return out, nil
}

func (a *Adapter) CheckMediaBuyStatus(ctx context.Context, _ *models.Principal, mediaBuyID string, today time.Time) (*adapters.StatusResult, error) {
	mb, err := a.store.GetMediaBuy(ctx, a.tenantID, mediaBuyID)
	if err != nil {
		return nil, err
	}
	return &adapters.StatusResult{Status: mb.FlightStatus(today)}, nil
}

func (a *Adapter) GetMediaBuyDelivery(ctx context.Context, _ *models.Principal, mediaBuyID string, _ time.Time) (*models.DeliveryMetrics, error) {
	packages, err := a.store.ListPackages(ctx, a.tenantID, mediaBuyID)
	if err != nil {
		return nil, err
	}
	var total models.DeliveryMetrics
	for _, pkg := range packages {
		total.Spend += pkg.Config.DeliveryMetrics.Spend
		total.Impressions += pkg.Config.DeliveryMetrics.Impressions
		total.Clicks += pkg.Config.DeliveryMetrics.Clicks
	}
	return &total, nil
}

func (a *Adapter) UpdateMediaBuy(ctx context.Context, _ *models.Principal, req adapters.UpdateRequest, dryRun bool) (*adapters.UpdateResult, error) {
	switch req.Action {
	case adapters.ActionUpdatePackageBudget:
		if req.Budget == nil {
			return adapters.Fail(adapters.CodeUnsupportedAction, "update_package_budget requires a budget value"), nil
		}
		pkg, err := a.store.GetPackage(ctx, a.tenantID, req.MediaBuyID, req.PackageID)
		if err != nil {
			return adapters.Fail(adapters.CodePackageNotFound,
				fmt.Sprintf("package %s not found in media buy %s", req.PackageID, req.MediaBuyID)), nil
		}
		if *req.Budget < pkg.Config.DeliveryMetrics.Spend {
			return adapters.Fail(adapters.CodeBudgetBelowDelivery,
				fmt.Sprintf("new budget %.2f is below delivered spend %.2f", *req.Budget, pkg.Config.DeliveryMetrics.Spend)), nil
		}
		if dryRun || a.dryRun {
			return &adapters.UpdateResult{Success: true, Message: "dry_run_update_package_budget_" + req.PackageID}, nil
		}
		cfg := pkg.Config
		cfg.Budget = *req.Budget
		if err := a.store.UpdatePackageConfig(ctx, a.tenantID, req.MediaBuyID, req.PackageID, cfg); err != nil {
			return nil, fmt.Errorf("commit package budget: %w", err)
		}
		return &adapters.UpdateResult{Success: true}, nil
	case adapters.ActionActivateOrder, adapters.ActionSubmitForApproval,
		adapters.ActionApproveOrder, adapters.ActionArchiveOrder:
		return &adapters.UpdateResult{Success: true, Message: "mock " + req.Action}, nil
	case adapters.ActionPausePackage, adapters.ActionResumePackage,
		adapters.ActionPauseMediaBuy, adapters.ActionResumeMediaBuy:
		return adapters.Fail(adapters.CodeNotImplemented,
			fmt.Sprintf("action %q is not implemented yet", req.Action)), nil
	default:
		return adapters.Fail(adapters.CodeUnsupportedAction,
			fmt.Sprintf("action %q is not supported by the mock adapter", req.Action)), nil
	}
}

func (a *Adapter) ArchiveOrder(ctx context.Context, _ *models.Principal, mediaBuyID string, dryRun bool) (bool, error) {
	if dryRun || a.dryRun {
		return true, nil
	}
	if err := a.store.UpdateMediaBuyStatus(ctx, a.tenantID, mediaBuyID, models.MediaBuyStatusArchived); err != nil {
		return false, err
	}
	return true, nil
}

func (a *Adapter) GetAdvertisers(_ context.Context) ([]adapters.Advertiser, error) {
	return []adapters.Advertiser{
		{ID: "mock_adv_1", Name: "Mock Advertiser", Type: "ADVERTISER"},
	}, nil
}
