// Package gam implements the Google Ad Manager adapter: order booking,
// creative upload and association, targeting translation, and inventory
// discovery/sync.
package gam

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openadsales/gateway/internal/adapters"
	"github.com/openadsales/gateway/internal/models"
	"github.com/openadsales/gateway/internal/observability"
)

// Line item types GAM books for guaranteed delivery. Disjoint from the
// non-guaranteed set; the split decides whether auto-activation is legal.
var guaranteedLineItemTypes = map[string]struct{}{
	"STANDARD":    {},
	"SPONSORSHIP": {},
}

var nonGuaranteedLineItemTypes = map[string]struct{}{
	"NETWORK":        {},
	"HOUSE":          {},
	"PRICE_PRIORITY": {},
	"BULK":           {},
}

// Adapter is the GAM integration for one tenant.
type Adapter struct {
	tenantID string
	client   Client
	store    models.Store
	metrics  observability.MetricsRegistry
	logger   *zap.Logger
	dryRun   bool
}

var _ adapters.Adapter = (*Adapter)(nil)
var _ adapters.InventorySyncer = (*Adapter)(nil)

// Factory builds the registry factory for GAM. clientFactory may be nil,
// in which case the in-process sandbox upstream is used.
func Factory(clientFactory func(Credentials) (Client, error)) adapters.Factory {
	return func(tenant *models.Tenant, deps adapters.Deps) (adapters.Adapter, error) {
		cfg := tenant.Settings.AdapterConfig
		creds := Credentials{
			NetworkCode:  cfg["gam_network_code"],
			RefreshToken: cfg["gam_refresh_token"],
			ClientID:     deps.GAMClientID,
			ClientSecret: deps.GAMClientSecret,
			KeyFilePath:  cfg["gam_key_file"],
		}
		method, err := creds.Resolve()
		if err != nil {
			return nil, err
		}
		deps.Logger.Info("gam adapter initialized",
			zap.String("tenant_id", tenant.TenantID),
			zap.String("auth_method", string(method)))

		var client Client
		if clientFactory != nil {
			client, err = clientFactory(creds)
			if err != nil {
				return nil, fmt.Errorf("gam client: %w", err)
			}
		} else {
			client = NewMemoryClient()
		}
		return &Adapter{
			tenantID: tenant.TenantID,
			client:   NewBreakerClient(client, tenant.TenantID, deps.Logger),
			store:    deps.Store,
			metrics:  deps.Metrics,
			logger:   deps.Logger.Named("gam").With(zap.String("tenant_id", tenant.TenantID)),
			dryRun:   deps.DryRun,
		}, nil
	}
}

func (a *Adapter) Name() string { return "gam" }

func (a *Adapter) observe(method string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	a.metrics.IncrementAdapterCall("gam", method, outcome)
	a.metrics.RecordAdapterLatency("gam", method, time.Since(start))
}

// dryRunID builds the deterministic identifier a validation-only call
// returns instead of touching upstream.
func dryRunID(op, suffix string) string {
	if suffix == "" {
		suffix = uuid.NewString()[:8]
	}
	return fmt.Sprintf("dry_run_%s_%s", op, suffix)
}

// knownLineItemType reports whether the type belongs to either booking
// class.
func knownLineItemType(t string) bool {
	if _, ok := guaranteedLineItemTypes[t]; ok {
		return true
	}
	_, ok := nonGuaranteedLineItemTypes[t]
	return ok
}

// lineItemTypeFor picks the upstream line item type for a package from
// its product's implementation config, defaulting by delivery type.
func lineItemTypeFor(product *models.Product, pkg *models.Package) string {
	if t := product.ImplementationConfig.LineItemType; t != "" && knownLineItemType(t) {
		return t
	}
	if pkg.DeliveryType == models.DeliveryTypeGuaranteed {
		return "STANDARD"
	}
	return "NETWORK"
}

// lineItemName appends the product suffix creative association matches on.
func lineItemName(orderName, productID string) string {
	return fmt.Sprintf("%s - %s", orderName, productID)
}

// CreateMediaBuy books an order with one line item per package. Targeting
// translation failures abort the whole call: the buy is never booked
// narrower than requested.
func (a *Adapter) CreateMediaBuy(ctx context.Context, principal *models.Principal, mb *models.MediaBuy, packages []models.Package, targeting *models.Targeting, dryRun bool) (*adapters.CreateResult, error) {
	start := time.Now()
	var err error
	defer func() { a.observe("create_media_buy", start, err) }()

	liTargeting := &LineItemTargeting{}
	if targeting != nil {
		liTargeting, err = BuildTargeting(targeting, a.logger)
		if err != nil {
			return nil, err
		}
	}

	order := &Order{
		Name:         mb.OrderName,
		AdvertiserID: principal.GAMAdvertiserID(),
	}
	for i := range packages {
		pkg := &packages[i]
		var product *models.Product
		product, err = a.store.GetProduct(ctx, a.tenantID, pkg.ProductID)
		if err != nil {
			err = fmt.Errorf("resolve product %s: %w", pkg.ProductID, err)
			return nil, err
		}
		li := LineItem{
			Name:            lineItemName(mb.OrderName, pkg.ProductID),
			Type:            lineItemTypeFor(product, pkg),
			CostPerUnit:     pkg.CPM,
			UnitsBought:     pkg.Impressions,
			Targeting:       *liTargeting,
			Placeholders:    product.ImplementationConfig.CreativePlaceholders,
			EnvironmentType: product.ImplementationConfig.EnvironmentType,
			StartDate:       mb.StartDate,
			EndDate:         mb.EndDate,
		}
		if li.EnvironmentType == "" {
			li.EnvironmentType = liTargeting.EnvironmentType
		}
		order.LineItems = append(order.LineItems, li)
	}

	if dryRun || a.dryRun {
		return &adapters.CreateResult{
			MediaBuyID: dryRunID("create_media_buy", mb.MediaBuyID),
			Status:     "validated",
			Message:    fmt.Sprintf("dry run: order %q with %d line items validated", mb.OrderName, len(order.LineItems)),
		}, nil
	}

	created, err := a.client.CreateOrder(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("create order upstream: %w", err)
	}
	return &adapters.CreateResult{
		MediaBuyID: created.ID,
		Status:     created.Status,
		Message:    fmt.Sprintf("order %s created with %d line items", created.ID, len(created.LineItems)),
	}, nil
}

// CheckMediaBuyStatus reads the upstream order state.
func (a *Adapter) CheckMediaBuyStatus(ctx context.Context, _ *models.Principal, mediaBuyID string, _ time.Time) (*adapters.StatusResult, error) {
	start := time.Now()
	var err error
	defer func() { a.observe("check_media_buy_status", start, err) }()

	mb, err := a.store.GetMediaBuy(ctx, a.tenantID, mediaBuyID)
	if err != nil {
		return nil, err
	}
	if mb.AdServerOrderID == "" {
		return &adapters.StatusResult{Status: mb.Status, Message: "not yet booked upstream"}, nil
	}
	order, err := a.client.GetOrder(ctx, mb.AdServerOrderID)
	if err != nil {
		return nil, fmt.Errorf("get order upstream: %w", err)
	}
	return &adapters.StatusResult{Status: order.Status}, nil
}

// GetMediaBuyDelivery pulls the upstream delivery report for an order.
func (a *Adapter) GetMediaBuyDelivery(ctx context.Context, _ *models.Principal, mediaBuyID string, today time.Time) (*models.DeliveryMetrics, error) {
	start := time.Now()
	var err error
	defer func() { a.observe("get_media_buy_delivery", start, err) }()

	mb, err := a.store.GetMediaBuy(ctx, a.tenantID, mediaBuyID)
	if err != nil {
		return nil, err
	}
	if mb.AdServerOrderID == "" {
		return &models.DeliveryMetrics{}, nil
	}
	metrics, err := a.client.DeliveryReport(ctx, mb.AdServerOrderID, today)
	if err != nil {
		return nil, fmt.Errorf("delivery report upstream: %w", err)
	}
	return metrics, nil
}

// UpdateMediaBuy dispatches one update action. Unsupported and
// unimplemented actions return structured errors, never silent success.
func (a *Adapter) UpdateMediaBuy(ctx context.Context, principal *models.Principal, req adapters.UpdateRequest, dryRun bool) (*adapters.UpdateResult, error) {
	start := time.Now()
	var err error
	defer func() { a.observe("update_media_buy", start, err) }()

	switch req.Action {
	case adapters.ActionUpdatePackageBudget:
		return a.updatePackageBudget(ctx, req, dryRun)
	case adapters.ActionActivateOrder:
		return a.activateOrder(ctx, req.MediaBuyID, dryRun)
	case adapters.ActionSubmitForApproval:
		return a.orderTransition(ctx, req.MediaBuyID, dryRun, "submit_for_approval", a.client.SubmitOrderForApproval)
	case adapters.ActionApproveOrder:
		if !principal.CanApproveOrders() {
			return adapters.Fail(adapters.CodePermissionDenied,
				fmt.Sprintf("principal %s is not permitted to approve orders", principal.PrincipalID)), nil
		}
		return a.orderTransition(ctx, req.MediaBuyID, dryRun, "approve_order", a.client.ApproveOrder)
	case adapters.ActionArchiveOrder:
		return a.orderTransition(ctx, req.MediaBuyID, dryRun, "archive_order", a.client.ArchiveOrder)
	case adapters.ActionPausePackage, adapters.ActionResumePackage,
		adapters.ActionPauseMediaBuy, adapters.ActionResumeMediaBuy:
		return adapters.Fail(adapters.CodeNotImplemented,
			fmt.Sprintf("action %q is not implemented yet", req.Action)), nil
	default:
		return adapters.Fail(adapters.CodeUnsupportedAction,
			fmt.Sprintf("action %q is not supported by the gam adapter", req.Action)), nil
	}
}

func (a *Adapter) updatePackageBudget(ctx context.Context, req adapters.UpdateRequest, dryRun bool) (*adapters.UpdateResult, error) {
	if req.Budget == nil {
		return adapters.Fail(adapters.CodeUnsupportedAction, "update_package_budget requires a budget value"), nil
	}
	pkg, err := a.store.GetPackage(ctx, a.tenantID, req.MediaBuyID, req.PackageID)
	if err != nil {
		return adapters.Fail(adapters.CodePackageNotFound,
			fmt.Sprintf("package %s not found in media buy %s", req.PackageID, req.MediaBuyID)), nil
	}

	spend := pkg.Config.DeliveryMetrics.Spend
	if *req.Budget < spend {
		return adapters.Fail(adapters.CodeBudgetBelowDelivery,
			fmt.Sprintf("new budget %.2f is below delivered spend %.2f", *req.Budget, spend)), nil
	}
	if dryRun || a.dryRun {
		return &adapters.UpdateResult{
			Success: true,
			Message: dryRunID("update_package_budget", req.PackageID),
		}, nil
	}

	cfg := pkg.Config
	cfg.Budget = *req.Budget
	if err := a.store.UpdatePackageConfig(ctx, a.tenantID, req.MediaBuyID, req.PackageID, cfg); err != nil {
		return nil, fmt.Errorf("commit package budget: %w", err)
	}
	return &adapters.UpdateResult{
		Success: true,
		Message: fmt.Sprintf("package %s budget set to %.2f", req.PackageID, *req.Budget),
	}, nil
}

// activateOrder resumes the order and activates its line items, refusing
// when any line item is of a guaranteed type.
func (a *Adapter) activateOrder(ctx context.Context, mediaBuyID string, dryRun bool) (*adapters.UpdateResult, error) {
	guaranteed, err := a.guaranteedTypesOf(ctx, mediaBuyID)
	if err != nil {
		return nil, err
	}
	if len(guaranteed) > 0 {
		return adapters.Fail(adapters.CodeCannotAutoActivateGuaranteed,
			fmt.Sprintf("Cannot auto-activate order with guaranteed line items: %v", guaranteed)), nil
	}
	if dryRun || a.dryRun {
		return &adapters.UpdateResult{Success: true, Message: dryRunID("activate_order", mediaBuyID)}, nil
	}

	mb, err := a.store.GetMediaBuy(ctx, a.tenantID, mediaBuyID)
	if err != nil {
		return nil, err
	}
	if mb.AdServerOrderID != "" {
		if err := a.client.ResumeOrder(ctx, mb.AdServerOrderID); err != nil {
			return nil, fmt.Errorf("resume order upstream: %w", err)
		}
		if err := a.client.ActivateLineItems(ctx, mb.AdServerOrderID); err != nil {
			return nil, fmt.Errorf("activate line items upstream: %w", err)
		}
	}
	return &adapters.UpdateResult{Success: true, Message: fmt.Sprintf("order for media buy %s activated", mediaBuyID)}, nil
}

// CanAutoActivate reports whether immediate activation at creation time
// is permitted; it is the same guard activate_order uses.
func (a *Adapter) CanAutoActivate(ctx context.Context, mediaBuyID string) (bool, []string, error) {
	guaranteed, err := a.guaranteedTypesOf(ctx, mediaBuyID)
	if err != nil {
		return false, nil, err
	}
	return len(guaranteed) == 0, guaranteed, nil
}

func (a *Adapter) guaranteedTypesOf(ctx context.Context, mediaBuyID string) ([]string, error) {
	packages, err := a.store.ListPackages(ctx, a.tenantID, mediaBuyID)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	seen := make(map[string]struct{})
	var out []string
	for i := range packages {
		pkg := &packages[i]
		product, err := a.store.GetProduct(ctx, a.tenantID, pkg.ProductID)
		if err != nil {
			return nil, fmt.Errorf("resolve product %s: %w", pkg.ProductID, err)
		}
		liType := lineItemTypeFor(product, pkg)
		if _, ok := guaranteedLineItemTypes[liType]; ok {
			if _, dup := seen[liType]; !dup {
				seen[liType] = struct{}{}
				out = append(out, liType)
			}
		}
	}
	return out, nil
}

func (a *Adapter) orderTransition(ctx context.Context, mediaBuyID string, dryRun bool, op string, fn func(context.Context, string) error) (*adapters.UpdateResult, error) {
	if dryRun || a.dryRun {
		return &adapters.UpdateResult{Success: true, Message: dryRunID(op, mediaBuyID)}, nil
	}
	mb, err := a.store.GetMediaBuy(ctx, a.tenantID, mediaBuyID)
	if err != nil {
		return nil, err
	}
	if mb.AdServerOrderID == "" {
		return &adapters.UpdateResult{Success: true, Message: "no upstream order; nothing to do"}, nil
	}
	if err := fn(ctx, mb.AdServerOrderID); err != nil {
		return nil, fmt.Errorf("%s upstream: %w", op, err)
	}
	return &adapters.UpdateResult{Success: true, Message: fmt.Sprintf("%s applied to order %s", op, mb.AdServerOrderID)}, nil
}

// ArchiveOrder archives the upstream order for a media buy.
func (a *Adapter) ArchiveOrder(ctx context.Context, _ *models.Principal, mediaBuyID string, dryRun bool) (bool, error) {
	start := time.Now()
	var err error
	defer func() { a.observe("archive_order", start, err) }()

	if dryRun || a.dryRun {
		return true, nil
	}
	mb, err := a.store.GetMediaBuy(ctx, a.tenantID, mediaBuyID)
	if err != nil {
		return false, err
	}
	if mb.AdServerOrderID == "" {
		return false, nil
	}
	if err = a.client.ArchiveOrder(ctx, mb.AdServerOrderID); err != nil {
		return false, fmt.Errorf("archive order upstream: %w", err)
	}
	return true, nil
}

// GetAdvertisers lists upstream advertisers for operator dropdowns.
func (a *Adapter) GetAdvertisers(ctx context.Context) ([]adapters.Advertiser, error) {
	start := time.Now()
	var err error
	defer func() { a.observe("get_advertisers", start, err) }()

	out, err := a.client.ListAdvertisers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list advertisers upstream: %w", err)
	}
	return out, nil
}
