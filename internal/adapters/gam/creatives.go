package gam

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openadsales/gateway/internal/adapters"
	"github.com/openadsales/gateway/internal/creatives"
	"github.com/openadsales/gateway/internal/models"
)

// AddCreativeAssets uploads a batch of approved creatives and associates
// each with the line items of its assigned packages. Assets succeed or
// fail independently; a failed asset never reaches upstream.
func (a *Adapter) AddCreativeAssets(ctx context.Context, principal *models.Principal, mediaBuyID string, assets []models.Creative, _ time.Time, dryRun bool) ([]adapters.AssetResult, error) {
	start := time.Now()
	var err error
	defer func() { a.observe("add_creative_assets", start, err) }()

	byPackage, byProduct, lineItemIDs, err := a.placeholderMaps(ctx, mediaBuyID, dryRun || a.dryRun)
	if err != nil {
		return nil, err
	}

	results := make([]adapters.AssetResult, 0, len(assets))
	for i := range assets {
		asset := &assets[i]
		results = append(results, a.uploadOne(ctx, principal, asset, byPackage, byProduct, lineItemIDs, dryRun || a.dryRun))
	}
	return results, nil
}

func (a *Adapter) uploadOne(ctx context.Context, principal *models.Principal, asset *models.Creative, byPackage, byProduct map[string][]models.Size, lineItemIDs map[string]string, dryRun bool) adapters.AssetResult {
	kind := creatives.Classify(asset)
	if err := creatives.Validate(asset, kind); err != nil {
		return adapters.AssetResult{
			CreativeID: asset.CreativeID,
			Status:     models.CreativeStatusFailed,
			Message:    err.Error(),
		}
	}

	// VAST runs at the line-item level; there is no GAM creative object
	// to upload.
	if kind == creatives.KindVAST {
		return adapters.AssetResult{
			CreativeID: asset.CreativeID,
			Status:     models.CreativeStatusApproved,
			Message:    "vast creative attached at line-item level",
		}
	}

	for _, packageID := range asset.PackageAssignments {
		placeholders, ok := creatives.ResolvePlaceholders(byPackage, byProduct, packageID)
		if !ok {
			return adapters.AssetResult{
				CreativeID: asset.CreativeID,
				Status:     models.CreativeStatusFailed,
				Message:    fmt.Sprintf("package %s has no creative placeholders", packageID),
			}
		}
		if !creatives.MatchPlaceholder(placeholders, asset) {
			return adapters.AssetResult{
				CreativeID: asset.CreativeID,
				Status:     models.CreativeStatusFailed,
				Message: fmt.Sprintf("no placeholder in package %s accepts size %dx%d",
					packageID, asset.Width, asset.Height),
			}
		}
	}

	if dryRun {
		return adapters.AssetResult{
			CreativeID:         asset.CreativeID,
			Status:             models.CreativeStatusApproved,
			AdServerCreativeID: dryRunID("add_creative", asset.CreativeID),
		}
	}

	upstream := UpstreamCreative{
		Name:         asset.Name,
		Kind:         string(kind),
		Width:        asset.Width,
		Height:       asset.Height,
		Snippet:      asset.Snippet,
		AssetURL:     asset.MediaURL,
		ClickURL:     asset.ClickURL,
		DurationMS:   creatives.DurationMillis(asset),
		AdvertiserID: principal.GAMAdvertiserID(),
	}
	created, err := a.client.CreateCreatives(ctx, []UpstreamCreative{upstream})
	if err != nil {
		return adapters.AssetResult{
			CreativeID: asset.CreativeID,
			Status:     models.CreativeStatusFailed,
			Message:    fmt.Sprintf("upstream creative creation failed: %v", err),
		}
	}

	for _, packageID := range asset.PackageAssignments {
		lineItemID, ok := a.lineItemFor(packageID, lineItemIDs)
		if !ok {
			a.logger.Warn("no line item found for package, skipping association",
				zap.String("package_id", packageID))
			continue
		}
		if err := a.client.AssociateCreative(ctx, lineItemID, created[0].ID); err != nil {
			return adapters.AssetResult{
				CreativeID:         asset.CreativeID,
				Status:             models.CreativeStatusFailed,
				AdServerCreativeID: created[0].ID,
				Message:            fmt.Sprintf("line item association failed: %v", err),
			}
		}
	}
	return adapters.AssetResult{
		CreativeID:         asset.CreativeID,
		Status:             models.CreativeStatusApproved,
		AdServerCreativeID: created[0].ID,
	}
}

// placeholderMaps loads the placeholder sets per package and per product
// for a media buy, plus the product-suffix index of upstream line items.
func (a *Adapter) placeholderMaps(ctx context.Context, mediaBuyID string, dryRun bool) (byPackage, byProduct map[string][]models.Size, lineItemIDs map[string]string, err error) {
	packages, err := a.store.ListPackages(ctx, a.tenantID, mediaBuyID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("list packages: %w", err)
	}
	byPackage = make(map[string][]models.Size, len(packages))
	byProduct = make(map[string][]models.Size, len(packages))
	for i := range packages {
		pkg := &packages[i]
		product, err := a.store.GetProduct(ctx, a.tenantID, pkg.ProductID)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("resolve product %s: %w", pkg.ProductID, err)
		}
		byPackage[pkg.PackageID] = product.ImplementationConfig.CreativePlaceholders
		byProduct[pkg.ProductID] = product.ImplementationConfig.CreativePlaceholders
	}

	lineItemIDs = make(map[string]string)
	if dryRun {
		return byPackage, byProduct, lineItemIDs, nil
	}
	mb, err := a.store.GetMediaBuy(ctx, a.tenantID, mediaBuyID)
	if err != nil {
		return nil, nil, nil, err
	}
	if mb.AdServerOrderID == "" {
		return byPackage, byProduct, lineItemIDs, nil
	}
	order, err := a.client.GetOrder(ctx, mb.AdServerOrderID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get order upstream: %w", err)
	}
	// Index line items by the product-ID suffix of their name.
	for _, li := range order.LineItems {
		if idx := strings.LastIndex(li.Name, " - "); idx >= 0 {
			lineItemIDs[li.Name[idx+3:]] = li.ID
		}
	}
	return byPackage, byProduct, lineItemIDs, nil
}

// lineItemFor matches a package to its line item via the product ID
// embedded in the package ID.
func (a *Adapter) lineItemFor(packageID string, lineItemIDs map[string]string) (string, bool) {
	if productID, ok := creatives.ProductIDFromPackageID(packageID); ok {
		if id, found := lineItemIDs[productID]; found {
			return id, true
		}
	}
	return "", false
}
