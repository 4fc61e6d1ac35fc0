// Package adapters defines the ad-server adapter contract and the
// per-tenant adapter registry.
package adapters

import (
	"context"
	"time"

	"github.com/openadsales/gateway/internal/models"
)

// Update actions every adapter must recognize. Adapters may declare
// extras; anything else returns a structured unsupported_action error.
const (
	ActionUpdatePackageBudget = "update_package_budget"
	ActionActivateOrder       = "activate_order"
	ActionSubmitForApproval   = "submit_for_approval"
	ActionApproveOrder        = "approve_order"
	ActionArchiveOrder        = "archive_order"

	// Declared but not yet implemented.
	ActionPausePackage   = "pause_package"
	ActionResumePackage  = "resume_package"
	ActionPauseMediaBuy  = "pause_media_buy"
	ActionResumeMediaBuy = "resume_media_buy"
)

// Structured update error codes.
const (
	CodeUnsupportedAction            = "unsupported_action"
	CodeNotImplemented               = "not_implemented"
	CodePackageNotFound              = "package_not_found"
	CodeBudgetBelowDelivery          = "budget_below_delivery"
	CodePermissionDenied             = "permission_denied"
	CodeCannotAutoActivateGuaranteed = "cannot_auto_activate_guaranteed"
)

// UpdateError is a structured, machine-readable update failure. Unsupported
// requests always produce one of these, never a silent success.
type UpdateError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UpdateResult reports the outcome of an update_media_buy action.
type UpdateResult struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Errors  []UpdateError `json:"errors,omitempty"`
}

// Fail builds a failed result with one structured error.
func Fail(code, message string) *UpdateResult {
	return &UpdateResult{Errors: []UpdateError{{Code: code, Message: message}}}
}

// CreateResult is the adapter-side outcome of booking a media buy.
type CreateResult struct {
	MediaBuyID string `json:"media_buy_id"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
}

// AssetResult reports one creative upload. Assets in a batch succeed or
// fail independently.
type AssetResult struct {
	CreativeID         string `json:"creative_id"`
	Status             string `json:"status"`
	AdServerCreativeID string `json:"ad_server_creative_id,omitempty"`
	Message            string `json:"message,omitempty"`
}

// StatusResult is the adapter's view of a media buy.
type StatusResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Advertiser is an upstream advertiser entry, used for operator dropdowns.
type Advertiser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// UpdateRequest carries the parameters of an update_media_buy action.
type UpdateRequest struct {
	MediaBuyID string
	Action     string
	PackageID  string
	Budget     *float64
	Today      time.Time
}

// Adapter is the contract every ad-server integration implements. All
// methods take the acting principal and honor the dry-run flag: a dry run
// performs full validation and returns deterministic dry_run_<op>_ IDs
// without side effects.
type Adapter interface {
	Name() string

	CreateMediaBuy(ctx context.Context, principal *models.Principal, mb *models.MediaBuy, packages []models.Package, targeting *models.Targeting, dryRun bool) (*CreateResult, error)
	AddCreativeAssets(ctx context.Context, principal *models.Principal, mediaBuyID string, assets []models.Creative, today time.Time, dryRun bool) ([]AssetResult, error)
	CheckMediaBuyStatus(ctx context.Context, principal *models.Principal, mediaBuyID string, today time.Time) (*StatusResult, error)
	GetMediaBuyDelivery(ctx context.Context, principal *models.Principal, mediaBuyID string, today time.Time) (*models.DeliveryMetrics, error)
	UpdateMediaBuy(ctx context.Context, principal *models.Principal, req UpdateRequest, dryRun bool) (*UpdateResult, error)
	ArchiveOrder(ctx context.Context, principal *models.Principal, mediaBuyID string, dryRun bool) (bool, error)
	GetAdvertisers(ctx context.Context) ([]Advertiser, error)
}

// SyncSummaryResult is the terminal report of one sync run.
type SyncSummaryResult struct {
	SyncID  string             `json:"sync_id"`
	Status  string             `json:"status"`
	Summary models.SyncSummary `json:"summary"`
}

// InventorySyncer is the optional adapter extension for inventory
// discovery and background synchronization.
type InventorySyncer interface {
	DiscoverAdUnits(ctx context.Context, parentID string, maxDepth int) ([]AdUnit, error)
	DiscoverPlacements(ctx context.Context) ([]Placement, error)
	DiscoverCustomTargeting(ctx context.Context) ([]CustomTargetingKey, error)
	DiscoverAudienceSegments(ctx context.Context) ([]models.Signal, error)
	BuildAdUnitTree(ctx context.Context) (*AdUnitNode, error)
	SuggestAdUnitsForProduct(ctx context.Context, sizes []models.Size, keywords []string) ([]AdUnit, error)
	ValidateInventoryAccess(ctx context.Context, ids []string) (map[string]bool, error)

	SyncInventory(ctx context.Context, force bool) (*SyncSummaryResult, error)
	SyncOrders(ctx context.Context, force bool) (*SyncSummaryResult, error)
	SyncFull(ctx context.Context, force bool) (*SyncSummaryResult, error)
	NeedsSync(ctx context.Context, syncType string, maxAge time.Duration) (bool, error)
}

// AdUnit is a node of the upstream inventory hierarchy.
type AdUnit struct {
	ID       string        `json:"id"`
	ParentID string        `json:"parent_id,omitempty"`
	Name     string        `json:"name"`
	Path     string        `json:"path"`
	Sizes    []models.Size `json:"sizes,omitempty"`
	Status   string        `json:"status,omitempty"`
}

// AdUnitNode is an ad unit with its children resolved.
type AdUnitNode struct {
	AdUnit
	Children []*AdUnitNode `json:"children,omitempty"`
}

// Placement groups ad units for targeting.
type Placement struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	AdUnitIDs []string `json:"ad_unit_ids,omitempty"`
	Status    string   `json:"status,omitempty"`
}

// CustomTargetingKey is an upstream key with its known values.
type CustomTargetingKey struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Type   string   `json:"type,omitempty"`
	Values []string `json:"values,omitempty"`
}
