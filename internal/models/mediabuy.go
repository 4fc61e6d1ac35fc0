package models

import (
	"encoding/json"
	"time"
)

// Media buy lifecycle states.
const (
	MediaBuyStatusPendingApproval     = "pending_approval"
	MediaBuyStatusPendingActivation   = "pending_activation"
	MediaBuyStatusPendingConfirmation = "pending_confirmation"
	MediaBuyStatusActive              = "active"
	MediaBuyStatusPaused              = "paused"
	MediaBuyStatusCompleted           = "completed"
	MediaBuyStatusFailed              = "failed"
	MediaBuyStatusArchived            = "archived"
)

// MediaBuy is a campaign booked by a principal. It maps to an order in
// Google Ad Manager and similar constructs in other ad servers.
type MediaBuy struct {
	MediaBuyID     string    `json:"media_buy_id"`
	TenantID       string    `json:"tenant_id"`
	PrincipalID    string    `json:"principal_id"`
	OrderName      string    `json:"order_name"`
	AdvertiserName string    `json:"advertiser_name"`
	Budget         float64   `json:"budget"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	Status         string    `json:"status"`
	// RawRequest is the normalized request frozen at creation time. Once
	// the buy is active it is immutable; budget changes go through the
	// update_package_budget action instead.
	RawRequest json.RawMessage `json:"raw_request,omitempty"`
	// AdServerOrderID is the adapter-side identifier once booked.
	AdServerOrderID string    `json:"ad_server_order_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DeliveryMetrics accumulates delivered spend and volume for a package.
type DeliveryMetrics struct {
	Spend       float64 `json:"spend"`
	Impressions int64   `json:"impressions_delivered"`
	Clicks      int64   `json:"clicks_delivered"`
}

// PackageConfig is the mutable, JSON-stored portion of a package. Budget
// updates rewrite this blob under the invariant budget >= delivered spend.
type PackageConfig struct {
	Budget          float64         `json:"budget"`
	DeliveryMetrics DeliveryMetrics `json:"delivery_metrics"`
}

// Package is a line item inside a media buy, bound to exactly one product.
// Its delivery type is copied from the product at creation and never
// changes afterwards.
type Package struct {
	PackageID    string        `json:"package_id"`
	MediaBuyID   string        `json:"media_buy_id"`
	TenantID     string        `json:"tenant_id"`
	ProductID    string        `json:"product_id"`
	Impressions  int64         `json:"impressions"`
	CPM          float64       `json:"cpm"`
	DeliveryType string        `json:"delivery_type"`
	FormatIDs    []string      `json:"format_ids,omitempty"`
	Config       PackageConfig `json:"package_config"`
}

// FlightStatus derives the coarse delivery phase of a media buy from its
// flight dates relative to today.
func (m MediaBuy) FlightStatus(today time.Time) string {
	switch {
	case today.Before(m.StartDate):
		return "scheduled"
	case today.After(m.EndDate):
		return "completed"
	default:
		return "active"
	}
}
