package models

import "time"

// Sync job states.
const (
	SyncStatusRunning   = "running"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

// Sync job types.
const (
	SyncTypeInventory = "inventory"
	SyncTypeOrders    = "orders"
	SyncTypeFull      = "full"
)

// SyncSummary counts what a completed sync pulled from the ad server.
type SyncSummary struct {
	AdUnits               int `json:"ad_units"`
	CustomTargetingKeys   int `json:"custom_targeting_keys"`
	CustomTargetingValues int `json:"custom_targeting_values"`
	Orders                int `json:"orders"`
}

// SyncJob records one inventory/order synchronization run against the
// tenant's ad server. At most one job per (tenant, sync_type) may be
// running at any time.
type SyncJob struct {
	SyncID       string      `json:"sync_id"`
	TenantID     string      `json:"tenant_id"`
	SyncType     string      `json:"sync_type"`
	Status       string      `json:"status"`
	StartedAt    time.Time   `json:"started_at"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	Summary      SyncSummary `json:"summary"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

// Stale reports whether a completed sync is older than maxAge.
func (j SyncJob) Stale(now time.Time, maxAge time.Duration) bool {
	if j.Status != SyncStatusCompleted || j.CompletedAt == nil {
		return true
	}
	return now.Sub(*j.CompletedAt) > maxAge
}
