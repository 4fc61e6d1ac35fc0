package models

import "time"

// Task states.
const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
)

// Well-known task types.
const (
	TaskTypeApproveMediaBuy  = "approve_media_buy"
	TaskTypeApproveCreative  = "approve_creative"
	TaskTypeActivateGAMOrder = "activate_gam_order"
	TaskTypeManual           = "manual"
)

// OverdueAfter is how long a pending task may sit before it is flagged for
// operator attention.
const OverdueAfter = 72 * time.Hour

// Task is a work item requiring a human decision, e.g. approving a media
// buy or confirming a GAM order activation.
type Task struct {
	TaskID      string         `json:"task_id"`
	TenantID    string         `json:"tenant_id"`
	PrincipalID string         `json:"principal_id,omitempty"`
	MediaBuyID  string         `json:"media_buy_id,omitempty"`
	TaskType    string         `json:"task_type"`
	Status      string         `json:"status"`
	Details     map[string]any `json:"details,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Overdue reports whether the task has been pending longer than
// OverdueAfter as of now.
func (t Task) Overdue(now time.Time) bool {
	return t.Status == TaskStatusPending && now.Sub(t.CreatedAt) > OverdueAfter
}
