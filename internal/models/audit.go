package models

import "time"

// AuditRecord is one append-only entry in the operation audit trail.
type AuditRecord struct {
	Timestamp   time.Time      `json:"timestamp"`
	TenantID    string         `json:"tenant_id"`
	PrincipalID string         `json:"principal_id"`
	Operation   string         `json:"operation"`
	Success     bool           `json:"success"`
	Details     map[string]any `json:"details,omitempty"`
	Error       string         `json:"error,omitempty"`
}
