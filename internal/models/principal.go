package models

import "time"

// Principal is an authenticated agent acting on behalf of one advertiser
// within a tenant. The access token is globally unique across tenants.
type Principal struct {
	TenantID    string `json:"tenant_id"`
	PrincipalID string `json:"principal_id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
	// PlatformMappings holds per-adapter external IDs, e.g.
	// "gam_advertiser_id" or the "gam_admin" flag.
	PlatformMappings map[string]string `json:"platform_mappings,omitempty"`
	IsAdmin          bool              `json:"is_admin,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// GAMAdvertiserID returns the Google Ad Manager advertiser (company) ID
// mapped to this principal, if any.
func (p Principal) GAMAdvertiserID() string {
	return p.PlatformMappings["gam_advertiser_id"]
}

// CanApproveOrders reports whether the principal may perform admin-only
// adapter actions such as approve_order.
func (p Principal) CanApproveOrders() bool {
	return p.IsAdmin || p.PlatformMappings["gam_admin"] == "true"
}

// SyntheticAdminID returns the principal ID used when a caller
// authenticates with the tenant admin token instead of a principal token.
func SyntheticAdminID(tenantID string) string {
	return tenantID + "_admin"
}
