package models

import "time"

// Tenant is the publisher boundary. Every other entity is scoped by
// TenantID and no query may cross it.
type Tenant struct {
	TenantID    string         `json:"tenant_id"`
	Name        string         `json:"name"`
	Subdomain   string         `json:"subdomain"`
	VirtualHost string         `json:"virtual_host,omitempty"`
	IsActive    bool           `json:"is_active"`
	Settings    TenantSettings `json:"settings"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TenantSettings holds per-publisher configuration. The whole struct is
// stored as a JSON column so operators can extend it without migrations.
type TenantSettings struct {
	// AdServer selects the adapter implementation ("gam", "kevel",
	// "triton", "mock"). Empty defaults to "mock".
	AdServer string `json:"ad_server"`
	// AdapterConfig carries adapter-specific settings such as the GAM
	// network code and advertiser company defaults.
	AdapterConfig map[string]string `json:"adapter_config,omitempty"`

	MaxDailyBudget      float64  `json:"max_daily_budget"`
	AutoApproveFormats  []string `json:"auto_approve_formats,omitempty"`
	HumanReviewRequired bool     `json:"human_review_required"`
	AuthorizedEmails    []string `json:"authorized_emails,omitempty"`
	AuthorizedDomains   []string `json:"authorized_domains,omitempty"`

	// Webhook endpoints for side-channel notifications. Best-effort only.
	WebhookURL     string `json:"webhook_url,omitempty"`
	SlackWebhook   string `json:"slack_webhook,omitempty"`
	HITLWebhookURL string `json:"hitl_webhook_url,omitempty"`

	Policy PolicySettings `json:"policy_settings"`

	// AdminToken authenticates the synthetic "<tenant_id>_admin"
	// principal. It is valid only within this tenant.
	AdminToken string `json:"admin_token,omitempty"`
}

// PolicySettings configures the promoted-offering policy engine.
type PolicySettings struct {
	ProhibitedAdvertisers []string `json:"prohibited_advertisers,omitempty"`
	ProhibitedCategories  []string `json:"prohibited_categories,omitempty"`
	ProhibitedTactics     []string `json:"prohibited_tactics,omitempty"`
}

// AutoApproves reports whether creatives of the given format skip human
// review for this tenant.
func (s TenantSettings) AutoApproves(format string) bool {
	for _, f := range s.AutoApproveFormats {
		if f == format {
			return true
		}
	}
	return false
}
