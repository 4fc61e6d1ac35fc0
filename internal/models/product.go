package models

// Delivery types for products and packages.
const (
	DeliveryTypeGuaranteed    = "guaranteed"
	DeliveryTypeNonGuaranteed = "non_guaranteed"
)

// Automation modes for non-guaranteed products. They decide what happens to
// a media buy right after creation when no human review is required.
const (
	AutomationAutomatic            = "automatic"
	AutomationConfirmationRequired = "confirmation_required"
	AutomationManual               = "manual"
)

// Size is a creative or placeholder dimension in pixels. The 1x1 size acts
// as a wildcard placeholder in Google Ad Manager.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// IsWildcard reports whether the size accepts any creative dimension.
func (s Size) IsWildcard() bool { return s.Width == 1 && s.Height == 1 }

// PriceGuidance describes the expected price distribution for
// non-fixed-price products.
type PriceGuidance struct {
	Floor float64 `json:"floor"`
	P50   float64 `json:"p50"`
	P75   float64 `json:"p75"`
	P90   float64 `json:"p90"`
}

// ImplementationConfig carries adapter-specific product settings. For GAM
// it names the ad units to target, the line item type to book, and how
// non-guaranteed buys are activated.
type ImplementationConfig struct {
	AdUnitPaths             []string          `json:"ad_unit_paths,omitempty"`
	PlacementIDs            []string          `json:"placement_ids,omitempty"`
	LineItemType            string            `json:"line_item_type,omitempty"`
	NonGuaranteedAutomation string            `json:"non_guaranteed_automation,omitempty"`
	CreativePlaceholders    []Size            `json:"creative_placeholders,omitempty"`
	CustomTargeting         map[string]string `json:"custom_targeting,omitempty"`
	EnvironmentType         string            `json:"environment_type,omitempty"`
}

// Product is a sellable inventory package defined by a publisher.
type Product struct {
	TenantID     string   `json:"tenant_id"`
	ProductID    string   `json:"product_id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Formats      []string `json:"formats"`
	DeliveryType string   `json:"delivery_type"`
	IsFixedPrice bool     `json:"is_fixed_price"`
	CPM          float64  `json:"cpm,omitempty"`
	// Countries restricts where the product may serve. Empty means
	// worldwide.
	Countries            []string             `json:"countries,omitempty"`
	PriceGuidance        *PriceGuidance       `json:"price_guidance,omitempty"`
	TargetingTemplate    *Targeting           `json:"targeting_template,omitempty"`
	ImplementationConfig ImplementationConfig `json:"implementation_config"`
}

// Automation returns the effective non-guaranteed automation mode,
// defaulting to manual when unset.
func (p Product) Automation() string {
	if p.ImplementationConfig.NonGuaranteedAutomation == "" {
		return AutomationManual
	}
	return p.ImplementationConfig.NonGuaranteedAutomation
}
