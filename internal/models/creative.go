package models

import "time"

// Creative review states.
const (
	CreativeStatusPendingReview = "pending_review"
	CreativeStatusApproved      = "approved"
	CreativeStatusRejected      = "rejected"
	CreativeStatusFailed        = "failed"
)

// Snippet types for tag- and VAST-based creatives.
const (
	SnippetTypeHTML       = "html"
	SnippetTypeJavaScript = "javascript"
	SnippetTypeVASTXML    = "vast_xml"
	SnippetTypeVASTURL    = "vast_url"
)

// TrackingEvents lists third-party pixels fired on delivery events.
type TrackingEvents struct {
	Impression []string `json:"impression,omitempty"`
	Click      []string `json:"click,omitempty"`
}

// Creative is an ad asset submitted by a principal for one media buy.
// Exactly one of the payload groups is expected: a snippet (third-party
// tag or VAST), template variables (native), or a media URL/blob (HTML5 or
// hosted image/video).
type Creative struct {
	CreativeID  string `json:"creative_id"`
	TenantID    string `json:"tenant_id"`
	PrincipalID string `json:"principal_id"`
	MediaBuyID  string `json:"media_buy_id"`
	Name        string `json:"name"`
	Format      string `json:"format"`

	Snippet           string            `json:"snippet,omitempty"`
	SnippetType       string            `json:"snippet_type,omitempty"`
	TemplateVariables map[string]string `json:"template_variables,omitempty"`
	MediaURL          string            `json:"media_url,omitempty"`
	MediaData         []byte            `json:"media_data,omitempty"`

	ClickURL string `json:"click_url,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	// DurationSeconds is required for video assets. Upstream APIs take
	// milliseconds; the adapter converts.
	DurationSeconds *float64       `json:"duration,omitempty"`
	TrackingEvents  TrackingEvents `json:"tracking_events,omitempty"`

	// PackageAssignments lists the package IDs this creative should run
	// on. Placeholder matching is validated per assignment.
	PackageAssignments []string `json:"package_assignments,omitempty"`

	AdServerCreativeID string    `json:"ad_server_creative_id,omitempty"`
	Status             string    `json:"status"`
	StatusDetail       string    `json:"status_detail,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// Size returns the declared creative dimensions.
func (c Creative) Size() Size { return Size{Width: c.Width, Height: c.Height} }
