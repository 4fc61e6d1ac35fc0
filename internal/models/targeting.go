package models

import "encoding/json"

// Media types a package can request.
const (
	MediaTypeVideo   = "video"
	MediaTypeDisplay = "display"
	MediaTypeNative  = "native"
	MediaTypeAudio   = "audio"
)

// Targeting is the normalized AdCP targeting overlay. Adapters translate it
// into their own domain model and must fail loudly on any dimension they
// cannot represent; the buyer's contract is never silently narrowed.
type Targeting struct {
	GeoCountryAnyOf  []string `json:"geo_country_any_of,omitempty"`
	GeoCountryNoneOf []string `json:"geo_country_none_of,omitempty"`
	GeoRegionAnyOf   []string `json:"geo_region_any_of,omitempty"`
	GeoRegionNoneOf  []string `json:"geo_region_none_of,omitempty"`
	GeoMetroAnyOf    []string `json:"geo_metro_any_of,omitempty"`
	GeoMetroNoneOf   []string `json:"geo_metro_none_of,omitempty"`

	// City and postal targeting are declared in the schema but not every
	// adapter can fulfil them; unsupported adapters must reject them.
	GeoCityAnyOf []string `json:"geo_city_any_of,omitempty"`
	GeoZipAnyOf  []string `json:"geo_zip_any_of,omitempty"`

	DeviceTypeAnyOf      []string `json:"device_type_any_of,omitempty"`
	OSAnyOf              []string `json:"os_any_of,omitempty"`
	BrowserAnyOf         []string `json:"browser_any_of,omitempty"`
	ContentCategoryAnyOf []string `json:"content_cat_any_of,omitempty"`
	KeywordsAnyOf        []string `json:"keywords_any_of,omitempty"`
	AudiencesAnyOf       []string `json:"audiences_any_of,omitempty"`
	SignalsAnyOf         []string `json:"signals,omitempty"`

	MediaTypeAnyOf []string `json:"media_type_any_of,omitempty"`

	// KeyValuePairs carries activation-time signals (AEE) and publisher
	// first-party keys. Adapters map these to custom targeting.
	KeyValuePairs map[string]string `json:"key_value_pairs,omitempty"`

	// Custom holds per-adapter escape hatches keyed by adapter name,
	// e.g. Custom["gam"].
	Custom map[string]json.RawMessage `json:"custom,omitempty"`
}

// IsZero reports whether no targeting dimension is populated.
func (t *Targeting) IsZero() bool {
	if t == nil {
		return true
	}
	return len(t.GeoCountryAnyOf) == 0 && len(t.GeoCountryNoneOf) == 0 &&
		len(t.GeoRegionAnyOf) == 0 && len(t.GeoRegionNoneOf) == 0 &&
		len(t.GeoMetroAnyOf) == 0 && len(t.GeoMetroNoneOf) == 0 &&
		len(t.GeoCityAnyOf) == 0 && len(t.GeoZipAnyOf) == 0 &&
		len(t.DeviceTypeAnyOf) == 0 && len(t.OSAnyOf) == 0 &&
		len(t.BrowserAnyOf) == 0 && len(t.ContentCategoryAnyOf) == 0 &&
		len(t.KeywordsAnyOf) == 0 && len(t.AudiencesAnyOf) == 0 &&
		len(t.SignalsAnyOf) == 0 && len(t.MediaTypeAnyOf) == 0 &&
		len(t.KeyValuePairs) == 0 && len(t.Custom) == 0
}

// Signal is an addressable audience, contextual or geographic segment
// returned by get_signals.
type Signal struct {
	SignalID    string `json:"signal_id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Signal types.
const (
	SignalTypeAudience   = "audience"
	SignalTypeContextual = "contextual"
	SignalTypeGeographic = "geographic"
)
