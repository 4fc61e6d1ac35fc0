package gam

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/openadsales/gateway/internal/models"
)

// GAM environment types.
const (
	EnvironmentBrowser     = "BROWSER"
	EnvironmentVideoPlayer = "VIDEO_PLAYER"
)

// countryLocationIDs maps ISO country codes to GAM geo location IDs. The
// full mapping ships with the deployment; this covers the markets the
// gateway currently sells.
var countryLocationIDs = map[string]int64{
	"US": 2840, "CA": 2124, "GB": 2826, "AU": 2036, "DE": 2276,
	"FR": 2250, "ES": 2724, "IT": 2380, "NL": 2528, "BR": 2076,
	"MX": 2484, "JP": 2392, "IN": 2356, "SE": 2752, "NO": 2578,
}

// regionLocationIDs maps "CC-RR" region codes to GAM location IDs.
var regionLocationIDs = map[string]int64{
	"US-CA": 21137, "US-NY": 21167, "US-TX": 21176, "US-FL": 21142,
	"US-IL": 21147, "US-WA": 21180, "CA-ON": 20121, "GB-ENG": 20339,
}

// metroLocationIDs maps Nielsen DMA codes to GAM location IDs.
var metroLocationIDs = map[string]int64{
	"501": 200501, "803": 200803, "602": 200602, "807": 200807,
	"623": 200623, "506": 200506, "511": 200511, "618": 200618,
}

// GeoTargeting is the translated GAM geo block.
type GeoTargeting struct {
	TargetedLocationIDs []int64 `json:"targeted_location_ids,omitempty"`
	ExcludedLocationIDs []int64 `json:"excluded_location_ids,omitempty"`
}

// InventoryTargeting names ad units and placements directly. The IDs are
// GAM identifiers; they pass through to the line item untranslated.
type InventoryTargeting struct {
	TargetedAdUnitIDs    []string `json:"targeted_ad_unit_ids,omitempty"`
	ExcludedAdUnitIDs    []string `json:"excluded_ad_unit_ids,omitempty"`
	TargetedPlacementIDs []string `json:"targeted_placement_ids,omitempty"`
}

// LineItemTargeting is the GAM-side targeting for one line item.
type LineItemTargeting struct {
	Geo             GeoTargeting        `json:"geo"`
	Inventory       *InventoryTargeting `json:"inventory,omitempty"`
	CustomTargeting map[string]string   `json:"custom_targeting,omitempty"`
	EnvironmentType string              `json:"environment_type,omitempty"`
}

// customOverlay is the shape of Targeting.Custom["gam"]: GAM-specific
// identifiers the generic overlay has no vocabulary for.
type customOverlay struct {
	InventoryTargeting *InventoryTargeting `json:"inventory_targeting,omitempty"`
	CustomCriteria     map[string]string   `json:"custom_criteria,omitempty"`
}

// ValidateTargeting lists every overlay dimension GAM cannot fulfil.
// An empty result means BuildTargeting will succeed.
func ValidateTargeting(t *models.Targeting) []string {
	if t.IsZero() {
		return nil
	}
	var unsupported []string

	if len(t.GeoCityAnyOf) > 0 {
		unsupported = append(unsupported,
			fmt.Sprintf("City targeting requested but not supported: %s", strings.Join(t.GeoCityAnyOf, ", ")))
	}
	if len(t.GeoZipAnyOf) > 0 {
		unsupported = append(unsupported,
			fmt.Sprintf("Postal code targeting requested but not supported: %s", strings.Join(t.GeoZipAnyOf, ", ")))
	}
	if len(t.DeviceTypeAnyOf) > 0 {
		unsupported = append(unsupported,
			fmt.Sprintf("Device type targeting requested but not supported: %s", strings.Join(t.DeviceTypeAnyOf, ", ")))
	}
	if len(t.OSAnyOf) > 0 {
		unsupported = append(unsupported,
			fmt.Sprintf("OS targeting requested but not supported: %s", strings.Join(t.OSAnyOf, ", ")))
	}
	if len(t.BrowserAnyOf) > 0 {
		unsupported = append(unsupported,
			fmt.Sprintf("Browser targeting requested but not supported: %s", strings.Join(t.BrowserAnyOf, ", ")))
	}
	if len(t.ContentCategoryAnyOf) > 0 {
		unsupported = append(unsupported,
			fmt.Sprintf("Content category targeting requested but not supported: %s", strings.Join(t.ContentCategoryAnyOf, ", ")))
	}
	if len(t.KeywordsAnyOf) > 0 {
		unsupported = append(unsupported,
			fmt.Sprintf("Keyword targeting requested but not supported: %s", strings.Join(t.KeywordsAnyOf, ", ")))
	}
	if len(t.AudiencesAnyOf) > 0 {
		unsupported = append(unsupported,
			fmt.Sprintf("Audience targeting requested but no segment mapping is configured: %s", strings.Join(t.AudiencesAnyOf, ", ")))
	}
	if len(t.SignalsAnyOf) > 0 {
		unsupported = append(unsupported,
			fmt.Sprintf("Signal targeting requested but no segment mapping is configured: %s", strings.Join(t.SignalsAnyOf, ", ")))
	}

	if envs := environmentsOf(t.MediaTypeAnyOf); len(envs) > 1 {
		unsupported = append(unsupported,
			fmt.Sprintf("Line items support a single media type; got: %s", strings.Join(t.MediaTypeAnyOf, ", ")))
	}
	for _, mt := range t.MediaTypeAnyOf {
		if mt == models.MediaTypeAudio {
			unsupported = append(unsupported, "Audio media type is not supported")
		}
	}
	return unsupported
}

// BuildTargeting translates the AdCP overlay to GAM targeting. Any
// dimension GAM cannot represent is a hard error; the buyer's contract is
// never silently narrowed. Unknown geo codes are the one exception: they
// log a warning and are skipped.
func BuildTargeting(t *models.Targeting, logger *zap.Logger) (*LineItemTargeting, error) {
	if unsupported := ValidateTargeting(t); len(unsupported) > 0 {
		return nil, fmt.Errorf("unsupported targeting: %s", strings.Join(unsupported, "; "))
	}
	out := &LineItemTargeting{}
	if t.IsZero() {
		return out, nil
	}

	out.Geo.TargetedLocationIDs = append(out.Geo.TargetedLocationIDs,
		resolveGeo(t.GeoCountryAnyOf, countryLocationIDs, "country", logger)...)
	out.Geo.TargetedLocationIDs = append(out.Geo.TargetedLocationIDs,
		resolveGeo(t.GeoRegionAnyOf, regionLocationIDs, "region", logger)...)
	out.Geo.TargetedLocationIDs = append(out.Geo.TargetedLocationIDs,
		resolveGeo(t.GeoMetroAnyOf, metroLocationIDs, "metro", logger)...)

	out.Geo.ExcludedLocationIDs = append(out.Geo.ExcludedLocationIDs,
		resolveGeo(t.GeoCountryNoneOf, countryLocationIDs, "country", logger)...)
	out.Geo.ExcludedLocationIDs = append(out.Geo.ExcludedLocationIDs,
		resolveGeo(t.GeoRegionNoneOf, regionLocationIDs, "region", logger)...)
	out.Geo.ExcludedLocationIDs = append(out.Geo.ExcludedLocationIDs,
		resolveGeo(t.GeoMetroNoneOf, metroLocationIDs, "metro", logger)...)

	if len(t.KeyValuePairs) > 0 {
		out.CustomTargeting = make(map[string]string, len(t.KeyValuePairs))
		for k, v := range t.KeyValuePairs {
			out.CustomTargeting[k] = v
		}
	}

	if raw, ok := t.Custom["gam"]; ok {
		var overlay customOverlay
		if err := json.Unmarshal(raw, &overlay); err != nil {
			return nil, fmt.Errorf("parse custom gam targeting: %w", err)
		}
		out.Inventory = overlay.InventoryTargeting
		for k, v := range overlay.CustomCriteria {
			if out.CustomTargeting == nil {
				out.CustomTargeting = make(map[string]string, len(overlay.CustomCriteria))
			}
			out.CustomTargeting[k] = v
		}
	}

	if envs := environmentsOf(t.MediaTypeAnyOf); len(envs) == 1 {
		out.EnvironmentType = envs[0]
	}
	return out, nil
}

// environmentsOf maps media types to the distinct GAM environment types
// they imply. Display and native share BROWSER.
func environmentsOf(mediaTypes []string) []string {
	set := make(map[string]struct{})
	for _, mt := range mediaTypes {
		switch mt {
		case models.MediaTypeDisplay, models.MediaTypeNative:
			set[EnvironmentBrowser] = struct{}{}
		case models.MediaTypeVideo:
			set[EnvironmentVideoPlayer] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for env := range set {
		out = append(out, env)
	}
	sort.Strings(out)
	return out
}

func resolveGeo(codes []string, table map[string]int64, kind string, logger *zap.Logger) []int64 {
	var out []int64
	for _, code := range codes {
		id, ok := table[strings.ToUpper(code)]
		if !ok {
			logger.Warn("unknown geo code skipped",
				zap.String("kind", kind), zap.String("code", code))
			continue
		}
		out = append(out, id)
	}
	return out
}
