package gam

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openadsales/gateway/internal/models"
)

func TestBuildTargetingRejectsCities(t *testing.T) {
	_, err := BuildTargeting(&models.Targeting{
		GeoCityAnyOf: []string{"New York"},
	}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported targeting")
	assert.Contains(t, err.Error(), "City targeting requested but not supported: New York")
}

func TestValidateTargetingUnsupportedDimensions(t *testing.T) {
	cases := []struct {
		name    string
		overlay models.Targeting
		want    string
	}{
		{
			name:    "zip codes",
			overlay: models.Targeting{GeoZipAnyOf: []string{"10001"}},
			want:    "Postal code targeting requested but not supported: 10001",
		},
		{
			name:    "device types",
			overlay: models.Targeting{DeviceTypeAnyOf: []string{"mobile"}},
			want:    "Device type targeting requested but not supported: mobile",
		},
		{
			name:    "audiences without mapping",
			overlay: models.Targeting{AudiencesAnyOf: []string{"sports_fans"}},
			want:    "Audience targeting requested but no segment mapping is configured: sports_fans",
		},
		{
			name:    "signals without mapping",
			overlay: models.Targeting{SignalsAnyOf: []string{"sig_auto"}},
			want:    "Signal targeting requested but no segment mapping is configured: sig_auto",
		},
		{
			name:    "mixed media types",
			overlay: models.Targeting{MediaTypeAnyOf: []string{"display", "video"}},
			want:    "Line items support a single media type; got: display, video",
		},
		{
			name:    "audio",
			overlay: models.Targeting{MediaTypeAnyOf: []string{"audio"}},
			want:    "Audio media type is not supported",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			unsupported := ValidateTargeting(&tc.overlay)
			require.NotEmpty(t, unsupported)
			assert.Contains(t, unsupported, tc.want)
		})
	}
}

func TestValidateTargetingAcceptsSupportedOverlay(t *testing.T) {
	overlay := &models.Targeting{
		GeoCountryAnyOf: []string{"US", "CA"},
		GeoRegionAnyOf:  []string{"US-NY"},
		MediaTypeAnyOf:  []string{"video"},
		KeyValuePairs:   map[string]string{"section": "sports"},
	}
	assert.Empty(t, ValidateTargeting(overlay))

	assert.Empty(t, ValidateTargeting(&models.Targeting{}))
}

func TestBuildTargetingGeoResolution(t *testing.T) {
	got, err := BuildTargeting(&models.Targeting{
		GeoCountryAnyOf:  []string{"US"},
		GeoRegionAnyOf:   []string{"US-NY"},
		GeoMetroAnyOf:    []string{"501"},
		GeoCountryNoneOf: []string{"CA"},
	}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []int64{2840, 21167, 200501}, got.Geo.TargetedLocationIDs)
	assert.Equal(t, []int64{2124}, got.Geo.ExcludedLocationIDs)
}

func TestBuildTargetingSkipsUnknownGeoCodes(t *testing.T) {
	got, err := BuildTargeting(&models.Targeting{
		GeoCountryAnyOf: []string{"US", "ZZ"},
	}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []int64{2840}, got.Geo.TargetedLocationIDs)
}

func TestBuildTargetingNormalizesCase(t *testing.T) {
	got, err := BuildTargeting(&models.Targeting{
		GeoCountryAnyOf: []string{"us"},
		GeoRegionAnyOf:  []string{"us-ny"},
	}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []int64{2840, 21167}, got.Geo.TargetedLocationIDs)
}

func TestBuildTargetingEnvironmentAndCustom(t *testing.T) {
	got, err := BuildTargeting(&models.Targeting{
		MediaTypeAnyOf: []string{"video"},
		KeyValuePairs:  map[string]string{"section": "sports", "aee_signal": "drive"},
	}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, EnvironmentVideoPlayer, got.EnvironmentType)
	assert.Equal(t, map[string]string{"section": "sports", "aee_signal": "drive"}, got.CustomTargeting)
}

func TestBuildTargetingCustomOverlayPassThrough(t *testing.T) {
	got, err := BuildTargeting(&models.Targeting{
		GeoCountryAnyOf: []string{"US"},
		KeyValuePairs:   map[string]string{"section": "sports"},
		Custom: map[string]json.RawMessage{
			"gam": json.RawMessage(`{
				"inventory_targeting": {
					"targeted_ad_unit_ids": ["12345"],
					"excluded_ad_unit_ids": ["67890"],
					"targeted_placement_ids": ["pl_ros"]
				},
				"custom_criteria": {"aee_signal": "drive"}
			}`),
		},
	}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, []int64{2840}, got.Geo.TargetedLocationIDs)
	require.NotNil(t, got.Inventory)
	assert.Equal(t, []string{"12345"}, got.Inventory.TargetedAdUnitIDs)
	assert.Equal(t, []string{"67890"}, got.Inventory.ExcludedAdUnitIDs)
	assert.Equal(t, []string{"pl_ros"}, got.Inventory.TargetedPlacementIDs)
	assert.Equal(t, map[string]string{"section": "sports", "aee_signal": "drive"}, got.CustomTargeting)
}

func TestBuildTargetingCustomOverlayAlone(t *testing.T) {
	// A Custom-only overlay is not empty; the block must survive the
	// round trip even with no generic dimensions set.
	got, err := BuildTargeting(&models.Targeting{
		Custom: map[string]json.RawMessage{
			"gam": json.RawMessage(`{"inventory_targeting":{"targeted_ad_unit_ids":["au_sports"]}}`),
		},
	}, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, got.Inventory)
	assert.Equal(t, []string{"au_sports"}, got.Inventory.TargetedAdUnitIDs)
}

func TestBuildTargetingCustomOverlayOtherAdapterIgnored(t *testing.T) {
	got, err := BuildTargeting(&models.Targeting{
		GeoCountryAnyOf: []string{"US"},
		Custom: map[string]json.RawMessage{
			"kevel": json.RawMessage(`{"site_ids":[7]}`),
		},
	}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, got.Inventory)
}

func TestBuildTargetingCustomOverlayMalformed(t *testing.T) {
	_, err := BuildTargeting(&models.Targeting{
		Custom: map[string]json.RawMessage{
			"gam": json.RawMessage(`{"inventory_targeting": 3}`),
		},
	}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse custom gam targeting")
}

func TestEnvironmentsOf(t *testing.T) {
	assert.Equal(t, []string{EnvironmentBrowser}, environmentsOf([]string{"display", "native"}))
	assert.Equal(t, []string{EnvironmentVideoPlayer}, environmentsOf([]string{"video"}))
	assert.Equal(t, []string{EnvironmentBrowser, EnvironmentVideoPlayer},
		environmentsOf([]string{"display", "video"}))
	assert.Empty(t, environmentsOf(nil))
}
