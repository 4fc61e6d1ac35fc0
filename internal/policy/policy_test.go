package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openadsales/gateway/internal/models"
)

func TestCheckAllowsEmptyOffering(t *testing.T) {
	res := Check("", models.PolicySettings{ProhibitedAdvertisers: []string{"acme"}})
	assert.Equal(t, StatusAllowed, res.Status)
	assert.Empty(t, res.Reasons)
}

func TestCheckRejectsProhibitedAdvertiser(t *testing.T) {
	settings := models.PolicySettings{ProhibitedAdvertisers: []string{"Acme Vapes"}}
	res := Check("Back-to-school campaign for ACME VAPES premium line", settings)
	assert.Equal(t, StatusRejected, res.Status)
	assert.Contains(t, res.Reasons[0], "Acme Vapes")
}

func TestCheckRejectsProhibitedCategory(t *testing.T) {
	settings := models.PolicySettings{ProhibitedCategories: []string{"gambling"}}
	res := Check("Online gambling promo targeting sports fans", settings)
	assert.Equal(t, StatusRejected, res.Status)
}

func TestCheckFlagsTacticForReview(t *testing.T) {
	settings := models.PolicySettings{ProhibitedTactics: []string{"retargeting"}}
	res := Check("Aggressive retargeting of cart abandoners", settings)
	assert.Equal(t, StatusReviewRequired, res.Status)
	assert.Contains(t, res.Reasons[0], "retargeting")
}

func TestCheckTacticWildcardPattern(t *testing.T) {
	settings := models.PolicySettings{ProhibitedTactics: []string{"fingerprint*"}}
	res := Check("device fingerprinting for cross-site tracking", settings)
	assert.Equal(t, StatusReviewRequired, res.Status)
}

func TestCheckRejectionWinsOverReview(t *testing.T) {
	settings := models.PolicySettings{
		ProhibitedCategories: []string{"tobacco"},
		ProhibitedTactics:    []string{"retargeting"},
	}
	res := Check("tobacco retargeting push", settings)
	assert.Equal(t, StatusRejected, res.Status)
}

func TestCheckCleanOffering(t *testing.T) {
	settings := models.PolicySettings{
		ProhibitedAdvertisers: []string{"acme"},
		ProhibitedCategories:  []string{"gambling"},
		ProhibitedTactics:     []string{"retargeting"},
	}
	res := Check("Sustainable sneakers spring launch", settings)
	assert.Equal(t, StatusAllowed, res.Status)
}
