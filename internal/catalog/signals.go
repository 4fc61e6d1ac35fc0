package catalog

import (
	"strings"

	"github.com/openadsales/gateway/internal/models"
)

// builtinSignals is the static signal catalog exposed through get_signals.
// Tenants without an external signal platform get this baseline set.
var builtinSignals = []models.Signal{
	{SignalID: "auto_intenders_q1", Name: "Auto Intenders", Type: models.SignalTypeAudience, Description: "Users researching new vehicle purchases in the last 30 days"},
	{SignalID: "sports_enthusiasts", Name: "Sports Enthusiasts", Type: models.SignalTypeAudience, Description: "Heavy consumers of sports content and live events"},
	{SignalID: "luxury_shoppers", Name: "Luxury Shoppers", Type: models.SignalTypeAudience, Description: "High-income users browsing premium retail"},
	{SignalID: "news_readers", Name: "News Readers", Type: models.SignalTypeAudience, Description: "Daily readers of news and current-affairs sections"},
	{SignalID: "ctx_finance", Name: "Finance Content", Type: models.SignalTypeContextual, Description: "Pages about markets, investing and personal finance"},
	{SignalID: "ctx_travel", Name: "Travel Content", Type: models.SignalTypeContextual, Description: "Destination guides, flight deals and travel reviews"},
	{SignalID: "ctx_food", Name: "Food & Recipes", Type: models.SignalTypeContextual, Description: "Recipe pages and restaurant coverage"},
	{SignalID: "geo_urban_centers", Name: "Urban Centers", Type: models.SignalTypeGeographic, Description: "Top 50 metro areas by population"},
	{SignalID: "geo_coastal", Name: "Coastal Regions", Type: models.SignalTypeGeographic, Description: "Households in coastal counties"},
}

// GetSignals filters the builtin catalog. Type matching is exact; the
// query matches name and description as a case-insensitive substring.
func GetSignals(query, signalType string) []models.Signal {
	out := make([]models.Signal, 0, len(builtinSignals))
	q := strings.ToLower(strings.TrimSpace(query))
	for _, s := range builtinSignals {
		if signalType != "" && string(s.Type) != signalType {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(s.Name), q) &&
			!strings.Contains(strings.ToLower(s.Description), q) {
			continue
		}
		out = append(out, s)
	}
	return out
}
