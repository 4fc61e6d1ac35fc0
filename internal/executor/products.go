package executor

import (
	"context"
	"fmt"

	"github.com/openadsales/gateway/internal/catalog"
	"github.com/openadsales/gateway/internal/policy"
)

// GetProductsRequest filters the tenant's product catalog.
type GetProductsRequest struct {
	Brief             string   `json:"brief,omitempty"`
	PromotedOffering  string   `json:"promoted_offering,omitempty"`
	Countries         []string `json:"countries,omitempty"`
	Formats           []string `json:"formats,omitempty"`
	TargetingFeatures []string `json:"targeting_features,omitempty"`
}

// GetProducts runs the policy check on the promoted offering, then lists
// matching products. An empty result asks the caller to clarify instead
// of failing.
func (e *Executor) GetProducts(ctx context.Context, req GetProductsRequest) (*TaskResult, error) {
	tenant, principal, err := e.identity(ctx)
	if err != nil {
		return nil, err
	}

	compliance := policy.Check(req.PromotedOffering, tenant.Settings.Policy)
	e.metrics.IncrementPolicyDecision(string(compliance.Status))
	if compliance.Status == policy.StatusRejected {
		res := failed(ErrCodePolicyRejected, "promoted offering violates tenant policy")
		res.Data = map[string]any{"policy_compliance": compliance}
		e.finish(ctx, tenant, principal, "get_products", res, nil)
		return res, nil
	}

	products, err := e.catalog.GetProducts(ctx, tenant.TenantID, principal.PrincipalID, req.Brief, catalog.Filters{
		Countries:         req.Countries,
		Formats:           req.Formats,
		TargetingFeatures: req.TargetingFeatures,
		PromotedOffering:  req.PromotedOffering,
	})
	if err != nil {
		return nil, fmt.Errorf("product catalog: %w", err)
	}

	data := map[string]any{
		"products":          products,
		"policy_compliance": compliance,
	}
	message := fmt.Sprintf("%d products matched", len(products))
	if len(products) == 0 {
		data["clarification_needed"] = true
		message = "No products matched your request. Tell me more about the formats, countries or budget you have in mind and I can narrow it down."
	}

	res := completed(message, data)
	e.finish(ctx, tenant, principal, "get_products", res, map[string]any{"matched": len(products)})
	return res, nil
}

// GetSignalsRequest filters the signal catalog.
type GetSignalsRequest struct {
	Query    string `json:"query,omitempty"`
	Type     string `json:"type,omitempty" validate:"omitempty,oneof=audience contextual geographic"`
	Category string `json:"category,omitempty"`
}

// GetSignals lists addressable signals. Type matching is exact; the query
// is a substring.
func (e *Executor) GetSignals(ctx context.Context, req GetSignalsRequest) (*TaskResult, error) {
	tenant, principal, err := e.identity(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.validate.Struct(req); err != nil {
		res := validationFailed(err)
		e.finish(ctx, tenant, principal, "get_signals", res, nil)
		return res, nil
	}

	signals := catalog.GetSignals(req.Query, req.Type)
	res := completed(fmt.Sprintf("%d signals", len(signals)), map[string]any{"signals": signals})
	e.finish(ctx, tenant, principal, "get_signals", res, nil)
	return res, nil
}

// GetTargetingCapabilities describes the overlay dimensions each channel
// supports. City and postal codes are declared in the schema, but the GAM
// adapter fails loudly when they are used.
func (e *Executor) GetTargetingCapabilities(ctx context.Context, channels []string) (*TaskResult, error) {
	tenant, principal, err := e.identity(ctx)
	if err != nil {
		return nil, err
	}

	all := map[string]any{
		"display": channelCapabilities([]string{"display", "native"}),
		"video":   channelCapabilities([]string{"video"}),
		"native":  channelCapabilities([]string{"native"}),
	}
	out := make(map[string]any)
	if len(channels) == 0 {
		out = all
	} else {
		for _, ch := range channels {
			if caps, ok := all[ch]; ok {
				out[ch] = caps
			}
		}
	}

	res := completed(fmt.Sprintf("%d channels", len(out)), map[string]any{"capabilities": out})
	e.finish(ctx, tenant, principal, "get_targeting_capabilities", res, nil)
	return res, nil
}

func channelCapabilities(mediaTypes []string) map[string]any {
	return map[string]any{
		"overlay_dimensions": []string{
			"geo_country_any_of", "geo_country_none_of",
			"geo_region_any_of", "geo_region_none_of",
			"geo_metro_any_of", "geo_metro_none_of",
			"media_type_any_of", "key_value_pairs", "custom",
		},
		"media_types": mediaTypes,
	}
}
