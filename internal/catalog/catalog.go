// Package catalog provides per-tenant product discovery.
package catalog

import (
	"context"
	"fmt"

	"github.com/openadsales/gateway/internal/models"
)

// Filters narrows the product list returned by a provider.
type Filters struct {
	Countries         []string
	Formats           []string
	TargetingFeatures []string
	PromotedOffering  string
}

// Provider returns the products available to a principal. Implementations
// may use the brief to re-rank; the database provider ignores it.
type Provider interface {
	GetProducts(ctx context.Context, tenantID, principalID, brief string, filters Filters) ([]models.Product, error)
}

// DatabaseProvider reads products from the store and filters by format
// intersection and country overlap.
type DatabaseProvider struct {
	store models.Store
}

func NewDatabaseProvider(store models.Store) *DatabaseProvider {
	return &DatabaseProvider{store: store}
}

func (p *DatabaseProvider) GetProducts(ctx context.Context, tenantID, principalID, brief string, filters Filters) ([]models.Product, error) {
	products, err := p.store.ListProducts(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	var out []models.Product
	for _, prod := range products {
		if len(filters.Formats) > 0 && !intersects(prod.Formats, filters.Formats) {
			continue
		}
		if len(filters.Countries) > 0 && !countryOverlap(prod.Countries, filters.Countries) {
			continue
		}
		out = append(out, prod)
	}
	return out, nil
}

func intersects(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}

// countryOverlap treats a product with no country list as available
// everywhere.
func countryOverlap(productCountries, wanted []string) bool {
	if len(productCountries) == 0 {
		return true
	}
	return intersects(productCountries, wanted)
}
