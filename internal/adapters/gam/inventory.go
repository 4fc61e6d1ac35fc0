package gam

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openadsales/gateway/internal/adapters"
	"github.com/openadsales/gateway/internal/models"
)

// DiscoverAdUnits walks the upstream ad unit hierarchy breadth-first from
// the given parent (or the root when empty), down to maxDepth levels.
func (a *Adapter) DiscoverAdUnits(ctx context.Context, parentID string, maxDepth int) ([]adapters.AdUnit, error) {
	start := time.Now()
	var err error
	defer func() { a.observe("discover_ad_units", start, err) }()

	if maxDepth <= 0 {
		maxDepth = 5
	}

	all, err := a.client.ListAdUnits(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list ad units upstream: %w", err)
	}
	children := make(map[string][]adapters.AdUnit)
	for _, au := range all {
		children[au.ParentID] = append(children[au.ParentID], au)
	}

	var out []adapters.AdUnit
	frontier := []string{parentID}
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			for _, au := range children[id] {
				out = append(out, au)
				next = append(next, au.ID)
			}
		}
		frontier = next
	}
	if parentID == "" {
		// Roots have no parent entry of their own; include them.
		var roots []adapters.AdUnit
		for _, au := range all {
			if au.ParentID == "" {
				roots = append(roots, au)
			}
		}
		out = append(roots, out...)
	}
	return out, nil
}

func (a *Adapter) DiscoverPlacements(ctx context.Context) ([]adapters.Placement, error) {
	start := time.Now()
	var err error
	defer func() { a.observe("discover_placements", start, err) }()

	out, err := a.client.ListPlacements(ctx)
	if err != nil {
		return nil, fmt.Errorf("list placements upstream: %w", err)
	}
	return out, nil
}

func (a *Adapter) DiscoverCustomTargeting(ctx context.Context) ([]adapters.CustomTargetingKey, error) {
	start := time.Now()
	var err error
	defer func() { a.observe("discover_custom_targeting", start, err) }()

	out, err := a.client.ListCustomTargetingKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list custom targeting upstream: %w", err)
	}
	return out, nil
}

func (a *Adapter) DiscoverAudienceSegments(ctx context.Context) ([]models.Signal, error) {
	start := time.Now()
	var err error
	defer func() { a.observe("discover_audience_segments", start, err) }()

	out, err := a.client.ListAudienceSegments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list audience segments upstream: %w", err)
	}
	return out, nil
}

// BuildAdUnitTree assembles the full hierarchy under a synthetic root.
func (a *Adapter) BuildAdUnitTree(ctx context.Context) (*adapters.AdUnitNode, error) {
	start := time.Now()
	var err error
	defer func() { a.observe("build_ad_unit_tree", start, err) }()

	all, err := a.client.ListAdUnits(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list ad units upstream: %w", err)
	}

	nodes := make(map[string]*adapters.AdUnitNode, len(all))
	for _, au := range all {
		nodes[au.ID] = &adapters.AdUnitNode{AdUnit: au}
	}
	root := &adapters.AdUnitNode{AdUnit: adapters.AdUnit{Name: "network"}}
	for _, au := range all {
		node := nodes[au.ID]
		if parent, ok := nodes[au.ParentID]; ok {
			parent.Children = append(parent.Children, node)
		} else {
			root.Children = append(root.Children, node)
		}
	}
	return root, nil
}

// SuggestAdUnitsForProduct returns ad units whose placeholder sizes cover
// the requested sizes, optionally narrowed by path keywords.
func (a *Adapter) SuggestAdUnitsForProduct(ctx context.Context, sizes []models.Size, keywords []string) ([]adapters.AdUnit, error) {
	start := time.Now()
	var err error
	defer func() { a.observe("suggest_ad_units", start, err) }()

	all, err := a.client.ListAdUnits(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list ad units upstream: %w", err)
	}

	var out []adapters.AdUnit
	for _, au := range all {
		if len(sizes) > 0 && !coversAnySize(au.Sizes, sizes) {
			continue
		}
		if len(keywords) > 0 && !matchesKeyword(au, keywords) {
			continue
		}
		out = append(out, au)
	}
	return out, nil
}

func coversAnySize(have, want []models.Size) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w || h.IsWildcard() {
				return true
			}
		}
	}
	return false
}

func matchesKeyword(au adapters.AdUnit, keywords []string) bool {
	haystack := strings.ToLower(au.Name + " " + au.Path)
	for _, kw := range keywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// ValidateInventoryAccess checks which of the given ad unit IDs exist and
// are active in the upstream network.
func (a *Adapter) ValidateInventoryAccess(ctx context.Context, ids []string) (map[string]bool, error) {
	start := time.Now()
	var err error
	defer func() { a.observe("validate_inventory_access", start, err) }()

	all, err := a.client.ListAdUnits(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list ad units upstream: %w", err)
	}
	active := make(map[string]bool, len(all))
	for _, au := range all {
		active[au.ID] = au.Status == "" || au.Status == "ACTIVE"
	}

	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = active[id]
	}
	return out, nil
}
