package adapters

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/openadsales/gateway/internal/models"
	"github.com/openadsales/gateway/internal/observability"
)

// Deps bundles what adapter constructors need.
type Deps struct {
	Store   models.Store
	Metrics observability.MetricsRegistry
	Logger  *zap.Logger

	// Platform-level GAM OAuth application credentials.
	GAMClientID     string
	GAMClientSecret string

	// DryRun forces every adapter call into validation-only mode.
	DryRun bool
}

// Factory builds an adapter for a tenant. Registered per ad_server name.
type Factory func(tenant *models.Tenant, deps Deps) (Adapter, error)

// Registry caches one adapter client per (tenant, ad_server) pair.
// Clients are safe for concurrent use; a cached entry is dropped and
// rebuilt by Invalidate on auth failure.
type Registry struct {
	deps      Deps
	factories map[string]Factory

	mu    sync.RWMutex
	cache map[string]Adapter
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:      deps,
		factories: make(map[string]Factory),
		cache:     make(map[string]Adapter),
	}
}

// Register adds a factory for an ad_server name.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// ForTenant returns the adapter configured by the tenant's ad_server
// setting. Registered-but-unbuilt platforms (kevel, triton) surface a
// configuration error rather than a silent mock.
func (r *Registry) ForTenant(tenant *models.Tenant) (Adapter, error) {
	name := tenant.Settings.AdServer
	if name == "" {
		name = "mock"
	}

	key := tenant.TenantID + "/" + name
	r.mu.RLock()
	if a, ok := r.cache[key]; ok {
		r.mu.RUnlock()
		return a, nil
	}
	r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		switch name {
		case "kevel", "triton":
			return nil, fmt.Errorf("ad server %q is recognized but not configured for this deployment", name)
		}
		return nil, fmt.Errorf("unknown ad server %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.cache[key]; ok {
		return a, nil
	}
	a, err := factory(tenant, r.deps)
	if err != nil {
		return nil, fmt.Errorf("build %s adapter for tenant %s: %w", name, tenant.TenantID, err)
	}
	r.cache[key] = a
	return a, nil
}

// Invalidate drops the cached client for a tenant so the next call
// re-initializes it (used after upstream auth failures).
func (r *Registry) Invalidate(tenantID, adServer string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, tenantID+"/"+adServer)
}
