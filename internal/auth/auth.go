package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"

	"github.com/openadsales/gateway/internal/models"
)

// ErrNotAuthenticated is returned when no principal matches the presented
// token within the resolved tenant.
var ErrNotAuthenticated = errors.New("invalid or missing authentication token")

// ErrTenantInactive is returned when the resolved tenant is disabled.
var ErrTenantInactive = errors.New("tenant is not active")

// Registry resolves tenants and principals from request credentials.
type Registry struct {
	store  models.Store
	logger *zap.Logger
}

func NewRegistry(store models.Store, logger *zap.Logger) *Registry {
	return &Registry{store: store, logger: logger.Named("auth")}
}

// ResolveTenant maps request routing hints to a tenant. Precedence: the
// explicit tenant header, then the host subdomain, then a virtual host
// match on the full hostname, then the "default" tenant.
func (r *Registry) ResolveTenant(ctx context.Context, tenantHeader, host string) (*models.Tenant, error) {
	if tenantHeader != "" {
		t, err := r.store.GetTenant(ctx, tenantHeader)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("resolve tenant %q: %w", tenantHeader, err)
		}
	}

	hostname := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostname = h
	}
	if sub, ok := subdomainOf(hostname); ok {
		t, err := r.store.GetTenantBySubdomain(ctx, sub)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("resolve tenant by subdomain %q: %w", sub, err)
		}
	}
	if hostname != "" {
		t, err := r.store.GetTenantByVirtualHost(ctx, hostname)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("resolve tenant by host %q: %w", hostname, err)
		}
	}

	t, err := r.store.GetTenant(ctx, "default")
	if err != nil {
		return nil, fmt.Errorf("resolve default tenant: %w", err)
	}
	return t, nil
}

// subdomainOf extracts the leftmost DNS label when the host has at least
// three labels (e.g. "sports.gateway.example.com" -> "sports").
func subdomainOf(hostname string) (string, bool) {
	parts := strings.Split(hostname, ".")
	if len(parts) < 3 {
		return "", false
	}
	sub := parts[0]
	if sub == "" || sub == "www" {
		return "", false
	}
	return sub, true
}

// Resolve authenticates a token within the tenant selected by the routing
// hints and returns the tenant plus the authenticated principal.
func (r *Registry) Resolve(ctx context.Context, token, tenantHeader, host string) (*models.Tenant, *models.Principal, error) {
	tenant, err := r.ResolveTenant(ctx, tenantHeader, host)
	if err != nil {
		return nil, nil, err
	}
	if !tenant.IsActive {
		return nil, nil, ErrTenantInactive
	}
	if token == "" {
		return nil, nil, ErrNotAuthenticated
	}

	// Tenant admin token maps to a synthetic admin principal scoped to
	// this tenant only.
	if tenant.Settings.AdminToken != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(tenant.Settings.AdminToken)) == 1 {
		return tenant, &models.Principal{
			TenantID:    tenant.TenantID,
			PrincipalID: models.SyntheticAdminID(tenant.TenantID),
			Name:        tenant.Name + " Admin",
			IsAdmin:     true,
		}, nil
	}

	principal, err := r.store.GetPrincipalByToken(ctx, tenant.TenantID, token)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			r.logger.Debug("token did not match any principal", zap.String("tenant_id", tenant.TenantID))
			return nil, nil, ErrNotAuthenticated
		}
		return nil, nil, fmt.Errorf("lookup principal: %w", err)
	}
	return tenant, principal, nil
}
