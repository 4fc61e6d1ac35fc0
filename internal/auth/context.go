package auth

import (
	"context"

	"github.com/openadsales/gateway/internal/models"
)

type contextKey string

const (
	tenantKey    contextKey = "tenant"
	principalKey contextKey = "principal"
)

// WithTenant stores the resolved tenant on the context.
func WithTenant(ctx context.Context, t *models.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

// TenantFrom returns the tenant stored on the context, if any.
func TenantFrom(ctx context.Context) (*models.Tenant, bool) {
	t, ok := ctx.Value(tenantKey).(*models.Tenant)
	return t, ok
}

// WithPrincipal stores the authenticated principal on the context.
func WithPrincipal(ctx context.Context, p *models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the principal stored on the context, if any.
func PrincipalFrom(ctx context.Context) (*models.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*models.Principal)
	return p, ok
}
