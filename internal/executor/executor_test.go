package executor

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/openadsales/gateway/internal/adapters"
	"github.com/openadsales/gateway/internal/adapters/mock"
	"github.com/openadsales/gateway/internal/analytics"
	"github.com/openadsales/gateway/internal/audit"
	"github.com/openadsales/gateway/internal/auth"
	"github.com/openadsales/gateway/internal/catalog"
	"github.com/openadsales/gateway/internal/conversation"
	"github.com/openadsales/gateway/internal/models"
	"github.com/openadsales/gateway/internal/notify"
	"github.com/openadsales/gateway/internal/observability"
)

type testEnv struct {
	exec     *Executor
	store    *models.MemoryStore
	sink     *audit.MemorySink
	delivery *analytics.MockService

	tenant    *models.Tenant
	principal *models.Principal
	other     *models.Principal
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := models.NewMemoryStore()
	metrics := &observability.MockMetricsRegistry{}
	logger := zap.NewNop()

	registry := adapters.NewRegistry(adapters.Deps{Store: store, Metrics: metrics, Logger: logger})
	registry.Register("mock", mock.Factory())

	sink := &audit.MemorySink{}
	delivery := analytics.NewMockService()
	exec := New(Config{
		Store:    store,
		Catalog:  catalog.NewDatabaseProvider(store),
		Convos:   conversation.NewManager(store, nil, metrics, logger),
		Registry: registry,
		Delivery: delivery,
		Audit:    audit.NewLogger(sink, metrics, logger),
		Notifier: notify.Nop{},
		Metrics:  metrics,
		Logger:   logger,
	})

	env := &testEnv{exec: exec, store: store, sink: sink, delivery: delivery}
	env.seed(t)
	return env
}

func (env *testEnv) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	env.tenant = &models.Tenant{
		TenantID:  "pub1",
		Name:      "Publisher One",
		Subdomain: "pub1",
		IsActive:  true,
		Settings: models.TenantSettings{
			AdServer:           "mock",
			AutoApproveFormats: []string{"display"},
			Policy: models.PolicySettings{
				ProhibitedAdvertisers: []string{"acme"},
			},
		},
	}
	if err := env.store.UpsertTenant(ctx, env.tenant); err != nil {
		t.Fatal(err)
	}

	env.principal = &models.Principal{
		TenantID:    "pub1",
		PrincipalID: "buyer_1",
		Name:        "Buyer One",
		AccessToken: "tok_buyer1",
	}
	env.other = &models.Principal{
		TenantID:    "pub1",
		PrincipalID: "buyer_2",
		Name:        "Buyer Two",
		AccessToken: "tok_buyer2",
	}
	for _, p := range []*models.Principal{env.principal, env.other} {
		if err := env.store.UpsertPrincipal(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	products := []*models.Product{
		{
			TenantID: "pub1", ProductID: "prod_news", Name: "News Display",
			Formats: []string{"display"}, DeliveryType: models.DeliveryTypeNonGuaranteed,
			CPM: 5, Countries: []string{"US"},
			ImplementationConfig: models.ImplementationConfig{
				NonGuaranteedAutomation: models.AutomationAutomatic,
			},
		},
		{
			TenantID: "pub1", ProductID: "prod_sports_video", Name: "Sports Video Premium",
			Formats: []string{"video"}, DeliveryType: models.DeliveryTypeGuaranteed,
			CPM: 20,
		},
		{
			TenantID: "pub1", ProductID: "prod_confirm", Name: "Homepage Takeover",
			Formats: []string{"display"}, DeliveryType: models.DeliveryTypeNonGuaranteed,
			CPM: 12,
			ImplementationConfig: models.ImplementationConfig{
				NonGuaranteedAutomation: models.AutomationConfirmationRequired,
			},
		},
		{
			TenantID: "pub1", ProductID: "prod_manual", Name: "Run of Site",
			Formats: []string{"display"}, DeliveryType: models.DeliveryTypeNonGuaranteed,
			CPM: 2,
		},
	}
	for _, p := range products {
		if err := env.store.UpsertProduct(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
}

// ctx returns a request context authenticated as the primary principal.
func (env *testEnv) ctx() context.Context {
	return env.ctxAs(env.principal)
}

func (env *testEnv) ctxAs(p *models.Principal) context.Context {
	return auth.WithPrincipal(auth.WithTenant(context.Background(), env.tenant), p)
}
