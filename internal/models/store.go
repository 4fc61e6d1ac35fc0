package models

import (
	"context"
	"time"
)

// Store is the tenant-scoped persistence boundary. Every method takes the
// tenant ID in the key or filter; a lookup under the wrong tenant returns
// ErrNotFound exactly as if the entity did not exist.
//
// Implementations: the Postgres store in internal/db (production) and
// MemoryStore below (tests, mock adapter backend).
type Store interface {
	// Tenants and principals.
	GetTenant(ctx context.Context, tenantID string) (*Tenant, error)
	GetTenantBySubdomain(ctx context.Context, subdomain string) (*Tenant, error)
	GetTenantByVirtualHost(ctx context.Context, host string) (*Tenant, error)
	ListTenants(ctx context.Context) ([]Tenant, error)
	UpsertTenant(ctx context.Context, t *Tenant) error
	GetPrincipal(ctx context.Context, tenantID, principalID string) (*Principal, error)
	GetPrincipalByToken(ctx context.Context, tenantID, token string) (*Principal, error)
	UpsertPrincipal(ctx context.Context, p *Principal) error

	// Products.
	GetProduct(ctx context.Context, tenantID, productID string) (*Product, error)
	ListProducts(ctx context.Context, tenantID string) ([]Product, error)
	UpsertProduct(ctx context.Context, p *Product) error

	// Media buys. CreateMediaBuy persists the buy and its packages in one
	// transaction.
	CreateMediaBuy(ctx context.Context, mb *MediaBuy, packages []Package) error
	GetMediaBuy(ctx context.Context, tenantID, mediaBuyID string) (*MediaBuy, error)
	UpdateMediaBuy(ctx context.Context, mb *MediaBuy) error
	UpdateMediaBuyStatus(ctx context.Context, tenantID, mediaBuyID, status string) error
	ListPackages(ctx context.Context, tenantID, mediaBuyID string) ([]Package, error)
	GetPackage(ctx context.Context, tenantID, mediaBuyID, packageID string) (*Package, error)
	UpdatePackageConfig(ctx context.Context, tenantID, mediaBuyID, packageID string, cfg PackageConfig) error

	// Creatives. InsertCreatives persists a submission batch atomically.
	InsertCreatives(ctx context.Context, creatives []Creative) error
	GetCreative(ctx context.Context, tenantID, creativeID string) (*Creative, error)
	ListCreativesByMediaBuy(ctx context.Context, tenantID, mediaBuyID string) ([]Creative, error)
	UpdateCreativeStatus(ctx context.Context, tenantID, creativeID, status, detail, adServerID string) error

	// Tasks.
	InsertTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, tenantID, taskID string) (*Task, error)
	UpdateTaskStatus(ctx context.Context, tenantID, taskID, status string) error
	ListTasksByMediaBuy(ctx context.Context, tenantID, mediaBuyID string) ([]Task, error)
	ListOverdueTasks(ctx context.Context, tenantID string, now time.Time) ([]Task, error)

	// Conversation contexts.
	GetContext(ctx context.Context, tenantID, contextID string) (*ConversationContext, error)
	FindContext(ctx context.Context, tenantID, principalID, protocol string) (*ConversationContext, error)
	UpsertContext(ctx context.Context, c *ConversationContext) error
	AppendMessage(ctx context.Context, tenantID string, m *Message) error
	ListMessages(ctx context.Context, tenantID, contextID string, limit, offset int) ([]Message, error)
	ClearMessages(ctx context.Context, tenantID, contextID string) error

	// Sync jobs. TryStartSyncJob is a conditional insert: it returns
	// ErrConflict when a job of the same type is already running for the
	// tenant.
	TryStartSyncJob(ctx context.Context, job *SyncJob) error
	FinishSyncJob(ctx context.Context, job *SyncJob) error
	GetSyncJob(ctx context.Context, tenantID, syncID string) (*SyncJob, error)
	ListSyncJobs(ctx context.Context, tenantID string, limit, offset int, statusFilter string) ([]SyncJob, error)
	LatestSyncJob(ctx context.Context, tenantID, syncType string) (*SyncJob, error)
}
