package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/openadsales/gateway/internal/models"
)

// Postgres wraps a postgres DB connection and implements models.Store.
type Postgres struct {
	DB *sql.DB
}

var _ models.Store = (*Postgres)(nil)

// schemaSQL sets up the necessary tables if they don't exist. Free-form
// maps (settings, platform mappings, configs, raw requests) are JSONB.
const schemaSQL = `CREATE TABLE IF NOT EXISTS tenants (
    tenant_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    subdomain TEXT NOT NULL UNIQUE,
    virtual_host TEXT,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    settings JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tenants_virtual_host ON tenants (virtual_host) WHERE virtual_host IS NOT NULL;

CREATE TABLE IF NOT EXISTS principals (
    tenant_id TEXT NOT NULL REFERENCES tenants(tenant_id),
    principal_id TEXT NOT NULL,
    name TEXT NOT NULL,
    access_token TEXT NOT NULL UNIQUE,
    platform_mappings JSONB NOT NULL DEFAULT '{}',
    is_admin BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (tenant_id, principal_id)
);

CREATE TABLE IF NOT EXISTS products (
    tenant_id TEXT NOT NULL REFERENCES tenants(tenant_id),
    product_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    formats TEXT[],
    delivery_type TEXT NOT NULL,
    is_fixed_price BOOLEAN NOT NULL DEFAULT FALSE,
    cpm DOUBLE PRECISION,
    countries TEXT[],
    price_guidance JSONB,
    targeting_template JSONB,
    implementation_config JSONB NOT NULL DEFAULT '{}',
    PRIMARY KEY (tenant_id, product_id)
);

CREATE TABLE IF NOT EXISTS media_buys (
    media_buy_id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL REFERENCES tenants(tenant_id),
    principal_id TEXT NOT NULL,
    order_name TEXT NOT NULL,
    advertiser_name TEXT,
    budget DOUBLE PRECISION NOT NULL,
    start_date TIMESTAMPTZ NOT NULL,
    end_date TIMESTAMPTZ NOT NULL,
    status TEXT NOT NULL,
    raw_request JSONB,
    ad_server_order_id TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_media_buys_tenant ON media_buys (tenant_id, principal_id);

CREATE TABLE IF NOT EXISTS packages (
    tenant_id TEXT NOT NULL,
    media_buy_id TEXT NOT NULL REFERENCES media_buys(media_buy_id),
    package_id TEXT NOT NULL,
    product_id TEXT NOT NULL,
    impressions BIGINT NOT NULL DEFAULT 0,
    cpm DOUBLE PRECISION NOT NULL DEFAULT 0,
    delivery_type TEXT NOT NULL,
    format_ids TEXT[],
    package_config JSONB NOT NULL DEFAULT '{}',
    PRIMARY KEY (media_buy_id, package_id)
);

CREATE INDEX IF NOT EXISTS idx_packages_tenant ON packages (tenant_id, media_buy_id);

CREATE TABLE IF NOT EXISTS creatives (
    tenant_id TEXT NOT NULL REFERENCES tenants(tenant_id),
    creative_id TEXT NOT NULL,
    principal_id TEXT NOT NULL,
    media_buy_id TEXT NOT NULL,
    name TEXT NOT NULL,
    format TEXT,
    snippet TEXT,
    snippet_type TEXT,
    template_variables JSONB,
    media_url TEXT,
    media_data BYTEA,
    click_url TEXT,
    width INT,
    height INT,
    duration_seconds DOUBLE PRECISION,
    tracking_events JSONB,
    package_assignments TEXT[],
    ad_server_creative_id TEXT,
    status TEXT NOT NULL,
    status_detail TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (tenant_id, creative_id)
);

CREATE INDEX IF NOT EXISTS idx_creatives_media_buy ON creatives (tenant_id, media_buy_id);

CREATE TABLE IF NOT EXISTS tasks (
    tenant_id TEXT NOT NULL REFERENCES tenants(tenant_id),
    task_id TEXT NOT NULL,
    principal_id TEXT,
    media_buy_id TEXT,
    task_type TEXT NOT NULL,
    status TEXT NOT NULL,
    details JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMPTZ,
    PRIMARY KEY (tenant_id, task_id)
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks (tenant_id, status, created_at);

CREATE TABLE IF NOT EXISTS contexts (
    tenant_id TEXT NOT NULL REFERENCES tenants(tenant_id),
    context_id TEXT NOT NULL,
    principal_id TEXT NOT NULL,
    protocol TEXT NOT NULL,
    state JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_active TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (tenant_id, context_id)
);

CREATE INDEX IF NOT EXISTS idx_contexts_principal ON contexts (tenant_id, principal_id, protocol, last_active);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    context_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    ts TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    metadata JSONB,
    seq BIGSERIAL
);

CREATE INDEX IF NOT EXISTS idx_messages_context ON messages (tenant_id, context_id, seq);

CREATE TABLE IF NOT EXISTS audit_log (
    id BIGSERIAL PRIMARY KEY,
    ts TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    tenant_id TEXT NOT NULL,
    principal_id TEXT,
    operation TEXT NOT NULL,
    success BOOLEAN NOT NULL,
    details JSONB,
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_tenant_ts ON audit_log (tenant_id, ts);

CREATE TABLE IF NOT EXISTS sync_jobs (
    tenant_id TEXT NOT NULL,
    sync_id TEXT NOT NULL,
    sync_type TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMPTZ,
    summary JSONB NOT NULL DEFAULT '{}',
    error_message TEXT,
    PRIMARY KEY (tenant_id, sync_id)
);

-- At most one running job per (tenant, sync_type); enforced by conditional insert.
CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_jobs_running ON sync_jobs (tenant_id, sync_type) WHERE status = 'running';

CREATE TABLE IF NOT EXISTS gateway_keys (
    name TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// InitPostgres connects to Postgres with connection pooling configuration.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres with connection pooling",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

// ensureSchema creates the required tables if they do not exist.
func (p *Postgres) ensureSchema() error {
	if _, err := p.DB.ExecContext(context.Background(), schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// marshalJSON marshals v for a JSONB column, mapping empty values to nil.
func marshalJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json column: %w", err)
	}
	if string(b) == "null" {
		return nil, nil
	}
	return b, nil
}

// ===== Tenants & principals =====

const tenantColumns = `tenant_id, name, subdomain, virtual_host, is_active, settings, created_at, updated_at`

func scanTenant(row *sql.Row) (*models.Tenant, error) {
	var t models.Tenant
	var vhost sql.NullString
	var settings []byte
	if err := row.Scan(&t.TenantID, &t.Name, &t.Subdomain, &vhost, &t.IsActive, &settings, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	if vhost.Valid {
		t.VirtualHost = vhost.String
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &t.Settings); err != nil {
			return nil, fmt.Errorf("parse tenant settings: %w", err)
		}
	}
	return &t, nil
}

func (p *Postgres) GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	row := p.DB.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE tenant_id=$1`, tenantID)
	return scanTenant(row)
}

func (p *Postgres) GetTenantBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	row := p.DB.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE subdomain=$1`, subdomain)
	return scanTenant(row)
}

func (p *Postgres) GetTenantByVirtualHost(ctx context.Context, host string) (*models.Tenant, error) {
	row := p.DB.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE LOWER(virtual_host)=LOWER($1)`, host)
	return scanTenant(row)
}

func (p *Postgres) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("query tenants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Tenant
	for rows.Next() {
		var t models.Tenant
		var vhost sql.NullString
		var settings []byte
		if err := rows.Scan(&t.TenantID, &t.Name, &t.Subdomain, &vhost, &t.IsActive, &settings, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		if vhost.Valid {
			t.VirtualHost = vhost.String
		}
		if len(settings) > 0 {
			if err := json.Unmarshal(settings, &t.Settings); err != nil {
				return nil, fmt.Errorf("parse tenant settings: %w", err)
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertTenant(ctx context.Context, t *models.Tenant) error {
	settings, err := marshalJSON(t.Settings)
	if err != nil {
		return err
	}
	var vhost any
	if t.VirtualHost != "" {
		vhost = t.VirtualHost
	}
	_, err = p.DB.ExecContext(ctx, `INSERT INTO tenants (tenant_id, name, subdomain, virtual_host, is_active, settings)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (tenant_id) DO UPDATE SET
            name=EXCLUDED.name, subdomain=EXCLUDED.subdomain, virtual_host=EXCLUDED.virtual_host,
            is_active=EXCLUDED.is_active, settings=EXCLUDED.settings, updated_at=NOW()`,
		t.TenantID, t.Name, t.Subdomain, vhost, t.IsActive, settings)
	if err != nil {
		return fmt.Errorf("upsert tenant: %w", err)
	}
	return nil
}

const principalColumns = `tenant_id, principal_id, name, access_token, platform_mappings, is_admin, created_at`

func scanPrincipal(row *sql.Row) (*models.Principal, error) {
	var pr models.Principal
	var mappings []byte
	if err := row.Scan(&pr.TenantID, &pr.PrincipalID, &pr.Name, &pr.AccessToken, &mappings, &pr.IsAdmin, &pr.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("scan principal: %w", err)
	}
	if len(mappings) > 0 {
		if err := json.Unmarshal(mappings, &pr.PlatformMappings); err != nil {
			return nil, fmt.Errorf("parse platform mappings: %w", err)
		}
	}
	return &pr, nil
}

func (p *Postgres) GetPrincipal(ctx context.Context, tenantID, principalID string) (*models.Principal, error) {
	row := p.DB.QueryRowContext(ctx, `SELECT `+principalColumns+` FROM principals WHERE tenant_id=$1 AND principal_id=$2`, tenantID, principalID)
	return scanPrincipal(row)
}

func (p *Postgres) GetPrincipalByToken(ctx context.Context, tenantID, token string) (*models.Principal, error) {
	row := p.DB.QueryRowContext(ctx, `SELECT `+principalColumns+` FROM principals WHERE tenant_id=$1 AND access_token=$2`, tenantID, token)
	return scanPrincipal(row)
}

// UpsertPrincipal inserts or replaces a principal. Token rotation is an
// upsert with a new access_token and commits atomically.
func (p *Postgres) UpsertPrincipal(ctx context.Context, pr *models.Principal) error {
	mappings, err := marshalJSON(pr.PlatformMappings)
	if err != nil {
		return err
	}
	_, err = p.DB.ExecContext(ctx, `INSERT INTO principals (tenant_id, principal_id, name, access_token, platform_mappings, is_admin)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (tenant_id, principal_id) DO UPDATE SET
            name=EXCLUDED.name, access_token=EXCLUDED.access_token,
            platform_mappings=EXCLUDED.platform_mappings, is_admin=EXCLUDED.is_admin`,
		pr.TenantID, pr.PrincipalID, pr.Name, pr.AccessToken, mappings, pr.IsAdmin)
	if err != nil {
		return fmt.Errorf("upsert principal: %w", err)
	}
	return nil
}

// ===== Products =====

const productColumns = `tenant_id, product_id, name, description, formats, delivery_type, is_fixed_price, cpm, countries, price_guidance, targeting_template, implementation_config`

func scanProduct(scan func(dest ...any) error) (*models.Product, error) {
	var pr models.Product
	var desc sql.NullString
	var cpm sql.NullFloat64
	var formats, countries []string
	var guidance, template, implCfg []byte
	err := scan(&pr.TenantID, &pr.ProductID, &pr.Name, &desc, pq.Array(&formats), &pr.DeliveryType,
		&pr.IsFixedPrice, &cpm, pq.Array(&countries), &guidance, &template, &implCfg)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("scan product: %w", err)
	}
	if desc.Valid {
		pr.Description = desc.String
	}
	if cpm.Valid {
		pr.CPM = cpm.Float64
	}
	pr.Formats = formats
	pr.Countries = countries
	if len(guidance) > 0 {
		if err := json.Unmarshal(guidance, &pr.PriceGuidance); err != nil {
			return nil, fmt.Errorf("parse price guidance: %w", err)
		}
	}
	if len(template) > 0 {
		if err := json.Unmarshal(template, &pr.TargetingTemplate); err != nil {
			return nil, fmt.Errorf("parse targeting template: %w", err)
		}
	}
	if len(implCfg) > 0 {
		if err := json.Unmarshal(implCfg, &pr.ImplementationConfig); err != nil {
			return nil, fmt.Errorf("parse implementation config: %w", err)
		}
	}
	return &pr, nil
}

func (p *Postgres) GetProduct(ctx context.Context, tenantID, productID string) (*models.Product, error) {
	row := p.DB.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE tenant_id=$1 AND product_id=$2`, tenantID, productID)
	return scanProduct(row.Scan)
}

func (p *Postgres) ListProducts(ctx context.Context, tenantID string) ([]models.Product, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE tenant_id=$1 ORDER BY product_id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Product
	for rows.Next() {
		pr, err := scanProduct(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *pr)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertProduct(ctx context.Context, pr *models.Product) error {
	guidance, err := marshalJSON(pr.PriceGuidance)
	if err != nil {
		return err
	}
	template, err := marshalJSON(pr.TargetingTemplate)
	if err != nil {
		return err
	}
	implCfg, err := marshalJSON(pr.ImplementationConfig)
	if err != nil {
		return err
	}
	_, err = p.DB.ExecContext(ctx, `INSERT INTO products (`+productColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        ON CONFLICT (tenant_id, product_id) DO UPDATE SET
            name=EXCLUDED.name, description=EXCLUDED.description, formats=EXCLUDED.formats,
            delivery_type=EXCLUDED.delivery_type, is_fixed_price=EXCLUDED.is_fixed_price,
            cpm=EXCLUDED.cpm, countries=EXCLUDED.countries, price_guidance=EXCLUDED.price_guidance,
            targeting_template=EXCLUDED.targeting_template, implementation_config=EXCLUDED.implementation_config`,
		pr.TenantID, pr.ProductID, pr.Name, pr.Description, pq.Array(pr.Formats), pr.DeliveryType,
		pr.IsFixedPrice, pr.CPM, pq.Array(pr.Countries), guidance, template, implCfg)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

// ===== Media buys =====

// CreateMediaBuy persists a media buy and its packages in one transaction.
func (p *Postgres) CreateMediaBuy(ctx context.Context, mb *models.MediaBuy, packages []models.Package) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT INTO media_buys (
        media_buy_id, tenant_id, principal_id, order_name, advertiser_name,
        budget, start_date, end_date, status, raw_request, ad_server_order_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		mb.MediaBuyID, mb.TenantID, mb.PrincipalID, mb.OrderName, mb.AdvertiserName,
		mb.Budget, mb.StartDate, mb.EndDate, mb.Status, []byte(mb.RawRequest), mb.AdServerOrderID)
	if err != nil {
		return fmt.Errorf("insert media buy: %w", err)
	}

	for i := range packages {
		pkg := &packages[i]
		cfg, err := marshalJSON(pkg.Config)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO packages (
            tenant_id, media_buy_id, package_id, product_id, impressions, cpm, delivery_type, format_ids, package_config)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			pkg.TenantID, pkg.MediaBuyID, pkg.PackageID, pkg.ProductID, pkg.Impressions,
			pkg.CPM, pkg.DeliveryType, pq.Array(pkg.FormatIDs), cfg)
		if err != nil {
			return fmt.Errorf("insert package %s: %w", pkg.PackageID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit media buy: %w", err)
	}
	return nil
}

const mediaBuyColumns = `media_buy_id, tenant_id, principal_id, order_name, advertiser_name, budget, start_date, end_date, status, raw_request, ad_server_order_id, created_at, updated_at`

func (p *Postgres) GetMediaBuy(ctx context.Context, tenantID, mediaBuyID string) (*models.MediaBuy, error) {
	row := p.DB.QueryRowContext(ctx, `SELECT `+mediaBuyColumns+` FROM media_buys WHERE tenant_id=$1 AND media_buy_id=$2`, tenantID, mediaBuyID)
	var mb models.MediaBuy
	var advertiser, orderID sql.NullString
	var raw []byte
	err := row.Scan(&mb.MediaBuyID, &mb.TenantID, &mb.PrincipalID, &mb.OrderName, &advertiser,
		&mb.Budget, &mb.StartDate, &mb.EndDate, &mb.Status, &raw, &orderID, &mb.CreatedAt, &mb.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("scan media buy: %w", err)
	}
	if advertiser.Valid {
		mb.AdvertiserName = advertiser.String
	}
	if orderID.Valid {
		mb.AdServerOrderID = orderID.String
	}
	mb.RawRequest = raw
	return &mb, nil
}

func (p *Postgres) UpdateMediaBuy(ctx context.Context, mb *models.MediaBuy) error {
	res, err := p.DB.ExecContext(ctx, `UPDATE media_buys SET
        order_name=$1, advertiser_name=$2, budget=$3, start_date=$4, end_date=$5,
        status=$6, ad_server_order_id=$7, updated_at=NOW()
        WHERE tenant_id=$8 AND media_buy_id=$9`,
		mb.OrderName, mb.AdvertiserName, mb.Budget, mb.StartDate, mb.EndDate,
		mb.Status, mb.AdServerOrderID, mb.TenantID, mb.MediaBuyID)
	if err != nil {
		return fmt.Errorf("update media buy: %w", err)
	}
	return requireRow(res)
}

func (p *Postgres) UpdateMediaBuyStatus(ctx context.Context, tenantID, mediaBuyID, status string) error {
	res, err := p.DB.ExecContext(ctx, `UPDATE media_buys SET status=$1, updated_at=NOW() WHERE tenant_id=$2 AND media_buy_id=$3`,
		status, tenantID, mediaBuyID)
	if err != nil {
		return fmt.Errorf("update media buy status: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

const packageColumns = `tenant_id, media_buy_id, package_id, product_id, impressions, cpm, delivery_type, format_ids, package_config`

func scanPackage(scan func(dest ...any) error) (*models.Package, error) {
	var pkg models.Package
	var formats []string
	var cfg []byte
	err := scan(&pkg.TenantID, &pkg.MediaBuyID, &pkg.PackageID, &pkg.ProductID,
		&pkg.Impressions, &pkg.CPM, &pkg.DeliveryType, pq.Array(&formats), &cfg)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("scan package: %w", err)
	}
	pkg.FormatIDs = formats
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &pkg.Config); err != nil {
			return nil, fmt.Errorf("parse package config: %w", err)
		}
	}
	return &pkg, nil
}

func (p *Postgres) ListPackages(ctx context.Context, tenantID, mediaBuyID string) ([]models.Package, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT `+packageColumns+` FROM packages WHERE tenant_id=$1 AND media_buy_id=$2 ORDER BY package_id`, tenantID, mediaBuyID)
	if err != nil {
		return nil, fmt.Errorf("query packages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Package
	for rows.Next() {
		pkg, err := scanPackage(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *pkg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, models.ErrNotFound
	}
	return out, nil
}

func (p *Postgres) GetPackage(ctx context.Context, tenantID, mediaBuyID, packageID string) (*models.Package, error) {
	row := p.DB.QueryRowContext(ctx, `SELECT `+packageColumns+` FROM packages WHERE tenant_id=$1 AND media_buy_id=$2 AND package_id=$3`,
		tenantID, mediaBuyID, packageID)
	return scanPackage(row.Scan)
}

func (p *Postgres) UpdatePackageConfig(ctx context.Context, tenantID, mediaBuyID, packageID string, cfg models.PackageConfig) error {
	blob, err := marshalJSON(cfg)
	if err != nil {
		return err
	}
	res, err := p.DB.ExecContext(ctx, `UPDATE packages SET package_config=$1 WHERE tenant_id=$2 AND media_buy_id=$3 AND package_id=$4`,
		blob, tenantID, mediaBuyID, packageID)
	if err != nil {
		return fmt.Errorf("update package config: %w", err)
	}
	return requireRow(res)
}

// ===== Creatives =====

// InsertCreatives persists a submission batch in one transaction.
func (p *Postgres) InsertCreatives(ctx context.Context, creatives []models.Creative) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range creatives {
		c := &creatives[i]
		tmplVars, err := marshalJSON(c.TemplateVariables)
		if err != nil {
			return err
		}
		tracking, err := marshalJSON(c.TrackingEvents)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO creatives (
            tenant_id, creative_id, principal_id, media_buy_id, name, format,
            snippet, snippet_type, template_variables, media_url, media_data,
            click_url, width, height, duration_seconds, tracking_events,
            package_assignments, ad_server_creative_id, status, status_detail)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
			c.TenantID, c.CreativeID, c.PrincipalID, c.MediaBuyID, c.Name, c.Format,
			c.Snippet, c.SnippetType, tmplVars, c.MediaURL, c.MediaData,
			c.ClickURL, c.Width, c.Height, c.DurationSeconds, tracking,
			pq.Array(c.PackageAssignments), c.AdServerCreativeID, c.Status, c.StatusDetail)
		if err != nil {
			return fmt.Errorf("insert creative %s: %w", c.CreativeID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit creatives: %w", err)
	}
	return nil
}

const creativeColumns = `tenant_id, creative_id, principal_id, media_buy_id, name, format, snippet, snippet_type, template_variables, media_url, media_data, click_url, width, height, duration_seconds, tracking_events, package_assignments, ad_server_creative_id, status, status_detail, created_at`

func scanCreative(scan func(dest ...any) error) (*models.Creative, error) {
	var c models.Creative
	var format, snippet, snippetType, mediaURL, clickURL, adServerID, detail sql.NullString
	var width, height sql.NullInt64
	var duration sql.NullFloat64
	var tmplVars, tracking []byte
	var assignments []string
	err := scan(&c.TenantID, &c.CreativeID, &c.PrincipalID, &c.MediaBuyID, &c.Name, &format,
		&snippet, &snippetType, &tmplVars, &mediaURL, &c.MediaData, &clickURL,
		&width, &height, &duration, &tracking, pq.Array(&assignments), &adServerID,
		&c.Status, &detail, &c.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("scan creative: %w", err)
	}
	c.Format = format.String
	c.Snippet = snippet.String
	c.SnippetType = snippetType.String
	c.MediaURL = mediaURL.String
	c.ClickURL = clickURL.String
	c.AdServerCreativeID = adServerID.String
	c.StatusDetail = detail.String
	c.Width = int(width.Int64)
	c.Height = int(height.Int64)
	if duration.Valid {
		c.DurationSeconds = &duration.Float64
	}
	c.PackageAssignments = assignments
	if len(tmplVars) > 0 {
		if err := json.Unmarshal(tmplVars, &c.TemplateVariables); err != nil {
			return nil, fmt.Errorf("parse template variables: %w", err)
		}
	}
	if len(tracking) > 0 {
		if err := json.Unmarshal(tracking, &c.TrackingEvents); err != nil {
			return nil, fmt.Errorf("parse tracking events: %w", err)
		}
	}
	return &c, nil
}

func (p *Postgres) GetCreative(ctx context.Context, tenantID, creativeID string) (*models.Creative, error) {
	row := p.DB.QueryRowContext(ctx, `SELECT `+creativeColumns+` FROM creatives WHERE tenant_id=$1 AND creative_id=$2`, tenantID, creativeID)
	return scanCreative(row.Scan)
}

func (p *Postgres) ListCreativesByMediaBuy(ctx context.Context, tenantID, mediaBuyID string) ([]models.Creative, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT `+creativeColumns+` FROM creatives WHERE tenant_id=$1 AND media_buy_id=$2 ORDER BY creative_id`, tenantID, mediaBuyID)
	if err != nil {
		return nil, fmt.Errorf("query creatives: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Creative
	for rows.Next() {
		c, err := scanCreative(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateCreativeStatus(ctx context.Context, tenantID, creativeID, status, detail, adServerID string) error {
	res, err := p.DB.ExecContext(ctx, `UPDATE creatives SET status=$1, status_detail=$2,
        ad_server_creative_id=COALESCE(NULLIF($3,''), ad_server_creative_id)
        WHERE tenant_id=$4 AND creative_id=$5`,
		status, detail, adServerID, tenantID, creativeID)
	if err != nil {
		return fmt.Errorf("update creative status: %w", err)
	}
	return requireRow(res)
}

// ===== Tasks =====

func (p *Postgres) InsertTask(ctx context.Context, t *models.Task) error {
	details, err := marshalJSON(t.Details)
	if err != nil {
		return err
	}
	_, err = p.DB.ExecContext(ctx, `INSERT INTO tasks (tenant_id, task_id, principal_id, media_buy_id, task_type, status, details)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		t.TenantID, t.TaskID, t.PrincipalID, t.MediaBuyID, t.TaskType, t.Status, details)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

const taskColumns = `tenant_id, task_id, principal_id, media_buy_id, task_type, status, details, created_at, completed_at`

func scanTask(scan func(dest ...any) error) (*models.Task, error) {
	var t models.Task
	var principalID, mediaBuyID sql.NullString
	var details []byte
	var completed sql.NullTime
	err := scan(&t.TenantID, &t.TaskID, &principalID, &mediaBuyID, &t.TaskType, &t.Status, &details, &t.CreatedAt, &completed)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	t.PrincipalID = principalID.String
	t.MediaBuyID = mediaBuyID.String
	if completed.Valid {
		t.CompletedAt = &completed.Time
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &t.Details); err != nil {
			return nil, fmt.Errorf("parse task details: %w", err)
		}
	}
	return &t, nil
}

func (p *Postgres) GetTask(ctx context.Context, tenantID, taskID string) (*models.Task, error) {
	row := p.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE tenant_id=$1 AND task_id=$2`, tenantID, taskID)
	return scanTask(row.Scan)
}

func (p *Postgres) UpdateTaskStatus(ctx context.Context, tenantID, taskID, status string) error {
	res, err := p.DB.ExecContext(ctx, `UPDATE tasks SET status=$1,
        completed_at=CASE WHEN $1 IN ('completed','failed') THEN NOW() ELSE completed_at END
        WHERE tenant_id=$2 AND task_id=$3`,
		status, tenantID, taskID)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return requireRow(res)
}

func (p *Postgres) ListTasksByMediaBuy(ctx context.Context, tenantID, mediaBuyID string) ([]models.Task, error) {
	return p.listTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE tenant_id=$1 AND media_buy_id=$2 ORDER BY created_at`, tenantID, mediaBuyID)
}

func (p *Postgres) ListOverdueTasks(ctx context.Context, tenantID string, now time.Time) ([]models.Task, error) {
	cutoff := now.Add(-models.OverdueAfter)
	return p.listTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE tenant_id=$1 AND status='pending' AND created_at < $2 ORDER BY created_at`, tenantID, cutoff)
}

func (p *Postgres) listTasks(ctx context.Context, query string, args ...any) ([]models.Task, error) {
	rows, err := p.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// ===== Conversation contexts =====

const contextColumns = `tenant_id, context_id, principal_id, protocol, state, created_at, last_active`

func scanContext(row *sql.Row) (*models.ConversationContext, error) {
	var c models.ConversationContext
	var state []byte
	if err := row.Scan(&c.TenantID, &c.ContextID, &c.PrincipalID, &c.Protocol, &state, &c.CreatedAt, &c.LastActive); err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("scan context: %w", err)
	}
	if len(state) > 0 {
		if err := json.Unmarshal(state, &c.State); err != nil {
			return nil, fmt.Errorf("parse context state: %w", err)
		}
	}
	return &c, nil
}

func (p *Postgres) GetContext(ctx context.Context, tenantID, contextID string) (*models.ConversationContext, error) {
	row := p.DB.QueryRowContext(ctx, `SELECT `+contextColumns+` FROM contexts WHERE tenant_id=$1 AND context_id=$2`, tenantID, contextID)
	return scanContext(row)
}

func (p *Postgres) FindContext(ctx context.Context, tenantID, principalID, protocol string) (*models.ConversationContext, error) {
	row := p.DB.QueryRowContext(ctx, `SELECT `+contextColumns+` FROM contexts
        WHERE tenant_id=$1 AND principal_id=$2 AND protocol=$3
        ORDER BY last_active DESC LIMIT 1`, tenantID, principalID, protocol)
	return scanContext(row)
}

func (p *Postgres) UpsertContext(ctx context.Context, c *models.ConversationContext) error {
	state, err := marshalJSON(c.State)
	if err != nil {
		return err
	}
	_, err = p.DB.ExecContext(ctx, `INSERT INTO contexts (tenant_id, context_id, principal_id, protocol, state, last_active)
        VALUES ($1,$2,$3,$4,$5,NOW())
        ON CONFLICT (tenant_id, context_id) DO UPDATE SET state=EXCLUDED.state, last_active=NOW()`,
		c.TenantID, c.ContextID, c.PrincipalID, c.Protocol, state)
	if err != nil {
		return fmt.Errorf("upsert context: %w", err)
	}
	return nil
}

func (p *Postgres) AppendMessage(ctx context.Context, tenantID string, m *models.Message) error {
	metadata, err := marshalJSON(m.Metadata)
	if err != nil {
		return err
	}
	_, err = p.DB.ExecContext(ctx, `INSERT INTO messages (id, tenant_id, context_id, role, content, ts, metadata)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		m.ID, tenantID, m.ContextID, m.Role, m.Content, m.Timestamp, metadata)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (p *Postgres) ListMessages(ctx context.Context, tenantID, contextID string, limit, offset int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.DB.QueryContext(ctx, `SELECT id, context_id, role, content, ts, metadata FROM messages
        WHERE tenant_id=$1 AND context_id=$2 ORDER BY seq LIMIT $3 OFFSET $4`,
		tenantID, contextID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Message
	for rows.Next() {
		var m models.Message
		var metadata []byte
		if err := rows.Scan(&m.ID, &m.ContextID, &m.Role, &m.Content, &m.Timestamp, &metadata); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
				return nil, fmt.Errorf("parse message metadata: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) ClearMessages(ctx context.Context, tenantID, contextID string) error {
	_, err := p.DB.ExecContext(ctx, `DELETE FROM messages WHERE tenant_id=$1 AND context_id=$2`, tenantID, contextID)
	if err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	return nil
}

// ===== Audit =====

// InsertAuditRecord appends one audit entry. The audit log is append-only;
// there is no update or delete path.
func (p *Postgres) InsertAuditRecord(ctx context.Context, r models.AuditRecord) error {
	details, err := marshalJSON(r.Details)
	if err != nil {
		return err
	}
	_, err = p.DB.ExecContext(ctx, `INSERT INTO audit_log (ts, tenant_id, principal_id, operation, success, details, error)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		r.Timestamp, r.TenantID, r.PrincipalID, r.Operation, r.Success, details, r.Error)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// ===== Sync jobs =====

// TryStartSyncJob inserts a running sync job. The partial unique index on
// (tenant_id, sync_type) WHERE status='running' makes this a conditional
// insert; a second concurrent trigger returns models.ErrConflict.
func (p *Postgres) TryStartSyncJob(ctx context.Context, job *models.SyncJob) error {
	summary, err := marshalJSON(job.Summary)
	if err != nil {
		return err
	}
	_, err = p.DB.ExecContext(ctx, `INSERT INTO sync_jobs (tenant_id, sync_id, sync_type, status, started_at, summary)
        VALUES ($1,$2,$3,$4,$5,$6)`,
		job.TenantID, job.SyncID, job.SyncType, job.Status, job.StartedAt, summary)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return models.ErrConflict
		}
		return fmt.Errorf("insert sync job: %w", err)
	}
	return nil
}

func (p *Postgres) FinishSyncJob(ctx context.Context, job *models.SyncJob) error {
	summary, err := marshalJSON(job.Summary)
	if err != nil {
		return err
	}
	res, err := p.DB.ExecContext(ctx, `UPDATE sync_jobs SET status=$1, completed_at=$2, summary=$3, error_message=$4
        WHERE tenant_id=$5 AND sync_id=$6`,
		job.Status, job.CompletedAt, summary, job.ErrorMessage, job.TenantID, job.SyncID)
	if err != nil {
		return fmt.Errorf("finish sync job: %w", err)
	}
	return requireRow(res)
}

const syncJobColumns = `tenant_id, sync_id, sync_type, status, started_at, completed_at, summary, error_message`

func scanSyncJob(scan func(dest ...any) error) (*models.SyncJob, error) {
	var j models.SyncJob
	var completed sql.NullTime
	var errMsg sql.NullString
	var summary []byte
	err := scan(&j.TenantID, &j.SyncID, &j.SyncType, &j.Status, &j.StartedAt, &completed, &summary, &errMsg)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("scan sync job: %w", err)
	}
	if completed.Valid {
		j.CompletedAt = &completed.Time
	}
	j.ErrorMessage = errMsg.String
	if len(summary) > 0 {
		if err := json.Unmarshal(summary, &j.Summary); err != nil {
			return nil, fmt.Errorf("parse sync summary: %w", err)
		}
	}
	return &j, nil
}

func (p *Postgres) GetSyncJob(ctx context.Context, tenantID, syncID string) (*models.SyncJob, error) {
	row := p.DB.QueryRowContext(ctx, `SELECT `+syncJobColumns+` FROM sync_jobs WHERE tenant_id=$1 AND sync_id=$2`, tenantID, syncID)
	return scanSyncJob(row.Scan)
}

func (p *Postgres) ListSyncJobs(ctx context.Context, tenantID string, limit, offset int, statusFilter string) ([]models.SyncJob, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + syncJobColumns + ` FROM sync_jobs WHERE tenant_id=$1`
	args := []any{tenantID}
	if statusFilter != "" {
		query += ` AND status=$2 ORDER BY started_at DESC LIMIT $3 OFFSET $4`
		args = append(args, statusFilter, limit, offset)
	} else {
		query += ` ORDER BY started_at DESC LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}
	rows, err := p.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sync jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.SyncJob
	for rows.Next() {
		j, err := scanSyncJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func (p *Postgres) LatestSyncJob(ctx context.Context, tenantID, syncType string) (*models.SyncJob, error) {
	row := p.DB.QueryRowContext(ctx, `SELECT `+syncJobColumns+` FROM sync_jobs
        WHERE tenant_id=$1 AND sync_type=$2 ORDER BY started_at DESC LIMIT 1`, tenantID, syncType)
	return scanSyncJob(row.Scan)
}

// ===== Gateway keys =====

// GetGatewayKey reads a named server-level secret (e.g. the super-admin
// API key).
func (p *Postgres) GetGatewayKey(ctx context.Context, name string) (string, error) {
	var v string
	err := p.DB.QueryRowContext(ctx, `SELECT value FROM gateway_keys WHERE name=$1`, name).Scan(&v)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", models.ErrNotFound
		}
		return "", fmt.Errorf("get gateway key: %w", err)
	}
	return v, nil
}

// PutGatewayKeyIfAbsent stores a named secret only if it does not already
// exist and returns the stored value either way.
func (p *Postgres) PutGatewayKeyIfAbsent(ctx context.Context, name, value string) (string, error) {
	_, err := p.DB.ExecContext(ctx, `INSERT INTO gateway_keys (name, value) VALUES ($1,$2) ON CONFLICT (name) DO NOTHING`, name, value)
	if err != nil {
		return "", fmt.Errorf("put gateway key: %w", err)
	}
	return p.GetGatewayKey(ctx, name)
}
