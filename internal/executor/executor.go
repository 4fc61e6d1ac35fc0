// Package executor implements every sales operation once, independent of
// the wire protocol that carries it. Facades parse requests, resolve the
// tenant and principal, and call into this package.
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/openadsales/gateway/internal/adapters"
	"github.com/openadsales/gateway/internal/analytics"
	"github.com/openadsales/gateway/internal/audit"
	"github.com/openadsales/gateway/internal/auth"
	"github.com/openadsales/gateway/internal/catalog"
	"github.com/openadsales/gateway/internal/conversation"
	"github.com/openadsales/gateway/internal/models"
	"github.com/openadsales/gateway/internal/notify"
	"github.com/openadsales/gateway/internal/observability"
)

// TaskResult statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Error codes surfaced in TaskResult.Error.
const (
	ErrCodeNotAuthenticated = "NOT_AUTHENTICATED"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeValidation       = "VALIDATION"
	ErrCodePolicyRejected   = "POLICY_REJECTED"
	ErrCodeUnsupported      = "UNSUPPORTED"
	ErrCodeUpstream         = "UPSTREAM"
)

// TaskResult is the uniform outcome of an executor operation. Expected
// business failures come back as Status=failed with an error code;
// contract violations return a Go error instead.
type TaskResult struct {
	TaskID  string         `json:"task_id,omitempty"`
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func completed(message string, data map[string]any) *TaskResult {
	return &TaskResult{Status: StatusCompleted, Message: message, Data: data}
}

func failed(code, message string) *TaskResult {
	return &TaskResult{Status: StatusFailed, Message: message, Error: code}
}

// Executor wires the domain services together. One instance serves all
// tenants; per-request identity travels on the context.
type Executor struct {
	store    models.Store
	catalog  catalog.Provider
	convos   *conversation.Manager
	registry *adapters.Registry
	delivery analytics.Service
	audit    *audit.Logger
	notifier notify.Notifier
	metrics  observability.MetricsRegistry
	logger   *zap.Logger
	validate *validator.Validate
}

// Config collects the executor's collaborators.
type Config struct {
	Store    models.Store
	Catalog  catalog.Provider
	Convos   *conversation.Manager
	Registry *adapters.Registry
	Delivery analytics.Service
	Audit    *audit.Logger
	Notifier notify.Notifier
	Metrics  observability.MetricsRegistry
	Logger   *zap.Logger
}

func New(cfg Config) *Executor {
	return &Executor{
		store:    cfg.Store,
		catalog:  cfg.Catalog,
		convos:   cfg.Convos,
		registry: cfg.Registry,
		delivery: cfg.Delivery,
		audit:    cfg.Audit,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.Named("executor"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// identity reads the tenant and principal the facade stored on the
// context. Operations must not run without both.
func (e *Executor) identity(ctx context.Context) (*models.Tenant, *models.Principal, error) {
	tenant, ok := auth.TenantFrom(ctx)
	if !ok {
		return nil, nil, errors.New("no tenant on request context")
	}
	principal, ok := auth.PrincipalFrom(ctx)
	if !ok {
		return nil, nil, errors.New("no principal on request context")
	}
	return tenant, principal, nil
}

// finish records the operation outcome in metrics and the audit trail.
func (e *Executor) finish(ctx context.Context, tenant *models.Tenant, principal *models.Principal, operation string, res *TaskResult, details map[string]any) {
	e.metrics.IncrementOperation(operation, res.Status)
	var opErr error
	if res.Status == StatusFailed {
		opErr = fmt.Errorf("%s: %s", res.Error, res.Message)
	}
	e.audit.Record(ctx, tenant.TenantID, principal.PrincipalID, operation, res.Status != StatusFailed, details, opErr)
}

// validationFailed converts a validator error into a failed TaskResult.
func validationFailed(err error) *TaskResult {
	return failed(ErrCodeValidation, fmt.Sprintf("invalid request: %v", err))
}

// ownedMediaBuy loads a media buy and enforces principal ownership. Admin
// principals may act on any media buy within their tenant.
func (e *Executor) ownedMediaBuy(ctx context.Context, tenant *models.Tenant, principal *models.Principal, mediaBuyID string) (*models.MediaBuy, *TaskResult) {
	mb, err := e.store.GetMediaBuy(ctx, tenant.TenantID, mediaBuyID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, failed(ErrCodeNotFound, fmt.Sprintf("media buy %s not found", mediaBuyID))
		}
		return nil, failed(ErrCodeUpstream, fmt.Sprintf("load media buy: %v", err))
	}
	if mb.PrincipalID != principal.PrincipalID && !principal.IsAdmin {
		return nil, failed(ErrCodeUnauthorized,
			fmt.Sprintf("principal %s does not own media buy %s", principal.PrincipalID, mediaBuyID))
	}
	return mb, nil
}

func (e *Executor) adapterFor(tenant *models.Tenant) (adapters.Adapter, *TaskResult) {
	a, err := e.registry.ForTenant(tenant)
	if err != nil {
		return nil, failed(ErrCodeUpstream, fmt.Sprintf("ad server adapter unavailable: %v", err))
	}
	return a, nil
}
