// Package conversation manages per-principal conversation contexts and
// message transcripts.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openadsales/gateway/internal/db"
	"github.com/openadsales/gateway/internal/models"
	"github.com/openadsales/gateway/internal/observability"
)

// Manager owns conversation contexts. The store is the source of truth;
// Redis is a write-through transcript cache with a short TTL. Writes to
// the same context are serialized; reads are not blocked.
type Manager struct {
	store   models.Store
	cache   *db.ConversationCache
	metrics observability.MetricsRegistry
	logger  *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewManager(store models.Store, cache *db.ConversationCache, metrics observability.MetricsRegistry, logger *zap.Logger) *Manager {
	return &Manager{
		store:   store,
		cache:   cache,
		metrics: metrics,
		logger:  logger.Named("conversation"),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (m *Manager) contextLock(tenantID, contextID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tenantID + "/" + contextID
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// GetOrCreate resolves the context for (tenant, principal, protocol),
// honoring an explicit contextID when given. Unknown explicit IDs are
// lazily created rather than rejected. A context owned by a different
// principal reads as not found; existence is never disclosed across
// principals.
func (m *Manager) GetOrCreate(ctx context.Context, tenantID, principalID, protocol, contextID string) (*models.ConversationContext, error) {
	if contextID != "" {
		c, err := m.store.GetContext(ctx, tenantID, contextID)
		if err == nil {
			if c.PrincipalID != principalID {
				return nil, fmt.Errorf("context %s: %w", contextID, models.ErrNotFound)
			}
			return c, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("get context: %w", err)
		}
		return m.create(ctx, tenantID, principalID, protocol, contextID)
	}

	c, err := m.store.FindContext(ctx, tenantID, principalID, protocol)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("find context: %w", err)
	}
	return m.create(ctx, tenantID, principalID, protocol, "ctx_"+uuid.NewString())
}

func (m *Manager) create(ctx context.Context, tenantID, principalID, protocol, contextID string) (*models.ConversationContext, error) {
	now := time.Now().UTC()
	c := &models.ConversationContext{
		ContextID:   contextID,
		TenantID:    tenantID,
		PrincipalID: principalID,
		Protocol:    protocol,
		State:       map[string]any{},
		CreatedAt:   now,
		LastActive:  now,
	}
	if err := m.store.UpsertContext(ctx, c); err != nil {
		return nil, fmt.Errorf("create context: %w", err)
	}
	return c, nil
}

// Append persists a message and write-through caches it. The store write
// must succeed; a cache failure is logged and ignored.
func (m *Manager) Append(ctx context.Context, tenantID, contextID, role, content string, metadata map[string]any) (*models.Message, error) {
	lock := m.contextLock(tenantID, contextID)
	lock.Lock()
	defer lock.Unlock()

	msg := &models.Message{
		ID:        "msg_" + uuid.NewString(),
		ContextID: contextID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
	if err := m.store.AppendMessage(ctx, tenantID, msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	m.metrics.IncrementMessages(role)

	if err := m.cache.Append(ctx, tenantID, msg); err != nil {
		m.logger.Warn("message cache write failed",
			zap.String("tenant_id", tenantID),
			zap.String("context_id", contextID),
			zap.Error(err))
	}
	return msg, nil
}

// Messages returns the transcript in insertion order: persisted messages
// unioned with any cached entries the store has not yet seen.
func (m *Manager) Messages(ctx context.Context, tenantID, contextID string, limit, offset int) ([]models.Message, error) {
	persisted, err := m.store.ListMessages(ctx, tenantID, contextID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	cached, err := m.cache.Messages(ctx, tenantID, contextID)
	if err != nil {
		m.logger.Warn("message cache read failed",
			zap.String("context_id", contextID), zap.Error(err))
		return persisted, nil
	}
	if len(cached) == 0 {
		return persisted, nil
	}

	seen := make(map[string]struct{}, len(persisted))
	for _, msg := range persisted {
		seen[msg.ID] = struct{}{}
	}
	out := persisted
	for _, msg := range cached {
		if _, ok := seen[msg.ID]; ok {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, msg)
	}
	return out, nil
}

// Clear empties the transcript while preserving the context ID. Only the
// owning principal may clear a context.
func (m *Manager) Clear(ctx context.Context, tenantID, principalID, contextID string) error {
	lock := m.contextLock(tenantID, contextID)
	lock.Lock()
	defer lock.Unlock()

	c, err := m.store.GetContext(ctx, tenantID, contextID)
	if err != nil {
		return fmt.Errorf("get context: %w", err)
	}
	if c.PrincipalID != principalID {
		return fmt.Errorf("context %s: %w", contextID, models.ErrNotFound)
	}
	if err := m.store.ClearMessages(ctx, tenantID, contextID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	if err := m.cache.Clear(ctx, tenantID, contextID); err != nil {
		m.logger.Warn("message cache clear failed",
			zap.String("context_id", contextID), zap.Error(err))
	}
	if err := m.store.UpsertContext(ctx, c); err != nil {
		return fmt.Errorf("touch context: %w", err)
	}
	return nil
}
