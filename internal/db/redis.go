package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/openadsales/gateway/internal/models"
)

// InitRedis connects to Redis and instruments the client for tracing.
func InitRedis(addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if err := redisotel.InstrumentTracing(client); err != nil {
		zap.L().Warn("redis tracing instrumentation failed", zap.Error(err))
	}
	return client, nil
}

// ConversationCache is a Redis write-through cache for conversation
// messages. Postgres remains the source of truth; cache misses and cache
// errors fall back to the store.
type ConversationCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewConversationCache(client *redis.Client, ttl time.Duration) *ConversationCache {
	return &ConversationCache{Client: client, TTL: ttl}
}

func messageKey(tenantID, contextID string) string {
	return fmt.Sprintf("ctx:%s:%s:messages", tenantID, contextID)
}

// Append pushes a message onto the cached transcript and refreshes the TTL.
func (c *ConversationCache) Append(ctx context.Context, tenantID string, m *models.Message) error {
	if c == nil || c.Client == nil {
		return nil
	}
	blob, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal cached message: %w", err)
	}
	key := messageKey(tenantID, m.ContextID)
	pipe := c.Client.TxPipeline()
	pipe.RPush(ctx, key, blob)
	pipe.Expire(ctx, key, c.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache message append: %w", err)
	}
	return nil
}

// Messages returns the cached transcript, or nil when the key is absent.
func (c *ConversationCache) Messages(ctx context.Context, tenantID, contextID string) ([]models.Message, error) {
	if c == nil || c.Client == nil {
		return nil, nil
	}
	raw, err := c.Client.LRange(ctx, messageKey(tenantID, contextID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("cache message read: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]models.Message, 0, len(raw))
	for _, item := range raw {
		var m models.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("parse cached message: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

// Clear drops the cached transcript for a context.
func (c *ConversationCache) Clear(ctx context.Context, tenantID, contextID string) error {
	if c == nil || c.Client == nil {
		return nil
	}
	if err := c.Client.Del(ctx, messageKey(tenantID, contextID)).Err(); err != nil {
		return fmt.Errorf("cache message clear: %w", err)
	}
	return nil
}

// SyncLock is a short-lived distributed lock used to debounce inventory
// sync triggers across gateway replicas. The database unique index is the
// real mutual exclusion; this only cuts down on duplicate trigger noise.
type SyncLock struct {
	Client *redis.Client
}

func NewSyncLock(client *redis.Client) *SyncLock {
	return &SyncLock{Client: client}
}

// Acquire takes the lock for the given tenant and sync type. It returns
// false when another replica already holds it.
func (l *SyncLock) Acquire(ctx context.Context, tenantID, syncType string, ttl time.Duration) (bool, error) {
	if l == nil || l.Client == nil {
		return true, nil
	}
	key := fmt.Sprintf("synclock:%s:%s", tenantID, syncType)
	ok, err := l.Client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("sync lock acquire: %w", err)
	}
	return ok, nil
}

// Release frees the lock early once the sync job row is committed.
func (l *SyncLock) Release(ctx context.Context, tenantID, syncType string) {
	if l == nil || l.Client == nil {
		return
	}
	key := fmt.Sprintf("synclock:%s:%s", tenantID, syncType)
	if err := l.Client.Del(ctx, key).Err(); err != nil {
		zap.L().Warn("sync lock release failed", zap.Error(err), zap.String("tenant_id", tenantID))
	}
}
