// Package audit appends an immutable record per security-relevant
// operation.
package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openadsales/gateway/internal/models"
	"github.com/openadsales/gateway/internal/observability"
)

type callerDetailsKey struct{}

// WithCallerDetails attaches request-level caller facts (remote IP,
// browser and device class, country) to the context. Record folds them
// into the details of every entry written under this context.
func WithCallerDetails(ctx context.Context, details map[string]any) context.Context {
	if len(details) == 0 {
		return ctx
	}
	return context.WithValue(ctx, callerDetailsKey{}, details)
}

func callerDetails(ctx context.Context) map[string]any {
	details, _ := ctx.Value(callerDetailsKey{}).(map[string]any)
	return details
}

// Sink persists audit records. The Postgres store implements this.
type Sink interface {
	InsertAuditRecord(ctx context.Context, r models.AuditRecord) error
}

// Logger writes audit records after an operation's outcome is known.
// Writes are best-effort: a failure increments a metric and logs a
// warning but never fails the operation.
type Logger struct {
	sink    Sink
	metrics observability.MetricsRegistry
	logger  *zap.Logger
}

func NewLogger(sink Sink, metrics observability.MetricsRegistry, logger *zap.Logger) *Logger {
	return &Logger{sink: sink, metrics: metrics, logger: logger.Named("audit")}
}

// Record appends one audit entry. Caller details on the context are
// merged under the operation's own details; on a key collision the
// operation wins.
func (l *Logger) Record(ctx context.Context, tenantID, principalID, operation string, success bool, details map[string]any, opErr error) {
	if caller := callerDetails(ctx); len(caller) > 0 {
		merged := make(map[string]any, len(caller)+len(details))
		for k, v := range caller {
			merged[k] = v
		}
		for k, v := range details {
			merged[k] = v
		}
		details = merged
	}
	rec := models.AuditRecord{
		Timestamp:   time.Now().UTC(),
		TenantID:    tenantID,
		PrincipalID: principalID,
		Operation:   operation,
		Success:     success,
		Details:     details,
	}
	if opErr != nil {
		rec.Error = opErr.Error()
	}
	if err := l.sink.InsertAuditRecord(ctx, rec); err != nil {
		l.metrics.IncrementAuditWriteErrors()
		l.logger.Warn("audit record not persisted",
			zap.String("tenant_id", tenantID),
			zap.String("operation", operation),
			zap.Error(err))
	}
}

// MemorySink collects audit records in memory for tests.
type MemorySink struct {
	mu      sync.Mutex
	Records []models.AuditRecord
}

func (s *MemorySink) InsertAuditRecord(_ context.Context, r models.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Records = append(s.Records, r)
	return nil
}

// All returns a copy of the collected records.
func (s *MemorySink) All() []models.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AuditRecord, len(s.Records))
	copy(out, s.Records)
	return out
}
