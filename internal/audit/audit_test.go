package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openadsales/gateway/internal/observability"
)

func newTestLogger() (*Logger, *MemorySink) {
	sink := &MemorySink{}
	return NewLogger(sink, &observability.MockMetricsRegistry{}, zap.NewNop()), sink
}

func TestRecordMergesCallerDetails(t *testing.T) {
	l, sink := newTestLogger()

	ctx := WithCallerDetails(context.Background(), map[string]any{
		"request_id": "req_1",
		"remote_ip":  "203.0.113.7",
		"country":    "US",
	})
	l.Record(ctx, "pub1", "buyer_1", "create_media_buy", true,
		map[string]any{"media_buy_id": "mb_1"}, nil)

	recs := sink.All()
	require.Len(t, recs, 1)
	assert.Equal(t, "pub1", recs[0].TenantID)
	assert.Equal(t, "mb_1", recs[0].Details["media_buy_id"])
	assert.Equal(t, "req_1", recs[0].Details["request_id"])
	assert.Equal(t, "203.0.113.7", recs[0].Details["remote_ip"])
	assert.Equal(t, "US", recs[0].Details["country"])
}

func TestRecordOperationDetailsWinOnCollision(t *testing.T) {
	l, sink := newTestLogger()

	ctx := WithCallerDetails(context.Background(), map[string]any{"country": "US"})
	l.Record(ctx, "pub1", "buyer_1", "get_products", true,
		map[string]any{"country": "CA"}, nil)

	recs := sink.All()
	require.Len(t, recs, 1)
	assert.Equal(t, "CA", recs[0].Details["country"])
}

func TestRecordWithoutCallerDetails(t *testing.T) {
	l, sink := newTestLogger()

	l.Record(context.Background(), "pub1", "buyer_1", "context/clear", false,
		nil, errors.New("NOT_FOUND: context ctx_1 not found"))

	recs := sink.All()
	require.Len(t, recs, 1)
	assert.False(t, recs[0].Success)
	assert.Nil(t, recs[0].Details)
	assert.Contains(t, recs[0].Error, "NOT_FOUND")
}
