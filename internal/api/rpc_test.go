package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openadsales/gateway/internal/adapters"
	"github.com/openadsales/gateway/internal/adapters/mock"
	"github.com/openadsales/gateway/internal/analytics"
	"github.com/openadsales/gateway/internal/audit"
	"github.com/openadsales/gateway/internal/auth"
	"github.com/openadsales/gateway/internal/catalog"
	"github.com/openadsales/gateway/internal/config"
	"github.com/openadsales/gateway/internal/conversation"
	"github.com/openadsales/gateway/internal/executor"
	"github.com/openadsales/gateway/internal/models"
	"github.com/openadsales/gateway/internal/notify"
	"github.com/openadsales/gateway/internal/observability"
)

type apiEnv struct {
	server *Server
	store  *models.MemoryStore
	sink   *audit.MemorySink
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	store := models.NewMemoryStore()
	metrics := &observability.MockMetricsRegistry{}
	logger := zap.NewNop()

	registry := adapters.NewRegistry(adapters.Deps{Store: store, Metrics: metrics, Logger: logger})
	registry.Register("mock", mock.Factory())

	sink := &audit.MemorySink{}
	exec := executor.New(executor.Config{
		Store:    store,
		Catalog:  catalog.NewDatabaseProvider(store),
		Convos:   conversation.NewManager(store, nil, metrics, logger),
		Registry: registry,
		Delivery: analytics.NewMockService(),
		Audit:    audit.NewLogger(sink, metrics, logger),
		Notifier: notify.Nop{},
		Metrics:  metrics,
		Logger:   logger,
	})

	server := NewServer(Options{
		Cfg:      &config.Config{CORSAllowedOrigins: []string{"https://agents.example.com"}},
		Store:    store,
		Auth:     auth.NewRegistry(store, logger),
		Executor: exec,
		Registry: registry,
		Metrics:  metrics,
		Logger:   logger,
	})

	env := &apiEnv{server: server, store: store, sink: sink}
	env.seed(t)
	return env
}

func (env *apiEnv) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, env.store.UpsertTenant(ctx, &models.Tenant{
		TenantID:  "pub1",
		Name:      "Publisher One",
		Subdomain: "pub1",
		IsActive:  true,
		Settings:  models.TenantSettings{AdServer: "mock"},
	}))
	require.NoError(t, env.store.UpsertPrincipal(ctx, &models.Principal{
		TenantID:    "pub1",
		PrincipalID: "buyer_1",
		Name:        "Buyer One",
		AccessToken: "tok_buyer1",
	}))
	require.NoError(t, env.store.UpsertProduct(ctx, &models.Product{
		TenantID: "pub1", ProductID: "prod_news", Name: "News Display",
		Formats: []string{"display"}, DeliveryType: models.DeliveryTypeNonGuaranteed, CPM: 5,
		ImplementationConfig: models.ImplementationConfig{
			NonGuaranteedAutomation: models.AutomationAutomatic,
		},
	}))
}

type rpcReply struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      any            `json:"id"`
	Result  map[string]any `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// rpc posts a raw JSON-RPC body with the buyer's credentials.
func (env *apiEnv) rpc(t *testing.T, body string) rpcReply {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-adcp-tenant", "pub1")
	req.Header.Set("x-adcp-auth", "tok_buyer1")
	rec := httptest.NewRecorder()
	env.server.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var reply rpcReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, "2.0", reply.JSONRPC)
	return reply
}

func (env *apiEnv) call(t *testing.T, method string, params any) rpcReply {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	require.NoError(t, err)
	return env.rpc(t, string(body))
}

func TestRPCParseError(t *testing.T) {
	env := newAPIEnv(t)

	reply := env.rpc(t, "{not json")
	require.NotNil(t, reply.Error)
	assert.Equal(t, -32700, reply.Error.Code)
}

func TestRPCInvalidEnvelope(t *testing.T) {
	env := newAPIEnv(t)

	reply := env.rpc(t, `{"jsonrpc":"1.0","id":1,"method":"get_products"}`)
	require.NotNil(t, reply.Error)
	assert.Equal(t, -32600, reply.Error.Code)

	reply = env.rpc(t, `{"jsonrpc":"2.0","id":1}`)
	require.NotNil(t, reply.Error)
	assert.Equal(t, -32600, reply.Error.Code)
}

func TestRPCAuthenticationRequired(t *testing.T) {
	env := newAPIEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/rpc",
		bytes.NewBufferString(`{"jsonrpc":"2.0","id":1,"method":"get_products"}`))
	req.Header.Set("x-adcp-tenant", "pub1")
	rec := httptest.NewRecorder()
	env.server.Router.ServeHTTP(rec, req)

	var reply rpcReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	require.NotNil(t, reply.Error)
	assert.Equal(t, -32000, reply.Error.Code)
	assert.Equal(t, "Authentication required", reply.Error.Message)
}

func TestRPCBearerHeaderAccepted(t *testing.T) {
	env := newAPIEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/rpc",
		bytes.NewBufferString(`{"jsonrpc":"2.0","id":1,"method":"get_products","params":{}}`))
	req.Header.Set("x-adcp-tenant", "pub1")
	req.Header.Set("Authorization", "Bearer tok_buyer1")
	rec := httptest.NewRecorder()
	env.server.Router.ServeHTTP(rec, req)

	var reply rpcReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Nil(t, reply.Error)
	require.NotNil(t, reply.Result)
	assert.Equal(t, "task", reply.Result["kind"])
}

func TestRPCMethodNotFound(t *testing.T) {
	env := newAPIEnv(t)

	reply := env.call(t, "frobnicate", map[string]any{})
	require.NotNil(t, reply.Error)
	assert.Equal(t, -32603, reply.Error.Code)
	assert.Equal(t, "Method not found: frobnicate", reply.Error.Message)
}

func TestRPCGetProductsRendersTask(t *testing.T) {
	env := newAPIEnv(t)

	reply := env.call(t, "get_products", map[string]any{"formats": []string{"display"}})
	require.Nil(t, reply.Error)
	res := reply.Result
	assert.Equal(t, "task", res["kind"])
	assert.NotEmpty(t, res["id"])
	assert.Equal(t, []any{}, res["history"])

	status := res["status"].(map[string]any)
	assert.Equal(t, "completed", status["state"])

	artifact := res["artifact"].(map[string]any)
	assert.NotEmpty(t, artifact["products"])

	// Policy compliance is promoted to the top level.
	assert.Contains(t, res, "policy_compliance")
}

func TestRPCFailedTaskIsStillAResult(t *testing.T) {
	env := newAPIEnv(t)

	reply := env.call(t, "get_media_buy_status", map[string]any{"media_buy_id": "mb_missing"})
	require.Nil(t, reply.Error)
	status := reply.Result["status"].(map[string]any)
	assert.Equal(t, "failed", status["state"])
	assert.Equal(t, "NOT_FOUND", status["error"])
}

func TestRPCMessageSendFlatShape(t *testing.T) {
	env := newAPIEnv(t)

	reply := env.call(t, "message/send", map[string]any{
		"content": "What display inventory do you have?",
	})
	require.Nil(t, reply.Error)
	res := reply.Result
	assert.Equal(t, "message", res["kind"])
	assert.Equal(t, "agent", res["role"])
	assert.NotEmpty(t, res["messageId"])
	assert.NotEmpty(t, res["contextId"])
	assert.NotEmpty(t, res["timestamp"])

	parts := res["parts"].([]any)
	require.NotEmpty(t, parts)
	first := parts[0].(map[string]any)
	assert.Equal(t, "text", first["kind"])
	assert.NotEmpty(t, first["text"])
}

func TestRPCMessageSendNestedShape(t *testing.T) {
	env := newAPIEnv(t)

	reply := env.call(t, "message/send", map[string]any{
		"message": map[string]any{
			"parts": []map[string]any{
				{"kind": "text", "text": "What display inventory do you have?"},
			},
		},
	})
	require.Nil(t, reply.Error)
	assert.Equal(t, "message", reply.Result["kind"])

	// A second turn in the same context sticks to it.
	contextID := reply.Result["contextId"].(string)
	reply = env.call(t, "message/send", map[string]any{
		"message": map[string]any{
			"parts":     []map[string]any{{"kind": "text", "text": "and video?"}},
			"contextId": contextID,
		},
	})
	require.Nil(t, reply.Error)
	assert.Equal(t, contextID, reply.Result["contextId"])
}

func TestRPCMessageSendRequiresContent(t *testing.T) {
	env := newAPIEnv(t)

	reply := env.call(t, "message/send", map[string]any{"metadata": map[string]any{"a": 1}})
	require.NotNil(t, reply.Error)
	assert.Equal(t, -32600, reply.Error.Code)
	assert.Contains(t, reply.Error.Message, "message content is required")
}

func TestRPCUpdateMediaBuyRejectsUnknownFields(t *testing.T) {
	env := newAPIEnv(t)

	created := env.call(t, "create_media_buy", map[string]any{
		"product_ids":       []string{"prod_news"},
		"total_budget":      10000,
		"flight_start_date": "2026-09-01",
		"flight_end_date":   "2026-09-30",
	})
	require.Nil(t, created.Error)
	artifact := created.Result["artifact"].(map[string]any)
	mbID := artifact["media_buy_id"].(string)

	reply := env.call(t, "update_media_buy", map[string]any{
		"media_buy_id":      mbID,
		"creative_rotation": "even",
	})
	require.Nil(t, reply.Error)
	status := reply.Result["status"].(map[string]any)
	assert.Equal(t, "failed", status["state"])
	assert.Equal(t, "UNSUPPORTED_UPDATE", status["error"])
	assert.Contains(t, status["message"], "creative_rotation")
}

func TestAuditEntriesCarryCallerEnrichment(t *testing.T) {
	env := newAPIEnv(t)

	body := `{"jsonrpc":"2.0","id":1,"method":"get_products","params":{}}`
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-adcp-tenant", "pub1")
	req.Header.Set("x-adcp-auth", "tok_buyer1")
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	rec := httptest.NewRecorder()
	env.server.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	recs := env.sink.All()
	require.NotEmpty(t, recs)
	last := recs[len(recs)-1]
	assert.Equal(t, "get_products", last.Operation)
	assert.Equal(t, "203.0.113.7", last.Details["remote_ip"])
	assert.NotEmpty(t, last.Details["request_id"])
	assert.Equal(t, "Chrome", last.Details["browser"])
	// Operation detail keys survive the merge.
	assert.Equal(t, 1, last.Details["matched"])
}

func TestCORSPreflight(t *testing.T) {
	env := newAPIEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/rpc", nil)
	req.Header.Set("Origin", "https://agents.example.com")
	rec := httptest.NewRecorder()
	env.server.Router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://agents.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "x-adcp-auth")

	// Unlisted origins get no CORS headers.
	req = httptest.NewRequest(http.MethodOptions, "/rpc", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	env.server.Router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
