// Command mcp-server exposes the sales operations as MCP tools over
// stdio. One process serves one principal: the access token comes from
// the environment and is resolved once at startup, the same way an agent
// runtime would mount a credential.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/openadsales/gateway/internal/adapters"
	"github.com/openadsales/gateway/internal/adapters/gam"
	"github.com/openadsales/gateway/internal/adapters/mock"
	"github.com/openadsales/gateway/internal/analytics"
	"github.com/openadsales/gateway/internal/audit"
	"github.com/openadsales/gateway/internal/auth"
	"github.com/openadsales/gateway/internal/catalog"
	"github.com/openadsales/gateway/internal/config"
	"github.com/openadsales/gateway/internal/conversation"
	"github.com/openadsales/gateway/internal/db"
	"github.com/openadsales/gateway/internal/executor"
	"github.com/openadsales/gateway/internal/models"
	"github.com/openadsales/gateway/internal/notify"
	"github.com/openadsales/gateway/internal/observability"
)

// TaskOutput mirrors the executor's task result for MCP clients.
type TaskOutput struct {
	TaskID  string         `json:"task_id,omitempty"`
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// MessageOutput is the conversational reply shape.
type MessageOutput struct {
	MessageID string         `json:"message_id"`
	ContextID string         `json:"context_id"`
	Role      string         `json:"role"`
	Text      string         `json:"text"`
	Data      map[string]any `json:"data,omitempty"`
}

// SalesServer binds the executor to one authenticated identity.
type SalesServer struct {
	exec      *executor.Executor
	tenant    *models.Tenant
	principal *models.Principal
	logger    *zap.Logger
}

func (s *SalesServer) identity(ctx context.Context) context.Context {
	return auth.WithPrincipal(auth.WithTenant(ctx, s.tenant), s.principal)
}

func taskOutput(res *executor.TaskResult) TaskOutput {
	return TaskOutput{
		TaskID:  res.TaskID,
		Status:  res.Status,
		Message: res.Message,
		Data:    res.Data,
		Error:   res.Error,
	}
}

func (s *SalesServer) GetProducts(ctx context.Context, req *mcp.CallToolRequest, input executor.GetProductsRequest) (*mcp.CallToolResult, TaskOutput, error) {
	res, err := s.exec.GetProducts(s.identity(ctx), input)
	if err != nil {
		return nil, TaskOutput{}, err
	}
	return nil, taskOutput(res), nil
}

func (s *SalesServer) GetSignals(ctx context.Context, req *mcp.CallToolRequest, input executor.GetSignalsRequest) (*mcp.CallToolResult, TaskOutput, error) {
	res, err := s.exec.GetSignals(s.identity(ctx), input)
	if err != nil {
		return nil, TaskOutput{}, err
	}
	return nil, taskOutput(res), nil
}

type targetingCapabilitiesInput struct {
	Channels []string `json:"channels,omitempty"`
}

func (s *SalesServer) GetTargetingCapabilities(ctx context.Context, req *mcp.CallToolRequest, input targetingCapabilitiesInput) (*mcp.CallToolResult, TaskOutput, error) {
	res, err := s.exec.GetTargetingCapabilities(s.identity(ctx), input.Channels)
	if err != nil {
		return nil, TaskOutput{}, err
	}
	return nil, taskOutput(res), nil
}

func (s *SalesServer) CreateMediaBuy(ctx context.Context, req *mcp.CallToolRequest, input executor.CreateMediaBuyRequest) (*mcp.CallToolResult, TaskOutput, error) {
	res, err := s.exec.CreateMediaBuy(s.identity(ctx), input)
	if err != nil {
		return nil, TaskOutput{}, err
	}
	return nil, taskOutput(res), nil
}

func (s *SalesServer) UpdateMediaBuy(ctx context.Context, req *mcp.CallToolRequest, input executor.UpdateMediaBuyRequest) (*mcp.CallToolResult, TaskOutput, error) {
	res, err := s.exec.UpdateMediaBuy(s.identity(ctx), input)
	if err != nil {
		return nil, TaskOutput{}, err
	}
	return nil, taskOutput(res), nil
}

type mediaBuyIDInput struct {
	MediaBuyID string `json:"media_buy_id"`
}

func (s *SalesServer) GetMediaBuyStatus(ctx context.Context, req *mcp.CallToolRequest, input mediaBuyIDInput) (*mcp.CallToolResult, TaskOutput, error) {
	res, err := s.exec.GetMediaBuyStatus(s.identity(ctx), input.MediaBuyID)
	if err != nil {
		return nil, TaskOutput{}, err
	}
	return nil, taskOutput(res), nil
}

func (s *SalesServer) GetMediaBuyDelivery(ctx context.Context, req *mcp.CallToolRequest, input executor.GetMediaBuyDeliveryRequest) (*mcp.CallToolResult, TaskOutput, error) {
	res, err := s.exec.GetMediaBuyDelivery(s.identity(ctx), input)
	if err != nil {
		return nil, TaskOutput{}, err
	}
	return nil, taskOutput(res), nil
}

func (s *SalesServer) SubmitCreatives(ctx context.Context, req *mcp.CallToolRequest, input executor.SubmitCreativesRequest) (*mcp.CallToolResult, TaskOutput, error) {
	res, err := s.exec.SubmitCreatives(s.identity(ctx), input)
	if err != nil {
		return nil, TaskOutput{}, err
	}
	return nil, taskOutput(res), nil
}

type creativeIDInput struct {
	CreativeID string `json:"creative_id"`
}

func (s *SalesServer) GetCreativeStatus(ctx context.Context, req *mcp.CallToolRequest, input creativeIDInput) (*mcp.CallToolResult, TaskOutput, error) {
	res, err := s.exec.GetCreativeStatus(s.identity(ctx), input.CreativeID)
	if err != nil {
		return nil, TaskOutput{}, err
	}
	return nil, taskOutput(res), nil
}

func (s *SalesServer) CreateHumanTask(ctx context.Context, req *mcp.CallToolRequest, input executor.CreateHumanTaskRequest) (*mcp.CallToolResult, TaskOutput, error) {
	res, err := s.exec.CreateHumanTask(s.identity(ctx), input)
	if err != nil {
		return nil, TaskOutput{}, err
	}
	return nil, taskOutput(res), nil
}

type taskIDInput struct {
	TaskID string `json:"task_id"`
}

func (s *SalesServer) VerifyTask(ctx context.Context, req *mcp.CallToolRequest, input taskIDInput) (*mcp.CallToolResult, TaskOutput, error) {
	res, err := s.exec.VerifyTask(s.identity(ctx), input.TaskID)
	if err != nil {
		return nil, TaskOutput{}, err
	}
	return nil, taskOutput(res), nil
}

func (s *SalesServer) SendMessage(ctx context.Context, req *mcp.CallToolRequest, input executor.SendMessageRequest) (*mcp.CallToolResult, MessageOutput, error) {
	input.Protocol = "mcp"
	reply, err := s.exec.SendMessage(s.identity(ctx), input)
	if err != nil {
		return nil, MessageOutput{}, err
	}
	return nil, MessageOutput{
		MessageID: reply.MessageID,
		ContextID: reply.ContextID,
		Role:      reply.Role,
		Text:      reply.Text,
		Data:      reply.Data,
	}, nil
}

func (s *SalesServer) ListMessages(ctx context.Context, req *mcp.CallToolRequest, input executor.ListMessagesRequest) (*mcp.CallToolResult, TaskOutput, error) {
	if input.Protocol == "" {
		input.Protocol = "mcp"
	}
	res, err := s.exec.ListMessages(s.identity(ctx), input)
	if err != nil {
		return nil, TaskOutput{}, err
	}
	return nil, taskOutput(res), nil
}

type contextIDInput struct {
	ContextID string `json:"context_id"`
}

func (s *SalesServer) ClearContext(ctx context.Context, req *mcp.CallToolRequest, input contextIDInput) (*mcp.CallToolResult, TaskOutput, error) {
	res, err := s.exec.ClearContext(s.identity(ctx), input.ContextID)
	if err != nil {
		return nil, TaskOutput{}, err
	}
	return nil, taskOutput(res), nil
}

func main() {
	// stdio carries the protocol, so logs must go to stderr.
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	logger, err := zcfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	logger = logger.Named("adsales-mcp")

	cfg := config.Load()

	token := os.Getenv("ADCP_AUTH_TOKEN")
	if token == "" {
		logger.Fatal("ADCP_AUTH_TOKEN environment variable is required")
	}
	tenantID := os.Getenv("ADCP_TENANT_ID")

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		logger.Fatal("postgres init failed", zap.Error(err))
	}
	defer pg.DB.Close()

	redisClient, err := db.InitRedis(cfg.RedisAddr)
	var cache *db.ConversationCache
	if err != nil {
		logger.Warn("redis unavailable, conversation cache disabled", zap.Error(err))
	} else {
		defer redisClient.Close()
		cache = db.NewConversationCache(redisClient, cfg.ContextCacheTTL)
	}

	var delivery analytics.Service
	if svc, err := analytics.NewClickHouseService(cfg.ClickHouseDSN, logger); err != nil {
		logger.Warn("clickhouse unavailable, delivery reports will be empty", zap.Error(err))
		delivery = analytics.NewMockService()
	} else {
		delivery = svc
	}
	defer delivery.Close()

	metrics := observability.NewPrometheusRegistry()

	registry := adapters.NewRegistry(adapters.Deps{
		Store:           pg,
		Metrics:         metrics,
		Logger:          logger,
		GAMClientID:     cfg.GAMOAuthClientID,
		GAMClientSecret: cfg.GAMOAuthClientSecret,
		DryRun:          cfg.DryRun,
	})
	registry.Register("gam", gam.Factory(nil))
	registry.Register("mock", mock.Factory())

	exec := executor.New(executor.Config{
		Store:    pg,
		Catalog:  catalog.NewDatabaseProvider(pg),
		Convos:   conversation.NewManager(pg, cache, metrics, logger),
		Registry: registry,
		Delivery: delivery,
		Audit:    audit.NewLogger(pg, metrics, logger),
		Notifier: notify.NewWebhookNotifier(metrics, logger, cfg.SlackWebhookURL),
		Metrics:  metrics,
		Logger:   logger,
	})

	authCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	tenant, principal, err := auth.NewRegistry(pg, logger).Resolve(authCtx, token, tenantID, "")
	if err != nil {
		logger.Fatal("authentication failed", zap.Error(err))
	}
	logger.Info("authenticated",
		zap.String("tenant_id", tenant.TenantID),
		zap.String("principal_id", principal.PrincipalID))

	sales := &SalesServer{exec: exec, tenant: tenant, principal: principal, logger: logger}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "adsales-gateway",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_products",
		Description: "Discover available advertising products matching a brief, formats and countries",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"brief":             map[string]interface{}{"type": "string", "description": "Natural-language description of what inventory is needed"},
				"promoted_offering": map[string]interface{}{"type": "string", "description": "What is being advertised, checked against tenant policy"},
				"countries":         map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				"formats":           map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			},
		},
	}, sales.GetProducts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_signals",
		Description: "Discover addressable audience, contextual and geographic signals",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{"type": "string", "description": "Substring match on signal name and description"},
				"type":  map[string]interface{}{"type": "string", "enum": []string{"audience", "contextual", "geographic"}},
			},
		},
	}, sales.GetSignals)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_targeting_capabilities",
		Description: "Describe the targeting overlay dimensions each channel supports",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"channels": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			},
		},
	}, sales.GetTargetingCapabilities)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_media_buy",
		Description: "Book a campaign across one or more products with budget and flight dates",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"product_ids":       map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				"total_budget":      map[string]interface{}{"type": "number"},
				"flight_start_date": map[string]interface{}{"type": "string", "description": "YYYY-MM-DD"},
				"flight_end_date":   map[string]interface{}{"type": "string", "description": "YYYY-MM-DD"},
				"targeting_overlay": map[string]interface{}{"type": "object"},
				"promoted_offering": map[string]interface{}{"type": "string"},
				"order_name":        map[string]interface{}{"type": "string"},
				"dry_run":           map[string]interface{}{"type": "boolean"},
			},
			"required": []string{"product_ids", "total_budget", "flight_start_date", "flight_end_date"},
		},
	}, sales.CreateMediaBuy)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_media_buy",
		Description: "Adjust budget, dates or targeting, or trigger lifecycle actions on a media buy",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"media_buy_id":      map[string]interface{}{"type": "string"},
				"action":            map[string]interface{}{"type": "string"},
				"package_id":        map[string]interface{}{"type": "string"},
				"budget":            map[string]interface{}{"type": "number"},
				"targeting_overlay": map[string]interface{}{"type": "object"},
				"flight_start_date": map[string]interface{}{"type": "string"},
				"flight_end_date":   map[string]interface{}{"type": "string"},
			},
			"required": []string{"media_buy_id"},
		},
	}, sales.UpdateMediaBuy)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_media_buy_status",
		Description: "Report the lifecycle status of a media buy",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"media_buy_id": map[string]interface{}{"type": "string"},
			},
			"required": []string{"media_buy_id"},
		},
	}, sales.GetMediaBuyStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_media_buy_delivery",
		Description: "Aggregate spend, impressions and clicks for a media buy over a date range",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"media_buy_id": map[string]interface{}{"type": "string"},
				"start_date":   map[string]interface{}{"type": "string", "description": "YYYY-MM-DD, defaults to flight start"},
				"end_date":     map[string]interface{}{"type": "string", "description": "YYYY-MM-DD, defaults to flight end"},
			},
			"required": []string{"media_buy_id"},
		},
	}, sales.GetMediaBuyDelivery)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "submit_creatives",
		Description: "Submit creative assets for review and upstream trafficking",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"media_buy_id": map[string]interface{}{"type": "string"},
				"creatives":    map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "object"}},
			},
			"required": []string{"media_buy_id", "creatives"},
		},
	}, sales.SubmitCreatives)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_creative_status",
		Description: "Report the review state of a submitted creative",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"creative_id": map[string]interface{}{"type": "string"},
			},
			"required": []string{"creative_id"},
		},
	}, sales.GetCreativeStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_human_task",
		Description: "Open a work item for tenant operators",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"task_type":    map[string]interface{}{"type": "string"},
				"media_buy_id": map[string]interface{}{"type": "string"},
				"details":      map[string]interface{}{"type": "object"},
			},
		},
	}, sales.CreateHumanTask)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "verify_task",
		Description: "Check whether a human task has been completed",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"task_id": map[string]interface{}{"type": "string"},
			},
			"required": []string{"task_id"},
		},
	}, sales.VerifyTask)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "send_message",
		Description: "Converse with the sales agent about inventory, campaigns and status",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"content":    map[string]interface{}{"type": "string"},
				"context_id": map[string]interface{}{"type": "string", "description": "Conversation to continue; omit to start a new one"},
			},
			"required": []string{"content"},
		},
	}, sales.SendMessage)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_messages",
		Description: "Read back a conversation transcript",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"context_id": map[string]interface{}{"type": "string"},
				"limit":      map[string]interface{}{"type": "integer"},
				"offset":     map[string]interface{}{"type": "integer"},
			},
		},
	}, sales.ListMessages)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear_context",
		Description: "Empty a conversation while keeping its ID",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"context_id": map[string]interface{}{"type": "string"},
			},
			"required": []string{"context_id"},
		},
	}, sales.ClearContext)

	logger.Info("MCP server running via stdio")
	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
