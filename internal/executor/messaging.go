package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/openadsales/gateway/internal/models"
)

var inventoryKeywords = []string{"product", "inventory", "sport", "video", "display", "audio"}

var campaignKeywords = []string{"campaign", "media buy", "media_buy", "book", "buy", "flight", "budget"}

var statusKeywords = []string{"status", "delivery", "performance", "pacing", "report"}

// SendMessageRequest is one conversational turn.
type SendMessageRequest struct {
	Content   string         `json:"content" validate:"required"`
	ContextID string         `json:"context_id,omitempty"`
	Protocol  string         `json:"protocol,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// MessageReply is the agent's turn: text plus an optional structured data
// part. Facades render it as a protocol Message, never a Task.
type MessageReply struct {
	MessageID string         `json:"message_id"`
	ContextID string         `json:"context_id"`
	Role      string         `json:"role"`
	Text      string         `json:"text"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// SendMessage persists the user turn, routes the content to a response
// and persists the agent turn. The agent never echoes the input back.
func (e *Executor) SendMessage(ctx context.Context, req SendMessageRequest) (*MessageReply, error) {
	tenant, principal, err := e.identity(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	protocol := req.Protocol
	if protocol == "" {
		protocol = "a2a"
	}

	convo, err := e.convos.GetOrCreate(ctx, tenant.TenantID, principal.PrincipalID, protocol, req.ContextID)
	if err != nil {
		return nil, fmt.Errorf("resolve context: %w", err)
	}

	// The user turn is persisted before the reply is generated so a
	// replay yields a coherent dialog. Failures here are logged only.
	if _, err := e.convos.Append(ctx, tenant.TenantID, convo.ContextID, models.RoleUser, req.Content, req.Metadata); err != nil {
		e.logger.Warn("user message not persisted",
			zap.String("context_id", convo.ContextID), zap.Error(err))
	}

	text, data := e.routeMessage(ctx, req.Content)

	agentMsg, err := e.convos.Append(ctx, tenant.TenantID, convo.ContextID, models.RoleAgent, text, nil)
	reply := &MessageReply{
		ContextID: convo.ContextID,
		Role:      models.RoleAgent,
		Text:      text,
		Data:      data,
	}
	if err != nil {
		e.logger.Warn("agent message not persisted",
			zap.String("context_id", convo.ContextID), zap.Error(err))
		reply.MessageID = "msg_unpersisted"
	} else {
		reply.MessageID = agentMsg.ID
		reply.Timestamp = agentMsg.Timestamp.Format("2006-01-02T15:04:05Z07:00")
	}

	e.metrics.IncrementOperation("message/send", StatusCompleted)
	return reply, nil
}

// routeMessage is the intent router behind message/send. Inventory
// questions answer with real catalog data; everything else gets guidance.
func (e *Executor) routeMessage(ctx context.Context, content string) (string, map[string]any) {
	lowered := strings.ToLower(content)

	if containsAny(lowered, inventoryKeywords) {
		res, err := e.GetProducts(ctx, GetProductsRequest{Brief: content})
		if err != nil || res.Status == StatusFailed {
			return "I could not search the catalog just now. Try get_products directly, or tell me more about what inventory you need.", nil
		}
		products, _ := res.Data["products"].([]models.Product)
		if len(products) == 0 {
			return "I did not find inventory matching that. Tell me the formats (display, video, native), countries and budget you have in mind.", nil
		}
		names := make([]string, 0, len(products))
		for _, p := range products {
			names = append(names, p.Name)
		}
		text := fmt.Sprintf("I found %d products that could fit: %s. Ask for details on any of them or start a media buy with create_media_buy.",
			len(products), strings.Join(names, ", "))
		return text, map[string]any{"products": products}
	}

	if containsAny(lowered, campaignKeywords) {
		return "To set up a media buy I need the product IDs, total budget, and flight start and end dates. Optional: a targeting overlay and the promoted offering for policy review. Send create_media_buy when ready.", nil
	}

	if containsAny(lowered, statusKeywords) {
		return "I can report status and delivery for your campaigns. Give me the media buy ID (mb_...) and I will pull it up.", nil
	}

	return "I am an ad sales agent. I can discover inventory (get_products), report addressable signals (get_signals), book campaigns (create_media_buy), take creatives (submit_creatives), and report delivery (get_media_buy_delivery). What would you like to do?", nil
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// ListMessagesRequest pages through a conversation transcript.
type ListMessagesRequest struct {
	ContextID string `json:"context_id,omitempty"`
	Protocol  string `json:"protocol,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// ListMessages returns the transcript in insertion order.
func (e *Executor) ListMessages(ctx context.Context, req ListMessagesRequest) (*TaskResult, error) {
	tenant, principal, err := e.identity(ctx)
	if err != nil {
		return nil, err
	}
	protocol := req.Protocol
	if protocol == "" {
		protocol = "a2a"
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}

	convo, err := e.convos.GetOrCreate(ctx, tenant.TenantID, principal.PrincipalID, protocol, req.ContextID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			res := failed(ErrCodeNotFound, fmt.Sprintf("context %s not found", req.ContextID))
			e.finish(ctx, tenant, principal, "message/list", res, nil)
			return res, nil
		}
		return nil, fmt.Errorf("resolve context: %w", err)
	}
	msgs, err := e.convos.Messages(ctx, tenant.TenantID, convo.ContextID, limit, req.Offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	res := completed("", map[string]any{
		"context_id": convo.ContextID,
		"messages":   msgs,
	})
	e.finish(ctx, tenant, principal, "message/list", res, nil)
	return res, nil
}

// ClearContext empties a conversation while keeping its ID stable.
func (e *Executor) ClearContext(ctx context.Context, contextID string) (*TaskResult, error) {
	tenant, principal, err := e.identity(ctx)
	if err != nil {
		return nil, err
	}
	if contextID == "" {
		res := failed(ErrCodeValidation, "context_id is required")
		e.finish(ctx, tenant, principal, "context/clear", res, nil)
		return res, nil
	}
	if err := e.convos.Clear(ctx, tenant.TenantID, principal.PrincipalID, contextID); err != nil {
		res := failed(ErrCodeNotFound, fmt.Sprintf("context %s not found", contextID))
		e.finish(ctx, tenant, principal, "context/clear", res, nil)
		return res, nil
	}
	res := completed(fmt.Sprintf("context %s cleared", contextID), map[string]any{
		"context_id": contextID,
	})
	e.finish(ctx, tenant, principal, "context/clear", res, nil)
	return res, nil
}
