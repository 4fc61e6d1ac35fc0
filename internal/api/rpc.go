package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openadsales/gateway/internal/auth"
	"github.com/openadsales/gateway/internal/executor"
	"github.com/openadsales/gateway/internal/models"
)

// JSON-RPC 2.0 error codes. -32000 is the server-defined code for a
// missing or invalid bearer token.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeInternalError  = -32603
	codeUnauthorized   = -32000
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func (s *Server) writeRPC(w http.ResponseWriter, id json.RawMessage, result any, rpcErr *rpcError) {
	w.Header().Set("Content-Type", "application/json")
	resp := rpcResponse{JSONRPC: "2.0", ID: id, Result: result, Error: rpcErr}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("rpc response write failed", zap.Error(err))
	}
}

// handleRPC is the A2A facade: one POST endpoint, JSON-RPC 2.0 envelope,
// bearer auth on every method. The executor does the work; this handler
// only parses, authenticates and renders.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeRPC(w, nil, nil, &rpcError{Code: codeParseError, Message: "Parse error"})
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		s.writeRPC(w, req.ID, nil, &rpcError{Code: codeInvalidRequest, Message: "Invalid request"})
		return
	}

	token := bearerToken(r)
	tenant, principal, err := s.auth.Resolve(r.Context(), token, r.Header.Get("x-adcp-tenant"), r.Host)
	if err != nil {
		if errors.Is(err, auth.ErrNotAuthenticated) || errors.Is(err, auth.ErrTenantInactive) {
			s.writeRPC(w, req.ID, nil, &rpcError{Code: codeUnauthorized, Message: "Authentication required"})
			return
		}
		s.logger.Error("auth lookup failed", zap.Error(err))
		s.writeRPC(w, req.ID, nil, &rpcError{Code: codeInternalError, Message: "Internal error"})
		return
	}

	ctx := auth.WithPrincipal(auth.WithTenant(r.Context(), tenant), principal)
	result, rpcErr := s.dispatch(r.WithContext(ctx), req)
	s.writeRPC(w, req.ID, result, rpcErr)
}

// bearerToken accepts both the AdCP header and a standard Authorization
// bearer.
func bearerToken(r *http.Request) string {
	if tok := r.Header.Get("x-adcp-auth"); tok != "" {
		return tok
	}
	const prefix = "Bearer "
	if h := r.Header.Get("Authorization"); len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func (s *Server) dispatch(r *http.Request, req rpcRequest) (any, *rpcError) {
	ctx := r.Context()
	params := req.Params
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}

	decode := func(dst any) *rpcError {
		if err := json.Unmarshal(params, dst); err != nil {
			return &rpcError{Code: codeInvalidRequest, Message: fmt.Sprintf("Invalid params: %v", err)}
		}
		return nil
	}

	switch req.Method {
	case "get_products":
		var p executor.GetProductsRequest
		if rpcErr := decode(&p); rpcErr != nil {
			return nil, rpcErr
		}
		return s.task(s.exec.GetProducts(ctx, p))

	case "get_signals":
		var p executor.GetSignalsRequest
		if rpcErr := decode(&p); rpcErr != nil {
			return nil, rpcErr
		}
		return s.task(s.exec.GetSignals(ctx, p))

	case "get_targeting_capabilities":
		var p struct {
			Channels []string `json:"channels"`
		}
		if rpcErr := decode(&p); rpcErr != nil {
			return nil, rpcErr
		}
		return s.task(s.exec.GetTargetingCapabilities(ctx, p.Channels))

	case "create_media_buy":
		var p executor.CreateMediaBuyRequest
		if rpcErr := decode(&p); rpcErr != nil {
			return nil, rpcErr
		}
		return s.task(s.exec.CreateMediaBuy(ctx, p))

	case "update_media_buy":
		var p executor.UpdateMediaBuyRequest
		if rpcErr := decode(&p); rpcErr != nil {
			return nil, rpcErr
		}
		p.UnsupportedFields = unsupportedUpdateFields(params)
		return s.task(s.exec.UpdateMediaBuy(ctx, p))

	case "get_media_buy_status":
		var p struct {
			MediaBuyID string `json:"media_buy_id"`
		}
		if rpcErr := decode(&p); rpcErr != nil {
			return nil, rpcErr
		}
		return s.task(s.exec.GetMediaBuyStatus(ctx, p.MediaBuyID))

	case "get_media_buy_delivery":
		var p executor.GetMediaBuyDeliveryRequest
		if rpcErr := decode(&p); rpcErr != nil {
			return nil, rpcErr
		}
		return s.task(s.exec.GetMediaBuyDelivery(ctx, p))

	case "submit_creatives":
		var p executor.SubmitCreativesRequest
		if rpcErr := decode(&p); rpcErr != nil {
			return nil, rpcErr
		}
		return s.task(s.exec.SubmitCreatives(ctx, p))

	case "get_creative_status":
		var p struct {
			CreativeID string `json:"creative_id"`
		}
		if rpcErr := decode(&p); rpcErr != nil {
			return nil, rpcErr
		}
		return s.task(s.exec.GetCreativeStatus(ctx, p.CreativeID))

	case "create_human_task":
		var p executor.CreateHumanTaskRequest
		if rpcErr := decode(&p); rpcErr != nil {
			return nil, rpcErr
		}
		return s.task(s.exec.CreateHumanTask(ctx, p))

	case "verify_task":
		var p struct {
			TaskID string `json:"task_id"`
		}
		if rpcErr := decode(&p); rpcErr != nil {
			return nil, rpcErr
		}
		return s.task(s.exec.VerifyTask(ctx, p.TaskID))

	case "message/send":
		p, rpcErr := parseSendMessage(params)
		if rpcErr != nil {
			return nil, rpcErr
		}
		reply, err := s.exec.SendMessage(ctx, p)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, &rpcError{Code: codeInvalidRequest, Message: "Invalid params: context not found"}
			}
			return nil, s.internal(req.Method, err)
		}
		return renderMessage(reply), nil

	case "message/list":
		var p executor.ListMessagesRequest
		if rpcErr := decode(&p); rpcErr != nil {
			return nil, rpcErr
		}
		return s.task(s.exec.ListMessages(ctx, p))

	case "context/clear":
		var p struct {
			ContextID string `json:"context_id"`
		}
		if rpcErr := decode(&p); rpcErr != nil {
			return nil, rpcErr
		}
		return s.task(s.exec.ClearContext(ctx, p.ContextID))

	default:
		return nil, &rpcError{Code: codeInternalError, Message: "Method not found: " + req.Method}
	}
}

func (s *Server) internal(method string, err error) *rpcError {
	s.logger.Error("operation failed", zap.String("method", method), zap.Error(err))
	return &rpcError{Code: codeInternalError, Message: "Internal error"}
}

// task renders an executor TaskResult as an A2A Task object. A failed
// result is still a successful JSON-RPC response; only contract errors
// become protocol errors.
func (s *Server) task(res *executor.TaskResult, err error) (any, *rpcError) {
	if err != nil {
		return nil, s.internal("", err)
	}
	id := res.TaskID
	if id == "" {
		id = "task_" + uuid.NewString()[:12]
	}
	status := map[string]any{"state": res.Status}
	if res.Message != "" {
		status["message"] = res.Message
	}
	if res.Status == executor.StatusFailed && res.Error != "" {
		status["error"] = res.Error
	}
	out := map[string]any{
		"kind":    "task",
		"id":      id,
		"status":  status,
		"history": []any{},
	}
	if len(res.Data) > 0 {
		out["artifact"] = res.Data
		// Policy and clarification outcomes are promoted so agent
		// clients need not dig into the artifact.
		if pc, ok := res.Data["policy_compliance"]; ok {
			out["policy_compliance"] = pc
		}
		if cn, ok := res.Data["clarification_needed"]; ok {
			out["clarification_needed"] = cn
		}
	}
	return out, nil
}

// a2aPart is one part of an inbound A2A message.
type a2aPart struct {
	Kind string         `json:"kind"`
	Text string         `json:"text,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

type a2aMessage struct {
	Parts     []a2aPart      `json:"parts"`
	ContextID string         `json:"contextId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// parseSendMessage accepts both the flat shape {content, context_id} and
// the nested A2A shape {message: {parts: [{kind: "text", text}]}}.
func parseSendMessage(params json.RawMessage) (executor.SendMessageRequest, *rpcError) {
	var p struct {
		Content   string         `json:"content"`
		ContextID string         `json:"context_id"`
		Metadata  map[string]any `json:"metadata"`
		Message   *a2aMessage    `json:"message"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return executor.SendMessageRequest{}, &rpcError{Code: codeInvalidRequest, Message: fmt.Sprintf("Invalid params: %v", err)}
	}
	req := executor.SendMessageRequest{
		Content:   p.Content,
		ContextID: p.ContextID,
		Metadata:  p.Metadata,
	}
	if p.Message != nil {
		for _, part := range p.Message.Parts {
			if part.Kind == "text" && part.Text != "" {
				req.Content = part.Text
				break
			}
		}
		if p.Message.ContextID != "" {
			req.ContextID = p.Message.ContextID
		}
		if req.Metadata == nil {
			req.Metadata = p.Message.Metadata
		}
	}
	if req.Content == "" {
		return executor.SendMessageRequest{}, &rpcError{Code: codeInvalidRequest, Message: "Invalid params: message content is required"}
	}
	return req, nil
}

// renderMessage renders the agent's reply as an A2A Message: a text part
// always, a data part when structured results are attached.
func renderMessage(reply *executor.MessageReply) map[string]any {
	parts := []map[string]any{
		{"kind": "text", "text": reply.Text},
	}
	if len(reply.Data) > 0 {
		parts = append(parts, map[string]any{"kind": "data", "data": reply.Data})
	}
	ts := reply.Timestamp
	if ts == "" {
		ts = time.Now().UTC().Format(time.RFC3339)
	}
	return map[string]any{
		"kind":      "message",
		"messageId": reply.MessageID,
		"role":      "agent",
		"parts":     parts,
		"contextId": reply.ContextID,
		"timestamp": ts,
	}
}

var supportedUpdateKeys = map[string]bool{
	"media_buy_id":      true,
	"action":            true,
	"package_id":        true,
	"budget":            true,
	"targeting_overlay": true,
	"flight_start_date": true,
	"flight_end_date":   true,
	"dry_run":           true,
}

// unsupportedUpdateFields lists request keys update_media_buy cannot
// honor. The executor fails the whole call when any are present instead
// of silently ignoring them.
func unsupportedUpdateFields(params json.RawMessage) []string {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(params, &raw); err != nil {
		return nil
	}
	var unsupported []string
	for key := range raw {
		if !supportedUpdateKeys[key] {
			unsupported = append(unsupported, key)
		}
	}
	sort.Strings(unsupported)
	return unsupported
}
