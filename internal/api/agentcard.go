package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

type agentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

// agentSkills enumerates every RPC method the gateway serves. The skill
// IDs are the method names an A2A client sends verbatim.
var agentSkills = []agentSkill{
	{ID: "get_products", Name: "Discover products", Description: "List advertising products matching a brief, formats and countries.", Tags: []string{"discovery"}},
	{ID: "get_signals", Name: "Discover signals", Description: "List addressable audience, contextual and geographic signals.", Tags: []string{"discovery"}},
	{ID: "message/send", Name: "Converse", Description: "Natural-language conversation about inventory, campaigns and status.", Tags: []string{"conversation"}},
	{ID: "message/list", Name: "List messages", Description: "Read back a conversation transcript.", Tags: []string{"conversation"}},
	{ID: "context/clear", Name: "Clear context", Description: "Empty a conversation while keeping its ID.", Tags: []string{"conversation"}},
	{ID: "create_media_buy", Name: "Create media buy", Description: "Book a campaign across one or more products with budget and flight dates.", Tags: []string{"buying"}},
	{ID: "submit_creatives", Name: "Submit creatives", Description: "Submit creative assets for review and upstream trafficking.", Tags: []string{"creatives"}},
	{ID: "get_media_buy_status", Name: "Media buy status", Description: "Report the lifecycle status of a media buy.", Tags: []string{"buying"}},
	{ID: "update_media_buy", Name: "Update media buy", Description: "Adjust budget, dates, targeting, or trigger lifecycle actions.", Tags: []string{"buying"}},
	{ID: "get_creative_status", Name: "Creative status", Description: "Report the review state of a submitted creative.", Tags: []string{"creatives"}},
	{ID: "get_media_buy_delivery", Name: "Delivery report", Description: "Aggregate spend, impressions and clicks for a media buy.", Tags: []string{"reporting"}},
	{ID: "get_targeting_capabilities", Name: "Targeting capabilities", Description: "Describe the targeting overlay dimensions each channel supports.", Tags: []string{"discovery"}},
	{ID: "create_human_task", Name: "Create human task", Description: "Open a work item for tenant operators.", Tags: []string{"workflow"}},
	{ID: "verify_task", Name: "Verify task", Description: "Check whether a human task has been completed.", Tags: []string{"workflow"}},
}

// handleAgentCard serves the A2A discovery document. It is the only
// unauthenticated business endpoint; tenant resolution still runs so the
// card can carry the tenant's display name.
func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	name := "Ad Sales Agent"
	description := "Multi-tenant ad sales gateway: inventory discovery, media buying, creatives and delivery reporting over AdCP."
	if tenant, err := s.auth.ResolveTenant(r.Context(), r.Header.Get("x-adcp-tenant"), r.Host); err == nil && tenant.Name != "" {
		name = tenant.Name + " Ad Sales Agent"
	}

	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	root := scheme + "://" + r.Host

	card := map[string]any{
		"name":            name,
		"version":         Version,
		"description":     description,
		"protocolVersion": "0.2.5",
		"url":             root + "/rpc",
		"rpcEndpoints": []map[string]any{
			{
				"url":       root + "/rpc",
				"transport": "http",
				"methods":   []string{"POST"},
			},
		},
		"capabilities": map[string]any{
			"streaming":         false,
			"pushNotifications": false,
		},
		"defaultInputModes":  []string{"text"},
		"defaultOutputModes": []string{"text"},
		"securitySchemes": map[string]any{
			"bearer": map[string]any{
				"type":        "http",
				"scheme":      "bearer",
				"description": "Principal access token issued by the publisher, sent as a bearer token or the x-adcp-auth header.",
			},
		},
		"security": []map[string][]string{
			{"bearer": {}},
		},
		"skills": agentSkills,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(card); err != nil {
		s.logger.Error("agent card write failed", zap.Error(err))
	}
}
