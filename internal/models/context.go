package models

import "time"

// Message roles within a conversation.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Message is one entry in a conversation log.
type Message struct {
	ID        string         `json:"id"`
	ContextID string         `json:"context_id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ConversationContext is the durable handle for a dialog between one
// principal and the gateway over one protocol. The persisted message log is
// the source of truth; caches layer on top of it.
type ConversationContext struct {
	ContextID   string         `json:"context_id"`
	TenantID    string         `json:"tenant_id"`
	PrincipalID string         `json:"principal_id"`
	Protocol    string         `json:"protocol"`
	State       map[string]any `json:"state,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	LastActive  time.Time      `json:"last_active"`
}
