// Package notify delivers best-effort side-channel notifications for
// human-in-the-loop events. Delivery failures never fail the triggering
// operation.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/openadsales/gateway/internal/models"
	"github.com/openadsales/gateway/internal/observability"
)

// Event is what gets pushed to a tenant's channels.
type Event struct {
	Type        string         `json:"type"`
	TenantID    string         `json:"tenant_id"`
	PrincipalID string         `json:"principal_id,omitempty"`
	MediaBuyID  string         `json:"media_buy_id,omitempty"`
	TaskID      string         `json:"task_id,omitempty"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Event types.
const (
	EventTaskCreated     = "task_created"
	EventTaskOverdue     = "task_overdue"
	EventMediaBuyPending = "media_buy_pending_approval"
	EventCreativePending = "creative_pending_review"
)

// Notifier fans an event out to a tenant's configured channels.
type Notifier interface {
	Notify(ctx context.Context, tenant *models.Tenant, ev Event)
}

// WebhookNotifier posts events to the tenant's generic webhook, HITL
// webhook, and Slack incoming webhook, whichever are configured.
type WebhookNotifier struct {
	httpClient *http.Client
	metrics    observability.MetricsRegistry
	logger     *zap.Logger

	// FallbackSlackWebhook is the platform-level Slack channel used when
	// a tenant has none of its own.
	FallbackSlackWebhook string
}

func NewWebhookNotifier(metrics observability.MetricsRegistry, logger *zap.Logger, fallbackSlack string) *WebhookNotifier {
	return &WebhookNotifier{
		httpClient:           &http.Client{Timeout: 10 * time.Second},
		metrics:              metrics,
		logger:               logger.Named("notify"),
		FallbackSlackWebhook: fallbackSlack,
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, tenant *models.Tenant, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	ev.TenantID = tenant.TenantID

	if url := tenant.Settings.WebhookURL; url != "" {
		n.postJSON(ctx, "webhook", url, ev)
	}
	if url := tenant.Settings.HITLWebhookURL; url != "" && isHITLEvent(ev.Type) {
		n.postJSON(ctx, "hitl_webhook", url, ev)
	}

	slackURL := tenant.Settings.SlackWebhook
	if slackURL == "" {
		slackURL = n.FallbackSlackWebhook
	}
	if slackURL != "" {
		n.postSlack(ctx, slackURL, tenant, ev)
	}
}

func isHITLEvent(eventType string) bool {
	switch eventType {
	case EventTaskCreated, EventTaskOverdue, EventMediaBuyPending, EventCreativePending:
		return true
	}
	return false
}

func (n *WebhookNotifier) postJSON(ctx context.Context, channel, url string, ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		n.fail(channel, err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		n.fail(channel, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.fail(channel, err)
		return
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		n.fail(channel, fmt.Errorf("webhook returned %d", resp.StatusCode))
		return
	}
	n.metrics.IncrementNotification(channel, "success")
}

func (n *WebhookNotifier) postSlack(ctx context.Context, url string, tenant *models.Tenant, ev Event) {
	msg := &slack.WebhookMessage{
		Text: fmt.Sprintf("[%s] %s", tenant.Name, ev.Message),
		Attachments: []slack.Attachment{{
			Fields: slackFields(ev),
			Footer: ev.Type,
			Ts:     json.Number(fmt.Sprintf("%d", ev.Timestamp.Unix())),
		}},
	}
	if err := slack.PostWebhookContext(ctx, url, msg); err != nil {
		n.fail("slack", err)
		return
	}
	n.metrics.IncrementNotification("slack", "success")
}

func slackFields(ev Event) []slack.AttachmentField {
	var fields []slack.AttachmentField
	if ev.MediaBuyID != "" {
		fields = append(fields, slack.AttachmentField{Title: "Media Buy", Value: ev.MediaBuyID, Short: true})
	}
	if ev.TaskID != "" {
		fields = append(fields, slack.AttachmentField{Title: "Task", Value: ev.TaskID, Short: true})
	}
	if ev.PrincipalID != "" {
		fields = append(fields, slack.AttachmentField{Title: "Principal", Value: ev.PrincipalID, Short: true})
	}
	return fields
}

func (n *WebhookNotifier) fail(channel string, err error) {
	n.metrics.IncrementNotification(channel, "error")
	n.logger.Warn("notification delivery failed",
		zap.String("channel", channel), zap.Error(err))
}

// Nop drops all events; used in tests.
type Nop struct{}

func (Nop) Notify(context.Context, *models.Tenant, Event) {}
