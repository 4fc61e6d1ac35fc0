package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openadsales/gateway/internal/creatives"
	"github.com/openadsales/gateway/internal/models"
	"github.com/openadsales/gateway/internal/notify"
)

// CreativeSubmission is one asset in a submit_creatives batch.
type CreativeSubmission struct {
	Name               string                `json:"name" validate:"required"`
	Format             string                `json:"format,omitempty"`
	Snippet            string                `json:"snippet,omitempty"`
	SnippetType        string                `json:"snippet_type,omitempty"`
	TemplateVariables  map[string]string     `json:"template_variables,omitempty"`
	MediaURL           string                `json:"media_url,omitempty"`
	MediaData          []byte                `json:"media_data,omitempty"`
	ClickURL           string                `json:"click_url,omitempty"`
	Width              int                   `json:"width,omitempty"`
	Height             int                   `json:"height,omitempty"`
	DurationSeconds    *float64              `json:"duration,omitempty"`
	TrackingEvents     models.TrackingEvents `json:"tracking_events,omitempty"`
	PackageAssignments []string              `json:"package_assignments,omitempty"`
}

// SubmitCreativesRequest submits a batch of creatives for one media buy.
type SubmitCreativesRequest struct {
	MediaBuyID string               `json:"media_buy_id" validate:"required"`
	Creatives  []CreativeSubmission `json:"creatives" validate:"required,min=1"`
}

// SubmitCreatives classifies and validates each asset independently,
// then persists the batch. Formats in the tenant's auto-approve list skip
// human review; only approved creatives are later uploaded upstream.
func (e *Executor) SubmitCreatives(ctx context.Context, req SubmitCreativesRequest) (*TaskResult, error) {
	tenant, principal, err := e.identity(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.validate.Struct(req); err != nil {
		res := validationFailed(err)
		e.finish(ctx, tenant, principal, "submit_creatives", res, nil)
		return res, nil
	}
	mb, fail := e.ownedMediaBuy(ctx, tenant, principal, req.MediaBuyID)
	if fail != nil {
		e.finish(ctx, tenant, principal, "submit_creatives", fail, nil)
		return fail, nil
	}

	batch := make([]models.Creative, 0, len(req.Creatives))
	statuses := make([]map[string]any, 0, len(req.Creatives))
	var pendingReview int
	for _, sub := range req.Creatives {
		c := models.Creative{
			CreativeID:         "cr_" + uuid.NewString()[:12],
			TenantID:           tenant.TenantID,
			PrincipalID:        principal.PrincipalID,
			MediaBuyID:         mb.MediaBuyID,
			Name:               sub.Name,
			Format:             sub.Format,
			Snippet:            sub.Snippet,
			SnippetType:        sub.SnippetType,
			TemplateVariables:  sub.TemplateVariables,
			MediaURL:           sub.MediaURL,
			MediaData:          sub.MediaData,
			ClickURL:           sub.ClickURL,
			Width:              sub.Width,
			Height:             sub.Height,
			DurationSeconds:    sub.DurationSeconds,
			TrackingEvents:     sub.TrackingEvents,
			PackageAssignments: sub.PackageAssignments,
			CreatedAt:          time.Now().UTC(),
		}

		kind := creatives.Classify(&c)
		if err := creatives.Validate(&c, kind); err != nil {
			c.Status = models.CreativeStatusFailed
			c.StatusDetail = err.Error()
		} else if tenant.Settings.AutoApproves(c.Format) {
			c.Status = models.CreativeStatusApproved
		} else {
			c.Status = models.CreativeStatusPendingReview
			pendingReview++
		}
		batch = append(batch, c)
		statuses = append(statuses, map[string]any{
			"creative_id": c.CreativeID,
			"name":        c.Name,
			"kind":        string(kind),
			"status":      c.Status,
			"detail":      c.StatusDetail,
		})
	}

	if err := e.store.InsertCreatives(ctx, batch); err != nil {
		return nil, fmt.Errorf("persist creatives: %w", err)
	}

	if pendingReview > 0 {
		e.notifier.Notify(ctx, tenant, notify.Event{
			Type:        notify.EventCreativePending,
			PrincipalID: principal.PrincipalID,
			MediaBuyID:  mb.MediaBuyID,
			Message:     fmt.Sprintf("%d creatives await review on media buy %s", pendingReview, mb.MediaBuyID),
		})
	}

	// Approved creatives go upstream right away.
	var approved []models.Creative
	for _, c := range batch {
		if c.Status == models.CreativeStatusApproved {
			approved = append(approved, c)
		}
	}
	if len(approved) > 0 {
		e.uploadApproved(ctx, tenant, principal, mb.MediaBuyID, approved)
	}

	ids := make([]string, 0, len(batch))
	for _, c := range batch {
		ids = append(ids, c.CreativeID)
	}
	res := completed(fmt.Sprintf("%d creatives submitted", len(batch)), map[string]any{
		"creative_ids": ids,
		"statuses":     statuses,
	})
	e.finish(ctx, tenant, principal, "submit_creatives", res, map[string]any{
		"media_buy_id": mb.MediaBuyID,
		"submitted":    len(batch),
	})
	return res, nil
}

// uploadApproved pushes approved creatives to the adapter and records the
// per-asset outcome. Upload failures downgrade the creative to failed but
// never fail the submission call.
func (e *Executor) uploadApproved(ctx context.Context, tenant *models.Tenant, principal *models.Principal, mediaBuyID string, approved []models.Creative) {
	adapter, fail := e.adapterFor(tenant)
	if fail != nil {
		e.logger.Warn("creative upload skipped", zap.String("reason", fail.Message))
		return
	}
	results, err := adapter.AddCreativeAssets(ctx, principal, mediaBuyID, approved, time.Now().UTC(), false)
	if err != nil {
		e.logger.Warn("creative upload failed",
			zap.String("media_buy_id", mediaBuyID), zap.Error(err))
		return
	}
	for _, r := range results {
		if err := e.store.UpdateCreativeStatus(ctx, tenant.TenantID, r.CreativeID, r.Status, r.Message, r.AdServerCreativeID); err != nil {
			e.logger.Warn("creative status update failed",
				zap.String("creative_id", r.CreativeID), zap.Error(err))
		}
	}
}

// GetCreativeStatus returns the persisted review state of one creative.
func (e *Executor) GetCreativeStatus(ctx context.Context, creativeID string) (*TaskResult, error) {
	tenant, principal, err := e.identity(ctx)
	if err != nil {
		return nil, err
	}
	c, err := e.store.GetCreative(ctx, tenant.TenantID, creativeID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			res := failed(ErrCodeNotFound, fmt.Sprintf("creative %s not found", creativeID))
			e.finish(ctx, tenant, principal, "get_creative_status", res, nil)
			return res, nil
		}
		return nil, fmt.Errorf("load creative: %w", err)
	}
	if c.PrincipalID != principal.PrincipalID && !principal.IsAdmin {
		res := failed(ErrCodeUnauthorized,
			fmt.Sprintf("principal %s does not own creative %s", principal.PrincipalID, creativeID))
		e.finish(ctx, tenant, principal, "get_creative_status", res, nil)
		return res, nil
	}

	res := completed("", map[string]any{
		"creative_id":           c.CreativeID,
		"status":                c.Status,
		"status_detail":         c.StatusDetail,
		"ad_server_creative_id": c.AdServerCreativeID,
	})
	e.finish(ctx, tenant, principal, "get_creative_status", res, nil)
	return res, nil
}
