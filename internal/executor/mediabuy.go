package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openadsales/gateway/internal/adapters"
	"github.com/openadsales/gateway/internal/models"
	"github.com/openadsales/gateway/internal/notify"
	"github.com/openadsales/gateway/internal/policy"
)

// ErrCodeUnsupportedUpdate marks update_media_buy requests touching
// fields that cannot be changed after creation.
const ErrCodeUnsupportedUpdate = "UNSUPPORTED_UPDATE"

const dateLayout = "2006-01-02"

// CreateMediaBuyRequest books a campaign across one or more products.
type CreateMediaBuyRequest struct {
	ProductIDs       []string          `json:"product_ids" validate:"required,min=1,dive,required"`
	TotalBudget      float64           `json:"total_budget" validate:"required,gt=0"`
	FlightStartDate  string            `json:"flight_start_date" validate:"required"`
	FlightEndDate    string            `json:"flight_end_date" validate:"required"`
	TargetingOverlay *models.Targeting `json:"targeting_overlay,omitempty"`
	PromotedOffering string            `json:"promoted_offering,omitempty"`
	OrderName        string            `json:"order_name,omitempty"`
	AdvertiserName   string            `json:"advertiser_name,omitempty"`
	ContextID        string            `json:"context_id,omitempty"`
	DryRun           bool              `json:"dry_run,omitempty"`
}

// CreateMediaBuy runs the full booking flow: policy, status decision,
// atomic persistence, then the adapter call.
func (e *Executor) CreateMediaBuy(ctx context.Context, req CreateMediaBuyRequest) (*TaskResult, error) {
	tenant, principal, err := e.identity(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.validate.Struct(req); err != nil {
		res := validationFailed(err)
		e.finish(ctx, tenant, principal, "create_media_buy", res, nil)
		return res, nil
	}

	start, err := time.Parse(dateLayout, req.FlightStartDate)
	if err != nil {
		res := failed(ErrCodeValidation, fmt.Sprintf("invalid flight_start_date: %v", err))
		e.finish(ctx, tenant, principal, "create_media_buy", res, nil)
		return res, nil
	}
	end, err := time.Parse(dateLayout, req.FlightEndDate)
	if err != nil {
		res := failed(ErrCodeValidation, fmt.Sprintf("invalid flight_end_date: %v", err))
		e.finish(ctx, tenant, principal, "create_media_buy", res, nil)
		return res, nil
	}
	if end.Before(start) {
		res := failed(ErrCodeValidation, "flight_end_date is before flight_start_date")
		e.finish(ctx, tenant, principal, "create_media_buy", res, nil)
		return res, nil
	}

	compliance := policy.Check(req.PromotedOffering, tenant.Settings.Policy)
	e.metrics.IncrementPolicyDecision(string(compliance.Status))
	if compliance.Status == policy.StatusRejected {
		res := failed(ErrCodePolicyRejected, "promoted offering violates tenant policy")
		res.Data = map[string]any{"policy_compliance": compliance}
		e.finish(ctx, tenant, principal, "create_media_buy", res, nil)
		return res, nil
	}

	products := make([]*models.Product, 0, len(req.ProductIDs))
	for _, id := range req.ProductIDs {
		p, err := e.store.GetProduct(ctx, tenant.TenantID, id)
		if err != nil {
			res := failed(ErrCodeNotFound, fmt.Sprintf("product %s not found", id))
			e.finish(ctx, tenant, principal, "create_media_buy", res, nil)
			return res, nil
		}
		products = append(products, p)
	}

	mediaBuyID := "mb_" + uuid.NewString()[:12]
	orderName := req.OrderName
	if orderName == "" {
		orderName = fmt.Sprintf("%s order %s", principal.Name, mediaBuyID)
	}
	rawRequest, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("freeze raw request: %w", err)
	}

	mb := &models.MediaBuy{
		MediaBuyID:     mediaBuyID,
		TenantID:       tenant.TenantID,
		PrincipalID:    principal.PrincipalID,
		OrderName:      orderName,
		AdvertiserName: req.AdvertiserName,
		Budget:         req.TotalBudget,
		StartDate:      start,
		EndDate:        end,
		RawRequest:     rawRequest,
	}
	packages := buildPackages(mb, products)

	status, task, statusMessage := decideInitialStatus(tenant, principal, mb, products, compliance)
	mb.Status = status

	if req.DryRun {
		return e.dryRunCreate(ctx, tenant, principal, mb, packages, req.TargetingOverlay, compliance)
	}

	if err := e.store.CreateMediaBuy(ctx, mb, packages); err != nil {
		return nil, fmt.Errorf("persist media buy: %w", err)
	}
	if task != nil {
		if err := e.store.InsertTask(ctx, task); err != nil {
			return nil, fmt.Errorf("persist task: %w", err)
		}
		e.notifier.Notify(ctx, tenant, notify.Event{
			Type:        notify.EventMediaBuyPending,
			PrincipalID: principal.PrincipalID,
			MediaBuyID:  mediaBuyID,
			TaskID:      task.TaskID,
			Message:     fmt.Sprintf("Media buy %s requires %s", mediaBuyID, task.TaskType),
		})
	}

	adapter, fail := e.adapterFor(tenant)
	if fail != nil {
		e.finish(ctx, tenant, principal, "create_media_buy", fail, nil)
		return fail, nil
	}
	created, err := adapter.CreateMediaBuy(ctx, principal, mb, packages, req.TargetingOverlay, false)
	if err != nil {
		if isUnsupportedTargeting(err) {
			res := failed(ErrCodeUnsupported, err.Error())
			e.finish(ctx, tenant, principal, "create_media_buy", res, nil)
			return res, nil
		}
		// Upstream failure after the local write: the buy stays recorded
		// as failed and the caller issues a compensating action.
		if uerr := e.store.UpdateMediaBuyStatus(ctx, tenant.TenantID, mediaBuyID, models.MediaBuyStatusFailed); uerr != nil {
			e.logger.Error("failed to mark media buy failed", zap.String("media_buy_id", mediaBuyID), zap.Error(uerr))
		}
		res := failed(ErrCodeUpstream, fmt.Sprintf("ad server rejected the order: %v", err))
		res.Data = map[string]any{"media_buy_id": mediaBuyID}
		e.finish(ctx, tenant, principal, "create_media_buy", res, nil)
		return res, nil
	}

	mb.AdServerOrderID = created.MediaBuyID
	if err := e.store.UpdateMediaBuy(ctx, mb); err != nil {
		return nil, fmt.Errorf("record ad server order id: %w", err)
	}

	var hasGuaranteed bool
	for _, p := range products {
		if p.DeliveryType == models.DeliveryTypeGuaranteed {
			hasGuaranteed = true
		}
	}
	// In the mixed case only the non-guaranteed portion activates now;
	// the guaranteed line items follow the ad server approval path, so
	// the auto-activation guard must not see them.
	if status == models.MediaBuyStatusActive && !hasGuaranteed {
		ures, err := adapter.UpdateMediaBuy(ctx, principal, adapters.UpdateRequest{
			MediaBuyID: mediaBuyID,
			Action:     adapters.ActionActivateOrder,
			Today:      time.Now().UTC(),
		}, false)
		if err != nil {
			res := failed(ErrCodeUpstream, fmt.Sprintf("activation failed: %v", err))
			e.finish(ctx, tenant, principal, "create_media_buy", res, nil)
			return res, nil
		}
		if len(ures.Errors) > 0 {
			res := failed(ErrCodeUpstream, ures.Errors[0].Message)
			e.finish(ctx, tenant, principal, "create_media_buy", res, nil)
			return res, nil
		}
	}

	data := map[string]any{
		"media_buy_id":      mediaBuyID,
		"status":            status,
		"policy_compliance": compliance,
	}
	if e.convos != nil {
		if c, err := e.convos.GetOrCreate(ctx, tenant.TenantID, principal.PrincipalID, "adcp", req.ContextID); err == nil {
			data["context_id"] = c.ContextID
		}
	}
	res := completed(statusMessage, data)
	e.finish(ctx, tenant, principal, "create_media_buy", res, map[string]any{
		"media_buy_id": mediaBuyID,
		"budget":       req.TotalBudget,
		"status":       status,
	})
	return res, nil
}

func (e *Executor) dryRunCreate(ctx context.Context, tenant *models.Tenant, principal *models.Principal, mb *models.MediaBuy, packages []models.Package, targeting *models.Targeting, compliance policy.Result) (*TaskResult, error) {
	adapter, fail := e.adapterFor(tenant)
	if fail != nil {
		return fail, nil
	}
	created, err := adapter.CreateMediaBuy(ctx, principal, mb, packages, targeting, true)
	if err != nil {
		if isUnsupportedTargeting(err) {
			return failed(ErrCodeUnsupported, err.Error()), nil
		}
		return failed(ErrCodeValidation, err.Error()), nil
	}
	res := completed("dry run: media buy validated, nothing persisted", map[string]any{
		"media_buy_id":      created.MediaBuyID,
		"status":            created.Status,
		"policy_compliance": compliance,
	})
	e.finish(ctx, tenant, principal, "create_media_buy", res, map[string]any{"dry_run": true})
	return res, nil
}

func isUnsupportedTargeting(err error) bool {
	return strings.Contains(err.Error(), "unsupported targeting")
}

// buildPackages splits the budget evenly across products, one package per
// product. Package IDs embed the product ID so creative placeholder
// resolution can fall back to it.
func buildPackages(mb *models.MediaBuy, products []*models.Product) []models.Package {
	share := mb.Budget / float64(len(products))
	out := make([]models.Package, 0, len(products))
	for i, p := range products {
		cpm := p.CPM
		var impressions int64
		if cpm > 0 {
			impressions = int64(share / cpm * 1000)
		}
		out = append(out, models.Package{
			PackageID:    fmt.Sprintf("pkg_%s_%d", p.ProductID, i),
			MediaBuyID:   mb.MediaBuyID,
			TenantID:     mb.TenantID,
			ProductID:    p.ProductID,
			Impressions:  impressions,
			CPM:          cpm,
			DeliveryType: p.DeliveryType,
			FormatIDs:    p.Formats,
			Config:       models.PackageConfig{Budget: share},
		})
	}
	return out
}

// decideInitialStatus applies the creation-time decision tree. The mixed
// rule: a buy holding both guaranteed and automatic non-guaranteed
// products activates immediately; the guaranteed part follows the ad
// server's own approval path.
func decideInitialStatus(tenant *models.Tenant, principal *models.Principal, mb *models.MediaBuy, products []*models.Product, compliance policy.Result) (string, *models.Task, string) {
	newTask := func(taskType string) *models.Task {
		return &models.Task{
			TaskID:      "task_" + uuid.NewString()[:12],
			TenantID:    tenant.TenantID,
			PrincipalID: principal.PrincipalID,
			MediaBuyID:  mb.MediaBuyID,
			TaskType:    taskType,
			Status:      models.TaskStatusPending,
			CreatedAt:   time.Now().UTC(),
			Details:     map[string]any{"order_name": mb.OrderName},
		}
	}

	if compliance.Status == policy.StatusReviewRequired || tenant.Settings.HumanReviewRequired {
		return models.MediaBuyStatusPendingApproval, newTask(models.TaskTypeApproveMediaBuy),
			fmt.Sprintf("Media buy %s is pending human approval", mb.MediaBuyID)
	}

	var hasGuaranteed, hasConfirmation, hasAutomatic bool
	for _, p := range products {
		if p.DeliveryType == models.DeliveryTypeGuaranteed {
			hasGuaranteed = true
			continue
		}
		switch p.Automation() {
		case models.AutomationAutomatic:
			hasAutomatic = true
		case models.AutomationConfirmationRequired:
			hasConfirmation = true
		}
	}

	if hasGuaranteed && !hasAutomatic {
		return models.MediaBuyStatusPendingActivation, nil,
			fmt.Sprintf("Media buy %s awaits ad server approval", mb.MediaBuyID)
	}
	if hasConfirmation {
		return models.MediaBuyStatusPendingConfirmation, newTask(models.TaskTypeActivateGAMOrder),
			fmt.Sprintf("Media buy %s requires activation confirmation", mb.MediaBuyID)
	}
	if hasAutomatic {
		return models.MediaBuyStatusActive, nil,
			fmt.Sprintf("Media buy %s was automatically activated", mb.MediaBuyID)
	}
	return models.MediaBuyStatusPendingActivation, nil,
		fmt.Sprintf("Media buy %s awaits manual activation", mb.MediaBuyID)
}

// GetMediaBuyStatus reads the persisted state, not the ad server.
func (e *Executor) GetMediaBuyStatus(ctx context.Context, mediaBuyID string) (*TaskResult, error) {
	tenant, principal, err := e.identity(ctx)
	if err != nil {
		return nil, err
	}
	mb, fail := e.ownedMediaBuy(ctx, tenant, principal, mediaBuyID)
	if fail != nil {
		e.finish(ctx, tenant, principal, "get_media_buy_status", fail, nil)
		return fail, nil
	}
	res := completed("", map[string]any{
		"media_buy_id":      mb.MediaBuyID,
		"status":            mb.Status,
		"budget":            mb.Budget,
		"flight_start_date": mb.StartDate.Format(dateLayout),
		"flight_end_date":   mb.EndDate.Format(dateLayout),
	})
	e.finish(ctx, tenant, principal, "get_media_buy_status", res, nil)
	return res, nil
}

// UpdateMediaBuyRequest mutates an existing media buy. Only targeting,
// flight dates, budget actions and the adapter action set are supported.
type UpdateMediaBuyRequest struct {
	MediaBuyID       string            `json:"media_buy_id" validate:"required"`
	Action           string            `json:"action,omitempty"`
	PackageID        string            `json:"package_id,omitempty"`
	Budget           *float64          `json:"budget,omitempty"`
	TargetingOverlay *models.Targeting `json:"targeting_overlay,omitempty"`
	FlightStartDate  string            `json:"flight_start_date,omitempty"`
	FlightEndDate    string            `json:"flight_end_date,omitempty"`
	// UnsupportedFields carries request keys the facade could not map to
	// a supported update; any entry fails the call.
	UnsupportedFields []string `json:"-"`
	DryRun            bool     `json:"dry_run,omitempty"`
}

// UpdateMediaBuy verifies ownership and applies the requested change.
func (e *Executor) UpdateMediaBuy(ctx context.Context, req UpdateMediaBuyRequest) (*TaskResult, error) {
	tenant, principal, err := e.identity(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.validate.Struct(req); err != nil {
		res := validationFailed(err)
		e.finish(ctx, tenant, principal, "update_media_buy", res, nil)
		return res, nil
	}
	if len(req.UnsupportedFields) > 0 {
		res := failed(ErrCodeUnsupportedUpdate,
			fmt.Sprintf("unsupported update fields: %s", strings.Join(req.UnsupportedFields, ", ")))
		e.finish(ctx, tenant, principal, "update_media_buy", res, nil)
		return res, nil
	}

	mb, fail := e.ownedMediaBuy(ctx, tenant, principal, req.MediaBuyID)
	if fail != nil {
		e.finish(ctx, tenant, principal, "update_media_buy", fail, nil)
		return fail, nil
	}

	// Flight date changes are local-only updates.
	if req.FlightStartDate != "" || req.FlightEndDate != "" {
		if res := e.applyDateUpdate(ctx, mb, req); res != nil {
			e.finish(ctx, tenant, principal, "update_media_buy", res, nil)
			return res, nil
		}
	}

	// Targeting overlay changes re-validate against the adapter before
	// rewriting the frozen request.
	if req.TargetingOverlay != nil {
		if res, err := e.applyTargetingUpdate(ctx, tenant, principal, mb, req.TargetingOverlay); res != nil || err != nil {
			if res != nil {
				e.finish(ctx, tenant, principal, "update_media_buy", res, nil)
			}
			return res, err
		}
	}

	if req.Action == "" && req.Budget == nil {
		res := completed(fmt.Sprintf("media buy %s updated", req.MediaBuyID), map[string]any{
			"media_buy_id": req.MediaBuyID,
			"status":       mb.Status,
		})
		e.finish(ctx, tenant, principal, "update_media_buy", res, nil)
		return res, nil
	}

	action := req.Action
	if action == "" && req.Budget != nil {
		action = adapters.ActionUpdatePackageBudget
	}

	adapter, afail := e.adapterFor(tenant)
	if afail != nil {
		e.finish(ctx, tenant, principal, "update_media_buy", afail, nil)
		return afail, nil
	}
	ures, err := adapter.UpdateMediaBuy(ctx, principal, adapters.UpdateRequest{
		MediaBuyID: req.MediaBuyID,
		Action:     action,
		PackageID:  req.PackageID,
		Budget:     req.Budget,
		Today:      time.Now().UTC(),
	}, req.DryRun)
	if err != nil {
		res := failed(ErrCodeUpstream, fmt.Sprintf("update failed: %v", err))
		e.finish(ctx, tenant, principal, "update_media_buy", res, nil)
		return res, nil
	}
	if len(ures.Errors) > 0 {
		res := failed(ures.Errors[0].Code, ures.Errors[0].Message)
		res.Data = map[string]any{"errors": ures.Errors}
		e.finish(ctx, tenant, principal, "update_media_buy", res, nil)
		return res, nil
	}

	if action == adapters.ActionActivateOrder {
		if err := e.store.UpdateMediaBuyStatus(ctx, tenant.TenantID, req.MediaBuyID, models.MediaBuyStatusActive); err != nil {
			return nil, fmt.Errorf("record activation: %w", err)
		}
	}

	res := completed(ures.Message, map[string]any{"media_buy_id": req.MediaBuyID, "action": action})
	e.finish(ctx, tenant, principal, "update_media_buy", res, map[string]any{"action": action})
	return res, nil
}

func (e *Executor) applyDateUpdate(ctx context.Context, mb *models.MediaBuy, req UpdateMediaBuyRequest) *TaskResult {
	if req.FlightStartDate != "" {
		start, err := time.Parse(dateLayout, req.FlightStartDate)
		if err != nil {
			return failed(ErrCodeValidation, fmt.Sprintf("invalid flight_start_date: %v", err))
		}
		mb.StartDate = start
	}
	if req.FlightEndDate != "" {
		end, err := time.Parse(dateLayout, req.FlightEndDate)
		if err != nil {
			return failed(ErrCodeValidation, fmt.Sprintf("invalid flight_end_date: %v", err))
		}
		mb.EndDate = end
	}
	if mb.EndDate.Before(mb.StartDate) {
		return failed(ErrCodeValidation, "flight_end_date is before flight_start_date")
	}
	if err := e.store.UpdateMediaBuy(ctx, mb); err != nil {
		return failed(ErrCodeUpstream, fmt.Sprintf("persist date update: %v", err))
	}
	return nil
}

func (e *Executor) applyTargetingUpdate(ctx context.Context, tenant *models.Tenant, principal *models.Principal, mb *models.MediaBuy, overlay *models.Targeting) (*TaskResult, error) {
	adapter, fail := e.adapterFor(tenant)
	if fail != nil {
		return fail, nil
	}
	packages, err := e.store.ListPackages(ctx, tenant.TenantID, mb.MediaBuyID)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	// Validation-only call: the adapter rejects anything it cannot book.
	if _, err := adapter.CreateMediaBuy(ctx, principal, mb, packages, overlay, true); err != nil {
		if isUnsupportedTargeting(err) {
			return failed(ErrCodeUnsupported, err.Error()), nil
		}
		return failed(ErrCodeValidation, err.Error()), nil
	}

	var raw map[string]any
	if len(mb.RawRequest) > 0 {
		if err := json.Unmarshal(mb.RawRequest, &raw); err != nil {
			raw = map[string]any{}
		}
	} else {
		raw = map[string]any{}
	}
	raw["targeting_overlay"] = overlay
	frozen, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("refreeze raw request: %w", err)
	}
	mb.RawRequest = frozen
	if err := e.store.UpdateMediaBuy(ctx, mb); err != nil {
		return nil, fmt.Errorf("persist targeting update: %w", err)
	}
	return nil, nil
}

// GetMediaBuyDeliveryRequest bounds the reporting window.
type GetMediaBuyDeliveryRequest struct {
	MediaBuyID string `json:"media_buy_id" validate:"required"`
	StartDate  string `json:"start_date,omitempty"`
	EndDate    string `json:"end_date,omitempty"`
}

// GetMediaBuyDelivery aggregates spend and volume and derives the coarse
// flight status from the dates.
func (e *Executor) GetMediaBuyDelivery(ctx context.Context, req GetMediaBuyDeliveryRequest) (*TaskResult, error) {
	tenant, principal, err := e.identity(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.validate.Struct(req); err != nil {
		res := validationFailed(err)
		e.finish(ctx, tenant, principal, "get_media_buy_delivery", res, nil)
		return res, nil
	}
	mb, fail := e.ownedMediaBuy(ctx, tenant, principal, req.MediaBuyID)
	if fail != nil {
		e.finish(ctx, tenant, principal, "get_media_buy_delivery", fail, nil)
		return fail, nil
	}

	start := mb.StartDate
	end := mb.EndDate.Add(24 * time.Hour)
	if req.StartDate != "" {
		if t, err := time.Parse(dateLayout, req.StartDate); err == nil {
			start = t
		}
	}
	if req.EndDate != "" {
		if t, err := time.Parse(dateLayout, req.EndDate); err == nil {
			end = t.Add(24 * time.Hour)
		}
	}

	report, err := e.delivery.GetMediaBuyDelivery(ctx, tenant.TenantID, req.MediaBuyID, start, end)
	if err != nil {
		return nil, fmt.Errorf("delivery report: %w", err)
	}

	res := completed("", map[string]any{
		"media_buy_id": mb.MediaBuyID,
		"status":       mb.FlightStatus(time.Now().UTC()),
		"spend":        report.Spend,
		"impressions":  report.Impressions,
		"clicks":       report.Clicks,
		"ctr":          report.CTR,
		"cpm":          report.CPM,
	})
	e.finish(ctx, tenant, principal, "get_media_buy_delivery", res, nil)
	return res, nil
}
