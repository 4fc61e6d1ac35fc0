package gam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openadsales/gateway/internal/adapters"
	"github.com/openadsales/gateway/internal/models"
)

// SyncInventory pulls ad units and custom targeting from upstream. Unless
// forced, a fresh completed sync short-circuits.
func (a *Adapter) SyncInventory(ctx context.Context, force bool) (*adapters.SyncSummaryResult, error) {
	return a.runSync(ctx, models.SyncTypeInventory, force, a.collectInventory)
}

// SyncOrders pulls order state from upstream.
func (a *Adapter) SyncOrders(ctx context.Context, force bool) (*adapters.SyncSummaryResult, error) {
	return a.runSync(ctx, models.SyncTypeOrders, force, a.collectOrders)
}

// SyncFull combines inventory and order synchronization in one job.
func (a *Adapter) SyncFull(ctx context.Context, force bool) (*adapters.SyncSummaryResult, error) {
	return a.runSync(ctx, models.SyncTypeFull, force, func(ctx context.Context, summary *models.SyncSummary) error {
		if err := a.collectInventory(ctx, summary); err != nil {
			return err
		}
		return a.collectOrders(ctx, summary)
	})
}

// NeedsSync reports whether the latest completed job of the given type is
// missing or stale.
func (a *Adapter) NeedsSync(ctx context.Context, syncType string, maxAge time.Duration) (bool, error) {
	latest, err := a.store.LatestSyncJob(ctx, a.tenantID, syncType)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return true, nil
		}
		return false, fmt.Errorf("latest sync job: %w", err)
	}
	return latest.Stale(time.Now().UTC(), maxAge), nil
}

// runSync claims the (tenant, sync_type) slot via a conditional insert,
// runs the collector, and finishes the job row with the outcome. A second
// concurrent trigger surfaces models.ErrConflict to the caller.
func (a *Adapter) runSync(ctx context.Context, syncType string, force bool, collect func(context.Context, *models.SyncSummary) error) (*adapters.SyncSummaryResult, error) {
	start := time.Now()
	var err error
	defer func() { a.observe("sync_"+syncType, start, err) }()

	if !force {
		var needed bool
		needed, err = a.NeedsSync(ctx, syncType, 24*time.Hour)
		if err != nil {
			return nil, err
		}
		if !needed {
			var latest *models.SyncJob
			latest, err = a.store.LatestSyncJob(ctx, a.tenantID, syncType)
			if err != nil {
				return nil, fmt.Errorf("latest sync job: %w", err)
			}
			return &adapters.SyncSummaryResult{
				SyncID:  latest.SyncID,
				Status:  latest.Status,
				Summary: latest.Summary,
			}, nil
		}
	}

	job := &models.SyncJob{
		SyncID:    "sync_" + uuid.NewString(),
		TenantID:  a.tenantID,
		SyncType:  syncType,
		Status:    models.SyncStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err = a.store.TryStartSyncJob(ctx, job); err != nil {
		return nil, err
	}

	collectErr := collect(ctx, &job.Summary)
	now := time.Now().UTC()
	job.CompletedAt = &now
	if collectErr != nil {
		job.Status = models.SyncStatusFailed
		job.ErrorMessage = collectErr.Error()
	} else {
		job.Status = models.SyncStatusCompleted
	}
	a.metrics.IncrementSyncJob(syncType, job.Status)

	if finishErr := a.store.FinishSyncJob(ctx, job); finishErr != nil {
		a.logger.Error("failed to finish sync job",
			zap.String("sync_id", job.SyncID), zap.Error(finishErr))
	}
	if collectErr != nil {
		err = collectErr
		return nil, fmt.Errorf("%s sync: %w", syncType, collectErr)
	}
	return &adapters.SyncSummaryResult{SyncID: job.SyncID, Status: job.Status, Summary: job.Summary}, nil
}

func (a *Adapter) collectInventory(ctx context.Context, summary *models.SyncSummary) error {
	adUnits, err := a.client.ListAdUnits(ctx, "")
	if err != nil {
		return fmt.Errorf("list ad units upstream: %w", err)
	}
	summary.AdUnits = len(adUnits)

	keys, err := a.client.ListCustomTargetingKeys(ctx)
	if err != nil {
		return fmt.Errorf("list custom targeting upstream: %w", err)
	}
	summary.CustomTargetingKeys = len(keys)
	for _, k := range keys {
		summary.CustomTargetingValues += len(k.Values)
	}
	return nil
}

func (a *Adapter) collectOrders(ctx context.Context, summary *models.SyncSummary) error {
	orders, err := a.client.ListOrders(ctx)
	if err != nil {
		return fmt.Errorf("list orders upstream: %w", err)
	}
	summary.Orders = len(orders)
	return nil
}
