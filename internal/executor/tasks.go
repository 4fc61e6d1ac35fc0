package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openadsales/gateway/internal/models"
	"github.com/openadsales/gateway/internal/notify"
)

// CreateHumanTaskRequest opens a manual work item for tenant operators.
type CreateHumanTaskRequest struct {
	TaskType   string         `json:"task_type,omitempty"`
	MediaBuyID string         `json:"media_buy_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// CreateHumanTask creates a pending task and notifies the tenant's
// human-in-the-loop channels.
func (e *Executor) CreateHumanTask(ctx context.Context, req CreateHumanTaskRequest) (*TaskResult, error) {
	tenant, principal, err := e.identity(ctx)
	if err != nil {
		return nil, err
	}

	taskType := req.TaskType
	if taskType == "" {
		taskType = models.TaskTypeManual
	}
	task := &models.Task{
		TaskID:      "task_" + uuid.NewString()[:12],
		TenantID:    tenant.TenantID,
		PrincipalID: principal.PrincipalID,
		MediaBuyID:  req.MediaBuyID,
		TaskType:    taskType,
		Status:      models.TaskStatusPending,
		Details:     req.Details,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.store.InsertTask(ctx, task); err != nil {
		return nil, fmt.Errorf("persist task: %w", err)
	}

	e.notifier.Notify(ctx, tenant, notify.Event{
		Type:        notify.EventTaskCreated,
		PrincipalID: principal.PrincipalID,
		MediaBuyID:  req.MediaBuyID,
		TaskID:      task.TaskID,
		Message:     fmt.Sprintf("New %s task %s", taskType, task.TaskID),
		Details:     req.Details,
	})

	res := completed(fmt.Sprintf("task %s created", task.TaskID), map[string]any{
		"task_id": task.TaskID,
		"status":  task.Status,
	})
	res.TaskID = task.TaskID
	e.finish(ctx, tenant, principal, "create_human_task", res, map[string]any{"task_type": taskType})
	return res, nil
}

// VerifyTask reports whether a task has been completed.
func (e *Executor) VerifyTask(ctx context.Context, taskID string) (*TaskResult, error) {
	tenant, principal, err := e.identity(ctx)
	if err != nil {
		return nil, err
	}
	task, err := e.store.GetTask(ctx, tenant.TenantID, taskID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			res := failed(ErrCodeNotFound, fmt.Sprintf("task %s not found", taskID))
			e.finish(ctx, tenant, principal, "verify_task", res, nil)
			return res, nil
		}
		return nil, fmt.Errorf("load task: %w", err)
	}

	res := completed("", map[string]any{
		"task_id":   task.TaskID,
		"status":    task.Status,
		"completed": task.Status == models.TaskStatusCompleted,
	})
	res.TaskID = task.TaskID
	e.finish(ctx, tenant, principal, "verify_task", res, nil)
	return res, nil
}

// ScanOverdueTasks flags pending tasks older than the overdue threshold
// and notifies the tenant. Run periodically from the gateway main loop.
func (e *Executor) ScanOverdueTasks(ctx context.Context) error {
	tenants, err := e.store.ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}
	now := time.Now().UTC()
	for i := range tenants {
		tenant := &tenants[i]
		overdue, err := e.store.ListOverdueTasks(ctx, tenant.TenantID, now)
		if err != nil {
			return fmt.Errorf("overdue tasks for %s: %w", tenant.TenantID, err)
		}
		for _, task := range overdue {
			e.notifier.Notify(ctx, tenant, notify.Event{
				Type:       notify.EventTaskOverdue,
				MediaBuyID: task.MediaBuyID,
				TaskID:     task.TaskID,
				Message: fmt.Sprintf("Task %s (%s) has been pending for more than %s",
					task.TaskID, task.TaskType, models.OverdueAfter),
			})
		}
	}
	return nil
}
