package gam

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openadsales/gateway/internal/models"
)

func TestSyncInventorySummary(t *testing.T) {
	env := newGAMEnv(t)

	got, err := env.adapter.SyncInventory(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusCompleted, got.Status)
	assert.NotEmpty(t, got.SyncID)
	assert.Equal(t, 4, got.Summary.AdUnits)
	assert.Equal(t, 2, got.Summary.CustomTargetingKeys)
	assert.Equal(t, 3, got.Summary.CustomTargetingValues)

	job, err := env.store.GetSyncJob(context.Background(), "pub1", got.SyncID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusCompleted, job.Status)
	require.NotNil(t, job.CompletedAt)
}

func TestSyncFullIncludesOrders(t *testing.T) {
	env := newGAMEnv(t)
	mb, pkgs := env.newMediaBuy(t, "prod_news")
	env.book(t, mb, pkgs)

	got, err := env.adapter.SyncFull(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Summary.AdUnits)
	assert.Equal(t, 1, got.Summary.Orders)
}

func TestSyncSkipsWhenFresh(t *testing.T) {
	env := newGAMEnv(t)
	ctx := context.Background()

	first, err := env.adapter.SyncInventory(ctx, true)
	require.NoError(t, err)

	second, err := env.adapter.SyncInventory(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, first.SyncID, second.SyncID)

	forced, err := env.adapter.SyncInventory(ctx, true)
	require.NoError(t, err)
	assert.NotEqual(t, first.SyncID, forced.SyncID)
}

func TestSyncConflict(t *testing.T) {
	env := newGAMEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.TryStartSyncJob(ctx, &models.SyncJob{
		SyncID:    "sync_running",
		TenantID:  "pub1",
		SyncType:  models.SyncTypeInventory,
		Status:    models.SyncStatusRunning,
		StartedAt: time.Now().UTC(),
	}))

	_, err := env.adapter.SyncInventory(ctx, true)
	assert.ErrorIs(t, err, models.ErrConflict)

	// A different sync type is not blocked.
	_, err = env.adapter.SyncOrders(ctx, true)
	assert.NoError(t, err)
}

func TestNeedsSync(t *testing.T) {
	env := newGAMEnv(t)
	ctx := context.Background()

	needed, err := env.adapter.NeedsSync(ctx, models.SyncTypeInventory, 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, needed)

	_, err = env.adapter.SyncInventory(ctx, true)
	require.NoError(t, err)

	needed, err = env.adapter.NeedsSync(ctx, models.SyncTypeInventory, 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, needed)

	needed, err = env.adapter.NeedsSync(ctx, models.SyncTypeInventory, time.Nanosecond)
	require.NoError(t, err)
	assert.True(t, needed)
}
