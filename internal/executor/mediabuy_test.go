package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openadsales/gateway/internal/adapters"
	"github.com/openadsales/gateway/internal/analytics"
	"github.com/openadsales/gateway/internal/models"
)

func createRequest(productIDs ...string) CreateMediaBuyRequest {
	return CreateMediaBuyRequest{
		ProductIDs:      productIDs,
		TotalBudget:     10000,
		FlightStartDate: "2026-09-01",
		FlightEndDate:   "2026-09-30",
		OrderName:       "Fall Campaign",
	}
}

func TestCreateMediaBuyAutoActivates(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.exec.CreateMediaBuy(env.ctx(), createRequest("prod_news"))
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)
	assert.Contains(t, res.Message, "automatically activated")

	mbID := res.Data["media_buy_id"].(string)
	assert.Equal(t, models.MediaBuyStatusActive, res.Data["status"])

	mb, err := env.store.GetMediaBuy(env.ctx(), "pub1", mbID)
	require.NoError(t, err)
	assert.Equal(t, models.MediaBuyStatusActive, mb.Status)
	assert.Equal(t, "mock_order_"+mbID, mb.AdServerOrderID)

	// Automatic activation never opens a human task.
	tasks, err := env.store.ListTasksByMediaBuy(env.ctx(), "pub1", mbID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCreateMediaBuyGuaranteedAwaitsApproval(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.exec.CreateMediaBuy(env.ctx(), createRequest("prod_sports_video"))
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, models.MediaBuyStatusPendingActivation, res.Data["status"])

	mbID := res.Data["media_buy_id"].(string)
	tasks, err := env.store.ListTasksByMediaBuy(env.ctx(), "pub1", mbID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCreateMediaBuyConfirmationRequired(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.exec.CreateMediaBuy(env.ctx(), createRequest("prod_confirm"))
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, models.MediaBuyStatusPendingConfirmation, res.Data["status"])

	mbID := res.Data["media_buy_id"].(string)
	tasks, err := env.store.ListTasksByMediaBuy(env.ctx(), "pub1", mbID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.TaskTypeActivateGAMOrder, tasks[0].TaskType)
	assert.Equal(t, models.TaskStatusPending, tasks[0].Status)
}

func TestCreateMediaBuyMixedActivatesImmediately(t *testing.T) {
	env := newTestEnv(t)

	// Guaranteed plus automatic non-guaranteed: the buy goes active and the
	// guaranteed portion follows the ad server approval path.
	res, err := env.exec.CreateMediaBuy(env.ctx(), createRequest("prod_sports_video", "prod_news"))
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, models.MediaBuyStatusActive, res.Data["status"])
}

func TestCreateMediaBuyHumanReview(t *testing.T) {
	env := newTestEnv(t)
	env.tenant.Settings.HumanReviewRequired = true
	require.NoError(t, env.store.UpsertTenant(env.ctx(), env.tenant))

	res, err := env.exec.CreateMediaBuy(env.ctx(), createRequest("prod_news"))
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, models.MediaBuyStatusPendingApproval, res.Data["status"])

	mbID := res.Data["media_buy_id"].(string)
	tasks, err := env.store.ListTasksByMediaBuy(env.ctx(), "pub1", mbID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.TaskTypeApproveMediaBuy, tasks[0].TaskType)
}

func TestCreateMediaBuyPolicyRejected(t *testing.T) {
	env := newTestEnv(t)

	req := createRequest("prod_news")
	req.PromotedOffering = "acme discount vodka"
	res, err := env.exec.CreateMediaBuy(env.ctx(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, ErrCodePolicyRejected, res.Error)
	assert.Contains(t, res.Data, "policy_compliance")
}

func TestCreateMediaBuyDryRunPersistsNothing(t *testing.T) {
	env := newTestEnv(t)

	req := createRequest("prod_news")
	req.DryRun = true
	res, err := env.exec.CreateMediaBuy(env.ctx(), req)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "validated", res.Data["status"])
	assert.Contains(t, res.Data["media_buy_id"].(string), "dry_run_")

	_, err = env.store.GetMediaBuy(env.ctx(), "pub1", res.Data["media_buy_id"].(string))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreateMediaBuyUnknownProduct(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.exec.CreateMediaBuy(env.ctx(), createRequest("prod_missing"))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, ErrCodeNotFound, res.Error)
}

func TestCreateMediaBuyValidation(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.exec.CreateMediaBuy(env.ctx(), CreateMediaBuyRequest{
		ProductIDs:      []string{"prod_news"},
		TotalBudget:     5000,
		FlightStartDate: "2026-09-30",
		FlightEndDate:   "2026-09-01",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, ErrCodeValidation, res.Error)
}

func TestMediaBuyOwnership(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.exec.CreateMediaBuy(env.ctx(), createRequest("prod_news"))
	require.NoError(t, err)
	mbID := res.Data["media_buy_id"].(string)

	// Another principal in the same tenant must not see the buy.
	got, err := env.exec.GetMediaBuyStatus(env.ctxAs(env.other), mbID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, ErrCodeUnauthorized, got.Error)

	// The owner does.
	got, err = env.exec.GetMediaBuyStatus(env.ctx(), mbID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, mbID, got.Data["media_buy_id"])
}

func TestUpdateMediaBuyBudgetBelowDelivery(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.exec.CreateMediaBuy(env.ctx(), createRequest("prod_news"))
	require.NoError(t, err)
	mbID := res.Data["media_buy_id"].(string)

	pkgs, err := env.store.ListPackages(env.ctx(), "pub1", mbID)
	require.NoError(t, err)
	require.Len(t, pkgs, 1)

	cfg := pkgs[0].Config
	cfg.DeliveryMetrics.Spend = 15000
	require.NoError(t, env.store.UpdatePackageConfig(env.ctx(), "pub1", mbID, pkgs[0].PackageID, cfg))

	budget := 10000.0
	got, err := env.exec.UpdateMediaBuy(env.ctx(), UpdateMediaBuyRequest{
		MediaBuyID: mbID,
		PackageID:  pkgs[0].PackageID,
		Budget:     &budget,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, adapters.CodeBudgetBelowDelivery, got.Error)
	assert.Contains(t, got.Message, "new budget 10000.00 is below delivered spend 15000.00")
}

func TestUpdateMediaBuyBudgetCommits(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.exec.CreateMediaBuy(env.ctx(), createRequest("prod_news"))
	require.NoError(t, err)
	mbID := res.Data["media_buy_id"].(string)

	pkgs, err := env.store.ListPackages(env.ctx(), "pub1", mbID)
	require.NoError(t, err)

	budget := 20000.0
	got, err := env.exec.UpdateMediaBuy(env.ctx(), UpdateMediaBuyRequest{
		MediaBuyID: mbID,
		PackageID:  pkgs[0].PackageID,
		Budget:     &budget,
	})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)

	pkg, err := env.store.GetPackage(env.ctx(), "pub1", mbID, pkgs[0].PackageID)
	require.NoError(t, err)
	assert.Equal(t, 20000.0, pkg.Config.Budget)
}

func TestUpdateMediaBuyUnsupportedFields(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.exec.CreateMediaBuy(env.ctx(), createRequest("prod_news"))
	require.NoError(t, err)
	mbID := res.Data["media_buy_id"].(string)

	got, err := env.exec.UpdateMediaBuy(env.ctx(), UpdateMediaBuyRequest{
		MediaBuyID:        mbID,
		UnsupportedFields: []string{"creative_rotation"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, ErrCodeUnsupportedUpdate, got.Error)
	assert.Contains(t, got.Message, "creative_rotation")
}

func TestUpdateMediaBuyFlightDates(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.exec.CreateMediaBuy(env.ctx(), createRequest("prod_news"))
	require.NoError(t, err)
	mbID := res.Data["media_buy_id"].(string)

	got, err := env.exec.UpdateMediaBuy(env.ctx(), UpdateMediaBuyRequest{
		MediaBuyID:    mbID,
		FlightEndDate: "2026-10-15",
	})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)

	mb, err := env.store.GetMediaBuy(env.ctx(), "pub1", mbID)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-15", mb.EndDate.Format("2006-01-02"))
}

func TestGetMediaBuyDelivery(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.exec.CreateMediaBuy(env.ctx(), createRequest("prod_news"))
	require.NoError(t, err)
	mbID := res.Data["media_buy_id"].(string)

	env.delivery.Reports[mbID] = &analytics.DeliveryReport{
		Spend:       2500,
		Impressions: 500000,
		Clicks:      1500,
	}

	got, err := env.exec.GetMediaBuyDelivery(env.ctx(), GetMediaBuyDeliveryRequest{MediaBuyID: mbID})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, mbID, got.Data["media_buy_id"])
	assert.Equal(t, 2500.0, got.Data["spend"])
	assert.Equal(t, int64(500000), got.Data["impressions"])
	assert.Equal(t, int64(1500), got.Data["clicks"])
	assert.InDelta(t, 0.003, got.Data["ctr"].(float64), 1e-9)
	assert.InDelta(t, 5.0, got.Data["cpm"].(float64), 1e-9)
}
