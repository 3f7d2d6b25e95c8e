package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Julienbatt/DringDring-sub000/internal/apperrors"
	"github.com/Julienbatt/DringDring-sub000/internal/models"
)

func createDeliveries(t *testing.T, f *fixture, shop models.Shop, days ...int) {
	t.Helper()
	svc := f.deliveryService()
	for _, day := range days {
		payload := DeliveryPayload{
			ClientID:     f.client.ID,
			DeliveryDate: time.Date(2025, 3, day, 9, 0, 0, 0, time.UTC),
			Bags:         2,
		}
		_, err := svc.Create(context.Background(), shop.ID, payload)
		require.NoError(t, err)
	}
}

func TestFreezeShopMonth(t *testing.T) {
	f := newFixture(t)
	createDeliveries(t, f, f.indep, 3, 10, 17)

	period, err := f.freezeService().FreezeShopMonth(context.Background(), f.indep.ID, "2025-03", f.actor)
	require.NoError(t, err)
	require.Equal(t, "2025-03", period.PeriodMonth)
	require.Equal(t, "marie", period.FrozenByName)
	require.Len(t, period.PDFSHA256, 64)
	require.Equal(t, 1, f.blob.Len())

	stored, err := f.blob.Download(context.Background(), f.cfg.Blob.PDFBucket, "shop/"+f.indep.ID.String()+"/2025-03.pdf")
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(stored, []byte("%PDF")))

	// The recorded hash belongs to the stored bytes.
	sum := sha256.Sum256(stored)
	require.Equal(t, hex.EncodeToString(sum[:]), period.PDFSHA256)
}

func TestFreezeShopMonthTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	createDeliveries(t, f, f.indep, 3)
	svc := f.freezeService()
	ctx := context.Background()

	_, err := svc.FreezeShopMonth(ctx, f.indep.ID, "2025-03", f.actor)
	require.NoError(t, err)

	_, err = svc.FreezeShopMonth(ctx, f.indep.ID, "2025-03", f.actor)
	require.Error(t, err)
	require.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

	// Exactly one period row survives.
	var count int64
	require.NoError(t, f.db.Model(&models.BillingPeriod{}).
		Where("shop_id = ?", f.indep.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestFreezeEmptyMonth(t *testing.T) {
	f := newFixture(t)
	_, err := f.freezeService().FreezeShopMonth(context.Background(), f.indep.ID, "2025-03", f.actor)
	require.Error(t, err)
	require.Equal(t, apperrors.KindInvalidInput, apperrors.KindOf(err))
}

func TestFreezeBadMonthKey(t *testing.T) {
	f := newFixture(t)
	_, err := f.freezeService().FreezeShopMonth(context.Background(), f.indep.ID, "März 2025", f.actor)
	require.Error(t, err)
	require.Equal(t, apperrors.KindInvalidInput, apperrors.KindOf(err))
}

func TestFreezeBlocksNewDeliveries(t *testing.T) {
	f := newFixture(t)
	createDeliveries(t, f, f.indep, 3)

	_, err := f.freezeService().FreezeShopMonth(context.Background(), f.indep.ID, "2025-03", f.actor)
	require.NoError(t, err)

	payload := DeliveryPayload{
		ClientID:     f.client.ID,
		DeliveryDate: time.Date(2025, 3, 28, 9, 0, 0, 0, time.UTC),
		Bags:         2,
	}
	_, err = f.deliveryService().Create(context.Background(), f.indep.ID, payload)
	require.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

	// The next month stays open.
	payload.DeliveryDate = time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)
	_, err = f.deliveryService().Create(context.Background(), f.indep.ID, payload)
	require.NoError(t, err)
}

func TestFreezeRegionOutcomes(t *testing.T) {
	f := newFixture(t)
	// Only the independent shop has deliveries; the chain shop is
	// skipped, and a pre-frozen shop reports the conflict.
	createDeliveries(t, f, f.indep, 3, 4)

	outcomes, err := f.freezeService().FreezeRegion(context.Background(), f.region.ID, "2025-03", f.actor)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	byName := map[string]ShopOutcome{}
	for _, o := range outcomes {
		byName[o.ShopName] = o
	}
	require.Equal(t, OutcomeFrozen, byName[f.indep.Name].Status)
	require.Equal(t, OutcomeSkipped, byName[f.shop.Name].Status)
	require.Equal(t, "no deliveries", byName[f.shop.Name].Detail)

	// Rerunning the batch never fails; the frozen shop now skips too.
	outcomes, err = f.freezeService().FreezeRegion(context.Background(), f.region.ID, "2025-03", f.actor)
	require.NoError(t, err)
	byName = map[string]ShopOutcome{}
	for _, o := range outcomes {
		byName[o.ShopName] = o
	}
	require.Equal(t, OutcomeSkipped, byName[f.indep.Name].Status)
	require.Equal(t, "already frozen", byName[f.indep.Name].Detail)
}
