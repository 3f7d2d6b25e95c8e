package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Julienbatt/DringDring-sub000/internal/apperrors"
	"github.com/Julienbatt/DringDring-sub000/internal/models"
)

func testPayload(f *fixture, bags int) DeliveryPayload {
	return DeliveryPayload{
		ClientID:     f.client.ID,
		DeliveryDate: time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC),
		Bags:         bags,
	}
}

func TestCreateDelivery(t *testing.T) {
	f := newFixture(t)
	svc := f.deliveryService()
	ctx := context.Background()

	id, err := svc.Create(ctx, f.shop.ID, testPayload(f, 3))
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	var financial models.DeliveryFinancial
	require.NoError(t, f.db.First(&financial, "delivery_id = ?", id).Error)
	// 3 bags at 10 per block of 2 = 2 blocks = 20.00.
	require.True(t, financial.TotalPrice.Equal(decimal.RequireFromString("20")),
		"total %s", financial.TotalPrice)
	sum := financial.ShareClient.Add(financial.ShareShop).
		Add(financial.ShareCity).Add(financial.ShareAdminRegion)
	require.True(t, sum.Equal(financial.TotalPrice))

	var logistics models.DeliveryLogistics
	require.NoError(t, f.db.First(&logistics, "delivery_id = ?", id).Error)
	require.Equal(t, "Claire Dubois", logistics.ClientName)
	require.Equal(t, 3, logistics.Bags)

	var status models.DeliveryStatus
	require.NoError(t, f.db.First(&status, "delivery_id = ?", id).Error)
	require.Equal(t, models.StatusCreated, status.Status)
}

func TestCreateDeliveryUnknownClient(t *testing.T) {
	f := newFixture(t)
	payload := testPayload(f, 2)
	payload.ClientID = uuid.New()

	_, err := f.deliveryService().Create(context.Background(), f.shop.ID, payload)
	require.Error(t, err)
	require.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestCreateDeliveryClientInOtherCity(t *testing.T) {
	f := newFixture(t)
	other := models.City{ID: uuid.New(), Name: "Lancy", AdminRegionID: f.region.ID}
	require.NoError(t, f.db.Create(&other).Error)
	stranger := models.Client{ID: uuid.New(), FirstName: "Paul", LastName: "Morel", CityID: other.ID}
	require.NoError(t, f.db.Create(&stranger).Error)

	payload := testPayload(f, 2)
	payload.ClientID = stranger.ID
	_, err := f.deliveryService().Create(context.Background(), f.shop.ID, payload)
	require.Error(t, err)
	require.Equal(t, apperrors.KindInvalidInput, apperrors.KindOf(err))
}

func TestCreateDeliveryFrozenMonth(t *testing.T) {
	f := newFixture(t)
	period := models.BillingPeriod{
		ID:          uuid.New(),
		ShopID:      f.shop.ID,
		PeriodMonth: "2025-03",
		FrozenBy:    f.actor.ID,
		PDFURL:      "memory://billing-pdf/x",
		PDFSHA256:   "0",
		PDFGeneratedAt: time.Now(),
	}
	require.NoError(t, f.db.Create(&period).Error)

	_, err := f.deliveryService().Create(context.Background(), f.shop.ID, testPayload(f, 2))
	require.Error(t, err)
	require.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestCreateDeliveryNoActiveTariff(t *testing.T) {
	f := newFixture(t)
	payload := testPayload(f, 2)
	payload.DeliveryDate = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	_, err := f.deliveryService().Create(context.Background(), f.shop.ID, payload)
	require.Error(t, err)
	require.Equal(t, apperrors.KindInvalidInput, apperrors.KindOf(err))
}

func TestPreviewPersistsNothing(t *testing.T) {
	f := newFixture(t)
	split, err := f.deliveryService().Preview(context.Background(), f.shop.ID, testPayload(f, 4))
	require.NoError(t, err)
	require.True(t, split.Total.Equal(decimal.RequireFromString("20")))

	var count int64
	require.NoError(t, f.db.Model(&models.Delivery{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestCalculateOnce(t *testing.T) {
	f := newFixture(t)
	svc := f.deliveryService()
	ctx := context.Background()

	// Insert an unpriced delivery by hand, then price it through the
	// one-shot operation.
	delivery := models.Delivery{
		ID:            uuid.New(),
		ShopID:        f.shop.ID,
		HQID:          f.shop.HQID,
		CityID:        f.city.ID,
		AdminRegionID: f.region.ID,
		ClientID:      f.client.ID,
		DeliveryDate:  time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.db.Create(&delivery).Error)
	require.NoError(t, f.db.Create(&models.DeliveryLogistics{
		DeliveryID: delivery.ID,
		ClientName: "Claire Dubois",
		Bags:       2,
	}).Error)

	split, err := svc.Calculate(ctx, delivery.ID)
	require.NoError(t, err)
	require.True(t, split.Total.Equal(decimal.RequireFromString("10")))

	_, err = svc.Calculate(ctx, delivery.ID)
	require.Error(t, err)
	require.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestAppendStatusMonotone(t *testing.T) {
	f := newFixture(t)
	svc := f.deliveryService()
	ctx := context.Background()

	id, err := svc.Create(ctx, f.shop.ID, testPayload(f, 2))
	require.NoError(t, err)

	require.NoError(t, svc.AppendStatus(ctx, id, models.StatusAssigned))
	require.NoError(t, svc.AppendStatus(ctx, id, models.StatusPickedUp))

	// Backwards is refused.
	err = svc.AppendStatus(ctx, id, models.StatusAssigned)
	require.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

	require.NoError(t, svc.AppendStatus(ctx, id, models.StatusDelivered))

	// Delivered is final.
	err = svc.AppendStatus(ctx, id, models.StatusCancelled)
	require.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestAppendStatusCancelBeforeFinal(t *testing.T) {
	f := newFixture(t)
	svc := f.deliveryService()
	ctx := context.Background()

	id, err := svc.Create(ctx, f.shop.ID, testPayload(f, 2))
	require.NoError(t, err)

	require.NoError(t, svc.AppendStatus(ctx, id, models.StatusCancelled))
	err = svc.AppendStatus(ctx, id, models.StatusAssigned)
	require.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestAppendStatusUnknown(t *testing.T) {
	f := newFixture(t)
	id, err := f.deliveryService().Create(context.Background(), f.shop.ID, testPayload(f, 2))
	require.NoError(t, err)

	err = f.deliveryService().AppendStatus(context.Background(), id, "teleported")
	require.Equal(t, apperrors.KindInvalidInput, apperrors.KindOf(err))
}
