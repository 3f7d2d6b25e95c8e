package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/Julienbatt/DringDring-sub000/internal/apperrors"
	"github.com/Julienbatt/DringDring-sub000/internal/models"
)

// DeliveryRepository provides access to deliveries and their
// snapshots.
type DeliveryRepository struct {
	db *gorm.DB
}

// NewDeliveryRepository creates a new delivery repository
func NewDeliveryRepository(db *gorm.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// Bundle joins a delivery with its logistics snapshot and, when
// priced, its financial row.
type Bundle struct {
	Delivery  models.Delivery
	Logistics models.DeliveryLogistics
	Financial *models.DeliveryFinancial
}

// GetByID loads a delivery with shop and city context.
func (r *DeliveryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Delivery, error) {
	var delivery models.Delivery
	err := r.db.WithContext(ctx).
		Preload("Shop").
		Preload("Shop.HQ").
		Preload("City").
		First(&delivery, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("delivery %s not found", id)
		}
		return nil, errors.Wrap(err, "failed to get delivery")
	}
	return &delivery, nil
}

// HasFinancial reports whether a delivery is already priced.
func (r *DeliveryRepository) HasFinancial(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.DeliveryFinancial{}).
		Where("delivery_id = ?", id).Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "failed to check delivery financial")
	}
	return count > 0, nil
}

// ListForShopMonth loads the bundles of one shop-month.
func (r *DeliveryRepository) ListForShopMonth(ctx context.Context, shopID uuid.UUID, month time.Time) ([]Bundle, error) {
	start, end := models.MonthBounds(month)
	var deliveries []models.Delivery
	err := r.db.WithContext(ctx).
		Where("shop_id = ? AND delivery_date >= ? AND delivery_date < ?", shopID, start, end).
		Order("delivery_date, created_at").
		Find(&deliveries).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list shop deliveries")
	}
	return r.attachSnapshots(ctx, deliveries)
}

// ListForRegionMonth loads the bundles of one region-month, with shop,
// HQ and city preloaded for payor bucketing.
func (r *DeliveryRepository) ListForRegionMonth(ctx context.Context, regionID uuid.UUID, month time.Time) ([]Bundle, error) {
	start, end := models.MonthBounds(month)
	var deliveries []models.Delivery
	err := r.db.WithContext(ctx).
		Joins("JOIN cities ON cities.id = deliveries.city_id").
		Where("cities.admin_region_id = ? AND deliveries.delivery_date >= ? AND deliveries.delivery_date < ?",
			regionID, start, end).
		Preload("Shop").
		Preload("Shop.HQ").
		Preload("City").
		Order("deliveries.delivery_date, deliveries.created_at").
		Find(&deliveries).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list region deliveries")
	}
	return r.attachSnapshots(ctx, deliveries)
}

func (r *DeliveryRepository) attachSnapshots(ctx context.Context, deliveries []models.Delivery) ([]Bundle, error) {
	if len(deliveries) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, len(deliveries))
	for i, d := range deliveries {
		ids[i] = d.ID
	}

	var logistics []models.DeliveryLogistics
	if err := r.db.WithContext(ctx).Where("delivery_id IN ?", ids).Find(&logistics).Error; err != nil {
		return nil, errors.Wrap(err, "failed to load logistics snapshots")
	}
	logisticsByID := make(map[uuid.UUID]models.DeliveryLogistics, len(logistics))
	for _, l := range logistics {
		logisticsByID[l.DeliveryID] = l
	}

	var financials []models.DeliveryFinancial
	if err := r.db.WithContext(ctx).Where("delivery_id IN ?", ids).Find(&financials).Error; err != nil {
		return nil, errors.Wrap(err, "failed to load financial rows")
	}
	financialByID := make(map[uuid.UUID]models.DeliveryFinancial, len(financials))
	for _, f := range financials {
		financialByID[f.DeliveryID] = f
	}

	bundles := make([]Bundle, 0, len(deliveries))
	for _, d := range deliveries {
		b := Bundle{Delivery: d, Logistics: logisticsByID[d.ID]}
		if f, ok := financialByID[d.ID]; ok {
			fin := f
			b.Financial = &fin
		}
		bundles = append(bundles, b)
	}
	return bundles, nil
}

// CurrentStatus returns the latest status row of a delivery.
func (r *DeliveryRepository) CurrentStatus(ctx context.Context, id uuid.UUID) (*models.DeliveryStatus, error) {
	var status models.DeliveryStatus
	err := r.db.WithContext(ctx).
		Where("delivery_id = ?", id).
		Order("updated_at DESC, id DESC").
		First(&status).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("delivery %s has no status", id)
		}
		return nil, errors.Wrap(err, "failed to get current status")
	}
	return &status, nil
}

// AppendStatus appends one status event.
func (r *DeliveryRepository) AppendStatus(ctx context.Context, deliveryID uuid.UUID, status string) error {
	row := models.DeliveryStatus{
		ID:         uuid.New(),
		DeliveryID: deliveryID,
		Status:     status,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.Wrap(err, "failed to append delivery status")
	}
	return nil
}
