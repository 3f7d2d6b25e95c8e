package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Julienbatt/DringDring-sub000/internal/apperrors"
	"github.com/Julienbatt/DringDring-sub000/internal/cache"
	"github.com/Julienbatt/DringDring-sub000/internal/models"
)

// ShopRepository provides access to shop data
type ShopRepository struct {
	db *gorm.DB
}

// NewShopRepository creates a new shop repository
func NewShopRepository(db *gorm.DB) *ShopRepository {
	return &ShopRepository{db: db}
}

// GetByID loads a shop with its city, region and HQ context.
func (r *ShopRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Shop, error) {
	var shop models.Shop
	err := r.db.WithContext(ctx).
		Preload("City").
		Preload("City.AdminRegion").
		Preload("HQ").
		First(&shop, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("shop %s not found", id)
		}
		return nil, errors.Wrap(err, "failed to get shop")
	}
	return &shop, nil
}

// ListByRegion lists the shops whose city belongs to the region.
func (r *ShopRepository) ListByRegion(ctx context.Context, regionID uuid.UUID) ([]models.Shop, error) {
	var shops []models.Shop
	err := r.db.WithContext(ctx).
		Joins("JOIN cities ON cities.id = shops.city_id").
		Where("cities.admin_region_id = ?", regionID).
		Preload("City").
		Preload("HQ").
		Find(&shops).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list shops by region")
	}
	return shops, nil
}

// ClientRepository provides access to client data
type ClientRepository struct {
	db *gorm.DB
}

// NewClientRepository creates a new client repository
func NewClientRepository(db *gorm.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

// GetByID loads a client with its city.
func (r *ClientRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	var client models.Client
	err := r.db.WithContext(ctx).Preload("City").First(&client, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("client %s not found", id)
		}
		return nil, errors.Wrap(err, "failed to get client")
	}
	return &client, nil
}

// AdminRegionRepository provides access to admin regions
type AdminRegionRepository struct {
	db *gorm.DB
}

// NewAdminRegionRepository creates a new admin region repository
func NewAdminRegionRepository(db *gorm.DB) *AdminRegionRepository {
	return &AdminRegionRepository{db: db}
}

// GetByID loads an admin region.
func (r *AdminRegionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AdminRegion, error) {
	var region models.AdminRegion
	err := r.db.WithContext(ctx).First(&region, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("admin region %s not found", id)
		}
		return nil, errors.Wrap(err, "failed to get admin region")
	}
	return &region, nil
}

// CityRepository provides access to cities
type CityRepository struct {
	db *gorm.DB
}

// NewCityRepository creates a new city repository
func NewCityRepository(db *gorm.DB) *CityRepository {
	return &CityRepository{db: db}
}

// GetByID loads a city.
func (r *CityRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.City, error) {
	var city models.City
	err := r.db.WithContext(ctx).First(&city, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("city %s not found", id)
		}
		return nil, errors.Wrap(err, "failed to get city")
	}
	return &city, nil
}

// TariffRepository provides access to tariff versions
type TariffRepository struct {
	db *gorm.DB
}

// NewTariffRepository creates a new tariff repository
func NewTariffRepository(db *gorm.DB) *TariffRepository {
	return &TariffRepository{db: db}
}

// ActiveVersion finds the version of a grid valid on the given date.
// A nil valid_to keeps a version open-ended.
func (r *TariffRepository) ActiveVersion(ctx context.Context, gridID uuid.UUID, date time.Time) (*models.TariffVersion, error) {
	var version models.TariffVersion
	err := r.db.WithContext(ctx).
		Where("tariff_grid_id = ? AND valid_from <= ? AND (valid_to IS NULL OR valid_to >= ?)",
			gridID, date, date).
		Order("valid_from DESC").
		First(&version).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.InvalidInput("no tariff version active on %s", date.Format("2006-01-02"))
		}
		return nil, errors.Wrap(err, "failed to get active tariff version")
	}
	return &version, nil
}

// GetByID loads one tariff version.
func (r *TariffRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.TariffVersion, error) {
	var version models.TariffVersion
	err := r.db.WithContext(ctx).First(&version, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("tariff version %s not found", id)
		}
		return nil, errors.Wrap(err, "failed to get tariff version")
	}
	return &version, nil
}

// SettingsRepository reads the history-aware app settings.
type SettingsRepository struct {
	db    *gorm.DB
	cache *cache.RedisCache
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *gorm.DB, c *cache.RedisCache) *SettingsRepository {
	return &SettingsRepository{db: db, cache: c}
}

// VATRateAt returns the VAT rate effective at the given month: the
// latest row with effective_from at or before it, the fallback when no
// row exists.
func (r *SettingsRepository) VATRateAt(ctx context.Context, month time.Time, fallback decimal.Decimal) (decimal.Decimal, error) {
	cacheKey := "vat_rate:" + models.MonthKey(month)
	var cached string
	if err := r.cache.Get(ctx, cacheKey, &cached); err == nil {
		if rate, err := decimal.NewFromString(cached); err == nil {
			return rate, nil
		}
	}

	var setting models.AppSetting
	err := r.db.WithContext(ctx).
		Where("key = ? AND effective_from <= ?", models.SettingVATRate, month).
		Order("effective_from DESC").
		First(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fallback, nil
		}
		return decimal.Zero, errors.Wrap(err, "failed to read vat rate")
	}

	_ = r.cache.Set(ctx, cacheKey, setting.ValueNumeric.String(), time.Hour)
	return setting.ValueNumeric, nil
}
