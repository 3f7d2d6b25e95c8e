package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Julienbatt/DringDring-sub000/internal/apperrors"
	"github.com/Julienbatt/DringDring-sub000/internal/messaging"
	"github.com/Julienbatt/DringDring-sub000/internal/metrics"
	"github.com/Julienbatt/DringDring-sub000/internal/models"
	"github.com/Julienbatt/DringDring-sub000/internal/repositories"
	"github.com/Julienbatt/DringDring-sub000/internal/tariff"
	"github.com/Julienbatt/DringDring-sub000/internal/tracing"
)

// Actor identifies the user performing a write, as resolved by the
// gateway in front of this service.
type Actor struct {
	ID   uuid.UUID
	Name string
}

// DeliveryPayload is the shop's input for one delivery.
type DeliveryPayload struct {
	ClientID     uuid.UUID        `json:"client_id"`
	DeliveryDate time.Time        `json:"delivery_date"`
	Bags         int              `json:"bags"`
	OrderAmount  *decimal.Decimal `json:"order_amount"`
}

// DeliveryService records deliveries: resolves the shop and client
// context, prices through the tariff engine and snapshots everything
// into immutable per-delivery rows.
type DeliveryService struct {
	db           *gorm.DB
	shopRepo     *repositories.ShopRepository
	clientRepo   *repositories.ClientRepository
	tariffRepo   *repositories.TariffRepository
	deliveryRepo *repositories.DeliveryRepository
	billingRepo  *repositories.BillingRepository
	publisher    messaging.Publisher
	metrics      *metrics.Metrics
	tracer       tracing.Tracer
}

// NewDeliveryService creates a new delivery service
func NewDeliveryService(
	db *gorm.DB,
	publisher messaging.Publisher,
	m *metrics.Metrics,
	tracer tracing.Tracer,
) *DeliveryService {
	return &DeliveryService{
		db:           db,
		shopRepo:     repositories.NewShopRepository(db),
		clientRepo:   repositories.NewClientRepository(db),
		tariffRepo:   repositories.NewTariffRepository(db),
		deliveryRepo: repositories.NewDeliveryRepository(db),
		billingRepo:  repositories.NewBillingRepository(db),
		publisher:    publisher,
		metrics:      m,
		tracer:       tracer,
	}
}

type deliveryContext struct {
	shop    *models.Shop
	client  *models.Client
	version *models.TariffVersion
	split   tariff.Split
}

// resolve runs the validation chain shared by Create and Preview.
func (s *DeliveryService) resolve(ctx context.Context, shopID uuid.UUID, payload DeliveryPayload) (*deliveryContext, error) {
	shop, err := s.shopRepo.GetByID(ctx, shopID)
	if err != nil {
		return nil, err
	}

	client, err := s.clientRepo.GetByID(ctx, payload.ClientID)
	if err != nil {
		return nil, err
	}
	if client.CityID != shop.CityID {
		return nil, apperrors.InvalidInput("client is not in the shop's city")
	}

	period, err := s.billingRepo.GetPeriod(ctx, shop.ID, models.MonthKey(payload.DeliveryDate))
	if err != nil {
		return nil, err
	}
	if period != nil {
		return nil, apperrors.Conflict("period %s is frozen for this shop", period.PeriodMonth)
	}

	if shop.TariffGridID == nil {
		return nil, apperrors.InvalidInput("shop has no tariff grid")
	}
	version, err := s.tariffRepo.ActiveVersion(ctx, *shop.TariffGridID, payload.DeliveryDate)
	if err != nil {
		return nil, err
	}

	split, err := s.price(version, payload.Bags, payload.OrderAmount, client.IsCMS)
	if err != nil {
		return nil, err
	}

	return &deliveryContext{shop: shop, client: client, version: version, split: split}, nil
}

func (s *DeliveryService) price(version *models.TariffVersion, bags int, orderAmount *decimal.Decimal, isCMS bool) (tariff.Split, error) {
	var fallback map[string]float64
	if len(version.Share) > 0 {
		// Share column is the grid-level percent map; rule-level shares
		// override it inside ParseRule.
		if err := unmarshalShares(version.Share, &fallback); err != nil {
			return tariff.Split{}, err
		}
	}
	rule, err := tariff.ParseRule(version.RuleType, version.Rule, fallback)
	if err != nil {
		return tariff.Split{}, err
	}
	return tariff.Compute(rule, tariff.Input{Bags: bags, OrderAmount: orderAmount, IsCMS: isCMS})
}

// Preview prices a delivery without persisting anything.
func (s *DeliveryService) Preview(ctx context.Context, shopID uuid.UUID, payload DeliveryPayload) (tariff.Split, error) {
	dc, err := s.resolve(ctx, shopID, payload)
	if err != nil {
		return tariff.Split{}, err
	}
	return dc.split, nil
}

// Create records a delivery: one transaction inserts the delivery, the
// client snapshot, the financial row and the initial status event.
func (s *DeliveryService) Create(ctx context.Context, shopID uuid.UUID, payload DeliveryPayload) (uuid.UUID, error) {
	txn := s.tracer.StartTransaction("create-delivery")
	defer s.tracer.EndTransaction(txn)

	dc, err := s.resolve(ctx, shopID, payload)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return uuid.Nil, err
	}

	deliveryID := uuid.New()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		delivery := models.Delivery{
			ID:            deliveryID,
			ShopID:        dc.shop.ID,
			HQID:          dc.shop.HQID,
			CityID:        dc.shop.CityID,
			AdminRegionID: dc.shop.City.AdminRegionID,
			ClientID:      dc.client.ID,
			DeliveryDate:  payload.DeliveryDate,
		}
		if err := tx.Create(&delivery).Error; err != nil {
			return errors.Wrap(err, "failed to insert delivery")
		}

		logistics := models.DeliveryLogistics{
			DeliveryID:       deliveryID,
			ClientName:       dc.client.FullName(),
			ClientStreet:     dc.client.Street,
			ClientPostalCode: dc.client.PostalCode,
			ClientCity:       dc.client.City.Name,
			Bags:             payload.Bags,
			OrderAmount:      payload.OrderAmount,
			IsCMS:            dc.client.IsCMS,
		}
		if err := tx.Create(&logistics).Error; err != nil {
			return errors.Wrap(err, "failed to insert logistics snapshot")
		}

		financial := financialRow(deliveryID, dc.version.ID, dc.split)
		if err := tx.Create(&financial).Error; err != nil {
			return errors.Wrap(err, "failed to insert financial row")
		}

		status := models.DeliveryStatus{
			ID:         uuid.New(),
			DeliveryID: deliveryID,
			Status:     models.StatusCreated,
		}
		if err := tx.Create(&status).Error; err != nil {
			return errors.Wrap(err, "failed to insert initial status")
		}
		return nil
	})
	if err != nil {
		s.tracer.RecordError(txn, err)
		return uuid.Nil, err
	}

	s.metrics.IncrementCounter("deliveries_created")
	log.Info().
		Str("delivery_id", deliveryID.String()).
		Str("shop_id", shopID.String()).
		Str("total", dc.split.Total.StringFixed(2)).
		Msg("Delivery recorded")

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, messaging.EventDeliveryCreated, map[string]string{
			"delivery_id": deliveryID.String(),
			"shop_id":     shopID.String(),
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to publish delivery event")
		}
	}

	return deliveryID, nil
}

// Calculate prices a pre-inserted delivery exactly once. A second call
// observes the existing financial row and fails with Conflict.
func (s *DeliveryService) Calculate(ctx context.Context, deliveryID uuid.UUID) (tariff.Split, error) {
	delivery, err := s.deliveryRepo.GetByID(ctx, deliveryID)
	if err != nil {
		return tariff.Split{}, err
	}

	priced, err := s.deliveryRepo.HasFinancial(ctx, deliveryID)
	if err != nil {
		return tariff.Split{}, err
	}
	if priced {
		return tariff.Split{}, apperrors.Conflict("delivery %s is already priced", deliveryID)
	}

	var logistics models.DeliveryLogistics
	if err := s.db.WithContext(ctx).First(&logistics, "delivery_id = ?", deliveryID).Error; err != nil {
		return tariff.Split{}, apperrors.Internal(err, "failed to load logistics snapshot")
	}

	if delivery.Shop.TariffGridID == nil {
		return tariff.Split{}, apperrors.InvalidInput("shop has no tariff grid")
	}
	version, err := s.tariffRepo.ActiveVersion(ctx, *delivery.Shop.TariffGridID, delivery.DeliveryDate)
	if err != nil {
		return tariff.Split{}, err
	}

	split, err := s.price(version, logistics.Bags, logistics.OrderAmount, logistics.IsCMS)
	if err != nil {
		return tariff.Split{}, err
	}

	financial := financialRow(deliveryID, version.ID, split)
	if err := s.db.WithContext(ctx).Create(&financial).Error; err != nil {
		return tariff.Split{}, errors.Wrap(err, "failed to insert financial row")
	}
	return split, nil
}

// statusRank orders the monotone path; issue and cancelled sit outside
// of it.
var statusRank = map[string]int{
	models.StatusCreated:   0,
	models.StatusAssigned:  1,
	models.StatusPickedUp:  2,
	models.StatusDelivered: 3,
}

// AppendStatus appends a status event, enforcing the monotone
// lifecycle. Cancellation is allowed at any non-final point.
func (s *DeliveryService) AppendStatus(ctx context.Context, deliveryID uuid.UUID, status string) error {
	if _, ok := statusRank[status]; !ok && status != models.StatusIssue && status != models.StatusCancelled {
		return apperrors.InvalidInput("unknown status %q", status)
	}

	current, err := s.deliveryRepo.CurrentStatus(ctx, deliveryID)
	if err != nil {
		return err
	}
	if current.Status == models.StatusDelivered || current.Status == models.StatusCancelled {
		return apperrors.Conflict("delivery is already %s", current.Status)
	}
	if rank, ok := statusRank[status]; ok {
		if cur, onPath := statusRank[current.Status]; onPath && rank <= cur {
			return apperrors.Conflict("cannot move from %s to %s", current.Status, status)
		}
	}

	return s.deliveryRepo.AppendStatus(ctx, deliveryID, status)
}

func financialRow(deliveryID, versionID uuid.UUID, split tariff.Split) models.DeliveryFinancial {
	return models.DeliveryFinancial{
		DeliveryID:       deliveryID,
		TariffVersionID:  versionID,
		TotalPrice:       split.Total,
		ShareClient:      split.ShareClient,
		ShareShop:        split.ShareShop,
		ShareCity:        split.ShareCity,
		ShareAdminRegion: split.ShareAdminRegion,
	}
}

func unmarshalShares(raw []byte, out *map[string]float64) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.InvalidInput("tariff share map is malformed: %v", err)
	}
	return nil
}
