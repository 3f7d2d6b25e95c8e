package services

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Julienbatt/DringDring-sub000/config"
	"github.com/Julienbatt/DringDring-sub000/internal/apperrors"
	"github.com/Julienbatt/DringDring-sub000/internal/cache"
	"github.com/Julienbatt/DringDring-sub000/internal/messaging"
	"github.com/Julienbatt/DringDring-sub000/internal/metrics"
	"github.com/Julienbatt/DringDring-sub000/internal/models"
	"github.com/Julienbatt/DringDring-sub000/internal/qrbill"
	"github.com/Julienbatt/DringDring-sub000/internal/repositories"
	"github.com/Julienbatt/DringDring-sub000/internal/swissref"
	"github.com/Julienbatt/DringDring-sub000/internal/tracing"
)

// AggregationService rebuilds the payor documents of a region-month.
// Frozen documents are never touched; everything else is regenerated
// from the deliveries on every run.
type AggregationService struct {
	db           *gorm.DB
	cfg          config.Config
	regionRepo   *repositories.AdminRegionRepository
	cityRepo     *repositories.CityRepository
	deliveryRepo *repositories.DeliveryRepository
	billingRepo  *repositories.BillingRepository
	settingsRepo *repositories.SettingsRepository
	publisher    messaging.Publisher
	metrics      *metrics.Metrics
	tracer       tracing.Tracer
}

// NewAggregationService creates a new aggregation service
func NewAggregationService(
	db *gorm.DB,
	cfg config.Config,
	redis *cache.RedisCache,
	publisher messaging.Publisher,
	m *metrics.Metrics,
	tracer tracing.Tracer,
) *AggregationService {
	return &AggregationService{
		db:           db,
		cfg:          cfg,
		regionRepo:   repositories.NewAdminRegionRepository(db),
		cityRepo:     repositories.NewCityRepository(db),
		deliveryRepo: repositories.NewDeliveryRepository(db),
		billingRepo:  repositories.NewBillingRepository(db),
		settingsRepo: repositories.NewSettingsRepository(db, redis),
		publisher:    publisher,
		metrics:      m,
		tracer:       tracer,
	}
}

// payorKey identifies one payor bucket inside a run.
type payorKey struct {
	Type string
	ID   uuid.UUID
}

// payorBucket accumulates one document's lines before insertion.
type payorBucket struct {
	key       payorKey
	recipient qrbill.Party
	lines     []models.BillingDocumentLine
	total     decimal.Decimal
}

func (b *payorBucket) add(line models.BillingDocumentLine) {
	b.lines = append(b.lines, line)
	b.total = b.total.Add(line.AmountDue)
}

// Aggregate rebuilds the non-frozen documents of (region, month) and
// returns the run with its documents reloaded.
func (s *AggregationService) Aggregate(ctx context.Context, regionID uuid.UUID, monthKey string, actor Actor) (*models.BillingRun, error) {
	txn := s.tracer.StartTransaction("aggregate-region-month")
	defer s.tracer.EndTransaction(txn)

	month, err := models.ParseMonth(monthKey)
	if err != nil {
		return nil, err
	}

	region, err := s.regionRepo.GetByID(ctx, regionID)
	if err != nil {
		return nil, err
	}

	run, err := s.billingRepo.UpsertRun(ctx, regionID, monthKey, actor.ID)
	if err != nil {
		return nil, err
	}
	if run.Status == models.BillingStatusFrozen {
		return nil, apperrors.Conflict("run %s/%s is frozen", region.Name, monthKey)
	}

	frozenDocs, err := s.billingRepo.FrozenDocuments(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	frozen := make(map[payorKey]bool, len(frozenDocs))
	for _, d := range frozenDocs {
		frozen[payorKey{Type: d.RecipientType, ID: d.RecipientID}] = true
	}

	rate, err := s.settingsRepo.VATRateAt(ctx, month, decimal.NewFromFloat(s.cfg.Billing.DefaultVATRate))
	if err != nil {
		return nil, err
	}

	creditor, err := qrbill.MergeParties(regionCreditor(region), defaultCreditor(s.cfg.Billing))
	if err != nil {
		return nil, err
	}
	externalIBAN := region.BillingIBAN
	if externalIBAN == "" {
		externalIBAN = s.cfg.Billing.CreditorIBAN
	}
	if externalIBAN == "" {
		return nil, apperrors.InvalidInput("region %s has no creditor IBAN", region.Name)
	}

	bundles, err := s.deliveryRepo.ListForRegionMonth(ctx, regionID, month)
	if err != nil {
		return nil, err
	}

	buckets, err := s.bucketDeliveries(ctx, region, bundles)
	if err != nil {
		return nil, err
	}

	compact := models.CompactMonth(month)
	var docs []*models.BillingDocument
	for _, b := range buckets {
		if frozen[b.key] {
			continue
		}

		iban := externalIBAN
		docCreditor := creditor
		if b.key.Type == models.RecipientInternal {
			iban = region.InternalBillingIBAN
			docCreditor = internalCreditor(region)
		}

		seed := b.key.Type + b.key.ID.String() + compact
		ref, scheme, err := swissref.Reference(iban, seed)
		if err != nil {
			return nil, err
		}

		ht, vat := SplitVAT(b.total, rate)
		doc := &models.BillingDocument{
			ID:            uuid.New(),
			RunID:         run.ID,
			RecipientType: b.key.Type,
			RecipientID:   b.key.ID,
			PeriodMonth:   monthKey,
			Status:        models.BillingStatusDraft,

			AmountHT:  ht,
			AmountVAT: vat,
			AmountTTC: b.total,
			VATRate:   rate,

			RecipientName:       b.recipient.Name,
			RecipientStreet:     joinAddress(b.recipient.Street, b.recipient.HouseNo),
			RecipientPostalCode: b.recipient.PostalCode,
			RecipientCity:       b.recipient.City,
			RecipientCountry:    countryOrCH(b.recipient.Country),

			CreditorName:       docCreditor.Name,
			CreditorIBAN:       iban,
			CreditorStreet:     docCreditor.Street,
			CreditorHouseNo:    docCreditor.HouseNo,
			CreditorPostalCode: docCreditor.PostalCode,
			CreditorCity:       docCreditor.City,
			CreditorCountry:    countryOrCH(docCreditor.Country),

			Reference:       ref,
			ReferenceScheme: string(scheme),
			PaymentMessage:  "Livraisons " + monthKey,
		}
		for i := range b.lines {
			b.lines[i].ID = uuid.New()
			b.lines[i].DocumentID = doc.ID
		}
		doc.Lines = b.lines
		docs = append(docs, doc)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.billingRepo.DeleteDraftDocuments(tx, run.ID); err != nil {
			return err
		}
		for _, doc := range docs {
			lines := doc.Lines
			doc.Lines = nil
			if err := tx.Create(doc).Error; err != nil {
				return errors.Wrap(err, "failed to insert billing document")
			}
			if len(lines) > 0 {
				if err := tx.CreateInBatches(lines, 200).Error; err != nil {
					return errors.Wrap(err, "failed to insert document lines")
				}
			}
			doc.Lines = lines
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementCounter("runs_aggregated")
	log.Info().
		Str("region_id", regionID.String()).
		Str("month", monthKey).
		Int("documents", len(docs)).
		Int("frozen_kept", len(frozenDocs)).
		Msg("Run aggregated")

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, messaging.EventRunAggregated, map[string]string{
			"region_id": regionID.String(),
			"month":     monthKey,
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to publish aggregation event")
		}
	}

	return s.billingRepo.GetRun(ctx, regionID, monthKey)
}

// bucketDeliveries distributes the financial shares of every delivery
// into payor buckets. Sub-commune deliveries roll up to the parent
// commune; the independent sentinel routes the region share to the shop
// itself instead of an HQ.
func (s *AggregationService) bucketDeliveries(ctx context.Context, region *models.AdminRegion, bundles []repositories.Bundle) ([]*payorBucket, error) {
	buckets := make(map[payorKey]*payorBucket)
	get := func(key payorKey, recipient qrbill.Party) *payorBucket {
		if b, ok := buckets[key]; ok {
			return b
		}
		b := &payorBucket{key: key, recipient: recipient}
		buckets[key] = b
		return b
	}

	parents := make(map[uuid.UUID]*models.City)
	parentOf := func(city models.City) (*models.City, error) {
		if city.ParentCityID == nil {
			c := city
			return &c, nil
		}
		if p, ok := parents[*city.ParentCityID]; ok {
			return p, nil
		}
		p, err := s.cityRepo.GetByID(ctx, *city.ParentCityID)
		if err != nil {
			return nil, err
		}
		parents[*city.ParentCityID] = p
		return p, nil
	}

	internalEnabled := s.cfg.Billing.InternalDocumentsEnabled &&
		region.InternalBillingName != "" && region.InternalBillingIBAN != ""

	for _, b := range bundles {
		if b.Financial == nil {
			continue
		}
		commune, err := parentOf(b.Delivery.City)
		if err != nil {
			return nil, err
		}

		meta := models.BillingDocumentLine{
			ShopID:       &b.Delivery.ShopID,
			DeliveryID:   &b.Delivery.ID,
			DeliveryDate: b.Delivery.DeliveryDate,
			ShopName:     b.Delivery.Shop.Name,
			ClientName:   b.Logistics.ClientName,
			CommuneName:  commune.Name,
			Bags:         b.Logistics.Bags,
			TotalPrice:   b.Financial.TotalPrice,
		}

		if b.Financial.ShareCity.IsPositive() {
			line := meta
			line.AmountDue = b.Financial.ShareCity
			get(payorKey{Type: models.RecipientCommune, ID: commune.ID}, qrbill.Party{
				Name:       "Commune de " + commune.Name,
				Street:     commune.BillingStreet,
				PostalCode: commune.PostalCode,
				City:       commune.Name,
			}).add(line)
		}

		if b.Financial.ShareAdminRegion.IsPositive() {
			line := meta
			line.AmountDue = b.Financial.ShareAdminRegion
			if models.IsIndependentHQ(b.Delivery.Shop.HQ) {
				get(payorKey{Type: models.RecipientShopIndep, ID: b.Delivery.ShopID}, qrbill.Party{
					Name:       b.Delivery.Shop.Name,
					Street:     b.Delivery.Shop.Street,
					PostalCode: b.Delivery.Shop.PostalCode,
					City:       commune.Name,
				}).add(line)
			} else {
				hq := b.Delivery.Shop.HQ
				get(payorKey{Type: models.RecipientHQ, ID: hq.ID}, qrbill.Party{
					Name:       hq.Name,
					Street:     hq.Street,
					PostalCode: hq.PostalCode,
					City:       hq.City,
				}).add(line)
			}
		}

		if internalEnabled && b.Financial.TotalPrice.IsPositive() {
			line := meta
			line.AmountDue = b.Financial.TotalPrice
			get(payorKey{Type: models.RecipientInternal, ID: region.ID}, qrbill.Party{
				Name:       region.InternalBillingName,
				Street:     region.InternalBillingStreet,
				HouseNo:    region.InternalBillingHouseNo,
				PostalCode: region.InternalBillingPostalCode,
				City:       region.InternalBillingCity,
				Country:    region.InternalBillingCountry,
			}).add(line)
		}
	}

	out := make([]*payorBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].key.Type != out[j].key.Type {
			return out[i].key.Type < out[j].key.Type
		}
		return out[i].key.ID.String() < out[j].key.ID.String()
	})
	return out, nil
}

func internalCreditor(region *models.AdminRegion) qrbill.Party {
	return qrbill.Party{
		Name:       region.InternalBillingName,
		Street:     region.InternalBillingStreet,
		HouseNo:    region.InternalBillingHouseNo,
		PostalCode: region.InternalBillingPostalCode,
		City:       region.InternalBillingCity,
		Country:    region.InternalBillingCountry,
	}
}

func joinAddress(street, houseNo string) string {
	if houseNo == "" {
		return street
	}
	if street == "" {
		return houseNo
	}
	return street + " " + houseNo
}

func countryOrCH(c string) string {
	if c == "" {
		return "CH"
	}
	return c
}
