package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/Julienbatt/DringDring-sub000/config"
	"github.com/Julienbatt/DringDring-sub000/internal/apperrors"
	"github.com/Julienbatt/DringDring-sub000/internal/cache"
	"github.com/Julienbatt/DringDring-sub000/internal/messaging"
	"github.com/Julienbatt/DringDring-sub000/internal/metrics"
	"github.com/Julienbatt/DringDring-sub000/internal/models"
	"github.com/Julienbatt/DringDring-sub000/internal/pdfgen"
	"github.com/Julienbatt/DringDring-sub000/internal/qrbill"
	"github.com/Julienbatt/DringDring-sub000/internal/repositories"
	"github.com/Julienbatt/DringDring-sub000/internal/storage"
	"github.com/Julienbatt/DringDring-sub000/internal/swissref"
	"github.com/Julienbatt/DringDring-sub000/internal/tracing"
)

// freezeWorkers bounds the bulk region freeze fan-out.
const freezeWorkers = 4

// FreezeService closes shop-months: it renders the shop's monthly
// statement, uploads it and inserts the billing_period row that blocks
// further deliveries in that month.
type FreezeService struct {
	db           *gorm.DB
	cfg          config.Config
	shopRepo     *repositories.ShopRepository
	deliveryRepo *repositories.DeliveryRepository
	billingRepo  *repositories.BillingRepository
	settingsRepo *repositories.SettingsRepository
	blob         storage.BlobStore
	publisher    messaging.Publisher
	metrics      *metrics.Metrics
	tracer       tracing.Tracer
}

// NewFreezeService creates a new freeze service
func NewFreezeService(
	db *gorm.DB,
	cfg config.Config,
	redis *cache.RedisCache,
	blob storage.BlobStore,
	publisher messaging.Publisher,
	m *metrics.Metrics,
	tracer tracing.Tracer,
) *FreezeService {
	return &FreezeService{
		db:           db,
		cfg:          cfg,
		shopRepo:     repositories.NewShopRepository(db),
		deliveryRepo: repositories.NewDeliveryRepository(db),
		billingRepo:  repositories.NewBillingRepository(db),
		settingsRepo: repositories.NewSettingsRepository(db, redis),
		blob:         blob,
		publisher:    publisher,
		metrics:      m,
		tracer:       tracer,
	}
}

// defaultCreditor is the env-configured fallback layer of the creditor
// chain.
func defaultCreditor(cfg config.BillingConfig) qrbill.Party {
	return qrbill.Party{
		Name:       cfg.CreditorName,
		Street:     cfg.CreditorStreet,
		HouseNo:    cfg.CreditorHouseNo,
		PostalCode: cfg.CreditorPostalCode,
		City:       cfg.CreditorCity,
		Country:    cfg.CreditorCountry,
	}
}

// regionCreditor builds the external creditor party of an admin region,
// splitting the legacy free-form address when structured fields are
// absent.
func regionCreditor(region *models.AdminRegion) qrbill.Party {
	p := qrbill.Party{
		Name:       region.BillingName,
		Street:     region.BillingStreet,
		HouseNo:    region.BillingHouseNo,
		PostalCode: region.BillingPostalCode,
		City:       region.BillingCity,
		Country:    region.BillingCountry,
	}
	if p.Street == "" && p.PostalCode == "" && region.BillingAddress != "" {
		p.Street, p.HouseNo, p.PostalCode, p.City = qrbill.SplitLegacyAddress(region.BillingAddress)
	}
	return p
}

// FreezeShopMonth closes one shop-month. Uploads happen before the
// committing insert; a concurrent loser discards its bytes and reports
// the winner's row as a conflict.
func (s *FreezeService) FreezeShopMonth(ctx context.Context, shopID uuid.UUID, monthKey string, actor Actor) (*models.BillingPeriod, error) {
	txn := s.tracer.StartTransaction("freeze-shop-month")
	defer s.tracer.EndTransaction(txn)

	month, err := models.ParseMonth(monthKey)
	if err != nil {
		return nil, err
	}

	shop, err := s.shopRepo.GetByID(ctx, shopID)
	if err != nil {
		return nil, err
	}

	if existing, err := s.billingRepo.GetPeriod(ctx, shopID, monthKey); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, apperrors.Conflict("period %s already frozen by %s", monthKey, existing.FrozenByName)
	}

	bundles, err := s.deliveryRepo.ListForShopMonth(ctx, shopID, month)
	if err != nil {
		return nil, err
	}
	if len(bundles) == 0 {
		return nil, apperrors.InvalidInput("no deliveries for shop %s in %s", shop.Name, monthKey)
	}

	doc, err := s.buildStatement(ctx, shop, month, monthKey, bundles)
	if err != nil {
		return nil, err
	}

	pdf, err := pdfgen.Render(*doc)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(pdf)
	sha := hex.EncodeToString(sum[:])

	key := storage.ShopPeriodKey(shopID.String(), monthKey)
	url, err := s.blob.Upload(ctx, s.cfg.Blob.PDFBucket, key, pdf, "application/pdf")
	if err != nil {
		return nil, apperrors.External(err, "failed to upload statement PDF")
	}

	period := &models.BillingPeriod{
		ID:             uuid.New(),
		ShopID:         shopID,
		PeriodMonth:    monthKey,
		FrozenBy:       actor.ID,
		FrozenByName:   actor.Name,
		PDFURL:         url,
		PDFSHA256:      sha,
		PDFGeneratedAt: time.Now().UTC(),
	}
	inserted, err := s.billingRepo.InsertPeriod(ctx, period)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// Lost the race. The winner's sha256 is the one of record.
		winner, err := s.billingRepo.GetPeriod(ctx, shopID, monthKey)
		if err != nil {
			return nil, err
		}
		if winner != nil {
			return nil, apperrors.Conflict("period %s already frozen by %s", monthKey, winner.FrozenByName)
		}
		return nil, apperrors.Conflict("period %s already frozen", monthKey)
	}

	s.metrics.IncrementCounter("periods_frozen")
	log.Info().
		Str("shop_id", shopID.String()).
		Str("month", monthKey).
		Str("actor", actor.Name).
		Msg("Period frozen")

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, messaging.EventPeriodFrozen, map[string]string{
			"shop_id": shopID.String(),
			"month":   monthKey,
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to publish freeze event")
		}
	}

	return period, nil
}

// buildStatement assembles the shop's statement. Independent shops get
// a payable invoice with a QR-bill over their own share; chain shops
// get an informational summary, the chain HQ is billed through
// aggregation instead.
func (s *FreezeService) buildStatement(ctx context.Context, shop *models.Shop, month time.Time, monthKey string, bundles []repositories.Bundle) (*pdfgen.Document, error) {
	var lines []pdfgen.Line
	shopShare := decimal.Zero
	for _, b := range bundles {
		amount := decimal.Zero
		if b.Financial != nil {
			amount = b.Financial.ShareShop
		}
		shopShare = shopShare.Add(amount)
		lines = append(lines, pdfgen.Line{
			Date:       b.Delivery.DeliveryDate,
			ShopName:   shop.Name,
			ClientName: b.Logistics.ClientName,
			Commune:    b.Logistics.ClientCity,
			Bags:       b.Logistics.Bags,
			Amount:     amount,
		})
	}

	doc := &pdfgen.Document{
		Title:       "Relevé mensuel des livraisons",
		PeriodMonth: monthKey,
		Recipient: qrbill.Party{
			Name:       shop.Name,
			Street:     shop.Street,
			PostalCode: shop.PostalCode,
			City:       shop.City.Name,
			Country:    "CH",
		},
		Lines: lines,
	}

	if !models.IsIndependentHQ(shop.HQ) {
		// Chain shop: informational statement, billed through the HQ.
		doc.Creditor = qrbill.Party{Name: shop.City.AdminRegion.BillingName}
		doc.Notes = "Document récapitulatif. La facturation est adressée au siège de l'enseigne."
		doc.AmountTTC = shopShare
		return doc, nil
	}

	doc.Title = "Facture mensuelle des livraisons"

	rate, err := s.settingsRepo.VATRateAt(ctx, month, decimal.NewFromFloat(s.cfg.Billing.DefaultVATRate))
	if err != nil {
		return nil, err
	}
	ht, vat := SplitVAT(shopShare, rate)
	doc.AmountTTC = shopShare
	doc.AmountHT = ht
	doc.AmountVAT = vat
	doc.VATRate = rate

	creditor, err := qrbill.MergeParties(
		regionCreditor(&shop.City.AdminRegion),
		defaultCreditor(s.cfg.Billing),
	)
	if err != nil {
		return nil, err
	}
	doc.Creditor = creditor

	iban := shop.City.AdminRegion.BillingIBAN
	if iban == "" {
		iban = s.cfg.Billing.CreditorIBAN
	}
	if iban == "" {
		return nil, apperrors.InvalidInput("no creditor IBAN configured for region %s", shop.City.AdminRegion.Name)
	}
	seed := models.RecipientShopIndep + shop.ID.String() + models.CompactMonth(month)
	ref, scheme, err := swissref.Reference(iban, seed)
	if err != nil {
		return nil, err
	}

	doc.Bill = &qrbill.Bill{
		IBAN:      iban,
		Creditor:  creditor,
		Debtor:    doc.Recipient,
		Amount:    shopShare,
		Currency:  "CHF",
		Scheme:    scheme,
		Reference: ref,
		Message:   "Livraisons " + doc.PeriodMonth,
	}
	return doc, nil
}

// ShopOutcome is one shop's result inside a bulk region freeze.
type ShopOutcome struct {
	ShopID   uuid.UUID `json:"shop_id"`
	ShopName string    `json:"shop_name"`
	Status   string    `json:"status"`
	Detail   string    `json:"detail,omitempty"`
}

// Bulk freeze outcome statuses.
const (
	OutcomeFrozen  = "frozen"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

// FreezeRegion fans the freeze out over every shop of a region. A
// single shop's failure never aborts the batch; each shop reports its
// own outcome.
func (s *FreezeService) FreezeRegion(ctx context.Context, regionID uuid.UUID, monthKey string, actor Actor) ([]ShopOutcome, error) {
	if _, err := models.ParseMonth(monthKey); err != nil {
		return nil, err
	}

	shops, err := s.shopRepo.ListByRegion(ctx, regionID)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	outcomes := make([]ShopOutcome, 0, len(shops))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(freezeWorkers)
	for _, shop := range shops {
		shop := shop
		g.Go(func() error {
			outcome := ShopOutcome{ShopID: shop.ID, ShopName: shop.Name, Status: OutcomeFrozen}
			_, err := s.FreezeShopMonth(gctx, shop.ID, monthKey, actor)
			switch {
			case err == nil:
			case apperrors.Is(err, apperrors.KindConflict):
				outcome.Status = OutcomeSkipped
				outcome.Detail = "already frozen"
			case apperrors.Is(err, apperrors.KindInvalidInput):
				outcome.Status = OutcomeSkipped
				outcome.Detail = "no deliveries"
			default:
				outcome.Status = OutcomeError
				outcome.Detail = err.Error()
				log.Error().Err(err).
					Str("shop_id", shop.ID.String()).
					Str("month", monthKey).
					Msg("Bulk freeze failed for shop")
			}
			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].ShopName < outcomes[j].ShopName })
	return outcomes, nil
}
