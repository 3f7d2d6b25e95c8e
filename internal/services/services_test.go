package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Julienbatt/DringDring-sub000/config"
	"github.com/Julienbatt/DringDring-sub000/internal/metrics"
	"github.com/Julienbatt/DringDring-sub000/internal/models"
	"github.com/Julienbatt/DringDring-sub000/internal/storage"
	"github.com/Julienbatt/DringDring-sub000/internal/tracing"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// In-memory sqlite is per-connection.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, models.SetupModels(db))
	return db
}

func testConfig() config.Config {
	return config.Config{
		Blob: config.BlobConfig{PDFBucket: "billing-pdf"},
		Billing: config.BillingConfig{
			DefaultVATRate:           0.081,
			InternalDocumentsEnabled: true,
			CreditorName:             "Coopérative Livraisons",
			CreditorIBAN:             "CH4431999123000889012",
			CreditorStreet:           "Rue du Marché",
			CreditorHouseNo:          "12",
			CreditorPostalCode:       "1200",
			CreditorCity:             "Genève",
			CreditorCountry:          "CH",
		},
	}
}

// fixture is one region with a chain shop and an independent shop,
// both carrying the same bags tariff.
type fixture struct {
	db     *gorm.DB
	cfg    config.Config
	blob   *storage.MemoryStore
	actor  Actor
	region models.AdminRegion
	city   models.City
	hq     models.HQ
	shop   models.Shop // chain shop
	indep  models.Shop // independent shop
	client models.Client
	grid   models.TariffGrid
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:    newTestDB(t),
		cfg:   testConfig(),
		blob:  storage.NewMemoryStore(),
		actor: Actor{ID: uuid.New(), Name: "marie"},
	}

	f.region = models.AdminRegion{
		ID:                  uuid.New(),
		Name:                "Arc lémanique",
		Canton:              "GE",
		BillingName:         "Coopérative Arc lémanique",
		BillingIBAN:         "CH4431999123000889012",
		BillingStreet:       "Place Centrale",
		BillingHouseNo:      "3",
		BillingPostalCode:   "1204",
		BillingCity:         "Genève",
		InternalBillingName: "Coopérative Arc lémanique (interne)",
		InternalBillingIBAN: "CH5604835012345678009",
		InternalBillingCity: "Genève",
		InternalBillingPostalCode: "1204",
	}
	require.NoError(t, f.db.Create(&f.region).Error)

	f.city = models.City{
		ID:            uuid.New(),
		Name:          "Carouge",
		PostalCode:    "1227",
		Canton:        "GE",
		AdminRegionID: f.region.ID,
	}
	require.NoError(t, f.db.Create(&f.city).Error)

	f.hq = models.HQ{
		ID:         uuid.New(),
		Name:       "Grands Magasins SA",
		Street:     "Avenue Industrielle 10",
		PostalCode: "1227",
		City:       "Carouge",
	}
	require.NoError(t, f.db.Create(&f.hq).Error)

	f.grid = models.TariffGrid{ID: uuid.New(), Name: "Grille standard"}
	require.NoError(t, f.db.Create(&f.grid).Error)

	rule, err := json.Marshal(map[string]interface{}{
		"pricing": map[string]float64{"price_per_2_bags": 10, "cms_discount": 4},
		"shares":  map[string]float64{"client": 33.33, "shop": 33.33, "city": 16.67, "admin_region": 16.67},
	})
	require.NoError(t, err)
	version := models.TariffVersion{
		ID:           uuid.New(),
		TariffGridID: f.grid.ID,
		RuleType:     "bags",
		Rule:         rule,
		ValidFrom:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.db.Create(&version).Error)

	f.shop = models.Shop{
		ID:           uuid.New(),
		Name:         "Grands Magasins Carouge",
		CityID:       f.city.ID,
		HQID:         &f.hq.ID,
		TariffGridID: &f.grid.ID,
		Street:       "Rue Saint-Joseph 5",
		PostalCode:   "1227",
	}
	require.NoError(t, f.db.Create(&f.shop).Error)

	f.indep = models.Shop{
		ID:           uuid.New(),
		Name:         "Épicerie du Rondeau",
		CityID:       f.city.ID,
		TariffGridID: &f.grid.ID,
		Street:       "Place du Rondeau 1",
		PostalCode:   "1227",
	}
	require.NoError(t, f.db.Create(&f.indep).Error)

	f.client = models.Client{
		ID:         uuid.New(),
		FirstName:  "Claire",
		LastName:   "Dubois",
		Street:     "Rue de la Fontenette 8",
		PostalCode: "1227",
		CityID:     f.city.ID,
	}
	require.NoError(t, f.db.Create(&f.client).Error)

	return f
}

func (f *fixture) deliveryService() *DeliveryService {
	return NewDeliveryService(f.db, nil, metrics.NewMetrics(), &tracing.NewRelicTracer{})
}

func (f *fixture) freezeService() *FreezeService {
	return NewFreezeService(f.db, f.cfg, nil, f.blob, nil, metrics.NewMetrics(), &tracing.NewRelicTracer{})
}

func (f *fixture) aggregationService() *AggregationService {
	return NewAggregationService(f.db, f.cfg, nil, nil, metrics.NewMetrics(), &tracing.NewRelicTracer{})
}

func (f *fixture) documentService() *DocumentService {
	return NewDocumentService(f.db, f.cfg, f.blob, nil, nil, metrics.NewMetrics(), &tracing.NewRelicTracer{})
}
