package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AdminRegion is a regional operator. It carries two creditor blocks:
// the external one printed on commune/HQ/shop invoices and a separate
// internal one used for the region's own gross-revenue document.
type AdminRegion struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Name      string         `gorm:"not null" json:"name"`
	Canton    string         `gorm:"not null" json:"canton"`

	BillingName       string `json:"billing_name"`
	BillingIBAN       string `json:"billing_iban"`
	BillingStreet     string `json:"billing_street"`
	BillingHouseNo    string `json:"billing_house_no"`
	BillingPostalCode string `json:"billing_postal_code"`
	BillingCity       string `json:"billing_city"`
	BillingCountry    string `gorm:"default:CH" json:"billing_country"`
	BillingAddress    string `json:"billing_address"` // legacy free-form, split on read
	BillingLogoURL    string `json:"billing_logo_url"`

	InternalBillingName       string `json:"internal_billing_name"`
	InternalBillingIBAN       string `json:"internal_billing_iban"`
	InternalBillingStreet     string `json:"internal_billing_street"`
	InternalBillingHouseNo    string `json:"internal_billing_house_no"`
	InternalBillingPostalCode string `json:"internal_billing_postal_code"`
	InternalBillingCity       string `json:"internal_billing_city"`
	InternalBillingCountry    string `gorm:"default:CH" json:"internal_billing_country"`
}

// City belongs to an admin region. Neighbourhoods reference their
// parent through ParentCityID; billing rolls them up to the parent.
type City struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
	Name          string         `gorm:"not null" json:"name"`
	PostalCode    string         `json:"postal_code"`
	Canton        string         `json:"canton"`
	AdminRegionID uuid.UUID      `gorm:"type:uuid;not null;index" json:"admin_region_id"`
	ParentCityID  *uuid.UUID     `gorm:"type:uuid" json:"parent_city_id"`
	BillingStreet string         `json:"billing_street"`
	AdminRegion   AdminRegion    `gorm:"foreignKey:AdminRegionID" json:"-"`
}

// HQ groups shops of a retail chain. The sentinel group for shops
// without a chain carries "indep" in its name.
type HQ struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
	Name       string         `gorm:"not null" json:"name"`
	Street     string         `json:"street"`
	PostalCode string         `json:"postal_code"`
	City       string         `json:"city"`
}

// Shop is the delivery originator. A nil HQID means independent.
type Shop struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
	Name            string         `gorm:"not null" json:"name"`
	CityID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"city_id"`
	HQID            *uuid.UUID     `gorm:"type:uuid;index" json:"hq_id"`
	TariffGridID    *uuid.UUID     `gorm:"type:uuid" json:"tariff_grid_id"`
	TariffVersionID *uuid.UUID     `gorm:"type:uuid" json:"tariff_version_id"`
	Street          string         `json:"street"`
	PostalCode      string         `json:"postal_code"`
	City            City           `gorm:"foreignKey:CityID" json:"-"`
	HQ              *HQ            `gorm:"foreignKey:HQID" json:"-"`
}

// Client is an end-customer of a shop.
type Client struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
	FirstName  string         `json:"first_name"`
	LastName   string         `json:"last_name"`
	Street     string         `json:"street"`
	PostalCode string         `json:"postal_code"`
	CityID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"city_id"`
	IsCMS      bool           `gorm:"not null;default:false" json:"is_cms"`
	City       City           `gorm:"foreignKey:CityID" json:"-"`
}

// TariffGrid is a named pricing scheme; its versions are append-only.
type TariffGrid struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	Name      string    `gorm:"not null" json:"name"`
}

// TariffVersion is one validity window of a grid. Rule holds the
// free-form pricing JSON, Share the percent map; both are parsed into
// the tariff engine's tagged form at the edge. A nil ValidTo keeps the
// version open-ended.
type TariffVersion struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	TariffGridID uuid.UUID  `gorm:"type:uuid;not null;index" json:"tariff_grid_id"`
	RuleType     string     `gorm:"not null" json:"rule_type"`
	Rule         []byte     `gorm:"type:jsonb" json:"rule"`
	Share        []byte     `gorm:"type:jsonb" json:"share"`
	ValidFrom    time.Time  `gorm:"not null" json:"valid_from"`
	ValidTo      *time.Time `json:"valid_to"`
	TariffGrid   TariffGrid `gorm:"foreignKey:TariffGridID" json:"-"`
}

// Delivery is created once; shop and date never change afterwards.
type Delivery struct {
	ID            uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt     time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
	ShopID        uuid.UUID   `gorm:"type:uuid;not null;index" json:"shop_id"`
	HQID          *uuid.UUID  `gorm:"type:uuid" json:"hq_id"`
	CityID        uuid.UUID   `gorm:"type:uuid;not null;index" json:"city_id"`
	AdminRegionID uuid.UUID   `gorm:"type:uuid;not null;index" json:"admin_region_id"`
	ClientID      uuid.UUID   `gorm:"type:uuid;not null" json:"client_id"`
	DeliveryDate  time.Time   `gorm:"not null;index" json:"delivery_date"`
	Shop          Shop        `gorm:"foreignKey:ShopID" json:"-"`
	City          City        `gorm:"foreignKey:CityID" json:"-"`
	AdminRegion   AdminRegion `gorm:"foreignKey:AdminRegionID" json:"-"`
}

// DeliveryLogistics snapshots the client at insert time so invoice
// lines cannot drift when the client record changes later.
type DeliveryLogistics struct {
	DeliveryID       uuid.UUID        `gorm:"type:uuid;primaryKey" json:"delivery_id"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
	ClientName       string           `gorm:"not null" json:"client_name"`
	ClientStreet     string           `json:"client_street"`
	ClientPostalCode string           `json:"client_postal_code"`
	ClientCity       string           `json:"client_city"`
	Bags             int              `gorm:"not null" json:"bags"`
	OrderAmount      *decimal.Decimal `gorm:"type:numeric(12,2)" json:"order_amount"`
	IsCMS            bool             `gorm:"not null;default:false" json:"is_cms"`
	Delivery         Delivery         `gorm:"foreignKey:DeliveryID" json:"-"`
}

// DeliveryFinancial is the single priced row of a delivery. The total
// equals the sum of the four shares exactly.
type DeliveryFinancial struct {
	DeliveryID       uuid.UUID       `gorm:"type:uuid;primaryKey" json:"delivery_id"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	TariffVersionID  uuid.UUID       `gorm:"type:uuid;not null" json:"tariff_version_id"`
	TotalPrice       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_price"`
	ShareClient      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"share_client"`
	ShareShop        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"share_shop"`
	ShareCity        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"share_city"`
	ShareAdminRegion decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"share_admin_region"`
	Delivery         Delivery        `gorm:"foreignKey:DeliveryID" json:"-"`
}

// Delivery status values, monotone per delivery.
const (
	StatusCreated   = "created"
	StatusAssigned  = "assigned"
	StatusPickedUp  = "picked_up"
	StatusDelivered = "delivered"
	StatusIssue     = "issue"
	StatusCancelled = "cancelled"
)

// DeliveryStatus is an append-only event log; the current status is
// the row with the greatest UpdatedAt.
type DeliveryStatus struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DeliveryID uuid.UUID `gorm:"type:uuid;not null;index" json:"delivery_id"`
	Status     string    `gorm:"not null" json:"status"`
	UpdatedAt  time.Time `gorm:"autoCreateTime;index" json:"updated_at"`
	Delivery   Delivery  `gorm:"foreignKey:DeliveryID" json:"-"`
}

// BillingPeriod freezes one shop-month. Inserted once, never updated;
// the unique index serialises concurrent freeze attempts.
type BillingPeriod struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ShopID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_billing_period_shop_month" json:"shop_id"`
	PeriodMonth    string    `gorm:"not null;uniqueIndex:idx_billing_period_shop_month" json:"period_month"`
	FrozenAt       time.Time `gorm:"autoCreateTime" json:"frozen_at"`
	FrozenBy       uuid.UUID `gorm:"type:uuid;not null" json:"frozen_by"`
	FrozenByName   string    `gorm:"not null" json:"frozen_by_name"`
	FrozenComment  string    `json:"frozen_comment"`
	PDFURL         string    `gorm:"not null" json:"pdf_url"`
	PDFSHA256      string    `gorm:"not null" json:"pdf_sha256"`
	PDFGeneratedAt time.Time `gorm:"not null" json:"pdf_generated_at"`
}

// Billing run and document statuses.
const (
	BillingStatusDraft  = "draft"
	BillingStatusFrozen = "frozen"
)

// Recipient types of payor documents.
const (
	RecipientCommune   = "COMMUNE"
	RecipientHQ        = "HQ"
	RecipientShopIndep = "SHOP_INDEP"
	RecipientInternal  = "INTERNAL"
)

// BillingRun is the per-region, per-month aggregation root.
type BillingRun struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	AdminRegionID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_billing_run_region_month" json:"admin_region_id"`
	PeriodMonth   string         `gorm:"not null;uniqueIndex:idx_billing_run_region_month" json:"period_month"`
	Status        string         `gorm:"not null;default:draft" json:"status"`
	CreatedBy     uuid.UUID      `gorm:"type:uuid" json:"created_by"`
	UpdatedBy     uuid.UUID      `gorm:"type:uuid" json:"updated_by"`
	AdminRegion   AdminRegion    `gorm:"foreignKey:AdminRegionID" json:"-"`
	Documents     []BillingDocument `gorm:"foreignKey:RunID" json:"-"`
}

// BillingDocument is one payor invoice of a run. All recipient and
// creditor data is snapshotted so the printed text cannot drift.
type BillingDocument struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	RunID         uuid.UUID `gorm:"type:uuid;not null;index" json:"run_id"`
	RecipientType string    `gorm:"not null;index" json:"recipient_type"`
	RecipientID   uuid.UUID `gorm:"type:uuid;not null" json:"recipient_id"`
	PeriodMonth   string    `gorm:"not null;index" json:"period_month"`
	Status        string    `gorm:"not null;default:draft" json:"status"`

	AmountHT  decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount_ht"`
	AmountVAT decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount_vat"`
	AmountTTC decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount_ttc"`
	VATRate   decimal.Decimal `gorm:"type:numeric(6,4);not null" json:"vat_rate"`

	RecipientName       string `json:"recipient_name"`
	RecipientStreet     string `json:"recipient_street"`
	RecipientPostalCode string `json:"recipient_postal_code"`
	RecipientCity       string `json:"recipient_city"`
	RecipientCountry    string `gorm:"default:CH" json:"recipient_country"`

	CreditorName       string `json:"creditor_name"`
	CreditorIBAN       string `json:"creditor_iban"`
	CreditorStreet     string `json:"creditor_street"`
	CreditorHouseNo    string `json:"creditor_house_no"`
	CreditorPostalCode string `json:"creditor_postal_code"`
	CreditorCity       string `json:"creditor_city"`
	CreditorCountry    string `gorm:"default:CH" json:"creditor_country"`

	Reference       string `json:"reference"`
	ReferenceScheme string `json:"reference_scheme"`
	PaymentMessage  string `json:"payment_message"`

	PDFURL         string     `json:"pdf_url"`
	PDFSHA256      string     `gorm:"column:pdf_sha256" json:"pdf_sha256"`
	PDFGeneratedAt *time.Time `json:"pdf_generated_at"`

	Run   BillingRun            `gorm:"foreignKey:RunID" json:"-"`
	Lines []BillingDocumentLine `gorm:"foreignKey:DocumentID" json:"-"`
}

// BillingDocumentLine is one delivery's contribution to a document.
type BillingDocumentLine struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	DocumentID uuid.UUID       `gorm:"type:uuid;not null;index" json:"document_id"`
	ShopID     *uuid.UUID      `gorm:"type:uuid" json:"shop_id"`
	DeliveryID *uuid.UUID      `gorm:"type:uuid" json:"delivery_id"`
	AmountDue  decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount_due"`

	DeliveryDate time.Time       `json:"delivery_date"`
	ShopName     string          `json:"shop_name"`
	ClientName   string          `json:"client_name"`
	CommuneName  string          `json:"commune_name"`
	Bags         int             `json:"bags"`
	TotalPrice   decimal.Decimal `gorm:"type:numeric(12,2)" json:"total_price"`

	Document BillingDocument `gorm:"foreignKey:DocumentID" json:"-"`
}

// AppSetting is a history-aware key/value row; readers pick the latest
// row with EffectiveFrom at or before the queried month.
type AppSetting struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	Key           string          `gorm:"not null;index:idx_app_setting_key_from" json:"key"`
	EffectiveFrom time.Time       `gorm:"not null;index:idx_app_setting_key_from" json:"effective_from"`
	ValueNumeric  decimal.Decimal `gorm:"type:numeric(12,6)" json:"value_numeric"`
	ValueText     string          `json:"value_text"`
}

// SettingVATRate is the key of the VAT-rate history.
const SettingVATRate = "vat_rate"

// SetupModels runs the schema migrations.
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&AdminRegion{},
		&City{},
		&HQ{},
		&Shop{},
		&Client{},
		&TariffGrid{},
		&TariffVersion{},
		&Delivery{},
		&DeliveryLogistics{},
		&DeliveryFinancial{},
		&DeliveryStatus{},
		&BillingPeriod{},
		&BillingRun{},
		&BillingDocument{},
		&BillingDocumentLine{},
		&AppSetting{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to migrate models")
	}
	return nil
}
