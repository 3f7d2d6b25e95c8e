// Package tariff prices a delivery and splits its revenue between the
// four economic parties: end-client, shop, commune and admin region.
package tariff

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/Julienbatt/DringDring-sub000/internal/apperrors"
)

// RuleType tags the pricing rule variant.
type RuleType string

const (
	RuleBags        RuleType = "bags"
	RuleOrderAmount RuleType = "order_amount"
)

// Shares is the percent split between the four parties. Percentages
// must be non-negative and sum to 100 within a cent.
type Shares struct {
	Client      decimal.Decimal
	Shop        decimal.Decimal
	City        decimal.Decimal
	AdminRegion decimal.Decimal
}

// Rule is the tagged form of the free-form tariff JSON. Exactly the
// fields of the declared type are read; nothing else survives parsing.
type Rule struct {
	Type RuleType

	// bags rule
	PricePerTwoBags decimal.Decimal
	CMSDiscount     decimal.Decimal

	// order_amount rule
	PercentOfOrder decimal.Decimal
	MinimumFee     *decimal.Decimal
	MaximumFee     *decimal.Decimal

	Shares *Shares
}

// Input carries the delivery attributes the engine prices.
type Input struct {
	Bags        int
	OrderAmount *decimal.Decimal
	IsCMS       bool
}

// Split is the priced result. Total always equals the sum of the four
// shares exactly.
type Split struct {
	Total            decimal.Decimal `json:"total_price"`
	ShareClient      decimal.Decimal `json:"share_client"`
	ShareShop        decimal.Decimal `json:"share_shop"`
	ShareCity        decimal.Decimal `json:"share_city"`
	ShareAdminRegion decimal.Decimal `json:"share_admin_region"`
}

var hundred = decimal.NewFromInt(100)
var shareTolerance = decimal.NewFromFloat(0.01)

// ParseRule converts the stored free-form tariff payload into a Rule.
// Pricing parameters are read from a "pricing" sub-object when present,
// from the top level otherwise; shares come from a "shares" sub-object
// when it is a non-empty map. The legacy key "velocite" is accepted as
// an alias for admin_region.
func ParseRule(ruleType string, raw json.RawMessage, fallback map[string]float64) (Rule, error) {
	var doc map[string]json.RawMessage
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return Rule{}, apperrors.InvalidInput("tariff rule is not an object: %v", err)
		}
	}

	pricing := doc
	if sub, ok := doc["pricing"]; ok {
		var p map[string]json.RawMessage
		if err := json.Unmarshal(sub, &p); err == nil && p != nil {
			pricing = p
		}
	}

	rule := Rule{Type: RuleType(ruleType)}
	switch rule.Type {
	case RuleBags:
		price, ok, err := readDecimal(pricing, "price_per_2_bags")
		if err != nil || !ok {
			return Rule{}, apperrors.InvalidInput("bags tariff requires price_per_2_bags")
		}
		discount, ok, err := readDecimal(pricing, "cms_discount")
		if err != nil || !ok {
			return Rule{}, apperrors.InvalidInput("bags tariff requires cms_discount")
		}
		rule.PricePerTwoBags = price
		rule.CMSDiscount = discount
	case RuleOrderAmount:
		percent, ok, err := readDecimal(pricing, "percent_of_order")
		if err != nil || !ok {
			return Rule{}, apperrors.InvalidInput("order_amount tariff requires percent_of_order")
		}
		rule.PercentOfOrder = percent
		if min, ok, err := readDecimal(pricing, "minimum_fee"); err == nil && ok {
			rule.MinimumFee = &min
		}
		if max, ok, err := readDecimal(pricing, "maximum_fee"); err == nil && ok {
			rule.MaximumFee = &max
		}
	default:
		return Rule{}, apperrors.InvalidInput("unsupported tariff rule type %q", ruleType)
	}

	shares, err := parseShares(doc, fallback)
	if err != nil {
		return Rule{}, err
	}
	rule.Shares = shares
	return rule, nil
}

func parseShares(doc map[string]json.RawMessage, fallback map[string]float64) (*Shares, error) {
	var m map[string]float64
	if sub, ok := doc["shares"]; ok {
		if err := json.Unmarshal(sub, &m); err != nil {
			return nil, apperrors.InvalidInput("tariff shares are not a map: %v", err)
		}
	}
	if len(m) == 0 {
		m = fallback
	}
	if len(m) == 0 {
		return nil, apperrors.InvalidInput("tariff has no share map")
	}
	return buildShares(m)
}

func buildShares(m map[string]float64) (*Shares, error) {
	s := &Shares{}
	for key, v := range m {
		val := decimal.NewFromFloat(v)
		if val.IsNegative() {
			return nil, apperrors.InvalidInput("tariff share %q is negative", key)
		}
		switch key {
		case "client":
			s.Client = val
		case "shop":
			s.Shop = val
		case "city":
			s.City = val
		case "admin_region", "velocite":
			s.AdminRegion = val
		default:
			return nil, apperrors.InvalidInput("unknown tariff share key %q", key)
		}
	}
	sum := s.Client.Add(s.Shop).Add(s.City).Add(s.AdminRegion)
	if sum.Sub(hundred).Abs().GreaterThan(shareTolerance) {
		return nil, apperrors.InvalidInput("tariff shares sum to %s, expected 100", sum)
	}
	return s, nil
}

// Compute validates the rule against the input and returns the priced
// split. It is pure: no state is read or written.
func Compute(rule Rule, input Input) (Split, error) {
	if input.Bags < 1 {
		return Split{}, apperrors.InvalidInput("bags must be at least 1, got %d", input.Bags)
	}
	if rule.Shares == nil {
		return Split{}, apperrors.InvalidInput("tariff has no share map")
	}

	var total decimal.Decimal
	switch rule.Type {
	case RuleBags:
		if rule.PricePerTwoBags.IsNegative() || rule.CMSDiscount.IsNegative() {
			return Split{}, apperrors.InvalidInput("bags tariff prices must be non-negative")
		}
		if rule.CMSDiscount.GreaterThan(rule.PricePerTwoBags) {
			return Split{}, apperrors.InvalidInput("cms_discount exceeds price_per_2_bags")
		}
		unit := rule.PricePerTwoBags
		if input.IsCMS {
			unit = unit.Sub(rule.CMSDiscount)
		}
		blocks := int64((input.Bags + 1) / 2)
		total = unit.Mul(decimal.NewFromInt(blocks))
	case RuleOrderAmount:
		if input.OrderAmount == nil {
			return Split{}, apperrors.InvalidInput("order_amount tariff requires an order amount")
		}
		total = input.OrderAmount.Mul(rule.PercentOfOrder).Div(hundred)
		if rule.MinimumFee != nil && total.LessThan(*rule.MinimumFee) {
			total = *rule.MinimumFee
		}
		if rule.MaximumFee != nil && total.GreaterThan(*rule.MaximumFee) {
			total = *rule.MaximumFee
		}
	default:
		return Split{}, apperrors.InvalidInput("unsupported tariff rule type %q", rule.Type)
	}
	total = total.Round(2)

	// Client, shop and city round half-up; the admin region takes the
	// residual so the four shares sum to the total exactly.
	client := part(total, rule.Shares.Client)
	shop := part(total, rule.Shares.Shop)
	city := part(total, rule.Shares.City)
	admin := total.Sub(client).Sub(shop).Sub(city)

	return Split{
		Total:            total,
		ShareClient:      client,
		ShareShop:        shop,
		ShareCity:        city,
		ShareAdminRegion: admin,
	}, nil
}

func part(total, pct decimal.Decimal) decimal.Decimal {
	return total.Mul(pct).Div(hundred).Round(2)
}

func readDecimal(doc map[string]json.RawMessage, key string) (decimal.Decimal, bool, error) {
	raw, ok := doc[key]
	if !ok {
		return decimal.Zero, false, nil
	}
	var v decimal.Decimal
	if err := json.Unmarshal(raw, &v); err != nil {
		return decimal.Zero, false, apperrors.InvalidInput("tariff field %q is not numeric", key)
	}
	return v, true, nil
}
