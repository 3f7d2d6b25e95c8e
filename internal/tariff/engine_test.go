package tariff

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Julienbatt/DringDring-sub000/internal/apperrors"
)

var testShares = map[string]float64{
	"client": 33.33, "shop": 33.33, "city": 33.34, "admin_region": 0,
}

func mustRule(t *testing.T, ruleType, raw string, fallback map[string]float64) Rule {
	t.Helper()
	rule, err := ParseRule(ruleType, json.RawMessage(raw), fallback)
	require.NoError(t, err)
	return rule
}

func TestBagsTariffThreeBags(t *testing.T) {
	rule := mustRule(t, "bags", `{"price_per_2_bags": 15.00, "cms_discount": 5.00}`, testShares)

	split, err := Compute(rule, Input{Bags: 3})
	require.NoError(t, err)
	require.Equal(t, "30", split.Total.String())
	require.Equal(t, "10", split.ShareClient.String())
	require.Equal(t, "10", split.ShareShop.String())
	require.Equal(t, "10", split.ShareCity.String())
	require.True(t, split.ShareAdminRegion.IsZero())
}

func TestBagsTariffCMSDiscount(t *testing.T) {
	rule := mustRule(t, "bags", `{"price_per_2_bags": 15.00, "cms_discount": 5.00}`, testShares)

	split, err := Compute(rule, Input{Bags: 1, IsCMS: true})
	require.NoError(t, err)
	require.Equal(t, "10", split.Total.String())
	sum := split.ShareClient.Add(split.ShareShop).Add(split.ShareCity).Add(split.ShareAdminRegion)
	require.True(t, sum.Equal(split.Total), "shares must sum to total exactly")
}

func TestOrderAmountClamping(t *testing.T) {
	rule := mustRule(t, "order_amount",
		`{"percent_of_order": 10, "minimum_fee": 15, "maximum_fee": 50}`, testShares)

	cases := []struct {
		order string
		total string
	}{
		{"600", "50"}, // clamped to maximum
		{"100", "15"}, // clamped to minimum
		{"200", "20"}, // unclamped
	}
	for _, tc := range cases {
		order := decimal.RequireFromString(tc.order)
		split, err := Compute(rule, Input{Bags: 1, OrderAmount: &order})
		require.NoError(t, err)
		require.Equal(t, tc.total, split.Total.String(), "order %s", tc.order)
	}
}

func TestOrderAmountRequiresOrder(t *testing.T) {
	rule := mustRule(t, "order_amount", `{"percent_of_order": 10}`, testShares)
	_, err := Compute(rule, Input{Bags: 1})
	require.Error(t, err)
	require.Equal(t, apperrors.KindInvalidInput, apperrors.KindOf(err))
}

func TestBagsBelowOne(t *testing.T) {
	rule := mustRule(t, "bags", `{"price_per_2_bags": 15, "cms_discount": 0}`, testShares)
	_, err := Compute(rule, Input{Bags: 0})
	require.Error(t, err)
}

func TestDiscountExceedsPrice(t *testing.T) {
	rule := mustRule(t, "bags", `{"price_per_2_bags": 5, "cms_discount": 6}`, testShares)
	_, err := Compute(rule, Input{Bags: 2})
	require.Error(t, err)
	require.Equal(t, apperrors.KindInvalidInput, apperrors.KindOf(err))
}

func TestUnsupportedRuleType(t *testing.T) {
	_, err := ParseRule("per_km", json.RawMessage(`{}`), testShares)
	require.Error(t, err)
}

func TestShareValidation(t *testing.T) {
	base := `{"price_per_2_bags": 15, "cms_discount": 0}`

	_, err := ParseRule("bags", json.RawMessage(base),
		map[string]float64{"client": 50, "shop": 30, "city": 10, "admin_region": 5})
	require.Error(t, err, "sum 95 must be rejected")

	_, err = ParseRule("bags", json.RawMessage(base),
		map[string]float64{"client": 110, "shop": -10, "city": 0, "admin_region": 0})
	require.Error(t, err, "negative share must be rejected")

	_, err = ParseRule("bags", json.RawMessage(base),
		map[string]float64{"client": 50, "shop": 50, "courier": 0})
	require.Error(t, err, "unknown key must be rejected")
}

func TestVelociteAlias(t *testing.T) {
	rule := mustRule(t, "bags", `{"price_per_2_bags": 10, "cms_discount": 0}`,
		map[string]float64{"client": 40, "shop": 30, "city": 20, "velocite": 10})
	require.Equal(t, "10", rule.Shares.AdminRegion.String())
}

func TestSharesFromRuleOverrideFallback(t *testing.T) {
	rule := mustRule(t, "bags",
		`{"pricing": {"price_per_2_bags": 12, "cms_discount": 2},
		  "shares": {"client": 100, "shop": 0, "city": 0, "admin_region": 0}}`,
		testShares)

	split, err := Compute(rule, Input{Bags: 2})
	require.NoError(t, err)
	require.True(t, split.ShareClient.Equal(split.Total))
}

func TestResidualExactness(t *testing.T) {
	rule := mustRule(t, "bags", `{"price_per_2_bags": 7.35, "cms_discount": 1.10}`,
		map[string]float64{"client": 33.33, "shop": 33.33, "city": 16.67, "admin_region": 16.67})

	for bags := 1; bags <= 20; bags++ {
		for _, cms := range []bool{false, true} {
			split, err := Compute(rule, Input{Bags: bags, IsCMS: cms})
			require.NoError(t, err)
			sum := split.ShareClient.Add(split.ShareShop).Add(split.ShareCity).Add(split.ShareAdminRegion)
			require.True(t, sum.Equal(split.Total), "bags=%d cms=%v", bags, cms)
		}
	}
}
