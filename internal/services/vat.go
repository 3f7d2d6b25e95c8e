package services

import "github.com/shopspring/decimal"

// SplitVAT derives the tax-exclusive amount from a tax-inclusive total.
// The net is rounded half-up to 2 decimals and the VAT is the residual,
// so net + vat always reproduces the gross exactly.
func SplitVAT(ttc, rate decimal.Decimal) (ht, vat decimal.Decimal) {
	ht = ttc.Div(decimal.NewFromInt(1).Add(rate)).Round(2)
	vat = ttc.Sub(ht)
	return ht, vat
}
