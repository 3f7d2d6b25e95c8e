// Package qrbill builds the Swiss QR Code v2.2 payment payload. It is
// the single payload builder of the service; the PDF layer renders its
// output verbatim.
package qrbill

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Julienbatt/DringDring-sub000/internal/apperrors"
	"github.com/Julienbatt/DringDring-sub000/internal/swissref"
)

// SIX field-length limits.
const (
	maxNameLen    = 70
	maxLineLen    = 70
	maxMessageLen = 140
)

// Party is one side of the payment: creditor or debtor.
type Party struct {
	Name       string
	Street     string
	HouseNo    string
	PostalCode string
	City       string
	Country    string
}

// IsEmpty reports whether the party has no name; an empty debtor is
// rendered as five empty slots.
func (p Party) IsEmpty() bool {
	return strings.TrimSpace(p.Name) == ""
}

// Bill is the assembled payment section of an invoice.
type Bill struct {
	IBAN      string
	Creditor  Party
	Debtor    Party
	Amount    decimal.Decimal
	Currency  string
	Scheme    swissref.Scheme
	Reference string
	Message   string
}

// referenceType maps the scheme to the payload's reference-type field.
func (b Bill) referenceType() string {
	if b.Reference == "" {
		return "NON"
	}
	return string(b.Scheme)
}

// Payload renders the ISO 20022 text payload: LF-separated lines in
// the prescribed v2.2 order (SPC header, creditor K-block, empty
// ultimate creditor, amount block, debtor K-block, reference, message,
// EPD trailer).
func (b Bill) Payload() string {
	currency := b.Currency
	if currency == "" {
		currency = "CHF"
	}

	lines := []string{
		"SPC",
		"0200",
		"1",
		normalizeIBAN(b.IBAN),
	}
	lines = append(lines, kBlock(b.Creditor)...)
	// Ultimate creditor, unused.
	lines = append(lines, "", "", "", "", "", "", "")
	lines = append(lines,
		fmt.Sprintf("%.2f", amountFloat(b.Amount)),
		currency,
	)
	lines = append(lines, debtorBlock(b.Debtor)...)
	lines = append(lines,
		b.referenceType(),
		b.Reference,
		truncate(b.Message, maxMessageLen),
		"EPD",
	)
	return strings.Join(lines, "\n")
}

// kBlock renders a combined (K) address: name, two address lines,
// empty postal code and town slots, country.
func kBlock(p Party) []string {
	return []string{
		"K",
		truncate(p.Name, maxNameLen),
		truncate(strings.TrimSpace(p.Street+" "+p.HouseNo), maxLineLen),
		truncate(strings.TrimSpace(p.PostalCode+" "+p.City), maxLineLen),
		"",
		"",
		countryOrDefault(p.Country),
	}
}

// debtorBlock omits the whole block when no debtor name is known.
func debtorBlock(p Party) []string {
	if p.IsEmpty() {
		return []string{"", "", "", "", "", "", ""}
	}
	return kBlock(p)
}

// MergeParties walks the fallback chain layer by layer, taking the
// first non-empty value of every field. It fails with the name of the
// first field that stays empty, so misconfigured creditor blocks
// surface as one actionable error.
func MergeParties(layers ...Party) (Party, error) {
	var out Party
	for _, l := range layers {
		if out.Name == "" {
			out.Name = l.Name
		}
		if out.Street == "" {
			out.Street = l.Street
		}
		if out.HouseNo == "" {
			out.HouseNo = l.HouseNo
		}
		if out.PostalCode == "" {
			out.PostalCode = l.PostalCode
		}
		if out.City == "" {
			out.City = l.City
		}
		if out.Country == "" {
			out.Country = l.Country
		}
	}
	if out.Country == "" {
		out.Country = "CH"
	}
	switch {
	case out.Name == "":
		return Party{}, apperrors.InvalidInput("creditor block is missing: name")
	case out.PostalCode == "":
		return Party{}, apperrors.InvalidInput("creditor block is missing: postal code")
	case out.City == "":
		return Party{}, apperrors.InvalidInput("creditor block is missing: city")
	}
	return out, nil
}

// SplitLegacyAddress splits a free-form "street houseno, postal city"
// address into structured fields. Older admin regions only carry the
// free-form column.
func SplitLegacyAddress(addr string) (street, houseNo, postalCode, city string) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	parts := strings.SplitN(addr, ",", 2)
	streetPart := strings.TrimSpace(parts[0])
	if fields := strings.Fields(streetPart); len(fields) > 1 {
		last := fields[len(fields)-1]
		if startsWithDigit(last) {
			street = strings.Join(fields[:len(fields)-1], " ")
			houseNo = last
		} else {
			street = streetPart
		}
	} else {
		street = streetPart
	}
	if len(parts) == 2 {
		cityPart := strings.TrimSpace(parts[1])
		if fields := strings.Fields(cityPart); len(fields) > 1 && startsWithDigit(fields[0]) {
			postalCode = fields[0]
			city = strings.Join(fields[1:], " ")
		} else {
			city = cityPart
		}
	}
	return
}

func startsWithDigit(s string) bool {
	return len(s) > 0 && s[0] >= '0' && s[0] <= '9'
}

func normalizeIBAN(iban string) string {
	return strings.ToUpper(strings.ReplaceAll(iban, " ", ""))
}

func countryOrDefault(c string) string {
	if c == "" {
		return "CH"
	}
	return strings.ToUpper(c)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func amountFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
