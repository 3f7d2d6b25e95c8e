package swissref

import (
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Julienbatt/DringDring-sub000/internal/apperrors"
)

func TestIsQRIBAN(t *testing.T) {
	cases := []struct {
		iban string
		want bool
	}{
		{"CH4430000123456789012", true},  // IID 30000, lower bound
		{"CH4431999123000889012", true},  // IID 31999, upper bound
		{"CH4432000123456789012", false}, // IID 32000, just above
		{"CH4429999123456789012", false}, // IID 29999, just below
		{"LI2130000000123456789", true},  // Liechtenstein QR-IID
		{"DE44300001234567890120", false},
		{"ch44 3000 0123 4567 8901 2", true}, // spacing and case tolerated
		{"CH44", false},                      // too short
		{"", false},
		{"CH44ABCDE123456789012", false}, // non-numeric IID
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, IsQRIBAN(tc.iban), tc.iban)
	}
}

func TestQRReferenceShape(t *testing.T) {
	ref, err := QRReference("SHOP-TEST-123")
	require.NoError(t, err)
	require.Len(t, ref, 27)
	require.Regexp(t, regexp.MustCompile(`^\d{27}$`), ref)
	require.True(t, ValidateQRReference(ref))
}

func TestQRReferenceCheckDigit(t *testing.T) {
	// 26-digit seed is used verbatim as the base; the published ESR
	// check digit for this base is 7.
	ref, err := QRReference("21000000000313947143000901")
	require.NoError(t, err)
	require.Equal(t, "210000000003139471430009017", ref)
	check, _ := strconv.Atoi(ref[26:])
	require.Equal(t, 7, check)
	require.True(t, ValidateQRReference(ref))
}

func TestQRReferenceDeterministic(t *testing.T) {
	a, err := QRReference("SHOP-7-202503")
	require.NoError(t, err)
	b, err := QRReference("SHOP-7-202503")
	require.NoError(t, err)
	require.Equal(t, a, b)

	other, err := QRReference("SHOP-8-202503")
	require.NoError(t, err)
	require.NotEqual(t, a, other)
}

func TestQRReferenceEmptySeed(t *testing.T) {
	_, err := QRReference("")
	require.Error(t, err)
	require.Equal(t, apperrors.KindInvalidInput, apperrors.KindOf(err))
}

func TestCreditorReference(t *testing.T) {
	ref, err := CreditorReference("SHOP-TEST-123")
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^RF\d{2}[0-9A-Z]{1,21}$`), ref)
	require.True(t, ValidateCreditorReference(ref))
}

func TestCreditorReferenceKnownValue(t *testing.T) {
	// ISO 11649 worked example: base 539007547034 carries check 18.
	ref, err := CreditorReference("539007547034")
	require.NoError(t, err)
	require.Equal(t, "RF18539007547034", ref)
}

func TestCreditorReferenceTruncation(t *testing.T) {
	ref, err := CreditorReference("COMMUNE-00000000-0000-0000-0000-000000000001-202503")
	require.NoError(t, err)
	require.True(t, ValidateCreditorReference(ref))
	require.LessOrEqual(t, len(ref), 25)
}

func TestCreditorReferenceEmptySeed(t *testing.T) {
	_, err := CreditorReference("")
	require.Error(t, err)
	_, err = CreditorReference("---")
	require.Error(t, err)
}

func TestReferenceSchemeSelection(t *testing.T) {
	ref, scheme, err := Reference("CH4430000123456789012", "SHOP-TEST-123")
	require.NoError(t, err)
	require.Equal(t, SchemeQRR, scheme)
	require.True(t, ValidateQRReference(ref))

	// IID 00762 sits outside the QR range, RF applies.
	ref, scheme, err = Reference("CH9300762011623852957", "SHOP-TEST-123")
	require.NoError(t, err)
	require.Equal(t, SchemeRF, scheme)
	require.True(t, ValidateCreditorReference(ref))
}

func TestMod10Table(t *testing.T) {
	// Reference value from the Postfinance ESR documentation.
	require.Equal(t, 7, mod10CheckDigit("21000000000313947143000901"))
}
