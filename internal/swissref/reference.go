// Package swissref generates Swiss payment references: 27-digit QRR
// references with the recursive mod-10 check digit, and ISO 11649
// creditor references (RF) with the mod-97 check.
package swissref

import (
	"crypto/sha1"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/Julienbatt/DringDring-sub000/internal/apperrors"
)

// Scheme identifies the reference scheme carried by a QR-bill.
type Scheme string

const (
	SchemeQRR Scheme = "QRR"
	SchemeRF  Scheme = "SCOR"
)

// mod10Table is the fixed carry table of the Swiss recursive mod-10
// algorithm (Postfinance ESR check digit).
var mod10Table = [10]int{0, 9, 4, 6, 8, 2, 7, 1, 3, 5}

// IsQRIBAN reports whether the IBAN belongs to the QR-IID range
// [30000, 31999] reserved for QRR references. Only CH and LI IBANs
// qualify. Whitespace and punctuation are tolerated; malformed or short
// input yields false so reference selection falls through to RF.
func IsQRIBAN(iban string) bool {
	clean := normalizeIBAN(iban)
	if len(clean) < 9 {
		return false
	}
	country := clean[:2]
	if country != "CH" && country != "LI" {
		return false
	}
	iid, err := strconv.Atoi(clean[4:9])
	if err != nil {
		return false
	}
	return iid >= 30000 && iid <= 31999
}

// QRReference derives a 27-digit QRR reference from a seed. Digits of
// the seed form the base; when fewer than 26 are available the decimal
// rendering of SHA-1(seed) pads on the right, then the whole is
// left-zero-padded and the last 26 digits are kept. The 27th digit is
// the recursive mod-10 check.
func QRReference(seed string) (string, error) {
	if seed == "" {
		return "", apperrors.InvalidInput("empty reference seed")
	}
	digits := keepDigits(seed)
	if len(digits) < 26 {
		sum := sha1.Sum([]byte(seed))
		digits += new(big.Int).SetBytes(sum[:]).String()
	}
	if len(digits) < 26 {
		digits = strings.Repeat("0", 26-len(digits)) + digits
	}
	base := digits[len(digits)-26:]
	return base + strconv.Itoa(mod10CheckDigit(base)), nil
}

// CreditorReference derives an ISO 11649 RF reference from a seed. The
// seed is uppercased, reduced to [0-9A-Z] and truncated to 21
// characters before the mod-97 check digits are computed.
func CreditorReference(seed string) (string, error) {
	if seed == "" {
		return "", apperrors.InvalidInput("empty reference seed")
	}
	base := keepAlphanumeric(strings.ToUpper(seed))
	if base == "" {
		return "", apperrors.InvalidInput("reference seed has no usable characters")
	}
	if len(base) > 21 {
		base = base[:21]
	}
	check := 98 - mod97(base+"RF00")
	return fmt.Sprintf("RF%02d%s", check, base), nil
}

// Reference picks the scheme from the creditor IBAN and generates the
// matching reference.
func Reference(iban, seed string) (string, Scheme, error) {
	if IsQRIBAN(iban) {
		ref, err := QRReference(seed)
		return ref, SchemeQRR, err
	}
	ref, err := CreditorReference(seed)
	return ref, SchemeRF, err
}

// ValidateQRReference checks length, digit content and the trailing
// check digit of a QRR reference.
func ValidateQRReference(ref string) bool {
	if len(ref) != 27 || keepDigits(ref) != ref {
		return false
	}
	check, err := strconv.Atoi(ref[26:])
	if err != nil {
		return false
	}
	return mod10CheckDigit(ref[:26]) == check
}

// ValidateCreditorReference checks the RF prefix and the mod-97
// condition (the full reference rotated must leave remainder 1).
func ValidateCreditorReference(ref string) bool {
	if len(ref) < 5 || len(ref) > 25 || !strings.HasPrefix(ref, "RF") {
		return false
	}
	if keepAlphanumeric(ref) != ref {
		return false
	}
	if _, err := strconv.Atoi(ref[2:4]); err != nil {
		return false
	}
	return mod97(ref[4:]+ref[:4]) == 1
}

func mod10CheckDigit(digits string) int {
	carry := 0
	for _, r := range digits {
		carry = mod10Table[(carry+int(r-'0'))%10]
	}
	return (10 - carry) % 10
}

// mod97 computes the ISO 7064 remainder with letters mapped A=10..Z=35,
// streaming digit by digit so arbitrary lengths stay cheap.
func mod97(s string) int {
	rem := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			rem = (rem*10 + int(r-'0')) % 97
		case r >= 'A' && r <= 'Z':
			v := int(r-'A') + 10
			rem = (rem*100 + v) % 97
		}
	}
	return rem
}

func normalizeIBAN(iban string) string {
	return keepAlphanumeric(strings.ToUpper(iban))
}

func keepDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func keepAlphanumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
