package qrbill

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Julienbatt/DringDring-sub000/internal/swissref"
)

func sampleBill() Bill {
	return Bill{
		IBAN: "CH44 3000 0123 4567 8901 2",
		Creditor: Party{
			Name: "Velocite Geneve", Street: "Rue des Gares", HouseNo: "9",
			PostalCode: "1201", City: "Geneve", Country: "CH",
		},
		Debtor: Party{
			Name: "Epicerie du Marche", Street: "Rue Centrale", HouseNo: "4",
			PostalCode: "1201", City: "Geneve",
		},
		Amount:    decimal.RequireFromString("312.50"),
		Scheme:    swissref.SchemeQRR,
		Reference: "210000000003139471430009017",
		Message:   "Livraisons 2025-03",
	}
}

func TestPayloadFieldOrder(t *testing.T) {
	lines := strings.Split(sampleBill().Payload(), "\n")
	require.Len(t, lines, 31)

	require.Equal(t, "SPC", lines[0])
	require.Equal(t, "0200", lines[1])
	require.Equal(t, "1", lines[2])
	require.Equal(t, "CH4430000123456789012", lines[3], "IBAN stripped and uppercased")

	// Creditor K-block.
	require.Equal(t, "K", lines[4])
	require.Equal(t, "Velocite Geneve", lines[5])
	require.Equal(t, "Rue des Gares 9", lines[6])
	require.Equal(t, "1201 Geneve", lines[7])
	require.Equal(t, "", lines[8])
	require.Equal(t, "", lines[9])
	require.Equal(t, "CH", lines[10])

	// Ultimate creditor stays empty.
	for i := 11; i <= 17; i++ {
		require.Equal(t, "", lines[i], "ultimate creditor line %d", i)
	}

	require.Equal(t, "312.50", lines[18], "amount is 2-decimal ASCII")
	require.Equal(t, "CHF", lines[19])

	// Debtor K-block.
	require.Equal(t, "K", lines[20])
	require.Equal(t, "Epicerie du Marche", lines[21])

	require.Equal(t, "QRR", lines[27])
	require.Equal(t, "210000000003139471430009017", lines[28])
	require.Equal(t, "Livraisons 2025-03", lines[29])
	require.Equal(t, "EPD", lines[30])
}

func TestPayloadWithoutDebtor(t *testing.T) {
	bill := sampleBill()
	bill.Debtor = Party{}
	lines := strings.Split(bill.Payload(), "\n")
	require.Len(t, lines, 31)
	for i := 20; i <= 26; i++ {
		require.Equal(t, "", lines[i], "debtor line %d must stay empty", i)
	}
}

func TestPayloadWithoutReference(t *testing.T) {
	bill := sampleBill()
	bill.Reference = ""
	lines := strings.Split(bill.Payload(), "\n")
	require.Equal(t, "NON", lines[27])
}

func TestPayloadMessageTruncated(t *testing.T) {
	bill := sampleBill()
	bill.Message = strings.Repeat("x", 200)
	lines := strings.Split(bill.Payload(), "\n")
	require.Len(t, lines[29], 140)
}

func TestMergePartiesFallbackChain(t *testing.T) {
	snapshot := Party{Name: "Velocite Geneve"}
	fromRegion := Party{Street: "Rue des Gares", HouseNo: "9"}
	fromEnv := Party{Name: "ignored", PostalCode: "1201", City: "Geneve"}

	merged, err := MergeParties(snapshot, fromRegion, fromEnv)
	require.NoError(t, err)
	require.Equal(t, "Velocite Geneve", merged.Name, "earlier layers win")
	require.Equal(t, "Rue des Gares", merged.Street)
	require.Equal(t, "1201", merged.PostalCode)
	require.Equal(t, "CH", merged.Country, "country defaults to CH")
}

func TestMergePartiesMissingField(t *testing.T) {
	_, err := MergeParties(Party{Name: "Velocite Geneve", City: "Geneve"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "postal code")
}

func TestSplitLegacyAddress(t *testing.T) {
	street, houseNo, postal, city := SplitLegacyAddress("Rue des Gares 9, 1201 Geneve")
	require.Equal(t, "Rue des Gares", street)
	require.Equal(t, "9", houseNo)
	require.Equal(t, "1201", postal)
	require.Equal(t, "Geneve", city)

	street, houseNo, postal, city = SplitLegacyAddress("Grand-Rue, Lausanne")
	require.Equal(t, "Grand-Rue", street)
	require.Empty(t, houseNo)
	require.Empty(t, postal)
	require.Equal(t, "Lausanne", city)

	street, _, _, _ = SplitLegacyAddress("")
	require.Empty(t, street)
}
