// Package pdfgen renders invoice and statement PDFs. Layout is
// deterministic: the same input yields the same bytes, which keeps
// frozen artifacts re-checkable against their recorded SHA-256.
package pdfgen

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/Julienbatt/DringDring-sub000/internal/qrbill"
)

// Line is one delivery row of an invoice table.
type Line struct {
	Date       time.Time
	ShopName   string
	ClientName string
	Commune    string
	Bags       int
	Amount     decimal.Decimal
}

// Document carries everything a rendered invoice or statement needs.
// A nil Bill renders a statement without a payment part.
type Document struct {
	Title       string
	PeriodMonth string
	Creditor    qrbill.Party
	Recipient   qrbill.Party
	Lines       []Line
	AmountHT    decimal.Decimal
	AmountVAT   decimal.Decimal
	AmountTTC   decimal.Decimal
	VATRate     decimal.Decimal
	Notes       string
	Bill        *qrbill.Bill
}

const (
	pageWidth       = 210.0
	paymentPartTop  = 297.0 - 105.0
	receiptWidth    = 62.0
	qrSideMM        = 46.0
	crossFraction   = 7.0 / 46.0
	tableRowsOnPage = 32
)

type renderer struct {
	pdf *gofpdf.Fpdf
	tr  func(string) string
}

// Render assembles the PDF and returns its bytes.
func Render(doc Document) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(time.Unix(0, 0)) // bit-stable output
	pdf.SetTitle(doc.Title, true)
	pdf.SetAutoPageBreak(false, 10)
	pdf.AddPage()

	// Core fonts are cp1252; accents go through the translator.
	r := &renderer{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}

	r.writeHeader(doc)
	r.writeLines(doc)
	r.writeTotals(doc)

	if doc.Notes != "" {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(0, 4.5, r.tr(doc.Notes), "", "L", false)
	}

	if doc.Bill != nil {
		if err := r.writePaymentPart(*doc.Bill); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, errors.Wrap(err, "failed to render PDF")
	}
	return buf.Bytes(), nil
}

func (r *renderer) writeHeader(doc Document) {
	pdf := r.pdf
	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetXY(15, 15)
	pdf.Cell(0, 8, r.tr(doc.Title))

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetXY(15, 26)
	pdf.MultiCell(80, 4.5, r.tr(partyLines(doc.Creditor)), "", "L", false)

	pdf.SetXY(120, 26)
	pdf.MultiCell(75, 4.5, r.tr(partyLines(doc.Recipient)), "", "L", false)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetXY(15, 52)
	pdf.Cell(0, 5, r.tr(fmt.Sprintf("Période : %s", doc.PeriodMonth)))
	pdf.SetY(60)
}

func partyLines(p qrbill.Party) string {
	out := p.Name
	if street := joinNonEmpty(p.Street, p.HouseNo); street != "" {
		out += "\n" + street
	}
	if place := joinNonEmpty(p.PostalCode, p.City); place != "" {
		out += "\n" + place
	}
	return out
}

func (r *renderer) writeLines(doc Document) {
	pdf := r.pdf
	headers := []string{"Date", "Commerce", "Client", "Commune", "Sacs", "Montant CHF"}
	widths := []float64{22, 38, 42, 32, 14, 32}

	drawHead := func() {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(235, 235, 235)
		pdf.SetX(15)
		for i, h := range headers {
			pdf.CellFormat(widths[i], 6, h, "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 9)
	}
	drawHead()

	for i, line := range doc.Lines {
		if i > 0 && i%tableRowsOnPage == 0 {
			pdf.AddPage()
			pdf.SetY(20)
			drawHead()
		}
		pdf.SetX(15)
		pdf.CellFormat(widths[0], 5.5, line.Date.Format("02.01.2006"), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 5.5, r.tr(line.ShopName), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], 5.5, r.tr(line.ClientName), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[3], 5.5, r.tr(line.Commune), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[4], 5.5, fmt.Sprintf("%d", line.Bags), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[5], 5.5, line.Amount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
}

func (r *renderer) writeTotals(doc Document) {
	pdf := r.pdf
	pdf.Ln(3)
	x := 15 + 22 + 38 + 42 + 32 + 14.0
	row := func(label, value string, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 9)
		pdf.SetX(15)
		pdf.CellFormat(x-15, 5.5, r.tr(label), "", 0, "R", false, 0, "")
		pdf.CellFormat(32, 5.5, value, "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	rate := doc.VATRate.Mul(decimal.NewFromInt(100))
	row("Montant HT", doc.AmountHT.StringFixed(2), false)
	row(fmt.Sprintf("TVA %s%%", rate.String()), doc.AmountVAT.StringFixed(2), false)
	row("Total TTC", doc.AmountTTC.StringFixed(2), true)
}

// writePaymentPart draws the Swiss QR-bill section: 210 x 105 mm at
// the bottom of the last page, receipt on the left, payment part with
// the QR code on the right.
func (r *renderer) writePaymentPart(bill qrbill.Bill) error {
	pdf := r.pdf
	if pdf.GetY() > paymentPartTop-10 {
		pdf.AddPage()
	}

	top := paymentPartTop
	pdf.SetLineWidth(0.2)
	pdf.SetDrawColor(0, 0, 0)
	pdf.Line(0, top, pageWidth, top)
	pdf.Line(receiptWidth, top, receiptWidth, 297)

	// Receipt.
	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetXY(5, top+5)
	pdf.Cell(0, 5, r.tr("Récépissé"))
	pdf.SetFont("Helvetica", "B", 6)
	pdf.SetXY(5, top+12)
	pdf.Cell(0, 3, r.tr("Compte / Payable à"))
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetXY(5, top+15)
	pdf.MultiCell(receiptWidth-10, 3.5, r.tr(bill.IBAN+"\n"+partyLines(bill.Creditor)), "", "L", false)
	if bill.Reference != "" {
		pdf.SetFont("Helvetica", "B", 6)
		pdf.SetXY(5, top+33)
		pdf.Cell(0, 3, r.tr("Référence"))
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetXY(5, top+36)
		pdf.Cell(0, 3.5, bill.Reference)
	}
	pdf.SetFont("Helvetica", "B", 6)
	pdf.SetXY(5, top+68)
	pdf.Cell(20, 3, "Monnaie")
	pdf.Cell(20, 3, "Montant")
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetXY(5, top+71)
	pdf.Cell(20, 3.5, "CHF")
	pdf.Cell(20, 3.5, bill.Amount.StringFixed(2))

	// Payment part.
	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetXY(receiptWidth+5, top+5)
	pdf.Cell(0, 5, "Section paiement")

	if err := r.drawQR(bill, receiptWidth+5, top+12); err != nil {
		return err
	}

	infoX := receiptWidth + 5 + qrSideMM + 5
	pdf.SetFont("Helvetica", "B", 7)
	pdf.SetXY(infoX, top+12)
	pdf.Cell(0, 3, r.tr("Compte / Payable à"))
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetXY(infoX, top+15.5)
	pdf.MultiCell(pageWidth-infoX-5, 4, r.tr(bill.IBAN+"\n"+partyLines(bill.Creditor)), "", "L", false)
	if bill.Reference != "" {
		pdf.SetFont("Helvetica", "B", 7)
		pdf.SetXY(infoX, top+38)
		pdf.Cell(0, 3, r.tr("Référence"))
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetXY(infoX, top+41.5)
		pdf.Cell(0, 4, bill.Reference)
	}
	if !bill.Debtor.IsEmpty() {
		pdf.SetFont("Helvetica", "B", 7)
		pdf.SetXY(infoX, top+50)
		pdf.Cell(0, 3, "Payable par")
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetXY(infoX, top+53.5)
		pdf.MultiCell(pageWidth-infoX-5, 4, r.tr(partyLines(bill.Debtor)), "", "L", false)
	}
	pdf.SetFont("Helvetica", "B", 7)
	pdf.SetXY(receiptWidth+5, top+12+qrSideMM+6)
	pdf.Cell(18, 3, "Monnaie")
	pdf.Cell(20, 3, "Montant")
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetXY(receiptWidth+5, top+12+qrSideMM+9.5)
	pdf.Cell(18, 4, "CHF")
	pdf.Cell(20, 4, bill.Amount.StringFixed(2))

	return nil
}

// drawQR renders the data matrix (ECC level H) and the Swiss cross
// overlay, sized 7/46 of the QR side and centered.
func (r *renderer) drawQR(bill qrbill.Bill, x, y float64) error {
	pdf := r.pdf
	qr, err := qrcode.New(bill.Payload(), qrcode.High)
	if err != nil {
		return errors.Wrap(err, "failed to build QR code")
	}
	qr.DisableBorder = true
	png, err := qr.PNG(1024)
	if err != nil {
		return errors.Wrap(err, "failed to encode QR code")
	}

	name := "swissqr-" + bill.Reference
	pdf.RegisterImageOptionsReader(name,
		gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(png))
	pdf.ImageOptions(name, x, y, qrSideMM, qrSideMM, false,
		gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	// Swiss cross: white plate with a black cross, centered.
	cross := qrSideMM * crossFraction
	cx := x + (qrSideMM-cross)/2
	cy := y + (qrSideMM-cross)/2
	pdf.SetFillColor(255, 255, 255)
	pdf.Rect(cx, cy, cross, cross, "F")
	inner := cross * 6 / 7
	pdf.SetFillColor(0, 0, 0)
	pdf.Rect(cx+(cross-inner)/2, cy+(cross-inner)/2, inner, inner, "F")
	arm := inner / 5
	pdf.SetFillColor(255, 255, 255)
	pdf.Rect(cx+cross/2-arm/2, cy+(cross-inner)/2+arm, arm, inner-2*arm, "F")
	pdf.Rect(cx+(cross-inner)/2+arm, cy+cross/2-arm/2, inner-2*arm, arm, "F")

	return nil
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}
