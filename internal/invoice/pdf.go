package invoice

import (
	"bytes"
	"fmt"
	"strings"

	"checkout-service/internal/models"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
)

// Generator renders an order snapshot as a single-page A4 invoice
type Generator struct {
	storeName string
	currency  string
}

func NewGenerator(storeName, currency string) *Generator {
	return &Generator{storeName: storeName, currency: currency}
}

// Render produces the invoice PDF bytes
func (g *Generator) Render(snap models.OrderSnapshot) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetCreationDate(snap.Order.OrderDate)
	pdf.SetTitle(fmt.Sprintf("Invoice %d", snap.Order.ID), true)
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, tr(g.storeName))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, fmt.Sprintf("Invoice for order #%d", snap.Order.ID))
	pdf.Ln(6)
	pdf.Cell(0, 6, "Date: "+snap.Order.OrderDate.Format("2006-01-02"))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(90, 6, "Billed to")
	pdf.Cell(0, 6, "Ship to")
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "", 10)
	billing := []string{snap.User.Name, snap.User.Email}
	shipping := addressLines(snap.ShippingAddress)
	for i := 0; i < len(billing) || i < len(shipping); i++ {
		pdf.Cell(90, 5, tr(lineAt(billing, i)))
		pdf.Cell(0, 5, tr(lineAt(shipping, i)))
		pdf.Ln(5)
	}
	pdf.Ln(6)

	widths := []float64{90, 20, 35, 35}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(235, 235, 235)
	for i, header := range []string{"Product", "Qty", "Unit price", "Amount"} {
		align := "R"
		if i == 0 {
			align = "L"
		}
		pdf.CellFormat(widths[i], 7, header, "1", 0, align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for _, line := range snap.Lines {
		pdf.CellFormat(widths[0], 7, tr(line.Name), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 7, fmt.Sprintf("%d", line.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[2], 7, g.money(line.Price), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 7, g.money(line.LineTotal()), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(4)

	g.totalRow(pdf, "Subtotal", snap.Order.TotalAmount)
	if snap.Discount.IsPositive() {
		g.totalRow(pdf, "Gift card", snap.Discount.Neg())
	}
	pdf.SetFont("Helvetica", "B", 10)
	g.totalRow(pdf, "Total charged", snap.ChargeTotal)

	if snap.TransactionID != "" {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "", 9)
		pdf.Cell(0, 5, tr(fmt.Sprintf("Paid by card (%s), transaction %s", snap.BankName, snap.TransactionID)))
		pdf.Ln(5)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render invoice: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *Generator) totalRow(pdf *fpdf.Fpdf, label string, amount decimal.Decimal) {
	pdf.CellFormat(145, 6, label, "", 0, "R", false, 0, "")
	pdf.CellFormat(35, 6, g.money(amount), "", 0, "R", false, 0, "")
	pdf.Ln(6)
}

func (g *Generator) money(d decimal.Decimal) string {
	return g.currency + " " + d.StringFixed(2)
}

func addressLines(a models.Address) []string {
	lines := []string{a.Line1}
	if a.Line2 != "" {
		lines = append(lines, a.Line2)
	}
	cityLine := strings.TrimSpace(strings.Join([]string{a.City, a.State, a.PostalCode}, " "))
	return append(lines, cityLine, a.Country)
}

func lineAt(lines []string, i int) string {
	if i < len(lines) {
		return lines[i]
	}
	return ""
}
