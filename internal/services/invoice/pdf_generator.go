package invoice

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
	"github.com/user/marfanet-crm/internal/models"
)

// PDFGenerator - invoice PDF renderer
type PDFGenerator struct {
	fontsDir string
}

// NewPDFGenerator creates a new generator. fontsDir must contain
// Vazirmatn-Regular.ttf and Vazirmatn-Bold.ttf for Persian text support.
func NewPDFGenerator(fontsDir string) *PDFGenerator {
	if fontsDir == "" {
		fontsDir = "./fonts"
	}
	return &PDFGenerator{fontsDir: fontsDir}
}

// GenerateInvoicePDF renders one invoice as an A4 PDF
func (g *PDFGenerator) GenerateInvoicePDF(invoice *models.Invoice, rep *models.Representative) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()

	// Vazirmatn covers both Latin and Persian glyphs; fall back to the
	// built-in Helvetica when the font files are not deployed
	regular := filepath.Join(g.fontsDir, "Vazirmatn-Regular.ttf")
	bold := filepath.Join(g.fontsDir, "Vazirmatn-Bold.ttf")
	fontName := "Vazirmatn"
	if fileExists(regular) && fileExists(bold) {
		pdf.AddUTF8Font(fontName, "", regular)
		pdf.AddUTF8Font(fontName, "B", bold)
	} else {
		fontName = "Helvetica"
	}

	g.drawHeader(pdf, fontName, invoice)
	g.drawRepresentative(pdf, fontName, rep)
	g.drawItemsTable(pdf, fontName, invoice)
	g.drawTotals(pdf, fontName, invoice)
	g.drawFooter(pdf, fontName, invoice)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// drawHeader - invoice number, issue and due dates
func (g *PDFGenerator) drawHeader(pdf *fpdf.Fpdf, font string, invoice *models.Invoice) {
	pdf.SetFont(font, "B", 16)
	pdf.CellFormat(190, 10, "MarFanet", "", 1, "L", false, 0, "")

	pdf.SetFont(font, "B", 13)
	pdf.CellFormat(190, 8, fmt.Sprintf("Invoice %s", invoice.InvoiceNumber), "", 1, "L", false, 0, "")

	pdf.SetFont(font, "", 9)
	pdf.CellFormat(95, 5, fmt.Sprintf("Issue date: %s", invoice.IssueDate.Format("2006-01-02")), "", 0, "L", false, 0, "")
	pdf.CellFormat(95, 5, fmt.Sprintf("Due date: %s", invoice.DueDate.Format("2006-01-02")), "", 1, "L", false, 0, "")
	pdf.CellFormat(95, 5, fmt.Sprintf("Status: %s", invoice.Status), "", 1, "L", false, 0, "")

	y := pdf.GetY() + 2
	pdf.SetLineWidth(0.4)
	pdf.Line(10, y, 200, y)
	pdf.SetLineWidth(0.2)
	pdf.Ln(5)
}

// drawRepresentative - billed-to block
func (g *PDFGenerator) drawRepresentative(pdf *fpdf.Fpdf, font string, rep *models.Representative) {
	if rep == nil {
		return
	}

	pdf.SetFont(font, "", 9)
	pdf.CellFormat(30, 5, "Billed to:", "", 0, "L", false, 0, "")

	name := rep.DisplayName
	if name == "" {
		name = rep.AdminUsername
	}
	pdf.SetFont(font, "B", 9)
	line := name
	if rep.StoreName != "" {
		line = fmt.Sprintf("%s (%s)", name, rep.StoreName)
	}
	pdf.CellFormat(160, 5, line, "", 1, "L", false, 0, "")

	pdf.SetFont(font, "", 9)
	pdf.CellFormat(30, 5, "Panel user:", "", 0, "L", false, 0, "")
	pdf.CellFormat(160, 5, rep.AdminUsername, "", 1, "L", false, 0, "")
	if rep.Phone != "" {
		pdf.CellFormat(30, 5, "Phone:", "", 0, "L", false, 0, "")
		pdf.CellFormat(160, 5, rep.Phone, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

// drawItemsTable - one row per duration bucket
func (g *PDFGenerator) drawItemsTable(pdf *fpdf.Fpdf, font string, invoice *models.Invoice) {
	colNum := 10.0
	colDesc := 85.0
	colQty := 30.0
	colPrice := 32.5
	colTotal := 32.5

	y := pdf.GetY()
	pdf.SetLineWidth(0.5)
	pdf.Line(10, y, 200, y)
	pdf.SetLineWidth(0.2)

	pdf.SetFont(font, "B", 8)
	pdf.CellFormat(colNum, 7, "#", "1", 0, "C", false, 0, "")
	pdf.CellFormat(colDesc, 7, "Service", "1", 0, "C", false, 0, "")
	pdf.CellFormat(colQty, 7, "Quantity", "1", 0, "C", false, 0, "")
	pdf.CellFormat(colPrice, 7, "Unit price (Toman)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(colTotal, 7, "Total (Toman)", "1", 1, "C", false, 0, "")

	pdf.SetFont(font, "", 8)
	for i, item := range invoice.Items {
		desc := itemDescription(&item)
		qty := item.Quantity.StringFixed(2)
		if item.ServiceType == models.ServiceTypeLimited {
			qty += " GB"
		}

		pdf.CellFormat(colNum, 6, fmt.Sprintf("%d", i+1), "1", 0, "C", false, 0, "")
		pdf.CellFormat(colDesc, 6, desc, "1", 0, "L", false, 0, "")
		pdf.CellFormat(colQty, 6, qty, "1", 0, "R", false, 0, "")
		pdf.CellFormat(colPrice, 6, formatMoney(item.UnitPrice), "1", 0, "R", false, 0, "")
		pdf.CellFormat(colTotal, 6, formatMoney(item.TotalPrice), "1", 1, "R", false, 0, "")
	}

	y = pdf.GetY()
	pdf.SetLineWidth(0.5)
	pdf.Line(10, y, 200, y)
	pdf.SetLineWidth(0.2)
	pdf.Ln(2)
}

// drawTotals - grand total row
func (g *PDFGenerator) drawTotals(pdf *fpdf.Fpdf, font string, invoice *models.Invoice) {
	pdf.SetFont(font, "B", 10)
	pdf.CellFormat(157.5, 7, "Total due:", "", 0, "R", false, 0, "")
	pdf.CellFormat(32.5, 7, formatMoney(invoice.TotalAmount)+" Toman", "", 1, "R", false, 0, "")
	pdf.Ln(3)
}

// drawFooter - payment note
func (g *PDFGenerator) drawFooter(pdf *fpdf.Fpdf, font string, invoice *models.Invoice) {
	pdf.SetFont(font, "", 8)
	note := fmt.Sprintf("Please settle this invoice by %s. Contact MarFanet support on Telegram for payment questions.",
		invoice.DueDate.Format("2006-01-02"))
	pdf.MultiCell(190, 4, note, "", "L", false)

	pdf.Ln(2)
	pdf.SetFont(font, "", 7)
	pdf.CellFormat(190, 4, fmt.Sprintf("Generated %s", time.Now().Format("2006-01-02 15:04")), "", 1, "L", false, 0, "")
}

// itemDescription names one duration bucket for display
func itemDescription(item *models.InvoiceItem) string {
	unit := "month"
	if item.DurationMonths > 1 {
		unit = "months"
	}
	if item.ServiceType == models.ServiceTypeLimited {
		return fmt.Sprintf("Limited volume, %d %s", item.DurationMonths, unit)
	}
	return fmt.Sprintf("Unlimited subscription, %d %s", item.DurationMonths, unit)
}

// formatMoney formats a decimal amount with space thousand separators and a
// comma decimal mark (12 345,00)
func formatMoney(amount decimal.Decimal) string {
	s := amount.StringFixed(2)

	sign := ""
	if len(s) > 0 && s[0] == '-' {
		sign = "-"
		s = s[1:]
	}

	whole := s[:len(s)-3]
	frac := s[len(s)-2:]

	n := len(whole)
	if n > 3 {
		var result []byte
		for i := 0; i < n; i++ {
			if i > 0 && (n-i)%3 == 0 {
				result = append(result, ' ')
			}
			result = append(result, whole[i])
		}
		whole = string(result)
	}
	return fmt.Sprintf("%s%s,%s", sign, whole, frac)
}
