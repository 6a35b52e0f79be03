package ticket

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/jung-kurt/gofpdf"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/iliyamo/chat-ticketing/internal/model"
)

// RenderOptions controls the parts of the ticket that do not come from the
// event or the order.
type RenderOptions struct {
	BaseURL  string
	Brand    string
	Location *time.Location
}

var monthsPT = [...]string{"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro"}

// FormatDate renders t as "20 de setembro de 2025 às 23:00" in loc.
func FormatDate(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc != nil {
		t = t.In(loc)
	}
	return fmt.Sprintf("%02d de %s de %d às %02d:%02d", t.Day(), monthsPT[t.Month()-1], t.Year(), t.Hour(), t.Minute())
}

// ValidationURL is the URL encoded in the ticket's QR code.
func ValidationURL(baseURL, code string) string {
	return strings.TrimRight(baseURL, "/") + "/validate?c=" + code
}

// PDFURL is the public link to the ticket document.
func PDFURL(baseURL, code string) string {
	return strings.TrimRight(baseURL, "/") + "/tickets/pdf?code=" + code
}

// Filename returns "<sanitized title>_<code>.pdf".
func Filename(title, code string) string {
	return SanitizeFilename(title) + "_" + code + ".pdf"
}

// SanitizeFilename keeps letters, digits, '-' and '.', folds everything else
// into single underscores and caps the result at 60 runes.
func SanitizeFilename(s string) string {
	var b strings.Builder
	lastUnderscore := false
	n := 0
	for _, r := range strings.TrimSpace(s) {
		if n >= 60 {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '.' {
			b.WriteRune(r)
			lastUnderscore = false
			n++
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
			n++
		}
	}
	out := strings.Trim(b.String(), "_.")
	if out == "" {
		return "ingresso"
	}
	return out
}

// RenderTicketPDF draws the single-page ticket for order.  The output only
// depends on its arguments: the document dates come from the order and
// catalog entries are sorted, so the same inputs always give the same bytes.
func RenderTicketPDF(ev *model.Event, order *model.Order, opts RenderOptions) ([]byte, error) {
	qr, err := qrcode.Encode(ValidationURL(opts.BaseURL, order.Code), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	brand := opts.Brand
	if brand == "" {
		brand = "IngressAI"
	}

	stamp := order.CreatedAt.UTC()
	if order.CreatedAt.IsZero() {
		stamp = time.Unix(0, 0).UTC()
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(stamp)
	pdf.SetModificationDate(stamp)
	pdf.SetCompression(true)
	pdf.SetTitle(ev.Title, true)
	pdf.SetCreator(brand, true)
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	// Header
	pdf.SetFont("Helvetica", "B", 22)
	pdf.CellFormat(0, 14, tr(strings.ToUpper(brand)+" | INGRESSO"), "", 1, "L", false, 0, "")
	pdf.SetDrawColor(220, 220, 220)
	pdf.Line(15, pdf.GetY()+2, 195, pdf.GetY()+2)
	pdf.Ln(8)

	// Event + QR
	yStart := pdf.GetY()
	pdf.SetFillColor(245, 245, 245)
	pdf.Rect(15, yStart, 120, 62, "F")
	pdf.SetXY(20, yStart+6)
	pdf.SetFont("Helvetica", "B", 16)
	pdf.MultiCell(110, 8, tr(ev.Title), "", "L", false)
	pdf.SetX(20)
	pdf.SetFont("Helvetica", "", 12)
	where := ev.City
	if d := FormatDate(ev.Date, opts.Location); d != "" {
		if where != "" {
			where += " • "
		}
		where += d
	}
	pdf.MultiCell(110, 7, tr(where), "", "L", false)
	pdf.SetX(20)
	pdf.MultiCell(110, 7, tr("Local: "+ev.Venue), "", "L", false)

	pdf.RegisterImageOptionsReader("qr", gofpdf.ImageOptions{ImageType: "png"}, bytes.NewReader(qr))
	pdf.ImageOptions("qr", 142, yStart, 53, 0, false, gofpdf.ImageOptions{ImageType: "png"}, 0, "")

	// Buyer
	pdf.SetY(yStart + 70)
	drawSectionTitle(pdf, tr("PARTICIPANTE"))
	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 8, tr("Nome: "+order.BuyerName), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 8, tr(fmt.Sprintf("Quantidade: %d", order.Quantity)), "", 1, "L", false, 0, "")
	if !ev.Price.IsZero() {
		pdf.CellFormat(0, 8, tr("Valor unitário: R$ "+strings.Replace(ev.Price.StringFixed(2), ".", ",", 1)), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	drawSectionTitle(pdf, tr("CÓDIGO"))
	pdf.SetFont("Courier", "B", 12)
	pdf.CellFormat(0, 8, order.Code, "", 1, "L", false, 0, "")
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.CellFormat(0, 6, tr("Apresente este QR Code na entrada. Cada código vale para uma única validação."), "", 1, "L", false, 0, "")

	// Footer
	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(15, 285, 195, 285)
	pdf.SetY(288)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.CellFormat(0, 6, tr(brand+" • ingresso digital"), "", 0, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func drawSectionTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 13)
	pdf.SetFillColor(240, 240, 240)
	pdf.CellFormat(0, 9, title, "", 1, "L", true, 0, "")
	pdf.Ln(2)
}
