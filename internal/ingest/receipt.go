package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/expense-etl/internal/logger"
)

// Structural markers of the supermarket ticket layout. Anchors are located
// by first occurrence; the item region sits between the register line and
// the totals line.
const (
	markerDate     = "Fecha"
	markerTimeOf   = "Hora"
	markerRegister = "Caja"
	markerTotals   = "TOTAL"
	markerTicket   = "P.V."
	markerTicketNo = "Nro T."
	markerDiscount = "AHORRO"
)

// receiptCategories is the fixed set of category header labels the store
// prints. New categories show up as purchases do.
var receiptCategories = map[string]bool{
	"Bebidas":           true,
	"Carniceria":        true,
	"Almacen":           true,
	"Frutas Y Verduras": true,
	"Limpieza":          true,
	"Perfumeria":        true,
	"Hogar Bazar":       true,
}

// shareFactor is the fixed share of the gross total reported alongside it.
var shareFactor = decimal.NewFromFloat(0.3)

// TicketItem is one purchased line on a ticket. Items sold by unit carry
// Quantity; items sold by weight carry Weight and a zero quantity.
type TicketItem struct {
	Category  string
	Product   string
	Quantity  int
	Weight    decimal.Decimal
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// Ticket is a fully parsed purchase receipt.
type Ticket struct {
	Number        string
	Date          string
	Items         []TicketItem
	DiscountTotal decimal.Decimal
	GrossTotal    decimal.Decimal
	ShareTotal    decimal.Decimal
}

// lineClass is the outcome of classifying one item-region line.
type lineClass int

const (
	lineCategoryHeader lineClass = iota
	lineQuantityPrice
	lineProductName
)

// ParseReceipt parses the concatenated extracted text of a receipt PDF.
// Malformed item lines are logged and skipped; a missing ticket number
// rejects the document because the ticket number is its identity.
func ParseReceipt(ctx context.Context, doc *SourceDocument) (*Ticket, error) {
	log := logger.FromContext(ctx)

	lines := cleanLines(string(doc.Payload))

	idxDate, idxRegister, idxTotals, idxTicket, idxDiscount := -1, -1, -1, -1, -1
	for i, line := range lines {
		if strings.Contains(line, markerDate) && idxDate < 0 {
			idxDate = i
		}
		if strings.Contains(line, markerRegister) && idxRegister < 0 {
			idxRegister = i
		}
		if strings.Contains(line, markerTotals) && idxTotals < 0 {
			idxTotals = i
		}
		if strings.Contains(line, markerTicket) && idxTicket < 0 {
			idxTicket = i
		}
		if strings.Contains(line, markerDiscount) && idxDiscount < 0 {
			idxDiscount = i
		}
	}

	ticket := &Ticket{}

	if idxDate >= 0 {
		l := lines[idxDate]
		if h := strings.Index(l, markerTimeOf); h > len(markerDate) {
			ticket.Date = strings.TrimSpace(l[len(markerDate)+1 : h])
		}
	}

	if idxTicket >= 0 {
		l := lines[idxTicket]
		if n := strings.Index(l, markerTicketNo); n >= 0 {
			ticket.Number = strings.TrimSpace(l[n+len(markerTicketNo):])
		}
	}
	if ticket.Number == "" {
		return nil, &IdentityIncompleteError{Family: FamilyReceiptPDF, Missing: []string{"ticket number"}}
	}

	if idxDiscount >= 0 {
		l := lines[idxDiscount]
		if d := strings.Index(l, "$"); d >= 0 {
			amount, err := parseCommaDecimal(l[d+1:])
			if err != nil {
				log.Warn().Str("ticket", ticket.Number).Str("line", l).Msg("unparseable discount line, assuming zero")
			} else {
				ticket.DiscountTotal = amount
			}
		}
	}

	region := itemRegion(lines, idxRegister, idxTotals)

	category := ""
	pendingProduct := ""
	for _, line := range region {
		switch classifyLine(line) {
		case lineCategoryHeader:
			category = line
		case lineQuantityPrice:
			item, err := parseItemLine(line)
			if err != nil {
				log.Warn().Str("ticket", ticket.Number).Str("line", line).Err(err).Msg("skipping malformed item line")
				continue
			}
			item.Category = category
			item.Product = pendingProduct
			ticket.Items = append(ticket.Items, item)
		case lineProductName:
			pendingProduct = line
		}
	}

	sum := decimal.Zero
	for _, item := range ticket.Items {
		sum = sum.Add(item.LineTotal)
	}
	net := sum.Sub(ticket.DiscountTotal)
	ticket.GrossTotal = net.Round(0)
	ticket.ShareTotal = net.Mul(shareFactor).Round(0)

	return ticket, nil
}

// cleanLines splits page text into trimmed lines with the PDF extractor's
// NBSP and soft-hyphen artifacts removed.
func cleanLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, len(raw))
	for i, l := range raw {
		l = strings.ReplaceAll(l, " ", " ")
		l = strings.ReplaceAll(l, "­", "")
		lines[i] = strings.TrimSpace(l)
	}
	return lines
}

// itemRegion slices the lines between the register-open marker and the
// totals marker, dropping blanks. The two lines after the register marker
// are layout chrome, not items.
func itemRegion(lines []string, idxRegister, idxTotals int) []string {
	if idxRegister < 0 || idxTotals < 0 || idxRegister+2 > idxTotals {
		return nil
	}
	var region []string
	for _, l := range lines[idxRegister+2 : idxTotals+1] {
		if l != "" {
			region = append(region, l)
		}
	}
	return region
}

// classifyLine decides what an item-region line is: an exact category header,
// a quantity-times-unit-price line, or the pending product name applying to
// the next quantity line.
func classifyLine(line string) lineClass {
	if receiptCategories[line] {
		return lineCategoryHeader
	}
	if isQuantityPriceLine(line) {
		return lineQuantityPrice
	}
	return lineProductName
}

// isQuantityPriceLine matches "<count> x <unit price> (<tax>) [...] <total>"
// and the weight shape "1x <weight> x <unit price> (...)": the head before
// the tax marker must be numeric segments joined by "x".
func isQuantityPriceLine(line string) bool {
	idx := strings.Index(line, "(")
	if idx <= 0 {
		return false
	}
	head := strings.TrimSpace(line[:idx])
	if head == "" || head[0] < '0' || head[0] > '9' {
		return false
	}
	segs := splitSegments(head)
	if len(segs) < 2 {
		return false
	}
	for _, s := range segs {
		if _, err := parseCommaDecimal(s); err != nil {
			return false
		}
	}
	return true
}

// parseItemLine extracts quantity or weight, unit price and line total.
// Separator count distinguishes the two shapes: one "x" is count times unit
// price, two or more is weight times unit price (the leading segment is a
// constant "1").
func parseItemLine(line string) (TicketItem, error) {
	idx := strings.Index(line, "(")
	head := strings.TrimSpace(line[:idx])
	segs := splitSegments(head)

	var item TicketItem
	switch {
	case len(segs) == 2:
		qty, err := strconv.Atoi(segs[0])
		if err != nil {
			return item, fmt.Errorf("quantity %q: %w", segs[0], err)
		}
		unit, err := parseCommaDecimal(segs[1])
		if err != nil {
			return item, fmt.Errorf("unit price: %w", err)
		}
		item.Quantity = qty
		item.UnitPrice = unit
	case len(segs) >= 3:
		weight, err := parseCommaDecimal(segs[1])
		if err != nil {
			return item, fmt.Errorf("weight: %w", err)
		}
		unit, err := parseCommaDecimal(segs[2])
		if err != nil {
			return item, fmt.Errorf("unit price: %w", err)
		}
		item.Weight = weight
		item.UnitPrice = unit
	default:
		return item, fmt.Errorf("unrecognized quantity/price shape %q", head)
	}

	tail := line[idx:]
	if cp := strings.Index(tail, ")"); cp >= 0 {
		tail = tail[cp+1:]
	}
	if b := strings.Index(tail, "]"); b >= 0 {
		tail = tail[b+1:]
	}
	total, err := parseCommaDecimal(tail)
	if err != nil {
		return item, fmt.Errorf("line total: %w", err)
	}
	item.LineTotal = total

	return item, nil
}

// splitSegments splits the numeric head on its "x" separators.
func splitSegments(head string) []string {
	parts := strings.Split(strings.ToLower(head), "x")
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// Records maps the ticket onto receipt_items rows, one per item, all sharing
// the ticket number as parent identity.
func (t *Ticket) Records() []*NormalizedRecord {
	records := make([]*NormalizedRecord, 0, len(t.Items))
	for _, item := range t.Items {
		records = append(records, &NormalizedRecord{
			Family:   FamilyReceiptPDF,
			Identity: t.Number,
			Fields: []Field{
				{Name: "ticket_id", Value: t.Number},
				{Name: "date", Value: t.Date},
				{Name: "category", Value: item.Category},
				{Name: "product", Value: item.Product},
				{Name: "quantity", Value: strconv.Itoa(item.Quantity)},
				{Name: "weight", Value: item.Weight.String()},
				{Name: "unit_price", Value: item.UnitPrice.String()},
				{Name: "line_total", Value: item.LineTotal.String()},
				{Name: "ticket_gross_total", Value: t.GrossTotal.String()},
				{Name: "ticket_share_total", Value: t.ShareTotal.String()},
			},
		})
	}
	return records
}
