// Package ingest implements the ingestion pipeline: incremental watermark
// tracking, dedup against the warehouse, heuristic normalization of the three
// document families, staging, and idempotent loading.
package ingest

import "github.com/dvloznov/expense-etl/internal/warehouse"

// Family tags the three known document families.
type Family string

const (
	FamilyBankEmail        Family = "BANK_EMAIL"
	FamilyReceiptPDF       Family = "RECEIPT_PDF"
	FamilySettlementReport Family = "SETTLEMENT_REPORT"
)

// IdentityKind distinguishes how a family derives record identities.
// The asymmetry is deliberate: bank emails carry no transaction id that
// survives redelivery, so their identity is a content hash; the other two
// families reuse the source's own identifier.
type IdentityKind int

const (
	IdentityContentHash IdentityKind = iota
	IdentitySourceNative
)

func (f Family) IdentityKind() IdentityKind {
	if f == FamilyBankEmail {
		return IdentityContentHash
	}
	return IdentitySourceNative
}

// Table returns the warehouse table the family loads into.
func (f Family) Table() string {
	switch f {
	case FamilyBankEmail:
		return "bank_payments"
	case FamilyReceiptPDF:
		return "receipt_items"
	case FamilySettlementReport:
		return "mp_data"
	}
	return ""
}

// IdentityColumn is the column the loader dedups on.
func (f Family) IdentityColumn() string {
	switch f {
	case FamilyBankEmail:
		return "id"
	case FamilyReceiptPDF:
		return "ticket_id"
	case FamilySettlementReport:
		return "report_id"
	}
	return ""
}

// DedupColumn is the source-native identifier column the pre-parse dedup
// filter uses. Content-hash families dedup at load time instead.
func (f Family) DedupColumn() string {
	switch f {
	case FamilyBankEmail:
		return "message_id"
	case FamilyReceiptPDF:
		return "ticket_id"
	case FamilySettlementReport:
		return "report_id"
	}
	return ""
}

// Columns lists the family's table columns in insert order.
func (f Family) Columns() []string {
	switch f {
	case FamilyBankEmail:
		return []string{
			"id", "message_id", "payment_date", "payment_time", "amount",
			"currency", "card_label", "card_suffix", "merchant",
			"installments", "extracted_at",
		}
	case FamilyReceiptPDF:
		return []string{
			"ticket_id", "date", "category", "product", "quantity", "weight",
			"unit_price", "line_total", "ticket_gross_total", "ticket_share_total",
		}
	case FamilySettlementReport:
		return []string{
			"source_id", "report_id", "report_date", "settlement_date",
			"payment_method_type", "transaction_type", "transaction_amount",
			"transaction_date", "real_amount", "pos_id", "store_id",
			"store_name", "payer_name", "business_unit", "sub_unit",
		}
	}
	return nil
}

// columnKinds maps non-string columns to their warehouse cell kind.
// Unlisted columns load as strings, matching the original table definitions.
var columnKinds = map[Family]map[string]warehouse.ValueKind{
	FamilyBankEmail: {
		"amount":       warehouse.KindFloat,
		"installments": warehouse.KindInt,
	},
	FamilyReceiptPDF: {
		"quantity":           warehouse.KindInt,
		"weight":             warehouse.KindFloat,
		"unit_price":         warehouse.KindFloat,
		"line_total":         warehouse.KindFloat,
		"ticket_gross_total": warehouse.KindFloat,
		"ticket_share_total": warehouse.KindFloat,
	},
	FamilySettlementReport: {},
}

// ColumnKind returns the cell kind a column loads as.
func (f Family) ColumnKind(column string) warehouse.ValueKind {
	if kind, ok := columnKinds[f][column]; ok {
		return kind
	}
	return warehouse.KindString
}
