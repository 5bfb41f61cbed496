package ingest

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/expense-etl/internal/logger"
	"github.com/dvloznov/expense-etl/internal/warehouse"
)

// Fallback horizons per family, used whenever the max-date query cannot be
// answered. Availability beats precision here: a too-early window only
// re-fetches documents the dedup filter and loader will drop again.
const (
	receiptFallbackDays    = 90
	settlementFallbackDays = 30
)

// bankFallbackDate is the fixed historical start of the bank-payment feed.
var bankFallbackDate = civil.Date{Year: 2024, Month: time.October, Day: 1}

// Tracker computes how far back the next fetch window for a family should
// look, from the warehouse's own state.
type Tracker struct {
	exec     warehouse.Executor
	database string
	wait     warehouse.WaitConfig
	now      func() time.Time
}

// NewTracker creates a watermark tracker over the given executor.
func NewTracker(exec warehouse.Executor, database string) *Tracker {
	return &Tracker{
		exec:     exec,
		database: database,
		wait:     warehouse.DefaultWaitConfig(),
		now:      time.Now,
	}
}

// Watermark returns the day after the family's most recent ingested date.
// It never fails: any error along the way (missing table, failed statement,
// empty result, unparseable date) falls back to the family's default horizon.
func (t *Tracker) Watermark(ctx context.Context, family Family) civil.Date {
	log := logger.FromContext(ctx)

	date, err := t.maxIngestedDate(ctx, family)
	if err != nil {
		log.Warn().Str("family", string(family)).Err(err).Msg("max-date query failed, using fallback horizon")
		return t.fallback(family)
	}
	return date.AddDays(1)
}

func (t *Tracker) maxIngestedDate(ctx context.Context, family Family) (civil.Date, error) {
	id, err := t.exec.Submit(ctx, t.database, maxDateSQL(family))
	if err != nil {
		return civil.Date{}, err
	}

	status, err := warehouse.Wait(ctx, t.exec, id, t.wait)
	if err != nil {
		return civil.Date{}, err
	}
	if status.State == warehouse.StateFailed {
		return civil.Date{}, fmt.Errorf("max-date statement failed: %s", status.ErrorMessage)
	}
	if !status.HasResultSet {
		return civil.Date{}, fmt.Errorf("max-date statement returned no result set")
	}

	rows, err := t.exec.FetchResults(ctx, id)
	if err != nil {
		return civil.Date{}, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 || rows[0][0].IsNull() {
		return civil.Date{}, fmt.Errorf("max-date statement returned no rows")
	}

	return parseWatermarkDate(rows[0][0].Str)
}

// maxDateSQL builds the family's aggregate query. Bank payment and receipt
// dates are stored as DD/MM/YY or DD/MM/YYYY text, so two-digit years are
// widened to 20YY before comparison; settlement report dates already come in
// ISO form from the staging key.
func maxDateSQL(family Family) string {
	switch family {
	case FamilyBankEmail:
		return normalizedMaxDateSQL("payment_date", "bank_payments")
	case FamilyReceiptPDF:
		return normalizedMaxDateSQL("date", "receipt_items")
	case FamilySettlementReport:
		return "SELECT MAX(PARSE_DATE('%Y-%m-%d', report_date)) AS max_date FROM mp_data"
	}
	return ""
}

func normalizedMaxDateSQL(column, table string) string {
	return fmt.Sprintf(`SELECT MAX(PARSE_DATE('%%d/%%m/%%Y',
  CASE WHEN LENGTH(SPLIT(%[1]s, '/')[OFFSET(2)]) = 2
       THEN CONCAT(SPLIT(%[1]s, '/')[OFFSET(0)], '/', SPLIT(%[1]s, '/')[OFFSET(1)], '/20', SPLIT(%[1]s, '/')[OFFSET(2)])
       ELSE %[1]s
  END)) AS max_date FROM %[2]s`, column, table)
}

// parseWatermarkDate accepts the ISO form the warehouse returns for DATE
// cells and, defensively, the raw DD/MM/YY[YY] form with the same two-digit
// year widening the SQL applies.
func parseWatermarkDate(s string) (civil.Date, error) {
	if d, err := civil.ParseDate(s); err == nil {
		return d, nil
	}

	parts := splitDate(s)
	if len(parts) == 3 {
		if len(parts[2]) == 2 {
			parts[2] = "20" + parts[2]
		}
		t, err := time.Parse("2/1/2006", parts[0]+"/"+parts[1]+"/"+parts[2])
		if err == nil {
			return civil.DateOf(t), nil
		}
	}
	return civil.Date{}, fmt.Errorf("unparseable watermark date %q", s)
}

func splitDate(s string) []string {
	var parts []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '/' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return parts
}

func (t *Tracker) fallback(family Family) civil.Date {
	switch family {
	case FamilyBankEmail:
		return bankFallbackDate
	case FamilyReceiptPDF:
		return civil.DateOf(t.now().AddDate(0, 0, -receiptFallbackDays))
	default:
		return civil.DateOf(t.now().AddDate(0, 0, -settlementFallbackDays))
	}
}
