package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/expense-etl/internal/logger"
	"github.com/dvloznov/expense-etl/internal/warehouse"
)

// Loader inserts staged records into the warehouse, skipping identities that
// are already loaded. Loading is at-least-once at document granularity: a
// retried document is safe because identity dedup drops it, but a document
// whose rows partially fail stays inconsistent until a later retry, since
// there is no document-level transaction. Two concurrent loaders can also
// race the same identity past the index and both insert it; the warehouse
// enforces no uniqueness constraint, so that duplicate is accepted as a
// known gap.
type Loader struct {
	exec     warehouse.Executor
	database string
	wait     warehouse.WaitConfig
}

// NewLoader creates a loader over the given executor.
func NewLoader(exec warehouse.Executor, database string) *Loader {
	return &Loader{exec: exec, database: database, wait: warehouse.DefaultWaitConfig()}
}

// LoadSummary accumulates the outcome of one load batch.
type LoadSummary struct {
	Loaded  int
	Skipped int
	Failed  int
	Errors  []error
}

// LoadedIDIndex recomputes the set of identities already present in the
// family's table. An empty table yields an empty index, never an error
// by itself.
func (l *Loader) LoadedIDIndex(ctx context.Context, family Family) (map[string]struct{}, error) {
	sql := fmt.Sprintf("SELECT DISTINCT %s FROM %s", family.IdentityColumn(), family.Table())

	id, err := l.exec.Submit(ctx, l.database, sql)
	if err != nil {
		return nil, fmt.Errorf("loader: submitting loaded-id query: %w", err)
	}
	status, err := warehouse.Wait(ctx, l.exec, id, l.wait)
	if err != nil {
		return nil, fmt.Errorf("loader: waiting for loaded-id query: %w", err)
	}
	if status.State == warehouse.StateFailed {
		return nil, fmt.Errorf("loader: loaded-id query failed: %s", status.ErrorMessage)
	}

	index := make(map[string]struct{})
	if !status.HasResultSet {
		return index, nil
	}
	rows, err := l.exec.FetchResults(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loader: fetching loaded ids: %w", err)
	}
	for _, row := range rows {
		if len(row) > 0 && row[0].Kind == warehouse.KindString && row[0].Str != "" {
			index[row[0].Str] = struct{}{}
		}
	}
	return index, nil
}

// Load inserts the records whose identity is not in the index, one statement
// per row. Multi-row documents share the parent identity, so a loaded parent
// skips the whole group as a unit. A failed statement is recorded with its
// row context and the batch continues.
func (l *Loader) Load(ctx context.Context, family Family, records []*NormalizedRecord, index map[string]struct{}) LoadSummary {
	log := logger.FromContext(ctx)
	var summary LoadSummary

	for _, rec := range records {
		if _, loaded := index[rec.Identity]; loaded {
			summary.Skipped++
			continue
		}

		sql, err := l.buildInsert(family, rec)
		if err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, &LoadStatementError{Identity: rec.Identity, Err: err})
			log.Warn().Str("family", string(family)).Str("identity", rec.Identity).Err(err).Msg("skipping unbuildable row")
			continue
		}

		if err := l.execute(ctx, sql); err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, &LoadStatementError{Identity: rec.Identity, SQL: sql, Err: err})
			log.Warn().Str("family", string(family)).Str("identity", rec.Identity).Err(err).Msg("insert failed, continuing batch")
			continue
		}
		summary.Loaded++
	}

	log.Info().
		Str("family", string(family)).
		Int("loaded", summary.Loaded).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("load batch finished")
	return summary
}

func (l *Loader) execute(ctx context.Context, sql string) error {
	id, err := l.exec.Submit(ctx, l.database, sql)
	if err != nil {
		return err
	}
	status, err := warehouse.Wait(ctx, l.exec, id, l.wait)
	if err != nil {
		return err
	}
	if status.State == warehouse.StateFailed {
		return fmt.Errorf("statement failed: %s", status.ErrorMessage)
	}
	return nil
}

// buildInsert renders one record into a typed insert statement, normalizing
// bank date and time fields on the way in.
func (l *Loader) buildInsert(family Family, rec *NormalizedRecord) (string, error) {
	if family == FamilyBankEmail {
		normalizeBankRow(rec)
	}

	b := warehouse.NewInsert(family.Table())
	for _, col := range family.Columns() {
		raw, _ := rec.Get(col)
		value, err := typedValue(family.ColumnKind(col), raw)
		if err != nil {
			return "", fmt.Errorf("column %s: %w", col, err)
		}
		b.Set(col, value)
	}
	return b.SQL(), nil
}

func typedValue(kind warehouse.ValueKind, raw string) (warehouse.Value, error) {
	if raw == "" {
		return warehouse.Null(), nil
	}
	switch kind {
	case warehouse.KindInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return warehouse.Value{}, fmt.Errorf("not an integer: %q", raw)
		}
		return warehouse.Int(n), nil
	case warehouse.KindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return warehouse.Value{}, fmt.Errorf("not a number: %q", raw)
		}
		return warehouse.Float(f), nil
	default:
		return warehouse.String(raw), nil
	}
}

// normalizeBankRow widens the payment date to YYYY-MM-DD (two-digit years
// become 20YY) and pads HH:MM times with seconds, matching what the
// bank_payments table expects.
func normalizeBankRow(rec *NormalizedRecord) {
	if raw, ok := rec.Get("payment_date"); ok && raw != "" {
		if norm, err := normalizeBankDate(raw); err == nil {
			rec.Set("payment_date", norm)
		}
	}
	if raw, ok := rec.Get("payment_time"); ok && len(raw) == 5 {
		rec.Set("payment_time", raw+":00")
	}
}

func normalizeBankDate(raw string) (string, error) {
	parts := strings.Split(raw, "/")
	if len(parts) != 3 {
		return "", fmt.Errorf("unexpected date %q", raw)
	}
	if len(parts[2]) == 2 {
		parts[2] = "20" + parts[2]
	}
	t, err := time.Parse("2/1/2006", strings.Join(parts, "/"))
	if err != nil {
		return "", fmt.Errorf("unexpected date %q: %w", raw, err)
	}
	return t.Format("2006-01-02"), nil
}
