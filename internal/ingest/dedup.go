package ingest

import (
	"context"
	"fmt"

	"github.com/dvloznov/expense-etl/internal/warehouse"
)

// Filter removes documents already present in the warehouse before they
// reach parsing, using the family's source-native identifier column. It
// shares no cache with the loader; both read the warehouse independently.
type Filter struct {
	exec     warehouse.Executor
	database string
	wait     warehouse.WaitConfig
}

// NewFilter creates a dedup filter over the given executor.
func NewFilter(exec warehouse.Executor, database string) *Filter {
	return &Filter{exec: exec, database: database, wait: warehouse.DefaultWaitConfig()}
}

// FilterNew returns the candidates whose source-native id is not yet in the
// warehouse, preserving candidate order. An empty existing set means nothing
// has been loaded yet and every candidate passes.
func (f *Filter) FilterNew(ctx context.Context, family Family, candidates []string) ([]string, error) {
	existing, err := f.existingIDs(ctx, family)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return candidates, nil
	}

	fresh := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if _, ok := existing[id]; !ok {
			fresh = append(fresh, id)
		}
	}
	return fresh, nil
}

func (f *Filter) existingIDs(ctx context.Context, family Family) (map[string]struct{}, error) {
	sql := fmt.Sprintf("SELECT DISTINCT %s FROM %s", family.DedupColumn(), family.Table())

	id, err := f.exec.Submit(ctx, f.database, sql)
	if err != nil {
		return nil, fmt.Errorf("dedup: submitting existing-id query: %w", err)
	}

	status, err := warehouse.Wait(ctx, f.exec, id, f.wait)
	if err != nil {
		return nil, fmt.Errorf("dedup: waiting for existing-id query: %w", err)
	}
	if status.State == warehouse.StateFailed {
		return nil, fmt.Errorf("dedup: existing-id query failed: %s", status.ErrorMessage)
	}
	if !status.HasResultSet {
		return map[string]struct{}{}, nil
	}

	rows, err := f.exec.FetchResults(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("dedup: fetching existing ids: %w", err)
	}

	existing := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if len(row) > 0 && row[0].Kind == warehouse.KindString && row[0].Str != "" {
			existing[row[0].Str] = struct{}{}
		}
	}
	return existing, nil
}
