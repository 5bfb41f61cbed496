package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dvloznov/expense-etl/internal/mailbox"
	"github.com/dvloznov/expense-etl/internal/warehouse"
)

// fakeExecutor scripts warehouse behavior per SQL substring: queries whose
// text contains a results key return those rows; queries matching a fail key
// finish FAILED. Everything else finishes cleanly, so inserts succeed by
// default.
type fakeExecutor struct {
	mu         sync.Mutex
	results    map[string][]warehouse.Row
	failures   map[string]string
	submitErr  error
	statements []string
	byID       map[string]string
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		results:  make(map[string][]warehouse.Row),
		failures: make(map[string]string),
		byID:     make(map[string]string),
	}
}

func (f *fakeExecutor) Submit(_ context.Context, _, sql string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.statements = append(f.statements, sql)
	id := fmt.Sprintf("stmt-%d", len(f.statements))
	f.byID[id] = sql
	return id, nil
}

func (f *fakeExecutor) Poll(_ context.Context, id string) (warehouse.StatementStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sql := f.byID[id]
	for key, msg := range f.failures {
		if strings.Contains(sql, key) {
			return warehouse.StatementStatus{State: warehouse.StateFailed, ErrorMessage: msg}, nil
		}
	}
	return warehouse.StatementStatus{
		State:        warehouse.StateFinished,
		HasResultSet: strings.HasPrefix(strings.TrimSpace(sql), "SELECT"),
	}, nil
}

func (f *fakeExecutor) FetchResults(_ context.Context, id string) ([]warehouse.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sql := f.byID[id]
	for key, rows := range f.results {
		if strings.Contains(sql, key) {
			return rows, nil
		}
	}
	return nil, nil
}

func (f *fakeExecutor) inserts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, sql := range f.statements {
		if strings.HasPrefix(sql, "INSERT") {
			out = append(out, sql)
		}
	}
	return out
}

func stringRows(values ...string) []warehouse.Row {
	rows := make([]warehouse.Row, len(values))
	for i, v := range values {
		rows[i] = warehouse.Row{warehouse.String(v)}
	}
	return rows
}

// fakeMailSource serves scripted messages.
type fakeMailSource struct {
	messages  map[string]*mailbox.Message
	searchIDs []string
	lastQuery string
}

func (f *fakeMailSource) Search(_ context.Context, query string) ([]string, error) {
	f.lastQuery = query
	return f.searchIDs, nil
}

func (f *fakeMailSource) Fetch(_ context.Context, id string) (*mailbox.Message, error) {
	msg, ok := f.messages[id]
	if !ok {
		return nil, fmt.Errorf("no such message %s", id)
	}
	return msg, nil
}
