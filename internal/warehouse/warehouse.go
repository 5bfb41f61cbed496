// Package warehouse provides an asynchronous statement-execution service
// over the analytical warehouse: a statement is submitted, then polled until
// it reaches a terminal state, and result rows are fetched as typed cells.
package warehouse

import "context"

// State is the lifecycle state of a submitted statement.
type State int

const (
	StateRunning State = iota
	StateFinished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateFinished:
		return "FINISHED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// StatementStatus is the result of polling a submitted statement.
type StatementStatus struct {
	State        State
	HasResultSet bool
	ErrorMessage string
}

// ValueKind discriminates the typed cell variants a result row can carry.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindInt
	KindFloat
	KindBool
)

// Value is a single typed cell in a result row.
type Value struct {
	Kind  ValueKind
	Str   string
	Int   int64
	Float float64
	Bool  bool
}

func Null() Value           { return Value{Kind: KindNull} }
func String(s string) Value { return Value{Kind: KindString, Str: s} }
func Int(i int64) Value     { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value { return Value{Kind: KindFloat, Float: f} }
func Bool(b bool) Value     { return Value{Kind: KindBool, Bool: b} }

// IsNull reports whether the cell carries no value.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Row is one result row of typed cells.
type Row []Value

// Executor submits SQL statements for asynchronous execution and retrieves
// their status and results. Implementations must be safe for sequential use
// from a single goroutine; concurrent invocations of the pipeline rely on
// identity dedup, not on the executor, for correctness.
type Executor interface {
	Submit(ctx context.Context, database, sql string) (statementID string, err error)
	Poll(ctx context.Context, statementID string) (StatementStatus, error)
	FetchResults(ctx context.Context, statementID string) ([]Row, error)
}
