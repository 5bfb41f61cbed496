package ingest

import (
	"fmt"
	"strings"
)

// SourceFetchError reports a failure talking to a document source. It is
// retryable and surfaces to the caller of the run.
type SourceFetchError struct {
	Op  string
	Err error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("source fetch %s: %v", e.Op, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }

// ParseError reports a per-document normalization failure. It is logged and
// skipped; it never aborts the batch.
type ParseError struct {
	Family Family
	DocID  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s document %s: %v", e.Family, e.DocID, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IdentityIncompleteError rejects a record missing one or more of its
// identity-defining fields before it can reach staging.
type IdentityIncompleteError struct {
	Family  Family
	Missing []string
}

func (e *IdentityIncompleteError) Error() string {
	return fmt.Sprintf("%s record missing identity fields: %s", e.Family, strings.Join(e.Missing, ", "))
}

// LoadStatementError reports a single failed insert with its row context.
// Failures accumulate into the run summary; the batch continues.
type LoadStatementError struct {
	Identity string
	SQL      string
	Err      error
}

func (e *LoadStatementError) Error() string {
	return fmt.Sprintf("load statement for %s: %v (sql: %s)", e.Identity, e.Err, e.SQL)
}

func (e *LoadStatementError) Unwrap() error { return e.Err }

// SchemaMismatchError rejects an entire settlement report whose header set is
// unknown. Partial loads under wrong column positions would silently corrupt
// values, so the whole document fails.
type SchemaMismatchError struct {
	ReportID string
	Header   []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("settlement report %s: unrecognized header set [%s]", e.ReportID, strings.Join(e.Header, "; "))
}
