package warehouse

import (
	"fmt"
	"strconv"
	"strings"
)

// InsertBuilder renders a single-row INSERT with type-aware quoting. Values
// go through the typed Value variants, never raw interpolation: strings are
// escaped, numbers rendered bare, absent cells as NULL.
type InsertBuilder struct {
	table   string
	columns []string
	values  []Value
}

// NewInsert starts an INSERT statement for the given table.
func NewInsert(table string) *InsertBuilder {
	return &InsertBuilder{table: table}
}

// Set appends a column/value pair. Column order is preserved.
func (b *InsertBuilder) Set(column string, v Value) *InsertBuilder {
	b.columns = append(b.columns, column)
	b.values = append(b.values, v)
	return b
}

// SQL renders the statement.
func (b *InsertBuilder) SQL() string {
	rendered := make([]string, len(b.values))
	for i, v := range b.values {
		rendered[i] = renderValue(v)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		b.table,
		strings.Join(b.columns, ", "),
		strings.Join(rendered, ", "),
	)
}

func renderValue(v Value) string {
	switch v.Kind {
	case KindNull:
		return "NULL"
	case KindString:
		return "'" + strings.ReplaceAll(v.Str, "'", "''") + "'"
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case KindBool:
		if v.Bool {
			return "TRUE"
		}
		return "FALSE"
	default:
		return "NULL"
	}
}
