package warehouse

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Table is a query result: an ordered sequence of rows sharing one set of
// named columns. Tables are treated as immutable once returned.
type Table struct {
	Columns   []string
	Rows      [][]any
	FetchedAt time.Time
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the position of the named column, matched
// case-insensitively, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// Value returns the cell at row i in the named column. A missing column
// yields nil.
func (t *Table) Value(i int, column string) any {
	idx := t.ColumnIndex(column)
	if idx < 0 || i < 0 || i >= len(t.Rows) {
		return nil
	}
	row := t.Rows[i]
	if idx >= len(row) {
		return nil
	}
	return row[idx]
}

// scanTable drains rows into a Table. Byte slices are copied into strings
// since drivers may reuse the underlying buffers.
func scanTable(rows *sql.Rows) (*Table, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	t := &Table{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row %d: %w", len(t.Rows), err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		t.Rows = append(t.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return t, nil
}
