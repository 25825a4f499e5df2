package spmcp

import (
	"fmt"
	"strings"
)

// RowSet is the result of one query: column names as reported by the database
// and one value slice per row, parallel to Columns. Values are already
// converted to JSON-friendly Go types.
type RowSet struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows.
func (rs *RowSet) Len() int {
	return len(rs.Rows)
}

// Maps returns each row as a column-name keyed map. Duplicate column names
// resolve to the value of the last column with that name.
func (rs *RowSet) Maps() []map[string]any {
	out := make([]map[string]any, len(rs.Rows))
	for i, row := range rs.Rows {
		m := make(map[string]any, len(rs.Columns))
		for j, col := range rs.Columns {
			m[col] = row[j]
		}
		out[i] = m
	}
	return out
}

// Column returns the values of the first column with the given name.
func (rs *RowSet) Column(name string) ([]any, bool) {
	for j, col := range rs.Columns {
		if col != name {
			continue
		}
		vals := make([]any, len(rs.Rows))
		for i, row := range rs.Rows {
			vals[i] = row[j]
		}
		return vals, true
	}
	return nil, false
}

// ColumnSchema is one entry of a table descriptor.
type ColumnSchema struct {
	ColumnName string `json:"column_name"`
	DataType   string `json:"data_type"`
}

// TableIdentifier is a schema-qualified table name.
type TableIdentifier struct {
	Schema string
	Table  string
}

func (t TableIdentifier) String() string {
	return t.Schema + "." + t.Table
}

// ParseTableIdentifier splits "schema.table" on the first dot. Both parts must
// be non-empty; the table part may itself contain dots.
func ParseTableIdentifier(name string) (TableIdentifier, error) {
	schema, table, ok := strings.Cut(name, ".")
	if !ok || schema == "" || table == "" {
		return TableIdentifier{}, fmt.Errorf("Invalid table name format: '%s'. Expected 'schema.table'.", name)
	}
	return TableIdentifier{Schema: schema, Table: table}, nil
}
