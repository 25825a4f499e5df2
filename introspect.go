package spmcp

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// listAllTablesSQL lists base and foreign tables in every schema on the search
// path. "$user" resolves to the session user, as it does for name lookup.
const listAllTablesSQL = `
WITH search_path_schemas AS (
    SELECT DISTINCT
        CASE WHEN btrim(s, '"') = '$user' THEN current_user::text ELSE btrim(s, '"') END AS schema_name
    FROM regexp_split_to_table(current_setting('search_path'), '[,\s]+') AS s
    WHERE s <> ''
)
SELECT CONCAT(t.table_schema, '.', t.table_name) AS table_name
FROM information_schema.tables t
JOIN search_path_schemas sp ON t.table_schema = sp.schema_name
WHERE t.table_type IN ('BASE TABLE', 'FOREIGN')
ORDER BY t.table_schema, t.table_name;`

const listTablesInSchemaSQL = `
SELECT CONCAT(t.table_schema, '.', t.table_name) AS table_name
FROM information_schema.tables t
WHERE t.table_schema = $1
  AND t.table_type IN ('BASE TABLE', 'FOREIGN')
ORDER BY t.table_schema, t.table_name;`

// tableColumnsSQL takes the table and schema as quoted literals.
const tableColumnsSQL = `
SELECT column_name::text AS column_name, data_type::text AS data_type
FROM information_schema.columns
WHERE table_name = %s AND table_schema = %s
ORDER BY ordinal_position;`

const tableExistsSQL = `
SELECT 1
FROM information_schema.tables
WHERE table_name = %s AND table_schema = %s;`

// ListAllTables returns "schema.table" for every base or foreign table in a
// schema on the current search path, ordered by schema then table.
func (g *Gateway) ListAllTables(ctx context.Context) ([]string, error) {
	start := time.Now()
	g.logger.Info().Msg("listing all tables on search path")

	rs, err := g.runReadOnly(ctx, OpListAllTables, listAllTablesSQL)
	if err != nil {
		gwErr := g.fail(OpListAllTables, "", "Failed to list tables: ", err)
		g.metrics.observe(OpListAllTables, start, 0, gwErr)
		return nil, gwErr
	}

	tables := firstColumnStrings(rs)
	g.logger.Info().Int("table_count", len(tables)).Msg("tables listed")
	g.metrics.observe(OpListAllTables, start, len(tables), nil)
	return tables, nil
}

// ListTablesInSchema returns "schema.table" for every base or foreign table in
// the named schema. The name is bound as a parameter and matched exactly.
func (g *Gateway) ListTablesInSchema(ctx context.Context, schema string) ([]string, error) {
	start := time.Now()
	g.logger.Info().Str("schema", schema).Msg("listing tables in schema")

	rs, err := g.runReadOnly(ctx, OpListTablesInSchema, listTablesInSchemaSQL, schema)
	if err != nil {
		gwErr := g.fail(OpListTablesInSchema, schema, "Failed to list tables: ", err)
		g.metrics.observe(OpListTablesInSchema, start, 0, gwErr)
		return nil, gwErr
	}

	tables := firstColumnStrings(rs)
	g.logger.Info().Str("schema", schema).Int("table_count", len(tables)).Msg("tables listed")
	g.metrics.observe(OpListTablesInSchema, start, len(tables), nil)
	return tables, nil
}

// GetTableSchema returns the columns of a "schema.table" in ordinal order.
//
// A malformed name fails with KindInvalidInput before touching the database.
// Zero columns fail with KindNotFound; a follow-up existence check decides
// whether the message says the table is missing or has no columns.
func (g *Gateway) GetTableSchema(ctx context.Context, tableName string) ([]ColumnSchema, error) {
	start := time.Now()
	g.logger.Info().Str("table", tableName).Msg("fetching table schema")

	id, err := ParseTableIdentifier(tableName)
	if err != nil {
		gwErr := g.fail(OpGetTableSchema, tableName, "", &Error{
			Kind:    KindInvalidInput,
			Message: err.Error(),
			Err:     err,
		})
		g.metrics.observe(OpGetTableSchema, start, 0, gwErr)
		return nil, gwErr
	}

	sql := fmt.Sprintf(tableColumnsSQL, pq.QuoteLiteral(id.Table), pq.QuoteLiteral(id.Schema))
	rs, err := g.runReadOnly(ctx, OpGetTableSchema, sql)
	if err != nil {
		gwErr := g.fail(OpGetTableSchema, tableName, "Failed to get schema: ", err)
		g.metrics.observe(OpGetTableSchema, start, 0, gwErr)
		return nil, gwErr
	}

	if rs.Len() == 0 {
		gwErr := g.fail(OpGetTableSchema, tableName, "", &Error{
			Kind:    KindNotFound,
			Message: g.emptySchemaMessage(ctx, id),
		})
		g.metrics.observe(OpGetTableSchema, start, 0, gwErr)
		return nil, gwErr
	}

	names, _ := rs.Column("column_name")
	types, _ := rs.Column("data_type")
	columns := make([]ColumnSchema, rs.Len())
	for i := range columns {
		columns[i] = ColumnSchema{ColumnName: toString(names[i]), DataType: toString(types[i])}
	}

	g.logger.Info().Str("table", tableName).Int("column_count", len(columns)).Msg("table schema fetched")
	g.metrics.observe(OpGetTableSchema, start, len(columns), nil)
	return columns, nil
}

// emptySchemaMessage tells a missing table apart from one without columns.
// If the check itself fails the ambiguous message is used.
func (g *Gateway) emptySchemaMessage(ctx context.Context, id TableIdentifier) string {
	sql := fmt.Sprintf(tableExistsSQL, pq.QuoteLiteral(id.Table), pq.QuoteLiteral(id.Schema))
	rs, err := g.runReadOnly(ctx, OpGetTableSchema, sql)
	switch {
	case err != nil:
		g.logger.Warn().Err(err).Str("table", id.String()).Msg("table existence check failed")
		return fmt.Sprintf("Table '%s' not found or is empty.", id)
	case rs.Len() == 0:
		return fmt.Sprintf("Table '%s' not found.", id)
	default:
		return fmt.Sprintf("Table '%s' exists but has no columns.", id)
	}
}

func firstColumnStrings(rs *RowSet) []string {
	out := make([]string, 0, rs.Len())
	for _, row := range rs.Rows {
		if len(row) == 0 {
			continue
		}
		out = append(out, toString(row[0]))
	}
	return out
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}
