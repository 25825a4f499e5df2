package spmcp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestListAllTables(t *testing.T) {
	t.Parallel()
	db := &fakeDB{handler: func(ctx context.Context, sql string, args []any) (pgx.Rows, error) {
		if sql != listAllTablesSQL {
			t.Errorf("unexpected SQL: %s", sql)
		}
		return rowsOf([]string{"table_name"},
			[]any{"aws.aws_s3_bucket"},
			[]any{"public.accounts"},
		), nil
	}}
	gw := newFakeGateway(t, db, GatewayConfig{})

	tables, err := gw.ListAllTables(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(tables, ",") != "aws.aws_s3_bucket,public.accounts" {
		t.Fatalf("unexpected tables: %v", tables)
	}
	if got := db.snapshot().txOptions[0].AccessMode; got != pgx.ReadOnly {
		t.Fatalf("expected read-only transaction, got %q", got)
	}
}

func TestListAllTables_Error(t *testing.T) {
	t.Parallel()
	db := &fakeDB{handler: func(ctx context.Context, sql string, args []any) (pgx.Rows, error) {
		return nil, &pgconn.PgError{Message: "permission denied for schema aws"}
	}}
	gw := newFakeGateway(t, db, GatewayConfig{})

	_, err := gw.ListAllTables(context.Background())
	gwErr := expectKind(t, err, KindStatement)
	if gwErr.Message != "Failed to list tables: Database error: permission denied for schema aws" {
		t.Fatalf("unexpected message: %q", gwErr.Message)
	}
}

func TestListTablesInSchema(t *testing.T) {
	t.Parallel()
	db := &fakeDB{handler: func(ctx context.Context, sql string, args []any) (pgx.Rows, error) {
		return rowsOf([]string{"table_name"}, []any{"aws.aws_iam_role"}), nil
	}}
	gw := newFakeGateway(t, db, GatewayConfig{})

	tables, err := gw.ListTablesInSchema(context.Background(), "aws'; DROP TABLE x; --")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tables) != 1 || tables[0] != "aws.aws_iam_role" {
		t.Fatalf("unexpected tables: %v", tables)
	}

	calls := db.snapshot()
	if calls.queries[0] != listTablesInSchemaSQL {
		t.Fatal("expected schema name to be bound, not interpolated")
	}
	if len(calls.args[0]) != 1 || calls.args[0][0] != "aws'; DROP TABLE x; --" {
		t.Fatalf("unexpected args: %v", calls.args[0])
	}
}

func TestListTablesInSchema_Empty(t *testing.T) {
	t.Parallel()
	gw := newFakeGateway(t, &fakeDB{}, GatewayConfig{})
	tables, err := gw.ListTablesInSchema(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tables == nil || len(tables) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", tables)
	}
	text, _ := EncodeJSON(tables)
	if text != "[]" {
		t.Fatalf("expected [], got %q", text)
	}
}

func TestGetTableSchema_InvalidIdentifier(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"", "no_dot", ".table", "schema.", "."} {
		name := name
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			db := &fakeDB{}
			gw := newFakeGateway(t, db, GatewayConfig{})

			_, err := gw.GetTableSchema(context.Background(), name)
			gwErr := expectKind(t, err, KindInvalidInput)
			want := "Invalid table name format: '" + name + "'. Expected 'schema.table'."
			if gwErr.Message != want {
				t.Fatalf("expected %q, got %q", want, gwErr.Message)
			}
			if n := len(db.snapshot().txOptions); n != 0 {
				t.Fatalf("expected no database round-trip, got %d transactions", n)
			}
		})
	}
}

func TestGetTableSchema_Columns(t *testing.T) {
	t.Parallel()
	db := &fakeDB{handler: func(ctx context.Context, sql string, args []any) (pgx.Rows, error) {
		return rowsOf([]string{"column_name", "data_type"},
			[]any{"name", "text"},
			[]any{"region", "text"},
			[]any{"creation_date", "timestamp with time zone"},
		), nil
	}}
	gw := newFakeGateway(t, db, GatewayConfig{})

	columns, err := gw.GetTableSchema(context.Background(), "aws.aws_s3_bucket")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []ColumnSchema{
		{ColumnName: "name", DataType: "text"},
		{ColumnName: "region", DataType: "text"},
		{ColumnName: "creation_date", DataType: "timestamp with time zone"},
	}
	if len(columns) != len(want) {
		t.Fatalf("expected %d columns, got %d", len(want), len(columns))
	}
	for i := range want {
		if columns[i] != want[i] {
			t.Fatalf("column %d: expected %+v, got %+v", i, want[i], columns[i])
		}
	}

	text, err := EncodeJSON(columns)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if !strings.HasPrefix(text, "[\n  {\n    \"column_name\": \"name\",\n    \"data_type\": \"text\"\n  },") {
		t.Fatalf("unexpected JSON:\n%s", text)
	}
}

func TestGetTableSchema_LiteralQuoting(t *testing.T) {
	t.Parallel()
	db := &fakeDB{handler: func(ctx context.Context, sql string, args []any) (pgx.Rows, error) {
		return rowsOf([]string{"column_name", "data_type"}, []any{"id", "integer"}), nil
	}}
	gw := newFakeGateway(t, db, GatewayConfig{})

	if _, err := gw.GetTableSchema(context.Background(), "my'schema.table.with.dots"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sql := db.snapshot().queries[0]
	if !strings.Contains(sql, "table_name = 'table.with.dots'") {
		t.Fatalf("expected table literal split on the first dot, got:\n%s", sql)
	}
	if !strings.Contains(sql, "table_schema = 'my''schema'") {
		t.Fatalf("expected escaped schema literal, got:\n%s", sql)
	}
}

func TestGetTableSchema_NotFound(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		exists func() (pgx.Rows, error)
		want   string
	}{
		{
			name:   "missing",
			exists: func() (pgx.Rows, error) { return rowsOf([]string{"?column?"}), nil },
			want:   "Table 'public.ghost' not found.",
		},
		{
			name:   "no columns",
			exists: func() (pgx.Rows, error) { return rowsOf([]string{"?column?"}, []any{int32(1)}), nil },
			want:   "Table 'public.ghost' exists but has no columns.",
		},
		{
			name:   "check fails",
			exists: func() (pgx.Rows, error) { return nil, errors.New("connection reset") },
			want:   "Table 'public.ghost' not found or is empty.",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			db := &fakeDB{handler: func(ctx context.Context, sql string, args []any) (pgx.Rows, error) {
				if strings.Contains(sql, "information_schema.columns") {
					return rowsOf([]string{"column_name", "data_type"}), nil
				}
				return tc.exists()
			}}
			gw := newFakeGateway(t, db, GatewayConfig{})

			_, err := gw.GetTableSchema(context.Background(), "public.ghost")
			gwErr := expectKind(t, err, KindNotFound)
			if gwErr.Message != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, gwErr.Message)
			}
		})
	}
}

func TestGetTableSchema_DatabaseError(t *testing.T) {
	t.Parallel()
	db := &fakeDB{handler: func(ctx context.Context, sql string, args []any) (pgx.Rows, error) {
		return nil, &pgconn.PgError{Message: "permission denied for relation columns"}
	}}
	gw := newFakeGateway(t, db, GatewayConfig{})

	_, err := gw.GetTableSchema(context.Background(), "public.t")
	gwErr := expectKind(t, err, KindStatement)
	if gwErr.Message != "Failed to get schema: Database error: permission denied for relation columns" {
		t.Fatalf("unexpected message: %q", gwErr.Message)
	}
}
