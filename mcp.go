package spmcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// truncatedSuffix follows the cut-off JSON when a result exceeds MaxResultLength.
const truncatedSuffix = "...[truncated] Result is too long! Add limits in your query!"

// RegisterMCPTools registers list_all_tables, list_tables_in_schema,
// get_table_schema and query as MCP tools on the given MCP server.
func RegisterMCPTools(mcpServer *server.MCPServer, gw *Gateway) {
	listAllTablesTool := mcp.NewTool(OpListAllTables,
		mcp.WithDescription("Lists all tables in all the schemas in the search_path. Returns a JSON array of 'schema.table' names."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(listAllTablesTool, gw.loggedToolHandler(OpListAllTables, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tables, err := gw.ListAllTables(ctx)
		if err != nil {
			return toolError(err)
		}
		return jsonResult(tables)
	}))

	listTablesInSchemaTool := mcp.NewTool(OpListTablesInSchema,
		mcp.WithDescription("Lists all tables in a specified schema. Returns a JSON array of 'schema.table' names."),
		mcp.WithString("schema_name",
			mcp.Required(),
			mcp.Description("Name of the schema"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(listTablesInSchemaTool, gw.loggedToolHandler(OpListTablesInSchema, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		schema, err := req.RequireString("schema_name")
		if err != nil {
			return mcp.NewToolResultError("schema_name parameter is required"), nil
		}
		tables, err := gw.ListTablesInSchema(ctx, schema)
		if err != nil {
			return toolError(err)
		}
		return jsonResult(tables)
	}))

	getTableSchemaTool := mcp.NewTool(OpGetTableSchema,
		mcp.WithDescription("Gets the column names and data types for a specific table. Expects the table name in the format 'schema.table'."),
		mcp.WithString("table_name",
			mcp.Required(),
			mcp.Description("Name of the table with schema, i.e. public.my_table"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(getTableSchemaTool, gw.loggedToolHandler(OpGetTableSchema, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tableName, err := req.RequireString("table_name")
		if err != nil {
			return mcp.NewToolResultError("table_name parameter is required"), nil
		}
		columns, err := gw.GetTableSchema(ctx, tableName)
		if err != nil {
			return toolError(err)
		}
		return jsonResult(columns)
	}))

	queryTool := mcp.NewTool(OpQuery,
		mcp.WithDescription("Runs a read-only SQL query against the database and returns results as JSON. "+
			"Statements run in a READ ONLY transaction, so only SELECT-style statements succeed."),
		mcp.WithString("sql",
			mcp.Required(),
			mcp.Description("Read-only SQL query to execute"),
		),
		mcp.WithArray("params",
			mcp.Description("Optional positional parameters bound to $1, $2, ... in the query. "+
				"Numbers and booleans are sent as text, null as NULL."),
			mcp.WithStringItems(),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(queryTool, gw.loggedToolHandler(OpQuery, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, err := req.RequireString("sql")
		if err != nil {
			return mcp.NewToolResultError("sql parameter is required"), nil
		}
		args, err := queryParams(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		rs, err := gw.Query(ctx, sql, args...)
		if err != nil {
			return toolError(err)
		}
		text, err := EncodeJSON(rs)
		if err != nil {
			return mcp.NewToolResultError("failed to marshal query result"), nil
		}
		if truncated, ok := gw.truncateIfNeeded(text); ok {
			return mcp.NewToolResultError(truncated), nil
		}
		return mcp.NewToolResultText(text), nil
	}))
}

// queryParams reads the optional "params" array. Every item keeps its position:
// strings pass through, numbers and booleans become their text form and null
// binds NULL. Postgres infers the parameter types from the statement.
func queryParams(arguments map[string]any) ([]any, error) {
	raw, ok := arguments["params"]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("params must be an array, got %T", raw)
	}
	args := make([]any, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case nil:
			args[i] = nil
		case string:
			args[i] = v
		case bool:
			args[i] = strconv.FormatBool(v)
		case float64:
			args[i] = strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			args[i] = v.String()
		case int, int32, int64:
			args[i] = fmt.Sprint(v)
		default:
			return nil, fmt.Errorf("params[%d] must be a string, number, boolean or null, got %T", i, item)
		}
	}
	return args, nil
}

// toolError reports a gateway failure to the agent as a tool error result. Using
// the pool before Open is a server bug, not something the agent can fix, so it
// becomes a protocol error instead.
func toolError(err error) (*mcp.CallToolResult, error) {
	if errors.Is(err, ErrNotInitialized) {
		return nil, err
	}
	var gwErr *Error
	if errors.As(err, &gwErr) {
		if gwErr.Kind == KindNotInitialized {
			return nil, err
		}
		return mcp.NewToolResultError(gwErr.Display()), nil
	}
	return mcp.NewToolResultError(err.Error()), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	text, err := EncodeJSON(v)
	if err != nil {
		return mcp.NewToolResultError("failed to marshal result"), nil
	}
	return mcp.NewToolResultText(text), nil
}

// truncateIfNeeded cuts text to MaxResultLength characters. It reports false
// when no limit is set or text fits.
func (g *Gateway) truncateIfNeeded(text string) (string, bool) {
	limit := g.config.Query.MaxResultLength
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return "", false
	}
	runes := []rune(text)
	return string(runes[:limit]) + truncatedSuffix, true
}

// loggedToolHandler wraps a tool handler to log a call ID, duration and the
// request and response lengths.
func (g *Gateway) loggedToolHandler(tool string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		callID := uuid.NewString()
		start := time.Now()
		reqLen := requestLength(req)
		result, err := handler(ctx, req)
		respLen := resultLength(result)

		logEvent := g.logger.Info()
		if err != nil {
			logEvent = g.logger.Error().Err(err)
		}
		logEvent.
			Str("call_id", callID).
			Str("tool", tool).
			Int("request_bytes", reqLen).
			Int("response_bytes", respLen).
			Bool("is_error", result != nil && result.IsError).
			Dur("duration", time.Since(start)).
			Msg("tool call")
		return result, err
	}
}

// requestLength returns the JSON-encoded byte length of the request arguments.
func requestLength(req mcp.CallToolRequest) int {
	args := req.GetArguments()
	if len(args) == 0 {
		return 0
	}
	b, err := json.Marshal(args)
	if err != nil {
		return 0
	}
	return len(b)
}

// resultLength returns the total byte length of text content in a CallToolResult.
func resultLength(result *mcp.CallToolResult) int {
	if result == nil {
		return 0
	}
	total := 0
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			total += len(tc.Text)
		}
	}
	return total
}
