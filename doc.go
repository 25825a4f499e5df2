// Package spmcp exposes a Steampipe (or any PostgreSQL-compatible) database to AI
// agents through the Model Context Protocol (MCP).
//
// It provides four tools (query, list_all_tables, list_tables_in_schema and
// get_table_schema) on top of two components:
//
//   - [PoolManager] owns the pgx connection pool and its explicit Open/Close
//     lifecycle.
//   - [Gateway] borrows one connection per call, runs every statement inside a
//     READ COMMITTED, READ ONLY transaction and converts the rows into a [RowSet].
//
// Read-only is enforced by the database itself: the gateway never parses or
// filters SQL, so a write statement fails with the server's "cannot execute ...
// in a read-only transaction" error.
//
// # Library Usage
//
//	pm := spmcp.NewPoolManager(connString, spmcp.PoolConfig{MinConns: 1, MaxConns: 4}, logger)
//	if err := pm.Open(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer pm.Close(ctx)
//
//	gw := spmcp.NewGateway(pm, spmcp.GatewayConfig{}, logger)
//	rs, err := gw.Query(ctx, "SELECT name FROM aws_s3_bucket WHERE region = $1", "us-east-1")
//
//	// Or register as MCP tools
//	spmcp.RegisterMCPTools(mcpServer, gw)
//
// Errors returned by the gateway are always *[Error] values carrying an [ErrorKind]
// and a message that is safe to show to the agent.
package spmcp
