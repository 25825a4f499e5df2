//go:build integration

package spmcp_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/rickchristie/govner/pgflock/client"
	"github.com/rs/zerolog"

	spmcp "github.com/rickchristie/steampipe-mcp"
)

const (
	pgflockLockerPort = 9776
	pgflockPassword   = "pgflock"
)

func acquireTestDB(t *testing.T) string {
	t.Helper()
	connStr, err := client.Lock(pgflockLockerPort, t.Name(), pgflockPassword)
	if err != nil {
		t.Fatalf("Failed to acquire test database: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Unlock(pgflockLockerPort, pgflockPassword, connStr)
	})
	return connStr
}

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func defaultConfig() spmcp.GatewayConfig {
	return spmcp.GatewayConfig{
		Query: spmcp.QueryConfig{
			DefaultTimeoutSeconds:        30,
			ListTablesTimeoutSeconds:     10,
			GetTableSchemaTimeoutSeconds: 10,
		},
	}
}

// newTestGateway opens a pool on a locked test database. setup statements run
// first on a separate read-write connection, since the gateway cannot write.
func newTestGateway(t *testing.T, config spmcp.GatewayConfig, pool spmcp.PoolConfig, setup ...string) (*spmcp.Gateway, *spmcp.PoolManager) {
	t.Helper()
	connStr := acquireTestDB(t)
	ctx := context.Background()

	if len(setup) > 0 {
		conn, err := pgx.Connect(ctx, connStr)
		if err != nil {
			t.Fatalf("setup connect failed: %v", err)
		}
		for _, sql := range setup {
			if _, err := conn.Exec(ctx, sql); err != nil {
				conn.Close(ctx)
				t.Fatalf("setup failed on %q: %v", sql, err)
			}
		}
		conn.Close(ctx)
	}

	if pool.MinConns == 0 {
		pool = spmcp.PoolConfig{MinConns: 1, MaxConns: 5}
	}
	pm := spmcp.NewPoolManager(connStr, pool, testLogger())
	if err := pm.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { pm.Close(ctx) })
	return spmcp.NewGateway(pm, config, testLogger()), pm
}
