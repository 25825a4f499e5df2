package spmcp

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	pg_query "github.com/pganalyze/pg_query_go/v6"
	"github.com/rs/zerolog"

	"github.com/rickchristie/steampipe-mcp/internal/hint"
	"github.com/rickchristie/steampipe-mcp/internal/redact"
	"github.com/rickchristie/steampipe-mcp/internal/timeout"
)

// Operation names, used for logging, metrics, timeouts and MCP tool names.
const (
	OpQuery              = "query"
	OpListAllTables      = "list_all_tables"
	OpListTablesInSchema = "list_tables_in_schema"
	OpGetTableSchema     = "get_table_schema"
)

// logSQLLength is how much of a statement is written to the log.
const logSQLLength = 100

// readOnlyTx is used for every statement the gateway runs.
var readOnlyTx = pgx.TxOptions{
	IsoLevel:   pgx.ReadCommitted,
	AccessMode: pgx.ReadOnly,
}

// Gateway runs read-only statements against the pool held by a PoolManager.
// All exported methods are safe for concurrent use from multiple goroutines.
type Gateway struct {
	pool     *PoolManager
	config   GatewayConfig
	hints    *hint.Matcher
	redactor *redact.Redactor
	timeouts *timeout.Manager
	metrics  *Metrics
	logger   zerolog.Logger
}

// GatewayOption is a functional option for NewGateway.
type GatewayOption func(*Gateway)

// WithMetrics records operation metrics on m.
func WithMetrics(m *Metrics) GatewayOption {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// NewGateway creates a Gateway over pm. The pool does not need to be open yet;
// operations fail with ErrNotInitialized until it is.
// Panics on invalid config.
func NewGateway(pm *PoolManager, config GatewayConfig, logger zerolog.Logger, opts ...GatewayOption) *Gateway {
	if pm == nil {
		panic("spmcp: pool manager must not be nil")
	}
	if config.Query.DefaultTimeoutSeconds < 0 {
		panic("spmcp: query.default_timeout_seconds must be >= 0")
	}
	if config.Query.ListTablesTimeoutSeconds < 0 {
		panic("spmcp: query.list_tables_timeout_seconds must be >= 0")
	}
	if config.Query.GetTableSchemaTimeoutSeconds < 0 {
		panic("spmcp: query.get_table_schema_timeout_seconds must be >= 0")
	}
	if config.Query.MaxResultLength < 0 {
		panic("spmcp: query.max_result_length must be >= 0")
	}

	hintRules := make([]hint.Rule, 0, len(config.Hints)+1)
	for _, r := range append([]HintRule{readOnlyHint}, config.Hints...) {
		hintRules = append(hintRules, hint.Rule{Pattern: r.Pattern, Kind: r.Kind, Message: r.Message})
	}
	hints, err := hint.NewMatcher(hintRules)
	if err != nil {
		panic("spmcp: " + err.Error())
	}

	redactRules := make([]redact.Rule, len(config.Redaction))
	for i, r := range config.Redaction {
		redactRules[i] = redact.Rule{Column: r.Column, Pattern: r.Pattern, Replacement: r.Replacement}
	}
	redactor, err := redact.New(redactRules)
	if err != nil {
		panic("spmcp: " + err.Error())
	}

	timeoutRules := make([]timeout.Rule, len(config.Query.TimeoutRules))
	for i, r := range config.Query.TimeoutRules {
		timeoutRules[i] = timeout.Rule{Pattern: r.Pattern, Timeout: seconds(r.TimeoutSeconds)}
	}
	listTimeout := seconds(config.Query.ListTablesTimeoutSeconds)
	timeouts, err := timeout.NewManager(timeout.Config{
		Default: seconds(config.Query.DefaultTimeoutSeconds),
		Operations: map[string]time.Duration{
			OpListAllTables:      listTimeout,
			OpListTablesInSchema: listTimeout,
			OpGetTableSchema:     seconds(config.Query.GetTableSchemaTimeoutSeconds),
		},
		Rules: timeoutRules,
	})
	if err != nil {
		panic("spmcp: " + err.Error())
	}

	g := &Gateway{
		pool:     pm,
		config:   config,
		hints:    hints,
		redactor: redactor,
		timeouts: timeouts,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Query runs sql inside a READ COMMITTED, READ ONLY transaction with args bound
// by the driver. Writes are rejected by the database, not by the gateway.
func (g *Gateway) Query(ctx context.Context, sql string, args ...any) (*RowSet, error) {
	start := time.Now()

	logEvent := g.logger.Info().Str("sql", truncateSQL(sql)).Int("params", len(args))
	if fp := fingerprint(sql); fp != "" {
		logEvent = logEvent.Str("fingerprint", fp)
	}
	logEvent.Msg("executing query")

	rs, err := g.runReadOnly(ctx, OpQuery, sql, args...)
	if err != nil {
		gwErr := g.fail(OpQuery, truncateSQL(sql), "", err)
		g.metrics.observe(OpQuery, start, 0, gwErr)
		return nil, gwErr
	}

	redacted := g.redactor.Enabled()
	g.redactor.Apply(rs.Columns, rs.Rows)

	g.logger.Info().
		Int("row_count", rs.Len()).
		Dur("duration", time.Since(start)).
		Bool("redacted", redacted).
		Msg("query executed")
	g.metrics.observe(OpQuery, start, rs.Len(), nil)
	return rs, nil
}

// runReadOnly borrows the pool for one read-only transaction and collects the
// result. The transaction is always rolled back; there is nothing to commit.
func (g *Gateway) runReadOnly(ctx context.Context, op, sql string, args ...any) (*RowSet, error) {
	ruleSQL := ""
	if op == OpQuery {
		ruleSQL = sql
	}
	limit, source := g.timeouts.Resolve(op, ruleSQL)

	pool, opCtx, release, err := g.pool.borrow(ctx)
	defer release()
	if err != nil {
		return nil, err
	}

	queryCtx, cancel := timeout.WithTimeout(opCtx, limit)
	defer cancel()
	if source != "" {
		g.logger.Debug().Str("op", op).Str("timeout_source", source).Dur("timeout", limit).Msg("timeout override")
	}

	rs, err := g.execReadOnly(queryCtx, ctx, pool, sql, args...)
	// Only our own limit counts as a timeout; a deadline on the caller's ctx is
	// reported as is. The server may report the cancel as a statement error
	// (57014).
	if err != nil && limit > 0 && opCtx.Err() == nil && errors.Is(queryCtx.Err(), context.DeadlineExceeded) {
		return nil, &Error{
			Kind:    KindConnection,
			Op:      op,
			Message: fmt.Sprintf("Query execution failed: query timed out after %s", limit),
			Err:     fmt.Errorf("query timed out after %s: %w: %w", limit, queryCtx.Err(), err),
		}
	}
	return rs, err
}

func (g *Gateway) execReadOnly(queryCtx, parentCtx context.Context, pool dbPool, sql string, args ...any) (*RowSet, error) {
	tx, err := pool.BeginTx(queryCtx, readOnlyTx)
	if err != nil {
		return nil, err
	}
	// Parent ctx, not queryCtx: a timed-out queryCtx would make the rollback fail.
	defer tx.Rollback(parentCtx)

	rows, err := tx.Query(queryCtx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collectRows(rows)
}

// fail converts err into an *Error, attaches hints and logs it. prefix is put in
// front of database and connection messages.
func (g *Gateway) fail(op, subject, prefix string, err error) *Error {
	gwErr := *classifyError(op, err)
	gwErr.Op = op
	if prefix != "" && (gwErr.Kind == KindStatement || gwErr.Kind == KindConnection) {
		gwErr.Message = prefix + gwErr.Message
	}
	h, patterns := g.hints.Match(string(gwErr.Kind), gwErr.Message)
	gwErr.Hint = h

	logEvent := g.logger.Error().
		Err(err).
		Str("op", op).
		Str("kind", string(gwErr.Kind))
	if subject != "" {
		logEvent = logEvent.Str("subject", subject)
	}
	if len(patterns) > 0 {
		logEvent = logEvent.Strs("hints", patterns)
	}
	logEvent.Msg("gateway error")
	return &gwErr
}

// truncateSQL keeps the first logSQLLength characters of s.
func truncateSQL(s string) string {
	if utf8.RuneCountInString(s) <= logSQLLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:logSQLLength]) + "..."
}

// fingerprint groups statements that differ only in constants. Returns "" for
// SQL pg_query cannot parse (Steampipe accepts some syntax it does not).
func fingerprint(sql string) string {
	fp, err := pg_query.Fingerprint(sql)
	if err != nil {
		return ""
	}
	return fp
}
