package spmcp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// applicationName is reported to the server unless the connection string sets one.
const applicationName = "steampipe-mcp"

// dbPool is the subset of *pgxpool.Pool used by the gateway.
type dbPool interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Stat() *pgxpool.Stat
	Close()
	warm(ctx context.Context, n int) error
}

type pgxPool struct {
	*pgxpool.Pool
}

// warm establishes n connections by holding n acquisitions at once.
func (p pgxPool) warm(ctx context.Context, n int) error {
	conns := make([]*pgxpool.Conn, 0, n)
	defer func() {
		for _, c := range conns {
			c.Release()
		}
	}()
	for i := 0; i < n; i++ {
		c, err := p.Acquire(ctx)
		if err != nil {
			return err
		}
		conns = append(conns, c)
	}
	return nil
}

// PoolManager owns the process-wide connection pool. Open and Close are
// explicit so the pool lifecycle can be tied to the server run with defer.
// All exported methods are safe for concurrent use.
type PoolManager struct {
	connString        string
	config            PoolConfig
	maxConnLifetime   time.Duration
	maxConnIdleTime   time.Duration
	healthCheckPeriod time.Duration
	logger            zerolog.Logger

	mu       sync.RWMutex
	pool     dbPool
	inflight *sync.WaitGroup
	active   atomic.Int64
	runCtx   context.Context
	abort    context.CancelFunc

	// newPool builds an unconnected pool; replaced in tests.
	newPool func(ctx context.Context) (dbPool, error)
}

// PoolStats is a snapshot of pool usage.
type PoolStats struct {
	Open          bool
	TotalConns    int32
	IdleConns     int32
	AcquiredConns int32
	InFlight      int64
}

// NewPoolManager creates a PoolManager. The pool is not created until Open.
// Panics on invalid config.
func NewPoolManager(connString string, config PoolConfig, logger zerolog.Logger) *PoolManager {
	if connString == "" {
		panic("spmcp: connString must be non-empty")
	}
	if config.MinConns < 1 {
		panic("spmcp: pool.min_conns must be >= 1")
	}
	if config.MaxConns < config.MinConns {
		panic("spmcp: pool.max_conns must be >= pool.min_conns")
	}

	pm := &PoolManager{
		connString:        connString,
		config:            config,
		maxConnLifetime:   mustParseDuration("pool.max_conn_lifetime", config.MaxConnLifetime),
		maxConnIdleTime:   mustParseDuration("pool.max_conn_idle_time", config.MaxConnIdleTime),
		healthCheckPeriod: mustParseDuration("pool.health_check_period", config.HealthCheckPeriod),
		logger:            logger,
	}
	pm.newPool = pm.createPool
	return pm
}

func mustParseDuration(name, s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("spmcp: invalid %s %q: %v", name, s, err))
	}
	if d < 0 {
		panic(fmt.Sprintf("spmcp: %s must not be negative", name))
	}
	return d
}

// createPool configures a pgxpool without dialing; pgxpool connects lazily.
func (pm *PoolManager) createPool(ctx context.Context) (dbPool, error) {
	poolConfig, err := pgxpool.ParseConfig(pm.connString)
	if err != nil {
		// pgx may echo the connection string in parse errors; keep it out of logs.
		return nil, errors.New("failed to parse connection string")
	}

	poolConfig.MinConns = int32(pm.config.MinConns)
	poolConfig.MaxConns = int32(pm.config.MaxConns)
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec
	if _, ok := poolConfig.ConnConfig.RuntimeParams["application_name"]; !ok {
		poolConfig.ConnConfig.RuntimeParams["application_name"] = applicationName
	}
	if pm.maxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = pm.maxConnLifetime
	}
	if pm.maxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = pm.maxConnIdleTime
	}
	if pm.healthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = pm.healthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	return pgxPool{Pool: pool}, nil
}

// Open creates the pool and blocks until MinConns connections are established.
// Calling Open while a pool is open logs a warning and keeps the existing pool.
// A failure to reach MinConns is returned as-is; Open does not retry.
func (pm *PoolManager) Open(ctx context.Context) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.pool != nil {
		pm.logger.Warn().Msg("connection pool already exists, not creating a new one")
		return nil
	}

	pm.logger.Info().
		Int("min_conns", pm.config.MinConns).
		Int("max_conns", pm.config.MaxConns).
		Msg("creating database connection pool")

	pool, err := pm.newPool(ctx)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.warm(ctx, pm.config.MinConns); err != nil {
		pool.Close()
		return fmt.Errorf("failed to establish %d connection(s): %w", pm.config.MinConns, err)
	}

	pm.pool = pool
	pm.inflight = &sync.WaitGroup{}
	pm.runCtx, pm.abort = context.WithCancel(context.Background())
	pm.logger.Info().Msg("database pool opened")
	return nil
}

// Close drains and closes the pool. Operations still running when ctx is done
// are cancelled, which aborts their queries. Calling Close without an open pool
// logs a warning and returns.
func (pm *PoolManager) Close(ctx context.Context) {
	pm.mu.Lock()
	pool := pm.pool
	if pool == nil {
		pm.mu.Unlock()
		pm.logger.Warn().Msg("no connection pool to close")
		return
	}
	inflight, abort := pm.inflight, pm.abort
	pm.pool = nil
	pm.inflight = nil
	pm.runCtx, pm.abort = nil, nil
	pm.mu.Unlock()

	pm.logger.Info().Msg("closing database pool")

	drained := make(chan struct{})
	go func() {
		inflight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		pm.logger.Warn().
			Int64("in_flight", pm.active.Load()).
			Msg("shutdown deadline reached, cancelling in-flight queries")
		abort()
		<-drained
	}
	abort()
	pool.Close()
	pm.logger.Info().Msg("database pool closed")
}

// borrow hands out the open pool for one operation. The returned context is
// cancelled if Close gives up waiting; release must be called on every path.
func (pm *PoolManager) borrow(ctx context.Context) (dbPool, context.Context, func(), error) {
	pm.mu.RLock()
	pool := pm.pool
	if pool == nil {
		pm.mu.RUnlock()
		return nil, ctx, func() {}, ErrNotInitialized
	}
	inflight, runCtx := pm.inflight, pm.runCtx
	inflight.Add(1)
	pm.active.Add(1)
	pm.mu.RUnlock()

	opCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(runCtx, cancel)
	release := func() {
		stop()
		cancel()
		pm.active.Add(-1)
		inflight.Done()
	}
	return pool, opCtx, release, nil
}

// Ping checks that a connection can be acquired and answers.
func (pm *PoolManager) Ping(ctx context.Context) error {
	pool, opCtx, release, err := pm.borrow(ctx)
	defer release()
	if err != nil {
		return err
	}
	return pool.Ping(opCtx)
}

// Stats returns a snapshot of the pool. A closed manager reports Open false.
func (pm *PoolManager) Stats() PoolStats {
	pm.mu.RLock()
	pool := pm.pool
	pm.mu.RUnlock()

	stats := PoolStats{Open: pool != nil, InFlight: pm.active.Load()}
	if pool == nil {
		return stats
	}
	if st := pool.Stat(); st != nil {
		stats.TotalConns = st.TotalConns()
		stats.IdleConns = st.IdleConns()
		stats.AcquiredConns = st.AcquiredConns()
	}
	return stats
}
