package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	spmcp "github.com/rickchristie/steampipe-mcp"
)

const mcpEndpointPath = "/mcp"

func runServe(cmd *cobra.Command, opts *options) error {
	config, err := resolveConfig(cmd.Flags(), opts)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := validateServerConfig(config); err != nil {
		return err
	}

	connString := resolveDatabaseURL(opts)
	if connString == "" {
		return fmt.Errorf("database URL is required: pass --database-url or set %s", envDatabaseURL)
	}

	logger, closeLog, err := setupLogger(config.Logging, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("version", version).
		Str("database", spmcp.SafeDisplayURL(connString)).
		Str("transport", config.Server.Transport).
		Msg("starting steampipe-mcp")

	pm := spmcp.NewPoolManager(connString, config.Pool, logger)
	if err := pm.Open(ctx); err != nil {
		logger.Error().Err(err).Msg("database connection failed")
		return fmt.Errorf("database connection failed: %w", err)
	}
	grace := time.Duration(config.Server.ShutdownGraceSeconds) * time.Second
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		pm.Close(closeCtx)
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	gw := spmcp.NewGateway(pm, config.GatewayConfig, logger, spmcp.WithMetrics(spmcp.NewMetrics(registry, pm)))
	mcpServer := newMCPServer(gw, logger)

	if config.Server.Transport == spmcp.TransportHTTP {
		return serveHTTP(ctx, mcpServer, config, registry, pm, logger)
	}
	return serveStdio(ctx, mcpServer, os.Stdin, os.Stdout, logger)
}

// newMCPServer creates the MCP server with the gateway tools registered and
// client connections logged.
func newMCPServer(gw *spmcp.Gateway, logger zerolog.Logger) *server.MCPServer {
	hooks := &server.Hooks{}
	hooks.AddAfterInitialize(func(ctx context.Context, id any, req *mcp.InitializeRequest, result *mcp.InitializeResult) {
		logger.Info().
			Str("client_name", req.Params.ClientInfo.Name).
			Str("client_version", req.Params.ClientInfo.Version).
			Msg("AI agent connected (MCP initialize)")
	})

	mcpServer := server.NewMCPServer("steampipe-mcp", version,
		server.WithToolCapabilities(true),
		server.WithHooks(hooks),
	)
	spmcp.RegisterMCPTools(mcpServer, gw)
	return mcpServer
}

// serveStdio runs the MCP session on stdin/stdout until the client disconnects
// or ctx is cancelled. Nothing else may write to stdout.
func serveStdio(ctx context.Context, mcpServer *server.MCPServer, stdin io.Reader, stdout io.Writer, logger zerolog.Logger) error {
	stdio := server.NewStdioServer(mcpServer)
	stdio.SetErrorLogger(log.New(logger, "", 0))

	logger.Info().Msg("running on stdio")
	err := stdio.Listen(ctx, stdin, stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server failed: %w", err)
	}
	logger.Info().Msg("stdio session ended")
	return nil
}

// newHTTPRouter mounts the MCP endpoint, health check and metrics on one router.
func newHTTPRouter(mcpHandler http.Handler, settings spmcp.ServerSettings, registry *prometheus.Registry, pm *spmcp.PoolManager) chi.Router {
	r := chi.NewRouter()
	r.Handle(mcpEndpointPath, mcpHandler)
	if settings.HealthCheckPath != "" {
		r.Get(settings.HealthCheckPath, handleHealth(pm))
	}
	if settings.MetricsPath != "" {
		r.Handle(settings.MetricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	return r
}

// handleHealth reports process liveness and whether the pool is open. It does
// not query the database.
func handleHealth(pm *spmcp.PoolManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !pm.Stats().Open {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}
}

func serveHTTP(ctx context.Context, mcpServer *server.MCPServer, config *spmcp.ServerConfig, registry *prometheus.Registry, pm *spmcp.PoolManager, logger zerolog.Logger) error {
	addr := fmt.Sprintf(":%d", config.Server.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
	}

	streamableServer := server.NewStreamableHTTPServer(mcpServer,
		server.WithEndpointPath(mcpEndpointPath),
		server.WithStateLess(true),
		server.WithStreamableHTTPServer(httpSrv),
	)
	// Start does not register the handler when a custom *http.Server is given.
	httpSrv.Handler = newHTTPRouter(streamableServer, config.Server, registry, pm)

	errCh := make(chan error, 1)
	go func() {
		errCh <- streamableServer.Start(addr)
	}()
	logger.Info().Int("port", config.Server.Port).Str("endpoint", mcpEndpointPath).Msg("starting HTTP server")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(config.Server.ShutdownGraceSeconds)*time.Second)
	defer cancel()
	if err := streamableServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}

// setupLogger builds the process logger. The returned func closes the log file,
// if any. Logs never go to stdout when the stdio transport owns it.
func setupLogger(config spmcp.LoggingConfig, stderr *os.File) (zerolog.Logger, func(), error) {
	level := zerolog.InfoLevel
	switch strings.ToLower(config.Level) {
	case "", "info":
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	default:
		return zerolog.Nop(), func() {}, fmt.Errorf("unknown log level %q", config.Level)
	}

	var output io.Writer = stderr
	closeFn := func() {}
	terminal := isTTY(stderr.Fd())
	switch config.Output {
	case "", "stderr":
	case "stdout":
		output = os.Stdout
		terminal = isTTY(os.Stdout.Fd())
	default:
		f, err := os.OpenFile(config.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return zerolog.Nop(), closeFn, fmt.Errorf("failed to open log file: %w", err)
		}
		output = f
		terminal = false
		closeFn = func() { f.Close() }
	}

	switch config.Format {
	case "text":
		output = zerolog.ConsoleWriter{Out: output, NoColor: !terminal}
	case "":
		if terminal {
			output = zerolog.ConsoleWriter{Out: output}
		}
	case "json":
	default:
		return zerolog.Nop(), closeFn, fmt.Errorf("unknown log format %q", config.Format)
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger(), closeFn, nil
}
