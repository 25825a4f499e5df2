package main

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	spmcp "github.com/rickchristie/steampipe-mcp"
)

const (
	envDatabaseURL = "DATABASE_URL"
	envConfigPath  = "STEAMPIPE_MCP_CONFIG"
)

// loadServerConfig returns the defaults overlaid with the YAML file at path.
// An empty path means defaults only.
func loadServerConfig(path string) (*spmcp.ServerConfig, error) {
	config := spmcp.DefaultServerConfig()
	if path == "" {
		return &config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &config, nil
}

// resolveConfig loads the config file named by --config or the environment
// and applies flag overrides on top.
func resolveConfig(flags *pflag.FlagSet, opts *options) (*spmcp.ServerConfig, error) {
	path := opts.configPath
	if path == "" {
		path = os.Getenv(envConfigPath)
	}
	config, err := loadServerConfig(path)
	if err != nil {
		return nil, err
	}

	if flags.Changed("transport") {
		config.Server.Transport = opts.transport
	}
	if flags.Changed("port") {
		config.Server.Port = opts.port
	}
	if flags.Changed("log-level") {
		config.Logging.Level = opts.logLevel
	}
	if flags.Changed("log-format") {
		config.Logging.Format = opts.logFormat
	}
	return config, nil
}

// resolveDatabaseURL prefers --database-url over DATABASE_URL.
func resolveDatabaseURL(opts *options) string {
	if opts.databaseURL != "" {
		return opts.databaseURL
	}
	return os.Getenv(envDatabaseURL)
}

// configCheck is one validation result, shared by serve and doctor.
type configCheck struct {
	name string
	err  error
}

// checkServerConfig validates everything that would otherwise panic in
// NewPoolManager or NewGateway, plus settings that are valid Go but useless.
func checkServerConfig(config *spmcp.ServerConfig) []configCheck {
	var checks []configCheck
	add := func(name string, err error) {
		checks = append(checks, configCheck{name: name, err: err})
	}

	switch config.Server.Transport {
	case spmcp.TransportStdio, spmcp.TransportHTTP:
		add(fmt.Sprintf("server.transport is valid (%s)", config.Server.Transport), nil)
	default:
		add("server.transport is valid", fmt.Errorf("must be %q or %q, got %q", spmcp.TransportStdio, spmcp.TransportHTTP, config.Server.Transport))
	}
	if config.Server.Transport == spmcp.TransportHTTP {
		if config.Server.Port <= 0 || config.Server.Port > 65535 {
			add("server.port is valid", fmt.Errorf("must be between 1 and 65535, got %d", config.Server.Port))
		} else {
			add(fmt.Sprintf("server.port is valid (%d)", config.Server.Port), nil)
		}
	}
	if config.Server.Transport == spmcp.TransportStdio && config.Logging.Output == "stdout" {
		add("logging.output is not stdout", fmt.Errorf("stdout carries the stdio transport"))
	}
	if config.Server.ShutdownGraceSeconds < 0 {
		add("server.shutdown_grace_seconds is >= 0", fmt.Errorf("got %d", config.Server.ShutdownGraceSeconds))
	}

	if config.Pool.MinConns < 1 {
		add("pool.min_conns is >= 1", fmt.Errorf("got %d", config.Pool.MinConns))
	} else if config.Pool.MaxConns < config.Pool.MinConns {
		add("pool.max_conns is >= pool.min_conns", fmt.Errorf("got max %d, min %d", config.Pool.MaxConns, config.Pool.MinConns))
	} else {
		add(fmt.Sprintf("pool size is valid (%d-%d)", config.Pool.MinConns, config.Pool.MaxConns), nil)
	}

	for _, d := range []struct{ name, value string }{
		{"pool.max_conn_lifetime", config.Pool.MaxConnLifetime},
		{"pool.max_conn_idle_time", config.Pool.MaxConnIdleTime},
		{"pool.health_check_period", config.Pool.HealthCheckPeriod},
	} {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		switch {
		case err != nil:
			add(d.name+" is a valid duration", err)
		case parsed < 0:
			add(d.name+" is a valid duration", fmt.Errorf("must not be negative, got %s", d.value))
		}
	}

	q := config.Query
	if q.DefaultTimeoutSeconds < 0 || q.ListTablesTimeoutSeconds < 0 || q.GetTableSchemaTimeoutSeconds < 0 || q.MaxResultLength < 0 {
		add("query timeouts and max_result_length are >= 0", fmt.Errorf("negative value in query settings"))
	}
	for i, rule := range q.TimeoutRules {
		if rule.TimeoutSeconds <= 0 {
			add(fmt.Sprintf("query.timeout_rules[%d] timeout is > 0", i), fmt.Errorf("got %d", rule.TimeoutSeconds))
		}
	}

	regexOK := true
	checkRegex := func(name, pattern string) {
		if pattern == "" {
			return
		}
		if _, err := regexp.Compile(pattern); err != nil {
			add(name+" regex compiles", err)
			regexOK = false
		}
	}
	for i, rule := range q.TimeoutRules {
		checkRegex(fmt.Sprintf("query.timeout_rules[%d]", i), rule.Pattern)
	}
	for i, rule := range config.Hints {
		checkRegex(fmt.Sprintf("hints[%d]", i), rule.Pattern)
	}
	for i, rule := range config.Redaction {
		if rule.Pattern == "" {
			add(fmt.Sprintf("redaction[%d].pattern is not empty", i), fmt.Errorf("an empty pattern matches between every character"))
			regexOK = false
		}
		checkRegex(fmt.Sprintf("redaction[%d].pattern", i), rule.Pattern)
		checkRegex(fmt.Sprintf("redaction[%d].column", i), rule.Column)
	}
	if regexOK {
		add("All regex patterns compile", nil)
	}
	return checks
}

// validateServerConfig returns the first failed check.
func validateServerConfig(config *spmcp.ServerConfig) error {
	for _, c := range checkServerConfig(config) {
		if c.err != nil {
			return fmt.Errorf("invalid config: %s: %w", c.name, c.err)
		}
	}
	return nil
}
