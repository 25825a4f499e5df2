package spmcp

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	MinConns          int    `json:"min_conns" yaml:"min_conns"`
	MaxConns          int    `json:"max_conns" yaml:"max_conns"`
	MaxConnLifetime   string `json:"max_conn_lifetime" yaml:"max_conn_lifetime"`
	MaxConnIdleTime   string `json:"max_conn_idle_time" yaml:"max_conn_idle_time"`
	HealthCheckPeriod string `json:"health_check_period" yaml:"health_check_period"`
}

// GatewayConfig is the configuration used by NewGateway.
type GatewayConfig struct {
	Query     QueryConfig     `json:"query" yaml:"query"`
	Hints     []HintRule      `json:"hints" yaml:"hints"`
	Redaction []RedactionRule `json:"redaction" yaml:"redaction"`
}

// QueryConfig holds query execution settings. A zero timeout means no deadline
// beyond the caller's context.
type QueryConfig struct {
	DefaultTimeoutSeconds        int           `json:"default_timeout_seconds" yaml:"default_timeout_seconds"`
	ListTablesTimeoutSeconds     int           `json:"list_tables_timeout_seconds" yaml:"list_tables_timeout_seconds"`
	GetTableSchemaTimeoutSeconds int           `json:"get_table_schema_timeout_seconds" yaml:"get_table_schema_timeout_seconds"`
	MaxResultLength              int           `json:"max_result_length" yaml:"max_result_length"`
	TimeoutRules                 []TimeoutRule `json:"timeout_rules" yaml:"timeout_rules"`
}

// TimeoutRule maps a SQL pattern to a specific timeout duration.
type TimeoutRule struct {
	Pattern        string `json:"pattern" yaml:"pattern"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// HintRule maps an error message pattern to guidance appended to tool errors.
// Kind optionally restricts the rule to one ErrorKind (e.g. "statement").
type HintRule struct {
	Pattern string `json:"pattern" yaml:"pattern"`
	Kind    string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Message string `json:"message" yaml:"message"`
}

// RedactionRule replaces matches of Pattern in string values of query results.
// When Column is set, only columns whose name matches that regex are touched.
type RedactionRule struct {
	Column      string `json:"column,omitempty" yaml:"column,omitempty"`
	Pattern     string `json:"pattern" yaml:"pattern"`
	Replacement string `json:"replacement" yaml:"replacement"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// ServerConfig adds CLI-only settings on top of the library configuration.
type ServerConfig struct {
	GatewayConfig `yaml:",inline"`
	Pool          PoolConfig     `json:"pool" yaml:"pool"`
	Server        ServerSettings `json:"server" yaml:"server"`
	Logging       LoggingConfig  `json:"logging" yaml:"logging"`
}

// ServerSettings selects the MCP transport and its HTTP options.
type ServerSettings struct {
	Transport            string `json:"transport" yaml:"transport"` // stdio, http
	Port                 int    `json:"port" yaml:"port"`
	HealthCheckPath      string `json:"health_check_path" yaml:"health_check_path"`
	MetricsPath          string `json:"metrics_path" yaml:"metrics_path"`
	ShutdownGraceSeconds int    `json:"shutdown_grace_seconds" yaml:"shutdown_grace_seconds"`
}

// LoggingConfig holds logging settings for CLI mode.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text; empty picks text on a terminal
	Output string `json:"output" yaml:"output"` // stderr, stdout, or file path
}

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// readOnlyHint is always appended when a write hits the read-only transaction.
var readOnlyHint = HintRule{
	Pattern: `(?i)read-only transaction`,
	Kind:    string(KindStatement),
	Message: "This server only runs read-only queries. Rewrite the statement as a SELECT.",
}

// DefaultServerConfig returns the configuration used when no config file is given.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		GatewayConfig: GatewayConfig{
			Query: QueryConfig{
				DefaultTimeoutSeconds:        120,
				ListTablesTimeoutSeconds:     30,
				GetTableSchemaTimeoutSeconds: 30,
			},
			Hints: []HintRule{
				{
					Pattern: `(?i)relation .* does not exist`,
					Kind:    string(KindStatement),
					Message: "The table does not exist. Use list_all_tables or list_tables_in_schema to find it.",
				},
			},
		},
		Pool: PoolConfig{MinConns: 1, MaxConns: 4},
		Server: ServerSettings{
			Transport:            TransportStdio,
			Port:                 8080,
			HealthCheckPath:      "/healthz",
			MetricsPath:          "/metrics",
			ShutdownGraceSeconds: 10,
		},
		Logging: LoggingConfig{Level: "info", Output: "stderr"},
	}
}
