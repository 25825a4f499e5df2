// Package configure implements the interactive wizard behind
// "steampipe-mcp configure".
package configure

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	spmcp "github.com/rickchristie/steampipe-mcp"
)

// DefaultPath is used when neither --config nor STEAMPIPE_MCP_CONFIG is set.
const DefaultPath = "steampipe-mcp.yaml"

var (
	transports = []string{spmcp.TransportStdio, spmcp.TransportHTTP}
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"json", "text"}
	errorKinds = []string{"statement", "connection", "not_found", "invalid_input"}
)

// Run reads the config at configPath (or starts from defaults), prompts for
// each field on input and writes the result back as YAML.
func Run(configPath string, input io.Reader, output io.Writer) error {
	cfg, isNew, err := loadExisting(configPath)
	if err != nil {
		return err
	}

	p := &prompter{
		scanner: bufio.NewScanner(input),
		output:  output,
		isNew:   isNew,
	}

	fmt.Fprintf(output, "steampipe-mcp configuration wizard\n")
	fmt.Fprintf(output, "Config file: %s\n\n", configPath)

	fmt.Fprintf(output, "=== Server ===\n")
	cfg.Server.Transport = p.promptEnum("server.transport", cfg.Server.Transport, transports)
	cfg.Server.Port = p.promptPositiveInt("server.port", cfg.Server.Port, "used when transport is http")
	cfg.Server.HealthCheckPath = p.promptStringWithHint("server.health_check_path", cfg.Server.HealthCheckPath, "empty disables")
	cfg.Server.MetricsPath = p.promptStringWithHint("server.metrics_path", cfg.Server.MetricsPath, "empty disables")
	cfg.Server.ShutdownGraceSeconds = p.promptNonNegativeInt("server.shutdown_grace_seconds", cfg.Server.ShutdownGraceSeconds, "seconds")

	fmt.Fprintf(output, "\n=== Logging ===\n")
	cfg.Logging.Level = p.promptEnum("logging.level", cfg.Logging.Level, logLevels)
	cfg.Logging.Format = p.promptEnum("logging.format", cfg.Logging.Format, logFormats)
	cfg.Logging.Output = p.promptStringWithHint("logging.output", cfg.Logging.Output, "stderr, stdout, or file path")

	fmt.Fprintf(output, "\n=== Pool ===\n")
	cfg.Pool.MinConns = p.promptPositiveInt("pool.min_conns", cfg.Pool.MinConns, "must be > 0")
	for {
		cfg.Pool.MaxConns = p.promptPositiveInt("pool.max_conns", cfg.Pool.MaxConns, "must be >= pool.min_conns")
		if cfg.Pool.MaxConns >= cfg.Pool.MinConns {
			break
		}
		fmt.Fprintf(output, "  pool.max_conns must be >= %d, try again.\n", cfg.Pool.MinConns)
		cfg.Pool.MaxConns = cfg.Pool.MinConns
	}
	cfg.Pool.MaxConnLifetime = p.promptDuration("pool.max_conn_lifetime", cfg.Pool.MaxConnLifetime, "Go duration, empty = driver default")
	cfg.Pool.MaxConnIdleTime = p.promptDuration("pool.max_conn_idle_time", cfg.Pool.MaxConnIdleTime, "Go duration, empty = driver default")
	cfg.Pool.HealthCheckPeriod = p.promptDuration("pool.health_check_period", cfg.Pool.HealthCheckPeriod, "Go duration, empty = driver default")

	fmt.Fprintf(output, "\n=== Query ===\n")
	cfg.Query.DefaultTimeoutSeconds = p.promptNonNegativeInt("query.default_timeout_seconds", cfg.Query.DefaultTimeoutSeconds, "seconds, 0 = none")
	cfg.Query.ListTablesTimeoutSeconds = p.promptNonNegativeInt("query.list_tables_timeout_seconds", cfg.Query.ListTablesTimeoutSeconds, "seconds, 0 = default")
	cfg.Query.GetTableSchemaTimeoutSeconds = p.promptNonNegativeInt("query.get_table_schema_timeout_seconds", cfg.Query.GetTableSchemaTimeoutSeconds, "seconds, 0 = default")
	cfg.Query.MaxResultLength = p.promptNonNegativeInt("query.max_result_length", cfg.Query.MaxResultLength, "characters, 0 = unlimited")

	fmt.Fprintf(output, "\n=== Timeout Rules ===\n")
	cfg.Query.TimeoutRules = p.promptTimeoutRules(cfg.Query.TimeoutRules)

	fmt.Fprintf(output, "\n=== Hints ===\n")
	cfg.Hints = p.promptHints(cfg.Hints)

	fmt.Fprintf(output, "\n=== Redaction ===\n")
	cfg.Redaction = p.promptRedaction(cfg.Redaction)

	if err := writeConfig(configPath, cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(output, "\nConfiguration saved to %s\n", configPath)
	return nil
}

// loadExisting returns the defaults overlaid with the file at configPath.
// A missing file is not an error; it reports isNew instead.
func loadExisting(configPath string) (*spmcp.ServerConfig, bool, error) {
	cfg := spmcp.DefaultServerConfig()
	data, err := os.ReadFile(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return &cfg, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, false, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}
	return &cfg, false, nil
}

func writeConfig(configPath string, cfg *spmcp.ServerConfig) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", configPath, err)
	}
	return nil
}

type prompter struct {
	scanner *bufio.Scanner
	output  io.Writer
	isNew   bool
	eof     bool
}

// readLine returns "" once input is exhausted, which every prompt treats as
// "keep the current value".
func (p *prompter) readLine() string {
	if p.scanner.Scan() {
		return strings.TrimSpace(p.scanner.Text())
	}
	p.eof = true
	return ""
}

func (p *prompter) valueLabel() string {
	if p.isNew {
		return "default"
	}
	return "current"
}

func (p *prompter) promptStringWithHint(field, current, hint string) string {
	fmt.Fprintf(p.output, "%s [%s] (%s: %q): ", field, hint, p.valueLabel(), current)
	input := p.readLine()
	if input == "" {
		return current
	}
	return input
}

func (p *prompter) promptPositiveInt(field string, current int, hint string) int {
	return p.promptIntMin(field, current, hint, 1)
}

func (p *prompter) promptNonNegativeInt(field string, current int, hint string) int {
	return p.promptIntMin(field, current, hint, 0)
}

func (p *prompter) promptIntMin(field string, current int, hint string, min int) int {
	for {
		fmt.Fprintf(p.output, "%s [%s] (%s: %d): ", field, hint, p.valueLabel(), current)
		input := p.readLine()
		if input == "" {
			return current
		}
		val, err := strconv.Atoi(input)
		if err != nil {
			fmt.Fprintf(p.output, "  Invalid integer %q, try again.\n", input)
			continue
		}
		if val < min {
			fmt.Fprintf(p.output, "  Value must be >= %d, try again.\n", min)
			continue
		}
		return val
	}
}

func (p *prompter) promptDuration(field, current, hint string) string {
	for {
		fmt.Fprintf(p.output, "%s [%s] (%s: %q): ", field, hint, p.valueLabel(), current)
		input := p.readLine()
		if input == "" {
			return current
		}
		d, err := time.ParseDuration(input)
		if err != nil {
			fmt.Fprintf(p.output, "  Invalid Go duration %q, try again.\n", input)
			continue
		}
		if d < 0 {
			fmt.Fprintf(p.output, "  Duration must not be negative, try again.\n")
			continue
		}
		return input
	}
}

func (p *prompter) promptEnum(field, current string, allowed []string) string {
	for {
		fmt.Fprintf(p.output, "%s (%s: %q, options: %s): ", field, p.valueLabel(), current, strings.Join(allowed, ", "))
		input := p.readLine()
		if input == "" {
			return current
		}
		for _, v := range allowed {
			if input == v {
				return input
			}
		}
		fmt.Fprintf(p.output, "  Invalid value %q, must be one of: %s\n", input, strings.Join(allowed, ", "))
	}
}

// editList runs the add/remove/continue loop shared by the list editors.
func editList[T any](p *prompter, label string, items []T, show func(int, T), add func() T) []T {
	for {
		if len(items) == 0 {
			fmt.Fprintf(p.output, "  (no entries)\n")
		}
		for i, item := range items {
			show(i, item)
		}
		fmt.Fprintf(p.output, "[a]dd, [r]emove, [c]ontinue? ")
		switch strings.ToLower(p.readLine()) {
		case "a":
			items = append(items, add())
		case "r":
			items = removeByIndex(p, label, items)
		case "c", "":
			return items
		default:
			fmt.Fprintf(p.output, "  Unknown choice, try again.\n")
		}
	}
}

func (p *prompter) promptTimeoutRules(current []spmcp.TimeoutRule) []spmcp.TimeoutRule {
	return editList(p, "timeout rule", current,
		func(i int, r spmcp.TimeoutRule) {
			fmt.Fprintf(p.output, "  [%d] pattern=%q timeout_seconds=%d\n", i, r.Pattern, r.TimeoutSeconds)
		},
		func() spmcp.TimeoutRule {
			return spmcp.TimeoutRule{
				Pattern:        p.promptNewRegexField("pattern", true),
				TimeoutSeconds: p.promptNewPositiveIntField("timeout_seconds"),
			}
		})
}

func (p *prompter) promptHints(current []spmcp.HintRule) []spmcp.HintRule {
	return editList(p, "hint", current,
		func(i int, r spmcp.HintRule) {
			fmt.Fprintf(p.output, "  [%d] pattern=%q kind=%q message=%q\n", i, r.Pattern, r.Kind, r.Message)
		},
		func() spmcp.HintRule {
			return spmcp.HintRule{
				Pattern: p.promptNewRegexField("pattern", true),
				Kind:    p.promptNewEnumField("kind", errorKinds),
				Message: p.promptNewField("message"),
			}
		})
}

func (p *prompter) promptRedaction(current []spmcp.RedactionRule) []spmcp.RedactionRule {
	return editList(p, "redaction rule", current,
		func(i int, r spmcp.RedactionRule) {
			fmt.Fprintf(p.output, "  [%d] column=%q pattern=%q replacement=%q description=%q\n",
				i, r.Column, r.Pattern, r.Replacement, r.Description)
		},
		func() spmcp.RedactionRule {
			return spmcp.RedactionRule{
				Column:      p.promptNewRegexField("column", false),
				Pattern:     p.promptNewRegexField("pattern", true),
				Replacement: p.promptNewField("replacement"),
				Description: p.promptNewField("description"),
			}
		})
}

func (p *prompter) promptNewField(name string) string {
	fmt.Fprintf(p.output, "  %s: ", name)
	return p.readLine()
}

func (p *prompter) promptNewEnumField(name string, allowed []string) string {
	for {
		fmt.Fprintf(p.output, "  %s (optional, one of: %s): ", name, strings.Join(allowed, ", "))
		input := p.readLine()
		if input == "" {
			return ""
		}
		for _, v := range allowed {
			if input == v {
				return input
			}
		}
		fmt.Fprintf(p.output, "  Invalid value %q, try again.\n", input)
	}
}

func (p *prompter) promptNewRegexField(name string, required bool) string {
	for {
		fmt.Fprintf(p.output, "  %s (regex): ", name)
		input := p.readLine()
		if input == "" {
			if !required || p.eof {
				return ""
			}
			fmt.Fprintf(p.output, "  Value is required, try again.\n")
			continue
		}
		if _, err := regexp.Compile(input); err != nil {
			fmt.Fprintf(p.output, "  Invalid regex %q: %v, try again.\n", input, err)
			continue
		}
		return input
	}
}

func (p *prompter) promptNewPositiveIntField(name string) int {
	for {
		fmt.Fprintf(p.output, "  %s (must be > 0): ", name)
		input := p.readLine()
		val, err := strconv.Atoi(input)
		if p.eof {
			return 1
		}
		if err != nil || val <= 0 {
			fmt.Fprintf(p.output, "  Value is required and must be > 0, try again.\n")
			continue
		}
		return val
	}
}

func removeByIndex[T any](p *prompter, label string, items []T) []T {
	if len(items) == 0 {
		fmt.Fprintf(p.output, "  No %s entries to remove.\n", label)
		return items
	}
	fmt.Fprintf(p.output, "  Index to remove: ")
	input := p.readLine()
	idx, err := strconv.Atoi(input)
	if err != nil || idx < 0 || idx >= len(items) {
		fmt.Fprintf(p.output, "  Invalid index.\n")
		return items
	}
	return append(items[:idx], items[idx+1:]...)
}
