// Package timeout resolves per-operation deadlines for gateway calls.
package timeout

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// Rule gives SQL matching Pattern its own timeout.
type Rule struct {
	Pattern string
	Timeout time.Duration
}

// Config is the timeout manager's own config type. A zero duration means no
// deadline.
type Config struct {
	Default    time.Duration
	Operations map[string]time.Duration
	Rules      []Rule
}

type compiledRule struct {
	pattern *regexp.Regexp
	timeout time.Duration
}

// Manager resolves timeouts. Safe for concurrent use.
type Manager struct {
	rules      []compiledRule
	operations map[string]time.Duration
	fallback   time.Duration
}

// NewManager creates a Manager. Returns an error on invalid regex patterns or
// negative durations.
func NewManager(config Config) (*Manager, error) {
	if config.Default < 0 {
		return nil, fmt.Errorf("timeout: default timeout must not be negative")
	}
	ops := make(map[string]time.Duration, len(config.Operations))
	for op, d := range config.Operations {
		if d < 0 {
			return nil, fmt.Errorf("timeout: timeout for %q must not be negative", op)
		}
		ops[op] = d
	}
	compiled := make([]compiledRule, len(config.Rules))
	for i, r := range config.Rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("timeout: invalid regex pattern %q: %v", r.Pattern, err)
		}
		if r.Timeout <= 0 {
			return nil, fmt.Errorf("timeout: rule %q must have a positive timeout", r.Pattern)
		}
		compiled[i] = compiledRule{pattern: re, timeout: r.Timeout}
	}
	return &Manager{rules: compiled, operations: ops, fallback: config.Default}, nil
}

// Resolve returns the timeout for an operation and the source that decided it:
// the first SQL rule that matches, then a non-zero per-operation value, then
// the default. The source is empty when the default applies.
func (m *Manager) Resolve(op, sql string) (time.Duration, string) {
	if sql != "" {
		for _, rule := range m.rules {
			if rule.pattern.MatchString(sql) {
				return rule.timeout, rule.pattern.String()
			}
		}
	}
	if d, ok := m.operations[op]; ok && d > 0 {
		return d, op
	}
	return m.fallback, ""
}

// WithTimeout is context.WithTimeout, except that d <= 0 only adds cancellation.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
