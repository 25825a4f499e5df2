// Package redact masks sensitive values in query results before they reach
// the agent.
package redact

import (
	"fmt"
	"regexp"
)

// Rule replaces Pattern with Replacement in string values. Column, when set,
// limits the rule to columns whose name matches it.
type Rule struct {
	Column      string
	Pattern     string
	Replacement string
}

type compiledRule struct {
	column      *regexp.Regexp
	pattern     *regexp.Regexp
	replacement string
}

// Redactor applies rules to result rows. Safe for concurrent use.
type Redactor struct {
	rules []compiledRule
}

// New compiles rules. Returns an error on empty or invalid regex patterns.
func New(rules []Rule) (*Redactor, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		if r.Pattern == "" {
			return nil, fmt.Errorf("redact: rule %d has an empty pattern", i)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("redact: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, replacement: r.Replacement}
		if r.Column != "" {
			col, err := regexp.Compile(r.Column)
			if err != nil {
				return nil, fmt.Errorf("redact: invalid column pattern %q: %v", r.Column, err)
			}
			compiled[i].column = col
		}
	}
	return &Redactor{rules: compiled}, nil
}

// Enabled reports whether any rule is configured.
func (r *Redactor) Enabled() bool {
	return len(r.rules) > 0
}

// Apply rewrites rows in place. rows[i][j] belongs to columns[j]. Nested JSON
// values (maps and slices) are walked; non-string leaves are left alone.
func (r *Redactor) Apply(columns []string, rows [][]any) {
	if !r.Enabled() {
		return
	}
	for j, col := range columns {
		active := r.rulesFor(col)
		if len(active) == 0 {
			continue
		}
		for _, row := range rows {
			row[j] = redactValue(active, row[j])
		}
	}
}

func (r *Redactor) rulesFor(column string) []compiledRule {
	var active []compiledRule
	for _, rule := range r.rules {
		if rule.column == nil || rule.column.MatchString(column) {
			active = append(active, rule)
		}
	}
	return active
}

func redactValue(rules []compiledRule, v any) any {
	switch val := v.(type) {
	case string:
		for _, rule := range rules {
			val = rule.pattern.ReplaceAllString(val, rule.replacement)
		}
		return val
	case map[string]any:
		for k, item := range val {
			val[k] = redactValue(rules, item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = redactValue(rules, item)
		}
		return val
	default:
		return v
	}
}
