// Package hint maps gateway error messages to guidance for the agent.
package hint

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule appends Message to errors whose text matches Pattern. An empty Kind
// matches errors of any kind.
type Rule struct {
	Pattern string
	Kind    string
	Message string
}

type compiledRule struct {
	pattern *regexp.Regexp
	kind    string
	message string
}

// Matcher evaluates rules top to bottom. Safe for concurrent use.
type Matcher struct {
	rules []compiledRule
}

// NewMatcher compiles rules. Returns an error on invalid regex patterns.
func NewMatcher(rules []Rule) (*Matcher, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("hint: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled = append(compiled, compiledRule{pattern: re, kind: r.Kind, message: r.Message})
	}
	return &Matcher{rules: compiled}, nil
}

// Match returns the messages of every matching rule joined by newlines, and
// the patterns that matched. Identical messages are reported once.
func (m *Matcher) Match(kind, errMsg string) (string, []string) {
	var messages, patterns []string
	seen := map[string]bool{}
	for _, rule := range m.rules {
		if rule.kind != "" && rule.kind != kind {
			continue
		}
		if !rule.pattern.MatchString(errMsg) {
			continue
		}
		patterns = append(patterns, rule.pattern.String())
		if !seen[rule.message] {
			seen[rule.message] = true
			messages = append(messages, rule.message)
		}
	}
	return strings.Join(messages, "\n"), patterns
}

// Len returns the number of rules.
func (m *Matcher) Len() int {
	return len(m.rules)
}
