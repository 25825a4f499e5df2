package timeout

import (
	"context"
	"strings"
	"testing"
	"time"
)

func newManager(t *testing.T, config Config) *Manager {
	t.Helper()
	m, err := NewManager(config)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return m
}

func TestResolveFirstRuleWins(t *testing.T) {
	t.Parallel()
	m := newManager(t, Config{
		Default: 30 * time.Second,
		Rules: []Rule{
			{Pattern: "aws_cloudtrail", Timeout: 5 * time.Minute},
			{Pattern: "JOIN", Timeout: 60 * time.Second},
		},
	})

	got, source := m.Resolve("query", "SELECT * FROM aws_cloudtrail_trail t JOIN x ON true")
	if got != 5*time.Minute {
		t.Errorf("expected 5m, got %v", got)
	}
	if source != "aws_cloudtrail" {
		t.Errorf("expected source to be the matched pattern, got %q", source)
	}
}

func TestResolveOperationOverride(t *testing.T) {
	t.Parallel()
	m := newManager(t, Config{
		Default:    30 * time.Second,
		Operations: map[string]time.Duration{"list_tables": 10 * time.Second, "get_table_schema": 0},
		Rules:      []Rule{{Pattern: ".*", Timeout: time.Minute}},
	})

	got, source := m.Resolve("list_tables", "")
	if got != 10*time.Second || source != "list_tables" {
		t.Errorf("expected 10s from list_tables, got %v from %q", got, source)
	}

	// Zero per-operation values fall back to the default.
	got, source = m.Resolve("get_table_schema", "")
	if got != 30*time.Second || source != "" {
		t.Errorf("expected default 30s, got %v from %q", got, source)
	}
}

func TestResolveDefault(t *testing.T) {
	t.Parallel()
	m := newManager(t, Config{
		Default: 30 * time.Second,
		Rules:   []Rule{{Pattern: "pg_stat", Timeout: 5 * time.Second}},
	})
	got, source := m.Resolve("query", "SELECT 1")
	if got != 30*time.Second || source != "" {
		t.Errorf("expected default 30s, got %v from %q", got, source)
	}
}

func TestNewManagerErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		config Config
		substr string
	}{
		{"invalid regex", Config{Rules: []Rule{{Pattern: "[bad", Timeout: time.Second}}}, "[bad"},
		{"zero rule timeout", Config{Rules: []Rule{{Pattern: "x", Timeout: 0}}}, "positive"},
		{"negative default", Config{Default: -time.Second}, "default"},
		{"negative operation", Config{Operations: map[string]time.Duration{"query": -1}}, "query"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(tt.config)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.substr) {
				t.Fatalf("expected error containing %q, got %q", tt.substr, err.Error())
			}
		})
	}
}

func TestWithTimeoutZeroHasNoDeadline(t *testing.T) {
	t.Parallel()
	ctx, cancel := WithTimeout(context.Background(), 0)
	defer cancel()
	if _, ok := ctx.Deadline(); ok {
		t.Fatal("expected no deadline for zero timeout")
	}
	cancel()
	if ctx.Err() == nil {
		t.Fatal("expected context to be cancellable")
	}
}

func TestWithTimeoutSetsDeadline(t *testing.T) {
	t.Parallel()
	ctx, cancel := WithTimeout(context.Background(), time.Minute)
	defer cancel()
	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("expected deadline")
	}
	if time.Until(deadline) > time.Minute {
		t.Fatalf("deadline too far in the future: %v", deadline)
	}
}
