package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	t.Parallel()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out.String(), "steampipe-mcp dev") {
		t.Fatalf("unexpected version output: %q", out.String())
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	t.Parallel()
	cmd := rootCmd()
	for _, name := range []string{"serve", "doctor", "configure", "version"} {
		sub, _, err := cmd.Find([]string{name})
		if err != nil || sub.Name() != name {
			t.Fatalf("expected subcommand %q, got %v (%v)", name, sub, err)
		}
	}
	for _, flag := range []string{"database-url", "config", "transport", "port", "log-level", "log-format"} {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Fatalf("expected persistent flag --%s", flag)
		}
	}
}
