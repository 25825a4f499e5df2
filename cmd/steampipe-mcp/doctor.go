package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	spmcp "github.com/rickchristie/steampipe-mcp"
)

// doctorTimeout bounds the database checks.
const doctorTimeout = 30 * time.Second

func runDoctor(cmd *cobra.Command, opts *options) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
	defer cancel()
	return doctor(ctx, os.Stderr, isTTY(os.Stderr.Fd()), cmd.Flags(), opts)
}

func doctor(ctx context.Context, w io.Writer, useColor bool, flags *pflag.FlagSet, opts *options) error {
	printBanner(w, useColor)
	fmt.Fprintf(w, "steampipe-mcp %s\n\n", version)

	config, ok := doctorValidateConfig(w, useColor, flags, opts)
	if ok {
		ok = doctorCheckDatabase(ctx, w, useColor, config, resolveDatabaseURL(opts))
	}
	if !ok {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Fix the issues above and run 'steampipe-mcp doctor' again.")
		return nil
	}

	fmt.Fprintln(w)
	printAgentSnippets(w, useColor, config)
	return nil
}

// doctorValidateConfig loads the config and prints one line per check.
// Returns the config and true if all checks passed.
func doctorValidateConfig(w io.Writer, useColor bool, flags *pflag.FlagSet, opts *options) (*spmcp.ServerConfig, bool) {
	source := opts.configPath
	if source == "" {
		source = os.Getenv(envConfigPath)
	}

	config, err := resolveConfig(flags, opts)
	if err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Config loads: %v", err))
		return nil, false
	}
	if source == "" {
		printCheck(w, useColor, true, "Config loads (defaults, no file given)")
	} else {
		printCheck(w, useColor, true, fmt.Sprintf("Config loads (%s)", source))
	}

	allPassed := true
	for _, c := range checkServerConfig(config) {
		if c.err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("%s: %v", c.name, c.err))
			allPassed = false
			continue
		}
		printCheck(w, useColor, true, c.name)
	}
	return config, allPassed
}

// doctorCheckDatabase opens a one-connection pool and lists the tables on the
// search path. The URL is only ever printed masked.
func doctorCheckDatabase(ctx context.Context, w io.Writer, useColor bool, config *spmcp.ServerConfig, connString string) bool {
	if connString == "" {
		printCheck(w, useColor, false, fmt.Sprintf("Database URL is set (--database-url or %s)", envDatabaseURL))
		return false
	}
	printCheck(w, useColor, true, fmt.Sprintf("Database URL is set (%s)", spmcp.SafeDisplayURL(connString)))

	pm := spmcp.NewPoolManager(connString, spmcp.PoolConfig{MinConns: 1, MaxConns: 1}, zerolog.Nop())
	if err := pm.Open(ctx); err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Database is reachable: %v", err))
		return false
	}
	defer pm.Close(ctx)
	printCheck(w, useColor, true, "Database is reachable")

	gw := spmcp.NewGateway(pm, config.GatewayConfig, zerolog.Nop())
	tables, err := gw.ListAllTables(ctx)
	if err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Tables can be listed: %v", err))
		return false
	}
	if len(tables) == 0 {
		printCheck(w, useColor, false, "Tables on search path (none found; check search_path and installed plugins)")
		return false
	}
	printCheck(w, useColor, true, fmt.Sprintf("Tables on search path (%d)", len(tables)))
	return true
}

// printAgentSnippets prints MCP client configuration for the configured transport.
func printAgentSnippets(w io.Writer, useColor bool, config *spmcp.ServerConfig) {
	heading := func(title string) {
		if useColor {
			fmt.Fprintf(w, "\033[1;36m%s\033[0m\n", title)
		} else {
			fmt.Fprintln(w, title)
		}
	}
	subheading := func(title string) {
		if useColor {
			fmt.Fprintf(w, "  \033[1m%s\033[0m\n", title)
		} else {
			fmt.Fprintf(w, "  %s\n", title)
		}
	}

	heading("Agent Connection Snippets")
	fmt.Fprintln(w)

	if config.Server.Transport == spmcp.TransportHTTP {
		url := fmt.Sprintf("http://localhost:%d%s", config.Server.Port, mcpEndpointPath)

		subheading("Claude Code")
		fmt.Fprintf(w, "    claude mcp add --transport http steampipe %s\n\n", url)

		subheading("Cursor (.cursor/mcp.json)")
		fmt.Fprintf(w, `  {
    "mcpServers": {
      "steampipe": {
        "url": "%s"
      }
    }
  }
`, url)
		fmt.Fprintln(w)

		subheading("Gemini CLI (~/.gemini/settings.json)")
		fmt.Fprintf(w, `  {
    "mcpServers": {
      "steampipe": {
        "httpUrl": "%s"
      }
    }
  }
`, url)
		return
	}

	subheading("Claude Code")
	fmt.Fprintf(w, "    claude mcp add steampipe --env %s=<url> -- steampipe-mcp serve\n\n", envDatabaseURL)

	subheading("Claude Desktop / Cursor (mcpServers)")
	fmt.Fprintf(w, `  {
    "mcpServers": {
      "steampipe": {
        "command": "steampipe-mcp",
        "args": ["serve"],
        "env": { "%s": "<url>" }
      }
    }
  }
`, envDatabaseURL)
}
