package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rickchristie/steampipe-mcp/internal/configure"
)

func configureCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Create or edit the YAML configuration file interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigure(cmd.InOrStdin(), os.Stderr, isTTY(os.Stderr.Fd()), opts)
		},
	}
}

// configurePath picks the file the wizard edits: --config, then the
// environment, then the default in the working directory.
func configurePath(opts *options) string {
	if opts.configPath != "" {
		return opts.configPath
	}
	if path := os.Getenv(envConfigPath); path != "" {
		return path
	}
	return configure.DefaultPath
}

func runConfigure(in io.Reader, out io.Writer, useColor bool, opts *options) error {
	printBanner(out, useColor)
	return configure.Run(configurePath(opts), in, out)
}
