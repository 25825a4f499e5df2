package main

import (
	"fmt"
	"io"

	"golang.org/x/term"
)

// isTTY returns true if the given file descriptor is a terminal.
func isTTY(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

// printBanner prints the steampipe-mcp banner, in a cyan to magenta gradient
// when useColor is true.
func printBanner(w io.Writer, useColor bool) {
	lines := []string{
		`                                          `,
		`   ___ _ __  _ __ ___   ___ _ __          `,
		`  / __| '_ \| '_ ' _ \ / __| '_ \         `,
		`  \__ \ |_) | | | | | | (__| |_) |        `,
		`  |___/ .__/|_| |_| |_|\___| .__/         `,
		`      |_|                  |_|   steampipe`,
		`                                          `,
	}

	if !useColor {
		for _, line := range lines {
			fmt.Fprintln(w, line)
		}
		return
	}
	colors := []string{
		"\033[1;36m",
		"\033[1;36m",
		"\033[1;96m",
		"\033[1;34m",
		"\033[1;35m",
		"\033[1;95m",
		"\033[0m",
	}
	for i, line := range lines {
		fmt.Fprintf(w, "%s%s\033[0m\n", colors[i%len(colors)], line)
	}
}

// printCheck prints a ✓ or ✗ check line, colored when useColor is true.
func printCheck(w io.Writer, useColor bool, pass bool, msg string) {
	mark, color := "✓", "\033[32m"
	if !pass {
		mark, color = "✗", "\033[31m"
	}
	if useColor {
		fmt.Fprintf(w, "  %s%s\033[0m %s\n", color, mark, msg)
		return
	}
	fmt.Fprintf(w, "  %s %s\n", mark, msg)
}
