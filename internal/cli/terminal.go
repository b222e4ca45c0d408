package cli

import (
	"os"
	"strconv"

	"golang.org/x/term"
)

// IsInteractive reports whether stdout is a terminal. Non-interactive
// callers (pipes, agents) get plain or JSON output with no decoration.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// TerminalWidth returns the terminal width in columns, falling back to the
// COLUMNS environment variable and then 80.
func TerminalWidth() int {
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	if colStr := os.Getenv("COLUMNS"); colStr != "" {
		if width, err := strconv.Atoi(colStr); err == nil && width > 0 {
			return width
		}
	}
	return 80
}

// truncateTo shortens s to fit within width columns.
func truncateTo(s string, width int) string {
	if width <= 1 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}
