package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ShouldUseColor reports whether ANSI colors should be emitted on stdout,
// honoring NO_COLOR, CLICOLOR_FORCE, CLICOLOR, and TTY detection in that order.
func ShouldUseColor() bool {
	// Any non-empty NO_COLOR disables color (https://no-color.org).
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR")) == "0" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}
