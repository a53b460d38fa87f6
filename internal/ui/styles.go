package ui

import "github.com/groblegark/madrasa/internal/model"

// ANSI codes used by the CLI when color is enabled.
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Dim    = "\033[2m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Red    = "\033[31m"
	Cyan   = "\033[36m"
)

// Colorize wraps s in the given ANSI code when color is enabled.
func Colorize(code, s string) string {
	if !ShouldUseColor() {
		return s
	}
	return code + s + Reset
}

// StatusColor returns the ANSI code conventionally used for an item status.
func StatusColor(s model.ItemStatus) string {
	switch s {
	case model.StatusPublished:
		return Green
	case model.StatusDraft:
		return Yellow
	case model.StatusArchived:
		return Dim
	}
	return ""
}
