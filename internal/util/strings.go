// Package util provides small string helpers shared across the fabric,
// mainly width-aware text handling for terminal report output.
package util

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// TruncateString truncates a string to maxLen runes, adding "..." when it
// was cut. It ignores ANSI escape codes and wide characters; use
// TruncateANSI for styled terminal output.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 3 {
		return "..."
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

// TruncateANSI truncates a string to maxWidth visual columns, adding "..."
// when it was cut. Escape sequences are preserved and wide characters are
// counted by display width.
func TruncateANSI(s string, maxWidth int) string {
	if maxWidth <= 3 {
		return "..."
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	return ansi.Truncate(s, maxWidth, "...")
}

// PadANSI pads a string with spaces to exactly width visual columns,
// truncating when it is too long. Column alignment survives styling
// because widths are measured ANSI-aware.
func PadANSI(s string, width int) string {
	if width <= 0 {
		return ""
	}
	w := lipgloss.Width(s)
	if w > width {
		return TruncateANSI(s, width)
	}
	return s + strings.Repeat(" ", width-w)
}

// Pluralize returns "n singular" or "n singular+s".
func Pluralize(n int, singular string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %ss", n, singular)
}

// FirstLine returns the text up to the first newline, trimmed.
func FirstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
