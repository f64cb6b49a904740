package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette.
var (
	ColorSuccess = lipgloss.Color("#00D26A") // green  — verified slots
	ColorWarning = lipgloss.Color("#FFB800") // yellow — not-found reasons
	ColorError   = lipgloss.Color("#FF4444") // red    — errors
	ColorAddress = lipgloss.Color("#00B4D8") // cyan   — addresses, storage keys
	ColorValue   = lipgloss.Color("#FFFFFF") // white bold — values
	ColorMeta    = lipgloss.Color("#555555") // dim gray  — labels, metadata
	ColorBorder  = lipgloss.Color("#1E3A5F") // dark blue — UI chrome
	ColorScheme  = lipgloss.Color("#9B5DE5") // purple    — layout schemes
)

// Base styles.
var (
	StyleSuccess = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)
	StyleWarning = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)
	StyleError   = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	StyleAddress = lipgloss.NewStyle().Foreground(ColorAddress)
	StyleValue   = lipgloss.NewStyle().Foreground(ColorValue).Bold(true)
	StyleMeta    = lipgloss.NewStyle().Foreground(ColorMeta)
	StyleScheme  = lipgloss.NewStyle().Foreground(ColorScheme).Bold(true)

	StyleBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)

	StyleTitle = lipgloss.NewStyle().
			Foreground(ColorScheme).
			Bold(true).
			MarginBottom(1)
)

// Success renders a green success message.
func Success(msg string) string { return StyleSuccess.Render("✓ " + msg) }

// Warn renders a yellow warning message.
func Warn(msg string) string { return StyleWarning.Render("! " + msg) }

// Err renders a red error message.
func Err(msg string) string { return StyleError.Render("✗ " + msg) }

// Addr renders an address or storage key.
func Addr(a string) string { return StyleAddress.Render(a) }

// Val renders a primary value.
func Val(v string) string { return StyleValue.Render(v) }

// Meta renders dim metadata.
func Meta(m string) string { return StyleMeta.Render(m) }

// Scheme renders a layout-scheme name.
func Scheme(s string) string { return StyleScheme.Render(s) }

// KeyValueBlock renders a bordered block of key/value pairs.
func KeyValueBlock(title string, pairs [][2]string) string {
	var sb strings.Builder
	if title != "" {
		sb.WriteString(StyleTitle.Render(title))
		sb.WriteString("\n")
	}
	for _, p := range pairs {
		key := StyleMeta.Render(fmt.Sprintf("%-20s", p[0]+":"))
		val := StyleValue.Render(p[1])
		sb.WriteString("  " + key + " " + val + "\n")
	}
	return StyleBorder.Render(sb.String())
}
