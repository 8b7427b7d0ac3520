// Package history renders the persisted session history as an interactive
// terminal view, optionally following the state file as it changes.
package history

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // Gray - timestamps, metadata

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")) // White - values

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")) // White bold - headers

	// Session ids - Blue
	sessionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12"))

	// Working directories - Cyan
	cwdStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	// Active-session marker - Green
	activeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10"))

	// Autonomy levels - Yellow, unsafe - Red
	levelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	unsafeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("9"))

	seqStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			Width(5).
			Align(lipgloss.Right)

	divider = lipgloss.NewStyle().
		Foreground(lipgloss.Color("8")).
		Render(strings.Repeat("━", 60))
)
