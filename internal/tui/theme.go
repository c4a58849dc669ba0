package tui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"taskdash/internal/model"
)

func ac(light, dark string) lipgloss.AdaptiveColor {
	return lipgloss.AdaptiveColor{Light: light, Dark: dark}
}

var (
	colorMuted    lipgloss.TerminalColor = ac("240", "243")
	colorAccent   lipgloss.TerminalColor = ac("27", "62")
	colorAccentFg lipgloss.TerminalColor = ac("255", "235")
	colorError    lipgloss.TerminalColor = ac("160", "203")
	colorSelected lipgloss.TerminalColor = ac("#e9e9e9", "#262626")

	colorPending    lipgloss.TerminalColor = ac("130", "214")
	colorInProgress lipgloss.TerminalColor = ac("25", "75")
	colorCompleted  lipgloss.TerminalColor = ac("28", "114")
)

func styleMuted() lipgloss.Style {
	st := lipgloss.NewStyle().Foreground(colorMuted)
	if lipgloss.HasDarkBackground() {
		return st.Faint(true)
	}
	return st
}

func styleTitle() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(colorAccentFg).Background(colorAccent).Padding(0, 1)
}

func styleError() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(colorError)
}

func statusColor(s model.Status) lipgloss.TerminalColor {
	switch s {
	case model.StatusInProgress:
		return colorInProgress
	case model.StatusCompleted:
		return colorCompleted
	default:
		return colorPending
	}
}

// statusBadge is a fixed-width label so rows line up.
func statusBadge(s model.Status) string {
	label := map[model.Status]string{
		model.StatusPending:    "PENDING",
		model.StatusInProgress: "ACTIVE",
		model.StatusCompleted:  "DONE",
	}[s]
	if label == "" {
		label = strings.ToUpper(string(s))
	}
	return lipgloss.NewStyle().Foreground(statusColor(s)).Bold(true).Width(8).Render(label)
}

// applyColorProfile picks the lipgloss colour profile. NO_COLOR or --no-color force
// plain ASCII; otherwise termenv's detection is trusted, upgraded when COLORTERM or
// TERM advertise more than it found.
func applyColorProfile(noColor bool) {
	if noColor || strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	profile := termenv.ColorProfile()
	colorterm := strings.ToLower(os.Getenv("COLORTERM"))
	term := strings.ToLower(os.Getenv("TERM"))
	switch {
	case profile == termenv.Ascii:
	case strings.Contains(colorterm, "truecolor") || strings.Contains(colorterm, "24bit"):
		profile = termenv.TrueColor
	case strings.Contains(term, "256color") && profile == termenv.ANSI:
		profile = termenv.ANSI256
	}
	lipgloss.SetColorProfile(profile)
}
