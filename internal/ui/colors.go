package ui

import "github.com/charmbracelet/lipgloss"

const (
	spotifyGreen = "#1DB954"
	softGreen    = "#04B575"
	red          = "#FF5F5F"
	amber        = "#FFA500"
	grey         = "#626262"
)

var styles = newTheme()

// theme groups the styles for the now-playing bar and the status line.
type theme struct {
	playing lipgloss.Style
	paused  lipgloss.Style
	idle    lipgloss.Style
	ok      lipgloss.Style
	err     lipgloss.Style
	warn    lipgloss.Style
	muted   lipgloss.Style
}

func newTheme() theme {
	bar := lipgloss.NewStyle().PaddingLeft(1).BorderStyle(lipgloss.NormalBorder()).BorderLeft(true)
	return theme{
		playing: bar.BorderForeground(lipgloss.Color(spotifyGreen)).Foreground(lipgloss.Color(spotifyGreen)).Bold(true),
		paused:  bar.BorderForeground(lipgloss.Color(grey)).Foreground(lipgloss.Color(amber)),
		idle:    bar.BorderForeground(lipgloss.Color(grey)).Foreground(lipgloss.Color(grey)).Italic(true),
		ok:      fg(softGreen).Bold(true),
		err:     fg(red).Bold(true),
		warn:    fg(amber),
		muted:   fg(grey).Italic(true),
	}
}

func fg(color string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}
