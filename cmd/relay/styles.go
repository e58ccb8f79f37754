package main

import "github.com/charmbracelet/lipgloss"

var (
	Green       = lipgloss.Color("#00FF41")
	BrightGreen = lipgloss.Color("#39FF14")
	Cyan        = lipgloss.Color("#00D4AA")
	Red         = lipgloss.Color("#FF5555")
	Yellow      = lipgloss.Color("#F1FA8C")
	LightGray   = lipgloss.Color("#aaaaaa")

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Red).
			Bold(true)

	HeaderStyle = lipgloss.NewStyle().
			Foreground(BrightGreen).
			Bold(true)

	AgentStyle = lipgloss.NewStyle().
			Foreground(Cyan).
			Bold(true)

	OKStyle = lipgloss.NewStyle().
		Foreground(Green)

	WarnStyle = lipgloss.NewStyle().
			Foreground(Yellow)

	FailStyle = lipgloss.NewStyle().
			Foreground(Red)

	DimStyle = lipgloss.NewStyle().
			Foreground(LightGray)
)
