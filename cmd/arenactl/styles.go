package main

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Color palette
	usedColor  = lipgloss.Color("#FF4B4B")
	freeColor  = lipgloss.Color("#04B575")
	titleColor = lipgloss.Color("#7D56F4")
)

// styles renders block map cells for one output stream. Colors are dropped
// when the stream is not a terminal or --no-color is set.
type styles struct {
	title lipgloss.Style
	used  lipgloss.Style
	free  lipgloss.Style
}

func newStyles(w io.Writer) styles {
	if noColor {
		return styles{title: lipgloss.NewStyle(), used: lipgloss.NewStyle(), free: lipgloss.NewStyle()}
	}
	r := lipgloss.NewRenderer(w)
	return styles{
		title: r.NewStyle().Bold(true).Foreground(titleColor),
		used:  r.NewStyle().Foreground(usedColor),
		free:  r.NewStyle().Foreground(freeColor).Bold(true),
	}
}

// state renders a block state label.
func (s styles) state(free bool) string {
	if free {
		return s.free.Render("free")
	}
	return s.used.Render("used")
}
