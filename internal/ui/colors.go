package ui

import (
	"github.com/charmbracelet/lipgloss"
)

const (
	colorTitle = lipgloss.Color("#1DB954")
	colorOK    = lipgloss.Color("#04B575")
	colorErr   = lipgloss.Color("#FF5F5F")
	colorWarn  = lipgloss.Color("#FFA500")
	colorMuted = lipgloss.Color("#626262")
)

var styles = NewPalette(colorTitle, colorOK, colorErr, colorWarn, colorMuted)

// Painter colors text with [lipgloss] styles.
type Painter interface {
	On(string, lipgloss.Color) string // Sets background color
	As(string, lipgloss.Color) string // Sets foreground color
}

var _ Painter = (*Palette)(nil)

// Palette is a small stylesheet of named [lipgloss.Style] fields.
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(t, s, e, w, h lipgloss.Color) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

func (p *Palette) On(s string, c lipgloss.Color) string {
	return lipgloss.NewStyle().Background(c).Render(s)
}

func (p *Palette) As(s string, c lipgloss.Color) string {
	return lipgloss.NewStyle().Foreground(c).Render(s)
}

func NewStyle(fg lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(fg)
}

func NewBold(fg lipgloss.Color) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg lipgloss.Color) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}
