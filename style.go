package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"

	"github.com/speakdrill/speakdrill/internal/playback"
)

var (
	keyword   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Render
	paragraph = lipgloss.NewStyle().Width(78).Padding(0, 0, 0, 2).Render

	titleStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	playingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	roleStyles   = []lipgloss.Style{
		lipgloss.NewStyle().Foreground(lipgloss.Color("#00AAFF")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("#FF8800")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("#AA66FF")),
	}
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	ngStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
)

// roleStyle picks a stable color for the n-th role of a dialogue.
func roleStyle(n int) lipgloss.Style {
	if n < 0 {
		n = 0
	}
	return roleStyles[n%len(roleStyles)]
}

// padRight pads s to width terminal cells. CJK text counts double.
func padRight(s string, width int) string {
	return runewidth.FillRight(runewidth.Truncate(s, width, "…"), width)
}

// wrapIndent word-wraps s at width and indents every line after the first.
func wrapIndent(s string, width, indent int) string {
	if width <= indent+10 {
		return s
	}
	wrapped := wordwrap.String(s, width-indent)
	return strings.ReplaceAll(wrapped, "\n", "\n"+strings.Repeat(" ", indent))
}

func stateIcon(st playback.Status) string {
	switch {
	case st.State == playback.StatePlaying && st.Paused:
		return "⏸"
	case st.State == playback.StatePlaying:
		return "▶"
	case st.State == playback.StateQueued:
		return "…"
	default:
		return "◼"
	}
}

// statusLine renders the one-line playback status shown under the dialogue.
func statusLine(st playback.Status) string {
	s := st.Settings
	var parts []string

	icon := playingStyle.Render(stateIcon(st))
	if st.Playing != nil {
		parts = append(parts, fmt.Sprintf("%s #%03d", icon, st.Playing.Index))
	} else {
		parts = append(parts, icon)
	}

	cont := "off"
	if s.Continuous {
		cont = "on"
	}
	parts = append(parts,
		"speed "+playback.FormatSpeed(s.Speed),
		"voice "+string(s.Voice),
		"rate r"+s.RateKey,
		"mode "+string(s.Display),
		"role "+s.RoleFilter,
		"cont "+cont,
		"gap "+playback.FormatGap(s.Gap),
	)
	return dimStyle.Render(strings.Join(parts, " · "))
}
