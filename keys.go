package main

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/speakdrill/speakdrill/internal/playback"
)

type playKeyMap struct {
	Quit       key.Binding
	Toggle     key.Binding
	PlayLine   key.Binding
	Up         key.Binding
	Down       key.Binding
	Next       key.Binding
	Prev       key.Binding
	Restart    key.Binding
	Stop       key.Binding
	Faster     key.Binding
	Slower     key.Binding
	Continuous key.Binding
	Display    key.Binding
	Voice      key.Binding
	Rate       key.Binding
	Role       key.Binding
	Gap        key.Binding
}

func newPlayKeyMap() playKeyMap {
	return playKeyMap{
		Quit:       key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
		Toggle:     key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "pause/resume")),
		PlayLine:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "play line")),
		Up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Next:       key.NewBinding(key.WithKeys("n", "right"), key.WithHelp("n/→", "next")),
		Prev:       key.NewBinding(key.WithKeys("p", "left"), key.WithHelp("p/←", "previous")),
		Restart:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "restart")),
		Stop:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop")),
		Faster:     key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "faster")),
		Slower:     key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "slower")),
		Continuous: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "continuous")),
		Display:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "display")),
		Voice:      key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "voice")),
		Rate:       key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "rate preset")),
		Role:       key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "role filter")),
		Gap:        key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "gap")),
	}
}

// ShortHelp implements help.KeyMap.
func (k playKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.PlayLine, k.Next, k.Prev, k.Faster, k.Slower, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k playKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.PlayLine, k.Up, k.Down, k.Next, k.Prev},
		{k.Restart, k.Stop, k.Faster, k.Slower, k.Gap},
		{k.Continuous, k.Display, k.Voice, k.Rate, k.Role, k.Quit},
	}
}

type drillKeyMap struct {
	Quit   key.Binding
	Skip   key.Binding
	Replay key.Binding
	Hint   key.Binding
	Hear   key.Binding
	OK     key.Binding
	Miss   key.Binding
}

func newDrillKeyMap() drillKeyMap {
	return drillKeyMap{
		Quit:   key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
		Skip:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "skip")),
		Replay: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "replay")),
		Hint:   key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "hint")),
		Hear:   key.NewBinding(key.WithKeys(" ", "enter"), key.WithHelp("space", "hear line")),
		OK:     key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "got it")),
		Miss:   key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "missed")),
	}
}

// ShortHelp implements help.KeyMap.
func (k drillKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Hint, k.Hear, k.OK, k.Miss, k.Skip, k.Replay, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k drillKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// statusMsg carries a scheduler snapshot into a program.
type statusMsg playback.Status

// waitForStatus delivers the next snapshot from a Subscribe channel.
func waitForStatus(updates <-chan playback.Status) tea.Cmd {
	return func() tea.Msg {
		return statusMsg(<-updates)
	}
}
