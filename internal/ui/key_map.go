package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	play   key.Binding
	toggle key.Binding
	resync key.Binding
	quit   key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		play:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "play")),
		toggle: key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "play/pause")),
		resync: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "resync")),
		quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.play, k.toggle, k.resync, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.play, k.toggle}, {k.resync, k.quit}}
}
