package tui

import "charm.land/bubbles/v2/key"

// keyMap represents key map data used by this package.
type keyMap struct {
	quit       key.Binding
	reload     key.Binding
	toggleHelp key.Binding
	moveUp     key.Binding
	moveDown   key.Binding
	start      key.Binding
	stop       key.Binding
	stopAll    key.Binding
	info       key.Binding
	copy       key.Binding
}

// newKeyMap constructs key map.
func newKeyMap() keyMap {
	return keyMap{
		quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		reload:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		toggleHelp: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		moveUp:     key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "task up")),
		moveDown:   key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "task down")),
		start:      key.NewBinding(key.WithKeys("enter", "s"), key.WithHelp("enter/s", "start timer")),
		stop:       key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop timer")),
		stopAll:    key.NewBinding(key.WithKeys("X", "shift+x"), key.WithHelp("X", "stop all")),
		info:       key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "task summary")),
		copy:       key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy summary")),
	}
}

// ShortHelp handles short help.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.start, k.stop, k.info, k.toggleHelp, k.quit}
}

// FullHelp handles full help.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.moveUp, k.moveDown, k.reload, k.toggleHelp, k.quit},
		{k.start, k.stop, k.stopAll},
		{k.info, k.copy},
	}
}
