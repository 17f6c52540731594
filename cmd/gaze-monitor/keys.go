package main

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Start     key.Binding
	Stop      key.Binding
	Pause     key.Binding
	Calibrate key.Binding
	Abort     key.Binding
	Quit      key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Start:     key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start")),
		Stop:      key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop")),
		Pause:     key.NewBinding(key.WithKeys("p", " "), key.WithHelp("p", "pause/resume")),
		Calibrate: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "calibrate")),
		Abort:     key.NewBinding(key.WithKeys("a", "esc"), key.WithHelp("a", "abort")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) help() []key.Binding {
	return []key.Binding{k.Start, k.Stop, k.Pause, k.Calibrate, k.Abort, k.Quit}
}
