package tui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	Submit   key.Binding
	Approve  key.Binding
	Reject   key.Binding
	Cancel   key.Binding
	Reset    key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Quit     key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "research"),
		),
		Approve: key.NewBinding(
			key.WithKeys("y", "a"),
			key.WithHelp("y", "approve plan"),
		),
		Reject: key.NewBinding(
			key.WithKeys("n", "r"),
			key.WithHelp("n", "reject plan"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("ctrl+x"),
			key.WithHelp("ctrl+x", "cancel"),
		),
		Reset: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "reset"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "scroll down"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
	}
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Approve, k.Reject, k.Cancel, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Submit, k.Approve, k.Reject},
		{k.Cancel, k.Reset, k.Quit},
		{k.PageUp, k.PageDown},
	}
}
