package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the editor shortcuts. Edit keys are handled by the textarea.
type KeyMap struct {
	New, Open, Save, SaveAs, Close key.Binding
	OpenRecent                     key.Binding
	NextTab, PrevTab               key.Binding
	Find, Replace                  key.Binding
	Quit                           key.Binding
}

// FindKeyMap holds the keys active while the find bar has focus.
type FindKeyMap struct {
	Next, Prev             key.Binding
	SwitchField            key.Binding
	ReplaceOne, ReplaceAll key.Binding
	CaseSensitive, Regex   key.Binding
	WholeWord              key.Binding
	Dismiss                key.Binding
}

// DefaultKeyMap returns the default shortcuts.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		New:        key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("^n", "new")),
		Open:       key.NewBinding(key.WithKeys("ctrl+o"), key.WithHelp("^o", "open")),
		OpenRecent: key.NewBinding(key.WithKeys("ctrl+e"), key.WithHelp("^e", "recent")),
		Save:       key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("^s", "save")),
		SaveAs:     key.NewBinding(key.WithKeys("alt+s"), key.WithHelp("alt+s", "save as")),
		Close:      key.NewBinding(key.WithKeys("ctrl+w"), key.WithHelp("^w", "close")),
		NextTab:    key.NewBinding(key.WithKeys("ctrl+pgdown", "alt+right"), key.WithHelp("alt+→", "next tab")),
		PrevTab:    key.NewBinding(key.WithKeys("ctrl+pgup", "alt+left"), key.WithHelp("alt+←", "prev tab")),
		Find:       key.NewBinding(key.WithKeys("ctrl+f"), key.WithHelp("^f", "find")),
		Replace:    key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("^r", "replace")),
		Quit:       key.NewBinding(key.WithKeys("ctrl+q", "ctrl+c"), key.WithHelp("^q", "quit")),
	}
}

// DefaultFindKeyMap returns the default find bar keys.
func DefaultFindKeyMap() FindKeyMap {
	return FindKeyMap{
		Next:          key.NewBinding(key.WithKeys("enter", "down"), key.WithHelp("enter", "next")),
		Prev:          key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "prev")),
		SwitchField:   key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "find/replace")),
		ReplaceOne:    key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("^r", "replace")),
		ReplaceAll:    key.NewBinding(key.WithKeys("ctrl+a"), key.WithHelp("^a", "replace all")),
		CaseSensitive: key.NewBinding(key.WithKeys("alt+c"), key.WithHelp("alt+c", "case")),
		Regex:         key.NewBinding(key.WithKeys("alt+r"), key.WithHelp("alt+r", "regex")),
		WholeWord:     key.NewBinding(key.WithKeys("alt+w"), key.WithHelp("alt+w", "word")),
		Dismiss:       key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "close")),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Save, k.Open, k.New, k.Close, k.NextTab, k.Find, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.New, k.Open, k.OpenRecent, k.Save, k.SaveAs, k.Close},
		{k.NextTab, k.PrevTab, k.Find, k.Replace, k.Quit},
	}
}

func (k FindKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Prev, k.SwitchField, k.ReplaceOne, k.ReplaceAll, k.CaseSensitive, k.Regex, k.WholeWord, k.Dismiss}
}

func (k FindKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
