// Package tui is the terminal shell: a Bubble Tea program with a tab bar, a
// textarea editing surface, a find/replace bar and the prompts the workspace
// asks for.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/inkwell/internal/autosave"
	"github.com/fakeyudi/inkwell/internal/persist"
	"github.com/fakeyudi/inkwell/internal/search"
	"github.com/fakeyudi/inkwell/internal/workspace"
)

// Model is the root Bubble Tea model.
type Model struct {
	bridge   *Bridge
	keys     KeyMap
	findKeys FindKeyMap
	help     help.Model

	editor  textarea.Model
	find    textinput.Model
	replace textinput.Model
	input   textinput.Model

	finding    bool
	searchOpts search.Options

	prompts []promptMsg
	state   State
	notice  *noticeMsg

	// offer is the number of recoverable documents awaiting an answer.
	offer       int
	confirmQuit bool

	// picking shows the recent files list; pick is the highlighted entry.
	picking bool
	pick    int

	width  int
	height int
	ready  bool
}

// NewModel returns the shell model. A positive recoverable count opens the
// recovery offer first.
func NewModel(b *Bridge, recoverable int) Model {
	editor := textarea.New()
	editor.ShowLineNumbers = true
	editor.Prompt = ""
	editor.CharLimit = 0
	editor.MaxHeight = 0
	editor.Placeholder = "Start typing"
	editor.Focus()

	find := textinput.New()
	find.Prompt = "find: "
	find.Placeholder = "search"

	replace := textinput.New()
	replace.Prompt = "replace: "
	replace.Placeholder = "replacement"

	input := textinput.New()

	return Model{
		bridge:   b,
		keys:     DefaultKeyMap(),
		findKeys: DefaultFindKeyMap(),
		help:     help.New(),
		editor:   editor,
		find:     find,
		replace:  replace,
		input:    input,
		offer:    recoverable,
	}
}

func (m Model) Init() tea.Cmd { return textarea.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.layout()
		return m, nil

	case contentMsg:
		m.editor.SetValue(msg.content)
		m.bridge.applied(msg.seq)
		return m, nil

	case stateMsg:
		m.state = msg.State
		return m, nil

	case noticeMsg:
		m.notice = &msg
		return m, nil

	case promptMsg:
		m.prompts = append(m.prompts, msg)
		if len(m.prompts) == 1 {
			cmd := m.showPrompt()
			return m, cmd
		}
		return m, nil

	case tea.BlurMsg:
		m.bridge.Do(func(ws *workspace.Workspace) {
			ws.OnBlur()
			ws.OnHidden()
		})
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	switch {
	case len(m.prompts) > 0:
		m.input, cmd = m.input.Update(msg)
	case m.finding:
		m.find, cmd = m.find.Update(msg)
	default:
		m.editor, cmd = m.editor.Update(msg)
	}
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case m.offer > 0:
		return m.answerOffer(msg)
	case m.confirmQuit:
		switch msg.String() {
		case "y":
			return m, tea.Quit
		case "n", "esc":
			m.confirmQuit = false
		}
		return m, nil
	case len(m.prompts) > 0:
		return m.answerPrompt(msg)
	case m.picking:
		return m.answerPicker(msg)
	}

	if m.finding {
		if model, cmd, ok := m.handleFindKey(msg); ok {
			return model, cmd
		}
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.state.AnyDirty {
			m.confirmQuit = true
			return m, nil
		}
		return m, tea.Quit
	case key.Matches(msg, m.keys.New):
		m.bridge.Do(func(ws *workspace.Workspace) { ws.New() })
		return m, nil
	case key.Matches(msg, m.keys.Open):
		m.bridge.Do(func(ws *workspace.Workspace) { ws.Open("", nil) })
		return m, nil
	case key.Matches(msg, m.keys.OpenRecent):
		if len(m.state.Recent) == 0 {
			m.notice = &noticeMsg{text: "No recent files", severity: persist.SeverityInfo}
			return m, nil
		}
		m.picking = true
		m.pick = 0
		return m, nil
	case key.Matches(msg, m.keys.Save):
		m.bridge.Do(func(ws *workspace.Workspace) { ws.SaveActive(nil) })
		return m, nil
	case key.Matches(msg, m.keys.SaveAs):
		m.bridge.Do(func(ws *workspace.Workspace) { ws.SaveAs(ws.Registry().ActiveID(), nil) })
		return m, nil
	case key.Matches(msg, m.keys.Close):
		m.bridge.Do(func(ws *workspace.Workspace) { ws.CloseActive(nil) })
		return m, nil
	case key.Matches(msg, m.keys.NextTab):
		m.bridge.Do(func(ws *workspace.Workspace) { ws.Cycle(1) })
		return m, nil
	case key.Matches(msg, m.keys.PrevTab):
		m.bridge.Do(func(ws *workspace.Workspace) { ws.Cycle(-1) })
		return m, nil
	case key.Matches(msg, m.keys.Find):
		cmd := m.openFind(false)
		return m, cmd
	case key.Matches(msg, m.keys.Replace):
		cmd := m.openFind(true)
		return m, cmd
	}

	if m.finding || len(m.state.Tabs) == 0 {
		return m, nil
	}
	before := m.editor.Value()
	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	if after := m.editor.Value(); after != before {
		m.bridge.edited(after)
	}
	return m, cmd
}

func (m Model) answerOffer(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "enter":
		m.offer = 0
		m.bridge.Do(func(ws *workspace.Workspace) {
			if n, err := ws.Recover(); err == nil {
				m.bridge.NotifyUser(fmt.Sprintf("Recovered %d document(s)", n), persist.SeverityInfo)
			}
		})
	case "n", "esc":
		m.offer = 0
		m.bridge.Do(func(ws *workspace.Workspace) {
			if err := ws.DiscardRecovery(); err != nil {
				m.bridge.NotifyUser(fmt.Sprintf("Failed to discard recovery data: %v", err), persist.SeverityError)
			}
		})
	}
	return m, nil
}

func (m Model) answerPicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	n := len(m.state.Recent)
	switch msg.String() {
	case "up", "k":
		if m.pick > 0 {
			m.pick--
		}
	case "down", "j":
		if m.pick < n-1 {
			m.pick++
		}
	case "enter":
		m.picking = false
		if m.pick < n {
			path := m.state.Recent[m.pick].Path
			m.bridge.Do(func(ws *workspace.Workspace) { ws.Open(path, nil) })
		}
	case "x":
		m.picking = false
		b := m.bridge
		b.Do(func(ws *workspace.Workspace) {
			ws.ClearRecent()
			b.refresh()
		})
	case "esc":
		m.picking = false
	}
	return m, nil
}

func (m Model) answerPrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	current := m.prompts[0]
	if current.kind == promptConfirm {
		switch msg.String() {
		case "y", "n":
			return m.finishPrompt(promptReply{value: msg.String(), ok: true})
		case "esc":
			return m.finishPrompt(promptReply{})
		}
		return m, nil
	}

	switch msg.Type {
	case tea.KeyEnter:
		return m.finishPrompt(promptReply{value: m.input.Value(), ok: true})
	case tea.KeyEsc:
		return m.finishPrompt(promptReply{})
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) finishPrompt(r promptReply) (tea.Model, tea.Cmd) {
	m.prompts[0].reply <- r
	m.prompts = m.prompts[1:]
	m.input.Blur()
	if len(m.prompts) > 0 {
		cmd := m.showPrompt()
		return m, cmd
	}
	if m.finding {
		cmd := m.find.Focus()
		return m, cmd
	}
	cmd := m.editor.Focus()
	return m, cmd
}

func (m *Model) showPrompt() tea.Cmd {
	p := m.prompts[0]
	m.editor.Blur()
	m.find.Blur()
	m.replace.Blur()
	if p.kind == promptConfirm {
		return nil
	}
	m.input.Prompt = p.label
	m.input.SetValue(p.value)
	m.input.CursorEnd()
	return m.input.Focus()
}

func (m *Model) openFind(replacing bool) tea.Cmd {
	m.finding = true
	m.editor.Blur()
	m.layout()
	if replacing {
		m.find.Blur()
		return m.replace.Focus()
	}
	m.replace.Blur()
	return m.find.Focus()
}

// handleFindKey handles keys while the find bar is open. ok is false for keys
// the bar does not consume.
func (m Model) handleFindKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	k := m.findKeys
	switch {
	case key.Matches(msg, k.Dismiss):
		m.finding = false
		m.find.Blur()
		m.replace.Blur()
		m.layout()
		m.bridge.Do(func(ws *workspace.Workspace) { ws.Search().Reset() })
		cmd := m.editor.Focus()
		return m, cmd, true
	case key.Matches(msg, k.Next):
		m.bridge.Do(func(ws *workspace.Workspace) { ws.Search().Next() })
		return m, nil, true
	case key.Matches(msg, k.Prev):
		m.bridge.Do(func(ws *workspace.Workspace) { ws.Search().Previous() })
		return m, nil, true
	case key.Matches(msg, k.SwitchField):
		if m.find.Focused() {
			m.find.Blur()
			cmd := m.replace.Focus()
			return m, cmd, true
		}
		m.replace.Blur()
		cmd := m.find.Focus()
		return m, cmd, true
	case key.Matches(msg, k.ReplaceOne):
		r := m.replace.Value()
		m.bridge.Do(func(ws *workspace.Workspace) { ws.Search().ReplaceActive(r) })
		return m, nil, true
	case key.Matches(msg, k.ReplaceAll):
		r, b := m.replace.Value(), m.bridge
		b.Do(func(ws *workspace.Workspace) {
			n := ws.Search().ReplaceAll(r)
			b.NotifyUser(fmt.Sprintf("Replaced %d occurrence(s)", n), persist.SeverityInfo)
		})
		return m, nil, true
	case key.Matches(msg, k.CaseSensitive):
		m.searchOpts.CaseSensitive = !m.searchOpts.CaseSensitive
		m.runSearch()
		return m, nil, true
	case key.Matches(msg, k.Regex):
		m.searchOpts.UseRegex = !m.searchOpts.UseRegex
		m.runSearch()
		return m, nil, true
	case key.Matches(msg, k.WholeWord):
		m.searchOpts.WholeWord = !m.searchOpts.WholeWord
		m.runSearch()
		return m, nil, true
	}

	// Everything else except global shortcuts is typed into the bar.
	if key.Matches(msg, m.keys.ShortHelp()...) || key.Matches(msg, m.keys.SaveAs, m.keys.PrevTab) {
		return m, nil, false
	}
	var cmd tea.Cmd
	if m.replace.Focused() {
		m.replace, cmd = m.replace.Update(msg)
		return m, cmd, true
	}
	before := m.find.Value()
	m.find, cmd = m.find.Update(msg)
	if m.find.Value() != before {
		m.runSearch()
	}
	return m, cmd, true
}

func (m Model) runSearch() {
	query, opts := m.find.Value(), m.searchOpts
	m.bridge.Do(func(ws *workspace.Workspace) { ws.Search().Search(query, opts) })
}

func (m *Model) layout() {
	// tab bar, bottom line and status bar
	h := m.height - 3
	if h < 1 {
		h = 1
	}
	m.editor.SetWidth(m.width)
	m.editor.SetHeight(h)
	m.help.Width = m.width
	m.input.Width = m.width - lipgloss.Width(m.input.Prompt) - 2
	half := m.width/2 - 12
	if half < 10 {
		half = 10
	}
	m.find.Width = half
	m.replace.Width = half
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}
	switch {
	case m.offer > 0:
		return m.dialog(fmt.Sprintf("inkwell found %d unsaved document(s) from a previous session.\n\nRecover them? (y/n)", m.offer))
	case m.confirmQuit:
		return m.dialog("There are unsaved changes.\n\nQuit anyway? (y/n)")
	case len(m.prompts) > 0 && m.prompts[0].kind == promptConfirm:
		return m.dialog(m.prompts[0].label + "\n\n(y) save  (n) don't save  (esc) cancel")
	case m.picking:
		return m.dialog(m.recentList())
	}

	body := m.editor.View()
	if len(m.state.Tabs) == 0 {
		body = lipgloss.Place(m.width, max(1, m.height-3), lipgloss.Center, lipgloss.Center,
			dimStyle.Render("No document open. ^n new, ^o open"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.tabBar(), body, m.bottomLine(), m.statusBar())
}

func (m Model) dialog(text string) string {
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, dialogStyle.Render(text))
}

func (m Model) recentList() string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("Recent files") + "\n\n")
	for i, f := range m.state.Recent {
		marker := "  "
		if i == m.pick {
			marker = "> "
		}
		b.WriteString(marker + f.Name + "  " + dimStyle.Render(f.Path) + "\n")
	}
	b.WriteString("\n(enter) open  (x) clear list  (esc) cancel")
	return b.String()
}

func (m Model) tabBar() string {
	var parts []string
	for i, t := range m.state.Tabs {
		label := " " + t.Name + " "
		if t.Dirty {
			label = " " + t.Name + " " + dirtyMarkStyle.Render("●") + " "
		}
		if t.Active {
			parts = append(parts, activeTabStyle.Render(label))
		} else {
			parts = append(parts, inactiveTabStyle.Render(label))
		}
		if i < len(m.state.Tabs)-1 {
			parts = append(parts, tabSepStyle.Render("│"))
		}
	}
	return tabBarStyle.Width(m.width).Render(lipgloss.JoinHorizontal(lipgloss.Top, parts...))
}

func (m Model) bottomLine() string {
	switch {
	case len(m.prompts) > 0:
		return m.input.View()
	case m.finding:
		flags := []string{
			toggle("Aa", m.searchOpts.CaseSensitive),
			toggle(".*", m.searchOpts.UseRegex),
			toggle("\\b", m.searchOpts.WholeWord),
		}
		return m.find.View() + "  " + m.replace.View() + "  " + strings.Join(flags, " ")
	case m.notice != nil:
		return noticeStyle(m.notice.severity).Render(m.notice.text)
	default:
		return m.help.View(m.keys)
	}
}

func toggle(label string, on bool) string {
	if on {
		return toggleOnStyle.Render(label)
	}
	return dimStyle.Render(label)
}

func noticeStyle(sev persist.Severity) lipgloss.Style {
	switch sev {
	case persist.SeverityWarning:
		return warningStyle
	case persist.SeverityError:
		return errorStyle
	default:
		return infoStyle
	}
}

func (m Model) statusBar() string {
	st := m.state
	left := "no document"
	if len(st.Tabs) > 0 {
		name := st.Path
		if name == "" {
			name = st.Name
		}
		left = labelStyle.Render(name) + "  " + string(st.Kind) +
			fmt.Sprintf("  %d words  %d chars", st.Words, st.Chars)
	}
	if st.Query != "" {
		if st.Matches == 0 {
			left += "  no matches"
		} else {
			left += fmt.Sprintf("  match %d/%d (line %d)", st.ActiveMatch, st.Matches, st.MatchLine)
		}
	}

	right := "autosave " + st.Autosave.String()
	if st.Autosave == autosave.StateDisabled {
		right = "autosave off"
	}
	if !st.LastSave.IsZero() {
		right += "  saved " + st.LastSave.Format("15:04:05")
	}

	pad := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if pad < 1 {
		pad = 1
	}
	return statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", pad) + right)
}

// Run starts the shell on the terminal and blocks until the user quits. The
// loop behind b must already be running.
func Run(b *Bridge, ws *workspace.Workspace, recoverable int) error {
	p := tea.NewProgram(NewModel(b, recoverable), tea.WithAltScreen(), tea.WithReportFocus())
	b.Attach(p)
	b.ex.Post(func() { b.Bind(ws) })
	_, err := p.Run()
	b.Attach(nil)
	return err
}
