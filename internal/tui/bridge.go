package tui

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fakeyudi/inkwell/internal/autosave"
	"github.com/fakeyudi/inkwell/internal/editorsync"
	"github.com/fakeyudi/inkwell/internal/eventloop"
	"github.com/fakeyudi/inkwell/internal/persist"
	"github.com/fakeyudi/inkwell/internal/search"
	"github.com/fakeyudi/inkwell/internal/session"
	"github.com/fakeyudi/inkwell/internal/workspace"
)

// sender is the part of *tea.Program the bridge needs.
type sender interface {
	Send(msg tea.Msg)
}

// Bridge connects the event loop, where the workspace lives, with the Bubble
// Tea program, which owns the terminal. Loop-side state reaches the program
// as messages; key presses reach the workspace as posted closures.
//
// Bridge also serves as the workspace's editing surface, prompter, close
// confirmer and notifier.
type Bridge struct {
	ex  eventloop.Executor
	log *slog.Logger

	mu   sync.Mutex
	prog sender

	// Loop-owned.
	ws         *workspace.Workspace
	onChange   func(string)
	seq        uint64
	settles    map[uint64]func()
	refreshing bool
	unsubs     []func()
}

// NewBridge returns a Bridge that drops messages until Attach is called.
func NewBridge(ex eventloop.Executor, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		ex:      ex,
		log:     logger.With("component", "tui"),
		settles: make(map[uint64]func()),
	}
}

// Attach sets the program messages are sent to.
func (b *Bridge) Attach(p sender) {
	b.mu.Lock()
	b.prog = p
	b.mu.Unlock()
}

// send delivers msg to the program. It blocks until the program reads it, so
// it must never be called from the program's own goroutine.
func (b *Bridge) send(msg tea.Msg) bool {
	b.mu.Lock()
	p := b.prog
	b.mu.Unlock()
	if p == nil {
		b.log.Debug("message dropped, no program attached", "type", typeName(msg))
		return false
	}
	p.Send(msg)
	return true
}

// Bind subscribes to the workspace and binds the bridge as its editing
// surface. It must run on the loop.
func (b *Bridge) Bind(ws *workspace.Workspace) {
	b.ws = ws
	refresh := func() { b.refresh() }
	b.unsubs = append(b.unsubs,
		ws.Registry().Subscribe(func(session.Change) { refresh() }),
		ws.Controller().Synced.Subscribe(func(editorsync.Synced) { refresh() }),
		ws.Search().Counts.Subscribe(func(search.Counts) { refresh() }),
		ws.Autosave().Results.Subscribe(func(autosave.Result) { refresh() }),
	)
	ws.Controller().BindSurface(b)
	b.refresh()
}

// Unbind drops the subscriptions made by Bind. It must run on the loop.
func (b *Bridge) Unbind() {
	for _, unsub := range b.unsubs {
		unsub()
	}
	b.unsubs = nil
	if b.ws != nil {
		b.ws.Controller().UnbindSurface()
	}
}

// Do runs fn on the loop with the bound workspace.
func (b *Bridge) Do(fn func(ws *workspace.Workspace)) {
	b.ex.Post(func() {
		if b.ws != nil {
			fn(b.ws)
		}
	})
}

// refresh coalesces state updates into one message per loop turn.
func (b *Bridge) refresh() {
	if b.refreshing {
		return
	}
	b.refreshing = true
	b.ex.Post(func() {
		b.refreshing = false
		if b.ws != nil {
			b.send(stateMsg{State: Snapshot(b.ws)})
		}
	})
}

// Initialize implements editorsync.Surface.
func (b *Bridge) Initialize(content string) error {
	b.seq++
	b.send(contentMsg{content: content, seq: b.seq})
	return nil
}

// ReplaceContent implements editorsync.Surface.
func (b *Bridge) ReplaceContent(content string) error {
	return b.Initialize(content)
}

// ReplaceContentSettled implements editorsync.Settler. The program
// acknowledges a replacement after applying it, and every edit it reported
// before that is already queued on the loop.
func (b *Bridge) ReplaceContentSettled(content string, settled func()) error {
	b.seq++
	b.settles[b.seq] = settled
	b.send(contentMsg{content: content, seq: b.seq})
	return nil
}

// OnContentChanged implements editorsync.Surface.
func (b *Bridge) OnContentChanged(fn func(string)) {
	b.onChange = fn
}

// Destroy implements editorsync.Surface.
func (b *Bridge) Destroy() {
	b.onChange = nil
	clear(b.settles)
}

// edited is called by the program after a keystroke changed the text.
func (b *Bridge) edited(content string) {
	b.ex.Post(func() {
		if b.onChange != nil {
			b.onChange(content)
		}
	})
}

// applied is called by the program once contentMsg seq is on screen.
func (b *Bridge) applied(seq uint64) {
	b.ex.Post(func() {
		if settled, ok := b.settles[seq]; ok {
			delete(b.settles, seq)
			settled()
		}
	})
}

// PromptOpenPath implements persist.Prompter.
func (b *Bridge) PromptOpenPath(ctx context.Context) (string, error) {
	return b.askPath(ctx, "Open file: ", "")
}

// PromptSavePath implements persist.Prompter.
func (b *Bridge) PromptSavePath(ctx context.Context, suggested string) (string, error) {
	return b.askPath(ctx, "Save as: ", suggested)
}

func (b *Bridge) askPath(ctx context.Context, label, value string) (string, error) {
	answer, err := b.ask(ctx, promptMsg{kind: promptPath, label: label, value: value})
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", persist.ErrCancelled
	}
	return answer, nil
}

// ConfirmClose implements persist.Confirmer.
func (b *Bridge) ConfirmClose(ctx context.Context, name string) (persist.Choice, error) {
	answer, err := b.ask(ctx, promptMsg{
		kind:  promptConfirm,
		label: "Save changes to " + name + " before closing?",
	})
	if err != nil {
		if errors.Is(err, persist.ErrCancelled) {
			return persist.ChoiceCancel, nil
		}
		return persist.ChoiceCancel, err
	}
	switch answer {
	case "y":
		return persist.ChoiceSave, nil
	case "n":
		return persist.ChoiceDontSave, nil
	default:
		return persist.ChoiceCancel, nil
	}
}

// ask shows a prompt and blocks until the user answers. It runs off the loop.
func (b *Bridge) ask(ctx context.Context, p promptMsg) (string, error) {
	reply := make(chan promptReply, 1)
	p.reply = reply
	if !b.send(p) {
		return "", persist.ErrCancelled
	}
	select {
	case r := <-reply:
		if !r.ok {
			return "", persist.ErrCancelled
		}
		return r.value, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// NotifyUser implements persist.Notifier.
func (b *Bridge) NotifyUser(message string, severity persist.Severity) {
	persist.LogNotifier{Logger: b.log}.NotifyUser(message, severity)
	b.send(noticeMsg{text: message, severity: severity, at: time.Now()})
}

// TabView is one entry of the tab bar.
type TabView struct {
	Name   string
	Dirty  bool
	Active bool
}

// State is what the program renders besides the text itself.
type State struct {
	Tabs        []TabView
	Name        string
	Path        string
	Kind        session.Kind
	Words       int
	Chars       int
	Query       string
	Matches     int
	ActiveMatch int
	MatchLine   int
	Autosave    autosave.State
	LastSave    time.Time
	AnyDirty    bool
	Recent      []workspace.RecentFile
}

// Snapshot captures the workspace for rendering. It must run on the loop.
func Snapshot(ws *workspace.Workspace) State {
	reg := ws.Registry()
	st := State{
		Autosave: ws.Autosave().State(),
		LastSave: ws.Autosave().LastSave(),
		AnyDirty: reg.AnyDirty(),
		Query:    ws.Search().Query(),
		Recent:   ws.Recent(),
	}
	for _, s := range reg.Sessions() {
		st.Tabs = append(st.Tabs, TabView{
			Name:   s.DisplayName(),
			Dirty:  s.Dirty(),
			Active: s.ID() == reg.ActiveID(),
		})
	}
	active := reg.Active()
	if active == nil {
		return st
	}
	st.Name = active.DisplayName()
	st.Path = active.Path()
	st.Kind = active.Kind()
	st.Words = session.WordCount(active.Content())
	st.Chars = session.CharCount(active.Content())

	st.Matches = len(ws.Search().Matches())
	if m, ok := ws.Search().ActiveMatch(); ok {
		st.ActiveMatch = m.Ordinal + 1
		st.MatchLine = lineOf([]rune(active.Content()), m.Start)
	}
	return st
}

// lineOf returns the 1-based line holding rune offset pos.
func lineOf(runes []rune, pos int) int {
	line := 1
	for i := 0; i < pos && i < len(runes); i++ {
		if runes[i] == '\n' {
			line++
		}
	}
	return line
}

func typeName(msg tea.Msg) string {
	switch msg.(type) {
	case contentMsg:
		return "content"
	case stateMsg:
		return "state"
	case promptMsg:
		return "prompt"
	case noticeMsg:
		return "notice"
	default:
		return "other"
	}
}

type contentMsg struct {
	content string
	seq     uint64
}

type stateMsg struct {
	State State
}

type promptKind int

const (
	promptPath promptKind = iota
	promptConfirm
)

type promptReply struct {
	value string
	ok    bool
}

type promptMsg struct {
	kind  promptKind
	label string
	value string
	reply chan<- promptReply
}

type noticeMsg struct {
	text     string
	severity persist.Severity
	at       time.Time
}
