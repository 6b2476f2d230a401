// Package workspace wires the session core together: it owns the registry,
// the editor sync controller, the search engine and both background
// schedulers, and implements the user-level file operations on top of them.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fakeyudi/inkwell/internal/autosave"
	"github.com/fakeyudi/inkwell/internal/config"
	"github.com/fakeyudi/inkwell/internal/editorsync"
	"github.com/fakeyudi/inkwell/internal/eventloop"
	"github.com/fakeyudi/inkwell/internal/persist"
	"github.com/fakeyudi/inkwell/internal/recovery"
	"github.com/fakeyudi/inkwell/internal/search"
	"github.com/fakeyudi/inkwell/internal/session"
	"github.com/fakeyudi/inkwell/internal/watch"
)

// ErrUnknownSession is reported for operations on a session that was closed.
var ErrUnknownSession = errors.New("unknown session")

// FileWatcher is the subset of *watch.Watcher the workspace uses.
type FileWatcher interface {
	Add(path string) error
	Remove(path string) error
	OnChange(path string, fn func(watch.Event)) (cancel func())
}

// Options configures a Workspace.
type Options struct {
	Config    config.Config
	Gateway   persist.Gateway
	Confirmer persist.Confirmer
	Recovery  recovery.Store
	// Watcher is optional. Without it external changes go unnoticed.
	Watcher FileWatcher
	// ConfigPath is watched for live reload when set.
	ConfigPath string
	// LoadConfig defaults to config.Load.
	LoadConfig func() (config.Config, error)
	Logger     *slog.Logger
	Now        func() time.Time
}

// Workspace is the editor's core. Every method must be called on the event
// loop; completion callbacks run there too.
type Workspace struct {
	ex         eventloop.Executor
	log        *slog.Logger
	now        func() time.Time
	gw         persist.Gateway
	writes     *ownWrites
	confirm    persist.Confirmer
	watcher    FileWatcher
	cfg        config.Config
	configPath string
	loadConfig func() (config.Config, error)

	reg      *session.Registry
	ctrl     *editorsync.Controller
	search   *search.Engine
	autosave *autosave.Scheduler
	recovery *recovery.Manager
	recent   Recent

	// watched holds the document paths this workspace added to the
	// watcher, so each is added and removed exactly once.
	watched map[string]bool

	// discarded counts editor notifications dropped by the sync guards.
	discarded int

	ctx     context.Context
	cancel  context.CancelFunc
	cancels []func()
}

// New assembles a stopped Workspace.
func New(ex eventloop.Executor, opts Options) *Workspace {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	confirm := opts.Confirmer
	if confirm == nil {
		confirm = persist.NoPrompt{}
	}
	loadConfig := opts.LoadConfig
	if loadConfig == nil {
		loadConfig = config.Load
	}
	cfg := opts.Config
	writes := &ownWrites{}
	gw := recordingGateway{Gateway: opts.Gateway, writes: writes}

	w := &Workspace{
		ex:         ex,
		log:        logger.With("component", "workspace"),
		now:        now,
		gw:         gw,
		writes:     writes,
		confirm:    confirm,
		watcher:    opts.Watcher,
		cfg:        cfg,
		configPath: opts.ConfigPath,
		loadConfig: loadConfig,
		reg:        session.NewRegistry(),
		watched:    make(map[string]bool),
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())

	w.ctrl = editorsync.NewController(w.reg, ex, editorsync.Options{
		SettleDelay: cfg.SettleDelay.Std(),
		Logger:      logger,
	})
	w.search = search.NewEngine(w.reg, search.EngineOptions{
		MatchTimeout: cfg.SearchTimeout.Std(),
		Logger:       logger,
	})
	w.autosave = autosave.New(w.reg, gw, gw, ex, autosave.Options{
		Enabled:  cfg.AutoSaveEnabled(),
		Interval: cfg.AutoSaveInterval.Std(),
		Logger:   logger,
		Now:      now,
	})
	w.recovery = recovery.NewManager(w.reg, opts.Recovery, ex, recovery.Options{
		Interval: cfg.RecoveryInterval.Std(),
		MaxAge:   cfg.RecoveryMaxAge.Std(),
		Logger:   logger,
		Now:      now,
	})
	return w
}

func (w *Workspace) Registry() *session.Registry        { return w.reg }
func (w *Workspace) Controller() *editorsync.Controller { return w.ctrl }
func (w *Workspace) Search() *search.Engine             { return w.search }
func (w *Workspace) Autosave() *autosave.Scheduler      { return w.autosave }
func (w *Workspace) Recovery() *recovery.Manager        { return w.recovery }
func (w *Workspace) Config() config.Config              { return w.cfg }

// Recent returns the recent files, most recent first.
func (w *Workspace) Recent() []RecentFile { return w.recent.List() }

// DiscardedEdits reports how many editor notifications the sync guards
// dropped since Start.
func (w *Workspace) DiscardedEdits() int { return w.discarded }

// ClearRecent empties the recent files list.
func (w *Workspace) ClearRecent() {
	w.recent.Clear()
	w.log.Debug("recent files cleared")
}

// Start arms the schedulers and subscribes to file changes.
func (w *Workspace) Start() {
	w.autosave.Start()
	w.recovery.Start()
	w.cancels = append(w.cancels, w.ctrl.Discarded.Subscribe(func(editorsync.Discarded) { w.discarded++ }))
	if w.watcher == nil {
		return
	}
	w.cancels = append(w.cancels, w.watcher.OnChange(watch.All, w.onFileEvent))
	if w.configPath != "" {
		if err := w.watcher.Add(w.configPath); err != nil {
			w.log.Debug("config not watched", "path", w.configPath, "err", err)
		} else {
			w.cancels = append(w.cancels, w.watcher.OnChange(w.configPath, w.onConfigChanged))
		}
	}
}

// Stop clears every timer and subscription and releases the surface.
func (w *Workspace) Stop() {
	w.autosave.Stop()
	w.recovery.Stop()
	for _, cancel := range w.cancels {
		cancel()
	}
	w.cancels = nil
	w.search.Close()
	w.ctrl.UnbindSurface()
	w.cancel()
}

// background runs fn off the loop and applies the continuation it returns
// back on the loop.
func (w *Workspace) background(fn func(ctx context.Context) func()) {
	ctx := w.ctx
	w.ex.Go(func() {
		if apply := fn(ctx); apply != nil {
			w.ex.Post(apply)
		}
	})
}

// fail reports err to the user unless the user cancelled.
func (w *Workspace) fail(what string, err error) {
	if errors.Is(err, persist.ErrCancelled) {
		w.log.Debug(what+" cancelled")
		return
	}
	w.log.Error(what, "err", err)
	w.gw.NotifyUser(fmt.Sprintf("%s: %v", what, err), persist.SeverityError)
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// New creates an empty untitled document. It starts dirty because nothing
// backs it yet.
func (w *Workspace) New() session.ID {
	id := w.reg.Create(session.CreateOptions{Dirty: true})
	w.ctrl.SwitchTo(id)
	return id
}

// Open loads path into a new session, or activates the session already
// showing it. An empty path asks the user first.
func (w *Workspace) Open(path string, done func(session.ID, error)) {
	finish := func(id session.ID, err error) {
		if done != nil {
			done(id, err)
		}
	}
	if path != "" {
		w.open(absPath(path), finish)
		return
	}
	w.background(func(ctx context.Context) func() {
		chosen, err := w.gw.PromptOpenPath(ctx)
		return func() {
			if err != nil {
				w.fail("Failed to open file", err)
				finish("", err)
				return
			}
			w.open(absPath(chosen), finish)
		}
	})
}

func (w *Workspace) open(path string, finish func(session.ID, error)) {
	if s := w.reg.FindByPath(path); s != nil {
		w.ctrl.SwitchTo(s.ID())
		finish(s.ID(), nil)
		return
	}
	w.background(func(ctx context.Context) func() {
		content, err := w.gw.ReadDocument(ctx, path)
		return func() {
			if err != nil {
				var fe *persist.FileError
				if errors.As(err, &fe) && fe.NotFound() {
					w.recent.Remove(path)
				}
				w.fail("Failed to open file", err)
				finish("", err)
				return
			}
			// Another open of the same path may have finished first.
			if s := w.reg.FindByPath(path); s != nil {
				w.ctrl.SwitchTo(s.ID())
				finish(s.ID(), nil)
				return
			}
			id := w.reg.Create(session.CreateOptions{Path: path, Content: content})
			w.ctrl.SwitchTo(id)
			w.recent.Add(path, w.now())
			w.watch(path)
			finish(id, nil)
		}
	})
}

// Save writes the session to its file. A session without one goes through
// SaveAs.
func (w *Workspace) Save(id session.ID, done func(error)) {
	finish := func(err error) {
		if done != nil {
			done(err)
		}
	}
	s := w.reg.Get(id)
	if s == nil {
		finish(ErrUnknownSession)
		return
	}
	if s.New() || s.Path() == "" {
		w.SaveAs(id, done)
		return
	}
	w.write(id, s.Path(), "", finish)
}

// SaveActive saves the active session.
func (w *Workspace) SaveActive(done func(error)) {
	w.Save(w.reg.ActiveID(), done)
}

// SaveAs asks for a path, writes the session there and rebinds it.
func (w *Workspace) SaveAs(id session.ID, done func(error)) {
	finish := func(err error) {
		if done != nil {
			done(err)
		}
	}
	s := w.reg.Get(id)
	if s == nil {
		finish(ErrUnknownSession)
		return
	}
	suggested := s.DisplayName()
	if s.New() && suggested == session.UntitledName {
		suggested = "untitled.md"
	}
	w.background(func(ctx context.Context) func() {
		chosen, err := w.gw.PromptSavePath(ctx, suggested)
		return func() {
			if err != nil {
				w.fail("Failed to save file", err)
				finish(err)
				return
			}
			chosen = absPath(chosen)
			w.write(id, chosen, filepath.Base(chosen), finish)
		}
	})
}

// write saves the content as of now. Keystrokes typed while the write is in
// flight keep the session dirty. A non-empty name rebinds the session.
func (w *Workspace) write(id session.ID, path, name string, finish func(error)) {
	s := w.reg.Get(id)
	if s == nil {
		finish(ErrUnknownSession)
		return
	}
	content, oldPath := s.Content(), s.Path()
	w.background(func(ctx context.Context) func() {
		err := w.gw.WriteDocument(ctx, path, content)
		return func() {
			if err != nil {
				w.fail("Failed to save file", err)
				finish(err)
				return
			}
			if !w.reg.MarkSavedContent(id, content, path, name) {
				finish(ErrUnknownSession)
				return
			}
			if name != "" {
				w.recent.Add(path, w.now())
				if oldPath != path {
					w.unwatch(oldPath)
					w.watch(path)
				}
			}
			w.log.Debug("saved", "id", id, "path", path)
			finish(nil)
		}
	})
}

// Close closes the session, asking first when it has unsaved changes.
// done reports whether the session was closed.
func (w *Workspace) Close(id session.ID, done func(closed bool, err error)) {
	finish := func(closed bool, err error) {
		if done != nil {
			done(closed, err)
		}
	}
	s := w.reg.Get(id)
	if s == nil {
		finish(false, ErrUnknownSession)
		return
	}
	if !s.Dirty() {
		w.closeNow(id)
		finish(true, nil)
		return
	}

	name := s.DisplayName()
	w.background(func(ctx context.Context) func() {
		choice, err := w.confirm.ConfirmClose(ctx, name)
		return func() {
			if err != nil {
				w.fail("Failed to close file", err)
				finish(false, err)
				return
			}
			switch choice {
			case persist.ChoiceDontSave:
				w.closeNow(id)
				finish(true, nil)
			case persist.ChoiceSave:
				w.Save(id, func(err error) {
					if err != nil {
						finish(false, err)
						return
					}
					w.closeNow(id)
					finish(true, nil)
				})
			default:
				finish(false, nil)
			}
		}
	})
}

// CloseActive closes the active session.
func (w *Workspace) CloseActive(done func(closed bool, err error)) {
	w.Close(w.reg.ActiveID(), done)
}

// Discard closes the session without asking, dropping unsaved changes.
func (w *Workspace) Discard(id session.ID) bool {
	if w.reg.Get(id) == nil {
		return false
	}
	w.closeNow(id)
	return true
}

func (w *Workspace) closeNow(id session.ID) {
	s := w.reg.Get(id)
	if s == nil {
		return
	}
	path := s.Path()
	wasActive := w.reg.ActiveID() == id

	w.reg.Close(id)
	if path != "" && w.reg.FindByPath(path) == nil {
		w.unwatch(path)
	}
	if !wasActive {
		return
	}
	if next := w.reg.ActiveID(); next != "" {
		w.ctrl.SwitchTo(next)
		return
	}
	w.ctrl.PushContent("", editorsync.PushOptions{AsExternalUpdate: true})
}

// Activate switches to the session without dirtying it.
func (w *Workspace) Activate(id session.ID) bool {
	return w.ctrl.SwitchTo(id)
}

// Cycle activates the session delta tabs away from the active one, wrapping
// around.
func (w *Workspace) Cycle(delta int) bool {
	n := w.reg.Len()
	if n == 0 {
		return false
	}
	i := w.reg.Index(w.reg.ActiveID())
	next := ((i+delta)%n + n) % n
	return w.Activate(w.reg.At(next).ID())
}

// CanQuit reports whether the shell may exit without asking.
func (w *Workspace) CanQuit() bool {
	return !w.autosave.BlockNavigation()
}

// OnBlur is called when the window loses focus.
func (w *Workspace) OnBlur() {
	w.autosave.OnBlur()
}

// OnHidden is called when the window is hidden or the process is about to
// be suspended.
func (w *Workspace) OnHidden() {
	w.recovery.OnVisibilityLost()
}

// CheckRecovery looks for a snapshot left by a crashed run. It must run
// before the loop starts processing edits.
func (w *Workspace) CheckRecovery(ctx context.Context) bool {
	return w.recovery.CheckForRecoverable(ctx)
}

// Recover restores the pending snapshot's unsaved sessions.
func (w *Workspace) Recover() (int, error) {
	n, err := w.recovery.Recover()
	for _, s := range w.reg.Sessions() {
		if s.Path() != "" {
			w.watch(s.Path())
		}
	}
	if id := w.reg.ActiveID(); id != "" {
		w.ctrl.SwitchTo(id)
	}
	if err != nil {
		w.fail("Failed to clear recovery data", err)
	}
	return n, err
}

// DiscardRecovery drops the pending snapshot.
func (w *Workspace) DiscardRecovery() error {
	return w.recovery.Discard()
}

// ApplyConfig applies the settings that can change at runtime.
func (w *Workspace) ApplyConfig(cfg config.Config) {
	w.cfg = cfg
	w.autosave.SetEnabled(cfg.AutoSaveEnabled())
	w.autosave.SetInterval(cfg.AutoSaveInterval.Std())
	w.log.Info("config reloaded", "auto_save", cfg.AutoSaveEnabled(), "interval", cfg.AutoSaveInterval.Std())
}

func (w *Workspace) onConfigChanged(ev watch.Event) {
	if ev.Op == watch.OpRemove {
		return
	}
	w.background(func(context.Context) func() {
		cfg, err := w.loadConfig()
		return func() {
			if err != nil {
				w.log.Warn("config not reloaded", "err", err)
				w.gw.NotifyUser(fmt.Sprintf("Config not reloaded: %v", err), persist.SeverityWarning)
				return
			}
			w.ApplyConfig(cfg)
		}
	})
}

// onFileEvent keeps clean sessions in step with their files. Dirty sessions
// are never overwritten; the user is warned instead.
func (w *Workspace) onFileEvent(ev watch.Event) {
	s := w.reg.FindByPath(ev.Path)
	if s == nil {
		return
	}
	if ev.Op == watch.OpRemove {
		w.gw.NotifyUser(fmt.Sprintf("%s was deleted or moved on disk", s.DisplayName()), persist.SeverityWarning)
		return
	}

	id, path := s.ID(), ev.Path
	w.background(func(ctx context.Context) func() {
		content, err := w.gw.ReadDocument(ctx, path)
		return func() {
			if err != nil {
				w.log.Warn("reload failed", "path", path, "err", err)
				return
			}
			s := w.reg.Get(id)
			if s == nil || w.writes.wrote(path, content) || content == s.Baseline() {
				return
			}
			if s.Dirty() {
				w.gw.NotifyUser(fmt.Sprintf("%s changed on disk; your unsaved changes were kept", s.DisplayName()), persist.SeverityWarning)
				return
			}
			if s.Content() == content {
				return
			}
			w.load(id, content)
			w.log.Info("reloaded from disk", "path", path)
		}
	})
}

// load replaces a session's content with load semantics, routing through
// the surface when the session is on screen.
func (w *Workspace) load(id session.ID, content string) {
	if w.reg.ActiveID() == id && w.ctrl.Bound() {
		w.ctrl.PushContent(content, editorsync.PushOptions{AsExternalUpdate: true})
		return
	}
	w.reg.ReplaceContent(id, content)
}

func (w *Workspace) watch(path string) {
	if w.watcher == nil || path == "" || w.watched[path] {
		return
	}
	if err := w.watcher.Add(path); err != nil {
		w.log.Warn("file not watched", "path", path, "err", err)
		return
	}
	w.watched[path] = true
}

func (w *Workspace) unwatch(path string) {
	if w.watcher == nil || !w.watched[path] {
		return
	}
	delete(w.watched, path)
	w.writes.forget(path)
	if err := w.watcher.Remove(path); err != nil {
		w.log.Debug("unwatch failed", "path", path, "err", err)
	}
}
