package workspace

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fakeyudi/inkwell/internal/config"
	"github.com/fakeyudi/inkwell/internal/eventloop"
	"github.com/fakeyudi/inkwell/internal/persist"
	"github.com/fakeyudi/inkwell/internal/recovery"
	"github.com/fakeyudi/inkwell/internal/session"
	"github.com/fakeyudi/inkwell/internal/watch"
)

type fakeGateway struct {
	files     map[string]string
	writeErr  error
	openPath  string
	savePath  string
	promptErr error
	suggested []string
	notes     []string
}

func (g *fakeGateway) ReadDocument(_ context.Context, path string) (string, error) {
	content, ok := g.files[path]
	if !ok {
		return "", &persist.FileError{Op: "read", Path: path, Err: os.ErrNotExist}
	}
	return content, nil
}

func (g *fakeGateway) WriteDocument(_ context.Context, path, content string) error {
	if g.writeErr != nil {
		return &persist.FileError{Op: "write", Path: path, Err: g.writeErr}
	}
	g.files[path] = content
	return nil
}

func (g *fakeGateway) PromptOpenPath(context.Context) (string, error) {
	if g.promptErr != nil {
		return "", g.promptErr
	}
	return g.openPath, nil
}

func (g *fakeGateway) PromptSavePath(_ context.Context, suggested string) (string, error) {
	g.suggested = append(g.suggested, suggested)
	if g.promptErr != nil {
		return "", g.promptErr
	}
	return g.savePath, nil
}

func (g *fakeGateway) NotifyUser(message string, _ persist.Severity) {
	g.notes = append(g.notes, message)
}

type fakeConfirmer struct {
	choice persist.Choice
	asked  []string
}

func (c *fakeConfirmer) ConfirmClose(_ context.Context, name string) (persist.Choice, error) {
	c.asked = append(c.asked, name)
	return c.choice, nil
}

type fakeWatcher struct {
	paths    map[string]int
	handlers map[string][]func(watch.Event)
}

func (f *fakeWatcher) Add(path string) error {
	f.paths[path]++
	return nil
}

func (f *fakeWatcher) Remove(path string) error {
	if f.paths[path]--; f.paths[path] <= 0 {
		delete(f.paths, path)
	}
	return nil
}

func (f *fakeWatcher) OnChange(path string, fn func(watch.Event)) func() {
	f.handlers[path] = append(f.handlers[path], fn)
	return func() { delete(f.handlers, path) }
}

func (f *fakeWatcher) fire(ev watch.Event) {
	if f.paths[ev.Path] == 0 {
		return
	}
	for _, key := range []string{ev.Path, watch.All} {
		for _, fn := range f.handlers[key] {
			fn(ev)
		}
	}
}

type memStore struct{ snap *recovery.Snapshot }

func (m *memStore) Exists() (bool, error) { return m.snap != nil, nil }
func (m *memStore) Read() (*recovery.Snapshot, error) {
	if m.snap == nil {
		return nil, recovery.ErrNoSnapshot
	}
	return m.snap, nil
}
func (m *memStore) Write(s *recovery.Snapshot) error { m.snap = s; return nil }
func (m *memStore) Delete() error                    { m.snap = nil; return nil }

type harness struct {
	ws      *Workspace
	ex      *eventloop.Manual
	gw      *fakeGateway
	confirm *fakeConfirmer
	watcher *fakeWatcher
	store   *memStore
	cfg     config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		ex:      eventloop.NewManual(),
		gw:      &fakeGateway{files: map[string]string{}},
		confirm: &fakeConfirmer{},
		watcher: &fakeWatcher{paths: map[string]int{}, handlers: map[string][]func(watch.Event){}},
		store:   &memStore{},
		cfg:     config.Defaults(),
	}
	h.ws = New(h.ex, Options{
		Config:     h.cfg,
		Gateway:    h.gw,
		Confirmer:  h.confirm,
		Recovery:   h.store,
		Watcher:    h.watcher,
		ConfigPath: "/home/u/.config/inkwell/config.json",
		LoadConfig: func() (config.Config, error) { return h.cfg, nil },
		Now:        func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) },
	})
	h.ws.Start()
	t.Cleanup(h.ws.Stop)
	return h
}

func (h *harness) open(t *testing.T, path string) session.ID {
	t.Helper()
	var got session.ID
	var gotErr error
	h.ws.Open(path, func(id session.ID, err error) { got, gotErr = id, err })
	h.ex.Flush()
	if gotErr != nil {
		t.Fatalf("Open(%s): %v", path, gotErr)
	}
	return got
}

func TestNewDocumentStartsDirty(t *testing.T) {
	h := newHarness(t)
	id := h.ws.New()
	s := h.ws.Registry().Get(id)
	if !s.Dirty() || !s.New() || s.DisplayName() != session.UntitledName {
		t.Errorf("new session dirty %v new %v name %q", s.Dirty(), s.New(), s.DisplayName())
	}
	if h.ws.Registry().ActiveID() != id {
		t.Error("new session not active")
	}
	if h.ws.CanQuit() {
		t.Error("CanQuit with an unsaved document")
	}
}

func TestOpenDeduplicatesByPath(t *testing.T) {
	h := newHarness(t)
	h.gw.files["/docs/a.md"] = "# A"
	h.gw.files["/docs/b.txt"] = "b"

	a := h.open(t, "/docs/a.md")
	h.open(t, "/docs/b.txt")
	again := h.open(t, "/docs/a.md")

	reg := h.ws.Registry()
	if again != a || reg.Len() != 2 {
		t.Errorf("second open created a duplicate: %q vs %q, len %d", again, a, reg.Len())
	}
	if reg.ActiveID() != a {
		t.Error("reopening did not activate the existing tab")
	}
	s := reg.Get(a)
	if s.Dirty() || s.Content() != "# A" || s.Kind() != session.KindMarkdown {
		t.Errorf("opened session dirty %v content %q kind %v", s.Dirty(), s.Content(), s.Kind())
	}
	if h.watcher.paths["/docs/a.md"] == 0 {
		t.Error("opened file not watched")
	}
	recent := h.ws.Recent()
	if len(recent) != 2 || recent[0].Path != "/docs/b.txt" {
		t.Errorf("recent = %+v", recent)
	}
}

func TestOpenMissingFileNotifies(t *testing.T) {
	h := newHarness(t)
	var gotErr error
	h.ws.Open("/nope.md", func(_ session.ID, err error) { gotErr = err })
	h.ex.Flush()

	var fe *persist.FileError
	if !errors.As(gotErr, &fe) || !fe.NotFound() {
		t.Errorf("err = %v, want not-found FileError", gotErr)
	}
	if len(h.gw.notes) != 1 || !strings.HasPrefix(h.gw.notes[0], "Failed to open file") {
		t.Errorf("notes = %v", h.gw.notes)
	}
	if h.ws.Registry().Len() != 0 {
		t.Error("failed open created a session")
	}
}

func TestOpenPromptCancelledIsSilent(t *testing.T) {
	h := newHarness(t)
	h.gw.promptErr = persist.ErrCancelled
	var gotErr error
	h.ws.Open("", func(_ session.ID, err error) { gotErr = err })
	h.ex.Flush()
	if !errors.Is(gotErr, persist.ErrCancelled) {
		t.Errorf("err = %v", gotErr)
	}
	if len(h.gw.notes) != 0 {
		t.Errorf("cancel notified the user: %v", h.gw.notes)
	}
}

func TestSaveNewDocumentGoesThroughSaveAs(t *testing.T) {
	h := newHarness(t)
	id := h.ws.New()
	h.ws.Registry().MutateContent(id, "hello")
	h.gw.savePath = "/docs/hello.md"

	var gotErr error = errors.New("not called")
	h.ws.Save(id, func(err error) { gotErr = err })
	h.ex.Flush()

	if gotErr != nil {
		t.Fatalf("Save: %v", gotErr)
	}
	if len(h.gw.suggested) != 1 || h.gw.suggested[0] != "untitled.md" {
		t.Errorf("suggested = %v", h.gw.suggested)
	}
	s := h.ws.Registry().Get(id)
	if s.Dirty() || s.New() || s.Path() != "/docs/hello.md" || s.DisplayName() != "hello.md" {
		t.Errorf("after save: dirty %v new %v path %q name %q", s.Dirty(), s.New(), s.Path(), s.DisplayName())
	}
	// The kind is fixed at creation.
	if s.Kind() != session.KindText {
		t.Errorf("kind = %v, want text", s.Kind())
	}
	if h.gw.files["/docs/hello.md"] != "hello" {
		t.Errorf("file = %q", h.gw.files["/docs/hello.md"])
	}
	if h.watcher.paths["/docs/hello.md"] == 0 {
		t.Error("saved file not watched")
	}
}

func TestSaveFailureKeepsDirty(t *testing.T) {
	h := newHarness(t)
	h.gw.files["/a.md"] = "a"
	id := h.open(t, "/a.md")
	h.ws.Registry().MutateContent(id, "b")
	h.gw.writeErr = errors.New("read-only file system")

	var gotErr error
	h.ws.SaveActive(func(err error) { gotErr = err })
	h.ex.Flush()

	if gotErr == nil || !h.ws.Registry().Get(id).Dirty() {
		t.Errorf("err %v dirty %v", gotErr, h.ws.Registry().Get(id).Dirty())
	}
	if len(h.gw.notes) != 1 || !strings.Contains(h.gw.notes[0], "read-only") {
		t.Errorf("notes = %v", h.gw.notes)
	}
}

func TestCloseCleanSessionWithoutAsking(t *testing.T) {
	h := newHarness(t)
	h.gw.files["/a.md"] = "a"
	h.gw.files["/b.md"] = "b"
	a := h.open(t, "/a.md")
	b := h.open(t, "/b.md")

	var closed bool
	h.ws.Close(b, func(ok bool, _ error) { closed = ok })
	h.ex.Flush()
	if !closed || len(h.confirm.asked) != 0 {
		t.Errorf("closed %v asked %v", closed, h.confirm.asked)
	}
	if h.ws.Registry().ActiveID() != a {
		t.Error("active did not fall back to the remaining tab")
	}
	if h.watcher.paths["/b.md"] > 0 {
		t.Error("closed file still watched")
	}

	h.ws.Close("missing", func(ok bool, err error) { closed = ok })
	if closed {
		t.Error("closing an unknown id reported success")
	}
}

func TestCloseDirtyAsks(t *testing.T) {
	tests := []struct {
		choice     persist.Choice
		savePath   string
		wantClosed bool
		wantFile   bool
	}{
		{persist.ChoiceCancel, "", false, false},
		{persist.ChoiceDontSave, "", true, false},
		{persist.ChoiceSave, "/saved.md", true, true},
		{persist.ChoiceSave, "", false, false}, // save dialog cancelled
	}
	for _, tt := range tests {
		t.Run(tt.choice.String()+tt.savePath, func(t *testing.T) {
			h := newHarness(t)
			h.confirm.choice = tt.choice
			h.gw.savePath = tt.savePath
			if tt.savePath == "" {
				h.gw.promptErr = persist.ErrCancelled
			}
			id := h.ws.New()
			h.ws.Registry().MutateContent(id, "draft")

			var closed bool
			h.ws.Close(id, func(ok bool, _ error) { closed = ok })
			h.ex.Flush()

			if len(h.confirm.asked) != 1 || h.confirm.asked[0] != session.UntitledName {
				t.Errorf("asked = %v", h.confirm.asked)
			}
			if closed != tt.wantClosed {
				t.Errorf("closed = %v, want %v", closed, tt.wantClosed)
			}
			if (h.ws.Registry().Len() == 0) != tt.wantClosed {
				t.Errorf("registry len = %d", h.ws.Registry().Len())
			}
			if _, ok := h.gw.files["/saved.md"]; ok != tt.wantFile {
				t.Errorf("file written = %v, want %v", ok, tt.wantFile)
			}
		})
	}
}

func TestExternalChangeReloadsCleanSession(t *testing.T) {
	h := newHarness(t)
	h.gw.files["/a.md"] = "v1"
	id := h.open(t, "/a.md")

	h.gw.files["/a.md"] = "v2"
	h.watcher.fire(watch.Event{Path: "/a.md", Op: watch.OpModify})
	h.ex.Flush()

	s := h.ws.Registry().Get(id)
	if s.Content() != "v2" || s.Dirty() {
		t.Errorf("content %q dirty %v, want clean v2", s.Content(), s.Dirty())
	}
}

func TestExternalChangeKeepsDirtySession(t *testing.T) {
	h := newHarness(t)
	h.gw.files["/a.md"] = "v1"
	id := h.open(t, "/a.md")
	h.ws.Registry().MutateContent(id, "mine")

	h.gw.files["/a.md"] = "theirs"
	h.watcher.fire(watch.Event{Path: "/a.md", Op: watch.OpModify})
	h.ex.Flush()

	if got := h.ws.Registry().Get(id).Content(); got != "mine" {
		t.Errorf("content = %q, unsaved changes overwritten", got)
	}
	if len(h.gw.notes) != 1 || !strings.Contains(h.gw.notes[0], "changed on disk") {
		t.Errorf("notes = %v", h.gw.notes)
	}

	h.watcher.fire(watch.Event{Path: "/a.md", Op: watch.OpRemove})
	if len(h.gw.notes) != 2 || !strings.Contains(h.gw.notes[1], "deleted") {
		t.Errorf("notes = %v", h.gw.notes)
	}
}

func TestOwnSaveIsNotAnExternalChange(t *testing.T) {
	h := newHarness(t)
	h.gw.files["/a.md"] = "v1"
	id := h.open(t, "/a.md")
	reg := h.ws.Registry()
	reg.MutateContent(id, "v2")

	// The watcher reports the write before the save completes on the loop,
	// and the user keeps typing once it has.
	h.ws.Save(id, func(err error) {
		if err != nil {
			t.Errorf("Save: %v", err)
		}
		reg.MutateContent(id, "v2 and more")
	})
	h.watcher.fire(watch.Event{Path: "/a.md", Op: watch.OpModify})
	h.ex.Flush()
	h.watcher.fire(watch.Event{Path: "/a.md", Op: watch.OpModify})
	h.ex.Flush()

	if len(h.gw.notes) != 0 {
		t.Errorf("notes after own save = %v", h.gw.notes)
	}
	if got := reg.Get(id).Content(); got != "v2 and more" {
		t.Errorf("content = %q", got)
	}

	h.gw.files["/a.md"] = "theirs"
	h.watcher.fire(watch.Event{Path: "/a.md", Op: watch.OpModify})
	h.ex.Flush()
	if len(h.gw.notes) != 1 || !strings.Contains(h.gw.notes[0], "changed on disk") {
		t.Errorf("notes after external change = %v", h.gw.notes)
	}
}

func TestAutosaveIsNotAnExternalChange(t *testing.T) {
	h := newHarness(t)
	h.gw.files["/a.md"] = "v1"
	id := h.open(t, "/a.md")
	reg := h.ws.Registry()
	reg.MutateContent(id, "v2")

	h.ex.Advance(h.cfg.AutoSaveInterval.Std())
	if h.gw.files["/a.md"] != "v2" {
		t.Fatalf("autosave did not write: %q", h.gw.files["/a.md"])
	}
	reg.MutateContent(id, "v3")
	h.watcher.fire(watch.Event{Path: "/a.md", Op: watch.OpModify})
	h.ex.Flush()

	if len(h.gw.notes) != 0 {
		t.Errorf("notes after autosave = %v", h.gw.notes)
	}
}

func TestClosingConfigFileKeepsLiveReload(t *testing.T) {
	h := newHarness(t)
	path := "/home/u/.config/inkwell/config.json"
	h.gw.files[path] = "{}"
	id := h.open(t, path)
	h.ws.Recover()
	h.ex.Flush()
	h.ws.Discard(id)
	if h.watcher.paths[path] != 1 {
		t.Fatalf("watch count = %d after closing the document, want 1", h.watcher.paths[path])
	}

	off := false
	h.cfg.AutoSave = &off
	h.watcher.fire(watch.Event{Path: path, Op: watch.OpModify})
	h.ex.Flush()
	if h.ws.Autosave().Enabled() {
		t.Error("config change not applied after closing the config document")
	}
}

func TestConfigReloadAppliesAutosaveSettings(t *testing.T) {
	h := newHarness(t)
	off := false
	h.cfg.AutoSave = &off
	h.cfg.AutoSaveInterval = config.Duration(5 * time.Second)

	h.watcher.fire(watch.Event{Path: "/home/u/.config/inkwell/config.json", Op: watch.OpModify})
	h.ex.Flush()

	if h.ws.Autosave().Enabled() || h.ws.Autosave().Interval() != 5*time.Second {
		t.Errorf("autosave enabled %v interval %v", h.ws.Autosave().Enabled(), h.ws.Autosave().Interval())
	}
	if h.ws.Config().AutoSaveEnabled() {
		t.Error("Config not updated")
	}
}

func TestCycleWraps(t *testing.T) {
	h := newHarness(t)
	a := h.ws.New()
	h.ws.New()
	c := h.ws.New()

	h.ws.Cycle(1)
	if h.ws.Registry().ActiveID() != a {
		t.Error("Cycle(1) from the last tab did not wrap to the first")
	}
	h.ws.Cycle(-1)
	if h.ws.Registry().ActiveID() != c {
		t.Error("Cycle(-1) from the first tab did not wrap to the last")
	}
}

func TestRecoverRestoresDirtyTabs(t *testing.T) {
	h := newHarness(t)
	id := h.ws.New()
	h.ws.Registry().MutateContent(id, "unsaved work")
	h.ws.OnHidden()
	h.ex.Flush()
	if h.store.snap == nil {
		t.Fatal("no snapshot written on hide")
	}

	// A fresh workspace, as after a crash.
	h2 := newHarness(t)
	h2.store.snap = h.store.snap
	if !h2.ws.CheckRecovery(context.Background()) {
		t.Fatal("snapshot not offered")
	}
	n, err := h2.ws.Recover()
	if err != nil || n != 1 {
		t.Fatalf("Recover = %d, %v", n, err)
	}
	s := h2.ws.Registry().Active()
	if s == nil || s.Content() != "unsaved work" || !s.Dirty() {
		t.Errorf("recovered session = %+v", s)
	}
	if h2.store.snap != nil {
		t.Error("snapshot not deleted after recovery")
	}
}

func TestStopCancelsSubscriptions(t *testing.T) {
	h := newHarness(t)
	h.ws.Stop()
	if len(h.watcher.handlers) != 0 {
		t.Errorf("handlers left after Stop: %d", len(h.watcher.handlers))
	}
}

func TestRecentIsBounded(t *testing.T) {
	var r Recent
	at := time.Now()
	for i := 0; i < MaxRecent+5; i++ {
		r.Add(string(rune('a'+i)), at)
	}
	r.Add("c", at)
	list := r.List()
	if len(list) != MaxRecent {
		t.Fatalf("len = %d, want %d", len(list), MaxRecent)
	}
	if list[0].Path != "c" {
		t.Errorf("most recent = %q, want c", list[0].Path)
	}
	seen := map[string]bool{}
	for _, f := range list {
		if seen[f.Path] {
			t.Errorf("duplicate %q", f.Path)
		}
		seen[f.Path] = true
	}
}

func TestRecentDropsMissingFilesAndClears(t *testing.T) {
	h := newHarness(t)
	h.gw.files["/a.md"] = "a"
	h.gw.files["/b.md"] = "b"
	a := h.open(t, "/a.md")
	h.open(t, "/b.md")
	if got := len(h.ws.Recent()); got != 2 {
		t.Fatalf("recent = %d entries, want 2", got)
	}

	h.ws.Discard(a)
	delete(h.gw.files, "/a.md")
	h.ws.Open("/a.md", nil)
	h.ex.Flush()

	recent := h.ws.Recent()
	if len(recent) != 1 || recent[0].Path != "/b.md" {
		t.Errorf("recent = %+v, want only /b.md", recent)
	}

	h.ws.ClearRecent()
	if got := h.ws.Recent(); len(got) != 0 {
		t.Errorf("recent after clear = %+v", got)
	}
}

func TestDiscardedEditsAreCounted(t *testing.T) {
	h := newHarness(t)
	if got := h.ws.DiscardedEdits(); got != 0 {
		t.Fatalf("DiscardedEdits = %d before any edit", got)
	}

	// With no document open there is nowhere for the edit to go.
	h.ws.Controller().OnSurfaceChanged("lost")
	h.ws.Controller().OnSurfaceChanged("lost again")
	if got := h.ws.DiscardedEdits(); got != 2 {
		t.Errorf("DiscardedEdits = %d, want 2", got)
	}
}
