package autosave

import (
	"context"
	"errors"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/fakeyudi/inkwell/internal/eventloop"
	"github.com/fakeyudi/inkwell/internal/persist"
	"github.com/fakeyudi/inkwell/internal/session"
)

type memDocs struct {
	files  map[string]string
	writes int
	err    error
}

func (m *memDocs) ReadDocument(_ context.Context, path string) (string, error) {
	return m.files[path], nil
}

func (m *memDocs) WriteDocument(_ context.Context, path, content string) error {
	m.writes++
	if m.err != nil {
		return m.err
	}
	m.files[path] = content
	return nil
}

type note struct {
	msg      string
	severity persist.Severity
}

type recordingNotifier struct{ notes []note }

func (r *recordingNotifier) NotifyUser(msg string, severity persist.Severity) {
	r.notes = append(r.notes, note{msg, severity})
}

type harness struct {
	reg   *session.Registry
	ex    *eventloop.Manual
	docs  *memDocs
	notes *recordingNotifier
	sched *Scheduler
	clock time.Time
}

func newHarness(t testing.TB, enabled bool) *harness {
	t.Helper()
	h := &harness{
		reg:   session.NewRegistry(),
		ex:    eventloop.NewManual(),
		docs:  &memDocs{files: map[string]string{}},
		notes: &recordingNotifier{},
		clock: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	h.sched = New(h.reg, h.docs, h.notes, h.ex, Options{
		Enabled:  enabled,
		Interval: 30 * time.Second,
		Now:      func() time.Time { return h.clock },
	})
	h.sched.Start()
	t.Cleanup(h.sched.Stop)
	return h
}

func TestSavesDirtyActiveSessionOnInterval(t *testing.T) {
	h := newHarness(t, true)
	id := h.reg.Create(session.CreateOptions{Path: "/notes.md", Content: "a"})
	h.reg.MutateContent(id, "ab")

	h.ex.Advance(29 * time.Second)
	if h.docs.writes != 0 {
		t.Fatal("saved before the interval elapsed")
	}
	h.ex.Advance(time.Second)

	if h.docs.files["/notes.md"] != "ab" {
		t.Errorf("file = %q, want ab", h.docs.files["/notes.md"])
	}
	if h.reg.Get(id).Dirty() {
		t.Error("session still dirty after autosave")
	}
	if !h.sched.LastSave().Equal(h.clock) {
		t.Errorf("LastSave = %v", h.sched.LastSave())
	}
	if h.sched.State() != StateArmed {
		t.Errorf("state = %v, want armed", h.sched.State())
	}
}

// Feature: inkwell, Property 8: autosave never writes a session without a backing path
func TestNeverSavesSessionWithoutPath(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		h := newHarness(t, true)
		id := h.reg.Create(session.CreateOptions{
			Content: rapid.String().Draw(rt, "initial"),
			Dirty:   rapid.Bool().Draw(rt, "startDirty"),
		})
		h.reg.MutateContent(id, rapid.String().Draw(rt, "edit"))

		ticks := rapid.IntRange(1, 10).Draw(rt, "ticks")
		for i := 0; i < ticks; i++ {
			if rapid.Bool().Draw(rt, "blur") {
				h.sched.OnBlur()
			}
			h.ex.Advance(30 * time.Second)
		}
		if h.docs.writes != 0 {
			rt.Fatalf("wrote %d times for an unnamed session", h.docs.writes)
		}
	})
}

func TestCleanSessionNotSaved(t *testing.T) {
	h := newHarness(t, true)
	h.reg.Create(session.CreateOptions{Path: "/clean.md", Content: "x"})
	h.ex.Advance(2 * time.Minute)
	if h.docs.writes != 0 {
		t.Errorf("writes = %d, want 0", h.docs.writes)
	}
}

func TestOnlyActiveSessionSaved(t *testing.T) {
	h := newHarness(t, true)
	a := h.reg.Create(session.CreateOptions{Path: "/a.md", Content: "a"})
	h.reg.MutateContent(a, "a!")
	h.reg.Create(session.CreateOptions{Path: "/b.md", Content: "b"})

	h.ex.Advance(30 * time.Second)
	if h.docs.writes != 0 {
		t.Errorf("inactive session was saved")
	}
}

func TestDisabledNeverSaves(t *testing.T) {
	h := newHarness(t, false)
	id := h.reg.Create(session.CreateOptions{Path: "/a.md", Content: "a"})
	h.reg.MutateContent(id, "b")

	if h.sched.State() != StateDisabled {
		t.Errorf("state = %v, want disabled", h.sched.State())
	}
	h.ex.Advance(time.Minute)
	if h.sched.OnBlur() || h.docs.writes != 0 {
		t.Error("disabled scheduler saved")
	}

	h.sched.SetEnabled(true)
	if h.sched.State() != StateArmed {
		t.Errorf("state = %v, want armed", h.sched.State())
	}
	h.ex.Advance(30 * time.Second)
	if h.docs.writes != 1 {
		t.Errorf("writes = %d, want 1", h.docs.writes)
	}

	h.sched.SetEnabled(false)
	h.reg.MutateContent(id, "c")
	h.ex.Advance(time.Minute)
	if h.docs.writes != 1 {
		t.Errorf("writes after disabling = %d, want 1", h.docs.writes)
	}
}

func TestSetIntervalRearmsImmediately(t *testing.T) {
	h := newHarness(t, true)
	id := h.reg.Create(session.CreateOptions{Path: "/a.md", Content: "a"})
	h.reg.MutateContent(id, "b")

	h.ex.Advance(20 * time.Second)
	h.sched.SetInterval(5 * time.Second)
	h.ex.Advance(5 * time.Second)
	if h.docs.writes != 1 {
		t.Errorf("writes = %d, want 1 after the new interval", h.docs.writes)
	}
	if h.sched.Interval() != 5*time.Second {
		t.Errorf("Interval = %v", h.sched.Interval())
	}
}

func TestFailureNotifiesAndTimerContinues(t *testing.T) {
	h := newHarness(t, true)
	id := h.reg.Create(session.CreateOptions{Path: "/a.md", Content: "a"})
	h.reg.MutateContent(id, "b")
	h.docs.err = errors.New("disk full")

	var results []Result
	h.sched.Results.Subscribe(func(r Result) { results = append(results, r) })

	h.ex.Advance(30 * time.Second)
	if len(h.notes.notes) != 1 || h.notes.notes[0].severity != persist.SeverityError {
		t.Fatalf("notes = %+v, want one error", h.notes.notes)
	}
	if !h.reg.Get(id).Dirty() {
		t.Error("failed save cleared dirty")
	}

	h.docs.err = nil
	h.ex.Advance(30 * time.Second)
	if h.reg.Get(id).Dirty() {
		t.Error("timer stopped after a failure")
	}
	if len(results) != 2 || results[0].Err == nil || results[1].Err != nil {
		t.Errorf("results = %+v", results)
	}
}

func TestEditsDuringWriteStayDirty(t *testing.T) {
	h := newHarness(t, true)
	id := h.reg.Create(session.CreateOptions{Path: "/a.md", Content: "a"})
	h.reg.MutateContent(id, "first")

	if !h.sched.Fire() {
		t.Fatal("Fire did not start a save")
	}
	if h.sched.State() != StateSaving {
		t.Errorf("state = %v, want saving", h.sched.State())
	}
	if h.sched.Fire() {
		t.Error("second save started while the first was in flight")
	}
	h.reg.MutateContent(id, "second")
	h.ex.Flush()

	s := h.reg.Get(id)
	if s.Baseline() != "first" || !s.Dirty() {
		t.Errorf("baseline %q dirty %v, want first and dirty", s.Baseline(), s.Dirty())
	}
}

func TestBlurSaves(t *testing.T) {
	h := newHarness(t, true)
	id := h.reg.Create(session.CreateOptions{Path: "/a.md", Content: "a"})
	h.reg.MutateContent(id, "b")
	if !h.sched.OnBlur() {
		t.Fatal("OnBlur did not save")
	}
	h.ex.Flush()
	if h.docs.files["/a.md"] != "b" {
		t.Errorf("file = %q", h.docs.files["/a.md"])
	}
}

func TestBlockNavigation(t *testing.T) {
	h := newHarness(t, true)
	if h.sched.BlockNavigation() {
		t.Error("empty registry blocks navigation")
	}
	id := h.reg.Create(session.CreateOptions{Path: "/a.md", Content: "a"})
	h.reg.MutateContent(id, "b")
	if !h.sched.BlockNavigation() {
		t.Error("dirty session does not block navigation")
	}
}

func TestStopClearsTimer(t *testing.T) {
	h := newHarness(t, true)
	id := h.reg.Create(session.CreateOptions{Path: "/a.md", Content: "a"})
	h.reg.MutateContent(id, "b")
	h.sched.Stop()
	if h.ex.Pending() != 0 {
		t.Errorf("pending timers = %d after Stop", h.ex.Pending())
	}
	h.ex.Advance(time.Minute)
	if h.docs.writes != 0 {
		t.Error("stopped scheduler saved")
	}
}
