// Package autosave periodically writes the active session back to its file.
package autosave

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fakeyudi/inkwell/internal/eventloop"
	"github.com/fakeyudi/inkwell/internal/persist"
	"github.com/fakeyudi/inkwell/internal/pubsub"
	"github.com/fakeyudi/inkwell/internal/session"
)

// DefaultInterval is used when Options.Interval is not positive.
const DefaultInterval = 30 * time.Second

// State is the scheduler's lifecycle state.
type State int

const (
	StateDisabled State = iota
	StateArmed
	StateSaving
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateSaving:
		return "saving"
	default:
		return "disabled"
	}
}

// Result is published after every autosave attempt completes.
type Result struct {
	ID   session.ID
	Path string
	At   time.Time
	Err  error
}

// Options configures a Scheduler.
type Options struct {
	Enabled  bool
	Interval time.Duration
	Logger   *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Scheduler saves the active session on a timer and on blur. A session is
// only written when autosave is enabled, it is dirty and it already has a
// backing path: a document the user never named is never materialized.
type Scheduler struct {
	reg    *session.Registry
	docs   persist.Documents
	notify persist.Notifier
	ex     eventloop.Executor
	log    *slog.Logger
	now    func() time.Time

	enabled  bool
	interval time.Duration
	started  bool
	state    State
	timer    eventloop.Timer
	gen      uint64
	lastSave time.Time
	inflight map[session.ID]bool

	ctx    context.Context
	cancel context.CancelFunc

	Results pubsub.Topic[Result]
}

// New returns a stopped Scheduler.
func New(reg *session.Registry, docs persist.Documents, notify persist.Notifier, ex eventloop.Executor, opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		reg:      reg,
		docs:     docs,
		notify:   notify,
		ex:       ex,
		log:      logger.With("component", "autosave"),
		now:      now,
		enabled:  opts.Enabled,
		interval: interval,
		inflight: make(map[session.ID]bool),
	}
}

// Start arms the timer when autosave is enabled.
func (s *Scheduler) Start() {
	if s.started {
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.arm()
}

// Stop clears the timer and cancels in-flight writes.
func (s *Scheduler) Stop() {
	if !s.started {
		return
	}
	s.started = false
	s.disarm()
	s.cancel()
	s.state = StateDisabled
}

// SetEnabled turns autosave on or off.
func (s *Scheduler) SetEnabled(enabled bool) {
	if s.enabled == enabled {
		return
	}
	s.enabled = enabled
	s.log.Debug("autosave toggled", "enabled", enabled)
	s.arm()
}

// SetInterval changes the period and re-arms immediately.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultInterval
	}
	if d == s.interval {
		return
	}
	s.interval = d
	s.log.Debug("autosave interval changed", "interval", d)
	s.arm()
}

func (s *Scheduler) Enabled() bool           { return s.enabled }
func (s *Scheduler) Interval() time.Duration { return s.interval }
func (s *Scheduler) State() State            { return s.state }

// LastSave returns when the last successful autosave finished.
func (s *Scheduler) LastSave() time.Time { return s.lastSave }

func (s *Scheduler) disarm() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) arm() {
	s.disarm()
	if !s.started || !s.enabled {
		if s.state != StateSaving {
			s.state = StateDisabled
		}
		return
	}
	if s.state != StateSaving {
		s.state = StateArmed
	}
	gen := s.gen
	s.timer = s.ex.AfterFunc(s.interval, func() { s.tick(gen) })
}

func (s *Scheduler) tick(gen uint64) {
	if gen != s.gen {
		return
	}
	s.timer = nil
	s.Fire()
	s.arm()
}

// Fire saves the active session if it is eligible. It reports whether a
// write was started.
func (s *Scheduler) Fire() bool {
	if !s.enabled {
		return false
	}
	active := s.reg.Active()
	if active == nil || !active.Dirty() || active.Path() == "" {
		return false
	}
	if s.inflight[active.ID()] {
		s.log.Debug("autosave skipped: write in flight", "id", active.ID())
		return false
	}
	s.save(active)
	return true
}

// OnBlur applies the timer's eligibility rule when the window loses focus.
func (s *Scheduler) OnBlur() bool {
	return s.Fire()
}

// BlockNavigation reports whether leaving now would lose unsaved work. The
// shell asks the user instead of forcing a save.
func (s *Scheduler) BlockNavigation() bool {
	return s.reg.AnyDirty()
}

func (s *Scheduler) save(sess *session.Session) {
	id, path, name, content := sess.ID(), sess.Path(), sess.DisplayName(), sess.Content()
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	s.inflight[id] = true
	s.state = StateSaving
	s.ex.Go(func() {
		err := s.docs.WriteDocument(ctx, path, content)
		s.ex.Post(func() { s.finish(id, path, name, content, err) })
	})
}

func (s *Scheduler) finish(id session.ID, path, name, content string, err error) {
	delete(s.inflight, id)
	if len(s.inflight) == 0 {
		switch {
		case s.started && s.enabled:
			s.state = StateArmed
		default:
			s.state = StateDisabled
		}
	}

	res := Result{ID: id, Path: path, At: s.now(), Err: err}
	if err != nil {
		s.log.Error("autosave failed", "id", id, "path", path, "err", err)
		s.notify.NotifyUser(fmt.Sprintf("Autosave failed for %s: %v", name, err), persist.SeverityError)
		s.Results.Publish(res)
		return
	}

	// The session may have been closed or rebound while the write ran.
	if sess := s.reg.Get(id); sess != nil && sess.Path() == path {
		s.reg.MarkSavedContent(id, content, "", "")
	}
	s.lastSave = res.At
	s.log.Debug("autosaved", "id", id, "path", path)
	s.Results.Publish(res)
}
