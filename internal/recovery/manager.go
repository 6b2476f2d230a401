package recovery

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/fakeyudi/inkwell/internal/eventloop"
	"github.com/fakeyudi/inkwell/internal/session"
)

const (
	// DefaultInterval is how often a snapshot is taken while sessions are
	// dirty.
	DefaultInterval = 30 * time.Second
	// DefaultMaxAge is the staleness bound past which a snapshot is dropped.
	DefaultMaxAge = 24 * time.Hour
)

// Options configures a Manager.
type Options struct {
	Interval time.Duration
	MaxAge   time.Duration
	Logger   *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Manager writes snapshots on a timer and restores them at startup.
// Methods run on the event loop; the store is only touched off the loop,
// except by CheckForRecoverable which runs before the loop starts.
type Manager struct {
	reg      *session.Registry
	store    Store
	ex       eventloop.Executor
	log      *slog.Logger
	now      func() time.Time
	interval time.Duration
	maxAge   time.Duration

	started bool
	timer   eventloop.Timer
	gen     uint64
	pending *Snapshot
	seq     uint64

	// writeMu runs snapshot writes one at a time; written is the seq of
	// the newest snapshot on disk.
	writeMu sync.Mutex
	written uint64
}

// NewManager returns a stopped Manager.
func NewManager(reg *session.Registry, store Store, ex eventloop.Executor, opts Options) *Manager {
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
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Manager{
		reg:      reg,
		store:    store,
		ex:       ex,
		log:      logger.With("component", "recovery"),
		now:      now,
		interval: interval,
		maxAge:   maxAge,
	}
}

// Start begins periodic snapshots.
func (m *Manager) Start() {
	if m.started {
		return
	}
	m.started = true
	m.arm()
}

// Stop clears the timer. A write already handed to the store completes.
func (m *Manager) Stop() {
	m.started = false
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) arm() {
	gen := m.gen
	m.timer = m.ex.AfterFunc(m.interval, func() {
		if gen != m.gen || !m.started {
			return
		}
		m.SaveNow()
		m.arm()
	})
}

// SaveNow writes a snapshot of every session when at least one is dirty.
// It reports whether a write was started.
func (m *Manager) SaveNow() bool {
	if !m.reg.AnyDirty() {
		return false
	}
	snap := Capture(m.reg, m.now())
	m.seq++
	seq := m.seq
	m.ex.Go(func() { m.write(seq, snap) })
	return true
}

// write stores snap unless a newer snapshot already reached the store.
func (m *Manager) write(seq uint64, snap *Snapshot) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if seq < m.written {
		m.log.Debug("older recovery snapshot skipped", "seq", seq, "written", m.written)
		return
	}
	if err := m.store.Write(snap); err != nil {
		m.log.Error("recovery snapshot not written", "err", err)
		return
	}
	m.written = seq
	m.log.Debug("recovery snapshot written", "tabs", len(snap.Tabs))
}

// OnVisibilityLost takes a snapshot immediately.
func (m *Manager) OnVisibilityLost() bool {
	return m.SaveNow()
}

// CheckForRecoverable loads the snapshot left by an earlier run. Corrupt,
// stale and clean-only snapshots are deleted and never offered.
func (m *Manager) CheckForRecoverable(ctx context.Context) bool {
	m.pending = nil
	if err := ctx.Err(); err != nil {
		return false
	}

	snap, err := m.store.Read()
	switch {
	case errors.Is(err, ErrNoSnapshot):
		return false
	case errors.Is(err, ErrCorruptSnapshot):
		m.log.Warn("discarding corrupt recovery snapshot", "err", err)
		m.drop()
		return false
	case err != nil:
		m.log.Warn("recovery snapshot unreadable", "err", err)
		return false
	}

	if age := snap.Age(m.now()); age > m.maxAge {
		m.log.Warn("discarding stale recovery snapshot", "age", age.Round(time.Second))
		m.drop()
		return false
	}
	if len(snap.DirtyTabs()) == 0 {
		m.log.Info("discarding recovery snapshot without unsaved changes")
		m.drop()
		return false
	}

	m.pending = snap
	return true
}

func (m *Manager) drop() {
	if err := m.store.Delete(); err != nil {
		m.log.Warn("recovery snapshot not deleted", "err", err)
	}
}

// Pending returns the snapshot found by CheckForRecoverable, or nil.
func (m *Manager) Pending() *Snapshot {
	return m.pending
}

// Recover recreates the dirty tabs of the pending snapshot as dirty sessions
// and deletes the artifact. Clean tabs are assumed to be intact on disk. A tab
// whose file is already open updates that session instead of duplicating it.
func (m *Manager) Recover() (int, error) {
	snap := m.pending
	if snap == nil {
		return 0, nil
	}
	m.pending = nil

	restored := 0
	for _, t := range snap.DirtyTabs() {
		path := deref(t.FilePath)
		if open := m.reg.FindByPath(path); open != nil {
			m.reg.MutateContent(open.ID(), t.Content)
			restored++
			continue
		}
		m.reg.Create(session.CreateOptions{
			Content:     t.Content,
			Path:        path,
			DisplayName: t.FileName,
			Dirty:       true,
			Kind:        kindOf(t.FileType),
		})
		restored++
	}
	m.log.Info("recovered sessions", "count", restored)

	if err := m.store.Delete(); err != nil {
		return restored, err
	}
	return restored, nil
}

// Discard deletes the snapshot without restoring anything.
func (m *Manager) Discard() error {
	m.pending = nil
	return m.store.Delete()
}

func kindOf(fileType string) session.Kind {
	switch session.Kind(fileType) {
	case session.KindMarkdown:
		return session.KindMarkdown
	case session.KindText:
		return session.KindText
	}
	return ""
}
